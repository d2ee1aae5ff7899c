package http

import (
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/spec-kit/storefront-api/internal/api/http/handlers"
	"github.com/spec-kit/storefront-api/internal/auth"
	"github.com/spec-kit/storefront-api/internal/config"
	"github.com/spec-kit/storefront-api/internal/observability"
	"github.com/spec-kit/storefront-api/internal/service"
)

// ServerDependencies are the collaborators the HTTP surface is built from.
type ServerDependencies struct {
	Logger  *zap.Logger
	Metrics *observability.Metrics
	Tokens  *auth.TokenService
	Auth    *service.AuthService
	Pingers map[string]handlers.Pinger
}

// NewServer builds the fiber application with the global middleware chain
// and all routes registered.
func NewServer(cfg config.Config, deps ServerDependencies) *fiber.App {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	app := fiber.New(fiber.Config{
		AppName:               cfg.App.Name,
		DisableStartupMessage: true,
	})

	RegisterMiddlewares(app, MiddlewareConfig{
		Logger:         logger,
		Metrics:        deps.Metrics,
		Timeout:        cfg.App.RequestTimeout(),
		AllowedOrigins: cfg.CORS.AllowedOrigins,
		Authenticator:  auth.NewAuthenticator(deps.Tokens, deps.Metrics),
	})

	RegisterRoutes(app, RouteConfig{
		Health:   handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, deps.Pingers),
		Accounts: handlers.NewAccountsHandler(deps.Auth),
		Admin:    handlers.NewAdminHandler(deps.Auth, deps.Metrics),
	})
	return app
}
