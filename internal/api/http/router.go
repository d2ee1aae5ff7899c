package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/storefront-api/internal/api/http/handlers"
	"github.com/spec-kit/storefront-api/internal/auth"
	"github.com/spec-kit/storefront-api/internal/domain"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health   *handlers.HealthHandler
	Accounts *handlers.AccountsHandler
	Admin    *handlers.AdminHandler
}

// RegisterRoutes wires HTTP routes. Authentication already ran globally;
// the groups below only apply authorization guards.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)

	api := app.Group("/api")

	authGroup := api.Group("/auth")
	authGroup.Post("/register", cfg.Accounts.Register)
	authGroup.Post("/login", cfg.Accounts.Login)
	authGroup.Post("/password/reset/request", cfg.Accounts.RequestPasswordReset)
	authGroup.Post("/password/reset/confirm", cfg.Accounts.ConfirmPasswordReset)

	// Guards are attached per route: a Group with an empty prefix would run
	// them for the public endpoints above as well.
	requireAuth := auth.RequireAuthenticated()
	authGroup.Get("/me", requireAuth, cfg.Accounts.Me)
	authGroup.Post("/password/change", requireAuth, cfg.Accounts.ChangePassword)

	admin := api.Group("/admin", auth.RequireRole(domain.RoleSuperAdmin))
	admin.Get("/users/:username", cfg.Admin.GetUser)
	admin.Get("/metrics", cfg.Admin.Metrics)
}
