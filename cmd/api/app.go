package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	httptransport "github.com/spec-kit/storefront-api/internal/api/http"
	"github.com/spec-kit/storefront-api/internal/api/http/handlers"
	"github.com/spec-kit/storefront-api/internal/auth"
	"github.com/spec-kit/storefront-api/internal/config"
	"github.com/spec-kit/storefront-api/internal/events"
	"github.com/spec-kit/storefront-api/internal/observability"
	"github.com/spec-kit/storefront-api/internal/persistence"
	"github.com/spec-kit/storefront-api/internal/repository"
	"github.com/spec-kit/storefront-api/internal/service"
	"github.com/spec-kit/storefront-api/internal/worker"
)

const minSigningKeyBytes = 32

// application holds everything built during startup.
type application struct {
	cfg        *config.Config
	logger     *zap.Logger
	metrics    *observability.Metrics
	postgres   *persistence.Postgres
	redis      *persistence.Redis
	users      repository.UserRepository
	resets     repository.PasswordResetRepository
	limiter    service.LoginLimiter
	dispatcher events.Dispatcher
}

func bootstrap(ctx context.Context) (*application, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logger, err := observability.NewLogger(cfg.Logger, cfg.App)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	if len(cfg.Auth.Key) < minSigningKeyBytes {
		logger.Warn("signing key is shorter than recommended", zap.Int("min_bytes", minSigningKeyBytes))
	}

	app := &application{
		cfg:        cfg,
		logger:     logger,
		metrics:    observability.NewMetrics(),
		dispatcher: events.NewInMemoryDispatcher(),
	}

	if inMemory {
		logger.Warn("using in-memory stores; data is lost on exit")
		users := repository.NewMemoryUserRepository()
		app.users = users
		app.resets = repository.NewMemoryPasswordResetRepository(users)
		app.limiter = persistence.NewMemoryLockout()
		return app, nil
	}

	app.postgres, err = persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if cfg.Postgres.RunMigrations {
		if err := persistence.RunMigrations(ctx, app.postgres.PoolHandle(), logger); err != nil {
			app.close()
			return nil, fmt.Errorf("run migrations: %w", err)
		}
	}

	pool := app.postgres.PoolHandle()
	app.users = repository.NewUserRepository(pool)
	app.resets = repository.NewPasswordResetRepository(pool)
	app.redis = persistence.NewRedis(cfg.Redis, logger)
	app.limiter = app.redis
	return app, nil
}

func (a *application) close() {
	a.redis.Close()
	a.postgres.Close()
	_ = a.logger.Sync()
}

func (a *application) seed(ctx context.Context, store service.IdentityStore) error {
	seeder := service.NewSeedService(*a.cfg, service.SeedDependencies{
		Store:      store,
		Dispatcher: a.dispatcher,
		Metrics:    a.metrics,
		Logger:     a.logger,
	})
	res, err := seeder.Seed(ctx)
	if err != nil {
		return fmt.Errorf("seed super admin: %w", err)
	}
	a.logger.Info("seeding finished", zap.String("outcome", res.String()))
	return nil
}

func seedOnly(ctx context.Context) error {
	app, err := bootstrap(ctx)
	if err != nil {
		return err
	}
	defer app.close()

	store := service.NewIdentityStore(app.users, app.cfg.Auth.BcryptCost)
	return app.seed(ctx, store)
}

func serve(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	app, err := bootstrap(ctx)
	if err != nil {
		return err
	}
	defer app.close()
	logger := app.logger

	tokens, err := auth.NewTokenService(app.cfg.Auth)
	if err != nil {
		logger.Error("token service", zap.Error(err))
		return err
	}

	notifications := service.NewNotificationService(app.dispatcher, service.NewLogMailer(logger), logger, app.cfg.Notification)
	worker.StartNotificationWorker(notifications, logger)

	store := service.NewIdentityStore(app.users, app.cfg.Auth.BcryptCost)
	if err := app.seed(ctx, store); err != nil {
		logger.Error("startup aborted", zap.Error(err))
		return err
	}

	authService := service.NewAuthService(*app.cfg, service.AuthDependencies{
		Store:             store,
		UserRepo:          app.users,
		PasswordResetRepo: app.resets,
		Tokens:            tokens,
		Limiter:           app.limiter,
		Dispatcher:        app.dispatcher,
		Logger:            logger,
	})

	pingers := map[string]handlers.Pinger{}
	if app.postgres != nil {
		pingers["postgres"] = app.postgres
	}
	if app.redis != nil {
		pingers["redis"] = app.redis
	}

	server := httptransport.NewServer(*app.cfg, httptransport.ServerDependencies{
		Logger:  logger,
		Metrics: app.metrics,
		Tokens:  tokens,
		Auth:    authService,
		Pingers: pingers,
	})

	listenErr := make(chan error, 1)
	go func() {
		logger.Info("listening", zap.String("addr", app.cfg.App.Addr()))
		listenErr <- server.Listen(app.cfg.App.Addr())
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	select {
	case err := <-listenErr:
		logger.Error("fiber listen", zap.Error(err))
		return err
	case sig := <-sigCh:
		logger.Info("shutting down", zap.String("signal", sig.String()))
	case <-ctx.Done():
	}

	if err := server.ShutdownWithTimeout(10 * time.Second); err != nil {
		logger.Warn("shutdown", zap.Error(err))
	}
	return nil
}
