package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/spec-kit/storefront-api/internal/auth"
	"github.com/spec-kit/storefront-api/internal/config"
	"github.com/spec-kit/storefront-api/internal/events"
	"github.com/spec-kit/storefront-api/internal/persistence"
	"github.com/spec-kit/storefront-api/internal/repository"
)

func testConfig() config.Config {
	return config.Config{
		Auth: config.AuthConfig{
			Key:              "0123456789abcdef0123456789abcdef",
			Issuer:           "storefront-api",
			Audience:         "storefront-web",
			TokenLifetime:    time.Hour,
			PasswordResetTTL: 30 * time.Minute,
			BcryptCost:       bcrypt.MinCost,
		},
		Password: config.DefaultPasswordPolicy(),
		Lockout: config.LockoutConfig{
			Enabled:                 true,
			MaxFailedAccessAttempts: 3,
			Duration:                5 * time.Minute,
		},
		Seed: config.SeedConfig{
			Username: "superadmin",
			Email:    "admin@example.com",
			Password: "initial123",
		},
		Notification: config.NotificationConfig{EmailFrom: "noreply@example.com"},
	}
}

// captureMailer records sent messages.
type captureMailer struct {
	mu   sync.Mutex
	sent []MailMessage
}

func (m *captureMailer) Send(_ context.Context, msg MailMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, msg)
	return nil
}

func (m *captureMailer) messages() []MailMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]MailMessage(nil), m.sent...)
}

type testEnv struct {
	cfg    config.Config
	users  *repository.MemoryUserRepository
	resets *repository.MemoryPasswordResetRepository
	store  *IdentityStoreAdapter
	tokens *auth.TokenService
	mailer *captureMailer
	auth   *AuthService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	cfg := testConfig()

	tokens, err := auth.NewTokenService(cfg.Auth)
	require.NoError(t, err)

	users := repository.NewMemoryUserRepository()
	resets := repository.NewMemoryPasswordResetRepository(users)
	store := NewIdentityStore(users, cfg.Auth.BcryptCost)
	dispatcher := events.NewInMemoryDispatcher()
	mailer := &captureMailer{}
	NewNotificationService(dispatcher, mailer, zap.NewNop(), cfg.Notification).RegisterHandlers()

	return &testEnv{
		cfg:    cfg,
		users:  users,
		resets: resets,
		store:  store,
		tokens: tokens,
		mailer: mailer,
		auth: NewAuthService(cfg, AuthDependencies{
			Store:             store,
			UserRepo:          users,
			PasswordResetRepo: resets,
			Tokens:            tokens,
			Limiter:           persistence.NewMemoryLockout(),
			Dispatcher:        dispatcher,
		}),
	}
}
