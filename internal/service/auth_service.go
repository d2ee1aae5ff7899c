package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/storefront-api/internal/auth"
	"github.com/spec-kit/storefront-api/internal/config"
	"github.com/spec-kit/storefront-api/internal/domain"
	"github.com/spec-kit/storefront-api/internal/events"
	"github.com/spec-kit/storefront-api/internal/repository"
	apperrors "github.com/spec-kit/storefront-api/pkg/util"
)

// LoginLimiter tracks failed logins per username.
type LoginLimiter interface {
	Failures(ctx context.Context, key string) (int64, error)
	RecordFailure(ctx context.Context, key string, window time.Duration) (int64, error)
	ResetFailures(ctx context.Context, key string) error
}

// AuthService coordinates registration, login and credential changes.
type AuthService struct {
	store      IdentityStore
	users      repository.UserRepository
	resets     repository.PasswordResetRepository
	tokens     *auth.TokenService
	limiter    LoginLimiter
	dispatcher events.Dispatcher
	logger     *zap.Logger
	policy     config.PasswordPolicy
	lockout    config.LockoutConfig
	bcryptCost int
	resetTTL   time.Duration
	now        func() time.Time

	decoyOnce sync.Once
	decoy     *domain.User
}

// AuthDependencies encapsulates collaborators for the auth service. Limiter
// and Dispatcher are optional.
type AuthDependencies struct {
	Store             IdentityStore
	UserRepo          repository.UserRepository
	PasswordResetRepo repository.PasswordResetRepository
	Tokens            *auth.TokenService
	Limiter           LoginLimiter
	Dispatcher        events.Dispatcher
	Logger            *zap.Logger
}

// NewAuthService builds the service.
func NewAuthService(cfg config.Config, deps AuthDependencies) *AuthService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuthService{
		store:      deps.Store,
		users:      deps.UserRepo,
		resets:     deps.PasswordResetRepo,
		tokens:     deps.Tokens,
		limiter:    deps.Limiter,
		dispatcher: deps.Dispatcher,
		logger:     logger,
		policy:     cfg.Password,
		lockout:    cfg.Lockout,
		bcryptCost: cfg.Auth.BcryptCost,
		resetTTL:   cfg.Auth.PasswordResetTTL,
		now:        time.Now,
	}
}

// Register creates a customer account and signs it in.
func (s *AuthService) Register(ctx context.Context, username, email, password string) (*domain.User, domain.Token, error) {
	if err := auth.CheckPassword(s.policy, password); err != nil {
		return nil, domain.Token{}, apperrors.NewValidationError(err.Error(), nil)
	}
	if email != "" {
		if _, err := s.users.GetByEmail(ctx, email); err == nil {
			return nil, domain.Token{}, apperrors.NewConflict("email already registered", nil)
		} else if !errors.Is(err, repository.ErrNotFound) {
			return nil, domain.Token{}, err
		}
	}

	roles := []domain.Role{domain.RoleCustomer}
	user, res, err := s.store.CreateIfAbsent(ctx, NewIdentity{Username: username, Email: email, Password: password}, roles)
	if err != nil {
		return nil, domain.Token{}, err
	}
	if res == domain.AlreadyExists {
		return nil, domain.Token{}, apperrors.NewConflict("username already taken", nil)
	}

	s.publish(ctx, events.New(events.EventIdentityCreated, user.ID, events.IdentityCreatedPayload{
		Username: user.Username,
		Email:    user.Email,
		Roles:    []string{string(domain.RoleCustomer)},
	}))

	token, err := s.tokens.Issue(user, roles, s.now())
	if err != nil {
		return nil, domain.Token{}, err
	}
	return user, token, nil
}

// Login authenticates by username and password. Unknown users and wrong
// passwords produce the same error.
func (s *AuthService) Login(ctx context.Context, username, password string) (*domain.User, domain.Token, error) {
	key := domain.NormalizeUsername(username)
	if s.lockedOut(ctx, key) {
		return nil, domain.Token{}, apperrors.NewTooManyRequests("account temporarily locked")
	}

	user, err := s.store.FindByUsername(ctx, username)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return nil, domain.Token{}, err
	}
	if user == nil {
		// Unknown usernames still pay for one bcrypt comparison.
		s.store.VerifyPassword(s.decoyUser(), password)
		s.recordFailure(ctx, key)
		return nil, domain.Token{}, apperrors.NewUnauthorized("invalid credentials")
	}
	if !s.store.VerifyPassword(user, password) {
		s.recordFailure(ctx, key)
		return nil, domain.Token{}, apperrors.NewUnauthorized("invalid credentials")
	}
	s.resetFailures(ctx, key)

	roles, err := s.store.RolesOf(ctx, user)
	if err != nil {
		return nil, domain.Token{}, err
	}
	user.Roles = roles

	token, err := s.tokens.Issue(user, roles, s.now())
	if err != nil {
		return nil, domain.Token{}, err
	}
	return user, token, nil
}

// Me loads the user behind an authenticated identity.
func (s *AuthService) Me(ctx context.Context, identity *auth.Identity) (*domain.User, error) {
	if identity == nil {
		return nil, apperrors.NewUnauthorized("authentication required")
	}
	user, err := s.users.GetByID(ctx, identity.SubjectID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperrors.NewNotFound("user", nil)
	}
	return user, err
}

// FindUser returns the account registered under username.
func (s *AuthService) FindUser(ctx context.Context, username string) (*domain.User, error) {
	user, err := s.store.FindByUsername(ctx, username)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperrors.NewNotFound("user", nil)
	}
	return user, err
}

// ChangePassword verifies the current password before storing the new hash.
func (s *AuthService) ChangePassword(ctx context.Context, userID, currentPassword, newPassword string) error {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return apperrors.NewNotFound("user", nil)
		}
		return err
	}
	if !s.store.VerifyPassword(user, currentPassword) {
		return apperrors.NewUnauthorized("invalid credentials")
	}
	if err := s.setPassword(ctx, user.ID, newPassword); err != nil {
		return err
	}

	s.publish(ctx, events.New(events.EventPasswordChanged, user.ID, events.PasswordChangedPayload{
		Email:  user.Email,
		Reason: "changed",
	}))
	return nil
}

// RequestPasswordReset stores a single-use reset grant and hands the token
// to the mail collaborator. Unknown emails succeed silently.
func (s *AuthService) RequestPasswordReset(ctx context.Context, email string) error {
	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil
		}
		return err
	}

	raw := uuid.NewString()
	token := &domain.PasswordResetToken{
		ID:        uuid.NewString(),
		UserID:    user.ID,
		TokenHash: hashResetToken(raw),
		ExpiresAt: s.now().Add(s.resetTTL),
	}
	if err := s.resets.Create(ctx, token); err != nil {
		return fmt.Errorf("store reset token: %w", err)
	}

	s.publish(ctx, events.New(events.EventPasswordResetRequested, user.ID, events.PasswordResetRequestedPayload{
		Email:     user.Email,
		Token:     raw,
		ExpiresAt: token.ExpiresAt,
	}))
	return nil
}

// ConfirmPasswordReset consumes a reset token and sets the new password.
func (s *AuthService) ConfirmPasswordReset(ctx context.Context, rawToken, newPassword string) error {
	token, err := s.resets.GetByTokenHash(ctx, hashResetToken(rawToken))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return apperrors.NewValidationError("token expired or used", nil)
		}
		return err
	}
	if token.UsedAt != nil || !s.now().Before(token.ExpiresAt) {
		return apperrors.NewValidationError("token expired or used", nil)
	}
	if err := auth.CheckPassword(s.policy, newPassword); err != nil {
		return apperrors.NewValidationError(err.Error(), nil)
	}
	hash, err := auth.HashPassword(newPassword, s.bcryptCost)
	if err != nil {
		return err
	}
	if err := s.resets.Redeem(ctx, token.ID, token.UserID, hash); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return apperrors.NewValidationError("token expired or used", nil)
		}
		return err
	}

	payload := events.PasswordChangedPayload{Reason: "reset"}
	if user, err := s.users.GetByID(ctx, token.UserID); err == nil {
		payload.Email = user.Email
	}
	s.publish(ctx, events.New(events.EventPasswordChanged, token.UserID, payload))
	return nil
}

func (s *AuthService) setPassword(ctx context.Context, userID, password string) error {
	if err := auth.CheckPassword(s.policy, password); err != nil {
		return apperrors.NewValidationError(err.Error(), nil)
	}
	hash, err := auth.HashPassword(password, s.bcryptCost)
	if err != nil {
		return err
	}
	return s.users.UpdatePasswordHash(ctx, userID, hash)
}

// decoyUser returns a user whose hash matches no password. It is hashed at
// the configured cost so comparisons against it take as long as real ones.
func (s *AuthService) decoyUser() *domain.User {
	s.decoyOnce.Do(func() {
		hash, err := auth.HashPassword(uuid.NewString(), s.bcryptCost)
		if err != nil {
			s.logger.Warn("decoy hash failed", zap.Error(err))
		}
		s.decoy = &domain.User{PasswordHash: hash}
	})
	return s.decoy
}

func (s *AuthService) lockedOut(ctx context.Context, key string) bool {
	if s.limiter == nil || !s.lockout.Enabled {
		return false
	}
	n, err := s.limiter.Failures(ctx, key)
	if err != nil {
		s.logger.Warn("lockout lookup failed", zap.Error(err))
		return false
	}
	return n >= int64(s.lockout.MaxFailedAccessAttempts)
}

func (s *AuthService) recordFailure(ctx context.Context, key string) {
	if s.limiter == nil || !s.lockout.Enabled {
		return
	}
	n, err := s.limiter.RecordFailure(ctx, key, s.lockout.Duration)
	if err != nil {
		s.logger.Warn("lockout record failed", zap.Error(err))
		return
	}
	if n == int64(s.lockout.MaxFailedAccessAttempts) {
		s.logger.Warn("account locked out", zap.Duration("duration", s.lockout.Duration))
	}
}

func (s *AuthService) resetFailures(ctx context.Context, key string) {
	if s.limiter == nil || !s.lockout.Enabled {
		return
	}
	if err := s.limiter.ResetFailures(ctx, key); err != nil {
		s.logger.Warn("lockout reset failed", zap.Error(err))
	}
}

func (s *AuthService) publish(ctx context.Context, event events.Event) {
	if s.dispatcher == nil {
		return
	}
	if err := s.dispatcher.Publish(ctx, event); err != nil {
		s.logger.Warn("event handlers failed", zap.String("event", string(event.Type)), zap.Error(err))
	}
}

func hashResetToken(raw string) string {
	sum := sha256.Sum256([]byte(strings.TrimSpace(raw)))
	return hex.EncodeToString(sum[:])
}
