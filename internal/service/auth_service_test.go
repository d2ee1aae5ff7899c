package service

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/spec-kit/storefront-api/internal/auth"
	"github.com/spec-kit/storefront-api/internal/domain"
	"github.com/spec-kit/storefront-api/internal/repository"
	apperrors "github.com/spec-kit/storefront-api/pkg/util"
)

func requireStatus(t *testing.T, err error, status int) {
	t.Helper()
	require.Error(t, err)
	var domainErr *apperrors.DomainError
	require.True(t, errors.As(err, &domainErr), "expected DomainError, got %T", err)
	assert.Equal(t, status, domainErr.HTTPStatus)
}

func resetCodeFrom(t *testing.T, msg MailMessage) string {
	t.Helper()
	const marker = "reset your password: "
	i := strings.Index(msg.Body, marker)
	require.GreaterOrEqual(t, i, 0, "reset code missing from mail body")
	rest := msg.Body[i+len(marker):]
	if nl := strings.IndexByte(rest, '\n'); nl >= 0 {
		rest = rest[:nl]
	}
	return rest
}

// countingStore counts password comparisons.
type countingStore struct {
	IdentityStore
	mu       sync.Mutex
	verified []*domain.User
}

func (s *countingStore) VerifyPassword(user *domain.User, plaintext string) bool {
	s.mu.Lock()
	s.verified = append(s.verified, user)
	s.mu.Unlock()
	return s.IdentityStore.VerifyPassword(user, plaintext)
}

// flakyResets fails the next Redeem call.
type flakyResets struct {
	repository.PasswordResetRepository
	fail error
}

func (r *flakyResets) Redeem(ctx context.Context, id, userID, passwordHash string) error {
	if err := r.fail; err != nil {
		r.fail = nil
		return err
	}
	return r.PasswordResetRepository.Redeem(ctx, id, userID, passwordHash)
}

func TestAuthService_RegisterIssuesToken(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	user, token, err := env.auth.Register(ctx, "alice", "alice@example.com", "secret1")
	require.NoError(t, err)
	assert.Equal(t, "alice", user.Username)

	id, err := env.tokens.Validate(token.Value, time.Now())
	require.NoError(t, err)
	assert.Equal(t, user.ID, id.SubjectID)
	assert.Equal(t, "alice", id.Name)
	assert.Equal(t, []domain.Role{domain.RoleCustomer}, id.Roles)

	msgs := env.mailer.messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "alice@example.com", msgs[0].To)
	assert.Equal(t, "Welcome", msgs[0].Subject)
}

func TestAuthService_RegisterConflicts(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	_, _, err := env.auth.Register(ctx, "alice", "alice@example.com", "secret1")
	require.NoError(t, err)

	_, _, err = env.auth.Register(ctx, "ALICE", "other@example.com", "secret1")
	requireStatus(t, err, http.StatusConflict)

	_, _, err = env.auth.Register(ctx, "bob", "Alice@Example.com", "secret1")
	requireStatus(t, err, http.StatusConflict)

	assert.Equal(t, 1, env.users.Count())
}

func TestAuthService_RegisterRejectsWeakPassword(t *testing.T) {
	env := newTestEnv(t)

	_, _, err := env.auth.Register(context.Background(), "alice", "alice@example.com", "abc")
	requireStatus(t, err, http.StatusBadRequest)
	assert.Zero(t, env.users.Count())
}

func TestAuthService_Login(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	registered, _, err := env.auth.Register(ctx, "alice", "alice@example.com", "secret1")
	require.NoError(t, err)

	user, token, err := env.auth.Login(ctx, "Alice", "secret1")
	require.NoError(t, err)
	assert.Equal(t, registered.ID, user.ID)
	assert.Equal(t, []domain.Role{domain.RoleCustomer}, user.Roles)
	assert.NotEmpty(t, token.Value)

	_, _, err = env.auth.Login(ctx, "alice", "wrong1")
	requireStatus(t, err, http.StatusUnauthorized)

	_, _, err = env.auth.Login(ctx, "nobody", "secret1")
	requireStatus(t, err, http.StatusUnauthorized)
	assert.Equal(t, "invalid credentials", apperrors.ToDomainError(err).Message)
}

func TestAuthService_LoginUnknownUserComparesDecoyHash(t *testing.T) {
	env := newTestEnv(t)
	counter := &countingStore{IdentityStore: env.store}
	env.auth.store = counter

	_, _, err := env.auth.Login(context.Background(), "nobody", "secret1")
	requireStatus(t, err, http.StatusUnauthorized)
	_, _, err = env.auth.Login(context.Background(), "ghost", "secret1")
	requireStatus(t, err, http.StatusUnauthorized)

	require.Len(t, counter.verified, 2)
	decoy := counter.verified[0]
	assert.Same(t, decoy, counter.verified[1], "decoy is hashed once")
	cost, err := bcrypt.Cost([]byte(decoy.PasswordHash))
	require.NoError(t, err)
	assert.Equal(t, env.cfg.Auth.BcryptCost, cost)
}

func TestAuthService_LoginLockout(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	_, _, err := env.auth.Register(ctx, "alice", "alice@example.com", "secret1")
	require.NoError(t, err)

	for i := 0; i < env.cfg.Lockout.MaxFailedAccessAttempts; i++ {
		_, _, err = env.auth.Login(ctx, "alice", "wrong1")
		requireStatus(t, err, http.StatusUnauthorized)
	}

	_, _, err = env.auth.Login(ctx, "alice", "secret1")
	requireStatus(t, err, http.StatusTooManyRequests)

	_, _, err = env.auth.Login(ctx, "ALICE", "secret1")
	requireStatus(t, err, http.StatusTooManyRequests)
}

func TestAuthService_SuccessfulLoginClearsFailures(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	_, _, err := env.auth.Register(ctx, "alice", "alice@example.com", "secret1")
	require.NoError(t, err)

	for round := 0; round < 3; round++ {
		for i := 0; i < env.cfg.Lockout.MaxFailedAccessAttempts-1; i++ {
			_, _, err = env.auth.Login(ctx, "alice", "wrong1")
			requireStatus(t, err, http.StatusUnauthorized)
		}
		_, _, err = env.auth.Login(ctx, "alice", "secret1")
		require.NoError(t, err)
	}
}

func TestAuthService_Me(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user, token, err := env.auth.Register(ctx, "alice", "alice@example.com", "secret1")
	require.NoError(t, err)

	id, err := env.tokens.Validate(token.Value, time.Now())
	require.NoError(t, err)

	me, err := env.auth.Me(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, user.ID, me.ID)

	_, err = env.auth.Me(ctx, nil)
	requireStatus(t, err, http.StatusUnauthorized)

	_, err = env.auth.Me(ctx, &auth.Identity{SubjectID: "missing"})
	requireStatus(t, err, http.StatusNotFound)
}

func TestAuthService_ChangePassword(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user, _, err := env.auth.Register(ctx, "alice", "alice@example.com", "secret1")
	require.NoError(t, err)

	err = env.auth.ChangePassword(ctx, user.ID, "wrong1", "newpass2")
	requireStatus(t, err, http.StatusUnauthorized)

	err = env.auth.ChangePassword(ctx, user.ID, "secret1", "weak")
	requireStatus(t, err, http.StatusBadRequest)

	require.NoError(t, env.auth.ChangePassword(ctx, user.ID, "secret1", "newpass2"))

	_, _, err = env.auth.Login(ctx, "alice", "secret1")
	requireStatus(t, err, http.StatusUnauthorized)
	_, _, err = env.auth.Login(ctx, "alice", "newpass2")
	require.NoError(t, err)

	msgs := env.mailer.messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, "Your password was changed", msgs[1].Subject)
}

func TestAuthService_PasswordResetFlow(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	_, _, err := env.auth.Register(ctx, "alice", "alice@example.com", "secret1")
	require.NoError(t, err)

	require.NoError(t, env.auth.RequestPasswordReset(ctx, "alice@example.com"))
	msgs := env.mailer.messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, "Password reset", msgs[1].Subject)
	code := resetCodeFrom(t, msgs[1])

	err = env.auth.ConfirmPasswordReset(ctx, code, "weak")
	requireStatus(t, err, http.StatusBadRequest)

	require.NoError(t, env.auth.ConfirmPasswordReset(ctx, code, "fresh123"))
	_, _, err = env.auth.Login(ctx, "alice", "fresh123")
	require.NoError(t, err)

	err = env.auth.ConfirmPasswordReset(ctx, code, "again123")
	requireStatus(t, err, http.StatusBadRequest)
}

func TestAuthService_PasswordResetSurvivesFailedWrite(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	_, _, err := env.auth.Register(ctx, "alice", "alice@example.com", "secret1")
	require.NoError(t, err)
	env.auth.resets = &flakyResets{PasswordResetRepository: env.resets, fail: errors.New("connection reset")}

	require.NoError(t, env.auth.RequestPasswordReset(ctx, "alice@example.com"))
	code := resetCodeFrom(t, env.mailer.messages()[1])

	err = env.auth.ConfirmPasswordReset(ctx, code, "fresh123")
	require.Error(t, err)
	_, _, err = env.auth.Login(ctx, "alice", "secret1")
	require.NoError(t, err, "old password still valid")

	require.NoError(t, env.auth.ConfirmPasswordReset(ctx, code, "fresh123"))
	_, _, err = env.auth.Login(ctx, "alice", "fresh123")
	require.NoError(t, err)
}

func TestAuthService_PasswordResetExpires(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	_, _, err := env.auth.Register(ctx, "alice", "alice@example.com", "secret1")
	require.NoError(t, err)

	issued := time.Now()
	env.auth.now = func() time.Time { return issued }
	require.NoError(t, env.auth.RequestPasswordReset(ctx, "alice@example.com"))
	code := resetCodeFrom(t, env.mailer.messages()[1])

	env.auth.now = func() time.Time { return issued.Add(env.cfg.Auth.PasswordResetTTL) }
	err = env.auth.ConfirmPasswordReset(ctx, code, "fresh123")
	requireStatus(t, err, http.StatusBadRequest)
}

func TestAuthService_PasswordResetUnknownEmail(t *testing.T) {
	env := newTestEnv(t)

	require.NoError(t, env.auth.RequestPasswordReset(context.Background(), "ghost@example.com"))
	assert.Empty(t, env.mailer.messages())

	err := env.auth.ConfirmPasswordReset(context.Background(), "not-a-code", "fresh123")
	requireStatus(t, err, http.StatusBadRequest)
}

func TestAuthService_SeededAdminCanLogin(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	_, err := NewSeedService(env.cfg, SeedDependencies{Store: env.store}).Seed(ctx)
	require.NoError(t, err)

	user, token, err := env.auth.Login(ctx, "superadmin", "initial123")
	require.NoError(t, err)
	assert.True(t, user.HasRole(domain.RoleSuperAdmin))

	id, err := env.tokens.Validate(token.Value, time.Now())
	require.NoError(t, err)
	assert.True(t, id.HasRole(domain.RoleSuperAdmin))
}
