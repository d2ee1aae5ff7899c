package repository

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/storefront-api/internal/domain"
)

func newUser(username string) *domain.User {
	return &domain.User{
		ID:           uuid.NewString(),
		Username:     username,
		Email:        username + "@example.com",
		PasswordHash: "hash",
		Roles:        []domain.Role{domain.RoleCustomer},
	}
}

func TestMemoryUserRepository_CreateIfAbsent(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryUserRepository()

	res, err := repo.CreateIfAbsent(ctx, newUser("bob"))
	require.NoError(t, err)
	assert.Equal(t, domain.Created, res)

	res, err = repo.CreateIfAbsent(ctx, newUser("BOB "))
	require.NoError(t, err)
	assert.Equal(t, domain.AlreadyExists, res, "usernames are unique case-insensitively")
	assert.Equal(t, 1, repo.Count())
}

func TestMemoryUserRepository_Lookups(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryUserRepository()
	user := newUser("carol")
	user.Roles = []domain.Role{domain.RoleCustomer, domain.RoleAdmin}
	_, err := repo.CreateIfAbsent(ctx, user)
	require.NoError(t, err)

	got, err := repo.GetByUsername(ctx, "Carol")
	require.NoError(t, err)
	assert.Equal(t, user.ID, got.ID)

	got, err = repo.GetByEmail(ctx, "CAROL@example.com")
	require.NoError(t, err)
	assert.Equal(t, user.ID, got.ID)

	roles, err := repo.RolesOf(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, []domain.Role{domain.RoleAdmin, domain.RoleCustomer}, roles)

	_, err = repo.GetByUsername(ctx, "nobody")
	assert.ErrorIs(t, err, ErrNotFound)

	// callers receive copies
	got.PasswordHash = "mutated"
	again, err := repo.GetByID(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, "hash", again.PasswordHash)
}

func TestMemoryUserRepository_UpdatePasswordHash(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryUserRepository()
	user := newUser("dave")
	_, err := repo.CreateIfAbsent(ctx, user)
	require.NoError(t, err)

	require.NoError(t, repo.UpdatePasswordHash(ctx, user.ID, "new-hash"))
	got, err := repo.GetByID(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, "new-hash", got.PasswordHash)

	assert.ErrorIs(t, repo.UpdatePasswordHash(ctx, "missing", "x"), ErrNotFound)
}

func TestMemoryUserRepository_ConcurrentCreate(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryUserRepository()

	const n = 50
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		results = map[domain.CreateResult]int{}
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := repo.CreateIfAbsent(ctx, newUser("root"))
			assert.NoError(t, err)
			mu.Lock()
			results[res]++
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, results[domain.Created])
	assert.Equal(t, n-1, results[domain.AlreadyExists])
	assert.Equal(t, 1, repo.Count())
}

func TestMemoryPasswordResetRepository_SingleUse(t *testing.T) {
	ctx := context.Background()
	users := NewMemoryUserRepository()
	user := newUser("carol")
	_, err := users.CreateIfAbsent(ctx, user)
	require.NoError(t, err)

	repo := NewMemoryPasswordResetRepository(users)
	token := &domain.PasswordResetToken{ID: uuid.NewString(), UserID: user.ID, TokenHash: "h1"}
	require.NoError(t, repo.Create(ctx, token))

	got, err := repo.GetByTokenHash(ctx, "h1")
	require.NoError(t, err)
	assert.Equal(t, token.ID, got.ID)

	require.NoError(t, repo.Redeem(ctx, token.ID, user.ID, "new-hash"))
	assert.ErrorIs(t, repo.Redeem(ctx, token.ID, user.ID, "other-hash"), ErrNotFound)

	stored, err := users.GetByID(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, "new-hash", stored.PasswordHash)

	_, err = repo.GetByTokenHash(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryPasswordResetRepository_FailedWriteKeepsToken(t *testing.T) {
	ctx := context.Background()
	users := NewMemoryUserRepository()
	repo := NewMemoryPasswordResetRepository(users)

	user := newUser("dave")
	token := &domain.PasswordResetToken{ID: uuid.NewString(), UserID: user.ID, TokenHash: "h2"}
	require.NoError(t, repo.Create(ctx, token))

	// The user row does not exist yet, so the hash write fails.
	assert.ErrorIs(t, repo.Redeem(ctx, token.ID, user.ID, "new-hash"), ErrNotFound)
	got, err := repo.GetByTokenHash(ctx, "h2")
	require.NoError(t, err)
	assert.Nil(t, got.UsedAt, "token stays redeemable")

	_, err = users.CreateIfAbsent(ctx, user)
	require.NoError(t, err)
	require.NoError(t, repo.Redeem(ctx, token.ID, user.ID, "new-hash"))
}
