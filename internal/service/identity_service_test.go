package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/storefront-api/internal/domain"
	"github.com/spec-kit/storefront-api/internal/repository"
)

func TestIdentityStore_CreateIfAbsent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	user, res, err := env.store.CreateIfAbsent(ctx, NewIdentity{
		Username: "  carol ",
		Email:    "carol@example.com",
		Password: "secret1",
	}, []domain.Role{domain.RoleAdmin})
	require.NoError(t, err)
	assert.Equal(t, domain.Created, res)
	assert.Equal(t, "carol", user.Username)
	assert.NotEmpty(t, user.ID)
	assert.NotEqual(t, "secret1", user.PasswordHash)

	again, res, err := env.store.CreateIfAbsent(ctx, NewIdentity{Username: "CAROL", Password: "other12"}, nil)
	require.NoError(t, err)
	assert.Equal(t, domain.AlreadyExists, res)
	assert.Nil(t, again)

	stored, err := env.store.FindByUsername(ctx, "Carol")
	require.NoError(t, err)
	assert.Equal(t, user.ID, stored.ID)
	assert.True(t, env.store.VerifyPassword(stored, "secret1"))
	assert.False(t, env.store.VerifyPassword(stored, "other12"))

	roles, err := env.store.RolesOf(ctx, stored)
	require.NoError(t, err)
	assert.Equal(t, []domain.Role{domain.RoleAdmin}, roles)
}

func TestIdentityStore_FindByUsernameUnknown(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.store.FindByUsername(context.Background(), "nobody")
	assert.ErrorIs(t, err, repository.ErrNotFound)

	_, err = env.store.FindByUsername(context.Background(), "   ")
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestIdentityStore_RejectsBlankUsername(t *testing.T) {
	env := newTestEnv(t)

	_, _, err := env.store.CreateIfAbsent(context.Background(), NewIdentity{Username: " ", Password: "secret1"}, nil)
	assert.Error(t, err)
	assert.Zero(t, env.users.Count())
}

func TestIdentityStore_VerifyPasswordWithoutHash(t *testing.T) {
	env := newTestEnv(t)

	assert.False(t, env.store.VerifyPassword(nil, "secret1"))
	assert.False(t, env.store.VerifyPassword(&domain.User{Username: "x"}, ""))
}
