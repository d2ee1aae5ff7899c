package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/spec-kit/storefront-api/internal/auth"
	"github.com/spec-kit/storefront-api/internal/domain"
	"github.com/spec-kit/storefront-api/internal/repository"
)

// IdentityStore is the capability set the seeder and account flows use.
// FindByUsername returns repository.ErrNotFound for unknown users.
type IdentityStore interface {
	FindByUsername(ctx context.Context, username string) (*domain.User, error)
	VerifyPassword(user *domain.User, plaintext string) bool
	RolesOf(ctx context.Context, user *domain.User) ([]domain.Role, error)
	CreateIfAbsent(ctx context.Context, identity NewIdentity, roles []domain.Role) (*domain.User, domain.CreateResult, error)
}

// NewIdentity is the input for creating an identity record. Password is
// plaintext and only ever hashed.
type NewIdentity struct {
	Username string
	Email    string
	Password string
}

// IdentityStoreAdapter implements IdentityStore over a UserRepository with
// bcrypt credentials.
type IdentityStoreAdapter struct {
	users      repository.UserRepository
	bcryptCost int
}

// NewIdentityStore builds the adapter.
func NewIdentityStore(users repository.UserRepository, bcryptCost int) *IdentityStoreAdapter {
	return &IdentityStoreAdapter{users: users, bcryptCost: bcryptCost}
}

// FindByUsername looks a user up by case-insensitive username.
func (s *IdentityStoreAdapter) FindByUsername(ctx context.Context, username string) (*domain.User, error) {
	if strings.TrimSpace(username) == "" {
		return nil, repository.ErrNotFound
	}
	return s.users.GetByUsername(ctx, username)
}

// VerifyPassword compares plaintext against the stored hash.
func (s *IdentityStoreAdapter) VerifyPassword(user *domain.User, plaintext string) bool {
	if user == nil || user.PasswordHash == "" {
		return false
	}
	return auth.ComparePassword(user.PasswordHash, plaintext) == nil
}

// RolesOf returns the roles assigned to user.
func (s *IdentityStoreAdapter) RolesOf(ctx context.Context, user *domain.User) ([]domain.Role, error) {
	if user == nil {
		return nil, errors.New("nil user")
	}
	return s.users.RolesOf(ctx, user.ID)
}

// CreateIfAbsent hashes the credential and inserts the user unless the
// username is taken. Concurrent callers racing on one username see exactly
// one Created; the store's uniqueness constraint decides the winner.
func (s *IdentityStoreAdapter) CreateIfAbsent(ctx context.Context, identity NewIdentity, roles []domain.Role) (*domain.User, domain.CreateResult, error) {
	username := strings.TrimSpace(identity.Username)
	if username == "" {
		return nil, 0, errors.New("username required")
	}

	hash, err := auth.HashPassword(identity.Password, s.bcryptCost)
	if err != nil {
		return nil, 0, fmt.Errorf("hash password: %w", err)
	}

	user := &domain.User{
		ID:           uuid.NewString(),
		Username:     username,
		Email:        strings.TrimSpace(identity.Email),
		PasswordHash: hash,
		Roles:        roles,
	}
	res, err := s.users.CreateIfAbsent(ctx, user)
	if err != nil {
		return nil, 0, err
	}
	if res == domain.AlreadyExists {
		return nil, res, nil
	}
	return user, res, nil
}
