package repository

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/spec-kit/storefront-api/internal/domain"
)

// MemoryUserRepository keeps identity records in process memory. The
// normalized-username index plays the role of the UNIQUE constraint.
type MemoryUserRepository struct {
	mu         sync.RWMutex
	byID       map[string]*domain.User
	byUsername map[string]string
}

// NewMemoryUserRepository returns an empty in-memory repository.
func NewMemoryUserRepository() *MemoryUserRepository {
	return &MemoryUserRepository{
		byID:       make(map[string]*domain.User),
		byUsername: make(map[string]string),
	}
}

func (r *MemoryUserRepository) CreateIfAbsent(ctx context.Context, user *domain.User) (domain.CreateResult, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	key := user.NormalizedUsername()
	if _, exists := r.byUsername[key]; exists {
		return domain.AlreadyExists, nil
	}
	if _, exists := r.byID[user.ID]; exists {
		return domain.AlreadyExists, nil
	}

	now := time.Now().UTC()
	user.CreatedAt, user.UpdatedAt = now, now
	r.byID[user.ID] = cloneUser(user)
	r.byUsername[key] = user.ID
	return domain.Created, nil
}

func (r *MemoryUserRepository) GetByID(_ context.Context, id string) (*domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	user, ok := r.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneUser(user), nil
}

func (r *MemoryUserRepository) GetByUsername(ctx context.Context, username string) (*domain.User, error) {
	r.mu.RLock()
	id, ok := r.byUsername[domain.NormalizeUsername(username)]
	r.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	return r.GetByID(ctx, id)
}

func (r *MemoryUserRepository) GetByEmail(_ context.Context, email string) (*domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	want := normalizeEmail(email)
	for _, user := range r.byID {
		if want != "" && normalizeEmail(user.Email) == want {
			return cloneUser(user), nil
		}
	}
	return nil, ErrNotFound
}

func (r *MemoryUserRepository) RolesOf(_ context.Context, userID string) ([]domain.Role, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	user, ok := r.byID[userID]
	if !ok {
		return []domain.Role{}, nil
	}
	roles := slices.Clone(user.Roles)
	slices.Sort(roles)
	return roles, nil
}

func (r *MemoryUserRepository) UpdatePasswordHash(_ context.Context, userID, hash string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	user, ok := r.byID[userID]
	if !ok {
		return ErrNotFound
	}
	user.PasswordHash = hash
	user.UpdatedAt = time.Now().UTC()
	return nil
}

// Count reports how many users are stored.
func (r *MemoryUserRepository) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byID)
}

func cloneUser(u *domain.User) *domain.User {
	cp := *u
	cp.Roles = slices.Clone(u.Roles)
	return &cp
}
