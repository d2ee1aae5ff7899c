package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/storefront-api/internal/domain"
)

// UserRepository defines persistence access for identity records.
type UserRepository interface {
	// CreateIfAbsent inserts user with its roles unless a user with the same
	// normalized username exists. Uniqueness is enforced by the store.
	CreateIfAbsent(ctx context.Context, user *domain.User) (domain.CreateResult, error)
	GetByID(ctx context.Context, id string) (*domain.User, error)
	GetByUsername(ctx context.Context, username string) (*domain.User, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	RolesOf(ctx context.Context, userID string) ([]domain.Role, error)
	UpdatePasswordHash(ctx context.Context, userID, hash string) error
}

type userRepository struct {
	pool DB
}

// NewUserRepository returns a Postgres-backed implementation. pool is
// usually a *pgxpool.Pool.
func NewUserRepository(pool DB) UserRepository {
	return &userRepository{pool: pool}
}

func (r *userRepository) CreateIfAbsent(ctx context.Context, user *domain.User) (domain.CreateResult, error) {
	const insertUser = `
        INSERT INTO users (id, username, normalized_username, email, normalized_email, password_hash)
        VALUES ($1, $2, $3, $4, $5, $6)
        ON CONFLICT (normalized_username) DO NOTHING
        RETURNING created_at, updated_at`
	const insertRole = `
        INSERT INTO roles (name) VALUES ($1)
        ON CONFLICT (name) DO NOTHING`
	const insertUserRole = `
        INSERT INTO user_roles (user_id, role_name) VALUES ($1, $2)
        ON CONFLICT DO NOTHING`

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	err = tx.QueryRow(ctx, insertUser,
		user.ID,
		user.Username,
		user.NormalizedUsername(),
		user.Email,
		normalizeEmail(user.Email),
		user.PasswordHash,
	).Scan(&user.CreatedAt, &user.UpdatedAt)
	switch {
	case errors.Is(err, pgx.ErrNoRows), isUniqueViolation(err):
		return domain.AlreadyExists, nil
	case err != nil:
		return 0, fmt.Errorf("insert user: %w", err)
	}

	for _, role := range user.Roles {
		if _, err := tx.Exec(ctx, insertRole, string(role)); err != nil {
			return 0, fmt.Errorf("insert role %s: %w", role, err)
		}
		if _, err := tx.Exec(ctx, insertUserRole, user.ID, string(role)); err != nil {
			return 0, fmt.Errorf("assign role %s: %w", role, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		if isUniqueViolation(err) {
			return domain.AlreadyExists, nil
		}
		return 0, fmt.Errorf("commit: %w", err)
	}
	return domain.Created, nil
}

const selectUser = `
        SELECT u.id, u.username, u.email, u.password_hash, u.created_at, u.updated_at,
               COALESCE(array_agg(ur.role_name ORDER BY ur.role_name) FILTER (WHERE ur.role_name IS NOT NULL), '{}')
        FROM users u
        LEFT JOIN user_roles ur ON ur.user_id = u.id`

func (r *userRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	return r.getOne(ctx, selectUser+` WHERE u.id=$1 GROUP BY u.id`, id)
}

func (r *userRepository) GetByUsername(ctx context.Context, username string) (*domain.User, error) {
	return r.getOne(ctx, selectUser+` WHERE u.normalized_username=$1 GROUP BY u.id`, domain.NormalizeUsername(username))
}

func (r *userRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	return r.getOne(ctx, selectUser+` WHERE u.normalized_email=$1 GROUP BY u.id LIMIT 1`, normalizeEmail(email))
}

func (r *userRepository) getOne(ctx context.Context, query string, arg string) (*domain.User, error) {
	var (
		user  domain.User
		roles []string
	)
	if err := r.pool.QueryRow(ctx, query, arg).Scan(
		&user.ID,
		&user.Username,
		&user.Email,
		&user.PasswordHash,
		&user.CreatedAt,
		&user.UpdatedAt,
		&roles,
	); err != nil {
		return nil, mapNoRows(err)
	}
	user.Roles = toRoles(roles)
	return &user, nil
}

func (r *userRepository) RolesOf(ctx context.Context, userID string) ([]domain.Role, error) {
	const query = `
        SELECT role_name FROM user_roles
        WHERE user_id=$1
        ORDER BY role_name`

	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	names, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, err
	}
	return toRoles(names), nil
}

func (r *userRepository) UpdatePasswordHash(ctx context.Context, userID, hash string) error {
	const query = `
        UPDATE users SET password_hash=$1, updated_at=NOW()
        WHERE id=$2`

	cmd, err := r.pool.Exec(ctx, query, hash, userID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func toRoles(names []string) []domain.Role {
	roles := make([]domain.Role, 0, len(names))
	for _, n := range names {
		roles = append(roles, domain.Role(n))
	}
	return roles
}

func normalizeEmail(email string) string {
	return strings.ToUpper(strings.TrimSpace(email))
}
