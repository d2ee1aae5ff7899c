package repository

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/spec-kit/storefront-api/internal/domain"
)

// PasswordResetRepository manages password reset token persistence.
type PasswordResetRepository interface {
	Create(ctx context.Context, token *domain.PasswordResetToken) error
	GetByTokenHash(ctx context.Context, tokenHash string) (*domain.PasswordResetToken, error)
	// Redeem consumes the token and stores the user's new password hash as
	// one unit: either both happen or neither does. It returns ErrNotFound
	// when the token does not exist or was already used.
	Redeem(ctx context.Context, id, userID, passwordHash string) error
}

type passwordResetRepository struct {
	pool DB
}

// NewPasswordResetRepository constructs repository.
func NewPasswordResetRepository(pool DB) PasswordResetRepository {
	return &passwordResetRepository{pool: pool}
}

func (r *passwordResetRepository) Create(ctx context.Context, token *domain.PasswordResetToken) error {
	const query = `
        INSERT INTO password_reset_tokens (id, user_id, token_hash, expires_at)
        VALUES ($1,$2,$3,$4)
        RETURNING created_at`
	return r.pool.QueryRow(ctx, query,
		token.ID,
		token.UserID,
		token.TokenHash,
		token.ExpiresAt,
	).Scan(&token.CreatedAt)
}

func (r *passwordResetRepository) GetByTokenHash(ctx context.Context, tokenHash string) (*domain.PasswordResetToken, error) {
	const query = `
        SELECT id, user_id, token_hash, expires_at, used_at, created_at
        FROM password_reset_tokens WHERE token_hash=$1`
	var token domain.PasswordResetToken
	if err := r.pool.QueryRow(ctx, query, tokenHash).Scan(
		&token.ID,
		&token.UserID,
		&token.TokenHash,
		&token.ExpiresAt,
		&token.UsedAt,
		&token.CreatedAt,
	); err != nil {
		return nil, mapNoRows(err)
	}
	return &token, nil
}

func (r *passwordResetRepository) Redeem(ctx context.Context, id, userID, passwordHash string) error {
	const markUsed = `
        UPDATE password_reset_tokens SET used_at=NOW()
        WHERE id=$1 AND user_id=$2 AND used_at IS NULL`
	const setHash = `
        UPDATE users SET password_hash=$1, updated_at=NOW()
        WHERE id=$2`

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	cmd, err := tx.Exec(ctx, markUsed, id, userID)
	if err != nil {
		return fmt.Errorf("mark reset token used: %w", err)
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}

	cmd, err = tx.Exec(ctx, setHash, passwordHash, userID)
	if err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// MemoryPasswordResetRepository is the in-process counterpart used by tests
// and in-memory runs.
type MemoryPasswordResetRepository struct {
	mu     sync.Mutex
	tokens map[string]*domain.PasswordResetToken
	users  PasswordHashWriter
}

// NewMemoryPasswordResetRepository returns an empty repository that writes
// redeemed passwords through users.
func NewMemoryPasswordResetRepository(users PasswordHashWriter) *MemoryPasswordResetRepository {
	return &MemoryPasswordResetRepository{
		tokens: make(map[string]*domain.PasswordResetToken),
		users:  users,
	}
}

func (r *MemoryPasswordResetRepository) Create(_ context.Context, token *domain.PasswordResetToken) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	token.CreatedAt = time.Now().UTC()
	cp := *token
	r.tokens[token.ID] = &cp
	return nil
}

func (r *MemoryPasswordResetRepository) GetByTokenHash(_ context.Context, tokenHash string) (*domain.PasswordResetToken, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range r.tokens {
		if t.TokenHash == tokenHash {
			cp := *t
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

// Redeem holds the token lock while the hash is written, so the token is
// only marked used once the password change succeeded.
func (r *MemoryPasswordResetRepository) Redeem(ctx context.Context, id, userID, passwordHash string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tokens[id]
	if !ok || t.UsedAt != nil || t.UserID != userID {
		return ErrNotFound
	}
	if err := r.users.UpdatePasswordHash(ctx, userID, passwordHash); err != nil {
		return err
	}
	now := time.Now().UTC()
	t.UsedAt = &now
	return nil
}
