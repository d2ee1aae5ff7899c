package auth

import (
	"context"
	"time"

	"github.com/spec-kit/storefront-api/internal/domain"
)

type identityCtxKey struct{}

// Identity is the authenticated caller extracted from a valid token.
type Identity struct {
	SubjectID string
	Name      string
	Roles     []domain.Role
	TokenID   string
	ExpiresAt time.Time
}

// HasRole reports whether the identity carries any of roles.
func (i *Identity) HasRole(roles ...domain.Role) bool {
	if i == nil {
		return false
	}
	for _, have := range i.Roles {
		for _, want := range roles {
			if have == want {
				return true
			}
		}
	}
	return false
}

// WithIdentity returns a copy of ctx carrying id.
func WithIdentity(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, identityCtxKey{}, id)
}

// IdentityFromContext returns the identity stored by the pipeline, if any.
func IdentityFromContext(ctx context.Context) (*Identity, bool) {
	id, ok := ctx.Value(identityCtxKey{}).(*Identity)
	return id, ok && id != nil
}
