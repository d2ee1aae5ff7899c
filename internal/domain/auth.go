package domain

import "time"

// Role is a named authorization grouping.
type Role string

const (
	RoleSuperAdmin Role = "SuperAdmin"
	RoleAdmin      Role = "Admin"
	RoleCustomer   Role = "Customer"
)

// CreateResult reports the outcome of an idempotent create.
type CreateResult int

const (
	Created CreateResult = iota + 1
	AlreadyExists
)

func (r CreateResult) String() string {
	switch r {
	case Created:
		return "created"
	case AlreadyExists:
		return "already_exists"
	default:
		return "unknown"
	}
}

// Token is an issued bearer token and its metadata.
type Token struct {
	Value     string
	ID        string
	SubjectID string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// PasswordResetToken is a single-use credential reset grant. Only the hash
// of the token handed to the user is stored.
type PasswordResetToken struct {
	ID        string
	UserID    string
	TokenHash string
	ExpiresAt time.Time
	UsedAt    *time.Time
	CreatedAt time.Time
}
