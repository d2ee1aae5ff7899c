package domain

import (
	"strings"
	"time"
)

// User is the identity record for customers and administrators.
type User struct {
	ID           string
	Username     string
	Email        string
	PasswordHash string
	Roles        []Role
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// NormalizedUsername is the value the store enforces uniqueness on.
func (u *User) NormalizedUsername() string {
	return NormalizeUsername(u.Username)
}

// NormalizeUsername folds a username for case-insensitive comparison.
func NormalizeUsername(username string) string {
	return strings.ToUpper(strings.TrimSpace(username))
}

// HasRole reports whether the user carries role.
func (u *User) HasRole(role Role) bool {
	for _, r := range u.Roles {
		if r == role {
			return true
		}
	}
	return false
}
