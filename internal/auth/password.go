package auth

import (
	"errors"
	"fmt"
	"strings"
	"unicode"

	"golang.org/x/crypto/bcrypt"

	"github.com/spec-kit/storefront-api/internal/config"
)

// ErrPasswordPolicy wraps every password policy violation.
var ErrPasswordPolicy = errors.New("password does not satisfy policy")

// HashPassword hashes a plaintext password with configured cost.
func HashPassword(password string, cost int) (string, error) {
	if cost < bcrypt.MinCost {
		cost = bcrypt.DefaultCost
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", err
	}
	return string(hashed), nil
}

// ComparePassword verifies a password against its hashed value.
func ComparePassword(hashed, plain string) error {
	return bcrypt.CompareHashAndPassword([]byte(hashed), []byte(plain))
}

// CheckPassword validates password against policy and returns every failed
// rule in one error.
func CheckPassword(policy config.PasswordPolicy, password string) error {
	var problems []string

	if len([]rune(password)) < policy.RequiredLength {
		problems = append(problems, fmt.Sprintf("must be at least %d characters", policy.RequiredLength))
	}

	var hasDigit, hasLower, hasUpper, hasSymbol bool
	unique := make(map[rune]struct{})
	for _, r := range password {
		unique[r] = struct{}{}
		switch {
		case unicode.IsDigit(r):
			hasDigit = true
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsUpper(r):
			hasUpper = true
		case !unicode.IsLetter(r):
			hasSymbol = true
		}
	}

	if policy.RequireDigit && !hasDigit {
		problems = append(problems, "must contain a digit")
	}
	if policy.RequireLowercase && !hasLower {
		problems = append(problems, "must contain a lowercase letter")
	}
	if policy.RequireUppercase && !hasUpper {
		problems = append(problems, "must contain an uppercase letter")
	}
	if policy.RequireNonAlphanumeric && !hasSymbol {
		problems = append(problems, "must contain a non-alphanumeric character")
	}
	if len(unique) < policy.RequiredUniqueChars {
		problems = append(problems, fmt.Sprintf("must contain at least %d distinct characters", policy.RequiredUniqueChars))
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrPasswordPolicy, strings.Join(problems, "; "))
	}
	return nil
}
