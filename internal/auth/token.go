package auth

import (
	"errors"
	"slices"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/spec-kit/storefront-api/internal/config"
	"github.com/spec-kit/storefront-api/internal/domain"
)

// Token validation failures. Every rejection returned by Validate wraps
// exactly one of these.
var (
	ErrTokenMalformed              = errors.New("token malformed")
	ErrTokenSignatureInvalid       = errors.New("token signature invalid")
	ErrTokenExpired                = errors.New("token expired")
	ErrTokenIssuerAudienceMismatch = errors.New("token issuer or audience mismatch")
)

// Issuance failures.
var (
	ErrSigningKeyRequired = errors.New("signing key required")
	ErrIdentityRequired   = errors.New("identity required")
	ErrRolesRequired      = errors.New("roles required")
)

// ValidationSpec is the fixed set of checks applied to every bearer token.
type ValidationSpec struct {
	Issuer    string
	Audience  string
	Algorithm string
	ClockSkew time.Duration
	NameClaim string
}

// Claims describes the JWT payload.
type Claims struct {
	Name  string        `json:"name"`
	Roles []domain.Role `json:"roles,omitempty"`
	jwt.RegisteredClaims
}

// TokenService issues and validates signed bearer tokens. It is read-only
// after construction and safe for concurrent use.
type TokenService struct {
	key      []byte
	lifetime time.Duration
	params   ValidationSpec
	parser   *jwt.Parser
}

// NewTokenService builds a service from the resolved auth settings.
func NewTokenService(cfg config.AuthConfig) (*TokenService, error) {
	if cfg.Key == "" {
		return nil, ErrSigningKeyRequired
	}
	lifetime := cfg.TokenLifetime
	if lifetime <= 0 {
		lifetime = time.Hour
	}

	params := ValidationSpec{
		Issuer:    cfg.Issuer,
		Audience:  cfg.Audience,
		Algorithm: jwt.SigningMethodHS256.Alg(),
		ClockSkew: 0,
		NameClaim: "name",
	}

	return &TokenService{
		key:      []byte(cfg.Key),
		lifetime: lifetime,
		params:   params,
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{params.Algorithm}),
			jwt.WithoutClaimsValidation(),
		),
	}, nil
}

// ValidationParameters returns the checks Validate applies.
func (s *TokenService) ValidationParameters() ValidationSpec {
	return s.params
}

// Lifetime reports how long issued tokens stay valid.
func (s *TokenService) Lifetime() time.Duration {
	return s.lifetime
}

// Issue builds and signs a token for user carrying roles. A nil roles slice
// is rejected; an empty one issues a token without role claims.
func (s *TokenService) Issue(user *domain.User, roles []domain.Role, now time.Time) (domain.Token, error) {
	if user == nil || user.ID == "" {
		return domain.Token{}, ErrIdentityRequired
	}
	if roles == nil {
		return domain.Token{}, ErrRolesRequired
	}

	issuedAt := jwt.NewNumericDate(now)
	expiresAt := jwt.NewNumericDate(now.Add(s.lifetime))
	claims := &Claims{
		Name:  user.Username,
		Roles: slices.Clone(roles),
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   user.ID,
			Issuer:    s.params.Issuer,
			Audience:  jwt.ClaimStrings{s.params.Audience},
			IssuedAt:  issuedAt,
			ExpiresAt: expiresAt,
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.key)
	if err != nil {
		return domain.Token{}, err
	}
	return domain.Token{
		Value:     signed,
		ID:        claims.ID,
		SubjectID: user.ID,
		IssuedAt:  issuedAt.Time,
		ExpiresAt: expiresAt.Time,
	}, nil
}

// Validate checks raw against the validation parameters at time now. Checks
// run in order signature, issuer, audience, expiry and the first failure is
// returned.
func (s *TokenService) Validate(raw string, now time.Time) (*Identity, error) {
	if raw == "" {
		return nil, ErrTokenMalformed
	}

	// The signature is verified over untyped claims so a forged token with
	// oddly typed fields still reports a bad signature.
	if _, err := s.parser.ParseWithClaims(raw, jwt.MapClaims{}, s.keyFunc); err != nil {
		return nil, classifyParseError(err)
	}
	claims := &Claims{}
	if _, _, err := s.parser.ParseUnverified(raw, claims); err != nil {
		return nil, ErrTokenMalformed
	}

	if claims.Subject == "" || claims.ExpiresAt == nil {
		return nil, ErrTokenMalformed
	}
	if claims.Issuer != s.params.Issuer {
		return nil, ErrTokenIssuerAudienceMismatch
	}
	if !slices.Contains(claims.Audience, s.params.Audience) {
		return nil, ErrTokenIssuerAudienceMismatch
	}
	if !now.Add(-s.params.ClockSkew).Before(claims.ExpiresAt.Time) {
		return nil, ErrTokenExpired
	}

	return &Identity{
		SubjectID: claims.Subject,
		Name:      claims.Name,
		Roles:     claims.Roles,
		TokenID:   claims.ID,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}

func (s *TokenService) keyFunc(*jwt.Token) (interface{}, error) {
	return s.key, nil
}

func classifyParseError(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrTokenUnverifiable):
		return ErrTokenSignatureInvalid
	default:
		return ErrTokenMalformed
	}
}
