package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	apperrors "github.com/spec-kit/storefront-api/pkg/util"
)

const identityKey = "auth_identity"

// RejectionRecorder counts rejected tokens by reason.
type RejectionRecorder interface {
	RecordAuthRejection(reason string)
}

// Authenticator validates bearer tokens on every request and stores the
// resulting identity for downstream handlers.
type Authenticator struct {
	tokens  *TokenService
	metrics RejectionRecorder
	now     func() time.Time
}

// NewAuthenticator constructs the middleware. metrics may be nil.
func NewAuthenticator(tokens *TokenService, metrics RejectionRecorder) *Authenticator {
	return &Authenticator{tokens: tokens, metrics: metrics, now: time.Now}
}

// Handle runs the pipeline for one request. Requests without a bearer token
// pass through anonymously; requests with an invalid token are rejected.
func (a *Authenticator) Handle(c *fiber.Ctx) error {
	raw, ok := bearerToken(c.Get(fiber.HeaderAuthorization))
	if !ok {
		return c.Next()
	}

	identity, err := a.tokens.Validate(raw, a.now())
	if err != nil {
		reason, description := describeRejection(err)
		if a.metrics != nil {
			a.metrics.RecordAuthRejection(reason)
		}
		c.Set(fiber.HeaderWWWAuthenticate, fmt.Sprintf(`Bearer error="invalid_token", error_description=%q`, description))
		return apperrors.NewUnauthorized(description)
	}

	c.Locals(identityKey, identity)
	c.SetUserContext(WithIdentity(c.UserContext(), identity))
	return c.Next()
}

// IdentityFromFiber retrieves the authenticated caller, if any.
func IdentityFromFiber(c *fiber.Ctx) (*Identity, bool) {
	id, ok := c.Locals(identityKey).(*Identity)
	return id, ok && id != nil
}

func bearerToken(header string) (string, bool) {
	scheme, token, found := strings.Cut(strings.TrimSpace(header), " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

func describeRejection(err error) (reason, description string) {
	switch {
	case errors.Is(err, ErrTokenExpired):
		return "expired", "the token expired"
	case errors.Is(err, ErrTokenSignatureInvalid):
		return "bad_signature", "the token signature is invalid"
	case errors.Is(err, ErrTokenIssuerAudienceMismatch):
		return "issuer_audience", "the token issuer or audience is invalid"
	default:
		return "malformed", "the token is malformed"
	}
}
