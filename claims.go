package credentials

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// TokenUse distinguishes access from refresh tokens so one can never be
// replayed as the other.
type TokenUse = string

const (
	// TokenUseAccess marks a short-lived request credential
	TokenUseAccess TokenUse = "access"
	// TokenUseRefresh marks a rotation credential
	TokenUseRefresh TokenUse = "refresh"
)

// AuthClaims is the read-side view of verified token claims
type AuthClaims interface {
	Subject() string
	AccountID() string
	Role() string
	Use() TokenUse
	TokenID() string
	Expires() time.Time
	IssuedAt() time.Time
}

// TokenClaims is the tagged claim structure embedded in every signed
// token. Fields are verified explicitly after the signature check; a
// catch-all map shape is never exposed to callers.
type TokenClaims struct {
	jwt.RegisteredClaims
	UID      string   `json:"uid,omitempty"`
	UserRole string   `json:"role,omitempty"`
	TokenUse TokenUse `json:"use,omitempty"`
}

var _ AuthClaims = (*TokenClaims)(nil)

// Subject returns the subject claim
func (c *TokenClaims) Subject() string {
	return c.RegisteredClaims.Subject
}

// AccountID returns the owning account id, falling back to the subject
func (c *TokenClaims) AccountID() string {
	if c.UID != "" {
		return c.UID
	}
	return c.Subject()
}

// Role returns the role tag carried by the token
func (c *TokenClaims) Role() string {
	return c.UserRole
}

// Use returns the token's use tag
func (c *TokenClaims) Use() TokenUse {
	return c.TokenUse
}

// TokenID returns the jti claim; for refresh tokens this is the
// AuthSession row id.
func (c *TokenClaims) TokenID() string {
	return c.RegisteredClaims.ID
}

// SessionID parses the jti claim as a session id.
func (c *TokenClaims) SessionID() (uuid.UUID, error) {
	return uuid.Parse(c.RegisteredClaims.ID)
}

// Expires returns the expiration time
func (c *TokenClaims) Expires() time.Time {
	if c.RegisteredClaims.ExpiresAt != nil {
		return c.RegisteredClaims.ExpiresAt.Time
	}
	return time.Time{}
}

// IssuedAt returns the issued at time
func (c *TokenClaims) IssuedAt() time.Time {
	if c.RegisteredClaims.IssuedAt != nil {
		return c.RegisteredClaims.IssuedAt.Time
	}
	return time.Time{}
}

// validShape checks the required fields after signature verification,
// including the expected use tag.
func (c *TokenClaims) validShape(expected TokenUse) error {
	if c.RegisteredClaims.Subject == "" {
		return ErrMalformedClaims
	}
	if c.TokenUse != expected {
		return ErrMalformedClaims
	}
	switch c.UserRole {
	case RoleUser, RoleAdmin:
	default:
		return ErrMalformedClaims
	}
	if c.RegisteredClaims.ExpiresAt == nil {
		return ErrMalformedClaims
	}
	return nil
}

func ensureTokenID(claims *jwt.RegisteredClaims) {
	if claims.ID == "" {
		claims.ID = uuid.New().String()
	}
}
