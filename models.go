package credentials

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// AccountRole is the account's role tag
type AccountRole = string

const (
	// RoleUser is a regular end-user account
	RoleUser AccountRole = "user"
	// RoleAdmin is an administrative account
	RoleAdmin AccountRole = "admin"
)

// Account is the credential record for a user or admin
type Account struct {
	bun.BaseModel  `bun:"table:accounts,alias:acc"`
	ID             uuid.UUID   `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	Role           AccountRole `bun:"role,notnull" json:"role,omitempty"`
	Email          string      `bun:"email,notnull,unique" json:"email,omitempty"`
	PasswordHash   string      `bun:"password_hash,notnull" json:"-"`
	EmailVerified  bool        `bun:"is_email_verified" json:"is_email_verified"`
	LoginAttempts  int         `bun:"login_attempts" json:"-"`
	LoginAttemptAt *time.Time  `bun:"login_attempt_at,nullzero" json:"-"`
	LoggedInAt     *time.Time  `bun:"loggedin_at,nullzero" json:"loggedin_at,omitempty"`
	CreatedAt      *time.Time  `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
	UpdatedAt      *time.Time  `bun:"updated_at,nullzero,default:current_timestamp" json:"updated_at,omitempty"`
	DeletedAt      *time.Time  `bun:"deleted_at,soft_delete,nullzero" json:"deleted_at,omitempty"`
}

// Identity adapts the account to the Identity interface consumed
// by the token service.
func (a *Account) Identity() Identity {
	return authIdentity{
		id:    a.ID.String(),
		email: a.Email,
		role:  a.Role,
	}
}

// IsActive reports whether the account may authenticate.
func (a *Account) IsActive() bool {
	return a != nil && a.DeletedAt == nil
}

// NormalizeEmail lowercases and trims an email address. Uniqueness is
// case-insensitive, so every write and lookup goes through this first.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// PasswordResetToken is a single-use, time-boxed reset secret. Only the
// SHA-256 digest of the secret is persisted; rows are kept after
// consumption for audit.
type PasswordResetToken struct {
	bun.BaseModel `bun:"table:password_reset_tokens,alias:prt"`
	ID            uuid.UUID  `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	AccountID     uuid.UUID  `bun:"account_id,notnull,type:uuid" json:"account_id,omitempty"`
	Account       *Account   `bun:"rel:has-one,join:account_id=id" json:"-"`
	TokenHash     string     `bun:"token_hash,notnull,unique" json:"-"`
	ExpiresAt     time.Time  `bun:"expires_at,notnull" json:"expires_at,omitempty"`
	UsedAt        *time.Time `bun:"used_at,nullzero" json:"used_at,omitempty"`
	CreatedAt     *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
}

// Consumable reports whether the token can still be consumed at now.
// The storage layer enforces this atomically; this is the in-memory view.
func (t *PasswordResetToken) Consumable(now time.Time) bool {
	return t != nil && t.UsedAt == nil && t.ExpiresAt.After(now)
}

// VerificationToken is the email-verification counterpart of
// PasswordResetToken: same single-use lifecycle, different table and TTL.
type VerificationToken struct {
	bun.BaseModel `bun:"table:verification_tokens,alias:vrt"`
	ID            uuid.UUID  `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	AccountID     uuid.UUID  `bun:"account_id,notnull,type:uuid" json:"account_id,omitempty"`
	Account       *Account   `bun:"rel:has-one,join:account_id=id" json:"-"`
	TokenHash     string     `bun:"token_hash,notnull,unique" json:"-"`
	ExpiresAt     time.Time  `bun:"expires_at,notnull" json:"expires_at,omitempty"`
	UsedAt        *time.Time `bun:"used_at,nullzero" json:"used_at,omitempty"`
	CreatedAt     *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
}

// Consumable reports whether the token can still be consumed at now.
func (t *VerificationToken) Consumable(now time.Time) bool {
	return t != nil && t.UsedAt == nil && t.ExpiresAt.After(now)
}

// AuthSession tracks one refresh-token lineage entry. The row id doubles
// as the refresh token's jti claim, so rotation is a conditional update
// against this table. Once RevokedAt is set the session is final.
type AuthSession struct {
	bun.BaseModel `bun:"table:auth_sessions,alias:ases"`
	ID            uuid.UUID  `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	AccountID     uuid.UUID  `bun:"account_id,notnull,type:uuid" json:"account_id,omitempty"`
	ParentID      *uuid.UUID `bun:"parent_id,nullzero,type:uuid" json:"parent_id,omitempty"`
	ExpiresAt     time.Time  `bun:"expires_at,notnull" json:"expires_at,omitempty"`
	RotatedAt     *time.Time `bun:"rotated_at,nullzero" json:"rotated_at,omitempty"`
	RevokedAt     *time.Time `bun:"revoked_at,nullzero" json:"revoked_at,omitempty"`
	CreatedAt     *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
}

// Active reports whether the session can still be rotated at now.
func (s *AuthSession) Active(now time.Time) bool {
	return s != nil && s.RotatedAt == nil && s.RevokedAt == nil && s.ExpiresAt.After(now)
}
