package credentials

import (
	"strings"

	"github.com/goliatone/go-errors"
)

// Text codes attached to rich errors so API clients can branch without
// string matching.
const (
	TextCodeDuplicateEmail      = "DUPLICATE_EMAIL"
	TextCodeInvalidCredentials  = "INVALID_CREDENTIALS"
	TextCodeEmailNotVerified    = "EMAIL_NOT_VERIFIED"
	TextCodeInvalidRefreshToken = "INVALID_REFRESH_TOKEN"
	TextCodeTokenExpired        = "TOKEN_EXPIRED"
	TextCodeTokenMalformed      = "TOKEN_MALFORMED"
	TextCodeMalformedClaims     = "MALFORMED_CLAIMS"
	TextCodeTooManyAttempts     = "TOO_MANY_LOGIN_ATTEMPTS"
	TextCodeResetTokenInvalid   = "RESET_TOKEN_INVALID"
	TextCodeVerifyTokenInvalid  = "VERIFICATION_TOKEN_INVALID"
	TextCodeStoreUnavailable    = "STORE_UNAVAILABLE"
)

// ErrDuplicateEmail is returned when a registration collides with an
// existing non-deleted account, case-insensitively.
var ErrDuplicateEmail = errors.New("email address is already registered", errors.CategoryConflict).
	WithTextCode(TextCodeDuplicateEmail)

// ErrInvalidCredentials is the single generic login failure. Unknown
// account and wrong password deliberately share it.
var ErrInvalidCredentials = errors.New("invalid credentials", errors.CategoryAuth).
	WithCode(errors.CodeUnauthorized).
	WithTextCode(TextCodeInvalidCredentials)

// ErrEmailNotVerified blocks login for user accounts that have not
// confirmed their email address yet.
var ErrEmailNotVerified = errors.New("email address has not been verified", errors.CategoryAuth).
	WithCode(errors.CodeForbidden).
	WithTextCode(TextCodeEmailNotVerified)

// ErrInvalidRefreshToken covers malformed, expired, revoked, and reused
// refresh tokens. Account state is never leaked through the refresh flow.
var ErrInvalidRefreshToken = errors.New("invalid refresh token", errors.CategoryAuth).
	WithCode(errors.CodeUnauthorized).
	WithTextCode(TextCodeInvalidRefreshToken)

// ErrAccountNotFound is internal to the refresh flow; callers see
// ErrInvalidRefreshToken instead.
var ErrAccountNotFound = errors.New("account not found", errors.CategoryNotFound).
	WithCode(errors.CodeNotFound)

// ErrTokenExpired is returned when a signed token is past its expiry.
var ErrTokenExpired = errors.New("token is expired", errors.CategoryAuth).
	WithCode(errors.CodeUnauthorized).
	WithTextCode(TextCodeTokenExpired)

// ErrTokenMalformed is returned when a token fails signature or shape checks.
var ErrTokenMalformed = errors.New("token is malformed", errors.CategoryAuth).
	WithCode(errors.CodeUnauthorized).
	WithTextCode(TextCodeTokenMalformed)

// ErrMalformedClaims is returned when a token verifies but its claim set
// is missing required fields or carries the wrong use tag.
var ErrMalformedClaims = errors.New("token claims are malformed", errors.CategoryAuth).
	WithCode(errors.CodeUnauthorized).
	WithTextCode(TextCodeMalformedClaims)

// ErrResetTokenInvalid covers reset tokens that are unknown, already
// used, or past their expiry. The three cases are indistinguishable to
// callers on purpose.
var ErrResetTokenInvalid = errors.New("invalid or expired reset token", errors.CategoryValidation).
	WithTextCode(TextCodeResetTokenInvalid)

// ErrVerificationTokenInvalid is the verification-flow counterpart of
// ErrResetTokenInvalid.
var ErrVerificationTokenInvalid = errors.New("invalid or expired verification token", errors.CategoryValidation).
	WithTextCode(TextCodeVerifyTokenInvalid)

// ErrTooManyLoginAttempts enforces the login cool-down window.
var ErrTooManyLoginAttempts = errors.New("too many login attempts", errors.CategoryAuth).
	WithCode(errors.CodeUnauthorized).
	WithTextCode(TextCodeTooManyAttempts)

// ErrStoreUnavailable is the generic infrastructure failure surfaced when
// the persistence layer times out or errors. Retry is the caller's concern.
var ErrStoreUnavailable = errors.New("storage unavailable", errors.CategoryInternal).
	WithTextCode(TextCodeStoreUnavailable)

// ErrNoEmptyString guards hashing of empty passwords.
var ErrNoEmptyString = errors.New("value must not be empty", errors.CategoryBadInput)

// ErrMismatchedHashAndPassword is the single verification failure for
// password comparison, malformed hashes included.
var ErrMismatchedHashAndPassword = errors.New("password does not match", errors.CategoryAuth).
	WithCode(errors.CodeUnauthorized)

// IsTokenExpiredError will check for expired tokens
func IsTokenExpiredError(err error) bool {
	if err == nil {
		return false
	}
	var rich *errors.Error
	if errors.As(err, &rich) && rich.TextCode == TextCodeTokenExpired {
		return true
	}
	return strings.Contains(err.Error(), "token is expired")
}

// IsMalformedTokenError will check for malformed or undecodable tokens
func IsMalformedTokenError(err error) bool {
	if err == nil {
		return false
	}
	var rich *errors.Error
	if errors.As(err, &rich) {
		if rich.TextCode == TextCodeTokenMalformed || rich.TextCode == TextCodeMalformedClaims {
			return true
		}
	}
	return strings.Contains(err.Error(), "token is malformed") ||
		strings.Contains(err.Error(), "missing or malformed JWT")
}

// isUniqueViolation detects a unique-constraint failure from the driver.
// The sqlite and postgres engines word it differently; we rely on the
// constraint, not on application-level locking, so both spellings count.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "duplicate key value") ||
		strings.Contains(msg, "SQLSTATE 23505")
}
