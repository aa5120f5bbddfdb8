package credentials

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"

	"github.com/goliatone/go-errors"
)

// secretTokenLength is the number of random bytes behind every
// single-use secret (password reset, email verification).
const secretTokenLength = 32

// GenerateSecretToken returns a cryptographically unguessable secret and
// the SHA-256 digest under which it is persisted. The plaintext only
// travels out-of-band to the account owner.
func GenerateSecretToken() (plaintext, digest string, err error) {
	buf := make([]byte, secretTokenLength)
	if _, err := rand.Read(buf); err != nil {
		return "", "", errors.Wrap(err, errors.CategoryInternal, "failed to generate secret token")
	}

	plaintext = hex.EncodeToString(buf)
	return plaintext, HashSecretToken(plaintext), nil
}

// HashSecretToken computes the storage digest of a secret token.
func HashSecretToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
