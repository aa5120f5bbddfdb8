package credentials

import (
	"golang.org/x/crypto/bcrypt"
)

// DefaultBcryptCost keeps verification deliberately non-trivial.
// Tests may lower it to keep suites fast.
var DefaultBcryptCost = 14

// HashPassword will generate a salted password hash
func HashPassword(password string) (string, error) {
	if password == "" {
		return "", ErrNoEmptyString
	}

	h, err := bcrypt.GenerateFromPassword([]byte(password), DefaultBcryptCost)
	return string(h), err
}

// ComparePasswordAndHash will validate the given cleartext password
// against the stored hash. Malformed hashes fail the same way a wrong
// password does; this function never panics.
func ComparePasswordAndHash(password, hash string) error {
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		// bcrypt reports a malformed hash as an error; collapse it into
		// a mismatch so callers cannot distinguish the two.
		return ErrMismatchedHashAndPassword
	}
	return nil
}

// PasswordMatches is the boolean form of ComparePasswordAndHash.
func PasswordMatches(password, hash string) bool {
	return ComparePasswordAndHash(password, hash) == nil
}
