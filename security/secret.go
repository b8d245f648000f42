package security

import (
	"crypto/sha256"
	"crypto/subtle"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// SecretsEqual reports whether provided matches expected in constant time.
// Both values are reduced to SHA-256 digests first, so the comparison always
// runs over two 32 byte buffers regardless of input length. An empty value
// on either side never matches.
func SecretsEqual(provided, expected string) bool {
	if provided == "" || expected == "" {
		return false
	}
	p := sha256.Sum256([]byte(provided))
	e := sha256.Sum256([]byte(expected))
	return subtle.ConstantTimeCompare(p[:], e[:]) == 1
}

// HashSecret returns a bcrypt hash of secret for storage.
func HashSecret(secret string) (string, error) {
	if secret == "" {
		return "", fmt.Errorf("secret must not be empty")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash secret: %w", err)
	}
	return string(hash), nil
}

// CompareSecretHash reports whether secret matches a bcrypt hash produced by
// HashSecret. bcrypt's comparison is constant time for a given hash.
func CompareSecretHash(hash, secret string) bool {
	if hash == "" || secret == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(secret)) == nil
}
