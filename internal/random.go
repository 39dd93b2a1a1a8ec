package internal

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"

	"github.com/google/uuid"
)

// NewNonce returns a fresh random UUIDv4 string. Every issued token carries
// its own nonce; only a hash of it is ever stored.
func NewNonce() (string, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return "", fmt.Errorf("nonce: %w", err)
	}
	return id.String(), nil
}

// NewSecret returns n random bytes encoded base64url without padding. Used to
// generate development signing secrets.
func NewSecret(n int) (string, error) {
	if n <= 0 {
		return "", fmt.Errorf("secret size must be positive")
	}
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
