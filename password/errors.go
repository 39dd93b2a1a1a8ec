package password

import "errors"

var (
	// ErrEmptyInput is returned when Hash is called with an empty secret.
	ErrEmptyInput = errors.New("password: empty input")
	// ErrInputTooLong is returned when the secret exceeds the configured byte cap.
	ErrInputTooLong = errors.New("password: input too long")
	// ErrMalformedHash is returned when a stored hash cannot be decoded.
	ErrMalformedHash = errors.New("password: malformed hash")
)

// DefaultMaxInputBytes caps secret length when a config leaves it unset.
const DefaultMaxInputBytes = 1024

func checkInput(secret string, maxBytes int) error {
	if secret == "" {
		return ErrEmptyInput
	}
	if len(secret) > maxBytes {
		return ErrInputTooLong
	}
	return nil
}

func effectiveMax(v int) int {
	if v <= 0 {
		return DefaultMaxInputBytes
	}
	return v
}
