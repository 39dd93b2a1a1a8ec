package password

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"io"
	"strings"
)

const (
	digestID         = "sha256"
	digestSaltLength = 16
)

// Digest is a salted SHA-256 hasher for high-entropy values such as token
// nonces. It must not be used for user passkeys.
type Digest struct{}

// NewDigest returns a nonce digest hasher.
func NewDigest() *Digest {
	return &Digest{}
}

// Hash returns $sha256$<salt>$<sum> for secret.
func (Digest) Hash(secret string) (string, error) {
	if err := checkInput(secret, DefaultMaxInputBytes); err != nil {
		return "", err
	}
	salt := make([]byte, digestSaltLength)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return "", err
	}
	sum := digestSum(salt, secret)
	return "$" + digestID + "$" +
		base64.RawStdEncoding.EncodeToString(salt) + "$" +
		base64.RawStdEncoding.EncodeToString(sum), nil
}

// Verify reports whether secret matches encodedHash.
func (Digest) Verify(secret string, encodedHash string) (bool, error) {
	parts := strings.Split(encodedHash, "$")
	if len(parts) != 4 || parts[0] != "" || parts[1] != digestID {
		return false, malformed("invalid digest format")
	}
	salt, err := base64.RawStdEncoding.DecodeString(parts[2])
	if err != nil || len(salt) != digestSaltLength {
		return false, malformed("invalid digest salt")
	}
	want, err := base64.RawStdEncoding.DecodeString(parts[3])
	if err != nil || len(want) != sha256.Size {
		return false, malformed("invalid digest sum")
	}
	return subtle.ConstantTimeCompare(digestSum(salt, secret), want) == 1, nil
}

func digestSum(salt []byte, secret string) []byte {
	h := sha256.New()
	h.Write(salt)
	h.Write([]byte(secret))
	return h.Sum(nil)
}
