package nonceauth

import (
	"maps"
	"time"

	"github.com/nigussolomon/nonceauth/credential"
	"github.com/nigussolomon/nonceauth/jwt"
)

// Hasher hashes and verifies secrets. The password package provides Argon2id,
// bcrypt and a nonce-only digest implementation.
type Hasher interface {
	Hash(secret string) (string, error)
	Verify(secret, encodedHash string) (bool, error)
}

// User is the public view of a stored record. It has no hash fields, so
// nothing returned across the Engine boundary can leak them.
type User struct {
	ID         string            `json:"id"`
	Identifier string            `json:"identifier"`
	Attributes map[string]string `json:"attributes,omitempty"`
	Active     bool              `json:"active"`
	CreatedAt  time.Time         `json:"createdAt"`
	UpdatedAt  time.Time         `json:"updatedAt"`
}

func userFromRecord(rec *credential.Record) *User {
	if rec == nil {
		return nil
	}
	return &User{
		ID:         rec.ID,
		Identifier: rec.Identifier,
		Attributes: maps.Clone(rec.Attributes),
		Active:     rec.Active,
		CreatedAt:  rec.CreatedAt,
		UpdatedAt:  rec.UpdatedAt,
	}
}

// Credentials is the login request.
type Credentials struct {
	Identifier string
	Passkey    string
}

// RegisterRequest is the registration request. Attributes are stored verbatim.
type RegisterRequest struct {
	Identifier string
	Passkey    string
	Attributes map[string]string
}

// AuthTokens is a freshly issued token pair and the user it was issued to.
type AuthTokens struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	User         *User  `json:"user"`
}

// AccessPayload is the decoded content of an access token.
type AccessPayload struct {
	Subject    string
	Identifier string
	Nonce      string
}

// PayloadFromClaims converts verified access claims into an AccessPayload.
func PayloadFromClaims(c *jwt.Claims) AccessPayload {
	if c == nil {
		return AccessPayload{}
	}
	return AccessPayload{Subject: c.Subject, Identifier: c.Identifier, Nonce: c.Nonce}
}
