package flows

import "github.com/nigussolomon/nonceauth/jwt"

// Hasher is the password and nonce hashing primitive.
type Hasher interface {
	Hash(secret string) (string, error)
	Verify(secret, encodedHash string) (bool, error)
}

// TokenSigner mints one token class.
type TokenSigner interface {
	Sign(subject, identifier, nonce string) (string, error)
}

// TokenParser verifies one token class.
type TokenParser interface {
	Parse(token string) (*jwt.Claims, error)
}

// Deps groups flow dependency sets. The Engine builds this once at Build time
// and delegates each request method to the matching flow.
type Deps struct {
	Register RegisterDeps
	Login    LoginDeps
	Refresh  RefreshDeps
	Logout   LogoutDeps
	Validate ValidateDeps
	Issue    IssueDeps
}

