package nonceauth

import "errors"

// Error kinds. Every *Error unwraps to exactly one of these.
var (
	ErrConflict         = errors.New("conflict")
	ErrUnauthorized     = errors.New("unauthorized")
	ErrIntegrityFailure = errors.New("integrity failure")
	ErrInvalidInput     = errors.New("invalid input")
)

// Error is a classified engine failure. errors.Is matches both the specific
// sentinel and its Kind.
type Error struct {
	Kind    error
	Message string
}

func (e *Error) Error() string { return e.Message }

func (e *Error) Unwrap() error { return e.Kind }

var (
	// ErrUserExists is returned by Register when the identifier is taken.
	ErrUserExists = &Error{Kind: ErrConflict, Message: "user already exists"}
	// ErrInvalidCredentials covers both unknown identifier and wrong passkey.
	ErrInvalidCredentials = &Error{Kind: ErrUnauthorized, Message: "invalid credentials"}
	// ErrRefreshInvalid is returned for undecodable, expired or orphaned refresh
	// tokens, and for tokens of inactive users.
	ErrRefreshInvalid = &Error{Kind: ErrUnauthorized, Message: "invalid refresh token"}
	// ErrRefreshReused is returned when a refresh nonce no longer matches the stored hash.
	ErrRefreshReused = &Error{Kind: ErrUnauthorized, Message: "refresh token reused or invalid"}
	// ErrRefreshRaceLost is returned when the refresh hash was consumed by a concurrent call.
	ErrRefreshRaceLost = &Error{Kind: ErrUnauthorized, Message: "invalid refresh token or user not found"}
	// ErrLogoutFailed is returned when no row matched the logout update.
	ErrLogoutFailed = &Error{Kind: ErrUnauthorized, Message: "failed to logout"}
	// ErrAccessInvalid is returned when an access nonce does not match the stored hash.
	ErrAccessInvalid = &Error{Kind: ErrUnauthorized, Message: "access token reused or invalid"}
	// ErrSessionUpdateFailed is returned when a new pair could not be persisted.
	ErrSessionUpdateFailed = &Error{Kind: ErrUnauthorized, Message: "failed to update session"}
	// ErrIdentifierRequired is returned by Register for an empty identifier.
	ErrIdentifierRequired = &Error{Kind: ErrInvalidInput, Message: "identifier is required"}
	// ErrPasskeyPolicy is returned by Register when the passkey length is out of policy.
	ErrPasskeyPolicy = &Error{Kind: ErrInvalidInput, Message: "passkey does not meet length policy"}
)

// KindOf returns the error kind carried by err, or nil when err is not a
// classified engine error.
func KindOf(err error) error {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return nil
}
