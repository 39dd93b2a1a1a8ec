package flows

import (
	"context"
	"errors"

	"github.com/nigussolomon/nonceauth/credential"
)

// LoginFailureKind classifies login failures.
type LoginFailureKind int

const (
	LoginFailureNone LoginFailureKind = iota
	LoginFailureUnknownIdentifier
	LoginFailureInactive
	LoginFailureMismatch
	LoginFailureLookup
	LoginFailureVerify
	LoginFailureIssue
)

// LoginResult carries the authenticated record and new pair, or a failure.
type LoginResult struct {
	Failure LoginFailureKind
	Err     error
	Record  *credential.Record
	Issue   IssueResult
}

// LoginDeps captures login dependencies.
type LoginDeps struct {
	Store          credential.Store
	PasswordHasher Hasher
	// DummyHash is verified against when the identifier is unknown so both
	// failure paths cost one hash verification.
	DummyHash string
	// MaxPasskeyLength rejects longer passkeys as a mismatch without a
	// lookup, since no stored hash can match them. Zero disables the check.
	MaxPasskeyLength int
	Issue            IssueDeps
}

// RunLogin verifies the passkey and issues a fresh pair, replacing whatever
// session the user had.
func RunLogin(ctx context.Context, identifier, passkey string, deps LoginDeps) LoginResult {
	if deps.MaxPasskeyLength > 0 && len(passkey) > deps.MaxPasskeyLength {
		return LoginResult{Failure: LoginFailureMismatch}
	}

	rec, err := deps.Store.FindByIdentifier(ctx, identifier, credential.FieldPasswordHash)
	if err != nil {
		if errors.Is(err, credential.ErrNotFound) {
			if deps.DummyHash != "" {
				_, _ = deps.PasswordHasher.Verify(passkey, deps.DummyHash)
			}
			return LoginResult{Failure: LoginFailureUnknownIdentifier, Err: err}
		}
		return LoginResult{Failure: LoginFailureLookup, Err: err}
	}

	ok, err := deps.PasswordHasher.Verify(passkey, rec.PasswordHash)
	if err != nil {
		return LoginResult{Failure: LoginFailureVerify, Err: err}
	}
	if !ok {
		return LoginResult{Failure: LoginFailureMismatch}
	}
	if !rec.Active {
		return LoginResult{Failure: LoginFailureInactive}
	}

	stripped := rec.Project(nil)
	issued := IssueTokenPair(ctx, &stripped, deps.Issue)
	if issued.Failure != IssueFailureNone {
		return LoginResult{Failure: LoginFailureIssue, Err: issued.Err, Record: &stripped, Issue: issued}
	}
	return LoginResult{Record: &stripped, Issue: issued}
}
