package flows

import (
	"context"
	"errors"

	"github.com/nigussolomon/nonceauth/credential"
)

// ValidateFailureKind classifies access validation failures.
type ValidateFailureKind int

const (
	ValidateFailureNone ValidateFailureKind = iota
	ValidateFailureDecode
	ValidateFailureUserNotFound
	ValidateFailureNoSession
	ValidateFailureMismatch
	ValidateFailureInactive
	ValidateFailureLookup
	ValidateFailureVerify
)

// ValidateResult carries the stripped record or a failure.
type ValidateResult struct {
	Failure ValidateFailureKind
	Err     error
	Record  *credential.Record
}

// ValidateDeps captures validation dependencies.
type ValidateDeps struct {
	ParseAccess TokenParser
	Store       credential.Store
	NonceHasher Hasher
}

// RunValidate checks an already-decoded access payload against the stored
// access nonce hash. Signature and expiry are the caller's concern.
func RunValidate(ctx context.Context, subject, nonce string, deps ValidateDeps) ValidateResult {
	if subject == "" || nonce == "" {
		return ValidateResult{Failure: ValidateFailureDecode}
	}

	rec, err := deps.Store.FindByID(ctx, subject, credential.FieldAccessNonceHash)
	if err != nil {
		if errors.Is(err, credential.ErrNotFound) {
			return ValidateResult{Failure: ValidateFailureUserNotFound, Err: err}
		}
		return ValidateResult{Failure: ValidateFailureLookup, Err: err}
	}
	if rec.AccessNonceHash == "" {
		return ValidateResult{Failure: ValidateFailureNoSession}
	}

	ok, err := deps.NonceHasher.Verify(nonce, rec.AccessNonceHash)
	if err != nil {
		return ValidateResult{Failure: ValidateFailureVerify, Err: err}
	}
	if !ok {
		return ValidateResult{Failure: ValidateFailureMismatch}
	}
	if !rec.Active {
		return ValidateResult{Failure: ValidateFailureInactive}
	}

	out := rec.Project(nil)
	return ValidateResult{Record: &out}
}

// RunValidateToken parses a raw access token and then runs RunValidate.
func RunValidateToken(ctx context.Context, token string, deps ValidateDeps) ValidateResult {
	claims, err := deps.ParseAccess.Parse(token)
	if err != nil {
		return ValidateResult{Failure: ValidateFailureDecode, Err: err}
	}
	return RunValidate(ctx, claims.Subject, claims.Nonce, deps)
}
