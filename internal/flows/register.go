package flows

import (
	"context"
	"errors"
	"strings"

	"github.com/nigussolomon/nonceauth/credential"
)

// RegisterFailureKind classifies registration failures.
type RegisterFailureKind int

const (
	RegisterFailureNone RegisterFailureKind = iota
	RegisterFailureInvalidIdentifier
	RegisterFailureInvalidPasskey
	RegisterFailureExists
	RegisterFailureLookup
	RegisterFailureHash
	RegisterFailureInsert
)

// RegisterResult carries the stored record (hidden fields stripped) or a failure.
type RegisterResult struct {
	Failure RegisterFailureKind
	Err     error
	Record  *credential.Record
}

// RegisterDeps captures registration dependencies.
type RegisterDeps struct {
	Store            credential.Store
	PasswordHasher   Hasher
	MinPasskeyLength int
	MaxPasskeyLength int
}

// RunRegister creates a user with no outstanding session. An existing
// identifier fails before any write. A duplicate reported by Insert (lost
// race) is classified the same way.
func RunRegister(ctx context.Context, identifier, passkey string, attrs map[string]string, deps RegisterDeps) RegisterResult {
	if strings.TrimSpace(identifier) == "" {
		return RegisterResult{Failure: RegisterFailureInvalidIdentifier}
	}
	if len(passkey) < deps.MinPasskeyLength || (deps.MaxPasskeyLength > 0 && len(passkey) > deps.MaxPasskeyLength) {
		return RegisterResult{Failure: RegisterFailureInvalidPasskey}
	}

	if _, err := deps.Store.FindByIdentifier(ctx, identifier); err == nil {
		return RegisterResult{Failure: RegisterFailureExists}
	} else if !errors.Is(err, credential.ErrNotFound) {
		return RegisterResult{Failure: RegisterFailureLookup, Err: err}
	}

	hash, err := deps.PasswordHasher.Hash(passkey)
	if err != nil {
		return RegisterResult{Failure: RegisterFailureHash, Err: err}
	}

	rec, err := deps.Store.Insert(ctx, credential.NewRecord(identifier, hash, attrs))
	if err != nil {
		if errors.Is(err, credential.ErrExists) {
			return RegisterResult{Failure: RegisterFailureExists, Err: err}
		}
		return RegisterResult{Failure: RegisterFailureInsert, Err: err}
	}

	out := rec.Project(nil)
	return RegisterResult{Record: &out}
}
