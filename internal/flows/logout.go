package flows

import (
	"context"

	"github.com/nigussolomon/nonceauth/credential"
)

// LogoutFailureKind classifies logout failures.
type LogoutFailureKind int

const (
	LogoutFailureNone LogoutFailureKind = iota
	LogoutFailureStore
	LogoutFailureNoRow
)

// LogoutResult reports the outcome of RunLogout.
type LogoutResult struct {
	Failure LogoutFailureKind
	Err     error
}

// LogoutDeps captures logout dependencies.
type LogoutDeps struct {
	Store credential.Store
}

// RunLogout clears both nonce hashes for userID. Outstanding tokens of either
// class stop verifying immediately.
func RunLogout(ctx context.Context, userID string, deps LogoutDeps) LogoutResult {
	if userID == "" {
		return LogoutResult{Failure: LogoutFailureNoRow}
	}
	n, err := deps.Store.UpdateSession(ctx, userID, credential.ClearSession())
	if err != nil {
		return LogoutResult{Failure: LogoutFailureStore, Err: err}
	}
	if n != 1 {
		return LogoutResult{Failure: LogoutFailureNoRow}
	}
	return LogoutResult{}
}
