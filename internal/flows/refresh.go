package flows

import (
	"context"
	"errors"

	"github.com/nigussolomon/nonceauth/credential"
)

// RefreshFailureKind classifies refresh failures for root-level mapping.
type RefreshFailureKind int

const (
	RefreshFailureNone RefreshFailureKind = iota
	RefreshFailureDecode
	RefreshFailureUserNotFound
	RefreshFailureNoSession
	RefreshFailureLookup
	RefreshFailureVerify
	RefreshFailureInactive
	RefreshFailureReuse
	RefreshFailureRaceLost
	RefreshFailureConsume
	RefreshFailureIssue
)

// RefreshResult carries either the rotated pair or failure metadata.
type RefreshResult struct {
	Failure RefreshFailureKind
	Err     error
	UserID  string
	// Revoked reports that a reuse was detected and the session was cleared.
	Revoked bool
	Issue   IssueResult
}

// RefreshDeps captures refresh flow dependencies.
type RefreshDeps struct {
	ParseRefresh  TokenParser
	Store         credential.Store
	NonceHasher   Hasher
	RevokeOnReuse bool
	Issue         IssueDeps
}

// RunRefresh rotates a refresh token. The stored refresh hash is consumed
// with a compare-and-swap on the value that was read, so for any single
// refresh token at most one caller proceeds to issuance. A failure after the
// consume leaves the user with no session. An inactive user is refused before
// the consume and the stored session is left as is.
func RunRefresh(ctx context.Context, refreshToken string, deps RefreshDeps) RefreshResult {
	claims, err := deps.ParseRefresh.Parse(refreshToken)
	if err != nil {
		return RefreshResult{Failure: RefreshFailureDecode, Err: err}
	}
	userID := claims.Subject

	rec, err := deps.Store.FindByID(ctx, userID, credential.FieldRefreshNonceHash)
	if err != nil {
		if errors.Is(err, credential.ErrNotFound) {
			return RefreshResult{Failure: RefreshFailureUserNotFound, Err: err, UserID: userID}
		}
		return RefreshResult{Failure: RefreshFailureLookup, Err: err, UserID: userID}
	}
	stored := rec.RefreshNonceHash
	if stored == "" {
		return RefreshResult{Failure: RefreshFailureNoSession, UserID: userID}
	}

	ok, err := deps.NonceHasher.Verify(claims.Nonce, stored)
	if err != nil {
		return RefreshResult{Failure: RefreshFailureVerify, Err: err, UserID: userID}
	}
	if !ok {
		res := RefreshResult{Failure: RefreshFailureReuse, UserID: userID}
		if deps.RevokeOnReuse {
			revoke := credential.ClearSession()
			revoke.ExpectRefreshHash = stored
			n, err := deps.Store.UpdateSession(ctx, userID, revoke)
			res.Err = err
			res.Revoked = err == nil && n == 1
		}
		return res
	}
	if !rec.Active {
		return RefreshResult{Failure: RefreshFailureInactive, UserID: userID}
	}

	n, err := deps.Store.UpdateSession(ctx, userID, credential.ClearRefresh(stored))
	if err != nil {
		return RefreshResult{Failure: RefreshFailureConsume, Err: err, UserID: userID}
	}
	if n != 1 {
		return RefreshResult{Failure: RefreshFailureRaceLost, UserID: userID}
	}

	issued := IssueTokenPair(ctx, rec, deps.Issue)
	if issued.Failure != IssueFailureNone {
		return RefreshResult{Failure: RefreshFailureIssue, Err: issued.Err, UserID: userID, Issue: issued}
	}
	return RefreshResult{UserID: userID, Issue: issued}
}
