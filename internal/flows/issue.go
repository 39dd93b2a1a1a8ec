package flows

import (
	"context"

	"github.com/nigussolomon/nonceauth/credential"
)

// IssueFailureKind classifies token-pair issuance failures.
type IssueFailureKind int

const (
	IssueFailureNone IssueFailureKind = iota
	IssueFailureNonce
	IssueFailureHash
	IssueFailureSign
	IssueFailureStore
	IssueFailureNoRow
)

// IssueResult carries the new pair or a failure. Record is the stripped
// user the pair was issued to and is set only on success.
type IssueResult struct {
	Failure      IssueFailureKind
	Err          error
	AccessToken  string
	RefreshToken string
	Record       *credential.Record
}

// IssueDeps captures issuance dependencies.
type IssueDeps struct {
	Store       credential.Store
	NonceHasher Hasher
	Access      TokenSigner
	Refresh     TokenSigner
	NewNonce    func() (string, error)
}

// IssueTokenPair mints an access and a refresh token bound to fresh nonces
// and persists both nonce hashes with one id-guarded write. Tokens are
// returned only if exactly one row was updated. The record in the result
// never carries hash fields.
func IssueTokenPair(ctx context.Context, rec *credential.Record, deps IssueDeps) IssueResult {
	accessNonce, err := deps.NewNonce()
	if err != nil {
		return IssueResult{Failure: IssueFailureNonce, Err: err}
	}
	refreshNonce, err := deps.NewNonce()
	if err != nil {
		return IssueResult{Failure: IssueFailureNonce, Err: err}
	}

	access, err := deps.Access.Sign(rec.ID, rec.Identifier, accessNonce)
	if err != nil {
		return IssueResult{Failure: IssueFailureSign, Err: err}
	}
	refresh, err := deps.Refresh.Sign(rec.ID, rec.Identifier, refreshNonce)
	if err != nil {
		return IssueResult{Failure: IssueFailureSign, Err: err}
	}

	accessHash, err := deps.NonceHasher.Hash(accessNonce)
	if err != nil {
		return IssueResult{Failure: IssueFailureHash, Err: err}
	}
	refreshHash, err := deps.NonceHasher.Hash(refreshNonce)
	if err != nil {
		return IssueResult{Failure: IssueFailureHash, Err: err}
	}

	n, err := deps.Store.UpdateSession(ctx, rec.ID, credential.SetSession(refreshHash, accessHash))
	if err != nil {
		return IssueResult{Failure: IssueFailureStore, Err: err}
	}
	if n != 1 {
		return IssueResult{Failure: IssueFailureNoRow}
	}

	stripped := rec.Project(nil)
	return IssueResult{AccessToken: access, RefreshToken: refresh, Record: &stripped}
}
