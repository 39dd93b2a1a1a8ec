package credential

import (
	"context"
	"errors"
)

var (
	// ErrNotFound is returned by Find* when no record matches.
	ErrNotFound = errors.New("credential: record not found")
	// ErrExists is returned by Insert when the identifier is already taken.
	ErrExists = errors.New("credential: identifier already exists")
)

// HashUpdate describes the new value of one nonce-hash slot.
// Set=false leaves the slot untouched; Set=true with an empty Value clears it.
type HashUpdate struct {
	Set   bool
	Value string
}

// SessionUpdate is the conditional write applied by Store.UpdateSession.
//
// The write matches a row only when its id equals the target id and, if
// ExpectRefreshHash is non-empty, its current refresh nonce hash equals
// ExpectRefreshHash. This makes the update a compare-and-swap.
type SessionUpdate struct {
	Refresh           HashUpdate
	Access            HashUpdate
	ExpectRefreshHash string
}

// ClearRefresh consumes the refresh slot if it still holds expect.
func ClearRefresh(expect string) SessionUpdate {
	return SessionUpdate{
		Refresh:           HashUpdate{Set: true},
		ExpectRefreshHash: expect,
	}
}

// ClearSession clears both slots unconditionally (id guard only).
func ClearSession() SessionUpdate {
	return SessionUpdate{
		Refresh: HashUpdate{Set: true},
		Access:  HashUpdate{Set: true},
	}
}

// SetSession stores a freshly issued pair of nonce hashes.
func SetSession(refreshHash, accessHash string) SessionUpdate {
	return SessionUpdate{
		Refresh: HashUpdate{Set: true, Value: refreshHash},
		Access:  HashUpdate{Set: true, Value: accessHash},
	}
}

// Store is the credential persistence contract.
//
// UpdateSession must be atomic per row: concurrent callers with the same
// ExpectRefreshHash observe at most one affected row between them.
type Store interface {
	FindByIdentifier(ctx context.Context, identifier string, include ...Field) (*Record, error)
	FindByID(ctx context.Context, id string, include ...Field) (*Record, error)
	Insert(ctx context.Context, rec Record) (*Record, error)
	UpdateSession(ctx context.Context, id string, upd SessionUpdate) (int64, error)
}
