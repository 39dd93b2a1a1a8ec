// Package memstore is an in-process credential.Store guarded by a mutex.
// It backs tests, the load generator and single-process demos.
package memstore

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/nigussolomon/nonceauth/credential"
)

// Store keeps records in memory. Ids are decimal sequence numbers.
type Store struct {
	mu      sync.Mutex
	nextID  uint64
	byID    map[string]*credential.Record
	byIdent map[string]string
	now     func() time.Time
}

var _ credential.Store = (*Store)(nil)

// New returns an empty store.
func New() *Store {
	return &Store{
		byID:    make(map[string]*credential.Record),
		byIdent: make(map[string]string),
		now:     time.Now,
	}
}

func (s *Store) FindByIdentifier(_ context.Context, identifier string, include ...credential.Field) (*credential.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.byIdent[identifier]
	if !ok {
		return nil, credential.ErrNotFound
	}
	out := s.byID[id].Project(include)
	return &out, nil
}

func (s *Store) FindByID(_ context.Context, id string, include ...credential.Field) (*credential.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.byID[id]
	if !ok {
		return nil, credential.ErrNotFound
	}
	out := rec.Project(include)
	return &out, nil
}

func (s *Store) Insert(_ context.Context, rec credential.Record) (*credential.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, taken := s.byIdent[rec.Identifier]; taken {
		return nil, credential.ErrExists
	}

	s.nextID++
	now := s.now().UTC()
	rec.ID = strconv.FormatUint(s.nextID, 10)
	rec.RefreshNonceHash = ""
	rec.AccessNonceHash = ""
	rec.CreatedAt = now
	rec.UpdatedAt = now

	stored := rec.Project(credential.FieldSet{credential.FieldPasswordHash})
	s.byID[rec.ID] = &stored
	s.byIdent[rec.Identifier] = rec.ID

	out := rec.Project(nil)
	return &out, nil
}

func (s *Store) UpdateSession(_ context.Context, id string, upd credential.SessionUpdate) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.byID[id]
	if !ok {
		return 0, nil
	}
	if upd.ExpectRefreshHash != "" && rec.RefreshNonceHash != upd.ExpectRefreshHash {
		return 0, nil
	}
	if upd.Refresh.Set {
		rec.RefreshNonceHash = upd.Refresh.Value
	}
	if upd.Access.Set {
		rec.AccessNonceHash = upd.Access.Value
	}
	rec.UpdatedAt = s.now().UTC()
	return 1, nil
}
