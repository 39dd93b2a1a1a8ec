// Package badgerstore is an embedded credential.Store on Badger v3. Session
// updates run in optimistic transactions and retry on write conflicts, which
// gives UpdateSession its compare-and-swap semantics.
package badgerstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dgraph-io/badger/v3"
	"github.com/nigussolomon/nonceauth/credential"
	"github.com/oklog/ulid/v2"
)

// ErrTooManyConflicts is returned when a transaction keeps losing to
// concurrent writers.
var ErrTooManyConflicts = errors.New("badger: too many transaction conflicts")

const maxConflictRetries = 64

// storedRecord is the on-disk form. Unlike credential.Record it serializes
// the hash fields.
type storedRecord struct {
	ID               string            `json:"id"`
	Identifier       string            `json:"identifier"`
	PasswordHash     string            `json:"password_hash"`
	RefreshNonceHash string            `json:"refresh_nonce_hash,omitempty"`
	AccessNonceHash  string            `json:"access_nonce_hash,omitempty"`
	Attributes       map[string]string `json:"attributes,omitempty"`
	Active           bool              `json:"active"`
	CreatedAt        time.Time         `json:"created_at"`
	UpdatedAt        time.Time         `json:"updated_at"`
}

func (r storedRecord) record() credential.Record {
	return credential.Record{
		ID:               r.ID,
		Identifier:       r.Identifier,
		Attributes:       r.Attributes,
		Active:           r.Active,
		CreatedAt:        r.CreatedAt,
		UpdatedAt:        r.UpdatedAt,
		PasswordHash:     r.PasswordHash,
		RefreshNonceHash: r.RefreshNonceHash,
		AccessNonceHash:  r.AccessNonceHash,
	}
}

// Store is a Badger-backed credential.Store. Ids are ULIDs.
type Store struct {
	db  *badger.DB
	now func() time.Time
}

var _ credential.Store = (*Store)(nil)

// Open opens (or creates) a database in dir. An empty dir keeps everything
// in memory.
func Open(dir string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}

	opts := badger.DefaultOptions(dir)
	if dir == "" {
		opts = opts.WithInMemory(true)
	}
	opts.Logger = &badgerLogger{logger: logger}
	opts.DetectConflicts = true

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("badger: open db: %w", err)
	}
	return &Store{db: db, now: time.Now}, nil
}

// Close flushes and closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

func userKey(id string) []byte {
	return []byte("u/" + id)
}

func identKey(identifier string) []byte {
	return []byte("i/" + identifier)
}

func (s *Store) FindByIdentifier(ctx context.Context, identifier string, include ...credential.Field) (*credential.Record, error) {
	var rec storedRecord
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(identKey(identifier))
		if err != nil {
			return err
		}
		id, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		return loadRecord(txn, string(id), &rec)
	})
	return project(rec, err, include)
}

func (s *Store) FindByID(ctx context.Context, id string, include ...credential.Field) (*credential.Record, error) {
	var rec storedRecord
	err := s.db.View(func(txn *badger.Txn) error {
		return loadRecord(txn, id, &rec)
	})
	return project(rec, err, include)
}

func (s *Store) Insert(ctx context.Context, rec credential.Record) (*credential.Record, error) {
	now := s.now().UTC()
	stored := storedRecord{
		ID:           ulid.Make().String(),
		Identifier:   rec.Identifier,
		PasswordHash: rec.PasswordHash,
		Attributes:   rec.Attributes,
		Active:       rec.Active,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	value, err := json.Marshal(stored)
	if err != nil {
		return nil, err
	}

	err = s.update(ctx, func(txn *badger.Txn) error {
		if _, err := txn.Get(identKey(stored.Identifier)); err == nil {
			return credential.ErrExists
		} else if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		if err := txn.Set(identKey(stored.Identifier), []byte(stored.ID)); err != nil {
			return err
		}
		return txn.Set(userKey(stored.ID), value)
	})
	if err != nil {
		if errors.Is(err, credential.ErrExists) {
			return nil, err
		}
		return nil, fmt.Errorf("badger: insert: %w", err)
	}

	out := stored.record().Project(nil)
	return &out, nil
}

func (s *Store) UpdateSession(ctx context.Context, id string, upd credential.SessionUpdate) (int64, error) {
	var affected int64
	err := s.update(ctx, func(txn *badger.Txn) error {
		affected = 0

		var rec storedRecord
		if err := loadRecord(txn, id, &rec); err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return nil
			}
			return err
		}
		if upd.ExpectRefreshHash != "" && rec.RefreshNonceHash != upd.ExpectRefreshHash {
			return nil
		}

		if upd.Refresh.Set {
			rec.RefreshNonceHash = upd.Refresh.Value
		}
		if upd.Access.Set {
			rec.AccessNonceHash = upd.Access.Value
		}
		rec.UpdatedAt = s.now().UTC()

		value, err := json.Marshal(rec)
		if err != nil {
			return err
		}
		if err := txn.Set(userKey(id), value); err != nil {
			return err
		}
		affected = 1
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("badger: update session: %w", err)
	}
	return affected, nil
}

// update runs fn in a read-write transaction, retrying when a concurrent
// commit invalidated what fn read.
func (s *Store) update(ctx context.Context, fn func(txn *badger.Txn) error) error {
	for attempt := 0; attempt < maxConflictRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := s.db.Update(fn)
		if !errors.Is(err, badger.ErrConflict) {
			return err
		}
	}
	return ErrTooManyConflicts
}

func loadRecord(txn *badger.Txn, id string, out *storedRecord) error {
	item, err := txn.Get(userKey(id))
	if err != nil {
		return err
	}
	return item.Value(func(val []byte) error {
		return json.Unmarshal(val, out)
	})
}

func project(rec storedRecord, err error, include []credential.Field) (*credential.Record, error) {
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, credential.ErrNotFound
		}
		return nil, fmt.Errorf("badger: read: %w", err)
	}
	out := rec.record().Project(include)
	return &out, nil
}

// badgerLogger adapts slog.Logger to Badger's Logger interface.
type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}
