// Package sqlstore is a SQLite credential.Store on the pure-Go
// modernc.org/sqlite driver. Column names follow a credential.FieldMap.
package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/nigussolomon/nonceauth/credential"
	"github.com/nigussolomon/nonceauth/store/internal/sqlschema"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

// Store implements credential persistence over SQLite.
type Store struct {
	sqlDB  *sql.DB
	fields credential.FieldMap
	now    func() time.Time

	selectCols string
}

var _ credential.Store = (*Store)(nil)

// Open opens the database at path and applies bundled migrations.
func Open(path string, fields credential.FieldMap) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}

	dsn := filepath.Clean(path) +
		"?_pragma=journal_mode(WAL)&_pragma=foreign_keys(ON)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}

	fields = fields.WithDefaults()
	if err := Migrate(context.Background(), sqlDB, fields); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &Store{
		sqlDB:      sqlDB,
		fields:     fields,
		now:        time.Now,
		selectCols: sqlschema.Columns(fields),
	}, nil
}

// DB returns the raw database handle.
func (s *Store) DB() *sql.DB {
	if s == nil {
		return nil
	}
	return s.sqlDB
}

// Close releases the underlying database.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

func (s *Store) FindByIdentifier(ctx context.Context, identifier string, include ...credential.Field) (*credential.Record, error) {
	row := s.sqlDB.QueryRowContext(ctx,
		"SELECT "+s.selectCols+" FROM users WHERE "+sqlschema.Quote(s.fields.Identifier)+" = ?",
		identifier,
	)
	return scanRecord(row, include)
}

func (s *Store) FindByID(ctx context.Context, id string, include ...credential.Field) (*credential.Record, error) {
	rowID, err := strconv.ParseInt(id, 10, 64)
	if err != nil {
		return nil, credential.ErrNotFound
	}
	row := s.sqlDB.QueryRowContext(ctx, "SELECT "+s.selectCols+" FROM users WHERE id = ?", rowID)
	return scanRecord(row, include)
}

func (s *Store) Insert(ctx context.Context, rec credential.Record) (*credential.Record, error) {
	attrs, err := encodeAttributes(rec.Attributes)
	if err != nil {
		return nil, err
	}
	now := s.now().UTC().Truncate(time.Millisecond)

	res, err := s.sqlDB.ExecContext(ctx,
		"INSERT INTO users ("+
			sqlschema.Quote(s.fields.Identifier)+", "+
			sqlschema.Quote(s.fields.Passkey)+", "+
			"attributes, is_active, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)",
		rec.Identifier, rec.PasswordHash, attrs, rec.Active, toMillis(now), toMillis(now),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, credential.ErrExists
		}
		return nil, fmt.Errorf("sqlite insert user: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("sqlite insert user: %w", err)
	}

	rec.ID = strconv.FormatInt(id, 10)
	rec.CreatedAt = now
	rec.UpdatedAt = now
	out := rec.Project(nil)
	return &out, nil
}

func (s *Store) UpdateSession(ctx context.Context, id string, upd credential.SessionUpdate) (int64, error) {
	rowID, err := strconv.ParseInt(id, 10, 64)
	if err != nil {
		return 0, nil
	}

	var (
		sets []string
		args []any
	)
	if upd.Refresh.Set {
		sets = append(sets, sqlschema.Quote(s.fields.RefreshNonceHash)+" = ?")
		args = append(args, upd.Refresh.Value)
	}
	if upd.Access.Set {
		sets = append(sets, sqlschema.Quote(s.fields.AccessNonceHash)+" = ?")
		args = append(args, upd.Access.Value)
	}
	sets = append(sets, "updated_at = ?")
	args = append(args, toMillis(s.now()), rowID)

	query := "UPDATE users SET " + strings.Join(sets, ", ") + " WHERE id = ?"
	if upd.ExpectRefreshHash != "" {
		query += " AND " + sqlschema.Quote(s.fields.RefreshNonceHash) + " = ?"
		args = append(args, upd.ExpectRefreshHash)
	}

	res, err := s.sqlDB.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("sqlite update session: %w", err)
	}
	return res.RowsAffected()
}

func scanRecord(row *sql.Row, include []credential.Field) (*credential.Record, error) {
	var (
		rec       credential.Record
		id        int64
		attrs     string
		createdAt int64
		updatedAt int64
	)
	err := row.Scan(
		&id,
		&rec.Identifier,
		&rec.PasswordHash,
		&rec.RefreshNonceHash,
		&rec.AccessNonceHash,
		&attrs,
		&rec.Active,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, credential.ErrNotFound
		}
		return nil, fmt.Errorf("sqlite scan user: %w", err)
	}

	rec.ID = strconv.FormatInt(id, 10)
	rec.CreatedAt = fromMillis(createdAt)
	rec.UpdatedAt = fromMillis(updatedAt)
	if attrs != "" && attrs != "{}" {
		if err := json.Unmarshal([]byte(attrs), &rec.Attributes); err != nil {
			return nil, fmt.Errorf("sqlite decode attributes: %w", err)
		}
	}

	out := rec.Project(include)
	return &out, nil
}

func encodeAttributes(attrs map[string]string) (string, error) {
	if len(attrs) == 0 {
		return "{}", nil
	}
	b, err := json.Marshal(attrs)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func isUniqueViolation(err error) bool {
	var sqliteErr *sqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
			return true
		}
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
