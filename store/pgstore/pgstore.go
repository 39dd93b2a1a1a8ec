// Package pgstore is a PostgreSQL credential.Store over a pgx pool.
//
// The pool is owned by the caller; Store never closes it. Column names come
// from a validated credential.FieldMap and are always quoted.
package pgstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/nigussolomon/nonceauth/credential"
	"github.com/nigussolomon/nonceauth/store/internal/sqlschema"
)

// Store implements credential persistence over PostgreSQL.
type Store struct {
	pool   *pgxpool.Pool
	fields credential.FieldMap
	now    func() time.Time

	selectCols string
}

var _ credential.Store = (*Store)(nil)

// New returns a Store over pool. Call Migrate first on a fresh database.
func New(pool *pgxpool.Pool, fields credential.FieldMap) (*Store, error) {
	if pool == nil {
		return nil, errors.New("pgstore: nil pool")
	}
	fields = fields.WithDefaults()
	if err := fields.Validate(); err != nil {
		return nil, err
	}
	return &Store{
		pool:       pool,
		fields:     fields,
		now:        time.Now,
		selectCols: sqlschema.Columns(fields),
	}, nil
}

// NewPool builds a pgxpool from url and checks connectivity within timeout.
func NewPool(ctx context.Context, url string, maxConns int32, timeout time.Duration) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, err
	}
	if maxConns > 0 {
		cfg.MaxConns = maxConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}

	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}

func (s *Store) FindByIdentifier(ctx context.Context, identifier string, include ...credential.Field) (*credential.Record, error) {
	row := s.pool.QueryRow(ctx,
		"SELECT "+s.selectCols+" FROM users WHERE "+sqlschema.Quote(s.fields.Identifier)+" = $1",
		identifier,
	)
	return scanRecord(row, include)
}

func (s *Store) FindByID(ctx context.Context, id string, include ...credential.Field) (*credential.Record, error) {
	rowID, err := strconv.ParseInt(id, 10, 64)
	if err != nil {
		return nil, credential.ErrNotFound
	}
	row := s.pool.QueryRow(ctx, "SELECT "+s.selectCols+" FROM users WHERE id = $1", rowID)
	return scanRecord(row, include)
}

func (s *Store) Insert(ctx context.Context, rec credential.Record) (*credential.Record, error) {
	attrs, err := encodeAttributes(rec.Attributes)
	if err != nil {
		return nil, err
	}
	now := s.now().UTC().Truncate(time.Microsecond)

	var id int64
	err = s.pool.QueryRow(ctx,
		"INSERT INTO users ("+
			sqlschema.Quote(s.fields.Identifier)+", "+
			sqlschema.Quote(s.fields.Passkey)+", "+
			"attributes, is_active, created_at, updated_at) VALUES ($1, $2, $3, $4, $5, $5) RETURNING id",
		rec.Identifier, rec.PasswordHash, attrs, rec.Active, now,
	).Scan(&id)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, credential.ErrExists
		}
		return nil, fmt.Errorf("pgstore insert user: %w", err)
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
	next := func(v any) string {
		args = append(args, v)
		return "$" + strconv.Itoa(len(args))
	}

	if upd.Refresh.Set {
		sets = append(sets, sqlschema.Quote(s.fields.RefreshNonceHash)+" = "+next(upd.Refresh.Value))
	}
	if upd.Access.Set {
		sets = append(sets, sqlschema.Quote(s.fields.AccessNonceHash)+" = "+next(upd.Access.Value))
	}
	sets = append(sets, "updated_at = "+next(s.now().UTC()))

	query := "UPDATE users SET " + strings.Join(sets, ", ") + " WHERE id = " + next(rowID)
	if upd.ExpectRefreshHash != "" {
		query += " AND " + sqlschema.Quote(s.fields.RefreshNonceHash) + " = " + next(upd.ExpectRefreshHash)
	}

	ct, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("pgstore update session: %w", err)
	}
	return ct.RowsAffected(), nil
}

func scanRecord(row pgx.Row, include []credential.Field) (*credential.Record, error) {
	var (
		rec   credential.Record
		id    int64
		attrs []byte
	)
	err := row.Scan(
		&id,
		&rec.Identifier,
		&rec.PasswordHash,
		&rec.RefreshNonceHash,
		&rec.AccessNonceHash,
		&attrs,
		&rec.Active,
		&rec.CreatedAt,
		&rec.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, credential.ErrNotFound
		}
		return nil, fmt.Errorf("pgstore scan user: %w", err)
	}

	rec.ID = strconv.FormatInt(id, 10)
	rec.CreatedAt = rec.CreatedAt.UTC()
	rec.UpdatedAt = rec.UpdatedAt.UTC()
	if len(attrs) > 0 && string(attrs) != "{}" {
		if err := json.Unmarshal(attrs, &rec.Attributes); err != nil {
			return nil, fmt.Errorf("pgstore decode attributes: %w", err)
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
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == "23505" // unique_violation
}
