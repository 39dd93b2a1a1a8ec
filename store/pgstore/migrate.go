package pgstore

import (
	"context"
	"embed"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/nigussolomon/nonceauth/credential"
	"github.com/nigussolomon/nonceauth/store/internal/sqlschema"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// migrationLockID serializes concurrent Migrate calls across processes.
const migrationLockID int64 = 0x6e6f6e6365617574

// Migrate applies the bundled migrations at most once each. Each file runs
// in its own transaction under a transaction-scoped advisory lock.
func Migrate(ctx context.Context, pool *pgxpool.Pool, fields credential.FieldMap) error {
	if pool == nil {
		return fmt.Errorf("pgx pool is required")
	}

	migrations, err := sqlschema.Load(migrationFS, "migrations", fields.WithDefaults())
	if err != nil {
		return err
	}

	if _, err := pool.Exec(ctx, `
CREATE TABLE IF NOT EXISTS `+sqlschema.MigrationTable+` (
    name TEXT PRIMARY KEY,
    applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`); err != nil {
		return fmt.Errorf("ensure migration table: %w", err)
	}

	for _, m := range migrations {
		if err := applyOne(ctx, pool, m); err != nil {
			return err
		}
	}
	return nil
}

func applyOne(ctx context.Context, pool *pgxpool.Pool, m sqlschema.Migration) error {
	tx, err := pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin migration transaction %s: %w", m.Name, err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, "SELECT pg_advisory_xact_lock($1)", migrationLockID); err != nil {
		return fmt.Errorf("lock migrations: %w", err)
	}

	var applied bool
	if err := tx.QueryRow(ctx,
		"SELECT EXISTS (SELECT 1 FROM "+sqlschema.MigrationTable+" WHERE name = $1)", m.Name,
	).Scan(&applied); err != nil {
		return fmt.Errorf("check migration %s: %w", m.Name, err)
	}
	if applied {
		return nil
	}

	if _, err := tx.Exec(ctx, m.SQL); err != nil {
		return fmt.Errorf("exec migration %s: %w", m.Name, err)
	}
	if _, err := tx.Exec(ctx,
		"INSERT INTO "+sqlschema.MigrationTable+" (name) VALUES ($1) ON CONFLICT DO NOTHING", m.Name,
	); err != nil {
		return fmt.Errorf("record migration %s: %w", m.Name, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit migration %s: %w", m.Name, err)
	}
	return nil
}
