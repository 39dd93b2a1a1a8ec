package sqlstore

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/nigussolomon/nonceauth/credential"
	"github.com/nigussolomon/nonceauth/store/storetest"
)

func openTempStore(t *testing.T, fields credential.FieldMap) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "auth.db")
	store, err := Open(path, fields)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() {
		if err := store.Close(); err != nil {
			t.Fatalf("close store: %v", err)
		}
	})
	return store
}

func TestConformance(t *testing.T) {
	storetest.Run(t, func(t *testing.T) credential.Store {
		return openTempStore(t, credential.FieldMap{})
	})
}

func TestOpenRequiresPath(t *testing.T) {
	if _, err := Open("  ", credential.FieldMap{}); err == nil {
		t.Fatal("expected error for empty path")
	}
}

func TestMigrateIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "auth.db")
	store, err := Open(path, credential.FieldMap{})
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	if err := Migrate(context.Background(), store.DB(), credential.FieldMap{}); err != nil {
		t.Fatalf("second migrate: %v", err)
	}

	var count int
	if err := store.DB().QueryRow("SELECT COUNT(*) FROM schema_migrations").Scan(&count); err != nil {
		t.Fatalf("count migrations: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 applied migration, got %d", count)
	}
	_ = store.Close()

	reopened, err := Open(path, credential.FieldMap{})
	if err != nil {
		t.Fatalf("reopen store: %v", err)
	}
	_ = reopened.Close()
}

func TestMappedColumns(t *testing.T) {
	fields := credential.FieldMap{
		Identifier:       "username",
		Passkey:          "secret",
		RefreshNonceHash: "rt_hash",
		AccessNonceHash:  "at_hash",
	}
	store := openTempStore(t, fields)
	ctx := context.Background()

	rec, err := store.Insert(ctx, credential.NewRecord("bob", "pw-hash", nil))
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if _, err := store.UpdateSession(ctx, rec.ID, credential.SetSession("r1", "a1")); err != nil {
		t.Fatalf("UpdateSession: %v", err)
	}

	var rt, at string
	err = store.DB().QueryRow(`SELECT "rt_hash", "at_hash" FROM users WHERE "username" = ?`, "bob").Scan(&rt, &at)
	if err != nil {
		t.Fatalf("raw select: %v", err)
	}
	if rt != "r1" || at != "a1" {
		t.Fatalf("unexpected stored hashes %q %q", rt, at)
	}
}

func TestNonNumericIDMisses(t *testing.T) {
	store := openTempStore(t, credential.FieldMap{})
	ctx := context.Background()

	if _, err := store.FindByID(ctx, "abc"); err != credential.ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	n, err := store.UpdateSession(ctx, "abc", credential.ClearSession())
	if err != nil || n != 0 {
		t.Fatalf("expected 0 rows, got %d %v", n, err)
	}
}
