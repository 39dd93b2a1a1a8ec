// Package storetest is a conformance suite for credential.Store backends.
package storetest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/nigussolomon/nonceauth/credential"
)

// Factory returns an empty store. It is called once per subtest.
type Factory func(t *testing.T) credential.Store

// Run exercises every contract the engine relies on.
func Run(t *testing.T, newStore Factory) {
	t.Helper()

	t.Run("InsertAndFind", func(t *testing.T) { testInsertAndFind(t, newStore(t)) })
	t.Run("InsertDuplicate", func(t *testing.T) { testInsertDuplicate(t, newStore(t)) })
	t.Run("NotFound", func(t *testing.T) { testNotFound(t, newStore(t)) })
	t.Run("HiddenFields", func(t *testing.T) { testHiddenFields(t, newStore(t)) })
	t.Run("UpdateSession", func(t *testing.T) { testUpdateSession(t, newStore(t)) })
	t.Run("UpdateSessionMissingRow", func(t *testing.T) { testUpdateSessionMissingRow(t, newStore(t)) })
	t.Run("ClearRefreshCAS", func(t *testing.T) { testClearRefreshCAS(t, newStore(t)) })
	t.Run("ConcurrentClearRefresh", func(t *testing.T) { testConcurrentClearRefresh(t, newStore(t)) })
}

func insert(t *testing.T, s credential.Store, identifier string) *credential.Record {
	t.Helper()
	rec, err := s.Insert(context.Background(), credential.NewRecord(identifier, "pw-hash", map[string]string{"name": "Ann"}))
	if err != nil {
		t.Fatalf("Insert(%q): %v", identifier, err)
	}
	return rec
}

func testInsertAndFind(t *testing.T, s credential.Store) {
	ctx := context.Background()
	rec := insert(t, s, "a@x")

	if rec.ID == "" {
		t.Fatal("expected store-assigned id")
	}
	if rec.PasswordHash != "" || rec.RefreshNonceHash != "" || rec.AccessNonceHash != "" {
		t.Fatalf("Insert must return a record without hidden fields, got %+v", rec)
	}
	if rec.CreatedAt.IsZero() {
		t.Fatal("expected CreatedAt to be set")
	}

	byIdent, err := s.FindByIdentifier(ctx, "a@x")
	if err != nil {
		t.Fatalf("FindByIdentifier: %v", err)
	}
	if byIdent.ID != rec.ID || byIdent.Attributes["name"] != "Ann" || !byIdent.Active {
		t.Fatalf("unexpected record by identifier: %+v", byIdent)
	}

	byID, err := s.FindByID(ctx, rec.ID)
	if err != nil {
		t.Fatalf("FindByID: %v", err)
	}
	if byID.Identifier != "a@x" {
		t.Fatalf("unexpected record by id: %+v", byID)
	}
}

func testInsertDuplicate(t *testing.T, s credential.Store) {
	insert(t, s, "a@x")
	_, err := s.Insert(context.Background(), credential.NewRecord("a@x", "other", nil))
	if !errors.Is(err, credential.ErrExists) {
		t.Fatalf("expected ErrExists, got %v", err)
	}
}

func testNotFound(t *testing.T, s credential.Store) {
	ctx := context.Background()
	if _, err := s.FindByIdentifier(ctx, "ghost@x"); !errors.Is(err, credential.ErrNotFound) {
		t.Fatalf("FindByIdentifier: expected ErrNotFound, got %v", err)
	}
	if _, err := s.FindByID(ctx, "999999"); !errors.Is(err, credential.ErrNotFound) {
		t.Fatalf("FindByID: expected ErrNotFound, got %v", err)
	}
}

func testHiddenFields(t *testing.T, s credential.Store) {
	ctx := context.Background()
	rec := insert(t, s, "a@x")
	if _, err := s.UpdateSession(ctx, rec.ID, credential.SetSession("rh", "ah")); err != nil {
		t.Fatalf("UpdateSession: %v", err)
	}

	plain, err := s.FindByID(ctx, rec.ID)
	if err != nil {
		t.Fatalf("FindByID: %v", err)
	}
	if plain.PasswordHash != "" || plain.RefreshNonceHash != "" || plain.AccessNonceHash != "" {
		t.Fatalf("hidden fields leaked without include: %+v", plain)
	}

	withPw, err := s.FindByIdentifier(ctx, "a@x", credential.FieldPasswordHash)
	if err != nil {
		t.Fatalf("FindByIdentifier: %v", err)
	}
	if withPw.PasswordHash != "pw-hash" || withPw.RefreshNonceHash != "" {
		t.Fatalf("unexpected projection: %+v", withPw)
	}

	withNonces, err := s.FindByID(ctx, rec.ID, credential.FieldRefreshNonceHash, credential.FieldAccessNonceHash)
	if err != nil {
		t.Fatalf("FindByID: %v", err)
	}
	if withNonces.RefreshNonceHash != "rh" || withNonces.AccessNonceHash != "ah" || withNonces.PasswordHash != "" {
		t.Fatalf("unexpected projection: %+v", withNonces)
	}
}

func loadHashes(t *testing.T, s credential.Store, id string) (string, string) {
	t.Helper()
	rec, err := s.FindByID(context.Background(), id, credential.FieldRefreshNonceHash, credential.FieldAccessNonceHash)
	if err != nil {
		t.Fatalf("FindByID: %v", err)
	}
	return rec.RefreshNonceHash, rec.AccessNonceHash
}

func testUpdateSession(t *testing.T, s credential.Store) {
	ctx := context.Background()
	rec := insert(t, s, "a@x")

	n, err := s.UpdateSession(ctx, rec.ID, credential.SetSession("rh", "ah"))
	if err != nil || n != 1 {
		t.Fatalf("SetSession: n=%d err=%v", n, err)
	}
	if r, a := loadHashes(t, s, rec.ID); r != "rh" || a != "ah" {
		t.Fatalf("unexpected hashes r=%q a=%q", r, a)
	}

	n, err = s.UpdateSession(ctx, rec.ID, credential.ClearSession())
	if err != nil || n != 1 {
		t.Fatalf("ClearSession: n=%d err=%v", n, err)
	}
	if r, a := loadHashes(t, s, rec.ID); r != "" || a != "" {
		t.Fatalf("expected cleared hashes, got r=%q a=%q", r, a)
	}

	// Clearing an already-empty session still matches the row.
	n, err = s.UpdateSession(ctx, rec.ID, credential.ClearSession())
	if err != nil || n != 1 {
		t.Fatalf("second ClearSession: n=%d err=%v", n, err)
	}
}

func testUpdateSessionMissingRow(t *testing.T, s credential.Store) {
	n, err := s.UpdateSession(context.Background(), "999999", credential.ClearSession())
	if err != nil {
		t.Fatalf("UpdateSession on missing row should not error, got %v", err)
	}
	if n != 0 {
		t.Fatalf("expected 0 affected rows, got %d", n)
	}
}

func testClearRefreshCAS(t *testing.T, s credential.Store) {
	ctx := context.Background()
	rec := insert(t, s, "a@x")
	if _, err := s.UpdateSession(ctx, rec.ID, credential.SetSession("rh", "ah")); err != nil {
		t.Fatalf("UpdateSession: %v", err)
	}

	n, err := s.UpdateSession(ctx, rec.ID, credential.ClearRefresh("stale"))
	if err != nil || n != 0 {
		t.Fatalf("stale expect: n=%d err=%v", n, err)
	}
	if r, _ := loadHashes(t, s, rec.ID); r != "rh" {
		t.Fatalf("stale expect must not write, refresh=%q", r)
	}

	n, err = s.UpdateSession(ctx, rec.ID, credential.ClearRefresh("rh"))
	if err != nil || n != 1 {
		t.Fatalf("matching expect: n=%d err=%v", n, err)
	}
	r, a := loadHashes(t, s, rec.ID)
	if r != "" || a != "ah" {
		t.Fatalf("expected only refresh cleared, got r=%q a=%q", r, a)
	}

	n, err = s.UpdateSession(ctx, rec.ID, credential.ClearRefresh("rh"))
	if err != nil || n != 0 {
		t.Fatalf("replayed expect: n=%d err=%v", n, err)
	}
}

func testConcurrentClearRefresh(t *testing.T, s credential.Store) {
	ctx := context.Background()
	rec := insert(t, s, "a@x")
	if _, err := s.UpdateSession(ctx, rec.ID, credential.SetSession("rh", "ah")); err != nil {
		t.Fatalf("UpdateSession: %v", err)
	}

	const workers = 16
	var (
		wg   sync.WaitGroup
		wins atomic.Int64
		errc = make(chan error, workers)
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			n, err := s.UpdateSession(ctx, rec.ID, credential.ClearRefresh("rh"))
			if err != nil {
				errc <- fmt.Errorf("UpdateSession: %w", err)
				return
			}
			wins.Add(n)
		}()
	}
	wg.Wait()
	close(errc)
	for err := range errc {
		t.Fatal(err)
	}

	if got := wins.Load(); got != 1 {
		t.Fatalf("expected exactly one winning clear, got %d", got)
	}
}
