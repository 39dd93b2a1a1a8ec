package redisstore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/nigussolomon/nonceauth/credential"
	"github.com/nigussolomon/nonceauth/store/storetest"
	"github.com/redis/go-redis/v9"
)

func newRedisStoreTest(t *testing.T, fields credential.FieldMap) (*Store, *miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return New(rdb, "na", fields), mr, rdb
}

func TestConformance(t *testing.T) {
	storetest.Run(t, func(t *testing.T) credential.Store {
		s, _, _ := newRedisStoreTest(t, credential.FieldMap{})
		return s
	})
}

func TestMappedFieldNames(t *testing.T) {
	fields := credential.FieldMap{
		Identifier:       "username",
		Passkey:          "secret",
		RefreshNonceHash: "rt_hash",
		AccessNonceHash:  "at_hash",
	}
	s, mr, _ := newRedisStoreTest(t, fields)
	ctx := context.Background()

	rec, err := s.Insert(ctx, credential.NewRecord("bob", "pw-hash", nil))
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if _, err := s.UpdateSession(ctx, rec.ID, credential.SetSession("r1", "a1")); err != nil {
		t.Fatalf("UpdateSession: %v", err)
	}

	key := "na:user:" + rec.ID
	if got := mr.HGet(key, "username"); got != "bob" {
		t.Fatalf("expected identifier under username, got %q", got)
	}
	if got := mr.HGet(key, "secret"); got != "pw-hash" {
		t.Fatalf("expected password under secret, got %q", got)
	}
	if got := mr.HGet(key, "rt_hash"); got != "r1" {
		t.Fatalf("expected refresh hash under rt_hash, got %q", got)
	}
	if got := mr.HGet(key, "at_hash"); got != "a1" {
		t.Fatalf("expected access hash under at_hash, got %q", got)
	}
	if got, _ := mr.Get("na:ident:bob"); got != rec.ID {
		t.Fatalf("expected identifier index to hold id, got %q", got)
	}
}

func TestCorruptAttributes(t *testing.T) {
	s, mr, _ := newRedisStoreTest(t, credential.FieldMap{})
	ctx := context.Background()

	rec, err := s.Insert(ctx, credential.NewRecord("a@x", "pw-hash", map[string]string{"k": "v"}))
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}
	mr.HSet("na:user:"+rec.ID, fieldAttributes, "{not json")

	if _, err := s.FindByID(ctx, rec.ID); !errors.Is(err, ErrRecordCorrupt) {
		t.Fatalf("expected ErrRecordCorrupt, got %v", err)
	}
}

func TestUnavailable(t *testing.T) {
	s, mr, _ := newRedisStoreTest(t, credential.FieldMap{})
	mr.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if _, err := s.FindByIdentifier(ctx, "a@x"); !errors.Is(err, ErrRedisUnavailable) {
		t.Fatalf("expected ErrRedisUnavailable, got %v", err)
	}
	if _, err := s.Ping(ctx); !errors.Is(err, ErrRedisUnavailable) {
		t.Fatalf("expected ping failure, got %v", err)
	}
}
