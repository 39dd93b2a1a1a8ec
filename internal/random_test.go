package internal

import (
	"testing"

	"github.com/google/uuid"
)

func TestNewNonceIsUniqueUUIDv4(t *testing.T) {
	seen := make(map[string]struct{}, 256)
	for i := 0; i < 256; i++ {
		n, err := NewNonce()
		if err != nil {
			t.Fatalf("NewNonce: %v", err)
		}
		id, err := uuid.Parse(n)
		if err != nil || id.Version() != 4 {
			t.Fatalf("expected UUIDv4, got %q (%v)", n, err)
		}
		if _, dup := seen[n]; dup {
			t.Fatalf("duplicate nonce %q", n)
		}
		seen[n] = struct{}{}
	}
}

func TestNewSecret(t *testing.T) {
	s, err := NewSecret(32)
	if err != nil {
		t.Fatalf("NewSecret: %v", err)
	}
	if len(s) != 43 {
		t.Fatalf("expected 43 base64url chars, got %d", len(s))
	}
	if _, err := NewSecret(0); err == nil {
		t.Fatal("expected error for zero size")
	}
}
