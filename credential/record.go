package credential

import (
	"maps"
	"time"
)

// Field names a hidden column that reads omit unless explicitly requested.
type Field uint8

const (
	FieldPasswordHash Field = iota + 1
	FieldRefreshNonceHash
	FieldAccessNonceHash
)

func (f Field) String() string {
	switch f {
	case FieldPasswordHash:
		return "password_hash"
	case FieldRefreshNonceHash:
		return "refresh_nonce_hash"
	case FieldAccessNonceHash:
		return "access_nonce_hash"
	default:
		return "unknown"
	}
}

// FieldSet is the include list passed to the Find* methods.
type FieldSet []Field

// Has reports whether f was requested.
func (s FieldSet) Has(f Field) bool {
	for _, v := range s {
		if v == f {
			return true
		}
	}
	return false
}

// Record is a stored user. The hash fields are populated only when the
// caller requested them and never serialize.
type Record struct {
	ID         string            `json:"id"`
	Identifier string            `json:"identifier"`
	Attributes map[string]string `json:"attributes,omitempty"`
	Active     bool              `json:"active"`
	CreatedAt  time.Time         `json:"created_at"`
	UpdatedAt  time.Time         `json:"updated_at"`

	PasswordHash     string `json:"-"`
	RefreshNonceHash string `json:"-"`
	AccessNonceHash  string `json:"-"`
}

// NewRecord builds an active record ready for Insert. ID and timestamps are
// assigned by the store.
func NewRecord(identifier, passwordHash string, attrs map[string]string) Record {
	return Record{
		Identifier:   identifier,
		PasswordHash: passwordHash,
		Attributes:   maps.Clone(attrs),
		Active:       true,
	}
}

// Project returns a copy of r with every hidden field not in include cleared.
// Backends that load whole rows use it to honor the include contract.
func (r Record) Project(include FieldSet) Record {
	if !include.Has(FieldPasswordHash) {
		r.PasswordHash = ""
	}
	if !include.Has(FieldRefreshNonceHash) {
		r.RefreshNonceHash = ""
	}
	if !include.Has(FieldAccessNonceHash) {
		r.AccessNonceHash = ""
	}
	r.Attributes = maps.Clone(r.Attributes)
	return r
}
