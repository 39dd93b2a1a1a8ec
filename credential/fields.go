package credential

import (
	"errors"
	"regexp"
)

// FieldMap names the external fields that back each logical slot: request
// keys on the HTTP surface and column or hash-field names in the stores.
type FieldMap struct {
	Identifier       string `koanf:"identifier"`
	Passkey          string `koanf:"passkey"`
	RefreshNonceHash string `koanf:"refresh_nonce_hash"`
	AccessNonceHash  string `koanf:"access_nonce_hash"`
}

// DefaultFieldMap mirrors the classic users table layout.
func DefaultFieldMap() FieldMap {
	return FieldMap{
		Identifier:       "email",
		Passkey:          "password",
		RefreshNonceHash: "refresh_token",
		AccessNonceHash:  "access_token",
	}
}

var fieldNameRe = regexp.MustCompile(`^[a-z_][a-z0-9_]{0,62}$`)

// Stores keep these alongside the mapped fields.
var reservedFieldNames = map[string]struct{}{
	"id":         {},
	"attributes": {},
	"is_active":  {},
	"created_at": {},
	"updated_at": {},
}

// Validate requires every name to be a safe lower-case identifier and all
// names to be distinct, since stores interpolate them into queries.
func (m FieldMap) Validate() error {
	names := []string{m.Identifier, m.Passkey, m.RefreshNonceHash, m.AccessNonceHash}
	seen := make(map[string]struct{}, len(names))
	for _, n := range names {
		if !fieldNameRe.MatchString(n) {
			return errors.New("credential: invalid field name " + `"` + n + `"`)
		}
		if _, reserved := reservedFieldNames[n]; reserved {
			return errors.New("credential: reserved field name " + `"` + n + `"`)
		}
		if _, dup := seen[n]; dup {
			return errors.New("credential: duplicate field name " + `"` + n + `"`)
		}
		seen[n] = struct{}{}
	}
	return nil
}

// WithDefaults fills empty names from DefaultFieldMap.
func (m FieldMap) WithDefaults() FieldMap {
	d := DefaultFieldMap()
	if m.Identifier == "" {
		m.Identifier = d.Identifier
	}
	if m.Passkey == "" {
		m.Passkey = d.Passkey
	}
	if m.RefreshNonceHash == "" {
		m.RefreshNonceHash = d.RefreshNonceHash
	}
	if m.AccessNonceHash == "" {
		m.AccessNonceHash = d.AccessNonceHash
	}
	return m
}
