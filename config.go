package nonceauth

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/nigussolomon/nonceauth/credential"
)

// Config is the full engine configuration. Build copies it; later changes to
// the caller's value have no effect on a built Engine.
type Config struct {
	JWT      JWTConfig           `koanf:"jwt"`
	Password PasswordConfig      `koanf:"password"`
	Fields   credential.FieldMap `koanf:"fields"`
	Session  SessionConfig       `koanf:"session"`
	Routes   RoutesConfig        `koanf:"routes"`
	Audit    AuditConfig         `koanf:"audit"`
	Metrics  MetricsConfig       `koanf:"metrics"`
}

/*
====================================
JWT CONFIG
====================================
*/

// JWTConfig configures both token classes.
//
// With hs256, access tokens are signed with AccessSecret and refresh tokens
// with RefreshSecret, falling back to AccessSecret when it is empty. With
// ed25519 both classes share the key pair and are told apart by their class
// claim.
type JWTConfig struct {
	SigningMethod string        `koanf:"signing_method"` // "hs256" (default) or "ed25519"
	AccessSecret  string        `koanf:"access_secret"`
	RefreshSecret string        `koanf:"refresh_secret"`
	PrivateKey    []byte        `koanf:"-"`
	PublicKey     []byte        `koanf:"-"`
	AccessTTL     time.Duration `koanf:"access_ttl"`
	RefreshTTL    time.Duration `koanf:"refresh_ttl"`
	Issuer        string        `koanf:"issuer"`
	Audience      string        `koanf:"audience"`
	Leeway        time.Duration `koanf:"leeway"`
}

func (c JWTConfig) refreshSecret() string {
	if c.RefreshSecret != "" {
		return c.RefreshSecret
	}
	return c.AccessSecret
}

/*
====================================
PASSWORD CONFIG
====================================
*/

const (
	AlgorithmArgon2id = "argon2id"
	AlgorithmBcrypt   = "bcrypt"
	AlgorithmSHA256   = "sha256"
)

// PasswordConfig selects the passkey hasher and, optionally, a separate nonce
// hasher. An empty NonceAlgorithm reuses the passkey hasher.
type PasswordConfig struct {
	Algorithm      string `koanf:"algorithm"`
	NonceAlgorithm string `koanf:"nonce_algorithm"`

	Memory      uint32 `koanf:"memory"`
	Time        uint32 `koanf:"time"`
	Parallelism uint8  `koanf:"parallelism"`
	SaltLength  uint32 `koanf:"salt_length"`
	KeyLength   uint32 `koanf:"key_length"`

	BcryptCost int `koanf:"bcrypt_cost"`

	MinLength int `koanf:"min_length"`
	MaxLength int `koanf:"max_length"`
}

/*
====================================
SESSION / ROUTES / AUDIT / METRICS
====================================
*/

// SessionConfig tunes the rotation protocol.
type SessionConfig struct {
	// RevokeOnRefreshReuse clears both stored hashes when a refresh token
	// with a stale nonce is presented, forcing re-authentication.
	RevokeOnRefreshReuse bool `koanf:"revoke_on_refresh_reuse"`
}

// RoutesConfig configures the HTTP surface. The Engine itself never consults it.
type RoutesConfig struct {
	Prefix           string   `koanf:"prefix"`
	Disabled         []string `koanf:"disabled"`
	RefreshHeader    string   `koanf:"refresh_header"`
	RefreshBodyField string   `koanf:"refresh_body_field"`
}

// AuditConfig controls the async audit dispatcher.
type AuditConfig struct {
	Enabled    bool `koanf:"enabled"`
	BufferSize int  `koanf:"buffer_size"`
	DropIfFull bool `koanf:"drop_if_full"`
}

// MetricsConfig toggles in-process counters.
type MetricsConfig struct {
	Enabled                 bool `koanf:"enabled"`
	EnableLatencyHistograms bool `koanf:"enable_latency_histograms"`
}

// DefaultConfig returns the configuration used by New. JWT secrets are left
// empty and must be supplied.
func DefaultConfig() Config {
	return Config{
		JWT: JWTConfig{
			SigningMethod: "hs256",
			AccessTTL:     15 * time.Minute,
			RefreshTTL:    7 * 24 * time.Hour,
		},
		Password: PasswordConfig{
			Algorithm:   AlgorithmArgon2id,
			Memory:      65536,
			Time:        3,
			Parallelism: 2,
			SaltLength:  16,
			KeyLength:   32,
			BcryptCost:  10,
			MinLength:   1,
			MaxLength:   1024,
		},
		Fields: credential.DefaultFieldMap(),
		Routes: RoutesConfig{
			Prefix:           "/auth",
			RefreshHeader:    "x-refresh-token",
			RefreshBodyField: "refreshToken",
		},
		Audit: AuditConfig{
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.JWT.PrivateKey = cloneBytes(cfg.JWT.PrivateKey)
	out.JWT.PublicKey = cloneBytes(cfg.JWT.PublicKey)
	out.Routes.Disabled = slices.Clone(cfg.Routes.Disabled)
	return out
}

func cloneBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

// RouteDisabled reports whether the named route ("register", "login",
// "refresh", "logout", "me") is switched off. Names are matched
// case-insensitively and may carry the route prefix.
func (c Config) RouteDisabled(name string) bool {
	name = normalizeRoute(c.Routes.Prefix, name)
	for _, d := range c.Routes.Disabled {
		if normalizeRoute(c.Routes.Prefix, d) == name {
			return true
		}
	}
	return false
}

func normalizeRoute(prefix, name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	name = strings.TrimPrefix(name, strings.ToLower(prefix))
	return strings.Trim(name, "/")
}

/*
====================================
VALIDATION
====================================
*/

// Validate reports the first configuration error found.
func (c *Config) Validate() error {
	// JWT
	if c.JWT.AccessTTL <= 0 {
		return errors.New("JWT AccessTTL must be > 0")
	}
	if c.JWT.RefreshTTL <= 0 {
		return errors.New("JWT RefreshTTL must be > 0")
	}
	if c.JWT.Leeway < 0 || c.JWT.Leeway > 2*time.Minute {
		return errors.New("JWT Leeway must be within [0, 2m]")
	}
	switch c.JWT.SigningMethod {
	case "hs256":
		if c.JWT.AccessSecret == "" {
			return errors.New("hs256 requires AccessSecret")
		}
	case "ed25519":
		if len(c.JWT.PrivateKey) == 0 {
			return errors.New("ed25519 requires PrivateKey")
		}
		if len(c.JWT.PublicKey) == 0 {
			return errors.New("ed25519 requires PublicKey")
		}
	default:
		return errors.New("unsupported JWT signing method")
	}

	// Password
	switch c.Password.Algorithm {
	case AlgorithmArgon2id, AlgorithmBcrypt:
	default:
		return fmt.Errorf("unsupported password algorithm %q", c.Password.Algorithm)
	}
	switch c.Password.NonceAlgorithm {
	case "", AlgorithmArgon2id, AlgorithmBcrypt, AlgorithmSHA256:
	default:
		return fmt.Errorf("unsupported nonce algorithm %q", c.Password.NonceAlgorithm)
	}
	if c.Password.MinLength < 1 {
		return errors.New("Password MinLength must be >= 1")
	}
	if c.Password.MaxLength < c.Password.MinLength {
		return errors.New("Password MaxLength must be >= MinLength")
	}

	// Fields
	if err := c.Fields.Validate(); err != nil {
		return err
	}

	// Routes
	if strings.TrimSpace(c.Routes.RefreshHeader) == "" {
		return errors.New("Routes RefreshHeader must not be empty")
	}
	if strings.TrimSpace(c.Routes.RefreshBodyField) == "" {
		return errors.New("Routes RefreshBodyField must not be empty")
	}
	for _, d := range c.Routes.Disabled {
		if !slices.Contains(RouteNames, normalizeRoute(c.Routes.Prefix, d)) {
			return fmt.Errorf("unknown route %q in Routes Disabled", d)
		}
	}

	// Audit
	if c.Audit.BufferSize < 0 {
		return errors.New("Audit BufferSize must be >= 0")
	}

	return nil
}

// RouteNames lists the routes RoutesConfig.Disabled may name.
var RouteNames = []string{"register", "login", "refresh", "logout", "me"}
