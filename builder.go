package nonceauth

import (
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/nigussolomon/nonceauth/credential"
	"github.com/nigussolomon/nonceauth/internal"
	internalaudit "github.com/nigussolomon/nonceauth/internal/audit"
	"github.com/nigussolomon/nonceauth/internal/flows"
	"github.com/nigussolomon/nonceauth/jwt"
	"github.com/nigussolomon/nonceauth/password"
)

// Builder assembles an Engine. A Builder is single-use: the second Build
// call fails.
type Builder struct {
	config Config
	store  credential.Store

	passwordHasher Hasher
	nonceHasher    Hasher
	logger         *slog.Logger
	auditSink      AuditSink

	built bool
}

// New returns a Builder seeded with DefaultConfig.
func New() *Builder {
	return &Builder{
		config: DefaultConfig(),
	}
}

// WithConfig replaces the whole configuration.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithStore sets the credential store. Required.
func (b *Builder) WithStore(store credential.Store) *Builder {
	b.store = store
	return b
}

// WithPasswordHasher overrides the hasher selected by Password.Algorithm.
func (b *Builder) WithPasswordHasher(h Hasher) *Builder {
	b.passwordHasher = h
	return b
}

// WithNonceHasher overrides the hasher selected by Password.NonceAlgorithm.
func (b *Builder) WithNonceHasher(h Hasher) *Builder {
	b.nonceHasher = h
	return b
}

// WithLogger sets the structured logger. The default discards everything.
func (b *Builder) WithLogger(logger *slog.Logger) *Builder {
	b.logger = logger
	return b
}

// WithAuditSink sets the audit sink and enables the audit dispatcher.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithMetricsEnabled turns the in-process lifecycle counters on or off.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// WithLatencyHistograms records access validation latency. It has no effect
// unless metrics are enabled.
func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build validates the configuration and wires the Engine.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)
	cfg.Fields = cfg.Fields.WithDefaults()
	if b.auditSink != nil {
		cfg.Audit.Enabled = true
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if b.store == nil {
		return nil, errors.New("credential store required")
	}

	passwordHasher := b.passwordHasher
	if passwordHasher == nil {
		h, err := NewHasher(cfg.Password.Algorithm, cfg.Password)
		if err != nil {
			return nil, err
		}
		passwordHasher = h
	}
	if cfg.Password.Algorithm == AlgorithmBcrypt && cfg.Password.MaxLength > 72 {
		cfg.Password.MaxLength = 72
	}

	nonceHasher := b.nonceHasher
	if nonceHasher == nil {
		if cfg.Password.NonceAlgorithm == "" {
			nonceHasher = passwordHasher
		} else {
			h, err := NewHasher(cfg.Password.NonceAlgorithm, cfg.Password)
			if err != nil {
				return nil, err
			}
			nonceHasher = h
		}
	}

	access, refresh, err := newTokenManagers(cfg.JWT)
	if err != nil {
		return nil, err
	}

	logger := b.logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	var dummyHash string
	if h, err := passwordHasher.Hash("nonceauth-timing-equalizer"); err == nil {
		dummyHash = h
	}

	issue := flows.IssueDeps{
		Store:       b.store,
		NonceHasher: nonceHasher,
		Access:      access,
		Refresh:     refresh,
		NewNonce:    internal.NewNonce,
	}

	engine := &Engine{
		config:  cloneConfig(cfg),
		access:  access,
		refresh: refresh,
		logger:  logger,
		metrics: NewMetrics(cfg.Metrics),
		audit: internalaudit.NewDispatcher(internalaudit.Config{
			Enabled:    cfg.Audit.Enabled,
			BufferSize: cfg.Audit.BufferSize,
			DropIfFull: cfg.Audit.DropIfFull,
		}, b.auditSink),
		flows: flows.Deps{
			Register: flows.RegisterDeps{
				Store:            b.store,
				PasswordHasher:   passwordHasher,
				MinPasskeyLength: cfg.Password.MinLength,
				MaxPasskeyLength: cfg.Password.MaxLength,
			},
			Login: flows.LoginDeps{
				Store:            b.store,
				PasswordHasher:   passwordHasher,
				DummyHash:        dummyHash,
				MaxPasskeyLength: cfg.Password.MaxLength,
				Issue:            issue,
			},
			Refresh: flows.RefreshDeps{
				ParseRefresh:  refresh,
				Store:         b.store,
				NonceHasher:   nonceHasher,
				RevokeOnReuse: cfg.Session.RevokeOnRefreshReuse,
				Issue:         issue,
			},
			Logout: flows.LogoutDeps{Store: b.store},
			Validate: flows.ValidateDeps{
				ParseAccess: access,
				Store:       b.store,
				NonceHasher: nonceHasher,
			},
			Issue: issue,
		},
	}

	b.built = true
	return engine, nil
}

// NewHasher builds the hasher named by algorithm using cfg's cost
// parameters. Build calls it for both the passkey and the nonce hasher.
func NewHasher(algorithm string, cfg PasswordConfig) (Hasher, error) {
	switch algorithm {
	case AlgorithmArgon2id:
		return password.NewArgon2(password.Config{
			Memory:        cfg.Memory,
			Time:          cfg.Time,
			Parallelism:   cfg.Parallelism,
			SaltLength:    cfg.SaltLength,
			KeyLength:     cfg.KeyLength,
			MaxInputBytes: cfg.MaxLength,
		})
	case AlgorithmBcrypt:
		return password.NewBcrypt(cfg.BcryptCost)
	case AlgorithmSHA256:
		return password.NewDigest(), nil
	default:
		return nil, fmt.Errorf("unsupported hash algorithm %q", algorithm)
	}
}

func newTokenManagers(cfg JWTConfig) (*jwt.Manager, *jwt.Manager, error) {
	base := jwt.Config{
		SigningMethod: jwt.SigningMethod(cfg.SigningMethod),
		Issuer:        cfg.Issuer,
		Audience:      cfg.Audience,
		Leeway:        cfg.Leeway,
	}

	accessCfg := base
	accessCfg.Class = jwt.ClassAccess
	accessCfg.TTL = cfg.AccessTTL

	refreshCfg := base
	refreshCfg.Class = jwt.ClassRefresh
	refreshCfg.TTL = cfg.RefreshTTL

	if cfg.SigningMethod == "hs256" {
		accessCfg.PrivateKey = []byte(cfg.AccessSecret)
		refreshCfg.PrivateKey = []byte(cfg.refreshSecret())
	} else {
		accessCfg.PrivateKey = cloneBytes(cfg.PrivateKey)
		accessCfg.PublicKey = cloneBytes(cfg.PublicKey)
		refreshCfg.PrivateKey = cloneBytes(cfg.PrivateKey)
		refreshCfg.PublicKey = cloneBytes(cfg.PublicKey)
	}

	access, err := jwt.NewManager(accessCfg)
	if err != nil {
		return nil, nil, fmt.Errorf("access token manager: %w", err)
	}
	refresh, err := jwt.NewManager(refreshCfg)
	if err != nil {
		return nil, nil, fmt.Errorf("refresh token manager: %w", err)
	}
	return access, refresh, nil
}
