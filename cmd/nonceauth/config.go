package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/nigussolomon/nonceauth"
	"github.com/nigussolomon/nonceauth/internal"
	"github.com/nigussolomon/nonceauth/internal/confloader"
)

// devSecretBytes is the entropy of a generated development signing secret.
const devSecretBytes = 32

var storeDrivers = []string{"memory", "redis", "sqlite", "postgres", "badger"}

type fileConfig struct {
	Auth   nonceauth.Config `koanf:"auth"`
	Keys   keysConfig       `koanf:"keys"`
	Server serverConfig     `koanf:"server"`
	Log    logConfig        `koanf:"log"`
	Store  storeConfig      `koanf:"store"`
}

// keysConfig points at PEM files for ed25519 signing.
type keysConfig struct {
	PrivateKeyFile string `koanf:"private_key_file"`
	PublicKeyFile  string `koanf:"public_key_file"`
}

type serverConfig struct {
	Addr              string        `koanf:"addr"`
	ReadHeaderTimeout time.Duration `koanf:"read_header_timeout"`
	ShutdownTimeout   time.Duration `koanf:"shutdown_timeout"`
}

type logConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

type storeConfig struct {
	Driver   string         `koanf:"driver"`
	Redis    redisConfig    `koanf:"redis"`
	SQLite   sqliteConfig   `koanf:"sqlite"`
	Postgres postgresConfig `koanf:"postgres"`
	Badger   badgerConfig   `koanf:"badger"`
}

type redisConfig struct {
	Addr     string `koanf:"addr"`
	Password string `koanf:"password"`
	DB       int    `koanf:"db"`
	Prefix   string `koanf:"prefix"`
}

type sqliteConfig struct {
	Path string `koanf:"path"`
}

type postgresConfig struct {
	URL            string        `koanf:"url"`
	MaxConns       int32         `koanf:"max_conns"`
	ConnectTimeout time.Duration `koanf:"connect_timeout"`
}

type badgerConfig struct {
	// Dir is the data directory. Empty runs in memory.
	Dir string `koanf:"dir"`
}

func defaultConfig() fileConfig {
	return fileConfig{
		Auth: nonceauth.DefaultConfig(),
		Server: serverConfig{
			Addr:              ":8080",
			ReadHeaderTimeout: 5 * time.Second,
			ShutdownTimeout:   15 * time.Second,
		},
		Log: logConfig{
			Level:  "info",
			Format: "text",
		},
		Store: storeConfig{
			Driver: "memory",
			Redis: redisConfig{
				Addr:   "localhost:6379",
				Prefix: "nonceauth",
			},
			SQLite: sqliteConfig{Path: "nonceauth.db"},
			Postgres: postgresConfig{
				MaxConns:       10,
				ConnectTimeout: 5 * time.Second,
			},
		},
	}
}

// loadConfig layers defaults, the file, the environment and global flags,
// then reads key files.
func loadConfig(c *cli.Context) (fileConfig, error) {
	cfg := defaultConfig()

	loader := confloader.NewLoader()
	if err := loader.LoadFile(c.String("config")); err != nil {
		return cfg, err
	}
	if err := loader.LoadEnv(); err != nil {
		return cfg, err
	}

	overrides := map[string]any{}
	if c.IsSet("store") {
		overrides["store.driver"] = c.String("store")
	}
	if c.IsSet("log-level") {
		overrides["log.level"] = c.String("log-level")
	}
	if err := loader.LoadMap(overrides); err != nil {
		return cfg, err
	}

	if err := loader.Unmarshal(&cfg); err != nil {
		return cfg, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.readKeys(); err != nil {
		return cfg, err
	}
	return cfg, cfg.validate()
}

func (c *fileConfig) readKeys() error {
	if c.Keys.PrivateKeyFile != "" {
		b, err := os.ReadFile(c.Keys.PrivateKeyFile)
		if err != nil {
			return fmt.Errorf("read private key: %w", err)
		}
		c.Auth.JWT.PrivateKey = b
	}
	if c.Keys.PublicKeyFile != "" {
		b, err := os.ReadFile(c.Keys.PublicKeyFile)
		if err != nil {
			return fmt.Errorf("read public key: %w", err)
		}
		c.Auth.JWT.PublicKey = b
	}
	return nil
}

// devSecret generates an hs256 access secret when none is configured and
// the store is in memory. Users vanish on restart there, so tokens signed
// with a per-process secret lose nothing.
func (c *fileConfig) devSecret(logger *slog.Logger) error {
	jwt := &c.Auth.JWT
	if c.Store.Driver != "memory" || jwt.AccessSecret != "" || len(jwt.PrivateKey) > 0 {
		return nil
	}
	if m := strings.ToLower(jwt.SigningMethod); m != "" && m != "hs256" {
		return nil
	}

	secret, err := internal.NewSecret(devSecretBytes)
	if err != nil {
		return fmt.Errorf("generate access secret: %w", err)
	}
	jwt.AccessSecret = secret
	logger.Warn("generated ephemeral access secret for the memory store; tokens will not survive a restart")
	return nil
}

// validate checks the binary's own sections. The auth section is validated
// by the engine builder.
func (c *fileConfig) validate() error {
	if !slices.Contains(storeDrivers, c.Store.Driver) {
		return fmt.Errorf("unknown store driver %q", c.Store.Driver)
	}
	if c.Store.Driver == "postgres" && c.Store.Postgres.URL == "" {
		return errors.New("store.postgres.url is required")
	}
	if c.Server.Addr == "" {
		return errors.New("server.addr is required")
	}
	return nil
}
