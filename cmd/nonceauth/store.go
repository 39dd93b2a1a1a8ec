package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/nigussolomon/nonceauth/credential"
	"github.com/nigussolomon/nonceauth/store/badgerstore"
	"github.com/nigussolomon/nonceauth/store/memstore"
	"github.com/nigussolomon/nonceauth/store/pgstore"
	"github.com/nigussolomon/nonceauth/store/redisstore"
	"github.com/nigussolomon/nonceauth/store/sqlstore"
)

// storeHandle owns a credential store and the resources behind it.
type storeHandle struct {
	credential.Store
	ping  func(context.Context) error
	close func() error
}

func (h *storeHandle) Ping(ctx context.Context) error {
	if h.ping == nil {
		return nil
	}
	return h.ping(ctx)
}

func (h *storeHandle) Close() error {
	if h.close == nil {
		return nil
	}
	return h.close()
}

// openStore connects the configured driver. SQL drivers are migrated before
// the store is returned.
func openStore(ctx context.Context, cfg storeConfig, fields credential.FieldMap, logger *slog.Logger) (*storeHandle, error) {
	switch cfg.Driver {
	case "memory":
		return &storeHandle{Store: memstore.New()}, nil

	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		s := redisstore.New(client, cfg.Redis.Prefix, fields)
		if _, err := s.Ping(ctx); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("redis: %w", err)
		}
		return &storeHandle{
			Store: s,
			ping: func(ctx context.Context) error {
				_, err := s.Ping(ctx)
				return err
			},
			close: client.Close,
		}, nil

	case "sqlite":
		s, err := sqlstore.Open(cfg.SQLite.Path, fields)
		if err != nil {
			return nil, fmt.Errorf("sqlite: %w", err)
		}
		return &storeHandle{Store: s, ping: s.DB().PingContext, close: s.Close}, nil

	case "postgres":
		pool, err := pgstore.NewPool(ctx, cfg.Postgres.URL, cfg.Postgres.MaxConns, cfg.Postgres.ConnectTimeout)
		if err != nil {
			return nil, fmt.Errorf("postgres: %w", err)
		}
		if err := pgstore.Migrate(ctx, pool, fields); err != nil {
			pool.Close()
			return nil, fmt.Errorf("postgres migrate: %w", err)
		}
		s, err := pgstore.New(pool, fields)
		if err != nil {
			pool.Close()
			return nil, err
		}
		return &storeHandle{
			Store: s,
			ping:  pool.Ping,
			close: func() error {
				pool.Close()
				return nil
			},
		}, nil

	case "badger":
		s, err := badgerstore.Open(cfg.Badger.Dir, logger)
		if err != nil {
			return nil, fmt.Errorf("badger: %w", err)
		}
		return &storeHandle{Store: s, close: s.Close}, nil

	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}
