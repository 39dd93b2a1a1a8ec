package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/nigussolomon/nonceauth"
	"github.com/nigussolomon/nonceauth/httpapi"
	"github.com/nigussolomon/nonceauth/metrics/export/prometheus"
)

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "run the HTTP API",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "addr",
				Usage: "listen address, overrides server.addr",
			},
		},
		Action: func(c *cli.Context) error {
			cfg, err := loadConfig(c)
			if err != nil {
				return err
			}
			if c.IsSet("addr") {
				cfg.Server.Addr = c.String("addr")
			}

			logger, err := newLogger(cfg.Log, os.Stdout)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg, logger)
		},
	}
}

// buildServer wires the store, the engine and every route.
func buildServer(ctx context.Context, cfg fileConfig, logger *slog.Logger) (*http.Server, func(), error) {
	if err := cfg.devSecret(logger); err != nil {
		return nil, nil, err
	}

	store, err := openStore(ctx, cfg.Store, cfg.Auth.Fields, logger)
	if err != nil {
		return nil, nil, err
	}

	builder := nonceauth.New().
		WithConfig(cfg.Auth).
		WithStore(store).
		WithLogger(logger)
	if cfg.Auth.Audit.Enabled {
		builder = builder.WithAuditSink(nonceauth.NewSlogSink(logger))
	}
	engine, err := builder.Build()
	if err != nil {
		_ = store.Close()
		return nil, nil, err
	}

	mux := http.NewServeMux()
	httpapi.New(engine, logger).Register(mux)
	mux.Handle("GET /metrics", prometheus.NewCollector(engine).Handler())
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := store.Ping(r.Context()); err != nil {
			logger.WarnContext(r.Context(), "health check failed", slog.String("err", err.Error()))
			http.Error(w, "unavailable", http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte("ok"))
	})

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           mux,
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
	}
	cleanup := func() {
		engine.Close()
		if err := store.Close(); err != nil {
			logger.Error("close store", slog.String("err", err.Error()))
		}
	}
	return srv, cleanup, nil
}

func serve(ctx context.Context, cfg fileConfig, logger *slog.Logger) error {
	srv, cleanup, err := buildServer(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server listening",
			slog.String("addr", cfg.Server.Addr),
			slog.String("store", cfg.Store.Driver),
			slog.String("version", version),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down http server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
