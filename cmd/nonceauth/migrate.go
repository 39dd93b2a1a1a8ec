package main

import (
	"fmt"
	"io"
	"os"

	"github.com/urfave/cli/v2"
)

func migrateCommand() *cli.Command {
	return &cli.Command{
		Name:  "migrate",
		Usage: "apply the bundled SQL migrations to the configured store",
		Action: func(c *cli.Context) error {
			cfg, err := loadConfig(c)
			if err != nil {
				return err
			}
			return migrate(c, cfg, c.App.Writer)
		},
	}
}

func migrate(c *cli.Context, cfg fileConfig, out io.Writer) error {
	if out == nil {
		out = os.Stdout
	}

	switch cfg.Store.Driver {
	case "sqlite", "postgres":
	default:
		fmt.Fprintf(out, "store %q has no schema to migrate\n", cfg.Store.Driver)
		return nil
	}

	logger, err := newLogger(cfg.Log, c.App.ErrWriter)
	if err != nil {
		return err
	}

	// Opening a SQL store applies every pending migration.
	store, err := openStore(c.Context, cfg.Store, cfg.Auth.Fields, logger)
	if err != nil {
		return err
	}
	if err := store.Close(); err != nil {
		return err
	}

	fmt.Fprintf(out, "%s schema is up to date\n", cfg.Store.Driver)
	return nil
}
