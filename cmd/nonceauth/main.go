package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"
)

// Build information, set via ldflags.
var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	if err := App().Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// App creates the CLI application.
func App() *cli.App {
	return &cli.App{
		Name:    "nonceauth",
		Usage:   "nonce-bound JWT authentication service",
		Version: fmt.Sprintf("%s (commit: %s)", version, commit),
		Flags:   globalFlags(),
		Commands: []*cli.Command{
			serveCommand(),
			migrateCommand(),
			hashCommand(),
		},
	}
}

func globalFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "config",
			Aliases: []string{"c"},
			Usage:   "path to a YAML configuration file",
			EnvVars: []string{"NONCEAUTH_CONFIG"},
		},
		&cli.StringFlag{
			Name:  "store",
			Usage: "credential store: memory, redis, sqlite, postgres, badger",
		},
		&cli.StringFlag{
			Name:  "log-level",
			Usage: "debug, info, warn or error",
		},
	}
}
