package main

import (
	"bufio"
	"errors"
	"fmt"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/nigussolomon/nonceauth"
)

func hashCommand() *cli.Command {
	return &cli.Command{
		Name:      "hash",
		Usage:     "hash a passkey with the configured password algorithm",
		ArgsUsage: "[passkey]",
		Description: "Prints an encoded hash suitable for seeding a store directly. " +
			"Without an argument the passkey is read from the first line of stdin.",
		Action: func(c *cli.Context) error {
			cfg, err := loadConfig(c)
			if err != nil {
				return err
			}

			passkey := c.Args().First()
			if passkey == "" {
				line, err := bufio.NewReader(c.App.Reader).ReadString('\n')
				if err != nil && line == "" {
					return errors.New("passkey required as argument or on stdin")
				}
				passkey = strings.TrimRight(line, "\r\n")
			}
			if passkey == "" {
				return errors.New("passkey must not be empty")
			}

			hasher, err := nonceauth.NewHasher(cfg.Auth.Password.Algorithm, cfg.Auth.Password)
			if err != nil {
				return err
			}
			encoded, err := hasher.Hash(passkey)
			if err != nil {
				return err
			}
			fmt.Fprintln(c.App.Writer, encoded)
			return nil
		},
	}
}
