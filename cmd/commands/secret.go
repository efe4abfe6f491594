package commands

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/dohr-michael/quill/internal/config"
	"github.com/dohr-michael/quill/internal/secrets"
)

// NewSecretCommand returns the secret subcommand.
func NewSecretCommand() *cli.Command {
	return &cli.Command{
		Name:  "secret",
		Usage: "Manage age-encrypted provider credentials",
		Commands: []*cli.Command{
			{
				Name:  "keygen",
				Usage: "Create the age identity used to decrypt ENC[age:...] values",
				Action: func(_ context.Context, _ *cli.Command) error {
					path := secrets.KeyPath()
					if err := secrets.GenerateIdentity(path); err != nil {
						return err
					}
					fmt.Printf("  Identity at %s\n", path)
					return nil
				},
			},
			{
				Name:      "encrypt",
				Usage:     "Encrypt a value for use in config.jsonc or .env",
				ArgsUsage: "<value>",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "set",
						Usage: "Store the encrypted value under this key in ~/.quill/.env",
					},
				},
				Action: runEncrypt,
			},
		},
	}
}

func runEncrypt(_ context.Context, cmd *cli.Command) error {
	value := cmd.Args().First()
	if value == "" {
		return cli.Exit("usage: quill secret encrypt <value>", 2)
	}

	sealed, err := secrets.NewKeyring(secrets.KeyPath()).Seal(value)
	if err != nil {
		return fmt.Errorf("encrypt: %w", err)
	}

	key := strings.TrimSpace(cmd.String("set"))
	if key == "" {
		fmt.Fprintln(os.Stdout, sealed)
		return nil
	}
	path := config.DotenvPath()
	if err := secrets.SetEntry(path, key, sealed); err != nil {
		return err
	}
	fmt.Printf("  %s stored in %s\n", key, path)
	return nil
}
