package commands

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/urfave/cli/v3"

	"github.com/dohr-michael/quill/internal/gateway"
	"github.com/dohr-michael/quill/internal/models"
	"github.com/dohr-michael/quill/internal/refine"
	"github.com/dohr-michael/quill/internal/secrets"
)

// NewRefinerCommand returns the refiner subcommand.
func NewRefinerCommand() *cli.Command {
	return &cli.Command{
		Name:  "refiner",
		Usage: "Start the whole-text refine service",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "host",
				Usage: "Host to listen on",
			},
			&cli.IntFlag{
				Name:  "port",
				Usage: "Port to listen on",
			},
			&cli.BoolFlag{
				Name:  "mock",
				Usage: "Refine with a scripted mock model",
			},
		},
		Action: runRefiner,
	}
}

func runRefiner(ctx context.Context, cmd *cli.Command) error {
	setupLogging(cmd)

	cfg, err := loadConfig(cmd)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if cmd.IsSet("host") {
		cfg.Refiner.Host = cmd.String("host")
	}
	if cmd.IsSet("port") {
		cfg.Refiner.Port = cmd.Int("port")
	}
	if cmd.Bool("mock") {
		cfg.Models = mockModels()
		cfg.Refiner.Provider = ""
	}

	registry := models.NewRegistry(cfg.Models, secrets.NewKeyring(secrets.KeyPath()))
	provider := cfg.Refiner.Provider
	if provider == "" {
		provider = registry.DefaultName()
	}
	if _, err := registry.Get(ctx, provider); err != nil {
		slog.Warn("refine model not ready, requests will fail until it is", "provider", provider, "error", err)
	}

	backend := &refine.ModelBackend{Models: registry, Provider: provider}
	server := gateway.NewRefineServer(backend, cfg.Refiner.Host, cfg.Refiner.Port, cfg.Gateway.MaxBodyBytes)
	return runUntilDone(ctx, server.Start, server.Shutdown)
}
