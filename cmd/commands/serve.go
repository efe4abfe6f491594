package commands

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/dohr-michael/quill/internal/config"
	"github.com/dohr-michael/quill/internal/dispatch"
	"github.com/dohr-michael/quill/internal/events"
	"github.com/dohr-michael/quill/internal/gateway"
	"github.com/dohr-michael/quill/internal/generate"
	"github.com/dohr-michael/quill/internal/health"
	"github.com/dohr-michael/quill/internal/heartbeat"
	"github.com/dohr-michael/quill/internal/models"
	"github.com/dohr-michael/quill/internal/refine"
	"github.com/dohr-michael/quill/internal/secrets"
	"github.com/dohr-michael/quill/internal/storage"
	"github.com/dohr-michael/quill/internal/stream"
)

// NewServeCommand returns the serve subcommand.
func NewServeCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Start the quill gateway",
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
				Usage: "Serve a scripted mock model instead of the configured providers",
			},
		},
		Action: runServe,
	}
}

func runServe(ctx context.Context, cmd *cli.Command) error {
	setupLogging(cmd)

	cfg, err := loadConfig(cmd)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if cmd.IsSet("host") {
		cfg.Gateway.Host = cmd.String("host")
	}
	if cmd.IsSet("port") {
		cfg.Gateway.Port = cmd.Int("port")
	}
	mock := cmd.Bool("mock")
	if mock {
		cfg.Models = mockModels()
		cfg.Generate.Provider = ""
	}

	bus := events.NewBus(cfg.Events.BufferSize)
	defer bus.Close()

	usage := storage.NewUsageTracker(bus)
	defer usage.Close()
	if cfg.Events.Persist {
		el := storage.NewEventLogger(config.LogsPath(), bus)
		defer el.Close()
		slog.Info("persisting events", "dir", config.LogsPath())
	}

	registry := models.NewRegistry(cfg.Models, secrets.NewKeyring(secrets.KeyPath()))
	d, pinger := newDispatcher(cfg, registry, bus)

	prober := health.NewProber(bus, 0)
	prober.Register(health.CheckGenerator, health.ModelCheck(registry, cfg.Generate.Provider))
	if pinger != nil {
		prober.Register(health.CheckRefiner, health.PingCheck(pinger))
	}
	if err := prober.Start(ctx, cfg.Health.Interval.Duration()); err != nil {
		return err
	}
	defer prober.Stop()

	reloader := config.NewReloader(cmd.String("config"), config.DotenvPath(), cfg)
	reloader.OnReload(func(c *config.Config) {
		if mock {
			return
		}
		registry.Reset(c.Models)
		slog.Info("model providers reloaded", "providers", registry.Names())
	})
	sighup := make(chan os.Signal, 1)
	signal.Notify(sighup, syscall.SIGHUP)
	defer signal.Stop(sighup)
	go reloader.Watch(ctx, sighup)

	server := gateway.NewServer(gateway.Options{
		Host:         cfg.Gateway.Host,
		Port:         cfg.Gateway.Port,
		MaxBodyBytes: cfg.Gateway.MaxBodyBytes,
		Dispatcher:   d,
		Bus:          bus,
		Health:       prober,
		Usage:        usage,
	})

	addr := net.JoinHostPort(cfg.Gateway.Host, strconv.Itoa(cfg.Gateway.Port))
	hb := heartbeat.NewWriter(heartbeatPath(), addr, 0)
	hb.Start()
	defer hb.Stop()

	return runUntilDone(ctx, server.Start, server.Shutdown)
}

// newDispatcher wires the refine and generate paths from cfg. The returned
// Pinger is the remote refine service, if one is configured.
func newDispatcher(cfg *config.Config, registry *models.Registry, bus *events.Bus) (*dispatch.Dispatcher, health.Pinger) {
	var (
		backend refine.Backend
		pinger  health.Pinger
	)
	switch {
	case cfg.Refiner.BaseURL != "":
		hb := refine.NewHTTPBackend(cfg.Refiner.BaseURL, cfg.Refiner.Timeout.Duration())
		backend, pinger = hb, hb
		slog.Info("refinement via service", "url", cfg.Refiner.BaseURL)
	case cfg.Refiner.Provider != "":
		backend = &refine.ModelBackend{Models: registry, Provider: cfg.Refiner.Provider}
		slog.Info("refinement in-process", "provider", cfg.Refiner.Provider)
	default:
		slog.Info("no refinement backend configured, refinement modes use generation")
	}

	var ra *refine.Adapter
	if backend != nil {
		ra = &refine.Adapter{
			Backend: backend,
			Cadence: stream.Cadence{Interval: cfg.Refiner.Cadence.Duration()},
		}
	}

	return &dispatch.Dispatcher{
		Refine:         ra,
		Generate:       &generate.Adapter{Models: registry, Provider: cfg.Generate.Provider, Bus: bus},
		Bus:            bus,
		MaxPromptChars: cfg.Generate.MaxPromptChars,
	}, pinger
}

func mockModels() config.ModelsConfig {
	return config.ModelsConfig{
		Default: config.DefaultProvider,
		Providers: map[string]config.ProviderConfig{
			config.DefaultProvider: {Driver: "mock"},
		},
	}
}

func heartbeatPath() string {
	return filepath.Join(config.QuillPath(), "heartbeat.json")
}

// runUntilDone runs start in the background and shuts down when ctx is done.
func runUntilDone(ctx context.Context, start func() error, shutdown func(context.Context) error) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- start()
	}()

	select {
	case <-ctx.Done():
		slog.Info("shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}
