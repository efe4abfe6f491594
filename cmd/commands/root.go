package commands

import (
	"log/slog"
	"os"

	"charm.land/lipgloss/v2"
	"github.com/urfave/cli/v3"

	"github.com/dohr-michael/quill/internal/config"
)

var (
	errorStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF6B6B")).Bold(true)
	mutedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#9CA3AF"))
	okStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#7EE2B8")).Bold(true)
)

// NewRootCommand returns the top-level CLI command.
func NewRootCommand() *cli.Command {
	return &cli.Command{
		Name:  "quill",
		Usage: "Streaming writing assistant: refine or continue text",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to config file",
				Value:   config.ConfigPath(),
			},
			&cli.BoolFlag{
				Name:  "debug",
				Usage: "Enable debug logging",
			},
		},
		Commands: []*cli.Command{
			NewInitCommand(),
			NewServeCommand(),
			NewRefinerCommand(),
			NewGenerateCommand(),
			NewModesCommand(),
			NewStatusCommand(),
			NewSecretCommand(),
		},
	}
}

func setupLogging(cmd *cli.Command) {
	if cmd.Bool("debug") {
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug})))
	}
}

// loadConfig reads the --config file, falling back to defaults when it is missing.
func loadConfig(cmd *cli.Command) (*config.Config, error) {
	path := cmd.String("config")
	cfg, err := config.LoadOrDefault(path)
	if err != nil {
		return nil, err
	}
	slog.Debug("config loaded", "path", path)
	return cfg, nil
}
