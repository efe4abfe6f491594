package commands

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/dohr-michael/quill/clients/api"
	"github.com/dohr-michael/quill/internal/prompt"
)

// NewModesCommand returns the modes subcommand.
func NewModesCommand() *cli.Command {
	return &cli.Command{
		Name:  "modes",
		Usage: "List the operating modes",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "remote",
				Usage: "Ask the running gateway instead of listing built-in modes",
			},
			serverFlag(),
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			var modes []api.ModeInfo
			if cmd.Bool("remote") {
				var err error
				modes, err = api.New(cmd.String("server")).Modes(ctx)
				if err != nil {
					return reportError(err)
				}
			} else {
				for _, m := range prompt.Modes() {
					modes = append(modes, api.ModeInfo{Name: m.String(), Refinement: m.IsRefinement()})
				}
			}

			for _, m := range modes {
				path := "generate"
				if m.Refinement {
					path = "refine, falls back to generate"
				}
				fmt.Printf("  %-14s %s\n", m.Name, mutedStyle.Render(path))
			}
			return nil
		},
	}
}
