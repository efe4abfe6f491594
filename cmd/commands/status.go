package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/dohr-michael/quill/clients/api"
	"github.com/dohr-michael/quill/internal/heartbeat"
)

// NewStatusCommand returns the status subcommand.
func NewStatusCommand() *cli.Command {
	return &cli.Command{
		Name:  "status",
		Usage: "Show quill gateway status",
		Flags: []cli.Flag{serverFlag()},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			status, hb, err := heartbeat.Check(heartbeatPath(), 2*time.Minute)
			if err != nil {
				return fmt.Errorf("check heartbeat: %w", err)
			}

			server := cmd.String("server")
			switch status {
			case heartbeat.StatusAlive:
				fmt.Printf("Gateway: %s (PID %d, %s, uptime %s)\n", okStyle.Render("ALIVE"), hb.PID, hb.Addr, hb.Uptime)
				if !cmd.IsSet("server") && hb.Addr != "" {
					server = "http://" + hb.Addr
				}
			case heartbeat.StatusStale:
				fmt.Printf("Gateway: %s (PID %d, last heartbeat %s ago)\n",
					errorStyle.Render("STALE"), hb.PID, time.Since(hb.Timestamp).Truncate(time.Second))
				return nil
			case heartbeat.StatusDead:
				fmt.Println("Gateway: NOT RUNNING")
				return nil
			}

			ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
			defer cancel()
			h, err := api.New(server).Health(ctx)
			if err != nil {
				fmt.Println(errorStyle.Render("  unreachable:"), err)
				return nil
			}
			fmt.Printf("  health: %s\n", h.Status)
			for _, b := range h.Backends {
				state := okStyle.Render("up")
				if !b.Available {
					state = errorStyle.Render("down")
				}
				line := fmt.Sprintf("  %-10s %s", b.Name, state)
				if b.Error != "" {
					line += " " + mutedStyle.Render(b.Error)
				}
				fmt.Println(line)
			}
			return nil
		},
	}
}
