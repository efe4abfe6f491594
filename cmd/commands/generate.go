package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/urfave/cli/v3"
	"golang.org/x/term"

	"github.com/dohr-michael/quill/clients/api"
	"github.com/dohr-michael/quill/internal/dispatch"
	"github.com/dohr-michael/quill/internal/prompt"
)

const defaultServer = "http://127.0.0.1:18420"

// NewGenerateCommand returns the generate subcommand.
func NewGenerateCommand() *cli.Command {
	return &cli.Command{
		Name:      "generate",
		Aliases:   []string{"gen"},
		Usage:     "Stream a refinement or continuation of text from a running gateway",
		ArgsUsage: "[text...]",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "mode",
				Aliases: []string{"m"},
				Usage:   "Mode: default, continue, improve, fix, lengthen, shorten, apply-command",
				Value:   prompt.Continue.String(),
			},
			&cli.StringFlag{
				Name:  "command",
				Usage: "Instruction for apply-command mode",
			},
			serverFlag(),
			&cli.BoolFlag{
				Name:  "ws",
				Usage: "Stream over WebSocket instead of HTTP",
			},
			&cli.BoolFlag{
				Name:  "render",
				Usage: "Render the result as markdown when writing to a terminal",
			},
		},
		Action: runGenerate,
	}
}

func serverFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "server",
		Aliases: []string{"s"},
		Usage:   "Gateway base URL",
		Value:   defaultServer,
		Sources: cli.EnvVars("QUILL_SERVER"),
	}
}

func runGenerate(ctx context.Context, cmd *cli.Command) error {
	setupLogging(cmd)

	text, err := readInput(cmd.Args().Slice(), os.Stdin)
	if err != nil {
		return err
	}
	req := dispatch.Request{
		Prompt:  text,
		Mode:    prompt.ParseMode(cmd.String("mode")),
		Command: cmd.String("command"),
	}

	render := cmd.Bool("render") && term.IsTerminal(int(os.Stdout.Fd()))
	var (
		out io.Writer = os.Stdout
		buf strings.Builder
	)
	if render {
		out = &buf
	}

	client := api.New(cmd.String("server"))
	if cmd.Bool("ws") {
		err = generateWS(ctx, client, req, out)
	} else {
		err = client.Generate(ctx, req, out)
	}

	if render && buf.Len() > 0 {
		rendered, rerr := renderMarkdown(buf.String())
		if rerr != nil {
			rendered = buf.String()
		}
		fmt.Fprint(os.Stdout, rendered)
	} else if err == nil {
		fmt.Fprintln(os.Stdout)
	}

	return reportError(err)
}

func generateWS(ctx context.Context, client *api.Client, req dispatch.Request, out io.Writer) error {
	c, err := api.DialWS(ctx, client.WSURL())
	if err != nil {
		return err
	}
	defer c.Close()

	return c.Generate(req, func(s string) error {
		_, err := io.WriteString(out, s)
		return err
	})
}

// readInput joins args into the prompt, or reads stdin when no args are
// given and stdin is not a terminal.
func readInput(args []string, stdin *os.File) (string, error) {
	if len(args) > 0 {
		return strings.Join(args, " "), nil
	}
	if term.IsTerminal(int(stdin.Fd())) {
		return "", cli.Exit("no text given: pass it as arguments or pipe it on stdin", 2)
	}
	data, err := io.ReadAll(stdin)
	if err != nil {
		return "", fmt.Errorf("read stdin: %w", err)
	}
	return strings.TrimRight(string(data), "\n"), nil
}

func renderMarkdown(s string) (string, error) {
	width := 100
	if w, _, err := term.GetSize(int(os.Stdout.Fd())); err == nil && w > 0 {
		width = w
	}
	r, err := glamour.NewTermRenderer(glamour.WithAutoStyle(), glamour.WithWordWrap(width))
	if err != nil {
		return "", err
	}
	return r.Render(s)
}

// reportError prints API failures styled on stderr and maps them to exit
// code 1. Other errors are returned as is.
func reportError(err error) error {
	if err == nil {
		return nil
	}
	var apiErr *api.Error
	switch {
	case errors.As(err, &apiErr):
		fmt.Fprintln(os.Stderr, errorStyle.Render("error:"), apiErr.Message, mutedStyle.Render(fmt.Sprintf("(%d)", apiErr.Status)))
	case errors.Is(err, api.ErrTruncated):
		fmt.Fprintln(os.Stderr)
		fmt.Fprintln(os.Stderr, errorStyle.Render("error:"), "generation stopped before completion")
	default:
		return err
	}
	return cli.Exit("", 1)
}
