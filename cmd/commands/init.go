package commands

import (
	"context"
	"fmt"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/dohr-michael/quill/internal/config"
)

// NewInitCommand returns the onboarding subcommand.
func NewInitCommand() *cli.Command {
	return &cli.Command{
		Name:   "init",
		Usage:  "Initialize the quill home directory (~/.quill)",
		Action: runInit,
	}
}

func runInit(_ context.Context, _ *cli.Command) error {
	root := config.QuillPath()
	created := false

	if _, err := os.Stat(root); err != nil {
		if err := os.MkdirAll(root, 0o755); err != nil {
			return fmt.Errorf("create dir %s: %w", root, err)
		}
		fmt.Printf("  Created %s\n", root)
		created = true
	}

	files := []struct {
		path, content string
		perm          os.FileMode
	}{
		{config.ConfigPath(), defaultConfig, 0o644},
		{config.DotenvPath(), defaultDotenv, 0o600},
	}
	for _, f := range files {
		if _, err := os.Stat(f.path); err == nil {
			continue
		}
		if err := os.WriteFile(f.path, []byte(f.content), f.perm); err != nil {
			return fmt.Errorf("write %s: %w", f.path, err)
		}
		fmt.Printf("  Created %s\n", f.path)
		created = true
	}

	if !created {
		fmt.Printf("%s is already set up. Nothing to do.\n", root)
		return nil
	}

	fmt.Println(initMessage(root))
	return nil
}

const defaultConfig = `{
	// Quill configuration

	"gateway": {
		"host": "127.0.0.1",
		"port": 18420
	},

	"models": {
		"default": "main",
		"providers": {
			"main": {
				"driver": "openai",
				"model": "gpt-4o-mini",
				"auth": {
					"api_key": "${{ .Env.OPENAI_API_KEY }}"
				},
				"max_tokens": 2048
			}

			// Local model via Ollama (no auth required)
			// "local": {
			// 	"driver": "ollama",
			// 	"model": "llama3.1:8b",
			// 	"base_url": "http://localhost:11434"
			// }
		}
	},

	"generate": {
		"max_prompt_chars": 10000
	},

	// Whole-text refinement. Point base_url at "quill refiner", or set
	// provider to refine in-process. With neither, refinement modes
	// fall back to streaming generation.
	"refiner": {
		// "base_url": "http://127.0.0.1:3030",
		"provider": "main",
		"timeout": "30s",
		"cadence": "10ms"
	},

	"health": {
		"interval": "30s"
	},

	// Append every lifecycle event to ~/.quill/logs/events-<date>.jsonl
	"events": {
		"persist": false
	}
}
`

const defaultDotenv = `# Quill environment variables
# This file is loaded automatically. Existing env vars are never overridden.
# Values may be ENC[age:...] blobs from "quill secret encrypt".

# OPENAI_API_KEY=sk-...
# ANTHROPIC_API_KEY=sk-ant-...
# GEMINI_API_KEY=...
`

func initMessage(root string) string {
	return fmt.Sprintf(`
  Quill is set up at %s

  Next steps:
    1. Put your API key in %s/.env (or run: quill secret encrypt --set OPENAI_API_KEY <key>)
    2. Adjust %s/config.jsonc if needed
    3. Run: quill serve
`, root, root, root)
}
