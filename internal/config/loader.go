package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/tailscale/hujson"
	"gopkg.in/yaml.v3"
)

var envTemplateRe = regexp.MustCompile(`\$\{\{\s*\.Env\.(\w+)\s*\}\}`)

// DefaultProvider is the provider name used when no models are configured.
const DefaultProvider = "main"

// Load reads a JSONC (or YAML, by extension) config file, expands
// ${{ .Env.VAR }} templates, unmarshals it into Config, and applies defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	expanded := []byte(expandEnvTemplates(string(data)))

	var cfg Config
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(expanded, &cfg); err != nil {
			return nil, fmt.Errorf("unmarshal config: %w", err)
		}
	default:
		std, err := hujson.Standardize(expanded)
		if err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
		if err := json.Unmarshal(std, &cfg); err != nil {
			return nil, fmt.Errorf("unmarshal config: %w", err)
		}
	}

	applyDefaults(&cfg)
	return &cfg, nil
}

// LoadOrDefault loads path, falling back to defaults when the file does not exist.
func LoadOrDefault(path string) (*Config, error) {
	cfg, err := Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		return Default(), nil
	}
	return cfg, err
}

// Default returns a config with every default applied.
func Default() *Config {
	var cfg Config
	applyDefaults(&cfg)
	return &cfg
}

// expandEnvTemplates replaces ${{ .Env.VAR }} with the env var value.
func expandEnvTemplates(s string) string {
	return envTemplateRe.ReplaceAllStringFunc(s, func(match string) string {
		parts := envTemplateRe.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}
		return os.Getenv(parts[1])
	})
}

// applyDefaults fills in zero-value fields with sensible defaults.
func applyDefaults(cfg *Config) {
	if cfg.Gateway.Host == "" {
		cfg.Gateway.Host = "127.0.0.1"
	}
	if cfg.Gateway.Port == 0 {
		cfg.Gateway.Port = 18420
	}
	if cfg.Gateway.MaxBodyBytes == 0 {
		cfg.Gateway.MaxBodyBytes = 64 << 10
	}
	if cfg.Events.BufferSize == 0 {
		cfg.Events.BufferSize = 1024
	}

	if len(cfg.Models.Providers) == 0 {
		cfg.Models.Providers = map[string]ProviderConfig{
			DefaultProvider: {Driver: "openai", Model: "gpt-4o-mini"},
		}
		if cfg.Models.Default == "" {
			cfg.Models.Default = DefaultProvider
		}
	}
	if cfg.Models.Default == "" && len(cfg.Models.Providers) == 1 {
		for name := range cfg.Models.Providers {
			cfg.Models.Default = name
		}
	}

	if cfg.Generate.MaxPromptChars == 0 {
		cfg.Generate.MaxPromptChars = 10000
	}

	if cfg.Refiner.Timeout == 0 {
		cfg.Refiner.Timeout = Duration(30 * time.Second)
	}
	if cfg.Refiner.Cadence == 0 {
		cfg.Refiner.Cadence = Duration(10 * time.Millisecond)
	}
	if cfg.Refiner.Host == "" {
		cfg.Refiner.Host = "127.0.0.1"
	}
	if cfg.Refiner.Port == 0 {
		cfg.Refiner.Port = 3030
	}

	if cfg.Health.Interval == 0 {
		cfg.Health.Interval = Duration(30 * time.Second)
	}
	// Auth resolution is deferred to models.ResolveAuth() at model init time.
}
