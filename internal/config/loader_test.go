package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad(t *testing.T) {
	content := `{
	// This is a JSONC comment
	"gateway": {
		"host": "0.0.0.0",
		"port": 9999,
	},
	"models": {
		"default": "claude",
		"providers": {
			"claude": {
				"driver": "anthropic",
				"model": "claude-sonnet-4-6",
				"auth": {
					"api_key": "${{ .Env.ANTHROPIC_API_KEY }}"
				},
				"max_tokens": 4096
			}
		}
	},
	"refiner": {
		"base_url": "http://localhost:3030",
		"cadence": "25ms"
	}
}`
	path := writeConfig(t, "config.jsonc", content)
	t.Setenv("ANTHROPIC_API_KEY", "test-key-123")

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}

	if cfg.Gateway.Host != "0.0.0.0" {
		t.Errorf("expected host 0.0.0.0, got %s", cfg.Gateway.Host)
	}
	if cfg.Gateway.Port != 9999 {
		t.Errorf("expected port 9999, got %d", cfg.Gateway.Port)
	}
	if cfg.Models.Default != "claude" {
		t.Errorf("expected default claude, got %s", cfg.Models.Default)
	}

	p, ok := cfg.Models.Providers["claude"]
	if !ok {
		t.Fatal("expected claude provider")
	}
	if p.Auth.APIKey != "test-key-123" {
		t.Errorf("expected api_key test-key-123, got %s", p.Auth.APIKey)
	}
	if p.MaxTokens != 4096 {
		t.Errorf("expected max_tokens 4096, got %d", p.MaxTokens)
	}
	if cfg.Refiner.BaseURL != "http://localhost:3030" {
		t.Errorf("expected refiner base_url, got %q", cfg.Refiner.BaseURL)
	}
	if cfg.Refiner.Cadence.Duration() != 25*time.Millisecond {
		t.Errorf("expected cadence 25ms, got %s", cfg.Refiner.Cadence.Duration())
	}
}

func TestLoad_YAML(t *testing.T) {
	content := `
gateway:
  port: 8080
models:
  default: local
  providers:
    local:
      driver: ollama
      model: llama3.2
      timeout: 2m
refiner:
  provider: local
`
	path := writeConfig(t, "config.yaml", content)

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Gateway.Port != 8080 {
		t.Errorf("expected port 8080, got %d", cfg.Gateway.Port)
	}
	p := cfg.Models.Providers["local"]
	if p.Driver != "ollama" || p.Timeout.Duration() != 2*time.Minute {
		t.Errorf("unexpected provider: %+v", p)
	}
	if cfg.Refiner.Provider != "local" {
		t.Errorf("expected refiner provider local, got %q", cfg.Refiner.Provider)
	}
}

func TestLoadDefaults(t *testing.T) {
	path := writeConfig(t, "config.jsonc", `{}`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}

	if cfg.Gateway.Host != "127.0.0.1" {
		t.Errorf("expected default host 127.0.0.1, got %s", cfg.Gateway.Host)
	}
	if cfg.Gateway.Port != 18420 {
		t.Errorf("expected default port 18420, got %d", cfg.Gateway.Port)
	}
	if cfg.Events.BufferSize != 1024 {
		t.Errorf("expected default buffer 1024, got %d", cfg.Events.BufferSize)
	}
	if cfg.Generate.MaxPromptChars != 10000 {
		t.Errorf("expected default max prompt 10000, got %d", cfg.Generate.MaxPromptChars)
	}
	if cfg.Refiner.Cadence.Duration() != 10*time.Millisecond {
		t.Errorf("expected default cadence 10ms, got %s", cfg.Refiner.Cadence.Duration())
	}
	if cfg.Models.Default != DefaultProvider {
		t.Errorf("expected default provider %q, got %q", DefaultProvider, cfg.Models.Default)
	}
	p := cfg.Models.Providers[DefaultProvider]
	if p.Driver != "openai" || p.Model != "gpt-4o-mini" {
		t.Errorf("unexpected default provider: %+v", p)
	}
}

func TestLoadDefaults_SingleProviderBecomesDefault(t *testing.T) {
	path := writeConfig(t, "config.jsonc", `{"models": {"providers": {"only": {"driver": "mock"}}}}`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Models.Default != "only" {
		t.Errorf("expected default 'only', got %q", cfg.Models.Default)
	}
}

func TestLoadOrDefault_MissingFile(t *testing.T) {
	cfg, err := LoadOrDefault(filepath.Join(t.TempDir(), "nope.jsonc"))
	if err != nil {
		t.Fatalf("LoadOrDefault: %v", err)
	}
	if cfg.Gateway.Port != 18420 {
		t.Errorf("expected defaults, got port %d", cfg.Gateway.Port)
	}
}

func TestLoad_InvalidJSONC(t *testing.T) {
	path := writeConfig(t, "config.jsonc", `{"gateway": `)
	if _, err := Load(path); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestExpandEnvTemplates(t *testing.T) {
	t.Setenv("TEST_KEY", "my-secret")
	result := expandEnvTemplates(`{"key": "${{ .Env.TEST_KEY }}"}`)
	expected := `{"key": "my-secret"}`
	if result != expected {
		t.Errorf("expected %s, got %s", expected, result)
	}
}
