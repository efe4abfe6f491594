package config

import (
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration for Quill.
type Config struct {
	Gateway  GatewayConfig  `json:"gateway" yaml:"gateway"`
	Models   ModelsConfig   `json:"models" yaml:"models"`
	Generate GenerateConfig `json:"generate" yaml:"generate"`
	Refiner  RefinerConfig  `json:"refiner" yaml:"refiner"`
	Health   HealthConfig   `json:"health" yaml:"health"`
	Events   EventsConfig   `json:"events" yaml:"events"`
}

// GatewayConfig holds the mediator server settings.
type GatewayConfig struct {
	Host         string `json:"host" yaml:"host"`
	Port         int    `json:"port" yaml:"port"`
	MaxBodyBytes int64  `json:"max_body_bytes" yaml:"max_body_bytes"`
}

// ModelsConfig holds model provider configuration.
type ModelsConfig struct {
	Default   string                    `json:"default" yaml:"default"`
	Providers map[string]ProviderConfig `json:"providers" yaml:"providers"`
}

// ProviderConfig configures a single LLM provider.
type ProviderConfig struct {
	Driver    string         `json:"driver" yaml:"driver"` // "openai", "anthropic", "mistral", "ollama", "gemini", "mock"
	Model     string         `json:"model" yaml:"model"`
	BaseURL   string         `json:"base_url,omitempty" yaml:"base_url,omitempty"`
	Auth      AuthConfig     `json:"auth" yaml:"auth"`
	MaxTokens int            `json:"max_tokens,omitempty" yaml:"max_tokens,omitempty"`
	Timeout   Duration       `json:"timeout,omitempty" yaml:"timeout,omitempty"`
	Options   map[string]any `json:"options,omitempty" yaml:"options,omitempty"`
}

// AuthConfig configures API key resolution.
type AuthConfig struct {
	APIKey string `json:"api_key,omitempty" yaml:"api_key,omitempty"` // literal, ${VAR} or ENC[age:...]
	Token  string `json:"token,omitempty" yaml:"token,omitempty"`     // Bearer token
}

// GenerateConfig configures the streaming generation path.
type GenerateConfig struct {
	Provider       string `json:"provider" yaml:"provider"` // empty = models.default
	MaxPromptChars int    `json:"max_prompt_chars" yaml:"max_prompt_chars"`
}

// RefinerConfig configures the whole-text refinement path.
//
// BaseURL points at a refine service (see `quill refiner`). When it is empty
// and Provider is set, refinement runs in-process against that model.
// Host and Port are only used by the refine service itself.
type RefinerConfig struct {
	BaseURL  string   `json:"base_url" yaml:"base_url"`
	Provider string   `json:"provider" yaml:"provider"`
	Timeout  Duration `json:"timeout" yaml:"timeout"`
	Cadence  Duration `json:"cadence" yaml:"cadence"`
	Host     string   `json:"host" yaml:"host"`
	Port     int      `json:"port" yaml:"port"`
}

// HealthConfig configures backend probing.
type HealthConfig struct {
	Interval Duration `json:"interval" yaml:"interval"`
}

// EventsConfig holds event bus settings.
type EventsConfig struct {
	BufferSize int  `json:"buffer_size" yaml:"buffer_size"`
	Persist    bool `json:"persist" yaml:"persist"` // append events to ~/.quill/logs
}

// Duration wraps time.Duration for JSON and YAML unmarshaling.
type Duration time.Duration

func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	s := string(b)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}
	return d.parse(s)
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return []byte(`"` + time.Duration(d).String() + `"`), nil
}

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	return d.parse(value.Value)
}

func (d *Duration) parse(s string) error {
	dur, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(dur)
	return nil
}
