package models

import (
	"context"
	"time"

	einoopenai "github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"

	"github.com/dohr-michael/quill/internal/config"
)

const (
	defaultOpenAIModel   = "gpt-4o-mini"
	defaultMistralURL    = "https://api.mistral.ai/v1"
	defaultMistralModel  = "mistral-small-latest"
	defaultOpenAITimeout = 60 * time.Second
)

// NewOpenAI creates an OpenAI chat model.
func NewOpenAI(ctx context.Context, cfg config.ProviderConfig, auth ResolvedAuth) (model.BaseChatModel, error) {
	if cfg.Model == "" {
		cfg.Model = defaultOpenAIModel
	}
	return einoopenai.NewChatModel(ctx, openAICompatConfig(cfg, auth, defaultOpenAITimeout))
}

// NewMistral creates a Mistral AI chat model via the OpenAI-compatible API.
func NewMistral(ctx context.Context, cfg config.ProviderConfig, auth ResolvedAuth) (model.BaseChatModel, error) {
	if cfg.Model == "" {
		cfg.Model = defaultMistralModel
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultMistralURL
	}
	return einoopenai.NewChatModel(ctx, openAICompatConfig(cfg, auth, 5*time.Minute))
}

func openAICompatConfig(cfg config.ProviderConfig, auth ResolvedAuth, timeout time.Duration) *einoopenai.ChatModelConfig {
	modelConfig := &einoopenai.ChatModelConfig{
		APIKey:  auth.Value,
		Model:   cfg.Model,
		BaseURL: cfg.BaseURL,
		Timeout: timeout,
	}

	if cfg.MaxTokens > 0 {
		maxTokens := cfg.MaxTokens
		modelConfig.MaxCompletionTokens = &maxTokens
	}
	if cfg.Timeout.Duration() > 0 {
		modelConfig.Timeout = cfg.Timeout.Duration()
	}

	if temp, ok := floatOption(cfg, "temperature"); ok {
		t := float32(temp)
		modelConfig.Temperature = &t
	}
	if topP, ok := floatOption(cfg, "top_p"); ok {
		p := float32(topP)
		modelConfig.TopP = &p
	}
	return modelConfig
}

// floatOption reads a numeric provider option. JSON numbers decode as float64
// and YAML integers as int.
func floatOption(cfg config.ProviderConfig, key string) (float64, bool) {
	switch v := cfg.Options[key].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	}
	return 0, false
}
