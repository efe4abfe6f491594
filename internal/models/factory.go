package models

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/model"

	"github.com/dohr-michael/quill/internal/config"
	"github.com/dohr-michael/quill/internal/secrets"
)

// CreateModel creates a chat model from a provider config.
func CreateModel(ctx context.Context, cfg config.ProviderConfig, keyring *secrets.Keyring) (model.BaseChatModel, error) {
	driver := strings.ToLower(cfg.Driver)
	switch driver {
	case "ollama":
		return NewOllama(ctx, cfg)
	case "mock":
		return NewMock(cfg), nil
	case "anthropic", "openai", "mistral", "gemini":
	default:
		return nil, fmt.Errorf("unknown driver: %s", cfg.Driver)
	}

	auth, err := ResolveAuth(cfg, keyring)
	if err != nil {
		return nil, err
	}

	switch driver {
	case "anthropic":
		return NewAnthropic(ctx, cfg, auth)
	case "openai":
		return NewOpenAI(ctx, cfg, auth)
	case "mistral":
		return NewMistral(ctx, cfg, auth)
	default:
		return NewGemini(ctx, cfg, auth)
	}
}
