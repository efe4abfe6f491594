package models

import (
	"context"
	"io"
	"net/http"
	"strings"
	"time"

	einoollama "github.com/cloudwego/eino-ext/components/model/ollama"
	"github.com/cloudwego/eino/components/model"

	"github.com/dohr-michael/quill/internal/config"
)

const defaultOllamaBaseURL = "http://localhost:11434"

// NewOllama creates an Ollama chat model. Ollama needs no credentials.
func NewOllama(ctx context.Context, cfg config.ProviderConfig) (model.BaseChatModel, error) {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultOllamaBaseURL
	}

	timeout := 300 * time.Second
	if cfg.Timeout.Duration() > 0 {
		timeout = cfg.Timeout.Duration()
	}

	opts := &einoollama.Options{}
	if cfg.MaxTokens > 0 {
		opts.NumPredict = cfg.MaxTokens
	}
	if temp, ok := floatOption(cfg, "temperature"); ok {
		opts.Temperature = float32(temp)
	}
	if numCtx, ok := floatOption(cfg, "num_ctx"); ok {
		opts.NumCtx = int(numCtx)
	}
	if topP, ok := floatOption(cfg, "top_p"); ok {
		opts.TopP = float32(topP)
	}

	return einoollama.NewChatModel(ctx, &einoollama.ChatModelConfig{
		BaseURL: baseURL,
		Model:   cfg.Model,
		Timeout: timeout,
		Options: opts,
		HTTPClient: &http.Client{
			Timeout:   timeout,
			Transport: &ollamaTransport{inner: http.DefaultTransport, provider: "ollama"},
		},
	})
}

// ollamaTransport turns transport failures and non-JSON answers (a reverse
// proxy saying "no available server", say) into ErrModelUnavailable.
type ollamaTransport struct {
	inner    http.RoundTripper
	provider string
}

func (t *ollamaTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := t.inner.RoundTrip(req)
	if err != nil {
		return nil, &ErrModelUnavailable{Provider: t.provider, Cause: err}
	}

	if resp.StatusCode >= 400 {
		return nil, t.unavailable(resp)
	}

	// application/json, or application/x-ndjson when streaming.
	if ct := resp.Header.Get("Content-Type"); ct != "" && !strings.Contains(ct, "json") {
		return nil, t.unavailable(resp)
	}
	return resp, nil
}

func (t *ollamaTransport) unavailable(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	resp.Body.Close()
	return &ErrModelUnavailable{
		Provider: t.provider,
		Body:     strings.TrimSpace(string(body)),
	}
}
