package refine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/dohr-michael/quill/internal/prompt"
)

// Path returns the refine service endpoint for mode, or "" for modes the
// service does not handle.
func Path(mode prompt.Mode) string {
	switch mode {
	case prompt.Improve:
		return "/improve"
	case prompt.Fix:
		return "/fix"
	case prompt.Lengthen:
		return "/longer"
	case prompt.Shorten:
		return "/shorter"
	}
	return ""
}

// TextBody is the JSON body exchanged with the refine service.
type TextBody struct {
	Text string `json:"text"`
}

// HTTPBackend calls a remote refine service.
type HTTPBackend struct {
	baseURL string
	client  *http.Client
}

// NewHTTPBackend creates a backend for the service at baseURL.
func NewHTTPBackend(baseURL string, timeout time.Duration) *HTTPBackend {
	return &HTTPBackend{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

// Refine posts text to the endpoint of mode and returns the refined text.
func (b *HTTPBackend) Refine(ctx context.Context, text string, mode prompt.Mode) (string, error) {
	path := Path(mode)
	if path == "" {
		return "", fmt.Errorf("mode %s is not a refinement", mode)
	}

	payload, err := json.Marshal(TextBody{Text: text})
	if err != nil {
		return "", fmt.Errorf("marshal refine request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("create refine request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := b.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("refine request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var e struct {
			Error string `json:"error"`
		}
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		if json.Unmarshal(body, &e) == nil && e.Error != "" {
			return "", fmt.Errorf("refine service returned %d: %s", resp.StatusCode, e.Error)
		}
		return "", fmt.Errorf("refine service returned %d", resp.StatusCode)
	}

	var out TextBody
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode refine response: %w", err)
	}
	return out.Text, nil
}

// Ping checks that the refine service answers its health endpoint.
func (b *HTTPBackend) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.baseURL+"/api/health", nil)
	if err != nil {
		return err
	}
	resp, err := b.client.Do(req)
	if err != nil {
		return err
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("refine service health returned %d", resp.StatusCode)
	}
	return nil
}
