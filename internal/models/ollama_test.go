package models

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/dohr-michael/quill/internal/config"
)

func roundTrip(t *testing.T, h http.HandlerFunc) (*http.Response, error) {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	transport := &ollamaTransport{inner: http.DefaultTransport, provider: "ollama"}
	req, _ := http.NewRequest(http.MethodPost, srv.URL+"/api/chat", nil)
	return transport.RoundTrip(req)
}

func TestOllamaTransport_Responses(t *testing.T) {
	cases := []struct {
		name        string
		status      int
		contentType string
		body        string
		wantErr     bool
	}{
		{"json", 200, "application/json", `{"model":"m"}`, false},
		{"ndjson stream", 200, "application/x-ndjson", `{"done":false}` + "\n", false},
		{"no content type", 200, "", `{}`, false},
		{"html from proxy", 200, "text/html", "<h1>Bad Gateway</h1>", true},
		{"plain text", 200, "text/plain", "no available server", true},
		{"model missing", 404, "application/json", `{"error":"model not found"}`, true},
		{"overloaded", 503, "text/plain", "service unavailable", true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp, err := roundTrip(t, func(w http.ResponseWriter, r *http.Request) {
				if tc.contentType != "" {
					w.Header().Set("Content-Type", tc.contentType)
				} else {
					w.Header()["Content-Type"] = nil
				}
				w.WriteHeader(tc.status)
				io.WriteString(w, tc.body)
			})

			if !tc.wantErr {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				got, _ := io.ReadAll(resp.Body)
				resp.Body.Close()
				if string(got) != tc.body {
					t.Errorf("body = %q, want %q", got, tc.body)
				}
				return
			}

			var unavail *ErrModelUnavailable
			if !errors.As(err, &unavail) {
				t.Fatalf("err = %v, want ErrModelUnavailable", err)
			}
			if unavail.Provider != "ollama" || unavail.Body != strings.TrimSpace(tc.body) {
				t.Errorf("got %+v", unavail)
			}
		})
	}
}

func TestOllamaTransport_TruncatesBody(t *testing.T) {
	_, err := roundTrip(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		io.WriteString(w, strings.Repeat("x", 4096))
	})

	var unavail *ErrModelUnavailable
	if !errors.As(err, &unavail) {
		t.Fatalf("err = %v, want ErrModelUnavailable", err)
	}
	if len(unavail.Body) != 512 {
		t.Errorf("body length = %d, want 512", len(unavail.Body))
	}
	if !strings.HasPrefix(err.Error(), "ollama unavailable: xxx") {
		t.Errorf("message = %.40q", err.Error())
	}
}

func TestOllamaTransport_Unreachable(t *testing.T) {
	transport := &ollamaTransport{inner: http.DefaultTransport, provider: "local"}
	req, _ := http.NewRequest(http.MethodPost, "http://127.0.0.1:1/api/chat", nil)
	_, err := transport.RoundTrip(req)

	var unavail *ErrModelUnavailable
	if !errors.As(err, &unavail) {
		t.Fatalf("err = %v, want ErrModelUnavailable", err)
	}
	if unavail.Cause == nil || unavail.Body != "" {
		t.Errorf("got %+v, want a cause and no body", unavail)
	}
	if !strings.HasPrefix(err.Error(), "local unavailable: ") {
		t.Errorf("message = %q", err.Error())
	}
}

func TestFloatOption(t *testing.T) {
	cfg := config.ProviderConfig{Options: map[string]any{
		"temperature": 0.2,
		"num_ctx":     8192,
		"top_p":       "0.9",
	}}

	if v, ok := floatOption(cfg, "temperature"); !ok || v != 0.2 {
		t.Errorf("temperature = %v, %v", v, ok)
	}
	if v, ok := floatOption(cfg, "num_ctx"); !ok || v != 8192 {
		t.Errorf("num_ctx = %v, %v", v, ok)
	}
	if _, ok := floatOption(cfg, "top_p"); ok {
		t.Error("string option should be ignored")
	}
	if _, ok := floatOption(config.ProviderConfig{}, "temperature"); ok {
		t.Error("missing option should be ignored")
	}
}

func TestNewOllama_BuildsWithoutServer(t *testing.T) {
	m, err := NewOllama(context.Background(), config.ProviderConfig{
		Driver:    "ollama",
		Model:     "llama3.1:8b",
		MaxTokens: 256,
		Options:   map[string]any{"temperature": 0.3, "num_ctx": 4096},
	})
	if err != nil {
		t.Fatalf("NewOllama: %v", err)
	}
	if m == nil {
		t.Fatal("expected a model")
	}
}
