package gateway

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dohr-michael/quill/internal/models"
	"github.com/dohr-michael/quill/internal/prompt"
	"github.com/dohr-michael/quill/internal/refine"
)

func TestRefineServer_RoundTrip(t *testing.T) {
	mock := &models.MockChatModel{Chunks: []string{"<think>hmm</think>", "Shorter."}}
	backend := &refine.ModelBackend{Models: fixedSource{m: mock}}
	ts := httptest.NewServer(NewRefineServer(backend, "localhost", 0, 0).Handler())
	defer ts.Close()

	client := refine.NewHTTPBackend(ts.URL, time.Second)
	got, err := client.Refine(context.Background(), "A much longer text.", prompt.Shorten)
	if err != nil {
		t.Fatalf("Refine: %v", err)
	}
	if got != "Shorter." {
		t.Errorf("got %q", got)
	}
	if err := client.Ping(context.Background()); err != nil {
		t.Errorf("Ping: %v", err)
	}
}

func TestRefineServer_Errors(t *testing.T) {
	srv := NewRefineServer(stubBackend{err: errors.New("model offline")}, "localhost", 0, 64)

	cases := []struct {
		path, body string
		status     int
	}{
		{"/fix", `{"text":"x"}`, http.StatusBadGateway},
		{"/fix", `{"text":"  "}`, http.StatusBadRequest},
		{"/improve", `not json`, http.StatusBadRequest},
		{"/longer", `{"text":"` + strings.Repeat("a", 100) + `"}`, http.StatusRequestEntityTooLarge},
		{"/continue", `{"text":"x"}`, http.StatusNotFound},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodPost, tc.path, strings.NewReader(tc.body))
		w := httptest.NewRecorder()
		srv.Handler().ServeHTTP(w, req)
		if w.Code != tc.status {
			t.Errorf("%s %s: status = %d, want %d", tc.path, tc.body, w.Code, tc.status)
		}
	}
}
