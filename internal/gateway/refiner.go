package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/dohr-michael/quill/internal/prompt"
	"github.com/dohr-michael/quill/internal/refine"
)

// RefineServer exposes a refine.Backend as the whole-text refine service
// the mediator's HTTP backend talks to.
type RefineServer struct {
	httpServer *http.Server
	backend    refine.Backend
}

// NewRefineServer creates the refine service.
func NewRefineServer(backend refine.Backend, host string, port int, maxBody int64) *RefineServer {
	if maxBody <= 0 {
		maxBody = DefaultMaxBodyBytes
	}
	s := &RefineServer{backend: backend}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLog)
	r.Use(middleware.Recoverer)

	r.Get("/api/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Group(func(r chi.Router) {
		r.Use(maxBytes(maxBody))
		for _, mode := range []prompt.Mode{prompt.Improve, prompt.Fix, prompt.Lengthen, prompt.Shorten} {
			r.Post(refine.Path(mode), s.handleRefine(mode))
		}
	})

	s.httpServer = &http.Server{
		Addr:    net.JoinHostPort(host, strconv.Itoa(port)),
		Handler: r,
	}
	return s
}

// Handler returns the root handler.
func (s *RefineServer) Handler() http.Handler { return s.httpServer.Handler }

// Start begins listening. It blocks until the server is stopped.
func (s *RefineServer) Start() error {
	return serve(s.httpServer, "quill refiner")
}

// Shutdown gracefully stops the server.
func (s *RefineServer) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *RefineServer) handleRefine(mode prompt.Mode) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req refine.TextBody
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			var maxBytesErr *http.MaxBytesError
			if errors.As(err, &maxBytesErr) {
				writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
				return
			}
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		if strings.TrimSpace(req.Text) == "" {
			writeError(w, http.StatusBadRequest, "text is required")
			return
		}

		text, err := s.backend.Refine(r.Context(), req.Text, mode)
		if err != nil {
			slog.Error("refine failed",
				"request_id", middleware.GetReqID(r.Context()),
				"mode", mode.String(),
				"error", err,
			)
			writeError(w, http.StatusBadGateway, "refinement failed")
			return
		}
		writeJSON(w, http.StatusOK, refine.TextBody{Text: text})
	}
}
