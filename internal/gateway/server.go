package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dohr-michael/quill/internal/dispatch"
	"github.com/dohr-michael/quill/internal/events"
	"github.com/dohr-michael/quill/internal/gateway/ws"
	"github.com/dohr-michael/quill/internal/health"
	"github.com/dohr-michael/quill/internal/prompt"
	"github.com/dohr-michael/quill/internal/storage"
)

// DefaultMaxBodyBytes limits request bodies when the config sets no limit.
const DefaultMaxBodyBytes = 64 << 10

// Options configures the mediator server.
type Options struct {
	Host         string
	Port         int
	MaxBodyBytes int64
	Dispatcher   *dispatch.Dispatcher
	Bus          *events.Bus
	Health       *health.Prober        // nil reports only liveness
	Usage        *storage.UsageTracker // nil serves an empty usage list
}

// Server is the mediator HTTP server.
type Server struct {
	httpServer *http.Server
	hub        *ws.Hub
	dispatcher *dispatch.Dispatcher
	bus        *events.Bus
	health     *health.Prober
	usage      *storage.UsageTracker
	maxBody    int64
}

// NewServer creates the mediator server.
func NewServer(opts Options) *Server {
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = DefaultMaxBodyBytes
	}

	s := &Server{
		hub:        ws.NewHub(opts.Bus),
		dispatcher: opts.Dispatcher,
		bus:        opts.Bus,
		health:     opts.Health,
		usage:      opts.Usage,
		maxBody:    opts.MaxBodyBytes,
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLog)
	r.Use(middleware.Recoverer)

	r.Get("/api/health", s.handleHealth)
	r.Get("/api/modes", s.handleModes)
	r.Get("/api/events", s.handleEvents)
	r.Get("/api/events/ws", s.hub.ServeWS)
	r.Get("/api/usage", s.handleUsage)
	r.Handle("/metrics", promhttp.Handler())

	r.With(maxBytes(s.maxBody)).Post("/api/generate", s.handleGenerate)
	r.Get("/api/generate/ws", s.handleGenerateWS)

	s.httpServer = &http.Server{
		Addr:    net.JoinHostPort(opts.Host, strconv.Itoa(opts.Port)),
		Handler: r,
	}
	return s
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler { return s.httpServer.Handler }

// Start begins listening. It blocks until the server is stopped.
func (s *Server) Start() error {
	return serve(s.httpServer, "quill gateway")
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.hub.Close()
	return s.httpServer.Shutdown(ctx)
}

func serve(srv *http.Server, name string) error {
	ln, err := net.Listen("tcp", srv.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", srv.Addr, err)
	}
	slog.Info(name+" listening", "addr", ln.Addr().String())
	if err := srv.Serve(ln); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

type healthResponse struct {
	Status   string          `json:"status"`
	Backends []health.Result `json:"backends"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{Status: "ok", Backends: []health.Result{}}
	if s.health != nil {
		resp.Backends = s.health.Status()
		if !s.health.Healthy() {
			resp.Status = "degraded"
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

type modeInfo struct {
	Name       prompt.Mode `json:"name"`
	Refinement bool        `json:"refinement"`
}

func (s *Server) handleModes(w http.ResponseWriter, r *http.Request) {
	modes := prompt.Modes()
	out := make([]modeInfo, len(modes))
	for i, m := range modes {
		out[i] = modeInfo{Name: m, Refinement: m.IsRefinement()}
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}

	history := s.bus.History(limit)
	if history == nil {
		history = []events.Event{}
	}
	writeJSON(w, http.StatusOK, history)
}

func (s *Server) handleUsage(w http.ResponseWriter, r *http.Request) {
	usage := []storage.Usage{}
	if s.usage != nil {
		usage = s.usage.Snapshot()
	}
	writeJSON(w, http.StatusOK, usage)
}
