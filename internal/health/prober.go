// Package health probes the backends behind the mediator on a schedule and
// keeps the latest result of each check.
package health

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/dohr-michael/quill/internal/events"
	"github.com/dohr-michael/quill/internal/metrics"
)

// DefaultTimeout bounds a single check.
const DefaultTimeout = 5 * time.Second

// Check reports whether a backend is usable.
type Check func(ctx context.Context) error

// Result is the latest outcome of a named check.
type Result struct {
	Name      string    `json:"name"`
	Available bool      `json:"available"`
	Error     string    `json:"error,omitempty"`
	CheckedAt time.Time `json:"checked_at"`
}

// Prober runs registered checks at start and then on an @every schedule.
type Prober struct {
	bus     *events.Bus
	timeout time.Duration

	mu      sync.RWMutex
	checks  map[string]Check
	results map[string]Result
	cron    *cron.Cron
}

// NewProber creates a prober. bus may be nil.
func NewProber(bus *events.Bus, timeout time.Duration) *Prober {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Prober{
		bus:     bus,
		timeout: timeout,
		checks:  make(map[string]Check),
		results: make(map[string]Result),
	}
}

// Register adds or replaces a named check.
func (p *Prober) Register(name string, check Check) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.checks[name] = check
}

// Run executes every check once and returns the results sorted by name.
func (p *Prober) Run(ctx context.Context) []Result {
	p.mu.RLock()
	checks := make(map[string]Check, len(p.checks))
	for name, c := range p.checks {
		checks[name] = c
	}
	p.mu.RUnlock()

	for name, check := range checks {
		p.record(name, p.probe(ctx, check))
	}
	return p.Status()
}

func (p *Prober) probe(ctx context.Context, check Check) error {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	return check(ctx)
}

func (p *Prober) record(name string, err error) {
	res := Result{Name: name, Available: err == nil, CheckedAt: time.Now()}
	if err != nil {
		res.Error = err.Error()
	}

	p.mu.Lock()
	prev, seen := p.results[name]
	p.results[name] = res
	p.mu.Unlock()

	gauge := 0.0
	if res.Available {
		gauge = 1
	}
	metrics.BackendAvailable.WithLabelValues(name).Set(gauge)

	if seen && prev.Available == res.Available {
		return
	}
	if res.Available {
		slog.Info("backend available", "backend", name)
	} else {
		slog.Warn("backend unavailable", "backend", name, "error", err)
	}
	if p.bus != nil {
		p.bus.Publish(events.NewTypedEvent(events.SourceHealth, events.BackendHealthPayload{
			Backend:   name,
			Available: res.Available,
			Error:     res.Error,
		}))
	}
}

// Start runs all checks immediately, then every interval until ctx is done
// or Stop is called.
func (p *Prober) Start(ctx context.Context, interval time.Duration) error {
	p.Run(ctx)
	if interval <= 0 {
		return nil
	}

	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cronLogger{})))
	if _, err := c.AddFunc(fmt.Sprintf("@every %s", interval), func() { p.Run(ctx) }); err != nil {
		return fmt.Errorf("schedule health checks: %w", err)
	}

	p.mu.Lock()
	p.cron = c
	p.mu.Unlock()
	c.Start()

	go func() {
		<-ctx.Done()
		p.Stop()
	}()
	slog.Info("health prober started", "interval", interval)
	return nil
}

// Stop halts scheduled checks and waits for a running check to finish.
func (p *Prober) Stop() {
	p.mu.Lock()
	c := p.cron
	p.cron = nil
	p.mu.Unlock()
	if c != nil {
		<-c.Stop().Done()
	}
}

// Status returns the latest results sorted by name.
func (p *Prober) Status() []Result {
	p.mu.RLock()
	defer p.mu.RUnlock()

	out := make([]Result, 0, len(p.results))
	for _, r := range p.results {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Healthy reports whether every checked backend is available.
func (p *Prober) Healthy() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	for _, r := range p.results {
		if !r.Available {
			return false
		}
	}
	return true
}

type cronLogger struct{}

func (cronLogger) Info(msg string, kv ...any) { slog.Debug("cron: "+msg, kv...) }

func (cronLogger) Error(err error, msg string, kv ...any) {
	slog.Error("cron: "+msg, append(kv, "error", err)...)
}
