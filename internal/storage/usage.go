package storage

import (
	"sort"
	"sync"

	"github.com/dohr-michael/quill/internal/events"
	"github.com/dohr-michael/quill/internal/metrics"
)

// Usage is the token usage accumulated for one model.
type Usage struct {
	Model  string `json:"model"`
	Calls  int    `json:"calls"`
	Errors int    `json:"errors"`
	Input  int    `json:"tokens_input"`
	Output int    `json:"tokens_output"`
}

// UsageTracker subscribes to model call events and accumulates token usage
// per model since process start.
type UsageTracker struct {
	mu          sync.Mutex
	byModel     map[string]*Usage
	unsubscribe func()
}

// NewUsageTracker creates a UsageTracker listening on bus.
func NewUsageTracker(bus *events.Bus) *UsageTracker {
	ut := &UsageTracker{byModel: make(map[string]*Usage)}
	ut.unsubscribe = bus.Subscribe(ut.handleEvent, events.EventModelCall)
	return ut
}

// Close unsubscribes the tracker from the event bus.
func (ut *UsageTracker) Close() {
	if ut.unsubscribe != nil {
		ut.unsubscribe()
	}
}

func (ut *UsageTracker) handleEvent(e events.Event) {
	payload, ok := events.ExtractPayload[events.ModelCallPayload](e)
	if !ok || payload.Phase == "request" {
		return
	}

	ut.mu.Lock()
	defer ut.mu.Unlock()

	u, ok := ut.byModel[payload.Model]
	if !ok {
		u = &Usage{Model: payload.Model}
		ut.byModel[payload.Model] = u
	}
	u.Calls++
	if payload.Phase == "error" {
		u.Errors++
		return
	}
	u.Input += payload.TokensInput
	u.Output += payload.TokensOutput

	if payload.TokensInput > 0 {
		metrics.ModelTokens.WithLabelValues(payload.Model, "input").Add(float64(payload.TokensInput))
	}
	if payload.TokensOutput > 0 {
		metrics.ModelTokens.WithLabelValues(payload.Model, "output").Add(float64(payload.TokensOutput))
	}
}

// Snapshot returns the usage of every model seen, sorted by model name.
func (ut *UsageTracker) Snapshot() []Usage {
	ut.mu.Lock()
	defer ut.mu.Unlock()

	out := make([]Usage, 0, len(ut.byModel))
	for _, u := range ut.byModel {
		out = append(out, *u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Model < out[j].Model })
	return out
}
