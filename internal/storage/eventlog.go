// Package storage persists bus events and aggregates model usage.
package storage

import (
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/dohr-michael/quill/internal/events"
)

// EventLogger persists bus events to JSONL files, one file per UTC day.
type EventLogger struct {
	dir         string
	mu          sync.Mutex
	unsubscribe func()
}

// NewEventLogger creates an EventLogger that subscribes to all bus events
// and appends them to dir.
func NewEventLogger(dir string, bus *events.Bus) *EventLogger {
	el := &EventLogger{dir: dir}
	el.unsubscribe = bus.Subscribe(el.handleEvent)
	return el
}

// Close unsubscribes the logger from the event bus.
func (el *EventLogger) Close() {
	if el.unsubscribe != nil {
		el.unsubscribe()
	}
}

func (el *EventLogger) handleEvent(e events.Event) {
	if err := el.writeEvent(e); err != nil {
		slog.Debug("event log: write", "event", e.Type, "error", err)
	}
}

func (el *EventLogger) writeEvent(e events.Event) error {
	data, err := json.Marshal(e)
	if err != nil {
		return err
	}
	data = append(data, '\n')

	el.mu.Lock()
	defer el.mu.Unlock()

	path := el.LogPath(e.Timestamp)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	_, err = f.Write(data)
	return err
}

// LogPath returns the file events stamped at ts are written to.
func (el *EventLogger) LogPath(ts time.Time) string {
	if ts.IsZero() {
		ts = time.Now()
	}
	return filepath.Join(el.dir, "events-"+ts.UTC().Format(time.DateOnly)+".jsonl")
}
