package storage

import (
	"testing"
	"time"

	"github.com/dohr-michael/quill/internal/events"
)

func publishCall(bus *events.Bus, p events.ModelCallPayload) {
	bus.Publish(events.NewTypedEvent(events.SourceModel, p))
}

func TestUsageTracker_Accumulates(t *testing.T) {
	bus := events.NewBus(64)
	defer bus.Close()

	ut := NewUsageTracker(bus)
	defer ut.Close()

	publishCall(bus, events.ModelCallPayload{Phase: "request", Model: "main", MessageCount: 2})
	publishCall(bus, events.ModelCallPayload{Phase: "response", Model: "main", TokensInput: 10, TokensOutput: 40})
	publishCall(bus, events.ModelCallPayload{Phase: "response", Model: "main", TokensInput: 5, TokensOutput: 20})
	publishCall(bus, events.ModelCallPayload{Phase: "error", Model: "local", Error: "refused"})

	time.Sleep(100 * time.Millisecond)

	got := ut.Snapshot()
	if len(got) != 2 {
		t.Fatalf("got %d models, want 2: %+v", len(got), got)
	}
	// sorted by name
	local, primary := got[0], got[1]
	if local.Model != "local" || local.Calls != 1 || local.Errors != 1 {
		t.Errorf("local = %+v", local)
	}
	if primary.Calls != 2 || primary.Input != 15 || primary.Output != 60 || primary.Errors != 0 {
		t.Errorf("primary = %+v", primary)
	}
}

func TestUsageTracker_IgnoresOtherEvents(t *testing.T) {
	bus := events.NewBus(64)
	defer bus.Close()

	ut := NewUsageTracker(bus)
	defer ut.Close()

	bus.Publish(events.NewTypedEvent(events.SourceDispatch, events.GenerationStartedPayload{Mode: "continue"}))
	time.Sleep(50 * time.Millisecond)

	if got := ut.Snapshot(); len(got) != 0 {
		t.Errorf("snapshot = %+v, want empty", got)
	}
}
