package health

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/dohr-michael/quill/internal/events"
	"github.com/dohr-michael/quill/internal/metrics"
	"github.com/dohr-michael/quill/internal/models"
)

type fakePinger struct{ err error }

func (f fakePinger) Ping(context.Context) error { return f.err }

type fakeSource struct{ err error }

func (f fakeSource) Get(context.Context, string) (model.BaseChatModel, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &models.MockChatModel{}, nil
}

func TestProber_Run(t *testing.T) {
	p := NewProber(nil, time.Second)
	p.Register(CheckRefiner, PingCheck(fakePinger{err: errors.New("connection refused")}))
	p.Register(CheckGenerator, ModelCheck(fakeSource{}, ""))

	results := p.Run(context.Background())
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[0].Name != CheckGenerator || !results[0].Available {
		t.Errorf("generator = %+v", results[0])
	}
	if results[1].Name != CheckRefiner || results[1].Available || results[1].Error != "connection refused" {
		t.Errorf("refiner = %+v", results[1])
	}
	if p.Healthy() {
		t.Error("prober must be unhealthy with a failing check")
	}
	if got := testutil.ToFloat64(metrics.BackendAvailable.WithLabelValues(CheckRefiner)); got != 0 {
		t.Errorf("refiner gauge = %v, want 0", got)
	}
	if got := testutil.ToFloat64(metrics.BackendAvailable.WithLabelValues(CheckGenerator)); got != 1 {
		t.Errorf("generator gauge = %v, want 1", got)
	}
}

func TestProber_PublishesOnChangeOnly(t *testing.T) {
	bus := events.NewBus(16)
	defer bus.Close()

	var failing atomic.Bool
	p := NewProber(bus, time.Second)
	p.Register("svc", func(context.Context) error {
		if failing.Load() {
			return errors.New("down")
		}
		return nil
	})

	p.Run(context.Background())
	p.Run(context.Background())
	failing.Store(true)
	p.Run(context.Background())

	time.Sleep(50 * time.Millisecond)
	history := bus.History(10)
	if len(history) != 2 {
		t.Fatalf("expected 2 health events, got %d", len(history))
	}
	last, ok := events.ExtractPayload[events.BackendHealthPayload](history[1])
	if !ok || last.Available || last.Backend != "svc" {
		t.Errorf("last = %+v", last)
	}
}

func TestProber_CheckTimeout(t *testing.T) {
	p := NewProber(nil, 20*time.Millisecond)
	p.Register("slow", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})

	results := p.Run(context.Background())
	if results[0].Available {
		t.Error("timed out check must be unavailable")
	}
}

func TestProber_StartSchedules(t *testing.T) {
	var calls atomic.Int32
	p := NewProber(nil, time.Second)
	p.Register("tick", func(context.Context) error {
		calls.Add(1)
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := p.Start(ctx, time.Second); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer p.Stop()

	if calls.Load() != 1 {
		t.Fatalf("expected immediate run, got %d calls", calls.Load())
	}
	time.Sleep(1500 * time.Millisecond)
	if calls.Load() < 2 {
		t.Errorf("expected a scheduled run, got %d calls", calls.Load())
	}
}
