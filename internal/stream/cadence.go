package stream

import (
	"context"
	"time"
)

// Cadence emits units one at a time, waiting Interval before each one.
// A zero Interval emits back to back. Cancellation is checked before every
// unit; nothing is emitted once ctx is done.
type Cadence struct {
	Interval time.Duration
}

// Emit calls fn for each unit in order. It returns ctx.Err() if cancelled,
// or the first error returned by fn.
func (c Cadence) Emit(ctx context.Context, units []string, fn func(string) error) error {
	if len(units) == 0 {
		return ctx.Err()
	}

	var tick <-chan time.Time
	if c.Interval > 0 {
		ticker := time.NewTicker(c.Interval)
		defer ticker.Stop()
		tick = ticker.C
	}

	for _, u := range units {
		if tick != nil {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-tick:
			}
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(u); err != nil {
			return err
		}
	}
	return nil
}
