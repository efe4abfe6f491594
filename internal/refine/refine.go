// Package refine obtains a complete edited text from a whole-text refinement
// backend and replays it to the caller one character at a time.
package refine

import (
	"context"
	"errors"
	"unicode/utf8"

	"github.com/dohr-michael/quill/internal/prompt"
	"github.com/dohr-michael/quill/internal/stream"
)

// ErrNoBackend is the failure reason when no refinement backend is configured.
var ErrNoBackend = errors.New("no refinement backend configured")

// Backend returns the full refined text for a refinement mode.
type Backend interface {
	Refine(ctx context.Context, text string, mode prompt.Mode) (string, error)
}

// Outcome tags a refinement Result.
type Outcome int

const (
	Refined Outcome = iota
	Failed
)

// Result is the outcome of one refinement attempt: either the refined text
// or the reason it could not be obtained.
type Result struct {
	Outcome Outcome
	Text    string
	Reason  error
}

// Adapter runs refinement attempts and replays their output.
type Adapter struct {
	Backend Backend
	Cadence stream.Cadence
}

// Attempt calls the backend once. It never returns an error: failures are
// reported as a Failed result so the caller can fall back.
func (a *Adapter) Attempt(ctx context.Context, text string, mode prompt.Mode) Result {
	if a == nil || a.Backend == nil {
		return Result{Outcome: Failed, Reason: ErrNoBackend}
	}
	refined, err := a.Backend.Refine(ctx, text, mode)
	if err != nil {
		return Result{Outcome: Failed, Reason: err}
	}
	return Result{Outcome: Refined, Text: refined}
}

// Emit opens w and writes text one character per cadence tick, then closes w.
// The concatenated chunks are byte-identical to text. On cancellation no
// further chunk is written and w is failed with the context error.
func (a *Adapter) Emit(ctx context.Context, text string, w stream.Writer) error {
	if err := w.Open(); err != nil {
		return err
	}
	if err := a.Cadence.Emit(ctx, Units(text), w.Write); err != nil {
		_ = w.Fail(err)
		return err
	}
	return w.Close()
}

// Units splits text into single characters. Invalid UTF-8 bytes become
// one-byte units, so joining the units always reproduces text.
func Units(text string) []string {
	units := make([]string, 0, utf8.RuneCountInString(text))
	for len(text) > 0 {
		_, size := utf8.DecodeRuneInString(text)
		units = append(units, text[:size])
		text = text[size:]
	}
	return units
}
