// Package dispatch routes a generation request to the refinement or the
// generative path and owns the error boundary around request handling.
package dispatch

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/dohr-michael/quill/internal/events"
	"github.com/dohr-michael/quill/internal/generate"
	"github.com/dohr-michael/quill/internal/metrics"
	"github.com/dohr-michael/quill/internal/models"
	"github.com/dohr-michael/quill/internal/prompt"
	"github.com/dohr-michael/quill/internal/refine"
	"github.com/dohr-michael/quill/internal/stream"
)

// Serving paths, as reported in events and metrics.
const (
	PathRefine   = "refine"
	PathGenerate = "generate"
)

var errNoGenerator = errors.New("no generator configured")

// Dispatcher selects the adapter for each request. Refine may be nil, in
// which case every refinement falls back to generation.
type Dispatcher struct {
	Refine         *refine.Adapter
	Generate       *generate.Adapter
	Bus            *events.Bus
	MaxPromptChars int
}

// Serve decodes body, dispatches it into w and recovers panics.
//
// When the returned error is non-nil and w is still pending, the caller must
// answer with an error response (see Describe). If w was already open it has
// been failed and the transport only needs to terminate.
func (d *Dispatcher) Serve(ctx context.Context, body io.Reader, w stream.Writer) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = newUnexpected(r)
			slog.Error("panic while serving", "stream_id", w.ID(), "panic", r)
		}
		if err != nil && w.State() == stream.Open {
			if ferr := w.Fail(err); ferr != nil {
				slog.Debug("fail stream", "stream_id", w.ID(), "error", ferr)
			}
		}
	}()

	req, err := DecodeRequest(body, d.MaxPromptChars)
	if err != nil {
		status, msg := Describe(err)
		d.publish(events.NewStreamEvent(events.SourceDispatch, events.RequestRejectedPayload{
			Status: status,
			Reason: msg,
		}, w.ID()))
		return err
	}
	return d.Handle(ctx, req, w)
}

// Handle serves a decoded request through exactly one writer.
//
// A refinement mode first tries the refinement backend; when that fails the
// request silently degrades to generation with the same mode's prompt.
func (d *Dispatcher) Handle(ctx context.Context, req Request, w stream.Writer) error {
	start := time.Now()
	mode := req.Mode.String()
	log := slog.With("stream_id", w.ID(), "mode", mode)
	runes := utf8.RuneCountInString(req.Prompt)
	metrics.PromptChars.Observe(float64(runes))

	path := PathGenerate
	var refined string
	if req.Mode.IsRefinement() {
		res := d.Refine.Attempt(ctx, req.Prompt, req.Mode)
		if res.Outcome == refine.Refined {
			path = PathRefine
			refined = res.Text
		} else {
			log.Warn("refinement unavailable, falling back to generation", "error", res.Reason)
			metrics.RefineFallbacks.WithLabelValues(mode).Inc()
			d.publish(events.NewStreamEvent(events.SourceDispatch, events.RefineFallbackPayload{
				Mode:   mode,
				Reason: res.Reason.Error(),
			}, w.ID()))
		}
	}

	d.publish(events.NewStreamEvent(events.SourceDispatch, events.GenerationStartedPayload{
		Mode:   mode,
		Path:   path,
		Prompt: runes,
	}, w.ID()))
	log.Debug("dispatch", "path", path, "prompt_chars", runes)

	tw := &trackedWriter{Writer: w, path: path, start: start}
	var err error
	switch {
	case path == PathRefine:
		err = d.Refine.Emit(ctx, refined, tw)
	case d.Generate == nil:
		err = &generate.BackendError{Stage: generate.PreStream, Err: errNoGenerator}
	default:
		err = d.Generate.Run(ctx, prompt.Build(req.Mode, req.Prompt, req.Command), tw)
	}

	var credErr *models.CredentialError
	if errors.As(err, &credErr) {
		err = &ConfigurationError{Err: credErr}
	}
	d.finish(mode, path, tw, err)
	return err
}

func (d *Dispatcher) finish(mode, path string, tw *trackedWriter, err error) {
	elapsed := time.Since(tw.start)
	chunks, bytes := tw.counts()
	metrics.GenerationDuration.WithLabelValues(path).Observe(elapsed.Seconds())

	if err == nil {
		metrics.GenerationsTotal.WithLabelValues(mode, path, "completed").Inc()
		d.publish(events.NewStreamEvent(events.SourceDispatch, events.GenerationCompletedPayload{
			Mode:       mode,
			Path:       path,
			Chunks:     chunks,
			Bytes:      bytes,
			DurationMs: elapsed.Milliseconds(),
		}, tw.ID()))
		return
	}

	stage := generate.PreStream
	if chunks > 0 || tw.State() != stream.Pending {
		stage = generate.MidStream
	}
	metrics.GenerationsTotal.WithLabelValues(mode, path, "failed").Inc()
	d.publish(events.NewStreamEvent(events.SourceDispatch, events.GenerationFailedPayload{
		Mode:   mode,
		Path:   path,
		Stage:  stage.String(),
		Chunks: chunks,
		Error:  err.Error(),
	}, tw.ID()))
}

func (d *Dispatcher) publish(e events.Event) {
	if d.Bus != nil {
		d.Bus.Publish(e)
	}
}

// Describe maps an error returned by Serve to a response status and a
// caller-facing message. Backend and unexpected details are never exposed.
func Describe(err error) (int, string) {
	var (
		valErr  *ValidationError
		cfgErr  *ConfigurationError
		credErr *models.CredentialError
		backErr *generate.BackendError
	)
	switch {
	case errors.As(err, &valErr):
		return valErr.Status, valErr.Message
	case errors.As(err, &cfgErr):
		return http.StatusBadRequest, cfgErr.Message()
	case errors.As(err, &credErr):
		return http.StatusBadRequest, (&ConfigurationError{Err: credErr}).Message()
	case errors.As(err, &backErr):
		return http.StatusBadGateway, "generation failed"
	default:
		return http.StatusInternalServerError, "internal server error"
	}
}

// trackedWriter counts delivered chunks for events and metrics.
type trackedWriter struct {
	stream.Writer
	path  string
	start time.Time

	mu     sync.Mutex
	chunks int
	bytes  int
}

func (t *trackedWriter) Write(chunk string) error {
	if err := t.Writer.Write(chunk); err != nil {
		return err
	}
	t.mu.Lock()
	t.chunks++
	t.bytes += len(chunk)
	first := t.chunks == 1
	t.mu.Unlock()

	if first {
		metrics.TimeToFirstChunk.WithLabelValues(t.path).Observe(time.Since(t.start).Seconds())
	}
	metrics.ChunksEmitted.WithLabelValues(t.path).Inc()
	return nil
}

func (t *trackedWriter) counts() (int, int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.chunks, t.bytes
}
