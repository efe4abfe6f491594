// Package generate relays a token-streaming chat model to a stream.Writer.
package generate

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/dohr-michael/quill/internal/callbacks"
	"github.com/dohr-michael/quill/internal/events"
	"github.com/dohr-michael/quill/internal/models"
	"github.com/dohr-michael/quill/internal/prompt"
	"github.com/dohr-michael/quill/internal/stream"
)

// Stage locates a backend failure relative to the first delivered chunk.
type Stage int

const (
	PreStream Stage = iota
	MidStream
)

func (s Stage) String() string {
	if s == MidStream {
		return "mid-stream"
	}
	return "pre-stream"
}

// BackendError is a failure of the generative model.
type BackendError struct {
	Stage Stage
	Err   error
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("generation failed %s: %v", e.Stage, e.Err)
}

func (e *BackendError) Unwrap() error { return e.Err }

// ModelSource resolves a chat model by provider name ("" = default).
type ModelSource interface {
	Get(ctx context.Context, name string) (model.BaseChatModel, error)
}

// Adapter streams a model's output into a writer. When Bus is set, model
// calls are reported as model.call events.
type Adapter struct {
	Models   ModelSource
	Provider string
	Bus      *events.Bus
}

// Run makes exactly one streaming call and forwards every non-empty increment
// in arrival order, closing w at end of stream.
//
// A missing credential is returned as *models.CredentialError with w untouched.
// A failure before the first chunk leaves w pending; after it, w is failed.
// Either way the error is a *BackendError. No retry is attempted.
func (a *Adapter) Run(ctx context.Context, pair prompt.Pair, w stream.Writer) error {
	m, err := a.Models.Get(ctx, a.Provider)
	if err != nil {
		var credErr *models.CredentialError
		if errors.As(err, &credErr) {
			return err
		}
		return &BackendError{Stage: PreStream, Err: err}
	}

	name := a.Provider
	if name == "" {
		name = "default"
	}
	ctx = callbacks.WithModelEvents(ctx, a.Bus, name, w.ID())

	sr, err := m.Stream(ctx, []*schema.Message{
		schema.SystemMessage(pair.System),
		schema.UserMessage(pair.User),
	})
	if err != nil {
		return &BackendError{Stage: PreStream, Err: err}
	}
	defer sr.Close()

	for {
		msg, err := sr.Recv()
		if errors.Is(err, io.EOF) {
			return w.Close()
		}
		if err != nil {
			if w.State() == stream.Pending {
				return &BackendError{Stage: PreStream, Err: err}
			}
			if ferr := w.Fail(err); ferr != nil {
				slog.Debug("fail stream", "stream_id", w.ID(), "error", ferr)
			}
			return &BackendError{Stage: MidStream, Err: err}
		}
		if msg == nil || msg.Content == "" {
			continue
		}
		if err := w.Write(msg.Content); err != nil {
			return &BackendError{Stage: MidStream, Err: err}
		}
	}
}
