// Package callbacks provides Eino callback handlers that bridge model calls to the event bus.
package callbacks

import (
	"context"
	"errors"
	"io"

	"github.com/cloudwego/eino/callbacks"
	"github.com/cloudwego/eino/components"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	ub "github.com/cloudwego/eino/utils/callbacks"

	"github.com/dohr-michael/quill/internal/events"
)

const maxErrorLen = 500

// WithModelEvents attaches a handler publishing model.call events for the
// chat model named name. Models that support callbacks fire it on every
// Generate or Stream made with the returned context.
func WithModelEvents(ctx context.Context, bus *events.Bus, name, streamID string) context.Context {
	if bus == nil {
		return ctx
	}
	info := &callbacks.RunInfo{Name: name, Component: components.ComponentOfChatModel}
	return callbacks.InitCallbacks(ctx, info, NewEventBusHandler(bus, streamID))
}

// NewEventBusHandler creates a callback handler that publishes model call
// phases to the bus, tagged with streamID.
func NewEventBusHandler(bus *events.Bus, streamID string) callbacks.Handler {
	publish := func(payload events.ModelCallPayload) {
		bus.Publish(events.NewStreamEvent(events.SourceModel, payload, streamID))
	}

	modelHandler := &ub.ModelCallbackHandler{
		OnStart: func(ctx context.Context, info *callbacks.RunInfo, input *model.CallbackInput) context.Context {
			payload := events.ModelCallPayload{Phase: "request", Model: info.Name}
			if input != nil {
				payload.MessageCount = len(input.Messages)
			}
			publish(payload)
			return ctx
		},

		OnEnd: func(ctx context.Context, info *callbacks.RunInfo, output *model.CallbackOutput) context.Context {
			payload := events.ModelCallPayload{Phase: "response", Model: info.Name}
			addUsage(&payload, output)
			publish(payload)
			return ctx
		},

		OnEndWithStreamOutput: func(ctx context.Context, info *callbacks.RunInfo, output *schema.StreamReader[*model.CallbackOutput]) context.Context {
			go func() {
				defer output.Close()
				payload := events.ModelCallPayload{Phase: "response", Model: info.Name}
				for {
					chunk, err := output.Recv()
					if errors.Is(err, io.EOF) {
						break
					}
					if err != nil {
						payload.Phase = "error"
						payload.Error = truncatePayload(err.Error(), maxErrorLen)
						break
					}
					addUsage(&payload, chunk)
				}
				publish(payload)
			}()
			return ctx
		},

		OnError: func(ctx context.Context, info *callbacks.RunInfo, err error) context.Context {
			publish(events.ModelCallPayload{
				Phase: "error",
				Model: info.Name,
				Error: truncatePayload(err.Error(), maxErrorLen),
			})
			return ctx
		},
	}

	return ub.NewHandlerHelper().
		ChatModel(modelHandler).
		Handler()
}

// addUsage records token counts from output. Providers report usage either
// on the callback output or on the message metadata, usually only once.
func addUsage(p *events.ModelCallPayload, output *model.CallbackOutput) {
	if output == nil {
		return
	}
	if u := output.TokenUsage; u != nil {
		p.TokensInput = max(p.TokensInput, u.PromptTokens)
		p.TokensOutput = max(p.TokensOutput, u.CompletionTokens)
	}
	if m := output.Message; m != nil && m.ResponseMeta != nil && m.ResponseMeta.Usage != nil {
		p.TokensInput = max(p.TokensInput, m.ResponseMeta.Usage.PromptTokens)
		p.TokensOutput = max(p.TokensOutput, m.ResponseMeta.Usage.CompletionTokens)
	}
}

func truncatePayload(s string, maxLen int) string {
	if maxLen <= 0 || len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "... (truncated)"
}
