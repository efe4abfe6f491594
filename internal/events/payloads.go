package events

import (
	"encoding/json"
	"time"
)

// EventPayload is the interface all typed payloads implement.
type EventPayload interface {
	EventType() EventType
}

type GenerationStartedPayload struct {
	Mode   string `json:"mode"`
	Path   string `json:"path"` // "refine" or "generate"
	Prompt int    `json:"prompt_chars"`
}

func (GenerationStartedPayload) EventType() EventType { return EventGenerationStarted }

type RefineFallbackPayload struct {
	Mode   string `json:"mode"`
	Reason string `json:"reason"`
}

func (RefineFallbackPayload) EventType() EventType { return EventRefineFallback }

type GenerationCompletedPayload struct {
	Mode       string `json:"mode"`
	Path       string `json:"path"`
	Chunks     int    `json:"chunks"`
	Bytes      int    `json:"bytes"`
	DurationMs int64  `json:"duration_ms"`
}

func (GenerationCompletedPayload) EventType() EventType { return EventGenerationCompleted }

type GenerationFailedPayload struct {
	Mode   string `json:"mode"`
	Path   string `json:"path"`
	Stage  string `json:"stage"` // "pre-stream" or "mid-stream"
	Chunks int    `json:"chunks"`
	Error  string `json:"error"`
}

func (GenerationFailedPayload) EventType() EventType { return EventGenerationFailed }

type RequestRejectedPayload struct {
	Status int    `json:"status"`
	Reason string `json:"reason"`
}

func (RequestRejectedPayload) EventType() EventType { return EventRequestRejected }

type BackendHealthPayload struct {
	Backend   string `json:"backend"`
	Available bool   `json:"available"`
	Error     string `json:"error,omitempty"`
}

func (BackendHealthPayload) EventType() EventType { return EventBackendHealth }

// ModelCallPayload reports one phase of a chat model call.
type ModelCallPayload struct {
	Phase        string `json:"phase"` // "request", "response" or "error"
	Model        string `json:"model"`
	MessageCount int    `json:"message_count,omitempty"`
	TokensInput  int    `json:"tokens_input,omitempty"`
	TokensOutput int    `json:"tokens_output,omitempty"`
	Error        string `json:"error,omitempty"`
}

func (ModelCallPayload) EventType() EventType { return EventModelCall }

// NewTypedEvent builds an event from a typed payload.
func NewTypedEvent(source EventSource, payload EventPayload) Event {
	return Event{
		ID:        generateEventID(),
		Type:      payload.EventType(),
		Timestamp: time.Now(),
		Source:    source,
		Payload:   toMap(payload),
	}
}

// NewStreamEvent builds an event tied to a stream.
func NewStreamEvent(source EventSource, payload EventPayload, streamID string) Event {
	e := NewTypedEvent(source, payload)
	e.StreamID = streamID
	return e
}

func toMap(v any) map[string]any {
	var result map[string]any
	data, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	if err := json.Unmarshal(data, &result); err != nil {
		return nil
	}
	return result
}

// ExtractPayload decodes an event payload back into its typed form.
func ExtractPayload[T EventPayload](e Event) (T, bool) {
	var result T
	if e.Type != result.EventType() {
		return result, false
	}
	data, err := json.Marshal(e.Payload)
	if err != nil {
		return result, false
	}
	if err := json.Unmarshal(data, &result); err != nil {
		return result, false
	}
	return result, true
}
