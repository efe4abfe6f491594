package ws

import "encoding/json"

// FrameType represents the type of WebSocket frame.
type FrameType string

const (
	// FrameTypeRequest is the single client frame; Payload holds the
	// generation request JSON.
	FrameTypeRequest FrameType = "request"
	FrameTypeStart   FrameType = "start"
	FrameTypeChunk   FrameType = "chunk"
	FrameTypeDone    FrameType = "done"
	FrameTypeError   FrameType = "error"
	FrameTypeEvent   FrameType = "event"
)

// Frame is the WebSocket protocol envelope.
type Frame struct {
	Type     FrameType       `json:"type"`
	StreamID string          `json:"stream_id,omitempty"`
	Text     string          `json:"text,omitempty"`
	Status   int             `json:"status,omitempty"`
	Error    string          `json:"error,omitempty"`
	Event    string          `json:"event,omitempty"`
	Payload  json.RawMessage `json:"payload,omitempty"`
}

// MarshalFrame serializes a Frame to JSON bytes.
func MarshalFrame(f Frame) ([]byte, error) {
	return json.Marshal(f)
}

// UnmarshalFrame deserializes JSON bytes into a Frame.
func UnmarshalFrame(data []byte) (Frame, error) {
	var f Frame
	err := json.Unmarshal(data, &f)
	return f, err
}

// NewRequestFrame wraps a generation request.
func NewRequestFrame(req any) (Frame, error) {
	data, err := json.Marshal(req)
	if err != nil {
		return Frame{}, err
	}
	return Frame{Type: FrameTypeRequest, Payload: data}, nil
}

// NewEventFrame creates a Frame for broadcasting an event.
func NewEventFrame(event string, payload any) (Frame, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Frame{}, err
	}
	return Frame{
		Type:    FrameTypeEvent,
		Event:   event,
		Payload: data,
	}, nil
}

// NewErrorFrame creates a pre-stream error Frame carrying an HTTP-equivalent status.
func NewErrorFrame(status int, msg string) Frame {
	return Frame{Type: FrameTypeError, Status: status, Error: msg}
}
