package ws

import (
	"context"
	"fmt"

	"github.com/coder/websocket"
)

// Sink delivers a stream over a WebSocket connection: a start frame, one
// chunk frame per chunk, then a done frame and a normal closure. An aborted
// stream is closed with StatusInternalError and no done frame.
type Sink struct {
	ctx      context.Context
	conn     *websocket.Conn
	streamID string
}

// NewSink creates a sink writing to conn.
func NewSink(ctx context.Context, conn *websocket.Conn) *Sink {
	return &Sink{ctx: ctx, conn: conn}
}

// SetStreamID sets the id announced in the start frame.
func (s *Sink) SetStreamID(id string) { s.streamID = id }

func (s *Sink) Begin() error {
	return s.write(Frame{Type: FrameTypeStart, StreamID: s.streamID})
}

func (s *Sink) Send(chunk string) error {
	return s.write(Frame{Type: FrameTypeChunk, Text: chunk})
}

func (s *Sink) End() error {
	if err := s.write(Frame{Type: FrameTypeDone, StreamID: s.streamID}); err != nil {
		return err
	}
	return s.conn.Close(websocket.StatusNormalClosure, "")
}

func (s *Sink) Abort(error) error {
	return s.conn.Close(websocket.StatusInternalError, "generation failed")
}

// WriteFrame sends a single frame.
func WriteFrame(ctx context.Context, conn *websocket.Conn, f Frame) error {
	data, err := MarshalFrame(f)
	if err != nil {
		return fmt.Errorf("marshal frame: %w", err)
	}
	return conn.Write(ctx, websocket.MessageText, data)
}

func (s *Sink) write(f Frame) error {
	return WriteFrame(s.ctx, s.conn, f)
}
