package api

import (
	"context"
	"fmt"

	"github.com/coder/websocket"

	"github.com/dohr-michael/quill/internal/dispatch"
	wsprotocol "github.com/dohr-michael/quill/internal/gateway/ws"
)

// WSClient is a WebSocket client for one generation.
type WSClient struct {
	conn   *websocket.Conn
	ctx    context.Context
	cancel context.CancelFunc
}

// DialWS connects to the gateway WebSocket endpoint.
func DialWS(ctx context.Context, url string) (*WSClient, error) {
	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("ws dial: %w", err)
	}

	clientCtx, cancel := context.WithCancel(ctx)

	return &WSClient{
		conn:   conn,
		ctx:    clientCtx,
		cancel: cancel,
	}, nil
}

// Send sends the generation request frame.
func (c *WSClient) Send(req dispatch.Request) error {
	frame, err := wsprotocol.NewRequestFrame(req)
	if err != nil {
		return err
	}
	return wsprotocol.WriteFrame(c.ctx, c.conn, frame)
}

// ReadFrame reads the next frame from the connection.
func (c *WSClient) ReadFrame() (wsprotocol.Frame, error) {
	_, data, err := c.conn.Read(c.ctx)
	if err != nil {
		return wsprotocol.Frame{}, err
	}
	return wsprotocol.UnmarshalFrame(data)
}

// Generate sends req and calls onChunk for every chunk until the stream
// completes. A server-side failure after the first chunk yields ErrTruncated.
func (c *WSClient) Generate(req dispatch.Request, onChunk func(string) error) error {
	if err := c.Send(req); err != nil {
		return err
	}
	for {
		f, err := c.ReadFrame()
		if err != nil {
			if websocket.CloseStatus(err) == websocket.StatusInternalError {
				return ErrTruncated
			}
			return err
		}
		switch f.Type {
		case wsprotocol.FrameTypeChunk:
			if err := onChunk(f.Text); err != nil {
				return err
			}
		case wsprotocol.FrameTypeDone:
			return nil
		case wsprotocol.FrameTypeError:
			return &Error{Status: f.Status, Message: f.Error}
		}
	}
}

// Close gracefully closes the connection.
func (c *WSClient) Close() error {
	c.cancel()
	return c.conn.Close(websocket.StatusNormalClosure, "bye")
}
