package gateway

import (
	"bytes"
	"log/slog"
	"net/http"

	"github.com/coder/websocket"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/dohr-michael/quill/internal/dispatch"
	"github.com/dohr-michael/quill/internal/gateway/ws"
	"github.com/dohr-michael/quill/internal/stream"
)

// handleGenerate streams the generated text as a chunked text/plain body.
// Errors before the first chunk become a JSON error response. After it, the
// response is aborted so the client sees a truncated body.
func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	sink := stream.NewHTTPSink(w)
	sw := stream.New(sink)
	log := slog.With("request_id", middleware.GetReqID(r.Context()), "stream_id", sw.ID())

	err := s.dispatcher.Serve(r.Context(), r.Body, sw)
	if err == nil {
		return
	}

	if sw.State() == stream.Pending {
		status, msg := dispatch.Describe(err)
		logServeError(log, status, err)
		writeError(w, status, msg)
		return
	}

	log.Warn("stream terminated", "state", sw.State().String(), "error", err)
	if sink.Aborted() {
		panic(http.ErrAbortHandler)
	}
}

// handleGenerateWS serves one generation over a WebSocket: the client sends
// a request frame and receives start, chunk and done frames.
func (s *Server) handleGenerateWS(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		slog.Error("ws accept", "error", err)
		return
	}
	defer conn.CloseNow()
	conn.SetReadLimit(s.maxBody)

	ctx := r.Context()
	_, data, err := conn.Read(ctx)
	if err != nil {
		slog.Debug("ws read request", "error", err)
		return
	}
	frame, err := ws.UnmarshalFrame(data)
	if err != nil || frame.Type != ws.FrameTypeRequest {
		_ = ws.WriteFrame(ctx, conn, ws.NewErrorFrame(http.StatusBadRequest, "expected a request frame"))
		conn.Close(websocket.StatusPolicyViolation, "expected a request frame")
		return
	}

	// No further client frames are expected; CloseRead cancels ctx on disconnect.
	ctx = conn.CloseRead(ctx)
	sink := ws.NewSink(ctx, conn)
	sw := stream.New(sink)
	sink.SetStreamID(sw.ID())
	log := slog.With("request_id", middleware.GetReqID(r.Context()), "stream_id", sw.ID(), "transport", "ws")

	err = s.dispatcher.Serve(ctx, bytes.NewReader(frame.Payload), sw)
	if err == nil {
		return
	}
	if sw.State() == stream.Pending {
		status, msg := dispatch.Describe(err)
		logServeError(log, status, err)
		if werr := ws.WriteFrame(ctx, conn, ws.NewErrorFrame(status, msg)); werr != nil {
			log.Debug("ws write error frame", "error", werr)
		}
		conn.Close(websocket.StatusNormalClosure, "")
		return
	}
	log.Warn("stream terminated", "state", sw.State().String(), "error", err)
}

func logServeError(log *slog.Logger, status int, err error) {
	if status >= http.StatusInternalServerError {
		log.Error("generation request failed", "status", status, "error", err)
		return
	}
	log.Info("generation request rejected", "status", status, "error", err)
}
