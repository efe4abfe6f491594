package stream

import (
	"errors"
	"io"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
)

// HTTPSink writes chunks to a chunked text/plain HTTP response, flushing
// after every chunk.
//
// Abort only records the failure: the handler must then abort the response
// (panic with http.ErrAbortHandler) so the client observes a truncated body.
type HTTPSink struct {
	w       http.ResponseWriter
	rc      *http.ResponseController
	aborted atomic.Bool
}

// NewHTTPSink wraps w.
func NewHTTPSink(w http.ResponseWriter) *HTTPSink {
	return &HTTPSink{w: w, rc: http.NewResponseController(w)}
}

func (s *HTTPSink) Begin() error {
	h := s.w.Header()
	h.Set("Content-Type", "text/plain; charset=utf-8")
	h.Set("Cache-Control", "no-cache")
	h.Set("X-Content-Type-Options", "nosniff")
	s.w.WriteHeader(http.StatusOK)
	return s.flush()
}

func (s *HTTPSink) Send(chunk string) error {
	if _, err := io.WriteString(s.w, chunk); err != nil {
		return err
	}
	return s.flush()
}

func (s *HTTPSink) End() error { return s.flush() }

func (s *HTTPSink) Abort(error) error {
	s.aborted.Store(true)
	return nil
}

// Aborted reports whether the stream was terminated abnormally.
func (s *HTTPSink) Aborted() bool { return s.aborted.Load() }

func (s *HTTPSink) flush() error {
	err := s.rc.Flush()
	if errors.Is(err, http.ErrNotSupported) {
		return nil
	}
	return err
}

// Buffer is an in-memory Sink. It records everything it is given.
type Buffer struct {
	mu       sync.Mutex
	began    bool
	ended    bool
	abortErr error
	chunks   []string
}

func (b *Buffer) Begin() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.began = true
	return nil
}

func (b *Buffer) Send(chunk string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.chunks = append(b.chunks, chunk)
	return nil
}

func (b *Buffer) End() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.ended = true
	return nil
}

func (b *Buffer) Abort(err error) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.abortErr = err
	return nil
}

// Chunks returns a copy of the chunks received.
func (b *Buffer) Chunks() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.chunks...)
}

// String returns the concatenated output.
func (b *Buffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return strings.Join(b.chunks, "")
}

// Began reports whether Begin was called.
func (b *Buffer) Began() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.began
}

// Ended reports whether End was called.
func (b *Buffer) Ended() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.ended
}

// AbortErr returns the error passed to Abort, if any.
func (b *Buffer) AbortErr() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.abortErr
}

// WriterSink forwards chunks to an io.Writer. Used by the CLI.
type WriterSink struct {
	W io.Writer
}

func (s WriterSink) Begin() error { return nil }

func (s WriterSink) Send(chunk string) error {
	_, err := io.WriteString(s.W, chunk)
	return err
}

func (s WriterSink) End() error { return nil }
func (s WriterSink) Abort(error) error { return nil }
