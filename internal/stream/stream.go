// Package stream delivers text to a caller as an ordered sequence of chunks
// and tracks the lifecycle of that delivery.
//
// A Stream moves Pending → Open → Closed or Failed. Once terminal, it accepts
// no further writes. The transport side is a Sink; the Stream guarantees the
// sink sees Begin at most once, Send only between Begin and End, and exactly
// one of End or Abort.
package stream

import (
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// State is the lifecycle position of a stream.
type State int

const (
	Pending State = iota
	Open
	Closed
	Failed
)

func (s State) String() string {
	switch s {
	case Pending:
		return "pending"
	case Open:
		return "open"
	case Closed:
		return "closed"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

var (
	// ErrClosed is returned for operations on a stream that completed normally.
	ErrClosed = errors.New("stream closed")
	// ErrFailed is returned for operations on a stream that was failed.
	ErrFailed = errors.New("stream failed")
	// ErrEmptyChunk is returned when writing a zero-length chunk.
	ErrEmptyChunk = errors.New("empty chunk")
	// ErrNotOpen is returned when failing a stream that never opened.
	ErrNotOpen = errors.New("stream not open")
)

// Sink is the transport under a Stream.
type Sink interface {
	Begin() error
	Send(chunk string) error
	End() error
	Abort(err error) error
}

// Writer is the single channel through which text reaches the caller.
type Writer interface {
	ID() string
	State() State
	Open() error
	Write(chunk string) error
	Close() error
	Fail(err error) error
}

// Stream is a Writer over a Sink. It is safe for concurrent use.
type Stream struct {
	id   string
	sink Sink

	mu     sync.Mutex
	state  State
	err    error
	chunks int
	bytes  int
}

// New creates a pending stream over sink.
func New(sink Sink) *Stream {
	return &Stream{id: uuid.NewString(), sink: sink}
}

func (s *Stream) ID() string { return s.id }

func (s *Stream) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Err returns the error that failed the stream, if any.
func (s *Stream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Stats returns the number of chunks and bytes delivered so far.
func (s *Stream) Stats() (chunks, bytes int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.chunks, s.bytes
}

// Open starts delivery. Opening an open stream is a no-op.
func (s *Stream) Open() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.openLocked()
}

func (s *Stream) openLocked() error {
	switch s.state {
	case Open:
		return nil
	case Closed:
		return ErrClosed
	case Failed:
		return ErrFailed
	}
	if err := s.sink.Begin(); err != nil {
		s.failLocked(err)
		return fmt.Errorf("begin stream: %w", err)
	}
	s.state = Open
	return nil
}

// Write delivers one chunk, opening the stream first if it is pending.
// A transport error fails the stream.
func (s *Stream) Write(chunk string) error {
	if chunk == "" {
		return ErrEmptyChunk
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.openLocked(); err != nil {
		return err
	}
	if err := s.sink.Send(chunk); err != nil {
		s.failLocked(err)
		return fmt.Errorf("send chunk: %w", err)
	}
	s.chunks++
	s.bytes += len(chunk)
	return nil
}

// Close completes the stream normally. A pending stream is opened and closed
// with no content.
func (s *Stream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.openLocked(); err != nil {
		return err
	}
	s.state = Closed
	if err := s.sink.End(); err != nil {
		return fmt.Errorf("end stream: %w", err)
	}
	return nil
}

// Fail terminates an open stream abnormally so the caller can tell the
// output is incomplete. A pending stream is left untouched and ErrNotOpen
// returned; the caller is expected to answer with an error response instead.
func (s *Stream) Fail(err error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case Pending:
		return ErrNotOpen
	case Closed:
		return ErrClosed
	case Failed:
		return ErrFailed
	}
	s.failLocked(err)
	return nil
}

func (s *Stream) failLocked(err error) {
	s.state = Failed
	s.err = err
	_ = s.sink.Abort(err)
}

var _ Writer = (*Stream)(nil)
