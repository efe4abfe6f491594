// Package events provides an in-memory event bus for request lifecycle events.
package events

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

var ErrBusClosed = errors.New("event bus is closed")

// EventType represents the type of event.
type EventType string

const (
	EventGenerationStarted   EventType = "generation.started"
	EventRefineFallback      EventType = "refine.fallback"
	EventGenerationCompleted EventType = "generation.completed"
	EventGenerationFailed    EventType = "generation.failed"
	EventRequestRejected     EventType = "request.rejected"
	EventBackendHealth       EventType = "backend.health"
	EventModelCall           EventType = "model.call"
)

// EventSource identifies the component that emitted an event.
type EventSource string

const (
	SourceDispatch EventSource = "dispatch"
	SourceGateway  EventSource = "gateway"
	SourceHealth   EventSource = "health"
	SourceModel    EventSource = "model"
)

// Event represents an event in the system.
type Event struct {
	ID        string         `json:"id"`
	StreamID  string         `json:"stream_id,omitempty"`
	Type      EventType      `json:"type"`
	Timestamp time.Time      `json:"timestamp"`
	Source    EventSource    `json:"source"`
	Payload   map[string]any `json:"payload"`
}

var eventIDCounter uint64

func generateEventID() string {
	seq := atomic.AddUint64(&eventIDCounter, 1)
	return fmt.Sprintf("%d-%d", time.Now().UnixNano(), seq)
}

// Subscriber is a function that receives events. Each subscriber is called
// from its own goroutine, one event at a time, in publish order.
type Subscriber func(Event)

// subscriberQueueSize bounds the events waiting for a slow subscriber.
const subscriberQueueSize = 256

type subscription struct {
	eventTypes []EventType
	handler    Subscriber
	queue      chan Event
}

func (s *subscription) run() {
	for event := range s.queue {
		s.handler(event)
	}
}

// Bus is an in-memory event bus. Publish never blocks; events are dropped
// when the dispatch queue or a subscriber queue is full.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[int]*subscription
	nextID      int
	eventChan   chan Event
	ringBuffer  *RingBuffer
	closed      bool
	done        chan struct{}
	dropped     atomic.Uint64
}

// NewBus creates a new event bus keeping the last bufferSize events.
func NewBus(bufferSize int) *Bus {
	if bufferSize <= 0 {
		bufferSize = 1
	}
	b := &Bus{
		subscribers: make(map[int]*subscription),
		eventChan:   make(chan Event, bufferSize),
		ringBuffer:  NewRingBuffer(bufferSize),
		done:        make(chan struct{}),
	}
	go b.dispatch()
	return b
}

func (b *Bus) dispatch() {
	for {
		select {
		case event := <-b.eventChan:
			b.ringBuffer.Add(event)
			b.notifySubscribers(event)
		case <-b.done:
			return
		}
	}
}

func (b *Bus) notifySubscribers(event Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, sub := range b.subscribers {
		if !sub.matches(event) {
			continue
		}
		select {
		case sub.queue <- event:
		default:
			b.dropped.Add(1)
		}
	}
}

func (s *subscription) matches(event Event) bool {
	if len(s.eventTypes) == 0 {
		return true
	}
	for _, t := range s.eventTypes {
		if t == event.Type {
			return true
		}
	}
	return false
}

// Publish sends an event to the bus.
func (b *Bus) Publish(event Event) {
	if b.isClosed() {
		return
	}

	select {
	case b.eventChan <- event:
	default:
		b.dropped.Add(1)
	}
}

// PublishWait sends an event, waiting for queue space until ctx is done.
func (b *Bus) PublishWait(ctx context.Context, event Event) error {
	if b.isClosed() {
		return ErrBusClosed
	}

	select {
	case b.eventChan <- event:
		return nil
	case <-b.done:
		return ErrBusClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (b *Bus) isClosed() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.closed
}

// Subscribe registers a handler for specific event types (none = all).
// Returns an unsubscribe function.
func (b *Bus) Subscribe(handler Subscriber, eventTypes ...EventType) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	sub := &subscription{
		eventTypes: eventTypes,
		handler:    handler,
		queue:      make(chan Event, subscriberQueueSize),
	}
	if b.closed {
		close(sub.queue)
	} else {
		b.subscribers[id] = sub
	}
	go sub.run()

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if _, ok := b.subscribers[id]; ok {
			delete(b.subscribers, id)
			close(sub.queue)
		}
	}
}

// SubscribeChan returns a channel that receives events. Events are dropped
// when the channel is full.
func (b *Bus) SubscribeChan(bufSize int, eventTypes ...EventType) (<-chan Event, func()) {
	ch := make(chan Event, bufSize)
	var mu sync.Mutex
	closed := false

	unsubscribe := b.Subscribe(func(e Event) {
		mu.Lock()
		defer mu.Unlock()
		if closed {
			return
		}
		select {
		case ch <- e:
		default:
		}
	}, eventTypes...)

	return ch, func() {
		unsubscribe()
		mu.Lock()
		defer mu.Unlock()
		if !closed {
			closed = true
			close(ch)
		}
	}
}

// History returns up to limit recent events, oldest first.
func (b *Bus) History(limit int) []Event {
	return b.ringBuffer.Get(limit)
}

// Dropped returns how many events were discarded because a queue was full.
func (b *Bus) Dropped() uint64 {
	return b.dropped.Load()
}

// Close shuts down the event bus.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	close(b.done)
	for id, sub := range b.subscribers {
		close(sub.queue)
		delete(b.subscribers, id)
	}
}

// RingBuffer is a circular buffer for storing recent events.
type RingBuffer struct {
	mu     sync.RWMutex
	events []Event
	size   int
	pos    int
	count  int
}

// NewRingBuffer creates a new ring buffer.
func NewRingBuffer(size int) *RingBuffer {
	return &RingBuffer{
		events: make([]Event, size),
		size:   size,
	}
}

func (r *RingBuffer) Add(event Event) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.events[r.pos] = event
	r.pos = (r.pos + 1) % r.size
	if r.count < r.size {
		r.count++
	}
}

func (r *RingBuffer) Get(n int) []Event {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if n > r.count {
		n = r.count
	}
	if n <= 0 {
		return nil
	}

	result := make([]Event, n)
	start := (r.pos - n + r.size) % r.size
	for i := 0; i < n; i++ {
		result[i] = r.events[(start+i)%r.size]
	}
	return result
}
