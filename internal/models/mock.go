package models

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/dohr-michael/quill/internal/config"
)

// MockChatModel returns scripted responses with a configurable delay.
// Used for development (serve --mock) and tests without a real LLM backend.
//
// With no Chunks it echoes the last user message word by word.
type MockChatModel struct {
	Chunks []string
	Delay  time.Duration

	// StreamErr is returned by Stream before any chunk.
	StreamErr error
	// RecvErr is delivered by the reader after RecvErrAt chunks.
	RecvErr   error
	RecvErrAt int

	calls atomic.Int32
}

// NewMock creates a mock model. Option "delay" (a duration string) spaces chunks.
func NewMock(cfg config.ProviderConfig) *MockChatModel {
	m := &MockChatModel{Delay: 20 * time.Millisecond}
	if s, ok := cfg.Options["delay"].(string); ok {
		if d, err := time.ParseDuration(s); err == nil {
			m.Delay = d
		}
	}
	return m
}

// Calls returns how many times Generate or Stream was invoked.
func (m *MockChatModel) Calls() int { return int(m.calls.Load()) }

func (m *MockChatModel) Generate(ctx context.Context, messages []*schema.Message, _ ...model.Option) (*schema.Message, error) {
	m.calls.Add(1)
	if m.StreamErr != nil {
		return nil, m.StreamErr
	}
	if err := m.wait(ctx); err != nil {
		return nil, err
	}
	chunks := m.script(messages)
	if m.RecvErr != nil && m.RecvErrAt <= len(chunks) {
		return nil, m.RecvErr
	}
	return &schema.Message{Role: schema.Assistant, Content: strings.Join(chunks, "")}, nil
}

func (m *MockChatModel) Stream(ctx context.Context, messages []*schema.Message, _ ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	m.calls.Add(1)
	if m.StreamErr != nil {
		return nil, m.StreamErr
	}

	chunks := m.script(messages)
	sr, sw := schema.Pipe[*schema.Message](1)
	go func() {
		defer sw.Close()
		for i, c := range chunks {
			if m.RecvErr != nil && i == m.RecvErrAt {
				sw.Send(nil, m.RecvErr)
				return
			}
			if err := m.wait(ctx); err != nil {
				sw.Send(nil, err)
				return
			}
			if closed := sw.Send(&schema.Message{Role: schema.Assistant, Content: c}, nil); closed {
				return
			}
		}
		if m.RecvErr != nil && m.RecvErrAt >= len(chunks) {
			sw.Send(nil, m.RecvErr)
		}
	}()
	return sr, nil
}

func (m *MockChatModel) wait(ctx context.Context) error {
	if m.Delay <= 0 {
		return ctx.Err()
	}
	select {
	case <-time.After(m.Delay):
		return nil
	case <-ctx.Done():
		return fmt.Errorf("mock: %w", ctx.Err())
	}
}

func (m *MockChatModel) script(messages []*schema.Message) []string {
	if m.Chunks != nil {
		return m.Chunks
	}
	var last string
	for _, msg := range messages {
		if msg.Role == schema.User {
			last = msg.Content
		}
	}
	words := strings.SplitAfter(last, " ")
	out := words[:0]
	for _, w := range words {
		if w != "" {
			out = append(out, w)
		}
	}
	return out
}

// ErrMockUnavailable is a ready-made backend failure for tests.
var ErrMockUnavailable = errors.New("mock: backend unavailable")

var _ model.BaseChatModel = (*MockChatModel)(nil)
