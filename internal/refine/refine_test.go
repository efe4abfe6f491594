package refine

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/cloudwego/eino/components/model"

	"github.com/dohr-michael/quill/internal/models"
	"github.com/dohr-michael/quill/internal/prompt"
	"github.com/dohr-michael/quill/internal/stream"
)

type stubBackend struct {
	text  string
	err   error
	calls int
}

func (s *stubBackend) Refine(context.Context, string, prompt.Mode) (string, error) {
	s.calls++
	return s.text, s.err
}

func TestAttempt_Refined(t *testing.T) {
	a := &Adapter{Backend: &stubBackend{text: "The cat."}}
	res := a.Attempt(context.Background(), "teh cat", prompt.Fix)
	if res.Outcome != Refined || res.Text != "The cat." {
		t.Errorf("result = %+v", res)
	}
}

func TestAttempt_FailedIsValueNotError(t *testing.T) {
	boom := errors.New("503")
	backend := &stubBackend{err: boom}
	a := &Adapter{Backend: backend}

	res := a.Attempt(context.Background(), "x", prompt.Improve)
	if res.Outcome != Failed || !errors.Is(res.Reason, boom) {
		t.Errorf("result = %+v", res)
	}
	if backend.calls != 1 {
		t.Errorf("backend called %d times, want exactly 1", backend.calls)
	}
}

func TestAttempt_NoBackend(t *testing.T) {
	res := (&Adapter{}).Attempt(context.Background(), "x", prompt.Improve)
	if res.Outcome != Failed || !errors.Is(res.Reason, ErrNoBackend) {
		t.Errorf("result = %+v", res)
	}
	var nilAdapter *Adapter
	if res := nilAdapter.Attempt(context.Background(), "x", prompt.Fix); res.Outcome != Failed {
		t.Errorf("nil adapter result = %+v", res)
	}
}

func TestEmit_OneCharacterPerChunk(t *testing.T) {
	buf := &stream.Buffer{}
	w := stream.New(buf)
	a := &Adapter{Cadence: stream.Cadence{Interval: time.Millisecond}}

	if err := a.Emit(context.Background(), "The cat.", w); err != nil {
		t.Fatalf("Emit: %v", err)
	}
	chunks := buf.Chunks()
	if len(chunks) != 8 {
		t.Fatalf("got %d chunks, want 8", len(chunks))
	}
	if strings.Join(chunks, "") != "The cat." {
		t.Errorf("output = %q", strings.Join(chunks, ""))
	}
	if w.State() != stream.Closed {
		t.Errorf("state = %s, want closed", w.State())
	}
}

func TestEmit_Cadence(t *testing.T) {
	a := &Adapter{Cadence: stream.Cadence{Interval: 10 * time.Millisecond}}
	start := time.Now()
	a.Emit(context.Background(), "Hello", stream.New(&stream.Buffer{}))

	if elapsed := time.Since(start); elapsed < 40*time.Millisecond {
		t.Errorf("5 characters took %s, want >= 40ms", elapsed)
	}
}

func TestEmit_MultiByteIdentical(t *testing.T) {
	text := "héllo 世界 👋"
	buf := &stream.Buffer{}
	a := &Adapter{}
	if err := a.Emit(context.Background(), text, stream.New(buf)); err != nil {
		t.Fatalf("Emit: %v", err)
	}
	if buf.String() != text {
		t.Errorf("output = %q, want %q", buf.String(), text)
	}
	if n := len(buf.Chunks()); n != 10 {
		t.Errorf("got %d chunks, want 10", n)
	}
}

func TestEmit_EmptyText(t *testing.T) {
	buf := &stream.Buffer{}
	w := stream.New(buf)
	if err := (&Adapter{}).Emit(context.Background(), "", w); err != nil {
		t.Fatalf("Emit: %v", err)
	}
	if w.State() != stream.Closed || len(buf.Chunks()) != 0 {
		t.Errorf("state = %s, chunks = %v", w.State(), buf.Chunks())
	}
}

func TestEmit_CancelStopsEmission(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	buf := &stream.Buffer{}
	w := stream.New(buf)
	a := &Adapter{Cadence: stream.Cadence{Interval: 10 * time.Millisecond}}

	time.AfterFunc(35*time.Millisecond, cancel)
	err := a.Emit(ctx, strings.Repeat("x", 100), w)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Emit = %v, want context.Canceled", err)
	}

	emitted := len(buf.Chunks())
	if emitted == 0 || emitted >= 100 {
		t.Errorf("emitted %d chunks", emitted)
	}
	if w.State() != stream.Failed {
		t.Errorf("state = %s, want failed", w.State())
	}

	time.Sleep(30 * time.Millisecond)
	if len(buf.Chunks()) != emitted {
		t.Error("chunks written after cancellation")
	}
}

func TestUnits_InvalidUTF8Preserved(t *testing.T) {
	text := "a\xffb"
	units := Units(text)
	if strings.Join(units, "") != text || len(units) != 3 {
		t.Errorf("units = %q", units)
	}
}

func TestHTTPBackend_Refine(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		var body TextBody
		json.NewDecoder(r.Body).Decode(&body)
		json.NewEncoder(w).Encode(TextBody{Text: strings.ToUpper(body.Text)})
	}))
	defer srv.Close()

	b := NewHTTPBackend(srv.URL+"/", time.Second)
	got, err := b.Refine(context.Background(), "short", prompt.Lengthen)
	if err != nil {
		t.Fatalf("Refine: %v", err)
	}
	if got != "SHORT" {
		t.Errorf("got %q", got)
	}
	if gotPath != "/longer" {
		t.Errorf("path = %q, want /longer", gotPath)
	}
}

func TestHTTPBackend_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte(`{"error":"model overloaded"}`))
	}))
	defer srv.Close()

	_, err := NewHTTPBackend(srv.URL, time.Second).Refine(context.Background(), "x", prompt.Fix)
	if err == nil || !strings.Contains(err.Error(), "model overloaded") {
		t.Fatalf("err = %v", err)
	}
}

func TestHTTPBackend_RejectsGenerativeMode(t *testing.T) {
	if _, err := NewHTTPBackend("http://unused", time.Second).Refine(context.Background(), "x", prompt.Continue); err == nil {
		t.Fatal("expected error for non-refinement mode")
	}
}

func TestHTTPBackend_Ping(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/health" {
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	if err := NewHTTPBackend(srv.URL, time.Second).Ping(context.Background()); err != nil {
		t.Errorf("Ping: %v", err)
	}
}

type fixedSource struct{ m model.BaseChatModel }

func (f fixedSource) Get(context.Context, string) (model.BaseChatModel, error) { return f.m, nil }

func TestModelBackend_CleansReasoning(t *testing.T) {
	mock := &models.MockChatModel{Chunks: []string{"<think>hmm</think>", "The cat sat."}}
	b := &ModelBackend{Models: fixedSource{mock}}

	got, err := b.Refine(context.Background(), "teh cat sat", prompt.Fix)
	if err != nil {
		t.Fatalf("Refine: %v", err)
	}
	if got != "The cat sat." {
		t.Errorf("got %q", got)
	}
}

func TestModelBackend_EmptyIsError(t *testing.T) {
	mock := &models.MockChatModel{Chunks: []string{"<think>only thoughts"}}
	b := &ModelBackend{Models: fixedSource{mock}}

	if _, err := b.Refine(context.Background(), "x", prompt.Improve); err == nil {
		t.Fatal("expected error for empty refinement")
	}
}
