package dispatch

import (
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/dohr-michael/quill/internal/config"
	"github.com/dohr-michael/quill/internal/events"
	"github.com/dohr-michael/quill/internal/generate"
	"github.com/dohr-michael/quill/internal/metrics"
	"github.com/dohr-michael/quill/internal/models"
	"github.com/dohr-michael/quill/internal/prompt"
	"github.com/dohr-michael/quill/internal/refine"
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

type fixedSource struct {
	m   model.BaseChatModel
	err error
}

func (f fixedSource) Get(context.Context, string) (model.BaseChatModel, error) { return f.m, f.err }

// recordingModel captures the messages of the last Stream call.
type recordingModel struct {
	models.MockChatModel
	messages []*schema.Message
}

func (r *recordingModel) Stream(ctx context.Context, messages []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	r.messages = messages
	return r.MockChatModel.Stream(ctx, messages, opts...)
}

func newDispatcher(backend refine.Backend, m model.BaseChatModel) *Dispatcher {
	var ra *refine.Adapter
	if backend != nil {
		ra = &refine.Adapter{Backend: backend}
	}
	return &Dispatcher{
		Refine:         ra,
		Generate:       &generate.Adapter{Models: fixedSource{m: m}},
		MaxPromptChars: 100,
	}
}

func TestDecodeRequest(t *testing.T) {
	req, err := DecodeRequest(strings.NewReader(`{"prompt":"hi","mode":"Shorter"}`), 0)
	if err != nil {
		t.Fatalf("DecodeRequest: %v", err)
	}
	if req.Prompt != "hi" || req.Mode != prompt.Shorten {
		t.Errorf("req = %+v", req)
	}
}

func TestDecodeRequest_OptionFallback(t *testing.T) {
	req, err := DecodeRequest(strings.NewReader(`{"prompt":"hi","option":"zap","command":"translate"}`), 0)
	if err != nil {
		t.Fatalf("DecodeRequest: %v", err)
	}
	if req.Mode != prompt.ApplyCommand || req.Command != "translate" {
		t.Errorf("req = %+v", req)
	}
}

func TestDecodeRequest_UnknownModeIsDefault(t *testing.T) {
	req, err := DecodeRequest(strings.NewReader(`{"prompt":"","mode":"poetry"}`), 0)
	if err != nil {
		t.Fatalf("DecodeRequest: %v", err)
	}
	if req.Mode != prompt.Default {
		t.Errorf("mode = %s, want default", req.Mode)
	}
}

func TestDecodeRequest_Invalid(t *testing.T) {
	cases := map[string]string{
		"malformed":        `{"prompt":`,
		"missing prompt":   `{"mode":"continue"}`,
		"missing command":  `{"prompt":"x","mode":"apply-command"}`,
		"empty refinement": `{"prompt":"  ","mode":"fix"}`,
		"too long":         `{"prompt":"` + strings.Repeat("é", 11) + `"}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := DecodeRequest(strings.NewReader(body), 10)
			var ve *ValidationError
			if !errors.As(err, &ve) || ve.Status != http.StatusBadRequest {
				t.Fatalf("err = %v, want 400 ValidationError", err)
			}
		})
	}
}

func TestDecodeRequest_BodyTooLarge(t *testing.T) {
	body := http.MaxBytesReader(nil, io.NopCloser(strings.NewReader(`{"prompt":"`+strings.Repeat("a", 64)+`"}`)), 16)
	_, err := DecodeRequest(body, 0)
	if status, _ := Describe(err); status != http.StatusRequestEntityTooLarge {
		t.Errorf("status = %d, want 413", status)
	}
}

func TestHandle_RefineSuccess(t *testing.T) {
	mock := &models.MockChatModel{Chunks: []string{"unused"}}
	d := newDispatcher(&stubBackend{text: "Short."}, mock)
	buf := &stream.Buffer{}
	w := stream.New(buf)

	if err := d.Handle(context.Background(), Request{Prompt: "A long text.", Mode: prompt.Shorten}, w); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if got := strings.Join(buf.Chunks(), "|"); got != "S|h|o|r|t|." {
		t.Errorf("chunks = %q", got)
	}
	if mock.Calls() != 0 {
		t.Error("generative backend must not be invoked on refine success")
	}
	if w.State() != stream.Closed {
		t.Errorf("state = %s", w.State())
	}
}

func TestHandle_RefineFallback(t *testing.T) {
	rec := &recordingModel{MockChatModel: models.MockChatModel{Chunks: []string{"Fixed ", "text."}}}
	backend := &stubBackend{err: errors.New("503 Service Unavailable")}
	d := newDispatcher(backend, rec)
	bus := events.NewBus(16)
	defer bus.Close()
	d.Bus = bus
	before := testutil.ToFloat64(metrics.RefineFallbacks.WithLabelValues("fix"))

	buf := &stream.Buffer{}
	err := d.Handle(context.Background(), Request{Prompt: "teh text", Mode: prompt.Fix}, stream.New(buf))
	if err != nil {
		t.Fatalf("fallback must not surface an error: %v", err)
	}
	if buf.String() != "Fixed text." {
		t.Errorf("output = %q", buf.String())
	}
	if backend.calls != 1 || rec.Calls() != 1 {
		t.Errorf("calls: refine=%d generate=%d", backend.calls, rec.Calls())
	}

	want := prompt.Build(prompt.Fix, "teh text", "")
	if len(rec.messages) != 2 || rec.messages[0].Content != want.System || rec.messages[1].Content != want.User {
		t.Error("fallback must use the fix template")
	}
	if after := testutil.ToFloat64(metrics.RefineFallbacks.WithLabelValues("fix")); after != before+1 {
		t.Errorf("fallback counter = %v, want %v", after, before+1)
	}

	time.Sleep(50 * time.Millisecond)
	var sawFallback bool
	for _, e := range bus.History(10) {
		if e.Type == events.EventRefineFallback {
			sawFallback = true
		}
	}
	if !sawFallback {
		t.Error("expected a refine.fallback event")
	}
}

func TestHandle_NoRefineBackendFallsBack(t *testing.T) {
	d := newDispatcher(nil, &models.MockChatModel{Chunks: []string{"ok"}})
	buf := &stream.Buffer{}
	if err := d.Handle(context.Background(), Request{Prompt: "x", Mode: prompt.Improve}, stream.New(buf)); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if buf.String() != "ok" {
		t.Errorf("output = %q", buf.String())
	}
}

func TestHandle_ContinueSkipsRefinement(t *testing.T) {
	backend := &stubBackend{text: "never"}
	d := newDispatcher(backend, &models.MockChatModel{Chunks: []string{"and then"}})
	buf := &stream.Buffer{}
	if err := d.Handle(context.Background(), Request{Prompt: "Once", Mode: prompt.Continue}, stream.New(buf)); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if backend.calls != 0 {
		t.Error("refinement backend must not be called for continue")
	}
}

func TestHandle_MissingCredential(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	os.Unsetenv("OPENAI_API_KEY")
	reg := models.NewRegistry(config.ModelsConfig{
		Default:   "main",
		Providers: map[string]config.ProviderConfig{"main": {Driver: "openai"}},
	}, nil)
	d := &Dispatcher{Generate: &generate.Adapter{Models: reg}}

	w := stream.New(&stream.Buffer{})
	err := d.Handle(context.Background(), Request{Prompt: "x", Mode: prompt.Continue}, w)

	var ce *ConfigurationError
	if !errors.As(err, &ce) {
		t.Fatalf("err = %v, want ConfigurationError", err)
	}
	status, msg := Describe(err)
	if status != http.StatusBadRequest || !strings.Contains(msg, "OPENAI_API_KEY") {
		t.Errorf("Describe = %d %q", status, msg)
	}
	if w.State() != stream.Pending {
		t.Errorf("state = %s, want pending", w.State())
	}
}

func TestServe_PreStreamBackendError(t *testing.T) {
	d := newDispatcher(nil, &models.MockChatModel{StreamErr: errors.New("dial tcp: refused")})
	w := stream.New(&stream.Buffer{})

	err := d.Serve(context.Background(), strings.NewReader(`{"prompt":"x"}`), w)
	status, msg := Describe(err)
	if status != http.StatusBadGateway || msg != "generation failed" {
		t.Errorf("Describe = %d %q", status, msg)
	}
	if strings.Contains(msg, "refused") {
		t.Error("backend detail leaked")
	}
	if w.State() != stream.Pending {
		t.Errorf("state = %s, want pending", w.State())
	}
}

func TestServe_MidStreamFailure(t *testing.T) {
	mock := &models.MockChatModel{Chunks: []string{"a", "b", "c"}, RecvErr: errors.New("reset"), RecvErrAt: 1}
	d := newDispatcher(nil, mock)
	buf := &stream.Buffer{}
	w := stream.New(buf)

	err := d.Serve(context.Background(), strings.NewReader(`{"prompt":"x"}`), w)
	if err == nil {
		t.Fatal("expected error")
	}
	if w.State() != stream.Failed {
		t.Errorf("state = %s, want failed", w.State())
	}
	if buf.String() != "a" || buf.Ended() || buf.AbortErr() == nil {
		t.Errorf("buffer = %q ended=%v abort=%v", buf.String(), buf.Ended(), buf.AbortErr())
	}
}

type panicBackend struct{}

func (panicBackend) Refine(context.Context, string, prompt.Mode) (string, error) {
	panic("nil map")
}

func TestServe_PanicBeforeStream(t *testing.T) {
	d := newDispatcher(panicBackend{}, &models.MockChatModel{})
	w := stream.New(&stream.Buffer{})

	err := d.Serve(context.Background(), strings.NewReader(`{"prompt":"x","mode":"fix"}`), w)
	var ue *UnexpectedError
	if !errors.As(err, &ue) {
		t.Fatalf("err = %v, want UnexpectedError", err)
	}
	status, msg := Describe(err)
	if status != http.StatusInternalServerError || msg != "internal server error" {
		t.Errorf("Describe = %d %q", status, msg)
	}
}

type panickySink struct {
	stream.Buffer
	sends int
}

func (p *panickySink) Send(chunk string) error {
	p.sends++
	if p.sends == 2 {
		panic("sink exploded")
	}
	return p.Buffer.Send(chunk)
}

func TestServe_PanicMidStreamFailsWriter(t *testing.T) {
	d := newDispatcher(nil, &models.MockChatModel{Chunks: []string{"a", "b"}})
	sink := &panickySink{}
	w := stream.New(sink)

	if err := d.Serve(context.Background(), strings.NewReader(`{"prompt":"x"}`), w); err == nil {
		t.Fatal("expected error")
	}
	if w.State() != stream.Failed {
		t.Errorf("state = %s, want failed", w.State())
	}
}

func TestServe_ValidationPublishesRejection(t *testing.T) {
	bus := events.NewBus(8)
	defer bus.Close()
	d := newDispatcher(nil, &models.MockChatModel{})
	d.Bus = bus

	err := d.Serve(context.Background(), strings.NewReader(`{}`), stream.New(&stream.Buffer{}))
	if status, msg := Describe(err); status != http.StatusBadRequest || msg != "prompt is required" {
		t.Errorf("Describe = %d %q", status, msg)
	}

	time.Sleep(50 * time.Millisecond)
	history := bus.History(1)
	if len(history) != 1 || history[0].Type != events.EventRequestRejected {
		t.Fatalf("history = %+v", history)
	}
}

func TestDecodeRequest_TrailingData(t *testing.T) {
	for _, body := range []string{
		`{"prompt":"x"} {"prompt":"y"}`,
		`{"prompt":"x"} garbage`,
		`{"prompt":"x"}}`,
	} {
		_, err := DecodeRequest(strings.NewReader(body), 0)
		if status, msg := Describe(err); status != http.StatusBadRequest || msg != "invalid JSON body" {
			t.Errorf("%s: Describe = %d %q", body, status, msg)
		}
	}

	if _, err := DecodeRequest(strings.NewReader("{\"prompt\":\"x\"}\n  \n"), 0); err != nil {
		t.Errorf("trailing whitespace rejected: %v", err)
	}
}

func TestServe_EmptyContinueWithoutCredential(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	os.Unsetenv("OPENAI_API_KEY")
	reg := models.NewRegistry(config.ModelsConfig{
		Default:   "main",
		Providers: map[string]config.ProviderConfig{"main": {Driver: "openai"}},
	}, nil)
	d := &Dispatcher{Generate: &generate.Adapter{Models: reg}}
	buf := &stream.Buffer{}
	w := stream.New(buf)

	err := d.Serve(context.Background(), strings.NewReader(`{"prompt":"","mode":"continue"}`), w)

	var ce *ConfigurationError
	if !errors.As(err, &ce) {
		t.Fatalf("err = %v, want ConfigurationError", err)
	}
	if status, _ := Describe(err); status != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", status)
	}
	if w.State() != stream.Pending || buf.String() != "" || buf.Ended() {
		t.Errorf("stream touched: state=%s out=%q", w.State(), buf.String())
	}
}

func TestServe_UnknownModeUsesDefaultTemplate(t *testing.T) {
	backend := &stubBackend{text: "never"}
	rec := &recordingModel{MockChatModel: models.MockChatModel{Chunks: []string{"Sure."}}}
	d := newDispatcher(backend, rec)
	buf := &stream.Buffer{}

	err := d.Serve(context.Background(), strings.NewReader(`{"prompt":"Write a haiku","mode":"sonnet"}`), stream.New(buf))
	if err != nil {
		t.Fatalf("Serve: %v", err)
	}
	if backend.calls != 0 {
		t.Error("unknown mode must not reach the refinement backend")
	}
	want := prompt.Build(prompt.Default, "Write a haiku", "")
	if len(rec.messages) != 2 || rec.messages[0].Content != want.System || rec.messages[1].Content != want.User {
		t.Fatalf("messages = %+v, want %+v", rec.messages, want)
	}
	if buf.String() != "Sure." || !buf.Ended() {
		t.Errorf("output = %q ended=%v", buf.String(), buf.Ended())
	}
}
