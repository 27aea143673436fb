package application

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"voxflow/config"
	"voxflow/internal/domain"
)

type fakeRecorder struct {
	mu       sync.Mutex
	active   bool
	wavBytes int
	startErr error
	starts   int

	// When set, StopAndGetWAV signals draining and waits for release.
	draining chan struct{}
	release  chan struct{}
}

func (r *fakeRecorder) Start(time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.startErr != nil {
		return r.startErr
	}
	r.active = true
	r.starts++
	return nil
}

func (r *fakeRecorder) StopAndGetWAV(int) (domain.Recording, error) {
	if r.release != nil {
		close(r.draining)
		<-r.release
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.active {
		return domain.Recording{}, domain.NewCaptureError(domain.CaptureNotActive, nil)
	}
	r.active = false
	n := r.wavBytes
	if n == 0 {
		// 1 s of 16 kHz mono 16-bit silence plus a 44 byte header.
		n = 44 + 32000
	}
	return domain.Recording{
		WAV:    make([]byte, n),
		Format: domain.WAVFormat(16000, 1),
		Levels: domain.Levels{DurationSeconds: 1},
	}, nil
}

func (r *fakeRecorder) Stop() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.active = false
	return nil
}

func (r *fakeRecorder) IsActive() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active
}

type fakeTranscriber struct {
	name  string
	model string
	fn    func(ctx context.Context) (string, error)
	calls int
	mu    sync.Mutex
}

func (t *fakeTranscriber) Transcribe(ctx context.Context, _ []byte, _ domain.AudioFormat) (string, error) {
	t.mu.Lock()
	t.calls++
	t.mu.Unlock()
	return t.fn(ctx)
}

func (t *fakeTranscriber) Name() string  { return t.name }
func (t *fakeTranscriber) Model() string { return t.model }

type fakeRewriter struct {
	fn         func(ctx context.Context, system, user string) (string, error)
	structured bool
	calls      int
	lastSystem string
}

func (r *fakeRewriter) Complete(ctx context.Context, system, user string) (string, error) {
	r.calls++
	r.lastSystem = system
	return r.fn(ctx, system, user)
}

func (r *fakeRewriter) Name() string           { return "fake-llm" }
func (r *fakeRewriter) Model() string          { return "fake-model" }
func (r *fakeRewriter) StructuredOutput() bool { return r.structured }

type fakeFactory struct {
	mu       sync.Mutex
	stt      func(spec STTSpec) (Transcriber, error)
	llm      func(spec LLMSpec) (Rewriter, error)
	sttSpecs []STTSpec
	llmSpecs []LLMSpec
}

func (f *fakeFactory) NewTranscriber(_ config.APIKeys, spec STTSpec) (Transcriber, error) {
	f.mu.Lock()
	f.sttSpecs = append(f.sttSpecs, spec)
	f.mu.Unlock()
	return f.stt(spec)
}

func (f *fakeFactory) NewRewriter(_ config.APIKeys, spec LLMSpec) (Rewriter, error) {
	f.mu.Lock()
	f.llmSpecs = append(f.llmSpecs, spec)
	f.mu.Unlock()
	if f.llm == nil {
		return nil, errors.New("no llm configured")
	}
	return f.llm(spec)
}

type fakeForeground string

func (f fakeForeground) ForegroundExecutablePath() (string, bool) {
	return string(f), f != ""
}

type recordingSink struct {
	mu     sync.Mutex
	events []domain.Event
}

func (s *recordingSink) Emit(ev domain.Event) {
	s.mu.Lock()
	s.events = append(s.events, ev)
	s.mu.Unlock()
}

func (s *recordingSink) kinds() []domain.EventKind {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.EventKind, len(s.events))
	for i, ev := range s.events {
		out[i] = ev.Kind
	}
	return out
}

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.DataDir = "unused"
	cfg.LLM.Enabled = false
	cfg.Retry.InitialBackoffMS = 1
	cfg.Retry.MaxBackoffMS = 5
	cfg.Retry.JitterFraction = 0
	return cfg
}

func newTestEngine(t *testing.T, cfg *config.Config, factory *fakeFactory, deps Deps) (*Engine, *fakeRecorder, *recordingSink) {
	t.Helper()
	rec := &fakeRecorder{}
	sink := &recordingSink{}
	deps.Recorder = rec
	deps.Factory = factory
	deps.Events = sink
	deps.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewEngine(cfg, deps), rec, sink
}

func staticSTT(text string) *fakeFactory {
	return &fakeFactory{stt: func(spec STTSpec) (Transcriber, error) {
		return &fakeTranscriber{name: spec.Provider, model: spec.Model, fn: func(context.Context) (string, error) {
			return text, nil
		}}, nil
	}}
}

func TestEngine_HappyPathNoLLM(t *testing.T) {
	engine, _, sink := newTestEngine(t, testConfig(), staticSTT("hello world"), Deps{})

	if err := engine.StartRecording(); err != nil {
		t.Fatalf("StartRecording: %v", err)
	}
	if engine.State() != domain.StateRecording {
		t.Fatalf("state: got %s, want recording", engine.State())
	}

	res, err := engine.StopAndTranscribe(context.Background())
	if err != nil {
		t.Fatalf("StopAndTranscribe: %v", err)
	}

	if res.FinalText != "hello world" || res.STTText != "hello world" {
		t.Errorf("texts: got stt=%q final=%q", res.STTText, res.FinalText)
	}
	if res.STTDuration < 0 {
		t.Errorf("STTDuration negative: %v", res.STTDuration)
	}
	if res.LLMOutcome.Kind != domain.LLMNotAttempted {
		t.Errorf("LLMOutcome: got %s, want not_attempted", res.LLMOutcome.Kind)
	}
	if res.LLMDuration != nil {
		t.Errorf("LLMDuration should be nil, got %v", *res.LLMDuration)
	}
	if engine.State() != domain.StateIdle {
		t.Errorf("final state: got %s, want idle", engine.State())
	}
	if !engine.HasLastAudio() {
		t.Error("HasLastAudio should be true after a recording")
	}

	want := []domain.EventKind{domain.EventRecordingStarted, domain.EventTranscriptionStarted, domain.EventTranscriptReady}
	got := sink.kinds()
	if len(got) != len(want) {
		t.Fatalf("events: got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("event %d: got %s, want %s", i, got[i], want[i])
		}
	}
}

func TestEngine_LLMRewriteSucceeds(t *testing.T) {
	cfg := testConfig()
	cfg.LLM.Enabled = true

	rw := &fakeRewriter{structured: true, fn: func(context.Context, string, string) (string, error) {
		return `{"rewritten_text":"Hello."}`, nil
	}}
	factory := staticSTT("um hello")
	factory.llm = func(LLMSpec) (Rewriter, error) { return rw, nil }

	engine, _, _ := newTestEngine(t, cfg, factory, Deps{})
	mustStart(t, engine)

	res, err := engine.StopAndTranscribe(context.Background())
	if err != nil {
		t.Fatalf("StopAndTranscribe: %v", err)
	}
	if res.STTText != "um hello" {
		t.Errorf("STTText: got %q", res.STTText)
	}
	if res.FinalText != "Hello." {
		t.Errorf("FinalText: got %q, want Hello.", res.FinalText)
	}
	if res.LLMOutcome.Kind != domain.LLMSucceeded {
		t.Errorf("LLMOutcome: got %s", res.LLMOutcome.Kind)
	}
	if res.LLMDuration == nil {
		t.Error("LLMDuration should be set")
	}
	if !strings.HasPrefix(rw.lastSystem, DefaultMainPrompt) || !strings.Contains(rw.lastSystem, RewrittenTextField) {
		t.Errorf("system prompt missing main prompt or JSON instruction: %q", rw.lastSystem)
	}
}

func TestEngine_LLMTimeoutFallsBack(t *testing.T) {
	cfg := testConfig()
	cfg.LLM.Enabled = true
	cfg.LLM.TimeoutSeconds = 1

	factory := staticSTT("raw words")
	factory.llm = func(LLMSpec) (Rewriter, error) {
		return &fakeRewriter{fn: func(ctx context.Context, _, _ string) (string, error) {
			select {
			case <-time.After(2 * time.Second):
				return "too late", nil
			case <-ctx.Done():
				return "", ctx.Err()
			}
		}}, nil
	}

	engine, _, _ := newTestEngine(t, cfg, factory, Deps{})
	mustStart(t, engine)

	res, err := engine.StopAndTranscribe(context.Background())
	if err != nil {
		t.Fatalf("LLM timeout must not surface an error, got %v", err)
	}
	if res.FinalText != res.STTText || res.FinalText != "raw words" {
		t.Errorf("fallback: got stt=%q final=%q", res.STTText, res.FinalText)
	}
	if res.LLMOutcome.Kind != domain.LLMTimedOut {
		t.Errorf("LLMOutcome: got %s, want timed_out", res.LLMOutcome.Kind)
	}
	if engine.State() != domain.StateIdle {
		t.Errorf("state: got %s", engine.State())
	}
}

func TestEngine_LLMFailureFallsBack(t *testing.T) {
	cfg := testConfig()
	cfg.LLM.Enabled = true

	factory := staticSTT("raw words")
	factory.llm = func(LLMSpec) (Rewriter, error) {
		return &fakeRewriter{fn: func(context.Context, string, string) (string, error) {
			return "", &domain.ProviderError{Stage: domain.StageLLM, Kind: domain.KindAPI, StatusCode: 500}
		}}, nil
	}

	engine, _, _ := newTestEngine(t, cfg, factory, Deps{})
	mustStart(t, engine)

	res, err := engine.StopAndTranscribe(context.Background())
	if err != nil {
		t.Fatalf("StopAndTranscribe: %v", err)
	}
	if res.FinalText != "raw words" || res.LLMOutcome.Kind != domain.LLMFailed || res.LLMOutcome.Message == "" {
		t.Errorf("unexpected result: %+v", res)
	}
}

func TestEngine_EmptyTranscriptSkipsLLM(t *testing.T) {
	cfg := testConfig()
	cfg.LLM.Enabled = true

	rw := &fakeRewriter{fn: func(context.Context, string, string) (string, error) { return "x", nil }}
	factory := staticSTT("")
	factory.llm = func(LLMSpec) (Rewriter, error) { return rw, nil }

	engine, _, _ := newTestEngine(t, cfg, factory, Deps{})
	mustStart(t, engine)

	res, err := engine.StopAndTranscribe(context.Background())
	if err != nil {
		t.Fatalf("StopAndTranscribe: %v", err)
	}
	if rw.calls != 0 {
		t.Errorf("rewriter called %d times for empty transcript", rw.calls)
	}
	if res.FinalText != "" || res.LLMOutcome.Kind != domain.LLMNotAttempted {
		t.Errorf("unexpected result: %+v", res)
	}
}

func TestEngine_RetryThenSuccess(t *testing.T) {
	cfg := testConfig()
	cfg.Retry.MaxRetries = 3

	stt := &fakeTranscriber{name: "groq"}
	attempts := 0
	stt.fn = func(context.Context) (string, error) {
		attempts++
		if attempts <= 2 {
			return "", &domain.ProviderError{Stage: domain.StageSTT, Kind: domain.KindAPI, Provider: "groq", StatusCode: 503}
		}
		return "ok", nil
	}
	factory := &fakeFactory{stt: func(STTSpec) (Transcriber, error) { return stt, nil }}

	engine, _, _ := newTestEngine(t, cfg, factory, Deps{})
	mustStart(t, engine)

	res, err := engine.StopAndTranscribe(context.Background())
	if err != nil {
		t.Fatalf("StopAndTranscribe: %v", err)
	}
	if res.FinalText != "ok" {
		t.Errorf("FinalText: got %q", res.FinalText)
	}
	if res.Retries != 2 {
		t.Errorf("Retries: got %d, want 2", res.Retries)
	}
}

func TestEngine_STTFailureEntersError(t *testing.T) {
	cfg := testConfig()
	cfg.Retry.MaxRetries = 1

	factory := &fakeFactory{stt: func(STTSpec) (Transcriber, error) {
		return &fakeTranscriber{name: "groq", fn: func(context.Context) (string, error) {
			return "", &domain.ProviderError{Stage: domain.StageSTT, Kind: domain.KindAPI, StatusCode: 401, Message: "invalid key"}
		}}, nil
	}}

	engine, _, sink := newTestEngine(t, cfg, factory, Deps{})
	mustStart(t, engine)

	_, err := engine.StopAndTranscribe(context.Background())
	var pe *domain.ProviderError
	if !errors.As(err, &pe) || pe.StatusCode != 401 {
		t.Fatalf("expected 401 provider error, got %v", err)
	}
	if !engine.IsError() {
		t.Errorf("state: got %s, want error", engine.State())
	}
	if engine.LastError() == nil {
		t.Error("LastError should be set")
	}
	kinds := sink.kinds()
	if kinds[len(kinds)-1] != domain.EventError {
		t.Errorf("last event: got %s, want error", kinds[len(kinds)-1])
	}

	// Error is recoverable.
	if !engine.CanStartRecording() {
		t.Error("CanStartRecording should be true in error state")
	}
	mustStart(t, engine)
}

func TestEngine_STTTimeout(t *testing.T) {
	cfg := testConfig()
	cfg.STT.TimeoutSeconds = 1

	factory := &fakeFactory{stt: func(STTSpec) (Transcriber, error) {
		return &fakeTranscriber{name: "slow", fn: func(ctx context.Context) (string, error) {
			<-ctx.Done()
			return "", ctx.Err()
		}}, nil
	}}

	engine, _, _ := newTestEngine(t, cfg, factory, Deps{})
	mustStart(t, engine)

	started := time.Now()
	_, err := engine.StopAndTranscribe(context.Background())
	var te *domain.TimeoutError
	if !errors.As(err, &te) {
		t.Fatalf("expected TimeoutError, got %v", err)
	}
	if te.After != time.Second {
		t.Errorf("TimeoutError.After: got %v", te.After)
	}
	if elapsed := time.Since(started); elapsed < time.Second {
		t.Errorf("returned before the timeout: %v", elapsed)
	}
	if engine.State() != domain.StateError {
		t.Errorf("state: got %s, want error", engine.State())
	}
}

func TestEngine_CancelWhileTranscribing(t *testing.T) {
	cfg := testConfig()
	cfg.STT.TimeoutSeconds = 5

	entered := make(chan struct{})
	factory := &fakeFactory{stt: func(STTSpec) (Transcriber, error) {
		return &fakeTranscriber{name: "slow", fn: func(ctx context.Context) (string, error) {
			close(entered)
			<-ctx.Done()
			return "partial", ctx.Err()
		}}, nil
	}}

	engine, _, sink := newTestEngine(t, cfg, factory, Deps{})
	mustStart(t, engine)

	type outcome struct {
		res domain.Result
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		res, err := engine.StopAndTranscribe(context.Background())
		done <- outcome{res, err}
	}()

	<-entered
	if engine.State() != domain.StateTranscribing {
		t.Fatalf("state: got %s, want transcribing", engine.State())
	}
	if err := engine.Cancel(); err != nil {
		t.Fatalf("Cancel: %v", err)
	}

	select {
	case out := <-done:
		if !errors.Is(out.err, domain.ErrCancelled) {
			t.Errorf("expected ErrCancelled, got %v", out.err)
		}
		if out.res.FinalText != "" || out.res.STTText != "" {
			t.Errorf("partial transcript surfaced: %+v", out.res)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("StopAndTranscribe did not return after Cancel")
	}

	if engine.State() != domain.StateIdle {
		t.Errorf("state: got %s, want idle", engine.State())
	}
	for _, k := range sink.kinds() {
		if k == domain.EventTranscriptReady || k == domain.EventError {
			t.Errorf("unexpected event after cancel: %s", k)
		}
	}
}

func TestEngine_CancellationHasPriorityOverTimeout(t *testing.T) {
	cfg := testConfig()
	cfg.STT.TimeoutSeconds = 1

	factory := &fakeFactory{stt: func(STTSpec) (Transcriber, error) {
		return &fakeTranscriber{name: "slow", fn: func(ctx context.Context) (string, error) {
			<-ctx.Done()
			return "", ctx.Err()
		}}, nil
	}}

	engine, _, _ := newTestEngine(t, cfg, factory, Deps{})
	mustStart(t, engine)

	go func() {
		time.Sleep(time.Second - 5*time.Millisecond)
		engine.Cancel()
	}()

	_, err := engine.StopAndTranscribe(context.Background())
	if !errors.Is(err, domain.ErrCancelled) {
		t.Fatalf("expected ErrCancelled, got %v", err)
	}
	if engine.State() != domain.StateIdle {
		t.Errorf("state: got %s, want idle", engine.State())
	}
}

func TestEngine_ProfileOverride(t *testing.T) {
	cfg := testConfig()
	cfg.LLM.Enabled = true
	cfg.STT.Model = "global-model"
	model := "X"
	off := false
	cfg.Profiles = []config.Profile{{
		ID:                "editor",
		ProgramPaths:      []string{`C:\Apps\Editor.EXE`},
		STTModel:          &model,
		RewriteLLMEnabled: &off,
	}}

	rw := &fakeRewriter{fn: func(context.Context, string, string) (string, error) { return "rewritten", nil }}
	factory := staticSTT("text")
	factory.llm = func(LLMSpec) (Rewriter, error) { return rw, nil }

	engine, _, _ := newTestEngine(t, cfg, factory, Deps{Foreground: fakeForeground("c:/apps/editor.exe")})
	mustStart(t, engine)

	res, err := engine.StopAndTranscribe(context.Background())
	if err != nil {
		t.Fatalf("StopAndTranscribe: %v", err)
	}
	if res.STTModel != "X" {
		t.Errorf("STT model: got %q, want X", res.STTModel)
	}
	if len(factory.sttSpecs) != 1 || factory.sttSpecs[0].Model != "X" {
		t.Errorf("constructed STT specs: %+v", factory.sttSpecs)
	}
	if res.LLMOutcome.Kind != domain.LLMNotAttempted || rw.calls != 0 {
		t.Errorf("LLM should not run: outcome=%s calls=%d", res.LLMOutcome.Kind, rw.calls)
	}
	if res.ProfileID != "editor" {
		t.Errorf("ProfileID: got %q", res.ProfileID)
	}
}

func TestEngine_ProfileProviderFallsBackToGlobal(t *testing.T) {
	cfg := testConfig()
	broken := "deepgram"
	cfg.Profiles = []config.Profile{{ID: "p", ProgramPaths: []string{"/usr/bin/app"}, STTProvider: &broken}}

	factory := &fakeFactory{stt: func(spec STTSpec) (Transcriber, error) {
		if spec.Provider == "deepgram" {
			return nil, &domain.ProviderError{Stage: domain.StageSTT, Kind: domain.KindNoAPIKey, Provider: "deepgram"}
		}
		return &fakeTranscriber{name: spec.Provider, fn: func(context.Context) (string, error) { return "fine", nil }}, nil
	}}

	engine, _, _ := newTestEngine(t, cfg, factory, Deps{Foreground: fakeForeground("/usr/bin/app")})
	mustStart(t, engine)

	res, err := engine.StopAndTranscribe(context.Background())
	if err != nil {
		t.Fatalf("StopAndTranscribe: %v", err)
	}
	if res.STTProvider != "groq" || res.FinalText != "fine" {
		t.Errorf("expected global groq fallback, got %+v", res)
	}
}

func TestEngine_NoProvider(t *testing.T) {
	factory := &fakeFactory{stt: func(STTSpec) (Transcriber, error) {
		return nil, errors.New("missing key")
	}}
	engine, _, _ := newTestEngine(t, testConfig(), factory, Deps{})
	mustStart(t, engine)

	_, err := engine.StopAndTranscribe(context.Background())
	if !errors.Is(err, domain.ErrNoProvider) {
		t.Fatalf("expected ErrNoProvider, got %v", err)
	}
	if !engine.IsError() {
		t.Errorf("state: got %s, want error", engine.State())
	}
}

func TestEngine_LLMConstructionFailureDisablesFormatting(t *testing.T) {
	cfg := testConfig()
	cfg.LLM.Enabled = true
	factory := staticSTT("plain")
	factory.llm = func(LLMSpec) (Rewriter, error) { return nil, errors.New("no key") }

	engine, _, _ := newTestEngine(t, cfg, factory, Deps{})
	mustStart(t, engine)

	res, err := engine.StopAndTranscribe(context.Background())
	if err != nil {
		t.Fatalf("StopAndTranscribe: %v", err)
	}
	if res.FinalText != "plain" || res.LLMOutcome.Kind != domain.LLMNotAttempted {
		t.Errorf("unexpected result: %+v", res)
	}
}

func TestEngine_RecordingTooLarge(t *testing.T) {
	cfg := testConfig()
	cfg.Audio.MaxRecordingBytes = 1000

	tests := []struct {
		size    int
		wantErr bool
	}{
		{1000, false},
		{1001, true},
	}
	for _, tt := range tests {
		engine, rec, _ := newTestEngine(t, cfg, staticSTT("ok"), Deps{})
		rec.wavBytes = tt.size
		mustStart(t, engine)

		_, err := engine.StopAndTranscribe(context.Background())
		var big *domain.RecordingTooLargeError
		if got := errors.As(err, &big); got != tt.wantErr {
			t.Errorf("size %d: RecordingTooLarge=%v, want %v (err=%v)", tt.size, got, tt.wantErr, err)
		}
		if tt.wantErr {
			if big.Got != tt.size || big.Limit != 1000 {
				t.Errorf("error fields: %+v", big)
			}
			if !engine.IsError() {
				t.Errorf("state: got %s, want error", engine.State())
			}
		}
	}
}

func TestEngine_Guards(t *testing.T) {
	engine, _, _ := newTestEngine(t, testConfig(), staticSTT("x"), Deps{})

	if err := engine.Cancel(); !errors.Is(err, domain.ErrNotRecording) {
		t.Errorf("Cancel when idle: got %v", err)
	}
	if _, err := engine.StopAndTranscribe(context.Background()); !errors.Is(err, domain.ErrNotRecording) {
		t.Errorf("Stop when idle: got %v", err)
	}
	if _, err := engine.StopRecording(); !errors.Is(err, domain.ErrNotRecording) {
		t.Errorf("StopRecording when idle: got %v", err)
	}

	mustStart(t, engine)
	if err := engine.StartRecording(); !errors.Is(err, domain.ErrAlreadyRecording) {
		t.Errorf("double start: got %v", err)
	}
	if engine.CanStartRecording() {
		t.Error("CanStartRecording true while recording")
	}

	rec, err := engine.StopRecording()
	if err != nil {
		t.Fatalf("StopRecording: %v", err)
	}
	if len(rec.WAV) == 0 {
		t.Error("StopRecording returned no audio")
	}
	if engine.State() != domain.StateIdle {
		t.Errorf("state: got %s", engine.State())
	}
}

func TestEngine_StartFailureEntersError(t *testing.T) {
	engine, rec, _ := newTestEngine(t, testConfig(), staticSTT("x"), Deps{})
	rec.startErr = domain.NewCaptureError(domain.CaptureNoInputDevice, nil)

	err := engine.StartRecording()
	var ce *domain.CaptureError
	if !errors.As(err, &ce) || ce.Kind != domain.CaptureNoInputDevice {
		t.Fatalf("expected NoInputDevice, got %v", err)
	}
	if !engine.IsError() {
		t.Errorf("state: got %s", engine.State())
	}
}

func TestEngine_ForceReset(t *testing.T) {
	engine, rec, sink := newTestEngine(t, testConfig(), staticSTT("x"), Deps{})
	mustStart(t, engine)

	engine.ForceReset()
	if engine.State() != domain.StateIdle {
		t.Errorf("state: got %s", engine.State())
	}
	if rec.IsActive() {
		t.Error("recorder still active after ForceReset")
	}
	kinds := sink.kinds()
	if kinds[len(kinds)-1] != domain.EventReset {
		t.Errorf("last event: got %s", kinds[len(kinds)-1])
	}

	// Idempotent from idle.
	engine.ForceReset()
	if engine.State() != domain.StateIdle {
		t.Errorf("state after second reset: got %s", engine.State())
	}
}

func TestEngine_Toggle(t *testing.T) {
	engine, _, _ := newTestEngine(t, testConfig(), staticSTT("toggled"), Deps{})

	res, err := engine.Toggle(context.Background())
	if err != nil || res != nil {
		t.Fatalf("first toggle: res=%v err=%v", res, err)
	}
	if !engine.IsRecording() {
		t.Fatal("expected recording after first toggle")
	}

	res, err = engine.Toggle(context.Background())
	if err != nil {
		t.Fatalf("second toggle: %v", err)
	}
	if res == nil || res.FinalText != "toggled" {
		t.Errorf("second toggle result: %+v", res)
	}
}

func TestEngine_TestTranscribeLastAudio(t *testing.T) {
	cfg := testConfig()
	model := "profile-model"
	cfg.Profiles = []config.Profile{{ID: "p1", STTModel: &model}}
	factory := staticSTT("again")

	engine, _, _ := newTestEngine(t, cfg, factory, Deps{})

	if _, err := engine.TestTranscribeLastAudio(context.Background(), ""); !errors.Is(err, domain.ErrNoLastAudio) {
		t.Fatalf("expected ErrNoLastAudio, got %v", err)
	}

	mustStart(t, engine)
	if _, err := engine.StopRecording(); err != nil {
		t.Fatal(err)
	}

	res, err := engine.TestTranscribeLastAudio(context.Background(), "p1")
	if err != nil {
		t.Fatalf("TestTranscribeLastAudio: %v", err)
	}
	if res.FinalText != "again" || res.STTModel != "profile-model" {
		t.Errorf("unexpected result: %+v", res)
	}

	var cfgErr *domain.ConfigError
	if _, err := engine.TestTranscribeLastAudio(context.Background(), "missing"); !errors.As(err, &cfgErr) {
		t.Errorf("expected ConfigError for unknown profile, got %v", err)
	}
	if engine.State() != domain.StateIdle {
		t.Errorf("state: got %s", engine.State())
	}
}

func TestEngine_ProviderCacheInvalidatedOnConfigUpdate(t *testing.T) {
	factory := staticSTT("x")
	engine, _, _ := newTestEngine(t, testConfig(), factory, Deps{})

	for i := 0; i < 2; i++ {
		mustStart(t, engine)
		if _, err := engine.StopAndTranscribe(context.Background()); err != nil {
			t.Fatal(err)
		}
	}
	if len(factory.sttSpecs) != 1 {
		t.Errorf("provider constructed %d times, want 1 (cached)", len(factory.sttSpecs))
	}

	if err := engine.UpdateConfig(testConfig()); err != nil {
		t.Fatalf("UpdateConfig: %v", err)
	}
	mustStart(t, engine)
	if _, err := engine.StopAndTranscribe(context.Background()); err != nil {
		t.Fatal(err)
	}
	if len(factory.sttSpecs) != 2 {
		t.Errorf("provider constructed %d times after update, want 2", len(factory.sttSpecs))
	}

	bad := testConfig()
	bad.Audio.NoiseGateStrength = 500
	var cfgErr *domain.ConfigError
	if err := engine.UpdateConfig(bad); !errors.As(err, &cfgErr) {
		t.Errorf("expected ConfigError, got %v", err)
	}
}

func mustStart(t *testing.T, e *Engine) {
	t.Helper()
	if err := e.StartRecording(); err != nil {
		t.Fatalf("StartRecording: %v", err)
	}
}

type memHistory struct{ entries []domain.HistoryEntry }

func (h *memHistory) Append(e domain.HistoryEntry) error {
	h.entries = append(h.entries, e)
	return nil
}

func TestEngine_HistoryAppendedOnlyForNonEmptyText(t *testing.T) {
	tests := []struct {
		name    string
		text    string
		enabled bool
		want    int
	}{
		{"text", "hello world", true, 1},
		{"empty transcript", "", true, 0},
		{"history disabled", "hello world", false, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			cfg.History.Enabled = tt.enabled
			hist := &memHistory{}
			engine, _, _ := newTestEngine(t, cfg, staticSTT(tt.text), Deps{History: hist})

			mustStart(t, engine)
			res, err := engine.StopAndTranscribe(context.Background())
			if err != nil {
				t.Fatalf("StopAndTranscribe: %v", err)
			}
			if len(hist.entries) != tt.want {
				t.Fatalf("history entries: got %d, want %d", len(hist.entries), tt.want)
			}
			if tt.want == 1 {
				e := hist.entries[0]
				if e.ID != res.RequestID || e.Text != tt.text || e.RawText != tt.text {
					t.Errorf("entry: %+v", e)
				}
			}
		})
	}
}

func TestEngine_StateReadableWhileRecorderDrains(t *testing.T) {
	engine, rec, _ := newTestEngine(t, testConfig(), staticSTT("slow stop"), Deps{})
	rec.draining = make(chan struct{})
	rec.release = make(chan struct{})
	mustStart(t, engine)

	type outcome struct {
		res domain.Result
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		res, err := engine.StopAndTranscribe(context.Background())
		done <- outcome{res, err}
	}()
	<-rec.draining

	got := make(chan domain.PipelineState, 1)
	go func() { got <- engine.State() }()
	select {
	case s := <-got:
		if s != domain.StateTranscribing {
			t.Errorf("state while draining: got %s, want transcribing", s)
		}
	case <-time.After(time.Second):
		t.Fatal("State blocked while the recorder was draining")
	}
	if _, err := engine.StopAndTranscribe(context.Background()); !errors.Is(err, domain.ErrNotRecording) {
		t.Errorf("second stop: got %v, want ErrNotRecording", err)
	}
	if _, err := engine.StopRecording(); !errors.Is(err, domain.ErrNotRecording) {
		t.Errorf("StopRecording: got %v, want ErrNotRecording", err)
	}

	close(rec.release)
	out := <-done
	if out.err != nil || out.res.FinalText != "slow stop" {
		t.Fatalf("StopAndTranscribe: res=%+v err=%v", out.res, out.err)
	}
	if engine.State() != domain.StateIdle {
		t.Errorf("state: got %s, want idle", engine.State())
	}
}

func TestEngine_CancelWhileRecorderDrains(t *testing.T) {
	engine, rec, sink := newTestEngine(t, testConfig(), staticSTT("never"), Deps{})
	rec.draining = make(chan struct{})
	rec.release = make(chan struct{})
	mustStart(t, engine)

	done := make(chan error, 1)
	go func() {
		_, err := engine.StopAndTranscribe(context.Background())
		done <- err
	}()
	<-rec.draining

	if err := engine.Cancel(); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	close(rec.release)

	if err := <-done; !errors.Is(err, domain.ErrCancelled) {
		t.Fatalf("expected ErrCancelled, got %v", err)
	}
	if engine.State() != domain.StateIdle || engine.HasLastAudio() {
		t.Errorf("state=%s hasLastAudio=%v, want idle without audio", engine.State(), engine.HasLastAudio())
	}
	for _, k := range sink.kinds() {
		if k == domain.EventTranscriptionStarted || k == domain.EventError {
			t.Errorf("unexpected event after cancel: %s", k)
		}
	}
}

func TestEngine_OversizedRecordingNotReplayed(t *testing.T) {
	cfg := testConfig()
	cfg.Audio.MaxRecordingBytes = 1000

	t.Run("rejected recording is not kept", func(t *testing.T) {
		engine, rec, _ := newTestEngine(t, cfg, staticSTT("ok"), Deps{})
		rec.wavBytes = 5000
		mustStart(t, engine)

		var big *domain.RecordingTooLargeError
		if _, err := engine.StopAndTranscribe(context.Background()); !errors.As(err, &big) {
			t.Fatalf("expected RecordingTooLarge, got %v", err)
		}
		if engine.HasLastAudio() {
			t.Error("oversized recording kept as last audio")
		}
		engine.ForceReset()
		if _, err := engine.TestTranscribeLastAudio(context.Background(), ""); !errors.Is(err, domain.ErrNoLastAudio) {
			t.Errorf("replay: got %v, want ErrNoLastAudio", err)
		}

		mustStart(t, engine)
		if _, err := engine.StopRecording(); err != nil {
			t.Fatal(err)
		}
		if engine.HasLastAudio() {
			t.Error("StopRecording kept an oversized recording")
		}
	})

	t.Run("replay checks the current limit", func(t *testing.T) {
		engine, rec, _ := newTestEngine(t, cfg, staticSTT("ok"), Deps{})
		rec.wavBytes = 800
		mustStart(t, engine)
		if _, err := engine.StopRecording(); err != nil {
			t.Fatal(err)
		}

		smaller := engine.Config()
		smaller.Audio.MaxRecordingBytes = 500
		if err := engine.UpdateConfig(smaller); err != nil {
			t.Fatal(err)
		}

		var big *domain.RecordingTooLargeError
		if _, err := engine.TestTranscribeLastAudio(context.Background(), ""); !errors.As(err, &big) {
			t.Fatalf("expected RecordingTooLarge, got %v", err)
		}
		if big.Got != 800 || big.Limit != 500 {
			t.Errorf("error fields: %+v", big)
		}
		if engine.State() != domain.StateIdle {
			t.Errorf("state: got %s, want idle", engine.State())
		}
	})
}
