package application

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"voxflow/config"
	"voxflow/internal/domain"
	"voxflow/internal/infra"
)

type Deps struct {
	Recorder   Recorder
	Factory    ProviderFactory
	Foreground ForegroundProvider
	Logs       RequestLog
	Recordings RecordingStore
	History    HistoryStore
	Events     EventSink
	Metrics    Metrics
	Logger     *slog.Logger
}

type sttKey struct {
	provider string
	model    string
	prompt   string
}

type llmKey struct {
	provider string
	model    string
	timeout  int
	baseURL  string
}

type session struct {
	ctx    context.Context
	cancel context.CancelFunc
	// stopping is set once a stop has claimed the session; the recorder is
	// drained outside mu.
	stopping bool
}

// Engine drives the dictation pipeline. State, config and provider caches
// live under mu, which is never held across provider calls.
type Engine struct {
	mu        sync.Mutex
	cfg       *config.Config
	state     domain.PipelineState
	lastErr   error
	session   *session
	lastAudio *domain.Recording
	sttCache  map[sttKey]Transcriber
	llmCache  map[llmKey]Rewriter

	recorder   Recorder
	factory    ProviderFactory
	foreground ForegroundProvider
	logs       RequestLog
	recordings RecordingStore
	history    HistoryStore
	events     EventSink
	metrics    Metrics
	logger     *slog.Logger
}

func NewEngine(cfg *config.Config, deps Deps) *Engine {
	e := &Engine{
		cfg:        cfg.Clone(),
		state:      domain.StateIdle,
		sttCache:   make(map[sttKey]Transcriber),
		llmCache:   make(map[llmKey]Rewriter),
		recorder:   deps.Recorder,
		factory:    deps.Factory,
		foreground: deps.Foreground,
		logs:       deps.Logs,
		recordings: deps.Recordings,
		history:    deps.History,
		events:     deps.Events,
		metrics:    deps.Metrics,
		logger:     deps.Logger,
	}
	if e.foreground == nil {
		e.foreground = noForeground{}
	}
	if e.logs == nil {
		e.logs = noopRequestLog{}
	}
	if e.recordings == nil {
		e.recordings = noopRecordings{}
	}
	if e.history == nil {
		e.history = noopHistory{}
	}
	if e.events == nil {
		e.events = NoopSink{}
	}
	if e.metrics == nil {
		e.metrics = noopMetrics{}
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}
	if deps.Recorder == nil || deps.Factory == nil {
		panic("application: recorder and provider factory are required")
	}
	e.logs.SetRetention(e.cfg.RequestLog)
	return e
}

// Config returns a copy of the active configuration.
func (e *Engine) Config() *config.Config {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cfg.Clone()
}

func (e *Engine) State() domain.PipelineState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// LastError is the cause of the current Error state, if any.
func (e *Engine) LastError() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastErr
}

func (e *Engine) IsRecording() bool { return e.State() == domain.StateRecording }

func (e *Engine) IsError() bool { return e.State() == domain.StateError }

func (e *Engine) CanStartRecording() bool { return e.State().CanStart() }

func (e *Engine) HasLastAudio() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastAudio != nil
}

// UpdateConfig validates and installs cfg, dropping every cached provider.
func (e *Engine) UpdateConfig(cfg *config.Config) error {
	if err := cfg.Validate(); err != nil {
		return &domain.ConfigError{Msg: err.Error()}
	}
	next := cfg.Clone()

	e.mu.Lock()
	e.cfg = next
	e.sttCache = make(map[sttKey]Transcriber)
	e.llmCache = make(map[llmKey]Rewriter)
	e.mu.Unlock()

	e.logs.SetRetention(next.RequestLog)
	e.logger.Info("config updated", "stt_provider", next.STT.Provider, "llm_provider", next.LLM.Provider, "llm_enabled", next.LLM.Enabled)
	return nil
}

func (e *Engine) StartRecording() error {
	e.mu.Lock()
	if !e.state.CanStart() {
		e.mu.Unlock()
		return domain.ErrAlreadyRecording
	}
	if err := e.recorder.Start(e.cfg.Audio.MaxDuration()); err != nil {
		e.setErrorLocked(err)
		e.mu.Unlock()
		e.logger.Error("starting capture", "error", err)
		e.events.Emit(domain.Event{Kind: domain.EventError, Text: domain.UserMessage(err)})
		return fmt.Errorf("starting capture: %w", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	e.session = &session{ctx: ctx, cancel: cancel}
	e.lastErr = nil
	e.setStateLocked(domain.StateRecording)
	e.mu.Unlock()

	e.logger.Info("recording started")
	e.events.Emit(domain.Event{Kind: domain.EventRecordingStarted})
	return nil
}

// StopRecording ends the session and returns the WAV without transcribing.
func (e *Engine) StopRecording() (domain.Recording, error) {
	sess, cfg, err := e.claimStop(domain.StateRecording)
	if err != nil {
		return domain.Recording{}, err
	}

	rec, err := e.recorder.StopAndGetWAV(cfg.Audio.NoiseGateStrength)

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.session != sess {
		return domain.Recording{}, domain.ErrCancelled
	}
	if err != nil {
		e.setErrorLocked(err)
		return domain.Recording{}, fmt.Errorf("stopping capture: %w", err)
	}
	e.endSessionLocked()
	e.keepLastAudioLocked(cfg, rec)
	e.setStateLocked(domain.StateIdle)
	e.metrics.ObserveRecording(len(rec.WAV), rec.Levels.DurationSeconds)
	return rec, nil
}

// StopAndTranscribe ends the recording and runs it through STT and, when
// enabled, the LLM rewrite.
func (e *Engine) StopAndTranscribe(ctx context.Context) (domain.Result, error) {
	exe, hasExe := e.foreground.ForegroundExecutablePath()

	sess, cfg, err := e.claimStop(domain.StateTranscribing)
	if err != nil {
		return domain.Result{}, err
	}

	rec, err := e.recorder.StopAndGetWAV(cfg.Audio.NoiseGateStrength)

	e.mu.Lock()
	if e.session != sess {
		// Cancelled or reset while the recorder drained.
		e.mu.Unlock()
		return domain.Result{}, domain.ErrCancelled
	}
	if err != nil {
		e.setErrorLocked(err)
		e.mu.Unlock()
		return domain.Result{}, e.surface(fmt.Errorf("stopping capture: %w", err))
	}
	e.metrics.ObserveRecording(len(rec.WAV), rec.Levels.DurationSeconds)
	if !e.keepLastAudioLocked(cfg, rec) {
		err := &domain.RecordingTooLargeError{Got: len(rec.WAV), Limit: cfg.Audio.MaxRecordingBytes}
		e.setErrorLocked(err)
		e.mu.Unlock()
		return domain.Result{}, e.surface(err)
	}

	var profile *config.Profile
	if hasExe {
		if p, ok := MatchProfile(cfg.Profiles, exe); ok {
			profile = &p
		}
	}
	eff := Resolve(cfg, profile)

	stt, llm, err := e.providersLocked(cfg, eff)
	if err != nil {
		e.setErrorLocked(err)
		e.mu.Unlock()
		return domain.Result{}, e.surface(err)
	}
	e.mu.Unlock()

	e.logger.Info("transcription started", "bytes", len(rec.WAV), "duration_s", rec.Levels.DurationSeconds, "profile", eff.ProfileID)
	e.events.Emit(domain.Event{Kind: domain.EventTranscriptionStarted})
	return e.run(ctx, sess, cfg, eff, stt, llm, rec)
}

// claimStop marks the recording session as stopping and moves to next, so
// a concurrent stop sees ErrNotRecording while the recorder drains.
func (e *Engine) claimStop(next domain.PipelineState) (*session, *config.Config, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != domain.StateRecording || e.session == nil || e.session.stopping {
		return nil, nil, domain.ErrNotRecording
	}
	e.session.stopping = true
	e.setStateLocked(next)
	return e.session, e.cfg, nil
}

// keepLastAudioLocked remembers rec for replay unless it exceeds the
// recording size limit.
func (e *Engine) keepLastAudioLocked(cfg *config.Config, rec domain.Recording) bool {
	if tooLarge(cfg, len(rec.WAV)) {
		return false
	}
	e.lastAudio = &rec
	return true
}

func tooLarge(cfg *config.Config, n int) bool {
	limit := cfg.Audio.MaxRecordingBytes
	return limit > 0 && n > limit
}

// TestTranscribeLastAudio replays the last recording through the pipeline,
// using the named profile or the global config when profileID is empty.
func (e *Engine) TestTranscribeLastAudio(ctx context.Context, profileID string) (domain.Result, error) {
	e.mu.Lock()
	if !e.state.CanStart() {
		e.mu.Unlock()
		return domain.Result{}, domain.ErrAlreadyRecording
	}
	if e.lastAudio == nil {
		e.mu.Unlock()
		return domain.Result{}, domain.ErrNoLastAudio
	}
	cfg := e.cfg
	rec := *e.lastAudio
	if tooLarge(cfg, len(rec.WAV)) {
		e.mu.Unlock()
		return domain.Result{}, &domain.RecordingTooLargeError{Got: len(rec.WAV), Limit: cfg.Audio.MaxRecordingBytes}
	}

	var profile *config.Profile
	if profileID != "" {
		p, ok := cfg.Profile(profileID)
		if !ok {
			e.mu.Unlock()
			return domain.Result{}, &domain.ConfigError{Msg: fmt.Sprintf("unknown profile %q", profileID)}
		}
		profile = &p
	}
	eff := Resolve(cfg, profile)

	stt, llm, err := e.providersLocked(cfg, eff)
	if err != nil {
		e.mu.Unlock()
		return domain.Result{}, err
	}
	sessCtx, cancel := context.WithCancel(context.Background())
	sess := &session{ctx: sessCtx, cancel: cancel}
	e.session = sess
	e.setStateLocked(domain.StateTranscribing)
	e.mu.Unlock()

	e.events.Emit(domain.Event{Kind: domain.EventTranscriptionStarted})
	return e.run(ctx, sess, cfg, eff, stt, llm, rec)
}

// Toggle starts a recording when idle and transcribes it when recording.
// The result is nil when a recording was started.
func (e *Engine) Toggle(ctx context.Context) (*domain.Result, error) {
	switch e.State() {
	case domain.StateRecording:
		res, err := e.StopAndTranscribe(ctx)
		if err != nil {
			return nil, err
		}
		return &res, nil
	case domain.StateTranscribing:
		return nil, domain.ErrAlreadyRecording
	default:
		return nil, e.StartRecording()
	}
}

// Cancel aborts the in-flight session.
func (e *Engine) Cancel() error {
	e.mu.Lock()
	if !e.state.IsActive() {
		e.mu.Unlock()
		return domain.ErrNotRecording
	}
	e.endSessionLocked()
	e.stopRecorderLocked()
	e.setStateLocked(domain.StateIdle)
	e.mu.Unlock()

	e.logger.Info("session cancelled")
	e.events.Emit(domain.Event{Kind: domain.EventCancelled})
	return nil
}

// ForceReset returns to Idle from any state.
func (e *Engine) ForceReset() {
	e.mu.Lock()
	e.endSessionLocked()
	e.stopRecorderLocked()
	e.lastErr = nil
	e.setStateLocked(domain.StateIdle)
	e.mu.Unlock()

	e.logger.Info("engine reset")
	e.events.Emit(domain.Event{Kind: domain.EventReset})
}

type sttResult struct {
	text    string
	err     error
	retries int
}

type llmResult struct {
	text string
	err  error
}

func (e *Engine) run(ctx context.Context, sess *session, cfg *config.Config, eff Effective, stt Transcriber, llm Rewriter, rec domain.Recording) (domain.Result, error) {
	requestID := uuid.NewString()
	started := time.Now()
	logger := e.logger.With("request_id", requestID)

	res := domain.Result{
		RequestID:   requestID,
		ProfileID:   eff.ProfileID,
		STTProvider: stt.Name(),
		STTModel:    stt.Model(),
		LLMOutcome:  domain.LLMOutcome{Kind: domain.LLMNotAttempted},
	}
	if llm != nil {
		res.LLMProvider = llm.Name()
		res.LLMModel = llm.Model()
	}

	e.logs.StartRequest(requestID, started)
	e.logs.Update(requestID, func(l *domain.RequestLog) {
		l.ProfileID = eff.ProfileID
		l.STTProvider = res.STTProvider
		l.STTModel = res.STTModel
		l.LLMProvider = res.LLMProvider
		l.LLMModel = res.LLMModel
		levels := rec.Levels
		l.Levels = &levels
		l.AddEntry("info", "effective config", map[string]any{
			"profile_id":          eff.ProfileID,
			"stt_provider":        res.STTProvider,
			"stt_model":           res.STTModel,
			"stt_timeout_seconds": eff.STTTimeout.Seconds(),
			"llm_enabled":         llm != nil,
			"llm_provider":        res.LLMProvider,
			"llm_model":           res.LLMModel,
			"wav_bytes":           len(rec.WAV),
		})
	})

	if path, err := e.recordings.SaveWAV(requestID, rec.WAV); err != nil {
		logger.Warn("saving recording", "error", err)
	} else if path != "" {
		e.logs.Update(requestID, func(l *domain.RequestLog) {
			l.AddEntry("debug", "recording saved", map[string]any{"path": path})
		})
	}

	workCtx, cancelWork := context.WithCancel(ctx)
	defer cancelWork()
	workCtx = infra.WithObserver(workCtx, func(ex infra.Exchange) {
		e.logs.Update(requestID, func(l *domain.RequestLog) {
			switch ex.Stage {
			case domain.StageSTT:
				l.STTRequest, l.STTResponse = ex.Request, ex.Response
			case domain.StageLLM:
				l.LLMRequest, l.LLMResponse = ex.Request, ex.Response
			}
			details := map[string]any{"endpoint": ex.Endpoint, "status": ex.Status, "duration_ms": ex.Duration.Milliseconds()}
			if ex.Err != nil {
				details["error"] = ex.Err.Error()
			}
			l.AddEntry("debug", string(ex.Stage)+" exchange", details)
		})
	})

	// STT, raced against the outer timeout and cancellation.
	sttStarted := time.Now()
	sttCh := make(chan sttResult, 1)
	go func() {
		retries := 0
		rc := retryConfig(cfg.Retry)
		rc.OnRetry = func(attempt int, err error, delay time.Duration) {
			retries++
			e.metrics.IncRetry(stt.Name())
			logger.Warn("retrying transcription", "attempt", attempt, "delay_ms", delay.Milliseconds(), "error", err)
			e.logs.Update(requestID, func(l *domain.RequestLog) {
				l.AddEntry("warn", "retrying transcription", map[string]any{"attempt": attempt, "delay_ms": delay.Milliseconds(), "error": err.Error()})
			})
		}
		var text string
		err := infra.WithRetry(workCtx, rc, func() error {
			t, err := stt.Transcribe(workCtx, rec.WAV, rec.Format)
			text = t
			return err
		})
		sttCh <- sttResult{text: text, err: err, retries: retries}
	}()

	var sttOut sttResult
	timer := time.NewTimer(eff.STTTimeout)
	select {
	case <-sess.ctx.Done():
	case <-ctx.Done():
	case sttOut = <-sttCh:
	case <-timer.C:
		sttOut.err = &domain.TimeoutError{After: eff.STTTimeout}
	}
	timer.Stop()
	res.STTDuration = time.Since(sttStarted)

	if isCancelled(ctx, sess) {
		cancelWork()
		return e.finishCancelled(sess, requestID, logger)
	}
	if sttOut.err != nil {
		cancelWork()
		e.metrics.ObserveTranscription("error", res.STTDuration)
		return e.finishFailed(sess, requestID, logger, fmt.Errorf("transcribing: %w", sttOut.err))
	}

	res.STTText = sttOut.text
	res.FinalText = sttOut.text
	res.Retries = sttOut.retries
	e.metrics.ObserveTranscription("success", res.STTDuration)
	sttMS := res.STTDuration.Milliseconds()
	e.logs.Update(requestID, func(l *domain.RequestLog) {
		raw := res.STTText
		l.RawTranscript = &raw
		l.STTMS = &sttMS
		l.Retries = res.Retries
	})
	logger.Info("transcribed", "provider", res.STTProvider, "duration_ms", sttMS, "retries", res.Retries, "chars", len(res.STTText))

	// Optional rewrite; failures degrade to the raw transcript.
	if llm != nil && res.STTText != "" {
		llmStarted := time.Now()
		llmCh := make(chan llmResult, 1)
		prompt := SystemPrompt(eff.Prompts, llm)
		go func() {
			text, err := llm.Complete(workCtx, prompt, res.STTText)
			llmCh <- llmResult{text: text, err: err}
		}()

		var llmOut llmResult
		timedOut := false
		llmTimer := time.NewTimer(eff.LLM.Timeout)
		select {
		case <-sess.ctx.Done():
		case <-ctx.Done():
		case llmOut = <-llmCh:
		case <-llmTimer.C:
			timedOut = true
		}
		llmTimer.Stop()
		d := time.Since(llmStarted)
		res.LLMDuration = &d

		if isCancelled(ctx, sess) {
			cancelWork()
			return e.finishCancelled(sess, requestID, logger)
		}

		switch {
		case timedOut:
			res.LLMOutcome = domain.LLMOutcome{Kind: domain.LLMTimedOut, Message: fmt.Sprintf("no response within %s", eff.LLM.Timeout)}
			logger.Warn("rewrite timed out, using raw transcript", "provider", res.LLMProvider, "timeout", eff.LLM.Timeout)
		case llmOut.err != nil:
			res.LLMOutcome = domain.LLMOutcome{Kind: domain.LLMFailed, Message: llmOut.err.Error()}
			logger.Warn("rewrite failed, using raw transcript", "provider", res.LLMProvider, "error", llmOut.err)
		default:
			text, _ := UnwrapRewritten(llmOut.text)
			res.FinalText = text
			res.LLMOutcome = domain.LLMOutcome{Kind: domain.LLMSucceeded}
		}
		e.metrics.ObserveLLM(res.LLMOutcome.Kind, d)

		llmMS := d.Milliseconds()
		e.logs.Update(requestID, func(l *domain.RequestLog) {
			l.LLMMS = &llmMS
			details := map[string]any{"outcome": string(res.LLMOutcome.Kind), "duration_ms": llmMS}
			level := "info"
			if res.LLMOutcome.Message != "" {
				details["reason"] = res.LLMOutcome.Message
				level = "warn"
			}
			l.AddEntry(level, "rewrite finished", details)
		})
	}

	return e.finishSucceeded(sess, cfg, requestID, logger, res)
}

func (e *Engine) finishSucceeded(sess *session, cfg *config.Config, requestID string, logger *slog.Logger, res domain.Result) (domain.Result, error) {
	e.mu.Lock()
	if e.session != sess {
		// Cancelled or reset between the last check and here.
		e.mu.Unlock()
		return e.finishCancelled(sess, requestID, logger)
	}
	e.endSessionLocked()
	e.setStateLocked(domain.StateIdle)
	e.mu.Unlock()

	now := time.Now()
	e.logs.Update(requestID, func(l *domain.RequestLog) {
		final := res.FinalText
		l.FinalText = &final
		l.Finish(domain.StatusSuccess, now)
	})

	if res.FinalText != "" && cfg.History.Enabled {
		entry := domain.HistoryEntry{
			ID:          requestID,
			Timestamp:   now,
			Text:        res.FinalText,
			RawText:     res.STTText,
			ProfileID:   res.ProfileID,
			STTProvider: res.STTProvider,
			LLMProvider: res.LLMProvider,
			DurationMS:  res.STTDuration.Milliseconds(),
		}
		if res.LLMDuration != nil {
			entry.DurationMS += res.LLMDuration.Milliseconds()
		}
		if err := e.history.Append(entry); err != nil {
			logger.Warn("appending history", "error", err)
		}
	}

	logger.Info("transcript ready", "llm_outcome", res.LLMOutcome.Kind, "chars", len(res.FinalText))
	e.events.Emit(domain.Event{Kind: domain.EventTranscriptReady, RequestID: requestID, Text: res.FinalText})
	return res, nil
}

func (e *Engine) finishCancelled(sess *session, requestID string, logger *slog.Logger) (domain.Result, error) {
	e.mu.Lock()
	if e.session == sess {
		// The caller's context ended rather than Cancel; clean up ourselves.
		e.endSessionLocked()
		e.setStateLocked(domain.StateIdle)
	}
	e.mu.Unlock()

	e.logs.Update(requestID, func(l *domain.RequestLog) {
		l.AddEntry("info", "cancelled", nil)
		l.Finish(domain.StatusCancelled, time.Now())
	})
	e.metrics.ObserveTranscription("cancelled", 0)
	logger.Info("transcription cancelled")
	return domain.Result{}, domain.ErrCancelled
}

func (e *Engine) finishFailed(sess *session, requestID string, logger *slog.Logger, err error) (domain.Result, error) {
	e.mu.Lock()
	if e.session == sess {
		e.endSessionLocked()
		e.setErrorLocked(err)
	}
	e.mu.Unlock()

	e.logs.Update(requestID, func(l *domain.RequestLog) {
		l.Error = err.Error()
		l.AddEntry("error", "transcription failed", map[string]any{"error": err.Error()})
		l.Finish(domain.StatusError, time.Now())
	})
	logger.Error("transcription failed", "error", err)
	e.events.Emit(domain.Event{Kind: domain.EventError, RequestID: requestID, Text: domain.UserMessage(err)})
	return domain.Result{}, err
}

func (e *Engine) surface(err error) error {
	e.logger.Error("pipeline error", "error", err)
	e.events.Emit(domain.Event{Kind: domain.EventError, Text: domain.UserMessage(err)})
	return err
}

// providersLocked builds (or reuses) the adapters for eff, falling back to
// the global providers when a profile override cannot be constructed.
func (e *Engine) providersLocked(cfg *config.Config, eff Effective) (Transcriber, Rewriter, error) {
	stt, err := e.transcriberLocked(cfg, eff.STT)
	if err != nil && eff.STT != eff.GlobalSTT {
		e.logger.Warn("profile transcription provider unavailable, using global", "profile", eff.ProfileID, "provider", eff.STT.Provider, "error", err)
		e.metrics.IncProviderFallback(domain.StageSTT)
		stt, err = e.transcriberLocked(cfg, eff.GlobalSTT)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", domain.ErrNoProvider, err)
	}

	if !eff.LLMEnabled {
		return stt, nil, nil
	}
	llm, err := e.rewriterLocked(cfg, eff.LLM)
	if err != nil && !sameLLM(eff.LLM, eff.GlobalLLM) {
		e.logger.Warn("profile rewrite provider unavailable, using global", "profile", eff.ProfileID, "provider", eff.LLM.Provider, "error", err)
		e.metrics.IncProviderFallback(domain.StageLLM)
		llm, err = e.rewriterLocked(cfg, eff.GlobalLLM)
	}
	if err != nil {
		e.logger.Warn("rewrite provider unavailable, formatting disabled for this request", "provider", eff.LLM.Provider, "error", err)
		return stt, nil, nil
	}
	return stt, llm, nil
}

func (e *Engine) transcriberLocked(cfg *config.Config, spec STTSpec) (Transcriber, error) {
	key := sttKey{provider: spec.Provider, model: spec.Model, prompt: spec.Prompt}
	if t, ok := e.sttCache[key]; ok {
		return t, nil
	}
	t, err := e.factory.NewTranscriber(cfg.APIKeys, spec)
	if err != nil {
		return nil, err
	}
	e.sttCache[key] = t
	return t, nil
}

func (e *Engine) rewriterLocked(cfg *config.Config, spec LLMSpec) (Rewriter, error) {
	key := llmKey{
		provider: spec.Provider,
		model:    spec.Model,
		timeout:  int(spec.Timeout / time.Second),
		baseURL:  spec.BaseURL,
	}
	if r, ok := e.llmCache[key]; ok {
		return r, nil
	}
	r, err := e.factory.NewRewriter(cfg.APIKeys, spec)
	if err != nil {
		return nil, err
	}
	e.llmCache[key] = r
	return r, nil
}

func (e *Engine) setStateLocked(s domain.PipelineState) {
	e.state = s
	e.metrics.SetState(s)
}

func (e *Engine) setErrorLocked(err error) {
	e.lastErr = err
	e.endSessionLocked()
	e.stopRecorderLocked()
	e.setStateLocked(domain.StateError)
}

func (e *Engine) endSessionLocked() {
	if e.session != nil {
		e.session.cancel()
		e.session = nil
	}
}

func (e *Engine) stopRecorderLocked() {
	if e.recorder.IsActive() {
		if err := e.recorder.Stop(); err != nil {
			e.logger.Warn("stopping capture", "error", err)
		}
	}
}

// isCancelled gives cancellation priority over whatever else completed.
func isCancelled(ctx context.Context, sess *session) bool {
	return sess.ctx.Err() != nil || ctx.Err() != nil
}

func sameLLM(a, b LLMSpec) bool {
	return a.Provider == b.Provider && a.Model == b.Model && a.Timeout == b.Timeout && a.BaseURL == b.BaseURL
}

func retryConfig(c config.RetryConfig) infra.RetryConfig {
	return infra.RetryConfig{
		MaxRetries:     c.MaxRetries,
		InitialBackoff: time.Duration(c.InitialBackoffMS) * time.Millisecond,
		MaxBackoff:     time.Duration(c.MaxBackoffMS) * time.Millisecond,
		Multiplier:     c.Multiplier,
		JitterFraction: c.JitterFraction,
	}
}
