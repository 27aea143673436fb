// Package httpapi exposes the dictation engine's shell commands over a
// loopback HTTP API.
package httpapi

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"voxflow/config"
	"voxflow/internal/domain"
)

// Engine is the subset of application.Engine the API drives.
type Engine interface {
	State() domain.PipelineState
	LastError() error
	CanStartRecording() bool
	HasLastAudio() bool
	StartRecording() error
	StopRecording() (domain.Recording, error)
	StopAndTranscribe(ctx context.Context) (domain.Result, error)
	Toggle(ctx context.Context) (*domain.Result, error)
	Cancel() error
	ForceReset()
	Config() *config.Config
	UpdateConfig(cfg *config.Config) error
	TestTranscribeLastAudio(ctx context.Context, profileID string) (domain.Result, error)
}

type LogReader interface {
	Logs(limit int) []domain.RequestLog
	Get(id string) (domain.RequestLog, bool)
}

type RecordingReader interface {
	WAVPathIfExists(id string) (string, bool)
}

type MetricsObserver interface {
	ObserveHTTP(route, method string, status int, duration time.Duration)
}

type Dependencies struct {
	Engine         Engine
	Logs           LogReader
	Recordings     RecordingReader
	Metrics        MetricsObserver
	MetricsHandler http.Handler
}

type server struct {
	cfg          config.HTTPConfig
	logger       *slog.Logger
	engine       Engine
	logs         LogReader
	recordings   RecordingReader
	metrics      MetricsObserver
	metricsRoute http.Handler
	limiter      *rateLimiter
}

type ctxKey string

const (
	requestIDHeader    = "X-Request-Id"
	requestIDContext   = ctxKey("request_id")
	maxConfigBodyBytes = 1 << 20
	defaultLogsLimit   = 50
)

func NewServer(cfg config.HTTPConfig, logger *slog.Logger, deps Dependencies) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	if deps.Engine == nil || deps.Logs == nil || deps.Recordings == nil {
		panic("httpapi: engine, logs and recordings are required")
	}

	s := &server{
		cfg:          cfg,
		logger:       logger,
		engine:       deps.Engine,
		logs:         deps.Logs,
		recordings:   deps.Recordings,
		metrics:      deps.Metrics,
		metricsRoute: deps.MetricsHandler,
		limiter:      newRateLimiter(cfg.RateLimit, time.Minute),
	}

	r := chi.NewRouter()
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		s.writeError(w, r, http.StatusNotFound, "not_found", "route not found", nil)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		s.writeError(w, r, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed", nil)
	})

	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoverMiddleware)
	r.Use(s.authMiddleware)

	r.Get("/healthz", s.handleHealthz)
	if s.metricsRoute != nil {
		r.Handle("/metrics", s.metricsRoute)
	}

	r.Route("/v1", func(r chi.Router) {
		r.Use(s.rateLimitMiddleware)

		r.Get("/state", s.handleState)
		r.Post("/recording/start", s.handleStart)
		r.Post("/recording/stop", s.handleStop)
		r.Post("/recording/cancel", s.handleCancel)
		r.Post("/recording/toggle", s.handleToggle)
		r.Post("/reset", s.handleReset)
		r.Get("/config", s.handleGetConfig)
		r.Put("/config", s.handlePutConfig)
		r.Get("/last-audio", s.handleLastAudio)
		r.Post("/last-audio/transcribe", s.handleTranscribeLastAudio)
		r.Get("/logs", s.handleLogs)
		r.Get("/logs/{id}", s.handleLog)
		r.Get("/recordings/{id}", s.handleRecording)
	})

	return r
}

func (s *server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "state": s.engine.State()})
}

type stateResponse struct {
	State       domain.PipelineState `json:"state"`
	IsRecording bool                 `json:"is_recording"`
	IsError     bool                 `json:"is_error"`
	CanStart    bool                 `json:"can_start"`
	LastError   string               `json:"last_error,omitempty"`
}

func (s *server) stateSnapshot() stateResponse {
	st := s.engine.State()
	resp := stateResponse{
		State:       st,
		IsRecording: st == domain.StateRecording,
		IsError:     st == domain.StateError,
		CanStart:    st.CanStart(),
	}
	if err := s.engine.LastError(); err != nil && st == domain.StateError {
		resp.LastError = domain.UserMessage(err)
	}
	return resp
}

func (s *server) handleState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.stateSnapshot())
}

func (s *server) handleStart(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.StartRecording(); err != nil {
		s.writeMappedError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.stateSnapshot())
}

func (s *server) handleStop(w http.ResponseWriter, r *http.Request) {
	transcribe := true
	if v := strings.TrimSpace(r.URL.Query().Get("transcribe")); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			s.writeError(w, r, http.StatusBadRequest, "invalid_request", "transcribe must be a boolean", nil)
			return
		}
		transcribe = b
	}

	if !transcribe {
		rec, err := s.engine.StopRecording()
		if err != nil {
			s.writeMappedError(w, r, err)
			return
		}
		w.Header().Set("Content-Type", "audio/wav")
		w.Header().Set("X-Audio-Duration-Seconds", strconv.FormatFloat(rec.Levels.DurationSeconds, 'f', 3, 64))
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(rec.WAV)
		return
	}

	// A client disconnect must not cancel the request; cancel is explicit.
	res, err := s.engine.StopAndTranscribe(context.WithoutCancel(r.Context()))
	if err != nil {
		s.writeMappedError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toResultResponse(res))
}

func (s *server) handleCancel(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.Cancel(); err != nil {
		s.writeMappedError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.stateSnapshot())
}

func (s *server) handleToggle(w http.ResponseWriter, r *http.Request) {
	res, err := s.engine.Toggle(context.WithoutCancel(r.Context()))
	if err != nil {
		s.writeMappedError(w, r, err)
		return
	}
	if res == nil {
		writeJSON(w, http.StatusAccepted, s.stateSnapshot())
		return
	}
	writeJSON(w, http.StatusOK, toResultResponse(*res))
}

func (s *server) handleReset(w http.ResponseWriter, r *http.Request) {
	s.engine.ForceReset()
	writeJSON(w, http.StatusOK, s.stateSnapshot())
}

func (s *server) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.engine.Config())
}

func (s *server) handlePutConfig(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxConfigBodyBytes)
	defer func() { _ = r.Body.Close() }()

	data, err := io.ReadAll(r.Body)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			s.writeError(w, r, http.StatusRequestEntityTooLarge, "request_too_large", "config body too large", nil)
			return
		}
		s.writeError(w, r, http.StatusBadRequest, "invalid_request", "reading body failed", nil)
		return
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		s.writeError(w, r, http.StatusBadRequest, "invalid_request", "config body is required", nil)
		return
	}

	cfg, err := config.Parse(data)
	if err != nil {
		s.writeError(w, r, http.StatusBadRequest, "invalid_config", err.Error(), nil)
		return
	}
	// Keys are never echoed back, so a round-tripped config arrives without them.
	current := s.engine.Config()
	cfg.APIKeys = mergeKeys(cfg.APIKeys, current.APIKeys)
	if cfg.HTTP.AuthToken == "" {
		cfg.HTTP.AuthToken = current.HTTP.AuthToken
	}
	if cfg.Notify.Pushover.Token == "" {
		cfg.Notify.Pushover.Token = current.Notify.Pushover.Token
	}
	if cfg.Notify.Pushover.UserKey == "" {
		cfg.Notify.Pushover.UserKey = current.Notify.Pushover.UserKey
	}

	if err := s.engine.UpdateConfig(cfg); err != nil {
		s.writeMappedError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.engine.Config())
}

func mergeKeys(next, current config.APIKeys) config.APIKeys {
	pick := func(a, b string) string {
		if a != "" {
			return a
		}
		return b
	}
	return config.APIKeys{
		Groq:      pick(next.Groq, current.Groq),
		OpenAI:    pick(next.OpenAI, current.OpenAI),
		Anthropic: pick(next.Anthropic, current.Anthropic),
		Deepgram:  pick(next.Deepgram, current.Deepgram),
		Gemini:    pick(next.Gemini, current.Gemini),
	}
}

func (s *server) handleLastAudio(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]bool{"has_last_audio": s.engine.HasLastAudio()})
}

func (s *server) handleTranscribeLastAudio(w http.ResponseWriter, r *http.Request) {
	profileID := strings.TrimSpace(r.URL.Query().Get("profile_id"))
	res, err := s.engine.TestTranscribeLastAudio(context.WithoutCancel(r.Context()), profileID)
	if err != nil {
		s.writeMappedError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toResultResponse(res))
}

func (s *server) handleLogs(w http.ResponseWriter, r *http.Request) {
	limit := defaultLogsLimit
	if v := strings.TrimSpace(r.URL.Query().Get("limit")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			s.writeError(w, r, http.StatusBadRequest, "invalid_request", "limit must be a positive integer", nil)
			return
		}
		limit = min(n, config.RequestLogHardCap)
	}
	writeJSON(w, http.StatusOK, map[string]any{"logs": s.logs.Logs(limit)})
}

func (s *server) handleLog(w http.ResponseWriter, r *http.Request) {
	entry, ok := s.logs.Get(chi.URLParam(r, "id"))
	if !ok {
		s.writeError(w, r, http.StatusNotFound, "not_found", "request log not found", nil)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

func (s *server) handleRecording(w http.ResponseWriter, r *http.Request) {
	path, ok := s.recordings.WAVPathIfExists(chi.URLParam(r, "id"))
	if !ok {
		s.writeError(w, r, http.StatusNotFound, "not_found", "recording not found", nil)
		return
	}
	f, err := os.Open(path)
	if err != nil {
		s.writeError(w, r, http.StatusNotFound, "not_found", "recording not found", nil)
		return
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		s.writeMappedError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "audio/wav")
	http.ServeContent(w, r, info.Name(), info.ModTime(), f)
}

type resultResponse struct {
	RequestID     string `json:"request_id"`
	ProfileID     string `json:"profile_id,omitempty"`
	Text          string `json:"text"`
	RawText       string `json:"raw_text"`
	STTProvider   string `json:"stt_provider"`
	STTModel      string `json:"stt_model,omitempty"`
	LLMProvider   string `json:"llm_provider,omitempty"`
	LLMModel      string `json:"llm_model,omitempty"`
	LLMOutcome    string `json:"llm_outcome"`
	LLMMessage    string `json:"llm_message,omitempty"`
	STTDurationMS int64  `json:"stt_duration_ms"`
	LLMDurationMS *int64 `json:"llm_duration_ms,omitempty"`
	Retries       int    `json:"retries"`
}

func toResultResponse(res domain.Result) resultResponse {
	out := resultResponse{
		RequestID:     res.RequestID,
		ProfileID:     res.ProfileID,
		Text:          res.FinalText,
		RawText:       res.STTText,
		STTProvider:   res.STTProvider,
		STTModel:      res.STTModel,
		LLMProvider:   res.LLMProvider,
		LLMModel:      res.LLMModel,
		LLMOutcome:    string(res.LLMOutcome.Kind),
		LLMMessage:    res.LLMOutcome.Message,
		STTDurationMS: res.STTDuration.Milliseconds(),
		Retries:       res.Retries,
	}
	if res.LLMDuration != nil {
		ms := res.LLMDuration.Milliseconds()
		out.LLMDurationMS = &ms
	}
	return out
}

func (s *server) writeMappedError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	code := "internal_error"
	var details map[string]any

	var (
		capErr  *domain.CaptureError
		provErr *domain.ProviderError
		toErr   *domain.TimeoutError
		bigErr  *domain.RecordingTooLargeError
		cfgErr  *domain.ConfigError
	)
	switch {
	case errors.Is(err, domain.ErrAlreadyRecording):
		status, code = http.StatusConflict, "already_recording"
	case errors.Is(err, domain.ErrNotRecording):
		status, code = http.StatusConflict, "not_recording"
	case errors.Is(err, domain.ErrNoLastAudio):
		status, code = http.StatusNotFound, "no_last_audio"
	case errors.Is(err, domain.ErrCancelled), errors.Is(err, context.Canceled):
		status, code = 499, "cancelled"
	case errors.Is(err, domain.ErrNoProvider):
		status, code = http.StatusServiceUnavailable, "no_provider"
	case errors.As(err, &toErr):
		status, code = http.StatusGatewayTimeout, "timeout"
	case errors.As(err, &bigErr):
		status, code = http.StatusRequestEntityTooLarge, "recording_too_large"
		details = map[string]any{"bytes": bigErr.Got, "limit": bigErr.Limit}
	case errors.As(err, &cfgErr):
		status, code = http.StatusBadRequest, "invalid_config"
	case errors.As(err, &capErr):
		status, code = http.StatusServiceUnavailable, "capture_failed"
		details = map[string]any{"kind": capErr.Kind}
	case errors.As(err, &provErr):
		status, code = http.StatusBadGateway, "provider_failed"
		details = map[string]any{"stage": provErr.Stage, "kind": provErr.Kind, "provider": provErr.Provider}
		if provErr.StatusCode != 0 {
			details["status"] = provErr.StatusCode
		}
	}

	if status >= 500 {
		s.logger.Error("request failed", "request_id", requestIDFromContext(r.Context()), "code", code, "error", err)
	}
	s.writeError(w, r, status, code, domain.UserMessage(err), details)
}

type apiError struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

type errorResponse struct {
	Error     apiError `json:"error"`
	RequestID string   `json:"request_id,omitempty"`
}

func (s *server) writeError(w http.ResponseWriter, r *http.Request, status int, code, message string, details map[string]any) {
	if rid := requestIDFromContext(r.Context()); rid != "" {
		w.Header().Set(requestIDHeader, rid)
	}
	writeJSON(w, status, errorResponse{
		Error:     apiError{Code: code, Message: message, Details: details},
		RequestID: requestIDFromContext(r.Context()),
	})
}

func (s *server) requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := strings.TrimSpace(r.Header.Get(requestIDHeader))
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, requestID)
		ctx := context.WithValue(r.Context(), requestIDContext, requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		started := time.Now()
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}

		route := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				route = pattern
			}
		}

		duration := time.Since(started)
		if s.metrics != nil {
			s.metrics.ObserveHTTP(route, r.Method, status, duration)
		}

		s.logger.Info("http_request",
			"request_id", requestIDFromContext(r.Context()),
			"method", r.Method,
			"route", route,
			"status", status,
			"bytes", ww.BytesWritten(),
			"duration_ms", duration.Milliseconds(),
		)
	})
}

func (s *server) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Error("panic recovered", "request_id", requestIDFromContext(r.Context()), "panic", rec)
				s.writeError(w, r, http.StatusInternalServerError, "internal_error", "internal server error", nil)
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// authMiddleware accepts "Authorization: Bearer <token>" or X-Auth-Token
// when http.auth_token is set.
func (s *server) authMiddleware(next http.Handler) http.Handler {
	if s.cfg.AuthToken == "" {
		return next
	}
	want := []byte(s.cfg.AuthToken)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if isPublicPath(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}
		token := r.Header.Get("X-Auth-Token")
		if bearer, ok := extractBearerToken(r.Header.Get("Authorization")); ok {
			token = bearer
		}
		if token == "" || subtle.ConstantTimeCompare([]byte(token), want) != 1 {
			s.logger.Warn("unauthorized request", "remote_addr", r.RemoteAddr, "path", r.URL.Path)
			s.writeError(w, r, http.StatusUnauthorized, "unauthorized", "missing or invalid token", nil)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func isPublicPath(path string) bool {
	switch path {
	case "/healthz", "/metrics":
		return true
	default:
		return false
	}
}

func extractBearerToken(header string) (string, bool) {
	header = strings.TrimSpace(header)
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return "", false
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, prefix))
	return token, token != ""
}

func writeJSON(w http.ResponseWriter, status int, value any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(value)
}

func requestIDFromContext(ctx context.Context) string {
	value, _ := ctx.Value(requestIDContext).(string)
	return value
}
