package domain

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrNoProvider       = errors.New("no transcription provider available")
	ErrAlreadyRecording = errors.New("already recording")
	ErrNotRecording     = errors.New("not recording")
	ErrCancelled        = errors.New("cancelled")
	ErrNoLastAudio      = errors.New("no recorded audio to replay")
)

type CaptureKind string

const (
	CaptureNoInputDevice CaptureKind = "no_input_device"
	CaptureDeviceConfig  CaptureKind = "device_config"
	CaptureStreamBuild   CaptureKind = "stream_build"
	CaptureStreamStart   CaptureKind = "stream_start"
	CaptureEncoding      CaptureKind = "encoding"
	CaptureNotActive     CaptureKind = "not_active"
)

// CaptureError reports a failure of the audio input path.
type CaptureError struct {
	Kind CaptureKind
	Err  error
}

func (e *CaptureError) Error() string {
	if e.Err == nil {
		return "audio capture: " + string(e.Kind)
	}
	return fmt.Sprintf("audio capture: %s: %v", e.Kind, e.Err)
}

func (e *CaptureError) Unwrap() error {
	return e.Err
}

func NewCaptureError(kind CaptureKind, err error) *CaptureError {
	return &CaptureError{Kind: kind, Err: err}
}

type Stage string

const (
	StageSTT Stage = "stt"
	StageLLM Stage = "llm"
)

type ErrorKind string

const (
	KindNetwork             ErrorKind = "network"
	KindAPI                 ErrorKind = "api"
	KindAudio               ErrorKind = "audio"
	KindConfig              ErrorKind = "config"
	KindTimeout             ErrorKind = "timeout"
	KindInvalidResponse     ErrorKind = "invalid_response"
	KindNoAPIKey            ErrorKind = "no_api_key"
	KindProviderUnavailable ErrorKind = "provider_not_available"
)

// ProviderError is returned by every STT and LLM adapter.
type ProviderError struct {
	Stage      Stage
	Kind       ErrorKind
	Provider   string
	StatusCode int
	Message    string
	Err        error
}

func (e *ProviderError) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Stage))
	if e.Provider != "" {
		b.WriteString(" " + e.Provider)
	}
	b.WriteString(": " + string(e.Kind))
	if e.StatusCode != 0 {
		fmt.Fprintf(&b, " (status %d)", e.StatusCode)
	}
	if e.Message != "" {
		b.WriteString(": " + e.Message)
	} else if e.Err != nil {
		b.WriteString(": " + e.Err.Error())
	}
	return b.String()
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// TimeoutError is the orchestrator's outer deadline firing.
type TimeoutError struct {
	After time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("timed out after %s", e.After)
}

type RecordingTooLargeError struct {
	Got   int
	Limit int
}

func (e *RecordingTooLargeError) Error() string {
	return fmt.Sprintf("recording too large: %d bytes (limit %d)", e.Got, e.Limit)
}

type ConfigError struct {
	Msg string
}

func (e *ConfigError) Error() string {
	return "config: " + e.Msg
}

// IsRetryable classifies err for the retry wrapper. Network and timeout
// failures retry, as do API responses with status 408, 429 or 5xx.
func IsRetryable(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	var pe *ProviderError
	if !errors.As(err, &pe) {
		return false
	}
	switch pe.Kind {
	case KindNetwork, KindTimeout:
		return true
	case KindAPI:
		return pe.StatusCode == 408 || pe.StatusCode == 429 || pe.StatusCode >= 500
	default:
		return false
	}
}

// UserMessage renders err as a single line for a tray tooltip.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	var (
		capErr  *CaptureError
		provErr *ProviderError
		toErr   *TimeoutError
		bigErr  *RecordingTooLargeError
		cfgErr  *ConfigError
	)
	switch {
	case errors.Is(err, ErrCancelled):
		return "Cancelled"
	case errors.Is(err, ErrNoProvider):
		return "No transcription provider configured"
	case errors.Is(err, ErrAlreadyRecording):
		return "Already recording"
	case errors.Is(err, ErrNotRecording):
		return "Not recording"
	case errors.As(err, &capErr):
		switch capErr.Kind {
		case CaptureNoInputDevice:
			return "No microphone found"
		case CaptureNotActive:
			return "Microphone is not active"
		default:
			return "Microphone error: " + string(capErr.Kind)
		}
	case errors.As(err, &toErr):
		return fmt.Sprintf("Transcription timed out after %s", toErr.After.Round(time.Second))
	case errors.As(err, &bigErr):
		return fmt.Sprintf("Recording too large (%.1f MiB)", float64(bigErr.Got)/(1<<20))
	case errors.As(err, &provErr):
		switch provErr.Kind {
		case KindNoAPIKey:
			return fmt.Sprintf("Missing API key for %s", provErr.Provider)
		case KindNetwork:
			return "Network error, check your connection"
		case KindTimeout:
			return fmt.Sprintf("%s did not respond in time", provErr.Provider)
		case KindAPI:
			if provErr.Message != "" {
				return fmt.Sprintf("%s: %s", provErr.Provider, firstLine(provErr.Message))
			}
			return fmt.Sprintf("%s returned HTTP %d", provErr.Provider, provErr.StatusCode)
		}
		return firstLine(provErr.Error())
	case errors.As(err, &cfgErr):
		return "Configuration error: " + firstLine(cfgErr.Msg)
	}
	return firstLine(err.Error())
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	const maxLen = 120
	if len(s) > maxLen {
		s = s[:maxLen] + "..."
	}
	return s
}
