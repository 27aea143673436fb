package application

import (
	"time"

	"voxflow/config"
	"voxflow/internal/domain"
)

type RequestLog interface {
	// StartRequest opens a new current entry, finalising a stale one as
	// cancelled.
	StartRequest(id string, at time.Time)
	// Update applies fn to the entry with id if it is still current.
	Update(id string, fn func(l *domain.RequestLog))
	SetRetention(cfg config.RequestLogConfig)
}

type RecordingStore interface {
	SaveWAV(id string, data []byte) (string, error)
}

type HistoryStore interface {
	Append(entry domain.HistoryEntry) error
}

type Metrics interface {
	SetState(state domain.PipelineState)
	ObserveRecording(bytes int, seconds float64)
	ObserveTranscription(status string, stt time.Duration)
	ObserveLLM(outcome domain.LLMOutcomeKind, d time.Duration)
	IncRetry(provider string)
	IncProviderFallback(stage domain.Stage)
}

type noopRequestLog struct{}

func (noopRequestLog) StartRequest(string, time.Time)          {}
func (noopRequestLog) Update(string, func(*domain.RequestLog)) {}
func (noopRequestLog) SetRetention(config.RequestLogConfig)    {}

type noopRecordings struct{}

func (noopRecordings) SaveWAV(string, []byte) (string, error) { return "", nil }

type noopHistory struct{}

func (noopHistory) Append(domain.HistoryEntry) error { return nil }

type noopMetrics struct{}

func (noopMetrics) SetState(domain.PipelineState)                   {}
func (noopMetrics) ObserveRecording(int, float64)                   {}
func (noopMetrics) ObserveTranscription(string, time.Duration)      {}
func (noopMetrics) ObserveLLM(domain.LLMOutcomeKind, time.Duration) {}
func (noopMetrics) IncRetry(string)                                 {}
func (noopMetrics) IncProviderFallback(domain.Stage)                {}
