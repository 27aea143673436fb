package domain

import (
	"encoding/json"
	"time"
)

type RequestStatus string

const (
	StatusInProgress RequestStatus = "in_progress"
	StatusSuccess    RequestStatus = "success"
	StatusError      RequestStatus = "error"
	StatusCancelled  RequestStatus = "cancelled"
)

type LogEntry struct {
	Timestamp time.Time      `json:"ts"`
	Level     string         `json:"level"`
	Message   string         `json:"msg"`
	Details   map[string]any `json:"details,omitempty"`
}

// RequestLog is the diagnostic record of one transcription request.
type RequestLog struct {
	ID            string          `json:"id"`
	StartedAt     time.Time       `json:"started_at"`
	EndedAt       *time.Time      `json:"ended_at,omitempty"`
	ProfileID     string          `json:"profile_id,omitempty"`
	STTProvider   string          `json:"stt_provider"`
	STTModel      string          `json:"stt_model,omitempty"`
	LLMProvider   string          `json:"llm_provider,omitempty"`
	LLMModel      string          `json:"llm_model,omitempty"`
	RawTranscript *string         `json:"raw_transcript,omitempty"`
	FinalText     *string         `json:"final_text,omitempty"`
	STTRequest    json.RawMessage `json:"stt_request,omitempty"`
	STTResponse   json.RawMessage `json:"stt_response,omitempty"`
	LLMRequest    json.RawMessage `json:"llm_request,omitempty"`
	LLMResponse   json.RawMessage `json:"llm_response,omitempty"`
	Status        RequestStatus   `json:"status"`
	Error         string          `json:"error,omitempty"`
	Entries       []LogEntry      `json:"entries"`
	Levels        *Levels         `json:"levels,omitempty"`
	Retries       int             `json:"retries,omitempty"`
	TotalMS       *int64          `json:"total_ms,omitempty"`
	STTMS         *int64          `json:"stt_ms,omitempty"`
	LLMMS         *int64          `json:"llm_ms,omitempty"`
}

func (l *RequestLog) AddEntry(level, msg string, details map[string]any) {
	l.Entries = append(l.Entries, LogEntry{
		Timestamp: time.Now(),
		Level:     level,
		Message:   msg,
		Details:   details,
	})
}

// Finish stamps the end time and total duration.
func (l *RequestLog) Finish(status RequestStatus, at time.Time) {
	l.Status = status
	l.EndedAt = &at
	total := at.Sub(l.StartedAt).Milliseconds()
	l.TotalMS = &total
}

// HistoryEntry is one persisted, successfully transcribed dictation.
type HistoryEntry struct {
	ID          string    `json:"id"`
	Timestamp   time.Time `json:"timestamp"`
	Text        string    `json:"text"`
	RawText     string    `json:"raw_text"`
	ProfileID   string    `json:"profile_id,omitempty"`
	STTProvider string    `json:"stt_provider"`
	LLMProvider string    `json:"llm_provider,omitempty"`
	DurationMS  int64     `json:"duration_ms"`
}
