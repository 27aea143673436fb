package domain

import "time"

type LLMOutcomeKind string

const (
	LLMNotAttempted LLMOutcomeKind = "not_attempted"
	LLMSucceeded    LLMOutcomeKind = "succeeded"
	LLMTimedOut     LLMOutcomeKind = "timed_out"
	LLMFailed       LLMOutcomeKind = "failed"
)

type LLMOutcome struct {
	Kind    LLMOutcomeKind
	Message string
}

// Result is what a finished transcription hands back to the shell.
// FinalText equals STTText unless the outcome is LLMSucceeded.
type Result struct {
	RequestID   string
	ProfileID   string
	STTText     string
	FinalText   string
	STTDuration time.Duration
	LLMDuration *time.Duration
	LLMOutcome  LLMOutcome
	STTProvider string
	STTModel    string
	LLMProvider string
	LLMModel    string
	Retries     int
}
