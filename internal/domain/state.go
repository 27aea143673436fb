package domain

type PipelineState string

const (
	StateIdle         PipelineState = "idle"
	StateRecording    PipelineState = "recording"
	StateTranscribing PipelineState = "transcribing"
	StateError        PipelineState = "error"
)

// CanStart reports whether a recording may begin from this state.
func (s PipelineState) CanStart() bool {
	return s == StateIdle || s == StateError
}

// IsActive reports whether a session is in flight (stop/cancel are legal).
func (s PipelineState) IsActive() bool {
	return s == StateRecording || s == StateTranscribing
}

type EventKind string

const (
	EventRecordingStarted     EventKind = "recording-started"
	EventTranscriptionStarted EventKind = "transcription-started"
	EventTranscriptReady      EventKind = "transcript-ready"
	EventCancelled            EventKind = "cancelled"
	EventReset                EventKind = "reset"
	EventError                EventKind = "error"
	EventSpeechStart          EventKind = "vad-speech-start"
	EventSpeechEnd            EventKind = "vad-speech-end"
)

// Event is emitted by the engine towards the shell.
type Event struct {
	Kind      EventKind `json:"kind"`
	RequestID string    `json:"request_id,omitempty"`
	Text      string    `json:"text,omitempty"`
}
