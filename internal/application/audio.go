package application

import (
	"time"

	"voxflow/internal/domain"
)

// Recorder owns the microphone for one session at a time.
type Recorder interface {
	Start(maxDuration time.Duration) error
	// StopAndGetWAV halts capture and returns the encoded recording.
	StopAndGetWAV(noiseGateStrength int) (domain.Recording, error)
	// Stop halts capture and discards the buffer.
	Stop() error
	IsActive() bool
}
