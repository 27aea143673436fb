//go:build !portaudio
// +build !portaudio

package audio

import (
	"errors"
	"log/slog"

	"voxflow/internal/domain"
)

// Microphone stub when portaudio is not available
type Microphone struct {
	logger *slog.Logger
}

func NewMicrophone(logger *slog.Logger) *Microphone {
	return &Microphone{logger: logger}
}

func (m *Microphone) Open(_ func([]float32), _ func(error)) (Stream, domain.AudioFormat, error) {
	return nil, domain.AudioFormat{}, domain.NewCaptureError(domain.CaptureNoInputDevice,
		errors.New("microphone not available: rebuild with -tags portaudio"))
}
