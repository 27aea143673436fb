//go:build portaudio
// +build portaudio

package audio

import (
	"fmt"
	"log/slog"

	"github.com/gordonklaus/portaudio"

	"voxflow/internal/domain"
)

// Microphone is the default system input opened through PortAudio.
type Microphone struct {
	logger *slog.Logger
}

func NewMicrophone(logger *slog.Logger) *Microphone {
	return &Microphone{logger: logger}
}

func (m *Microphone) Open(onData func([]float32), onError func(error)) (Stream, domain.AudioFormat, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, domain.AudioFormat{}, domain.NewCaptureError(domain.CaptureStreamBuild, fmt.Errorf("initializing portaudio: %w", err))
	}

	dev, err := portaudio.DefaultInputDevice()
	if err != nil || dev == nil {
		portaudio.Terminate()
		return nil, domain.AudioFormat{}, domain.NewCaptureError(domain.CaptureNoInputDevice, err)
	}

	channels := min(dev.MaxInputChannels, 2)
	if channels <= 0 || dev.DefaultSampleRate <= 0 {
		portaudio.Terminate()
		return nil, domain.AudioFormat{}, domain.NewCaptureError(domain.CaptureDeviceConfig,
			fmt.Errorf("device %q reports %d channels at %.0f Hz", dev.Name, dev.MaxInputChannels, dev.DefaultSampleRate))
	}

	params := portaudio.LowLatencyParameters(dev, nil)
	params.Input.Channels = channels
	params.Output.Channels = 0
	params.SampleRate = dev.DefaultSampleRate

	stream, err := portaudio.OpenStream(params, onData)
	if err != nil {
		portaudio.Terminate()
		return nil, domain.AudioFormat{}, domain.NewCaptureError(domain.CaptureStreamBuild, fmt.Errorf("opening stream: %w", err))
	}

	format := domain.WAVFormat(int(dev.DefaultSampleRate), channels)
	m.logger.Info("microphone opened",
		"device", dev.Name,
		"sample_rate", format.SampleRate,
		"channels", channels,
	)
	return &micStream{stream: stream}, format, nil
}

type micStream struct {
	stream *portaudio.Stream
}

func (s *micStream) Start() error {
	if err := s.stream.Start(); err != nil {
		return fmt.Errorf("starting stream: %w", err)
	}
	return nil
}

func (s *micStream) Close() error {
	s.stream.Stop()
	err := s.stream.Close()
	portaudio.Terminate()
	return err
}
