package audio

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"voxflow/internal/domain"
)

// Device opens the default input. onData receives interleaved float32
// samples on the driver's thread and must not retain the slice; onError
// reports failures the driver detects after the stream has started.
type Device interface {
	Open(onData func([]float32), onError func(error)) (Stream, domain.AudioFormat, error)
}

type Stream interface {
	Start() error
	Close() error
}

// SampleSink receives a copy of every captured chunk, e.g. a VAD worker.
// Push must not block.
type SampleSink interface {
	Push(samples []float32)
	Close()
}

// SinkFactory builds the sink for a session; it may return nil.
type SinkFactory func(format domain.AudioFormat) SampleSink

// Capture implements application.Recorder on top of a Device.
type Capture struct {
	device Device
	sinks  SinkFactory
	logger *slog.Logger

	mu   sync.Mutex
	sess *session
}

func NewCapture(device Device, sinks SinkFactory, logger *slog.Logger) *Capture {
	return &Capture{
		device: device,
		sinks:  sinks,
		logger: logger,
	}
}

type session struct {
	format  domain.AudioFormat
	stream  Stream
	sink    SampleSink
	started time.Time

	bufMu   sync.Mutex
	buffer  *SampleBuffer
	dropped int

	// failed is set from the driver thread and read at stop.
	failed atomic.Pointer[domain.CaptureError]

	// staging holds chunks that arrived while bufMu was contended. Only
	// the driver callback touches it until the stream is closed, and it
	// never grows past its initial capacity.
	staging []float32
	lost    atomic.Int64
}

func (c *Capture) Start(maxDuration time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.sess != nil {
		c.logger.Warn("capture already active, restarting")
		c.closeLocked()
	}

	s := &session{}
	stream, format, err := c.device.Open(s.onData, s.onError)
	if err != nil {
		var ce *domain.CaptureError
		if errors.As(err, &ce) {
			return err
		}
		return domain.NewCaptureError(domain.CaptureStreamBuild, err)
	}
	if format.SampleRate <= 0 || format.Channels <= 0 {
		stream.Close()
		return domain.NewCaptureError(domain.CaptureDeviceConfig, fmt.Errorf("unusable format %d Hz x %d", format.SampleRate, format.Channels))
	}

	s.format = format
	s.stream = stream
	s.buffer = NewSampleBuffer(BufferCapacity(format.SampleRate, format.Channels, maxDuration))
	// Half a second of headroom for contended callbacks.
	s.staging = make([]float32, 0, format.SampleRate*format.Channels/2)
	if c.sinks != nil {
		s.sink = c.sinks(format)
	}

	if err := stream.Start(); err != nil {
		stream.Close()
		if s.sink != nil {
			s.sink.Close()
		}
		return domain.NewCaptureError(domain.CaptureStreamStart, err)
	}
	s.started = time.Now()
	c.sess = s

	c.logger.Info("capture started",
		"sample_rate", format.SampleRate,
		"channels", format.Channels,
		"capacity", s.buffer.Cap(),
	)
	return nil
}

// StopAndGetWAV halts the stream, gates and encodes what was captured.
func (c *Capture) StopAndGetWAV(noiseGateStrength int) (domain.Recording, error) {
	c.mu.Lock()
	s := c.sess
	c.sess = nil
	c.mu.Unlock()

	if s == nil {
		return domain.Recording{}, domain.NewCaptureError(domain.CaptureNotActive, nil)
	}
	s.close(c.logger)

	s.bufMu.Lock()
	s.flushStagingLocked()
	samples := s.buffer.Samples()
	dropped := s.dropped + int(s.lost.Load())
	s.bufMu.Unlock()

	if failed := s.failed.Load(); failed != nil {
		return domain.Recording{}, failed
	}

	rate, channels := s.format.SampleRate, s.format.Channels
	ApplyNoiseGate(samples, channels, rate, noiseGateStrength)
	levels := ComputeLevels(samples, rate, channels)

	data, err := EncodeWAV(samples, rate, channels)
	if err != nil {
		return domain.Recording{}, domain.NewCaptureError(domain.CaptureEncoding, err)
	}

	c.logger.Info("capture stopped",
		"duration_s", levels.DurationSeconds,
		"rms", levels.RMS,
		"peak", levels.Peak,
		"dropped_samples", dropped,
		"noise_gate", noiseGateStrength,
		"wav_bytes", len(data),
	)
	return domain.Recording{WAV: data, Format: s.format, Levels: levels}, nil
}

// Stop discards the current session.
func (c *Capture) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sess == nil {
		return nil
	}
	c.closeLocked()
	return nil
}

func (c *Capture) IsActive() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sess != nil
}

func (c *Capture) closeLocked() {
	c.sess.close(c.logger)
	c.sess = nil
}

func (s *session) close(logger *slog.Logger) {
	if err := s.stream.Close(); err != nil {
		logger.Warn("closing input stream", "error", err)
	}
	if s.sink != nil {
		s.sink.Close()
	}
}

// onData runs on the driver thread.
func (s *session) onData(in []float32) {
	if ch := s.format.Channels; ch > 0 && len(in)%ch != 0 {
		s.onError(fmt.Errorf("callback delivered %d samples, not a multiple of %d channels", len(in), ch))
		return
	}

	if s.bufMu.TryLock() {
		s.flushStagingLocked()
		s.dropped += s.buffer.Append(in)
		s.bufMu.Unlock()
	} else {
		s.stage(in)
	}

	if s.sink != nil {
		s.sink.Push(in)
	}
}

// stage keeps the newest whole frames of in without allocating; whatever
// does not fit is counted as lost.
func (s *session) stage(in []float32) {
	ch := max(s.format.Channels, 1)
	room := cap(s.staging) - cap(s.staging)%ch
	if len(in) > room {
		s.lost.Add(int64(len(in) - room))
		in = in[len(in)-room:]
	}
	if over := len(s.staging) + len(in) - room; over > 0 {
		s.lost.Add(int64(over))
		n := copy(s.staging, s.staging[over:])
		s.staging = s.staging[:n]
	}
	s.staging = append(s.staging, in...)
}

// onError marks the session failed; it is reported at stop. It may run on
// the driver thread, so it never blocks.
func (s *session) onError(err error) {
	s.failed.CompareAndSwap(nil, domain.NewCaptureError(domain.CaptureDeviceConfig, err))
}

func (s *session) flushStagingLocked() {
	if len(s.staging) == 0 {
		return
	}
	s.dropped += s.buffer.Append(s.staging)
	s.staging = s.staging[:0]
}
