package audio_test

import (
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"voxflow/internal/domain"
	"voxflow/internal/infra/audio"
)

type fakeDevice struct {
	format  domain.AudioFormat
	openErr error

	mu      sync.Mutex
	onData  func([]float32)
	onError func(error)
	stream  *fakeStream
}

func (d *fakeDevice) Open(onData func([]float32), onError func(error)) (audio.Stream, domain.AudioFormat, error) {
	if d.openErr != nil {
		return nil, domain.AudioFormat{}, d.openErr
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.onData, d.onError = onData, onError
	d.stream = &fakeStream{}
	return d.stream, d.format, nil
}

func (d *fakeDevice) feed(samples []float32) {
	d.mu.Lock()
	fn := d.onData
	d.mu.Unlock()
	fn(samples)
}

type fakeStream struct {
	started, closed bool
}

func (s *fakeStream) Start() error { s.started = true; return nil }
func (s *fakeStream) Close() error { s.closed = true; return nil }

type countingSink struct {
	mu     sync.Mutex
	pushed int
	closed bool
}

func (s *countingSink) Push(samples []float32) {
	s.mu.Lock()
	s.pushed += len(samples)
	s.mu.Unlock()
}

func (s *countingSink) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
}

func newTestCapture(dev audio.Device, sink audio.SampleSink) *audio.Capture {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	var factory audio.SinkFactory
	if sink != nil {
		factory = func(domain.AudioFormat) audio.SampleSink { return sink }
	}
	return audio.NewCapture(dev, factory, logger)
}

func TestCapture_RecordAndEncode(t *testing.T) {
	dev := &fakeDevice{format: domain.WAVFormat(8000, 2)}
	sink := &countingSink{}
	c := newTestCapture(dev, sink)

	if err := c.Start(time.Second); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if !c.IsActive() || !dev.stream.started {
		t.Fatal("capture not active after Start")
	}

	chunk := make([]float32, 800)
	for i := range chunk {
		chunk[i] = 0.25
	}
	dev.feed(chunk)
	dev.feed(chunk)

	rec, err := c.StopAndGetWAV(0)
	if err != nil {
		t.Fatalf("StopAndGetWAV: %v", err)
	}
	if c.IsActive() {
		t.Error("capture still active after stop")
	}
	if !dev.stream.closed {
		t.Error("stream not closed")
	}
	if !sink.closed || sink.pushed != 1600 {
		t.Errorf("sink pushed=%d closed=%v", sink.pushed, sink.closed)
	}

	if rec.Format != domain.WAVFormat(8000, 2) {
		t.Errorf("format = %+v", rec.Format)
	}
	if rec.Levels.DurationSeconds != 0.1 {
		t.Errorf("duration = %v, want 0.1", rec.Levels.DurationSeconds)
	}
	if rec.Levels.Peak != 0.25 {
		t.Errorf("peak = %v", rec.Levels.Peak)
	}
	if len(rec.WAV) != 44+2*1600 {
		t.Errorf("wav bytes = %d", len(rec.WAV))
	}
}

func TestCapture_BoundedByMaxDuration(t *testing.T) {
	dev := &fakeDevice{format: domain.WAVFormat(1000, 1)}
	c := newTestCapture(dev, nil)

	if err := c.Start(100 * time.Millisecond); err != nil {
		t.Fatalf("Start: %v", err)
	}
	for i := 0; i < 10; i++ {
		dev.feed(make([]float32, 50))
	}

	rec, err := c.StopAndGetWAV(0)
	if err != nil {
		t.Fatalf("StopAndGetWAV: %v", err)
	}
	if rec.Levels.DurationSeconds != 0.1 {
		t.Errorf("duration = %v, want 0.1", rec.Levels.DurationSeconds)
	}
}

func TestCapture_ChannelMismatchFailsSession(t *testing.T) {
	dev := &fakeDevice{format: domain.WAVFormat(8000, 2)}
	c := newTestCapture(dev, nil)

	if err := c.Start(time.Second); err != nil {
		t.Fatalf("Start: %v", err)
	}
	dev.feed(make([]float32, 3))

	_, err := c.StopAndGetWAV(0)
	var ce *domain.CaptureError
	if !errors.As(err, &ce) || ce.Kind != domain.CaptureDeviceConfig {
		t.Fatalf("err = %v, want DeviceConfig", err)
	}
}

func TestCapture_StopWithoutStart(t *testing.T) {
	c := newTestCapture(&fakeDevice{format: domain.WAVFormat(8000, 1)}, nil)

	_, err := c.StopAndGetWAV(0)
	var ce *domain.CaptureError
	if !errors.As(err, &ce) || ce.Kind != domain.CaptureNotActive {
		t.Fatalf("err = %v, want NotActive", err)
	}
	if err := c.Stop(); err != nil {
		t.Errorf("Stop on idle capture: %v", err)
	}
}

func TestCapture_OpenErrorKinds(t *testing.T) {
	t.Run("typed error passes through", func(t *testing.T) {
		dev := &fakeDevice{openErr: domain.NewCaptureError(domain.CaptureNoInputDevice, nil)}
		err := newTestCapture(dev, nil).Start(time.Second)
		var ce *domain.CaptureError
		if !errors.As(err, &ce) || ce.Kind != domain.CaptureNoInputDevice {
			t.Fatalf("err = %v", err)
		}
	})

	t.Run("plain error becomes stream build", func(t *testing.T) {
		dev := &fakeDevice{openErr: errors.New("boom")}
		err := newTestCapture(dev, nil).Start(time.Second)
		var ce *domain.CaptureError
		if !errors.As(err, &ce) || ce.Kind != domain.CaptureStreamBuild {
			t.Fatalf("err = %v", err)
		}
	})
}

func TestCapture_RestartStopsPreviousSession(t *testing.T) {
	dev := &fakeDevice{format: domain.WAVFormat(8000, 1)}
	c := newTestCapture(dev, nil)

	if err := c.Start(time.Second); err != nil {
		t.Fatalf("Start: %v", err)
	}
	first := dev.stream

	if err := c.Start(time.Second); err != nil {
		t.Fatalf("second Start: %v", err)
	}
	if !first.closed {
		t.Error("first stream not closed on restart")
	}
	if err := c.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if !dev.stream.closed || c.IsActive() {
		t.Error("Stop did not end the session")
	}
}
