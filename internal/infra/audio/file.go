package audio

import (
	"fmt"
	"os"
	"sync"
	"time"

	"voxflow/internal/domain"
)

const fileChunk = 10 * time.Millisecond

// FileDevice plays a WAV file as if it were a microphone, one 10 ms chunk
// per tick, and then goes silent. Used on machines without an input device.
type FileDevice struct {
	path string
	// Realtime paces chunks at wall-clock speed; otherwise they are pushed
	// as fast as the callback returns.
	Realtime bool
}

func NewFileDevice(path string) *FileDevice {
	return &FileDevice{path: path, Realtime: true}
}

func (f *FileDevice) Open(onData func([]float32), _ func(error)) (Stream, domain.AudioFormat, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		return nil, domain.AudioFormat{}, domain.NewCaptureError(domain.CaptureNoInputDevice, fmt.Errorf("reading %s: %w", f.path, err))
	}
	samples, format, err := DecodeWAV(data)
	if err != nil {
		return nil, domain.AudioFormat{}, domain.NewCaptureError(domain.CaptureDeviceConfig, err)
	}
	chunk := max(1, format.SampleRate*int(fileChunk/time.Millisecond)/1000) * format.Channels
	return &fileStream{
		samples:  samples,
		chunk:    chunk,
		realtime: f.Realtime,
		onData:   onData,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}, format, nil
}

type fileStream struct {
	samples  []float32
	chunk    int
	realtime bool
	onData   func([]float32)

	once    sync.Once
	started bool
	stop    chan struct{}
	done    chan struct{}
}

func (s *fileStream) Start() error {
	s.started = true
	go s.run()
	return nil
}

func (s *fileStream) run() {
	defer close(s.done)

	var tick <-chan time.Time
	if s.realtime {
		ticker := time.NewTicker(fileChunk)
		defer ticker.Stop()
		tick = ticker.C
	}

	for off := 0; off < len(s.samples); off += s.chunk {
		if tick != nil {
			select {
			case <-s.stop:
				return
			case <-tick:
			}
		} else {
			select {
			case <-s.stop:
				return
			default:
			}
		}
		s.onData(s.samples[off:min(off+s.chunk, len(s.samples))])
	}
}

// Close stops playback and waits for the last callback to return.
func (s *fileStream) Close() error {
	s.once.Do(func() { close(s.stop) })
	if s.started {
		<-s.done
	}
	return nil
}
