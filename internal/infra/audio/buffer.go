package audio

import (
	"math"
	"time"
)

// BufferCapacity is ceil(rate*channels*maxDuration), rounded down to whole
// frames so the buffer never holds a partial frame.
func BufferCapacity(sampleRate, channels int, maxDuration time.Duration) int {
	if sampleRate <= 0 || channels <= 0 || maxDuration <= 0 {
		return 0
	}
	n := int(math.Ceil(float64(sampleRate) * float64(channels) * maxDuration.Seconds()))
	return n - n%channels
}

// SampleBuffer is a bounded sequence of interleaved samples. When full,
// appends discard the oldest samples. Storage grows on demand up to the
// capacity and then wraps.
type SampleBuffer struct {
	data     []float32
	start    int
	capacity int
}

func NewSampleBuffer(capacity int) *SampleBuffer {
	return &SampleBuffer{capacity: capacity}
}

func (b *SampleBuffer) Len() int { return len(b.data) }

func (b *SampleBuffer) Cap() int { return b.capacity }

// Append adds samples and returns how many old samples were dropped.
func (b *SampleBuffer) Append(in []float32) int {
	if b.capacity <= 0 {
		return len(in)
	}

	if len(in) >= b.capacity {
		dropped := len(b.data) + len(in) - b.capacity
		b.data = append(b.data[:0], in[len(in)-b.capacity:]...)
		b.start = 0
		return dropped
	}

	// Growth phase: never wrapped yet, so start is 0.
	if room := b.capacity - len(b.data); room > 0 {
		n := min(room, len(in))
		b.data = append(b.data, in[:n]...)
		in = in[n:]
		if len(in) == 0 {
			return 0
		}
	}

	// Full: the write position is the oldest sample.
	dropped := len(in)
	for len(in) > 0 {
		n := copy(b.data[b.start:], in)
		in = in[n:]
		b.start = (b.start + n) % b.capacity
	}
	return dropped
}

// Samples returns the buffered samples oldest first.
func (b *SampleBuffer) Samples() []float32 {
	out := make([]float32, 0, len(b.data))
	out = append(out, b.data[b.start:]...)
	out = append(out, b.data[:b.start]...)
	return out
}

func (b *SampleBuffer) Reset() {
	b.data = b.data[:0]
	b.start = 0
}
