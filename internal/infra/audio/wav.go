package audio

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"math"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"voxflow/internal/domain"
)

// EncodeWAV renders interleaved float samples as 16-bit PCM RIFF WAVE.
func EncodeWAV(samples []float32, sampleRate, channels int) ([]byte, error) {
	if sampleRate <= 0 || channels <= 0 {
		return nil, fmt.Errorf("invalid format: %d Hz, %d channels", sampleRate, channels)
	}

	out := &writeSeeker{buf: make([]byte, 0, 44+2*len(samples))}
	enc := wav.NewEncoder(out, sampleRate, 16, channels, 1)

	data := make([]int, len(samples))
	for i, s := range samples {
		data[i] = int(FloatToInt16(s))
	}
	buf := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: channels, SampleRate: sampleRate},
		Data:           data,
		SourceBitDepth: 16,
	}

	if err := enc.Write(buf); err != nil {
		return nil, fmt.Errorf("writing samples: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("finalising wav: %w", err)
	}
	return out.buf, nil
}

// DecodeWAV reads a 16-bit PCM WAV back into float samples.
func DecodeWAV(data []byte) ([]float32, domain.AudioFormat, error) {
	dec := wav.NewDecoder(bytes.NewReader(data))
	if !dec.IsValidFile() {
		return nil, domain.AudioFormat{}, errors.New("not a valid wav file")
	}
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, domain.AudioFormat{}, fmt.Errorf("reading pcm: %w", err)
	}
	if dec.BitDepth != 16 {
		return nil, domain.AudioFormat{}, fmt.Errorf("unsupported bit depth %d", dec.BitDepth)
	}

	samples := make([]float32, len(buf.Data))
	for i, v := range buf.Data {
		samples[i] = float32(v) / 32768
	}
	return samples, domain.WAVFormat(int(dec.SampleRate), int(dec.NumChans)), nil
}

// FloatToInt16 clamps s to [-1, 1] and scales it to the int16 range.
func FloatToInt16(s float32) int16 {
	switch {
	case s >= 1:
		return math.MaxInt16
	case s <= -1:
		return -math.MaxInt16
	}
	return int16(math.Round(float64(s) * math.MaxInt16))
}

// ComputeLevels reports duration, RMS and peak of interleaved samples.
func ComputeLevels(samples []float32, sampleRate, channels int) domain.Levels {
	var lv domain.Levels
	if sampleRate > 0 && channels > 0 {
		lv.DurationSeconds = float64(len(samples)/channels) / float64(sampleRate)
	}
	if len(samples) == 0 {
		return lv
	}
	var sum float64
	for _, s := range samples {
		v := float64(s)
		sum += v * v
		lv.Peak = math.Max(lv.Peak, math.Abs(v))
	}
	lv.RMS = math.Sqrt(sum / float64(len(samples)))
	return lv
}

// writeSeeker is an in-memory io.WriteSeeker for the wav encoder, which
// seeks back to patch chunk sizes on Close.
type writeSeeker struct {
	buf []byte
	pos int
}

func (w *writeSeeker) Write(p []byte) (int, error) {
	end := w.pos + len(p)
	if end > len(w.buf) {
		w.buf = append(w.buf, make([]byte, end-len(w.buf))...)
	}
	copy(w.buf[w.pos:], p)
	w.pos = end
	return len(p), nil
}

func (w *writeSeeker) Seek(offset int64, whence int) (int64, error) {
	var abs int64
	switch whence {
	case io.SeekStart:
		abs = offset
	case io.SeekCurrent:
		abs = int64(w.pos) + offset
	case io.SeekEnd:
		abs = int64(len(w.buf)) + offset
	default:
		return 0, fmt.Errorf("invalid whence %d", whence)
	}
	if abs < 0 {
		return 0, errors.New("negative position")
	}
	w.pos = int(abs)
	return abs, nil
}
