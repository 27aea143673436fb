// Package vad turns a captured sample stream into speech start and end
// events. Input at any rate and channel count is mixed to mono, resampled
// to 16 kHz and classified in 10 ms frames.
package vad

import (
	"fmt"

	"voxflow/config"
)

const (
	SampleRate   = 16000
	FrameSamples = SampleRate / 100
)

type EventKind int

const (
	SpeechStart EventKind = iota + 1
	SpeechEnd
)

func (k EventKind) String() string {
	switch k {
	case SpeechStart:
		return "speech_start"
	case SpeechEnd:
		return "speech_end"
	}
	return "unknown"
}

type Event struct {
	Kind EventKind
	// Frame is the index of the 10 ms frame that triggered the event.
	Frame int
	// PreRoll holds the most recent 16 kHz mono audio up to and including
	// the triggering frame. Set on SpeechStart only.
	PreRoll []int16
}

// Detector is the per-session VAD state. It is not safe for concurrent use.
type Detector struct {
	channels     int
	startFrames  int
	hangover     int
	preRollLimit int

	classifier classifier
	resampler  *Resampler

	// carry holds a trailing partial interleaved frame; pending holds
	// resampled audio short of a full 10 ms frame.
	carry   []float32
	mono    []float32
	pending []float32
	frame   []int16

	frames     int
	speechRun  int
	silenceRun int
	inSpeech   bool
	hangLeft   int
	preRoll    []int16
}

func New(cfg config.VADConfig, inputRate, channels int) (*Detector, error) {
	if inputRate <= 0 || channels <= 0 {
		return nil, fmt.Errorf("invalid input format: %d Hz, %d channels", inputRate, channels)
	}
	mode, err := ParseMode(cfg.Mode)
	if err != nil {
		return nil, err
	}
	cls, err := newClassifier(mode)
	if err != nil {
		return nil, err
	}
	return &Detector{
		channels:     channels,
		startFrames:  max(1, cfg.StartFrames),
		hangover:     max(1, cfg.HangoverMS/10),
		preRollLimit: max(0, cfg.PreRollMS) * SampleRate / 1000,
		classifier:   cls,
		resampler:    NewResampler(inputRate, SampleRate),
		frame:        make([]int16, FrameSamples),
	}, nil
}

// Process consumes interleaved samples and returns any events they
// complete.
func (d *Detector) Process(samples []float32) []Event {
	d.mono = d.mixdown(samples, d.mono[:0])
	d.pending = d.resampler.Process(d.mono, d.pending)

	var events []Event
	off := 0
	for ; off+FrameSamples <= len(d.pending); off += FrameSamples {
		for i, s := range d.pending[off : off+FrameSamples] {
			d.frame[i] = toInt16(s)
		}
		if ev, ok := d.step(d.frame); ok {
			events = append(events, ev)
		}
	}
	d.pending = append(d.pending[:0], d.pending[off:]...)
	return events
}

// InSpeech reports whether a SpeechStart is outstanding.
func (d *Detector) InSpeech() bool {
	return d.inSpeech
}

func (d *Detector) mixdown(in []float32, out []float32) []float32 {
	if len(d.carry) > 0 {
		in = append(d.carry, in...)
		d.carry = nil
	}
	whole := len(in) - len(in)%d.channels
	if whole < len(in) {
		d.carry = append([]float32(nil), in[whole:]...)
	}
	if d.channels == 1 {
		return append(out, in[:whole]...)
	}
	inv := 1 / float32(d.channels)
	for i := 0; i < whole; i += d.channels {
		var sum float32
		for _, s := range in[i : i+d.channels] {
			sum += s
		}
		out = append(out, sum*inv)
	}
	return out
}

func (d *Detector) step(frame []int16) (Event, bool) {
	idx := d.frames
	d.frames++
	d.pushPreRoll(frame)

	speech := d.classifier.isSpeech(frame)
	if speech {
		d.speechRun++
		d.silenceRun = 0
	} else {
		d.silenceRun++
		d.speechRun = 0
	}

	if !d.inSpeech {
		if d.speechRun >= d.startFrames {
			d.inSpeech = true
			d.hangLeft = d.hangover
			return Event{Kind: SpeechStart, Frame: idx, PreRoll: append([]int16(nil), d.preRoll...)}, true
		}
		return Event{}, false
	}

	if speech {
		d.hangLeft = d.hangover
		return Event{}, false
	}
	d.hangLeft--
	if d.hangLeft > 0 {
		return Event{}, false
	}
	d.inSpeech = false
	d.hangLeft = 0
	return Event{Kind: SpeechEnd, Frame: idx}, true
}

func (d *Detector) pushPreRoll(frame []int16) {
	if d.preRollLimit == 0 {
		return
	}
	d.preRoll = append(d.preRoll, frame...)
	if over := len(d.preRoll) - d.preRollLimit; over > 0 {
		d.preRoll = append(d.preRoll[:0], d.preRoll[over:]...)
	}
}

func toInt16(s float32) int16 {
	v := s * 32767
	switch {
	case v >= 32767:
		return 32767
	case v <= -32768:
		return -32768
	}
	return int16(v)
}
