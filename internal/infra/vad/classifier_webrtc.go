//go:build webrtcvad
// +build webrtcvad

package vad

import (
	"encoding/binary"
	"fmt"

	webrtcvad "github.com/maxhawkins/go-webrtcvad"
)

// Backend names the frame classifier compiled into this build.
const Backend = "webrtc"

var webrtcModes = map[Mode]int{
	ModeQuality:        0,
	ModeLowBitrate:     1,
	ModeAggressive:     2,
	ModeVeryAggressive: 3,
}

// webrtcClassifier runs the WebRTC GMM voice detector on each frame.
type webrtcClassifier struct {
	vad *webrtcvad.VAD
	buf []byte
}

func newClassifier(mode Mode) (classifier, error) {
	v, err := webrtcvad.New()
	if err != nil {
		return nil, fmt.Errorf("creating webrtc vad: %w", err)
	}
	if err := v.SetMode(webrtcModes[mode]); err != nil {
		return nil, fmt.Errorf("setting webrtc vad mode %s: %w", mode, err)
	}
	if !v.ValidRateAndFrameLength(SampleRate, FrameSamples) {
		return nil, fmt.Errorf("webrtc vad rejects %d Hz frames of %d samples", SampleRate, FrameSamples)
	}
	return &webrtcClassifier{vad: v, buf: make([]byte, 2*FrameSamples)}, nil
}

func (c *webrtcClassifier) isSpeech(frame []int16) bool {
	for i, s := range frame {
		binary.LittleEndian.PutUint16(c.buf[2*i:], uint16(s))
	}
	active, err := c.vad.Process(SampleRate, c.buf[:2*len(frame)])
	return err == nil && active
}
