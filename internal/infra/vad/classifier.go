package vad

import (
	"fmt"
	"math"
)

// Mode is the detector aggressiveness. Higher modes reject more
// borderline frames as non-speech.
type Mode string

const (
	ModeQuality        Mode = "quality"
	ModeLowBitrate     Mode = "low-bitrate"
	ModeAggressive     Mode = "aggressive"
	ModeVeryAggressive Mode = "very-aggressive"
)

func ParseMode(s string) (Mode, error) {
	switch m := Mode(s); m {
	case ModeQuality, ModeLowBitrate, ModeAggressive, ModeVeryAggressive:
		return m, nil
	}
	return "", fmt.Errorf("unknown vad mode %q", s)
}

// classifier labels one 10 ms frame of 16 kHz mono audio.
type classifier interface {
	isSpeech(frame []int16) bool
}

type modeParams struct {
	marginDB float64 // above the noise floor
	minDB    float64 // absolute floor for speech
	maxZCR   float64
}

var modes = map[Mode]modeParams{
	ModeQuality:        {marginDB: 6, minDB: 30, maxZCR: 0.50},
	ModeLowBitrate:     {marginDB: 9, minDB: 33, maxZCR: 0.45},
	ModeAggressive:     {marginDB: 12, minDB: 36, maxZCR: 0.40},
	ModeVeryAggressive: {marginDB: 15, minDB: 40, maxZCR: 0.35},
}

const initialFloorDB = 20

// energyClassifier labels frames as speech using frame energy against an
// adaptive noise floor plus a zero-crossing ceiling that rejects hiss.
type energyClassifier struct {
	params  modeParams
	floorDB float64
}

func newEnergyClassifier(mode Mode) *energyClassifier {
	return &energyClassifier{params: modes[mode], floorDB: initialFloorDB}
}

func (c *energyClassifier) isSpeech(frame []int16) bool {
	e := frameEnergyDB(frame)
	zcr := zeroCrossingRate(frame)

	threshold := math.Max(c.floorDB+c.params.marginDB, c.params.minDB)
	speech := e >= threshold && zcr <= c.params.maxZCR

	switch {
	case speech:
		c.floorDB += (e - c.floorDB) * 0.001
	case e > c.floorDB:
		c.floorDB += (e - c.floorDB) * 0.05
	default:
		c.floorDB += (e - c.floorDB) * 0.2
	}
	return speech
}

// frameEnergyDB is 20·log10(rms) in int16 units; digital silence is 0.
func frameEnergyDB(frame []int16) float64 {
	if len(frame) == 0 {
		return 0
	}
	var sum float64
	for _, s := range frame {
		v := float64(s)
		sum += v * v
	}
	rms := math.Sqrt(sum / float64(len(frame)))
	return 20 * math.Log10(math.Max(rms, 1))
}

func zeroCrossingRate(frame []int16) float64 {
	if len(frame) < 2 {
		return 0
	}
	n := 0
	for i := 1; i < len(frame); i++ {
		if (frame[i-1] >= 0) != (frame[i] >= 0) {
			n++
		}
	}
	return float64(n) / float64(len(frame)-1)
}
