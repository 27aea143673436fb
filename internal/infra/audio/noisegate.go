package audio

import "math"

const (
	gateMinDB      = -75.0
	gateMaxDB      = -30.0
	gateHysteresis = 0.85
	gateAttack     = 0.005
	gateRelease    = 0.120
)

// GateThreshold maps strength 1..100 onto a linear amplitude threshold
// between -75 and -30 dBFS.
func GateThreshold(strength int) float64 {
	strength = max(0, min(100, strength))
	db := gateMinDB + float64(strength)/100*(gateMaxDB-gateMinDB)
	return math.Pow(10, db/20)
}

// ApplyNoiseGate attenuates interleaved samples in place. Strength 0 is a
// no-op. The gate opens when a frame's peak reaches the threshold and
// closes below 0.85x of it; gain follows a one-pole smoother with separate
// attack and release constants.
func ApplyNoiseGate(samples []float32, channels, sampleRate, strength int) {
	if strength <= 0 || channels <= 0 || sampleRate <= 0 {
		return
	}

	openAt := GateThreshold(strength)
	closeAt := openAt * gateHysteresis
	fs := float64(sampleRate)
	attack := math.Exp(-1 / (gateAttack * fs))
	release := math.Exp(-1 / (gateRelease * fs))

	gain := 0.0
	open := false
	for i := 0; i+channels <= len(samples); i += channels {
		env := 0.0
		for c := 0; c < channels; c++ {
			env = math.Max(env, math.Abs(float64(samples[i+c])))
		}

		if open {
			if env < closeAt {
				open = false
			}
		} else if env >= openAt {
			open = true
		}

		target := 0.0
		if open {
			target = 1
		}
		coef := release
		if target > gain {
			coef = attack
		}
		gain = target + coef*(gain-target)

		for c := 0; c < channels; c++ {
			samples[i+c] *= float32(gain)
		}
	}
}
