package audio_test

import (
	"math"
	"slices"
	"testing"

	"voxflow/internal/infra/audio"
)

func TestGateThreshold_Range(t *testing.T) {
	low := 20 * math.Log10(audio.GateThreshold(0))
	high := 20 * math.Log10(audio.GateThreshold(100))

	if math.Abs(low+75) > 1e-9 {
		t.Errorf("strength 0 = %.2f dBFS, want -75", low)
	}
	if math.Abs(high+30) > 1e-9 {
		t.Errorf("strength 100 = %.2f dBFS, want -30", high)
	}
}

func TestApplyNoiseGate_ZeroStrengthIsIdentity(t *testing.T) {
	in := []float32{0.001, -0.002, 0.5, -0.5, 0.0001}
	out := slices.Clone(in)

	audio.ApplyNoiseGate(out, 1, 16000, 0)

	if !slices.Equal(in, out) {
		t.Errorf("gate with strength 0 changed samples: %v", out)
	}
}

func TestApplyNoiseGate_AttenuatesQuietPassesLoud(t *testing.T) {
	const rate = 16000

	quiet := make([]float32, rate/2)
	for i := range quiet {
		quiet[i] = 0.0005 * float32(math.Sin(float64(i)))
	}
	loud := make([]float32, rate/2)
	for i := range loud {
		loud[i] = 0.5 * float32(math.Sin(2*math.Pi*440*float64(i)/rate))
	}
	samples := append(slices.Clone(quiet), loud...)

	audio.ApplyNoiseGate(samples, 1, rate, 50)

	if len(samples) != rate {
		t.Fatalf("length changed: %d", len(samples))
	}

	var quietPeak, loudPeak float64
	for _, s := range samples[:rate/2] {
		quietPeak = math.Max(quietPeak, math.Abs(float64(s)))
	}
	// Skip the attack ramp.
	for _, s := range samples[rate/2+rate/10:] {
		loudPeak = math.Max(loudPeak, math.Abs(float64(s)))
	}

	if quietPeak > 1e-6 {
		t.Errorf("quiet section peak = %g, want gated", quietPeak)
	}
	if loudPeak < 0.45 {
		t.Errorf("loud section peak = %g, want passed through", loudPeak)
	}
}
