package vad

import "math"

const tapsPerPhase = 32

// Resampler converts a mono stream between integer sample rates with a
// polyphase windowed-sinc filter. State carries across Process calls so
// chunk boundaries do not click.
type Resampler struct {
	up, down int
	// coeffs[p] holds the taps of phase p, newest input first.
	coeffs [][]float64
	hist   []float64
	// t is the next output position in upsampled units, relative to the
	// first sample of the next input chunk.
	t int
}

func NewResampler(inRate, outRate int) *Resampler {
	g := gcd(inRate, outRate)
	r := &Resampler{up: outRate / g, down: inRate / g}
	if r.up == 1 && r.down == 1 {
		return r
	}

	n := r.up * tapsPerPhase
	center := float64(n-1) / 2
	cutoff := 0.475 / float64(max(r.up, r.down))

	proto := make([]float64, n)
	var sum float64
	for m := range proto {
		x := float64(m) - center
		v := 2 * cutoff
		if x != 0 {
			v = math.Sin(2*math.Pi*cutoff*x) / (math.Pi * x)
		}
		// Blackman window.
		w := 0.42 - 0.5*math.Cos(2*math.Pi*float64(m)/float64(n-1)) + 0.08*math.Cos(4*math.Pi*float64(m)/float64(n-1))
		proto[m] = v * w
		sum += proto[m]
	}
	gain := float64(r.up) / sum

	r.coeffs = make([][]float64, r.up)
	for p := range r.coeffs {
		taps := make([]float64, tapsPerPhase)
		for k := range taps {
			taps[k] = proto[p+k*r.up] * gain
		}
		r.coeffs[p] = taps
	}
	r.hist = make([]float64, tapsPerPhase-1)
	return r
}

// Passthrough reports whether input and output rates are equal.
func (r *Resampler) Passthrough() bool {
	return r.coeffs == nil
}

// Process resamples in and appends the result to out.
func (r *Resampler) Process(in []float32, out []float32) []float32 {
	if r.Passthrough() {
		return append(out, in...)
	}

	k := tapsPerPhase - 1
	buf := make([]float64, k+len(in))
	copy(buf, r.hist)
	for i, s := range in {
		buf[k+i] = float64(s)
	}

	limit := len(in) * r.up
	for ; r.t < limit; r.t += r.down {
		i := r.t / r.up
		taps := r.coeffs[r.t%r.up]
		var acc float64
		for j, c := range taps {
			acc += c * buf[k+i-j]
		}
		out = append(out, float32(acc))
	}
	r.t -= limit
	copy(r.hist, buf[len(buf)-k:])
	return out
}

func (r *Resampler) Reset() {
	r.t = 0
	clear(r.hist)
}

func gcd(a, b int) int {
	for b != 0 {
		a, b = b, a%b
	}
	return a
}
