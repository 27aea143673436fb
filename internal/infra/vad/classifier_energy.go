//go:build !webrtcvad
// +build !webrtcvad

package vad

// Backend names the frame classifier compiled into this build.
const Backend = "energy"

func newClassifier(mode Mode) (classifier, error) {
	return newEnergyClassifier(mode), nil
}
