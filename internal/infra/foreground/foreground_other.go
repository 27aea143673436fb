//go:build !windows

package foreground

// Profiles match on Windows executable paths only.
func (Provider) ForegroundExecutablePath() (string, bool) {
	return "", false
}
