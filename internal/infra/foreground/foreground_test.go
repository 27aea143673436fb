//go:build !windows

package foreground_test

import (
	"testing"

	"voxflow/internal/application"
	"voxflow/internal/infra/foreground"
)

var _ application.ForegroundProvider = foreground.New()

func TestProvider_NoneOutsideWindows(t *testing.T) {
	path, ok := foreground.New().ForegroundExecutablePath()
	if ok || path != "" {
		t.Errorf("got (%q, %v), want none", path, ok)
	}
}
