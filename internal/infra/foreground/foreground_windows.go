//go:build windows

package foreground

import (
	"golang.org/x/sys/windows"
)

// ForegroundExecutablePath returns the image path of the process owning the
// foreground window.
func (Provider) ForegroundExecutablePath() (string, bool) {
	hwnd := windows.GetForegroundWindow()
	if hwnd == 0 {
		return "", false
	}
	var pid uint32
	if _, err := windows.GetWindowThreadProcessId(hwnd, &pid); err != nil || pid == 0 {
		return "", false
	}

	h, err := windows.OpenProcess(windows.PROCESS_QUERY_LIMITED_INFORMATION, false, pid)
	if err != nil {
		return "", false
	}
	defer windows.CloseHandle(h)

	buf := make([]uint16, windows.MAX_LONG_PATH)
	size := uint32(len(buf))
	if err := windows.QueryFullProcessImageName(h, 0, &buf[0], &size); err != nil {
		return "", false
	}
	return windows.UTF16ToString(buf[:size]), true
}
