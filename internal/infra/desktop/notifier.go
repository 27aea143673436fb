// Package desktop delivers engine events to the user's desktop session.
package desktop

import (
	"log/slog"

	"github.com/gen2brain/beeep"

	"voxflow/internal/domain"
)

const (
	appName        = "VoxFlow"
	maxNotifyRunes = 100
)

// Notifier shows a system notification for recording, transcript and
// error events.
type Notifier struct {
	notify func(title, message, icon string) error
	logger *slog.Logger
	q      *queue
}

func NewNotifier(logger *slog.Logger) *Notifier {
	return newNotifier(beeep.Notify, logger)
}

func newNotifier(notify func(title, message, icon string) error, logger *slog.Logger) *Notifier {
	n := &Notifier{notify: notify, logger: logger}
	n.q = newQueue("notifier", logger, n.handle)
	return n
}

func (n *Notifier) Emit(ev domain.Event) {
	switch ev.Kind {
	case domain.EventRecordingStarted, domain.EventTranscriptReady, domain.EventError:
		n.q.emit(ev)
	}
}

func (n *Notifier) Close() { n.q.close() }

func (n *Notifier) handle(ev domain.Event) {
	var title, message string
	switch ev.Kind {
	case domain.EventRecordingStarted:
		title, message = "Recording", "Speak now"
	case domain.EventTranscriptReady:
		if ev.Text == "" {
			title, message = "Nothing recognised", "The recording contained no speech"
		} else {
			title, message = "Done", truncate(ev.Text, maxNotifyRunes)
		}
	case domain.EventError:
		title, message = "Error", ev.Text
	}
	if err := n.notify(appName+": "+title, message, ""); err != nil {
		n.logger.Debug("desktop notification failed", "error", err)
	}
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
