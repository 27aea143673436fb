package desktop

import (
	"log/slog"

	"github.com/atotto/clipboard"

	"voxflow/internal/domain"
)

// ClipboardSink copies every non-empty final transcript to the clipboard.
type ClipboardSink struct {
	write  func(string) error
	logger *slog.Logger
	q      *queue
}

func NewClipboardSink(logger *slog.Logger) *ClipboardSink {
	return newClipboardSink(clipboard.WriteAll, logger)
}

func newClipboardSink(write func(string) error, logger *slog.Logger) *ClipboardSink {
	c := &ClipboardSink{write: write, logger: logger}
	c.q = newQueue("clipboard", logger, c.handle)
	return c
}

func (c *ClipboardSink) Emit(ev domain.Event) {
	if ev.Kind == domain.EventTranscriptReady && ev.Text != "" {
		c.q.emit(ev)
	}
}

func (c *ClipboardSink) Close() { c.q.close() }

func (c *ClipboardSink) handle(ev domain.Event) {
	if err := c.write(ev.Text); err != nil {
		c.logger.Warn("copying transcript to clipboard", "request_id", ev.RequestID, "error", err)
		return
	}
	c.logger.Debug("transcript copied to clipboard", "request_id", ev.RequestID, "chars", len(ev.Text))
}
