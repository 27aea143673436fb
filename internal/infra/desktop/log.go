package desktop

import (
	"context"
	"log/slog"

	"voxflow/internal/domain"
)

// LogSink writes every event to the logger.
type LogSink struct {
	logger *slog.Logger
}

func NewLogSink(logger *slog.Logger) LogSink {
	return LogSink{logger: logger}
}

func (s LogSink) Emit(ev domain.Event) {
	level := slog.LevelInfo
	if ev.Kind == domain.EventError {
		level = slog.LevelWarn
	}
	attrs := []any{"kind", ev.Kind}
	if ev.RequestID != "" {
		attrs = append(attrs, "request_id", ev.RequestID)
	}
	if ev.Kind == domain.EventError {
		attrs = append(attrs, "message", ev.Text)
	} else if ev.Text != "" {
		attrs = append(attrs, "chars", len(ev.Text))
	}
	s.logger.Log(context.Background(), level, "event", attrs...)
}
