package desktop

import (
	"bytes"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"voxflow/internal/application"
	"voxflow/internal/domain"
)

var (
	_ application.EventSink = (*Notifier)(nil)
	_ application.EventSink = (*ClipboardSink)(nil)
	_ application.EventSink = LogSink{}
)

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

type recorder struct {
	mu    sync.Mutex
	calls []string
	err   error
}

func (r *recorder) notify(title, message, _ string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, title+"|"+message)
	return r.err
}

func (r *recorder) write(text string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, text)
	return r.err
}

func TestNotifier(t *testing.T) {
	rec := &recorder{}
	n := newNotifier(rec.notify, discard())

	n.Emit(domain.Event{Kind: domain.EventRecordingStarted})
	n.Emit(domain.Event{Kind: domain.EventTranscriptionStarted})
	n.Emit(domain.Event{Kind: domain.EventTranscriptReady, Text: strings.Repeat("ü", 150)})
	n.Emit(domain.Event{Kind: domain.EventError, Text: "No microphone found"})
	n.Emit(domain.Event{Kind: domain.EventSpeechStart})
	n.Close()

	want := []string{
		"VoxFlow: Recording|Speak now",
		"VoxFlow: Done|" + strings.Repeat("ü", 100) + "...",
		"VoxFlow: Error|No microphone found",
	}
	if len(rec.calls) != len(want) {
		t.Fatalf("calls = %q", rec.calls)
	}
	for i := range want {
		if rec.calls[i] != want[i] {
			t.Errorf("call %d = %q, want %q", i, rec.calls[i], want[i])
		}
	}

	// Emitting after Close is ignored.
	n.Emit(domain.Event{Kind: domain.EventError, Text: "late"})
}

func TestClipboardSink(t *testing.T) {
	rec := &recorder{}
	c := newClipboardSink(rec.write, discard())

	c.Emit(domain.Event{Kind: domain.EventTranscriptReady, RequestID: "r1", Text: "Hello there."})
	c.Emit(domain.Event{Kind: domain.EventTranscriptReady, RequestID: "r2", Text: ""})
	c.Emit(domain.Event{Kind: domain.EventError, Text: "boom"})
	c.Close()

	if len(rec.calls) != 1 || rec.calls[0] != "Hello there." {
		t.Errorf("clipboard writes = %q", rec.calls)
	}
}

func TestClipboardSink_WriteErrorIsLogged(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	rec := &recorder{err: errors.New("no clipboard utility")}
	c := newClipboardSink(rec.write, logger)

	c.Emit(domain.Event{Kind: domain.EventTranscriptReady, RequestID: "r1", Text: "x"})
	c.Close()

	if !strings.Contains(buf.String(), "no clipboard utility") {
		t.Errorf("log = %q", buf.String())
	}
}

func TestLogSink(t *testing.T) {
	var buf bytes.Buffer
	s := NewLogSink(slog.New(slog.NewTextHandler(&buf, nil)))

	s.Emit(domain.Event{Kind: domain.EventError, RequestID: "abc", Text: "Network error"})
	out := buf.String()
	for _, want := range []string{"level=WARN", "kind=error", "request_id=abc", `message="Network error"`} {
		if !strings.Contains(out, want) {
			t.Errorf("log %q missing %q", out, want)
		}
	}
}

func TestMultiSinkFanOut(t *testing.T) {
	rec := &recorder{}
	c := newClipboardSink(rec.write, discard())
	sink := application.MultiSink{NewLogSink(discard()), c, nil}

	sink.Emit(domain.Event{Kind: domain.EventTranscriptReady, Text: "fan out"})
	c.Close()

	if len(rec.calls) != 1 {
		t.Errorf("clipboard writes = %q", rec.calls)
	}
}
