package desktop

import (
	"log/slog"
	"sync"

	"voxflow/internal/domain"
)

const queueSize = 16

// queue runs handle on its own goroutine so Emit never blocks the engine.
// Events are dropped while the queue is full.
type queue struct {
	name   string
	events chan domain.Event
	done   chan struct{}
	logger *slog.Logger

	mu     sync.Mutex
	closed bool
}

func newQueue(name string, logger *slog.Logger, handle func(domain.Event)) *queue {
	q := &queue{
		name:   name,
		events: make(chan domain.Event, queueSize),
		done:   make(chan struct{}),
		logger: logger,
	}
	go func() {
		defer close(q.done)
		for ev := range q.events {
			handle(ev)
		}
	}()
	return q
}

func (q *queue) emit(ev domain.Event) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	select {
	case q.events <- ev:
	default:
		q.logger.Warn("event dropped", "sink", q.name, "kind", ev.Kind)
	}
}

// close drains pending events and waits for the goroutine to exit.
func (q *queue) close() {
	q.mu.Lock()
	if !q.closed {
		q.closed = true
		close(q.events)
	}
	q.mu.Unlock()
	<-q.done
}
