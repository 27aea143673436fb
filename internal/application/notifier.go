package application

import "voxflow/internal/domain"

// EventSink receives engine events. Emit must not block.
type EventSink interface {
	Emit(ev domain.Event)
}

type NoopSink struct{}

func (NoopSink) Emit(domain.Event) {}

// MultiSink fans an event out to several sinks.
type MultiSink []EventSink

func (m MultiSink) Emit(ev domain.Event) {
	for _, s := range m {
		if s != nil {
			s.Emit(ev)
		}
	}
}
