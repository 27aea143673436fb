package vad

import (
	"sync"
	"time"
)

// PollInterval bounds how long a closed worker takes to notice.
const PollInterval = 100 * time.Millisecond

// Worker runs a Detector on its own goroutine. Push never blocks: chunks
// queue in an unbounded mailbox that the goroutine drains.
type Worker struct {
	det     *Detector
	onEvent func(Event)

	mu     sync.Mutex
	queue  [][]float32
	closed bool

	signal chan struct{}
	done   chan struct{}
}

func NewWorker(det *Detector, onEvent func(Event)) *Worker {
	w := &Worker{
		det:     det,
		onEvent: onEvent,
		signal:  make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
	go w.run()
	return w
}

// Push queues a copy of samples.
func (w *Worker) Push(samples []float32) {
	chunk := make([]float32, len(samples))
	copy(chunk, samples)

	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	w.queue = append(w.queue, chunk)
	w.mu.Unlock()
	w.wake()
}

// Close stops accepting samples. The goroutine processes what is queued
// and exits.
func (w *Worker) Close() {
	w.mu.Lock()
	w.closed = true
	w.mu.Unlock()
	w.wake()
}

func (w *Worker) wake() {
	select {
	case w.signal <- struct{}{}:
	default:
	}
}

// Done is closed when the worker goroutine has exited.
func (w *Worker) Done() <-chan struct{} {
	return w.done
}

func (w *Worker) run() {
	defer close(w.done)

	ticker := time.NewTicker(PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.signal:
		case <-ticker.C:
		}

		w.mu.Lock()
		batch, closed := w.queue, w.closed
		w.queue = nil
		w.mu.Unlock()

		for _, chunk := range batch {
			for _, ev := range w.det.Process(chunk) {
				if w.onEvent != nil {
					w.onEvent(ev)
				}
			}
		}
		if closed {
			return
		}
	}
}
