// Package requestlog keeps recent per-request diagnostics in memory.
package requestlog

import (
	"slices"
	"sync"
	"time"

	"voxflow/config"
	"voxflow/internal/domain"
)

// Store holds completed logs oldest first plus the in-progress one.
type Store struct {
	mu        sync.Mutex
	cfg       config.RequestLogConfig
	completed []*domain.RequestLog
	current   *domain.RequestLog
	now       func() time.Time
}

func NewStore(cfg config.RequestLogConfig) *Store {
	return &Store{cfg: cfg, now: time.Now}
}

// StartRequest opens a new current entry. A previous entry still in
// progress is closed as cancelled.
func (s *Store) StartRequest(id string, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current != nil {
		stale := s.current
		if stale.Status == domain.StatusInProgress {
			stale.AddEntry("warn", "superseded by a new request", nil)
			stale.Finish(domain.StatusCancelled, at)
		}
		s.completed = append(s.completed, stale)
	}
	s.current = &domain.RequestLog{
		ID:        id,
		StartedAt: at,
		Status:    domain.StatusInProgress,
		Entries:   []domain.LogEntry{},
	}
	s.pruneLocked()
}

// Update applies fn to the current entry when its id matches. Once the
// entry leaves in_progress it moves to the completed deque.
func (s *Store) Update(id string, fn func(l *domain.RequestLog)) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current == nil || s.current.ID != id {
		return
	}
	fn(s.current)
	redactLog(s.current)

	if s.current.Status != domain.StatusInProgress {
		s.completed = append(s.completed, s.current)
		s.current = nil
		s.pruneLocked()
	}
}

func (s *Store) SetRetention(cfg config.RequestLogConfig) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg = cfg
	s.pruneLocked()
}

// Logs returns up to limit entries newest first, the in-progress entry
// included. limit <= 0 returns everything.
func (s *Store) Logs(limit int) []domain.RequestLog {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pruneLocked()

	out := make([]domain.RequestLog, 0, len(s.completed)+1)
	if s.current != nil {
		out = append(out, snapshot(s.current))
	}
	for i := len(s.completed) - 1; i >= 0; i-- {
		out = append(out, snapshot(s.completed[i]))
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// Get returns the entry with id.
func (s *Store) Get(id string) (domain.RequestLog, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current != nil && s.current.ID == id {
		return snapshot(s.current), true
	}
	for _, l := range s.completed {
		if l.ID == id {
			return snapshot(l), true
		}
	}
	return domain.RequestLog{}, false
}

func (s *Store) pruneLocked() {
	switch s.cfg.Retention {
	case "time":
		if s.cfg.MaxAgeMinutes > 0 {
			cutoff := s.now().Add(-time.Duration(s.cfg.MaxAgeMinutes) * time.Minute)
			keep := 0
			for keep < len(s.completed) && s.completed[keep].StartedAt.Before(cutoff) {
				keep++
			}
			s.completed = s.completed[keep:]
		}
	default:
		if s.cfg.MaxEntries > 0 && len(s.completed) > s.cfg.MaxEntries {
			s.completed = s.completed[len(s.completed)-s.cfg.MaxEntries:]
		}
	}
	if over := len(s.completed) - config.RequestLogHardCap; over > 0 {
		s.completed = s.completed[over:]
	}
	// Let the backing array shrink after heavy pruning.
	if cap(s.completed) > 2*config.RequestLogHardCap {
		s.completed = slices.Clip(slices.Clone(s.completed))
	}
}

func snapshot(l *domain.RequestLog) domain.RequestLog {
	out := *l
	out.Entries = slices.Clone(l.Entries)
	return out
}
