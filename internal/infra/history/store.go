// Package history persists successful dictations to a JSON file.
package history

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sync"

	"voxflow/config"
	"voxflow/internal/domain"
)

// Store keeps entries newest first, in memory and on disk.
type Store struct {
	path  string
	limit int

	mu      sync.Mutex
	entries []domain.HistoryEntry
}

// Open loads path if it exists. limit is clamped to
// config.DefaultHistoryLimit.
func Open(path string, limit int) (*Store, error) {
	if limit <= 0 || limit > config.DefaultHistoryLimit {
		limit = config.DefaultHistoryLimit
	}
	s := &Store{path: path, limit: limit}

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		return s, nil
	case err != nil:
		return nil, fmt.Errorf("reading history: %w", err)
	}
	if len(data) > 0 {
		if err := json.Unmarshal(data, &s.entries); err != nil {
			return nil, fmt.Errorf("parsing history %s: %w", path, err)
		}
	}
	if len(s.entries) > limit {
		s.entries = s.entries[:limit]
	}
	return s, nil
}

// Append adds entry at the front and rewrites the file.
func (s *Store) Append(entry domain.HistoryEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries = slices.Insert(s.entries, 0, entry)
	if len(s.entries) > s.limit {
		s.entries = s.entries[:s.limit]
	}
	return s.writeLocked()
}

// List returns up to limit entries, newest first; limit <= 0 means all.
func (s *Store) List(limit int) []domain.HistoryEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := len(s.entries)
	if limit > 0 && limit < n {
		n = limit
	}
	return slices.Clone(s.entries[:n])
}

func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = nil
	return s.writeLocked()
}

func (s *Store) writeLocked() error {
	entries := s.entries
	if entries == nil {
		entries = []domain.HistoryEntry{}
	}
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding history: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating history dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, "history.*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("writing history: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("closing history: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("replacing history: %w", err)
	}
	return nil
}
