// Package recordings archives request audio as <dir>/<id>.wav.
package recordings

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"
)

var (
	ErrInvalidID = errors.New("invalid recording id")

	validID = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)
)

type Store struct {
	dir      string
	maxFiles int
	logger   *slog.Logger

	mu     sync.Mutex
	exists map[string]bool
}

// NewStore keeps at most maxFiles recordings; maxFiles <= 0 disables
// pruning.
func NewStore(dir string, maxFiles int, logger *slog.Logger) *Store {
	return &Store{
		dir:      dir,
		maxFiles: maxFiles,
		logger:   logger,
		exists:   make(map[string]bool),
	}
}

func ValidID(id string) bool {
	return validID.MatchString(id)
}

// SaveWAV writes data to a temp file and renames it into place, so a
// reader never sees a partial recording.
func (s *Store) SaveWAV(id string, data []byte) (string, error) {
	if !ValidID(id) {
		return "", fmt.Errorf("%w: %q", ErrInvalidID, id)
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return "", fmt.Errorf("creating recordings dir: %w", err)
	}

	path := s.path(id)
	tmp, err := os.CreateTemp(s.dir, id+".*.tmp")
	if err != nil {
		return "", fmt.Errorf("creating temp file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", fmt.Errorf("writing recording: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("closing recording: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("renaming recording: %w", err)
	}

	s.mu.Lock()
	s.exists[id] = true
	s.mu.Unlock()

	if s.maxFiles > 0 {
		if err := s.Prune(s.maxFiles); err != nil {
			s.logger.Warn("pruning recordings", "error", err)
		}
	}
	return path, nil
}

// WAVPathIfExists returns the absolute path of the recording for id.
func (s *Store) WAVPathIfExists(id string) (string, bool) {
	if !ValidID(id) {
		return "", false
	}
	path := s.path(id)

	s.mu.Lock()
	known, cached := s.exists[id]
	s.mu.Unlock()
	if cached {
		return path, known
	}

	_, err := os.Stat(path)
	found := err == nil
	s.mu.Lock()
	s.exists[id] = found
	s.mu.Unlock()
	return path, found
}

// Prune deletes the oldest recordings beyond keep.
func (s *Store) Prune(keep int) error {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("listing recordings: %w", err)
	}

	type file struct {
		id      string
		modTime int64
	}
	var files []file
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".wav") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		files = append(files, file{id: strings.TrimSuffix(name, ".wav"), modTime: info.ModTime().UnixNano()})
	}
	if len(files) <= keep {
		return nil
	}

	sort.Slice(files, func(i, j int) bool {
		if files[i].modTime != files[j].modTime {
			return files[i].modTime < files[j].modTime
		}
		return files[i].id < files[j].id
	})

	var errs []error
	for _, f := range files[:len(files)-keep] {
		if err := os.Remove(s.path(f.id)); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, err)
			continue
		}
		s.mu.Lock()
		s.exists[f.id] = false
		s.mu.Unlock()
	}
	return errors.Join(errs...)
}

func (s *Store) path(id string) string {
	abs, err := filepath.Abs(filepath.Join(s.dir, id+".wav"))
	if err != nil {
		return filepath.Join(s.dir, id+".wav")
	}
	return abs
}
