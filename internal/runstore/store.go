// Package runstore keeps a JSON summary of every capture run on disk.
package runstore

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned when no run with the given id was recorded.
var ErrNotFound = errors.New("run not found")

// ErrInvalidID is returned for ids that are not UUIDs.
var ErrInvalidID = errors.New("invalid run id")

// Status values of a run.
const (
	StatusRunning  = "running"
	StatusComplete = "complete"
	StatusError    = "error"
)

// RunInfo describes one click/screenshot run.
type RunInfo struct {
	ID         string     `json:"id"`
	TabID      string     `json:"tab_id"`
	Clicks     int        `json:"clicks"`
	Captured   int        `json:"captured"`
	Status     string     `json:"status"`
	Error      string     `json:"error,omitempty"`
	SaveMode   string     `json:"save_mode"`
	Files      []string   `json:"files"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// Store manages run summaries, one <id>.json file per run.
type Store struct {
	dir string
	mu  sync.RWMutex
}

// NewStore creates a Store and ensures the directory exists.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("run store: mkdir %s: %w", dir, err)
	}
	return &Store{dir: dir}, nil
}

// NewID returns a fresh run id.
func NewID() string { return uuid.NewString() }

func validateID(id string) error {
	if _, err := uuid.Parse(id); err != nil || len(id) != 36 {
		return fmt.Errorf("%w: %q", ErrInvalidID, id)
	}
	return nil
}

// Save writes (or overwrites) the summary for info.ID.
func (s *Store) Save(info RunInfo) error {
	if err := validateID(info.ID); err != nil {
		return err
	}
	if info.Files == nil {
		info.Files = []string{}
	}

	data, err := json.MarshalIndent(info, "", "  ")
	if err != nil {
		return fmt.Errorf("run store: marshal: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	path := filepath.Join(s.dir, info.ID+".json")
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("run store: write: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		if rmErr := os.Remove(tmp); rmErr != nil {
			slog.Debug("run store temp cleanup failed", "path", tmp, "error", rmErr)
		}
		return fmt.Errorf("run store: rename: %w", err)
	}
	return nil
}

// Get reads a run summary by id.
func (s *Store) Get(id string) (RunInfo, error) {
	if err := validateID(id); err != nil {
		return RunInfo{}, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	data, err := os.ReadFile(filepath.Join(s.dir, id+".json"))
	if err != nil {
		if os.IsNotExist(err) {
			return RunInfo{}, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return RunInfo{}, fmt.Errorf("run store: read: %w", err)
	}

	var info RunInfo
	if err := json.Unmarshal(data, &info); err != nil {
		return RunInfo{}, fmt.Errorf("run store: unmarshal: %w", err)
	}
	return info, nil
}

// List returns all runs sorted by start time (newest first). Unreadable
// files are skipped.
func (s *Store) List() ([]RunInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	matches, err := filepath.Glob(filepath.Join(s.dir, "*.json"))
	if err != nil {
		return nil, fmt.Errorf("run store: glob: %w", err)
	}

	runs := make([]RunInfo, 0, len(matches))
	for _, path := range matches {
		data, err := os.ReadFile(path)
		if err != nil {
			slog.Debug("run store skipped unreadable file", "path", path, "error", err)
			continue
		}
		var info RunInfo
		if err := json.Unmarshal(data, &info); err != nil {
			slog.Debug("run store skipped corrupt file", "path", path, "error", err)
			continue
		}
		runs = append(runs, info)
	}

	sort.Slice(runs, func(i, j int) bool {
		return runs[i].StartedAt.After(runs[j].StartedAt)
	})
	return runs, nil
}
