package registry

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Entry records one completed upload.
type Entry struct {
	ID          string    `json:"id"`
	RemoteID    string    `json:"remote_id"`
	DisplayName string    `json:"display_name,omitempty"`
	Size        int64     `json:"size,omitempty"`
	UploadedAt  time.Time `json:"uploaded_at"`
	AccessCount int64     `json:"access_count,omitempty"`
}

// Prober checks whether a remote object still exists at the sink.
type Prober interface {
	Exists(ctx context.Context, remoteID string) (bool, error)
}

// Store is a thread-safe registry of completed uploads, persisted as a
// JSON file so restarts keep their dedup history.
type Store struct {
	mu      sync.RWMutex
	entries map[string]Entry // keyed by task ID
	path    string
	maxAge  time.Duration // entries older than this are re-verified on sweep
	logger  *slog.Logger
}

// NewStore creates a registry backed by the given file path. A maxAge of
// zero re-verifies every entry on each sweep.
func NewStore(path string, maxAge time.Duration, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		entries: make(map[string]Entry),
		path:    path,
		maxAge:  maxAge,
		logger:  logger,
	}
}

// Load reads the persisted registry. A missing file is not an error.
func (s *Store) Load() error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	var entries map[string]Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = entries
	if s.entries == nil {
		s.entries = make(map[string]Entry)
	}
	return nil
}

// Put records a completed upload and persists the registry.
func (s *Store) Put(entry Entry) {
	if entry.UploadedAt.IsZero() {
		entry.UploadedAt = time.Now()
	}
	s.mu.Lock()
	s.entries[entry.ID] = entry
	s.mu.Unlock()
	s.save()
}

// Lookup reports the stored remote identifier for a task ID. Satisfies
// the scheduler's dedup probe.
func (s *Store) Lookup(ctx context.Context, id string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.entries[id]
	if !ok {
		return "", false
	}
	return entry.RemoteID, true
}

// Get retrieves the full entry and bumps its access count.
func (s *Store) Get(id string) (Entry, bool) {
	s.mu.Lock()
	entry, ok := s.entries[id]
	if ok {
		entry.AccessCount++
		s.entries[id] = entry
	}
	s.mu.Unlock()
	if ok {
		s.save()
	}
	return entry, ok
}

// Delete removes one entry. A missing ID is a no-op.
func (s *Store) Delete(id string) {
	s.mu.Lock()
	_, ok := s.entries[id]
	delete(s.entries, id)
	s.mu.Unlock()
	if ok {
		s.save()
	}
}

// Len reports the number of recorded uploads.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Entries returns a snapshot of all entries.
func (s *Store) Entries() []Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Entry, 0, len(s.entries))
	for _, entry := range s.entries {
		out = append(out, entry)
	}
	return out
}

// Sweep re-verifies aged entries against the sink and drops the ones
// whose remote object is gone. Returns the number removed. Probe errors
// keep the entry; a transient sink outage must not wipe the registry.
func (s *Store) Sweep(ctx context.Context, now time.Time, probe Prober) int {
	s.mu.RLock()
	var stale []Entry
	for _, entry := range s.entries {
		if s.maxAge > 0 && now.Sub(entry.UploadedAt) < s.maxAge {
			continue
		}
		stale = append(stale, entry)
	}
	s.mu.RUnlock()

	var toRemove []string
	for _, entry := range stale {
		if ctx.Err() != nil {
			break
		}
		exists, err := probe.Exists(ctx, entry.RemoteID)
		if err != nil {
			s.logger.Warn("registry sweep probe failed", "id", entry.ID, "error", err)
			continue
		}
		if !exists {
			toRemove = append(toRemove, entry.ID)
		}
	}
	if len(toRemove) == 0 {
		return 0
	}

	s.mu.Lock()
	removed := 0
	for _, id := range toRemove {
		if _, ok := s.entries[id]; ok {
			delete(s.entries, id)
			removed++
		}
	}
	s.mu.Unlock()
	if removed > 0 {
		s.save()
		s.logger.Info("registry sweep removed stale entries", "removed", removed)
	}
	return removed
}

// save writes the registry atomically via a temp file rename.
func (s *Store) save() {
	s.mu.RLock()
	data, err := json.MarshalIndent(s.entries, "", "  ")
	s.mu.RUnlock()
	if err != nil {
		s.logger.Error("registry marshal failed", "error", err)
		return
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		s.logger.Error("registry write failed", "path", tmp, "error", err)
		return
	}
	if err := os.Rename(tmp, s.path); err != nil {
		s.logger.Error("registry rename failed", "path", s.path, "error", err)
	}
}

// DefaultPath places the registry next to the staging dir when no
// explicit path is configured.
func DefaultPath(dir string) string {
	return filepath.Join(dir, "uploads.json")
}
