// Package memory keeps layout runs in process memory.
package memory

import (
	"context"
	"fmt"
	"sync"

	"plantgrid/internal/layout"
)

// Store is a map-backed run store, safe for concurrent use.
type Store struct {
	mu   sync.RWMutex
	runs map[string]layout.Run
}

// NewStore returns an empty store.
func NewStore() *Store { return &Store{runs: make(map[string]layout.Run)} }

// Save inserts or replaces run.
func (s *Store) Save(_ context.Context, run layout.Run) error {
	if run.ID == "" {
		return fmt.Errorf("save run: empty id")
	}
	s.mu.Lock()
	s.runs[run.ID] = run.Clone()
	s.mu.Unlock()
	return nil
}

// Get returns a copy of the run with id.
func (s *Store) Get(_ context.Context, id string) (layout.Run, error) {
	s.mu.RLock()
	run, ok := s.runs[id]
	s.mu.RUnlock()
	if !ok {
		return layout.Run{}, fmt.Errorf("%w: %s", layout.ErrNotFound, id)
	}
	return run.Clone(), nil
}

// List returns copies of all runs, newest first.
func (s *Store) List(context.Context) ([]layout.Run, error) {
	s.mu.RLock()
	out := make([]layout.Run, 0, len(s.runs))
	for _, run := range s.runs {
		out = append(out, run.Clone())
	}
	s.mu.RUnlock()
	layout.SortNewestFirst(out)
	return out, nil
}

// Close is a no-op.
func (s *Store) Close() error { return nil }
