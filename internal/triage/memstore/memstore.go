// Package memstore provides an in-memory implementation of triage.Store.
package memstore

import (
	"context"
	"sync"

	"github.com/linnemanlabs/triagebot/internal/triage"
)

// DefaultCapacity is the number of runs kept when New is given zero.
const DefaultCapacity = 1000

// Store holds the most recent runs in memory, evicting the oldest once
// capacity is reached.
type Store struct {
	mu    sync.RWMutex
	limit int
	runs  map[string]*triage.Run // run ID -> run
	order []string               // insertion order, oldest first
}

// New initializes a new in-memory Store holding up to capacity runs.
func New(capacity int) *Store {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Store{
		limit: capacity,
		runs:  make(map[string]*triage.Run),
	}
}

// Get retrieves a run by its ID. Returns a copy.
func (s *Store) Get(_ context.Context, id string) (*triage.Run, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.runs[id]
	if !ok {
		return nil, false, nil
	}
	return clone(r), true, nil
}

// Put stores a copy of the run, replacing any run with the same ID.
func (s *Store) Put(_ context.Context, r *triage.Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.runs[r.ID]; !ok {
		s.order = append(s.order, r.ID)
		for len(s.order) > s.limit {
			delete(s.runs, s.order[0])
			s.order = s.order[1:]
		}
	}
	s.runs[r.ID] = clone(r)
	return nil
}

// Len returns the number of runs held.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.runs)
}

func clone(r *triage.Run) *triage.Run {
	cp := *r
	cp.Record.MissingFields = append([]string(nil), r.Record.MissingFields...)
	if r.Desired != nil {
		d := *r.Desired
		d.LabelsToAdd = append([]string(nil), r.Desired.LabelsToAdd...)
		d.LabelsToRemove = append([]string(nil), r.Desired.LabelsToRemove...)
		cp.Desired = &d
	}
	return &cp
}
