// Package memstore provides an in-memory implementation of followup.Store.
package memstore

import (
	"context"
	"sync"

	"github.com/linnemanlabs/nudge/internal/caserec"
	"github.com/linnemanlabs/nudge/internal/followup"
)

// Store holds follow-up runs in memory. Suitable for dev/testing.
type Store struct {
	mu   sync.RWMutex
	runs map[string]*followup.Run // run ID -> run
}

// New initializes a new in-memory Store.
func New() *Store {
	return &Store{runs: make(map[string]*followup.Run)}
}

// Get retrieves a run by its ID. Returns a copy.
func (s *Store) Get(_ context.Context, id string) (*followup.Run, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.runs[id]
	if !ok {
		return nil, false, nil
	}
	return copyRun(r), true, nil
}

// Put stores a copy of the run.
func (s *Store) Put(_ context.Context, r *followup.Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs[r.ID] = copyRun(r)
	return nil
}

// copyRun clones a run including its intent and owner slices, so callers
// can't mutate stored state through a returned pointer.
func copyRun(r *followup.Run) *followup.Run {
	cp := *r
	cp.UnresolvedOwners = append([]string(nil), r.UnresolvedOwners...)
	cp.Intents = make([]followup.NotificationIntent, len(r.Intents))
	for i := range r.Intents {
		in := r.Intents[i]
		in.Recipients = append([]string(nil), in.Recipients...)
		in.TopCases = append([]caserec.Record(nil), in.TopCases...)
		cp.Intents[i] = in
	}
	return &cp
}
