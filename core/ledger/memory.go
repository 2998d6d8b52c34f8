package ledger

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// MemoryStore keeps records in memory. Suited for tests and ephemeral runs.
type MemoryStore struct {
	mu   sync.RWMutex
	recs []Record
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore { return &MemoryStore{} }

// Append implements Store.
func (s *MemoryStore) Append(_ context.Context, rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.recs {
		if r.ActorID == rec.ActorID && r.CycleID == rec.CycleID {
			return fmt.Errorf("ledger: record for %s cycle %d already exists", rec.ActorID, rec.CycleID)
		}
	}
	s.recs = append(s.recs, rec)
	return nil
}

// Update implements Store.
func (s *MemoryStore) Update(_ context.Context, rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, r := range s.recs {
		if r.ActorID == rec.ActorID && r.CycleID == rec.CycleID {
			s.recs[i] = rec
			return nil
		}
	}
	return fmt.Errorf("ledger: no record for %s cycle %d", rec.ActorID, rec.CycleID)
}

// Query implements Store. Results are ordered by actor then cycle.
func (s *MemoryStore) Query(_ context.Context, q Query) ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var res []Record
	for _, r := range s.recs {
		if matches(r, q) {
			res = append(res, r)
		}
	}
	sort.Slice(res, func(i, j int) bool {
		if res[i].ActorID != res[j].ActorID {
			return res[i].ActorID < res[j].ActorID
		}
		return res[i].CycleID < res[j].CycleID
	})
	return res, nil
}

// Head implements Store.
func (s *MemoryStore) Head(_ context.Context, actorID string) (Record, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var head Record
	found := false
	for _, r := range s.recs {
		if r.ActorID != actorID || r.State == StateRejected {
			continue
		}
		if !found || r.CycleID > head.CycleID {
			head = r
			found = true
		}
	}
	return head, found, nil
}

// Close implements Store.
func (s *MemoryStore) Close() error { return nil }
