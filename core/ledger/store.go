package ledger

import (
	"context"
	"time"
)

// Query defines filters for retrieving ledger records.
type Query struct {
	ActorID string
	// CycleID filters on an exact cycle. Zero matches any (cycle ids start
	// at 1).
	CycleID uint64
	State   State
	Start   time.Time
	End     time.Time
}

// Store persists ledger records and supports querying. One record exists
// per (actor_id, cycle_id); Update replaces it in place and is reserved
// for forward lifecycle moves (archive, anchor resolution).
type Store interface {
	Append(ctx context.Context, rec Record) error
	Update(ctx context.Context, rec Record) error
	Query(ctx context.Context, q Query) ([]Record, error)
	// Head returns the actor's latest non-rejected record.
	Head(ctx context.Context, actorID string) (Record, bool, error)
	Close() error
}

func matches(r Record, q Query) bool {
	if q.ActorID != "" && r.ActorID != q.ActorID {
		return false
	}
	if q.CycleID != 0 && r.CycleID != q.CycleID {
		return false
	}
	if q.State != "" && r.State != q.State {
		return false
	}
	if !q.Start.IsZero() && r.Timestamp.Before(q.Start) {
		return false
	}
	if !q.End.IsZero() && r.Timestamp.After(q.End) {
		return false
	}
	return true
}
