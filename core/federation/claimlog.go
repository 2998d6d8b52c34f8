package federation

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/kilianp07/routeloop/core/model"
)

// ErrLogUnavailable is returned when the shared claim log cannot be reached
// within the coordinator's visibility budget.
var ErrLogUnavailable = errors.New("federation: claim log unavailable")

// ClaimLog is the single shared mutable resource of the federation: an
// append-only log of resource claims. All writers append, none mutate
// existing entries; readers consume a monotonically growing, eventually
// consistent view.
type ClaimLog interface {
	// Append publishes claims owned by the calling actor. No actor may
	// claim on another actor's behalf.
	Append(ctx context.Context, claims []model.ResourceClaim) error
	// Snapshot returns the current local view of the log.
	Snapshot(ctx context.Context) ([]model.ResourceClaim, error)
}

// MemoryClaimLog is an in-process claim log shared between actors of one
// process. It doubles as the merge target for distributed transports.
type MemoryClaimLog struct {
	mu      sync.RWMutex
	entries []model.ResourceClaim
}

// NewMemoryClaimLog creates an empty log.
func NewMemoryClaimLog() *MemoryClaimLog { return &MemoryClaimLog{} }

// Append implements ClaimLog.
func (l *MemoryClaimLog) Append(ctx context.Context, claims []model.ResourceClaim) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, claims...)
	return nil
}

// Snapshot implements ClaimLog.
func (l *MemoryClaimLog) Snapshot(ctx context.Context) ([]model.ResourceClaim, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]model.ResourceClaim(nil), l.entries...), nil
}

// Live filters a log snapshot down to the claims that still bind: expired
// entries drop out, and an actor's claim on a corridor is superseded by the
// same actor's claim from a later cycle. Pure so every node computes the
// same view from the same snapshot.
func Live(snapshot []model.ResourceClaim, now time.Time) []model.ResourceClaim {
	var live []model.ResourceClaim
	for i, c := range snapshot {
		if c.Expired(now) {
			continue
		}
		superseded := false
		for j, o := range snapshot {
			if i != j && c.SupersededBy(o) {
				superseded = true
				break
			}
		}
		if !superseded {
			live = append(live, c)
		}
	}
	return live
}
