package model

import "time"

// ResourceClaim is a time-and-space reservation on a shared corridor,
// derived from an approved plan. Claims are append-only: supersession and
// expiry are computed from the log, entries are never mutated.
type ResourceClaim struct {
	ID         string    `json:"id"`
	ActorID    string    `json:"actor_id"`
	CycleID    uint64    `json:"cycle_id"`
	Corridor   string    `json:"corridor"`
	AltMinM    float64   `json:"alt_min_m"`
	AltMaxM    float64   `json:"alt_max_m"`
	Start      time.Time `json:"start"`
	End        time.Time `json:"end"`
	RoleWeight int       `json:"role_weight"`
	IssuedAt   time.Time `json:"issued_at"`
}

// Overlaps reports whether two claims contest the same corridor space-time.
func (c ResourceClaim) Overlaps(o ResourceClaim) bool {
	if c.Corridor != o.Corridor {
		return false
	}
	if c.AltMaxM <= o.AltMinM || o.AltMaxM <= c.AltMinM {
		return false
	}
	return c.Start.Before(o.End) && o.Start.Before(c.End)
}

// SupersededBy reports whether o replaces c: same actor, same corridor,
// later cycle. An actor's newest claim on a corridor is the only live one.
func (c ResourceClaim) SupersededBy(o ResourceClaim) bool {
	return c.ActorID == o.ActorID && c.Corridor == o.Corridor && o.CycleID > c.CycleID
}

// Expired reports whether the claim's reservation window has fully elapsed.
func (c ResourceClaim) Expired(now time.Time) bool {
	return !now.Before(c.End)
}
