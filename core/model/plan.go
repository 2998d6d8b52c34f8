package model

import (
	"math"
	"time"
)

// SolverKind tags which solver produced a candidate plan.
type SolverKind string

const (
	SolverClassical   SolverKind = "classical"
	SolverAlternative SolverKind = "alternative"
)

// ObjectiveSense defines the optimization direction for objective values.
type ObjectiveSense int

const (
	Minimize ObjectiveSense = iota
	Maximize
)

// String returns a human-readable representation of the sense.
func (s ObjectiveSense) String() string {
	if s == Maximize {
		return "maximize"
	}
	return "minimize"
}

// Waypoint is one decision point of a route plan.
type Waypoint struct {
	Lat       float64   `json:"lat"`
	Lon       float64   `json:"lon"`
	AltitudeM float64   `json:"altitude_m"`
	Corridor  string    `json:"corridor"`
	ETA       time.Time `json:"eta"`
}

// CandidatePlan is the immutable output of one solver invocation.
type CandidatePlan struct {
	ActorID    string     `json:"actor_id"`
	CycleID    uint64     `json:"cycle_id"`
	Waypoints  []Waypoint `json:"waypoints"`
	Objective  float64    `json:"objective"`
	Solver     SolverKind `json:"solver"`
	ComputedAt time.Time  `json:"computed_at"`
}

// Clone returns a deep copy of the plan.
func (p CandidatePlan) Clone() CandidatePlan {
	cp := p
	cp.Waypoints = append([]Waypoint(nil), p.Waypoints...)
	return cp
}

// ApprovedPlan is a candidate plan after federation reconciliation. It may
// differ from the proposal when the actor had to yield a contested corridor.
type ApprovedPlan struct {
	CandidatePlan
	Degraded  bool          `json:"degraded"`
	Trimmed   bool          `json:"trimmed"`
	DelayedBy time.Duration `json:"delayed_by"`
	Rationale string        `json:"rationale"`
}

// StrictlyBetter reports whether objective a improves on b under the given
// sense, using a relative epsilon so successive cycles do not flap on
// floating-point noise. Ties are not better.
func StrictlyBetter(sense ObjectiveSense, a, b, eps float64) bool {
	scale := math.Max(math.Abs(a), math.Abs(b))
	if scale < 1 {
		scale = 1
	}
	if math.Abs(a-b) <= eps*scale {
		return false
	}
	if sense == Maximize {
		return a > b
	}
	return a < b
}
