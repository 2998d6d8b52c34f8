package model

import "time"

// Cycle identifies one iteration of the control loop.
type Cycle struct {
	ID        uint64    `json:"id"`
	ActorID   string    `json:"actor_id"`
	StartTime time.Time `json:"start_time"`
	Deadline  time.Time `json:"deadline"`
}

// Remaining returns the budget left before the cycle deadline.
func (c Cycle) Remaining(now time.Time) time.Duration {
	return c.Deadline.Sub(now)
}

// OutcomeKind is the terminal result of a cycle. Every cycle produces
// exactly one outcome; there is no silent cycle.
type OutcomeKind int

const (
	OutcomeCommitted OutcomeKind = iota
	OutcomeCommittedDegraded
	OutcomeRejected
)

// String returns a human-readable representation of the outcome kind.
func (k OutcomeKind) String() string {
	switch k {
	case OutcomeCommitted:
		return "committed"
	case OutcomeCommittedDegraded:
		return "committed_degraded"
	case OutcomeRejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// CycleOutcome is published on the event bus once a cycle terminates.
type CycleOutcome struct {
	Cycle          Cycle
	Kind           OutcomeKind
	Solver         SolverKind
	FallbackReason string
	RecordHash     string
	Elapsed        time.Duration
}
