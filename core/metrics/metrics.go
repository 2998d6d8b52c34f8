package metrics

import (
	"time"

	"github.com/kilianp07/routeloop/core/model"
)

// CycleResult is the per-cycle observability record.
type CycleResult struct {
	Cycle          model.Cycle
	Outcome        model.OutcomeKind
	Solver         model.SolverKind
	FallbackReason string
	Degraded       bool
	Elapsed        time.Duration
}

// Sink records cycle outcomes for observability purposes.
type Sink interface {
	RecordCycleOutcome(res CycleResult) error
}

// SolverLatency captures one solver invocation against its budget.
type SolverLatency struct {
	CycleID  uint64
	Solver   model.SolverKind
	Budget   time.Duration
	Elapsed  time.Duration
	TimedOut bool
}

// SolverLatencyRecorder is implemented by sinks able to record solver timing.
type SolverLatencyRecorder interface {
	RecordSolverLatency(recs []SolverLatency) error
}

// FreshnessEvent reports the age and confidence of the nowcast field used by
// a cycle. The dispatcher consumes the same signal to bias solver confidence.
type FreshnessEvent struct {
	Age        time.Duration
	Stale      bool
	Confidence float64
	Time       time.Time
}

// FreshnessRecorder records nowcast freshness.
type FreshnessRecorder interface {
	RecordNowcastFreshness(ev FreshnessEvent) error
}

// ConflictEvent captures one federation conflict resolution.
type ConflictEvent struct {
	ActorID  string
	CycleID  uint64
	Corridor string
	Winner   string
	Retries  int
	Resolved bool
	Time     time.Time
}

// ConflictRecorder records federation conflicts.
type ConflictRecorder interface {
	RecordFederationConflict(ev ConflictEvent) error
}

// CommitEvent captures a ledger commit.
type CommitEvent struct {
	ActorID       string
	CycleID       uint64
	State         string
	AnchorPending bool
	Time          time.Time
}

// CommitRecorder records ledger commits.
type CommitRecorder interface {
	RecordLedgerCommit(ev CommitEvent) error
}

// NopSink implements all recorder interfaces with no-op methods.
type NopSink struct{}

func (NopSink) RecordCycleOutcome(CycleResult) error         { return nil }
func (NopSink) RecordSolverLatency([]SolverLatency) error    { return nil }
func (NopSink) RecordNowcastFreshness(FreshnessEvent) error  { return nil }
func (NopSink) RecordFederationConflict(ConflictEvent) error { return nil }
func (NopSink) RecordLedgerCommit(CommitEvent) error         { return nil }
