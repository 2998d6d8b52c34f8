package cycle

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kilianp07/routeloop/core/logger"
	"github.com/kilianp07/routeloop/core/metrics"
	"github.com/kilianp07/routeloop/core/model"
	"github.com/kilianp07/routeloop/core/solver"
)

// Fallback reasons recorded on the decision when the classical result is
// kept.
const (
	ReasonAlternativeDisabled = "alternative_disabled"
	ReasonInsufficientBudget  = "insufficient_budget"
	ReasonLowExpectedGain     = "low_expected_gain"
	ReasonAlternativeTimeout  = "alternative_timeout"
	ReasonAlternativeError    = "alternative_error"
	ReasonAlternativeInferior = "alternative_inferior"
)

// joinGrace bounds how long past its sub-budget the dispatcher waits for an
// alternative solver that ignores cancellation. The solver is untrusted
// with timing; the dispatcher always observes a result or a timeout.
const joinGrace = 50 * time.Millisecond

// ErrNoDecision marks a cycle where the classical solver itself failed or
// overran its budget. Fatal for the cycle, never for the loop.
var ErrNoDecision = errors.New("cycle: no decision")

// Decision is the dispatcher's per-cycle output.
type Decision struct {
	Plan               model.CandidatePlan
	FallbackReason     string
	ClassicalObjective float64
	AlternativeRan     bool
}

// Dispatcher owns per-cycle timing: it invokes the classical solver with
// the full remaining budget, opportunistically launches the alternative
// solver under a strict sub-budget, and selects the winner.
type Dispatcher struct {
	classical   solver.Classical
	alternative solver.Alternative
	log         logger.Logger
	sink        metrics.Sink
	now         func() time.Time
}

// NewDispatcher creates a dispatcher. alternative and sink may be nil.
func NewDispatcher(classical solver.Classical, alternative solver.Alternative, sink metrics.Sink, log logger.Logger) (*Dispatcher, error) {
	if classical == nil || log == nil {
		return nil, fmt.Errorf("cycle: nil parameter provided to NewDispatcher")
	}
	return &Dispatcher{
		classical:   classical,
		alternative: alternative,
		log:         log,
		sink:        sink,
		now:         time.Now,
	}, nil
}

type altResult struct {
	plan model.CandidatePlan
	err  error
}

// RunCycle produces exactly one candidate plan for the cycle, or
// ErrNoDecision. It never blocks past the cycle deadline.
func (d *Dispatcher) RunCycle(ctx context.Context, cyc model.Cycle, field model.NowcastField, req solver.RouteRequest, scfg solver.Config, cfg Config) (Decision, error) {
	var latencies []metrics.SolverLatency

	classicalStart := d.now()
	classicalBudget := cyc.Remaining(classicalStart)
	base, err := d.classical.Solve(field, req, scfg)
	classicalElapsed := d.now().Sub(classicalStart)
	latencies = append(latencies, metrics.SolverLatency{
		CycleID: cyc.ID,
		Solver:  model.SolverClassical,
		Budget:  classicalBudget,
		Elapsed: classicalElapsed,
	})
	if err != nil {
		d.recordLatencies(latencies)
		return Decision{}, fmt.Errorf("%w: classical solver: %v", ErrNoDecision, err)
	}
	if classicalElapsed > classicalBudget {
		// Policy violation by the classical solver: malformed timing is
		// treated the same as malformed output.
		d.recordLatencies(latencies)
		return Decision{}, fmt.Errorf("%w: classical solver overran budget (%v > %v)", ErrNoDecision, classicalElapsed, classicalBudget)
	}
	base.CycleID = cyc.ID

	dec := Decision{Plan: base, ClassicalObjective: base.Objective}

	reason, subBudget := d.alternativeGate(cyc, field, cfg)
	if reason != "" {
		dec.FallbackReason = reason
		d.recordLatencies(latencies)
		return dec, nil
	}

	altPlan, altLat, altErr := d.runAlternative(ctx, field, req, scfg, cyc.ID, subBudget)
	latencies = append(latencies, altLat)
	dec.AlternativeRan = true
	switch {
	case errors.Is(altErr, solver.ErrBudgetExceeded):
		dec.FallbackReason = ReasonAlternativeTimeout
	case altErr != nil:
		dec.FallbackReason = ReasonAlternativeError
		d.log.Warnf("alternative solver failed: %v", altErr)
	case model.StrictlyBetter(scfg.Sense, altPlan.Objective, base.Objective, cfg.EpsilonRel):
		altPlan.CycleID = cyc.ID
		dec.Plan = altPlan
	default:
		// Ties keep the classical result: lower risk, higher determinism.
		dec.FallbackReason = ReasonAlternativeInferior
	}
	d.recordLatencies(latencies)
	return dec, nil
}

// alternativeGate decides whether the alternative solver is worth
// launching. Returns a fallback reason when it is not, and the sub-budget
// when it is.
func (d *Dispatcher) alternativeGate(cyc model.Cycle, field model.NowcastField, cfg Config) (string, time.Duration) {
	if !cfg.AlternativeEnabled || d.alternative == nil {
		return ReasonAlternativeDisabled, 0
	}
	remaining := cyc.Remaining(d.now())
	if remaining < cfg.AlternativeMinBudget() {
		return ReasonInsufficientBudget, 0
	}
	// Freshness biases solver confidence: a stale field gives the annealer
	// nothing reliable to exploit over the classical baseline.
	if field.Confidence < cfg.ImprovementThreshold {
		return ReasonLowExpectedGain, 0
	}
	return "", time.Duration(float64(remaining) * cfg.AlternativeShare)
}

// runAlternative issues the cancellable concurrent solver call with a
// bounded join. Cancellation is side-effect-free: a timed-out run
// contributes nothing to the decision.
func (d *Dispatcher) runAlternative(ctx context.Context, field model.NowcastField, req solver.RouteRequest, scfg solver.Config, cycleID uint64, subBudget time.Duration) (model.CandidatePlan, metrics.SolverLatency, error) {
	actx, cancel := context.WithTimeout(ctx, subBudget)
	defer cancel()

	start := d.now()
	ch := make(chan altResult, 1)
	go func() {
		plan, err := d.alternative.Optimize(actx, field, req, scfg)
		ch <- altResult{plan: plan, err: err}
	}()

	timer := time.NewTimer(subBudget + joinGrace)
	defer timer.Stop()

	lat := metrics.SolverLatency{CycleID: cycleID, Solver: model.SolverAlternative, Budget: subBudget}
	select {
	case r := <-ch:
		lat.Elapsed = d.now().Sub(start)
		lat.TimedOut = errors.Is(r.err, solver.ErrBudgetExceeded)
		return r.plan, lat, r.err
	case <-timer.C:
		// The solver ignored cancellation; abandon it. The goroutine will
		// drain into the buffered channel whenever it finishes.
		lat.Elapsed = d.now().Sub(start)
		lat.TimedOut = true
		return model.CandidatePlan{}, lat, solver.ErrBudgetExceeded
	}
}

func (d *Dispatcher) recordLatencies(lat []metrics.SolverLatency) {
	if d.sink == nil {
		return
	}
	if lr, ok := d.sink.(metrics.SolverLatencyRecorder); ok {
		if err := lr.RecordSolverLatency(lat); err != nil {
			d.log.Errorf("solver latency metrics: %v", err)
		}
	}
}
