package cycle

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/kilianp07/routeloop/core/model"
	"github.com/kilianp07/routeloop/core/solver"
	"github.com/kilianp07/routeloop/infra/logger"
)

type stubClassical struct {
	objective float64
	err       error
	delay     time.Duration
}

func (s stubClassical) Solve(field model.NowcastField, req solver.RouteRequest, cfg solver.Config) (model.CandidatePlan, error) {
	if s.delay > 0 {
		time.Sleep(s.delay)
	}
	if s.err != nil {
		return model.CandidatePlan{}, s.err
	}
	return model.CandidatePlan{
		ActorID:   req.ActorID,
		Waypoints: []model.Waypoint{{Corridor: "C1"}},
		Objective: s.objective,
		Solver:    model.SolverClassical,
	}, nil
}

type stubAlternative struct {
	objective float64
	err       error
	hang      bool
	ignoreCtx bool
}

func (s stubAlternative) Optimize(ctx context.Context, field model.NowcastField, req solver.RouteRequest, cfg solver.Config) (model.CandidatePlan, error) {
	if s.hang {
		if s.ignoreCtx {
			// Simulate a misbehaving backend that never observes ctx.
			time.Sleep(5 * time.Second)
		} else {
			<-ctx.Done()
			return model.CandidatePlan{}, solver.ErrBudgetExceeded
		}
	}
	if s.err != nil {
		return model.CandidatePlan{}, s.err
	}
	return model.CandidatePlan{
		ActorID:   req.ActorID,
		Waypoints: []model.Waypoint{{Corridor: "C1"}},
		Objective: s.objective,
		Solver:    model.SolverAlternative,
	}, nil
}

func freshField() model.NowcastField {
	now := time.Now()
	return model.NowcastField{
		GeneratedAt: now, ValidFrom: now, ValidUntil: now.Add(time.Minute),
		Cols: 1, Rows: 1, WindU: []float64{0}, WindV: []float64{0},
		Confidence: 1,
	}
}

func testCycle(budget time.Duration) model.Cycle {
	now := time.Now()
	return model.Cycle{ID: 1, ActorID: "actor-1", StartTime: now, Deadline: now.Add(budget)}
}

func testCfg() Config {
	cfg := Config{AlternativeEnabled: true}
	cfg.SetDefaults()
	return cfg
}

func solverCfg() solver.Config {
	cfg := solver.Config{}
	cfg.SetDefaults()
	return cfg
}

func newDispatcher(t *testing.T, c solver.Classical, a solver.Alternative) *Dispatcher {
	t.Helper()
	d, err := NewDispatcher(c, a, nil, logger.NopLogger{})
	if err != nil {
		t.Fatalf("dispatcher: %v", err)
	}
	return d
}

func TestClassicalKeptWhenAlternativeInferior(t *testing.T) {
	d := newDispatcher(t, stubClassical{objective: 100}, stubAlternative{objective: 110})
	dec, err := d.RunCycle(context.Background(), testCycle(time.Second), freshField(), solver.RouteRequest{ActorID: "actor-1"}, solverCfg(), testCfg())
	if err != nil {
		t.Fatalf("run cycle: %v", err)
	}
	if dec.Plan.Solver != model.SolverClassical {
		t.Fatalf("expected classical, got %s", dec.Plan.Solver)
	}
	if dec.FallbackReason != ReasonAlternativeInferior {
		t.Fatalf("expected %s got %s", ReasonAlternativeInferior, dec.FallbackReason)
	}
	if !dec.AlternativeRan {
		t.Fatalf("alternative should have run")
	}
}

func TestAlternativeWinsWhenStrictlyBetter(t *testing.T) {
	d := newDispatcher(t, stubClassical{objective: 100}, stubAlternative{objective: 85})
	dec, err := d.RunCycle(context.Background(), testCycle(time.Second), freshField(), solver.RouteRequest{ActorID: "actor-1"}, solverCfg(), testCfg())
	if err != nil {
		t.Fatalf("run cycle: %v", err)
	}
	if dec.Plan.Solver != model.SolverAlternative {
		t.Fatalf("expected alternative, got %s", dec.Plan.Solver)
	}
	if dec.FallbackReason != "" {
		t.Fatalf("unexpected fallback reason %s", dec.FallbackReason)
	}
	if dec.Plan.CycleID != 1 {
		t.Fatalf("plan not stamped with cycle id")
	}
}

func TestTieKeepsClassical(t *testing.T) {
	d := newDispatcher(t, stubClassical{objective: 100}, stubAlternative{objective: 100 + 1e-8})
	dec, err := d.RunCycle(context.Background(), testCycle(time.Second), freshField(), solver.RouteRequest{ActorID: "actor-1"}, solverCfg(), testCfg())
	if err != nil {
		t.Fatalf("run cycle: %v", err)
	}
	if dec.Plan.Solver != model.SolverClassical {
		t.Fatalf("epsilon tie must keep classical, got %s", dec.Plan.Solver)
	}
}

func TestAlternativeTimeoutFallsBack(t *testing.T) {
	cfg := testCfg()
	cfg.AlternativeMinBudgetMS = 10
	d := newDispatcher(t, stubClassical{objective: 100}, stubAlternative{hang: true})
	dec, err := d.RunCycle(context.Background(), testCycle(300*time.Millisecond), freshField(), solver.RouteRequest{ActorID: "actor-1"}, solverCfg(), cfg)
	if err != nil {
		t.Fatalf("run cycle: %v", err)
	}
	if dec.Plan.Solver != model.SolverClassical {
		t.Fatalf("expected classical after timeout, got %s", dec.Plan.Solver)
	}
	if dec.FallbackReason != ReasonAlternativeTimeout {
		t.Fatalf("expected %s got %s", ReasonAlternativeTimeout, dec.FallbackReason)
	}
}

func TestAlternativeIgnoringCancellationIsAbandoned(t *testing.T) {
	cfg := testCfg()
	cfg.AlternativeMinBudgetMS = 10
	d := newDispatcher(t, stubClassical{objective: 100}, stubAlternative{hang: true, ignoreCtx: true})
	start := time.Now()
	dec, err := d.RunCycle(context.Background(), testCycle(300*time.Millisecond), freshField(), solver.RouteRequest{ActorID: "actor-1"}, solverCfg(), cfg)
	if err != nil {
		t.Fatalf("run cycle: %v", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("dispatcher hung on misbehaving solver for %v", elapsed)
	}
	if dec.FallbackReason != ReasonAlternativeTimeout {
		t.Fatalf("expected %s got %s", ReasonAlternativeTimeout, dec.FallbackReason)
	}
}

func TestAlternativeSkippedOnStaleField(t *testing.T) {
	d := newDispatcher(t, stubClassical{objective: 100}, stubAlternative{objective: 50})
	field := freshField()
	field.Stale = true
	field.Confidence = 0.2
	dec, err := d.RunCycle(context.Background(), testCycle(time.Second), field, solver.RouteRequest{ActorID: "actor-1"}, solverCfg(), testCfg())
	if err != nil {
		t.Fatalf("run cycle: %v", err)
	}
	if dec.FallbackReason != ReasonLowExpectedGain {
		t.Fatalf("expected %s got %s", ReasonLowExpectedGain, dec.FallbackReason)
	}
	if dec.AlternativeRan {
		t.Fatalf("alternative should not have run")
	}
}

func TestClassicalFailureYieldsNoDecision(t *testing.T) {
	d := newDispatcher(t, stubClassical{err: errors.New("boom")}, nil)
	_, err := d.RunCycle(context.Background(), testCycle(time.Second), freshField(), solver.RouteRequest{ActorID: "actor-1"}, solverCfg(), testCfg())
	if !errors.Is(err, ErrNoDecision) {
		t.Fatalf("expected ErrNoDecision got %v", err)
	}
}

func TestClassicalBudgetOverrunYieldsNoDecision(t *testing.T) {
	d := newDispatcher(t, stubClassical{objective: 100, delay: 50 * time.Millisecond}, nil)
	_, err := d.RunCycle(context.Background(), testCycle(10*time.Millisecond), freshField(), solver.RouteRequest{ActorID: "actor-1"}, solverCfg(), testCfg())
	if !errors.Is(err, ErrNoDecision) {
		t.Fatalf("expected ErrNoDecision got %v", err)
	}
}
