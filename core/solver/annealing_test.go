package solver

import (
	"context"
	"errors"
	"testing"

	"github.com/kilianp07/routeloop/core/model"
)

func TestAnnealingProducesPlan(t *testing.T) {
	cfg := testConfig()
	cfg.AnnealSeed = 42
	cfg.AnnealIters = 500

	s := NewAnnealingSolver(nil)
	plan, err := s.Optimize(context.Background(), testField(), testRequest(), cfg)
	if err != nil {
		t.Fatalf("optimize: %v", err)
	}
	if plan.Solver != model.SolverAlternative {
		t.Fatalf("wrong solver kind %s", plan.Solver)
	}
	if len(plan.Waypoints) != 3 {
		t.Fatalf("expected 3 waypoints got %d", len(plan.Waypoints))
	}
}

func TestAnnealingSeedReproducible(t *testing.T) {
	cfg := testConfig()
	cfg.AnnealSeed = 7
	cfg.AnnealIters = 300

	s := NewAnnealingSolver(nil)
	a, err := s.Optimize(context.Background(), testField(), testRequest(), cfg)
	if err != nil {
		t.Fatalf("optimize: %v", err)
	}
	b, err := s.Optimize(context.Background(), testField(), testRequest(), cfg)
	if err != nil {
		t.Fatalf("optimize: %v", err)
	}
	if a.Objective != b.Objective {
		t.Fatalf("same seed produced different objectives: %f vs %f", a.Objective, b.Objective)
	}
}

func TestAnnealingCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s := NewAnnealingSolver(nil)
	plan, err := s.Optimize(ctx, testField(), testRequest(), testConfig())
	if !errors.Is(err, ErrBudgetExceeded) {
		t.Fatalf("expected ErrBudgetExceeded got %v", err)
	}
	if len(plan.Waypoints) != 0 {
		t.Fatalf("cancelled run must not return a partial plan")
	}
}
