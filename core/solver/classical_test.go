package solver

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/kilianp07/routeloop/core/model"
)

func testField() model.NowcastField {
	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	f := model.NowcastField{
		SourceVersion:  "v1",
		GeneratedAt:    base,
		ValidFrom:      base,
		ValidUntil:     base.Add(10 * time.Minute),
		Cols:           4,
		Rows:           4,
		WindU:          make([]float64, 16),
		WindV:          make([]float64, 16),
		TurbulenceRisk: 0.2,
		IcingRisk:      0.1,
		ConvectiveRisk: 0.3,
		Confidence:     1,
	}
	for i := range f.WindU {
		f.WindU[i] = 2
		f.WindV[i] = -1
	}
	return f
}

func testRequest() RouteRequest {
	return RouteRequest{
		ActorID: "actor-1",
		Origin:  Point{Lat: 48.85, Lon: 2.35},
		Legs: []Leg{
			{Corridor: "C1", DistanceM: 3000, BearingDeg: 90, Col: 0, Row: 0, ExitLat: 48.85, ExitLon: 2.39},
			{Corridor: "C2", DistanceM: 4500, BearingDeg: 45, Col: 1, Row: 1, ExitLat: 48.88, ExitLon: 2.43},
			{Corridor: "C3", DistanceM: 2000, BearingDeg: 0, Col: 2, Row: 2, ExitLat: 48.90, ExitLon: 2.43},
		},
		Depart:        time.Date(2025, 3, 1, 12, 0, 30, 0, time.UTC),
		CruiseSpeedMS: 20,
		MinSpeedMS:    10,
		MaxSpeedMS:    30,
	}
}

func testConfig() Config {
	cfg := Config{}
	cfg.SetDefaults()
	return cfg
}

func TestClassicalDeterministic(t *testing.T) {
	s := NewClassicalSolver(nil)
	field := testField()
	req := testRequest()
	cfg := testConfig()

	a, err := s.Solve(field, req, cfg)
	if err != nil {
		t.Fatalf("solve: %v", err)
	}
	b, err := s.Solve(field.Clone(), req, cfg)
	if err != nil {
		t.Fatalf("solve: %v", err)
	}
	ja, _ := json.Marshal(a)
	jb, _ := json.Marshal(b)
	if string(ja) != string(jb) {
		t.Fatalf("plans differ:\n%s\n%s", ja, jb)
	}
	if a.Solver != model.SolverClassical {
		t.Fatalf("wrong solver kind %s", a.Solver)
	}
	if len(a.Waypoints) != len(req.Legs) {
		t.Fatalf("expected %d waypoints got %d", len(req.Legs), len(a.Waypoints))
	}
}

func TestClassicalETAOrdering(t *testing.T) {
	s := NewClassicalSolver(nil)
	plan, err := s.Solve(testField(), testRequest(), testConfig())
	if err != nil {
		t.Fatalf("solve: %v", err)
	}
	prev := testRequest().Depart
	for i, w := range plan.Waypoints {
		if !w.ETA.After(prev) {
			t.Fatalf("waypoint %d ETA %v not after %v", i, w.ETA, prev)
		}
		prev = w.ETA
	}
}

func TestClassicalLPFailureFallsBack(t *testing.T) {
	orig := lpSolve
	lpSolve = func(rates, tMin, tMax []float64, total float64) ([]float64, error) {
		return nil, errors.New("simulated simplex failure")
	}
	defer func() { lpSolve = orig }()

	s := NewClassicalSolver(nil)
	plan, err := s.Solve(testField(), testRequest(), testConfig())
	if err != nil {
		t.Fatalf("expected naive fallback, got error: %v", err)
	}
	if len(plan.Waypoints) != 3 {
		t.Fatalf("expected 3 waypoints got %d", len(plan.Waypoints))
	}
	if plan.Objective <= 0 {
		t.Fatalf("objective should be positive, got %f", plan.Objective)
	}
}

func TestClassicalInfeasible(t *testing.T) {
	s := NewClassicalSolver(nil)
	req := testRequest()
	req.Legs = nil
	if _, err := s.Solve(testField(), req, testConfig()); !errors.Is(err, ErrInfeasible) {
		t.Fatalf("expected ErrInfeasible got %v", err)
	}
}

func TestStrictlyBetterEpsilon(t *testing.T) {
	if model.StrictlyBetter(model.Minimize, 100.0000001, 100, 1e-6) {
		t.Fatalf("within epsilon should not be better")
	}
	if !model.StrictlyBetter(model.Minimize, 99, 100, 1e-6) {
		t.Fatalf("99 should beat 100 when minimizing")
	}
	if !model.StrictlyBetter(model.Maximize, 120, 100, 1e-6) {
		t.Fatalf("120 should beat 100 when maximizing")
	}
	if model.StrictlyBetter(model.Minimize, 100, 100, 1e-6) {
		t.Fatalf("tie must not be better")
	}
}
