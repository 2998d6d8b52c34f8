package solver

import (
	"fmt"
	"time"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize/convex/lp"

	"github.com/kilianp07/routeloop/core/model"
)

// ClassicalSolver is the deterministic baseline optimizer. It picks an
// altitude band per leg, then refines the per-leg time allocation with a
// linear program that shifts time out of risky cells. If the LP fails the
// nominal allocation is kept, so a feasible plan is always returned within
// budget.
type ClassicalSolver struct {
	scorer Scorer
}

// NewClassicalSolver returns a solver using the given scorer. A nil scorer
// defaults to WindRiskScorer.
func NewClassicalSolver(scorer Scorer) *ClassicalSolver {
	return &ClassicalSolver{scorer: scorer}
}

// solveTimeLP minimises total risk exposure sum(rate_i * x_i) subject to
// tMin <= x <= tMax and sum(x) = total.
func solveTimeLP(rates, tMin, tMax []float64, total float64) ([]float64, error) {
	n := len(rates)
	c := append([]float64(nil), rates...)

	g := mat.NewDense(2*n, n, nil)
	h := make([]float64, 2*n)
	for i := 0; i < n; i++ {
		g.Set(i, i, 1)
		h[i] = tMax[i]
		g.Set(n+i, i, -1)
		h[n+i] = -tMin[i]
	}

	A := mat.NewDense(1, n, nil)
	for i := 0; i < n; i++ {
		A.Set(0, i, 1)
	}
	b := []float64{total}

	cStd, AStd, bStd := lp.Convert(c, g, h, A, b)
	_, sol, err := lp.Simplex(cStd, AStd, bStd, 1e-7, nil)
	if err != nil {
		return nil, err
	}
	return sol[:n], nil
}

// lpSolve points to the function used to solve the LP. It can be overridden
// in tests to simulate solver failures.
var lpSolve = solveTimeLP

// Solve implements Classical. Output is a pure function of
// (field, req, cfg): no wall-clock reads, no map iteration.
func (s *ClassicalSolver) Solve(field model.NowcastField, req RouteRequest, cfg Config) (model.CandidatePlan, error) {
	if err := req.Validate(); err != nil {
		return model.CandidatePlan{}, fmt.Errorf("%w: %v", ErrInfeasible, err)
	}
	if err := field.Validate(); err != nil {
		return model.CandidatePlan{}, fmt.Errorf("%w: %v", ErrInfeasible, err)
	}

	n := len(req.Legs)
	maxBand := cfg.AltBandsM[len(cfg.AltBandsM)-1]
	alts := make([]float64, n)
	rates := make([]float64, n)
	tNom := make([]float64, n)
	tMin := make([]float64, n)
	tMax := make([]float64, n)
	total := 0.0
	for i, leg := range req.Legs {
		best := cfg.AltBandsM[0]
		bestRate := riskRate(field, best, maxBand)
		for _, band := range cfg.AltBandsM[1:] {
			if r := riskRate(field, band, maxBand); r < bestRate {
				best, bestRate = band, r
			}
		}
		alts[i] = best
		rates[i] = bestRate
		tNom[i] = leg.DistanceM / legGroundSpeed(field, leg, req.CruiseSpeedMS)
		tMin[i] = leg.DistanceM / req.MaxSpeedMS
		tMax[i] = leg.DistanceM / req.MinSpeedMS
		total += tNom[i]
	}

	times, err := lpSolve(rates, tMin, tMax, total)
	if err != nil {
		// Degrade to the nominal allocation rather than exceed budget.
		times = tNom
	}

	waypoints := make([]model.Waypoint, n)
	eta := req.Depart
	for i, leg := range req.Legs {
		eta = eta.Add(time.Duration(times[i] * float64(time.Second)))
		waypoints[i] = model.Waypoint{
			Lat:       leg.ExitLat,
			Lon:       leg.ExitLon,
			AltitudeM: alts[i],
			Corridor:  leg.Corridor,
			ETA:       eta,
		}
	}

	scorer := s.scorer
	if scorer == nil {
		scorer = WindRiskScorer{RiskWeight: cfg.RiskWeight}
	}
	return model.CandidatePlan{
		ActorID:   req.ActorID,
		Waypoints: waypoints,
		Objective: scorer.Score(field, req, waypoints),
		Solver:    model.SolverClassical,
		// The cycle's reference time, not the wall clock, so replays of
		// identical inputs reproduce the plan byte for byte.
		ComputedAt: req.Depart,
	}, nil
}
