package solver

import (
	"context"
	"math"
	"math/rand"
	"time"

	"github.com/kilianp07/routeloop/core/model"
)

// AnnealingSolver is the alternative optimizer: simulated annealing over
// per-leg altitude bands and time allocations. Higher variance than the
// classical solver, sometimes much better, never trusted with the cycle
// deadline. Cancellation is checked every iteration and returns
// ErrBudgetExceeded with no partial plan.
type AnnealingSolver struct {
	scorer Scorer
}

// NewAnnealingSolver returns a solver using the given scorer. A nil scorer
// defaults to WindRiskScorer.
func NewAnnealingSolver(scorer Scorer) *AnnealingSolver {
	return &AnnealingSolver{scorer: scorer}
}

type annealState struct {
	bandIdx []int
	times   []float64
}

func (s *AnnealingSolver) buildPlan(field model.NowcastField, req RouteRequest, cfg Config, st annealState) []model.Waypoint {
	waypoints := make([]model.Waypoint, len(req.Legs))
	eta := req.Depart
	for i, leg := range req.Legs {
		eta = eta.Add(time.Duration(st.times[i] * float64(time.Second)))
		waypoints[i] = model.Waypoint{
			Lat:       leg.ExitLat,
			Lon:       leg.ExitLon,
			AltitudeM: cfg.AltBandsM[st.bandIdx[i]],
			Corridor:  leg.Corridor,
			ETA:       eta,
		}
	}
	return waypoints
}

// neighbor perturbs one leg: either its altitude band or its speed.
func neighbor(rng *rand.Rand, req RouteRequest, cfg Config, st annealState) annealState {
	next := annealState{
		bandIdx: append([]int(nil), st.bandIdx...),
		times:   append([]float64(nil), st.times...),
	}
	i := rng.Intn(len(req.Legs))
	if rng.Intn(2) == 0 {
		next.bandIdx[i] = rng.Intn(len(cfg.AltBandsM))
	} else {
		lo := req.Legs[i].DistanceM / req.MaxSpeedMS
		hi := req.Legs[i].DistanceM / req.MinSpeedMS
		next.times[i] = lo + rng.Float64()*(hi-lo)
	}
	return next
}

// Optimize implements Alternative.
func (s *AnnealingSolver) Optimize(ctx context.Context, field model.NowcastField, req RouteRequest, cfg Config) (model.CandidatePlan, error) {
	if err := req.Validate(); err != nil {
		return model.CandidatePlan{}, err
	}
	scorer := s.scorer
	if scorer == nil {
		scorer = WindRiskScorer{RiskWeight: cfg.RiskWeight}
	}

	seed := cfg.AnnealSeed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	rng := rand.New(rand.NewSource(seed))

	cur := annealState{
		bandIdx: make([]int, len(req.Legs)),
		times:   make([]float64, len(req.Legs)),
	}
	for i, leg := range req.Legs {
		cur.times[i] = leg.DistanceM / req.CruiseSpeedMS
	}
	curCost := scorer.Score(field, req, s.buildPlan(field, req, cfg, cur))
	best, bestCost := cur, curCost

	better := func(a, b float64) bool {
		if cfg.Sense == model.Maximize {
			return a > b
		}
		return a < b
	}

	temp := cfg.AnnealInitTemp
	for iter := 0; iter < cfg.AnnealIters; iter++ {
		select {
		case <-ctx.Done():
			return model.CandidatePlan{}, ErrBudgetExceeded
		default:
		}
		cand := neighbor(rng, req, cfg, cur)
		cost := scorer.Score(field, req, s.buildPlan(field, req, cfg, cand))
		delta := cost - curCost
		if cfg.Sense == model.Maximize {
			delta = -delta
		}
		if delta < 0 || rng.Float64() < math.Exp(-delta/math.Max(temp, 1e-9)) {
			cur, curCost = cand, cost
			if better(curCost, bestCost) {
				best, bestCost = cur, curCost
			}
		}
		temp *= cfg.AnnealCooling
	}

	return model.CandidatePlan{
		ActorID:    req.ActorID,
		Waypoints:  s.buildPlan(field, req, cfg, best),
		Objective:  bestCost,
		Solver:     model.SolverAlternative,
		ComputedAt: req.Depart,
	}, nil
}
