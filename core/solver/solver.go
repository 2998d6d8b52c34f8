package solver

import (
	"context"
	"errors"
	"time"

	"github.com/kilianp07/routeloop/core/model"
)

// ErrBudgetExceeded is returned by the alternative solver when it is
// cancelled or runs out of budget. A partial plan is never returned.
var ErrBudgetExceeded = errors.New("solver: budget exceeded")

// ErrInfeasible is returned when no feasible plan exists for the request.
var ErrInfeasible = errors.New("solver: request infeasible")

// Point is a geographic position.
type Point struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Leg is one corridor segment of the nominal route. Col/Row locate the
// nowcast grid cell covering the leg.
type Leg struct {
	Corridor   string  `json:"corridor"`
	DistanceM  float64 `json:"distance_m"`
	BearingDeg float64 `json:"bearing_deg"`
	Col        int     `json:"col"`
	Row        int     `json:"row"`
	ExitLat    float64 `json:"exit_lat"`
	ExitLon    float64 `json:"exit_lon"`
}

// RouteRequest describes the routing problem solved each cycle.
type RouteRequest struct {
	ActorID       string    `json:"actor_id"`
	Origin        Point     `json:"origin"`
	Legs          []Leg     `json:"legs"`
	Depart        time.Time `json:"depart"`
	CruiseSpeedMS float64   `json:"cruise_speed_ms"`
	MinSpeedMS    float64   `json:"min_speed_ms"`
	MaxSpeedMS    float64   `json:"max_speed_ms"`
}

// Validate checks the request is solvable at all.
func (r RouteRequest) Validate() error {
	if len(r.Legs) == 0 {
		return errors.New("route request has no legs")
	}
	if r.CruiseSpeedMS <= 0 || r.MinSpeedMS <= 0 || r.MaxSpeedMS < r.MinSpeedMS {
		return errors.New("invalid speed envelope")
	}
	for _, l := range r.Legs {
		if l.DistanceM <= 0 {
			return errors.New("leg distance must be positive")
		}
	}
	return nil
}

// Config defines solver tuning. It is part of the cycle's hashed inputs, so
// a replay with identical field and config reproduces the inputs hash.
type Config struct {
	Sense          model.ObjectiveSense `json:"-"`
	SenseName      string               `json:"sense"`
	AltBandsM      []float64            `json:"alt_bands_m"`
	RiskWeight     float64              `json:"risk_weight"`
	AnnealSeed     int64                `json:"anneal_seed"`
	AnnealIters    int                  `json:"anneal_iters"`
	AnnealInitTemp float64              `json:"anneal_init_temp"`
	AnnealCooling  float64              `json:"anneal_cooling"`
}

// SetDefaults applies sane defaults.
func (c *Config) SetDefaults() {
	if c.SenseName == "" {
		c.SenseName = "minimize"
	}
	if len(c.AltBandsM) == 0 {
		c.AltBandsM = []float64{60, 90, 120}
	}
	if c.RiskWeight == 0 {
		c.RiskWeight = 0.4
	}
	if c.AnnealIters == 0 {
		c.AnnealIters = 5000
	}
	if c.AnnealInitTemp == 0 {
		c.AnnealInitTemp = 1.0
	}
	if c.AnnealCooling == 0 {
		c.AnnealCooling = 0.995
	}
	if c.SenseName == "maximize" {
		c.Sense = model.Maximize
	} else {
		c.Sense = model.Minimize
	}
}

// Validate checks mandatory fields.
func (c Config) Validate() error {
	if c.SenseName != "minimize" && c.SenseName != "maximize" {
		return errors.New("sense must be minimize or maximize")
	}
	if c.AnnealCooling <= 0 || c.AnnealCooling >= 1 {
		return errors.New("anneal_cooling must be in (0,1)")
	}
	return nil
}

// Scorer is the pluggable domain scoring function. The core never hardcodes
// physics; deployments supply their own fuel/time/risk weighting.
type Scorer interface {
	Score(field model.NowcastField, req RouteRequest, waypoints []model.Waypoint) float64
}

// Classical is the deterministic, always-available optimizer. It must
// degrade to a naive feasible plan rather than exceed its budget, and must
// produce byte-identical plans for identical inputs.
type Classical interface {
	Solve(field model.NowcastField, req RouteRequest, cfg Config) (model.CandidatePlan, error)
}

// Alternative is the opportunistic higher-variance optimizer. It must honor
// ctx cancellation promptly; the dispatcher, not the solver, enforces the
// hard cutoff.
type Alternative interface {
	Optimize(ctx context.Context, field model.NowcastField, req RouteRequest, cfg Config) (model.CandidatePlan, error)
}
