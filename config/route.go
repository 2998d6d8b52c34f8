package config

import (
	"fmt"
	"time"

	"github.com/kilianp07/routeloop/core/solver"
)

// RouteConfig describes the actor's nominal mission: the corridor legs to
// traverse each cycle and the speed envelope the solvers plan within.
type RouteConfig struct {
	Origin        solver.Point `json:"origin"`
	Legs          []solver.Leg `json:"legs"`
	CruiseSpeedMS float64      `json:"cruise_speed_ms"`
	MinSpeedMS    float64      `json:"min_speed_ms"`
	MaxSpeedMS    float64      `json:"max_speed_ms"`
}

// SetDefaults applies sane defaults, including a small demo route usable
// against the simulator grid.
func (c *RouteConfig) SetDefaults() {
	if c.CruiseSpeedMS == 0 {
		c.CruiseSpeedMS = 60
	}
	if c.MinSpeedMS == 0 {
		c.MinSpeedMS = 40
	}
	if c.MaxSpeedMS == 0 {
		c.MaxSpeedMS = 80
	}
	if len(c.Legs) == 0 {
		c.Legs = []solver.Leg{
			{Corridor: "C1", DistanceM: 12000, BearingDeg: 45, Col: 0, Row: 0, ExitLat: 48.95, ExitLon: 2.45},
			{Corridor: "C2", DistanceM: 9000, BearingDeg: 90, Col: 1, Row: 0, ExitLat: 48.95, ExitLon: 2.57},
			{Corridor: "C3", DistanceM: 15000, BearingDeg: 135, Col: 1, Row: 1, ExitLat: 48.85, ExitLon: 2.68},
		}
	}
}

// Validate checks the route is solvable.
func (c RouteConfig) Validate() error {
	req := c.Request("validate", time.Time{})
	if err := req.Validate(); err != nil {
		return fmt.Errorf("route: %w", err)
	}
	return nil
}

// Request builds the per-cycle routing problem for the given departure.
func (c RouteConfig) Request(actorID string, depart time.Time) solver.RouteRequest {
	return solver.RouteRequest{
		ActorID:       actorID,
		Origin:        c.Origin,
		Legs:          c.Legs,
		Depart:        depart,
		CruiseSpeedMS: c.CruiseSpeedMS,
		MinSpeedMS:    c.MinSpeedMS,
		MaxSpeedMS:    c.MaxSpeedMS,
	}
}
