package solver

import (
	"math"

	"github.com/kilianp07/routeloop/core/model"
)

// WindRiskScorer scores a plan as traversal time plus a weighted risk
// exposure term. Lower is better.
type WindRiskScorer struct {
	RiskWeight float64
}

// legGroundSpeed projects the cell wind onto the leg bearing and adds it to
// the cruise speed. The result is clamped to stay positive.
func legGroundSpeed(field model.NowcastField, leg Leg, cruise float64) float64 {
	rad := leg.BearingDeg * math.Pi / 180
	u, v := field.Wind(leg.Col, leg.Row)
	tail := u*math.Sin(rad) + v*math.Cos(rad)
	gs := cruise + tail
	if gs < 1 {
		gs = 1
	}
	return gs
}

// riskRate combines the field's scalar indices with an altitude factor:
// icing grows with altitude, convective exposure shrinks.
func riskRate(field model.NowcastField, altitudeM, maxBandM float64) float64 {
	altFrac := 0.0
	if maxBandM > 0 {
		altFrac = altitudeM / maxBandM
	}
	return field.TurbulenceRisk + field.IcingRisk*altFrac + field.ConvectiveRisk*(1-altFrac)
}

// Score implements Scorer. Time is measured from consecutive waypoint ETAs;
// risk is accumulated per leg over the time spent inside the cell.
func (s WindRiskScorer) Score(field model.NowcastField, req RouteRequest, waypoints []model.Waypoint) float64 {
	if len(waypoints) == 0 {
		return math.Inf(1)
	}
	maxBand := 0.0
	for _, w := range waypoints {
		if w.AltitudeM > maxBand {
			maxBand = w.AltitudeM
		}
	}
	total := 0.0
	prev := req.Depart
	for i, w := range waypoints {
		dt := w.ETA.Sub(prev).Seconds()
		prev = w.ETA
		if dt <= 0 || i >= len(req.Legs) {
			continue
		}
		rate := riskRate(field, w.AltitudeM, maxBand)
		total += dt + s.RiskWeight*rate*dt
	}
	// Stale fields carry inflated uncertainty: widen the objective so a
	// fresh-field plan is preferred when both are on the table.
	if field.Stale && field.Confidence > 0 {
		total /= field.Confidence
	}
	return total
}
