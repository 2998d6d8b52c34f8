package federation

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/kilianp07/routeloop/core/logger"
	"github.com/kilianp07/routeloop/core/metrics"
	"github.com/kilianp07/routeloop/core/model"
)

// Config defines federation parameters.
type Config struct {
	// RetryBounds caps trim/delay re-checks before approving with reduced
	// scope.
	RetryBounds int `json:"retry_bounds"`
	// VisibilityBudgetMS bounds the wait for claim-log visibility; past it
	// the coordinator approves locally with Degraded=true.
	VisibilityBudgetMS int `json:"visibility_budget_ms"`
	// RoleWeight is this actor's weight in the priority rule.
	RoleWeight int `json:"role_weight"`
	// PriorityRule orders the conflict tie-break components.
	PriorityRule []string `json:"priority_rule"`
	// DelayStepMS shifts a yielding plan per retry when no conflicting
	// window end is usable.
	DelayStepMS int `json:"delay_step_ms"`
	// AltMarginM is the half-height of the altitude band a plan reserves.
	AltMarginM float64 `json:"alt_margin_m"`
}

// SetDefaults applies sane defaults.
func (c *Config) SetDefaults() {
	if c.RetryBounds == 0 {
		c.RetryBounds = 2
	}
	if c.VisibilityBudgetMS == 0 {
		c.VisibilityBudgetMS = 1000
	}
	if len(c.PriorityRule) == 0 {
		c.PriorityRule = append([]string(nil), DefaultPriorityRule...)
	}
	if c.DelayStepMS == 0 {
		c.DelayStepMS = 5000
	}
	if c.AltMarginM == 0 {
		c.AltMarginM = 25
	}
}

// Validate checks mandatory fields.
func (c Config) Validate() error {
	if c.RetryBounds < 0 {
		return fmt.Errorf("retry_bounds must be non-negative")
	}
	return ValidatePriorityRule(c.PriorityRule)
}

// Coordinator reconciles candidate plans against the shared claim set.
// Consensus is leader-less and eventually reconciled: conflicts discovered
// after propagation delay are resolved retroactively by the same priority
// rule, with the losing actor re-routing on its next cycle.
type Coordinator struct {
	claims ClaimLog
	cfg    Config
	log    logger.Logger
	sink   metrics.ConflictRecorder
	now    func() time.Time
}

// NewCoordinator creates a coordinator. sink may be nil.
func NewCoordinator(claims ClaimLog, cfg Config, sink metrics.ConflictRecorder, log logger.Logger) (*Coordinator, error) {
	if claims == nil || log == nil {
		return nil, fmt.Errorf("federation: nil parameter provided to NewCoordinator")
	}
	return &Coordinator{claims: claims, cfg: cfg, log: log, sink: sink, now: time.Now}, nil
}

// DeriveClaims computes the space-time reservations a plan implies: one
// claim per corridor traversal, spanning the waypoint ETAs with the
// configured altitude margin.
func (c *Coordinator) DeriveClaims(plan model.CandidatePlan, cyc model.Cycle) []model.ResourceClaim {
	claims := make([]model.ResourceClaim, 0, len(plan.Waypoints))
	// The traversal window opens at the plan's reference (departure) time,
	// which delayPlan shifts together with the ETAs.
	prev := plan.ComputedAt
	if prev.IsZero() {
		prev = cyc.StartTime
	}
	for _, w := range plan.Waypoints {
		claims = append(claims, model.ResourceClaim{
			ID:         uuid.NewString(),
			ActorID:    plan.ActorID,
			CycleID:    cyc.ID,
			Corridor:   w.Corridor,
			AltMinM:    w.AltitudeM - c.cfg.AltMarginM,
			AltMaxM:    w.AltitudeM + c.cfg.AltMarginM,
			Start:      prev,
			End:        w.ETA,
			RoleWeight: c.cfg.RoleWeight,
			IssuedAt:   cyc.StartTime,
		})
		prev = w.ETA
	}
	return claims
}

// Reconcile approves the candidate plan against the current claim set and
// publishes the resulting claims. It never fails the cycle: unresolved
// conflicts and invisible logs degrade the approval instead.
func (c *Coordinator) Reconcile(ctx context.Context, cand model.CandidatePlan, cyc model.Cycle) (model.ApprovedPlan, error) {
	vctx, cancel := context.WithTimeout(ctx, time.Duration(c.cfg.VisibilityBudgetMS)*time.Millisecond)
	defer cancel()

	snapshot, err := c.claims.Snapshot(vctx)
	if err != nil {
		// Local progress over blocking: approve degraded and reconcile on
		// the next cycle.
		c.log.Warnf("claim log not visible, approving locally: %v", err)
		return model.ApprovedPlan{
			CandidatePlan: cand,
			Degraded:      true,
			Rationale:     "claim log unavailable, local approval",
		}, nil
	}

	others := c.foreignLive(snapshot, cand.ActorID)
	plan := cand.Clone()
	approved := model.ApprovedPlan{CandidatePlan: plan}

	for attempt := 0; attempt <= c.cfg.RetryBounds; attempt++ {
		ours := c.DeriveClaims(approved.CandidatePlan, cyc)
		conflict, blocker := firstConflict(ours, others)
		if conflict == nil {
			c.publish(vctx, ours, &approved)
			return approved, nil
		}

		c.recordConflict(cyc, *conflict, blocker, attempt, false)
		if Wins(c.cfg.PriorityRule, *conflict, blocker) {
			// The other party yields; its next cycle re-routes. Our plan
			// stands as proposed.
			c.publish(vctx, ours, &approved)
			return approved, nil
		}

		// We yield: delay the contested traversal past the blocking claim.
		delay := blocker.End.Sub(conflict.Start)
		if delay <= 0 {
			delay = time.Duration(c.cfg.DelayStepMS) * time.Millisecond
		}
		approved.CandidatePlan = delayPlan(approved.CandidatePlan, delay)
		approved.DelayedBy += delay
		approved.Rationale = fmt.Sprintf("yielded corridor %s to %s", conflict.Corridor, blocker.ActorID)
	}

	// Retries exhausted: approve with reduced scope rather than failing the
	// cycle outright.
	for {
		ours := c.DeriveClaims(approved.CandidatePlan, cyc)
		conflict, blocker := firstConflict(ours, others)
		if conflict == nil {
			break
		}
		c.recordConflict(cyc, *conflict, blocker, c.cfg.RetryBounds, true)
		approved.CandidatePlan = trimCorridor(approved.CandidatePlan, conflict.Corridor)
		approved.Trimmed = true
		approved.Degraded = true
		approved.Rationale = fmt.Sprintf("trimmed corridor %s after %d retries", conflict.Corridor, c.cfg.RetryBounds)
	}
	c.publish(vctx, c.DeriveClaims(approved.CandidatePlan, cyc), &approved)
	return approved, nil
}

// foreignLive returns live claims from other actors.
func (c *Coordinator) foreignLive(snapshot []model.ResourceClaim, actorID string) []model.ResourceClaim {
	var others []model.ResourceClaim
	for _, cl := range Live(snapshot, c.now()) {
		if cl.ActorID != actorID {
			others = append(others, cl)
		}
	}
	return others
}

// firstConflict returns the first of our claims overlapping a foreign live
// claim, with the blocking claim. Order is deterministic (claim order
// follows waypoint order).
func firstConflict(ours, others []model.ResourceClaim) (*model.ResourceClaim, model.ResourceClaim) {
	for i := range ours {
		for _, o := range others {
			if ours[i].Overlaps(o) {
				return &ours[i], o
			}
		}
	}
	return nil, model.ResourceClaim{}
}

func (c *Coordinator) publish(ctx context.Context, claims []model.ResourceClaim, approved *model.ApprovedPlan) {
	if err := c.claims.Append(ctx, claims); err != nil {
		c.log.Warnf("claim publication failed: %v", err)
		approved.Degraded = true
		if approved.Rationale == "" {
			approved.Rationale = "claim publication failed, local approval"
		}
	}
}

func (c *Coordinator) recordConflict(cyc model.Cycle, ours, blocker model.ResourceClaim, retries int, exhausted bool) {
	c.log.Infof("conflict on corridor %s with %s (attempt %d)", ours.Corridor, blocker.ActorID, retries)
	if c.sink == nil {
		return
	}
	winner := blocker.ActorID
	if Wins(c.cfg.PriorityRule, ours, blocker) {
		winner = ours.ActorID
	}
	ev := metrics.ConflictEvent{
		ActorID:  ours.ActorID,
		CycleID:  cyc.ID,
		Corridor: ours.Corridor,
		Winner:   winner,
		Retries:  retries,
		Resolved: !exhausted,
		Time:     c.now(),
	}
	if err := c.sink.RecordFederationConflict(ev); err != nil {
		c.log.Errorf("conflict metric: %v", err)
	}
}

// delayPlan shifts the departure reference and every waypoint ETA by d.
func delayPlan(plan model.CandidatePlan, d time.Duration) model.CandidatePlan {
	cp := plan.Clone()
	cp.ComputedAt = cp.ComputedAt.Add(d)
	for i := range cp.Waypoints {
		cp.Waypoints[i].ETA = cp.Waypoints[i].ETA.Add(d)
	}
	return cp
}

// trimCorridor drops the waypoints traversing the contested corridor.
func trimCorridor(plan model.CandidatePlan, corridor string) model.CandidatePlan {
	cp := plan.Clone()
	kept := cp.Waypoints[:0]
	for _, w := range cp.Waypoints {
		if w.Corridor != corridor {
			kept = append(kept, w)
		}
	}
	cp.Waypoints = kept
	return cp
}
