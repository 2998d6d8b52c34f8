package ledger

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/kilianp07/routeloop/core/model"
	"github.com/kilianp07/routeloop/core/solver"
	"github.com/kilianp07/routeloop/infra/logger"
)

type stubAnchor struct {
	ref string
	err error
	got []string
}

func (a *stubAnchor) Submit(_ context.Context, digest string) (string, error) {
	a.got = append(a.got, digest)
	return a.ref, a.err
}

func ledgerCfg() Config {
	cfg := Config{}
	cfg.SetDefaults()
	return cfg
}

func testInputs() (model.NowcastField, solver.Config) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	field := model.NowcastField{
		SourceVersion: "v1", GeneratedAt: now, ValidFrom: now, ValidUntil: now.Add(time.Hour),
		Cols: 1, Rows: 1, WindU: []float64{0}, WindV: []float64{0},
		TurbulenceRisk: 0, IcingRisk: 0, ConvectiveRisk: 0,
		Confidence: 1,
	}
	scfg := solver.Config{}
	scfg.SetDefaults()
	return field, scfg
}

func testCycle(id uint64) model.Cycle {
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC).Add(time.Duration(id) * time.Minute)
	return model.Cycle{ID: id, ActorID: "actor-a", StartTime: start, Deadline: start.Add(10 * time.Second)}
}

func testPlan(id uint64) model.CandidatePlan {
	cyc := testCycle(id)
	return model.CandidatePlan{
		ActorID:    "actor-a",
		CycleID:    id,
		Waypoints:  []model.Waypoint{{Corridor: "C1", AltitudeM: 90, ETA: cyc.StartTime.Add(30 * time.Second)}},
		Objective:  42,
		Solver:     model.SolverClassical,
		ComputedAt: cyc.StartTime,
	}
}

func commitCycle(t *testing.T, l *Ledger, id uint64) Record {
	t.Helper()
	field, scfg := testInputs()
	cand := testPlan(id)
	rec := l.Propose(testCycle(id), field, scfg, cand)
	rec, err := l.Approve(rec, model.ApprovedPlan{CandidatePlan: cand})
	if err != nil {
		t.Fatalf("approve cycle %d: %v", id, err)
	}
	rec, err = l.Commit(context.Background(), rec, "")
	if err != nil {
		t.Fatalf("commit cycle %d: %v", id, err)
	}
	return rec
}

func TestLedgerLifecycle(t *testing.T) {
	anch := &stubAnchor{ref: "anchor://1"}
	l, err := NewLedger(NewMemoryStore(), anch, ledgerCfg(), nil, logger.NopLogger{})
	if err != nil {
		t.Fatalf("ledger: %v", err)
	}

	rec := commitCycle(t, l, 1)
	if rec.State != StateCommitted || rec.PrevRecordHash != "" {
		t.Fatalf("genesis commit malformed: %+v", rec)
	}
	if rec.AnchorPending || rec.AnchorRef != "anchor://1" {
		t.Fatalf("anchor ref not recorded: %+v", rec)
	}
	if len(rec.Signatures) != 1 {
		t.Fatalf("commit must self-sign, got %v", rec.Signatures)
	}
	if len(anch.got) != 1 || anch.got[0] != rec.Hash() {
		t.Fatalf("anchor must receive the record digest")
	}
}

func TestLedgerChainsAndArchives(t *testing.T) {
	l, err := NewLedger(NewMemoryStore(), nil, ledgerCfg(), nil, logger.NopLogger{})
	if err != nil {
		t.Fatalf("ledger: %v", err)
	}

	first := commitCycle(t, l, 1)
	second := commitCycle(t, l, 2)
	if second.PrevRecordHash != first.Hash() {
		t.Fatalf("second record must chain onto the first")
	}

	recs, err := l.Query(context.Background(), Query{ActorID: "actor-a"})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("expected 2 records, got %d", len(recs))
	}
	if recs[0].State != StateArchived {
		t.Fatalf("superseded record must be archived, got %s", recs[0].State)
	}
	if recs[1].State != StateCommitted {
		t.Fatalf("latest record must stay committed, got %s", recs[1].State)
	}
	if err := l.VerifyActor(context.Background(), "actor-a"); err != nil {
		t.Fatalf("chain verify after archive: %v", err)
	}
}

func TestLedgerCommitsPendingOnAnchorFailure(t *testing.T) {
	anch := &stubAnchor{err: errors.New("anchor down")}
	l, err := NewLedger(NewMemoryStore(), anch, ledgerCfg(), nil, logger.NopLogger{})
	if err != nil {
		t.Fatalf("ledger: %v", err)
	}

	rec := commitCycle(t, l, 1)
	if !rec.AnchorPending {
		t.Fatalf("anchor failure must flag the record pending")
	}

	rec, err = l.ResolveAnchor(context.Background(), rec, "anchor://late")
	if err != nil {
		t.Fatalf("resolve anchor: %v", err)
	}
	if rec.AnchorPending || rec.AnchorRef != "anchor://late" {
		t.Fatalf("resolution not applied: %+v", rec)
	}
	if err := l.VerifyActor(context.Background(), "actor-a"); err != nil {
		t.Fatalf("resolution must not break the chain: %v", err)
	}
}

func TestLedgerRejectsOutOfOrderCommit(t *testing.T) {
	l, err := NewLedger(NewMemoryStore(), nil, ledgerCfg(), nil, logger.NopLogger{})
	if err != nil {
		t.Fatalf("ledger: %v", err)
	}

	commitCycle(t, l, 2)
	field, scfg := testInputs()
	rec := l.Propose(testCycle(1), field, scfg, testPlan(1))
	rec, err = l.Approve(rec, model.ApprovedPlan{CandidatePlan: testPlan(1)})
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	if _, err := l.Commit(context.Background(), rec, ""); !errors.Is(err, ErrBadTransition) {
		t.Fatalf("stale cycle commit must be refused, got %v", err)
	}
}

func TestLedgerRejectRecordsNoDecision(t *testing.T) {
	l, err := NewLedger(NewMemoryStore(), nil, ledgerCfg(), nil, logger.NopLogger{})
	if err != nil {
		t.Fatalf("ledger: %v", err)
	}

	field, scfg := testInputs()
	rec := l.Propose(testCycle(1), field, scfg, model.CandidatePlan{ActorID: "actor-a", CycleID: 1})
	rec, err = l.Reject(context.Background(), rec, "classical_failed")
	if err != nil {
		t.Fatalf("reject: %v", err)
	}
	if rec.State != StateRejected || rec.FallbackReason != "classical_failed" {
		t.Fatalf("rejection malformed: %+v", rec)
	}

	// The next cycle commits as genesis; rejections stay outside the chain.
	next := commitCycle(t, l, 2)
	if next.PrevRecordHash != "" {
		t.Fatalf("rejected record must not anchor the chain")
	}
	if err := l.VerifyActor(context.Background(), "actor-a"); err != nil {
		t.Fatalf("verify with rejection: %v", err)
	}
}

func TestLedgerForwardOnlyTransitions(t *testing.T) {
	l, err := NewLedger(NewMemoryStore(), nil, ledgerCfg(), nil, logger.NopLogger{})
	if err != nil {
		t.Fatalf("ledger: %v", err)
	}

	rec := commitCycle(t, l, 1)
	if _, err := l.Approve(rec, model.ApprovedPlan{}); !errors.Is(err, ErrBadTransition) {
		t.Fatalf("committed record must not re-approve, got %v", err)
	}
	if _, err := l.Reject(context.Background(), rec, "x"); !errors.Is(err, ErrBadTransition) {
		t.Fatalf("committed record must not reject, got %v", err)
	}
	if _, err := l.Commit(context.Background(), rec, ""); !errors.Is(err, ErrBadTransition) {
		t.Fatalf("double commit must be refused, got %v", err)
	}
}

func TestNewLedgerNilParams(t *testing.T) {
	if _, err := NewLedger(nil, nil, ledgerCfg(), nil, logger.NopLogger{}); err == nil {
		t.Fatalf("nil store must be rejected")
	}
}
