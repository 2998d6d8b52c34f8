package ledger

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/kilianp07/routeloop/core/anchor"
	"github.com/kilianp07/routeloop/core/logger"
	"github.com/kilianp07/routeloop/core/metrics"
	"github.com/kilianp07/routeloop/core/model"
	"github.com/kilianp07/routeloop/core/solver"
)

// Config defines ledger persistence and anchoring parameters.
type Config struct {
	// Backend selects the record store: "memory" or "sqlite".
	Backend string `json:"backend"`
	// Path is the sqlite database file. Required for the sqlite backend.
	Path string `json:"path"`
	// AnchorGraceMS bounds the wait on the external anchor at commit time.
	// Past it the record commits locally flagged anchor_pending.
	AnchorGraceMS int `json:"anchor_grace_ms"`
}

// SetDefaults applies sane defaults.
func (c *Config) SetDefaults() {
	if c.Backend == "" {
		c.Backend = "memory"
	}
	if c.AnchorGraceMS == 0 {
		c.AnchorGraceMS = 2000
	}
}

// Validate checks mandatory fields.
func (c Config) Validate() error {
	switch c.Backend {
	case "memory":
	case "sqlite":
		if c.Path == "" {
			return fmt.Errorf("path is required for the sqlite backend")
		}
	default:
		return fmt.Errorf("unknown backend %q", c.Backend)
	}
	return nil
}

// NewStore builds the configured record store.
func NewStore(cfg Config) (Store, error) {
	if cfg.Backend == "sqlite" {
		return NewSQLiteStore(cfg.Path)
	}
	return NewMemoryStore(), nil
}

// Ledger runs the per-actor record lifecycle: proposed, approved, committed,
// archived, with rejected as the terminal branch for cycles that produced no
// decision. Committed records chain through prev_record_hash; commits never
// block past the anchor grace.
type Ledger struct {
	store  Store
	anchor anchor.Anchor
	cfg    Config
	log    logger.Logger
	sink   metrics.CommitRecorder
	now    func() time.Time

	mu sync.Mutex
}

// NewLedger creates a ledger over store. anch and sink may be nil.
func NewLedger(store Store, anch anchor.Anchor, cfg Config, sink metrics.CommitRecorder, log logger.Logger) (*Ledger, error) {
	if store == nil || log == nil {
		return nil, fmt.Errorf("ledger: nil parameter provided to NewLedger")
	}
	if anch == nil {
		anch = anchor.Nop{}
	}
	return &Ledger{store: store, anchor: anch, cfg: cfg, log: log, sink: sink, now: time.Now}, nil
}

// Propose opens a record for the cycle's candidate decision. Nothing is
// persisted until the record reaches a terminal state.
func (l *Ledger) Propose(cyc model.Cycle, field model.NowcastField, scfg solver.Config, cand model.CandidatePlan) Record {
	return Record{
		CycleID:       cyc.ID,
		ActorID:       cyc.ActorID,
		InputsHash:    HashInputs(field, scfg),
		CandidateHash: HashPlan(cand),
		State:         StateProposed,
		SolverKind:    cand.Solver,
		Timestamp:     cyc.StartTime,
	}
}

// Approve moves a proposed record to approved with the coordination result.
func (l *Ledger) Approve(rec Record, approved model.ApprovedPlan) (Record, error) {
	if !rec.State.CanTransition(StateApproved) {
		return rec, fmt.Errorf("%w: %s -> %s", ErrBadTransition, rec.State, StateApproved)
	}
	rec.State = StateApproved
	rec.ApprovedHash = HashApproved(approved)
	rec.Degraded = rec.Degraded || approved.Degraded
	return rec, nil
}

// Reject terminates a proposed record for a cycle that produced no decision
// and persists it outside the chain.
func (l *Ledger) Reject(ctx context.Context, rec Record, reason string) (Record, error) {
	if !rec.State.CanTransition(StateRejected) {
		return rec, fmt.Errorf("%w: %s -> %s", ErrBadTransition, rec.State, StateRejected)
	}
	rec.State = StateRejected
	rec.FallbackReason = reason
	rec.Timestamp = l.now()
	if err := l.store.Append(ctx, rec); err != nil {
		return rec, fmt.Errorf("persist rejected record: %w", err)
	}
	l.emit(rec)
	return rec, nil
}

// Commit chains an approved record onto the actor's ledger and forwards its
// digest to the anchor. Anchor failure within the grace commits locally with
// AnchorPending set; the commit itself never fails on anchoring.
func (l *Ledger) Commit(ctx context.Context, rec Record, fallbackReason string) (Record, error) {
	if !rec.State.CanTransition(StateCommitted) {
		return rec, fmt.Errorf("%w: %s -> %s", ErrBadTransition, rec.State, StateCommitted)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	head, hasHead, err := l.store.Head(ctx, rec.ActorID)
	if err != nil {
		return rec, fmt.Errorf("read chain head: %w", err)
	}
	if hasHead && rec.CycleID <= head.CycleID {
		return rec, fmt.Errorf("%w: cycle %d not after head cycle %d", ErrBadTransition, rec.CycleID, head.CycleID)
	}

	rec.State = StateCommitted
	rec.FallbackReason = fallbackReason
	rec.Timestamp = l.now()
	if hasHead {
		rec.PrevRecordHash = head.Hash()
	}
	rec.Signatures = []string{sign(rec)}

	digest := rec.Hash()
	actx, cancel := context.WithTimeout(ctx, time.Duration(l.cfg.AnchorGraceMS)*time.Millisecond)
	ref, aerr := l.anchor.Submit(actx, digest)
	cancel()
	if aerr != nil {
		l.log.Warnf("anchor submission failed for cycle %d, committing pending: %v", rec.CycleID, aerr)
		rec.AnchorPending = true
	} else {
		rec.AnchorRef = ref
	}

	if err := l.store.Append(ctx, rec); err != nil {
		return rec, fmt.Errorf("persist committed record: %w", err)
	}

	// The superseded head stays queryable for audit; only its lifecycle
	// state moves forward.
	if hasHead && head.State == StateCommitted {
		head.State = StateArchived
		if err := l.store.Update(ctx, head); err != nil {
			l.log.Errorf("archive superseded record cycle %d: %v", head.CycleID, err)
		}
	}

	l.emit(rec)
	return rec, nil
}

// ResolveAnchor clears the pending flag once a deferred anchor submission
// succeeds out of band.
func (l *Ledger) ResolveAnchor(ctx context.Context, rec Record, ref string) (Record, error) {
	if !rec.AnchorPending {
		return rec, nil
	}
	rec.AnchorPending = false
	rec.AnchorRef = ref
	if err := l.store.Update(ctx, rec); err != nil {
		return rec, fmt.Errorf("resolve anchor: %w", err)
	}
	return rec, nil
}

// Query returns records matching q.
func (l *Ledger) Query(ctx context.Context, q Query) ([]Record, error) {
	return l.store.Query(ctx, q)
}

// VerifyActor re-walks the actor's full chain from the store.
func (l *Ledger) VerifyActor(ctx context.Context, actorID string) error {
	recs, err := l.store.Query(ctx, Query{ActorID: actorID})
	if err != nil {
		return err
	}
	return VerifyChain(recs)
}

// Close releases the underlying store.
func (l *Ledger) Close() error { return l.store.Close() }

func (l *Ledger) emit(rec Record) {
	if l.sink == nil {
		return
	}
	ev := metrics.CommitEvent{
		ActorID:       rec.ActorID,
		CycleID:       rec.CycleID,
		State:         string(rec.State),
		AnchorPending: rec.AnchorPending,
		Time:          rec.Timestamp,
	}
	if err := l.sink.RecordLedgerCommit(ev); err != nil {
		l.log.Errorf("commit metric: %v", err)
	}
}

// sign produces the actor's content signature over the decision hashes.
func sign(rec Record) string {
	sum := sha256.Sum256([]byte(rec.ActorID + "|" + rec.InputsHash + "|" + rec.CandidateHash + "|" + rec.ApprovedHash))
	return hex.EncodeToString(sum[:])
}
