package ledger

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/kilianp07/routeloop/core/model"
	"github.com/kilianp07/routeloop/core/solver"
)

// State is the lifecycle state of a ledger record. Transitions are strictly
// forward; no record re-enters an earlier state.
type State string

const (
	StateProposed  State = "proposed"
	StateApproved  State = "approved"
	StateCommitted State = "committed"
	StateArchived  State = "archived"
	StateRejected  State = "rejected"
)

// ErrBadTransition is returned on a backwards or skipping state change.
var ErrBadTransition = errors.New("ledger: invalid state transition")

// ErrChainBroken is returned when a chain walk detects tampering or a gap.
var ErrChainBroken = errors.New("ledger: hash chain broken")

// CanTransition reports whether s may move to next.
func (s State) CanTransition(next State) bool {
	switch s {
	case StateProposed:
		return next == StateApproved || next == StateRejected
	case StateApproved:
		return next == StateCommitted
	case StateCommitted:
		return next == StateArchived
	default:
		return false
	}
}

// Record is the committed, immutable unit of the ledger. prev_record_hash
// links records of one actor into a hash chain, giving tamper evidence
// without external storage.
type Record struct {
	CycleID        uint64           `json:"cycle_id"`
	ActorID        string           `json:"actor_id"`
	InputsHash     string           `json:"inputs_hash"`
	CandidateHash  string           `json:"candidate_hash"`
	ApprovedHash   string           `json:"approved_hash"`
	State          State            `json:"state"`
	PrevRecordHash string           `json:"prev_record_hash"`
	Timestamp      time.Time        `json:"timestamp"`
	Signatures     []string         `json:"signatures"`
	SolverKind     model.SolverKind `json:"solver_kind"`
	FallbackReason string           `json:"fallback_reason,omitempty"`
	Degraded       bool             `json:"degraded"`
	AnchorPending  bool             `json:"anchor_pending"`
	AnchorRef      string           `json:"anchor_ref,omitempty"`
}

// hashable is the canonical subset of a record covered by the chain hash.
// Lifecycle bookkeeping (State, anchor fields) is excluded: archiving a
// superseded record or resolving a pending anchor must not invalidate the
// chain.
type hashable struct {
	CycleID        uint64           `json:"cycle_id"`
	ActorID        string           `json:"actor_id"`
	InputsHash     string           `json:"inputs_hash"`
	CandidateHash  string           `json:"candidate_hash"`
	ApprovedHash   string           `json:"approved_hash"`
	PrevRecordHash string           `json:"prev_record_hash"`
	Timestamp      time.Time        `json:"timestamp"`
	Signatures     []string         `json:"signatures"`
	SolverKind     model.SolverKind `json:"solver_kind"`
	FallbackReason string           `json:"fallback_reason,omitempty"`
	Degraded       bool             `json:"degraded"`
}

// Hash returns the sha256 of the record's canonical content.
func (r Record) Hash() string {
	h := hashable{
		CycleID:        r.CycleID,
		ActorID:        r.ActorID,
		InputsHash:     r.InputsHash,
		CandidateHash:  r.CandidateHash,
		ApprovedHash:   r.ApprovedHash,
		PrevRecordHash: r.PrevRecordHash,
		Timestamp:      r.Timestamp,
		Signatures:     r.Signatures,
		SolverKind:     r.SolverKind,
		FallbackReason: r.FallbackReason,
		Degraded:       r.Degraded,
	}
	return hashJSON(h)
}

// HashInputs hashes the cycle's decision inputs. Replaying the same field
// and solver configuration reproduces the same hash.
func HashInputs(field model.NowcastField, cfg solver.Config) string {
	return hashJSON(struct {
		Field  model.NowcastField `json:"field"`
		Config solver.Config      `json:"config"`
	}{field, cfg})
}

// HashPlan hashes a candidate plan.
func HashPlan(p model.CandidatePlan) string { return hashJSON(p) }

// HashApproved hashes an approved plan.
func HashApproved(p model.ApprovedPlan) string { return hashJSON(p) }

func hashJSON(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		// All hashed types are plain structs; marshalling cannot fail.
		panic(fmt.Sprintf("ledger: marshal for hash: %v", err))
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// VerifyChain re-walks one actor's records in cycle order and checks every
// prev_record_hash against the recomputed hash of its predecessor. A
// tampered middle record surfaces as ErrChainBroken.
func VerifyChain(records []Record) error {
	prevHash := ""
	var prevCycle uint64
	for i, r := range records {
		if r.State == StateRejected {
			// Rejected cycles are terminal outside the chain.
			continue
		}
		if i > 0 && r.CycleID <= prevCycle {
			return fmt.Errorf("%w: cycle %d out of order after %d", ErrChainBroken, r.CycleID, prevCycle)
		}
		if r.PrevRecordHash != prevHash {
			return fmt.Errorf("%w: record for cycle %d expects prev %q, chain has %q", ErrChainBroken, r.CycleID, r.PrevRecordHash, prevHash)
		}
		prevHash = r.Hash()
		prevCycle = r.CycleID
	}
	return nil
}
