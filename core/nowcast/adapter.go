package nowcast

import (
	"context"
	"sync"
	"time"

	"github.com/kilianp07/routeloop/core/logger"
	"github.com/kilianp07/routeloop/core/metrics"
	"github.com/kilianp07/routeloop/core/model"
)

// staleDecay is the confidence multiplier applied per consecutive reuse of
// the last-known-good field.
const staleDecay = 0.7

// Adapter normalizes upstream feed data for the dispatcher. It validates
// schema and timestamp monotonicity and falls back to the most recent valid
// snapshot, marked stale with reduced confidence, when the upstream is
// unreachable or late by more than one cadence period. Fetch never fails:
// a usable field always comes back.
type Adapter struct {
	feed    Feed
	cadence time.Duration
	log     logger.Logger
	sink    metrics.FreshnessRecorder
	now     func() time.Time

	mu       sync.Mutex
	lastGood model.NowcastField
	hasGood  bool
	misses   int
}

// NewAdapter creates an adapter over the given feed. sink may be nil.
func NewAdapter(feed Feed, cadence time.Duration, sink metrics.FreshnessRecorder, log logger.Logger) *Adapter {
	return &Adapter{
		feed:    feed,
		cadence: cadence,
		log:     log,
		sink:    sink,
		now:     time.Now,
	}
}

// Fetch returns a fresh field when the upstream delivers in time, otherwise
// the last-known-good field marked stale. The upstream call is bounded by
// one cadence period so a hung feed cannot eat the cycle budget.
func (a *Adapter) Fetch(ctx context.Context, horizon time.Duration) model.NowcastField {
	fctx, cancel := context.WithTimeout(ctx, a.cadence)
	defer cancel()

	field, err := a.feed.Fetch(fctx, horizon)
	if err == nil {
		err = a.accept(field)
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if err != nil {
		a.misses++
		a.log.Warnf("nowcast fetch failed (%d consecutive): %v", a.misses, err)
		return a.fallbackLocked()
	}
	a.misses = 0
	// An upstream can keep serving old-but-monotonic data. Such a field is
	// still the best available, but past its validity window it goes out
	// stale with reduced confidence.
	if !field.ValidAt(a.now()) {
		a.log.Warnf("nowcast field already expired at fetch (valid until %s)", field.ValidUntil)
		field.Stale = true
		field.Confidence *= staleDecay
	}
	a.lastGood = field
	a.hasGood = true
	a.emit(field)
	return field.Clone()
}

// accept validates schema and timestamp monotonicity.
func (a *Adapter) accept(field model.NowcastField) error {
	if err := field.Validate(); err != nil {
		return err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.hasGood && field.GeneratedAt.Before(a.lastGood.GeneratedAt) {
		return ErrFeedUnavailable
	}
	return nil
}

// fallbackLocked reuses the last-known-good snapshot with inflated
// uncertainty, or a neutral calm field when no snapshot exists yet.
func (a *Adapter) fallbackLocked() model.NowcastField {
	if !a.hasGood {
		f := neutralField(a.now(), a.cadence)
		a.emit(f)
		return f
	}
	f := a.lastGood.Clone()
	f.Stale = true
	for i := 0; i < a.misses; i++ {
		f.Confidence *= staleDecay
	}
	a.emit(f)
	return f
}

func (a *Adapter) emit(f model.NowcastField) {
	if a.sink == nil {
		return
	}
	ev := metrics.FreshnessEvent{
		Age:        a.now().Sub(f.GeneratedAt),
		Stale:      f.Stale,
		Confidence: f.Confidence,
		Time:       a.now(),
	}
	if err := a.sink.RecordNowcastFreshness(ev); err != nil {
		a.log.Errorf("freshness metric: %v", err)
	}
}

// neutralField is the degenerate calm-atmosphere field used before any
// upstream data has ever arrived. Marked stale with minimal confidence so
// downstream consumers treat it as a last resort, not a forecast.
func neutralField(now time.Time, cadence time.Duration) model.NowcastField {
	return model.NowcastField{
		SourceVersion: "neutral",
		GeneratedAt:   now,
		ValidFrom:     now,
		ValidUntil:    now.Add(cadence),
		Cols:          1,
		Rows:          1,
		WindU:         []float64{0},
		WindV:         []float64{0},
		Stale:         true,
		Confidence:    0.1,
	}
}
