package simulator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/kilianp07/routeloop/core/model"
	"github.com/kilianp07/routeloop/core/nowcast"
)

// Config tunes the synthetic nowcast source.
type Config struct {
	Cols int   `json:"cols"`
	Rows int   `json:"rows"`
	Seed uint64 `json:"seed"`
	// MeanWindMS and WindStdMS parameterize the per-cell wind components.
	MeanWindMS float64 `json:"mean_wind_ms"`
	WindStdMS  float64 `json:"wind_std_ms"`
	// RiskLevel caps the sampled risk rates.
	RiskLevel  float64 `json:"risk_level"`
	ValidityMS int     `json:"validity_ms"`
	// FailEvery injects an upstream failure on every nth fetch. Zero
	// disables injection.
	FailEvery int `json:"fail_every"`
}

// SetDefaults applies sane defaults.
func (c *Config) SetDefaults() {
	if c.Cols == 0 {
		c.Cols = 8
	}
	if c.Rows == 0 {
		c.Rows = 8
	}
	if c.Seed == 0 {
		c.Seed = 1
	}
	if c.MeanWindMS == 0 {
		c.MeanWindMS = 6
	}
	if c.WindStdMS == 0 {
		c.WindStdMS = 3
	}
	if c.RiskLevel == 0 {
		c.RiskLevel = 0.3
	}
	if c.ValidityMS == 0 {
		c.ValidityMS = 120000
	}
}

// Feed generates synthetic nowcast fields. Fields evolve between fetches
// and the generation timestamp is strictly monotonic, so the adapter's
// schema and freshness checks exercise the same paths as a real source.
type Feed struct {
	cfg  Config
	wind distuv.Normal
	risk distuv.Uniform
	now  func() time.Time

	mu      sync.Mutex
	fetches int
}

// NewFeed creates a deterministic feed for the given seed.
func NewFeed(cfg Config) *Feed {
	src := rand.NewSource(cfg.Seed)
	return &Feed{
		cfg:  cfg,
		wind: distuv.Normal{Mu: cfg.MeanWindMS, Sigma: cfg.WindStdMS, Src: src},
		risk: distuv.Uniform{Min: 0, Max: cfg.RiskLevel, Src: src},
		now:  time.Now,
	}
}

// Fetch implements nowcast.Feed.
func (f *Feed) Fetch(_ context.Context, horizon time.Duration) (model.NowcastField, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetches++
	if f.cfg.FailEvery > 0 && f.fetches%f.cfg.FailEvery == 0 {
		return model.NowcastField{}, fmt.Errorf("%w: injected outage", nowcast.ErrFeedUnavailable)
	}

	cells := f.cfg.Cols * f.cfg.Rows
	field := model.NowcastField{
		SourceVersion: fmt.Sprintf("sim-%d", f.fetches),
		GeneratedAt:   f.now(),
		Cols:          f.cfg.Cols,
		Rows:          f.cfg.Rows,
		WindU:         make([]float64, cells),
		WindV:         make([]float64, cells),
		Confidence:    0.85 + 0.1*f.risk.Rand()/f.cfg.RiskLevel,
	}
	field.ValidFrom = field.GeneratedAt
	validity := time.Duration(f.cfg.ValidityMS) * time.Millisecond
	if horizon > validity {
		validity = horizon
	}
	field.ValidUntil = field.GeneratedAt.Add(validity)
	// Risks are sampled per cell and averaged into the field's scalar
	// indices.
	var turb, icing, conv float64
	for i := 0; i < cells; i++ {
		field.WindU[i] = f.wind.Rand() - f.cfg.MeanWindMS
		field.WindV[i] = f.wind.Rand() - f.cfg.MeanWindMS
		turb += f.risk.Rand()
		icing += f.risk.Rand() * 0.5
		conv += f.risk.Rand() * 0.7
	}
	n := float64(cells)
	field.TurbulenceRisk = turb / n
	field.IcingRisk = icing / n
	field.ConvectiveRisk = conv / n
	return field, nil
}
