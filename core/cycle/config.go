package cycle

import (
	"fmt"
	"time"
)

// Config defines per-cycle timing and selection parameters. It is static per
// deployment and hot-reloadable between cycles only, never mid-cycle.
type Config struct {
	// CadenceMS is the loop period.
	CadenceMS int `json:"cadence_ms"`
	// TotalDeadlineMS is the hard per-cycle budget from tick to commit.
	TotalDeadlineMS int `json:"total_deadline_ms"`
	// AlternativeEnabled gates the opportunistic solver entirely.
	AlternativeEnabled bool `json:"alternative_enabled"`
	// AlternativeMinBudgetMS is the minimum remaining time required to
	// bother launching the alternative solver.
	AlternativeMinBudgetMS int `json:"alternative_min_budget_ms"`
	// AlternativeShare is the fraction of remaining time granted to the
	// alternative solver as its sub-budget.
	AlternativeShare float64 `json:"alternative_share"`
	// ImprovementThreshold is the minimum field confidence at which the
	// alternative solver is expected to pay off. Stale, low-confidence
	// inputs give the annealer nothing to exploit.
	ImprovementThreshold float64 `json:"improvement_threshold"`
	// EpsilonRel is the relative epsilon for objective comparison.
	EpsilonRel float64 `json:"epsilon_rel"`
}

// SetDefaults applies sane defaults.
func (c *Config) SetDefaults() {
	if c.CadenceMS == 0 {
		c.CadenceMS = 30000
	}
	if c.TotalDeadlineMS == 0 {
		c.TotalDeadlineMS = 10000
	}
	if c.AlternativeMinBudgetMS == 0 {
		c.AlternativeMinBudgetMS = 500
	}
	if c.AlternativeShare == 0 {
		c.AlternativeShare = 0.5
	}
	if c.ImprovementThreshold == 0 {
		c.ImprovementThreshold = 0.5
	}
	if c.EpsilonRel == 0 {
		c.EpsilonRel = 1e-6
	}
}

// Validate checks mandatory fields. Configuration errors are the only
// failures allowed to halt the process, and only at startup.
func (c Config) Validate() error {
	if c.CadenceMS <= 0 {
		return fmt.Errorf("cadence_ms must be positive")
	}
	if c.TotalDeadlineMS <= 0 || c.TotalDeadlineMS > c.CadenceMS {
		return fmt.Errorf("total_deadline_ms must be in (0, cadence_ms]")
	}
	if c.AlternativeShare <= 0 || c.AlternativeShare > 1 {
		return fmt.Errorf("alternative_share must be in (0,1]")
	}
	if c.EpsilonRel < 0 {
		return fmt.Errorf("epsilon_rel must be non-negative")
	}
	return nil
}

// Cadence returns the loop period as a duration.
func (c Config) Cadence() time.Duration { return time.Duration(c.CadenceMS) * time.Millisecond }

// TotalDeadline returns the per-cycle budget as a duration.
func (c Config) TotalDeadline() time.Duration {
	return time.Duration(c.TotalDeadlineMS) * time.Millisecond
}

// AlternativeMinBudget returns the launch threshold as a duration.
func (c Config) AlternativeMinBudget() time.Duration {
	return time.Duration(c.AlternativeMinBudgetMS) * time.Millisecond
}
