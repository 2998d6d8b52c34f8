package model

import (
	"fmt"
	"time"
)

// NowcastField is a typed snapshot of short-horizon environment data used by
// the solvers. Wind components are stored row-major on a Cols x Rows grid.
type NowcastField struct {
	SourceVersion string    `json:"source_version"`
	GeneratedAt   time.Time `json:"generated_at"`
	ValidFrom     time.Time `json:"valid_from"`
	ValidUntil    time.Time `json:"valid_until"`

	Cols  int       `json:"cols"`
	Rows  int       `json:"rows"`
	WindU []float64 `json:"wind_u"` // eastward component, m/s
	WindV []float64 `json:"wind_v"` // northward component, m/s

	// Scalar risk indices in [0,1].
	TurbulenceRisk float64 `json:"turbulence_risk"`
	IcingRisk      float64 `json:"icing_risk"`
	ConvectiveRisk float64 `json:"convective_risk"`

	// Stale marks a field reused past its validity window because the
	// upstream feed was unreachable or late. Confidence is reduced
	// accordingly but the field remains usable.
	Stale      bool    `json:"stale"`
	Confidence float64 `json:"confidence"`
}

// Validate checks grid dimensions and the validity window.
func (f NowcastField) Validate() error {
	if f.Cols <= 0 || f.Rows <= 0 {
		return fmt.Errorf("grid dimensions must be positive, got %dx%d", f.Cols, f.Rows)
	}
	if n := f.Cols * f.Rows; len(f.WindU) != n || len(f.WindV) != n {
		return fmt.Errorf("wind grids must hold %d cells, got u=%d v=%d", n, len(f.WindU), len(f.WindV))
	}
	if !f.ValidUntil.After(f.ValidFrom) {
		return fmt.Errorf("valid_until must be after valid_from")
	}
	if f.Confidence < 0 || f.Confidence > 1 {
		return fmt.Errorf("confidence must be in [0,1], got %f", f.Confidence)
	}
	return nil
}

// ValidAt reports whether the field's validity window covers t.
func (f NowcastField) ValidAt(t time.Time) bool {
	return !t.Before(f.ValidFrom) && t.Before(f.ValidUntil)
}

// Wind returns the wind components at the given cell.
func (f NowcastField) Wind(col, row int) (u, v float64) {
	i := row*f.Cols + col
	return f.WindU[i], f.WindV[i]
}

// Clone returns a deep copy. The adapter hands copies to the dispatcher so
// a later upstream refresh can never mutate an in-flight cycle's input.
func (f NowcastField) Clone() NowcastField {
	cp := f
	cp.WindU = append([]float64(nil), f.WindU...)
	cp.WindV = append([]float64(nil), f.WindV...)
	return cp
}
