// Package risk implements the risk-of-harm (RoH) invariant enforced at the
// boundary of every accepted transition.
//
// RoH is a normalized scalar. In human-coupled tiers it must stay at or
// below the configured ceiling, and it may never rise across an accepted
// transition. The one sanctioned exception is a risk-reducing downgrade,
// which must reduce risk strictly: a reversal that leaves risk unchanged
// does not qualify.
package risk

import (
	"errors"
	"fmt"
	"math"
)

// DefaultCeiling is the RoH ceiling for human-coupled tiers.
const DefaultCeiling = 0.30

var (
	ErrInvalidScore       = errors.New("roh score outside [0,1] or not a number")
	ErrCeilingExceeded    = errors.New("roh above ceiling")
	ErrRiskIncreased      = errors.New("roh increased across transition")
	ErrNotStrictlyReduced = errors.New("risk-reducing downgrade must strictly reduce roh")
)

// Invariant carries the configured ceiling. Zero value is unusable on
// purpose; construct with NewInvariant so the ceiling is always explicit.
type Invariant struct {
	ceiling float64
}

// NewInvariant builds an invariant checker for a ceiling in (0, 1].
func NewInvariant(ceiling float64) (Invariant, error) {
	if math.IsNaN(ceiling) || ceiling <= 0 || ceiling > 1 {
		return Invariant{}, fmt.Errorf("%w: ceiling %v", ErrInvalidScore, ceiling)
	}
	return Invariant{ceiling: ceiling}, nil
}

// Ceiling returns the configured ceiling.
func (i Invariant) Ceiling() float64 { return i.ceiling }

// Holds checks before/after against the ceiling and monotonicity rules.
// Scores are validated first: a NaN or out-of-range score fails closed.
func (i Invariant) Holds(before, after float64, riskReducingDowngrade bool) error {
	if !validScore(before) {
		return fmt.Errorf("%w: before=%v", ErrInvalidScore, before)
	}
	if !validScore(after) {
		return fmt.Errorf("%w: after=%v", ErrInvalidScore, after)
	}
	if after > i.ceiling {
		return fmt.Errorf("%w: after=%v ceiling=%v", ErrCeilingExceeded, after, i.ceiling)
	}
	if riskReducingDowngrade {
		if !(after < before) {
			return fmt.Errorf("%w: before=%v after=%v", ErrNotStrictlyReduced, before, after)
		}
		return nil
	}
	if after > before {
		return fmt.Errorf("%w: before=%v after=%v", ErrRiskIncreased, before, after)
	}
	return nil
}

func validScore(v float64) bool {
	return !math.IsNaN(v) && v >= 0 && v <= 1
}

// Clamp01 clips a raw score into [0,1]. NaN clamps to 1 (fail closed).
func Clamp01(v float64) float64 {
	switch {
	case math.IsNaN(v):
		return 1
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}
