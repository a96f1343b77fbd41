package fairness

import "github.com/Mindburn-Labs/pawl/pkg/risk"

// Rails is the 5-axis tree-of-life view for one epoch, every axis in [0, 1].
// Decay and Lifeforce derive from RoH; Fear, Pain, and Power are measured.
type Rails struct {
	Decay     float64 `json:"decay"`
	Lifeforce float64 `json:"lifeforce"`
	Fear      float64 `json:"fear"`
	Pain      float64 `json:"pain"`
	Power     float64 `json:"power"`
}

// RailsFromRoH derives the decay axes from a risk score: decay is RoH
// against the human-coupled ceiling, lifeforce its complement.
func RailsFromRoH(roh, fear, pain, power float64) Rails {
	decay := risk.Clamp01(roh / risk.DefaultCeiling)
	return Rails{
		Decay:     decay,
		Lifeforce: risk.Clamp01(1 - decay),
		Fear:      risk.Clamp01(fear),
		Pain:      risk.Clamp01(pain),
		Power:     risk.Clamp01(power),
	}
}

// CalmStableConfig bounds the averaged window for the calm_stable label.
type CalmStableConfig struct {
	WindowEpochs int     `json:"window_epochs"`
	LifeforceMin float64 `json:"lifeforce_min"`
	FearMax      float64 `json:"fear_max"`
	PainMax      float64 `json:"pain_max"`
	DecayMax     float64 `json:"decay_max"`
}

// OverloadedConfig bounds the overloaded label, applied pointwise per epoch
// and to the averaged window.
type OverloadedConfig struct {
	WindowEpochs int     `json:"window_epochs"`
	DecayMin     float64 `json:"decay_min"`
	PowerMin     float64 `json:"power_min"`
	LifeforceMax float64 `json:"lifeforce_max"`
	FearMin      float64 `json:"fear_min"`
	PainMin      float64 `json:"pain_min"`
}

// RecoveryConfig shapes the past-window / gap / recent-window comparison
// behind the recovery label.
type RecoveryConfig struct {
	WindowEpochs          int     `json:"window_epochs"`
	GapEpochs             int     `json:"gap_epochs"`
	RecoveryWindowEpochs  int     `json:"recovery_window_epochs"`
	MinOverloadedFraction float64 `json:"min_overloaded_fraction"`
	DeltaDecayMin         float64 `json:"delta_decay_min"`
	DeltaLifeforceMin     float64 `json:"delta_lifeforce_min"`
	DeltaFearMin          float64 `json:"delta_fear_min"`
	DeltaPainMin          float64 `json:"delta_pain_min"`

	Overloaded OverloadedConfig `json:"overloaded"`
}

// NatureConfig bundles the three label configurations.
type NatureConfig struct {
	CalmStable CalmStableConfig `json:"calm_stable"`
	Overloaded OverloadedConfig `json:"overloaded"`
	Recovery   RecoveryConfig   `json:"recovery"`
}

// Labels are the evaluated nature tokens for one epoch.
type Labels struct {
	CalmStable  bool `json:"calm_stable"`
	Overloaded  bool `json:"overloaded"`
	Recovery    bool `json:"recovery"`
	UnfairDrain bool `json:"unfair_drain"`
}

// EvalLabels computes all labels over a rails history, newest last. The
// drain flag is computed separately (it needs the peer cohort) and carried
// through.
func EvalLabels(history []Rails, unfairDrain bool, cfg NatureConfig) Labels {
	return Labels{
		CalmStable:  IsCalmStable(history, cfg.CalmStable),
		Overloaded:  IsOverloaded(history, cfg.Overloaded),
		Recovery:    IsRecovery(history, cfg.Recovery),
		UnfairDrain: unfairDrain,
	}
}

// IsCalmStable reports whether the averaged last window sits inside the calm
// corridor.
func IsCalmStable(history []Rails, cfg CalmStableConfig) bool {
	if cfg.WindowEpochs <= 0 || len(history) < cfg.WindowEpochs {
		return false
	}
	w := avgRails(history[len(history)-cfg.WindowEpochs:])
	return w.Lifeforce >= cfg.LifeforceMin &&
		w.Fear <= cfg.FearMax &&
		w.Pain <= cfg.PainMax &&
		w.Decay <= cfg.DecayMax
}

// Overloaded is the pointwise overload predicate for a single epoch.
func Overloaded(v Rails, cfg OverloadedConfig) bool {
	return v.Decay >= cfg.DecayMin &&
		v.Power >= cfg.PowerMin &&
		v.Lifeforce <= cfg.LifeforceMax &&
		v.Fear >= cfg.FearMin &&
		v.Pain >= cfg.PainMin
}

// IsOverloaded reports whether the averaged last window trips the overload
// predicate.
func IsOverloaded(history []Rails, cfg OverloadedConfig) bool {
	if cfg.WindowEpochs <= 0 || len(history) < cfg.WindowEpochs {
		return false
	}
	return Overloaded(avgRails(history[len(history)-cfg.WindowEpochs:]), cfg)
}

// IsRecovery reports whether a subject that was overloaded in the past
// window has since moved toward calm: decay, fear, and pain falling and
// lifeforce rising by at least the configured deltas across the gap.
//
// Non-actuating diagnostic; the label is only ever logged or folded into
// ComputeNoSaferAlternative.
func IsRecovery(history []Rails, cfg RecoveryConfig) bool {
	w, g, wr := cfg.WindowEpochs, cfg.GapEpochs, cfg.RecoveryWindowEpochs
	if w <= 0 || wr <= 0 || len(history) < w+g+wr {
		return false
	}

	recentStart := len(history) - wr
	gapStart := recentStart - g
	pastStart := gapStart - w

	past := history[pastStart:gapStart]
	recent := history[recentStart:]

	overloadedCount := 0
	for _, v := range past {
		if Overloaded(v, cfg.Overloaded) {
			overloadedCount++
		}
	}
	if float64(overloadedCount)/float64(len(past)) < cfg.MinOverloadedFraction {
		return false
	}

	pastAvg := avgRails(past)
	recentAvg := avgRails(recent)

	return pastAvg.Decay-recentAvg.Decay >= cfg.DeltaDecayMin &&
		recentAvg.Lifeforce-pastAvg.Lifeforce >= cfg.DeltaLifeforceMin &&
		pastAvg.Fear-recentAvg.Fear >= cfg.DeltaFearMin &&
		pastAvg.Pain-recentAvg.Pain >= cfg.DeltaPainMin
}

func avgRails(views []Rails) Rails {
	if len(views) == 0 {
		return Rails{}
	}
	var sum Rails
	for _, v := range views {
		sum.Decay += v.Decay
		sum.Lifeforce += v.Lifeforce
		sum.Fear += v.Fear
		sum.Pain += v.Pain
		sum.Power += v.Power
	}
	n := float64(len(views))
	return Rails{
		Decay:     risk.Clamp01(sum.Decay / n),
		Lifeforce: risk.Clamp01(sum.Lifeforce / n),
		Fear:      risk.Clamp01(sum.Fear / n),
		Pain:      risk.Clamp01(sum.Pain / n),
		Power:     risk.Clamp01(sum.Power / n),
	}
}
