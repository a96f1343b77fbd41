package envelope

import (
	"time"

	"github.com/Mindburn-Labs/pawl/pkg/risk"
)

// FenceState grades an advisory index.
type FenceState string

const (
	FenceInfo FenceState = "INFO"
	FenceWarn FenceState = "WARN"
	FenceRisk FenceState = "RISK"
)

// FenceConfig holds the advisory thresholds. Advisory only: crossing a
// threshold changes the recommendation, never the capability state.
type FenceConfig struct {
	UnfairDrainWarn      float64 `json:"unfairdrain_warn" yaml:"unfairdrain_warn"`
	UnfairDrainRisk      float64 `json:"unfairdrain_risk" yaml:"unfairdrain_risk"`
	CohesionGiniWarn     float64 `json:"cohesion_gini_warn" yaml:"cohesion_gini_warn"`
	CohesionGiniRisk     float64 `json:"cohesion_gini_risk" yaml:"cohesion_gini_risk"`
	RoHCooldownThreshold float64 `json:"roh_cooldown_threshold" yaml:"roh_cooldown_threshold"`
}

// DefaultFenceConfig returns the shipped thresholds.
func DefaultFenceConfig() FenceConfig {
	return FenceConfig{
		UnfairDrainWarn:      0.15,
		UnfairDrainRisk:      0.30,
		CohesionGiniWarn:     0.20,
		CohesionGiniRisk:     0.35,
		RoHCooldownThreshold: 0.25,
	}
}

// FenceInput is a read-only snapshot of one subject within its cohort.
// Rail scores are optional: a nil pointer means the rail was not measured
// this epoch, and derived indices stay nil rather than defaulting.
type FenceInput struct {
	ViewID     string `json:"view_id"`
	SubjectID  string `json:"subject_id"`
	CohortID   string `json:"cohort_id,omitempty"`
	EpochIndex int64  `json:"epoch_index"`

	RoHScore float64 `json:"roh_score"`

	TolFear      *float64 `json:"tol_fear,omitempty"`
	TolPain      *float64 `json:"tol_pain,omitempty"`
	TolDecay     *float64 `json:"tol_decay,omitempty"`
	TolLifeforce *float64 `json:"tol_lifeforce,omitempty"`

	CohortMeanFear *float64 `json:"cohort_mean_fear,omitempty"`
	CohortMeanPain *float64 `json:"cohort_mean_pain,omitempty"`

	CohortDecayGini *float64 `json:"cohort_decay_gini,omitempty"`
	CohortFearGini  *float64 `json:"cohort_fear_gini,omitempty"`
	CohortPainGini  *float64 `json:"cohort_pain_gini,omitempty"`
}

// FenceView is the derived advisory snapshot.
type FenceView struct {
	ViewID     string `json:"view_id"`
	SubjectID  string `json:"subject_id"`
	CohortID   string `json:"cohort_id,omitempty"`
	EpochIndex int64  `json:"epoch_index"`

	RoHScore float64 `json:"roh_score"`

	UnfairDrainIndex *float64 `json:"unfairdrain_index,omitempty"`
	UnfairFearIndex  *float64 `json:"unfairfear_index,omitempty"`
	UnfairPainIndex  *float64 `json:"unfairpain_index,omitempty"`

	SubjectUnfairDrainState  *FenceState `json:"subject_unfairdrain_state,omitempty"`
	SubjectUnfairStressState *FenceState `json:"subject_unfairstress_state,omitempty"`
	CohortBalanceState       *FenceState `json:"cohort_balance_state,omitempty"`

	UnfairDrainFlag         bool `json:"unfairdrain_flag"`
	CollectiveImbalanceFlag bool `json:"collective_imbalance_flag"`
	CohortCooldownAdvised   bool `json:"cohort_cooldown_advised"`

	TimestampUTC string `json:"timestamp_utc"`
}

// Monitor derives fence views from snapshots. Pure; the clock exists only
// to stamp views and is overridable for deterministic tests.
type Monitor struct {
	cfg   FenceConfig
	clock func() time.Time
}

// NewMonitor builds a monitor with the given thresholds.
func NewMonitor(cfg FenceConfig) *Monitor {
	return &Monitor{cfg: cfg, clock: time.Now}
}

// WithClock overrides the clock for deterministic testing.
func (m *Monitor) WithClock(clock func() time.Time) *Monitor {
	m.clock = clock
	return m
}

// Evaluate derives the advisory view for one snapshot. No capability,
// consent, or ledger state is touched.
func (m *Monitor) Evaluate(in FenceInput) FenceView {
	drainIdx := unfairDrainIndex(in.TolDecay, in.TolLifeforce)
	fearIdx, painIdx := unfairStressIndices(in.TolFear, in.TolPain, in.CohortMeanFear, in.CohortMeanPain)

	drainState := m.classify(drainIdx, m.cfg.UnfairDrainWarn, m.cfg.UnfairDrainRisk)
	stressState := m.classify(maxOpt(fearIdx, painIdx), m.cfg.UnfairDrainWarn, m.cfg.UnfairDrainRisk)
	balanceState := m.classify(
		maxOpt(maxOpt(in.CohortDecayGini, in.CohortFearGini), in.CohortPainGini),
		m.cfg.CohesionGiniWarn, m.cfg.CohesionGiniRisk,
	)

	drainFlag := drainState != nil && *drainState == FenceRisk
	imbalanceFlag := balanceState != nil && *balanceState == FenceRisk

	return FenceView{
		ViewID:     in.ViewID,
		SubjectID:  in.SubjectID,
		CohortID:   in.CohortID,
		EpochIndex: in.EpochIndex,
		RoHScore:   in.RoHScore,

		UnfairDrainIndex: drainIdx,
		UnfairFearIndex:  fearIdx,
		UnfairPainIndex:  painIdx,

		SubjectUnfairDrainState:  drainState,
		SubjectUnfairStressState: stressState,
		CohortBalanceState:       balanceState,

		UnfairDrainFlag:         drainFlag,
		CollectiveImbalanceFlag: imbalanceFlag,
		CohortCooldownAdvised:   in.RoHScore >= m.cfg.RoHCooldownThreshold || imbalanceFlag,

		TimestampUTC: m.clock().UTC().Format(time.RFC3339),
	}
}

// Recommend condenses a view into the kernel-facing advisory triple.
// A downgrade is recommended when the subject is risk-flagged while RoH sits
// in the cooldown band; balance reflects cohort dispersion.
func (m *Monitor) Recommend(view FenceView) ContextView {
	wants := view.UnfairDrainFlag && view.RoHScore >= m.cfg.RoHCooldownThreshold
	return ContextView{
		RequiresDowngrade:          wants,
		RequestCapabilityDowngrade: wants,
		BalanceMaintained:          !view.CollectiveImbalanceFlag,
	}
}

// unfairDrainIndex maps decay minus lifeforce into [0,1]; higher decay with
// lower lifeforce reads as heavier unfair drain.
func unfairDrainIndex(decay, lifeforce *float64) *float64 {
	if decay == nil || lifeforce == nil {
		return nil
	}
	v := risk.Clamp01((*decay - *lifeforce + 1) * 0.5)
	return &v
}

func unfairStressIndices(fear, pain, cohortMeanFear, cohortMeanPain *float64) (*float64, *float64) {
	var fearIdx, painIdx *float64
	if fear != nil && cohortMeanFear != nil {
		v := risk.Clamp01((*fear - *cohortMeanFear + 1) * 0.5)
		fearIdx = &v
	}
	if pain != nil && cohortMeanPain != nil {
		v := risk.Clamp01((*pain - *cohortMeanPain + 1) * 0.5)
		painIdx = &v
	}
	return fearIdx, painIdx
}

func (m *Monitor) classify(idx *float64, warn, riskAt float64) *FenceState {
	if idx == nil {
		return nil
	}
	state := FenceInfo
	switch {
	case *idx >= riskAt:
		state = FenceRisk
	case *idx >= warn:
		state = FenceWarn
	}
	return &state
}

func maxOpt(a, b *float64) *float64 {
	switch {
	case a == nil:
		return b
	case b == nil:
		return a
	case *a >= *b:
		return a
	default:
		return b
	}
}
