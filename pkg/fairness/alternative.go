package fairness

import "github.com/Mindburn-Labs/pawl/pkg/envelope"

// Evidence is everything ComputeNoSaferAlternative may look at. Diagnostic
// signals reach reversal decisions through this struct and nowhere else.
type Evidence struct {
	Labels Labels             `json:"labels"`
	Drain  DrainFlag          `json:"drain"`
	Fence  envelope.FenceView `json:"fence"`
}

// ComputeNoSaferAlternative decides whether the evidence proves that no
// option safer than a capability downgrade remains. Fail-closed: every
// signal must agree, and any trace of an untried alternative keeps the
// result false.
//
//   - the subject must be overloaded over its recent window,
//   - the drain analysis must show unfair lifeforce loss against peers,
//   - the subject must not already be trending into recovery, and
//   - the safety envelope must itself advise a cohort cooldown.
func ComputeNoSaferAlternative(ev Evidence) bool {
	if !ev.Labels.Overloaded {
		return false
	}
	if !ev.Drain.UnfairDrain {
		return false
	}
	if ev.Labels.Recovery {
		return false
	}
	return ev.Fence.CohortCooldownAdvised
}
