package capability

import (
	"errors"
	"fmt"
	"strings"

	"github.com/Mindburn-Labs/pawl/pkg/policy"
)

// EvidenceRef identifies one evidence object (hash, CID, registry key).
type EvidenceRef string

// TransitionRequest is an immutable proposal to move a subject between
// capability tiers. Callers construct it once; nothing in this package or
// in the reversal kernel mutates it.
type TransitionRequest struct {
	From             CapabilityState `json:"from"`
	To               CapabilityState `json:"to"`
	RequiredEvidence []EvidenceRef   `json:"required_evidence"`
	RequiredConsent  ConsentState    `json:"required_consent"`
	RequiredRoles    []Role          `json:"required_roles"`
	Stack            policy.Stack    `json:"policy_stack"`
	// LTLProperty optionally names a temporal property the guardian checks
	// before evaluation.
	LTLProperty string `json:"ltl_property,omitempty"`
}

// Validation failures callers branch on. Validate wraps these with the
// offending detail.
var (
	ErrIllegalTransition      = errors.New("illegal capability transition")
	ErrMissingEvidence        = errors.New("evidence required for non-model-only target")
	ErrInsufficientConsent    = errors.New("consent required for non-model-only target")
	ErrConsentRevoked         = errors.New("consent revoked")
	ErrMissingRoles           = errors.New("at least one role required for human-coupled target")
	ErrPolicyStackUnsatisfied = errors.New("policy stack not satisfied")
)

// IsDowngrade reports whether the request strictly decreases tier.
func (t TransitionRequest) IsDowngrade() bool {
	return IsDowngrade(t.From, t.To)
}

// Validate checks the request against the transition graph and its baseline
// prerequisites:
//
//   - self-loops are always legal;
//   - forward movement is single-step only;
//   - every backward edge is structurally legal (the reversal kernel, not
//     this machine, decides whether it may actually happen);
//   - any target above ModelOnly needs evidence and granted consent;
//   - targets involving a human subject need at least one role;
//   - the policy stack must be satisfied for every transition.
//
// Legal transitions with empty optional fields return nil.
func (t TransitionRequest) Validate() error {
	switch {
	case t.From == t.To:
		// Self-loop.
	case t.To.Tier() == t.From.Tier()+1:
		// Single forward step.
	case t.To.Tier() < t.From.Tier():
		// Backward edge: representable here, gated by the reversal kernel.
	default:
		return fmt.Errorf("%w: %s to %s must pass through %s first",
			ErrIllegalTransition, t.From, t.To, intermediateStates(t.From, t.To))
	}

	if t.To != ModelOnly {
		if len(t.RequiredEvidence) == 0 {
			return fmt.Errorf("%w (target %s)", ErrMissingEvidence, t.To)
		}
		switch t.RequiredConsent {
		case ConsentRevoked:
			return fmt.Errorf("%w (target %s)", ErrConsentRevoked, t.To)
		case ConsentNone:
			return fmt.Errorf("%w (target %s)", ErrInsufficientConsent, t.To)
		}
	}

	if t.To.HumanCoupled() && len(t.RequiredRoles) == 0 {
		return fmt.Errorf("%w (target %s)", ErrMissingRoles, t.To)
	}

	if !t.Stack.Satisfied() {
		return fmt.Errorf("%w: missing %s", ErrPolicyStackUnsatisfied,
			strings.Join(missingGroups(t.Stack), ", "))
	}

	return nil
}

func intermediateStates(from, to CapabilityState) string {
	var names []string
	for tier := from.Tier() + 1; tier < to.Tier(); tier++ {
		names = append(names, CapabilityState(tier).String())
	}
	return strings.Join(names, " and ")
}

func missingGroups(s policy.Stack) []string {
	var missing []string
	if len(s.BaseMedical) == 0 {
		missing = append(missing, "base_medical")
	}
	if len(s.BaseEngineering) == 0 {
		missing = append(missing, "base_engineering")
	}
	if len(s.JurisLocal) == 0 {
		missing = append(missing, "juris_local")
	}
	if len(s.QuantumAISafety) == 0 {
		missing = append(missing, "quantum_ai_safety")
	}
	return missing
}
