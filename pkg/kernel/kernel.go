package kernel

import (
	"errors"
	"fmt"

	"github.com/Mindburn-Labs/pawl/pkg/canonical"
	"github.com/Mindburn-Labs/pawl/pkg/capability"
	"github.com/Mindburn-Labs/pawl/pkg/envelope"
	"github.com/Mindburn-Labs/pawl/pkg/risk"
)

// ReversalPolicyFlags gate downgrades. AllowNeuromorphReversal is
// configuration-level and non-waivable: no request field can switch it on.
// NoSaferAlternative is the single channel through which external
// diagnostics influence a decision.
type ReversalPolicyFlags struct {
	AllowNeuromorphReversal bool `json:"allow_neuromorph_reversal"`
	ExplicitReversalOrder   bool `json:"explicit_reversal_order"`
	NoSaferAlternative      bool `json:"no_safer_alternative"`
}

// EvalContext is the complete, immutable input to one evaluation.
// Everything the guards read is in here; the kernel holds only the risk
// invariant configuration.
type EvalContext struct {
	Request  capability.TransitionRequest `json:"request"`
	Roles    capability.RoleSet           `json:"roles"`
	Flags    ReversalPolicyFlags          `json:"flags"`
	Envelope envelope.ContextView         `json:"envelope"`

	RoHBefore float64 `json:"roh_before"`
	RoHAfter  float64 `json:"roh_after"`

	// IsDiagEvent marks evaluations originating from a diagnostic or
	// advisory context. Diagnostics must never mutate capability.
	IsDiagEvent bool `json:"is_diag_event"`

	// RiskReducing is the caller's claim that this downgrade exists to
	// reduce risk. Claiming it raises the bar: RoH must then fall strictly.
	RiskReducing bool `json:"risk_reducing"`
}

// Fingerprint is the canonical hash of the full context, used as the
// idempotency key for decision caching.
func (ec EvalContext) Fingerprint() (string, error) {
	return canonical.Hash(ec)
}

// Kernel evaluates reversal conditions. Construct once per configuration;
// safe for concurrent use.
type Kernel struct {
	inv risk.Invariant
}

// New builds a kernel around a configured risk invariant.
func New(inv risk.Invariant) *Kernel {
	return &Kernel{inv: inv}
}

// Decide runs the evaluation.
//
// Diagnostic isolation is checked first and denies any tier change,
// upgrade or downgrade. Remaining non-downgrades delegate to the
// capability state machine and map its verdict onto decision codes.
// Downgrades walk the rest of the guard chain in order, first failure
// wins:
//
//  1. diagnostic isolation (all tier changes)
//  2. RoH invariant (human-coupled source tiers)
//  3. AllowNeuromorphReversal configuration gate
//  4. sovereignty composite (structural roles + regulator quorum)
//  5. explicit order and proven no-safer-alternative
//  6. policy stack
//  7. envelope consistency
func (k *Kernel) Decide(ec EvalContext) Decision {
	// 1. Diagnostic contexts never mutate capability. Applies to every
	// tier-changing transition, upgrades included; self-loops stay
	// observable so diagnostics can still record state.
	if ec.IsDiagEvent && ec.Request.From != ec.Request.To {
		return Deny(ReasonDeniedIllegalDowngradeByNonRegulator,
			"diagnostic evaluation context cannot change capability state")
	}

	if !ec.Request.IsDowngrade() {
		return k.baseline(ec)
	}

	// 2. RoH invariant, scoped to downgrades leaving a human-coupled tier.
	if ec.Request.From.HumanCoupled() {
		if err := k.inv.Holds(ec.RoHBefore, ec.RoHAfter, ec.RiskReducing); err != nil {
			return Deny(ReasonDeniedRoHViolation, err.Error())
		}
	}

	// 3. Structural default-deny: absent explicit operator configuration,
	// no downgrade proceeds past this point.
	if !ec.Flags.AllowNeuromorphReversal {
		return Deny(ReasonDeniedReversalNotAllowedInTier,
			"neuromorph reversal disabled by configuration")
	}

	// 4. Sovereignty composite.
	if !ec.Roles.SovereigntySatisfied() {
		return Deny(ReasonDeniedIllegalDowngradeByNonRegulator,
			fmt.Sprintf("sovereignty composite unsatisfied: regulators %d of %d, host=%v owner=%v sovereign=%v",
				ec.Roles.Count(capability.RoleRegulator), ec.Roles.RequiredRegulatorQuorum,
				ec.Roles.Has(capability.RoleHost),
				ec.Roles.Has(capability.RoleOrganicCPUOwner),
				ec.Roles.Has(capability.RoleSovereignKernel)))
	}

	// 5. Both the explicit order and the exhausted-alternatives proof.
	if !ec.Flags.ExplicitReversalOrder || !ec.Flags.NoSaferAlternative {
		return Deny(ReasonDeniedNoSaferAlternativeNotProved,
			fmt.Sprintf("explicit_reversal_order=%v no_safer_alternative=%v",
				ec.Flags.ExplicitReversalOrder, ec.Flags.NoSaferAlternative))
	}

	// 6. Policy stack.
	if !ec.Request.Stack.Satisfied() {
		return Deny(ReasonDeniedPolicyStackFailure, "policy stack not satisfied")
	}

	// 7. The advisory layer must itself request this downgrade.
	if !ec.Envelope.RequestCapabilityDowngrade {
		return Deny(ReasonDeniedIllegalDowngradeByNonRegulator,
			"envelope context does not request a capability downgrade")
	}

	return Allow()
}

// baseline delegates a non-downgrade to the state machine and maps its
// validation errors onto decision codes. Failures without a dedicated code
// map to DeniedUnknown with the validation message in Detail.
func (k *Kernel) baseline(ec EvalContext) Decision {
	err := ec.Request.Validate()
	if err == nil {
		return Allow()
	}

	switch {
	case errors.Is(err, capability.ErrConsentRevoked):
		return Deny(ReasonDeniedConsentRevoked, err.Error())
	case errors.Is(err, capability.ErrInsufficientConsent):
		return Deny(ReasonDeniedInsufficientConsent, err.Error())
	case errors.Is(err, capability.ErrMissingEvidence):
		return Deny(ReasonDeniedMissingEvidence, err.Error())
	case errors.Is(err, capability.ErrPolicyStackUnsatisfied):
		return Deny(ReasonDeniedPolicyStackFailure, err.Error())
	default:
		return Deny(ReasonDeniedUnknown, err.Error())
	}
}
