// Package kernel implements the reversal conditions kernel: the ordered,
// short-circuiting guard chain that decides whether a capability downgrade
// may proceed.
//
// The kernel is deliberately boring to call: Decide is a pure function of
// its context. No I/O, no mutation, no logging. Identical inputs always
// produce the identical decision, which is what lets callers retry a ledger
// append without ever re-running the guards.
package kernel

import (
	"github.com/Mindburn-Labs/pawl/pkg/canonical"
)

// DecisionReason is the stable audit code attached to every decision.
// The set is closed per release; new codes may be added, existing ones
// never change meaning.
type DecisionReason string

const (
	ReasonAllowed DecisionReason = "Allowed"

	ReasonDeniedInsufficientConsent            DecisionReason = "DeniedInsufficientConsent"
	ReasonDeniedConsentRevoked                 DecisionReason = "DeniedConsentRevoked"
	ReasonDeniedPolicyStackFailure             DecisionReason = "DeniedPolicyStackFailure"
	ReasonDeniedMissingEvidence                DecisionReason = "DeniedMissingEvidence"
	ReasonDeniedIllegalDowngradeByNonRegulator DecisionReason = "DeniedIllegalDowngradeByNonRegulator"
	ReasonDeniedNoSaferAlternativeNotProved    DecisionReason = "DeniedNoSaferAlternativeNotProved"
	ReasonDeniedReversalNotAllowedInTier       DecisionReason = "DeniedReversalNotAllowedInTier"
	ReasonDeniedRoHViolation                   DecisionReason = "DeniedRoHViolation"

	// ReasonDeniedNeuromorphReversalProhibited is retained for audit-log
	// compatibility with deployments that ran the permanently-disabled
	// reversal build. The chain itself reports
	// ReasonDeniedReversalNotAllowedInTier.
	ReasonDeniedNeuromorphReversalProhibited DecisionReason = "DeniedNeuromorphReversalProhibited"

	ReasonDeniedUnknown DecisionReason = "DeniedUnknown"
)

// Decision is the kernel's only output. Exactly one reason accompanies
// every decision: the first failing guard's, or Allowed.
type Decision struct {
	Allowed bool           `json:"allowed"`
	Reason  DecisionReason `json:"reason"`
	Detail  string         `json:"detail,omitempty"`
}

// Allow is the single affirmative decision.
func Allow() Decision {
	return Decision{Allowed: true, Reason: ReasonAllowed}
}

// Deny builds a denial carrying its stable reason code.
func Deny(reason DecisionReason, detail string) Decision {
	return Decision{Allowed: false, Reason: reason, Detail: detail}
}

// Hash binds a decision to the context that produced it:
// canonical JSON of {context, decision}, SHA-256.
func (d Decision) Hash(ec EvalContext) (string, error) {
	return canonical.Hash(map[string]any{
		"context":  ec,
		"decision": d,
	})
}
