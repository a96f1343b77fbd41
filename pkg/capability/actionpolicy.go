package capability

import (
	"strings"

	"github.com/Mindburn-Labs/pawl/pkg/policy"
)

// ActionPolicy is the registered governance policy for a deployment: the
// transitions it has pre-approved, the action labels it prohibits outright,
// and the defaults a fresh subject starts from.
type ActionPolicy struct {
	ID                string              `json:"id"`
	Stack             policy.Stack        `json:"policy_stack"`
	Transitions       []TransitionRequest `json:"transitions"`
	ProhibitedHarms   []string            `json:"prohibited_harms"`
	DefaultCapability CapabilityState     `json:"default_capability"`
	DefaultConsent    ConsentState        `json:"default_consent"`
	DefaultRoles      []Role              `json:"default_roles"`
}

// DefaultActionPolicy returns the shipped baseline: no pre-approved
// transitions, the hard prohibition list, and a subject parked at
// ModelOnly with no consent.
func DefaultActionPolicy() ActionPolicy {
	return ActionPolicy{
		ID:    policy.DefaultProfileID,
		Stack: policy.Default(),
		ProhibitedHarms: []string{
			"coercive neuromodulation",
			"non-consensual neural surveillance",
			"emotional manipulation via neurostimulation",
			"neuro-data monetization without explicit revocable consent",
			"automated neuro-behavioral profiling",
		},
		DefaultCapability: ModelOnly,
		DefaultConsent:    ConsentNone,
		DefaultRoles:      []Role{RoleLearner},
	}
}

// AddTransition validates and registers a transition template.
func (p *ActionPolicy) AddTransition(t TransitionRequest) error {
	if err := t.Validate(); err != nil {
		return err
	}
	p.Transitions = append(p.Transitions, t)
	return nil
}

// ValidTransitionsFrom lists registered transitions leaving a state.
func (p *ActionPolicy) ValidTransitionsFrom(from CapabilityState) []TransitionRequest {
	var out []TransitionRequest
	for _, t := range p.Transitions {
		if t.From == from {
			out = append(out, t)
		}
	}
	return out
}

// ActionPermitted is the conservative per-action check: hard prohibitions
// always block; ModelOnly permits (simulation-class actions only, filtered
// by the caller); anything above ModelOnly needs granted consent and at
// least one role.
func (p ActionPolicy) ActionPermitted(state CapabilityState, consent ConsentState, roles []Role, actionLabel string) bool {
	lower := strings.ToLower(actionLabel)
	for _, harm := range p.ProhibitedHarms {
		if strings.Contains(lower, strings.ToLower(harm)) {
			return false
		}
	}

	if state == ModelOnly {
		return true
	}

	if !consent.Granted() {
		return false
	}
	return len(roles) > 0
}
