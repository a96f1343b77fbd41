// Package capability defines the operating-capability tier lattice, consent
// and role primitives, and the state machine that validates transitions
// between tiers.
//
// The lattice ordering is load-bearing: a downgrade is any transition whose
// target tier index is strictly below its source. Downgrades are
// structurally representable here and gated separately by the reversal
// kernel.
package capability

import (
	"encoding/json"
	"fmt"
)

// CapabilityState is one of the four operating tiers, ordered.
type CapabilityState uint8

const (
	// ModelOnly: simulation and analysis, no live coupling.
	ModelOnly CapabilityState = iota
	// LabBench: bench hardware in a controlled lab, no human subject.
	LabBench
	// ControlledHuman: live human coupling under clinical supervision.
	ControlledHuman
	// GeneralUse: field deployment.
	GeneralUse
)

var stateNames = map[CapabilityState]string{
	ModelOnly:       "model_only",
	LabBench:        "lab_bench",
	ControlledHuman: "controlled_human",
	GeneralUse:      "general_use",
}

var stateValues = map[string]CapabilityState{
	"model_only":       ModelOnly,
	"lab_bench":        LabBench,
	"controlled_human": ControlledHuman,
	"general_use":      GeneralUse,
}

// Tier returns the numeric lattice index.
func (s CapabilityState) Tier() int { return int(s) }

func (s CapabilityState) String() string {
	if n, ok := stateNames[s]; ok {
		return n
	}
	return fmt.Sprintf("capability(%d)", uint8(s))
}

// HumanCoupled reports whether the tier involves a live human subject.
func (s CapabilityState) HumanCoupled() bool {
	return s == ControlledHuman || s == GeneralUse
}

// ParseCapabilityState resolves a wire name back to a state.
func ParseCapabilityState(name string) (CapabilityState, error) {
	if s, ok := stateValues[name]; ok {
		return s, nil
	}
	return 0, fmt.Errorf("unknown capability state %q", name)
}

// MarshalJSON renders the state as its wire name.
func (s CapabilityState) MarshalJSON() ([]byte, error) {
	n, ok := stateNames[s]
	if !ok {
		return nil, fmt.Errorf("unknown capability state %d", uint8(s))
	}
	return json.Marshal(n)
}

func (s *CapabilityState) UnmarshalJSON(b []byte) error {
	var name string
	if err := json.Unmarshal(b, &name); err != nil {
		return err
	}
	v, err := ParseCapabilityState(name)
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// IsDowngrade reports whether moving from one state to another strictly
// decreases the tier index.
func IsDowngrade(from, to CapabilityState) bool {
	return to.Tier() < from.Tier()
}

// ConsentState tracks the depth of subject consent. Extended subsumes
// Minimal; Revoked is absorbing and satisfies nothing regardless of prior
// depth.
type ConsentState uint8

const (
	ConsentNone ConsentState = iota
	ConsentMinimal
	ConsentExtended
	ConsentRevoked
)

var consentNames = map[ConsentState]string{
	ConsentNone:     "none",
	ConsentMinimal:  "minimal",
	ConsentExtended: "extended",
	ConsentRevoked:  "revoked",
}

var consentValues = map[string]ConsentState{
	"none":     ConsentNone,
	"minimal":  ConsentMinimal,
	"extended": ConsentExtended,
	"revoked":  ConsentRevoked,
}

func (c ConsentState) String() string {
	if n, ok := consentNames[c]; ok {
		return n
	}
	return fmt.Sprintf("consent(%d)", uint8(c))
}

// Granted reports whether live coupling is consented at all.
func (c ConsentState) Granted() bool {
	return c == ConsentMinimal || c == ConsentExtended
}

// Covers reports whether this consent satisfies a required minimum.
// Revoked never covers anything, and nothing covers a revoked requirement.
func (c ConsentState) Covers(min ConsentState) bool {
	if c == ConsentRevoked || min == ConsentRevoked {
		return false
	}
	return c >= min
}

// ParseConsentState resolves a wire name back to a consent state.
func ParseConsentState(name string) (ConsentState, error) {
	if c, ok := consentValues[name]; ok {
		return c, nil
	}
	return 0, fmt.Errorf("unknown consent state %q", name)
}

// MarshalJSON renders the consent state as its wire name.
func (c ConsentState) MarshalJSON() ([]byte, error) {
	n, ok := consentNames[c]
	if !ok {
		return nil, fmt.Errorf("unknown consent state %d", uint8(c))
	}
	return json.Marshal(n)
}

func (c *ConsentState) UnmarshalJSON(b []byte) error {
	var name string
	if err := json.Unmarshal(b, &name); err != nil {
		return err
	}
	v, err := ParseConsentState(name)
	if err != nil {
		return err
	}
	*c = v
	return nil
}
