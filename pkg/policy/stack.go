// Package policy defines the jurisdiction policy stack and the deployment
// profiles that configure it.
//
// The stack is a structural conjunction: a deployment is policy-satisfied
// only when every one of its four jurisdiction groups carries at least one
// tag. Presence is all that is checked here; what a tag means is a matter
// for the regulator that issued it.
package policy

import (
	"sort"
	"strings"

	"github.com/Mindburn-Labs/pawl/pkg/canonical"
)

// Tag is a single jurisdiction marker, e.g. "fda" or "iso_iec_60601_1".
type Tag string

// Well-known tags carried by the default stack.
const (
	TagFDA             Tag = "fda"
	TagEUMDR           Tag = "eu_mdr"
	TagISOIEC60601_1   Tag = "iso_iec_60601_1"
	TagISOIEC60601_1_2 Tag = "iso_iec_60601_1_2"
	TagISOIEC60601_257 Tag = "iso_iec_60601_2_57"
	TagQuantumAISafety Tag = "quantum_ai_safety"
)

// Stack holds the four jurisdiction groups every accepted transition must
// carry.
type Stack struct {
	BaseMedical     []Tag `json:"base_medical" yaml:"base_medical"`
	BaseEngineering []Tag `json:"base_engineering" yaml:"base_engineering"`
	JurisLocal      []Tag `json:"juris_local" yaml:"juris_local"`
	QuantumAISafety []Tag `json:"quantum_ai_safety" yaml:"quantum_ai_safety"`
}

// Default returns the baseline stack: medical, engineering, and quantum-AI
// groups pre-populated, local jurisdiction deliberately empty. A default
// stack is therefore NOT satisfied until the operator declares local tags.
func Default() Stack {
	return Stack{
		BaseMedical: []Tag{TagFDA, TagEUMDR},
		BaseEngineering: []Tag{
			TagISOIEC60601_1,
			TagISOIEC60601_1_2,
			TagISOIEC60601_257,
		},
		JurisLocal:      nil,
		QuantumAISafety: []Tag{TagQuantumAISafety},
	}
}

// Satisfied reports whether all four groups are non-empty.
func (s Stack) Satisfied() bool {
	return len(s.BaseMedical) > 0 &&
		len(s.BaseEngineering) > 0 &&
		len(s.JurisLocal) > 0 &&
		len(s.QuantumAISafety) > 0
}

// Refs flattens the stack into sorted "group:tag" strings for ledger
// policy_refs fields. Tags are NFC-normalized and lowercased so the same
// stack always yields the same refs.
func (s Stack) Refs() []string {
	var refs []string
	appendGroup := func(group string, tags []Tag) {
		for _, t := range tags {
			refs = append(refs, group+":"+normalizeTag(t))
		}
	}
	appendGroup("base_medical", s.BaseMedical)
	appendGroup("base_engineering", s.BaseEngineering)
	appendGroup("juris_local", s.JurisLocal)
	appendGroup("quantum_ai_safety", s.QuantumAISafety)
	sort.Strings(refs)
	return refs
}

// Normalize returns a copy of the stack with every tag NFC-normalized and
// lowercased.
func (s Stack) Normalize() Stack {
	return Stack{
		BaseMedical:     normalizeTags(s.BaseMedical),
		BaseEngineering: normalizeTags(s.BaseEngineering),
		JurisLocal:      normalizeTags(s.JurisLocal),
		QuantumAISafety: normalizeTags(s.QuantumAISafety),
	}
}

func normalizeTags(tags []Tag) []Tag {
	if tags == nil {
		return nil
	}
	out := make([]Tag, len(tags))
	for i, t := range tags {
		out[i] = Tag(normalizeTag(t))
	}
	return out
}

func normalizeTag(t Tag) string {
	return strings.ToLower(canonical.NFC(string(t)))
}
