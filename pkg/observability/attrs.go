package observability

import (
	"go.opentelemetry.io/otel/attribute"

	"github.com/Mindburn-Labs/pawl/pkg/capability"
)

// Metric attributes stay low-cardinality: reasons, verdicts, and change
// types come from closed vocabularies. Subject and proposal ids go on
// spans only.
var (
	AttrReason     = attribute.Key("reason")
	AttrAllowed    = attribute.Key("allowed")
	AttrChangeType = attribute.Key("change_type")

	AttrSubjectID  = attribute.Key("pawl.subject.id")
	AttrProposalID = attribute.Key("pawl.proposal.id")
	AttrFromState  = attribute.Key("pawl.transition.from")
	AttrToState    = attribute.Key("pawl.transition.to")
)

// DecisionAttrs builds the attribute set for decision counters.
func DecisionAttrs(reason string, allowed bool) []attribute.KeyValue {
	return []attribute.KeyValue{
		AttrReason.String(reason),
		AttrAllowed.Bool(allowed),
	}
}

// TransitionAttrs builds the span attribute set for one proposal. Tiers
// render as their symbolic names, never as raw state bytes.
func TransitionAttrs(subjectID, proposalID string, from, to capability.CapabilityState) []attribute.KeyValue {
	return []attribute.KeyValue{
		AttrSubjectID.String(subjectID),
		AttrProposalID.String(proposalID),
		AttrFromState.String(from.String()),
		AttrToState.String(to.String()),
	}
}
