package capability

import (
	"errors"
	"strings"
	"testing"

	"github.com/Mindburn-Labs/pawl/pkg/policy"
)

func satisfiedStack() policy.Stack {
	s := policy.Default()
	s.JurisLocal = []policy.Tag{"us-ca"}
	return s
}

func validForwardRequest() TransitionRequest {
	return TransitionRequest{
		From:             ModelOnly,
		To:               LabBench,
		RequiredEvidence: []EvidenceRef{"cid:QmZ4HHEJgpNmDcc4yfqPQUjpA8nkMpN2JuaKPfsZKscbqR"},
		RequiredConsent:  ConsentMinimal,
		RequiredRoles:    []Role{RoleTeacher},
		Stack:            satisfiedStack(),
		LTLProperty:      "!downgrade",
	}
}

func TestValidate_SingleForwardStep(t *testing.T) {
	if err := validForwardRequest().Validate(); err != nil {
		t.Fatalf("ModelOnly to LabBench should validate: %v", err)
	}
}

func TestValidate_SelfLoop(t *testing.T) {
	req := TransitionRequest{From: ModelOnly, To: ModelOnly, Stack: satisfiedStack()}
	if err := req.Validate(); err != nil {
		t.Fatalf("self-loop with empty optional fields should validate: %v", err)
	}
}

func TestValidate_ForwardSkipsRejected(t *testing.T) {
	cases := []struct {
		from, to     CapabilityState
		mustMention  string
	}{
		{ModelOnly, ControlledHuman, "lab_bench"},
		{ModelOnly, GeneralUse, "lab_bench and controlled_human"},
		{LabBench, GeneralUse, "controlled_human"},
	}
	for _, tc := range cases {
		req := validForwardRequest()
		req.From, req.To = tc.from, tc.to
		err := req.Validate()
		if !errors.Is(err, ErrIllegalTransition) {
			t.Errorf("%s to %s: want ErrIllegalTransition, got %v", tc.from, tc.to, err)
			continue
		}
		if !strings.Contains(err.Error(), tc.mustMention) {
			t.Errorf("%s to %s: error should name %q, got %q", tc.from, tc.to, tc.mustMention, err)
		}
	}
}

func TestValidate_BackwardEdgesStructurallyLegal(t *testing.T) {
	// Every strictly backward edge is representable at the machine level;
	// the reversal kernel, not this validator, decides whether it may run.
	backward := [][2]CapabilityState{
		{GeneralUse, ControlledHuman},
		{GeneralUse, LabBench},
		{GeneralUse, ModelOnly},
		{ControlledHuman, LabBench},
		{ControlledHuman, ModelOnly},
		{LabBench, ModelOnly},
	}
	for _, pair := range backward {
		req := validForwardRequest()
		req.From, req.To = pair[0], pair[1]
		if err := req.Validate(); err != nil {
			t.Errorf("%s to %s should be structurally legal: %v", pair[0], pair[1], err)
		}
	}
}

func TestValidate_EvidenceRequired(t *testing.T) {
	req := validForwardRequest()
	req.RequiredEvidence = nil
	if err := req.Validate(); !errors.Is(err, ErrMissingEvidence) {
		t.Errorf("want ErrMissingEvidence, got %v", err)
	}

	// ModelOnly target needs no evidence.
	down := validForwardRequest()
	down.From, down.To = LabBench, ModelOnly
	down.RequiredEvidence = nil
	down.RequiredConsent = ConsentNone
	if err := down.Validate(); err != nil {
		t.Errorf("ModelOnly target should not demand evidence or consent: %v", err)
	}
}

func TestValidate_ConsentStates(t *testing.T) {
	req := validForwardRequest()
	req.RequiredConsent = ConsentNone
	if err := req.Validate(); !errors.Is(err, ErrInsufficientConsent) {
		t.Errorf("want ErrInsufficientConsent, got %v", err)
	}

	req.RequiredConsent = ConsentRevoked
	if err := req.Validate(); !errors.Is(err, ErrConsentRevoked) {
		t.Errorf("want ErrConsentRevoked, got %v", err)
	}
}

func TestValidate_RolesForHumanCoupledTargets(t *testing.T) {
	req := validForwardRequest()
	req.From, req.To = LabBench, ControlledHuman
	req.RequiredRoles = nil
	if err := req.Validate(); !errors.Is(err, ErrMissingRoles) {
		t.Errorf("want ErrMissingRoles, got %v", err)
	}

	// LabBench target does not demand roles.
	req = validForwardRequest()
	req.RequiredRoles = nil
	if err := req.Validate(); err != nil {
		t.Errorf("LabBench target should not demand roles: %v", err)
	}
}

func TestValidate_PolicyStackAllFourGroups(t *testing.T) {
	req := validForwardRequest()
	req.Stack = policy.Default() // local group intentionally empty
	err := req.Validate()
	if !errors.Is(err, ErrPolicyStackUnsatisfied) {
		t.Fatalf("want ErrPolicyStackUnsatisfied, got %v", err)
	}
	if !strings.Contains(err.Error(), "juris_local") {
		t.Errorf("error should name the missing group, got %q", err)
	}
}
