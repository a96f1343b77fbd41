package capability

import "testing"

func TestDefaultActionPolicy_Structure(t *testing.T) {
	p := DefaultActionPolicy()
	if p.DefaultCapability != ModelOnly {
		t.Errorf("fresh subjects must start at ModelOnly")
	}
	if p.DefaultConsent != ConsentNone {
		t.Errorf("fresh subjects must start without consent")
	}
	if len(p.DefaultRoles) != 1 || p.DefaultRoles[0] != RoleLearner {
		t.Errorf("default role should be learner, got %v", p.DefaultRoles)
	}
	if len(p.ProhibitedHarms) == 0 {
		t.Errorf("prohibition list must not ship empty")
	}
}

func TestActionPermitted_ModelOnly(t *testing.T) {
	p := DefaultActionPolicy()
	if !p.ActionPermitted(ModelOnly, ConsentNone, nil, "simulation_only_analysis") {
		t.Errorf("simulation at ModelOnly should be permitted without consent")
	}
}

func TestActionPermitted_LiveCouplingNeedsConsent(t *testing.T) {
	p := DefaultActionPolicy()
	if p.ActionPermitted(ControlledHuman, ConsentNone, []Role{RoleLearner}, "live_coupling") {
		t.Errorf("live coupling without consent must be blocked")
	}
	if p.ActionPermitted(ControlledHuman, ConsentRevoked, []Role{RoleLearner}, "live_coupling") {
		t.Errorf("revoked consent must block live coupling")
	}
	if !p.ActionPermitted(ControlledHuman, ConsentMinimal, []Role{RoleLearner}, "live_coupling") {
		t.Errorf("minimal consent plus a role should permit live coupling")
	}
	if p.ActionPermitted(ControlledHuman, ConsentMinimal, nil, "live_coupling") {
		t.Errorf("live coupling without any role must be blocked")
	}
}

func TestActionPermitted_ProhibitedHarms(t *testing.T) {
	p := DefaultActionPolicy()
	if p.ActionPermitted(GeneralUse, ConsentExtended, []Role{RoleLearner}, "Coercive Neuromodulation") {
		t.Errorf("prohibited harms must block regardless of consent depth or case")
	}
}

func TestAddTransitionAndListing(t *testing.T) {
	p := DefaultActionPolicy()
	req := validForwardRequest()
	if err := p.AddTransition(req); err != nil {
		t.Fatalf("AddTransition: %v", err)
	}

	bad := req
	bad.To = GeneralUse
	if err := p.AddTransition(bad); err == nil {
		t.Fatalf("invalid transition must not register")
	}

	from := p.ValidTransitionsFrom(ModelOnly)
	if len(from) != 1 || from[0].To != LabBench {
		t.Errorf("expected one registered transition from ModelOnly, got %v", from)
	}
	if got := p.ValidTransitionsFrom(GeneralUse); len(got) != 0 {
		t.Errorf("no transitions should leave GeneralUse, got %v", got)
	}
}
