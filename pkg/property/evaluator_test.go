package property

import (
	"errors"
	"sync"
	"testing"

	"github.com/Mindburn-Labs/pawl/pkg/capability"
)

func testFacts() Facts {
	return Facts{
		From:      capability.ControlledHuman,
		To:        capability.LabBench,
		Consent:   capability.ConsentExtended,
		RoHBefore: 0.28,
		RoHAfter:  0.10,
	}
}

func TestEvaluate_TransitionFacts(t *testing.T) {
	e, err := NewEvaluator()
	if err != nil {
		t.Fatalf("NewEvaluator: %v", err)
	}

	cases := []struct {
		expr string
		want bool
	}{
		{`downgrade && roh_after < roh_before`, true},
		{`from == "controlled_human" && to == "lab_bench"`, true},
		{`consent == "extended"`, true},
		{`roh_after <= 0.30`, true},
		{`to == "general_use"`, false},
		{`roh_after > roh_before`, false},
	}
	for _, tc := range cases {
		got, err := e.Evaluate(tc.expr, testFacts())
		if err != nil {
			t.Fatalf("Evaluate(%q): %v", tc.expr, err)
		}
		if got != tc.want {
			t.Fatalf("Evaluate(%q) = %v, want %v", tc.expr, got, tc.want)
		}
	}
}

func TestEvaluate_DowngradeFactDerived(t *testing.T) {
	e, err := NewEvaluator()
	if err != nil {
		t.Fatalf("NewEvaluator: %v", err)
	}

	up := testFacts()
	up.From = capability.LabBench
	up.To = capability.ControlledHuman

	got, err := e.Evaluate(`!downgrade`, up)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if !got {
		t.Fatal("upgrade facts must not present as a downgrade")
	}
}

func TestEvaluate_NonBooleanIsError(t *testing.T) {
	e, err := NewEvaluator()
	if err != nil {
		t.Fatalf("NewEvaluator: %v", err)
	}
	if _, err := e.Evaluate(`roh_after + 1.0`, testFacts()); !errors.Is(err, ErrNotBoolean) {
		t.Fatalf("expected ErrNotBoolean, got %v", err)
	}
}

func TestEvaluate_ForbiddenConstructs(t *testing.T) {
	e, err := NewEvaluator()
	if err != nil {
		t.Fatalf("NewEvaluator: %v", err)
	}

	cases := []string{
		`now() > timestamp("2026-01-01T00:00:00Z")`,
		`{"a": 1, "b": 2}.keys() == ["a", "b"]`,
	}
	for _, expr := range cases {
		if _, err := e.Evaluate(expr, testFacts()); !errors.Is(err, ErrForbiddenConstruct) {
			t.Fatalf("Evaluate(%q): expected ErrForbiddenConstruct, got %v", expr, err)
		}
	}
}

func TestEvaluate_UndeclaredVariableFailsCompile(t *testing.T) {
	e, err := NewEvaluator()
	if err != nil {
		t.Fatalf("NewEvaluator: %v", err)
	}
	_, err = e.Evaluate(`wall_clock > 5`, testFacts())
	if !errors.Is(err, ErrInvalidExpression) {
		t.Fatalf("expected ErrInvalidExpression, got %v", err)
	}
}

func TestEvaluate_CachesPrograms(t *testing.T) {
	e, err := NewEvaluator()
	if err != nil {
		t.Fatalf("NewEvaluator: %v", err)
	}

	const expr = `downgrade && roh_after < roh_before`

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := e.Evaluate(expr, testFacts())
			if err != nil || !got {
				t.Errorf("Evaluate = %v, %v", got, err)
			}
		}()
	}
	wg.Wait()

	e.mu.RLock()
	defer e.mu.RUnlock()
	if len(e.prgCache) != 1 {
		t.Fatalf("expected one cached program, got %d", len(e.prgCache))
	}
}

func TestValidator_ParseErrorIsNotAnIssue(t *testing.T) {
	e, err := NewEvaluator()
	if err != nil {
		t.Fatalf("NewEvaluator: %v", err)
	}
	if _, err := e.Evaluate(`downgrade &&`, testFacts()); err == nil {
		t.Fatal("expected parse error for truncated expression")
	}
}
