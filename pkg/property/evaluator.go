// Package property compiles and evaluates optional transition properties:
// CEL expressions over the facts of a proposed transition. Properties are
// an advisory pre-check run by the guardian before a request reaches the
// kernel; the kernel itself never evaluates them.
package property

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/cel-go/cel"

	"github.com/Mindburn-Labs/pawl/pkg/capability"
)

var (
	// ErrNotBoolean marks a property that evaluated to a non-bool value.
	ErrNotBoolean = errors.New("property: expression did not evaluate to a bool")
	// ErrForbiddenConstruct marks a property using non-deterministic CEL.
	ErrForbiddenConstruct = errors.New("property: forbidden construct")
	// ErrInvalidExpression marks a property that does not parse or compile.
	ErrInvalidExpression = errors.New("property: invalid expression")
)

// Facts are the transition values a property may reference.
type Facts struct {
	From      capability.CapabilityState
	To        capability.CapabilityState
	Consent   capability.ConsentState
	RoHBefore float64
	RoHAfter  float64
}

// vars maps facts onto the CEL variable set.
func (f Facts) vars() map[string]any {
	return map[string]any{
		"from":       f.From.String(),
		"to":         f.To.String(),
		"consent":    f.Consent.String(),
		"roh_before": f.RoHBefore,
		"roh_after":  f.RoHAfter,
		"downgrade":  capability.IsDowngrade(f.From, f.To),
	}
}

// Evaluator compiles properties once and caches the programs.
type Evaluator struct {
	env       *cel.Env
	validator *Validator

	mu       sync.RWMutex
	prgCache map[string]cel.Program
}

// NewEvaluator builds the property environment.
func NewEvaluator() (*Evaluator, error) {
	env, err := cel.NewEnv(
		cel.Variable("from", cel.StringType),
		cel.Variable("to", cel.StringType),
		cel.Variable("consent", cel.StringType),
		cel.Variable("roh_before", cel.DoubleType),
		cel.Variable("roh_after", cel.DoubleType),
		cel.Variable("downgrade", cel.BoolType),
	)
	if err != nil {
		return nil, fmt.Errorf("property: build env: %w", err)
	}
	return &Evaluator{
		env:       env,
		validator: NewValidator(env),
		prgCache:  make(map[string]cel.Program),
	}, nil
}

// Evaluate checks the expression against the transition facts. Expressions
// are validated for determinism, compiled once, and cached.
func (e *Evaluator) Evaluate(expr string, facts Facts) (bool, error) {
	prg, err := e.program(expr)
	if err != nil {
		return false, err
	}

	out, _, err := prg.Eval(facts.vars())
	if err != nil {
		return false, fmt.Errorf("property: eval: %w", err)
	}
	val, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("%w: got %T", ErrNotBoolean, out.Value())
	}
	return val, nil
}

func (e *Evaluator) program(expr string) (cel.Program, error) {
	e.mu.RLock()
	prg, hit := e.prgCache[expr]
	e.mu.RUnlock()
	if hit {
		return prg, nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	// Double check: another goroutine may have compiled it meanwhile.
	if prg, hit = e.prgCache[expr]; hit {
		return prg, nil
	}

	issues, err := e.validator.Validate(expr)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidExpression, err)
	}
	if len(issues) > 0 {
		msgs := make([]string, len(issues))
		for i, iss := range issues {
			msgs[i] = iss.Message
		}
		return nil, fmt.Errorf("%w: %s", ErrForbiddenConstruct, strings.Join(msgs, "; "))
	}

	ast, celIssues := e.env.Compile(expr)
	if celIssues != nil && celIssues.Err() != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidExpression, celIssues.Err())
	}
	prg, err = e.env.Program(ast,
		cel.InterruptCheckFrequency(100),
		cel.CostLimit(10000),
	)
	if err != nil {
		return nil, fmt.Errorf("property: program: %w", err)
	}
	e.prgCache[expr] = prg
	return prg, nil
}
