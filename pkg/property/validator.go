package property

import (
	"github.com/google/cel-go/cel"
	exprpb "google.golang.org/genproto/googleapis/api/expr/v1alpha1"
)

// Issue is one determinism violation found in a property expression.
type Issue struct {
	Message string `json:"message"`
}

// Validator screens property expressions for constructs whose value can
// differ between evaluations of the same transition: wall-clock reads and
// unordered map iteration. Properties must be replayable against the
// ledger, so only pure functions of the transition facts are admitted.
type Validator struct {
	env *cel.Env
}

// NewValidator builds a validator over the given environment.
func NewValidator(env *cel.Env) *Validator {
	return &Validator{env: env}
}

// Validate parses the expression and walks its AST. A non-nil error means
// the expression did not parse; a non-empty issue list means it parsed but
// uses forbidden constructs.
func (v *Validator) Validate(expr string) ([]Issue, error) {
	ast, issues := v.env.Parse(expr)
	if issues != nil && issues.Err() != nil {
		return nil, issues.Err()
	}

	var found []Issue
	walk(ast.Expr(), &found) //nolint:staticcheck // no non-proto AST traversal yet
	return found, nil
}

func walk(e *exprpb.Expr, issues *[]Issue) {
	if e == nil {
		return
	}

	switch k := e.ExprKind.(type) {
	case *exprpb.Expr_CallExpr:
		call := k.CallExpr
		switch call.Function {
		case "now":
			*issues = append(*issues, Issue{Message: "now() is forbidden"})
		case "keys", "values":
			*issues = append(*issues, Issue{Message: "map iteration (keys/values) is forbidden"})
		}
		if call.Target != nil {
			walk(call.Target, issues)
		}
		for _, arg := range call.Args {
			walk(arg, issues)
		}

	case *exprpb.Expr_SelectExpr:
		walk(k.SelectExpr.Operand, issues)

	case *exprpb.Expr_ListExpr:
		for _, el := range k.ListExpr.Elements {
			walk(el, issues)
		}

	case *exprpb.Expr_StructExpr:
		for _, entry := range k.StructExpr.Entries {
			if entry.GetMapKey() != nil {
				walk(entry.GetMapKey(), issues)
			}
			walk(entry.Value, issues)
		}

	case *exprpb.Expr_ComprehensionExpr:
		comp := k.ComprehensionExpr
		walk(comp.IterRange, issues)
		walk(comp.AccuInit, issues)
		walk(comp.LoopCondition, issues)
		walk(comp.LoopStep, issues)
		walk(comp.Result, issues)
	}
}
