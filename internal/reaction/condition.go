package reaction

import (
	"fmt"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
)

// ConditionEvaluator evaluates a reaction condition expression against a
// scope. Implemented by CUEEvaluator (production) and fixed fakes (tests).
type ConditionEvaluator interface {
	Evaluate(expr string, scope map[string]any) (bool, error)
}

// CUEEvaluator evaluates conditions as CUE boolean expressions.
//
// The scope is encoded as a CUE struct and placed in the expression's
// lexical scope, so conditions reference its fields directly:
//
//	channel == "discovery" && shadow.kind == "account"
//
// A *cue.Context is not safe for concurrent use by multiple runs; each
// run builds its own evaluator (construction is cheap).
type CUEEvaluator struct {
	cctx *cue.Context
}

// NewCUEEvaluator creates a condition evaluator with a fresh CUE context.
func NewCUEEvaluator() *CUEEvaluator {
	return &CUEEvaluator{cctx: cuecontext.New()}
}

// Evaluate compiles and evaluates the expression. Non-boolean results and
// compile errors are reported as errors, not coerced.
func (e *CUEEvaluator) Evaluate(expr string, scope map[string]any) (bool, error) {
	scopeVal := e.cctx.Encode(scope)
	if err := scopeVal.Err(); err != nil {
		return false, fmt.Errorf("encode condition scope: %w", err)
	}

	v := e.cctx.CompileString(expr, cue.Scope(scopeVal))
	if err := v.Err(); err != nil {
		return false, fmt.Errorf("compile condition %q: %w", expr, err)
	}

	result, err := v.Bool()
	if err != nil {
		return false, fmt.Errorf("condition %q did not evaluate to a boolean: %w", expr, err)
	}
	return result, nil
}
