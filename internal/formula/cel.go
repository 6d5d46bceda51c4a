// internal/formula/cel.go
package formula

/*
 * CEL rendering of numeric formulas.
 *
 * A numeric formula "10 and (11 or 12)" becomes the CEL boolean expression
 * "c[10u] && (c[11u] || c[12u])" over a map variable c from condition ID to
 * match result. Keys are unsigned so every condition ID fits. The
 * expression is type checked to return bool before a program is built.
 */

import (
	"context"
	"fmt"

	"github.com/google/cel-go/cel"

	"github.com/solatis/correlate/internal/types"
)

// Program is a compiled formula ready for repeated evaluation.
type Program struct {
	source string
	ids    []types.ConditionID
	prg    cel.Program
}

// CELSource renders a numeric formula as a CEL expression.
func CELSource(e *Expr) (string, error) {
	if !e.numeric {
		return "", types.FormulaConsistencyError("", "formula is not numeric")
	}
	r := &renderer{
		and:   "&&",
		or:    "||",
		ident: func(name string) string { return "c[" + name + "u]" },
	}
	_ = Walk(e.root, r)
	return r.b.String(), nil
}

// CompileCEL compiles a numeric formula into a CEL program.
func CompileCEL(e *Expr) (*Program, error) {
	source, err := CELSource(e)
	if err != nil {
		return nil, err
	}
	ids, err := e.IDs()
	if err != nil {
		return nil, err
	}

	env, err := cel.NewEnv(
		cel.Variable("c", cel.MapType(cel.UintType, cel.BoolType)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	ast, issues := env.Compile(source)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("failed to compile CEL expression: %w", issues.Err())
	}
	if ast.OutputType() != cel.BoolType {
		return nil, fmt.Errorf("formula must return bool, got %v", ast.OutputType())
	}

	prg, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL program: %w", err)
	}
	return &Program{source: source, ids: ids, prg: prg}, nil
}

// Source returns the CEL expression text.
func (p *Program) Source() string {
	return p.source
}

// Eval evaluates the program. Conditions missing from matched count as not
// matched.
func (p *Program) Eval(ctx context.Context, matched map[types.ConditionID]bool) (bool, error) {
	c := make(map[uint64]bool, len(p.ids))
	for _, id := range p.ids {
		c[uint64(id)] = matched[id]
	}

	result, _, err := p.prg.ContextEval(ctx, map[string]any{"c": c})
	if err != nil {
		return false, fmt.Errorf("failed to evaluate CEL expression: %w", err)
	}

	b, ok := result.Value().(bool)
	if !ok {
		return false, fmt.Errorf("CEL expression did not return bool, got %T", result.Value())
	}
	return b, nil
}
