package correlation

import (
	"context"

	"github.com/solatis/correlate/internal/formula"
	"github.com/solatis/correlate/internal/types"
)

// Compiled is a rule definition checked and compiled without a store.
// Condition IDs are provisional, numbered from 1 in input order.
type Compiled struct {
	Rule       *Validated
	Conditions []types.Condition
	// Letters is the display formula, Numeric the stored form.
	Letters string
	Numeric string
	Program *formula.Program
}

// Compile runs the validation pipeline on a batch of definitions with no
// name or host group lookups, then compiles each formula. Names must still
// be unique within the batch.
func Compile(ctx context.Context, rules []types.RuleInput) ([]Compiled, error) {
	if len(rules) == 0 {
		return nil, types.SchemaError("/", "cannot be empty")
	}

	v := NewValidator(nil, nil)
	out := make([]Compiled, 0, len(rules))
	var names []string
	for i, in := range rules {
		r, err := v.Validate(ctx, i+1, in, nil, names)
		if err != nil {
			return nil, err
		}
		names = append(names, r.Name)

		c, err := compileOne(ctx, r)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

func compileOne(ctx context.Context, r *Validated) (Compiled, error) {
	var seq Counter
	a, err := Assign(ctx, nil, r.Conditions, &seq)
	if err != nil {
		return Compiled{}, err
	}

	numeric, err := compileFormula(r, a.Conditions)
	if err != nil {
		return Compiled{}, err
	}
	if r.EvalType != types.EvalExpression {
		if numeric, err = formula.Generate(a.Conditions, r.EvalType); err != nil {
			return Compiled{}, err
		}
	}

	conds, letters, err := formula.Display(a.Conditions, r.EvalType, numeric)
	if err != nil {
		return Compiled{}, err
	}
	expr, err := formula.ParseNumeric(numeric)
	if err != nil {
		return Compiled{}, err
	}
	prg, err := formula.CompileCEL(expr)
	if err != nil {
		return Compiled{}, err
	}

	return Compiled{
		Rule:       r,
		Conditions: conds,
		Letters:    letters,
		Numeric:    numeric,
		Program:    prg,
	}, nil
}
