// internal/formula/generate.go
package formula

import (
	"slices"
	"sort"
	"strconv"

	"github.com/solatis/correlate/internal/types"
)

// Generate builds the numeric formula for a non-custom evaluation type.
//
// and joins every condition with "and", or joins every condition with "or".
// and/or groups conditions by type in order of first occurrence, sorts each
// group by ascending ID, joins a group's members with "or" (parenthesised
// when there is more than one) and joins the groups with "and".
func Generate(conds []types.Condition, evalType types.EvalType) (string, error) {
	e, err := generate(conds, evalType)
	if err != nil {
		return "", err
	}
	return e.String(), nil
}

func generate(conds []types.Condition, evalType types.EvalType) (*Expr, error) {
	if len(conds) == 0 {
		return nil, types.ErrNoConditions
	}

	ident := func(c types.Condition) Node {
		return &Ident{Name: strconv.FormatUint(uint64(c.ID), 10)}
	}

	switch evalType {
	case types.EvalAnd, types.EvalOr:
		op := OpAnd
		if evalType == types.EvalOr {
			op = OpOr
		}
		var root Node
		for _, c := range conds {
			root = join(root, op, ident(c))
		}
		return &Expr{root: root, numeric: true}, nil

	case types.EvalAndOr:
		var order []types.ConditionType
		groups := make(map[types.ConditionType][]types.Condition)
		for _, c := range conds {
			if _, ok := groups[c.Type]; !ok {
				order = append(order, c.Type)
			}
			groups[c.Type] = append(groups[c.Type], c)
		}

		var root Node
		for _, typ := range order {
			members := groups[typ]
			sort.SliceStable(members, func(i, j int) bool { return members[i].ID < members[j].ID })

			var group Node
			for _, c := range members {
				group = join(group, OpOr, ident(c))
			}
			if len(members) > 1 {
				group = &Group{Inner: group}
			}
			root = join(root, OpAnd, group)
		}
		return &Expr{root: root, numeric: true}, nil

	default:
		return nil, types.ErrInvalidEvalType
	}
}

func join(left Node, op Op, right Node) Node {
	if left == nil {
		return right
	}
	return &Binary{Op: op, Left: left, Right: right}
}

// Display regenerates the letter formula of a stored rule.
//
// For custom expression rules the stored numeric formula is parsed and
// letters are assigned by first appearance. For other rules the conditions
// are ordered by type, then ID, the formula is generated and letters are
// assigned the same way. The returned conditions carry their letters, in
// display order.
func Display(conds []types.Condition, evalType types.EvalType, stored string) ([]types.Condition, string, error) {
	var (
		e       *Expr
		ordered = slices.Clone(conds)
		err     error
	)

	if evalType == types.EvalExpression {
		e, err = ParseNumeric(stored)
		if err != nil {
			return nil, "", err
		}
		sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].ID < ordered[j].ID })
	} else {
		sort.SliceStable(ordered, func(i, j int) bool {
			if ordered[i].Type != ordered[j].Type {
				return ordered[i].Type < ordered[j].Type
			}
			return ordered[i].ID < ordered[j].ID
		})
		e, err = generate(ordered, evalType)
		if err != nil {
			return nil, "", err
		}
	}

	letters, err := AssignLetters(e)
	if err != nil {
		return nil, "", err
	}
	for i := range ordered {
		letter, ok := letters[ordered[i].ID]
		if !ok {
			return nil, "", types.FormulaConsistencyError("", "condition %d is not referenced by the formula", uint64(ordered[i].ID))
		}
		ordered[i].FormulaID = letter
	}
	if len(letters) != len(ordered) {
		return nil, "", types.FormulaConsistencyError("", "formula references conditions the rule does not have")
	}

	display, err := IDsToLetters(e, letters)
	if err != nil {
		return nil, "", err
	}
	return ordered, display.String(), nil
}
