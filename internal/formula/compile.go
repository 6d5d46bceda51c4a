// internal/formula/compile.go
package formula

/*
 * Conversion between letter formulas and numeric formulas.
 *
 * Users write formulas over letters (A, B, ...); storage keeps formulas over
 * condition IDs so that letters never have to be persisted. Letters are
 * regenerated on read by assigning A, B, C... to IDs in order of first
 * appearance in the stored formula.
 */

import (
	"strconv"

	"github.com/solatis/correlate/internal/types"
)

// LettersToIDs substitutes every letter with its condition ID. A letter
// without a mapping is a consistency error naming the letter.
func LettersToIDs(e *Expr, ids map[string]types.ConditionID) (*Expr, error) {
	if e.numeric {
		return nil, types.FormulaConsistencyError("", "formula is already numeric")
	}
	root, err := rewrite(e.root, func(n *Ident) (string, error) {
		id, ok := ids[n.Name]
		if !ok {
			return "", types.FormulaConsistencyError("", "condition %q is not defined", n.Name)
		}
		return strconv.FormatUint(uint64(id), 10), nil
	})
	if err != nil {
		return nil, err
	}
	return &Expr{root: root, numeric: true}, nil
}

// IDsToLetters substitutes every condition ID with its letter.
func IDsToLetters(e *Expr, letters map[types.ConditionID]string) (*Expr, error) {
	if !e.numeric {
		return nil, types.FormulaConsistencyError("", "formula is not numeric")
	}
	root, err := rewrite(e.root, func(n *Ident) (string, error) {
		id, err := identID(n.Name)
		if err != nil {
			return "", err
		}
		letter, ok := letters[id]
		if !ok {
			return "", types.FormulaConsistencyError("", "condition %d has no letter", uint64(id))
		}
		return letter, nil
	})
	if err != nil {
		return nil, err
	}
	return &Expr{root: root, numeric: false}, nil
}

// AssignLetters maps each condition ID of a numeric formula to a letter,
// A for the first ID that appears, B for the second and so on.
func AssignLetters(e *Expr) (map[types.ConditionID]string, error) {
	if !e.numeric {
		return nil, types.FormulaConsistencyError("", "formula is not numeric")
	}
	letters := make(map[types.ConditionID]string)
	for i, name := range e.Constants() {
		id, err := identID(name)
		if err != nil {
			return nil, err
		}
		letters[id] = Letter(i)
	}
	return letters, nil
}

// IDs returns the distinct condition IDs of a numeric formula in order of
// first appearance.
func (e *Expr) IDs() ([]types.ConditionID, error) {
	if !e.numeric {
		return nil, types.FormulaConsistencyError("", "formula is not numeric")
	}
	names := e.Constants()
	ids := make([]types.ConditionID, 0, len(names))
	for _, name := range names {
		id, err := identID(name)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func identID(name string) (types.ConditionID, error) {
	id, err := strconv.ParseUint(name, 10, 64)
	if err != nil {
		return 0, types.FormulaConsistencyError("", "%q is not a condition ID", name)
	}
	return types.ConditionID(id), nil
}
