// internal/correlation/registry.go
package correlation

/*
 * Condition and operation identity across updates.
 *
 * An update resubmits a rule's full condition list. Conditions that did not
 * change keep their IDs so the stored formula and any event history that
 * references them stay valid. Matching runs in two passes:
 *
 *   1. exact: same type, operator and payload
 *   2. loose: same type and payload, different operator (reported as updated)
 *
 * Each existing condition is claimed at most once. Incoming conditions with
 * no claim get a fresh ID from the sequence. Existing conditions that were
 * never claimed are reported as deleted.
 */

import (
	"context"
	"fmt"

	"github.com/solatis/correlate/internal/types"
)

// Assignment is the result of matching incoming conditions to stored ones.
type Assignment struct {
	// Conditions are the incoming conditions with IDs filled in, in input
	// order.
	Conditions []types.Condition
	// Inserted, Updated and Reused hold indices into Conditions.
	Inserted []int
	Updated  []int
	Reused   []int
	// Deleted lists stored conditions no longer referenced, in stored order.
	Deleted []types.ConditionID
}

// Assign matches incoming conditions against existing ones and mints IDs for
// the rest. Inputs are not modified.
func Assign(ctx context.Context, existing, incoming []types.Condition, seq IDSequence) (Assignment, error) {
	out := Assignment{Conditions: make([]types.Condition, len(incoming))}
	copy(out.Conditions, incoming)

	claimed := make([]bool, len(existing))
	matched := make([]bool, len(incoming))

	claim := func(key func(types.Condition) string, updated bool) {
		free := make(map[string][]int)
		for i, c := range existing {
			if !claimed[i] {
				k := key(c)
				free[k] = append(free[k], i)
			}
		}
		for j, c := range out.Conditions {
			if matched[j] {
				continue
			}
			k := key(c)
			candidates := free[k]
			if len(candidates) == 0 {
				continue
			}
			i := candidates[0]
			free[k] = candidates[1:]
			claimed[i] = true
			matched[j] = true
			out.Conditions[j].ID = existing[i].ID
			if updated {
				out.Updated = append(out.Updated, j)
			} else {
				out.Reused = append(out.Reused, j)
			}
		}
	}
	claim(types.Condition.Key, false)
	claim(types.Condition.PayloadKey, true)

	for j := range out.Conditions {
		if matched[j] {
			continue
		}
		id, err := seq.Next(ctx)
		if err != nil {
			return Assignment{}, fmt.Errorf("mint condition ID: %w", err)
		}
		out.Conditions[j].ID = types.ConditionID(id)
		out.Inserted = append(out.Inserted, j)
	}

	for i, c := range existing {
		if !claimed[i] {
			out.Deleted = append(out.Deleted, c.ID)
		}
	}
	return out, nil
}

// OperationAssignment is the result of matching operations by type.
type OperationAssignment struct {
	Operations []types.Operation
	Inserted   []int
	Deleted    []types.OperationID
}

// AssignOperations matches incoming operation types against existing
// operations. An existing operation of the same type keeps its ID.
func AssignOperations(ctx context.Context, existing []types.Operation, incoming []types.OperationType, seq IDSequence) (OperationAssignment, error) {
	byType := make(map[types.OperationType]types.OperationID, len(existing))
	for _, op := range existing {
		byType[op.Type] = op.ID
	}

	out := OperationAssignment{Operations: make([]types.Operation, len(incoming))}
	kept := make(map[types.OperationID]bool)
	for j, typ := range incoming {
		if id, ok := byType[typ]; ok && !kept[id] {
			kept[id] = true
			out.Operations[j] = types.Operation{ID: id, Type: typ}
			continue
		}
		id, err := seq.Next(ctx)
		if err != nil {
			return OperationAssignment{}, fmt.Errorf("mint operation ID: %w", err)
		}
		out.Operations[j] = types.Operation{ID: types.OperationID(id), Type: typ}
		out.Inserted = append(out.Inserted, j)
	}

	for _, op := range existing {
		if !kept[op.ID] {
			out.Deleted = append(out.Deleted, op.ID)
		}
	}
	return out, nil
}
