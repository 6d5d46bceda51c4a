// Package types provides domain models shared across correlation components.
//
// The enum values below are persisted and exchanged over the API as integers,
// so their numeric values are part of the wire contract and must not be
// reordered.
package types

import "fmt"

// RuleID represents a UUIDv7 correlation rule identifier.
// String alias enables type safety while maintaining JSON string serialization.
type RuleID string

// ConditionID identifies a condition. Assigned by the condition registry and
// stable across updates that leave the condition unchanged.
type ConditionID uint64

// OperationID identifies an operation of a rule.
type OperationID uint64

// GroupID identifies a host group referenced by a hostgroup condition.
type GroupID uint64

// EvalType selects how a rule combines its conditions.
type EvalType int

const (
	// EvalAndOr ORs conditions of the same type and ANDs the type groups.
	EvalAndOr EvalType = 0
	// EvalAnd requires every condition.
	EvalAnd EvalType = 1
	// EvalOr requires any condition.
	EvalOr EvalType = 2
	// EvalExpression uses the user supplied formula.
	EvalExpression EvalType = 3
)

// Valid reports whether e is a known evaluation type.
func (e EvalType) Valid() bool {
	return e >= EvalAndOr && e <= EvalExpression
}

func (e EvalType) String() string {
	switch e {
	case EvalAndOr:
		return "and/or"
	case EvalAnd:
		return "and"
	case EvalOr:
		return "or"
	case EvalExpression:
		return "custom expression"
	default:
		return fmt.Sprintf("evaltype(%d)", int(e))
	}
}

// ConditionType is the kind of a correlation condition.
type ConditionType int

const (
	CondOldEventTag       ConditionType = 0
	CondNewEventTag       ConditionType = 1
	CondNewEventHostGroup ConditionType = 2
	CondEventTagPair      ConditionType = 3
	CondOldEventTagValue  ConditionType = 4
	CondNewEventTagValue  ConditionType = 5
)

// Valid reports whether t is a known condition type.
func (t ConditionType) Valid() bool {
	return t >= CondOldEventTag && t <= CondNewEventTagValue
}

func (t ConditionType) String() string {
	switch t {
	case CondOldEventTag:
		return "old-event-tag"
	case CondNewEventTag:
		return "new-event-tag"
	case CondNewEventHostGroup:
		return "new-event-hostgroup"
	case CondEventTagPair:
		return "event-tag-pair"
	case CondOldEventTagValue:
		return "old-event-tag-value"
	case CondNewEventTagValue:
		return "new-event-tag-value"
	default:
		return fmt.Sprintf("type(%d)", int(t))
	}
}

// Operator compares a condition's operands.
type Operator int

const (
	OpEqual    Operator = 0
	OpNotEqual Operator = 1
	OpLike     Operator = 2
	OpNotLike  Operator = 3
)

func (o Operator) String() string {
	switch o {
	case OpEqual:
		return "equal"
	case OpNotEqual:
		return "not-equal"
	case OpLike:
		return "like"
	case OpNotLike:
		return "not-like"
	default:
		return fmt.Sprintf("operator(%d)", int(o))
	}
}

// Operators returns the operators a condition type accepts, lowest first.
// Tag and tag-pair conditions only compare for equality.
func (t ConditionType) Operators() []Operator {
	switch t {
	case CondOldEventTag, CondNewEventTag, CondEventTagPair:
		return []Operator{OpEqual}
	case CondNewEventHostGroup:
		return []Operator{OpEqual, OpNotEqual}
	case CondOldEventTagValue, CondNewEventTagValue:
		return []Operator{OpEqual, OpNotEqual, OpLike, OpNotLike}
	default:
		return nil
	}
}

// Allows reports whether operator o is legal for condition type t.
func (t ConditionType) Allows(o Operator) bool {
	for _, op := range t.Operators() {
		if op == o {
			return true
		}
	}
	return false
}

// OperationType is what a rule does when it matches.
type OperationType int

const (
	OperationCloseOld OperationType = 0
	OperationCloseNew OperationType = 1
)

// Valid reports whether t is a known operation type.
func (t OperationType) Valid() bool {
	return t == OperationCloseOld || t == OperationCloseNew
}

func (t OperationType) String() string {
	switch t {
	case OperationCloseOld:
		return "close-old-event"
	case OperationCloseNew:
		return "close-new-event"
	default:
		return fmt.Sprintf("operation(%d)", int(t))
	}
}

// Status enables or disables a rule.
type Status int

const (
	StatusEnabled  Status = 0
	StatusDisabled Status = 1
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	return s == StatusEnabled || s == StatusDisabled
}

// Field limits, matching the column sizes of the correlation schema.
const (
	MaxNameLength        = 255
	MaxDescriptionLength = 65535
	MaxFormulaLength     = 255
	MaxTagLength         = 255
	MaxValueLength       = 255
)
