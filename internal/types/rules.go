// internal/types/rules.go
package types

/*
 * Domain types for correlation rules.
 *
 * Provides Rule, Condition, Operation and the change set handed to the
 * persistence layer. Conditions carry a closed set of payload variants so
 * that a condition can only hold the fields its type allows.
 *
 * Key types:
 *   - Rule: rule row (name, status, evaluation type, numeric formula)
 *   - Condition: typed condition with ID, operator and payload
 *   - Payload: TagPayload, HostGroupPayload, TagPairPayload, TagValuePayload
 *   - RuleChanges: everything SaveRule writes in one transaction
 *
 * Dependencies: None
 */

import (
	"strconv"
	"time"
)

// Rule is the persisted rule row. Formula holds the numeric form and is only
// non-empty when EvalType is EvalExpression.
type Rule struct {
	ID          RuleID
	Name        string
	Description string
	Status      Status
	EvalType    EvalType
	Formula     string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Payload is the type-dependent part of a condition.
type Payload interface {
	// key renders the payload fields for identity comparison.
	key() string
}

// TagPayload is the payload of old-event-tag and new-event-tag conditions.
type TagPayload struct {
	Tag string
}

// HostGroupPayload is the payload of new-event-hostgroup conditions.
type HostGroupPayload struct {
	GroupID GroupID
}

// TagPairPayload is the payload of event-tag-pair conditions.
type TagPairPayload struct {
	OldTag string
	NewTag string
}

// TagValuePayload is the payload of old-event-tag-value and
// new-event-tag-value conditions. Value may be empty for equal/not-equal.
type TagValuePayload struct {
	Tag   string
	Value string
}

func (p TagPayload) key() string       { return "tag:" + strconv.Quote(p.Tag) }
func (p HostGroupPayload) key() string { return "group:" + strconv.FormatUint(uint64(p.GroupID), 10) }
func (p TagPairPayload) key() string {
	return "pair:" + strconv.Quote(p.OldTag) + "," + strconv.Quote(p.NewTag)
}
func (p TagValuePayload) key() string {
	return "tagvalue:" + strconv.Quote(p.Tag) + "," + strconv.Quote(p.Value)
}

// Condition is a validated, typed condition.
// FormulaID is the display letter; it is never persisted.
type Condition struct {
	ID        ConditionID
	Type      ConditionType
	Operator  Operator
	Payload   Payload
	FormulaID string
}

// PayloadKey identifies the condition by type and payload, ignoring the
// operator, the ID and the letter.
func (c Condition) PayloadKey() string {
	if c.Payload == nil {
		return strconv.Itoa(int(c.Type)) + "|"
	}
	return strconv.Itoa(int(c.Type)) + "|" + c.Payload.key()
}

// Key identifies the condition by type, operator and payload. Two conditions
// with equal keys are duplicates.
func (c Condition) Key() string {
	return c.PayloadKey() + "|" + strconv.Itoa(int(c.Operator))
}

// Operation is an action a rule applies when it matches.
type Operation struct {
	ID   OperationID
	Type OperationType
}

// RuleChanges is the change set for one rule, applied atomically.
type RuleChanges struct {
	// Create is true when the rule row does not exist yet.
	Create bool
	Rule   Rule

	InsertedConditions []Condition
	UpdatedConditions  []Condition
	DeletedConditions  []ConditionID

	InsertedOperations []Operation
	DeletedOperations  []OperationID
}

// ListOptions filters ListRules. Zero value lists every rule.
type ListOptions struct {
	Status *Status
	// Search matches names containing the string, case-sensitively.
	Search string
	// Limit caps the result size when positive.
	Limit int
}
