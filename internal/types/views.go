package types

import (
	"strconv"
	"time"
)

// RuleView is a rule as returned by read operations, with display letters
// regenerated for every condition.
type RuleView struct {
	ID          RuleID          `json:"correlationid" yaml:"correlationid"`
	Name        string          `json:"name" yaml:"name"`
	Description string          `json:"description" yaml:"description"`
	Status      Status          `json:"status" yaml:"status"`
	Filter      FilterView      `json:"filter" yaml:"filter"`
	Operations  []OperationView `json:"operations" yaml:"operations"`
	CreatedAt   time.Time       `json:"created_at" yaml:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at" yaml:"updated_at"`
}

// FilterView carries the letter formula. Formula is only set for custom
// expression rules; EvalFormula is always set.
type FilterView struct {
	EvalType    EvalType        `json:"evaltype" yaml:"evaltype"`
	Formula     string          `json:"formula" yaml:"formula"`
	EvalFormula string          `json:"eval_formula" yaml:"eval_formula"`
	Conditions  []ConditionView `json:"conditions" yaml:"conditions"`
}

// ConditionView is the flattened, API-shaped form of a condition.
type ConditionView struct {
	ID        ConditionID   `json:"corr_conditionid" yaml:"corr_conditionid"`
	Type      ConditionType `json:"type" yaml:"type"`
	Operator  Operator      `json:"operator" yaml:"operator"`
	Tag       string        `json:"tag,omitempty" yaml:"tag,omitempty"`
	GroupID   string        `json:"groupid,omitempty" yaml:"groupid,omitempty"`
	OldTag    string        `json:"oldtag,omitempty" yaml:"oldtag,omitempty"`
	NewTag    string        `json:"newtag,omitempty" yaml:"newtag,omitempty"`
	Value     string        `json:"value,omitempty" yaml:"value,omitempty"`
	FormulaID string        `json:"formulaid" yaml:"formulaid"`
}

// OperationView is the API-shaped form of an operation.
type OperationView struct {
	ID   OperationID   `json:"corr_operationid" yaml:"corr_operationid"`
	Type OperationType `json:"type" yaml:"type"`
}

// ViewOf flattens a condition into its API shape.
func ViewOf(c Condition) ConditionView {
	v := ConditionView{
		ID:        c.ID,
		Type:      c.Type,
		Operator:  c.Operator,
		FormulaID: c.FormulaID,
	}
	switch p := c.Payload.(type) {
	case TagPayload:
		v.Tag = p.Tag
	case HostGroupPayload:
		v.GroupID = strconv.FormatUint(uint64(p.GroupID), 10)
	case TagPairPayload:
		v.OldTag = p.OldTag
		v.NewTag = p.NewTag
	case TagValuePayload:
		v.Tag = p.Tag
		v.Value = p.Value
	}
	return v
}
