package types

import (
	"bytes"
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v3"
)

// RuleInput is a rule as received from an API call or a rule file, before
// validation. Pointer fields distinguish "absent" from the zero value; a nil
// slice is absent while an empty slice is present and empty.
//
// Create requires Name, Filter and Operations. Update requires ID and treats
// every other field as optional.
type RuleInput struct {
	ID          RuleID           `json:"correlationid,omitempty" yaml:"correlationid,omitempty"`
	Name        *string          `json:"name,omitempty" yaml:"name,omitempty"`
	Description *string          `json:"description,omitempty" yaml:"description,omitempty"`
	Status      *Status          `json:"status,omitempty" yaml:"status,omitempty"`
	Filter      *FilterInput     `json:"filter,omitempty" yaml:"filter,omitempty"`
	Operations  []OperationInput `json:"operations,omitempty" yaml:"operations,omitempty"`
}

// FilterInput is the unvalidated filter of a rule.
type FilterInput struct {
	EvalType   *EvalType        `json:"evaltype,omitempty" yaml:"evaltype,omitempty"`
	Formula    *string          `json:"formula,omitempty" yaml:"formula,omitempty"`
	Conditions []ConditionInput `json:"conditions,omitempty" yaml:"conditions,omitempty"`
}

// ConditionInput is the loosely typed form of a condition. Every payload
// field is optional here; the validator decides which ones a type requires
// or forbids. GroupID is kept as text until the validator parses it.
type ConditionInput struct {
	Type      *ConditionType `json:"type,omitempty" yaml:"type,omitempty"`
	Operator  *Operator      `json:"operator,omitempty" yaml:"operator,omitempty"`
	Tag       string         `json:"tag,omitempty" yaml:"tag,omitempty"`
	GroupID   LooseID        `json:"groupid,omitempty" yaml:"groupid,omitempty"`
	OldTag    string         `json:"oldtag,omitempty" yaml:"oldtag,omitempty"`
	NewTag    string         `json:"newtag,omitempty" yaml:"newtag,omitempty"`
	Value     string         `json:"value,omitempty" yaml:"value,omitempty"`
	FormulaID string         `json:"formulaid,omitempty" yaml:"formulaid,omitempty"`
}

// LooseID is an identifier that arrives either as a string ("5") or as a
// number (5). Its text is kept verbatim for the validator.
type LooseID string

func (id *LooseID) UnmarshalJSON(b []byte) error {
	if bytes.Equal(b, []byte("null")) {
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*id = LooseID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("expected a string or a number, got %s", b)
	}
	*id = LooseID(n.String())
	return nil
}

func (id *LooseID) UnmarshalYAML(n *yaml.Node) error {
	if n.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: expected a string or a number", n.Line)
	}
	*id = LooseID(n.Value)
	return nil
}

// OperationInput is the unvalidated form of an operation.
type OperationInput struct {
	Type *OperationType `json:"type,omitempty" yaml:"type,omitempty"`
}

// Ptr returns a pointer to v. Convenience for building inputs.
func Ptr[T any](v T) *T {
	return &v
}
