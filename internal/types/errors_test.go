package types

import (
	"errors"
	"fmt"
	"testing"
)

func TestErrorIsKind(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		target error
		want   bool
	}{
		{"schema matches schema", SchemaError("/1/name", "cannot be empty"), ErrSchema, true},
		{"schema is not duplicate", SchemaError("/1/name", "cannot be empty"), ErrDuplicate, false},
		{"wrapped consistency", fmt.Errorf("create: %w", FormulaConsistencyError("/1/filter/formula", "x")), ErrFormulaConsistency, true},
		{"syntax", FormulaSyntaxError(3, "unexpected"), ErrFormulaSyntax, true},
		{"non-sentinel target", SchemaError("/1/name", "x"), SchemaError("/1/name", "x"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := errors.Is(tt.err, tt.target); got != tt.want {
				t.Errorf("errors.Is() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestErrorMessage(t *testing.T) {
	err := SchemaError("/1/filter/conditions/2/tag", "cannot be empty")
	want := `invalid parameter "/1/filter/conditions/2/tag": cannot be empty`
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}

	at := FormulaSyntaxError(6, `unexpected "or" at position 6`).At("/1/filter/formula")
	if at.Pos != 6 || at.Path != "/1/filter/formula" {
		t.Errorf("At() = %+v, want pos 6 and path set", at)
	}
}

func TestStorageErrorKeepsCause(t *testing.T) {
	cause := errors.New("disk full")
	err := StorageError("save rule", cause)

	if !errors.Is(err, ErrStorage) {
		t.Error("errors.Is(err, ErrStorage) = false, want true")
	}
	if errors.Unwrap(err) != cause {
		t.Errorf("Unwrap() = %v, want %v", errors.Unwrap(err), cause)
	}
	if KindOf(err) != KindStorage {
		t.Errorf("KindOf() = %v, want %v", KindOf(err), KindStorage)
	}
}

func TestConditionKeys(t *testing.T) {
	a := Condition{ID: 1, Type: CondNewEventHostGroup, Operator: OpEqual, Payload: HostGroupPayload{GroupID: 5}}
	b := Condition{ID: 2, Type: CondNewEventHostGroup, Operator: OpNotEqual, Payload: HostGroupPayload{GroupID: 5}, FormulaID: "B"}

	if a.PayloadKey() != b.PayloadKey() {
		t.Errorf("PayloadKey() differ: %q vs %q", a.PayloadKey(), b.PayloadKey())
	}
	if a.Key() == b.Key() {
		t.Errorf("Key() equal for different operators: %q", a.Key())
	}

	old := Condition{Type: CondOldEventTag, Payload: TagPayload{Tag: "db"}}
	nw := Condition{Type: CondNewEventTag, Payload: TagPayload{Tag: "db"}}
	if old.Key() == nw.Key() {
		t.Error("Key() equal for different condition types")
	}
}

func TestOperatorLegality(t *testing.T) {
	if CondNewEventTag.Allows(OpNotEqual) {
		t.Error("new-event-tag allows not-equal, want only equal")
	}
	if !CondNewEventHostGroup.Allows(OpNotEqual) {
		t.Error("new-event-hostgroup rejects not-equal")
	}
	if CondNewEventHostGroup.Allows(OpLike) {
		t.Error("new-event-hostgroup allows like")
	}
	if !CondOldEventTagValue.Allows(OpNotLike) {
		t.Error("old-event-tag-value rejects not-like")
	}
}
