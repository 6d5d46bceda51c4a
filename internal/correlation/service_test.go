package correlation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/solatis/correlate/internal/formula"
	"github.com/solatis/correlate/internal/types"
)

type kindCounter map[types.Kind]int

func (k kindCounter) ValidationFailed(kind types.Kind) { k[kind]++ }

func newTestService(t *testing.T) (*Service, *MemStore, kindCounter) {
	t.Helper()
	store := NewMemStore(1, 2, 5)
	failures := kindCounter{}
	fixed := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	svc := NewService(store,
		WithNow(func() time.Time { return fixed }),
		WithFailureRecorder(failures),
	)
	return svc, store, failures
}

func TestService_LongNumericFormulaStaysReadable(t *testing.T) {
	store := NewMemStore()
	conds := &Counter{}
	conds.n.Store(100000)
	svc := NewService(store, WithSequence(conds, &Counter{}))
	ctx := context.Background()

	letters := make([]string, 40)
	in := types.RuleInput{
		Name:       types.Ptr("many tags"),
		Filter:     &types.FilterInput{EvalType: types.Ptr(types.EvalExpression)},
		Operations: []types.OperationInput{optype(types.OperationCloseOld)},
	}
	for i := range letters {
		letters[i] = formula.Letter(i)
		in.Filter.Conditions = append(in.Filter.Conditions,
			tagInput(types.CondOldEventTag, fmt.Sprintf("tag%d", i), letters[i]))
	}
	text := strings.Join(letters, " or ")
	in.Filter.Formula = types.Ptr(text)

	ids, err := svc.Create(ctx, []types.RuleInput{in})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	rule, err := store.LoadRule(ctx, ids[0])
	if err != nil {
		t.Fatalf("LoadRule() error = %v", err)
	}
	if len(rule.Formula) <= types.MaxFormulaLength {
		t.Fatalf("stored formula has %d characters, want more than %d", len(rule.Formula), types.MaxFormulaLength)
	}

	view, err := svc.Get(ctx, ids[0])
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if view.Filter.Formula != text {
		t.Errorf("Get() formula = %q, want %q", view.Filter.Formula, text)
	}

	if _, err := svc.List(ctx, types.ListOptions{}); err != nil {
		t.Errorf("List() error = %v", err)
	}
	rename := types.RuleInput{ID: ids[0], Name: types.Ptr("renamed")}
	if _, err := svc.Update(ctx, []types.RuleInput{rename}); err != nil {
		t.Errorf("Update() error = %v", err)
	}
}

func TestService_CreateAndGet(t *testing.T) {
	svc, store, _ := newTestService(t)
	ctx := context.Background()

	ids, err := svc.Create(ctx, []types.RuleInput{validRule("db outage")})
	if err != nil {
		t.Fatalf("Create() error = %v, want nil", err)
	}
	if len(ids) != 1 {
		t.Fatalf("len(ids) = %d, want 1", len(ids))
	}

	rule, err := store.LoadRule(ctx, ids[0])
	if err != nil {
		t.Fatalf("LoadRule() error = %v", err)
	}
	if rule.Formula != "1 and (2 or 3)" {
		t.Errorf("stored Formula = %q, want %q", rule.Formula, "1 and (2 or 3)")
	}

	view, err := svc.Get(ctx, ids[0])
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if view.Filter.Formula != "A and (B or C)" || view.Filter.EvalFormula != "A and (B or C)" {
		t.Errorf("Get() formula = %q / %q", view.Filter.Formula, view.Filter.EvalFormula)
	}
	if len(view.Filter.Conditions) != 3 || view.Filter.Conditions[1].GroupID != "1" || view.Filter.Conditions[1].FormulaID != "B" {
		t.Errorf("Get() conditions = %+v", view.Filter.Conditions)
	}
	if len(view.Operations) != 1 || view.Operations[0].Type != types.OperationCloseOld {
		t.Errorf("Get() operations = %+v", view.Operations)
	}
	if !view.CreatedAt.Equal(time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)) {
		t.Errorf("CreatedAt = %v", view.CreatedAt)
	}
}

func TestService_GetAndOrFormula(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	in := simpleRule("r", types.EvalAndOr,
		tagInput(types.CondNewEventTag, "db", ""),
		groupInput("5", ""),
	)
	ids, err := svc.Create(ctx, []types.RuleInput{in})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	view, err := svc.Get(ctx, ids[0])
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if view.Filter.Formula != "" {
		t.Errorf("Formula = %q, want empty for and/or", view.Filter.Formula)
	}
	if view.Filter.EvalFormula != "A and B" {
		t.Errorf("EvalFormula = %q, want %q", view.Filter.EvalFormula, "A and B")
	}
}

func TestService_CreateReportsLowestFailingRule(t *testing.T) {
	svc, store, failures := newTestService(t)
	ctx := context.Background()

	good := validRule("good")
	bad2 := validRule("bad2")
	bad2.Filter.Formula = types.Ptr("A and D")
	bad3 := validRule("bad3")
	bad3.Filter.Conditions[0].Tag = ""

	_, err := svc.Create(ctx, []types.RuleInput{good, bad2, bad3})
	var ve *types.Error
	if !errors.As(err, &ve) {
		t.Fatalf("Create() error = %v, want *types.Error", err)
	}
	if ve.Path != "/2/filter/formula" {
		t.Errorf("Path = %q, want %q", ve.Path, "/2/filter/formula")
	}
	if failures[types.KindFormulaConsistency] != 1 {
		t.Errorf("recorded failures = %v", failures)
	}

	rules, err := store.ListRules(ctx, types.ListOptions{})
	if err != nil {
		t.Fatalf("ListRules() error = %v", err)
	}
	if len(rules) != 0 {
		t.Errorf("len(rules) = %d, want 0: nothing is saved when validation fails", len(rules))
	}
}

func TestService_CreateDuplicateNameInBatch(t *testing.T) {
	svc, _, _ := newTestService(t)
	_, err := svc.Create(context.Background(), []types.RuleInput{validRule("x"), validRule("x")})
	var ve *types.Error
	if !errors.As(err, &ve) || ve.Kind != types.KindDuplicate || ve.Path != "/2/name" {
		t.Errorf("Create() error = %v, want duplicate at /2/name", err)
	}
}

func TestService_UpdateKeepsUnchangedConditionIDs(t *testing.T) {
	svc, store, _ := newTestService(t)
	ctx := context.Background()

	ids, err := svc.Create(ctx, []types.RuleInput{validRule("r")})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	update := types.RuleInput{
		ID: ids[0],
		Filter: &types.FilterInput{
			Formula: types.Ptr("(X or C) and A"),
			Conditions: []types.ConditionInput{
				tagInput(types.CondOldEventTag, "x", "A"),
				groupInput("2", "C"),
				groupInput("5", "X"),
			},
		},
		Operations: []types.OperationInput{optype(types.OperationCloseNew)},
	}
	if _, err := svc.Update(ctx, []types.RuleInput{update}); err != nil {
		t.Fatalf("Update() error = %v", err)
	}

	conds, err := store.LoadConditions(ctx, ids[0])
	if err != nil {
		t.Fatalf("LoadConditions() error = %v", err)
	}
	gotIDs := make([]types.ConditionID, len(conds))
	for i, c := range conds {
		gotIDs[i] = c.ID
	}
	want := []types.ConditionID{1, 3, 4}
	if len(gotIDs) != len(want) {
		t.Fatalf("condition IDs = %v, want %v", gotIDs, want)
	}
	for i := range want {
		if gotIDs[i] != want[i] {
			t.Errorf("condition IDs = %v, want %v", gotIDs, want)
			break
		}
	}

	rule, err := store.LoadRule(ctx, ids[0])
	if err != nil {
		t.Fatalf("LoadRule() error = %v", err)
	}
	if rule.Formula != "(4 or 3) and 1" {
		t.Errorf("Formula = %q, want %q", rule.Formula, "(4 or 3) and 1")
	}

	view, err := svc.Get(ctx, ids[0])
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if view.Filter.Formula != "(A or B) and C" {
		t.Errorf("Get() formula = %q, want %q", view.Filter.Formula, "(A or B) and C")
	}
	if len(view.Operations) != 1 || view.Operations[0].Type != types.OperationCloseNew {
		t.Errorf("operations = %+v", view.Operations)
	}
}

func TestService_UpdatePartial(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	ids, err := svc.Create(ctx, []types.RuleInput{validRule("r")})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	if _, err := svc.Update(ctx, []types.RuleInput{{ID: ids[0], Status: types.Ptr(types.StatusDisabled), Name: types.Ptr("renamed")}}); err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	view, err := svc.Get(ctx, ids[0])
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if view.Name != "renamed" || view.Status != types.StatusDisabled {
		t.Errorf("Get() = %+v", view)
	}
	if view.Filter.Formula != "A and (B or C)" || len(view.Filter.Conditions) != 3 {
		t.Errorf("filter changed by partial update: %+v", view.Filter)
	}

	// Switching to and/or drops the custom formula.
	if _, err := svc.Update(ctx, []types.RuleInput{{ID: ids[0], Filter: &types.FilterInput{EvalType: types.Ptr(types.EvalAndOr)}}}); err != nil {
		t.Fatalf("Update(evaltype) error = %v", err)
	}
	view, err = svc.Get(ctx, ids[0])
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if view.Filter.Formula != "" || view.Filter.EvalFormula != "A and (B or C)" {
		t.Errorf("Get() after evaltype switch = %q / %q", view.Filter.Formula, view.Filter.EvalFormula)
	}
}

func TestService_UpdateErrors(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Update(ctx, []types.RuleInput{{ID: "missing"}})
	if !errors.Is(err, types.ErrReference) {
		t.Errorf("Update(unknown) error = %v, want ErrReference", err)
	}

	_, err = svc.Update(ctx, []types.RuleInput{{}})
	if !errors.Is(err, types.ErrSchema) {
		t.Errorf("Update(no id) error = %v, want ErrSchema", err)
	}

	ids, err := svc.Create(ctx, []types.RuleInput{validRule("a"), validRule("b")})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	_, err = svc.Update(ctx, []types.RuleInput{{ID: ids[0], Name: types.Ptr("b")}})
	if !errors.Is(err, types.ErrDuplicate) {
		t.Errorf("Update(rename to taken) error = %v, want ErrDuplicate", err)
	}
	_, err = svc.Update(ctx, []types.RuleInput{{ID: ids[0]}, {ID: ids[0]}})
	if !errors.Is(err, types.ErrDuplicate) {
		t.Errorf("Update(same id twice) error = %v, want ErrDuplicate", err)
	}
}

func TestService_ListAndDelete(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	disabled := validRule("b-rule")
	disabled.Status = types.Ptr(types.StatusDisabled)
	ids, err := svc.Create(ctx, []types.RuleInput{validRule("a-rule"), disabled})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	all, err := svc.List(ctx, types.ListOptions{})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(all) != 2 || all[0].Name != "a-rule" {
		t.Errorf("List() = %+v", all)
	}
	enabled, err := svc.List(ctx, types.ListOptions{Status: types.Ptr(types.StatusEnabled)})
	if err != nil {
		t.Fatalf("List(enabled) error = %v", err)
	}
	if len(enabled) != 1 || enabled[0].ID != ids[0] {
		t.Errorf("List(enabled) = %+v", enabled)
	}

	if err := svc.Delete(ctx, []types.RuleID{ids[0], "missing"}); !errors.Is(err, types.ErrReference) {
		t.Errorf("Delete(missing) error = %v, want ErrReference", err)
	}
	if err := svc.Delete(ctx, []types.RuleID{ids[0], ids[0]}); !errors.Is(err, types.ErrDuplicate) {
		t.Errorf("Delete(twice) error = %v, want ErrDuplicate", err)
	}
	if err := svc.Delete(ctx, ids); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := svc.Get(ctx, ids[0]); !errors.Is(err, types.ErrNotFound) {
		t.Errorf("Get(deleted) error = %v, want ErrNotFound", err)
	}
}

type brokenStore struct {
	*MemStore
	err error
}

func (b brokenStore) SaveRule(context.Context, types.RuleChanges) error { return b.err }

func TestService_StorageErrorsPropagateUnchanged(t *testing.T) {
	cause := types.StorageError("save rule", errors.New("connection reset"))
	svc := NewService(brokenStore{MemStore: NewMemStore(1, 2), err: cause})

	_, err := svc.Create(context.Background(), []types.RuleInput{validRule("r")})
	if err != cause {
		t.Errorf("Create() error = %v, want the store error unchanged", err)
	}
}
