// internal/correlation/validate.go
package correlation

/*
 * Rule validation pipeline.
 *
 * Every rule goes through the same ordered checks and the first failure
 * wins:
 *
 *   1. structural schema of the rule and of each condition
 *   2. name uniqueness across the batch and the store
 *   3. duplicate conditions within the rule
 *   4. custom expression: letters, formula syntax, letter consistency
 *   5. other evaluation types: conditions carry no letters
 *   6. referenced host groups exist
 *   7. operations present, known and unique
 *
 * Steps 3 to 6 only run when the filter is part of the input (always for
 * create). Error paths are 1-based: /1/filter/conditions/2/tag.
 */

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/solatis/correlate/internal/formula"
	"github.com/solatis/correlate/internal/types"
)

// Validated is a rule that passed every check.
type Validated struct {
	Name        string
	Description string
	Status      types.Status

	// FilterSet reports whether the filter is part of the result. Always
	// true for create.
	FilterSet  bool
	EvalType   types.EvalType
	Formula    *formula.Expr // letter form, custom expression only
	Conditions []types.Condition

	// OperationsSet reports whether operations are part of the result.
	OperationsSet bool
	Operations    []types.OperationType
}

// Current is the stored state an update is validated against. Conditions
// carry their display letters. Formula is the letter formula of a custom
// expression rule; EvalFormula is the letter formula for any rule.
type Current struct {
	Rule        types.Rule
	Conditions  []types.Condition
	Operations  []types.Operation
	Formula     string
	EvalFormula string
}

// Validator runs the validation pipeline. Lookups are request scoped; a nil
// lookup skips the corresponding store check.
type Validator struct {
	names  NameUniquenessLookup
	groups HostGroupLookup
}

// NewValidator creates a validator.
func NewValidator(names NameUniquenessLookup, groups HostGroupLookup) *Validator {
	return &Validator{names: names, groups: groups}
}

// Validate checks the rule at 1-based batch position pos. cur is nil for
// create. earlier holds the names claimed by rules before pos in the same
// batch.
func (v *Validator) Validate(ctx context.Context, pos int, in types.RuleInput, cur *Current, earlier []string) (*Validated, error) {
	p := "/" + strconv.Itoa(pos)

	r, err := checkSchema(p, in, cur)
	if err != nil {
		return nil, err
	}
	if err := v.checkName(ctx, p, in, cur, earlier); err != nil {
		return nil, err
	}

	if r.FilterSet {
		if err := checkDuplicateConditions(p, r.Conditions); err != nil {
			return nil, err
		}
		if r.EvalType == types.EvalExpression {
			expr, err := checkFormula(p, r.Conditions, in, cur)
			if err != nil {
				return nil, err
			}
			r.Formula = expr
		} else if err := checkNoLetters(p, r.Conditions); err != nil {
			return nil, err
		}
		if err := v.checkHostGroups(ctx, p, r.Conditions); err != nil {
			return nil, err
		}
	}

	if err := checkOperations(p, in, cur == nil, r); err != nil {
		return nil, err
	}
	return r, nil
}

func missing(path, field string) error {
	return types.SchemaError(path, "the parameter %q is missing", field)
}

func checkText(path, value string, max int, required bool) error {
	if required && value == "" {
		return types.SchemaError(path, "cannot be empty")
	}
	if len(value) > max {
		return types.SchemaError(path, "value is too long")
	}
	return nil
}

func oneOf[T ~int](values ...T) string {
	s := make([]string, len(values))
	for i, v := range values {
		s[i] = strconv.Itoa(int(v))
	}
	return "value must be one of " + strings.Join(s, ", ")
}

// checkSchema is step 1. For updates the effective filter is the input
// merged over the stored one.
func checkSchema(p string, in types.RuleInput, cur *Current) (*Validated, error) {
	create := cur == nil
	r := &Validated{}
	if cur != nil {
		r.Name = cur.Rule.Name
		r.Description = cur.Rule.Description
		r.Status = cur.Rule.Status
		r.EvalType = cur.Rule.EvalType
	}

	switch {
	case in.Name != nil:
		if err := checkText(p+"/name", *in.Name, types.MaxNameLength, true); err != nil {
			return nil, err
		}
		r.Name = *in.Name
	case create:
		return nil, missing(p, "name")
	}

	if in.Description != nil {
		if err := checkText(p+"/description", *in.Description, types.MaxDescriptionLength, false); err != nil {
			return nil, err
		}
		r.Description = *in.Description
	}

	if in.Status != nil {
		if !in.Status.Valid() {
			return nil, types.SchemaError(p+"/status", "%s", oneOf(types.StatusEnabled, types.StatusDisabled))
		}
		r.Status = *in.Status
	}

	if in.Filter == nil {
		if create {
			return nil, missing(p, "filter")
		}
		return r, nil
	}
	r.FilterSet = true
	f := in.Filter
	fp := p + "/filter"

	switch {
	case f.EvalType != nil:
		if !f.EvalType.Valid() {
			return nil, types.SchemaError(fp+"/evaltype", "%s", oneOf(types.EvalAndOr, types.EvalAnd, types.EvalOr, types.EvalExpression))
		}
		r.EvalType = *f.EvalType
	case create:
		return nil, missing(fp, "evaltype")
	}
	custom := r.EvalType == types.EvalExpression

	formulaText := ""
	if f.Formula != nil {
		formulaText = *f.Formula
	} else if cur != nil && custom && cur.Rule.EvalType == types.EvalExpression {
		formulaText = cur.Formula
	}
	if custom {
		if err := checkText(fp+"/formula", formulaText, types.MaxFormulaLength, true); err != nil {
			return nil, err
		}
	} else if formulaText != "" {
		return nil, types.SchemaError(fp+"/formula", "value must be empty")
	}

	if f.Conditions == nil && cur != nil {
		r.Conditions = make([]types.Condition, len(cur.Conditions))
		for j, c := range cur.Conditions {
			if !custom {
				c.FormulaID = ""
			}
			r.Conditions[j] = c
		}
		return r, nil
	}
	if len(f.Conditions) == 0 {
		return nil, types.SchemaError(fp+"/conditions", "cannot be empty")
	}

	r.Conditions = make([]types.Condition, len(f.Conditions))
	for j, ci := range f.Conditions {
		c, err := typedCondition(fp+"/conditions/"+strconv.Itoa(j+1), ci)
		if err != nil {
			return nil, err
		}
		r.Conditions[j] = c
	}
	return r, nil
}

// field presence per condition type
const (
	forbidden = iota
	optional
	required
)

type fieldRule struct {
	name  string
	value string
	rule  int
}

// typedCondition converts a raw condition into its typed payload.
func typedCondition(path string, in types.ConditionInput) (types.Condition, error) {
	if in.Type == nil {
		return types.Condition{}, missing(path, "type")
	}
	typ := *in.Type
	if !typ.Valid() {
		return types.Condition{}, types.SchemaError(path+"/type", "%s", oneOf(
			types.CondOldEventTag, types.CondNewEventTag, types.CondNewEventHostGroup,
			types.CondEventTagPair, types.CondOldEventTagValue, types.CondNewEventTagValue))
	}

	op := types.OpEqual
	if in.Operator != nil {
		op = *in.Operator
	}
	if !typ.Allows(op) {
		return types.Condition{}, types.SchemaError(path+"/operator", "%s", oneOf(typ.Operators()...))
	}

	fields := []fieldRule{
		{"tag", in.Tag, forbidden},
		{"groupid", string(in.GroupID), forbidden},
		{"oldtag", in.OldTag, forbidden},
		{"newtag", in.NewTag, forbidden},
		{"value", in.Value, forbidden},
	}
	switch typ {
	case types.CondOldEventTag, types.CondNewEventTag:
		fields[0].rule = required
	case types.CondNewEventHostGroup:
		fields[1].rule = required
	case types.CondEventTagPair:
		fields[2].rule = required
		fields[3].rule = required
	case types.CondOldEventTagValue, types.CondNewEventTagValue:
		fields[0].rule = required
		fields[4].rule = optional
		if op == types.OpLike || op == types.OpNotLike {
			fields[4].rule = required
		}
	}

	for _, f := range fields {
		fpath := path + "/" + f.name
		switch f.rule {
		case forbidden:
			if f.value != "" {
				return types.Condition{}, types.SchemaError(fpath, "value must be empty")
			}
		default:
			limit := types.MaxTagLength
			if f.name == "value" {
				limit = types.MaxValueLength
			}
			if err := checkText(fpath, f.value, limit, f.rule == required); err != nil {
				return types.Condition{}, err
			}
		}
	}

	c := types.Condition{Type: typ, Operator: op, FormulaID: strings.ToUpper(in.FormulaID)}
	switch typ {
	case types.CondOldEventTag, types.CondNewEventTag:
		c.Payload = types.TagPayload{Tag: in.Tag}
	case types.CondNewEventHostGroup:
		id, err := strconv.ParseUint(string(in.GroupID), 10, 64)
		if err != nil || id == 0 {
			return types.Condition{}, types.SchemaError(path+"/groupid", "a number is expected")
		}
		c.Payload = types.HostGroupPayload{GroupID: types.GroupID(id)}
	case types.CondEventTagPair:
		c.Payload = types.TagPairPayload{OldTag: in.OldTag, NewTag: in.NewTag}
	case types.CondOldEventTagValue, types.CondNewEventTagValue:
		c.Payload = types.TagValuePayload{Tag: in.Tag, Value: in.Value}
	}
	return c, nil
}

// checkName is step 2.
func (v *Validator) checkName(ctx context.Context, p string, in types.RuleInput, cur *Current, earlier []string) error {
	if in.Name == nil {
		return nil
	}
	name := *in.Name
	var excluding types.RuleID
	if cur != nil {
		if name == cur.Rule.Name {
			return nil
		}
		excluding = cur.Rule.ID
	}

	for _, other := range earlier {
		if other == name {
			return types.DuplicateError(p+"/name", "correlation %q already exists", name)
		}
	}
	if v.names == nil {
		return nil
	}
	dup, err := v.names.IsDuplicate(ctx, name, excluding)
	if err != nil {
		return err
	}
	if dup {
		return types.DuplicateError(p+"/name", "correlation %q already exists", name)
	}
	return nil
}

// checkDuplicateConditions is step 3.
func checkDuplicateConditions(p string, conds []types.Condition) error {
	seen := make(map[string]int, len(conds))
	for j, c := range conds {
		k := c.Key()
		if first, ok := seen[k]; ok {
			return types.DuplicateError(fmt.Sprintf("%s/filter/conditions/%d", p, j+1),
				"duplicate of %s/filter/conditions/%d", p, first+1)
		}
		seen[k] = j
	}
	return nil
}

// checkFormula is step 4. It returns the parsed letter formula.
func checkFormula(p string, conds []types.Condition, in types.RuleInput, cur *Current) (*formula.Expr, error) {
	letters := make(map[string]int, len(conds))
	for j, c := range conds {
		lpath := fmt.Sprintf("%s/filter/conditions/%d/formulaid", p, j+1)
		switch {
		case c.FormulaID == "":
			return nil, types.SchemaError(lpath, "cannot be empty")
		case !formula.IsLetter(c.FormulaID):
			return nil, types.SchemaError(lpath, "incorrect value")
		}
		if _, dup := letters[c.FormulaID]; dup {
			return nil, types.DuplicateError(lpath, "value %q already exists", c.FormulaID)
		}
		letters[c.FormulaID] = j
	}

	text := ""
	if in.Filter.Formula != nil {
		text = *in.Filter.Formula
	} else if cur != nil {
		text = cur.Formula
	}
	fpath := p + "/filter/formula"
	expr, err := formula.Parse(text)
	if err != nil {
		var fe *types.Error
		if errors.As(err, &fe) {
			return nil, fe.At(fpath)
		}
		return nil, err
	}

	used := make(map[string]bool)
	for _, l := range expr.Constants() {
		used[l] = true
		if _, ok := letters[l]; !ok {
			return nil, types.FormulaConsistencyError(fpath, "condition %q is not defined in %s/filter/conditions", l, p)
		}
	}
	for j, c := range conds {
		if !used[c.FormulaID] {
			return nil, types.FormulaConsistencyError(fmt.Sprintf("%s/filter/conditions/%d/formulaid", p, j+1),
				"not defined in %s", fpath)
		}
	}
	return expr, nil
}

// checkNoLetters is step 5.
func checkNoLetters(p string, conds []types.Condition) error {
	for j, c := range conds {
		if c.FormulaID != "" {
			return types.SchemaError(fmt.Sprintf("%s/filter/conditions/%d/formulaid", p, j+1), "value must be empty")
		}
	}
	return nil
}

// checkHostGroups is step 6.
func (v *Validator) checkHostGroups(ctx context.Context, p string, conds []types.Condition) error {
	if v.groups == nil {
		return nil
	}
	var ids []types.GroupID
	first := make(map[types.GroupID]int)
	for j, c := range conds {
		if hg, ok := c.Payload.(types.HostGroupPayload); ok {
			if _, dup := first[hg.GroupID]; !dup {
				first[hg.GroupID] = j
				ids = append(ids, hg.GroupID)
			}
		}
	}
	if len(ids) == 0 {
		return nil
	}

	ok, err := v.groups.ExistsAll(ctx, ids)
	if err != nil || ok {
		return err
	}

	// Find the first condition naming a missing group.
	for _, id := range ids {
		ok, err := v.groups.ExistsAll(ctx, []types.GroupID{id})
		if err != nil {
			return err
		}
		if !ok {
			return unknownGroup(fmt.Sprintf("%s/filter/conditions/%d/groupid", p, first[id]+1))
		}
	}
	return unknownGroup(p + "/filter/conditions")
}

func unknownGroup(path string) error {
	return types.ReferenceError(path, "no permissions to referred object or it does not exist")
}

// checkOperations is step 7.
func checkOperations(p string, in types.RuleInput, create bool, r *Validated) error {
	if in.Operations == nil {
		if create {
			return missing(p, "operations")
		}
		return nil
	}
	if len(in.Operations) == 0 {
		return types.SchemaError(p+"/operations", "cannot be empty")
	}

	seen := make(map[types.OperationType]bool, len(in.Operations))
	ops := make([]types.OperationType, 0, len(in.Operations))
	for k, op := range in.Operations {
		opath := fmt.Sprintf("%s/operations/%d", p, k+1)
		if op.Type == nil {
			return missing(opath, "type")
		}
		if !op.Type.Valid() {
			return types.SchemaError(opath+"/type", "%s", oneOf(types.OperationCloseOld, types.OperationCloseNew))
		}
		if seen[*op.Type] {
			return types.DuplicateError(opath, "value (type)=(%d) already exists", int(*op.Type))
		}
		seen[*op.Type] = true
		ops = append(ops, *op.Type)
	}
	r.OperationsSet = true
	r.Operations = ops
	return nil
}
