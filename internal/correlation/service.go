// internal/correlation/service.go
package correlation

/*
 * Correlation rule service.
 *
 * Orchestrates create, update, get, list and delete. Every rule of a batch is
 * validated before any rule is written. Validation of independent rules runs
 * concurrently; when several rules fail, the error of the lowest position is
 * reported so results do not depend on scheduling.
 *
 * Writes are atomic per rule. A storage failure midway through a batch
 * leaves the rules before it saved.
 */

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/solatis/correlate/internal/formula"
	"github.com/solatis/correlate/internal/types"
)

// DefaultParallelism bounds concurrent rule validations per batch.
const DefaultParallelism = 8

// FailureRecorder observes rejected requests by error kind.
type FailureRecorder interface {
	ValidationFailed(kind types.Kind)
}

// sequencer is implemented by stores that mint their own IDs.
type sequencer interface {
	ConditionSequence() IDSequence
	OperationSequence() IDSequence
}

// Service manages correlation rules.
type Service struct {
	store       Store
	names       NameUniquenessLookup
	groups      HostGroupLookup
	condSeq     IDSequence
	opSeq       IDSequence
	log         *zap.Logger
	now         func() time.Time
	failures    FailureRecorder
	parallelism int
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithLogger sets the logger. Defaults to a no-op logger.
func WithLogger(log *zap.Logger) ServiceOption {
	return func(s *Service) {
		s.log = log
	}
}

// WithHostGroups sets the host group lookup. Defaults to the store when it
// implements HostGroupLookup.
func WithHostGroups(groups HostGroupLookup) ServiceOption {
	return func(s *Service) {
		s.groups = groups
	}
}

// WithNameLookup sets the name uniqueness lookup. Defaults to the store when
// it implements NameUniquenessLookup.
func WithNameLookup(names NameUniquenessLookup) ServiceOption {
	return func(s *Service) {
		s.names = names
	}
}

// WithSequence sets the condition and operation ID sequences. Defaults to
// the store's sequences, or in-process counters.
func WithSequence(conditions, operations IDSequence) ServiceOption {
	return func(s *Service) {
		s.condSeq = conditions
		s.opSeq = operations
	}
}

// WithNow sets the clock used for timestamps.
func WithNow(now func() time.Time) ServiceOption {
	return func(s *Service) {
		s.now = now
	}
}

// WithFailureRecorder reports rejected requests, typically to metrics.
func WithFailureRecorder(r FailureRecorder) ServiceOption {
	return func(s *Service) {
		s.failures = r
	}
}

// WithParallelism bounds concurrent validations per batch.
func WithParallelism(n int) ServiceOption {
	return func(s *Service) {
		if n > 0 {
			s.parallelism = n
		}
	}
}

// NewService creates a service over store.
func NewService(store Store, opts ...ServiceOption) *Service {
	s := &Service{
		store:       store,
		log:         zap.NewNop(),
		now:         time.Now,
		parallelism: DefaultParallelism,
	}
	if names, ok := store.(NameUniquenessLookup); ok {
		s.names = names
	}
	if groups, ok := store.(HostGroupLookup); ok {
		s.groups = groups
	}
	if seq, ok := store.(sequencer); ok {
		s.condSeq = seq.ConditionSequence()
		s.opSeq = seq.OperationSequence()
	}

	for _, opt := range opts {
		opt(s)
	}

	if s.condSeq == nil {
		s.condSeq = &Counter{}
	}
	if s.opSeq == nil {
		s.opSeq = &Counter{}
	}
	return s
}

// Create validates and stores new rules, returning their IDs in input order.
func (s *Service) Create(ctx context.Context, rules []types.RuleInput) ([]types.RuleID, error) {
	if len(rules) == 0 {
		return nil, s.fail(types.SchemaError("/", "cannot be empty"))
	}

	validated, err := s.validateBatch(ctx, rules, make([]*Current, len(rules)))
	if err != nil {
		return nil, s.fail(err)
	}

	ids := make([]types.RuleID, 0, len(validated))
	for _, v := range validated {
		now := s.now().UTC()
		rule := types.Rule{
			ID:          types.NewRuleID(),
			Name:        v.Name,
			Description: v.Description,
			Status:      v.Status,
			EvalType:    v.EvalType,
			CreatedAt:   now,
			UpdatedAt:   now,
		}

		conds, err := Assign(ctx, nil, v.Conditions, s.condSeq)
		if err != nil {
			return ids, s.fail(err)
		}
		if rule.Formula, err = compileFormula(v, conds.Conditions); err != nil {
			return ids, s.fail(err)
		}
		ops, err := AssignOperations(ctx, nil, v.Operations, s.opSeq)
		if err != nil {
			return ids, s.fail(err)
		}

		changes := types.RuleChanges{
			Create:             true,
			Rule:               rule,
			InsertedConditions: conds.Conditions,
			InsertedOperations: ops.Operations,
		}
		if err := s.store.SaveRule(ctx, changes); err != nil {
			return ids, s.fail(err)
		}
		ids = append(ids, rule.ID)

		s.log.Info("correlation created",
			zap.String("correlation_id", string(rule.ID)),
			zap.String("name", rule.Name),
			zap.Int("conditions", len(conds.Conditions)),
			zap.Int("operations", len(ops.Operations)))
	}
	return ids, nil
}

// Update applies partial updates. Each input must carry the rule ID.
func (s *Service) Update(ctx context.Context, rules []types.RuleInput) ([]types.RuleID, error) {
	if len(rules) == 0 {
		return nil, s.fail(types.SchemaError("/", "cannot be empty"))
	}

	currents := make([]*Current, len(rules))
	seen := make(map[types.RuleID]bool, len(rules))
	for i, in := range rules {
		p := "/" + strconv.Itoa(i+1)
		if in.ID == "" {
			return nil, s.fail(missing(p, "correlationid"))
		}
		if seen[in.ID] {
			return nil, s.fail(types.DuplicateError(p, "value (correlationid)=(%s) already exists", in.ID))
		}
		seen[in.ID] = true

		cur, err := s.current(ctx, in.ID)
		if errors.Is(err, types.ErrNotFound) {
			return nil, s.fail(unknownRule(p + "/correlationid"))
		}
		if err != nil {
			return nil, s.fail(err)
		}
		currents[i] = cur
	}

	validated, err := s.validateBatch(ctx, rules, currents)
	if err != nil {
		return nil, s.fail(err)
	}

	ids := make([]types.RuleID, 0, len(validated))
	for i, v := range validated {
		cur := currents[i]
		rule := cur.Rule
		rule.Name = v.Name
		rule.Description = v.Description
		rule.Status = v.Status
		rule.UpdatedAt = s.now().UTC()
		changes := types.RuleChanges{Rule: rule}

		if v.FilterSet {
			conds, err := Assign(ctx, cur.Conditions, v.Conditions, s.condSeq)
			if err != nil {
				return ids, s.fail(err)
			}
			changes.InsertedConditions = pick(conds.Conditions, conds.Inserted)
			changes.UpdatedConditions = pick(conds.Conditions, conds.Updated)
			changes.DeletedConditions = conds.Deleted

			changes.Rule.EvalType = v.EvalType
			if changes.Rule.Formula, err = compileFormula(v, conds.Conditions); err != nil {
				return ids, s.fail(err)
			}
		}

		if v.OperationsSet {
			ops, err := AssignOperations(ctx, cur.Operations, v.Operations, s.opSeq)
			if err != nil {
				return ids, s.fail(err)
			}
			changes.InsertedOperations = pick(ops.Operations, ops.Inserted)
			changes.DeletedOperations = ops.Deleted
		}

		if err := s.store.SaveRule(ctx, changes); err != nil {
			return ids, s.fail(err)
		}
		ids = append(ids, rule.ID)

		s.log.Info("correlation updated",
			zap.String("correlation_id", string(rule.ID)),
			zap.Int("conditions_added", len(changes.InsertedConditions)),
			zap.Int("conditions_removed", len(changes.DeletedConditions)),
			zap.Int("operations_added", len(changes.InsertedOperations)),
			zap.Int("operations_removed", len(changes.DeletedOperations)))
	}
	return ids, nil
}

// Get returns one rule with regenerated display letters. A missing rule is
// reported as types.ErrNotFound.
func (s *Service) Get(ctx context.Context, id types.RuleID) (*types.RuleView, error) {
	rule, err := s.store.LoadRule(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.view(ctx, rule)
}

// List returns rules matching opts, ordered by name.
func (s *Service) List(ctx context.Context, opts types.ListOptions) ([]types.RuleView, error) {
	rules, err := s.store.ListRules(ctx, opts)
	if err != nil {
		return nil, err
	}
	views := make([]types.RuleView, 0, len(rules))
	for i := range rules {
		v, err := s.view(ctx, &rules[i])
		if err != nil {
			return nil, err
		}
		views = append(views, *v)
	}
	return views, nil
}

// Delete removes rules with their conditions and operations. Every ID must
// exist and appear once.
func (s *Service) Delete(ctx context.Context, ids []types.RuleID) error {
	if len(ids) == 0 {
		return s.fail(types.SchemaError("/", "cannot be empty"))
	}

	seen := make(map[types.RuleID]bool, len(ids))
	for i, id := range ids {
		p := "/" + strconv.Itoa(i+1)
		if seen[id] {
			return s.fail(types.DuplicateError(p, "value %q already exists", id))
		}
		seen[id] = true

		if _, err := s.store.LoadRule(ctx, id); err != nil {
			if errors.Is(err, types.ErrNotFound) {
				return s.fail(unknownRule(p))
			}
			return s.fail(err)
		}
	}

	if err := s.store.DeleteRules(ctx, ids); err != nil {
		return s.fail(err)
	}
	s.log.Info("correlations deleted", zap.Int("count", len(ids)))
	return nil
}

// validateBatch validates every rule and returns the lowest-positioned
// failure.
func (s *Service) validateBatch(ctx context.Context, rules []types.RuleInput, currents []*Current) ([]*Validated, error) {
	v := NewValidator(s.names, s.groups)

	earlier := make([][]string, len(rules))
	var names []string
	for i, in := range rules {
		earlier[i] = names
		if in.Name != nil {
			names = append(names[:len(names):len(names)], *in.Name)
		}
	}

	results := make([]*Validated, len(rules))
	errs := make([]error, len(rules))

	var g errgroup.Group
	g.SetLimit(s.parallelism)
	for i := range rules {
		g.Go(func() error {
			results[i], errs[i] = v.Validate(ctx, i+1, rules[i], currents[i], earlier[i])
			return nil
		})
	}
	_ = g.Wait()

	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}
	return results, nil
}

// current loads the stored state of a rule with display letters.
func (s *Service) current(ctx context.Context, id types.RuleID) (*Current, error) {
	rule, err := s.store.LoadRule(ctx, id)
	if err != nil {
		return nil, err
	}
	conds, err := s.store.LoadConditions(ctx, id)
	if err != nil {
		return nil, err
	}
	ops, err := s.store.LoadOperations(ctx, id)
	if err != nil {
		return nil, err
	}

	ordered, display, err := formula.Display(conds, rule.EvalType, rule.Formula)
	if err != nil {
		return nil, fmt.Errorf("correlation %s: %w", id, err)
	}
	cur := &Current{Rule: *rule, Conditions: ordered, Operations: ops, EvalFormula: display}
	if rule.EvalType == types.EvalExpression {
		cur.Formula = display
	}
	return cur, nil
}

func (s *Service) view(ctx context.Context, rule *types.Rule) (*types.RuleView, error) {
	cur, err := s.current(ctx, rule.ID)
	if err != nil {
		return nil, err
	}

	v := &types.RuleView{
		ID:          rule.ID,
		Name:        rule.Name,
		Description: rule.Description,
		Status:      rule.Status,
		CreatedAt:   rule.CreatedAt,
		UpdatedAt:   rule.UpdatedAt,
		Filter: types.FilterView{
			EvalType:    rule.EvalType,
			Formula:     cur.Formula,
			EvalFormula: cur.EvalFormula,
			Conditions:  make([]types.ConditionView, 0, len(cur.Conditions)),
		},
		Operations: make([]types.OperationView, 0, len(cur.Operations)),
	}
	for _, c := range cur.Conditions {
		v.Filter.Conditions = append(v.Filter.Conditions, types.ViewOf(c))
	}
	for _, op := range cur.Operations {
		v.Operations = append(v.Operations, types.OperationView{ID: op.ID, Type: op.Type})
	}
	return v, nil
}

// fail records and logs err, then returns it unchanged.
func (s *Service) fail(err error) error {
	kind := types.KindOf(err)
	switch {
	case kind != 0 && kind != types.KindStorage:
		if s.failures != nil {
			s.failures.ValidationFailed(kind)
		}
		s.log.Debug("correlation rejected", zap.String("kind", kind.String()), zap.Error(err))
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		s.log.Debug("correlation request cancelled", zap.Error(err))
	default:
		s.log.Error("correlation storage failure", zap.Error(err))
	}
	return err
}

// compileFormula returns the numeric formula for custom expression rules and
// the empty string otherwise.
func compileFormula(v *Validated, conds []types.Condition) (string, error) {
	if v.EvalType != types.EvalExpression {
		return "", nil
	}
	ids := make(map[string]types.ConditionID, len(conds))
	for _, c := range conds {
		ids[c.FormulaID] = c.ID
	}
	numeric, err := formula.LettersToIDs(v.Formula, ids)
	if err != nil {
		return "", err
	}
	return numeric.String(), nil
}

// unknownRule reports a reference to a rule that does not exist. It matches
// both types.ErrReference and types.ErrNotFound.
func unknownRule(path string) error {
	e := types.ReferenceError(path, "no permissions to referred object or it does not exist")
	e.Cause = types.ErrNotFound
	return e
}

func pick[T any](all []T, idx []int) []T {
	out := make([]T, 0, len(idx))
	for _, i := range idx {
		out = append(out, all[i])
	}
	return out
}
