package correlation

import (
	"context"
	"slices"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/solatis/correlate/internal/types"
)

// Counter is an in-process IDSequence starting at 1.
type Counter struct {
	n atomic.Uint64
}

// Next returns the next value.
func (c *Counter) Next(ctx context.Context) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	return c.n.Add(1), nil
}

type memRule struct {
	rule       types.Rule
	conditions map[types.ConditionID]types.Condition
	operations map[types.OperationID]types.Operation
}

// MemStore keeps rules in memory. It implements Store, HostGroupLookup and
// NameUniquenessLookup and is safe for concurrent use.
type MemStore struct {
	mu     sync.RWMutex
	rules  map[types.RuleID]*memRule
	groups map[types.GroupID]bool

	conditionIDs Counter
	operationIDs Counter
}

// NewMemStore creates an empty store that knows the given host groups.
func NewMemStore(groups ...types.GroupID) *MemStore {
	s := &MemStore{
		rules:  make(map[types.RuleID]*memRule),
		groups: make(map[types.GroupID]bool),
	}
	s.AddHostGroups(groups...)
	return s
}

// AddHostGroups registers host groups for ExistsAll.
func (s *MemStore) AddHostGroups(ids ...types.GroupID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		s.groups[id] = true
	}
}

// ConditionSequence returns the sequence for condition IDs.
func (s *MemStore) ConditionSequence() IDSequence { return &s.conditionIDs }

// OperationSequence returns the sequence for operation IDs.
func (s *MemStore) OperationSequence() IDSequence { return &s.operationIDs }

func (s *MemStore) LoadRule(ctx context.Context, id types.RuleID) (*types.Rule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.rules[id]
	if !ok {
		return nil, types.ErrNotFound
	}
	rule := r.rule
	return &rule, nil
}

func (s *MemStore) LoadConditions(ctx context.Context, id types.RuleID) ([]types.Condition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.rules[id]
	if !ok {
		return nil, types.ErrNotFound
	}
	conds := make([]types.Condition, 0, len(r.conditions))
	for _, c := range r.conditions {
		conds = append(conds, c)
	}
	sort.Slice(conds, func(i, j int) bool { return conds[i].ID < conds[j].ID })
	return conds, nil
}

func (s *MemStore) LoadOperations(ctx context.Context, id types.RuleID) ([]types.Operation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.rules[id]
	if !ok {
		return nil, types.ErrNotFound
	}
	ops := make([]types.Operation, 0, len(r.operations))
	for _, op := range r.operations {
		ops = append(ops, op)
	}
	sort.Slice(ops, func(i, j int) bool { return ops[i].ID < ops[j].ID })
	return ops, nil
}

// ListRules returns rules ordered by name.
func (s *MemStore) ListRules(ctx context.Context, opts types.ListOptions) ([]types.Rule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []types.Rule
	for _, r := range s.rules {
		if opts.Status != nil && r.rule.Status != *opts.Status {
			continue
		}
		if opts.Search != "" && !strings.Contains(r.rule.Name, opts.Search) {
			continue
		}
		out = append(out, r.rule)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	if opts.Limit > 0 && len(out) > opts.Limit {
		out = out[:opts.Limit]
	}
	return out, nil
}

func (s *MemStore) SaveRule(ctx context.Context, ch types.RuleChanges) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.rules[ch.Rule.ID]
	switch {
	case ch.Create && ok:
		return types.StorageError("save rule", types.ErrDuplicateRuleID)
	case !ch.Create && !ok:
		return types.StorageError("save rule", types.ErrNotFound)
	case ch.Create:
		r = &memRule{
			conditions: make(map[types.ConditionID]types.Condition),
			operations: make(map[types.OperationID]types.Operation),
		}
		s.rules[ch.Rule.ID] = r
	}

	r.rule = ch.Rule
	for _, id := range ch.DeletedConditions {
		delete(r.conditions, id)
	}
	for _, c := range slices.Concat(ch.InsertedConditions, ch.UpdatedConditions) {
		c.FormulaID = ""
		r.conditions[c.ID] = c
	}
	for _, id := range ch.DeletedOperations {
		delete(r.operations, id)
	}
	for _, op := range ch.InsertedOperations {
		r.operations[op.ID] = op
	}
	return nil
}

func (s *MemStore) DeleteRules(ctx context.Context, ids []types.RuleID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, id := range ids {
		if _, ok := s.rules[id]; !ok {
			return types.StorageError("delete rules", types.ErrNotFound)
		}
	}
	for _, id := range ids {
		delete(s.rules, id)
	}
	return nil
}

// IsDuplicate implements NameUniquenessLookup.
func (s *MemStore) IsDuplicate(ctx context.Context, name string, excluding types.RuleID) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for id, r := range s.rules {
		if id != excluding && r.rule.Name == name {
			return true, nil
		}
	}
	return false, nil
}

// ExistsAll implements HostGroupLookup.
func (s *MemStore) ExistsAll(ctx context.Context, ids []types.GroupID) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, id := range ids {
		if !s.groups[id] {
			return false, nil
		}
	}
	return true, nil
}
