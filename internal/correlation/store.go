package correlation

import (
	"context"

	"github.com/solatis/correlate/internal/types"
)

// Store persists correlation rules.
//
// Implementations must apply SaveRule and DeleteRules atomically and report
// a missing rule from LoadRule as types.ErrNotFound.
type Store interface {
	LoadRule(ctx context.Context, id types.RuleID) (*types.Rule, error)
	// LoadConditions returns the rule's conditions ordered by ID.
	LoadConditions(ctx context.Context, id types.RuleID) ([]types.Condition, error)
	LoadOperations(ctx context.Context, id types.RuleID) ([]types.Operation, error)
	ListRules(ctx context.Context, opts types.ListOptions) ([]types.Rule, error)
	SaveRule(ctx context.Context, changes types.RuleChanges) error
	DeleteRules(ctx context.Context, ids []types.RuleID) error
}

// HostGroupLookup resolves host group references.
type HostGroupLookup interface {
	// ExistsAll reports whether every group exists and is accessible.
	ExistsAll(ctx context.Context, ids []types.GroupID) (bool, error)
}

// NameUniquenessLookup checks rule names against stored rules.
type NameUniquenessLookup interface {
	// IsDuplicate reports whether a rule other than excluding is named name.
	IsDuplicate(ctx context.Context, name string, excluding types.RuleID) (bool, error)
}

// IDSequence mints identifiers. Values are never reused.
type IDSequence interface {
	Next(ctx context.Context) (uint64, error)
}
