package db

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/solatis/correlate/internal/correlation"
	"github.com/solatis/correlate/internal/types"
)

var (
	_ correlation.Store                = (*BreakerStore)(nil)
	_ correlation.HostGroupLookup      = (*BreakerStore)(nil)
	_ correlation.NameUniquenessLookup = (*BreakerStore)(nil)
)

func TestBreakerStore_PassesThrough(t *testing.T) {
	store := openTestStore(t)
	b := NewBreakerStore(store, DefaultBreakerConfig())
	ctx := context.Background()

	rule := testRule("db outage")
	require.NoError(t, b.SaveRule(ctx, types.RuleChanges{Create: true, Rule: rule, InsertedConditions: testConditions()}))

	got, err := b.LoadRule(ctx, rule.ID)
	require.NoError(t, err)
	assert.Equal(t, rule.Name, got.Name)

	id, err := b.ConditionSequence().Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), id)
}

func TestBreakerStore_NotFoundKeepsClosed(t *testing.T) {
	store := openTestStore(t)
	cfg := DefaultBreakerConfig()
	cfg.MinRequests = 2
	b := NewBreakerStore(store, cfg)

	for i := 0; i < 5; i++ {
		_, err := b.LoadRule(context.Background(), types.NewRuleID())
		require.ErrorIs(t, err, types.ErrNotFound)
	}
	assert.Equal(t, "closed", b.State())
}

func TestBreakerStore_OpensOnStorageFailures(t *testing.T) {
	store := openTestStore(t)
	cfg := DefaultBreakerConfig()
	cfg.MinRequests = 2
	cfg.Timeout = time.Hour
	b := NewBreakerStore(store, cfg)

	require.NoError(t, store.db.Close())

	for i := 0; i < 2; i++ {
		_, err := b.ListRules(context.Background(), types.ListOptions{})
		require.ErrorIs(t, err, types.ErrStorage)
	}
	assert.Equal(t, "open", b.State())

	_, err := b.LoadRule(context.Background(), types.NewRuleID())
	assert.ErrorIs(t, err, types.ErrStorage)
	assert.Contains(t, err.Error(), "store unavailable")
}
