package db

import (
	"context"
	"errors"
	"time"

	"github.com/sony/gobreaker"

	"github.com/solatis/correlate/internal/correlation"
	"github.com/solatis/correlate/internal/types"
)

// BreakerConfig configures the circuit breaker guarding the store.
type BreakerConfig struct {
	// MaxRequests is the number of trial calls allowed while half-open.
	MaxRequests uint32
	// Interval clears the failure counts while closed. Zero never clears.
	Interval time.Duration
	// Timeout is how long the breaker stays open before trying again.
	Timeout time.Duration
	// The breaker opens once MinRequests calls were made and at least
	// FailureRatio of them failed.
	MinRequests  uint32
	FailureRatio float64

	OnStateChange func(name string, from, to gobreaker.State)
}

// DefaultBreakerConfig returns the breaker settings used by serve.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		MaxRequests:  3,
		Interval:     60 * time.Second,
		Timeout:      30 * time.Second,
		MinRequests:  5,
		FailureRatio: 0.5,
	}
}

// BreakerStore guards a Store with a circuit breaker. Only storage failures
// count against it; missing rules and cancelled requests do not. While open,
// every call fails fast with a storage error.
type BreakerStore struct {
	store *Store
	cb    *gobreaker.CircuitBreaker
}

// NewBreakerStore wraps store.
func NewBreakerStore(store *Store, cfg BreakerConfig) *BreakerStore {
	settings := gobreaker.Settings{
		Name:          "correlation-store",
		MaxRequests:   cfg.MaxRequests,
		Interval:      cfg.Interval,
		Timeout:       cfg.Timeout,
		OnStateChange: cfg.OnStateChange,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < cfg.MinRequests {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= cfg.FailureRatio
		},
		IsSuccessful: func(err error) bool {
			return err == nil ||
				errors.Is(err, types.ErrNotFound) ||
				errors.Is(err, context.Canceled) ||
				!errors.Is(err, types.ErrStorage)
		},
	}
	return &BreakerStore{store: store, cb: gobreaker.NewCircuitBreaker(settings)}
}

// State returns the breaker state ("closed", "half-open" or "open").
func (b *BreakerStore) State() string {
	return b.cb.State().String()
}

func guard[T any](b *BreakerStore, fn func() (T, error)) (T, error) {
	v, err := b.cb.Execute(func() (interface{}, error) {
		return fn()
	})
	if err != nil {
		var zero T
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return zero, types.StorageError("store unavailable", err)
		}
		return zero, err
	}
	return v.(T), nil
}

func (b *BreakerStore) LoadRule(ctx context.Context, id types.RuleID) (*types.Rule, error) {
	return guard(b, func() (*types.Rule, error) { return b.store.LoadRule(ctx, id) })
}

func (b *BreakerStore) LoadConditions(ctx context.Context, id types.RuleID) ([]types.Condition, error) {
	return guard(b, func() ([]types.Condition, error) { return b.store.LoadConditions(ctx, id) })
}

func (b *BreakerStore) LoadOperations(ctx context.Context, id types.RuleID) ([]types.Operation, error) {
	return guard(b, func() ([]types.Operation, error) { return b.store.LoadOperations(ctx, id) })
}

func (b *BreakerStore) ListRules(ctx context.Context, opts types.ListOptions) ([]types.Rule, error) {
	return guard(b, func() ([]types.Rule, error) { return b.store.ListRules(ctx, opts) })
}

func (b *BreakerStore) SaveRule(ctx context.Context, ch types.RuleChanges) error {
	_, err := guard(b, func() (struct{}, error) { return struct{}{}, b.store.SaveRule(ctx, ch) })
	return err
}

func (b *BreakerStore) DeleteRules(ctx context.Context, ids []types.RuleID) error {
	_, err := guard(b, func() (struct{}, error) { return struct{}{}, b.store.DeleteRules(ctx, ids) })
	return err
}

func (b *BreakerStore) IsDuplicate(ctx context.Context, name string, excluding types.RuleID) (bool, error) {
	return guard(b, func() (bool, error) { return b.store.IsDuplicate(ctx, name, excluding) })
}

func (b *BreakerStore) ExistsAll(ctx context.Context, ids []types.GroupID) (bool, error) {
	return guard(b, func() (bool, error) { return b.store.ExistsAll(ctx, ids) })
}

type breakerSequence struct {
	b   *BreakerStore
	seq correlation.IDSequence
}

func (s breakerSequence) Next(ctx context.Context) (uint64, error) {
	return guard(s.b, func() (uint64, error) { return s.seq.Next(ctx) })
}

func (b *BreakerStore) ConditionSequence() correlation.IDSequence {
	return breakerSequence{b: b, seq: b.store.ConditionSequence()}
}

func (b *BreakerStore) OperationSequence() correlation.IDSequence {
	return breakerSequence{b: b, seq: b.store.OperationSequence()}
}
