package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/solatis/correlate/internal/correlation"
	"github.com/solatis/correlate/internal/types"
)

// Store is the SQL correlation rule store. It implements the store,
// host group lookup and name uniqueness contracts of the correlation
// service, and serves ID sequences from the ids table.
//
// Driver errors are returned as types.StorageError with the driver error as
// cause. A missing rule is types.ErrNotFound.
type Store struct {
	db *sqlx.DB
	q  *Queries
}

// NewStore prepares a store over an opened and migrated database.
func NewStore(db *sqlx.DB) (*Store, error) {
	q, err := LoadQueries()
	if err != nil {
		return nil, err
	}
	return &Store{db: db, q: q}, nil
}

type correlationRow struct {
	ID          string `db:"correlationid"`
	Name        string `db:"name"`
	Description string `db:"description"`
	EvalType    int    `db:"evaltype"`
	Status      int    `db:"status"`
	Formula     string `db:"formula"`
	CreatedAt   string `db:"created_at"`
	UpdatedAt   string `db:"updated_at"`
}

func (r correlationRow) rule() types.Rule {
	rule := types.Rule{
		ID:          types.RuleID(r.ID),
		Name:        r.Name,
		Description: r.Description,
		EvalType:    types.EvalType(r.EvalType),
		Status:      types.Status(r.Status),
		Formula:     r.Formula,
	}
	rule.CreatedAt, _ = parseTimestamp(r.CreatedAt)
	rule.UpdatedAt, _ = parseTimestamp(r.UpdatedAt)
	return rule
}

type conditionRow struct {
	ID       uint64 `db:"corr_conditionid"`
	Type     int    `db:"type"`
	Tag      string `db:"tag"`
	GroupID  uint64 `db:"groupid"`
	OldTag   string `db:"oldtag"`
	NewTag   string `db:"newtag"`
	Value    string `db:"value"`
	Operator int    `db:"operator"`
}

func (r conditionRow) condition() (types.Condition, error) {
	c := types.Condition{
		ID:       types.ConditionID(r.ID),
		Type:     types.ConditionType(r.Type),
		Operator: types.Operator(r.Operator),
	}
	switch c.Type {
	case types.CondOldEventTag, types.CondNewEventTag:
		c.Payload = types.TagPayload{Tag: r.Tag}
	case types.CondNewEventHostGroup:
		c.Payload = types.HostGroupPayload{GroupID: types.GroupID(r.GroupID)}
	case types.CondEventTagPair:
		c.Payload = types.TagPairPayload{OldTag: r.OldTag, NewTag: r.NewTag}
	case types.CondOldEventTagValue, types.CondNewEventTagValue:
		c.Payload = types.TagValuePayload{Tag: r.Tag, Value: r.Value}
	default:
		return types.Condition{}, fmt.Errorf("condition %d has unknown type %d", r.ID, r.Type)
	}
	return c, nil
}

type operationRow struct {
	ID   uint64 `db:"corr_operationid"`
	Type int    `db:"type"`
}

func (s *Store) LoadRule(ctx context.Context, id types.RuleID) (*types.Rule, error) {
	var row correlationRow
	err := s.q.Get(ctx, s.db, "get-correlation", &row, string(id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, types.ErrNotFound
	}
	if err != nil {
		return nil, types.StorageError("load rule", err)
	}
	rule := row.rule()
	return &rule, nil
}

func (s *Store) LoadConditions(ctx context.Context, id types.RuleID) ([]types.Condition, error) {
	var rows []conditionRow
	if err := s.q.Select(ctx, s.db, "select-conditions", &rows, string(id)); err != nil {
		return nil, types.StorageError("load conditions", err)
	}
	conds := make([]types.Condition, 0, len(rows))
	for _, r := range rows {
		c, err := r.condition()
		if err != nil {
			return nil, types.StorageError("load conditions", err)
		}
		conds = append(conds, c)
	}
	return conds, nil
}

func (s *Store) LoadOperations(ctx context.Context, id types.RuleID) ([]types.Operation, error) {
	var rows []operationRow
	if err := s.q.Select(ctx, s.db, "select-operations", &rows, string(id)); err != nil {
		return nil, types.StorageError("load operations", err)
	}
	ops := make([]types.Operation, 0, len(rows))
	for _, r := range rows {
		ops = append(ops, types.Operation{ID: types.OperationID(r.ID), Type: types.OperationType(r.Type)})
	}
	return ops, nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// ListRules returns rules ordered by name.
func (s *Store) ListRules(ctx context.Context, opts types.ListOptions) ([]types.Rule, error) {
	status := -1
	if opts.Status != nil {
		status = int(*opts.Status)
	}
	pattern := ""
	if opts.Search != "" {
		pattern = "%" + likeEscaper.Replace(opts.Search) + "%"
	}
	limit := math.MaxInt32
	if opts.Limit > 0 {
		limit = opts.Limit
	}

	var rows []correlationRow
	if err := s.q.Select(ctx, s.db, "list-correlations", &rows, status, status, pattern, pattern, limit); err != nil {
		return nil, types.StorageError("list rules", err)
	}
	rules := make([]types.Rule, 0, len(rows))
	for _, r := range rows {
		rules = append(rules, r.rule())
	}
	return rules, nil
}

// SaveRule applies a change set in one transaction.
func (s *Store) SaveRule(ctx context.Context, ch types.RuleChanges) (err error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return types.StorageError("save rule", err)
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	if err := s.saveRule(ctx, tx, ch); err != nil {
		return types.StorageError("save rule", err)
	}
	if err := tx.Commit(); err != nil {
		return types.StorageError("save rule", err)
	}
	return nil
}

func (s *Store) saveRule(ctx context.Context, tx *sqlx.Tx, ch types.RuleChanges) error {
	r := ch.Rule
	if ch.Create {
		if _, err := s.q.Exec(ctx, tx, "insert-correlation",
			string(r.ID), r.Name, r.Description, int(r.EvalType), int(r.Status), r.Formula,
			formatTimestamp(r.CreatedAt), formatTimestamp(r.UpdatedAt)); err != nil {
			return err
		}
	} else {
		res, err := s.q.Exec(ctx, tx, "update-correlation",
			r.Name, r.Description, int(r.EvalType), int(r.Status), r.Formula, formatTimestamp(r.UpdatedAt), string(r.ID))
		if err != nil {
			return err
		}
		if n, err := res.RowsAffected(); err == nil && n == 0 {
			return types.ErrNotFound
		}
	}

	for _, id := range ch.DeletedConditions {
		if err := s.deleteCondition(ctx, tx, uint64(id)); err != nil {
			return err
		}
	}
	for _, c := range ch.InsertedConditions {
		if err := s.insertCondition(ctx, tx, r.ID, c); err != nil {
			return err
		}
	}
	for _, c := range ch.UpdatedConditions {
		if err := s.updateCondition(ctx, tx, c); err != nil {
			return err
		}
	}

	for _, id := range ch.DeletedOperations {
		if _, err := s.q.Exec(ctx, tx, "delete-operation", uint64(id)); err != nil {
			return err
		}
	}
	for _, op := range ch.InsertedOperations {
		if _, err := s.q.Exec(ctx, tx, "insert-operation", uint64(op.ID), string(r.ID), int(op.Type)); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) insertCondition(ctx context.Context, tx *sqlx.Tx, rule types.RuleID, c types.Condition) error {
	id := uint64(c.ID)
	if _, err := s.q.Exec(ctx, tx, "insert-condition", id, string(rule), int(c.Type)); err != nil {
		return err
	}

	var err error
	switch p := c.Payload.(type) {
	case types.TagPayload:
		_, err = s.q.Exec(ctx, tx, "insert-condition-tag", id, p.Tag)
	case types.HostGroupPayload:
		_, err = s.q.Exec(ctx, tx, "insert-condition-group", id, int(c.Operator), uint64(p.GroupID))
	case types.TagPairPayload:
		_, err = s.q.Exec(ctx, tx, "insert-condition-tagpair", id, p.OldTag, p.NewTag)
	case types.TagValuePayload:
		_, err = s.q.Exec(ctx, tx, "insert-condition-tagvalue", id, p.Tag, int(c.Operator), p.Value)
	default:
		err = fmt.Errorf("condition %d has no payload", id)
	}
	return err
}

// updateCondition rewrites the operator, the only field a reused condition
// can change.
func (s *Store) updateCondition(ctx context.Context, tx *sqlx.Tx, c types.Condition) error {
	var err error
	switch c.Payload.(type) {
	case types.HostGroupPayload:
		_, err = s.q.Exec(ctx, tx, "update-condition-group-operator", int(c.Operator), uint64(c.ID))
	case types.TagValuePayload:
		_, err = s.q.Exec(ctx, tx, "update-condition-tagvalue-operator", int(c.Operator), uint64(c.ID))
	}
	return err
}

var conditionPayloadDeletes = []string{
	"delete-condition-tag",
	"delete-condition-group",
	"delete-condition-tagpair",
	"delete-condition-tagvalue",
}

func (s *Store) deleteCondition(ctx context.Context, tx *sqlx.Tx, id uint64) error {
	for _, name := range conditionPayloadDeletes {
		if _, err := s.q.Exec(ctx, tx, name, id); err != nil {
			return err
		}
	}
	_, err := s.q.Exec(ctx, tx, "delete-condition", id)
	return err
}

// DeleteRules removes rules with their conditions and operations in one
// transaction.
func (s *Store) DeleteRules(ctx context.Context, ids []types.RuleID) (err error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return types.StorageError("delete rules", err)
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	for _, id := range ids {
		if err := s.deleteRule(ctx, tx, id); err != nil {
			return types.StorageError("delete rules", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return types.StorageError("delete rules", err)
	}
	return nil
}

func (s *Store) deleteRule(ctx context.Context, tx *sqlx.Tx, id types.RuleID) error {
	var condIDs []uint64
	if err := s.q.Select(ctx, tx, "select-condition-ids", &condIDs, string(id)); err != nil {
		return err
	}
	for _, cid := range condIDs {
		if err := s.deleteCondition(ctx, tx, cid); err != nil {
			return err
		}
	}
	if _, err := s.q.Exec(ctx, tx, "delete-correlation-operations", string(id)); err != nil {
		return err
	}
	res, err := s.q.Exec(ctx, tx, "delete-correlation", string(id))
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return types.ErrNotFound
	}
	return nil
}

// IsDuplicate reports whether a rule other than excluding is named name.
func (s *Store) IsDuplicate(ctx context.Context, name string, excluding types.RuleID) (bool, error) {
	var n int
	if err := s.q.Get(ctx, s.db, "count-correlation-name", &n, name, string(excluding)); err != nil {
		return false, types.StorageError("check name", err)
	}
	return n > 0, nil
}

// ExistsAll reports whether every host group exists.
func (s *Store) ExistsAll(ctx context.Context, ids []types.GroupID) (bool, error) {
	if len(ids) == 0 {
		return true, nil
	}
	want := make(map[uint64]bool, len(ids))
	args := make([]uint64, 0, len(ids))
	for _, id := range ids {
		if !want[uint64(id)] {
			want[uint64(id)] = true
			args = append(args, uint64(id))
		}
	}

	var found []uint64
	if err := s.q.SelectIn(ctx, s.db, "select-hostgroup-ids", &found, args); err != nil {
		return false, types.StorageError("check host groups", err)
	}
	return len(found) == len(want), nil
}

// AddHostGroup registers a host group that conditions may reference.
func (s *Store) AddHostGroup(ctx context.Context, id types.GroupID, name string) error {
	if _, err := s.q.Exec(ctx, s.db, "insert-hostgroup", uint64(id), name); err != nil {
		return types.StorageError("add host group", err)
	}
	return nil
}

// Sequence mints IDs for one table column from the ids table.
type Sequence struct {
	store *Store
	table string
	field string
}

// Next increments and returns the counter in its own transaction.
func (q *Sequence) Next(ctx context.Context) (id uint64, err error) {
	tx, err := q.store.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, types.StorageError("next id", err)
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	res, err := q.store.q.Exec(ctx, tx, "increment-id", q.table, q.field)
	if err != nil {
		return 0, types.StorageError("next id", err)
	}
	if n, rerr := res.RowsAffected(); rerr == nil && n == 0 {
		return 0, types.StorageError("next id", fmt.Errorf("no sequence for %s.%s", q.table, q.field))
	}
	if err = q.store.q.Get(ctx, tx, "get-id", &id, q.table, q.field); err != nil {
		return 0, types.StorageError("next id", err)
	}
	if err = tx.Commit(); err != nil {
		return 0, types.StorageError("next id", err)
	}
	return id, nil
}

// ConditionSequence returns the sequence for condition IDs.
func (s *Store) ConditionSequence() correlation.IDSequence {
	return &Sequence{store: s, table: "corr_condition", field: "corr_conditionid"}
}

// OperationSequence returns the sequence for operation IDs.
func (s *Store) OperationSequence() correlation.IDSequence {
	return &Sequence{store: s, table: "corr_operation", field: "corr_operationid"}
}
