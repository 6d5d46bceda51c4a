package correlation

import (
	"context"
	"errors"
	"math/rand"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/solatis/correlate/internal/types"
)

func tagCond(id types.ConditionID, tag string) types.Condition {
	return types.Condition{ID: id, Type: types.CondNewEventTag, Operator: types.OpEqual, Payload: types.TagPayload{Tag: tag}}
}

func groupCond(id types.ConditionID, group types.GroupID, op types.Operator) types.Condition {
	return types.Condition{ID: id, Type: types.CondNewEventHostGroup, Operator: op, Payload: types.HostGroupPayload{GroupID: group}}
}

func TestAssign_Create(t *testing.T) {
	seq := &Counter{}
	incoming := []types.Condition{tagCond(0, "a"), tagCond(0, "b")}

	got, err := Assign(context.Background(), nil, incoming, seq)
	if err != nil {
		t.Fatalf("Assign() error = %v, want nil", err)
	}
	if got.Conditions[0].ID != 1 || got.Conditions[1].ID != 2 {
		t.Errorf("IDs = %d, %d, want 1, 2", got.Conditions[0].ID, got.Conditions[1].ID)
	}
	if len(got.Inserted) != 2 || len(got.Reused) != 0 || len(got.Deleted) != 0 {
		t.Errorf("Assign() = %+v, want two inserts", got)
	}
	if incoming[0].ID != 0 {
		t.Error("Assign() modified its input")
	}
}

func TestAssign_Update(t *testing.T) {
	seq := &Counter{}
	seq.n.Store(100)
	existing := []types.Condition{
		tagCond(10, "a"),
		tagCond(11, "b"),
		groupCond(12, 5, types.OpEqual),
	}
	incoming := []types.Condition{
		tagCond(0, "c"),
		groupCond(0, 5, types.OpNotEqual),
		tagCond(0, "a"),
	}

	got, err := Assign(context.Background(), existing, incoming, seq)
	if err != nil {
		t.Fatalf("Assign() error = %v, want nil", err)
	}

	wantIDs := []types.ConditionID{101, 12, 10}
	for j, want := range wantIDs {
		if got.Conditions[j].ID != want {
			t.Errorf("Conditions[%d].ID = %d, want %d", j, got.Conditions[j].ID, want)
		}
	}
	if len(got.Inserted) != 1 || got.Inserted[0] != 0 {
		t.Errorf("Inserted = %v, want [0]", got.Inserted)
	}
	if len(got.Updated) != 1 || got.Updated[0] != 1 {
		t.Errorf("Updated = %v, want [1]", got.Updated)
	}
	if got.Conditions[1].Operator != types.OpNotEqual {
		t.Errorf("updated operator = %v, want not-equal", got.Conditions[1].Operator)
	}
	if len(got.Reused) != 1 || got.Reused[0] != 2 {
		t.Errorf("Reused = %v, want [2]", got.Reused)
	}
	if len(got.Deleted) != 1 || got.Deleted[0] != 11 {
		t.Errorf("Deleted = %v, want [11]", got.Deleted)
	}
}

func TestAssign_ExactMatchWinsOverLoose(t *testing.T) {
	existing := []types.Condition{groupCond(7, 5, types.OpEqual)}
	incoming := []types.Condition{groupCond(0, 5, types.OpNotEqual), groupCond(0, 5, types.OpEqual)}

	got, err := Assign(context.Background(), existing, incoming, &Counter{})
	if err != nil {
		t.Fatalf("Assign() error = %v", err)
	}
	if got.Conditions[1].ID != 7 {
		t.Errorf("exact match ID = %d, want 7", got.Conditions[1].ID)
	}
	if got.Conditions[0].ID == 7 {
		t.Error("existing condition claimed twice")
	}
}

type failingSeq struct{}

func (failingSeq) Next(context.Context) (uint64, error) { return 0, errors.New("sequence exhausted") }

func TestAssign_SequenceError(t *testing.T) {
	_, err := Assign(context.Background(), nil, []types.Condition{tagCond(0, "a")}, failingSeq{})
	if err == nil {
		t.Fatal("Assign() error = nil, want sequence error")
	}
}

func TestAssignOperations(t *testing.T) {
	seq := &Counter{}
	seq.n.Store(50)
	existing := []types.Operation{{ID: 3, Type: types.OperationCloseOld}}

	got, err := AssignOperations(context.Background(), existing,
		[]types.OperationType{types.OperationCloseNew, types.OperationCloseOld}, seq)
	if err != nil {
		t.Fatalf("AssignOperations() error = %v", err)
	}
	if got.Operations[0].ID != 51 || got.Operations[1].ID != 3 {
		t.Errorf("Operations = %+v, want IDs 51, 3", got.Operations)
	}
	if len(got.Inserted) != 1 || got.Inserted[0] != 0 || len(got.Deleted) != 0 {
		t.Errorf("AssignOperations() = %+v", got)
	}

	got, err = AssignOperations(context.Background(), existing, []types.OperationType{types.OperationCloseNew}, seq)
	if err != nil {
		t.Fatalf("AssignOperations() error = %v", err)
	}
	if len(got.Deleted) != 1 || got.Deleted[0] != 3 {
		t.Errorf("Deleted = %v, want [3]", got.Deleted)
	}
}

func TestAssign_Properties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("unchanged conditions keep their IDs in any order", prop.ForAll(
		func(seed int64, n int, keep int) bool {
			rng := rand.New(rand.NewSource(seed))
			existing := make([]types.Condition, n)
			for i := range existing {
				existing[i] = tagCond(types.ConditionID(i+1), string(rune('a'+i)))
			}
			if keep > n {
				keep = n
			}

			kept := rng.Perm(n)[:keep]
			var incoming []types.Condition
			for _, i := range kept {
				c := existing[i]
				c.ID = 0
				incoming = append(incoming, c)
			}
			incoming = append(incoming, tagCond(0, "new-1"), tagCond(0, "new-2"))
			rng.Shuffle(len(incoming), func(i, j int) { incoming[i], incoming[j] = incoming[j], incoming[i] })

			seq := &Counter{}
			seq.n.Store(1000)
			got, err := Assign(context.Background(), existing, incoming, seq)
			if err != nil {
				return false
			}

			claimed := make(map[types.ConditionID]int)
			for _, c := range got.Conditions {
				claimed[c.ID]++
				if c.ID <= types.ConditionID(n) {
					if existing[c.ID-1].Key() != c.Key() {
						return false
					}
				}
			}
			for _, count := range claimed {
				if count != 1 {
					return false
				}
			}
			return len(got.Reused) == keep && len(got.Inserted) == 2 && len(got.Deleted) == n-keep
		},
		gen.Int64(),
		gen.IntRange(0, 20),
		gen.IntRange(0, 20),
	))

	properties.TestingRun(t)
}
