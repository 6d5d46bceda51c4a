package formula

import (
	"context"
	"math/rand"
	"strconv"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/solatis/correlate/internal/types"
)

func TestCELSource(t *testing.T) {
	e, err := ParseNumeric("10 and (11 or 12)")
	if err != nil {
		t.Fatalf("ParseNumeric() error = %v", err)
	}
	src, err := CELSource(e)
	if err != nil {
		t.Fatalf("CELSource() error = %v", err)
	}
	if want := "c[10u] && (c[11u] || c[12u])"; src != want {
		t.Errorf("CELSource() = %q, want %q", src, want)
	}

	if _, err := CELSource(MustParse("A")); err == nil {
		t.Error("CELSource(letters) error = nil, want error")
	}
}

func TestCompileCEL_MaxID(t *testing.T) {
	e, err := ParseNumeric("18446744073709551615 or 1")
	if err != nil {
		t.Fatalf("ParseNumeric() error = %v", err)
	}
	prg, err := CompileCEL(e)
	if err != nil {
		t.Fatalf("CompileCEL() error = %v", err)
	}
	got, err := prg.Eval(context.Background(), map[types.ConditionID]bool{18446744073709551615: true})
	if err != nil {
		t.Fatalf("Eval() error = %v", err)
	}
	if !got {
		t.Error("Eval() = false, want true for the largest condition ID")
	}
}

func TestCompileCEL_Eval(t *testing.T) {
	e, err := ParseNumeric("10 and (11 or 12)")
	if err != nil {
		t.Fatalf("ParseNumeric() error = %v", err)
	}
	prg, err := CompileCEL(e)
	if err != nil {
		t.Fatalf("CompileCEL() error = %v", err)
	}

	tests := []struct {
		matched map[types.ConditionID]bool
		want    bool
	}{
		{map[types.ConditionID]bool{10: true, 11: true}, true},
		{map[types.ConditionID]bool{10: true, 12: true}, true},
		{map[types.ConditionID]bool{10: true}, false},
		{map[types.ConditionID]bool{11: true, 12: true}, false},
		{nil, false},
	}
	for i, tt := range tests {
		got, err := prg.Eval(context.Background(), tt.matched)
		if err != nil {
			t.Fatalf("case %d: Eval() error = %v", i, err)
		}
		if got != tt.want {
			t.Errorf("case %d: Eval(%v) = %v, want %v", i, tt.matched, got, tt.want)
		}
	}
}

func TestCompileCEL_AgreesWithEvaluate(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("CEL program and AST evaluator agree", prop.ForAll(
		func(seed int64, n int) bool {
			rng := rand.New(rand.NewSource(seed))
			leaves := randomLeaves(rng, n, 8, func(i int) string { return strconv.Itoa(i + 1) })
			e := NewExpr(randomTree(rng, leaves), true)

			prg, err := CompileCEL(e)
			if err != nil {
				return false
			}
			matched := make(map[types.ConditionID]bool)
			for i := 1; i <= 8; i++ {
				matched[types.ConditionID(i)] = rng.Intn(2) == 0
			}
			got, err := prg.Eval(context.Background(), matched)
			if err != nil {
				return false
			}
			want := Evaluate(e, func(name string) bool {
				id, _ := strconv.ParseUint(name, 10, 64)
				return matched[types.ConditionID(id)]
			})
			return got == want
		},
		gen.Int64(),
		gen.IntRange(1, 10),
	))

	properties.TestingRun(t)
}
