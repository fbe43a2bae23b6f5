package executor_test

import (
	"reflect"
	"testing"

	"github.com/wbrown/joinengine/engine/codegen"
	"github.com/wbrown/joinengine/engine/column"
	"github.com/wbrown/joinengine/engine/executor"
	"github.com/wbrown/joinengine/engine/plan"
	"github.com/wbrown/joinengine/engine/planner"
	"github.com/wbrown/joinengine/engine/query"
	"github.com/wbrown/joinengine/engine/relation"
)

// runAllModes parses, rewrites, plans, and executes line through the
// interpreter and every fused level (plus morsel-parallel execution of
// each), asserting every mode agrees — spec.md §8's cross-mode
// equivalence property.
func runAllModes(t *testing.T, relations []*relation.Relation, line string) (uint64, []uint64) {
	t.Helper()

	q, err := query.Parse(line)
	if err != nil {
		t.Fatalf("Parse(%q): %v", line, err)
	}
	rewritten, err := planner.Rewrite(q, relations)
	if err != nil {
		t.Fatalf("Rewrite(%q): %v", line, err)
	}
	steps, err := plan.Build(rewritten, relations)
	if err != nil {
		t.Fatalf("Build(%q): %v", line, err)
	}

	interp, err := executor.Execute(steps, relations)
	if err != nil {
		t.Fatalf("Execute(%q): %v", line, err)
	}

	for _, level := range []codegen.Level{codegen.LevelA, codegen.LevelL0, codegen.LevelL1, codegen.LevelL2, codegen.LevelL3} {
		stage, err := codegen.Compile(steps, relations, level)
		if err != nil {
			t.Fatalf("Compile(%q, level=%d): %v", line, level, err)
		}
		tuples := relations[steps[0].RelationID].Tuples()
		out := make([]uint64, len(rewritten.Selections))
		amount := stage(0, tuples, out)

		if amount != interp.Amount || !reflect.DeepEqual(out, interp.Sums) {
			t.Errorf("%q level=%d: got (amount=%d, sums=%v), interpreter got (amount=%d, sums=%v)",
				line, level, amount, out, interp.Amount, interp.Sums)
		}

		// morsel-parallel execution must agree too, regardless of worker count
		morselAmount, morselSums := codegen.RunMorsels(stage, tuples, len(rewritten.Selections), 4)
		if morselAmount != interp.Amount || !reflect.DeepEqual(morselSums, interp.Sums) {
			t.Errorf("%q level=%d morsels: got (amount=%d, sums=%v), interpreter got (amount=%d, sums=%v)",
				line, level, morselAmount, morselSums, interp.Amount, interp.Sums)
		}
	}

	return interp.Amount, interp.Sums
}

// Every relation built below respects spec.md's invariant that column 0
// is unique, so each relation's built index for column 0 is a Unique
// index, exactly as the precomputation step assumes.

func TestJoinOnNonUniqueColumnAgreesAcrossModes(t *testing.T) {
	r0 := relation.New(0, []column.Column{
		column.FromU64([]uint64{0, 1, 2, 3, 4}),      // col0: unique key
		column.FromU64([]uint64{10, 20, 30, 40, 50}), // col1: value
	})
	r1 := relation.New(1, []column.Column{
		column.FromU64([]uint64{100, 101, 102, 103, 104, 105}), // col0: unique key
		column.FromU64([]uint64{0, 0, 1, 3, 4, 4}),             // col1: FK into r0.col0
	})
	for _, r := range []*relation.Relation{r0, r1} {
		r.Precompute(nil)
	}
	relations := []*relation.Relation{r0, r1}

	// r0.col0 = r1.col1, select r0.col1 and r1.col0
	amount, sums := runAllModes(t, relations, "0 1|0.0=1.1|0.1 1.0")
	if amount != 6 {
		t.Errorf("amount = %d, want 6 (every r1 row has a matching r0.col0)", amount)
	}
	if want := uint64(10 + 10 + 20 + 40 + 50 + 50); sums[0] != want {
		t.Errorf("sums[0] = %d, want %d", sums[0], want)
	}
	if want := uint64(100 + 101 + 102 + 103 + 104 + 105); sums[1] != want {
		t.Errorf("sums[1] = %d, want %d", sums[1], want)
	}
}

func TestFilterOnlyQueryAgreesAcrossModes(t *testing.T) {
	r0 := relation.New(0, []column.Column{
		column.FromU64([]uint64{0, 1, 2, 3, 4}),
		column.FromU64([]uint64{10, 20, 30, 40, 50}),
	})
	r0.Precompute(nil)

	amount, sums := runAllModes(t, []*relation.Relation{r0}, "0|0.1>25|0.0 0.1")
	if amount != 3 {
		t.Errorf("amount = %d, want 3 (rows with col1 > 25)", amount)
	}
	if want := uint64(2 + 3 + 4); sums[0] != want {
		t.Errorf("sums[0] = %d, want %d", sums[0], want)
	}
	if want := uint64(30 + 40 + 50); sums[1] != want {
		t.Errorf("sums[1] = %d, want %d", sums[1], want)
	}
}

func TestSemiJoinAgreesAcrossModes(t *testing.T) {
	r0 := relation.New(0, []column.Column{
		column.FromU64([]uint64{0, 1, 2, 3, 4, 5}), // col0: unique key, full domain
	})
	r1 := relation.New(1, []column.Column{
		column.FromU64([]uint64{200, 201, 202, 203, 204}), // col0: unique key
		column.FromU64([]uint64{0, 1, 2, 99, 4}),          // col1: FK, one value (99) absent from r0
	})
	for _, r := range []*relation.Relation{r0, r1} {
		r.Precompute(nil)
	}
	// relation list order is [1, 0]; r1 (5 rows) is already smaller than
	// r0 (6 rows) so the selectivity reorder leaves bindings untouched:
	// binding 0 -> relation 1, binding 1 -> relation 0.
	relations := []*relation.Relation{r0, r1}

	// binding0.col1 (r1's FK) = binding1.col0 (r0's unique key); neither
	// r0's selections nor any later predicate touch r0, and the join
	// column is column 0, so the planner should choose a SemiJoin.
	amount, sums := runAllModesWithIDs(t, relations, []int{1, 0}, "0.1=1.0", "0.0 0.1")
	if amount != 4 {
		t.Errorf("amount = %d, want 4 (row with FK=99 has no match in r0)", amount)
	}
	if want := uint64(200 + 201 + 202 + 204); sums[0] != want {
		t.Errorf("sums[0] = %d, want %d", sums[0], want)
	}
	if want := uint64(0 + 1 + 2 + 4); sums[1] != want {
		t.Errorf("sums[1] = %d, want %d", sums[1], want)
	}
}

// runAllModesWithIDs builds the query line "ids|pred|sels" from relation
// ids (so the test can spell out a binding order independent of
// relation id order) and runs it through runAllModes.
func runAllModesWithIDs(t *testing.T, relations []*relation.Relation, ids []int, predicates, selections string) (uint64, []uint64) {
	t.Helper()
	line := ""
	for i, id := range ids {
		if i > 0 {
			line += " "
		}
		line += itoa(id)
	}
	line += "|" + predicates + "|" + selections
	return runAllModes(t, relations, line)
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	digits := ""
	for n > 0 {
		digits = string(rune('0'+n%10)) + digits
		n /= 10
	}
	return digits
}

func TestFilterMatchesNothingYieldsNullSums(t *testing.T) {
	r0 := relation.New(0, []column.Column{
		column.FromU64([]uint64{0, 1, 2, 3, 4}),
		column.FromU64([]uint64{10, 20, 30, 40, 50}),
	})
	r0.Precompute(nil)

	amount, sums := runAllModes(t, []*relation.Relation{r0}, "0|0.1>1000|0.0 0.1")
	if amount != 0 {
		t.Errorf("amount = %d, want 0", amount)
	}
	for i, s := range sums {
		if s != 0 {
			t.Errorf("sums[%d] = %d, want 0 when no rows match", i, s)
		}
	}
}

func TestEmptyRelationQuery(t *testing.T) {
	r0 := relation.New(0, []column.Column{column.FromU64(nil), column.FromU64(nil)})
	r0.Precompute(nil)

	amount, _ := runAllModes(t, []*relation.Relation{r0}, "0|0.1>0|0.0 0.1")
	if amount != 0 {
		t.Errorf("amount = %d, want 0 for an empty relation", amount)
	}
}
