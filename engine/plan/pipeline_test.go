package plan

import (
	"testing"

	"github.com/wbrown/joinengine/engine/column"
	"github.com/wbrown/joinengine/engine/query"
	"github.com/wbrown/joinengine/engine/relation"
)

func mkRelation(id int, values ...uint64) *relation.Relation {
	r := relation.New(id, []column.Column{column.FromU64(values)})
	r.Precompute(nil)
	return r
}

func TestBuildEmitsScanFilterJoinProjection(t *testing.T) {
	r0 := mkRelation(0, 0, 1, 2, 3, 4)
	r1 := mkRelation(1, 0, 1, 2, 3, 4, 5)
	relations := []*relation.Relation{r0, r1}

	q := &query.Query{
		RelationIDs: []int{0, 1},
		Predicates: []query.Predicate{
			{Left: query.Selection{Binding: 0, Column: 0}, Right: query.Selection{Binding: 1, Column: 0}},
		},
		Filters: []query.Filter{
			{Sel: query.Selection{Binding: 0, Column: 0}, Comparison: query.Greater, Constant: 1},
		},
		Selections: []query.Selection{{Binding: 1, Column: 0}},
	}

	steps, err := Build(q, relations)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	wantKinds := []Kind{Scan, Filter, JoinUnique, Projection}
	if len(steps) != len(wantKinds) {
		t.Fatalf("steps = %+v, want %d steps", steps, len(wantKinds))
	}
	for i, k := range wantKinds {
		if steps[i].Kind != k {
			t.Errorf("steps[%d].Kind = %v, want %v", i, steps[i].Kind, k)
		}
	}
	// both relation 0 and relation 1's column 0 are unique (Precompute
	// marks column 0 of every relation unique), so the planner must
	// choose JoinUnique.
}

func TestBuildChoosesJoinWhenRightColumnNotUnique(t *testing.T) {
	r0 := mkRelation(0, 0, 1, 2)
	r1 := relation.New(1, []column.Column{
		column.FromU64([]uint64{100, 101, 102}), // col0: unique key
		column.FromU64([]uint64{0, 0, 1}),       // col1: not unique
	})
	r1.Precompute(nil)
	relations := []*relation.Relation{r0, r1}

	q := &query.Query{
		RelationIDs: []int{0, 1},
		Predicates: []query.Predicate{
			{Left: query.Selection{Binding: 0, Column: 0}, Right: query.Selection{Binding: 1, Column: 1}},
		},
		Selections: []query.Selection{{Binding: 1, Column: 0}},
	}

	steps, err := Build(q, relations)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	found := false
	for _, s := range steps {
		if s.Kind == Join {
			found = true
		}
		if s.Kind == JoinUnique {
			t.Fatalf("expected a plain Join (non-unique right column), got JoinUnique: %+v", steps)
		}
	}
	if !found {
		t.Fatalf("expected a Join step, got %+v", steps)
	}
}

func TestBuildChoosesSelfJoinForRepeatedBinding(t *testing.T) {
	r0 := relation.New(0, []column.Column{
		column.FromU64([]uint64{0, 1, 2}),
		column.FromU64([]uint64{0, 1, 3}),
	})
	r0.Precompute(nil)
	relations := []*relation.Relation{r0}

	q := &query.Query{
		RelationIDs: []int{0},
		Predicates: []query.Predicate{
			{Left: query.Selection{Binding: 0, Column: 0}, Right: query.Selection{Binding: 0, Column: 1}},
		},
		Selections: []query.Selection{{Binding: 0, Column: 0}},
	}

	steps, err := Build(q, relations)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if len(steps) != 3 || steps[1].Kind != SelfJoin {
		t.Fatalf("steps = %+v, want [Scan SelfJoin Projection]", steps)
	}
}

func TestBuildRejectsEmptyQuery(t *testing.T) {
	if _, err := Build(&query.Query{}, nil); err == nil {
		t.Fatal("Build should reject a query with no relations")
	}
}
