// Package plan builds the shared, relation-bound operator sequence both
// execution modes (engine/executor and engine/codegen) walk. Keeping
// this logic in one package means the semijoin-vs-join decision and the
// self-join/used-later analysis are implemented exactly once, the Go
// rendition of Query::constructPipeline
// (original_source/src/Query.cpp).
package plan

import (
	"fmt"

	"github.com/wbrown/joinengine/engine/query"
	"github.com/wbrown/joinengine/engine/relation"
)

// Kind identifies which operator a Step represents.
type Kind int

const (
	Scan Kind = iota
	Filter
	Join
	JoinUnique
	SelfJoin
	SemiJoin
	Projection
)

// Step is one node of the left-deep pipeline, already bound to concrete
// relation ids (not query bindings) so both execution modes can look up
// columns and indexes directly.
type Step struct {
	Kind Kind

	// Scan, Join, JoinUnique: the relation being scanned/probed.
	RelationID int

	// Scan only: which query binding this scan instantiates. Join,
	// SelfJoin, JoinUnique, SemiJoin all carry their binding inside
	// Right instead.
	Binding int

	// Filter
	Filter query.Filter

	// Join, JoinUnique, SelfJoin: left operand is always already bound
	// by an earlier step; right operand belongs to RelationID.
	Left  query.Selection
	Right query.Selection

	// Projection
	Selections  []query.Selection
	RelationIDs []int // binding -> relation id, for resolving Selections
}

// Build turns a rewritten query into the left-deep Step sequence:
// Scan, its Filters, then one Join/JoinUnique/SelfJoin/SemiJoin per
// predicate (in rewritten order), each possibly followed by Filters on
// the relation it just brought in, and a trailing Projection.
func Build(q *query.Query, relations []*relation.Relation) ([]Step, error) {
	if len(q.RelationIDs) == 0 {
		return nil, fmt.Errorf("plan: query has no relations")
	}

	binding := 0
	if len(q.Predicates) > 0 {
		binding = q.Predicates[0].Left.Binding
	}
	relid := q.RelationIDs[binding]

	var steps []Step
	steps = append(steps, Step{Kind: Scan, RelationID: relid, Binding: binding})
	steps = appendFiltersFor(steps, q, binding, relid)

	used := 1 << uint(binding)

	for i, p := range q.Predicates {
		if used&(1<<uint(p.Left.Binding)) == 0 {
			return nil, fmt.Errorf("plan: predicate %s=%s is not reachable from the scan order", p.Left, p.Right)
		}

		relidRight := q.RelationIDs[p.Right.Binding]

		if used&(1<<uint(p.Right.Binding)) != 0 {
			steps = append(steps, Step{Kind: SelfJoin, RelationID: relidRight, Left: p.Left, Right: p.Right})
			continue
		}

		usedLater := bindingUsedLater(q, p.Right.Binding, i+1)
		if usedLater || !relations[relidRight].Column(p.Right.Column).Unique() {
			used |= 1 << uint(p.Right.Binding)
			kind := Join
			if relations[relidRight].Column(p.Right.Column).Unique() {
				kind = JoinUnique
			}
			steps = append(steps, Step{Kind: kind, RelationID: relidRight, Left: p.Left, Right: p.Right})
			steps = appendFiltersFor(steps, q, p.Right.Binding, relidRight)
		} else {
			steps = append(steps, Step{Kind: SemiJoin, RelationID: relidRight, Left: p.Left, Right: p.Right})
		}
	}

	steps = append(steps, Step{
		Kind:        Projection,
		Selections:  q.Selections,
		RelationIDs: q.RelationIDs,
	})

	return steps, nil
}

// appendFiltersFor adds one Filter step per filter predicate bound to
// binding, in query order.
func appendFiltersFor(steps []Step, q *query.Query, binding, relid int) []Step {
	for _, f := range q.Filters {
		if f.Sel.Binding == binding {
			steps = append(steps, Step{Kind: Filter, RelationID: relid, Filter: f})
		}
	}
	return steps
}

// bindingUsedLater reports whether binding is referenced by a later
// predicate, any filter, or any selection — the original's three-way
// check deciding whether a right-side relation must be materialized
// (Join/JoinUnique) or can be tested with a cheaper SemiJoin bitset
// probe, since semijoin's pass-through leaves no row ids for later
// operators to consume.
func bindingUsedLater(q *query.Query, binding int, from int) bool {
	for i := from; i < len(q.Predicates); i++ {
		p := q.Predicates[i]
		if p.Left.Binding == binding || p.Right.Binding == binding {
			return true
		}
	}
	for _, f := range q.Filters {
		if f.Sel.Binding == binding {
			return true
		}
	}
	for _, s := range q.Selections {
		if s.Binding == binding {
			return true
		}
	}
	return false
}
