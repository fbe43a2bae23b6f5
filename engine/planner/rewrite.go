// Package planner rewrites a parsed query into a form the pipeline
// builder can turn directly into operators: relations reordered by a
// selectivity heuristic, predicates normalized and connectivity-
// repaired, and redundant predicates/filters/selections collapsed via
// equivalence propagation.
//
// This is the Go rendition of the original engine's Query::rewrite
// (original_source/src/Query.cpp), generalized the way the teacher's
// reorderPhasesByRelations generalizes a similar greedy reorder-by-
// connectivity pass (datalog/planner/phase_reordering.go).
package planner

import (
	"fmt"
	"sort"

	"github.com/wbrown/joinengine/engine/query"
	"github.com/wbrown/joinengine/engine/relation"
)

// Rewrite returns a new, rewritten Query; the input is left untouched so
// callers (e.g. the plan cache) can keep the original around.
func Rewrite(q *query.Query, relations []*relation.Relation) (*query.Query, error) {
	r := q.Clone()

	rewritemap := reorderRelations(r, relations)
	applyRewriteMap(r, rewritemap)

	if len(r.Predicates) > 0 {
		sortPredicates(r.Predicates)
		if err := repairConnectivity(r.Predicates); err != nil {
			return nil, err
		}
	}

	propagateEquivalences(r)
	r.Predicates = dedupPredicates(r.Predicates)

	return r, nil
}

// reorderRelations sorts bindings most-selective-first: an equality
// filter beats any other filter, smaller relations beat larger ones,
// and having any filter at all beats having none — a direct port of the
// "poor man's selectivity" comparator in Query::rewrite. It returns the
// old-binding -> new-binding map used to rewrite every reference to a
// binding elsewhere in the query.
func reorderRelations(q *query.Query, relations []*relation.Relation) []int {
	n := len(q.RelationIDs)
	if n <= 1 {
		return identityMap(n)
	}

	hasFilter := make([]bool, n)
	hasEqFilter := make([]bool, n)
	for _, f := range q.Filters {
		hasFilter[f.Sel.Binding] = true
		if f.Comparison == query.Equal {
			hasEqFilter[f.Sel.Binding] = true
		}
	}

	order := make([]int, n)
	for i := range order {
		order[i] = i
	}

	sort.SliceStable(order, func(a, b int) bool {
		f, s := order[a], order[b]
		if hasEqFilter[f] != hasEqFilter[s] {
			return hasEqFilter[f]
		}
		fSize := relations[q.RelationIDs[f]].Tuples()
		sSize := relations[q.RelationIDs[s]].Tuples()
		if fSize != sSize {
			return fSize < sSize
		}
		if hasFilter[f] != hasFilter[s] {
			return hasFilter[f]
		}
		return false
	})

	rewritemap := make([]int, n)
	newIDs := make([]int, n)
	for newBinding, oldBinding := range order {
		rewritemap[oldBinding] = newBinding
		newIDs[newBinding] = q.RelationIDs[oldBinding]
	}
	q.RelationIDs = newIDs
	return rewritemap
}

func identityMap(n int) []int {
	m := make([]int, n)
	for i := range m {
		m[i] = i
	}
	return m
}

// applyRewriteMap rewrites every binding reference (predicates, filters,
// selections) through rewritemap, then normalizes each predicate so its
// Left binding is never greater than its Right binding.
func applyRewriteMap(q *query.Query, rewritemap []int) {
	for i := range q.Predicates {
		p := &q.Predicates[i]
		p.Left.Binding = rewritemap[p.Left.Binding]
		p.Right.Binding = rewritemap[p.Right.Binding]
		if p.Left.Binding > p.Right.Binding {
			p.Left, p.Right = p.Right, p.Left
		}
	}
	for i := range q.Filters {
		q.Filters[i].Sel.Binding = rewritemap[q.Filters[i].Sel.Binding]
	}
	for i := range q.Selections {
		q.Selections[i].Binding = rewritemap[q.Selections[i].Binding]
	}
}

// sortPredicates orders predicates by (left binding, right binding) so
// the left-deep pipeline builder can walk them in scan order.
func sortPredicates(predicates []query.Predicate) {
	sort.SliceStable(predicates, func(a, b int) bool {
		f, s := predicates[a], predicates[b]
		if f.Left.Binding != s.Left.Binding {
			return f.Left.Binding < s.Left.Binding
		}
		return f.Right.Binding < s.Right.Binding
	})
}

// repairConnectivity ensures the sorted predicate list forms a single
// left-deep chain: every predicate's left (or right, swapped into left)
// binding must already have been scanned by an earlier predicate.
//
// The original engine's "swap with next" trick retries a single
// misplaced predicate once, on the assumption that real query graphs
// are always connected after one swap. SPEC_FULL.md extends this to a
// fixed-point pass: keep retrying swaps until a full pass makes no
// progress, then report an error instead of silently mis-planning.
func repairConnectivity(predicates []query.Predicate) error {
	for progress := true; progress; {
		progress = false
		used := 1 << uint(predicates[0].Left.Binding)
		for i := 0; i < len(predicates); i++ {
			p := &predicates[i]
			left := used&(1<<uint(p.Left.Binding)) != 0
			right := used&(1<<uint(p.Right.Binding)) != 0
			switch {
			case !left && !right:
				if i+1 >= len(predicates) {
					return fmt.Errorf("planner: predicate %s=%s is disconnected from the scan order and cannot be repaired", p.Left, p.Right)
				}
				predicates[i], predicates[i+1] = predicates[i+1], predicates[i]
				progress = true
				i--
				continue
			case !left && right:
				p.Left, p.Right = p.Right, p.Left
			}
			used |= 1 << uint(p.Right.Binding)
		}
	}
	return nil
}

// propagateEquivalences rewrites every predicate's left side, every
// filter, and every selection to refer to the earliest equivalent
// binding.column pair established by a prior predicate — collapsing
// chains of equi-joins (0.0=1.0 & 1.0=2.0) down to their root so later
// operators read fewer distinct columns, exactly as Query::rewrite's
// REWRITE_EQUIVALENCE pass does.
func propagateEquivalences(q *query.Query) {
	for i := 1; i < len(q.Predicates); i++ {
		for j := 0; j < i; j++ {
			if q.Predicates[i].Left == q.Predicates[j].Right {
				q.Predicates[i].Left = q.Predicates[j].Left
			}
		}
	}
	for i := range q.Filters {
		for _, p := range q.Predicates {
			if q.Filters[i].Sel == p.Right {
				q.Filters[i].Sel = p.Left
			}
		}
	}
	for i := range q.Selections {
		for _, p := range q.Predicates {
			if q.Selections[i] == p.Right {
				q.Selections[i] = p.Left
			}
		}
	}
}

// dedupPredicates drops predicates that are now identical to an earlier
// one in the list, the effect of the original's REWRITE_IDENTICALJOINS
// pass (e.g. "0.0=1.0 & 0.0=1.0 & 1.0=0.0" collapses to one predicate).
func dedupPredicates(predicates []query.Predicate) []query.Predicate {
	out := predicates[:0:0]
	for i, p := range predicates {
		dup := false
		for j := 0; j < i; j++ {
			if predicates[j] == p {
				dup = true
				break
			}
		}
		if !dup {
			out = append(out, p)
		}
	}
	return out
}
