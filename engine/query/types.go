// Package query holds the parsed, not-yet-rewritten representation of
// one workload line: which relation bindings it scans, which predicates
// join or filter them, and which columns it projects.
package query

import "fmt"

// Comparison is the operator of a Filter predicate.
type Comparison byte

const (
	Less    Comparison = '<'
	Greater Comparison = '>'
	Equal   Comparison = '='
)

// Selection names one column of one binding, either as a join operand
// or as a projected output column.
type Selection struct {
	Binding int
	Column  int
}

func (s Selection) String() string {
	return fmt.Sprintf("%d.%d", s.Binding, s.Column)
}

// Predicate is an equi-join condition between two bindings' columns.
type Predicate struct {
	Left  Selection
	Right Selection
}

// Filter restricts one binding's column against a constant.
type Filter struct {
	Sel        Selection
	Constant   uint64
	Comparison Comparison
}

// Query is one workload line: the relation ids bound in scan order, the
// join predicates between them, the filters on individual bindings, and
// the columns to project and sum.
type Query struct {
	RelationIDs []int
	Predicates  []Predicate
	Filters     []Filter
	Selections  []Selection
}

// Clone returns a deep copy, so the planner can rewrite a query without
// mutating the caller's original (the plan cache keeps both the
// original and rewritten shapes around).
func (q *Query) Clone() *Query {
	clone := &Query{
		RelationIDs: append([]int(nil), q.RelationIDs...),
		Predicates:  append([]Predicate(nil), q.Predicates...),
		Filters:     append([]Filter(nil), q.Filters...),
		Selections:  append([]Selection(nil), q.Selections...),
	}
	return clone
}
