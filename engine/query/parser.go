package query

import (
	"fmt"
	"strconv"
	"strings"
)

// Parse reads one workload line of the form
//
//	rel rel rel|binding.col=binding.col&binding.col<constant|binding.col binding.col
//
// into a Query. Bindings are 0-based positions into the relation list
// that precedes the first "|"; RelationIDs[binding] is the actual
// relation id that binding refers to. This mirrors the original
// Query::parse character scan (original_source/src/Query.cpp), expressed
// with strings.Fields/strings.Cut instead of strtok/pointer arithmetic.
func Parse(line string) (*Query, error) {
	parts := strings.Split(line, "|")
	if len(parts) != 3 {
		return nil, fmt.Errorf("query line %q: expected 3 '|'-separated sections, got %d", line, len(parts))
	}

	q := &Query{}

	for _, tok := range strings.Fields(parts[0]) {
		id, err := strconv.Atoi(tok)
		if err != nil {
			return nil, fmt.Errorf("query line %q: bad relation id %q: %w", line, tok, err)
		}
		q.RelationIDs = append(q.RelationIDs, id)
	}
	if len(q.RelationIDs) == 0 {
		return nil, fmt.Errorf("query line %q: no relations", line)
	}

	for _, tok := range strings.FieldsFunc(parts[1], func(r rune) bool { return r == '&' }) {
		pred, filter, isJoin, err := parsePredicate(tok)
		if err != nil {
			return nil, fmt.Errorf("query line %q: %w", line, err)
		}
		if isJoin {
			q.Predicates = append(q.Predicates, pred)
		} else {
			q.Filters = append(q.Filters, filter)
		}
	}

	for _, tok := range strings.Fields(parts[2]) {
		sel, err := parseSelection(tok)
		if err != nil {
			return nil, fmt.Errorf("query line %q: bad selection %q: %w", line, tok, err)
		}
		q.Selections = append(q.Selections, sel)
	}
	if len(q.Selections) == 0 {
		return nil, fmt.Errorf("query line %q: no selections", line)
	}

	return q, nil
}

// parseSelection parses a "binding.column" pair.
func parseSelection(tok string) (Selection, error) {
	binding, col, ok := strings.Cut(tok, ".")
	if !ok {
		return Selection{}, fmt.Errorf("missing '.' in %q", tok)
	}
	b, err := strconv.Atoi(binding)
	if err != nil {
		return Selection{}, fmt.Errorf("bad binding in %q: %w", tok, err)
	}
	c, err := strconv.Atoi(col)
	if err != nil {
		return Selection{}, fmt.Errorf("bad column in %q: %w", tok, err)
	}
	return Selection{Binding: b, Column: c}, nil
}

// comparisonBytes are the recognized single-character filter operators.
const comparisonBytes = "<>="

// parsePredicate parses one "&"-separated predicate token, which is
// either a join ("b.c=b2.c2") or a filter ("b.c<constant",
// "b.c>constant", "b.c=constant") — distinguished by whether the
// right-hand side of the comparison parses as another "binding.column"
// pair or as a bare integer constant.
func parsePredicate(tok string) (pred Predicate, filter Filter, isJoin bool, err error) {
	idx := strings.IndexAny(tok, comparisonBytes)
	if idx < 0 {
		return Predicate{}, Filter{}, false, fmt.Errorf("predicate %q has no comparison operator", tok)
	}
	left, err := parseSelection(tok[:idx])
	if err != nil {
		return Predicate{}, Filter{}, false, fmt.Errorf("bad predicate %q: %w", tok, err)
	}
	comparison := Comparison(tok[idx])
	rhs := tok[idx+1:]

	if comparison == Equal && strings.Contains(rhs, ".") {
		right, err := parseSelection(rhs)
		if err != nil {
			return Predicate{}, Filter{}, false, fmt.Errorf("bad predicate %q: %w", tok, err)
		}
		return Predicate{Left: left, Right: right}, Filter{}, true, nil
	}

	constant, err := strconv.ParseUint(rhs, 10, 64)
	if err != nil {
		return Predicate{}, Filter{}, false, fmt.Errorf("bad filter constant in %q: %w", tok, err)
	}
	return Predicate{}, Filter{Sel: left, Constant: constant, Comparison: comparison}, false, nil
}
