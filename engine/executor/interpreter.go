// Package executor runs a plan.Step pipeline tuple-at-a-time: a plain
// recursive-descent walk over the rewritten operator chain, the Go
// rendition of the original engine's "t" (tuple-by-tuple) mode
// (original_source/src/main.cpp, tupleByTuple). This is one of the two
// evaluation modes sharing the plan built by engine/plan; the other,
// closure-fused mode lives in engine/codegen.
package executor

import (
	"fmt"

	"github.com/wbrown/joinengine/engine/plan"
	"github.com/wbrown/joinengine/engine/query"
	"github.com/wbrown/joinengine/engine/relation"
)

// Result is a completed query's row count and per-selection column sums,
// in the order the query named its selections.
type Result struct {
	Amount uint64
	Sums   []uint64
}

// Execute runs the full pipeline and accumulates the result. steps must
// end in a plan.Projection step, as plan.Build always produces.
func Execute(steps []plan.Step, relations []*relation.Relation) (Result, error) {
	if len(steps) == 0 || steps[len(steps)-1].Kind != plan.Projection {
		return Result{}, fmt.Errorf("executor: pipeline does not end in a projection")
	}
	proj := steps[len(steps)-1]
	relationIDs := proj.RelationIDs

	res := Result{Sums: make([]uint64, len(proj.Selections))}
	ctx := make([]uint64, len(relationIDs))

	var run func(idx int) error
	run = func(idx int) error {
		step := steps[idx]
		switch step.Kind {
		case plan.Scan:
			rel := relations[step.RelationID]
			n := rel.Tuples()
			for row := uint64(0); row < n; row++ {
				ctx[step.Binding] = row
				if err := run(idx + 1); err != nil {
					return err
				}
			}
			return nil

		case plan.Filter:
			v := loadValue(relationIDs, relations, ctx, step.Filter.Sel)
			if !matches(v, step.Filter.Comparison, step.Filter.Constant) {
				return nil
			}
			return run(idx + 1)

		case plan.Join:
			leftVal := loadValue(relationIDs, relations, ctx, step.Left)
			idxStruct := relations[step.RelationID].Index(step.Right.Column)
			for _, rowID := range idxStruct.Multi.Lookup(leftVal) {
				ctx[step.Right.Binding] = uint64(rowID)
				if err := run(idx + 1); err != nil {
					return err
				}
			}
			return nil

		case plan.JoinUnique:
			leftVal := loadValue(relationIDs, relations, ctx, step.Left)
			idxStruct := relations[step.RelationID].Index(step.Right.Column)
			if rowID, ok := idxStruct.Unique.Lookup(leftVal); ok {
				ctx[step.Right.Binding] = uint64(rowID)
				return run(idx + 1)
			}
			return nil

		case plan.SelfJoin:
			leftVal := loadValue(relationIDs, relations, ctx, step.Left)
			rightVal := loadValue(relationIDs, relations, ctx, step.Right)
			if leftVal != rightVal {
				return nil
			}
			return run(idx + 1)

		case plan.SemiJoin:
			leftVal := loadValue(relationIDs, relations, ctx, step.Left)
			bt := relations[step.RelationID].Index(step.Right.Column).Bitset
			if !bt.Contains(leftVal) {
				return nil
			}
			return run(idx + 1)

		case plan.Projection:
			res.Amount++
			for i, sel := range proj.Selections {
				res.Sums[i] += loadValue(relationIDs, relations, ctx, sel)
			}
			return nil

		default:
			return fmt.Errorf("executor: unknown step kind %d", step.Kind)
		}
	}

	if err := run(0); err != nil {
		return Result{}, err
	}
	return res, nil
}

// loadValue resolves a Selection (binding.column) to its current value
// under ctx, widening narrower column storage to uint64.
func loadValue(relationIDs []int, relations []*relation.Relation, ctx []uint64, sel query.Selection) uint64 {
	rel := relations[relationIDs[sel.Binding]]
	return rel.Column(sel.Column).Load(ctx[sel.Binding])
}

// matches applies a Filter's comparison operator.
func matches(v uint64, cmp query.Comparison, constant uint64) bool {
	switch cmp {
	case query.Less:
		return v < constant
	case query.Greater:
		return v > constant
	case query.Equal:
		return v == constant
	default:
		return false
	}
}
