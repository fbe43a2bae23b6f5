// Package codegen realizes the query engine's second execution mode:
// the original engine compiled a pipeline to machine code via asmjit
// (backend "a") or LLVM at optimization levels O0-O3 (backend "l0"-
// "l3", original_source/src/main.cpp codegenAsmjit/codegenLLVMjit).
// Neither has a safe, idiomatic, cgo-free Go equivalent, so this
// package instead performs closure fusion: each plan.Step contributes a
// closure-building step that captures its constants once per query and
// composes into a single Stage function, matching SPEC_FULL.md §4.7a.
package codegen

import (
	"fmt"

	"github.com/wbrown/joinengine/engine/plan"
	"github.com/wbrown/joinengine/engine/query"
	"github.com/wbrown/joinengine/engine/relation"
)

// Stage is a fully fused pipeline: given a row range [lower, upper) of
// the root scan and an output accumulator (one slot per projected
// column), it returns the number of output rows produced and adds to
// out in place. This is the Go rendition of the original's
// codegen_func_type uint64_t(*)(uint64_t,uint64_t,uint64_t*).
type Stage func(lower, upper uint64, out []uint64) uint64

// Level selects how aggressively adjacent operators are folded into a
// single closure. The five levels mirror the CLI's "a"/"l0"-"l3" modes:
// all share the same fusion primitives below, differing only in which
// adjacent step pairs get merged.
type Level int

const (
	// LevelA is the baseline strategy: one closure per operator,
	// analogous to the asmjit backend — straightforward and always
	// correct, paying one Go function-call's overhead per operator.
	LevelA Level = iota
	// LevelL0 behaves identically to LevelA (the LLVM -O0 analogue:
	// compiles the naive IR with no optimization passes).
	LevelL0
	// LevelL1 additionally fuses a Filter immediately followed by a
	// SelfJoin into one closure.
	LevelL1
	// LevelL2 additionally fuses a JoinUnique immediately followed by a
	// Filter into one closure.
	LevelL2
	// LevelL3 additionally folds a run of up to 4 consecutive
	// Filter/SelfJoin/SemiJoin steps into one closure with no nested
	// calls between them, and fuses the steps after such a run at
	// LevelL2. Join and JoinUnique steps are never part of such a run.
	LevelL3
)

// ParseLevel maps the CLI's mode letters to a Level.
func ParseLevel(mode string) (Level, error) {
	switch mode {
	case "a":
		return LevelA, nil
	case "l0":
		return LevelL0, nil
	case "l1":
		return LevelL1, nil
	case "l2":
		return LevelL2, nil
	case "l3":
		return LevelL3, nil
	default:
		return 0, fmt.Errorf("codegen: unknown fused mode %q", mode)
	}
}

// body is the internal fused-continuation type: given a row context and
// the output accumulator, it returns the row count contributed by
// everything from this point in the pipeline onward.
type body func(ctx []uint64, out []uint64) uint64

// Compile fuses steps (as built by engine/plan) into a single Stage at
// the given fusion level. steps must end in a plan.Projection step.
func Compile(steps []plan.Step, relations []*relation.Relation, level Level) (Stage, error) {
	if len(steps) == 0 || steps[len(steps)-1].Kind != plan.Projection {
		return nil, fmt.Errorf("codegen: pipeline does not end in a projection")
	}
	if steps[0].Kind != plan.Scan {
		return nil, fmt.Errorf("codegen: pipeline does not start with a scan")
	}
	proj := steps[len(steps)-1]
	relationIDs := proj.RelationIDs
	scanBinding := steps[0].Binding
	n := len(relationIDs)

	b, err := buildBody(steps, 1, relationIDs, relations, proj, level)
	if err != nil {
		return nil, err
	}

	return func(lower, upper uint64, out []uint64) uint64 {
		ctx := make([]uint64, n)
		var amount uint64
		for row := lower; row < upper; row++ {
			ctx[scanBinding] = row
			amount += b(ctx, out)
		}
		return amount
	}, nil
}

// buildBody recursively constructs the fused continuation starting at
// steps[idx], applying whatever adjacent-pair fusion the level allows
// before falling back to one closure per operator.
func buildBody(steps []plan.Step, idx int, relationIDs []int, relations []*relation.Relation, proj plan.Step, level Level) (body, error) {
	step := steps[idx]

	if step.Kind == plan.Projection {
		sels := proj.Selections
		return func(ctx, out []uint64) uint64 {
			for i, sel := range sels {
				out[i] += loadValue(relationIDs, relations, ctx, sel)
			}
			return 1
		}, nil
	}

	// LevelL1+: fuse Filter immediately followed by SelfJoin.
	if level >= LevelL1 && step.Kind == plan.Filter && idx+1 < len(steps) && steps[idx+1].Kind == plan.SelfJoin {
		next, err := buildBody(steps, idx+2, relationIDs, relations, proj, level)
		if err != nil {
			return nil, err
		}
		filter := step.Filter
		self := steps[idx+1]
		return func(ctx, out []uint64) uint64 {
			v := loadValue(relationIDs, relations, ctx, filter.Sel)
			if !matches(v, filter.Comparison, filter.Constant) {
				return 0
			}
			leftVal := loadValue(relationIDs, relations, ctx, self.Left)
			rightVal := loadValue(relationIDs, relations, ctx, self.Right)
			if leftVal != rightVal {
				return 0
			}
			return next(ctx, out)
		}, nil
	}

	// LevelL2+: fuse JoinUnique immediately followed by Filter.
	if level >= LevelL2 && step.Kind == plan.JoinUnique && idx+1 < len(steps) && steps[idx+1].Kind == plan.Filter {
		next, err := buildBody(steps, idx+2, relationIDs, relations, proj, level)
		if err != nil {
			return nil, err
		}
		join := step
		filter := steps[idx+1].Filter
		idxStruct := relations[join.RelationID].Index(join.Right.Column)
		return func(ctx, out []uint64) uint64 {
			leftVal := loadValue(relationIDs, relations, ctx, join.Left)
			rowID, ok := idxStruct.Unique.Lookup(leftVal)
			if !ok {
				return 0
			}
			ctx[join.Right.Binding] = uint64(rowID)
			v := loadValue(relationIDs, relations, ctx, filter.Sel)
			if !matches(v, filter.Comparison, filter.Constant) {
				return 0
			}
			return next(ctx, out)
		}, nil
	}

	// LevelL3: flatten a run of up to 4 Filter/SelfJoin/SemiJoin steps
	// starting at idx with no nested calls. If steps[idx] cannot start
	// such a run, fall through to one closure per operator below.
	if level >= LevelL3 {
		if fused, ok := tryFlattenPrefix(steps, idx, relationIDs, relations, proj); ok {
			return fused, nil
		}
	}

	next, err := buildBody(steps, idx+1, relationIDs, relations, proj, level)
	if err != nil {
		return nil, err
	}

	switch step.Kind {
	case plan.Filter:
		filter := step.Filter
		return func(ctx, out []uint64) uint64 {
			v := loadValue(relationIDs, relations, ctx, filter.Sel)
			if !matches(v, filter.Comparison, filter.Constant) {
				return 0
			}
			return next(ctx, out)
		}, nil

	case plan.Join:
		idxStruct := relations[step.RelationID].Index(step.Right.Column)
		left, right := step.Left, step.Right
		return func(ctx, out []uint64) uint64 {
			leftVal := loadValue(relationIDs, relations, ctx, left)
			var amount uint64
			for _, rowID := range idxStruct.Multi.Lookup(leftVal) {
				ctx[right.Binding] = uint64(rowID)
				amount += next(ctx, out)
			}
			return amount
		}, nil

	case plan.JoinUnique:
		idxStruct := relations[step.RelationID].Index(step.Right.Column)
		left, right := step.Left, step.Right
		return func(ctx, out []uint64) uint64 {
			leftVal := loadValue(relationIDs, relations, ctx, left)
			rowID, ok := idxStruct.Unique.Lookup(leftVal)
			if !ok {
				return 0
			}
			ctx[right.Binding] = uint64(rowID)
			return next(ctx, out)
		}, nil

	case plan.SelfJoin:
		left, right := step.Left, step.Right
		return func(ctx, out []uint64) uint64 {
			if loadValue(relationIDs, relations, ctx, left) != loadValue(relationIDs, relations, ctx, right) {
				return 0
			}
			return next(ctx, out)
		}, nil

	case plan.SemiJoin:
		bt := relations[step.RelationID].Index(step.Right.Column).Bitset
		left := step.Left
		return func(ctx, out []uint64) uint64 {
			if !bt.Contains(loadValue(relationIDs, relations, ctx, left)) {
				return 0
			}
			return next(ctx, out)
		}, nil

	default:
		return nil, fmt.Errorf("codegen: unexpected step kind %d at depth %d", step.Kind, idx)
	}
}

// tryFlattenPrefix attempts LevelL3's deepest fusion: folding a run of
// up to 4 Filter/SelfJoin/SemiJoin steps starting at idx into one
// closure with no nested calls between them. The run stops at the first
// other step (a Join or JoinUnique, or the Projection), and the steps
// from there on are built at LevelL2. It returns ok=false, leaving the
// caller to build steps[idx] as its own closure, when steps[idx] itself
// is not a Filter, SelfJoin or SemiJoin.
func tryFlattenPrefix(steps []plan.Step, idx int, relationIDs []int, relations []*relation.Relation, proj plan.Step) (body, bool) {
	const maxDepth = 4
	end := idx
	for end < len(steps) && end-idx < maxDepth {
		switch steps[end].Kind {
		case plan.Filter, plan.SelfJoin, plan.SemiJoin:
			end++
		default:
			goto done
		}
	}
done:
	if end == idx {
		return nil, false
	}

	run := append([]plan.Step(nil), steps[idx:end]...)
	next, err := buildBody(steps, end, relationIDs, relations, proj, LevelL2)
	if err != nil {
		return nil, false
	}

	return func(ctx, out []uint64) uint64 {
		for _, s := range run {
			switch s.Kind {
			case plan.Filter:
				v := loadValue(relationIDs, relations, ctx, s.Filter.Sel)
				if !matches(v, s.Filter.Comparison, s.Filter.Constant) {
					return 0
				}
			case plan.SelfJoin:
				if loadValue(relationIDs, relations, ctx, s.Left) != loadValue(relationIDs, relations, ctx, s.Right) {
					return 0
				}
			case plan.SemiJoin:
				bt := relations[s.RelationID].Index(s.Right.Column).Bitset
				if !bt.Contains(loadValue(relationIDs, relations, ctx, s.Left)) {
					return 0
				}
			}
		}
		return next(ctx, out)
	}, true
}

func loadValue(relationIDs []int, relations []*relation.Relation, ctx []uint64, sel query.Selection) uint64 {
	rel := relations[relationIDs[sel.Binding]]
	return rel.Column(sel.Column).Load(ctx[sel.Binding])
}

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
