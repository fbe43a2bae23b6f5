// Package index builds and serves the dense, value-domain-sized index
// structures the join operators probe: a multi-value hash index, a
// unique-value hash index, and a bitset membership filter, all over a
// column's [min, max] value domain.
package index

import (
	"runtime"
	"sync"

	"github.com/wbrown/joinengine/engine/column"
)

// ColumnIndex bundles the precomputed structures for one column: a
// bitset (always present, for semijoin eligibility) plus exactly one of
// Multi or Unique depending on whether the column is known unique.
type ColumnIndex struct {
	Bitset *Bitset
	Multi  *Multi
	Unique *Unique
}

// BuildColumn performs the full per-column precomputation described in
// spec.md §4.2: a linear min/max scan, narrowing the column to the
// smallest width that fits its maximum value, building the bitset, and
// building either the unique or multi hash index.
//
// isUniqueColumn selects which hash index variant to build; in this
// engine only column 0 of any relation is unique (spec.md §3 invariant
// 3), but the decision is a parameter here rather than hardcoded so
// callers can express that invariant explicitly at the call site.
func BuildColumn(col column.Column, n int, isUniqueColumn bool) (column.Column, *ColumnIndex) {
	if n == 0 {
		// empty relation: nothing to scan, nothing to index; keep the
		// column as-is and hand back empty structures so lookups are
		// always safe to call.
		col.SetUnique(isUniqueColumn)
		return col, &ColumnIndex{}
	}

	load := func(i int) uint64 { return col.Load(uint64(i)) }

	min, max := load(0), load(0)
	for i := 1; i < n; i++ {
		v := load(i)
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
	}

	narrowed := column.Narrow(col, max)
	narrowed.SetUnique(isUniqueColumn)
	// narrowing changes storage width but not values, so the same load
	// function (bound to the original column) is still correct for
	// building the indexes below; we only need narrowed for storage.

	bt := NewBitset(min, max, load, n)

	idx := &ColumnIndex{Bitset: bt}
	if isUniqueColumn {
		idx.Unique = NewUnique(min, max, load, n)
	} else {
		idx.Multi = NewMulti(min, max, load, n)
	}

	return narrowed, idx
}

// WorkItem identifies one (relation, column) precomputation unit.
type WorkItem struct {
	RelationIdx int
	ColumnIdx   int
}

// BuildAll schedules one BuildColumn call per work item onto a bounded
// worker pool, mirroring the original's OpenMP
// `schedule(static,1) num_threads(threads)` fan-out over the flattened
// (relation, column) list (spec.md §4.2, §5). apply is called with the
// result for each item; it must be safe to call concurrently from
// different goroutines as long as it only touches the (relation, column)
// slot named by the WorkItem — callers own that synchronization
// granularity.
func BuildAll(items []WorkItem, build func(item WorkItem) (column.Column, *ColumnIndex), apply func(item WorkItem, col column.Column, idx *ColumnIndex)) {
	if len(items) == 0 {
		return
	}

	workers := runtime.NumCPU()
	if workers > len(items) {
		workers = len(items)
	}

	jobs := make(chan WorkItem, len(items))
	for _, it := range items {
		jobs <- it
	}
	close(jobs)

	// Each work item only touches its own (relation, column) slot, so
	// apply needs no synchronization across goroutines — this mirrors
	// the original's claim that precomputation work items are
	// independent (spec.md §4.2, §5).
	var wg sync.WaitGroup
	wg.Add(workers)
	for w := 0; w < workers; w++ {
		go func() {
			defer wg.Done()
			for item := range jobs {
				col, idx := build(item)
				apply(item, col, idx)
			}
		}()
	}
	wg.Wait()
}
