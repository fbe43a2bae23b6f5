// Package relation owns the in-memory representation of a loaded table:
// its columns plus the precomputed per-column index structures joins
// and filters probe.
package relation

import (
	"fmt"
	"time"

	"github.com/wbrown/joinengine/engine/column"
	"github.com/wbrown/joinengine/engine/index"
	"github.com/wbrown/joinengine/engine/metrics"
)

// Relation is an immutable table of n rows and k columns, loaded once
// at process start and read-only for the rest of the process's life
// (spec.md §3 "Lifecycle").
type Relation struct {
	id      int
	tuples  uint64
	columns []column.Column
	indexes []*index.ColumnIndex // one per column, populated by Precompute

	mapping *mapping // non-nil if this relation owns a memory mapping
}

// New builds a Relation directly from already-materialized columns,
// bypassing the mmap-backed file loader. Useful for tests and for
// embedding this engine over data that already lives in memory.
func New(id int, columns []column.Column) *Relation {
	tuples := uint64(0)
	if len(columns) > 0 {
		tuples = uint64(columns[0].Len())
	}
	return &Relation{
		id:      id,
		tuples:  tuples,
		columns: columns,
		indexes: make([]*index.ColumnIndex, len(columns)),
	}
}

// ID returns the relation's stable, file-order identifier.
func (r *Relation) ID() int { return r.id }

// Tuples returns the number of rows in the relation.
func (r *Relation) Tuples() uint64 { return r.tuples }

// NumColumns returns the number of columns in the relation.
func (r *Relation) NumColumns() int { return len(r.columns) }

// Column returns the column at the given position.
func (r *Relation) Column(col int) column.Column {
	return r.columns[col]
}

// Index returns the precomputed index structures for a column. Callers
// must not invoke this before Precompute has run for that column.
func (r *Relation) Index(col int) *index.ColumnIndex {
	return r.indexes[col]
}

// Precompute runs the index builder over every column of the relation,
// in parallel across (relation, column) work items as described in
// spec.md §4.2 and §5. It is safe to call concurrently across distinct
// relations; within one relation, columns are independent work items.
func (r *Relation) Precompute(collector *metrics.Collector) {
	items := make([]index.WorkItem, len(r.columns))
	for c := range r.columns {
		items[c] = index.WorkItem{RelationIdx: r.id, ColumnIdx: c}
	}

	n := int(r.tuples)
	index.BuildAll(items,
		func(item index.WorkItem) (column.Column, *index.ColumnIndex) {
			start := time.Now()
			collector.Add(metrics.Event{Name: metrics.RelationIndexing, Start: start, Data: map[string]interface{}{
				"relation": r.id, "column": item.ColumnIdx, "rows": n,
			}})
			// column 0 of every relation is the engine's sole
			// uniqueness invariant (spec.md §3 invariant 3).
			isUnique := item.ColumnIdx == 0
			col, idx := index.BuildColumn(r.columns[item.ColumnIdx], n, isUnique)
			collector.AddTiming(metrics.RelationIndexed, start, map[string]interface{}{
				"relation": r.id, "column": item.ColumnIdx, "rows": n,
			})
			return col, idx
		},
		func(item index.WorkItem, col column.Column, idx *index.ColumnIndex) {
			r.columns[item.ColumnIdx] = col
			r.indexes[item.ColumnIdx] = idx
		},
	)
}

// Close releases the relation's backing memory mapping, if any. It must
// only be called after every column narrowed off the mapping has
// already been copied to heap storage — Precompute guarantees this.
func (r *Relation) Close() error {
	if r.mapping == nil {
		return nil
	}
	err := r.mapping.unmap()
	r.mapping = nil
	if err != nil {
		return fmt.Errorf("relation %d: unmap failed: %w", r.id, err)
	}
	return nil
}

// String renders a short human-readable summary, used by verbose mode.
func (r *Relation) String() string {
	return fmt.Sprintf("relation %d: %d rows, %d columns", r.id, r.tuples, len(r.columns))
}
