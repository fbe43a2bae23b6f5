package relation

import (
	"testing"

	"github.com/wbrown/joinengine/engine/column"
)

func TestPrecomputeNarrowsAndMarksUnique(t *testing.T) {
	r := New(0, []column.Column{
		column.FromU64([]uint64{0, 1, 2, 3}), // column 0: unique invariant
		column.FromU64([]uint64{9, 9, 1, 9}),
	})
	r.Precompute(nil)

	if !r.Column(0).Unique() {
		t.Error("column 0 should be marked unique after Precompute")
	}
	if r.Column(1).Unique() {
		t.Error("column 1 should not be marked unique")
	}
	if r.Column(0).Width != column.Width16 {
		t.Errorf("column 0 width = %d, want Width16 (max value 3 fits in 16 bits)", r.Column(0).Width)
	}

	idx0 := r.Index(0)
	if idx0.Unique == nil || idx0.Multi != nil {
		t.Error("column 0 should build a Unique index, not a Multi index")
	}
	idx1 := r.Index(1)
	if idx1.Multi == nil || idx1.Unique != nil {
		t.Error("column 1 should build a Multi index, not a Unique index")
	}
}

func TestPrecomputeEmptyRelation(t *testing.T) {
	r := New(0, []column.Column{column.FromU64(nil)})
	r.Precompute(nil)
	if r.Tuples() != 0 {
		t.Fatalf("Tuples() = %d, want 0", r.Tuples())
	}
	idx := r.Index(0)
	if idx.Bitset != nil || idx.Multi != nil || idx.Unique != nil {
		t.Error("an empty relation's column index should be the zero ColumnIndex")
	}
}

func TestCloseWithoutMappingIsNoop(t *testing.T) {
	r := New(0, []column.Column{column.FromU64([]uint64{1})})
	if err := r.Close(); err != nil {
		t.Fatalf("Close() on a mapping-less relation should succeed, got %v", err)
	}
}
