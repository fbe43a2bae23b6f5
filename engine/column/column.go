// Package column holds the per-column storage representation shared by
// every layer of the query engine: the raw relation loader, the index
// builder, and both execution modes.
package column

import "fmt"

// Origin records where a column's backing storage came from, so the
// relation that owns it knows what (if anything) it must free.
type Origin int

const (
	// OriginMapped means the column still points into the relation
	// file's memory-mapped region; nothing is freed per-column, the
	// mapping is released once for the whole relation.
	OriginMapped Origin = iota
	// OriginHeap means narrowing replaced the mapped region with a
	// heap-allocated slice of the narrower width; the slice's memory is
	// reclaimed by the garbage collector, no manual free needed in Go;
	// the tag only records that this column no longer references the
	// relation's mapping.
	OriginHeap
)

// Column is a tagged union over the three widths a column can be stored
// in. Exactly one of U16, U32, U64 is non-nil; Width says which.
//
// Values are always logically uint64; narrower widths just mean the
// maximum value observed during index building fit in fewer bits.
type Column struct {
	Width  Width
	Origin Origin
	U16    []uint16
	U32    []uint32
	U64    []uint64

	// unique records whether this column is known to hold no duplicate
	// values (set by the index builder, consulted by the planner to
	// decide semijoin eligibility per SPEC_FULL.md §9).
	unique bool
}

// Width identifies which array a Column is backed by.
type Width int

const (
	Width16 Width = iota
	Width32
	Width64
)

// FromU64 wraps a raw 64-bit column as read from a relation file, before
// any narrowing has been applied.
func FromU64(values []uint64) Column {
	return Column{Width: Width64, Origin: OriginMapped, U64: values}
}

// Len returns the number of values in the column.
func (c Column) Len() int {
	switch c.Width {
	case Width16:
		return len(c.U16)
	case Width32:
		return len(c.U32)
	default:
		return len(c.U64)
	}
}

// Load widens the value at rowIdx to 64 bits regardless of storage
// width. Out-of-range rowIdx is undefined behavior, same as the original
// engine's loadValue: the caller is always expected to have validated the
// index via a scan bound or an index lookup.
func (c Column) Load(rowIdx uint64) uint64 {
	switch c.Width {
	case Width64:
		return c.U64[rowIdx]
	case Width32:
		return uint64(c.U32[rowIdx])
	case Width16:
		return uint64(c.U16[rowIdx])
	default:
		panic(fmt.Sprintf("column: unknown width tag %d", c.Width))
	}
}

// SetUnique marks the column as holding only distinct values. Called by
// the index builder for column 0 of every relation (the engine's sole
// uniqueness invariant, see SPEC_FULL.md §3 invariant 3).
func (c *Column) SetUnique(unique bool) {
	c.unique = unique
}

// Unique reports whether the column is known to contain no duplicate
// values. The planner consults this instead of hardcoding "column 0"
// directly, per the REDESIGN FLAGS resolution in SPEC_FULL.md §9.
func (c Column) Unique() bool {
	return c.unique
}

// Narrow rewrites the column to the narrowest of u16/u32/u64 that can
// hold every value up to max, copying values out of the (possibly
// memory-mapped) u64 backing array. It is a no-op, returning the column
// unchanged, if 64 bits are required.
func Narrow(c Column, max uint64) Column {
	if c.Width != Width64 {
		// already narrowed (shouldn't happen during normal construction,
		// but narrowing is idempotent if it does)
		return c
	}
	n := len(c.U64)
	switch {
	case max <= 0xFFFF:
		narrowed := make([]uint16, n)
		for i, v := range c.U64 {
			narrowed[i] = uint16(v)
		}
		return Column{Width: Width16, Origin: OriginHeap, U16: narrowed, unique: c.unique}
	case max <= 0xFFFFFFFF:
		narrowed := make([]uint32, n)
		for i, v := range c.U64 {
			narrowed[i] = uint32(v)
		}
		return Column{Width: Width32, Origin: OriginHeap, U32: narrowed, unique: c.unique}
	default:
		return c
	}
}
