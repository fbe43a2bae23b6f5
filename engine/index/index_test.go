package index

import (
	"reflect"
	"testing"
)

func load(values []uint64) func(int) uint64 {
	return func(i int) uint64 { return values[i] }
}

func TestMultiLookup(t *testing.T) {
	values := []uint64{5, 3, 5, 7, 3}
	m := NewMulti(3, 7, load(values), len(values))

	got := m.Lookup(5)
	want := []uint32{0, 2}
	if !reflect.DeepEqual(sorted(got), want) {
		t.Errorf("Lookup(5) = %v, want %v", got, want)
	}

	if got := m.Lookup(7); !reflect.DeepEqual(sorted(got), []uint32{3}) {
		t.Errorf("Lookup(7) = %v, want [3]", got)
	}

	if got := m.Lookup(4); len(got) != 0 {
		t.Errorf("Lookup(4) = %v, want empty (4 is in-domain but absent)", got)
	}
	if got := m.Lookup(100); len(got) != 0 {
		t.Errorf("Lookup(100) = %v, want empty (out of domain)", got)
	}
}

func TestUniqueLookup(t *testing.T) {
	values := []uint64{10, 12, 11}
	u := NewUnique(10, 12, load(values), len(values))

	if rid, ok := u.Lookup(11); !ok || rid != 2 {
		t.Errorf("Lookup(11) = (%d, %v), want (2, true)", rid, ok)
	}
	if _, ok := u.Lookup(999); ok {
		t.Error("Lookup(999) should report not found for an out-of-domain value")
	}
}

func TestBitsetContains(t *testing.T) {
	values := []uint64{4, 6, 8}
	b := NewBitset(4, 8, load(values), len(values))

	if !b.Contains(6) {
		t.Error("Contains(6) should be true")
	}
	if b.Contains(5) {
		t.Error("Contains(5) should be false")
	}
	if b.Contains(100) {
		t.Error("Contains(100) should be false (out of domain)")
	}
}

func sorted(s []uint32) []uint32 {
	out := append([]uint32(nil), s...)
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j-1] > out[j]; j-- {
			out[j-1], out[j] = out[j], out[j-1]
		}
	}
	return out
}
