package codegen

import (
	"encoding/binary"

	"github.com/cespare/xxhash/v2"
	"github.com/dgraph-io/ristretto"

	"github.com/wbrown/joinengine/engine/plan"
	"github.com/wbrown/joinengine/engine/query"
	"github.com/wbrown/joinengine/engine/relation"
)

// Cache memoizes compiled Stage closures by the rewritten query's shape
// — relation ids, predicate binding pairs, filter column/comparison
// (but never filter constants), and the selection list — per
// SPEC_FULL.md §4.8. Repeated workload lines of the same shape but
// different constants share one cache slot; this module re-validates an
// exact byte match of the whole rewritten query (shape plus constants)
// before reusing a cached Stage, falling back to a fresh Compile on any
// mismatch, so correctness never depends on the cache being warm, cold,
// or disabled (see DESIGN.md for why full constant re-binding without
// recompilation was judged not worth the added complexity here).
type Cache struct {
	store   *ristretto.Cache
	enabled bool
}

type entry struct {
	queryBytes []byte
	stage      Stage
}

// NewCache builds a plan cache with the given capacity in bytes. A
// capacity of 0 disables caching outright (SPEC_FULL.md §6, -cache-size
// 0): every call compiles fresh, which must not change any result.
func NewCache(capacityBytes int64) (*Cache, error) {
	if capacityBytes <= 0 {
		return &Cache{enabled: false}, nil
	}
	store, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: capacityBytes / 8,
		MaxCost:     capacityBytes,
		BufferItems: 64,
	})
	if err != nil {
		return nil, err
	}
	return &Cache{store: store, enabled: true}, nil
}

// CompileCached returns a Stage for steps at the given fusion level,
// reusing a cached closure when the rewritten query's shape (and exact
// constants) were seen before.
func (c *Cache) CompileCached(rewritten *query.Query, steps []plan.Step, relations []*relation.Relation, level Level) (Stage, error) {
	if c == nil || !c.enabled {
		return Compile(steps, relations, level)
	}

	key := shapeKey(rewritten, level)
	qBytes := queryBytes(rewritten)

	if v, ok := c.store.Get(key); ok {
		if e, ok := v.(entry); ok && bytesEqual(e.queryBytes, qBytes) {
			return e.stage, nil
		}
	}

	stage, err := Compile(steps, relations, level)
	if err != nil {
		return nil, err
	}
	c.store.Set(key, entry{queryBytes: qBytes, stage: stage}, int64(len(qBytes)))
	return stage, nil
}

// shapeKey hashes the constant-stripped shape of a rewritten query: its
// relation ids in scan order, every predicate's binding pair, every
// filter's binding/column/comparison (omitting the constant), the
// selection list, and the fusion level — so different levels never
// collide on the same cache slot.
func shapeKey(q *query.Query, level Level) uint64 {
	h := xxhash.New()
	var buf [8]byte

	writeUint := func(v uint64) {
		binary.LittleEndian.PutUint64(buf[:], v)
		h.Write(buf[:])
	}

	writeUint(uint64(level))
	writeUint(uint64(len(q.RelationIDs)))
	for _, r := range q.RelationIDs {
		writeUint(uint64(r))
	}
	writeUint(uint64(len(q.Predicates)))
	for _, p := range q.Predicates {
		writeUint(uint64(p.Left.Binding))
		writeUint(uint64(p.Left.Column))
		writeUint(uint64(p.Right.Binding))
		writeUint(uint64(p.Right.Column))
	}
	writeUint(uint64(len(q.Filters)))
	for _, f := range q.Filters {
		writeUint(uint64(f.Sel.Binding))
		writeUint(uint64(f.Sel.Column))
		h.Write([]byte{byte(f.Comparison)})
	}
	writeUint(uint64(len(q.Selections)))
	for _, s := range q.Selections {
		writeUint(uint64(s.Binding))
		writeUint(uint64(s.Column))
	}

	return h.Sum64()
}

// queryBytes serializes the full rewritten query, constants included,
// for the exact-match check CompileCached uses to validate a cache hit.
func queryBytes(q *query.Query) []byte {
	buf := make([]byte, 0, 64)
	put := func(v uint64) {
		var b [8]byte
		binary.LittleEndian.PutUint64(b[:], v)
		buf = append(buf, b[:]...)
	}
	for _, r := range q.RelationIDs {
		put(uint64(r))
	}
	for _, p := range q.Predicates {
		put(uint64(p.Left.Binding))
		put(uint64(p.Left.Column))
		put(uint64(p.Right.Binding))
		put(uint64(p.Right.Column))
	}
	for _, f := range q.Filters {
		put(uint64(f.Sel.Binding))
		put(uint64(f.Sel.Column))
		put(f.Constant)
		buf = append(buf, byte(f.Comparison))
	}
	for _, s := range q.Selections {
		put(uint64(s.Binding))
		put(uint64(s.Column))
	}
	return buf
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
