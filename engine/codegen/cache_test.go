package codegen

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/wbrown/joinengine/engine/column"
	"github.com/wbrown/joinengine/engine/plan"
	"github.com/wbrown/joinengine/engine/query"
	"github.com/wbrown/joinengine/engine/relation"
)

func buildSteps(t *testing.T, constant uint64) ([]plan.Step, []*relation.Relation, *query.Query) {
	t.Helper()
	r0 := relation.New(0, []column.Column{
		column.FromU64([]uint64{0, 1, 2, 3, 4}),
		column.FromU64([]uint64{10, 20, 30, 40, 50}),
	})
	r0.Precompute(nil)
	relations := []*relation.Relation{r0}

	q := &query.Query{
		RelationIDs: []int{0},
		Filters: []query.Filter{
			{Sel: query.Selection{Binding: 0, Column: 1}, Comparison: query.Greater, Constant: constant},
		},
		Selections: []query.Selection{{Binding: 0, Column: 1}},
	}
	steps, err := plan.Build(q, relations)
	if err != nil {
		t.Fatalf("plan.Build: %v", err)
	}
	return steps, relations, q
}

func TestCacheDisabledCompilesEveryCall(t *testing.T) {
	cache, err := NewCache(0)
	assert.NoError(t, err)

	steps, relations, q := buildSteps(t, 25)
	s1, err := cache.CompileCached(q, steps, relations, LevelA)
	assert.NoError(t, err)
	s2, err := cache.CompileCached(q, steps, relations, LevelA)
	assert.NoError(t, err)

	out1 := make([]uint64, 1)
	out2 := make([]uint64, 1)
	amount1 := s1(0, relations[0].Tuples(), out1)
	amount2 := s2(0, relations[0].Tuples(), out2)
	assert.Equal(t, amount1, amount2)
	assert.Equal(t, out1, out2)
}

func TestCacheHitReusesCompiledStageForIdenticalQuery(t *testing.T) {
	cache, err := NewCache(1 << 20)
	assert.NoError(t, err)

	steps, relations, q := buildSteps(t, 25)
	first, err := cache.CompileCached(q, steps, relations, LevelA)
	assert.NoError(t, err)

	// ristretto's Set is processed asynchronously; wait for it to land so
	// the next CompileCached call can observe the cache hit.
	cache.store.Wait()
	_, cached := cache.store.Get(shapeKey(q, LevelA))
	assert.True(t, cached, "first CompileCached call must store its Stage")

	second, err := cache.CompileCached(q, steps, relations, LevelA)
	assert.NoError(t, err)

	out1 := make([]uint64, 1)
	out2 := make([]uint64, 1)
	a1 := first(0, relations[0].Tuples(), out1)
	a2 := second(0, relations[0].Tuples(), out2)
	assert.Equal(t, a1, a2)
	assert.Equal(t, out1, out2)
}

func TestCacheMissOnDifferentConstantStillProducesCorrectResult(t *testing.T) {
	cache, err := NewCache(1 << 20)
	assert.NoError(t, err)

	stepsA, relationsA, qA := buildSteps(t, 25)
	stageA, err := cache.CompileCached(qA, stepsA, relationsA, LevelA)
	assert.NoError(t, err)
	cache.store.Wait()

	// same shape, different filter constant: shapeKey collides with the
	// first query, so the exact-byte-match check must force a fresh
	// compile rather than reusing stageA's embedded constant.
	stepsB, relationsB, qB := buildSteps(t, 35)
	stageB, err := cache.CompileCached(qB, stepsB, relationsB, LevelA)
	assert.NoError(t, err)

	outA := make([]uint64, 1)
	outB := make([]uint64, 1)
	amountA := stageA(0, relationsA[0].Tuples(), outA)
	amountB := stageB(0, relationsB[0].Tuples(), outB)

	// constant=25 matches rows with col1 in {30,40,50} -> 3 rows, sum 120
	// constant=35 matches rows with col1 in {40,50} -> 2 rows, sum 90
	assert.Equal(t, uint64(3), amountA)
	assert.Equal(t, uint64(120), outA[0])
	assert.Equal(t, uint64(2), amountB)
	assert.Equal(t, uint64(90), outB[0])
}

func TestShapeKeyIgnoresFilterConstant(t *testing.T) {
	_, _, qA := buildSteps(t, 25)
	_, _, qB := buildSteps(t, 999)
	assert.Equal(t, shapeKey(qA, LevelA), shapeKey(qB, LevelA), "shape key must not depend on filter constants")
	assert.NotEqual(t, queryBytes(qA), queryBytes(qB), "exact query bytes must still differ by constant")
}
