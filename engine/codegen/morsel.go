package codegen

import (
	"runtime"
	"sync"
)

// MorselSize is the fixed row-range chunk a single goroutine claims at
// a time; the Go analogue of the original's OpenMP
// "schedule(dynamic,1)" morsel loop (original_source/src/main.cpp,
// morsel_execution under #ifdef MORSELS).
const MorselSize = 1024

// RunMorsels executes a compiled Stage over [0, tuples) split into
// MorselSize-row chunks, dynamically scheduled across a worker pool
// sized like the teacher's WorkerPool (datalog/executor/worker_pool.go)
// defaulting to runtime.NumCPU(). Each goroutine accumulates into its
// own thread-local sums/amount and only takes the pool's mutex once, to
// merge into the shared totals — mirroring the original's
// `#pragma omp critical` reduction exactly (SPEC_FULL.md §5).
func RunMorsels(stage Stage, tuples uint64, numSums int, workers int) (amount uint64, sums []uint64) {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	sums = make([]uint64, numSums)
	if tuples == 0 {
		return 0, sums
	}

	type morsel struct{ lower, upper uint64 }
	jobs := make(chan morsel, (tuples/MorselSize)+1)
	for lower := uint64(0); lower < tuples; lower += MorselSize {
		upper := lower + MorselSize
		if upper > tuples {
			upper = tuples
		}
		jobs <- morsel{lower, upper}
	}
	close(jobs)

	var mu sync.Mutex
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			localSums := make([]uint64, numSums)
			localOut := make([]uint64, numSums)
			var localAmount uint64
			for m := range jobs {
				for i := range localOut {
					localOut[i] = 0
				}
				localAmount += stage(m.lower, m.upper, localOut)
				for i := range localSums {
					localSums[i] += localOut[i]
				}
			}
			mu.Lock()
			amount += localAmount
			for i := range sums {
				sums[i] += localSums[i]
			}
			mu.Unlock()
		}()
	}
	wg.Wait()

	return amount, sums
}
