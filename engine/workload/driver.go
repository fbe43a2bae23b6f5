// Package workload orchestrates one engine run end to end: loading
// relations, running each requested mode over a workload file, and
// writing output.res — the Go rendition of the original's parseInit +
// precalc + parseWork + mode dispatch (original_source/src/main.cpp).
package workload

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/wbrown/joinengine/engine/codegen"
	"github.com/wbrown/joinengine/engine/executor"
	"github.com/wbrown/joinengine/engine/metrics"
	"github.com/wbrown/joinengine/engine/plan"
	"github.com/wbrown/joinengine/engine/planner"
	"github.com/wbrown/joinengine/engine/query"
	"github.com/wbrown/joinengine/engine/relation"
)

// Interpreter is the tuple-at-a-time mode letter, matching the
// original's "t".
const Interpreter = "t"

// Driver holds everything a workload run needs: the loaded relations,
// an optional plan cache shared across modes, and an optional metrics
// collector.
type Driver struct {
	Relations []*relation.Relation
	Cache     *codegen.Cache
	Collector *metrics.Collector
}

// NewDriver loads every relation named in the init file and
// precomputes their indexes in parallel before any query runs.
func NewDriver(initPath string, cacheCapacityBytes int64, collector *metrics.Collector) (*Driver, error) {
	start := time.Now()
	relations, err := relation.LoadInit(initPath)
	if err != nil {
		return nil, fmt.Errorf("workload: %w", err)
	}

	var tuples uint64
	for _, r := range relations {
		tuples += r.Tuples()
		r.Precompute(collector)
	}
	collector.AddTiming(metrics.InitComplete, start, map[string]interface{}{
		"relations": len(relations), "tuples": tuples,
	})

	cache, err := codegen.NewCache(cacheCapacityBytes)
	if err != nil {
		return nil, fmt.Errorf("workload: building plan cache: %w", err)
	}

	return &Driver{Relations: relations, Cache: cache, Collector: collector}, nil
}

// Close releases every relation's memory mapping.
func (d *Driver) Close() error {
	for _, r := range d.Relations {
		if err := r.Close(); err != nil {
			return err
		}
	}
	return nil
}

// RunMode runs every query in workloadPath through the named mode
// ("t", "a", "l0".."l3"), (re-)writing outPath with one result line per
// query — later calls to RunMode overwrite outPath, matching the
// original's parseWork opening output.res fresh on every invocation
// (SPEC_FULL.md §6).
func (d *Driver) RunMode(mode, workloadPath, outPath string) (metrics.ModeStats, error) {
	var level codegen.Level
	if mode != Interpreter {
		var err error
		level, err = codegen.ParseLevel(mode)
		if err != nil {
			return metrics.ModeStats{}, fmt.Errorf("workload: %w", err)
		}
	}

	in, err := os.Open(workloadPath)
	if err != nil {
		return metrics.ModeStats{}, fmt.Errorf("workload: open %s: %w", workloadPath, err)
	}
	defer in.Close()

	out, err := os.Create(outPath)
	if err != nil {
		return metrics.ModeStats{}, fmt.Errorf("workload: create %s: %w", outPath, err)
	}
	defer out.Close()
	writer := bufio.NewWriter(out)
	defer writer.Flush()

	stats := metrics.ModeStats{Mode: mode}
	started := time.Now()

	scanner := bufio.NewScanner(in)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Text()
		if line == "" || line[0] == 'F' {
			continue
		}

		amount, sums, err := d.runOne(line, mode, level)
		if err != nil {
			return metrics.ModeStats{}, fmt.Errorf("workload: %s line %d: %w", workloadPath, lineNo, err)
		}

		writeResult(writer, amount, sums)

		stats.Queries++
		stats.RowsMatched += amount
	}
	if err := scanner.Err(); err != nil {
		return metrics.ModeStats{}, fmt.Errorf("workload: read %s: %w", workloadPath, err)
	}

	stats.Elapsed = time.Since(started)
	return stats, nil
}

func (d *Driver) runOne(line, mode string, level codegen.Level) (uint64, []uint64, error) {
	q, err := query.Parse(line)
	if err != nil {
		return 0, nil, err
	}

	rewriteStart := time.Now()
	rewritten, err := planner.Rewrite(q, d.Relations)
	if err != nil {
		return 0, nil, err
	}
	d.Collector.AddTiming(metrics.RewriteComplete, rewriteStart, map[string]interface{}{
		"predicates": len(rewritten.Predicates), "filters": len(rewritten.Filters),
	})

	steps, err := plan.Build(rewritten, d.Relations)
	if err != nil {
		return 0, nil, err
	}

	execStart := time.Now()
	var amount uint64
	var sums []uint64

	if mode == Interpreter {
		res, err := executor.Execute(steps, d.Relations)
		if err != nil {
			return 0, nil, err
		}
		amount, sums = res.Amount, res.Sums
	} else {
		stage, err := d.Cache.CompileCached(rewritten, steps, d.Relations, level)
		if err != nil {
			return 0, nil, err
		}
		rootRelID := steps[0].RelationID
		tuples := d.Relations[rootRelID].Tuples()
		amount, sums = codegen.RunMorsels(stage, tuples, len(rewritten.Selections), 0)
	}

	d.Collector.AddTiming(metrics.ExecuteComplete, execStart, map[string]interface{}{"amount": amount})
	return amount, sums, nil
}

// writeResult writes one output.res line: space-separated sums, or one
// "NULL" per selection if no rows matched, matching the original's
// printResult exactly.
func writeResult(w *bufio.Writer, amount uint64, sums []uint64) {
	parts := make([]string, len(sums))
	for i, s := range sums {
		if amount == 0 {
			parts[i] = "NULL"
		} else {
			parts[i] = fmt.Sprintf("%d", s)
		}
	}
	fmt.Fprintln(w, strings.Join(parts, " "))
}
