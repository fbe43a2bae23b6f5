// Command joinengine runs a join-heavy analytical query workload over
// precomputed columnar relations, either tuple-at-a-time ("t" mode) or
// through a closure-fused pipeline ("a", "l0"-"l3" modes), the Go
// rendition of the original engine's CLI
// (original_source/src/main.cpp).
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/wbrown/joinengine/engine/metrics"
	"github.com/wbrown/joinengine/engine/workload"
)

func main() {
	var modesFlag string
	var verbose bool
	var stats bool
	var cacheSize int64

	flag.StringVar(&modesFlag, "modes", "", "space-separated execution modes to run in order: t, a, l0, l1, l2, l3")
	flag.BoolVar(&verbose, "verbose", false, "print per-phase timing to stderr")
	flag.BoolVar(&stats, "stats", false, "print a summary table after every mode has run")
	flag.Int64Var(&cacheSize, "cache-size", 8<<20, "plan cache capacity in bytes; 0 disables the cache")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [options] init workload\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Runs every mode in -modes (default: t) over workload, writing output.res.\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() < 2 {
		flag.Usage()
		os.Exit(1)
	}
	initPath := flag.Arg(0)
	workloadPath := flag.Arg(1)

	modes := strings.Fields(modesFlag)
	if len(modes) == 0 {
		modes = []string{workload.Interpreter}
	}

	var collector *metrics.Collector
	if verbose {
		formatter := metrics.NewOutputFormatter(os.Stderr)
		collector = metrics.NewCollector(formatter.Handle)
	} else {
		collector = metrics.NewCollector(nil)
	}

	tStart := time.Now()
	driver, err := workload.NewDriver(initPath, cacheSize, collector)
	if err != nil {
		log.Fatalf("joinengine: %v", err)
	}
	defer driver.Close()
	tInit := time.Now()

	var allStats []metrics.ModeStats
	for _, mode := range modes {
		s, err := driver.RunMode(mode, workloadPath, "output.res")
		if err != nil {
			log.Fatalf("joinengine: %v", err)
		}
		allStats = append(allStats, s)
	}
	tEnd := time.Now()

	fmt.Fprintf(os.Stderr, " init: %v\n work: %v\ntotal: %v\n",
		tInit.Sub(tStart), tEnd.Sub(tInit), tEnd.Sub(tStart))

	if stats {
		metrics.WriteTable(os.Stdout, allStats)
	}
}
