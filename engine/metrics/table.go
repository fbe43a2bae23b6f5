package metrics

import (
	"fmt"
	"io"
	"time"

	"github.com/olekukonko/tablewriter"
)

// ModeStats accumulates one -stats table row: a single CLI mode's
// totals across the whole workload run.
type ModeStats struct {
	Mode        string
	Queries     int
	RowsMatched uint64
	Elapsed     time.Duration
}

// WriteTable renders one row per mode as a table, the Go-idiomatic
// replacement SPEC_FULL.md §6 picks for the original's final stderr
// timing printf block, grounded on the teacher's table_formatter.go use
// of tablewriter.NewTable/Header/Append/Render.
func WriteTable(w io.Writer, stats []ModeStats) {
	table := tablewriter.NewTable(w)
	table.Header([]string{"Mode", "Queries", "Rows Matched", "Elapsed"})
	for _, s := range stats {
		table.Append([]string{
			s.Mode,
			fmt.Sprintf("%d", s.Queries),
			fmt.Sprintf("%d", s.RowsMatched),
			s.Elapsed.String(),
		})
	}
	table.Render()
}
