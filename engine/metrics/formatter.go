package metrics

import (
	"fmt"
	"io"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
)

// OutputFormatter renders Events as human-readable lines for -verbose,
// the Go rendition of datalog/annotations.OutputFormatter narrowed to
// this engine's four phases.
type OutputFormatter struct {
	writer   io.Writer
	useColor bool
}

// NewOutputFormatter builds a formatter writing to w (stderr if nil),
// matching the original's #ifndef QUIET printfs going to stderr.
func NewOutputFormatter(w io.Writer) *OutputFormatter {
	if w == nil {
		w = os.Stderr
	}
	return &OutputFormatter{writer: w, useColor: color.NoColor == false}
}

// Handle implements Handler, printing one formatted line per event.
func (f *OutputFormatter) Handle(e Event) {
	fmt.Fprintln(f.writer, f.Format(e))
}

// Format renders one event as a single line.
func (f *OutputFormatter) Format(e Event) string {
	phase := f.colorize(e.Name, color.FgYellow)
	latency := fmt.Sprintf("[%s]", e.Latency)

	switch e.Name {
	case InitComplete:
		return fmt.Sprintf("%s %s loaded %s relations, %s tuples total",
			latency, phase,
			humanize.Comma(int64(e.Data["relations"].(int))),
			humanize.Comma(int64(e.Data["tuples"].(uint64))))

	case RelationIndexed:
		return fmt.Sprintf("%s %s relation %d column %d (%s rows)",
			latency, phase,
			e.Data["relation"].(int), e.Data["column"].(int),
			humanize.Comma(int64(e.Data["rows"].(int))))

	case RewriteComplete:
		return fmt.Sprintf("%s %s %s predicates, %s filters",
			latency, phase,
			humanize.Comma(int64(e.Data["predicates"].(int))),
			humanize.Comma(int64(e.Data["filters"].(int))))

	case ExecuteComplete:
		return fmt.Sprintf("%s %s %s rows matched",
			latency, phase,
			humanize.Comma(int64(e.Data["amount"].(uint64))))

	default:
		return fmt.Sprintf("%s %s %v", latency, phase, e.Data)
	}
}

func (f *OutputFormatter) colorize(s string, attr color.Attribute) string {
	if !f.useColor {
		return s
	}
	return color.New(attr).Sprint(s)
}
