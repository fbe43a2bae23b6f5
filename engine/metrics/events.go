// Package metrics threads a small, low-overhead event stream through
// precompute, rewrite, and execute, the resolution SPEC_FULL.md §9
// picked for spec.md §9's "small metrics record" open question. It is
// the Go rendition of the teacher's datalog/annotations package,
// narrowed to this engine's four phases.
package metrics

import (
	"sync"
	"time"
)

// Event names, following the teacher's hierarchical dotted-path style.
const (
	InitBegin       = "init/begin"
	InitComplete    = "init/completed"
	RelationIndexing = "relation/indexing"
	RelationIndexed  = "relation/indexed"
	RewriteBegin    = "rewrite/begin"
	RewriteComplete = "rewrite/completed"
	ExecuteBegin    = "execute/begin"
	ExecuteComplete = "execute/completed"
)

// Event is a single timed occurrence during one engine run.
type Event struct {
	Name    string
	Start   time.Time
	End     time.Time
	Latency time.Duration
	Data    map[string]interface{}
}

// Handler processes events as they occur; nil means metrics are
// disabled entirely.
type Handler func(Event)

// Collector accumulates events for a run and forwards each one to an
// optional Handler, mirroring datalog/annotations.Collector.
type Collector struct {
	mu      sync.Mutex
	enabled bool
	handler Handler
	events  []Event
}

// NewCollector builds a Collector. A nil handler still records events
// (readable through Events) without printing anything.
func NewCollector(handler Handler) *Collector {
	return &Collector{enabled: true, handler: handler, events: make([]Event, 0, 64)}
}

// Add records event and forwards it to the handler, if any.
func (c *Collector) Add(e Event) {
	if c == nil || !c.enabled {
		return
	}
	c.mu.Lock()
	c.events = append(c.events, e)
	c.mu.Unlock()
	if c.handler != nil {
		c.handler(e)
	}
}

// AddTiming records an event whose latency is measured from start to
// now.
func (c *Collector) AddTiming(name string, start time.Time, data map[string]interface{}) {
	if c == nil || !c.enabled {
		return
	}
	end := time.Now()
	c.Add(Event{Name: name, Start: start, End: end, Latency: end.Sub(start), Data: data})
}

// Events returns a copy of every event recorded so far.
func (c *Collector) Events() []Event {
	if c == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Event, len(c.events))
	copy(out, c.events)
	return out
}
