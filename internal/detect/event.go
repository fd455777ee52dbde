// Package detect locates alignment events in a decoded recording.
//
// Two locators exist: TagLocator reads the embedded tag table, and
// ThresholdLocator scans a channel for threshold crossings separated by a
// refractory period. Locate picks one according to Options.Mode.
package detect

import (
	"fmt"
	"iter"
	"sort"
)

// Source records where an event came from.
type Source string

const (
	SourceTag       Source = "tag"
	SourceThreshold Source = "threshold"
)

// Event is one alignment anchor.
type Event struct {
	Sweep  int     // sweep index
	Sample int     // sample index within the sweep
	Time   float64 // seconds from the start of the recording
	Label  string
	Source Source
}

func (e Event) String() string {
	if e.Label != "" {
		return fmt.Sprintf("%s@%.6fs(%s)", e.Source, e.Time, e.Label)
	}
	return fmt.Sprintf("%s@%.6fs", e.Source, e.Time)
}

// Events is a materialized, time-ordered event sequence. It may be
// iterated any number of times.
type Events struct {
	list []Event
}

// NewEvents sorts events by time, keeping the input order of equal
// timestamps.
func NewEvents(list []Event) Events {
	out := make([]Event, len(list))
	copy(out, list)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Time < out[j].Time })
	return Events{list: out}
}

// Len returns the number of events.
func (e Events) Len() int { return len(e.list) }

// At returns the i-th event.
func (e Events) At(i int) Event { return e.list[i] }

// Slice returns a copy of the events.
func (e Events) Slice() []Event {
	out := make([]Event, len(e.list))
	copy(out, e.list)
	return out
}

// All iterates the events in time order.
func (e Events) All() iter.Seq2[int, Event] {
	return func(yield func(int, Event) bool) {
		for i, ev := range e.list {
			if !yield(i, ev) {
				return
			}
		}
	}
}

// Times returns the event times in seconds.
func (e Events) Times() []float64 {
	out := make([]float64, len(e.list))
	for i, ev := range e.list {
		out[i] = ev.Time
	}
	return out
}
