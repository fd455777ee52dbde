package detect

import (
	"fmt"
	"math"

	"github.com/roach88/ephyalign/internal/abf"
)

// Refine moves each event to the sample with the steepest slope within
// ±window seconds of it, clamped to the event's sweep. A non-positive
// window returns events unchanged.
func Refine(rec *abf.Recording, channel int, events Events, window float64) (Events, error) {
	if window <= 0 || events.Len() == 0 {
		return events, nil
	}
	view, err := rec.View(channel)
	if err != nil {
		return Events{}, fmt.Errorf("refine: %w", err)
	}
	w := int(math.Round(window * rec.SampleRate()))

	out := make([]Event, 0, events.Len())
	for _, ev := range events.All() {
		lo := max(ev.Sample-w, 1)
		hi := min(ev.Sample+w, view.Len()-1)
		best, bestSlope := ev.Sample, -1.0
		for i := lo; i <= hi; i++ {
			slope := math.Abs(view.At(ev.Sweep, i) - view.At(ev.Sweep, i-1))
			if slope > bestSlope {
				best, bestSlope = i, slope
			}
		}
		ev.Sample = best
		ev.Time = rec.TimeOf(ev.Sweep, best)
		out = append(out, ev)
	}
	return NewEvents(out), nil
}
