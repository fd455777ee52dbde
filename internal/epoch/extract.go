package epoch

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/roach88/ephyalign/internal/abf"
	"github.com/roach88/ephyalign/internal/detect"
)

// OutOfRangeError reports an epoch window that is partially or fully
// outside its sweep. Start and End are sample indices [Start, End).
type OutOfRangeError struct {
	Path   string
	Event  detect.Event
	Start  int
	End    int
	Length int // samples in the sweep
}

func (e *OutOfRangeError) Error() string {
	return fmt.Sprintf("%s: epoch at %.6fs spans samples [%d,%d) outside sweep %d of %d samples",
		e.Path, e.Event.Time, e.Start, e.End, e.Event.Sweep, e.Length)
}

// IsOutOfRange reports whether err is or wraps an *OutOfRangeError.
func IsOutOfRange(err error) bool {
	var oe *OutOfRangeError
	return errors.As(err, &oe)
}

// Epoch is one extracted window in physical units.
type Epoch struct {
	Event     detect.Event
	Start     int       // sweep sample index of Samples[0]; negative when padded
	Samples   []float64 // physical units, baseline-corrected if Corrected
	Baseline  float64   // mean subtracted from the samples
	Corrected bool
	PadBefore int // zero-filled samples at the start
	PadAfter  int // zero-filled samples at the end
}

// Padded reports whether any samples were zero-filled.
func (e *Epoch) Padded() bool { return e.PadBefore > 0 || e.PadAfter > 0 }

// Dropped records an event that produced no epoch.
type Dropped struct {
	Event  detect.Event
	Reason string
}

// Extractor cuts epochs from one channel of a recording.
type Extractor struct {
	Window   Window
	Baseline *Baseline // nil disables baseline correction
	Policy   Policy
}

// Validate checks the window, baseline and policy.
func (x Extractor) Validate() error {
	if err := x.Window.Validate(); err != nil {
		return err
	}
	if x.Baseline != nil {
		if err := x.Baseline.Validate(x.Window); err != nil {
			return err
		}
	}
	if _, err := ParsePolicy(string(x.Policy)); err != nil {
		return err
	}
	return nil
}

// Extract cuts the epoch around ev. A window that leaves the sweep fails
// with *OutOfRangeError regardless of Policy; ExtractAll applies the
// policy.
func (x Extractor) Extract(rec *abf.Recording, channel int, ev detect.Event) (*Epoch, error) {
	view, err := rec.View(channel)
	if err != nil {
		return nil, err
	}
	return x.extract(rec, view, ev, false)
}

func (x Extractor) extract(rec *abf.Recording, view abf.ChannelView, ev detect.Event, pad bool) (*Epoch, error) {
	if ev.Sweep < 0 || ev.Sweep >= view.Sweeps() {
		return nil, fmt.Errorf("%s: event sweep %d out of range [0,%d)", rec.Path(), ev.Sweep, view.Sweeps())
	}
	rate := rec.SampleRate()
	pre, post := x.Window.Samples(rate)
	start, end := ev.Sample-pre, ev.Sample+post
	n := view.Len()

	ep := &Epoch{Event: ev, Start: start, Samples: make([]float64, end-start)}
	if start < 0 || end > n {
		if !pad {
			return nil, &OutOfRangeError{Path: rec.Path(), Event: ev, Start: start, End: end, Length: n}
		}
		ep.PadBefore = min(max(-start, 0), len(ep.Samples))
		ep.PadAfter = min(max(end-n, 0), len(ep.Samples)-ep.PadBefore)
	}
	lo, hi := ep.PadBefore, len(ep.Samples)-ep.PadAfter
	if lo < hi {
		view.Read(ev.Sweep, start+lo, ep.Samples[lo:hi])
	}

	if x.Baseline != nil {
		bl, bh := x.Baseline.Range(x.Window, rate)
		ep.correct(max(bl, lo), min(bh, hi))
	}
	return ep, nil
}

// correct subtracts the mean of Samples[lo:hi] from the unpadded samples.
func (e *Epoch) correct(lo, hi int) {
	if lo >= hi {
		return
	}
	var sum float64
	for _, v := range e.Samples[lo:hi] {
		sum += v
	}
	mean := sum / float64(hi-lo)
	for i := e.PadBefore; i < len(e.Samples)-e.PadAfter; i++ {
		e.Samples[i] -= mean
	}
	e.Baseline = mean
	e.Corrected = true
}

// ExtractAll cuts an epoch for every event and applies the out-of-range
// policy: drop records the event in Set.Dropped, pad zero-fills and strict
// returns the first *OutOfRangeError.
func (x Extractor) ExtractAll(rec *abf.Recording, channel int, events detect.Events) (*Set, error) {
	if err := x.Validate(); err != nil {
		return nil, err
	}
	view, err := rec.View(channel)
	if err != nil {
		return nil, err
	}
	set := &Set{
		Path:     rec.Path(),
		Channel:  view.Channel(),
		Rate:     rec.SampleRate(),
		Window:   x.Window,
		Baseline: x.Baseline,
		Policy:   x.Policy,
	}
	for _, ev := range events.All() {
		ep, err := x.extract(rec, view, ev, x.Policy == PolicyPad)
		if err == nil {
			set.Epochs = append(set.Epochs, ep)
			continue
		}
		if x.Policy != PolicyDrop || !IsOutOfRange(err) {
			return nil, err
		}
		slog.Warn("dropping out-of-range epoch", "path", rec.Path(), "event", ev.String(), "error", err)
		set.Dropped = append(set.Dropped, Dropped{Event: ev, Reason: err.Error()})
	}
	return set, nil
}
