package detect

import (
	"errors"
	"fmt"
	"log/slog"
	"math"

	"github.com/roach88/ephyalign/internal/abf"
)

// Mode selects the locator.
type Mode string

const (
	// ModeAuto uses the tag table when present and threshold detection
	// otherwise.
	ModeAuto      Mode = "auto"
	ModeTags      Mode = "tags"
	ModeThreshold Mode = "threshold"
)

// Polarity selects the crossing direction.
type Polarity string

const (
	Rising  Polarity = "rising"
	Falling Polarity = "falling"
)

// Signal selects what the threshold is compared against.
type Signal string

const (
	// SignalRaw compares the physical signal.
	SignalRaw Signal = "raw"
	// SignalDerivative compares the first difference scaled to units per
	// second, which picks out the sharp edge of stimulus artifacts.
	SignalDerivative Signal = "derivative"
)

// Options configures event location.
type Options struct {
	Mode       Mode
	Threshold  *float64 // required for threshold detection
	Polarity   Polarity
	Signal     Signal
	Refractory float64 // seconds; required for threshold detection
	DedupeTags bool    // collapse tags that map to the same sample
}

// NoTagsError reports that tag-based location was requested for a
// recording without a tag table.
type NoTagsError struct {
	Path string
}

func (e *NoTagsError) Error() string {
	return fmt.Sprintf("%s: recording has no tag table", e.Path)
}

// IsNoTags reports whether err is or wraps a *NoTagsError.
func IsNoTags(err error) bool {
	var nt *NoTagsError
	return errors.As(err, &nt)
}

// Validate checks the options independently of any recording.
func (o Options) Validate() error {
	switch o.Mode {
	case ModeAuto, ModeTags, ModeThreshold:
	default:
		return fmt.Errorf("invalid detection mode %q", o.Mode)
	}
	switch o.Polarity {
	case Rising, Falling:
	default:
		return fmt.Errorf("invalid polarity %q", o.Polarity)
	}
	switch o.Signal {
	case SignalRaw, SignalDerivative:
	default:
		return fmt.Errorf("invalid signal %q", o.Signal)
	}
	if o.Mode == ModeThreshold && o.Threshold == nil {
		return errors.New("threshold detection requires a threshold")
	}
	if o.Mode == ModeThreshold || o.Threshold != nil {
		if !(o.Refractory > 0) {
			return fmt.Errorf("refractory period must be positive, got %g", o.Refractory)
		}
	}
	return nil
}

// Locator produces the ordered events of one channel of a recording.
type Locator interface {
	Locate(rec *abf.Recording, channel int) (Events, error)
}

// New returns the locator selected by opts for rec. In auto mode a
// recording without tags falls back to threshold detection, or fails with
// *NoTagsError if no threshold is configured.
func New(rec *abf.Recording, opts Options) (Locator, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	mode := opts.Mode
	if mode == ModeAuto {
		mode = ModeTags
		if !rec.HasTags() && opts.Threshold != nil {
			mode = ModeThreshold
		}
	}
	if mode == ModeTags {
		return TagLocator{Dedupe: opts.DedupeTags}, nil
	}
	return ThresholdLocator{
		Threshold:  *opts.Threshold,
		Polarity:   opts.Polarity,
		Signal:     opts.Signal,
		Refractory: opts.Refractory,
	}, nil
}

// Locate runs the locator selected by opts.
func Locate(rec *abf.Recording, channel int, opts Options) (Events, error) {
	loc, err := New(rec, opts)
	if err != nil {
		return Events{}, err
	}
	return loc.Locate(rec, channel)
}

// TagLocator turns the embedded tag table into events.
type TagLocator struct {
	Dedupe bool
}

// Locate implements Locator. Tags are not tied to a channel; channel is
// only validated.
func (l TagLocator) Locate(rec *abf.Recording, channel int) (Events, error) {
	if _, err := rec.Channel(channel); err != nil {
		return Events{}, err
	}
	if !rec.HasTags() {
		return Events{}, &NoTagsError{Path: rec.Path()}
	}
	var list []Event
	for _, tag := range rec.Tags() {
		sweep, sample, ok := rec.Locate(tag.Time)
		if !ok {
			slog.Warn("tag outside recorded data", "path", rec.Path(), "time", tag.Time, "comment", tag.Comment)
			continue
		}
		list = append(list, Event{
			Sweep:  sweep,
			Sample: sample,
			Time:   tag.Time,
			Label:  tag.Comment,
			Source: SourceTag,
		})
	}
	events := NewEvents(list)
	if l.Dedupe {
		events = dedupe(events)
	}
	return events, nil
}

// dedupe drops events that land on the same sample as their predecessor.
func dedupe(in Events) Events {
	out := make([]Event, 0, in.Len())
	for _, ev := range in.list {
		if n := len(out); n > 0 && out[n-1].Sweep == ev.Sweep && out[n-1].Sample == ev.Sample {
			continue
		}
		out = append(out, ev)
	}
	return Events{list: out}
}

// ThresholdLocator emits an event at each crossing of Threshold in the
// configured direction. A crossing closer than Refractory seconds to the
// previous accepted event in the same sweep is ignored.
type ThresholdLocator struct {
	Threshold  float64
	Polarity   Polarity
	Signal     Signal
	Refractory float64
}

// Locate implements Locator.
func (l ThresholdLocator) Locate(rec *abf.Recording, channel int) (Events, error) {
	if !(l.Refractory > 0) {
		return Events{}, fmt.Errorf("refractory period must be positive, got %g", l.Refractory)
	}
	view, err := rec.View(channel)
	if err != nil {
		return Events{}, err
	}
	rate := rec.SampleRate()
	refractory := int(math.Round(l.Refractory * rate))
	if refractory < 1 {
		refractory = 1
	}

	var list []Event
	for sweep := 0; sweep < view.Sweeps(); sweep++ {
		last := -1
		value := l.signal(view, sweep, rate)
		prev := value(0)
		for i := 1; i < view.Len(); i++ {
			cur := value(i)
			if l.crossed(prev, cur) && (last < 0 || i-last >= refractory) {
				list = append(list, Event{
					Sweep:  sweep,
					Sample: i,
					Time:   rec.TimeOf(sweep, i),
					Source: SourceThreshold,
				})
				last = i
			}
			prev = cur
		}
	}
	return NewEvents(list), nil
}

func (l ThresholdLocator) crossed(prev, cur float64) bool {
	if l.Polarity == Falling {
		return prev > l.Threshold && cur <= l.Threshold
	}
	return prev < l.Threshold && cur >= l.Threshold
}

// signal returns the per-sample detection value for one sweep.
func (l ThresholdLocator) signal(view abf.ChannelView, sweep int, rate float64) func(int) float64 {
	if l.Signal == SignalDerivative {
		return func(i int) float64 {
			if i == 0 {
				return 0
			}
			return (view.At(sweep, i) - view.At(sweep, i-1)) * rate
		}
	}
	return func(i int) float64 { return view.At(sweep, i) }
}
