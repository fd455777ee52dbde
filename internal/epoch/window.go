// Package epoch cuts fixed-length windows around alignment events.
//
// Every epoch extracted with the same Window at the same sampling rate has
// exactly round(Pre*rate) + round(Post*rate) samples, so epochs from one
// run can be stacked. Windows that leave the sweep are handled by Policy.
package epoch

import (
	"errors"
	"fmt"
	"math"
)

// Window is the extent of an epoch around its event, in seconds.
type Window struct {
	Pre  float64
	Post float64
}

// Validate checks that both extents are positive and finite.
func (w Window) Validate() error {
	if !(w.Pre > 0) || math.IsInf(w.Pre, 0) {
		return fmt.Errorf("pre-time must be a positive number of seconds, got %g", w.Pre)
	}
	if !(w.Post > 0) || math.IsInf(w.Post, 0) {
		return fmt.Errorf("post-time must be a positive number of seconds, got %g", w.Post)
	}
	return nil
}

// Samples returns the number of samples before and after the event.
func (w Window) Samples(rate float64) (pre, post int) {
	return int(math.Round(w.Pre * rate)), int(math.Round(w.Post * rate))
}

// Len returns the epoch length in samples.
func (w Window) Len(rate float64) int {
	pre, post := w.Samples(rate)
	return pre + post
}

// Baseline is a reference sub-window relative to the event, in seconds.
// It must precede the event and lie inside the epoch: -Pre <= From < To <= 0.
type Baseline struct {
	From float64
	To   float64
}

// Validate checks the baseline against the epoch window.
func (b Baseline) Validate(w Window) error {
	if !(b.From < b.To) {
		return fmt.Errorf("baseline window [%g, %g] is empty", b.From, b.To)
	}
	if b.To > 0 {
		return errors.New("baseline window must end at or before the event")
	}
	if b.From < -w.Pre {
		return fmt.Errorf("baseline window starts at %g, before the epoch start %g", b.From, -w.Pre)
	}
	return nil
}

// Range returns the baseline as sample offsets [lo, hi) into an epoch.
func (b Baseline) Range(w Window, rate float64) (lo, hi int) {
	pre, _ := w.Samples(rate)
	return pre + int(math.Round(b.From*rate)), pre + int(math.Round(b.To*rate))
}

// Policy decides what happens to epochs that leave the sweep.
type Policy string

const (
	// PolicyDrop skips the epoch and records it as dropped.
	PolicyDrop Policy = "drop"
	// PolicyPad zero-fills the missing samples.
	PolicyPad Policy = "pad"
	// PolicyStrict fails extraction with *OutOfRangeError.
	PolicyStrict Policy = "strict"
)

// ParsePolicy validates a policy name.
func ParsePolicy(s string) (Policy, error) {
	switch p := Policy(s); p {
	case PolicyDrop, PolicyPad, PolicyStrict:
		return p, nil
	}
	return "", fmt.Errorf("invalid out-of-range policy %q (drop|pad|strict)", s)
}
