package epoch

import (
	"github.com/roach88/ephyalign/internal/abf"
)

// Set holds every epoch cut from one channel of one recording.
type Set struct {
	Path     string
	Channel  abf.Channel
	Rate     float64
	Window   Window
	Baseline *Baseline
	Policy   Policy
	Epochs   []*Epoch
	Dropped  []Dropped
}

// Len returns the number of extracted epochs.
func (s *Set) Len() int { return len(s.Epochs) }

// EpochLen returns the common length of every epoch in samples.
func (s *Set) EpochLen() int { return s.Window.Len(s.Rate) }

// Time returns the time of each epoch sample relative to its event.
func (s *Set) Time() []float64 {
	pre, _ := s.Window.Samples(s.Rate)
	out := make([]float64, s.EpochLen())
	for i := range out {
		out[i] = float64(i-pre) / s.Rate
	}
	return out
}

// EventTimes returns the event time of each epoch in recording seconds.
func (s *Set) EventTimes() []float64 {
	out := make([]float64, len(s.Epochs))
	for i, ep := range s.Epochs {
		out[i] = ep.Event.Time
	}
	return out
}

// Mean returns the per-sample average across epochs. Padded samples are
// excluded, so a sample covered by no epoch is zero. It returns nil for an
// empty set.
func (s *Set) Mean() []float64 {
	if len(s.Epochs) == 0 {
		return nil
	}
	n := s.EpochLen()
	sum := make([]float64, n)
	count := make([]int, n)
	for _, ep := range s.Epochs {
		for i := ep.PadBefore; i < n-ep.PadAfter; i++ {
			sum[i] += ep.Samples[i]
			count[i]++
		}
	}
	for i := range sum {
		if count[i] > 0 {
			sum[i] /= float64(count[i])
		}
	}
	return sum
}

// Matrix returns the epochs as rows of samples.
func (s *Set) Matrix() [][]float64 {
	out := make([][]float64, len(s.Epochs))
	for i, ep := range s.Epochs {
		out[i] = ep.Samples
	}
	return out
}
