package abf

import (
	"encoding/binary"
	"fmt"
	"math"
	"time"
)

// Recording is a decoded ABF file. It is immutable; all accessors return
// copies or read-only views.
type Recording struct {
	path      string
	version   Version
	mode      OperationMode
	rate      float64
	channels  []Channel
	sweeps    []Sweep
	tags      []Tag
	startTime time.Time
	creator   string
	protocol  string
	samples   *sampleStore
}

// Path returns the file the recording was decoded from.
func (r *Recording) Path() string { return r.path }

// Version returns the file format version.
func (r *Recording) Version() Version { return r.version }

// Mode returns the acquisition mode.
func (r *Recording) Mode() OperationMode { return r.mode }

// SampleRate returns the per-channel sampling rate in Hz.
func (r *Recording) SampleRate() float64 { return r.rate }

// ChannelCount returns the number of recorded channels.
func (r *Recording) ChannelCount() int { return len(r.channels) }

// Channels returns a copy of the channel table.
func (r *Recording) Channels() []Channel {
	out := make([]Channel, len(r.channels))
	copy(out, r.channels)
	return out
}

// Channel returns the channel at index i.
func (r *Recording) Channel(i int) (Channel, error) {
	if i < 0 || i >= len(r.channels) {
		return Channel{}, fmt.Errorf("channel %d out of range [0,%d)", i, len(r.channels))
	}
	return r.channels[i], nil
}

// SweepCount returns the number of sweeps.
func (r *Recording) SweepCount() int { return len(r.sweeps) }

// Sweeps returns a copy of the sweep table.
func (r *Recording) Sweeps() []Sweep {
	out := make([]Sweep, len(r.sweeps))
	copy(out, r.sweeps)
	return out
}

// SweepLength returns the number of samples per channel in each sweep.
func (r *Recording) SweepLength() int { return r.samples.sweepLen }

// Duration returns the total acquired time in seconds, excluding gaps
// between episodes.
func (r *Recording) Duration() float64 {
	return float64(len(r.sweeps)*r.samples.sweepLen) / r.rate
}

// Tags returns a copy of the embedded tag table.
func (r *Recording) Tags() []Tag {
	out := make([]Tag, len(r.tags))
	copy(out, r.tags)
	return out
}

// HasTags reports whether the file carries a tag table.
func (r *Recording) HasTags() bool { return len(r.tags) > 0 }

// StartTime returns the acquisition start time, or the zero time if the
// header does not record one.
func (r *Recording) StartTime() time.Time { return r.startTime }

// Creator returns the name of the acquisition software, if recorded.
func (r *Recording) Creator() string { return r.creator }

// Protocol returns the protocol file path, if recorded.
func (r *Recording) Protocol() string { return r.protocol }

// SampleFormat returns the on-disk sample representation.
func (r *Recording) SampleFormat() SampleFormat { return r.samples.format }

// Layout returns the channel arrangement of the data section.
func (r *Recording) Layout() Layout { return r.samples.layout }

// Locate maps a time in seconds from the recording start to a sweep and
// the nearest sample within it. ok is false when t falls outside every
// sweep.
func (r *Recording) Locate(t float64) (sweep, sample int, ok bool) {
	for _, sw := range r.sweeps {
		i := int(math.Round((t - sw.Start) * r.rate))
		if i >= 0 && i < sw.Length {
			return sw.Index, i, true
		}
	}
	return 0, 0, false
}

// TimeOf returns the time in seconds from the recording start of a sample.
func (r *Recording) TimeOf(sweep, sample int) float64 {
	if sweep < 0 || sweep >= len(r.sweeps) {
		return math.NaN()
	}
	return r.sweeps[sweep].Start + float64(sample)/r.rate
}

// View returns a lazily converting reader over one channel.
func (r *Recording) View(channel int) (ChannelView, error) {
	ch, err := r.Channel(channel)
	if err != nil {
		return ChannelView{}, err
	}
	return ChannelView{store: r.samples, ch: ch}, nil
}

// sampleStore holds the raw data section and resolves sample addresses
// according to the declared layout.
type sampleStore struct {
	data     []byte
	order    binary.ByteOrder
	format   SampleFormat
	layout   Layout
	channels int
	sweeps   int
	sweepLen int
}

func (s *sampleStore) index(ch, sweep, i int) int {
	if s.layout == ChannelMajor {
		return (sweep*s.channels+ch)*s.sweepLen + i
	}
	return (sweep*s.sweepLen+i)*s.channels + ch
}

func (s *sampleStore) raw(ch, sweep, i int) float64 {
	idx := s.index(ch, sweep, i)
	if s.format == FormatFloat32 {
		return float64(math.Float32frombits(s.order.Uint32(s.data[idx*4:])))
	}
	return float64(int16(s.order.Uint16(s.data[idx*2:])))
}

// ChannelView reads one channel of a recording in physical units. The
// conversion physical = raw*gain + offset is applied per read.
type ChannelView struct {
	store *sampleStore
	ch    Channel
}

// Channel returns the channel this view reads.
func (v ChannelView) Channel() Channel { return v.ch }

// Len returns the number of samples per sweep.
func (v ChannelView) Len() int { return v.store.sweepLen }

// Sweeps returns the number of sweeps.
func (v ChannelView) Sweeps() int { return v.store.sweeps }

// Raw returns the unconverted sample value.
func (v ChannelView) Raw(sweep, i int) float64 {
	v.check(sweep, i)
	return v.store.raw(v.ch.Index, sweep, i)
}

// At returns sample i of a sweep in physical units.
func (v ChannelView) At(sweep, i int) float64 {
	return v.Raw(sweep, i)*v.ch.Gain + v.ch.Offset
}

// Read converts samples starting at start into dst and returns the number
// of samples written, which is less than len(dst) at the end of the sweep.
func (v ChannelView) Read(sweep, start int, dst []float64) int {
	n := len(dst)
	if rem := v.store.sweepLen - start; rem < n {
		n = rem
	}
	for i := 0; i < n; i++ {
		dst[i] = v.At(sweep, start+i)
	}
	if n < 0 {
		return 0
	}
	return n
}

// Sweep returns one full sweep in physical units.
func (v ChannelView) Sweep(sweep int) []float64 {
	out := make([]float64, v.store.sweepLen)
	v.Read(sweep, 0, out)
	return out
}

func (v ChannelView) check(sweep, i int) {
	if sweep < 0 || sweep >= v.store.sweeps || i < 0 || i >= v.store.sweepLen {
		panic(fmt.Sprintf("abf: sample (%d,%d) out of range (%d sweeps x %d samples)",
			sweep, i, v.store.sweeps, v.store.sweepLen))
	}
}
