package abf

import "fmt"

// Variant identifies the header layout family of a file.
type Variant int

const (
	// VariantABF1 is the legacy fixed-header layout ("ABF " magic).
	VariantABF1 Variant = iota + 1
	// VariantABF2 is the section-map layout ("ABF2" magic).
	VariantABF2
)

func (v Variant) String() string {
	switch v {
	case VariantABF1:
		return "ABF1"
	case VariantABF2:
		return "ABF2"
	default:
		return fmt.Sprintf("Variant(%d)", int(v))
	}
}

// Version is the decoded file format version.
type Version struct {
	Variant Variant
	Major   int
	Minor   int
	Bugfix  int
	Build   int
}

func (v Version) String() string {
	return fmt.Sprintf("%d.%d.%d.%d", v.Major, v.Minor, v.Bugfix, v.Build)
}

// OperationMode is the acquisition mode declared in the header.
type OperationMode int

const (
	ModeEventDriven    OperationMode = 1
	ModeOscilloscope   OperationMode = 2
	ModeGapFree        OperationMode = 3
	ModeHighSpeedScope OperationMode = 4
	ModeEpisodic       OperationMode = 5
)

func (m OperationMode) String() string {
	switch m {
	case ModeEventDriven:
		return "event-driven"
	case ModeOscilloscope:
		return "oscilloscope"
	case ModeGapFree:
		return "gap-free"
	case ModeHighSpeedScope:
		return "high-speed-oscilloscope"
	case ModeEpisodic:
		return "episodic"
	default:
		return fmt.Sprintf("mode-%d", int(m))
	}
}

// sweeps reports whether data in this mode is split into fixed-length
// episodes. Event-driven variable-length data needs the synch array to
// split and is treated as one continuous sweep.
func (m OperationMode) sweeps() bool {
	return m == ModeOscilloscope || m == ModeHighSpeedScope || m == ModeEpisodic
}

// SampleFormat is the on-disk representation of one sample.
type SampleFormat int

const (
	FormatInt16 SampleFormat = iota
	FormatFloat32
)

// Size returns the number of bytes per sample.
func (f SampleFormat) Size() int {
	if f == FormatFloat32 {
		return 4
	}
	return 2
}

func (f SampleFormat) String() string {
	if f == FormatFloat32 {
		return "float32"
	}
	return "int16"
}

// Layout describes how channels are arranged in the data section.
type Layout int

const (
	// Interleaved stores one sample of every channel before the next
	// sample index (multiplexed, sample-major).
	Interleaved Layout = iota
	// ChannelMajor stores each channel's samples of a sweep as one
	// contiguous block.
	ChannelMajor
)

func (l Layout) String() string {
	if l == ChannelMajor {
		return "channel-major"
	}
	return "interleaved"
}

// Channel is one ADC signal stream of a recording.
type Channel struct {
	Index  int     // position in the data section's channel order
	ADC    int     // physical ADC number
	Name   string
	Unit   string
	Gain   float64 // physical = raw*Gain + Offset
	Offset float64
}

// Sweep is one contiguous block of samples.
type Sweep struct {
	Index  int
	Start  float64 // seconds from the start of the recording
	Length int     // samples per channel
}

// Tag is one entry of the embedded annotation table.
type Tag struct {
	Time    float64 // seconds from the start of the recording
	Comment string
	Type    int
}
