package abf

import (
	"bytes"
	"encoding/binary"
	"math"
	"strings"

	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/unicode/norm"
)

// blockSize is the unit of ABF section pointers.
const blockSize = 512

// header is the version-independent result of parsing a file header.
// Everything downstream of Decode works from this struct only.
type header struct {
	version   Version
	order     binary.ByteOrder
	mode      OperationMode
	format    SampleFormat
	layout    Layout
	rate      float64 // samples per second per channel
	episodes  int
	episodeDt float64 // seconds between episode starts, 0 if back-to-back
	channels  []Channel
	dataStart int64
	dataCount int64 // samples across all channels
	tags      []Tag
	startDate uint32 // YYYYMMDD, 0 if unknown
	startMS   uint32 // milliseconds since midnight
	creator   string
	protocol  string
}

// layout is one supported header variant. Each implementation owns its
// own fixed field table and byte order.
type layout interface {
	variant() Variant
	parse(f *fileReader) (*header, error)
}

// layouts maps magic bytes to header variants.
var layouts = map[string]layout{
	"ABF ": abf1Layout{},
	"ABF2": abf2Layout{},
}

// fileReader reads fixed-offset fields with bounds checking. Any read past
// the end of the file yields a *TruncatedFileError naming the section.
type fileReader struct {
	path  string
	data  []byte
	order binary.ByteOrder
	err   error
}

func (r *fileReader) size() int64 { return int64(len(r.data)) }

// need records a truncation error if [off, off+n) is not inside the file.
func (r *fileReader) need(section string, off, n int64) bool {
	if r.err != nil {
		return false
	}
	if off < 0 || n < 0 || off+n > r.size() {
		r.err = &TruncatedFileError{Path: r.path, Section: section, Need: off + n, Have: r.size()}
		return false
	}
	return true
}

// needEntries is need for n entries of size bytes each. Counts are
// compared against the bytes left in the file before multiplying, so a
// crafted count cannot wrap past the bounds check.
func (r *fileReader) needEntries(section string, off, size, n int64) bool {
	if r.err != nil {
		return false
	}
	left := r.size() - off
	if off < 0 || size <= 0 || n < 0 || left < 0 || n > left/size {
		end := int64(math.MaxInt64)
		if off >= 0 && size > 0 && n >= 0 && n <= (math.MaxInt64-off)/size {
			end = off + size*n
		}
		r.err = &TruncatedFileError{Path: r.path, Section: section, Need: end, Have: r.size()}
		return false
	}
	return true
}

func (r *fileReader) bytes(section string, off, n int64) []byte {
	if !r.need(section, off, n) {
		return nil
	}
	return r.data[off : off+n]
}

func (r *fileReader) u16(section string, off int64) uint16 {
	b := r.bytes(section, off, 2)
	if b == nil {
		return 0
	}
	return r.order.Uint16(b)
}

func (r *fileReader) i16(section string, off int64) int16 {
	return int16(r.u16(section, off))
}

func (r *fileReader) u32(section string, off int64) uint32 {
	b := r.bytes(section, off, 4)
	if b == nil {
		return 0
	}
	return r.order.Uint32(b)
}

func (r *fileReader) i32(section string, off int64) int32 {
	return int32(r.u32(section, off))
}

func (r *fileReader) i64(section string, off int64) int64 {
	b := r.bytes(section, off, 8)
	if b == nil {
		return 0
	}
	return int64(r.order.Uint64(b))
}

func (r *fileReader) f32(section string, off int64) float64 {
	return float64(math.Float32frombits(r.u32(section, off)))
}

// text decodes a fixed-width Windows-1252 field. ABF writers store unit
// strings such as "µV" in the Windows code page.
func (r *fileReader) text(section string, off, n int64) string {
	return decodeText(r.bytes(section, off, n))
}

func decodeText(b []byte) string {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		b = b[:i]
	}
	s, err := charmap.Windows1252.NewDecoder().Bytes(b)
	if err != nil {
		s = b
	}
	return norm.NFC.String(strings.TrimSpace(string(s)))
}

// scaling computes gain and offset for an int16 channel from the header's
// amplifier chain. Zero factors are treated as 1 to match acquisition
// software that leaves unused stages unset.
type scaling struct {
	adcRange         float64
	resolution       float64
	instrumentScale  float64
	signalGain       float64
	programmableGain float64
	telegraphEnabled bool
	telegraphGain    float64
	instrumentOffset float64
	signalOffset     float64
}

func (s scaling) gainOffset() (gain, offset float64) {
	gain = s.adcRange / nonZero(s.resolution)
	gain /= nonZero(s.instrumentScale)
	gain /= nonZero(s.signalGain)
	gain /= nonZero(s.programmableGain)
	if s.telegraphEnabled {
		gain /= nonZero(s.telegraphGain)
	}
	return gain, s.instrumentOffset - s.signalOffset
}

func nonZero(v float64) float64 {
	if v == 0 {
		return 1
	}
	return v
}

// rateFromInterval converts a per-channel sample interval in microseconds
// to Hz, snapping float32 rounding noise to the nearest integer rate.
func rateFromInterval(us float64) float64 {
	rate := 1e6 / us
	if r := math.Round(rate); math.Abs(rate-r) < 1e-6*rate {
		return r
	}
	return rate
}
