package testutil

import (
	"encoding/binary"
	"math"
	"os"
	"path/filepath"
	"testing"
)

// Amplifier constants written into every fixture. With a unit instrument
// scale factor one ADC step is 10/32768 physical units, which is exact in
// binary floating point.
const (
	FixtureADCRange   = 10.0
	FixtureResolution = 32768
)

// ABFChannel describes one channel of a fixture file.
type ABFChannel struct {
	Name   string
	Unit   string
	Scale  float64 // instrument scale factor; 0 means 1
	Offset float64 // instrument offset in physical units
}

// Gain returns the raw-to-physical factor the decoder derives for the channel.
func (c ABFChannel) Gain() float64 {
	scale := c.Scale
	if scale == 0 {
		scale = 1
	}
	return FixtureADCRange / FixtureResolution / float64(float32(scale))
}

// ABFTag is a fixture tag table entry.
type ABFTag struct {
	Time    float64 // seconds
	Comment string
}

// ABF describes a synthetic recording. Data holds physical samples per
// channel with sweeps concatenated; int16 fixtures are quantized to the
// channel gain.
type ABF struct {
	Version  int     // 1 or 2; 0 means 2
	Rate     float64 // Hz per channel
	Mode     int16   // acquisition mode; 0 means gap-free
	Sweeps   int     // episode count for episodic modes
	Float    bool    // store float32 samples
	Channels []ABFChannel
	Data     [][]float64
	Tags     []ABFTag
	Date     uint32 // YYYYMMDD
	TimeMS   uint32
}

// WriteABF writes the fixture to dir/name and returns the path.
func WriteABF(t testing.TB, dir, name string, f ABF) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, f.Bytes(), 0o644); err != nil {
		t.Fatalf("write fixture %s: %v", path, err)
	}
	return path
}

// WriteFile writes arbitrary bytes, for corrupt-input fixtures.
func WriteFile(t testing.TB, dir, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write fixture %s: %v", path, err)
	}
	return path
}

// Bytes encodes the fixture.
func (f ABF) Bytes() []byte {
	if f.Mode == 0 {
		f.Mode = 3
	}
	if f.Sweeps == 0 {
		f.Sweeps = 1
	}
	if f.Version == 1 {
		return f.abf1()
	}
	return f.abf2()
}

func (f ABF) perChannel() int {
	if len(f.Data) == 0 {
		return 0
	}
	return len(f.Data[0])
}

// samples returns the interleaved data section.
func (f ABF) samples() []byte {
	nch, n := len(f.Channels), f.perChannel()
	size := 2
	if f.Float {
		size = 4
	}
	out := make([]byte, nch*n*size)
	for i := 0; i < n; i++ {
		for c := 0; c < nch; c++ {
			off := (i*nch + c) * size
			v := f.Data[c][i]
			if f.Float {
				binary.LittleEndian.PutUint32(out[off:], math.Float32bits(float32(v)))
				continue
			}
			raw := math.Round((v - float64(float32(f.Channels[c].Offset))) / f.Channels[c].Gain())
			raw = math.Max(math.MinInt16, math.Min(math.MaxInt16, raw))
			binary.LittleEndian.PutUint16(out[off:], uint16(int16(raw)))
		}
	}
	return out
}

func (f ABF) dataFormat() int16 {
	if f.Float {
		return 1
	}
	return 0
}

// buf is a little-endian byte builder with absolute-offset writes.
type buf []byte

func (b buf) i16(off int, v int16)   { binary.LittleEndian.PutUint16(b[off:], uint16(v)) }
func (b buf) u32(off int, v uint32)  { binary.LittleEndian.PutUint32(b[off:], v) }
func (b buf) i32(off int, v int32)   { binary.LittleEndian.PutUint32(b[off:], uint32(v)) }
func (b buf) i64(off int, v int64)   { binary.LittleEndian.PutUint64(b[off:], uint64(v)) }
func (b buf) f32(off int, v float64) { binary.LittleEndian.PutUint32(b[off:], math.Float32bits(float32(v))) }
func (b buf) str(off int, s string)  { copy(b[off:], s) }

func blocks(n int) int { return (n + 511) / 512 }

func (f ABF) abf2() []byte {
	nch := len(f.Channels)
	data := f.samples()
	sampleSize := 2
	if f.Float {
		sampleSize = 4
	}

	// Strings: 1 creator, 2 protocol, then name/unit pairs.
	strs := []string{"Clampex", `C:\protocols\fixture.pro`}
	for _, c := range f.Channels {
		strs = append(strs, c.Name, c.Unit)
	}
	blob := []byte("SSCH\x01\x00\x00\x00")
	for i, s := range strs {
		if i > 0 {
			blob = append(blob, 0)
		}
		blob = append(blob, latin1(s)...)
	}
	blob = append(blob, 0)

	const protoBlock = 1
	adcBlock := protoBlock + 1
	strBlock := adcBlock + blocks(128*nch)
	tagBlock := strBlock + blocks(len(blob))
	dataBlock := tagBlock + blocks(64*len(f.Tags))
	if len(f.Tags) == 0 {
		dataBlock = tagBlock
	}

	b := make(buf, dataBlock*512+len(data))
	b.str(0, "ABF2")
	copy(b[4:8], []byte{0, 0, 6, 2})
	b.u32(8, 512)
	b.u32(12, uint32(f.Sweeps))
	b.u32(16, f.Date)
	b.u32(20, f.TimeMS)
	b.i16(30, f.dataFormat())
	b.u32(60, 1)
	b.u32(72, 2)

	section := func(slot, block, size int, entries int64) {
		off := 76 + slot*16
		b.u32(off, uint32(block))
		b.u32(off+4, uint32(size))
		b.i64(off+8, entries)
	}
	section(0, protoBlock, 512, 1)
	section(1, adcBlock, 128, int64(nch))
	section(9, strBlock, len(blob), 1)
	if len(f.Tags) > 0 {
		section(11, tagBlock, 64, int64(len(f.Tags)))
	}
	section(10, dataBlock, sampleSize, int64(nch*f.perChannel()))

	p := protoBlock * 512
	b.i16(p, f.Mode)
	b.f32(p+2, 1e6/f.Rate)
	synchUnit := float64(float32(1e6 / f.Rate))
	b.f32(p+14, synchUnit)
	b.f32(p+110, FixtureADCRange)
	b.i32(p+118, FixtureResolution)

	for i, c := range f.Channels {
		e := adcBlock*512 + i*128
		b.i16(e, int16(i))
		b.f32(e+28, 1)
		b.f32(e+40, scaleOrOne(c.Scale))
		b.f32(e+44, c.Offset)
		b.f32(e+48, 1)
		b.i32(e+74, int32(3+2*i))
		b.i32(e+78, int32(4+2*i))
	}

	copy(b[strBlock*512:], blob)

	for i, tag := range f.Tags {
		e := tagBlock*512 + i*64
		b.i32(e, int32(math.Round(tag.Time*1e6/synchUnit)))
		copy(b[e+4:e+60], latin1(tag.Comment))
		b.i16(e+60, 1)
	}

	copy(b[dataBlock*512:], data)
	return b
}

func (f ABF) abf1() []byte {
	nch := len(f.Channels)
	data := f.samples()

	const headerBlocks = 12
	tagBlock := headerBlocks
	dataBlock := tagBlock + blocks(64*len(f.Tags))

	b := make(buf, dataBlock*512+len(data))
	b.str(0, "ABF ")
	b.f32(4, 1.83)
	b.i16(8, f.Mode)
	b.i32(10, int32(nch*f.perChannel()))
	b.i32(16, int32(f.Sweeps))
	b.i32(20, int32(f.Date))
	b.i32(24, int32(f.TimeMS/1000))
	b.i32(40, int32(dataBlock))
	if len(f.Tags) > 0 {
		b.i32(44, int32(tagBlock))
		b.i32(48, int32(len(f.Tags)))
	}
	b.i16(100, f.dataFormat())
	b.i16(120, int16(nch))
	b.f32(122, 1e6/(f.Rate*float64(nch)))
	b.f32(244, FixtureADCRange)
	b.i32(252, FixtureResolution)

	// Channel i is acquired on ADC i+1 to exercise the sampling sequence.
	for i, c := range f.Channels {
		adc := i + 1
		b.i16(410+2*i, int16(adc))
		copy(b[442+10*adc:442+10*adc+10], latin1(c.Name))
		copy(b[602+8*adc:602+8*adc+8], latin1(c.Unit))
		b.f32(730+4*adc, 1)
		b.f32(922+4*adc, scaleOrOne(c.Scale))
		b.f32(986+4*adc, c.Offset)
		b.f32(1050+4*adc, 1)
	}

	for i, tag := range f.Tags {
		e := tagBlock*512 + i*64
		b.i32(e, int32(math.Round(tag.Time*f.Rate))*int32(nch))
		copy(b[e+4:e+60], latin1(tag.Comment))
	}

	copy(b[dataBlock*512:], data)
	return b
}

func scaleOrOne(v float64) float64 {
	if v == 0 {
		return 1
	}
	return v
}

// latin1 encodes s in Windows-1252 for the characters fixtures use.
func latin1(s string) []byte {
	out := make([]byte, 0, len(s))
	for _, r := range s {
		if r < 256 {
			out = append(out, byte(r))
		} else {
			out = append(out, '?')
		}
	}
	return out
}

// Pulses returns n samples of a baseline level with square pulses of the
// given amplitude and width (seconds) starting at each onset time.
func Pulses(n int, rate float64, onsets []float64, width, baseline, amplitude float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = baseline
	}
	w := int(math.Round(width * rate))
	for _, t := range onsets {
		start := int(math.Round(t * rate))
		for i := start; i < start+w && i < n; i++ {
			if i >= 0 {
				out[i] = baseline + amplitude
			}
		}
	}
	return out
}

// Ramp returns n samples rising by step from start.
func Ramp(n int, start, step float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = start + float64(i)*step
	}
	return out
}

// StimulusABF is a 10 s, 1000 Hz single-channel float recording with a
// 10 ms, 5 mV pulse and a tag at each onset.
func StimulusABF(onsets ...float64) ABF {
	tags := make([]ABFTag, len(onsets))
	for i, t := range onsets {
		tags[i] = ABFTag{Time: t, Comment: "stim"}
	}
	return ABF{
		Rate:     1000,
		Float:    true,
		Channels: []ABFChannel{{Name: "IN 0", Unit: "mV"}},
		Data:     [][]float64{Pulses(10000, 1000, onsets, 0.01, 0, 5)},
		Tags:     tags,
		Date:     20240315,
		TimeMS:   3_600_500,
	}
}
