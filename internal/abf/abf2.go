package abf

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// ABF2 file header field offsets.
const (
	v2FileVersion      = 4
	v2ActualEpisodes   = 12
	v2FileStartDate    = 16
	v2FileStartTimeMS  = 20
	v2DataFormat       = 30
	v2CreatorNameIndex = 60
	v2ProtocolPathIdx  = 72
	v2SectionMap       = 76
	v2SectionEntrySize = 16
	v2SectionCount     = 18
	v2HeaderSize       = v2SectionMap + v2SectionCount*v2SectionEntrySize
)

// Section map slots, in file order.
const (
	v2SecProtocol = 0
	v2SecADC      = 1
	v2SecStrings  = 9
	v2SecData     = 10
	v2SecTag      = 11
)

// Protocol section field offsets.
const (
	v2ProtoOperationMode  = 0
	v2ProtoSeqInterval    = 2
	v2ProtoSynchTimeUnit  = 14
	v2ProtoEpisodeStartDt = 62
	v2ProtoADCRange       = 110
	v2ProtoADCResolution  = 118
	v2ProtoMinSize        = 122
)

// ADC section entry field offsets.
const (
	v2ADCNum              = 0
	v2ADCTelegraphEnable  = 2
	v2ADCTelegraphGain    = 6
	v2ADCProgrammableGain = 28
	v2ADCInstrumentScale  = 40
	v2ADCInstrumentOffset = 44
	v2ADCSignalGain       = 48
	v2ADCSignalOffset     = 52
	v2ADCNameIndex        = 74
	v2ADCUnitsIndex       = 78
	v2ADCMinSize          = 82
)

// Tag entry field offsets; shared by ABF1.
const (
	tagTime        = 0
	tagComment     = 4
	tagCommentSize = 56
	tagType        = 60
	tagEntrySize   = 64
)

type abf2Layout struct{}

func (abf2Layout) variant() Variant { return VariantABF2 }

// section is one entry of the ABF2 section map.
type section struct {
	block   int64
	bytes   int64
	entries int64
}

func (s section) offset() int64 { return s.block * blockSize }

func (abf2Layout) parse(r *fileReader) (*header, error) {
	r.order = binary.LittleEndian
	if !r.need("header", 0, v2HeaderSize) {
		return nil, r.err
	}

	vb := r.bytes("header", v2FileVersion, 4)
	h := &header{
		order:  r.order,
		layout: Interleaved,
		version: Version{
			Variant: VariantABF2,
			Major:   int(vb[3]),
			Minor:   int(vb[2]),
			Bugfix:  int(vb[1]),
			Build:   int(vb[0]),
		},
	}
	if h.version.Major != 2 {
		return nil, &UnsupportedVersionError{Path: r.path, Version: h.version}
	}

	h.episodes = int(r.u32("header", v2ActualEpisodes))
	h.startDate = r.u32("header", v2FileStartDate)
	h.startMS = r.u32("header", v2FileStartTimeMS)
	switch df := r.i16("header", v2DataFormat); df {
	case 0:
		h.format = FormatInt16
	case 1:
		h.format = FormatFloat32
	default:
		return nil, &FormatError{Path: r.path, Reason: fmt.Sprintf("unknown data format %d", df)}
	}

	var secs [v2SectionCount]section
	for i := range secs {
		off := int64(v2SectionMap + i*v2SectionEntrySize)
		secs[i] = section{
			block:   int64(r.u32("section map", off)),
			bytes:   int64(r.u32("section map", off+4)),
			entries: r.i64("section map", off+8),
		}
	}

	proto := secs[v2SecProtocol]
	if proto.block == 0 || proto.bytes < v2ProtoMinSize {
		return nil, &FormatError{Path: r.path, Reason: "missing protocol section"}
	}
	p := proto.offset()
	if !r.need("protocol", p, v2ProtoMinSize) {
		return nil, r.err
	}
	h.mode = OperationMode(r.i16("protocol", p+v2ProtoOperationMode))
	interval := r.f32("protocol", p+v2ProtoSeqInterval)
	if !(interval > 0) {
		return nil, &FormatError{Path: r.path, Reason: fmt.Sprintf("invalid sample interval %g", interval)}
	}
	h.rate = rateFromInterval(interval)
	synchUnit := r.f32("protocol", p+v2ProtoSynchTimeUnit)
	h.episodeDt = r.f32("protocol", p+v2ProtoEpisodeStartDt)
	adcRange := r.f32("protocol", p+v2ProtoADCRange)
	resolution := float64(r.i32("protocol", p+v2ProtoADCResolution))

	strs := abf2Strings(r, secs[v2SecStrings])
	h.creator = strs.at(int(r.u32("header", v2CreatorNameIndex)))
	h.protocol = strs.at(int(r.u32("header", v2ProtocolPathIdx)))

	adc := secs[v2SecADC]
	if adc.entries < 1 {
		return nil, &FormatError{Path: r.path, Reason: "no ADC channels declared"}
	}
	if adc.bytes < v2ADCMinSize {
		return nil, &FormatError{Path: r.path, Reason: fmt.Sprintf("ADC entry size %d too small", adc.bytes)}
	}
	if !r.needEntries("ADC", adc.offset(), adc.bytes, adc.entries) {
		return nil, r.err
	}
	for i := int64(0); i < adc.entries; i++ {
		e := adc.offset() + i*adc.bytes
		sc := scaling{
			adcRange:         adcRange,
			resolution:       resolution,
			instrumentScale:  r.f32("ADC", e+v2ADCInstrumentScale),
			signalGain:       r.f32("ADC", e+v2ADCSignalGain),
			programmableGain: r.f32("ADC", e+v2ADCProgrammableGain),
			telegraphEnabled: r.i16("ADC", e+v2ADCTelegraphEnable) != 0,
			telegraphGain:    r.f32("ADC", e+v2ADCTelegraphGain),
			instrumentOffset: r.f32("ADC", e+v2ADCInstrumentOffset),
			signalOffset:     r.f32("ADC", e+v2ADCSignalOffset),
		}
		ch := Channel{
			Index: int(i),
			ADC:   int(r.i16("ADC", e+v2ADCNum)),
			Name:  strs.at(int(r.i32("ADC", e+v2ADCNameIndex))),
			Unit:  strs.at(int(r.i32("ADC", e+v2ADCUnitsIndex))),
		}
		if h.format == FormatInt16 {
			ch.Gain, ch.Offset = sc.gainOffset()
		} else {
			ch.Gain = 1
		}
		h.channels = append(h.channels, ch)
	}

	data := secs[v2SecData]
	if data.bytes != int64(h.format.Size()) {
		return nil, &FormatError{Path: r.path, Reason: fmt.Sprintf("data sample size %d does not match %s", data.bytes, h.format)}
	}
	h.dataStart = data.offset()
	h.dataCount = data.entries

	tags := secs[v2SecTag]
	if tags.entries > 0 {
		if tags.bytes < tagEntrySize {
			return nil, &FormatError{Path: r.path, Reason: fmt.Sprintf("tag entry size %d too small", tags.bytes)}
		}
		h.tags = readTags(r, tags.offset(), tags.bytes, tags.entries, synchUnit, h.rate, len(h.channels))
	}

	if r.err != nil {
		return nil, r.err
	}
	return h, nil
}

// indexedStrings is the ABF2 strings section split into its lookup table.
// Index 0 is the empty string; header fields refer to entries by index.
type indexedStrings []string

func (s indexedStrings) at(i int) string {
	if i <= 0 || i >= len(s) {
		return ""
	}
	return s[i]
}

// abf2Strings reads the first strings block. The block begins with a
// binary preamble; the indexed strings follow the last double NUL.
func abf2Strings(r *fileReader, sec section) indexedStrings {
	if sec.block == 0 || sec.bytes == 0 {
		return nil
	}
	raw := r.bytes("strings", sec.offset(), sec.bytes)
	if raw == nil {
		return nil
	}
	raw = bytes.TrimRight(raw, "\x00")
	if i := bytes.LastIndex(raw, []byte{0, 0}); i >= 0 {
		raw = raw[i:]
	}
	parts := bytes.Split(raw, []byte{0})
	if len(parts) > 0 {
		parts = parts[1:]
	}
	out := make(indexedStrings, len(parts))
	for i, p := range parts {
		out[i] = decodeText(p)
	}
	return out
}

// readTags decodes a tag table. Tag times are in synchUnit microseconds,
// or in multiplexed sample counts when synchUnit is zero.
func readTags(r *fileReader, off, size, n int64, synchUnit, rate float64, channels int) []Tag {
	if !r.needEntries("tag", off, size, n) {
		return nil
	}
	tags := make([]Tag, 0, n)
	for i := int64(0); i < n; i++ {
		e := off + i*size
		raw := float64(r.i32("tag", e+tagTime))
		var t float64
		if synchUnit > 0 {
			t = raw * synchUnit / 1e6
		} else {
			t = raw / float64(channels) / rate
		}
		tags = append(tags, Tag{
			Time:    t,
			Comment: r.text("tag", e+tagComment, tagCommentSize),
			Type:    int(r.i16("tag", e+tagType)),
		})
	}
	return tags
}
