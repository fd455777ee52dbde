package abf

import (
	"encoding/binary"
	"fmt"
	"math"
)

// ABF1 fixed header field offsets.
const (
	v1FileVersion        = 4
	v1OperationMode      = 8
	v1ActualAcqLength    = 10
	v1NumPointsIgnored   = 14
	v1ActualEpisodes     = 16
	v1FileStartDate      = 20
	v1FileStartTime      = 24
	v1DataSectionPtr     = 40
	v1TagSectionPtr      = 44
	v1NumTagEntries      = 48
	v1DataFormat         = 100
	v1ADCNumChannels     = 120
	v1ADCSampleInterval  = 122
	v1SynchTimeUnit      = 130
	v1ADCRange           = 244
	v1ADCResolution      = 252
	v1ADCSamplingSeq     = 410
	v1ADCChannelName     = 442
	v1ADCChannelNameSize = 10
	v1ADCUnits           = 602
	v1ADCUnitsSize       = 8
	v1ProgrammableGain   = 730
	v1InstrumentScale    = 922
	v1InstrumentOffset   = 986
	v1SignalGain         = 1050
	v1SignalOffset       = 1114
	v1TelegraphEnable    = 4512
	v1TelegraphGain      = 4576

	v1ADCCount      = 16
	v1HeaderSize    = 2048
	v1ExtendedSize  = 6144
	v1ExtendedSince = 1.6
	v1MinVersion    = 1.0
	v1MaxVersion    = 2.0
)

type abf1Layout struct{}

func (abf1Layout) variant() Variant { return VariantABF1 }

func (abf1Layout) parse(r *fileReader) (*header, error) {
	r.order = binary.LittleEndian
	if !r.need("header", 0, v1HeaderSize) {
		return nil, r.err
	}

	fv := r.f32("header", v1FileVersion)
	major := int(math.Floor(fv))
	h := &header{
		order:  r.order,
		layout: Interleaved,
		version: Version{
			Variant: VariantABF1,
			Major:   major,
			Minor:   int(math.Round((fv - float64(major)) * 100)),
		},
	}
	if fv < v1MinVersion || fv >= v1MaxVersion {
		return nil, &UnsupportedVersionError{Path: r.path, Version: h.version}
	}
	extended := fv >= v1ExtendedSince-1e-6
	if extended && !r.need("extended header", 0, v1ExtendedSize) {
		return nil, r.err
	}

	h.mode = OperationMode(r.i16("header", v1OperationMode))
	h.episodes = int(r.i32("header", v1ActualEpisodes))
	h.startDate = uint32(r.i32("header", v1FileStartDate))
	h.startMS = uint32(r.i32("header", v1FileStartTime)) * 1000
	switch df := r.i16("header", v1DataFormat); df {
	case 0:
		h.format = FormatInt16
	case 1:
		h.format = FormatFloat32
	default:
		return nil, &FormatError{Path: r.path, Reason: fmt.Sprintf("unknown data format %d", df)}
	}

	nch := int(r.i16("header", v1ADCNumChannels))
	if nch < 1 || nch > v1ADCCount {
		return nil, &FormatError{Path: r.path, Reason: fmt.Sprintf("invalid channel count %d", nch)}
	}
	// fADCSampleInterval spans one sample of every channel.
	interval := r.f32("header", v1ADCSampleInterval)
	if !(interval > 0) {
		return nil, &FormatError{Path: r.path, Reason: fmt.Sprintf("invalid sample interval %g", interval)}
	}
	h.rate = rateFromInterval(interval * float64(nch))

	adcRange := r.f32("header", v1ADCRange)
	resolution := float64(r.i32("header", v1ADCResolution))
	for i := 0; i < nch; i++ {
		adc := int(r.i16("header", int64(v1ADCSamplingSeq+2*i)))
		if adc < 0 || adc >= v1ADCCount {
			return nil, &FormatError{Path: r.path, Reason: fmt.Sprintf("channel %d maps to invalid ADC %d", i, adc)}
		}
		f32At := func(base int) float64 { return r.f32("header", int64(base+4*adc)) }
		sc := scaling{
			adcRange:         adcRange,
			resolution:       resolution,
			instrumentScale:  f32At(v1InstrumentScale),
			signalGain:       f32At(v1SignalGain),
			programmableGain: f32At(v1ProgrammableGain),
			instrumentOffset: f32At(v1InstrumentOffset),
			signalOffset:     f32At(v1SignalOffset),
		}
		if extended {
			sc.telegraphEnabled = r.i16("header", int64(v1TelegraphEnable+2*adc)) != 0
			sc.telegraphGain = f32At(v1TelegraphGain)
		}
		ch := Channel{
			Index: i,
			ADC:   adc,
			Name:  r.text("header", int64(v1ADCChannelName+v1ADCChannelNameSize*adc), v1ADCChannelNameSize),
			Unit:  r.text("header", int64(v1ADCUnits+v1ADCUnitsSize*adc), v1ADCUnitsSize),
		}
		if h.format == FormatInt16 {
			ch.Gain, ch.Offset = sc.gainOffset()
		} else {
			ch.Gain = 1
		}
		h.channels = append(h.channels, ch)
	}

	ignored := int64(r.i16("header", v1NumPointsIgnored))
	h.dataStart = int64(r.i32("header", v1DataSectionPtr))*blockSize + ignored*int64(h.format.Size())
	h.dataCount = int64(r.i32("header", v1ActualAcqLength))

	if n := int64(r.i32("header", v1NumTagEntries)); n > 0 {
		off := int64(r.i32("header", v1TagSectionPtr)) * blockSize
		h.tags = readTags(r, off, tagEntrySize, n, r.f32("header", v1SynchTimeUnit), h.rate, nch)
	}

	if r.err != nil {
		return nil, r.err
	}
	return h, nil
}
