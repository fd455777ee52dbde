package abf

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// storeOf builds a sample store from per-sweep, per-channel int16 blocks.
func storeOf(layout Layout, blocks [][][]int16) *sampleStore {
	sweeps, channels, n := len(blocks), len(blocks[0]), len(blocks[0][0])
	s := &sampleStore{
		data:     make([]byte, sweeps*channels*n*2),
		order:    binary.LittleEndian,
		format:   FormatInt16,
		layout:   layout,
		channels: channels,
		sweeps:   sweeps,
		sweepLen: n,
	}
	for sw := range blocks {
		for ch := range blocks[sw] {
			for i, v := range blocks[sw][ch] {
				binary.LittleEndian.PutUint16(s.data[s.index(ch, sw, i)*2:], uint16(v))
			}
		}
	}
	return s
}

func TestSampleStore_LayoutsResolveSameSamples(t *testing.T) {
	blocks := [][][]int16{
		{{1, 2, 3}, {-1, -2, -3}},
		{{10, 20, 30}, {-10, -20, -30}},
	}
	inter := storeOf(Interleaved, blocks)
	major := storeOf(ChannelMajor, blocks)

	// Interleaved stores ch0,ch1 pairs; channel-major stores whole blocks.
	assert.Equal(t, int16(-1), int16(binary.LittleEndian.Uint16(inter.data[2:])))
	assert.Equal(t, int16(2), int16(binary.LittleEndian.Uint16(major.data[2:])))

	for sw := range blocks {
		for ch := range blocks[sw] {
			for i, want := range blocks[sw][ch] {
				assert.Equal(t, float64(want), inter.raw(ch, sw, i))
				assert.Equal(t, float64(want), major.raw(ch, sw, i))
			}
		}
	}
}

func TestChannelView_ConvertsOnRead(t *testing.T) {
	store := storeOf(ChannelMajor, [][][]int16{{{0, 100, 200, 300}}})
	view := ChannelView{store: store, ch: Channel{Gain: 0.5, Offset: -10}}

	assert.Equal(t, 4, view.Len())
	assert.Equal(t, 1, view.Sweeps())
	assert.Equal(t, 100.0, view.Raw(0, 1))
	assert.Equal(t, 40.0, view.At(0, 1))

	dst := make([]float64, 3)
	n := view.Read(0, 2, dst)
	assert.Equal(t, 2, n)
	assert.Equal(t, []float64{90, 140}, dst[:n])

	assert.Panics(t, func() { view.At(0, 4) })
}

func TestRateFromInterval(t *testing.T) {
	assert.Equal(t, 30000.0, rateFromInterval(float64(float32(1e6/30000.0))))
	assert.Equal(t, 1000.0, rateFromInterval(1000))
	assert.InDelta(t, 3000.3, rateFromInterval(1e6/3000.3), 1e-9)
}

func TestScaling_GainOffset(t *testing.T) {
	sc := scaling{
		adcRange:         10,
		resolution:       32768,
		instrumentScale:  0.1,
		signalGain:       2,
		programmableGain: 1,
		telegraphEnabled: true,
		telegraphGain:    5,
		instrumentOffset: 1.5,
		signalOffset:     0.5,
	}
	gain, offset := sc.gainOffset()
	assert.InDelta(t, 10.0/32768/0.1/2/5, gain, 1e-15)
	assert.Equal(t, 1.0, offset)

	sc.telegraphEnabled = false
	sc.signalGain = 0 // unset stage
	gain, _ = sc.gainOffset()
	assert.InDelta(t, 10.0/32768/0.1, gain, 1e-15)
}

func TestIndexedStrings(t *testing.T) {
	r := &fileReader{path: "s", data: append(make([]byte, 512), []byte("SSCH\x01\x00\x00\x00Clampex\x00mV\x00\xb5A\x00\x00\x00")...)}
	strs := abf2Strings(r, section{block: 1, bytes: int64(len(r.data) - 512), entries: 1})
	require.NoError(t, r.err)
	assert.Equal(t, "", strs.at(0))
	assert.Equal(t, "Clampex", strs.at(1))
	assert.Equal(t, "mV", strs.at(2))
	assert.Equal(t, "µA", strs.at(3))
	assert.Equal(t, "", strs.at(99))
}
