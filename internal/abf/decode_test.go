package abf_test

import (
	"encoding/binary"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/ephyalign/internal/abf"
	"github.com/roach88/ephyalign/internal/testutil"
)

func twoChannel(version int) testutil.ABF {
	return testutil.ABF{
		Version: version,
		Rate:    1000,
		Channels: []testutil.ABFChannel{
			{Name: "IN 0", Unit: "mV", Scale: 0.5},
			{Name: "IN 1", Unit: "pA", Offset: 2},
		},
		Data: [][]float64{
			testutil.Ramp(200, -1, 0.01),
			testutil.Ramp(200, 3, -0.02),
		},
		Date:   20240315,
		TimeMS: 3_600_500,
	}
}

func TestDecode_ABF2Header(t *testing.T) {
	fx := twoChannel(2)
	path := testutil.WriteABF(t, t.TempDir(), "cell.abf", fx)

	rec, err := abf.Decode(path)
	require.NoError(t, err)

	assert.Equal(t, path, rec.Path())
	assert.Equal(t, abf.VariantABF2, rec.Version().Variant)
	assert.Equal(t, "2.6.0.0", rec.Version().String())
	assert.Equal(t, abf.ModeGapFree, rec.Mode())
	assert.Equal(t, 1000.0, rec.SampleRate())
	assert.Equal(t, 2, rec.ChannelCount())
	assert.Equal(t, 1, rec.SweepCount())
	assert.Equal(t, 200, rec.SweepLength())
	assert.InDelta(t, 0.2, rec.Duration(), 1e-12)
	assert.Equal(t, abf.FormatInt16, rec.SampleFormat())
	assert.Equal(t, abf.Interleaved, rec.Layout())
	assert.Equal(t, "Clampex", rec.Creator())
	assert.Equal(t, `C:\protocols\fixture.pro`, rec.Protocol())
	assert.Equal(t, time.Date(2024, 3, 15, 1, 0, 0, 500_000_000, time.UTC), rec.StartTime())

	chans := rec.Channels()
	require.Len(t, chans, 2)
	assert.Equal(t, "IN 0", chans[0].Name)
	assert.Equal(t, "mV", chans[0].Unit)
	assert.Equal(t, "pA", chans[1].Unit)
	assert.InDelta(t, fx.Channels[0].Gain(), chans[0].Gain, 1e-15)
	assert.InDelta(t, 2.0, chans[1].Offset, 1e-6)
}

func TestDecode_ABF1Header(t *testing.T) {
	fx := twoChannel(1)
	path := testutil.WriteABF(t, t.TempDir(), "legacy.abf", fx)

	rec, err := abf.Decode(path)
	require.NoError(t, err)

	assert.Equal(t, abf.VariantABF1, rec.Version().Variant)
	assert.Equal(t, 1, rec.Version().Major)
	assert.Equal(t, 83, rec.Version().Minor)
	assert.Equal(t, 1000.0, rec.SampleRate())
	assert.Equal(t, 200, rec.SweepLength())

	chans := rec.Channels()
	require.Len(t, chans, 2)
	// Fixture channels are acquired on ADC i+1.
	assert.Equal(t, 1, chans[0].ADC)
	assert.Equal(t, 2, chans[1].ADC)
	assert.Equal(t, "IN 1", chans[1].Name)
	assert.Equal(t, "pA", chans[1].Unit)
	assert.Equal(t, time.Date(2024, 3, 15, 1, 0, 0, 0, time.UTC), rec.StartTime())
}

func TestDecode_PhysicalValues(t *testing.T) {
	for _, version := range []int{1, 2} {
		fx := twoChannel(version)
		rec, err := abf.DecodeBytes("mem.abf", fx.Bytes())
		require.NoError(t, err)

		for c := 0; c < 2; c++ {
			view, err := rec.View(c)
			require.NoError(t, err)
			tol := fx.Channels[c].Gain()/2 + 1e-9
			for i, want := range fx.Data[c] {
				assert.InDelta(t, want, view.At(0, i), tol, "v%d ch%d sample %d", version, c, i)
			}
		}
	}
}

func TestDecode_ConversionIsDeterministic(t *testing.T) {
	data := twoChannel(2).Bytes()

	first, err := abf.DecodeBytes("a.abf", data)
	require.NoError(t, err)
	second, err := abf.DecodeBytes("a.abf", data)
	require.NoError(t, err)

	for c := 0; c < first.ChannelCount(); c++ {
		v1, _ := first.View(c)
		v2, _ := second.View(c)
		ch := v1.Channel()
		for i := 0; i < v1.Len(); i++ {
			assert.Equal(t, v1.Raw(0, i)*ch.Gain+ch.Offset, v1.At(0, i))
			assert.Equal(t, v1.At(0, i), v2.At(0, i))
		}
	}
}

func TestDecode_Float32Samples(t *testing.T) {
	fx := testutil.ABF{
		Rate:     20000,
		Float:    true,
		Channels: []testutil.ABFChannel{{Name: "Vm", Unit: "mV"}},
		Data:     [][]float64{{-65.5, -65.25, 12.125, 0}},
	}
	rec, err := abf.DecodeBytes("f.abf", fx.Bytes())
	require.NoError(t, err)

	assert.Equal(t, abf.FormatFloat32, rec.SampleFormat())
	view, err := rec.View(0)
	require.NoError(t, err)
	assert.Equal(t, []float64{-65.5, -65.25, 12.125, 0}, view.Sweep(0))
	assert.Equal(t, 1.0, view.Channel().Gain)
}

func TestDecode_EpisodicSweeps(t *testing.T) {
	fx := testutil.ABF{
		Rate:     1000,
		Mode:     5,
		Sweeps:   3,
		Float:    true,
		Channels: []testutil.ABFChannel{{Name: "Vm", Unit: "mV"}},
		Data:     [][]float64{testutil.Ramp(300, 0, 1)},
	}
	rec, err := abf.DecodeBytes("ep.abf", fx.Bytes())
	require.NoError(t, err)

	assert.Equal(t, abf.ModeEpisodic, rec.Mode())
	require.Equal(t, 3, rec.SweepCount())
	assert.Equal(t, 100, rec.SweepLength())
	sweeps := rec.Sweeps()
	assert.InDelta(t, 0.2, sweeps[2].Start, 1e-12)

	view, _ := rec.View(0)
	assert.Equal(t, 250.0, view.At(2, 50))

	sweep, sample, ok := rec.Locate(0.1512)
	require.True(t, ok)
	assert.Equal(t, 1, sweep)
	assert.Equal(t, 51, sample) // rounds to nearest
	assert.InDelta(t, 0.151, rec.TimeOf(1, 51), 1e-12)

	_, _, ok = rec.Locate(0.5)
	assert.False(t, ok)
}

func TestDecode_Tags(t *testing.T) {
	for _, version := range []int{1, 2} {
		fx := twoChannel(version)
		fx.Tags = []testutil.ABFTag{{Time: 0.05, Comment: "stim on"}, {Time: 0.125, Comment: "drug"}}
		rec, err := abf.DecodeBytes("tags.abf", fx.Bytes())
		require.NoError(t, err)

		require.True(t, rec.HasTags())
		tags := rec.Tags()
		require.Len(t, tags, 2)
		assert.InDelta(t, 0.05, tags[0].Time, 1e-9, "version %d", version)
		assert.InDelta(t, 0.125, tags[1].Time, 1e-9, "version %d", version)
		assert.Equal(t, "stim on", tags[0].Comment)
	}
}

func TestDecode_WindowsCodePageUnits(t *testing.T) {
	fx := testutil.ABF{
		Rate:     1000,
		Channels: []testutil.ABFChannel{{Name: "EEG", Unit: "µV"}},
		Data:     [][]float64{{0, 1}},
	}
	for _, version := range []int{1, 2} {
		fx.Version = version
		rec, err := abf.DecodeBytes("u.abf", fx.Bytes())
		require.NoError(t, err)
		ch, _ := rec.Channel(0)
		assert.Equal(t, "\u00b5V", ch.Unit)
	}
}

func TestDecode_NoHandleRetained(t *testing.T) {
	path := testutil.WriteABF(t, t.TempDir(), "gone.abf", twoChannel(2))
	rec, err := abf.Decode(path)
	require.NoError(t, err)
	require.NoError(t, os.Remove(path))

	view, err := rec.View(1)
	require.NoError(t, err)
	assert.Len(t, view.Sweep(0), 200)
}

func TestDecode_Errors(t *testing.T) {
	valid := twoChannel(2).Bytes()

	t.Run("missing file", func(t *testing.T) {
		_, err := abf.Decode(filepath.Join(t.TempDir(), "nope.abf"))
		assert.ErrorIs(t, err, os.ErrNotExist)
	})

	t.Run("too short", func(t *testing.T) {
		_, err := abf.DecodeBytes("x.abf", []byte("AB"))
		assert.True(t, abf.IsFormatError(err))
	})

	t.Run("bad magic", func(t *testing.T) {
		bad := append([]byte("RIFF"), valid[4:]...)
		_, err := abf.DecodeBytes("x.abf", bad)
		var fe *abf.FormatError
		require.ErrorAs(t, err, &fe)
		assert.Contains(t, fe.Reason, "magic")
	})

	t.Run("truncated data section", func(t *testing.T) {
		_, err := abf.DecodeBytes("x.abf", valid[:len(valid)-10])
		var te *abf.TruncatedFileError
		require.ErrorAs(t, err, &te)
		assert.Equal(t, "data", te.Section)
		assert.Equal(t, int64(len(valid)-10), te.Have)
	})

	t.Run("truncated header", func(t *testing.T) {
		_, err := abf.DecodeBytes("x.abf", valid[:100])
		assert.True(t, abf.IsTruncated(err))
	})

	t.Run("unsupported ABF2 major", func(t *testing.T) {
		bad := append([]byte(nil), valid...)
		bad[7] = 3
		_, err := abf.DecodeBytes("x.abf", bad)
		var ue *abf.UnsupportedVersionError
		require.ErrorAs(t, err, &ue)
		assert.Equal(t, 3, ue.Version.Major)
	})

	t.Run("unsupported ABF1 version", func(t *testing.T) {
		bad := twoChannel(1).Bytes()
		binary.LittleEndian.PutUint32(bad[4:], math.Float32bits(2.5))
		_, err := abf.DecodeBytes("x.abf", bad)
		assert.True(t, abf.IsUnsupportedVersion(err))
	})

	// Section map entry counts live at 76 + slot*16 + 8.
	tagged := twoChannel(2)
	tagged.Tags = []testutil.ABFTag{{Time: 0.05, Comment: "stim"}}
	stim := testutil.StimulusABF(2.0)
	counts := []struct {
		name    string
		file    []byte
		offset  int
		count   uint64
		section string
	}{
		{"ADC count wraps entry size", valid, 76 + 1*16 + 8, 1 << 62, "ADC"},
		{"data count wraps sample size", stim.Bytes(), 76 + 10*16 + 8, 1<<62 + 100, "data"},
		{"tag count wraps entry size", tagged.Bytes(), 76 + 11*16 + 8, 1 << 58, "tag"},
		{"data count past end of file", valid, 76 + 10*16 + 8, 402, "data"},
	}
	for _, tc := range counts {
		t.Run(tc.name, func(t *testing.T) {
			bad := append([]byte(nil), tc.file...)
			binary.LittleEndian.PutUint64(bad[tc.offset:], tc.count)
			_, err := abf.DecodeBytes("x.abf", bad)
			var te *abf.TruncatedFileError
			require.ErrorAs(t, err, &te)
			assert.Equal(t, tc.section, te.Section)
			assert.Equal(t, int64(len(bad)), te.Have)
			assert.Greater(t, te.Need, te.Have)
		})
	}

	t.Run("zero sample interval", func(t *testing.T) {
		bad := append([]byte(nil), valid...)
		binary.LittleEndian.PutUint32(bad[512+2:], 0)
		_, err := abf.DecodeBytes("x.abf", bad)
		assert.True(t, abf.IsFormatError(err))
	})
}
