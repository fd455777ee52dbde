package detect

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/ephyalign/internal/abf"
	"github.com/roach88/ephyalign/internal/testutil"
)

func ptr(v float64) *float64 { return &v }

func pulseRecording(t *testing.T, onsets []float64, tags []testutil.ABFTag) *abf.Recording {
	t.Helper()
	fx := testutil.ABF{
		Rate:     1000,
		Float:    true,
		Channels: []testutil.ABFChannel{{Name: "stim", Unit: "V"}},
		Data:     [][]float64{testutil.Pulses(10000, 1000, onsets, 0.01, 0, 5)},
		Tags:     tags,
	}
	rec, err := abf.DecodeBytes("pulses.abf", fx.Bytes())
	require.NoError(t, err)
	return rec
}

func samples(ev Events) []int {
	var out []int
	for _, e := range ev.All() {
		out = append(out, e.Sample)
	}
	return out
}

func TestThresholdLocator_RisingCrossings(t *testing.T) {
	rec := pulseRecording(t, []float64{2.0, 5.0}, nil)

	ev, err := Locate(rec, 0, Options{
		Mode: ModeThreshold, Threshold: ptr(2.5), Polarity: Rising, Signal: SignalRaw, Refractory: 0.1,
	})
	require.NoError(t, err)
	require.Equal(t, 2, ev.Len())
	assert.Equal(t, []int{2000, 5000}, samples(ev))
	assert.Equal(t, []float64{2.0, 5.0}, ev.Times())
	assert.Equal(t, SourceThreshold, ev.At(0).Source)
}

func TestThresholdLocator_FallingCrossings(t *testing.T) {
	rec := pulseRecording(t, []float64{2.0, 5.0}, nil)

	ev, err := ThresholdLocator{Threshold: 2.5, Polarity: Falling, Signal: SignalRaw, Refractory: 0.1}.Locate(rec, 0)
	require.NoError(t, err)
	assert.Equal(t, []int{2010, 5010}, samples(ev))
}

func TestThresholdLocator_Refractory(t *testing.T) {
	rec := pulseRecording(t, []float64{1.0, 1.03, 3.0}, nil)

	loc := ThresholdLocator{Threshold: 2.5, Polarity: Rising, Signal: SignalRaw, Refractory: 0.05}
	ev, err := loc.Locate(rec, 0)
	require.NoError(t, err)
	assert.Equal(t, []int{1000, 3000}, samples(ev))

	loc.Refractory = 0.02
	ev, err = loc.Locate(rec, 0)
	require.NoError(t, err)
	assert.Equal(t, []int{1000, 1030, 3000}, samples(ev))

	loc.Refractory = 0
	_, err = loc.Locate(rec, 0)
	assert.Error(t, err)
}

func TestThresholdLocator_Derivative(t *testing.T) {
	rec := pulseRecording(t, []float64{4.0}, nil)

	// A 5 V step in one sample is 5000 V/s; the falling edge is negative.
	ev, err := ThresholdLocator{Threshold: 1000, Polarity: Rising, Signal: SignalDerivative, Refractory: 0.001}.Locate(rec, 0)
	require.NoError(t, err)
	assert.Equal(t, []int{4000}, samples(ev))
}

func TestThresholdLocator_PerSweep(t *testing.T) {
	sweep := testutil.Pulses(500, 1000, []float64{0.1}, 0.01, 0, 5)
	var data []float64
	for i := 0; i < 3; i++ {
		data = append(data, sweep...)
	}
	fx := testutil.ABF{
		Rate: 1000, Mode: 5, Sweeps: 3, Float: true,
		Channels: []testutil.ABFChannel{{Name: "stim", Unit: "V"}},
		Data:     [][]float64{data},
	}
	rec, err := abf.DecodeBytes("ep.abf", fx.Bytes())
	require.NoError(t, err)

	ev, err := ThresholdLocator{Threshold: 2.5, Polarity: Rising, Signal: SignalRaw, Refractory: 0.2}.Locate(rec, 0)
	require.NoError(t, err)
	require.Equal(t, 3, ev.Len())
	for i, e := range ev.All() {
		assert.Equal(t, i, e.Sweep)
		assert.Equal(t, 100, e.Sample)
		assert.InDelta(t, float64(i)*0.5+0.1, e.Time, 1e-12)
	}
}

func TestTagLocator_PreservesDuplicates(t *testing.T) {
	rec := pulseRecording(t, nil, []testutil.ABFTag{
		{Time: 5.0, Comment: "b"},
		{Time: 2.0, Comment: "a1"},
		{Time: 2.0, Comment: "a2"},
	})

	ev, err := TagLocator{}.Locate(rec, 0)
	require.NoError(t, err)
	require.Equal(t, 3, ev.Len())
	assert.Equal(t, []int{2000, 2000, 5000}, samples(ev))
	assert.Equal(t, "a1", ev.At(0).Label)
	assert.Equal(t, "a2", ev.At(1).Label)
	assert.Equal(t, SourceTag, ev.At(2).Source)

	ev, err = TagLocator{Dedupe: true}.Locate(rec, 0)
	require.NoError(t, err)
	assert.Equal(t, []int{2000, 5000}, samples(ev))
	assert.Equal(t, "a1", ev.At(0).Label)
}

func TestTagLocator_NoTags(t *testing.T) {
	rec := pulseRecording(t, []float64{2.0}, nil)

	_, err := Locate(rec, 0, Options{Mode: ModeTags, Polarity: Rising, Signal: SignalRaw})
	var nt *NoTagsError
	require.ErrorAs(t, err, &nt)
	assert.Equal(t, "pulses.abf", nt.Path)
	assert.True(t, IsNoTags(err))
}

func TestLocate_AutoMode(t *testing.T) {
	opts := Options{Mode: ModeAuto, Threshold: ptr(2.5), Polarity: Rising, Signal: SignalRaw, Refractory: 0.1}

	tagged := pulseRecording(t, []float64{2.0}, []testutil.ABFTag{{Time: 7.0, Comment: "t"}})
	ev, err := Locate(tagged, 0, opts)
	require.NoError(t, err)
	assert.Equal(t, []int{7000}, samples(ev))

	untagged := pulseRecording(t, []float64{2.0}, nil)
	ev, err = Locate(untagged, 0, opts)
	require.NoError(t, err)
	assert.Equal(t, []int{2000}, samples(ev))

	opts.Threshold = nil
	_, err = Locate(untagged, 0, opts)
	assert.True(t, IsNoTags(err))
}

func TestOptions_Validate(t *testing.T) {
	base := Options{Mode: ModeThreshold, Threshold: ptr(1), Polarity: Rising, Signal: SignalRaw, Refractory: 0.01}
	require.NoError(t, base.Validate())

	cases := map[string]func(o *Options){
		"bad mode":          func(o *Options) { o.Mode = "peaks" },
		"bad polarity":      func(o *Options) { o.Polarity = "both" },
		"bad signal":        func(o *Options) { o.Signal = "hilbert" },
		"missing threshold": func(o *Options) { o.Threshold = nil },
		"zero refractory":   func(o *Options) { o.Refractory = 0 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			o := base
			mutate(&o)
			assert.Error(t, o.Validate())
		})
	}
}

func TestLocate_BadChannel(t *testing.T) {
	rec := pulseRecording(t, nil, []testutil.ABFTag{{Time: 1}})
	_, err := TagLocator{}.Locate(rec, 3)
	assert.Error(t, err)
	_, err = ThresholdLocator{Threshold: 1, Refractory: 1}.Locate(rec, 3)
	assert.Error(t, err)
}

func TestEvents_Restartable(t *testing.T) {
	ev := NewEvents([]Event{{Time: 3, Label: "c"}, {Time: 1, Label: "a"}, {Time: 1, Label: "b"}})

	var first, second []string
	for _, e := range ev.All() {
		first = append(first, e.Label)
	}
	for _, e := range ev.All() {
		second = append(second, e.Label)
	}
	assert.Equal(t, []string{"a", "b", "c"}, first)
	assert.Equal(t, first, second)

	// Slice returns a copy.
	s := ev.Slice()
	s[0].Label = "z"
	assert.Equal(t, "a", ev.At(0).Label)
}

func TestRefine_SnapsToSteepestEdge(t *testing.T) {
	rec := pulseRecording(t, []float64{2.0}, nil)
	ev := NewEvents([]Event{{Sweep: 0, Sample: 1995, Time: 1.995, Source: SourceTag}})

	out, err := Refine(rec, 0, ev, 0.01)
	require.NoError(t, err)
	require.Equal(t, 1, out.Len())
	assert.Equal(t, 2000, out.At(0).Sample)
	assert.Equal(t, 2.0, out.At(0).Time)

	same, err := Refine(rec, 0, ev, 0)
	require.NoError(t, err)
	assert.Equal(t, 1995, same.At(0).Sample)
}
