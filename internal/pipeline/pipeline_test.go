package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/ephyalign/internal/abf"
	"github.com/roach88/ephyalign/internal/detect"
	"github.com/roach88/ephyalign/internal/epoch"
	"github.com/roach88/ephyalign/internal/export"
	"github.com/roach88/ephyalign/internal/testutil"
)

func testConfig(out string) Config {
	return Config{
		Detect: detect.Options{Mode: detect.ModeAuto, Polarity: detect.Rising, Signal: detect.SignalRaw},
		Extract: epoch.Extractor{
			Window: epoch.Window{Pre: 0.5, Post: 1.0},
			Policy: epoch.PolicyDrop,
		},
		Output:       export.Writer{Dir: out, Formats: []export.Format{export.FormatATF, export.FormatNPZ}},
		WriteSummary: true,
	}
}

func TestProcess_TaggedRecording(t *testing.T) {
	dir := t.TempDir()
	path := testutil.WriteABF(t, dir, "cell.abf", testutil.StimulusABF(2.0, 5.0))
	out := filepath.Join(dir, "out")

	res, err := Process(context.Background(), path, "cell", testConfig(out))
	require.NoError(t, err)
	assert.Equal(t, 2, res.Events)
	assert.Equal(t, 2, res.Epochs)
	assert.Zero(t, res.Dropped)
	assert.Equal(t, abf.VariantABF2, res.Version.Variant)
	assert.Equal(t, []string{
		filepath.Join(out, "cell_ch0.atf"),
		filepath.Join(out, "cell_ch0.npz"),
		filepath.Join(out, "cell_summary.json"),
	}, res.Outputs)
	for _, p := range res.Outputs {
		assert.FileExists(t, p)
	}
	assert.Equal(t, 4500, res.Set.Epochs[1].Start)
	assert.Equal(t, 5.0, res.Set.Epochs[1].Samples[500])
}

func TestProcess_DropsOutOfRange(t *testing.T) {
	dir := t.TempDir()
	path := testutil.WriteABF(t, dir, "late.abf", testutil.StimulusABF(2.0, 9.8))

	res, err := Process(context.Background(), path, "late", testConfig(dir))
	require.NoError(t, err)
	assert.Equal(t, 2, res.Events)
	assert.Equal(t, 1, res.Epochs)
	assert.Equal(t, 1, res.Dropped)

	cfg := testConfig(t.TempDir())
	cfg.Extract.Policy = epoch.PolicyStrict
	_, err = Process(context.Background(), path, "late", cfg)
	assert.True(t, epoch.IsOutOfRange(err))
}

func TestProcess_NoEvents(t *testing.T) {
	dir := t.TempDir()

	fx := testutil.StimulusABF(9.9)
	path := testutil.WriteABF(t, dir, "edge.abf", fx)
	_, err := Process(context.Background(), path, "edge", testConfig(dir))
	var ne *NoEventsError
	require.ErrorAs(t, err, &ne)
	assert.Equal(t, 1, ne.Dropped)

	cfg := testConfig(dir)
	cfg.Detect = detect.Options{Mode: detect.ModeThreshold, Threshold: ptr(50), Polarity: detect.Rising, Signal: detect.SignalRaw, Refractory: 0.1}
	_, err = Process(context.Background(), path, "edge", cfg)
	assert.True(t, IsNoEvents(err))
}

func TestProcess_ThresholdWithRefine(t *testing.T) {
	dir := t.TempDir()
	fx := testutil.StimulusABF(3.0)
	fx.Tags = nil
	path := testutil.WriteABF(t, dir, "untagged.abf", fx)

	cfg := testConfig(dir)
	cfg.Detect.Threshold = ptr(2.5)
	cfg.Detect.Refractory = 0.05
	cfg.RefineWindow = 0.005
	res, err := Process(context.Background(), path, "untagged", cfg)
	require.NoError(t, err)
	require.Equal(t, 1, res.Epochs)
	assert.Equal(t, 3000, res.Set.Epochs[0].Event.Sample)
	assert.Equal(t, detect.SourceThreshold, res.Set.Epochs[0].Event.Source)
}

func TestProcess_Errors(t *testing.T) {
	dir := t.TempDir()

	corrupt := testutil.WriteFile(t, dir, "bad.abf", []byte("not an abf file at all"))
	_, err := Process(context.Background(), corrupt, "bad", testConfig(dir))
	assert.True(t, abf.IsFormatError(err))

	fx := testutil.StimulusABF(2.0)
	fx.Tags = nil
	untagged := testutil.WriteABF(t, dir, "notags.abf", fx)
	_, err = Process(context.Background(), untagged, "notags", testConfig(dir))
	assert.True(t, detect.IsNoTags(err))

	good := testutil.WriteABF(t, dir, "good.abf", testutil.StimulusABF(2.0))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "good_ch0.atf"), nil, 0o644))
	_, err = Process(context.Background(), good, "good", testConfig(dir))
	assert.True(t, export.IsOutputExists(err))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = Process(ctx, good, "good2", testConfig(dir))
	assert.ErrorIs(t, err, context.Canceled)
	assert.NoFileExists(t, filepath.Join(dir, "good2_ch0.atf"))
}

func TestProcess_ExistingSummaryWritesNothing(t *testing.T) {
	dir := t.TempDir()
	path := testutil.WriteABF(t, dir, "cell.abf", testutil.StimulusABF(2.0))
	summary := filepath.Join(dir, "cell_summary.json")
	require.NoError(t, os.WriteFile(summary, []byte("{}"), 0o644))

	_, err := Process(context.Background(), path, "cell", testConfig(dir))
	var oe *export.OutputExistsError
	require.ErrorAs(t, err, &oe)
	assert.NoFileExists(t, filepath.Join(dir, "cell_ch0.atf"))
	assert.NoFileExists(t, filepath.Join(dir, "cell_ch0.npz"))

	cfg := testConfig(dir)
	cfg.WriteSummary = false
	res, err := Process(context.Background(), path, "cell", cfg)
	require.NoError(t, err)
	assert.Len(t, res.Outputs, 2)

	cfg = testConfig(dir)
	cfg.Output.Overwrite = true
	_, err = Process(context.Background(), path, "cell", cfg)
	require.NoError(t, err)
	data, err := os.ReadFile(summary)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"epochs"`)
}

func TestConfig_Validate(t *testing.T) {
	cfg := testConfig(t.TempDir())
	require.NoError(t, cfg.Validate())

	bad := cfg
	bad.Channel = -1
	assert.Error(t, bad.Validate())

	bad = cfg
	bad.Output.Formats = nil
	assert.Error(t, bad.Validate())

	bad = cfg
	bad.Extract.Window.Pre = 0
	assert.Error(t, bad.Validate())

	bad = cfg
	bad.Detect.Mode = "bogus"
	assert.Error(t, bad.Validate())
}

func ptr(v float64) *float64 { return &v }
