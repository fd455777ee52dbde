package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/roach88/ephyalign/internal/config"
)

// ProcessFlags holds the processing flags shared by process and batch.
// Only flags set on the command line override the configuration.
type ProcessFlags struct {
	PreTime      float64
	PostTime     float64
	OutputDir    string
	Channel      int
	Mode         string
	Threshold    float64
	Refractory   float64
	Polarity     string
	Signal       string
	RefineWindow float64
	DedupeTags   bool
	Baseline     string
	OutOfRange   string
	Export       []string
	Overwrite    bool
	WriteSummary bool
}

func addProcessFlags(cmd *cobra.Command, f *ProcessFlags) {
	fs := cmd.Flags()
	fs.Float64Var(&f.PreTime, "pre-time", 0.5, "seconds before each event")
	fs.Float64Var(&f.PostTime, "post-time", 1.0, "seconds after each event")
	fs.StringVarP(&f.OutputDir, "output-dir", "o", "ephyalign_out", "directory for exported files")
	fs.IntVar(&f.Channel, "channel", 0, "channel index to extract")
	fs.StringVar(&f.Mode, "mode", "auto", "event detection mode (auto|tags|threshold)")
	fs.Float64Var(&f.Threshold, "threshold", 0, "threshold level in channel units")
	fs.Float64Var(&f.Refractory, "refractory", 0, "minimum seconds between threshold events")
	fs.StringVar(&f.Polarity, "polarity", "rising", "threshold crossing direction (rising|falling)")
	fs.StringVar(&f.Signal, "signal", "raw", "signal to threshold (raw|derivative)")
	fs.Float64Var(&f.RefineWindow, "refine-window", 0, "seconds to search for the steepest rise after each event")
	fs.BoolVar(&f.DedupeTags, "dedupe-tags", false, "collapse tags that map to the same sample")
	fs.StringVar(&f.Baseline, "baseline", "", "baseline window FROM,TO in seconds relative to the event")
	fs.StringVar(&f.OutOfRange, "out-of-range", "drop", "policy for epochs outside the recording (drop|pad|strict)")
	fs.StringSliceVar(&f.Export, "export", []string{"atf"}, "export formats (atf,csv,npz)")
	fs.BoolVar(&f.Overwrite, "overwrite", false, "replace existing output files")
	fs.BoolVar(&f.WriteSummary, "write-summary", true, "write a JSON summary per file")
}

// apply copies the flags set on cmd onto cfg.
func (f *ProcessFlags) apply(cmd *cobra.Command, cfg *config.Config) error {
	changed := cmd.Flags().Changed
	if changed("pre-time") {
		cfg.PreTime = f.PreTime
	}
	if changed("post-time") {
		cfg.PostTime = f.PostTime
	}
	if changed("output-dir") {
		cfg.OutputDir = f.OutputDir
	}
	if changed("channel") {
		cfg.Channel = f.Channel
	}
	if changed("mode") {
		cfg.Detection.Mode = f.Mode
	}
	if changed("threshold") {
		v := f.Threshold
		cfg.Detection.Threshold = &v
	}
	if changed("refractory") {
		cfg.Detection.Refractory = f.Refractory
	}
	if changed("polarity") {
		cfg.Detection.Polarity = f.Polarity
	}
	if changed("signal") {
		cfg.Detection.Signal = f.Signal
	}
	if changed("refine-window") {
		cfg.Detection.RefineWindow = f.RefineWindow
	}
	if changed("dedupe-tags") {
		cfg.Detection.DedupeTags = f.DedupeTags
	}
	if changed("baseline") {
		bl, err := parseBaseline(f.Baseline)
		if err != nil {
			return err
		}
		cfg.Baseline = bl
	}
	if changed("out-of-range") {
		cfg.OutOfRange = f.OutOfRange
	}
	if changed("export") {
		cfg.Export = f.Export
	}
	if changed("overwrite") {
		cfg.Overwrite = f.Overwrite
	}
	if changed("write-summary") {
		cfg.WriteSummary = f.WriteSummary
	}
	return nil
}

// parseBaseline parses "FROM,TO". An empty value disables correction.
func parseBaseline(s string) ([]float64, error) {
	parts := config.SplitList(s)
	if len(parts) == 0 {
		return nil, nil
	}
	if len(parts) != 2 {
		return nil, fmt.Errorf("--baseline wants FROM,TO, got %q", s)
	}
	out := make([]float64, 2)
	for i, p := range parts {
		v, err := strconv.ParseFloat(p, 64)
		if err != nil {
			return nil, fmt.Errorf("--baseline: %w", err)
		}
		out[i] = v
	}
	return out, nil
}

// loadConfig layers the config file, environment and flags, then
// validates. Every failure is a command error.
func loadConfig(root *RootOptions, cmd *cobra.Command, f *ProcessFlags, extra func(*config.Config)) (*config.Config, error) {
	cfg, err := config.Load(root.ConfigPath)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to load configuration", err)
	}
	if err := f.apply(cmd, cfg); err != nil {
		return nil, WrapExitError(ExitCommandError, "invalid flags", err)
	}
	if extra != nil {
		extra(cfg)
	}
	if err := cfg.Validate(); err != nil {
		return nil, WrapExitError(ExitCommandError, "invalid configuration", err)
	}
	return cfg, nil
}
