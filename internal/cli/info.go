package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/ephyalign/internal/abf"
	"github.com/roach88/ephyalign/internal/batch"
)

// InfoReport is the header metadata printed by the info command.
type InfoReport struct {
	Path         string        `json:"path"`
	Variant      string        `json:"variant"`
	Version      string        `json:"version"`
	Mode         string        `json:"mode"`
	SampleRate   float64       `json:"sample_rate_hz"`
	SampleFormat string        `json:"sample_format"`
	Sweeps       int           `json:"sweeps"`
	SweepLength  int           `json:"sweep_length"`
	Duration     float64       `json:"duration_s"`
	StartTime    string        `json:"start_time,omitempty"`
	Creator      string        `json:"creator,omitempty"`
	Protocol     string        `json:"protocol,omitempty"`
	Channels     []InfoChannel `json:"channels"`
	Tags         []InfoTag     `json:"tags"`
}

// InfoChannel describes one channel.
type InfoChannel struct {
	Index  int     `json:"index"`
	ADC    int     `json:"adc"`
	Name   string  `json:"name"`
	Unit   string  `json:"unit"`
	Gain   float64 `json:"gain"`
	Offset float64 `json:"offset"`
}

// InfoTag is one tag table entry.
type InfoTag struct {
	Time    float64 `json:"time_s"`
	Comment string  `json:"comment"`
}

// NewInfoCommand creates the info command.
func NewInfoCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "info <file.abf>",
		Short: "Print recording metadata",
		Long: `Decode the header of an ABF recording and print its format version,
acquisition mode, sampling, channels and tags.

Examples:
  ephyalign info cell1.abf
  ephyalign info cell1.abf --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInfo(rootOpts, args[0], cmd)
		},
	}
	return cmd
}

func runInfo(opts *RootOptions, path string, cmd *cobra.Command) error {
	f := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}

	rec, err := abf.Decode(path)
	if err != nil {
		if opts.Format == "json" {
			_ = f.Error(batch.Kind(err), err.Error(), nil)
		}
		return WrapExitError(ExitFailure, "failed to decode recording", err)
	}
	report := NewInfoReport(rec)

	if opts.Format == "json" {
		return f.Success(report)
	}
	return writeInfoText(cmd.OutOrStdout(), report)
}

// NewInfoReport collects the metadata of rec.
func NewInfoReport(rec *abf.Recording) InfoReport {
	v := rec.Version()
	r := InfoReport{
		Path:         rec.Path(),
		Variant:      v.Variant.String(),
		Version:      v.String(),
		Mode:         rec.Mode().String(),
		SampleRate:   rec.SampleRate(),
		SampleFormat: rec.SampleFormat().String(),
		Sweeps:       rec.SweepCount(),
		SweepLength:  rec.SweepLength(),
		Duration:     rec.Duration(),
		Creator:      rec.Creator(),
		Protocol:     rec.Protocol(),
		Channels:     []InfoChannel{},
		Tags:         []InfoTag{},
	}
	if t := rec.StartTime(); !t.IsZero() {
		r.StartTime = t.Format(time.RFC3339Nano)
	}
	for _, ch := range rec.Channels() {
		r.Channels = append(r.Channels, InfoChannel{
			Index:  ch.Index,
			ADC:    ch.ADC,
			Name:   ch.Name,
			Unit:   ch.Unit,
			Gain:   ch.Gain,
			Offset: ch.Offset,
		})
	}
	for _, tag := range rec.Tags() {
		r.Tags = append(r.Tags, InfoTag{Time: tag.Time, Comment: tag.Comment})
	}
	return r
}

func writeInfoText(w io.Writer, r InfoReport) error {
	field := func(label, value string) {
		fmt.Fprintf(w, "%-15s%s\n", label+":", value)
	}
	field("File", r.Path)
	field("Format", r.Variant+" "+r.Version)
	field("Mode", r.Mode)
	field("Sample rate", fmt.Sprintf("%g Hz", r.SampleRate))
	field("Sample format", r.SampleFormat)
	field("Sweeps", fmt.Sprintf("%d x %d samples", r.Sweeps, r.SweepLength))
	field("Duration", fmt.Sprintf("%.3f s", r.Duration))
	if r.StartTime != "" {
		field("Start time", r.StartTime)
	}
	if r.Creator != "" {
		field("Creator", r.Creator)
	}
	if r.Protocol != "" {
		field("Protocol", r.Protocol)
	}

	fmt.Fprintf(w, "\nChannels (%d):\n", len(r.Channels))
	for _, ch := range r.Channels {
		fmt.Fprintf(w, "  [%d] %s (%s) adc=%d gain=%g offset=%g\n",
			ch.Index, ch.Name, ch.Unit, ch.ADC, ch.Gain, ch.Offset)
	}

	fmt.Fprintf(w, "\nTags (%d):\n", len(r.Tags))
	for _, tag := range r.Tags {
		fmt.Fprintf(w, "  %.4f s  %s\n", tag.Time, tag.Comment)
	}
	return nil
}
