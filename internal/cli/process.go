package cli

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/roach88/ephyalign/internal/batch"
	"github.com/roach88/ephyalign/internal/pipeline"
)

// ProcessOptions holds flags for the process command.
type ProcessOptions struct {
	*RootOptions
	ProcessFlags
}

// ProcessReport is the outcome of the process command.
type ProcessReport struct {
	Path    string   `json:"path"`
	Version string   `json:"version"`
	Events  int      `json:"events"`
	Epochs  int      `json:"epochs"`
	Dropped int      `json:"dropped"`
	Outputs []string `json:"outputs"`
}

// NewProcessCommand creates the process command.
func NewProcessCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ProcessOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "process <file.abf>",
		Short: "Extract epochs from one recording",
		Long: `Locate stimulus events in one recording, cut an epoch around each and
write them in the requested export formats.

Errors are reported as-is: a corrupt file, missing tags or an epoch that
does not fit under --out-of-range strict fails the command.

Examples:
  ephyalign process cell1.abf
  ephyalign process cell1.abf --pre-time 0.1 --post-time 0.4 --export atf,npz
  ephyalign process cell1.abf --mode threshold --threshold 20 --refractory 0.05`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runProcess(opts, args[0], cmd)
		},
	}

	addProcessFlags(cmd, &opts.ProcessFlags)

	return cmd
}

func runProcess(opts *ProcessOptions, path string, cmd *cobra.Command) error {
	cfg, err := loadConfig(opts.RootOptions, cmd, &opts.ProcessFlags, nil)
	if err != nil {
		return err
	}
	pcfg, err := cfg.Pipeline()
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid configuration", err)
	}

	f := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}
	f.VerboseLog("window: -%gs..+%gs, detection: %s, out-of-range: %s, export: %v",
		cfg.PreTime, cfg.PostTime, cfg.Detection.Mode, cfg.OutOfRange, cfg.Export)

	slog.Debug("processing", "path", path, "output_dir", cfg.OutputDir)
	res, err := pipeline.Process(cmd.Context(), path, batch.Stems([]string{path})[0], pcfg)
	if err != nil {
		if opts.Format == "json" {
			_ = f.Error(batch.Kind(err), err.Error(), nil)
		}
		return WrapExitError(ExitFailure, "failed to process "+path, err)
	}

	report := ProcessReport{
		Path:    res.Path,
		Version: res.Version.String(),
		Events:  res.Events,
		Epochs:  res.Epochs,
		Dropped: res.Dropped,
		Outputs: res.Outputs,
	}
	if opts.Format == "json" {
		return f.Success(report)
	}

	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "%s: %d epochs from %d events", report.Path, report.Epochs, report.Events)
	if report.Dropped > 0 {
		fmt.Fprintf(w, " (%d dropped)", report.Dropped)
	}
	fmt.Fprintln(w)
	for _, out := range report.Outputs {
		fmt.Fprintf(w, "  %s\n", out)
	}
	return nil
}
