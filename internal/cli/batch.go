package cli

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/roach88/ephyalign/internal/batch"
	"github.com/roach88/ephyalign/internal/config"
	"github.com/roach88/ephyalign/internal/objectstore"
	"github.com/roach88/ephyalign/internal/store"
)

// BatchOptions holds flags for the batch command.
type BatchOptions struct {
	*RootOptions
	ProcessFlags
	Workers int
	Ledger  string
	Upload  bool

	// IDs allows overriding the run id generator (for testing).
	// If nil, defaults to batch.UUIDv7Generator.
	IDs batch.IDGenerator
}

// NewBatchCommand creates the batch command.
func NewBatchCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &BatchOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "batch <glob>...",
		Short: "Extract epochs from many recordings in parallel",
		Long: `Process every recording matching the given globs on a worker pool.

A file that fails to decode or yields no epochs is recorded as a failure
without stopping the others. The batch summary lists every file in
discovery order. The exit code is 0 when at least one file succeeded, 1
when all failed and 130 when interrupted before any success.

Examples:
  ephyalign batch 'data/*.abf'
  ephyalign batch 'day1/*.abf' 'day2/*.abf' --workers 4 --export atf,csv
  ephyalign batch 'data/*.abf' --ledger runs.db --upload`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBatch(opts, args, cmd)
		},
	}

	addProcessFlags(cmd, &opts.ProcessFlags)
	cmd.Flags().IntVar(&opts.Workers, "workers", 0, "parallel workers (0 = one per CPU)")
	cmd.Flags().StringVar(&opts.Ledger, "ledger", "", "SQLite ledger to record the run in")
	cmd.Flags().BoolVar(&opts.Upload, "upload", false, "mirror outputs to the configured object store")

	return cmd
}

func runBatch(opts *BatchOptions, patterns []string, cmd *cobra.Command) error {
	cfg, err := loadConfig(opts.RootOptions, cmd, &opts.ProcessFlags, func(c *config.Config) {
		if cmd.Flags().Changed("workers") {
			c.Workers = opts.Workers
		}
		if cmd.Flags().Changed("ledger") {
			c.Ledger = opts.Ledger
		}
		if cmd.Flags().Changed("upload") {
			c.Upload.Enabled = opts.Upload
		}
	})
	if err != nil {
		return err
	}
	pcfg, err := cfg.Pipeline()
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid configuration", err)
	}

	// Setup signal handling for graceful shutdown
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	bopts := batch.Options{
		Workers:      cfg.Workers,
		Config:       pcfg,
		WriteSummary: cfg.WriteSummary,
		IDs:          opts.IDs,
	}

	if cfg.Ledger != "" {
		slog.Info("opening ledger", "path", cfg.Ledger)
		st, err := store.Open(cfg.Ledger)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to open ledger", err)
		}
		defer func() {
			if closeErr := st.Close(); closeErr != nil {
				slog.Error("error closing ledger", "error", closeErr)
			}
		}()
		bopts.Ledger = st
	}

	if cfg.Upload.Enabled {
		up, err := objectstore.New(ctx, cfg.ObjectStore(), cfg.OutputDir)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to connect to object store", err)
		}
		bopts.Uploader = up
	}

	res, err := batch.Run(ctx, patterns, bopts)
	if res == nil {
		return WrapExitError(ExitCommandError, "batch not started", err)
	}
	if err != nil {
		slog.Error("failed to persist batch results", "error", err)
	}

	if opts.Format == "json" {
		f := &OutputFormatter{Format: "json", Writer: cmd.OutOrStdout(), RunID: res.RunID}
		if ferr := f.Success(res.Summary()); ferr != nil {
			return ferr
		}
	} else {
		writeBatchText(cmd.OutOrStdout(), res)
	}

	switch code := res.ExitCode(); code {
	case batch.ExitSuccess:
		return nil
	case batch.ExitInterrupted:
		return NewExitError(ExitInterrupted, "batch interrupted before any file succeeded")
	default:
		return NewExitError(ExitFailure, fmt.Sprintf("all %d files failed", len(res.Jobs)))
	}
}

func writeBatchText(w io.Writer, res *batch.Result) {
	fmt.Fprintf(w, "Run %s: %d files, %d succeeded, %d failed, %d canceled\n",
		res.RunID, len(res.Jobs),
		res.Count(batch.StatusSucceeded),
		res.Count(batch.StatusFailed),
		res.Count(batch.StatusCanceled))
	for _, j := range res.Jobs {
		switch j.Status {
		case batch.StatusSucceeded:
			fmt.Fprintf(w, "  ok      %s (%d epochs", j.Path, j.Epochs)
			if j.Dropped > 0 {
				fmt.Fprintf(w, ", %d dropped", j.Dropped)
			}
			fmt.Fprintln(w, ")")
		case batch.StatusFailed:
			fmt.Fprintf(w, "  FAIL    %s [%s] %v\n", j.Path, j.Kind, j.Err)
		default:
			fmt.Fprintf(w, "  %-7s %s\n", j.Status, j.Path)
		}
	}
	if res.SummaryPath != "" {
		fmt.Fprintf(w, "Summary: %s\n", res.SummaryPath)
	}
}

var (
	_ batch.Ledger   = (*store.Store)(nil)
	_ batch.Uploader = (*objectstore.Uploader)(nil)
)
