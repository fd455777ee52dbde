package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/ephyalign/internal/store"
)

// RunsOptions holds flags for the runs command.
type RunsOptions struct {
	*RootOptions
	Ledger string
	Limit  int
	RunID  string
}

// RunDetail is a run with its jobs, printed by runs --run.
type RunDetail struct {
	store.Run
	Jobs []store.Job `json:"jobs"`
}

// NewRunsCommand creates the runs command.
func NewRunsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunsOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List batch runs recorded in a ledger",
		Long: `List the batch runs recorded in a SQLite ledger, newest first, or show
the jobs of one run.

Examples:
  ephyalign runs --ledger runs.db
  ephyalign runs --ledger runs.db --limit 5 --format json
  ephyalign runs --ledger runs.db --run 0192b7c4-...`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRuns(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Ledger, "ledger", "", "path to SQLite ledger (required)")
	_ = cmd.MarkFlagRequired("ledger")
	cmd.Flags().IntVar(&opts.Limit, "limit", 20, "maximum runs to list (0 = all)")
	cmd.Flags().StringVar(&opts.RunID, "run", "", "show the jobs of one run")

	return cmd
}

func runRuns(opts *RunsOptions, cmd *cobra.Command) error {
	ctx := cmd.Context()

	st, err := store.Open(opts.Ledger)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open ledger", err)
	}
	defer st.Close()

	f := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}

	if opts.RunID != "" {
		run, jobs, err := st.ReadRun(ctx, opts.RunID)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to read run", err)
		}
		if opts.Format == "json" {
			return f.Success(RunDetail{Run: run, Jobs: jobs})
		}
		writeRunText(cmd.OutOrStdout(), run)
		for _, j := range jobs {
			fmt.Fprintf(cmd.OutOrStdout(), "  %-9s %s", j.Status, j.Path)
			if j.ErrorKind != "" {
				fmt.Fprintf(cmd.OutOrStdout(), " [%s] %s", j.ErrorKind, j.Error)
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), " (%d epochs)", j.Epochs)
			}
			fmt.Fprintln(cmd.OutOrStdout())
		}
		return nil
	}

	runs, err := st.ListRuns(ctx, opts.Limit)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to list runs", err)
	}
	if opts.Format == "json" {
		return f.Success(runs)
	}
	if len(runs) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No runs recorded.")
		return nil
	}
	for _, r := range runs {
		writeRunText(cmd.OutOrStdout(), r)
	}
	return nil
}

func writeRunText(w io.Writer, r store.Run) {
	fmt.Fprintf(w, "%s  %s  %d files: %d ok, %d failed, %d canceled  exit %d\n",
		r.ID,
		r.StartedAt.UTC().Format(time.RFC3339),
		r.Total, r.Succeeded, r.Failed, r.Canceled, r.ExitCode)
}
