package batch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"runtime/debug"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/roach88/ephyalign/internal/export"
	"github.com/roach88/ephyalign/internal/pipeline"
)

// Exit codes derived from a batch outcome.
const (
	ExitSuccess     = 0
	ExitAllFailed   = 1
	ExitInterrupted = 130
)

// ProcessFunc processes one file. pipeline.Process is the default.
type ProcessFunc func(ctx context.Context, path, stem string, cfg pipeline.Config) (*pipeline.Result, error)

// Uploader mirrors a written artifact and returns its object key.
type Uploader interface {
	Upload(ctx context.Context, path string) (string, error)
}

// Ledger persists a finished batch.
type Ledger interface {
	RecordRun(ctx context.Context, res *Result) error
}

// IDGenerator produces batch run identifiers.
type IDGenerator interface {
	Generate() string
}

// UUIDv7Generator generates time-sortable UUIDv7 run ids.
type UUIDv7Generator struct{}

// Generate returns a new hyphenated UUIDv7.
func (UUIDv7Generator) Generate() string {
	return uuid.Must(uuid.NewV7()).String()
}

// Options configures a batch run.
type Options struct {
	Workers      int // defaults to runtime.NumCPU()
	Config       pipeline.Config
	Process      ProcessFunc
	Uploader     Uploader
	Ledger       Ledger
	WriteSummary bool
	IDs          IDGenerator
	Now          func() time.Time
}

func (o *Options) defaults() {
	if o.Workers <= 0 {
		o.Workers = runtime.NumCPU()
	}
	if o.Process == nil {
		o.Process = pipeline.Process
	}
	if o.IDs == nil {
		o.IDs = UUIDv7Generator{}
	}
	if o.Now == nil {
		o.Now = time.Now
	}
}

// Result is the outcome of a batch.
type Result struct {
	RunID       string
	Patterns    []string
	StartedAt   time.Time
	FinishedAt  time.Time
	Workers     int
	Jobs        []Job // discovery order
	Interrupted bool
	SummaryPath string
}

// Count returns the number of jobs with status s.
func (r *Result) Count(s Status) int {
	n := 0
	for _, j := range r.Jobs {
		if j.Status == s {
			n++
		}
	}
	return n
}

// Failures returns the failed jobs in discovery order.
func (r *Result) Failures() []Job {
	var out []Job
	for _, j := range r.Jobs {
		if j.Status == StatusFailed {
			out = append(out, j)
		}
	}
	return out
}

// Outputs returns every artifact written by the batch.
func (r *Result) Outputs() []string {
	var out []string
	for _, j := range r.Jobs {
		out = append(out, j.Outputs...)
	}
	return out
}

// ExitCode is 0 when at least one job succeeded, 130 when the batch was
// interrupted before any success and 1 when every job failed.
func (r *Result) ExitCode() int {
	switch {
	case r.Count(StatusSucceeded) > 0:
		return ExitSuccess
	case r.Interrupted:
		return ExitInterrupted
	}
	return ExitAllFailed
}

// Summary converts the result for the batch report.
func (r *Result) Summary() export.BatchSummary {
	s := export.BatchSummary{
		RunID:      r.RunID,
		StartedAt:  r.StartedAt,
		FinishedAt: r.FinishedAt,
		Patterns:   r.Patterns,
		Total:      len(r.Jobs),
		Succeeded:  r.Count(StatusSucceeded),
		Failed:     r.Count(StatusFailed),
		Canceled:   r.Count(StatusCanceled),
		ExitCode:   r.ExitCode(),
		Jobs:       make([]export.JobSummary, len(r.Jobs)),
	}
	for i, j := range r.Jobs {
		js := export.JobSummary{
			Path:      j.Path,
			Stem:      j.Stem,
			Status:    string(j.Status),
			ErrorKind: j.Kind,
			Epochs:    j.Epochs,
			Dropped:   j.Dropped,
			Outputs:   j.Outputs,
		}
		if j.Err != nil {
			js.Error = j.Err.Error()
		}
		s.Jobs[i] = js
	}
	return s
}

// Run expands patterns and processes every matching file. Configuration,
// discovery and output directory errors are returned before any job starts. Once jobs have
// run the Result is always returned; a non-nil error then reports a failure
// to persist the summary or ledger entry.
func Run(ctx context.Context, patterns []string, opts Options) (*Result, error) {
	if err := opts.Config.Validate(); err != nil {
		return nil, err
	}
	paths, err := Expand(patterns)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(opts.Config.Output.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("create output directory: %w", err)
	}
	opts.defaults()
	res := Execute(ctx, NewJobs(paths), opts)
	res.Patterns = patterns
	return res, persist(ctx, res, opts)
}

type outcome struct {
	index int
	job   Job
}

// Execute runs jobs on the worker pool and returns once every dispatched
// job has finished. Outcomes are recorded in a copy of jobs.
func Execute(ctx context.Context, jobs []Job, opts Options) *Result {
	opts.defaults()
	res := &Result{
		RunID:     opts.IDs.Generate(),
		StartedAt: opts.Now(),
		Workers:   opts.Workers,
		Jobs:      slices.Clone(jobs),
	}
	log := slog.With("run", res.RunID)
	log.Info("batch started", "jobs", len(jobs), "workers", opts.Workers)

	work := make(chan Job)
	results := make(chan outcome)

	var wg sync.WaitGroup
	for w := 0; w < opts.Workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for job := range work {
				results <- outcome{index: job.Index, job: runJob(ctx, job, opts)}
			}
		}()
	}

	go func() {
		defer close(work)
		for _, job := range jobs {
			if ctx.Err() != nil {
				return
			}
			select {
			case <-ctx.Done():
				return
			case work <- job:
			}
		}
	}()

	go func() {
		wg.Wait()
		close(results)
	}()

	for o := range results {
		res.Jobs[o.index] = o.job
		j := o.job
		if j.Status == StatusSucceeded {
			log.Info("job succeeded", "job", j.Index, "path", j.Path, "epochs", j.Epochs, "dropped", j.Dropped)
		} else {
			log.Warn("job failed", "job", j.Index, "path", j.Path, "kind", j.Kind, "error", j.Err)
		}
	}

	for i := range res.Jobs {
		if res.Jobs[i].Status == StatusPending {
			res.Jobs[i].Status = StatusCanceled
			res.Jobs[i].Kind = "Canceled"
			res.Jobs[i].Err = context.Cause(ctx)
		}
	}
	res.Interrupted = ctx.Err() != nil
	res.FinishedAt = opts.Now()
	log.Info("batch finished",
		"succeeded", res.Count(StatusSucceeded),
		"failed", res.Count(StatusFailed),
		"canceled", res.Count(StatusCanceled))
	return res
}

// runJob processes one job. Cancellation does not reach a dispatched job,
// so its artifacts are either complete or absent.
func runJob(ctx context.Context, job Job, opts Options) (out Job) {
	ctx = context.WithoutCancel(ctx)
	start := time.Now()
	out = job
	defer func() {
		if r := recover(); r != nil {
			out.Status = StatusFailed
			out.Err = &PanicError{Value: r, Stack: debug.Stack()}
			out.Kind = Kind(out.Err)
		}
		out.Duration = time.Since(start)
	}()

	pr, err := opts.Process(ctx, job.Path, job.Stem, opts.Config)
	if err != nil {
		return fail(out, err)
	}
	out.Events, out.Epochs, out.Dropped = pr.Events, pr.Epochs, pr.Dropped
	out.Outputs = pr.Outputs

	if opts.Uploader != nil {
		for _, p := range pr.Outputs {
			key, err := opts.Uploader.Upload(ctx, p)
			if err != nil {
				return fail(out, &UploadError{Path: p, Err: err})
			}
			out.Uploaded = append(out.Uploaded, key)
		}
	}
	out.Status = StatusSucceeded
	return out
}

func fail(job Job, err error) Job {
	job.Status = StatusFailed
	job.Err = err
	job.Kind = Kind(err)
	return job
}

// persist writes the batch summary and ledger entry. Both are attempted
// even if the first fails.
func persist(ctx context.Context, res *Result, opts Options) error {
	var errs []error
	if opts.WriteSummary {
		path, err := opts.Config.Output.WriteBatchSummary(res.Summary())
		if err != nil {
			errs = append(errs, fmt.Errorf("write batch summary: %w", err))
		}
		res.SummaryPath = path
	}
	if opts.Ledger != nil {
		if err := opts.Ledger.RecordRun(context.WithoutCancel(ctx), res); err != nil {
			errs = append(errs, fmt.Errorf("record run: %w", err))
		}
	}
	return errors.Join(errs...)
}
