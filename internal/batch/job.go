package batch

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/roach88/ephyalign/internal/abf"
	"github.com/roach88/ephyalign/internal/detect"
	"github.com/roach88/ephyalign/internal/epoch"
	"github.com/roach88/ephyalign/internal/export"
	"github.com/roach88/ephyalign/internal/pipeline"
)

// Status is the lifecycle state of a Job.
type Status string

const (
	StatusPending   Status = "pending"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
	StatusCanceled  Status = "canceled"
)

// Job is one input file of a batch.
type Job struct {
	Index    int
	Path     string
	Stem     string
	Status   Status
	Err      error
	Kind     string // error kind for failed jobs, see Kind
	Events   int
	Epochs   int
	Dropped  int
	Outputs  []string
	Uploaded []string // object keys, when uploads are enabled
	Duration time.Duration
}

// NewJobs creates pending jobs in path order with collision-free stems.
func NewJobs(paths []string) []Job {
	stems := Stems(paths)
	jobs := make([]Job, len(paths))
	for i, p := range paths {
		jobs[i] = Job{Index: i, Path: p, Stem: stems[i], Status: StatusPending}
	}
	return jobs
}

// PanicError is a panic recovered from a job.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", e.Value)
}

// UploadError reports a job whose outputs were written but could not be
// mirrored to the object store.
type UploadError struct {
	Path string
	Err  error
}

func (e *UploadError) Error() string {
	return fmt.Sprintf("upload %s: %v", e.Path, e.Err)
}

func (e *UploadError) Unwrap() error { return e.Err }

// Kind names the category of a job error for summaries and the ledger.
func Kind(err error) string {
	var (
		trunc   *abf.TruncatedFileError
		version *abf.UnsupportedVersionError
		format  *abf.FormatError
		noTags  *detect.NoTagsError
		oor     *epoch.OutOfRangeError
		exists  *export.OutputExistsError
		none    *pipeline.NoEventsError
		upload  *UploadError
		panicE  *PanicError
	)
	switch {
	case err == nil:
		return ""
	case errors.As(err, &trunc):
		return "TruncatedFileError"
	case errors.As(err, &version):
		return "UnsupportedVersionError"
	case errors.As(err, &format):
		return "FormatError"
	case errors.As(err, &noTags):
		return "NoTagsError"
	case errors.As(err, &oor):
		return "OutOfRangeError"
	case errors.As(err, &exists):
		return "OutputExistsError"
	case errors.As(err, &none):
		return "NoEventsError"
	case errors.As(err, &upload):
		return "UploadError"
	case errors.As(err, &panicE):
		return "Panic"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "Canceled"
	case errors.Is(err, fs.ErrNotExist):
		return "NotFound"
	case errors.Is(err, fs.ErrPermission):
		return "PermissionDenied"
	}
	return "Error"
}
