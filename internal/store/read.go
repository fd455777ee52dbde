package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// ErrRunNotFound is returned by ReadRun for an unknown id.
var ErrRunNotFound = errors.New("run not found")

// Run is a recorded batch.
type Run struct {
	ID          string    `json:"id"`
	StartedAt   time.Time `json:"started_at"`
	FinishedAt  time.Time `json:"finished_at"`
	Patterns    []string  `json:"patterns"`
	Workers     int       `json:"workers"`
	Total       int       `json:"total"`
	Succeeded   int       `json:"succeeded"`
	Failed      int       `json:"failed"`
	Canceled    int       `json:"canceled"`
	Interrupted bool      `json:"interrupted"`
	ExitCode    int       `json:"exit_code"`
}

// Job is a recorded input file of a run.
type Job struct {
	Index      int      `json:"index"`
	Path       string   `json:"path"`
	Stem       string   `json:"stem"`
	Status     string   `json:"status"`
	ErrorKind  string   `json:"error_kind,omitempty"`
	Error      string   `json:"error,omitempty"`
	Events     int      `json:"events"`
	Epochs     int      `json:"epochs"`
	Dropped    int      `json:"dropped"`
	Outputs    []string `json:"outputs"`
	Uploaded   []string `json:"uploaded"`
	DurationMS int64    `json:"duration_ms"`
}

const runColumns = `id, started_at, finished_at, patterns, workers, total, succeeded, failed, canceled, interrupted, exit_code`

// ListRuns returns up to limit runs, newest first. A non-positive limit
// returns every run.
//
// Returns an empty slice (not nil) if the ledger is empty.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+runColumns+`
		FROM runs
		ORDER BY started_at DESC, id COLLATE BINARY DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	runs := []Run{}
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}

// ReadRun returns a run and its jobs in discovery order.
func (s *Store) ReadRun(ctx context.Context, id string) (Run, []Job, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?`, id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	if err != nil {
		return Run{}, nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT idx, path, stem, status, error_kind, error, events, epochs, dropped, outputs, uploaded, duration_ms
		FROM jobs
		WHERE run_id = ?
		ORDER BY idx ASC
	`, id)
	if err != nil {
		return Run{}, nil, fmt.Errorf("query jobs: %w", err)
	}
	defer rows.Close()

	jobs := []Job{}
	for rows.Next() {
		var j Job
		var outputs, uploaded string
		if err := rows.Scan(&j.Index, &j.Path, &j.Stem, &j.Status, &j.ErrorKind, &j.Error,
			&j.Events, &j.Epochs, &j.Dropped, &outputs, &uploaded, &j.DurationMS); err != nil {
			return Run{}, nil, fmt.Errorf("scan job: %w", err)
		}
		if j.Outputs, err = unmarshalStrings(outputs); err != nil {
			return Run{}, nil, err
		}
		if j.Uploaded, err = unmarshalStrings(uploaded); err != nil {
			return Run{}, nil, err
		}
		jobs = append(jobs, j)
	}
	if err := rows.Err(); err != nil {
		return Run{}, nil, fmt.Errorf("iterate jobs: %w", err)
	}
	return run, jobs, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (Run, error) {
	var r Run
	var started, finished, patterns string
	err := row.Scan(&r.ID, &started, &finished, &patterns, &r.Workers, &r.Total,
		&r.Succeeded, &r.Failed, &r.Canceled, &r.Interrupted, &r.ExitCode)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, err
	}
	if err != nil {
		return Run{}, fmt.Errorf("scan run: %w", err)
	}
	if r.StartedAt, err = parseTime(started); err != nil {
		return Run{}, err
	}
	if r.FinishedAt, err = parseTime(finished); err != nil {
		return Run{}, err
	}
	if r.Patterns, err = unmarshalStrings(patterns); err != nil {
		return Run{}, err
	}
	return r, nil
}
