package store

import (
	"context"
	"fmt"

	"github.com/roach88/ephyalign/internal/batch"
)

// RecordRun stores a finished batch and its jobs in one transaction.
// Uses ON CONFLICT DO NOTHING for idempotency: a run id that is already
// recorded is left unchanged.
func (s *Store) RecordRun(ctx context.Context, res *batch.Result) error {
	patterns, err := marshalStrings(res.Patterns)
	if err != nil {
		return fmt.Errorf("record run: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("record run: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO runs
		(id, started_at, finished_at, patterns, workers, total, succeeded, failed, canceled, interrupted, exit_code)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`,
		res.RunID,
		formatTime(res.StartedAt),
		formatTime(res.FinishedAt),
		patterns,
		res.Workers,
		len(res.Jobs),
		res.Count(batch.StatusSucceeded),
		res.Count(batch.StatusFailed),
		res.Count(batch.StatusCanceled),
		res.Interrupted,
		res.ExitCode(),
	)
	if err != nil {
		return fmt.Errorf("record run: %w", err)
	}

	for _, j := range res.Jobs {
		outputs, err := marshalStrings(j.Outputs)
		if err != nil {
			return fmt.Errorf("record job %d: %w", j.Index, err)
		}
		uploaded, err := marshalStrings(j.Uploaded)
		if err != nil {
			return fmt.Errorf("record job %d: %w", j.Index, err)
		}
		var msg string
		if j.Err != nil {
			msg = j.Err.Error()
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO jobs
			(run_id, idx, path, stem, status, error_kind, error, events, epochs, dropped, outputs, uploaded, duration_ms)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(run_id, idx) DO NOTHING
		`,
			res.RunID,
			j.Index,
			j.Path,
			j.Stem,
			string(j.Status),
			j.Kind,
			msg,
			j.Events,
			j.Epochs,
			j.Dropped,
			outputs,
			uploaded,
			j.Duration.Milliseconds(),
		)
		if err != nil {
			return fmt.Errorf("record job %d: %w", j.Index, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("record run: %w", err)
	}
	return nil
}
