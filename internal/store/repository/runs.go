package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/fortuna/gridiron/internal/store"
)

// Run statuses.
const (
	RunQueued    = "queued"
	RunRunning   = "running"
	RunCompleted = "completed"
	RunFailed    = "failed"
)

// RunRepository persists pipeline_runs.
type RunRepository struct {
	db *store.Database
}

// NewRunRepository creates a new run repository
func NewRunRepository(db *store.Database) *RunRepository {
	return &RunRepository{db: db}
}

const runColumns = `run_id, status, stats, windows, dry_run, rows_in, rows_out, rows_dropped,
	status_message, last_error, created_at, updated_at, started_at, completed_at`

// Create inserts a queued run and returns the stored record.
func (r *RunRepository) Create(ctx context.Context, run *store.PipelineRun) (*store.PipelineRun, error) {
	query := `
		INSERT INTO pipeline_runs (run_id, status, stats, windows, dry_run, status_message)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	_, err := r.db.DB().ExecContext(ctx, r.db.Rebind(query),
		run.RunID, RunQueued, run.Stats, run.Windows, run.DryRun, run.StatusMessage,
	)
	if err != nil {
		return nil, fmt.Errorf("insert run: %w", err)
	}
	return r.Get(ctx, run.RunID)
}

// MarkRunning moves a run to running and stamps started_at.
func (r *RunRepository) MarkRunning(ctx context.Context, runID string) error {
	query := `
		UPDATE pipeline_runs
		SET status = $2,
			status_message = 'Building features...',
			started_at = COALESCE(started_at, CURRENT_TIMESTAMP),
			updated_at = CURRENT_TIMESTAMP
		WHERE run_id = $1
	`

	if _, err := r.db.DB().ExecContext(ctx, r.db.Rebind(query), runID, RunRunning); err != nil {
		return fmt.Errorf("mark run running: %w", err)
	}
	return nil
}

// UpdateMessage records the latest progress message.
func (r *RunRepository) UpdateMessage(ctx context.Context, runID, message string) error {
	query := `
		UPDATE pipeline_runs
		SET status_message = $2,
			updated_at = CURRENT_TIMESTAMP
		WHERE run_id = $1
	`

	if _, err := r.db.DB().ExecContext(ctx, r.db.Rebind(query), runID, message); err != nil {
		return fmt.Errorf("update run message: %w", err)
	}
	return nil
}

// Complete marks a run completed with its row counts.
func (r *RunRepository) Complete(ctx context.Context, runID string, rowsIn, rowsOut, rowsDropped int) error {
	query := `
		UPDATE pipeline_runs
		SET status = $2,
			status_message = 'Completed',
			rows_in = $3,
			rows_out = $4,
			rows_dropped = $5,
			updated_at = CURRENT_TIMESTAMP,
			completed_at = CURRENT_TIMESTAMP
		WHERE run_id = $1
	`

	if _, err := r.db.DB().ExecContext(ctx, r.db.Rebind(query), runID, RunCompleted, rowsIn, rowsOut, rowsDropped); err != nil {
		return fmt.Errorf("complete run: %w", err)
	}
	return nil
}

// Fail marks a run failed and records the error.
func (r *RunRepository) Fail(ctx context.Context, runID string, runErr error) error {
	query := `
		UPDATE pipeline_runs
		SET status = $2,
			status_message = 'Failed',
			last_error = $3,
			updated_at = CURRENT_TIMESTAMP,
			completed_at = CURRENT_TIMESTAMP
		WHERE run_id = $1
	`

	var errText sql.NullString
	if runErr != nil {
		errText = sql.NullString{String: runErr.Error(), Valid: true}
	}

	if _, err := r.db.DB().ExecContext(ctx, r.db.Rebind(query), runID, RunFailed, errText); err != nil {
		return fmt.Errorf("fail run: %w", err)
	}
	return nil
}

// ResetStuckRuns fails runs left running by a previous process.
func (r *RunRepository) ResetStuckRuns(ctx context.Context) (int64, error) {
	query := `
		UPDATE pipeline_runs
		SET status = $1,
			status_message = 'Interrupted by service restart',
			updated_at = CURRENT_TIMESTAMP,
			completed_at = CURRENT_TIMESTAMP
		WHERE status IN ($2, $3)
	`

	res, err := r.db.DB().ExecContext(ctx, r.db.Rebind(query), RunFailed, RunRunning, RunQueued)
	if err != nil {
		return 0, fmt.Errorf("reset stuck runs: %w", err)
	}
	return res.RowsAffected()
}

// Get returns the run with runID, or nil when there is none.
func (r *RunRepository) Get(ctx context.Context, runID string) (*store.PipelineRun, error) {
	query := `SELECT ` + runColumns + ` FROM pipeline_runs WHERE run_id = $1`

	run, err := scanRun(r.db.DB().QueryRowContext(ctx, r.db.Rebind(query), runID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get run: %w", err)
	}
	return run, nil
}

// Active returns the running run, if any.
func (r *RunRepository) Active(ctx context.Context) (*store.PipelineRun, error) {
	query := `SELECT ` + runColumns + ` FROM pipeline_runs WHERE status = $1 ORDER BY started_at DESC LIMIT 1`

	run, err := scanRun(r.db.DB().QueryRowContext(ctx, r.db.Rebind(query), RunRunning))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get active run: %w", err)
	}
	return run, nil
}

// ListRecent returns the most recent runs, newest first.
func (r *RunRepository) ListRecent(ctx context.Context, limit int) ([]*store.PipelineRun, error) {
	query := `SELECT ` + runColumns + ` FROM pipeline_runs ORDER BY created_at DESC, run_id LIMIT $1`

	rows, err := r.db.DB().QueryContext(ctx, r.db.Rebind(query), limit)
	if err != nil {
		return nil, fmt.Errorf("list recent runs: %w", err)
	}
	defer rows.Close()

	var runs []*store.PipelineRun
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}

	return runs, rows.Err()
}

func scanRun(scanner interface {
	Scan(dest ...any) error
}) (*store.PipelineRun, error) {
	run := &store.PipelineRun{}
	err := scanner.Scan(
		&run.RunID,
		&run.Status,
		&run.Stats,
		&run.Windows,
		&run.DryRun,
		&run.RowsIn,
		&run.RowsOut,
		&run.RowsDropped,
		&run.StatusMessage,
		&run.LastError,
		&run.CreatedAt,
		&run.UpdatedAt,
		&run.StartedAt,
		&run.CompletedAt,
	)
	if err != nil {
		return nil, err
	}
	return run, nil
}
