package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/bobarin/xvoice/internal/models"
	"github.com/google/uuid"
)

const jobColumns = `
	id, handle, status, attempts, generation_id,
	started_at, finished_at, error_message, created_at
`

func (db *DB) CreateJob(ctx context.Context, job *models.Job) error {
	query := `
		INSERT INTO jobs (id, handle, status, attempts)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at
	`

	return db.QueryRowContext(
		ctx, query,
		job.ID, job.Handle, job.Status, job.Attempts,
	).Scan(&job.CreatedAt)
}

func (db *DB) GetJob(ctx context.Context, id uuid.UUID) (*models.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE id = $1`

	job := &models.Job{}
	err := db.QueryRowContext(ctx, query, id).Scan(
		&job.ID, &job.Handle, &job.Status, &job.Attempts, &job.GenerationID,
		&job.StartedAt, &job.FinishedAt, &job.ErrorMessage, &job.CreatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("job %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get job: %w", err)
	}

	return job, nil
}

// GetLatestJob returns the most recent job for handle, compared
// case-insensitively.
func (db *DB) GetLatestJob(ctx context.Context, handle string) (*models.Job, error) {
	query := `SELECT ` + jobColumns + `
		FROM jobs
		WHERE LOWER(handle) = LOWER($1)
		ORDER BY created_at DESC
		LIMIT 1
	`

	job := &models.Job{}
	err := db.QueryRowContext(ctx, query, handle).Scan(
		&job.ID, &job.Handle, &job.Status, &job.Attempts, &job.GenerationID,
		&job.StartedAt, &job.FinishedAt, &job.ErrorMessage, &job.CreatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("job for %s: %w", handle, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest job: %w", err)
	}

	return job, nil
}

// HasPendingJob reports whether a queued or running job exists for handle.
func (db *DB) HasPendingJob(ctx context.Context, handle string) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM jobs
			WHERE LOWER(handle) = LOWER($1) AND status IN ($2, $3)
		)
	`

	var exists bool
	err := db.QueryRowContext(ctx, query, handle, models.JobStatusQueued, models.JobStatusRunning).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check pending jobs: %w", err)
	}
	return exists, nil
}

func (db *DB) UpdateJobStatus(ctx context.Context, id uuid.UUID, status models.JobStatus) error {
	now := time.Now()
	query := `UPDATE jobs SET status = $1, started_at = $2, attempts = attempts + 1 WHERE id = $3`

	if status == models.JobStatusSucceeded || status == models.JobStatusFailed {
		query = `UPDATE jobs SET status = $1, finished_at = $2 WHERE id = $3`
	}

	_, err := db.ExecContext(ctx, query, status, now, id)
	return err
}

func (db *DB) UpdateJobError(ctx context.Context, id uuid.UUID, errorMessage string) error {
	query := `
		UPDATE jobs
		SET status = $1, error_message = $2, finished_at = $3
		WHERE id = $4
	`
	_, err := db.ExecContext(ctx, query, models.JobStatusFailed, errorMessage, time.Now(), id)
	return err
}

func (db *DB) SetJobGeneration(ctx context.Context, id, generationID uuid.UUID) error {
	_, err := db.ExecContext(ctx, `UPDATE jobs SET generation_id = $1 WHERE id = $2`, generationID, id)
	return err
}
