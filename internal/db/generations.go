package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/bobarin/xvoice/internal/models"
	"github.com/google/uuid"
)

// ErrNotFound is returned when a lookup matches no rows.
var ErrNotFound = errors.New("not found")

const generationColumns = `
	id, handle, status, name, summary, voice_description, sample_text,
	previews, error_message, created_at, updated_at
`

func scanGeneration(row interface{ Scan(...interface{}) error }) (*models.Generation, error) {
	g := &models.Generation{}
	err := row.Scan(
		&g.ID, &g.Handle, &g.Status, &g.Name, &g.Summary, &g.VoiceDescription,
		&g.SampleText, &g.Previews, &g.ErrorMessage, &g.CreatedAt, &g.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return g, nil
}

func (db *DB) CreateGeneration(ctx context.Context, g *models.Generation) error {
	query := `
		INSERT INTO generations (id, handle, status, previews)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at, updated_at
	`

	return db.QueryRowContext(
		ctx, query, g.ID, g.Handle, g.Status, g.Previews,
	).Scan(&g.CreatedAt, &g.UpdatedAt)
}

// CompleteGeneration stores the analysis and previews of a finished generation.
func (db *DB) CompleteGeneration(ctx context.Context, id uuid.UUID, name string, analysis *models.ProfileAnalysis, previews models.Previews) error {
	query := `
		UPDATE generations
		SET status = $1, name = $2, summary = $3, voice_description = $4,
		    sample_text = $5, previews = $6, error_message = NULL, updated_at = NOW()
		WHERE id = $7
	`
	result, err := db.ExecContext(ctx, query,
		models.GenerationStatusCompleted, name, analysis.Summary, analysis.VoiceDescription,
		analysis.SampleText, previews, id,
	)
	if err != nil {
		return fmt.Errorf("failed to complete generation: %w", err)
	}
	return expectOneRow(result, "generation")
}

func (db *DB) FailGeneration(ctx context.Context, id uuid.UUID, errorMessage string) error {
	query := `
		UPDATE generations
		SET status = $1, error_message = $2, updated_at = NOW()
		WHERE id = $3
	`
	result, err := db.ExecContext(ctx, query, models.GenerationStatusFailed, errorMessage, id)
	if err != nil {
		return fmt.Errorf("failed to fail generation: %w", err)
	}
	return expectOneRow(result, "generation")
}

// GetLatestCompletedGeneration returns the newest completed generation for a
// handle, compared case-insensitively.
func (db *DB) GetLatestCompletedGeneration(ctx context.Context, handle string) (*models.Generation, error) {
	query := `SELECT ` + generationColumns + `
		FROM generations
		WHERE LOWER(handle) = LOWER($1) AND status = $2
		ORDER BY created_at DESC
		LIMIT 1
	`

	g, err := scanGeneration(db.QueryRowContext(ctx, query, handle, models.GenerationStatusCompleted))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("generation for %s: %w", handle, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest generation: %w", err)
	}
	return g, nil
}

// ListGenerations returns generations for a handle (all handles when empty),
// newest first.
func (db *DB) ListGenerations(ctx context.Context, handle string, limit int) ([]models.Generation, error) {
	query := `SELECT ` + generationColumns + `
		FROM generations
		WHERE ($1 = '' OR LOWER(handle) = LOWER($1))
		ORDER BY created_at DESC
		LIMIT $2
	`

	rows, err := db.QueryContext(ctx, query, handle, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query generations: %w", err)
	}
	defer rows.Close()

	generations := []models.Generation{}
	for rows.Next() {
		g, err := scanGeneration(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan generation: %w", err)
		}
		generations = append(generations, *g)
	}

	return generations, rows.Err()
}

func expectOneRow(result sql.Result, what string) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%s: %w", what, ErrNotFound)
	}
	return nil
}
