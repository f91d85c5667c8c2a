package repository

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/jackc/pgx/v5"

	"transcriber/api/database"
	"transcriber/api/models"
)

type PostgresRepo struct {
	db *database.DB
}

func NewPostgresRepo(db *database.DB) Registry {
	return &PostgresRepo{db: db}
}

const jobColumns = `
	id, owner_id, trace_id, file_name, file_size, media_type, file_ext,
	storage_path, status, progress, error_message, duration_seconds,
	language, detected_language, granularity, run_id,
	created_at, updated_at, completed_at
`

func (r *PostgresRepo) CreateJob(ctx context.Context, job *models.Job) error {
	query := `
		INSERT INTO jobs (
			owner_id, trace_id, file_name, file_size, media_type, file_ext,
			storage_path, status, progress, language, granularity, run_id
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING id, created_at, updated_at
	`

	err := r.db.Pool.QueryRow(ctx, query,
		job.OwnerID,
		job.TraceID,
		job.FileName,
		job.FileSize,
		job.MediaType,
		job.FileExt,
		job.StoragePath,
		job.Status,
		job.Progress,
		job.Language,
		job.Granularity,
		job.RunID,
	).Scan(&job.ID, &job.CreatedAt, &job.UpdatedAt)

	return err
}

func (r *PostgresRepo) GetJob(ctx context.Context, id string) (*models.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE id = $1`

	job, err := scanJob(r.db.Pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrJobNotFound
		}
		return nil, err
	}
	return job, nil
}

func (r *PostgresRepo) ListActiveByOwner(ctx context.Context, ownerID string) ([]models.Job, error) {
	query := `
		SELECT ` + jobColumns + `
		FROM jobs
		WHERE owner_id = $1 AND status IN ('pending', 'processing', 'failed', 'cancelled')
		ORDER BY created_at DESC
	`

	rows, err := r.db.Pool.Query(ctx, query, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectJobs(rows)
}

func (r *PostgresRepo) ListCompletedPage(ctx context.Context, ownerID string, offset, limit int) ([]models.Job, error) {
	query := `
		SELECT ` + jobColumns + `
		FROM jobs
		WHERE owner_id = $1 AND status = 'completed'
		ORDER BY completed_at DESC
		OFFSET $2 LIMIT $3
	`

	rows, err := r.db.Pool.Query(ctx, query, ownerID, offset, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectJobs(rows)
}

// RetryJob moves a failed job back to pending under its existing id.
// The row is reused rather than replaced so clients keep a stable identity.
func (r *PostgresRepo) RetryJob(ctx context.Context, id string) error {
	query := `
		UPDATE jobs
		SET status = 'pending', progress = 0, error_message = '',
		    completed_at = NULL, updated_at = NOW()
		WHERE id = $1 AND status = 'failed'
	`
	return r.transition(ctx, query, id)
}

func (r *PostgresRepo) CancelJob(ctx context.Context, id string) error {
	query := `
		UPDATE jobs
		SET status = 'cancelled', updated_at = NOW()
		WHERE id = $1 AND status IN ('pending', 'processing')
	`
	return r.transition(ctx, query, id)
}

func (r *PostgresRepo) transition(ctx context.Context, query, id string) error {
	result, err := r.db.Pool.Exec(ctx, query, id)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		if _, err := r.GetJob(ctx, id); err != nil {
			return err
		}
		return ErrInvalidTransition
	}
	return nil
}

// DeleteJob removes the job and its transcript in one transaction and
// returns the storage path so the caller can cascade to stored objects.
func (r *PostgresRepo) DeleteJob(ctx context.Context, id string) (string, error) {
	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return "", err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM transcripts WHERE job_id = $1`, id); err != nil {
		return "", err
	}

	var storagePath string
	err = tx.QueryRow(ctx, `DELETE FROM jobs WHERE id = $1 RETURNING storage_path`, id).Scan(&storagePath)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", ErrJobNotFound
		}
		return "", err
	}

	if err := tx.Commit(ctx); err != nil {
		return "", err
	}
	return storagePath, nil
}

func (r *PostgresRepo) ListStoragePaths(ctx context.Context) ([]string, error) {
	rows, err := r.db.Pool.Query(ctx, `SELECT storage_path FROM jobs WHERE storage_path <> ''`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var paths []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, err
		}
		paths = append(paths, p)
	}
	return paths, rows.Err()
}

func (r *PostgresRepo) GetTranscriptByJob(ctx context.Context, jobID string) (*models.Transcript, error) {
	query := `
		SELECT id, job_id, owner_id, text, srt, vtt, segments, words,
		       detected_language, duration_seconds, created_at
		FROM transcripts
		WHERE job_id = $1
	`

	var t models.Transcript
	var segments, words []byte
	err := r.db.Pool.QueryRow(ctx, query, jobID).Scan(
		&t.ID,
		&t.JobID,
		&t.OwnerID,
		&t.Text,
		&t.SRT,
		&t.VTT,
		&segments,
		&words,
		&t.DetectedLanguage,
		&t.DurationSeconds,
		&t.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrJobNotFound
		}
		return nil, err
	}

	if len(segments) > 0 {
		if err := json.Unmarshal(segments, &t.Segments); err != nil {
			return nil, err
		}
	}
	if len(words) > 0 {
		if err := json.Unmarshal(words, &t.Words); err != nil {
			return nil, err
		}
	}
	return &t, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*models.Job, error) {
	var job models.Job
	err := row.Scan(
		&job.ID,
		&job.OwnerID,
		&job.TraceID,
		&job.FileName,
		&job.FileSize,
		&job.MediaType,
		&job.FileExt,
		&job.StoragePath,
		&job.Status,
		&job.Progress,
		&job.ErrorMessage,
		&job.DurationSeconds,
		&job.Language,
		&job.DetectedLanguage,
		&job.Granularity,
		&job.RunID,
		&job.CreatedAt,
		&job.UpdatedAt,
		&job.CompletedAt,
	)
	if err != nil {
		return nil, err
	}
	return &job, nil
}

func collectJobs(rows pgx.Rows) ([]models.Job, error) {
	var jobs []models.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, *job)
	}
	return jobs, rows.Err()
}
