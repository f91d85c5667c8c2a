package repository

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"transcriber/worker/transcribe"
)

var (
	ErrJobNotFound = errors.New("job not found")
	ErrNotClaimed  = errors.New("job not claimable")
)

// Repository is the narrow registry surface the runtime needs.
type Repository interface {
	ClaimJob(ctx context.Context, jobID string) (ownerID string, err error)
	GetJobStatus(ctx context.Context, jobID string) (string, error)
	UpdateProgress(ctx context.Context, jobID string, progress int) error
	CompleteJob(ctx context.Context, jobID, detectedLanguage string, durationSeconds float64) error
	FailJob(ctx context.Context, jobID, errMsg string) error
	CreateTranscript(ctx context.Context, jobID, ownerID string, result *transcribe.Result) error
	DeleteTranscript(ctx context.Context, jobID string) error
}

type PostgresRepo struct {
	db *pgxpool.Pool
}

func NewPostgresRepo(db *pgxpool.Pool) *PostgresRepo {
	return &PostgresRepo{db: db}
}

// ClaimJob moves pending -> processing. A cancel that raced the claim makes
// the update a no-op and the job is skipped.
func (r *PostgresRepo) ClaimJob(ctx context.Context, jobID string) (string, error) {
	var ownerID string
	err := r.db.QueryRow(ctx, `
		UPDATE jobs
		SET status = 'processing', updated_at = NOW()
		WHERE id = $1 AND status = 'pending'
		RETURNING owner_id
	`, jobID).Scan(&ownerID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", ErrNotClaimed
		}
		return "", err
	}
	return ownerID, nil
}

func (r *PostgresRepo) GetJobStatus(ctx context.Context, jobID string) (string, error) {
	var status string
	err := r.db.QueryRow(ctx, `SELECT status FROM jobs WHERE id = $1`, jobID).Scan(&status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", ErrJobNotFound
		}
		return "", err
	}
	return status, nil
}

// UpdateProgress clamps progress to be non-decreasing at the row level.
func (r *PostgresRepo) UpdateProgress(ctx context.Context, jobID string, progress int) error {
	_, err := r.db.Exec(ctx, `
		UPDATE jobs
		SET progress = GREATEST(progress, $1), updated_at = NOW()
		WHERE id = $2 AND status = 'processing'
	`, progress, jobID)
	return err
}

func (r *PostgresRepo) CompleteJob(ctx context.Context, jobID, detectedLanguage string, durationSeconds float64) error {
	result, err := r.db.Exec(ctx, `
		UPDATE jobs
		SET status = 'completed', progress = 100, detected_language = $1,
		    duration_seconds = $2, completed_at = NOW(), updated_at = NOW()
		WHERE id = $3 AND status = 'processing'
	`, detectedLanguage, durationSeconds, jobID)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return ErrNotClaimed
	}
	return nil
}

func (r *PostgresRepo) FailJob(ctx context.Context, jobID, errMsg string) error {
	_, err := r.db.Exec(ctx, `
		UPDATE jobs
		SET status = 'failed', error_message = $1, updated_at = NOW()
		WHERE id = $2 AND status = 'processing'
	`, errMsg, jobID)
	return err
}

func (r *PostgresRepo) CreateTranscript(ctx context.Context, jobID, ownerID string, result *transcribe.Result) error {
	segments, err := json.Marshal(result.Segments)
	if err != nil {
		return err
	}
	words, err := json.Marshal(result.Words)
	if err != nil {
		return err
	}

	_, err = r.db.Exec(ctx, `
		INSERT INTO transcripts (job_id, owner_id, text, srt, vtt, segments, words,
		                         detected_language, duration_seconds)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (job_id) DO NOTHING
	`, jobID, ownerID, result.Text, result.SRT, result.VTT, segments, words,
		result.DetectedLanguage, result.DurationSeconds)
	return err
}

// DeleteTranscript unwinds a transcript insert when the job did not reach
// completed. Only completed jobs may hold a transcript row.
func (r *PostgresRepo) DeleteTranscript(ctx context.Context, jobID string) error {
	_, err := r.db.Exec(ctx, `DELETE FROM transcripts WHERE job_id = $1`, jobID)
	return err
}
