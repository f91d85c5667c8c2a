package repository

import (
	"context"
	"errors"

	"transcriber/api/models"
)

var (
	ErrJobNotFound       = errors.New("job not found")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrTranscriptExists  = errors.New("transcript already exists for job")
)

// Registry is the durable store and status-transition authority for jobs.
type Registry interface {
	CreateJob(ctx context.Context, job *models.Job) error
	GetJob(ctx context.Context, id string) (*models.Job, error)
	ListActiveByOwner(ctx context.Context, ownerID string) ([]models.Job, error)
	ListCompletedPage(ctx context.Context, ownerID string, offset, limit int) ([]models.Job, error)
	RetryJob(ctx context.Context, id string) error
	CancelJob(ctx context.Context, id string) error
	DeleteJob(ctx context.Context, id string) (storagePath string, err error)
	ListStoragePaths(ctx context.Context) ([]string, error)
	GetTranscriptByJob(ctx context.Context, jobID string) (*models.Transcript, error)
}
