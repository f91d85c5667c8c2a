package service

import (
	"context"

	"go.uber.org/zap"

	"transcriber/api/cache"
	"transcriber/api/dto"
	"transcriber/api/kafka"
	"transcriber/api/models"
	"transcriber/api/repository"
	"transcriber/api/storage"
)

// JobService serves the job registry operations: listing, paging and the
// user-initiated retry/cancel/delete actions.
type JobService struct {
	repo     repository.Registry
	cache    *cache.StatusCache
	store    storage.ObjectStore
	producer kafka.Producer
	topic    string
	logger   *zap.Logger
}

func NewJobService(
	repo repository.Registry,
	statusCache *cache.StatusCache,
	store storage.ObjectStore,
	producer kafka.Producer,
	topic string,
	logger *zap.Logger,
) *JobService {
	return &JobService{
		repo:     repo,
		cache:    statusCache,
		store:    store,
		producer: producer,
		topic:    topic,
		logger:   logger,
	}
}

func (s *JobService) ListActive(ctx context.Context, ownerID string) ([]dto.JobResponse, error) {
	jobs, err := s.repo.ListActiveByOwner(ctx, ownerID)
	if err != nil {
		return nil, err
	}

	resp := make([]dto.JobResponse, 0, len(jobs))
	for i := range jobs {
		resp = append(resp, *ToJobResponse(&jobs[i]))
	}
	return resp, nil
}

// ListCompletedPage fetches limit+1 rows so hasMore never needs a count query.
func (s *JobService) ListCompletedPage(ctx context.Context, ownerID string, offset, limit int) ([]dto.JobResponse, bool, error) {
	jobs, err := s.repo.ListCompletedPage(ctx, ownerID, offset, limit+1)
	if err != nil {
		return nil, false, err
	}

	hasMore := len(jobs) > limit
	if hasMore {
		jobs = jobs[:limit]
	}

	resp := make([]dto.JobResponse, 0, len(jobs))
	for i := range jobs {
		resp = append(resp, *ToJobResponse(&jobs[i]))
	}
	return resp, hasMore, nil
}

// Status serves the fast-path status lookup: the redis entry when present,
// the job row on a miss. The row read refills the cache.
func (s *JobService) Status(ctx context.Context, jobID string) (*dto.JobStatusResponse, error) {
	if entry, err := s.cache.Get(ctx, jobID); err == nil {
		return &dto.JobStatusResponse{
			Success:  true,
			Status:   string(entry.Status),
			Progress: entry.Progress,
		}, nil
	}

	job, err := s.repo.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	s.cache.Set(ctx, jobID, job.Status, job.Progress)

	return &dto.JobStatusResponse{
		Success:  true,
		Status:   string(job.Status),
		Progress: job.Progress,
	}, nil
}

// Retry moves a failed job back to pending and re-enqueues its run.
func (s *JobService) Retry(ctx context.Context, jobID string) error {
	if err := s.repo.RetryJob(ctx, jobID); err != nil {
		return err
	}

	job, err := s.repo.GetJob(ctx, jobID)
	if err != nil {
		return err
	}

	s.cache.Set(ctx, jobID, models.StatusPending, 0)

	msg := &kafka.RunMessage{
		JobID:       job.ID,
		RunID:       job.RunID,
		TraceID:     job.TraceID,
		StoragePath: job.StoragePath,
		Language:    job.Language,
		Granularity: string(job.Granularity),
	}
	if err := s.producer.SendRunMessage(ctx, s.topic, msg); err != nil {
		return err
	}

	s.logger.Info("job retried", zap.String("job_id", jobID))
	return nil
}

func (s *JobService) Cancel(ctx context.Context, jobID string) error {
	if err := s.repo.CancelJob(ctx, jobID); err != nil {
		return err
	}

	s.cache.Set(ctx, jobID, models.StatusCancelled, 0)
	s.logger.Info("job cancelled", zap.String("job_id", jobID))
	return nil
}

// Delete removes the job row, its transcript and the stored object.
func (s *JobService) Delete(ctx context.Context, jobID string) error {
	storagePath, err := s.repo.DeleteJob(ctx, jobID)
	if err != nil {
		return err
	}

	s.cache.Delete(ctx, jobID)

	if storagePath != "" {
		if err := s.store.Delete(ctx, storagePath); err != nil {
			// The row is gone; the sweeper will collect the object later.
			s.logger.Warn("failed to delete stored object",
				zap.String("job_id", jobID),
				zap.String("storage_path", storagePath),
				zap.Error(err),
			)
		}
	}

	s.logger.Info("job deleted", zap.String("job_id", jobID))
	return nil
}

// ToJobResponse converts a job row to its wire representation.
func ToJobResponse(job *models.Job) *dto.JobResponse {
	var completedAt *string
	if job.CompletedAt != nil {
		formatted := job.CompletedAt.UTC().Format("2006-01-02T15:04:05Z")
		completedAt = &formatted
	}

	return &dto.JobResponse{
		ID:               job.ID,
		FileName:         job.FileName,
		FileSize:         job.FileSize,
		MediaType:        job.MediaType,
		FileExt:          job.FileExt,
		Status:           string(job.Status),
		Progress:         job.Progress,
		ErrorMessage:     job.ErrorMessage,
		DurationSeconds:  job.DurationSeconds,
		Language:         job.Language,
		DetectedLanguage: job.DetectedLanguage,
		Granularity:      string(job.Granularity),
		RunID:            job.RunID,
		CreatedAt:        job.CreatedAt.UTC().Format("2006-01-02T15:04:05Z"),
		CompletedAt:      completedAt,
	}
}
