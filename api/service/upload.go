package service

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"transcriber/api/cache"
	"transcriber/api/dto"
	"transcriber/api/kafka"
	"transcriber/api/models"
	"transcriber/api/repository"
	"transcriber/api/storage"
	"transcriber/api/validation"
)

// UploadService implements the server half of the batch upload flow:
// batch validation, write-location acquisition and job finalization.
type UploadService struct {
	repo     repository.Registry
	cache    *cache.StatusCache
	store    storage.ObjectStore
	producer kafka.Producer
	rules    validation.Rules
	topic    string
	prefix   string
	urlTTL   time.Duration
	logger   *zap.Logger
}

func NewUploadService(
	repo repository.Registry,
	statusCache *cache.StatusCache,
	store storage.ObjectStore,
	producer kafka.Producer,
	rules validation.Rules,
	topic, prefix string,
	urlTTL time.Duration,
	logger *zap.Logger,
) *UploadService {
	return &UploadService{
		repo:     repo,
		cache:    statusCache,
		store:    store,
		producer: producer,
		rules:    rules,
		topic:    topic,
		prefix:   prefix,
		urlTTL:   urlTTL,
		logger:   logger,
	}
}

// CheckBatch validates each file independently against the upload policy.
func (s *UploadService) CheckBatch(files []validation.FileMeta) *dto.BatchCheckResponse {
	accepted, rejected := validation.CheckBatch(files, s.rules)
	return &dto.BatchCheckResponse{
		Success:       true,
		AcceptedFiles: accepted,
		RejectedFiles: rejected,
	}
}

// InitiateBatch allocates a storage path and signed write location per file.
// Failures are isolated: a file that cannot be initiated gets an error entry
// and its siblings proceed.
func (s *UploadService) InitiateBatch(ctx context.Context, files []validation.FileMeta) *dto.InitiateBatchResponse {
	resp := &dto.InitiateBatchResponse{
		Files: make([]dto.InitiateFileResponse, 0, len(files)),
	}

	for _, f := range files {
		entry := dto.InitiateFileResponse{FileName: f.Name}

		if err := validation.CheckFile(f, s.rules); err != nil {
			entry.Error = err.Error()
			resp.Files = append(resp.Files, entry)
			continue
		}

		jobID := uuid.New().String()
		storagePath := s.storagePath(jobID, f.Name)

		uploadURL, err := s.store.PresignPut(ctx, storagePath, s.urlTTL)
		if err != nil {
			s.logger.Error("presign failed",
				zap.String("file", f.Name),
				zap.Error(err),
			)
			entry.Error = "failed to acquire write location"
			resp.Files = append(resp.Files, entry)
			continue
		}

		entry.Success = true
		entry.JobID = jobID
		entry.StoragePath = storagePath
		entry.UploadURL = uploadURL
		resp.Files = append(resp.Files, entry)
	}

	return resp
}

// Complete finalizes one upload: verifies the object landed, materializes
// the job row in pending state and enqueues the transcription run.
func (s *UploadService) Complete(ctx context.Context, traceID, ownerID string, req *dto.CompleteUploadRequest) (*dto.JobResponse, error) {
	if req.JobID == "" || req.StoragePath == "" {
		return nil, errors.New("job id and storage path are required")
	}

	if _, err := s.store.Head(ctx, req.StoragePath); err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			return nil, fmt.Errorf("uploaded object missing: %s", req.StoragePath)
		}
		return nil, err
	}

	granularity := models.TimestampGranularity(req.Granularity)
	if granularity != models.GranularityWord {
		granularity = models.GranularitySegment
	}

	job := &models.Job{
		OwnerID:     ownerID,
		TraceID:     traceID,
		FileName:    req.File.Name,
		FileSize:    req.File.Size,
		MediaType:   req.File.MediaType,
		FileExt:     strings.ToLower(filepath.Ext(req.File.Name)),
		StoragePath: req.StoragePath,
		Status:      models.StatusPending,
		Language:    req.Language,
		Granularity: granularity,
		RunID:       uuid.New().String(),
	}

	if err := s.repo.CreateJob(ctx, job); err != nil {
		return nil, err
	}

	s.cache.Set(ctx, job.ID, models.StatusPending, 0)

	msg := &kafka.RunMessage{
		JobID:       job.ID,
		RunID:       job.RunID,
		TraceID:     traceID,
		StoragePath: job.StoragePath,
		Language:    job.Language,
		Granularity: string(job.Granularity),
	}
	if err := s.producer.SendRunMessage(ctx, s.topic, msg); err != nil {
		return nil, err
	}

	s.logger.Info("upload finalized",
		zap.String("trace_id", traceID),
		zap.String("job_id", job.ID),
		zap.String("run_id", job.RunID),
		zap.String("file", job.FileName),
	)

	return ToJobResponse(job), nil
}

func (s *UploadService) storagePath(jobID, fileName string) string {
	return s.prefix + jobID + "/" + filepath.Base(fileName)
}
