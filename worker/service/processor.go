package service

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"transcriber/worker/kafka"
	"transcriber/worker/progress"
	"transcriber/worker/repository"
	"transcriber/worker/transcribe"
)

// EventPublisher pushes run events to subscribers.
type EventPublisher interface {
	Publish(ctx context.Context, runID string, event progress.RunEvent) error
}

// StatusWriter mirrors run transitions into the shared status cache.
type StatusWriter interface {
	Set(ctx context.Context, jobID, status string, progress int) error
}

// Processor drives one transcription run end to end: claim, progress,
// transcript materialization and the terminal transition.
type Processor struct {
	repo      repository.Repository
	engine    transcribe.Engine
	publisher EventPublisher
	statuses  StatusWriter
	logger    *zap.Logger
}

func NewProcessor(repo repository.Repository, engine transcribe.Engine, publisher EventPublisher, statuses StatusWriter, logger *zap.Logger) *Processor {
	return &Processor{
		repo:      repo,
		engine:    engine,
		publisher: publisher,
		statuses:  statuses,
		logger:    logger,
	}
}

func (p *Processor) Process(ctx context.Context, msg *kafka.RunMessage) error {
	ownerID, err := p.repo.ClaimJob(ctx, msg.JobID)
	if err != nil {
		if errors.Is(err, repository.ErrNotClaimed) {
			// Cancelled or already handled; nothing to do.
			p.logger.Info("run skipped, job not claimable",
				zap.String("job_id", msg.JobID),
				zap.String("run_id", msg.RunID),
			)
			return nil
		}
		return err
	}

	p.cacheStatus(ctx, msg.JobID, "processing", 0)
	p.publish(ctx, msg.RunID, "processing", 0, "starting", "")

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Cancel the engine when the user cancels the job mid-run. The tracker
	// re-reads the registry on every progress callback.
	var once sync.Once
	watchCancel := func() {
		status, err := p.repo.GetJobStatus(ctx, msg.JobID)
		if err == nil && status == "cancelled" {
			once.Do(cancel)
		}
	}

	reported := 0
	onProgress := func(pct int, step string) {
		if pct < reported {
			pct = reported
		}
		reported = pct

		p.repo.UpdateProgress(ctx, msg.JobID, pct)
		p.cacheStatus(ctx, msg.JobID, "processing", pct)
		p.publish(ctx, msg.RunID, "processing", pct, step, "")
		watchCancel()
	}

	result, err := p.engine.Transcribe(runCtx, transcribe.Request{
		StoragePath: msg.StoragePath,
		Language:    msg.Language,
		Granularity: msg.Granularity,
	}, onProgress)

	if err != nil {
		if runCtx.Err() != nil {
			// User cancellation, the registry already holds the terminal state.
			p.cacheStatus(ctx, msg.JobID, "cancelled", reported)
			p.publish(ctx, msg.RunID, "cancelled", reported, "cancelled", "")
			return nil
		}
		p.logger.Error("run failed",
			zap.String("trace_id", msg.TraceID),
			zap.String("job_id", msg.JobID),
			zap.Error(err),
		)
		p.repo.FailJob(ctx, msg.JobID, err.Error())
		p.cacheStatus(ctx, msg.JobID, "failed", reported)
		p.publish(ctx, msg.RunID, "failed", reported, "failed", err.Error())
		return err
	}

	if err := p.repo.CreateTranscript(ctx, msg.JobID, ownerID, result); err != nil {
		p.logger.Error("transcript insert failed",
			zap.String("job_id", msg.JobID),
			zap.Error(err),
		)
		p.repo.FailJob(ctx, msg.JobID, "failed to store transcript")
		p.cacheStatus(ctx, msg.JobID, "failed", reported)
		p.publish(ctx, msg.RunID, "failed", reported, "failed", "failed to store transcript")
		return err
	}

	if err := p.repo.CompleteJob(ctx, msg.JobID, result.DetectedLanguage, result.DurationSeconds); err != nil {
		if errors.Is(err, repository.ErrNotClaimed) {
			// Cancelled between transcription and completion. The transcript
			// must not outlive the completion it was written for.
			if derr := p.repo.DeleteTranscript(ctx, msg.JobID); derr != nil {
				p.logger.Warn("transcript cleanup failed",
					zap.String("job_id", msg.JobID),
					zap.Error(derr),
				)
			}
			p.cacheStatus(ctx, msg.JobID, "cancelled", reported)
			p.publish(ctx, msg.RunID, "cancelled", reported, "cancelled", "")
			return nil
		}
		return err
	}

	p.cacheStatus(ctx, msg.JobID, "completed", 100)
	p.publish(ctx, msg.RunID, "completed", 100, "done", "")
	p.logger.Info("run completed",
		zap.String("trace_id", msg.TraceID),
		zap.String("job_id", msg.JobID),
		zap.String("run_id", msg.RunID),
	)
	return nil
}

func (p *Processor) cacheStatus(ctx context.Context, jobID, status string, pct int) {
	if p.statuses == nil {
		return
	}
	if err := p.statuses.Set(ctx, jobID, status, pct); err != nil {
		p.logger.Warn("status cache write failed",
			zap.String("job_id", jobID),
			zap.Error(err),
		)
	}
}

func (p *Processor) publish(ctx context.Context, runID, status string, pct int, step, errMsg string) {
	if p.publisher == nil {
		return
	}
	event := progress.RunEvent{
		Status: status,
		Metadata: progress.EventMetadata{
			Progress:    pct,
			CurrentStep: step,
			Error:       errMsg,
		},
	}
	if err := p.publisher.Publish(ctx, runID, event); err != nil {
		p.logger.Warn("event publish failed",
			zap.String("run_id", runID),
			zap.Error(err),
		)
	}
}
