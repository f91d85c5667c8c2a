package engine

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"transcriber/client/model"
	"transcriber/client/pagination"
	"transcriber/client/progress"
	"transcriber/client/reconcile"
	"transcriber/client/registry"
	"transcriber/client/upload"
)

// Engine wires the client-side pieces together: registry client, upload
// orchestrator, reconciler, pagers and push subscriptions. One engine
// instance owns one reconciler lifetime.
type Engine struct {
	registry     *registry.Client
	orchestrator *upload.Orchestrator
	reconciler   *reconcile.Reconciler
	subscriber   *progress.Subscriber
	activePager  *pagination.ActivePager
	completed    *pagination.CompletedPager
	accessToken  string
	pageSize     int
	logger       *zap.Logger

	mu      sync.Mutex
	tracked map[string]struct{}
}

type Config struct {
	BaseURL      string
	OwnerID      string
	AccessToken  string
	MaxBatchSize int
	PageSize     int
}

func New(cfg Config, logger *zap.Logger) *Engine {
	client := registry.NewClient(cfg.BaseURL, cfg.OwnerID, logger)

	e := &Engine{
		registry:     client,
		orchestrator: upload.NewOrchestrator(client, cfg.MaxBatchSize, logger),
		reconciler:   reconcile.NewReconciler(logger),
		subscriber:   progress.NewSubscriber(cfg.BaseURL, logger),
		activePager:  pagination.NewActivePager(cfg.PageSize),
		accessToken:  cfg.AccessToken,
		pageSize:     cfg.PageSize,
		logger:       logger,
		tracked:      make(map[string]struct{}),
	}
	e.completed = pagination.NewCompletedPager(cfg.PageSize, client.LoadMoreCompletedJobs)
	return e
}

// Refresh pulls authoritative snapshots and reconciles them with local
// optimistic state.
func (e *Engine) Refresh(ctx context.Context) error {
	active, err := e.registry.ListActiveJobs(ctx)
	if err != nil {
		return err
	}

	limit := len(e.completed.Jobs())
	if limit < e.pageSize {
		limit = e.pageSize
	}
	completed, _, err := e.registry.LoadMoreCompletedJobs(ctx, 0, limit)
	if err != nil {
		return err
	}

	e.reconciler.Reconcile(active, completed)
	e.completed.Replace(e.reconciler.Completed())

	for _, job := range e.reconciler.Active() {
		if job.Status == model.StatusPending || job.Status == model.StatusProcessing {
			e.track(ctx, job)
		}
	}
	return nil
}

// UploadBatch runs the batch flow and inserts each finalized job at the
// head of the active collection, subscribed to its run.
func (e *Engine) UploadBatch(ctx context.Context, files []upload.File, opts upload.Options, onProgress upload.ProgressFunc) *upload.BatchResult {
	result := e.orchestrator.UploadBatch(ctx, files, opts, onProgress)

	for _, r := range result.Results {
		if r.State != upload.StateSuccess || r.Job == nil {
			continue
		}
		e.reconciler.AddLocally(*r.Job)
		e.track(ctx, *r.Job)
	}
	return result
}

// track opens the push channel for one job's run and folds events into the
// reconciler. A job with a live subscription is not re-dialed; re-dialing
// on every refresh would churn connections and drop events in the gap.
// A connect failure renders as a static state; no retry.
func (e *Engine) track(ctx context.Context, job model.Job) {
	if job.RunID == "" {
		return
	}

	e.mu.Lock()
	if _, live := e.tracked[job.ID]; live {
		e.mu.Unlock()
		return
	}
	e.tracked[job.ID] = struct{}{}
	e.mu.Unlock()

	sub, err := e.subscriber.Subscribe(ctx, job.RunID, e.accessToken)
	if err != nil {
		e.untrack(job.ID)
		e.logger.Warn("push subscribe failed",
			zap.String("job_id", job.ID),
			zap.Error(err),
		)
		return
	}
	e.reconciler.RegisterCanceller(job.ID, sub.Cancel)

	go func() {
		defer e.untrack(job.ID)
		for event := range sub.Events() {
			switch {
			case event.Terminal && event.Status == string(model.StatusCompleted):
				e.reconciler.CompleteLocally(job.ID)
			case event.Terminal && event.Status == string(model.StatusFailed):
				e.reconciler.ApplyFailure(job.ID, event.Error)
			case event.Terminal:
				// Cancelled; the next snapshot carries the final row.
			default:
				e.reconciler.ApplyProgress(job.ID, event.Progress)
			}
		}
	}()
}

func (e *Engine) untrack(jobID string) {
	e.mu.Lock()
	delete(e.tracked, jobID)
	e.mu.Unlock()
}

// Retry asks the registry to re-run a failed job. Local state is untouched
// on failure so the user can retry the action.
func (e *Engine) Retry(ctx context.Context, jobID string) error {
	if err := e.registry.RetryJob(ctx, jobID); err != nil {
		return err
	}
	return e.Refresh(ctx)
}

// Cancel requests cancellation; the registry is the transition authority.
func (e *Engine) Cancel(ctx context.Context, jobID string) error {
	if err := e.registry.CancelJob(ctx, jobID); err != nil {
		return err
	}
	return e.Refresh(ctx)
}

// Delete removes the job remotely, then tombstones it locally. The push
// subscription is torn down synchronously inside DeleteLocally before the
// job leaves the active set.
func (e *Engine) Delete(ctx context.Context, jobID string) error {
	if err := e.registry.DeleteJob(ctx, jobID); err != nil {
		return err
	}
	e.reconciler.DeleteLocally(jobID)
	e.completed.Replace(e.reconciler.Completed())
	return nil
}

// LoadMoreCompleted pages the completed collection forward.
func (e *Engine) LoadMoreCompleted(ctx context.Context) error {
	return e.completed.LoadMore(ctx)
}

// ActivePage returns the current client-side window over active jobs.
func (e *Engine) ActivePage() []model.Job {
	return e.activePager.Window(e.reconciler.Active())
}

func (e *Engine) CompletedJobs() []model.Job {
	return e.completed.Jobs()
}

func (e *Engine) HasMoreCompleted() bool {
	return e.completed.HasMore()
}

// Close tears down every push subscription.
func (e *Engine) Close() {
	e.reconciler.Close()
}
