package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"transcriber/worker/kafka"
	"transcriber/worker/progress"
	"transcriber/worker/repository"
	"transcriber/worker/transcribe"
)

type fakeRepo struct {
	claimFunc          func(ctx context.Context, jobID string) (string, error)
	statusFunc         func(ctx context.Context, jobID string) (string, error)
	progressCalls      []int
	completedJobs      []string
	failedMessages     []string
	transcripts        int
	deletedTranscripts []string
	completeErr        error
	transcriptErr      error
}

func (f *fakeRepo) ClaimJob(ctx context.Context, jobID string) (string, error) {
	if f.claimFunc != nil {
		return f.claimFunc(ctx, jobID)
	}
	return "owner-1", nil
}

func (f *fakeRepo) GetJobStatus(ctx context.Context, jobID string) (string, error) {
	if f.statusFunc != nil {
		return f.statusFunc(ctx, jobID)
	}
	return "processing", nil
}

func (f *fakeRepo) UpdateProgress(ctx context.Context, jobID string, progress int) error {
	f.progressCalls = append(f.progressCalls, progress)
	return nil
}

func (f *fakeRepo) CompleteJob(ctx context.Context, jobID, detectedLanguage string, durationSeconds float64) error {
	if f.completeErr != nil {
		return f.completeErr
	}
	f.completedJobs = append(f.completedJobs, jobID)
	return nil
}

func (f *fakeRepo) FailJob(ctx context.Context, jobID, errMsg string) error {
	f.failedMessages = append(f.failedMessages, errMsg)
	return nil
}

func (f *fakeRepo) CreateTranscript(ctx context.Context, jobID, ownerID string, result *transcribe.Result) error {
	if f.transcriptErr != nil {
		return f.transcriptErr
	}
	f.transcripts++
	return nil
}

func (f *fakeRepo) DeleteTranscript(ctx context.Context, jobID string) error {
	f.deletedTranscripts = append(f.deletedTranscripts, jobID)
	f.transcripts--
	return nil
}

type fakeStatusWriter struct {
	writes []string
}

func (f *fakeStatusWriter) Set(ctx context.Context, jobID, status string, progress int) error {
	f.writes = append(f.writes, status)
	return nil
}

type fakePublisher struct {
	events []progress.RunEvent
}

func (f *fakePublisher) Publish(ctx context.Context, runID string, event progress.RunEvent) error {
	f.events = append(f.events, event)
	return nil
}

type failingEngine struct {
	err error
}

func (e *failingEngine) Transcribe(ctx context.Context, req transcribe.Request, onProgress transcribe.ProgressFunc) (*transcribe.Result, error) {
	if onProgress != nil {
		onProgress(10, "downloading")
	}
	return nil, e.err
}

func runMessage() *kafka.RunMessage {
	return &kafka.RunMessage{
		JobID:       "job-1",
		RunID:       "run-1",
		TraceID:     "trace-1",
		StoragePath: "uploads/job-1/talk.mp3",
		Granularity: "segment",
	}
}

func lastEvent(t *testing.T, pub *fakePublisher) progress.RunEvent {
	t.Helper()
	if len(pub.events) == 0 {
		t.Fatal("no events published")
	}
	return pub.events[len(pub.events)-1]
}

func TestProcess_CompletesRun(t *testing.T) {
	repo := &fakeRepo{}
	pub := &fakePublisher{}
	p := NewProcessor(repo, &transcribe.StubEngine{}, pub, nil, zaptest.NewLogger(t))

	if err := p.Process(context.Background(), runMessage()); err != nil {
		t.Fatalf("Process failed: %v", err)
	}

	if repo.transcripts != 1 {
		t.Errorf("Expected 1 transcript, got %d", repo.transcripts)
	}
	if len(repo.completedJobs) != 1 {
		t.Errorf("Expected job completed, got %v", repo.completedJobs)
	}
	if len(repo.failedMessages) != 0 {
		t.Errorf("Expected no failures, got %v", repo.failedMessages)
	}

	final := lastEvent(t, pub)
	if final.Status != "completed" || final.Metadata.Progress != 100 {
		t.Errorf("Expected completed event at 100, got %+v", final)
	}
}

func TestProcess_SkipsUnclaimableJob(t *testing.T) {
	repo := &fakeRepo{
		claimFunc: func(ctx context.Context, jobID string) (string, error) {
			return "", repository.ErrNotClaimed
		},
	}
	pub := &fakePublisher{}
	p := NewProcessor(repo, &transcribe.StubEngine{}, pub, nil, zaptest.NewLogger(t))

	if err := p.Process(context.Background(), runMessage()); err != nil {
		t.Fatalf("Unclaimable job must not be an error: %v", err)
	}
	if len(pub.events) != 0 {
		t.Errorf("Expected no events for a skipped run, got %+v", pub.events)
	}
	if repo.transcripts != 0 || len(repo.completedJobs) != 0 {
		t.Error("skipped run must not touch the registry")
	}
}

func TestProcess_EngineFailureFailsJob(t *testing.T) {
	repo := &fakeRepo{}
	pub := &fakePublisher{}
	engine := &failingEngine{err: errors.New("decode error")}
	p := NewProcessor(repo, engine, pub, nil, zaptest.NewLogger(t))

	if err := p.Process(context.Background(), runMessage()); err == nil {
		t.Fatal("Expected the engine error to surface")
	}

	if len(repo.failedMessages) != 1 || repo.failedMessages[0] != "decode error" {
		t.Errorf("Expected job failed with the engine message, got %v", repo.failedMessages)
	}
	if repo.transcripts != 0 {
		t.Error("a failed run must not write a transcript")
	}

	final := lastEvent(t, pub)
	if final.Status != "failed" || final.Metadata.Error != "decode error" {
		t.Errorf("Expected failed event with message, got %+v", final)
	}
}

func TestProcess_CancelledMidRun(t *testing.T) {
	repo := &fakeRepo{
		statusFunc: func(ctx context.Context, jobID string) (string, error) {
			return "cancelled", nil
		},
	}
	pub := &fakePublisher{}
	engine := &transcribe.StubEngine{StepDelay: 10 * time.Millisecond}
	p := NewProcessor(repo, engine, pub, nil, zaptest.NewLogger(t))

	if err := p.Process(context.Background(), runMessage()); err != nil {
		t.Fatalf("Cancellation must not be an error: %v", err)
	}

	if len(repo.failedMessages) != 0 {
		t.Errorf("a cancelled run must not be marked failed, got %v", repo.failedMessages)
	}
	if len(repo.completedJobs) != 0 {
		t.Error("a cancelled run must not complete")
	}

	final := lastEvent(t, pub)
	if final.Status != "cancelled" {
		t.Errorf("Expected cancelled event, got %+v", final)
	}
}

func TestProcess_CancelRacesCompletion(t *testing.T) {
	repo := &fakeRepo{completeErr: repository.ErrNotClaimed}
	pub := &fakePublisher{}
	p := NewProcessor(repo, &transcribe.StubEngine{}, pub, nil, zaptest.NewLogger(t))

	if err := p.Process(context.Background(), runMessage()); err != nil {
		t.Fatalf("Completion losing the cancel race must not be an error: %v", err)
	}

	final := lastEvent(t, pub)
	if final.Status != "cancelled" {
		t.Errorf("Expected cancelled event after losing the race, got %+v", final)
	}
	if len(repo.deletedTranscripts) != 1 || repo.deletedTranscripts[0] != "job-1" {
		t.Errorf("Expected the transcript removed for the cancelled job, got %v", repo.deletedTranscripts)
	}
	if repo.transcripts != 0 {
		t.Errorf("no transcript row may survive a non-completed job, have %d", repo.transcripts)
	}
}

func TestProcess_TranscriptFailureFailsJob(t *testing.T) {
	repo := &fakeRepo{transcriptErr: errors.New("insert failed")}
	pub := &fakePublisher{}
	p := NewProcessor(repo, &transcribe.StubEngine{}, pub, nil, zaptest.NewLogger(t))

	if err := p.Process(context.Background(), runMessage()); err == nil {
		t.Fatal("Expected the transcript error to surface")
	}
	if len(repo.failedMessages) != 1 {
		t.Errorf("Expected job failed, got %v", repo.failedMessages)
	}
}

func TestProcess_MirrorsStatusToCache(t *testing.T) {
	repo := &fakeRepo{}
	statuses := &fakeStatusWriter{}
	p := NewProcessor(repo, &transcribe.StubEngine{}, &fakePublisher{}, statuses, zaptest.NewLogger(t))

	if err := p.Process(context.Background(), runMessage()); err != nil {
		t.Fatalf("Process failed: %v", err)
	}

	if len(statuses.writes) == 0 {
		t.Fatal("Expected status cache writes during the run")
	}
	if statuses.writes[0] != "processing" {
		t.Errorf("Expected the claim mirrored as processing, got %q", statuses.writes[0])
	}
	if last := statuses.writes[len(statuses.writes)-1]; last != "completed" {
		t.Errorf("Expected the terminal state mirrored, got %q", last)
	}
}

func TestProcess_ProgressNonDecreasing(t *testing.T) {
	repo := &fakeRepo{}
	p := NewProcessor(repo, &transcribe.StubEngine{}, &fakePublisher{}, nil, zaptest.NewLogger(t))

	if err := p.Process(context.Background(), runMessage()); err != nil {
		t.Fatalf("Process failed: %v", err)
	}

	last := -1
	for _, pct := range repo.progressCalls {
		if pct < last {
			t.Errorf("reported progress decreased: %v", repo.progressCalls)
			break
		}
		last = pct
	}
}
