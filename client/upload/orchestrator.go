package upload

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"transcriber/client/model"
	"transcriber/client/registry"
)

// FileState is the per-file upload state machine:
// pending -> validating -> {rejected | accepted}
// accepted -> transferring -> {error | transferred}
// transferred -> finalizing -> {error | success}
type FileState string

const (
	StatePending      FileState = "pending"
	StateValidating   FileState = "validating"
	StateRejected     FileState = "rejected"
	StateAccepted     FileState = "accepted"
	StateTransferring FileState = "transferring"
	StateTransferred  FileState = "transferred"
	StateFinalizing   FileState = "finalizing"
	StateError        FileState = "error"
	StateSuccess      FileState = "success"
)

// Progress bands within a file's overall [0,100] range.
const (
	bandInitiateEnd = 9
	bandTransferLo  = 10
	bandTransferHi  = 85
	bandFinalize    = 86
)

// File is one batch member: metadata plus an opener for its bytes.
type File struct {
	Meta model.FileMeta
	Open func() (io.ReadCloser, error)
}

// FileResult is the terminal outcome for one file.
type FileResult struct {
	Name  string
	State FileState
	JobID string
	Job   *model.Job
	Err   error
}

// BatchResult aggregates per-file outcomes after the join-all barrier.
type BatchResult struct {
	Total     int
	Succeeded int
	Failed    int
	Rejected  int
	Results   []FileResult
}

// Options carries the transcription parameters applied at finalize.
type Options struct {
	Language    string
	Granularity string
}

// ProgressFunc reports one file's overall progress in [0,100].
type ProgressFunc func(fileName string, pct int)

// Registry is the remote surface the orchestrator consumes.
type Registry interface {
	CheckBatchUploadAllowed(ctx context.Context, files []model.FileMeta) (*registry.BatchCheckResult, error)
	InitiateBatchUpload(ctx context.Context, files []model.FileMeta) ([]registry.InitiateResult, error)
	CompleteUpload(ctx context.Context, params registry.CompleteUploadParams) (*model.Job, error)
}

// Orchestrator runs multi-file batch uploads: validation, write-location
// acquisition, byte transfer and finalization. All accepted files run
// concurrently and the batch settles when every file is terminal; one
// file's failure never cancels or rolls back siblings.
type Orchestrator struct {
	registry     Registry
	transport    *http.Client
	maxBatchSize int
	logger       *zap.Logger
}

func NewOrchestrator(reg Registry, maxBatchSize int, logger *zap.Logger) *Orchestrator {
	return &Orchestrator{
		registry:     reg,
		transport:    &http.Client{Timeout: 10 * time.Minute},
		maxBatchSize: maxBatchSize,
		logger:       logger,
	}
}

// ValidateBatch truncates oversize batches, then validates each file
// independently via the registry.
func (o *Orchestrator) ValidateBatch(ctx context.Context, files []model.FileMeta) (accepted []model.FileMeta, rejected []model.Rejection, err error) {
	if o.maxBatchSize > 0 && len(files) > o.maxBatchSize {
		files = files[:o.maxBatchSize]
	}

	result, err := o.registry.CheckBatchUploadAllowed(ctx, files)
	if err != nil {
		return nil, nil, err
	}
	return result.AcceptedFiles, result.RejectedFiles, nil
}

// UploadBatch runs the full batch flow and settles every file.
func (o *Orchestrator) UploadBatch(ctx context.Context, files []File, opts Options, onProgress ProgressFunc) *BatchResult {
	result := &BatchResult{Total: len(files)}

	if o.maxBatchSize > 0 && len(files) > o.maxBatchSize {
		for _, f := range files[o.maxBatchSize:] {
			result.Results = append(result.Results, FileResult{
				Name:  f.Meta.Name,
				State: StateRejected,
				Err:   fmt.Errorf("batch size limit exceeded"),
			})
			result.Rejected++
		}
		files = files[:o.maxBatchSize]
	}

	metas := make([]model.FileMeta, 0, len(files))
	for _, f := range files {
		metas = append(metas, f.Meta)
	}

	check, err := o.registry.CheckBatchUploadAllowed(ctx, metas)
	if err != nil {
		// Validation itself is unreachable; every file settles as an error.
		for _, f := range files {
			result.Results = append(result.Results, FileResult{
				Name:  f.Meta.Name,
				State: StateError,
				Err:   err,
			})
			result.Failed++
		}
		return result
	}

	rejectedReasons := make(map[string]string, len(check.RejectedFiles))
	for _, rej := range check.RejectedFiles {
		rejectedReasons[rej.Name] = rej.Reason
	}
	acceptedNames := make(map[string]bool, len(check.AcceptedFiles))
	for _, acc := range check.AcceptedFiles {
		acceptedNames[acc.Name] = true
	}

	var acceptedFiles []File
	for _, f := range files {
		if reason, rejected := rejectedReasons[f.Meta.Name]; rejected {
			result.Results = append(result.Results, FileResult{
				Name:  f.Meta.Name,
				State: StateRejected,
				Err:   fmt.Errorf("%s", reason),
			})
			result.Rejected++
			continue
		}
		if !acceptedNames[f.Meta.Name] {
			// Truncated server-side before validation.
			result.Results = append(result.Results, FileResult{
				Name:  f.Meta.Name,
				State: StateRejected,
				Err:   fmt.Errorf("batch size limit exceeded"),
			})
			result.Rejected++
			continue
		}
		acceptedFiles = append(acceptedFiles, f)
	}

	if len(acceptedFiles) == 0 {
		return result
	}

	acceptedMetas := make([]model.FileMeta, 0, len(acceptedFiles))
	for _, f := range acceptedFiles {
		acceptedMetas = append(acceptedMetas, f.Meta)
	}

	initiations, err := o.registry.InitiateBatchUpload(ctx, acceptedMetas)
	if err != nil {
		for _, f := range acceptedFiles {
			result.Results = append(result.Results, FileResult{
				Name:  f.Meta.Name,
				State: StateError,
				Err:   err,
			})
			result.Failed++
		}
		return result
	}

	initiated := make(map[string]registry.InitiateResult, len(initiations))
	for _, init := range initiations {
		initiated[init.FileName] = init
	}

	// Join-all barrier: every accepted file settles independently.
	results := make([]FileResult, len(acceptedFiles))
	var wg sync.WaitGroup
	for i, f := range acceptedFiles {
		wg.Add(1)
		go func(i int, f File) {
			defer wg.Done()
			results[i] = o.uploadOne(ctx, f, initiated[f.Meta.Name], opts, onProgress)
		}(i, f)
	}
	wg.Wait()

	for _, r := range results {
		result.Results = append(result.Results, r)
		switch r.State {
		case StateSuccess:
			result.Succeeded++
		default:
			result.Failed++
		}
	}
	return result
}

// uploadOne drives a single file through transfer and finalize. Any failure
// is attributed to this file alone.
func (o *Orchestrator) uploadOne(ctx context.Context, f File, init registry.InitiateResult, opts Options, onProgress ProgressFunc) FileResult {
	report := newProgressClamp(f.Meta.Name, onProgress)

	if !init.Success || init.UploadURL == "" {
		err := fmt.Errorf("write location not acquired: %s", init.Error)
		return FileResult{Name: f.Meta.Name, State: StateError, Err: err}
	}
	report(bandInitiateEnd)

	if err := o.transfer(ctx, f, init.UploadURL, report); err != nil {
		o.logger.Warn("transfer failed",
			zap.String("file", f.Meta.Name),
			zap.Error(err),
		)
		return FileResult{Name: f.Meta.Name, State: StateError, Err: err}
	}
	report(bandTransferHi)

	report(bandFinalize)
	job, err := o.registry.CompleteUpload(ctx, registry.CompleteUploadParams{
		JobID:       init.JobID,
		StoragePath: init.StoragePath,
		File:        f.Meta,
		Language:    opts.Language,
		Granularity: opts.Granularity,
	})
	if err != nil {
		// The object is uploaded but no job references it; the server-side
		// sweep reclaims it.
		o.logger.Warn("finalize failed, uploaded object orphaned",
			zap.String("file", f.Meta.Name),
			zap.String("storage_path", init.StoragePath),
			zap.Error(err),
		)
		return FileResult{Name: f.Meta.Name, State: StateError, JobID: init.JobID, Err: err}
	}

	report(100)
	return FileResult{Name: f.Meta.Name, State: StateSuccess, JobID: job.ID, Job: job}
}

// transfer streams the file's bytes to the signed write location, scaling
// fractional progress into the transfer band.
func (o *Orchestrator) transfer(ctx context.Context, f File, uploadURL string, report func(int)) error {
	body, err := f.Open()
	if err != nil {
		return fmt.Errorf("open %s: %w", f.Meta.Name, err)
	}
	defer body.Close()

	reader := &progressReader{
		r:     body,
		total: f.Meta.Size,
		report: func(frac float64) {
			span := float64(bandTransferHi - bandTransferLo)
			report(bandTransferLo + int(frac*span))
		},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, uploadURL, reader)
	if err != nil {
		return err
	}
	req.ContentLength = f.Meta.Size
	req.Header.Set("Content-Type", f.Meta.MediaType)

	resp, err := o.transport.Do(req)
	if err != nil {
		return fmt.Errorf("transfer %s: %w", f.Meta.Name, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("transfer %s: storage returned %d", f.Meta.Name, resp.StatusCode)
	}
	return nil
}

// newProgressClamp wraps the callback so one file's reported progress never
// decreases, regardless of callback interleaving upstream.
func newProgressClamp(name string, onProgress ProgressFunc) func(int) {
	var mu sync.Mutex
	last := 0
	return func(pct int) {
		if onProgress == nil {
			return
		}
		mu.Lock()
		defer mu.Unlock()
		if pct > 100 {
			pct = 100
		}
		if pct <= last {
			return
		}
		last = pct
		onProgress(name, pct)
	}
}

type progressReader struct {
	r      io.Reader
	total  int64
	read   int64
	report func(frac float64)
}

func (pr *progressReader) Read(p []byte) (int, error) {
	n, err := pr.r.Read(p)
	if n > 0 && pr.total > 0 {
		pr.read += int64(n)
		frac := float64(pr.read) / float64(pr.total)
		if frac > 1 {
			frac = 1
		}
		pr.report(frac)
	}
	return n, err
}
