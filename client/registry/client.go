package registry

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"transcriber/client/model"
)

// ErrActionFailed wraps a registry action (retry/cancel/delete) rejection.
// Local state must be left unchanged so the user can retry the action.
var ErrActionFailed = errors.New("registry action failed")

// BatchCheckResult is the server's verdict on a proposed batch.
type BatchCheckResult struct {
	AcceptedFiles []model.FileMeta  `json:"accepted_files"`
	RejectedFiles []model.Rejection `json:"rejected_files"`
}

// InitiateResult is the per-file outcome of write-location acquisition.
type InitiateResult struct {
	FileName    string `json:"file_name"`
	Success     bool   `json:"success"`
	UploadURL   string `json:"upload_url,omitempty"`
	JobID       string `json:"job_id,omitempty"`
	StoragePath string `json:"storage_path,omitempty"`
	Error       string `json:"error,omitempty"`
}

// CompleteUploadParams finalizes one transferred file.
type CompleteUploadParams struct {
	JobID       string         `json:"job_id"`
	StoragePath string         `json:"storage_path"`
	File        model.FileMeta `json:"file"`
	Language    string         `json:"language,omitempty"`
	Granularity string         `json:"timestamp_granularity"`
}

// Client talks to the Job Registry's remote operations.
type Client struct {
	baseURL string
	ownerID string
	http    *http.Client
	logger  *zap.Logger
}

func NewClient(baseURL, ownerID string, logger *zap.Logger) *Client {
	return &Client{
		baseURL: baseURL,
		ownerID: ownerID,
		http:    &http.Client{Timeout: 30 * time.Second},
		logger:  logger,
	}
}

func (c *Client) CheckBatchUploadAllowed(ctx context.Context, files []model.FileMeta) (*BatchCheckResult, error) {
	var resp struct {
		Success bool `json:"success"`
		BatchCheckResult
		Error string `json:"error,omitempty"`
	}
	body := map[string]any{"files": files}
	if err := c.post(ctx, "/uploads/check", body, &resp); err != nil {
		return nil, err
	}
	if !resp.Success {
		return nil, fmt.Errorf("batch check rejected: %s", resp.Error)
	}
	return &resp.BatchCheckResult, nil
}

func (c *Client) InitiateBatchUpload(ctx context.Context, files []model.FileMeta) ([]InitiateResult, error) {
	var resp struct {
		Files []InitiateResult `json:"files"`
	}
	body := map[string]any{"files": files}
	if err := c.post(ctx, "/uploads/initiate", body, &resp); err != nil {
		return nil, err
	}
	return resp.Files, nil
}

func (c *Client) CompleteUpload(ctx context.Context, params CompleteUploadParams) (*model.Job, error) {
	var resp struct {
		Success bool       `json:"success"`
		Job     *model.Job `json:"job,omitempty"`
		Error   string     `json:"error,omitempty"`
	}
	if err := c.post(ctx, "/uploads/complete", params, &resp); err != nil {
		return nil, err
	}
	if !resp.Success || resp.Job == nil {
		return nil, fmt.Errorf("finalize failed: %s", resp.Error)
	}
	return resp.Job, nil
}

func (c *Client) ListActiveJobs(ctx context.Context) ([]model.Job, error) {
	var resp struct {
		Success bool        `json:"success"`
		Jobs    []model.Job `json:"jobs"`
		Error   string      `json:"error,omitempty"`
	}
	if err := c.get(ctx, "/jobs/active", &resp); err != nil {
		return nil, err
	}
	if !resp.Success {
		return nil, fmt.Errorf("list active failed: %s", resp.Error)
	}
	return resp.Jobs, nil
}

func (c *Client) LoadMoreCompletedJobs(ctx context.Context, offset, limit int) ([]model.Job, bool, error) {
	var resp struct {
		Success bool        `json:"success"`
		Jobs    []model.Job `json:"jobs"`
		HasMore bool        `json:"has_more"`
		Error   string      `json:"error,omitempty"`
	}
	path := fmt.Sprintf("/jobs/completed?offset=%d&limit=%d", offset, limit)
	if err := c.get(ctx, path, &resp); err != nil {
		return nil, false, err
	}
	if !resp.Success {
		return nil, false, fmt.Errorf("load completed failed: %s", resp.Error)
	}
	return resp.Jobs, resp.HasMore, nil
}

func (c *Client) RetryJob(ctx context.Context, jobID string) error {
	return c.action(ctx, http.MethodPost, "/jobs/"+jobID+"/retry")
}

func (c *Client) CancelJob(ctx context.Context, jobID string) error {
	return c.action(ctx, http.MethodPost, "/jobs/"+jobID+"/cancel")
}

func (c *Client) DeleteJob(ctx context.Context, jobID string) error {
	return c.action(ctx, http.MethodDelete, "/jobs/"+jobID)
}

func (c *Client) action(ctx context.Context, method, path string) error {
	var resp struct {
		Success bool   `json:"success"`
		Error   string `json:"error,omitempty"`
	}
	if err := c.do(ctx, method, path, nil, &resp); err != nil {
		return fmt.Errorf("%w: %v", ErrActionFailed, err)
	}
	if !resp.Success {
		return fmt.Errorf("%w: %s", ErrActionFailed, resp.Error)
	}
	return nil
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	return c.do(ctx, http.MethodGet, path, nil, out)
}

func (c *Client) post(ctx context.Context, path string, body, out any) error {
	return c.do(ctx, http.MethodPost, path, body, out)
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Owner-ID", c.ownerID)

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusInternalServerError {
		return fmt.Errorf("registry returned %d for %s %s", resp.StatusCode, method, path)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode %s response: %w", path, err)
		}
	}
	return nil
}
