package dto

import (
	"transcriber/api/validation"
)

type BatchCheckRequest struct {
	Files []validation.FileMeta `json:"files"`
}

type BatchCheckResponse struct {
	Success       bool                   `json:"success"`
	AcceptedFiles []validation.FileMeta  `json:"accepted_files"`
	RejectedFiles []validation.Rejection `json:"rejected_files"`
	Error         string                 `json:"error,omitempty"`
}

type InitiateBatchRequest struct {
	Files []validation.FileMeta `json:"files"`
}

// InitiateFileResponse is the per-file outcome of write-location acquisition.
// Failures are isolated: one entry failing never voids its siblings.
type InitiateFileResponse struct {
	FileName    string `json:"file_name"`
	Success     bool   `json:"success"`
	UploadURL   string `json:"upload_url,omitempty"`
	JobID       string `json:"job_id,omitempty"`
	StoragePath string `json:"storage_path,omitempty"`
	Error       string `json:"error,omitempty"`
}

type InitiateBatchResponse struct {
	Files []InitiateFileResponse `json:"files"`
}

type CompleteUploadRequest struct {
	JobID       string              `json:"job_id"`
	StoragePath string              `json:"storage_path"`
	File        validation.FileMeta `json:"file"`
	Language    string              `json:"language,omitempty"`
	Granularity string              `json:"timestamp_granularity"`
}

type CompleteUploadResponse struct {
	Success bool         `json:"success"`
	Job     *JobResponse `json:"job,omitempty"`
	Error   string       `json:"error,omitempty"`
}

type JobResponse struct {
	ID               string   `json:"id"`
	FileName         string   `json:"file_name"`
	FileSize         int64    `json:"file_size"`
	MediaType        string   `json:"media_type"`
	FileExt          string   `json:"file_ext"`
	Status           string   `json:"status"`
	Progress         int      `json:"progress"`
	ErrorMessage     string   `json:"error_message,omitempty"`
	DurationSeconds  *float64 `json:"duration_seconds,omitempty"`
	Language         string   `json:"language,omitempty"`
	DetectedLanguage string   `json:"detected_language,omitempty"`
	Granularity      string   `json:"timestamp_granularity"`
	RunID            string   `json:"run_id,omitempty"`
	CreatedAt        string   `json:"created_at"`
	CompletedAt      *string  `json:"completed_at,omitempty"`
}

type ActiveJobsResponse struct {
	Success bool          `json:"success"`
	Jobs    []JobResponse `json:"jobs"`
	Error   string        `json:"error,omitempty"`
}

type CompletedPageResponse struct {
	Success bool          `json:"success"`
	Jobs    []JobResponse `json:"jobs"`
	HasMore bool          `json:"has_more"`
	Error   string        `json:"error,omitempty"`
}

type JobStatusResponse struct {
	Success  bool   `json:"success"`
	Status   string `json:"status"`
	Progress int    `json:"progress"`
	Error    string `json:"error,omitempty"`
}

type ActionResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	TraceID string `json:"trace_id,omitempty"`
}
