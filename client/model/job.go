package model

import "time"

type JobStatus string

const (
	StatusPending    JobStatus = "pending"
	StatusProcessing JobStatus = "processing"
	StatusCompleted  JobStatus = "completed"
	StatusFailed     JobStatus = "failed"
	StatusCancelled  JobStatus = "cancelled"
)

// FileMeta is the metadata submitted ahead of uploading bytes.
type FileMeta struct {
	Name      string `json:"name"`
	Size      int64  `json:"size"`
	MediaType string `json:"type"`
}

// Job is the client-side view of a registry job row.
type Job struct {
	ID               string     `json:"id"`
	FileName         string     `json:"file_name"`
	FileSize         int64      `json:"file_size"`
	MediaType        string     `json:"media_type"`
	FileExt          string     `json:"file_ext"`
	Status           JobStatus  `json:"status"`
	Progress         int        `json:"progress"`
	ErrorMessage     string     `json:"error_message,omitempty"`
	DurationSeconds  *float64   `json:"duration_seconds,omitempty"`
	Language         string     `json:"language,omitempty"`
	DetectedLanguage string     `json:"detected_language,omitempty"`
	Granularity      string     `json:"timestamp_granularity"`
	RunID            string     `json:"run_id,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	CompletedAt      *time.Time `json:"completed_at,omitempty"`
}

// Rejection names one file refused during batch validation.
type Rejection struct {
	Name   string `json:"name"`
	Reason string `json:"reason"`
}
