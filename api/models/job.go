package models

import (
	"time"
)

type JobStatus string

const (
	StatusPending    JobStatus = "pending"
	StatusProcessing JobStatus = "processing"
	StatusCompleted  JobStatus = "completed"
	StatusFailed     JobStatus = "failed"
	StatusCancelled  JobStatus = "cancelled"
)

type TimestampGranularity string

const (
	GranularitySegment TimestampGranularity = "segment"
	GranularityWord    TimestampGranularity = "word"
)

type Job struct {
	ID               string
	OwnerID          string
	TraceID          string
	FileName         string
	FileSize         int64
	MediaType        string
	FileExt          string
	StoragePath      string
	Status           JobStatus
	Progress         int
	ErrorMessage     string
	DurationSeconds  *float64
	Language         string
	DetectedLanguage string
	Granularity      TimestampGranularity
	RunID            string
	CreatedAt        time.Time
	UpdatedAt        time.Time
	CompletedAt      *time.Time
}

// IsActive reports whether the job still belongs in the active collection.
func (s JobStatus) IsActive() bool {
	return s == StatusPending || s == StatusProcessing
}

// IsTerminal reports whether no further runtime transitions are possible.
func (s JobStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// CanTransition enforces the server-side status state machine:
// pending -> processing -> {completed, failed}
// {pending, processing} -> cancelled (user cancel)
// failed -> pending (user retry)
func CanTransition(from, to JobStatus) bool {
	switch from {
	case StatusPending:
		return to == StatusProcessing || to == StatusCancelled
	case StatusProcessing:
		return to == StatusCompleted || to == StatusFailed || to == StatusCancelled
	case StatusFailed:
		return to == StatusPending
	default:
		return false
	}
}
