package models

import "time"

// Segment is one timed span of transcribed speech.
type Segment struct {
	Index int     `json:"index"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

// WordTimestamp carries optional word-level timing.
type WordTimestamp struct {
	Word  string  `json:"word"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

// Transcript holds every content representation for one completed job.
// Exactly one transcript exists per completed job (unique job_id).
type Transcript struct {
	ID               string
	JobID            string
	OwnerID          string
	Text             string
	SRT              string
	VTT              string
	Segments         []Segment
	Words            []WordTimestamp
	DetectedLanguage string
	DurationSeconds  float64
	CreatedAt        time.Time
}
