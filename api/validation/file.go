package validation

import (
	"path/filepath"
	"strings"
)

// FileMeta is the metadata a client submits ahead of uploading bytes.
type FileMeta struct {
	Name      string `json:"name"`
	Size      int64  `json:"size"`
	MediaType string `json:"type"`
}

// Rejection names one file that failed validation and why.
type Rejection struct {
	Name   string `json:"name"`
	Reason string `json:"reason"`
}

// Rules is the upload policy consumed as external configuration.
type Rules struct {
	AllowedMediaTypes map[string]bool
	AllowedExtensions map[string]bool
	MaxFileSize       int64
	MaxBatchSize      int
}

// DefaultRules matches the media formats the transcription runtime accepts.
func DefaultRules(maxFileSize int64, maxBatchSize int) Rules {
	return Rules{
		AllowedMediaTypes: map[string]bool{
			"audio/mpeg":      true,
			"audio/mp4":       true,
			"audio/wav":       true,
			"audio/x-wav":     true,
			"audio/flac":      true,
			"audio/ogg":       true,
			"audio/webm":      true,
			"video/mp4":       true,
			"video/webm":      true,
			"video/quicktime": true,
		},
		AllowedExtensions: map[string]bool{
			".mp3":  true,
			".m4a":  true,
			".wav":  true,
			".flac": true,
			".ogg":  true,
			".mp4":  true,
			".webm": true,
			".mov":  true,
		},
		MaxFileSize:  maxFileSize,
		MaxBatchSize: maxBatchSize,
	}
}

// Extensions that carry only one media kind. Container formats (.mp4, .webm,
// .ogg) legitimately appear with either audio/* or video/* and are exempt.
var (
	audioOnlyExts = map[string]bool{".mp3": true, ".m4a": true, ".wav": true, ".flac": true}
	videoOnlyExts = map[string]bool{".mov": true}
)

// CheckFile validates a single file's metadata against the rules.
func CheckFile(meta FileMeta, rules Rules) error {
	if meta.Size <= 0 {
		return ErrEmptyFile
	}
	if meta.Size > rules.MaxFileSize {
		return ErrFileTooLarge
	}
	mediaType := strings.ToLower(meta.MediaType)
	if !rules.AllowedMediaTypes[mediaType] {
		return ErrUnsupportedType
	}
	ext := strings.ToLower(filepath.Ext(meta.Name))
	if !rules.AllowedExtensions[ext] {
		return ErrUnsupportedType
	}
	kind := strings.SplitN(mediaType, "/", 2)[0]
	if audioOnlyExts[ext] && kind == "video" {
		return ErrExtensionMismatch
	}
	if videoOnlyExts[ext] && kind == "audio" {
		return ErrExtensionMismatch
	}
	return nil
}

// CheckBatch validates every file independently. Oversize batches are
// truncated before validation; one rejection never blocks the rest.
func CheckBatch(files []FileMeta, rules Rules) (accepted []FileMeta, rejected []Rejection) {
	if rules.MaxBatchSize > 0 && len(files) > rules.MaxBatchSize {
		files = files[:rules.MaxBatchSize]
	}

	for _, f := range files {
		if err := CheckFile(f, rules); err != nil {
			rejected = append(rejected, Rejection{Name: f.Name, Reason: err.Error()})
			continue
		}
		accepted = append(accepted, f)
	}
	return accepted, rejected
}
