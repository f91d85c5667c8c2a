package transcribe

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Request describes one transcription run.
type Request struct {
	StoragePath string
	Language    string
	Granularity string
}

// Segment is one timed span of transcribed speech.
type Segment struct {
	Index int     `json:"index"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

// Word carries optional word-level timing.
type Word struct {
	Word  string  `json:"word"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

// Result holds every content representation produced for one run.
type Result struct {
	Text             string
	SRT              string
	VTT              string
	Segments         []Segment
	Words            []Word
	DetectedLanguage string
	DurationSeconds  float64
}

// ProgressFunc receives fractional progress in [0,100] plus the current step.
type ProgressFunc func(pct int, step string)

// Engine performs the actual transcription. The real implementation wraps
// an external model; payload formats are opaque to the rest of the system.
type Engine interface {
	Transcribe(ctx context.Context, req Request, onProgress ProgressFunc) (*Result, error)
}

// StubEngine produces deterministic output without touching audio. It keeps
// the pipeline runnable in development and under test.
type StubEngine struct {
	StepDelay time.Duration
}

func (e *StubEngine) Transcribe(ctx context.Context, req Request, onProgress ProgressFunc) (*Result, error) {
	steps := []struct {
		pct  int
		name string
	}{
		{10, "downloading"},
		{35, "decoding"},
		{80, "transcribing"},
		{95, "formatting"},
	}

	for _, step := range steps {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(e.StepDelay):
		}
		if onProgress != nil {
			onProgress(step.pct, step.name)
		}
	}

	lang := req.Language
	if lang == "" {
		lang = "en"
	}

	text := fmt.Sprintf("stub transcript for %s", req.StoragePath)
	segments := []Segment{{Index: 0, Start: 0, End: 2.5, Text: text}}

	result := &Result{
		Text:             text,
		SRT:              toSRT(segments),
		VTT:              toVTT(segments),
		Segments:         segments,
		DetectedLanguage: lang,
		DurationSeconds:  2.5,
	}

	if req.Granularity == "word" {
		cursor := 0.0
		for _, w := range strings.Fields(text) {
			result.Words = append(result.Words, Word{Word: w, Start: cursor, End: cursor + 0.4})
			cursor += 0.5
		}
	}

	return result, nil
}

func toSRT(segments []Segment) string {
	var b strings.Builder
	for _, s := range segments {
		fmt.Fprintf(&b, "%d\n%s --> %s\n%s\n\n",
			s.Index+1, srtTime(s.Start), srtTime(s.End), s.Text)
	}
	return b.String()
}

func toVTT(segments []Segment) string {
	var b strings.Builder
	b.WriteString("WEBVTT\n\n")
	for _, s := range segments {
		fmt.Fprintf(&b, "%s --> %s\n%s\n\n",
			vttTime(s.Start), vttTime(s.End), s.Text)
	}
	return b.String()
}

func srtTime(seconds float64) string {
	d := time.Duration(seconds * float64(time.Second))
	return fmt.Sprintf("%02d:%02d:%02d,%03d",
		int(d.Hours()), int(d.Minutes())%60, int(d.Seconds())%60, int(d.Milliseconds())%1000)
}

func vttTime(seconds float64) string {
	d := time.Duration(seconds * float64(time.Second))
	return fmt.Sprintf("%02d:%02d:%02d.%03d",
		int(d.Hours()), int(d.Minutes())%60, int(d.Seconds())%60, int(d.Milliseconds())%1000)
}
