package validation

import (
	"errors"
	"testing"
)

func testRules() Rules {
	return DefaultRules(100*1024*1024, 5)
}

func TestCheckBatch_MixedFiles(t *testing.T) {
	files := []FileMeta{
		{Name: "a.mp3", Size: 1_000_000, MediaType: "audio/mpeg"},
		{Name: "b.exe", Size: 10, MediaType: "application/octet-stream"},
	}

	accepted, rejected := CheckBatch(files, testRules())

	if len(accepted) != 1 || accepted[0].Name != "a.mp3" {
		t.Errorf("Expected accepted=[a.mp3], got %v", accepted)
	}
	if len(rejected) != 1 {
		t.Fatalf("Expected 1 rejection, got %d", len(rejected))
	}
	if rejected[0].Name != "b.exe" || rejected[0].Reason != "unsupported type" {
		t.Errorf("Expected b.exe rejected with 'unsupported type', got %+v", rejected[0])
	}
}

func TestCheckBatch_TruncatesOversizeBatch(t *testing.T) {
	var files []FileMeta
	for i := 0; i < 8; i++ {
		files = append(files, FileMeta{Name: "f.mp3", Size: 100, MediaType: "audio/mpeg"})
	}

	accepted, rejected := CheckBatch(files, testRules())

	if len(accepted)+len(rejected) != 5 {
		t.Errorf("Expected batch truncated to 5, got %d accepted + %d rejected",
			len(accepted), len(rejected))
	}
}

func TestCheckBatch_OneRejectionNeverBlocksSiblings(t *testing.T) {
	files := []FileMeta{
		{Name: "a.mp3", Size: 100, MediaType: "audio/mpeg"},
		{Name: "huge.wav", Size: 200 * 1024 * 1024, MediaType: "audio/wav"},
		{Name: "c.flac", Size: 100, MediaType: "audio/flac"},
	}

	accepted, rejected := CheckBatch(files, testRules())

	if len(accepted) != 2 {
		t.Errorf("Expected 2 accepted, got %d", len(accepted))
	}
	if len(rejected) != 1 || rejected[0].Name != "huge.wav" {
		t.Errorf("Expected only huge.wav rejected, got %v", rejected)
	}
}

func TestCheckFile(t *testing.T) {
	tests := []struct {
		name    string
		meta    FileMeta
		wantErr error
	}{
		{
			name: "valid audio",
			meta: FileMeta{Name: "talk.mp3", Size: 1024, MediaType: "audio/mpeg"},
		},
		{
			name: "valid video",
			meta: FileMeta{Name: "talk.mp4", Size: 1024, MediaType: "video/mp4"},
		},
		{
			name:    "empty file",
			meta:    FileMeta{Name: "talk.mp3", Size: 0, MediaType: "audio/mpeg"},
			wantErr: ErrEmptyFile,
		},
		{
			name:    "too large",
			meta:    FileMeta{Name: "talk.mp3", Size: 101 * 1024 * 1024, MediaType: "audio/mpeg"},
			wantErr: ErrFileTooLarge,
		},
		{
			name:    "bad media type",
			meta:    FileMeta{Name: "talk.mp3", Size: 1024, MediaType: "text/plain"},
			wantErr: ErrUnsupportedType,
		},
		{
			name:    "bad extension",
			meta:    FileMeta{Name: "talk.txt", Size: 1024, MediaType: "audio/mpeg"},
			wantErr: ErrUnsupportedType,
		},
		{
			name:    "audio extension with video type",
			meta:    FileMeta{Name: "talk.mp3", Size: 1024, MediaType: "video/mp4"},
			wantErr: ErrExtensionMismatch,
		},
		{
			name:    "video extension with audio type",
			meta:    FileMeta{Name: "clip.mov", Size: 1024, MediaType: "audio/mpeg"},
			wantErr: ErrExtensionMismatch,
		},
		{
			name: "container extension accepts audio",
			meta: FileMeta{Name: "talk.mp4", Size: 1024, MediaType: "audio/mp4"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := CheckFile(tt.meta, testRules())
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("CheckFile() = %v, want %v", err, tt.wantErr)
			}
		})
	}
}
