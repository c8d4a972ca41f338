package models

import (
	"errors"
	"testing"
)

func TestParseConversionRequest(t *testing.T) {
	tests := []struct {
		name      string
		body      ConversionRequestBody
		wantField string
		wantKind  OutputKind
	}{
		{name: "audio without quality", body: ConversionRequestBody{URL: "https://youtu.be/abc12345678", Format: "mp3"}, wantKind: OutputAudio},
		{name: "video with quality", body: ConversionRequestBody{URL: "https://youtu.be/abc12345678", Format: "mp4", Quality: "480"}, wantKind: OutputVideo},
		{name: "missing url", body: ConversionRequestBody{Format: "mp3"}, wantField: "url"},
		{name: "blank url", body: ConversionRequestBody{URL: "   ", Format: "mp3"}, wantField: "url"},
		{name: "unknown format", body: ConversionRequestBody{URL: "x", Format: "wav"}, wantField: "format"},
		{name: "format is case sensitive", body: ConversionRequestBody{URL: "x", Format: "MP3"}, wantField: "format"},
		{name: "missing format", body: ConversionRequestBody{URL: "x"}, wantField: "format"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := ParseConversionRequest(tt.body)
			if tt.wantField != "" {
				var verr *ValidationError
				if !errors.As(err, &verr) {
					t.Fatalf("Expected ValidationError, got %v", err)
				}
				if verr.Field != tt.wantField {
					t.Errorf("Expected field %s, got %s", tt.wantField, verr.Field)
				}
				return
			}
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if req.Kind != tt.wantKind {
				t.Errorf("Expected kind %s, got %s", tt.wantKind, req.Kind)
			}
		})
	}
}

func TestEmptyQualityIsAbsent(t *testing.T) {
	req, err := ParseConversionRequest(ConversionRequestBody{URL: "x", Format: "mp4", Quality: ""})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if req.HasQuality() {
		t.Error("Expected empty quality to count as absent")
	}
}

func TestOutputKindFraming(t *testing.T) {
	if OutputAudio.ContentType() != "audio/mpeg" || OutputAudio.Extension() != "mp3" {
		t.Errorf("Unexpected audio framing: %s %s", OutputAudio.ContentType(), OutputAudio.Extension())
	}
	if OutputVideo.ContentType() != "video/mp4" || OutputVideo.Extension() != "mp4" {
		t.Errorf("Unexpected video framing: %s %s", OutputVideo.ContentType(), OutputVideo.Extension())
	}
}

func TestSanitizeFileName(t *testing.T) {
	tests := []struct {
		title string
		want  string
	}{
		{"Never Gonna Give You Up", "never-gonna-give-you-up"},
		{"  Artist - Song (Official Video)!  ", "artist---song-official-video"},
		{"tabs\tand\nnewlines", "tabs-and-newlines"},
		{"snake_case_title", "snake_case_title"},
		{"日本語のタイトル", DefaultTitle},
		{"", DefaultTitle},
		{"?!*", DefaultTitle},
	}
	for _, tt := range tests {
		got := SanitizeFileName(tt.title)
		if got != tt.want {
			t.Errorf("SanitizeFileName(%q): expected %q, got %q", tt.title, tt.want, got)
		}
		if again := SanitizeFileName(got); again != got {
			t.Errorf("Expected sanitize to be idempotent: %q -> %q", got, again)
		}
	}
}

func TestResolvedJobFileName(t *testing.T) {
	job := ResolvedJob{FileSafeName: "clip"}
	if got := job.FileName(OutputVideo); got != "clip.mp4" {
		t.Errorf("Expected clip.mp4, got %s", got)
	}
}

func TestQualityOptions(t *testing.T) {
	if !IsKnownQuality(OutputVideo, "720") {
		t.Error("Expected 720 to be a known video quality")
	}
	if IsKnownQuality(OutputAudio, "720") {
		t.Error("Expected 720 not to be a known audio quality")
	}
	opts := QualityOptions(OutputAudio)
	opts[0].Value = "mutated"
	if QualityOptions(OutputAudio)[0].Value != "128" {
		t.Error("Expected QualityOptions to return a copy")
	}
}

func TestSessionTransitions(t *testing.T) {
	valid := [][2]SessionState{
		{SessionSpawned, SessionStreaming},
		{SessionSpawned, SessionFailed},
		{SessionSpawned, SessionCompleted},
		{SessionStreaming, SessionCompleted},
		{SessionStreaming, SessionFailed},
	}
	for _, tr := range valid {
		if err := ValidateSessionTransition(tr[0], tr[1]); err != nil {
			t.Errorf("Expected %s -> %s to be valid: %v", tr[0], tr[1], err)
		}
	}

	invalid := [][2]SessionState{
		{SessionCompleted, SessionFailed},
		{SessionFailed, SessionStreaming},
		{SessionStreaming, SessionSpawned},
	}
	for _, tr := range invalid {
		if err := ValidateSessionTransition(tr[0], tr[1]); err == nil {
			t.Errorf("Expected %s -> %s to be rejected", tr[0], tr[1])
		}
	}

	if !SessionFailed.IsTerminal() || SessionStreaming.IsTerminal() {
		t.Error("Unexpected IsTerminal result")
	}
}
