package models

import (
	"fmt"
	"strings"
	"unicode"
)

// OutputKind is the requested output container
type OutputKind string

const (
	OutputAudio OutputKind = "mp3"
	OutputVideo OutputKind = "mp4"
)

// DefaultTitle is used whenever a human-readable title is unavailable
const DefaultTitle = "youtube-download"

// ParseOutputKind accepts exactly "mp3" or "mp4" (case-sensitive)
func ParseOutputKind(s string) (OutputKind, bool) {
	switch OutputKind(s) {
	case OutputAudio:
		return OutputAudio, true
	case OutputVideo:
		return OutputVideo, true
	}
	return "", false
}

// IsAudio reports whether the kind is audio-only
func (k OutputKind) IsAudio() bool {
	return k == OutputAudio
}

// ContentType returns the response MIME type for the kind
func (k OutputKind) ContentType() string {
	if k == OutputAudio {
		return "audio/mpeg"
	}
	return "video/mp4"
}

// Extension returns the file extension without the dot
func (k OutputKind) Extension() string {
	return string(k)
}

// QualityOption is one entry of the quality picker
type QualityOption struct {
	Value string `json:"value"`
	Label string `json:"label"`
}

var qualityOptions = map[OutputKind][]QualityOption{
	OutputAudio: {
		{Value: "128", Label: "128 kbps"},
		{Value: "192", Label: "192 kbps"},
		{Value: "320", Label: "320 kbps"},
	},
	OutputVideo: {
		{Value: "480", Label: "480p"},
		{Value: "720", Label: "720p (HD)"},
		{Value: "1080", Label: "1080p (FHD)"},
	},
}

// QualityOptions returns the quality values offered for a kind
func QualityOptions(k OutputKind) []QualityOption {
	opts := qualityOptions[k]
	out := make([]QualityOption, len(opts))
	copy(out, opts)
	return out
}

// IsKnownQuality reports whether q is one of the offered options for k
func IsKnownQuality(k OutputKind, q string) bool {
	for _, opt := range qualityOptions[k] {
		if opt.Value == q {
			return true
		}
	}
	return false
}

// ConversionRequestBody is the JSON body of POST /api/convert
type ConversionRequestBody struct {
	URL     string `json:"url"`
	Format  string `json:"format"`
	Quality string `json:"quality,omitempty"`
}

// ConversionRequest is a validated conversion request
type ConversionRequest struct {
	Source  string
	Kind    OutputKind
	Quality string // empty when absent
}

// HasQuality reports whether a quality hint was supplied
func (r ConversionRequest) HasQuality() bool {
	return r.Quality != ""
}

// ParseConversionRequest validates the raw body. Quality is optional and opaque here.
func ParseConversionRequest(body ConversionRequestBody) (ConversionRequest, error) {
	source := strings.TrimSpace(body.URL)
	if source == "" {
		return ConversionRequest{}, &ValidationError{Field: "url", Reason: "is required"}
	}

	kind, ok := ParseOutputKind(body.Format)
	if !ok {
		if body.Format == "" {
			return ConversionRequest{}, &ValidationError{Field: "format", Reason: "is required"}
		}
		return ConversionRequest{}, &ValidationError{
			Field:  "format",
			Reason: fmt.Sprintf("must be one of %s, %s (got %q)", OutputAudio, OutputVideo, body.Format),
		}
	}

	return ConversionRequest{
		Source:  source,
		Kind:    kind,
		Quality: strings.TrimSpace(body.Quality),
	}, nil
}

// ResolvedJob is everything needed to run one conversion. Built once per request.
type ResolvedJob struct {
	DisplayTitle string
	FileSafeName string
	Selector     string
	Args         []string
}

// FileName returns the attachment file name including extension
func (j ResolvedJob) FileName(k OutputKind) string {
	return j.FileSafeName + "." + k.Extension()
}

// SanitizeFileName reduces a title to [a-z0-9_-]. Whitespace runs become a single
// hyphen. The result is stable under repeated application.
func SanitizeFileName(title string) string {
	var kept strings.Builder
	for _, r := range title {
		switch {
		case r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)):
			kept.WriteRune(r)
		case r == '_' || r == '-':
			kept.WriteRune(r)
		case unicode.IsSpace(r):
			kept.WriteRune(' ')
		}
	}

	name := strings.ToLower(strings.Join(strings.Fields(kept.String()), "-"))
	if name == "" {
		return DefaultTitle
	}
	return name
}
