package engine

import (
	"github.com/psantana5/ytconvert/pkg/models"
)

// Engine turns a validated request into the external extractor's invocation
type Engine interface {
	// Name returns the engine name
	Name() string

	// Binary returns the executable to spawn
	Binary() string

	// Resolve builds the selector and full argument list. It cannot fail.
	Resolve(req models.ConversionRequest, title string) models.ResolvedJob

	// ProbeArgs returns the arguments for a metadata-only invocation
	ProbeArgs(source string) []string
}

// Options configures the yt-dlp engine
type Options struct {
	Binary    string
	Referer   string
	UserAgent string
}

const (
	DefaultBinary    = "yt-dlp"
	DefaultReferer   = "youtube.com"
	DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36"
)

// DefaultOptions returns the header values the upstream currently accepts
func DefaultOptions() Options {
	return Options{
		Binary:    DefaultBinary,
		Referer:   DefaultReferer,
		UserAgent: DefaultUserAgent,
	}
}
