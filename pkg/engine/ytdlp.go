package engine

import (
	"fmt"

	"github.com/psantana5/ytconvert/pkg/models"
)

const (
	selectorBestAudio      = "bestaudio"
	selectorBestVideoAudio = "bestvideo+bestaudio"
)

// YtDlpEngine implements Engine for yt-dlp
type YtDlpEngine struct {
	opts Options
}

// NewYtDlpEngine creates a yt-dlp engine, filling unset options with defaults
func NewYtDlpEngine(opts Options) *YtDlpEngine {
	def := DefaultOptions()
	if opts.Binary == "" {
		opts.Binary = def.Binary
	}
	if opts.Referer == "" {
		opts.Referer = def.Referer
	}
	if opts.UserAgent == "" {
		opts.UserAgent = def.UserAgent
	}
	return &YtDlpEngine{opts: opts}
}

// Name returns the engine name
func (e *YtDlpEngine) Name() string {
	return "yt-dlp"
}

// Binary returns the executable to spawn
func (e *YtDlpEngine) Binary() string {
	return e.opts.Binary
}

// Selector returns the format-selection expression for kind and optional quality
func Selector(kind models.OutputKind, quality string) string {
	if kind.IsAudio() {
		return selectorBestAudio
	}
	if quality == "" {
		return selectorBestVideoAudio
	}
	return fmt.Sprintf("bestvideo[height<=%s]+bestaudio/best[height<=%s]", quality, quality)
}

// Resolve generates the yt-dlp command arguments
func (e *YtDlpEngine) Resolve(req models.ConversionRequest, title string) models.ResolvedJob {
	selector := Selector(req.Kind, req.Quality)

	args := []string{
		"--format", selector,
		"--output", "-",
		"--no-warnings",
		"--no-call-home",
		"--no-check-certificate",
		"--prefer-free-formats",
		"--add-header", "referer:" + e.opts.Referer,
		"--add-header", "user-agent:" + e.opts.UserAgent,
	}

	if req.Kind.IsAudio() {
		args = append(args, "--extract-audio", "--audio-format", "mp3")
		if req.HasQuality() {
			// passed through verbatim; range checks belong to yt-dlp
			args = append(args, "--audio-quality", req.Quality)
		}
	}

	args = append(args, "--", req.Source)

	if title == "" {
		title = models.DefaultTitle
	}
	return models.ResolvedJob{
		DisplayTitle: title,
		FileSafeName: models.SanitizeFileName(title),
		Selector:     selector,
		Args:         args,
	}
}

// ProbeArgs returns the arguments for a metadata-only invocation
func (e *YtDlpEngine) ProbeArgs(source string) []string {
	return []string{
		"--dump-json",
		"--no-warnings",
		"--no-playlist",
		"--skip-download",
		"--add-header", "referer:" + e.opts.Referer,
		"--add-header", "user-agent:" + e.opts.UserAgent,
		"--", source,
	}
}
