package probe

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/psantana5/ytconvert/pkg/engine"
	"github.com/psantana5/ytconvert/pkg/logging"
	"github.com/psantana5/ytconvert/pkg/models"
	"github.com/psantana5/ytconvert/pkg/retry"
	"github.com/psantana5/ytconvert/pkg/tracing"
	"github.com/psantana5/ytconvert/pkg/wrapper"
)

// maxMetadataBytes caps the --dump-json document we are willing to buffer
const maxMetadataBytes = 16 << 20

// Info is the subset of yt-dlp's metadata document we use
type Info struct {
	ID         string   `json:"id"`
	Title      string   `json:"title"`
	Duration   float64  `json:"duration"`
	Uploader   string   `json:"uploader"`
	Thumbnail  string   `json:"thumbnail"`
	WebpageURL string   `json:"webpage_url"`
	Formats    []Format `json:"formats"`
}

// Format is one downloadable rendition
type Format struct {
	FormatID string  `json:"format_id"`
	Ext      string  `json:"ext"`
	Height   int     `json:"height"`
	ABR      float64 `json:"abr"`
	VCodec   string  `json:"vcodec"`
	ACodec   string  `json:"acodec"`
	Filesize int64   `json:"filesize"`
}

// AudioOnly reports whether the format carries no video
func (f Format) AudioOnly() bool {
	return f.VCodec == "none" && f.ACodec != "" && f.ACodec != "none"
}

// MaxHeight returns the tallest video rendition, or 0
func (i *Info) MaxHeight() int {
	max := 0
	for _, f := range i.Formats {
		if f.Height > max {
			max = f.Height
		}
	}
	return max
}

// AudioFormatCount returns how many audio-only renditions are listed
func (i *Info) AudioFormatCount() int {
	n := 0
	for _, f := range i.Formats {
		if f.AudioOnly() {
			n++
		}
	}
	return n
}

// Error is a failed metadata lookup
type Error struct {
	Source string
	Stderr string
	Err    error
}

func (e *Error) Error() string {
	if e.Stderr != "" {
		return fmt.Sprintf("probe %s: %v: %s", e.Source, e.Err, e.Stderr)
	}
	return fmt.Sprintf("probe %s: %v", e.Source, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Kind returns the error taxonomy kind
func (e *Error) Kind() models.ErrorKind {
	return models.KindProbeFailure
}

// Options configures a Prober
type Options struct {
	Enabled bool
	Timeout time.Duration
	Retry   retry.Config
	Logger  *logging.Logger
}

// DefaultOptions returns an enabled prober with a 15s budget and one retry
func DefaultOptions() Options {
	return Options{
		Enabled: true,
		Timeout: 15 * time.Second,
		Retry:   retry.DefaultConfig(),
	}
}

// Prober looks up media metadata with a one-shot yt-dlp invocation
type Prober struct {
	spawner wrapper.Spawner
	engine  engine.Engine
	opts    Options
	logger  *logging.Logger
	tracer  trace.Tracer
}

// New creates a prober
func New(spawner wrapper.Spawner, eng engine.Engine, opts Options) *Prober {
	logger := opts.Logger
	if logger == nil {
		logger = logging.Nop()
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultOptions().Timeout
	}
	return &Prober{
		spawner: spawner,
		engine:  eng,
		opts:    opts,
		logger:  logger.WithField("component", "probe"),
		tracer:  otel.Tracer("github.com/psantana5/ytconvert/pkg/probe"),
	}
}

// Enabled reports whether lookups are performed at all
func (p *Prober) Enabled() bool {
	return p.opts.Enabled
}

// Probe fetches metadata for src. The whole call, retries included, is
// bounded by the configured timeout.
func (p *Prober) Probe(ctx context.Context, src string) (*Info, error) {
	ctx, cancel := context.WithTimeout(ctx, p.opts.Timeout)
	defer cancel()

	ctx, span := p.tracer.Start(ctx, "probe", trace.WithAttributes(attribute.String("probe.source", src)))
	defer span.End()

	var info *Info
	err := retry.DoIf(ctx, p.opts.Retry, retry.IsRetryable, func() error {
		var err error
		info, err = p.once(ctx, src)
		if err != nil && retry.IsRetryable(err) {
			p.logger.Debug("probe attempt failed", logging.Fields{"source": src, "error": err})
		}
		return err
	})
	if err != nil {
		tracing.SetError(ctx, err)
		var perr *Error
		if !errors.As(err, &perr) {
			err = &Error{Source: src, Err: err}
		}
		return nil, err
	}

	span.SetAttributes(attribute.String("probe.title", info.Title), attribute.Int("probe.formats", len(info.Formats)))
	return info, nil
}

// Title returns the media title, or the generic fallback when the lookup is
// disabled, fails, or yields an empty title. It never fails.
func (p *Prober) Title(ctx context.Context, src string) string {
	if !p.opts.Enabled {
		return models.DefaultTitle
	}

	info, err := p.Probe(ctx, src)
	if err != nil {
		p.logger.Warn("metadata lookup failed, using fallback title", logging.Fields{
			"source": src,
			"error":  err,
		})
		return models.DefaultTitle
	}

	title := strings.TrimSpace(info.Title)
	if title == "" {
		return models.DefaultTitle
	}
	return title
}

func (p *Prober) once(ctx context.Context, src string) (*Info, error) {
	proc, err := p.spawner.Spawn(ctx, p.engine.Binary(), p.engine.ProbeArgs(src))
	if err != nil {
		return nil, &Error{Source: src, Err: err}
	}

	stderrCh := make(chan string, 1)
	go func() {
		stderrCh <- lastErrorLine(proc.Stderr())
	}()

	out, readErr := io.ReadAll(io.LimitReader(proc.Stdout(), maxMetadataBytes))
	if readErr == nil {
		// drain anything past the cap so the process can exit
		io.Copy(io.Discard, proc.Stdout())
	}
	stderr := <-stderrCh
	waitErr := proc.Wait()

	if readErr != nil {
		return nil, &Error{Source: src, Stderr: stderr, Err: readErr}
	}
	if waitErr != nil {
		return nil, &Error{Source: src, Stderr: stderr, Err: waitErr}
	}

	var info Info
	if err := json.Unmarshal(out, &info); err != nil {
		return nil, &Error{Source: src, Err: fmt.Errorf("parse metadata: %w", err)}
	}
	return &info, nil
}

// lastErrorLine drains r and returns the last "ERROR:" line, else the last line
func lastErrorLine(r io.Reader) string {
	if r == nil {
		return ""
	}
	var last, lastErr string
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	scanner.Split(wrapper.ScanLinesOrCR)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		last = line
		if strings.HasPrefix(line, "ERROR:") {
			lastErr = line
		}
	}
	io.Copy(io.Discard, r)
	if lastErr != "" {
		return lastErr
	}
	return last
}
