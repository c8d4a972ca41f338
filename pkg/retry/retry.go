package retry

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Config holds retry configuration
type Config struct {
	MaxRetries     int           // attempts after the first
	InitialBackoff time.Duration // wait before the first retry
	MaxBackoff     time.Duration // cap on any single wait
	Multiplier     float64       // growth per retry
}

// DefaultConfig returns defaults suited to short metadata lookups
func DefaultConfig() Config {
	return Config{
		MaxRetries:     1,
		InitialBackoff: 500 * time.Millisecond,
		MaxBackoff:     5 * time.Second,
		Multiplier:     2.0,
	}
}

// Backoff returns the wait before retry n (1-based)
func (c Config) Backoff(n int) time.Duration {
	if n < 1 || c.InitialBackoff <= 0 {
		return 0
	}
	mult := c.Multiplier
	if mult < 1 {
		mult = 1
	}
	d := float64(c.InitialBackoff)
	for i := 1; i < n; i++ {
		d *= mult
		if c.MaxBackoff > 0 && d >= float64(c.MaxBackoff) {
			return c.MaxBackoff
		}
	}
	if c.MaxBackoff > 0 && time.Duration(d) > c.MaxBackoff {
		return c.MaxBackoff
	}
	return time.Duration(d)
}

// Do runs fn until it succeeds or the retries are used up
func Do(ctx context.Context, config Config, fn func() error) error {
	return DoIf(ctx, config, func(error) bool { return true }, fn)
}

// DoIf is Do, but returns the first error shouldRetry rejects unchanged
func DoIf(ctx context.Context, config Config, shouldRetry func(error) bool, fn func() error) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("retry cancelled: %w", err)
	}

	var timer *time.Timer
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for n := 0; ; n++ {
		err := fn()
		switch {
		case err == nil:
			return nil
		case !shouldRetry(err):
			return err
		case n >= config.MaxRetries:
			return fmt.Errorf("max retries (%d) exceeded: %w", config.MaxRetries, err)
		}

		wait := config.Backoff(n + 1)
		if timer == nil {
			timer = time.NewTimer(wait)
		} else {
			timer.Reset(wait)
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("retry cancelled after %d attempts: %w", n+1, ctx.Err())
		case <-timer.C:
		}
	}
}

// permanent yt-dlp failures; retrying them only burns the probe budget
var permanentMarkers = []string{
	"video unavailable",
	"private video",
	"sign in to confirm",
	"unsupported url",
	"is not a valid url",
	"http error 404",
	"http error 403",
}

// transient network and upstream failures as yt-dlp prints them
var transientMarkers = []string{
	"connection refused",
	"connection reset",
	"timed out",
	"timeout",
	"temporary failure in name resolution",
	"http error 429",
	"http error 5",
	"unable to download webpage",
	"broken pipe",
}

// IsRetryable reports whether err looks transient. yt-dlp reports both
// kinds only through stderr text, which ends up in the error message.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, m := range permanentMarkers {
		if strings.Contains(msg, m) {
			return false
		}
	}
	for _, m := range transientMarkers {
		if strings.Contains(msg, m) {
			return true
		}
	}
	return false
}
