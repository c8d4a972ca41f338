package probe_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/psantana5/ytconvert/pkg/engine"
	"github.com/psantana5/ytconvert/pkg/models"
	"github.com/psantana5/ytconvert/pkg/probe"
	"github.com/psantana5/ytconvert/pkg/retry"
	"github.com/psantana5/ytconvert/pkg/wrapper/wrappertest"
)

const sampleJSON = `{
  "id": "dQw4w9WgXcQ",
  "title": "Never Gonna Give You Up",
  "duration": 212,
  "uploader": "Rick Astley",
  "thumbnail": "https://i.ytimg.com/vi/dQw4w9WgXcQ/maxresdefault.jpg",
  "formats": [
    {"format_id": "140", "ext": "m4a", "vcodec": "none", "acodec": "mp4a.40.2", "abr": 129.5},
    {"format_id": "136", "ext": "mp4", "height": 720, "vcodec": "avc1", "acodec": "none"},
    {"format_id": "137", "ext": "mp4", "height": 1080, "vcodec": "avc1", "acodec": "none"}
  ]
}`

func newProber(spawner *wrappertest.FakeSpawner, mutate func(*probe.Options)) *probe.Prober {
	opts := probe.DefaultOptions()
	opts.Timeout = 2 * time.Second
	opts.Retry = retry.Config{MaxRetries: 2, InitialBackoff: time.Millisecond, MaxBackoff: time.Millisecond, Multiplier: 1}
	if mutate != nil {
		mutate(&opts)
	}
	return probe.New(spawner, engine.NewYtDlpEngine(engine.Options{}), opts)
}

func TestProbeParsesMetadata(t *testing.T) {
	spawner := wrappertest.NewFakeSpawner(wrappertest.Script{Stdout: [][]byte{[]byte(sampleJSON)}})
	p := newProber(spawner, nil)

	info, err := p.Probe(context.Background(), "https://youtu.be/dQw4w9WgXcQ")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if info.Title != "Never Gonna Give You Up" {
		t.Errorf("Expected title, got %q", info.Title)
	}
	if info.Duration != 212 || len(info.Formats) != 3 {
		t.Errorf("Unexpected info: %+v", info)
	}
	if info.MaxHeight() != 1080 {
		t.Errorf("Expected max height 1080, got %d", info.MaxHeight())
	}
	if info.AudioFormatCount() != 1 {
		t.Errorf("Expected 1 audio format, got %d", info.AudioFormatCount())
	}

	calls := spawner.Calls()
	if len(calls) != 1 || calls[0].Name != "yt-dlp" {
		t.Fatalf("Expected one yt-dlp call, got %+v", calls)
	}
	args := calls[0].Args
	if args[0] != "--dump-json" || args[len(args)-1] != "https://youtu.be/dQw4w9WgXcQ" {
		t.Errorf("Unexpected probe args: %v", args)
	}
}

func TestTitleFallbackOnFailure(t *testing.T) {
	spawner := wrappertest.NewFakeSpawner(wrappertest.Script{
		Stderr:   "ERROR: [youtube] abc: Video unavailable",
		ExitCode: 1,
	})
	p := newProber(spawner, nil)

	if got := p.Title(context.Background(), "https://youtu.be/abc"); got != models.DefaultTitle {
		t.Errorf("Expected fallback title, got %q", got)
	}
	if spawner.Spawns() != 1 {
		t.Errorf("Expected no retries for a permanent error, got %d spawns", spawner.Spawns())
	}
}

func TestProbeErrorCarriesStderr(t *testing.T) {
	spawner := wrappertest.NewFakeSpawner(wrappertest.Script{
		Stderr:   "[youtube] abc: Downloading webpage\nERROR: [youtube] abc: Private video\n",
		ExitCode: 1,
	})
	p := newProber(spawner, nil)

	_, err := p.Probe(context.Background(), "abc")
	var perr *probe.Error
	if !errors.As(err, &perr) {
		t.Fatalf("Expected probe.Error, got %v", err)
	}
	if perr.Stderr != "ERROR: [youtube] abc: Private video" {
		t.Errorf("Unexpected stderr: %q", perr.Stderr)
	}
	if perr.Kind() != models.KindProbeFailure {
		t.Errorf("Expected probe failure kind, got %s", perr.Kind())
	}
}

func TestProbeRetriesTransientFailure(t *testing.T) {
	spawner := wrappertest.NewFakeSpawner(wrappertest.Script{
		Stderr:   "ERROR: Unable to download webpage: HTTP Error 429: Too Many Requests",
		ExitCode: 1,
	})
	p := newProber(spawner, nil)

	if _, err := p.Probe(context.Background(), "abc"); err == nil {
		t.Fatal("Expected error")
	}
	if spawner.Spawns() != 3 {
		t.Errorf("Expected 3 attempts, got %d", spawner.Spawns())
	}
}

func TestTitleFallbackOnEmptyTitle(t *testing.T) {
	spawner := wrappertest.NewFakeSpawner(wrappertest.Script{Stdout: [][]byte{[]byte(`{"id":"x","title":"   "}`)}})
	p := newProber(spawner, nil)

	if got := p.Title(context.Background(), "x"); got != models.DefaultTitle {
		t.Errorf("Expected fallback title, got %q", got)
	}
}

func TestTitleFallbackOnGarbage(t *testing.T) {
	spawner := wrappertest.NewFakeSpawner(wrappertest.Script{Stdout: [][]byte{[]byte("not json")}})
	p := newProber(spawner, nil)

	if got := p.Title(context.Background(), "x"); got != models.DefaultTitle {
		t.Errorf("Expected fallback title, got %q", got)
	}
}

func TestTitleDisabledNeverSpawns(t *testing.T) {
	spawner := wrappertest.NewFakeSpawner(wrappertest.Script{Stdout: [][]byte{[]byte(sampleJSON)}})
	p := newProber(spawner, func(o *probe.Options) { o.Enabled = false })

	if got := p.Title(context.Background(), "x"); got != models.DefaultTitle {
		t.Errorf("Expected fallback title, got %q", got)
	}
	if spawner.Spawns() != 0 {
		t.Errorf("Expected no spawns when disabled, got %d", spawner.Spawns())
	}
}

func TestProbeTimeout(t *testing.T) {
	spawner := wrappertest.NewFakeSpawner(wrappertest.Script{Block: true})
	p := newProber(spawner, func(o *probe.Options) {
		o.Timeout = 50 * time.Millisecond
		o.Retry.MaxRetries = 0
	})

	start := time.Now()
	got := p.Title(context.Background(), "x")
	if got != models.DefaultTitle {
		t.Errorf("Expected fallback title, got %q", got)
	}
	if time.Since(start) > time.Second {
		t.Errorf("Expected probe bounded by timeout, took %v", time.Since(start))
	}
	if !spawner.Processes()[0].Killed() {
		t.Error("Expected stalled probe process to be killed")
	}
}
