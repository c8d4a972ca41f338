package engine

import (
	"strings"
	"testing"

	"github.com/psantana5/ytconvert/pkg/models"
)

func argValue(args []string, flag string) (string, bool) {
	for i := 0; i < len(args)-1; i++ {
		if args[i] == flag {
			return args[i+1], true
		}
	}
	return "", false
}

func hasArg(args []string, want string) bool {
	for _, a := range args {
		if a == want {
			return true
		}
	}
	return false
}

func TestResolveAudioWithoutQuality(t *testing.T) {
	e := NewYtDlpEngine(Options{})
	job := e.Resolve(models.ConversionRequest{Source: "https://youtu.be/abc12345678", Kind: models.OutputAudio}, "Song")

	if job.Selector != "bestaudio" {
		t.Errorf("Expected bestaudio selector, got %s", job.Selector)
	}
	if strings.Contains(job.Selector, "video") {
		t.Errorf("Expected audio-only selector, got %s", job.Selector)
	}
	if v, _ := argValue(job.Args, "--audio-format"); v != "mp3" {
		t.Errorf("Expected --audio-format mp3, got %q", v)
	}
	if !hasArg(job.Args, "--extract-audio") {
		t.Error("Expected --extract-audio")
	}
	if hasArg(job.Args, "--audio-quality") {
		t.Error("Expected no --audio-quality without a hint")
	}
}

func TestResolveAudioQualityPassthrough(t *testing.T) {
	e := NewYtDlpEngine(Options{})
	job := e.Resolve(models.ConversionRequest{Source: "x", Kind: models.OutputAudio, Quality: "999"}, "")

	if v, ok := argValue(job.Args, "--audio-quality"); !ok || v != "999" {
		t.Errorf("Expected verbatim --audio-quality 999, got %q", v)
	}
	if job.Selector != "bestaudio" {
		t.Errorf("Expected bestaudio selector, got %s", job.Selector)
	}
}

func TestResolveVideoSelectors(t *testing.T) {
	tests := []struct {
		quality string
		want    string
	}{
		{"", "bestvideo+bestaudio"},
		{"720", "bestvideo[height<=720]+bestaudio/best[height<=720]"},
		{"480", "bestvideo[height<=480]+bestaudio/best[height<=480]"},
	}

	e := NewYtDlpEngine(Options{})
	for _, tt := range tests {
		t.Run("quality="+tt.quality, func(t *testing.T) {
			job := e.Resolve(models.ConversionRequest{Source: "x", Kind: models.OutputVideo, Quality: tt.quality}, "t")
			if job.Selector != tt.want {
				t.Errorf("Expected %s, got %s", tt.want, job.Selector)
			}
			if v, _ := argValue(job.Args, "--format"); v != tt.want {
				t.Errorf("Expected --format %s, got %s", tt.want, v)
			}
			if hasArg(job.Args, "--extract-audio") {
				t.Error("Expected no audio extraction for video")
			}
		})
	}
}

func TestVideoQualityCapsBothTerms(t *testing.T) {
	sel := Selector(models.OutputVideo, "720")
	terms := strings.Split(sel, "/")
	if len(terms) != 2 {
		t.Fatalf("Expected primary and fallback terms, got %q", sel)
	}
	for _, term := range terms {
		if !strings.Contains(term, "[height<=720]") {
			t.Errorf("Expected term %q to cap height at 720", term)
		}
	}
}

func TestFixedArgsAlwaysPresent(t *testing.T) {
	e := NewYtDlpEngine(Options{})
	for _, kind := range []models.OutputKind{models.OutputAudio, models.OutputVideo} {
		job := e.Resolve(models.ConversionRequest{Source: "src", Kind: kind}, "t")
		if v, _ := argValue(job.Args, "--output"); v != "-" {
			t.Errorf("%s: expected --output -, got %q", kind, v)
		}
		for _, flag := range []string{"--no-warnings", "--no-call-home", "--no-check-certificate", "--prefer-free-formats"} {
			if !hasArg(job.Args, flag) {
				t.Errorf("%s: expected %s", kind, flag)
			}
		}

		var headers []string
		for i := 0; i < len(job.Args)-1; i++ {
			if job.Args[i] == "--add-header" {
				headers = append(headers, job.Args[i+1])
			}
		}
		if len(headers) != 2 || headers[0] != "referer:youtube.com" || !strings.HasPrefix(headers[1], "user-agent:Mozilla/5.0") {
			t.Errorf("%s: unexpected headers %v", kind, headers)
		}

		n := len(job.Args)
		if job.Args[n-2] != "--" || job.Args[n-1] != "src" {
			t.Errorf("%s: expected source after --, got %v", kind, job.Args[n-2:])
		}
	}
}

func TestResolveIsDeterministic(t *testing.T) {
	e := NewYtDlpEngine(Options{})
	req := models.ConversionRequest{Source: "x", Kind: models.OutputVideo, Quality: "1080"}
	a := e.Resolve(req, "Title")
	b := e.Resolve(req, "Title")
	if strings.Join(a.Args, " ") != strings.Join(b.Args, " ") {
		t.Errorf("Expected identical args, got %v and %v", a.Args, b.Args)
	}
}

func TestResolveNaming(t *testing.T) {
	e := NewYtDlpEngine(Options{})
	job := e.Resolve(models.ConversionRequest{Source: "x", Kind: models.OutputAudio}, "My Song!")
	if job.FileSafeName != "my-song" {
		t.Errorf("Expected my-song, got %s", job.FileSafeName)
	}
	job = e.Resolve(models.ConversionRequest{Source: "x", Kind: models.OutputAudio}, "")
	if job.DisplayTitle != models.DefaultTitle || job.FileSafeName != models.DefaultTitle {
		t.Errorf("Expected fallback naming, got %q/%q", job.DisplayTitle, job.FileSafeName)
	}
}

func TestCustomHeaders(t *testing.T) {
	e := NewYtDlpEngine(Options{Binary: "/opt/yt-dlp", Referer: "example.com", UserAgent: "agent/1"})
	if e.Binary() != "/opt/yt-dlp" {
		t.Errorf("Expected custom binary, got %s", e.Binary())
	}
	args := e.ProbeArgs("src")
	if !hasArg(args, "referer:example.com") || !hasArg(args, "user-agent:agent/1") {
		t.Errorf("Expected custom headers in probe args, got %v", args)
	}
	if !hasArg(args, "--dump-json") {
		t.Errorf("Expected --dump-json in probe args, got %v", args)
	}
}
