package processor

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/cwygoda/ytaudio/internal/domain"
)

func TestYTDLP_Name(t *testing.T) {
	y := NewYTDLP("", nil)
	if y.Name() != "yt-dlp" {
		t.Errorf("Name() = %q, want %q", y.Name(), "yt-dlp")
	}
}

func TestYTDLP_Match(t *testing.T) {
	y := NewYTDLP("", nil)

	tests := []struct {
		url  string
		want bool
	}{
		{"https://youtube.com/watch?v=abc123", true},
		{"http://youtu.be/abc123", true},
		{"https://vimeo.com/123456", true},
		{"ftp://example.com/video", false},
		{"youtube.com/watch?v=abc", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			if got := y.Match(tt.url); got != tt.want {
				t.Errorf("Match(%q) = %v, want %v", tt.url, got, tt.want)
			}
		})
	}
}

func TestYTDLP_Args(t *testing.T) {
	args := NewYTDLP("", nil).args("https://youtu.be/abc", "/tmp/work")

	for _, want := range []string{"--print-json", "--no-playlist", "--newline", "bestaudio/best", "download:%(progress)j"} {
		if !slices.Contains(args, want) {
			t.Errorf("args missing %q: %v", want, args)
		}
	}
	if got := args[len(args)-1]; got != "https://youtu.be/abc" {
		t.Errorf("last arg = %q, want url", got)
	}
	i := slices.Index(args, "--output")
	if i < 0 || args[i+1] != filepath.Join("/tmp/work", "%(id)s.%(ext)s") {
		t.Errorf("output template = %v", args)
	}
}

func TestYTDLP_Fetch(t *testing.T) {
	bin := writeScript(t, `
echo '{"status": "downloading", "downloaded_bytes": 50, "total_bytes": 100}'
echo 'not json'
echo '{"status": "downloading", "downloaded_bytes": 100, "total_bytes": null, "total_bytes_estimate": 100.0}'
echo 'WARNING: nsig extraction failed' >&2
printf 'data' > abc.webm
echo "{\"id\": \"abc\", \"title\": \"Song\", \"uploader\": \"Band\", \"duration\": 61.5, \"ext\": \"webm\", \"requested_downloads\": [{\"filepath\": \"$PWD/abc.webm\"}]}"
`)
	dir := t.TempDir()
	rec := &recorder{}

	res, err := NewYTDLP(bin, nil).Fetch(context.Background(), "https://youtu.be/abc", dir, rec)
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}

	if res.Title != "Song" {
		t.Errorf("Title = %q, want Song", res.Title)
	}
	if res.Artist != "Band" {
		t.Errorf("Artist = %q, want Band", res.Artist)
	}
	if res.Duration != 61500*time.Millisecond {
		t.Errorf("Duration = %v, want 61.5s", res.Duration)
	}
	if filepath.Base(res.Path) != "abc.webm" {
		t.Errorf("Path = %q, want abc.webm", res.Path)
	}
	want := [][2]int64{{50, 100}, {100, 100}}
	if !slices.Equal(rec.calls, want) {
		t.Errorf("progress = %v, want %v", rec.calls, want)
	}
}

func TestYTDLP_Fetch_PathFallback(t *testing.T) {
	bin := writeScript(t, `
printf 'small' > other.part.json
printf 'much larger body' > renamed.m4a
echo '{"id": "abc", "title": "Song", "ext": "webm"}'
`)
	res, err := NewYTDLP(bin, nil).Fetch(context.Background(), "https://youtu.be/abc", t.TempDir(), nil)
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if filepath.Base(res.Path) != "renamed.m4a" {
		t.Errorf("Path = %q, want renamed.m4a", res.Path)
	}
}

func TestYTDLP_Fetch_Error(t *testing.T) {
	bin := writeScript(t, `
echo '[youtube] abc: Downloading webpage' >&2
echo 'ERROR: [youtube] abc: Video unavailable. This video is private' >&2
exit 1
`)
	_, err := NewYTDLP(bin, nil).Fetch(context.Background(), "https://youtu.be/abc", t.TempDir(), nil)

	var fe *domain.FetchError
	if !errors.As(err, &fe) {
		t.Fatalf("Fetch() error = %v, want *domain.FetchError", err)
	}
	if fe.Message != "[youtube] abc: Video unavailable. This video is private" {
		t.Errorf("Message = %q", fe.Message)
	}
}

func TestYTDLP_Fetch_NoMetadata(t *testing.T) {
	bin := writeScript(t, "echo hello\n")
	_, err := NewYTDLP(bin, nil).Fetch(context.Background(), "https://youtu.be/abc", t.TempDir(), nil)
	if err == nil || !strings.Contains(err.Error(), "metadata") {
		t.Errorf("Fetch() error = %v, want metadata error", err)
	}
}

func TestYTDLP_Fetch_NotInstalled(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "no-such-yt-dlp")
	_, err := NewYTDLP(missing, nil).Fetch(context.Background(), "https://youtu.be/abc", t.TempDir(), nil)
	if err == nil || !strings.Contains(err.Error(), "yt-dlp not found") {
		t.Errorf("Fetch() error = %v, want not found", err)
	}
}

func TestParseProgressLine(t *testing.T) {
	tests := []struct {
		line        string
		done, total int64
		ok          bool
	}{
		{`{"downloaded_bytes": 10, "total_bytes": 200}`, 10, 200, true},
		{`{"downloaded_bytes": 10, "total_bytes_estimate": 300.7}`, 10, 300, true},
		{`{"downloaded_bytes": 10}`, 10, 0, true},
		{`{"status": "finished"}`, 0, 0, false},
		{`{"id": "abc", "downloaded_bytes": 10}`, 0, 0, false},
		{`{"downloaded_bytes": -1, "total_bytes": 10}`, 0, 0, false},
		{`{"downloaded_bytes": 1, "total_bytes": 1e20}`, 0, 0, false},
		{`[download] 50%`, 0, 0, false},
		{`{broken`, 0, 0, false},
	}
	for _, tt := range tests {
		done, total, ok := parseProgressLine(tt.line)
		if ok != tt.ok || done != tt.done || total != tt.total {
			t.Errorf("parseProgressLine(%q) = %d, %d, %v, want %d, %d, %v", tt.line, done, total, ok, tt.done, tt.total, tt.ok)
		}
	}
}

func TestParseInfoLine(t *testing.T) {
	info := parseInfoLine(`{"id": "x1", "title": "T", "channel": "C", "duration": 100000, "ext": "m4a"}`)
	if info == nil {
		t.Fatal("parseInfoLine() = nil")
	}
	if info.artist() != "C" {
		t.Errorf("artist() = %q, want C", info.artist())
	}
	if info.duration() != 0 {
		t.Errorf("duration() = %v, want 0 for out of range", info.duration())
	}
	if got := info.path("/d"); got != filepath.Join("/d", "x1.m4a") {
		t.Errorf("path() = %q", got)
	}

	if parseInfoLine(`{"title": "no id"}`) != nil {
		t.Error("parseInfoLine() without id should be nil")
	}
}

func TestCleanErrorMessage(t *testing.T) {
	long := strings.Repeat("x", 300)
	tests := []struct {
		in, want string
	}{
		{"", "Unknown error"},
		{"   \n ", "Unknown error"},
		{"ERROR: Video unavailable", "Video unavailable"},
		{"ERROR: first\nERROR: second\ndetail", "second"},
		{"plain failure\nmore", "plain failure"},
		{"ERROR: " + long, strings.Repeat("x", 197) + "..."},
	}
	for _, tt := range tests {
		if got := cleanErrorMessage(tt.in); got != tt.want {
			t.Errorf("cleanErrorMessage(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestLargestFile(t *testing.T) {
	dir := t.TempDir()
	if _, err := largestFile(dir); !errors.Is(err, errNoOutput) {
		t.Errorf("largestFile(empty) error = %v, want errNoOutput", err)
	}

	os.WriteFile(filepath.Join(dir, "a.txt"), []byte("1"), 0644)
	os.WriteFile(filepath.Join(dir, "b.mp4"), []byte("12345"), 0644)
	os.Mkdir(filepath.Join(dir, "sub"), 0755)

	got, err := largestFile(dir)
	if err != nil {
		t.Fatal(err)
	}
	if filepath.Base(got) != "b.mp4" {
		t.Errorf("largestFile() = %q, want b.mp4", got)
	}
}
