package processor

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/cwygoda/ytaudio/internal/domain"
)

var httpPattern = regexp.MustCompile(`^https?://`)

const (
	maxErrorLength = 200
	maxTotalBytes  = 10 << 40
	maxDuration    = 24 * time.Hour
)

// YTDLP downloads the best available audio stream using yt-dlp.
type YTDLP struct {
	binary string
	logger *slog.Logger
}

// NewYTDLP creates a yt-dlp fetcher. An empty binary means "yt-dlp" on PATH.
func NewYTDLP(binary string, logger *slog.Logger) *YTDLP {
	if binary == "" {
		binary = "yt-dlp"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &YTDLP{binary: binary, logger: logger}
}

// Name returns the fetcher name.
func (y *YTDLP) Name() string {
	return "yt-dlp"
}

// Match returns true for any http(s) URL.
func (y *YTDLP) Match(url string) bool {
	return httpPattern.MatchString(url)
}

func (y *YTDLP) args(url, destDir string) []string {
	return []string{
		"-f", "bestaudio/best",
		"--output", filepath.Join(destDir, "%(id)s.%(ext)s"),
		"--print-json",
		"--no-playlist",
		"--progress",
		"--newline",
		"--progress-template", "download:%(progress)j",
		url,
	}
}

// Fetch downloads url into destDir, reporting byte progress.
func (y *YTDLP) Fetch(ctx context.Context, url, destDir string, progress domain.ProgressListener) (domain.FetchResult, error) {
	cmd := exec.CommandContext(ctx, y.binary, y.args(url, destDir)...)
	cmd.Dir = destDir

	var info *ytdlpInfo
	stderr := &tail{n: 50}
	err := streamCommand(cmd,
		func(line string) {
			if done, total, ok := parseProgressLine(line); ok {
				if progress != nil {
					progress.OnProgress(done, total)
				}
				return
			}
			if info == nil {
				info = parseInfoLine(line)
			}
		},
		func(line string) {
			if msg, ok := strings.CutPrefix(line, "WARNING:"); ok {
				y.logger.Warn("yt-dlp", "url", url, "msg", strings.TrimSpace(msg))
				return
			}
			stderr.add(line)
		},
	)
	if err != nil {
		if isNotFound(err) {
			return domain.FetchResult{}, &domain.FetchError{Message: "yt-dlp not found. Please install yt-dlp."}
		}
		msg := stderr.String()
		if msg == "" {
			msg = err.Error()
		}
		return domain.FetchResult{}, &domain.FetchError{Message: cleanErrorMessage(msg)}
	}
	if info == nil {
		return domain.FetchResult{}, &domain.FetchError{Message: "could not parse video metadata"}
	}

	path := info.path(destDir)
	if _, err := os.Stat(path); err != nil {
		found, ferr := largestFile(destDir)
		if ferr != nil {
			return domain.FetchResult{}, &domain.FetchError{Message: "downloaded file missing: " + filepath.Base(path)}
		}
		path = found
	}

	return domain.FetchResult{
		Title:    info.Title,
		Artist:   info.artist(),
		Path:     path,
		Duration: info.duration(),
	}, nil
}

type ytdlpInfo struct {
	ID                 string  `json:"id"`
	Title              string  `json:"title"`
	Ext                string  `json:"ext"`
	Uploader           string  `json:"uploader"`
	Channel            string  `json:"channel"`
	Artist             string  `json:"artist"`
	Duration           float64 `json:"duration"`
	RequestedDownloads []struct {
		Filepath string `json:"filepath"`
	} `json:"requested_downloads"`
}

func (i *ytdlpInfo) artist() string {
	for _, s := range []string{i.Artist, i.Uploader, i.Channel} {
		if s != "" {
			return s
		}
	}
	return ""
}

func (i *ytdlpInfo) duration() time.Duration {
	d := time.Duration(i.Duration * float64(time.Second))
	if d <= 0 || d > maxDuration {
		return 0
	}
	return d
}

func (i *ytdlpInfo) path(destDir string) string {
	if len(i.RequestedDownloads) > 0 && i.RequestedDownloads[0].Filepath != "" {
		return i.RequestedDownloads[0].Filepath
	}
	return filepath.Join(destDir, i.ID+"."+i.Ext)
}

type progressLine struct {
	DownloadedBytes    *float64 `json:"downloaded_bytes"`
	TotalBytes         float64  `json:"total_bytes"`
	TotalBytesEstimate float64  `json:"total_bytes_estimate"`
}

// parseProgressLine extracts byte counts from a progress template line.
func parseProgressLine(line string) (done, total int64, ok bool) {
	if !strings.HasPrefix(line, "{") || strings.Contains(line, `"id"`) {
		return 0, 0, false
	}
	var p progressLine
	if err := json.Unmarshal([]byte(line), &p); err != nil || p.DownloadedBytes == nil {
		return 0, 0, false
	}
	totalF := p.TotalBytes
	if totalF <= 0 {
		totalF = p.TotalBytesEstimate
	}
	if *p.DownloadedBytes < 0 || totalF < 0 || totalF > maxTotalBytes {
		return 0, 0, false
	}
	return int64(*p.DownloadedBytes), int64(totalF), true
}

// parseInfoLine decodes the --print-json info document, or returns nil.
func parseInfoLine(line string) *ytdlpInfo {
	if !strings.HasPrefix(line, "{") || !strings.Contains(line, `"id"`) {
		return nil
	}
	var info ytdlpInfo
	if err := json.Unmarshal([]byte(line), &info); err != nil || info.ID == "" {
		return nil
	}
	return &info
}

// cleanErrorMessage keeps the first line after the last "ERROR:" marker.
func cleanErrorMessage(stderr string) string {
	msg := strings.TrimSpace(stderr)
	if i := strings.LastIndex(msg, "ERROR:"); i >= 0 {
		msg = strings.TrimSpace(msg[i+len("ERROR:"):])
	}
	if first, _, ok := strings.Cut(msg, "\n"); ok {
		msg = strings.TrimSpace(first)
	}
	if msg == "" {
		return "Unknown error"
	}
	if r := []rune(msg); len(r) > maxErrorLength {
		msg = string(r[:maxErrorLength-3]) + "..."
	}
	return msg
}
