package processor

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/cwygoda/ytaudio/internal/domain"
)

var codecs = map[string]string{
	"mp3":  "libmp3lame",
	"aac":  "aac",
	"opus": "libopus",
	"wav":  "pcm_s16le",
}

// Muxer names passed to -f; the output carries a .tmp suffix until placed.
var containers = map[string]string{
	"mp3":  "mp3",
	"aac":  "adts",
	"opus": "opus",
	"wav":  "wav",
}

// FFmpeg transcodes downloaded media into the target audio format.
type FFmpeg struct {
	binary string
	logger *slog.Logger
}

// NewFFmpeg creates a converter. An empty binary means "ffmpeg" on PATH.
func NewFFmpeg(binary string, logger *slog.Logger) *FFmpeg {
	if binary == "" {
		binary = "ffmpeg"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &FFmpeg{binary: binary, logger: logger}
}

// Check returns domain.ErrFFmpegNotFound if the binary cannot be resolved.
func (f *FFmpeg) Check() error {
	if _, err := exec.LookPath(f.binary); err != nil {
		return domain.ErrFFmpegNotFound
	}
	return nil
}

func (f *FFmpeg) args(req domain.ConvertRequest, withProgress bool) []string {
	args := []string{"-y"}
	if withProgress {
		args = append(args, "-progress", "pipe:1", "-nostats")
	}
	args = append(args, "-i", req.Input, "-vn")

	if codec, ok := codecs[req.Format]; ok {
		args = append(args, "-c:a", codec)
	}
	if req.Bitrate > 0 && req.Format != "wav" {
		args = append(args, "-b:a", strconv.Itoa(req.Bitrate)+"k")
	}
	if container, ok := containers[req.Format]; ok {
		args = append(args, "-f", container)
	}

	keys := make([]string, 0, len(req.Metadata))
	for k, v := range req.Metadata {
		if v != "" {
			keys = append(keys, k)
		}
	}
	slices.Sort(keys)
	for _, k := range keys {
		args = append(args, "-metadata", k+"="+req.Metadata[k])
	}

	return append(args, req.Output)
}

// Convert runs ffmpeg for req. When progress is set, processed media time
// is reported from ffmpeg's -progress stream.
func (f *FFmpeg) Convert(ctx context.Context, req domain.ConvertRequest, progress domain.ConvertProgress) error {
	if _, ok := codecs[req.Format]; !ok {
		return &domain.ConvertError{Message: fmt.Sprintf("unsupported format %q", req.Format)}
	}

	cmd := exec.CommandContext(ctx, f.binary, f.args(req, progress != nil)...)
	stderr := &tail{n: 20}
	err := streamCommand(cmd,
		func(line string) {
			if progress == nil {
				return
			}
			if d, ok := parseOutTime(line); ok {
				progress(d, req.Duration)
			}
		},
		stderr.add,
	)
	if err != nil {
		if isNotFound(err) {
			return domain.ErrFFmpegNotFound
		}
		msg := stderr.last()
		if msg == "" {
			msg = err.Error()
		}
		f.logger.Debug("ffmpeg failed", "input", req.Input, "stderr", stderr.String())
		return &domain.ConvertError{Message: msg}
	}
	return nil
}

// parseOutTime reads an out_time_ms line. The value is in microseconds.
func parseOutTime(line string) (time.Duration, bool) {
	v, ok := strings.CutPrefix(line, "out_time_ms=")
	if !ok {
		return 0, false
	}
	us, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
	if err != nil || us < 0 {
		return 0, false
	}
	d := time.Duration(us) * time.Microsecond
	if d > maxDuration {
		return 0, false
	}
	return d, true
}
