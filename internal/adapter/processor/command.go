package processor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/cwygoda/ytaudio/internal/config"
	"github.com/cwygoda/ytaudio/internal/domain"
)

var errNoOutput = errors.New("command produced no files")

// CommandFetcher runs an external command for matching URLs.
type CommandFetcher struct {
	name    string
	pattern *regexp.Regexp
	command string
	args    []string
	logger  *slog.Logger
}

// NewCommandFetcher creates a fetcher from config.
func NewCommandFetcher(fc config.FetcherConfig, logger *slog.Logger) (*CommandFetcher, error) {
	re, err := regexp.Compile(fc.Pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid pattern %q: %w", fc.Pattern, err)
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &CommandFetcher{
		name:    fc.Name,
		pattern: re,
		command: fc.Command,
		args:    fc.Args,
		logger:  logger,
	}, nil
}

func (p *CommandFetcher) Name() string {
	return p.name
}

func (p *CommandFetcher) Match(url string) bool {
	return p.pattern.MatchString(url)
}

// Fetch runs the command inside destDir and picks the largest file it
// leaves behind. Progress is not reported.
func (p *CommandFetcher) Fetch(ctx context.Context, url, destDir string, _ domain.ProgressListener) (domain.FetchResult, error) {
	r := strings.NewReplacer("{url}", url, "{dir}", destDir)
	args := make([]string, len(p.args))
	for i, arg := range p.args {
		args[i] = r.Replace(arg)
	}

	cmd := exec.CommandContext(ctx, p.command, args...)
	cmd.Dir = destDir
	output, err := cmd.CombinedOutput()
	if err != nil {
		if isNotFound(err) {
			return domain.FetchResult{}, &domain.FetchError{Message: fmt.Sprintf("%s not found", p.command)}
		}
		return domain.FetchResult{}, &domain.FetchError{
			Message: fmt.Sprintf("%s failed: %v: %s", p.command, err, cleanErrorMessage(string(output))),
		}
	}

	path, err := largestFile(destDir)
	if err != nil {
		return domain.FetchResult{}, &domain.FetchError{Message: fmt.Sprintf("%s: %v", p.command, err)}
	}
	p.logger.Debug("command fetch done", "fetcher", p.name, "file", filepath.Base(path))

	base := filepath.Base(path)
	return domain.FetchResult{
		Title: strings.TrimSuffix(base, filepath.Ext(base)),
		Path:  path,
	}, nil
}

// largestFile returns the biggest regular file directly inside dir.
func largestFile(dir string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", err
	}

	var best string
	var bestSize int64 = -1
	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.Size() > bestSize {
			best = filepath.Join(dir, entry.Name())
			bestSize = info.Size()
		}
	}
	if best == "" {
		return "", errNoOutput
	}
	return best, nil
}
