// Package app ties input handling, download history and the batch
// coordinator together for one invocation.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"

	"github.com/cwygoda/ytaudio/internal/batch"
	"github.com/cwygoda/ytaudio/internal/domain"
	"github.com/cwygoda/ytaudio/internal/retry"
)

// Options configures a batch run.
type Options struct {
	OutputDir     string
	Format        string
	Workers       int
	Retries       int
	Retry         retry.Config
	Bitrate       int
	EmbedMetadata bool
	// SkipDownloaded drops URLs whose last recorded download still exists.
	SkipDownloaded bool
	TempDir        string
}

// App runs batches and records them in the optional history.
type App struct {
	fetchers  batch.FetcherSource
	converter domain.Converter
	history   domain.HistoryRepository
	opts      Options
	logger    *slog.Logger
	now       func() time.Time

	mu    sync.Mutex
	coord *batch.Coordinator
}

// New creates an App. history may be nil.
func New(fetchers batch.FetcherSource, converter domain.Converter, history domain.HistoryRepository, opts Options, logger *slog.Logger) *App {
	if logger == nil {
		logger = slog.Default()
	}
	return &App{
		fetchers:  fetchers,
		converter: converter,
		history:   history,
		opts:      opts,
		logger:    logger,
		now:       time.Now,
	}
}

// Plan is the deduplicated work list for one run.
type Plan struct {
	URLs       []string
	Duplicates []string
	// Skipped counts URLs dropped because history shows them downloaded.
	Skipped int
}

// Plan deduplicates urls and, when enabled, drops URLs already downloaded.
func (a *App) Plan(ctx context.Context, urls []string) Plan {
	unique, dupes := batch.DeduplicateURLs(urls)
	for _, u := range dupes {
		a.logger.Warn("skipping duplicate url", "url", u)
	}
	pending, skipped := a.filterDownloaded(ctx, unique)
	return Plan{URLs: pending, Duplicates: dupes, Skipped: skipped}
}

// Run downloads the planned URLs. progress, if set, receives job events and
// must be drained by the caller, who closes it after Run returns.
func (a *App) Run(ctx context.Context, plan Plan, progress chan<- domain.ProgressUpdate) (*batch.Result, error) {
	req, err := batch.NewRequest(a.opts.Workers, a.opts.Retries)
	if err != nil {
		return nil, err
	}
	for _, u := range plan.URLs {
		if _, err := req.AddJob(u, a.opts.OutputDir, a.opts.Format); err != nil {
			return nil, err
		}
	}

	policy, err := retry.NewPolicy(a.retryConfig())
	if err != nil {
		return nil, err
	}

	coord, err := batch.NewCoordinator(req, batch.Options{
		Fetchers:      a.fetchers,
		Converter:     a.converter,
		Policy:        policy,
		Progress:      progress,
		Logger:        a.logger,
		Bitrate:       a.opts.Bitrate,
		EmbedMetadata: a.opts.EmbedMetadata,
		Skipped:       plan.Skipped,
		TempDir:       a.opts.TempDir,
	})
	if err != nil {
		return nil, err
	}
	a.mu.Lock()
	a.coord = coord
	a.mu.Unlock()

	runID := a.startRun(ctx, req.Total())
	started := a.now()
	res := coord.Run(ctx)
	a.finishRun(ctx, runID, started, req, res)

	a.logSummary(res, a.now().Sub(started))
	return res, nil
}

func (a *App) retryConfig() retry.Config {
	cfg := a.opts.Retry
	if cfg.MaxAttempts == 0 {
		return retry.FromMaxRetries(a.opts.Retries)
	}
	return cfg
}

// filterDownloaded drops URLs already completed in history whose output
// file still exists.
func (a *App) filterDownloaded(ctx context.Context, urls []string) ([]string, int) {
	if !a.opts.SkipDownloaded || a.history == nil {
		return urls, 0
	}

	kept := make([]string, 0, len(urls))
	skipped := 0
	for _, u := range urls {
		path, err := a.history.FindCompleted(ctx, batch.NormalizeURL(u))
		switch {
		case errors.Is(err, domain.ErrNotFound):
		case err != nil:
			a.logger.Warn("history lookup failed", "url", u, "err", err)
		case path != "" && fileExists(path):
			a.logger.Info("already downloaded", "url", u, "path", path)
			skipped++
			continue
		}
		kept = append(kept, u)
	}
	return kept, skipped
}

func (a *App) startRun(ctx context.Context, total int) string {
	if a.history == nil || total == 0 {
		return ""
	}
	runID := uuid.NewString()
	if err := a.history.StartRun(ctx, runID, total); err != nil {
		a.logger.Warn("history disabled for this run", "err", err)
		return ""
	}
	return runID
}

func (a *App) finishRun(ctx context.Context, runID string, started time.Time, req *batch.Request, res *batch.Result) {
	if runID == "" {
		return
	}
	// The batch context may already be cancelled; recording must still happen.
	ctx = context.WithoutCancel(ctx)
	for _, job := range req.Jobs {
		snap := job.Snapshot()
		if err := a.history.RecordJob(ctx, runID, batch.NormalizeURL(snap.URL), snap); err != nil {
			a.logger.Warn("record history", "url", snap.URL, "err", err)
		}
	}
	err := a.history.FinishRun(ctx, domain.RunSummary{
		ID:         runID,
		StartedAt:  started,
		FinishedAt: a.now(),
		Total:      res.Total,
		Successful: res.Successful,
		Failed:     res.Failed,
		Cancelled:  res.Cancelled,
		Skipped:    res.Skipped,
	})
	if err != nil {
		a.logger.Warn("finish history run", "run", runID, "err", err)
	}
}

func (a *App) logSummary(res *batch.Result, elapsed time.Duration) {
	var size uint64
	for _, p := range res.OutputPaths {
		if info, err := os.Stat(p); err == nil {
			size += uint64(info.Size())
		}
	}

	a.logger.Info("batch finished",
		"successful", res.Successful,
		"failed", res.Failed,
		"cancelled", res.Cancelled,
		"skipped", res.Skipped,
		"size", humanize.Bytes(size),
		"elapsed", elapsed.Round(time.Second),
		"success_rate", fmt.Sprintf("%.0f%%", res.SuccessRate()*100),
	)
	for _, job := range res.FailedJobs {
		a.logger.Error("failed", "url", job.URL, "retries", job.RetryCount, "err", job.Error)
	}
}

// Snapshot reports the running batch, or zero counts before Run starts.
func (a *App) Snapshot() batch.Status {
	a.mu.Lock()
	coord := a.coord
	a.mu.Unlock()
	if coord == nil {
		return batch.Status{}
	}
	return coord.Snapshot()
}

// Jobs returns the job snapshots of the running batch.
func (a *App) Jobs() []domain.JobSnapshot {
	a.mu.Lock()
	coord := a.coord
	a.mu.Unlock()
	if coord == nil {
		return nil
	}
	return coord.Jobs()
}

// RecentRuns lists recorded runs, newest first.
func (a *App) RecentRuns(ctx context.Context, limit int) ([]domain.RunSummary, error) {
	if a.history == nil {
		return nil, errors.New("history is disabled")
	}
	return a.history.RecentRuns(ctx, limit)
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}
