package batch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/cwygoda/ytaudio/internal/domain"
	"github.com/cwygoda/ytaudio/internal/metrics"
	"github.com/cwygoda/ytaudio/internal/naming"
	"github.com/cwygoda/ytaudio/internal/retry"
	"github.com/cwygoda/ytaudio/internal/worker"
)

// FetcherSource selects the fetcher for a URL, or nil.
type FetcherSource interface {
	Match(url string) domain.Fetcher
}

// Options wires a Coordinator to its collaborators.
type Options struct {
	Fetchers  FetcherSource
	Converter domain.Converter
	// Policy defaults to retry.FromMaxRetries(req.MaxRetries).
	Policy *retry.Policy
	// Progress receives events from workers. Sends block, so the consumer
	// must drain it until the caller closes it after Run returns.
	Progress chan<- domain.ProgressUpdate
	Logger   *slog.Logger
	Placer   *Placer
	// Bitrate in kbps passed to the converter; 0 leaves the codec default.
	Bitrate       int
	EmbedMetadata bool
	// Skipped is reported in the Result.
	Skipped int
	// TempDir is where per-attempt fetch directories are created.
	TempDir string
}

var errCancelled = errors.New("cancelled")

// Coordinator drives every job of a Request to a terminal status.
type Coordinator struct {
	req    *Request
	opts   Options
	policy *retry.Policy
	placer *Placer
	log    *slog.Logger

	mu   sync.Mutex
	pool *worker.Pool[Outcome]
}

// NewCoordinator validates opts and fills defaults.
func NewCoordinator(req *Request, opts Options) (*Coordinator, error) {
	if req == nil {
		return nil, errors.New("batch: request is required")
	}
	if opts.Fetchers == nil {
		return nil, errors.New("batch: fetcher source is required")
	}
	if opts.Converter == nil {
		return nil, errors.New("batch: converter is required")
	}

	policy := opts.Policy
	if policy == nil {
		p, err := retry.NewPolicy(retry.FromMaxRetries(req.MaxRetries))
		if err != nil {
			return nil, err
		}
		policy = p
	}
	placer := opts.Placer
	if placer == nil {
		placer = &Placer{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Coordinator{
		req:    req,
		opts:   opts,
		policy: policy,
		placer: placer,
		log:    logger,
	}, nil
}

// Run processes the batch and always returns a complete Result. Once ctx
// is done no new jobs are dispatched; running ones stop at their next
// checkpoint and jobs never dispatched end up cancelled.
func (c *Coordinator) Run(ctx context.Context) *Result {
	jobs := c.req.Jobs
	if len(jobs) == 0 {
		return NewResult(c.req, c.opts.Skipped)
	}

	workers := min(c.req.MaxWorkers, len(jobs))
	pool := worker.New[Outcome](ctx, workers)
	c.setPool(pool)
	defer func() {
		pool.Shutdown(true)
		metrics.WorkersActive.Set(0)
	}()

	c.log.Info("batch started", "jobs", len(jobs), "workers", workers, "max_attempts", c.policy.MaxAttempts())

	next := 0
	dispatch := func(workerID int) bool {
		if next >= len(jobs) {
			return false
		}
		if _, err := pool.Submit(jobs[next], c.process, workerID); err != nil {
			if !errors.Is(err, worker.ErrShutdown) {
				c.log.Error("dispatch failed", "worker", workerID, "error", err)
			}
			return false
		}
		next++
		metrics.WorkersActive.Set(float64(pool.ActiveWorkers()))
		return true
	}

	for id := range workers {
		if !dispatch(id) {
			break
		}
	}

	for {
		comp, ok := pool.Next()
		if !ok {
			break
		}
		c.record(comp)
		metrics.WorkersActive.Set(float64(pool.ActiveWorkers()))
		if ctx.Err() == nil {
			dispatch(comp.Handle.WorkerID)
		}
	}

	for job := range c.req.PendingJobs() {
		if err := job.MarkCancelled(); err != nil {
			c.log.Error("cancel undispatched job", "url", job.URL(), "error", err)
			continue
		}
		c.req.IncrementCancelled()
		metrics.JobsFinished.WithLabelValues(string(domain.StatusCancelled)).Inc()
	}

	res := NewResult(c.req, c.opts.Skipped)
	c.log.Info("batch finished",
		"total", res.Total,
		"successful", res.Successful,
		"failed", res.Failed,
		"cancelled", res.Cancelled,
		"skipped", res.Skipped,
	)
	return res
}

func (c *Coordinator) setPool(p *worker.Pool[Outcome]) {
	c.mu.Lock()
	c.pool = p
	c.mu.Unlock()
}

// record folds one completion into the counters.
func (c *Coordinator) record(comp worker.Completion[Outcome]) {
	job := comp.Handle.Job
	if comp.Err != nil {
		msg := comp.Err.Error()
		c.log.Error("job crashed", "worker", comp.Handle.WorkerID, "url", job.URL(), "error", msg)
		if err := job.MarkFailed(msg); err != nil {
			c.log.Warn("mark crashed job failed", "url", job.URL(), "error", err)
		}
		c.emit(comp.Handle.WorkerID, job, domain.EventFailed, msg)
		c.req.IncrementFailed()
		metrics.JobsFinished.WithLabelValues(string(domain.StatusFailed)).Inc()
		return
	}

	status := job.Status()
	switch status {
	case domain.StatusComplete:
		c.req.IncrementCompleted()
	case domain.StatusCancelled:
		c.req.IncrementCancelled()
	default:
		c.req.IncrementFailed()
	}
	metrics.JobsFinished.WithLabelValues(string(status)).Inc()
}

// process is the job body run on a worker.
func (c *Coordinator) process(ctx context.Context, job *domain.Job, workerID int) (Outcome, error) {
	if ctx.Err() != nil {
		return c.cancel(job)
	}

	start := time.Now()
	defer func() { metrics.JobDuration.Observe(time.Since(start).Seconds()) }()

	log := c.log.With("worker", workerID, "url", job.URL())
	if err := job.MarkActive(""); err != nil {
		return Outcome{}, err
	}
	c.emit(workerID, job, domain.EventStarted, "")
	log.Info("job started")

	for attempt := 0; ; attempt++ {
		if ctx.Err() != nil {
			log.Info("job cancelled", "attempt", attempt)
			return c.cancel(job)
		}
		if attempt > 0 {
			if err := job.MarkActive(""); err != nil {
				return Outcome{}, err
			}
		}

		path, err := c.attempt(ctx, job, workerID)
		if errors.Is(err, errCancelled) {
			log.Info("job cancelled between fetch and convert")
			return c.cancel(job)
		}
		if err == nil {
			if err := job.MarkComplete(path); err != nil {
				return Outcome{}, err
			}
			c.emit(workerID, job, domain.EventComplete, "")
			log.Info("job complete", "path", path, "attempts", attempt+1)
			return Outcome{Kind: OutcomeSuccess, Path: path}, nil
		}

		msg := err.Error()
		class := retry.Classify(msg)
		if !c.policy.Retryable(class) || !c.policy.ShouldRetry(attempt) {
			if err := job.MarkFailed(msg); err != nil {
				return Outcome{}, err
			}
			c.emit(workerID, job, domain.EventFailed, msg)
			log.Warn("job failed", "attempt", attempt+1, "class", class.String(), "error", msg)
			return Outcome{Kind: OutcomeFailure, Err: err, Class: class}, nil
		}

		delay := c.policy.DelayForAttempt(attempt)
		metrics.Retries.WithLabelValues(class.String()).Inc()
		log.Warn("job attempt failed, retrying", "attempt", attempt+1, "delay", delay, "error", msg)
		sleep(ctx, delay)
		if err := job.IncrementRetry(); err != nil {
			return Outcome{}, err
		}
	}
}

func (c *Coordinator) cancel(job *domain.Job) (Outcome, error) {
	if err := job.MarkCancelled(); err != nil {
		return Outcome{}, err
	}
	return Outcome{Kind: OutcomeCancelled}, nil
}

// attempt runs fetch then convert once. Fetch and convert get a context
// that is not cancelled by shutdown, so the running operation finishes.
func (c *Coordinator) attempt(ctx context.Context, job *domain.Job, workerID int) (string, error) {
	fetcher := c.opts.Fetchers.Match(job.URL())
	if fetcher == nil {
		return "", &domain.FetchError{Message: domain.ErrNoFetcher.Error()}
	}
	metrics.JobAttempts.WithLabelValues(fetcher.Name()).Inc()

	workDir, err := os.MkdirTemp(c.opts.TempDir, "ytaudio-job-*")
	if err != nil {
		return "", fmt.Errorf("create temp dir: %w", err)
	}
	defer os.RemoveAll(workDir)

	opCtx := context.WithoutCancel(ctx)
	last := -1
	listener := domain.ProgressFunc(func(done, total int64) {
		if total <= 0 {
			return
		}
		pct := int(done * 100 / total)
		if pct == last {
			return
		}
		last = pct
		job.UpdateProgress(pct, "")
		c.emitProgress(workerID, job, domain.PhaseDownload)
	})

	res, err := fetcher.Fetch(opCtx, job.URL(), workDir, listener)
	if err != nil {
		return "", err
	}
	if res.Title != "" {
		job.UpdateProgress(job.Percent(), res.Title)
	}

	if ctx.Err() != nil {
		return "", errCancelled
	}
	return c.convert(opCtx, job, workerID, res)
}

// convert transcodes into a private temp file in the output directory,
// then places it under its final name.
func (c *Coordinator) convert(ctx context.Context, job *domain.Job, workerID int, res domain.FetchResult) (string, error) {
	dir := job.OutputDir()
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("create output dir: %w", err)
	}

	stem := naming.Sanitize(res.Title)
	format := job.Format()
	tmp := filepath.Join(dir, fmt.Sprintf(".%s_%s.%s.tmp", stem, uuid.NewString()[:8], format))
	defer os.Remove(tmp)

	req := domain.ConvertRequest{
		Input:    res.Path,
		Output:   tmp,
		Format:   format,
		Bitrate:  c.opts.Bitrate,
		Duration: res.Duration,
	}
	if c.opts.EmbedMetadata {
		req.Metadata = tags(res)
	}
	if err := c.opts.Converter.Convert(ctx, req, c.convertProgress(job, workerID, res.Duration)); err != nil {
		var ce *domain.ConvertError
		if errors.As(err, &ce) {
			return "", err
		}
		return "", &domain.ConvertError{Message: err.Error()}
	}

	return c.placer.Place(tmp, filepath.Join(dir, stem+"."+format))
}

// convertProgress reports processed media time as a percentage of the
// source duration. Without a known duration there is nothing to report.
func (c *Coordinator) convertProgress(job *domain.Job, workerID int, total time.Duration) domain.ConvertProgress {
	if total <= 0 {
		return nil
	}
	job.UpdateProgress(0, "")
	c.emitProgress(workerID, job, domain.PhaseConvert)
	last := 0
	return func(processed, _ time.Duration) {
		pct := min(int(processed*100/total), 100)
		if pct <= last {
			return
		}
		last = pct
		job.UpdateProgress(pct, "")
		c.emitProgress(workerID, job, domain.PhaseConvert)
	}
}

func tags(res domain.FetchResult) map[string]string {
	md := make(map[string]string, 2)
	if res.Title != "" {
		md["title"] = res.Title
	}
	if res.Artist != "" {
		md["artist"] = res.Artist
	}
	return md
}

func (c *Coordinator) emit(workerID int, job *domain.Job, ev domain.ProgressEvent, errMsg string) {
	c.send(workerID, job, domain.ProgressUpdate{Event: ev, Error: errMsg})
}

func (c *Coordinator) emitProgress(workerID int, job *domain.Job, phase domain.Phase) {
	c.send(workerID, job, domain.ProgressUpdate{Event: domain.EventProgress, Phase: phase})
}

func (c *Coordinator) send(workerID int, job *domain.Job, u domain.ProgressUpdate) {
	if c.opts.Progress == nil {
		return
	}
	snap := job.Snapshot()
	u.WorkerID = workerID
	u.URL = snap.URL
	u.Percent = snap.Percent
	u.Title = snap.Title
	c.opts.Progress <- u
}

// sleep waits for d or until ctx is done.
func sleep(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

// Status is a live view of a running batch.
type Status struct {
	Counts  Counts   `json:"counts"`
	Workers []string `json:"workers"`
}

// Snapshot returns the counters and worker lines. Safe to call from any
// goroutine while Run is in progress.
func (c *Coordinator) Snapshot() Status {
	st := Status{Counts: c.req.Counts()}
	c.mu.Lock()
	pool := c.pool
	c.mu.Unlock()
	if pool == nil {
		return st
	}
	for _, ws := range pool.States() {
		st.Workers = append(st.Workers, ws.DisplayLine())
	}
	return st
}

// Jobs returns a snapshot of every job in the batch.
func (c *Coordinator) Jobs() []domain.JobSnapshot {
	out := make([]domain.JobSnapshot, 0, len(c.req.Jobs))
	for _, job := range c.req.Jobs {
		out = append(out, job.Snapshot())
	}
	return out
}
