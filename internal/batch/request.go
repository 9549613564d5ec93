// Package batch drives a set of jobs through a worker pool with retries,
// aggregate counters and progress events.
package batch

import (
	"iter"
	"sync"

	"github.com/cwygoda/ytaudio/internal/domain"
)

const (
	MinWorkers = 1
	MaxWorkers = 16
	MaxRetries = 10
)

// Request is an ordered list of jobs plus batch settings and the shared
// outcome counters.
type Request struct {
	Jobs       []*domain.Job
	MaxWorkers int
	MaxRetries int

	mu        sync.Mutex
	completed int
	failed    int
	cancelled int
}

// NewRequest validates the batch settings.
func NewRequest(maxWorkers, maxRetries int) (*Request, error) {
	if maxWorkers < MinWorkers || maxWorkers > MaxWorkers {
		return nil, &domain.ConfigError{Field: "max_workers", Value: maxWorkers, Reason: "must be between 1 and 16"}
	}
	if maxRetries < 0 || maxRetries > MaxRetries {
		return nil, &domain.ConfigError{Field: "max_retries", Value: maxRetries, Reason: "must be between 0 and 10"}
	}
	return &Request{MaxWorkers: maxWorkers, MaxRetries: maxRetries}, nil
}

// AddJob validates and appends a job for url.
func (r *Request) AddJob(url, outputDir, format string) (*domain.Job, error) {
	job, err := domain.NewJob(domain.JobSpec{URL: url, OutputDir: outputDir, Format: format})
	if err != nil {
		return nil, err
	}
	r.Jobs = append(r.Jobs, job)
	return job, nil
}

// Total is the number of jobs in the batch.
func (r *Request) Total() int {
	return len(r.Jobs)
}

func (r *Request) IncrementCompleted() {
	r.mu.Lock()
	r.completed++
	r.mu.Unlock()
}

func (r *Request) IncrementFailed() {
	r.mu.Lock()
	r.failed++
	r.mu.Unlock()
}

func (r *Request) IncrementCancelled() {
	r.mu.Lock()
	r.cancelled++
	r.mu.Unlock()
}

// Counts is a consistent view of the counters.
type Counts struct {
	Total     int `json:"total"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
	Cancelled int `json:"cancelled"`
	Pending   int `json:"pending"`
}

// Counts returns all counters read under one lock.
func (r *Request) Counts() Counts {
	r.mu.Lock()
	defer r.mu.Unlock()
	total := len(r.Jobs)
	return Counts{
		Total:     total,
		Completed: r.completed,
		Failed:    r.failed,
		Cancelled: r.cancelled,
		Pending:   total - r.completed - r.failed - r.cancelled,
	}
}

// PendingJobs yields the jobs still waiting for dispatch.
func (r *Request) PendingJobs() iter.Seq[*domain.Job] {
	return func(yield func(*domain.Job) bool) {
		for _, job := range r.Jobs {
			if job.Status() != domain.StatusPending {
				continue
			}
			if !yield(job) {
				return
			}
		}
	}
}
