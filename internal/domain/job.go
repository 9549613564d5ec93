package domain

import (
	"fmt"
	"net/url"
	"strings"
	"sync"
)

// JobStatus represents the lifecycle state of a job.
type JobStatus string

const (
	StatusPending   JobStatus = "pending"
	StatusActive    JobStatus = "active"
	StatusComplete  JobStatus = "complete"
	StatusFailed    JobStatus = "failed"
	StatusCancelled JobStatus = "cancelled"
)

// Terminal reports whether no further transitions are expected.
func (s JobStatus) Terminal() bool {
	return s == StatusComplete || s == StatusFailed || s == StatusCancelled
}

var allowedTransitions = map[JobStatus]map[JobStatus]bool{
	StatusPending: {
		StatusActive:    true,
		StatusCancelled: true,
		StatusFailed:    true,
	},
	StatusActive: {
		StatusPending:   true,
		StatusComplete:  true,
		StatusFailed:    true,
		StatusCancelled: true,
	},
	StatusFailed: {
		StatusPending: true,
	},
}

// JobSpec holds the constructor input for a Job.
type JobSpec struct {
	URL        string
	OutputDir  string
	Format     string
	RetryCount int
	Percent    int
	Title      string
}

// Job is one fetch+convert unit of work. Lifecycle fields change only
// through the transition methods; the mutex lets displays read while the
// owning worker writes.
type Job struct {
	mu sync.RWMutex

	url       string
	outputDir string
	format    string

	status     JobStatus
	retryCount int
	errMsg     string
	outputPath string
	percent    int
	title      string
}

// JobSnapshot is a point-in-time copy of a job.
type JobSnapshot struct {
	URL        string    `json:"url"`
	OutputDir  string    `json:"output_dir"`
	Format     string    `json:"format"`
	Status     JobStatus `json:"status"`
	RetryCount int       `json:"retry_count"`
	Error      string    `json:"error,omitempty"`
	OutputPath string    `json:"output_path,omitempty"`
	Percent    int       `json:"percent"`
	Title      string    `json:"title,omitempty"`
}

// NewJob validates spec and returns a pending job.
func NewJob(spec JobSpec) (*Job, error) {
	if err := ValidateURL(spec.URL); err != nil {
		return nil, &ValidationError{Field: "url", Reason: err.Error()}
	}
	if spec.RetryCount < 0 {
		return nil, &ValidationError{Field: "retry_count", Reason: fmt.Sprintf("must be >= 0, got %d", spec.RetryCount)}
	}
	return &Job{
		url:        spec.URL,
		outputDir:  spec.OutputDir,
		format:     spec.Format,
		status:     StatusPending,
		retryCount: spec.RetryCount,
		percent:    clampPercent(spec.Percent),
		title:      spec.Title,
	}, nil
}

// ValidateURL accepts absolute http and https URLs only.
func ValidateURL(raw string) error {
	if !strings.HasPrefix(raw, "http://") && !strings.HasPrefix(raw, "https://") {
		return fmt.Errorf("%w: %q must start with http:// or https://", ErrInvalidURL, raw)
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return fmt.Errorf("%w: %q", ErrInvalidURL, raw)
	}
	return nil
}

func clampPercent(p int) int {
	return max(0, min(100, p))
}

// transition must be called with mu held.
func (j *Job) transition(to JobStatus) error {
	if !allowedTransitions[j.status][to] {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, j.status, to)
	}
	if j.status == StatusFailed {
		j.errMsg = ""
	}
	j.status = to
	return nil
}

// MarkActive dispatches the job. An empty title keeps the current one.
func (j *Job) MarkActive(title string) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if err := j.transition(StatusActive); err != nil {
		return err
	}
	j.percent = 0
	if title != "" {
		j.title = title
	}
	return nil
}

// MarkComplete records the final output path.
func (j *Job) MarkComplete(path string) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if err := j.transition(StatusComplete); err != nil {
		return err
	}
	j.outputPath = path
	j.percent = 100
	j.errMsg = ""
	return nil
}

// MarkFailed records a terminal failure.
func (j *Job) MarkFailed(msg string) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if err := j.transition(StatusFailed); err != nil {
		return err
	}
	j.errMsg = msg
	return nil
}

// MarkCancelled is a no-op on an already cancelled job.
func (j *Job) MarkCancelled() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.status == StatusCancelled {
		return nil
	}
	return j.transition(StatusCancelled)
}

// IncrementRetry puts the job back to pending for another attempt.
func (j *Job) IncrementRetry() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if err := j.transition(StatusPending); err != nil {
		return err
	}
	j.retryCount++
	j.percent = 0
	j.errMsg = ""
	return nil
}

// UpdateProgress sets live progress; percent is clamped into [0,100].
func (j *Job) UpdateProgress(percent int, title string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.percent = clampPercent(percent)
	if title != "" {
		j.title = title
	}
}

func (j *Job) URL() string       { return j.url }
func (j *Job) OutputDir() string { return j.outputDir }
func (j *Job) Format() string    { return j.format }

func (j *Job) Status() JobStatus {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.status
}

func (j *Job) RetryCount() int {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.retryCount
}

func (j *Job) ErrorMessage() string {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.errMsg
}

func (j *Job) OutputPath() string {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.outputPath
}

func (j *Job) Percent() int {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.percent
}

func (j *Job) Title() string {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.title
}

// Snapshot returns a consistent copy of all fields.
func (j *Job) Snapshot() JobSnapshot {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return JobSnapshot{
		URL:        j.url,
		OutputDir:  j.outputDir,
		Format:     j.format,
		Status:     j.status,
		RetryCount: j.retryCount,
		Error:      j.errMsg,
		OutputPath: j.outputPath,
		Percent:    j.percent,
		Title:      j.title,
	}
}
