package batch

import "github.com/cwygoda/ytaudio/internal/domain"

// Result is the final summary of a batch. It is built once by
// NewResult and not modified afterwards.
type Result struct {
	Total       int
	Successful  int
	Failed      int
	Cancelled   int
	Skipped     int
	OutputPaths []string
	FailedJobs  []domain.JobSnapshot
}

// NewResult summarizes the final job states of req. skipped counts URLs
// dropped before the batch started.
func NewResult(req *Request, skipped int) *Result {
	res := &Result{Total: req.Total(), Skipped: skipped}
	for _, job := range req.Jobs {
		snap := job.Snapshot()
		switch snap.Status {
		case domain.StatusComplete:
			if snap.OutputPath != "" {
				res.OutputPaths = append(res.OutputPaths, snap.OutputPath)
			}
		case domain.StatusFailed:
			res.FailedJobs = append(res.FailedJobs, snap)
		case domain.StatusCancelled:
			res.Cancelled++
		}
	}
	res.Successful = len(res.OutputPaths)
	res.Failed = len(res.FailedJobs)
	return res
}

// SuccessRate is Successful/Total, or 1 for an empty batch.
func (r *Result) SuccessRate() float64 {
	if r.Total == 0 {
		return 1.0
	}
	return float64(r.Successful) / float64(r.Total)
}

// HasFailures reports whether any job failed.
func (r *Result) HasFailures() bool {
	return r.Failed > 0
}
