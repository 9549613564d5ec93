package batch

import "github.com/cwygoda/ytaudio/internal/retry"

// OutcomeKind tags an Outcome.
type OutcomeKind int

const (
	OutcomeSuccess OutcomeKind = iota
	OutcomeFailure
	OutcomeCancelled
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeSuccess:
		return "success"
	case OutcomeFailure:
		return "failure"
	default:
		return "cancelled"
	}
}

// Outcome is what a job body returns: the output path on success, the
// classified error on failure, or nothing when cancelled.
type Outcome struct {
	Kind  OutcomeKind
	Path  string
	Err   error
	Class retry.Class
}
