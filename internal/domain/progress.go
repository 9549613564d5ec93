package domain

// ProgressEvent is the kind of a ProgressUpdate.
type ProgressEvent string

const (
	EventStarted  ProgressEvent = "started"
	EventProgress ProgressEvent = "progress"
	EventComplete ProgressEvent = "complete"
	EventFailed   ProgressEvent = "failed"
)

// Phase is the step a progress event belongs to. Percent restarts at 0
// when a job moves from download to conversion.
type Phase string

const (
	PhaseDownload Phase = "download"
	PhaseConvert  Phase = "convert"
)

// ProgressUpdate is emitted by workers for display consumers.
type ProgressUpdate struct {
	WorkerID int
	URL      string
	Event    ProgressEvent
	// Phase is set on EventProgress only.
	Phase   Phase
	Percent int
	Title   string
	Error   string
}
