package worker

import (
	"fmt"

	"github.com/cwygoda/ytaudio/internal/domain"
)

const displayTitleWidth = 40

// WorkerState is the advisory occupancy of one slot, for display only.
type WorkerState struct {
	WorkerID int
	Job      *domain.Job
}

// IsIdle reports whether no job is assigned.
func (s WorkerState) IsIdle() bool {
	return s.Job == nil
}

// DisplayLine renders a single status line for the slot.
func (s WorkerState) DisplayLine() string {
	if s.IsIdle() {
		return fmt.Sprintf("[%d] Idle", s.WorkerID)
	}
	snap := s.Job.Snapshot()
	title := snap.Title
	if title == "" {
		title = "Unknown"
	}
	if r := []rune(title); len(r) > displayTitleWidth {
		title = string(r[:displayTitleWidth])
	}
	return fmt.Sprintf("[%d] %-40s %3d%%", s.WorkerID, title, snap.Percent)
}
