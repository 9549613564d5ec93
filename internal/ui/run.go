package ui

import (
	"errors"
	"io"
	"log/slog"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/cwygoda/ytaudio/internal/domain"
)

// ErrAborted is returned by Run when the user asked to stop a second time.
var ErrAborted = errors.New("aborted")

// Run shows the live display until updates is closed. The first q or
// ctrl+c calls cancel and the display keeps draining updates. A second one
// returns ErrAborted at once; updates are still drained in the background
// so producers blocked on a send can finish. Signals are left to the caller.
func Run(updates <-chan domain.ProgressUpdate, cancel func(), total, workers int, out io.Writer) error {
	m := newModel(updates, cancel, total, workers)
	opts := []tea.ProgramOption{tea.WithoutSignalHandler()}
	if out != nil {
		opts = append(opts, tea.WithOutput(out))
	}

	final, err := tea.NewProgram(m, opts...).Run()
	return settle(final, err, updates)
}

// settle decides what Run returns once the program has exited.
func settle(final tea.Model, err error, updates <-chan domain.ProgressUpdate) error {
	fm, ok := final.(model)
	if ok && fm.aborted {
		go discard(updates)
		return ErrAborted
	}
	if !ok || !fm.done {
		// The producer blocks on sends; keep consuming.
		discard(updates)
	}
	return err
}

// discard consumes updates until the channel is closed.
func discard(updates <-chan domain.ProgressUpdate) {
	for range updates {
	}
}

// LogUpdates writes one log line per job event until updates is closed.
func LogUpdates(logger *slog.Logger, updates <-chan domain.ProgressUpdate) {
	for u := range updates {
		switch u.Event {
		case domain.EventStarted:
			logger.Info("started", "worker", u.WorkerID, "url", u.URL)
		case domain.EventProgress:
			if u.Percent%25 == 0 {
				logger.Debug("progress", "worker", u.WorkerID, "url", u.URL, "phase", u.Phase, "percent", u.Percent, "title", u.Title)
			}
		case domain.EventComplete:
			logger.Info("complete", "worker", u.WorkerID, "title", u.Title, "url", u.URL)
		case domain.EventFailed:
			logger.Error("failed", "worker", u.WorkerID, "url", u.URL, "err", u.Error)
		}
	}
}
