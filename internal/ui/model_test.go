package ui

import (
	"bytes"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/cwygoda/ytaudio/internal/domain"
)

func update(t *testing.T, m model, msg tea.Msg) model {
	t.Helper()
	next, _ := m.Update(msg)
	nm, ok := next.(model)
	if !ok {
		t.Fatalf("Update() returned %T, want model", next)
	}
	return nm
}

func TestModel_AppliesEvents(t *testing.T) {
	m := newModel(nil, nil, 3, 2)

	m = update(t, m, updateMsg{WorkerID: 0, URL: "https://youtu.be/a", Event: domain.EventStarted})
	m = update(t, m, updateMsg{WorkerID: 0, URL: "https://youtu.be/a", Event: domain.EventProgress, Percent: 40, Title: "First Song"})
	m = update(t, m, updateMsg{WorkerID: 1, URL: "https://youtu.be/b", Event: domain.EventStarted})

	if !m.slots[0].active || m.slots[0].percent != 40 || m.slots[0].title != "First Song" {
		t.Errorf("slot 0 = %+v", m.slots[0])
	}

	view := m.View()
	if !strings.Contains(view, "First Song") {
		t.Errorf("View() missing title:\n%s", view)
	}
	if !strings.Contains(view, " 40%") {
		t.Errorf("View() missing percent:\n%s", view)
	}
	if !strings.Contains(view, "https://youtu.be/b") {
		t.Errorf("View() missing url for untitled job:\n%s", view)
	}

	m = update(t, m, updateMsg{WorkerID: 0, Event: domain.EventComplete, Title: "First Song"})
	m = update(t, m, updateMsg{WorkerID: 1, Event: domain.EventFailed, Error: "download failed: Video unavailable"})

	if m.completed != 1 || m.failed != 1 {
		t.Errorf("completed/failed = %d/%d, want 1/1", m.completed, m.failed)
	}
	if m.slots[0].active || m.slots[1].active {
		t.Error("slots still active after terminal events")
	}
	view = m.View()
	for _, want := range []string{"[0] Idle", "Completed 1", "Failed 1", "Remaining 1", "Video unavailable"} {
		if !strings.Contains(view, want) {
			t.Errorf("View() missing %q:\n%s", want, view)
		}
	}
}

func TestModel_GrowsSlots(t *testing.T) {
	m := newModel(nil, nil, 1, 1)
	m = update(t, m, updateMsg{WorkerID: 3, Event: domain.EventStarted, URL: "https://x.test"})
	if len(m.slots) != 4 {
		t.Errorf("slots = %d, want 4", len(m.slots))
	}
	m = update(t, m, updateMsg{WorkerID: -1, Event: domain.EventStarted})
	if len(m.slots) != 4 {
		t.Errorf("negative worker id changed slots to %d", len(m.slots))
	}
}

func TestModel_CancelThenAbort(t *testing.T) {
	calls := 0
	m := newModel(nil, func() { calls++ }, 1, 1)

	m = update(t, m, tea.KeyMsg{Type: tea.KeyCtrlC})
	if !m.cancelling {
		t.Error("cancelling = false after ctrl+c")
	}
	if !strings.Contains(m.View(), "Cancelling") {
		t.Errorf("View() missing cancelling notice:\n%s", m.View())
	}

	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	m = next.(model)
	if calls != 1 {
		t.Errorf("cancel calls = %d, want 1", calls)
	}
	if !m.aborted {
		t.Error("aborted = false after second key")
	}
	if cmd == nil {
		t.Fatal("second key returned nil cmd")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("second key did not quit")
	}
}

func TestModel_KeyDoesNotQuit(t *testing.T) {
	m := newModel(nil, func() {}, 1, 1)
	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyCtrlC})
	if cmd != nil {
		if _, ok := cmd().(tea.QuitMsg); ok {
			t.Error("ctrl+c quit the display before updates closed")
		}
	}
}

func TestModel_QuitsWhenClosed(t *testing.T) {
	ch := make(chan domain.ProgressUpdate, 1)
	m := newModel(ch, nil, 1, 1)

	ch <- domain.ProgressUpdate{WorkerID: 0, Event: domain.EventStarted, URL: "https://x.test"}
	close(ch)

	msg := waitForUpdate(ch)()
	if _, ok := msg.(updateMsg); !ok {
		t.Fatalf("first msg = %T, want updateMsg", msg)
	}
	msg = waitForUpdate(ch)()
	if _, ok := msg.(closedMsg); !ok {
		t.Fatalf("second msg = %T, want closedMsg", msg)
	}

	next, cmd := m.Update(msg)
	if !next.(model).done {
		t.Error("done = false after closedMsg")
	}
	if cmd == nil {
		t.Fatal("Update(closedMsg) returned nil cmd")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("Update(closedMsg) did not quit")
	}
}

func TestBar(t *testing.T) {
	tests := []struct {
		percent int
		want    string
	}{
		{0, "░░░░░░░░░░"},
		{50, "█████░░░░░"},
		{100, "██████████"},
		{150, "██████████"},
		{-5, "░░░░░░░░░░"},
	}
	for _, tt := range tests {
		if got := bar(tt.percent, 10); got != tt.want {
			t.Errorf("bar(%d) = %q, want %q", tt.percent, got, tt.want)
		}
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("short", 10); got != "short" {
		t.Errorf("truncate() = %q", got)
	}
	if got := truncate("ünïcödé title here", 8); got != "ünïcö..." {
		t.Errorf("truncate() = %q, want %q", got, "ünïcö...")
	}
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestLogUpdates(t *testing.T) {
	var out syncBuffer
	logger := slog.New(slog.NewTextHandler(&out, &slog.HandlerOptions{Level: slog.LevelDebug}))

	ch := make(chan domain.ProgressUpdate, 5)
	ch <- domain.ProgressUpdate{WorkerID: 0, URL: "https://youtu.be/a", Event: domain.EventStarted}
	ch <- domain.ProgressUpdate{WorkerID: 0, URL: "https://youtu.be/a", Event: domain.EventProgress, Percent: 50}
	ch <- domain.ProgressUpdate{WorkerID: 0, URL: "https://youtu.be/a", Event: domain.EventProgress, Percent: 51}
	ch <- domain.ProgressUpdate{WorkerID: 0, URL: "https://youtu.be/a", Event: domain.EventComplete, Title: "Song"}
	ch <- domain.ProgressUpdate{WorkerID: 1, URL: "https://youtu.be/b", Event: domain.EventFailed, Error: "boom"}
	close(ch)

	LogUpdates(logger, ch)

	got := out.String()
	for _, want := range []string{"msg=started", "percent=50", "msg=complete", "title=Song", "msg=failed", "err=boom"} {
		if !strings.Contains(got, want) {
			t.Errorf("output missing %q:\n%s", want, got)
		}
	}
	if strings.Contains(got, "percent=51") {
		t.Errorf("output contains unthrottled progress:\n%s", got)
	}
}

func TestModel_ShowsPhase(t *testing.T) {
	m := newModel(nil, nil, 1, 1)
	m = update(t, m, updateMsg{WorkerID: 0, URL: "https://youtu.be/a", Event: domain.EventStarted})

	m = update(t, m, updateMsg{WorkerID: 0, Event: domain.EventProgress, Phase: domain.PhaseDownload, Percent: 100, Title: "Song"})
	if view := m.View(); !strings.Contains(view, "downloading") {
		t.Errorf("View() missing download phase:\n%s", view)
	}

	m = update(t, m, updateMsg{WorkerID: 0, Event: domain.EventProgress, Phase: domain.PhaseConvert, Percent: 10, Title: "Song"})
	if m.slots[0].percent != 10 || m.slots[0].phase != domain.PhaseConvert {
		t.Errorf("slot 0 = %+v, want convert at 10%%", m.slots[0])
	}
	if view := m.View(); !strings.Contains(view, "converting") {
		t.Errorf("View() missing convert phase:\n%s", view)
	}
}

func TestSettle_AbortKeepsDraining(t *testing.T) {
	updates := make(chan domain.ProgressUpdate)

	err := settle(model{aborted: true}, nil, updates)
	if !errors.Is(err, ErrAborted) {
		t.Fatalf("settle() error = %v, want %v", err, ErrAborted)
	}

	// Workers still in flight keep emitting; none of them may block.
	for i := 0; i < 50; i++ {
		select {
		case updates <- domain.ProgressUpdate{WorkerID: 0, Event: domain.EventProgress, Percent: i}:
		case <-time.After(2 * time.Second):
			t.Fatalf("send %d blocked after abort", i)
		}
	}
	close(updates)
}

func TestSettle_DrainsUnfinished(t *testing.T) {
	updates := make(chan domain.ProgressUpdate, 3)
	for i := 0; i < 3; i++ {
		updates <- domain.ProgressUpdate{Event: domain.EventProgress}
	}
	close(updates)

	if err := settle(model{}, nil, updates); err != nil {
		t.Errorf("settle() error = %v, want nil", err)
	}
	if len(updates) != 0 {
		t.Errorf("%d updates left unread", len(updates))
	}
}
