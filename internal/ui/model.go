// Package ui renders batch progress, either as a live terminal display or
// as plain log lines.
package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/cwygoda/ytaudio/internal/domain"
)

const (
	barWidth   = 20
	titleWidth = 40
)

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212"))
	mutedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	errorStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("203")).Bold(true)
	okStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("42")).Bold(true)
	barStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("62"))
)

type updateMsg domain.ProgressUpdate

type closedMsg struct{}

type slot struct {
	title   string
	url     string
	phase   domain.Phase
	percent int
	active  bool
}

type model struct {
	updates    <-chan domain.ProgressUpdate
	cancel     func()
	spinner    spinner.Model
	slots      []slot
	total      int
	completed  int
	failed     int
	lastError  string
	cancelling bool
	aborted    bool
	done       bool
}

func newModel(updates <-chan domain.ProgressUpdate, cancel func(), total, workers int) model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = titleStyle
	return model{
		updates: updates,
		cancel:  cancel,
		spinner: s,
		slots:   make([]slot, max(workers, 1)),
		total:   total,
	}
}

func waitForUpdate(ch <-chan domain.ProgressUpdate) tea.Cmd {
	return func() tea.Msg {
		u, ok := <-ch
		if !ok {
			return closedMsg{}
		}
		return updateMsg(u)
	}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, waitForUpdate(m.updates))
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			if m.cancelling {
				m.aborted = true
				return m, tea.Quit
			}
			m.cancelling = true
			if m.cancel != nil {
				m.cancel()
			}
		}
		return m, nil

	case updateMsg:
		m.apply(domain.ProgressUpdate(msg))
		return m, waitForUpdate(m.updates)

	case closedMsg:
		m.done = true
		return m, tea.Quit

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m *model) apply(u domain.ProgressUpdate) {
	if u.WorkerID < 0 {
		return
	}
	for u.WorkerID >= len(m.slots) {
		m.slots = append(m.slots, slot{})
	}
	s := &m.slots[u.WorkerID]

	switch u.Event {
	case domain.EventStarted:
		*s = slot{url: u.URL, title: u.Title, active: true}
	case domain.EventProgress:
		s.active = true
		s.url = u.URL
		s.percent = u.Percent
		s.phase = u.Phase
		if u.Title != "" {
			s.title = u.Title
		}
	case domain.EventComplete:
		m.completed++
		*s = slot{}
	case domain.EventFailed:
		m.failed++
		m.lastError = u.Error
		*s = slot{}
	}
}

func (m model) View() string {
	var b strings.Builder

	header := fmt.Sprintf("Downloading %d URL(s) with %d worker(s)", m.total, len(m.slots))
	b.WriteString(titleStyle.Render(header))
	b.WriteString("\n\n")

	for i, s := range m.slots {
		if !s.active {
			b.WriteString(mutedStyle.Render(fmt.Sprintf("  [%d] Idle", i)))
			b.WriteString("\n")
			continue
		}
		name := s.title
		if name == "" {
			name = s.url
		}
		fmt.Fprintf(&b, "%s [%d] %-*s %s %3d%% %s\n",
			m.spinner.View(), i, titleWidth, truncate(name, titleWidth),
			barStyle.Render(bar(s.percent, barWidth)), s.percent,
			mutedStyle.Render(phaseLabel(s.phase)))
	}

	b.WriteString("\n")
	remaining := max(m.total-m.completed-m.failed, 0)
	b.WriteString(okStyle.Render(fmt.Sprintf("Completed %d", m.completed)))
	b.WriteString("  ")
	if m.failed > 0 {
		b.WriteString(errorStyle.Render(fmt.Sprintf("Failed %d", m.failed)))
	} else {
		b.WriteString(mutedStyle.Render("Failed 0"))
	}
	b.WriteString(mutedStyle.Render(fmt.Sprintf("  Remaining %d", remaining)))
	b.WriteString("\n")

	if m.lastError != "" {
		b.WriteString(errorStyle.Render("Last error: " + truncate(m.lastError, 80)))
		b.WriteString("\n")
	}
	if m.cancelling && !m.done {
		b.WriteString(mutedStyle.Render("Cancelling, waiting for active downloads to finish (press again to abort)..."))
		b.WriteString("\n")
	} else if !m.done {
		b.WriteString(mutedStyle.Render("q / ctrl+c: stop after active downloads"))
		b.WriteString("\n")
	}
	return b.String()
}

func phaseLabel(p domain.Phase) string {
	switch p {
	case domain.PhaseConvert:
		return "converting"
	case domain.PhaseDownload:
		return "downloading"
	}
	return ""
}

// bar renders a fixed-width text progress bar.
func bar(percent, width int) string {
	percent = min(max(percent, 0), 100)
	filled := percent * width / 100
	return strings.Repeat("█", filled) + strings.Repeat("░", width-filled)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	if n <= 3 {
		return string(r[:n])
	}
	return string(r[:n-3]) + "..."
}
