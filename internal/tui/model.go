// Package tui renders the city load dialog in the terminal.
package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/greenpath/greenpath/internal/backend"
	"github.com/greenpath/greenpath/internal/monitor"
)

const (
	defaultWidth = 60
	maxEvents    = 8
)

// SnapshotMsg carries a new state of the load operation.
type SnapshotMsg monitor.Snapshot

// ResultMsg ends the dialog with the outcome of the load.
type ResultMsg struct {
	Data *backend.CityData
	Err  error
}

// Model is the load dialog.
type Model struct {
	city     string
	snapshot monitor.Snapshot
	seen     bool
	result   *ResultMsg
	quitting bool

	progress progress.Model
	spinner  spinner.Model
	styles   Styles
	width    int

	cancel context.CancelFunc
}

// NewModel creates the dialog for city. cancel is invoked when the user
// quits before the load finishes; it may be nil.
func NewModel(city string, cancel context.CancelFunc) Model {
	sp := spinner.New(spinner.WithSpinner(spinner.MiniDot))
	return Model{
		city:     city,
		progress: progress.New(progress.WithDefaultGradient(), progress.WithoutPercentage()),
		spinner:  sp,
		styles:   DefaultStyles(),
		width:    defaultWidth,
		cancel:   cancel,
	}
}

// Init starts the spinner.
func (m Model) Init() tea.Cmd {
	return m.spinner.Tick
}

// Update handles messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "esc", "q":
			m.quitting = true
			if m.cancel != nil {
				m.cancel()
			}
			return m, tea.Quit
		}

	case tea.WindowSizeMsg:
		m.width = min(msg.Width-4, defaultWidth)
		m.progress.Width = max(m.width-10, 10)

	case SnapshotMsg:
		m.snapshot = monitor.Snapshot(msg)
		m.seen = true

	case ResultMsg:
		m.result = &msg
		return m, tea.Quit

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	return m, nil
}

// Title is the dialog heading for the current state.
func (m Model) Title() string {
	switch m.snapshot.State {
	case monitor.Complete:
		return "Complete"
	case monitor.Failed:
		return "Error"
	default:
		return "Loading City Data"
	}
}

// View renders the dialog.
func (m Model) View() string {
	if m.quitting {
		return m.styles.Muted.Render("Cancelled.") + "\n"
	}

	var b strings.Builder

	title := m.styles.Title.Render(m.Title())
	if m.snapshot.State == monitor.Failed {
		title = m.styles.Failure.Bold(true).Render(m.Title())
	}
	b.WriteString(title)
	b.WriteString("  ")
	b.WriteString(m.styles.Muted.Render(m.city))
	b.WriteString("\n\n")

	terminal := m.snapshot.State.Terminal()
	if !terminal {
		b.WriteString(m.progress.ViewAs(m.snapshot.Progress / 100))
		b.WriteString(m.styles.Progress.Render(fmt.Sprintf(" %3.0f%%", m.snapshot.Progress)))
		b.WriteString("\n\n")
	}

	if !m.seen {
		b.WriteString(m.spinner.View() + " " + m.styles.Muted.Render("Checking city data..."))
	}

	events := m.snapshot.Events
	if len(events) > maxEvents {
		events = events[len(events)-maxEvents:]
	}
	for i, ev := range events {
		b.WriteString(m.marker(ev, !terminal && i == len(events)-1))
		b.WriteString(" ")
		if ev.Kind == monitor.EventError {
			b.WriteString(m.styles.Failure.Render(ev.Message))
		} else {
			b.WriteString(ev.Message)
		}
		b.WriteString("\n")
	}

	return m.styles.Frame.Width(m.width).Render(strings.TrimRight(b.String(), "\n")) + "\n"
}

func (m Model) marker(ev monitor.Event, active bool) string {
	switch {
	case ev.Kind == monitor.EventComplete:
		return m.styles.Success.Render("✓")
	case ev.Kind == monitor.EventError:
		return m.styles.Failure.Render("✗")
	case active:
		return m.spinner.View()
	default:
		return m.styles.Muted.Render("·")
	}
}
