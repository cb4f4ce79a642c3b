package tui

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/metalagman/quorum/internal/events"
	"github.com/metalagman/quorum/internal/pipeline"
	"github.com/metalagman/quorum/internal/run"
)

const defaultVisibleLines = 20

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#5B8DEF"))
	okStyle     = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#4CAF50"))
	failStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#FF6B6B"))
	activeStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#F7B801"))
	dimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#999999"))
)

// Source reads the event log of a run.
type Source interface {
	Events(ctx context.Context, runID string, afterSeq int64) ([]events.Event, error)
}

type eventsMsg struct {
	evs []events.Event
	err error
}

type pollMsg struct{}

// Watch follows the event log of one run until it reaches a terminal status.
// The log is polled, so runs executing in another process can be watched.
type Watch struct {
	src      Source
	runID    string
	interval time.Duration
	visible  int

	spinner spinner.Model
	status  string
	round   int
	lines   []string
	last    int64
	err     error
	runErr  string
	done    bool
	width   int
}

// NewWatch returns a watch model polling src every interval.
func NewWatch(src Source, runID string, interval time.Duration) Watch {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = activeStyle
	if interval <= 0 {
		interval = time.Second
	}
	return Watch{
		src:      src,
		runID:    runID,
		interval: interval,
		visible:  defaultVisibleLines,
		spinner:  s,
		status:   run.StatusQueued,
	}
}

// Status returns the last status seen.
func (w Watch) Status() string { return w.status }

// Err returns the error that stopped the watch, if any.
func (w Watch) Err() error { return w.err }

// Init implements tea.Model.
func (w Watch) Init() tea.Cmd {
	return tea.Batch(w.spinner.Tick, w.fetch())
}

func (w Watch) fetch() tea.Cmd {
	src, runID, after := w.src, w.runID, w.last
	return func() tea.Msg {
		evs, err := src.Events(context.Background(), runID, after)
		return eventsMsg{evs: evs, err: err}
	}
}

// Update implements tea.Model.
func (w Watch) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch m := msg.(type) {
	case tea.KeyMsg:
		switch m.String() {
		case "q", "esc", "ctrl+c":
			return w, tea.Quit
		}
	case tea.WindowSizeMsg:
		w.width = m.Width
		if m.Height > 6 {
			w.visible = m.Height - 5
		}
	case spinner.TickMsg:
		var cmd tea.Cmd
		w.spinner, cmd = w.spinner.Update(m)
		return w, cmd
	case eventsMsg:
		if m.err != nil {
			w.err = m.err
			return w, tea.Quit
		}
		for _, ev := range m.evs {
			w.apply(ev)
		}
		if w.done {
			return w, tea.Quit
		}
		return w, tea.Tick(w.interval, func(time.Time) tea.Msg { return pollMsg{} })
	case pollMsg:
		return w, w.fetch()
	}
	return w, nil
}

func (w *Watch) apply(ev events.Event) {
	if ev.Seq > w.last {
		w.last = ev.Seq
	}
	switch ev.Type {
	case events.TypeRunStatus:
		var p pipeline.StatusPayload
		if json.Unmarshal(ev.Payload, &p) == nil {
			w.status = p.Status
			if p.Round > 0 {
				w.round = p.Round
			}
			if p.Error != "" {
				w.runErr = p.Error
			}
			w.done = run.Terminal(p.Status)
		}
	case events.TypeRoundUpdate:
		var p pipeline.RoundPayload
		if json.Unmarshal(ev.Payload, &p) == nil {
			w.round = max(w.round, p.Round)
		}
	}
	if line, ok := Describe(ev); ok {
		w.lines = append(w.lines, line)
	}
}

// View implements tea.Model.
func (w Watch) View() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("run " + w.runID))
	b.WriteString("  ")
	b.WriteString(w.statusLabel())
	if w.round > 0 {
		b.WriteString(dimStyle.Render(fmt.Sprintf("  round %d", w.round)))
	}
	b.WriteString("\n\n")

	start := max(0, len(w.lines)-w.visible)
	for _, line := range w.lines[start:] {
		if w.width > 4 && len(line) > w.width-2 {
			line = line[:w.width-5] + "..."
		}
		b.WriteString("  " + line + "\n")
	}

	if w.err != nil {
		b.WriteString("\n" + failStyle.Render("error: "+w.err.Error()) + "\n")
	}
	b.WriteString("\n" + dimStyle.Render("q: quit") + "\n")
	return b.String()
}

func (w Watch) statusLabel() string {
	switch w.status {
	case run.StatusCompleted:
		return okStyle.Render(w.status)
	case run.StatusFailed:
		label := w.status
		if w.runErr != "" {
			label += ": " + w.runErr
		}
		return failStyle.Render(label)
	}
	return w.spinner.View() + " " + activeStyle.Render(w.status)
}
