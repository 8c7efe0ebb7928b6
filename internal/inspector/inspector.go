// Package inspector implements the live `plumberd top` dashboard: a
// bubbletea program that polls the scheduler's stats snapshot on a tick
// and renders worker/equeue/request-rate gauges with lipgloss, grounded on
// the teacher's tui.Model (its tickMsg-driven Init/Update/View shape,
// generalized from a one-shot execution plan to an open-ended live poll).
package inspector

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// StatsSource is polled once per tick. cmd/plumberd copies the scheduler's
// Stats fields into this package's Stats, so the inspector does not import
// the scheduler, which would otherwise pull the whole scheduler dependency
// graph into a TUI build.
type StatsSource func() Stats

// Stats mirrors scheduler.Stats; kept as its own type so this package has
// no import-time dependency on the scheduler package.
type Stats struct {
	Workers        int
	AsyncPoolSize  int
	EqueueLen      int
	TotalRequests  int64
	ActiveRequests int64
}

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("86"))
	labelStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	valueStyle = lipgloss.NewStyle().Bold(true)
	barStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("212"))
)

type tickMsg time.Time

// Model is the Bubbletea state for the live scheduler dashboard.
type Model struct {
	poll     StatsSource
	interval time.Duration

	current  Stats
	previous Stats
	samples  int
}

// NewModel constructs a dashboard model that polls source every interval.
func NewModel(source StatsSource, interval time.Duration) Model {
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}
	return Model{poll: source, interval: interval}
}

func (m Model) Init() tea.Cmd {
	return tea.Tick(m.interval, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tickMsg:
		_ = msg
		m.previous = m.current
		m.current = m.poll()
		m.samples++
		return m, tea.Tick(m.interval, func(t time.Time) tea.Msg { return tickMsg(t) })
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		}
	}
	return m, nil
}

func (m Model) View() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("plumberd — live scheduler status"))
	b.WriteString("\n\n")

	fmt.Fprintf(&b, "%s %s\n", labelStyle.Render("workers:"), valueStyle.Render(fmt.Sprintf("%d", m.current.Workers)))
	fmt.Fprintf(&b, "%s %s\n", labelStyle.Render("async pool:"), valueStyle.Render(fmt.Sprintf("%d", m.current.AsyncPoolSize)))
	fmt.Fprintf(&b, "%s %s\n", labelStyle.Render("active requests:"), valueStyle.Render(fmt.Sprintf("%d", m.current.ActiveRequests)))
	fmt.Fprintf(&b, "%s %s\n", labelStyle.Render("total requests:"), valueStyle.Render(fmt.Sprintf("%d", m.current.TotalRequests)))

	b.WriteString("\n")
	fmt.Fprintf(&b, "%s %s\n", labelStyle.Render("equeue depth:"), valueStyle.Render(fmt.Sprintf("%d", m.current.EqueueLen)))
	b.WriteString(renderBar(m.current.EqueueLen, 64))

	rate := m.current.TotalRequests - m.previous.TotalRequests
	if m.samples > 1 {
		b.WriteString("\n\n")
		fmt.Fprintf(&b, "%s %s\n", labelStyle.Render("requests/tick:"), valueStyle.Render(fmt.Sprintf("%d", rate)))
	}

	b.WriteString("\npress q to quit\n")
	return b.String()
}

func renderBar(value, max int) string {
	const width = 40
	if max <= 0 {
		max = 1
	}
	filled := value * width / max
	if filled > width {
		filled = width
	}
	if filled < 0 {
		filled = 0
	}
	return barStyle.Render(strings.Repeat("█", filled) + strings.Repeat("░", width-filled))
}
