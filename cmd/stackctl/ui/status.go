package ui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"stackctl/internal/endpoints"
)

// ProbeFunc probes the stack's endpoints once.
type ProbeFunc func(ctx context.Context) []endpoints.Result

type probeMsg struct {
	results []endpoints.Result
	at      time.Time
}

type tickMsg time.Time

// StatusModel is a live endpoint dashboard refreshed every interval.
type StatusModel struct {
	probe    ProbeFunc
	interval time.Duration
	host     string
	styles   Styles
	spinner  spinner.Model

	results []endpoints.Result
	last    time.Time
	probing bool
	rounds  int
}

// NewStatusModel returns a dashboard that calls probe every interval.
func NewStatusModel(host string, probe ProbeFunc, interval time.Duration, styles Styles) StatusModel {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = styles.Spinner
	return StatusModel{
		probe:    probe,
		interval: interval,
		host:     host,
		styles:   styles,
		spinner:  sp,
		probing:  true,
	}
}

// Results returns the latest probe results.
func (m StatusModel) Results() []endpoints.Result {
	return m.results
}

// Rounds returns how many probe rounds completed.
func (m StatusModel) Rounds() int {
	return m.rounds
}

func (m StatusModel) runProbe() tea.Cmd {
	probe := m.probe
	return func() tea.Msg {
		return probeMsg{results: probe(context.Background()), at: time.Now()}
	}
}

func (m StatusModel) scheduleTick() tea.Cmd {
	return tea.Tick(m.interval, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m StatusModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.runProbe())
}

func (m StatusModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "esc", "ctrl+c":
			return m, tea.Quit
		case "r":
			if !m.probing {
				m.probing = true
				return m, tea.Batch(m.spinner.Tick, m.runProbe())
			}
		}

	case probeMsg:
		m.results = msg.results
		m.last = msg.at
		m.probing = false
		m.rounds++
		return m, m.scheduleTick()

	case tickMsg:
		if m.probing {
			return m, nil
		}
		m.probing = true
		return m, tea.Batch(m.spinner.Tick, m.runProbe())

	case spinner.TickMsg:
		if m.probing {
			var cmd tea.Cmd
			m.spinner, cmd = m.spinner.Update(msg)
			return m, cmd
		}
	}
	return m, nil
}

func (m StatusModel) View() string {
	var sb strings.Builder
	sb.WriteString(m.styles.Title.Render("stackctl status " + m.host))
	sb.WriteString("\n")
	sb.WriteString(m.styles.RenderDivider(60) + "\n")

	if len(m.results) > 0 {
		sb.WriteString(EndpointTable(m.results, m.host, m.styles).View(m.styles))
	}

	switch {
	case m.probing:
		sb.WriteString(m.spinner.View() + m.styles.Info.Render(" probing...") + "\n")
	case !m.last.IsZero():
		sb.WriteString(m.styles.Subtitle.Render(fmt.Sprintf("updated %s, next in %s", m.last.Format("15:04:05"), m.interval)) + "\n")
	}
	sb.WriteString(m.styles.Muted.Render("r refresh • q quit") + "\n")
	return sb.String()
}

// EndpointTable renders probe results as a table with the state column
// colored.
func EndpointTable(results []endpoints.Result, host string, styles Styles) *SimpleTable {
	t := NewSimpleTable("", []string{"Endpoint", "URL", "State", "Status", "Latency"})
	t.Empty = "no endpoints"
	t.CellStyle = func(col int, cell string) (lipgloss.Style, bool) {
		if col != 2 {
			return lipgloss.Style{}, false
		}
		if cell == "up" {
			return styles.Success, true
		}
		return styles.Error, true
	}
	for _, r := range results {
		status := "-"
		if r.Status > 0 {
			status = fmt.Sprint(r.Status)
		}
		latency := "-"
		if r.Up {
			latency = r.Latency.Round(time.Millisecond).String()
		}
		state := "down"
		if r.Up {
			state = "up"
		}
		t.AddRow(r.Endpoint.Name, r.Endpoint.URL(host), state, status, latency)
	}
	return t
}
