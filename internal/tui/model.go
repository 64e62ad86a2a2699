// Package tui renders a live terminal dashboard of the detector state.
package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/sznuper/poolwatch/internal/detect"
	"github.com/sznuper/poolwatch/internal/watcher"
)

const (
	maxRecent    = 8
	defaultWidth = 60
)

// ResultMsg carries one processed line into the program.
type ResultMsg watcher.Result

// DoneMsg reports that the line source ended.
type DoneMsg struct{ Err error }

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#36C5F0"))
	labelStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("241")).Width(14)
	okStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#2EB67D")).Bold(true)
	warnStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#FFA500")).Bold(true)
	alarmStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF0000")).Bold(true)
	dimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	footerStyle = dimStyle.MarginTop(1)
)

// Model is the bubbletea model of the dashboard.
type Model struct {
	source      string
	snap        detect.Snapshot
	maintenance bool
	lines       int
	matched     int
	recent      []watcher.Delivery
	done        *DoneMsg

	spinner spinner.Model
	window  progress.Model
	rate    progress.Model
}

// New creates the dashboard for the given source and initial detector state.
func New(source string, snap detect.Snapshot) Model {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = titleStyle

	return Model{
		source:  source,
		snap:    snap,
		spinner: sp,
		window:  progress.New(progress.WithDefaultGradient(), progress.WithWidth(defaultWidth-14), progress.WithoutPercentage()),
		rate:    progress.New(progress.WithGradient("#FFA500", "#FF0000"), progress.WithWidth(defaultWidth-14), progress.WithoutPercentage()),
	}
}

func (m Model) Init() tea.Cmd {
	return m.spinner.Tick
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "esc", "ctrl+c":
			return m, tea.Quit
		}
	case tea.WindowSizeMsg:
		w := max(msg.Width-16, 10)
		m.window.Width = w
		m.rate.Width = w
	case ResultMsg:
		m.lines++
		if msg.Matched {
			m.matched++
		}
		m.snap = msg.Snapshot
		m.maintenance = msg.Maintenance
		m.recent = append(m.recent, msg.Deliveries...)
		if n := len(m.recent); n > maxRecent {
			m.recent = m.recent[n-maxRecent:]
		}
	case DoneMsg:
		m.done = &msg
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m Model) View() string {
	var b strings.Builder

	status := m.spinner.View() + " watching"
	if m.done != nil {
		status = "stopped"
		if m.done.Err != nil {
			status = alarmStyle.Render("stopped: " + m.done.Err.Error())
		}
	}
	fmt.Fprintf(&b, "%s %s %s\n\n", titleStyle.Render("poolwatch"), dimStyle.Render(m.source), status)

	pool := okStyle.Render(m.snap.CurrentPool)
	if m.snap.FailedOver {
		pool = alarmStyle.Render(m.snap.CurrentPool + " (FAILED OVER from " + m.snap.ActivePool + ")")
	}
	row(&b, "Pool", pool)

	maint := okStyle.Render("off")
	if m.maintenance {
		maint = warnStyle.Render("ON, alerts suppressed")
	}
	row(&b, "Maintenance", maint)

	row(&b, "Lines", fmt.Sprintf("%d read, %d matched", m.lines, m.matched))

	fill := 0.0
	if m.snap.WindowSize > 0 {
		fill = float64(m.snap.WindowLen) / float64(m.snap.WindowSize)
	}
	row(&b, "Window", fmt.Sprintf("%s %d/%d", m.window.ViewAs(fill), m.snap.WindowLen, m.snap.WindowSize))

	rate := dimStyle.Render("waiting for a full window")
	if m.snap.WindowFull {
		style := okStyle
		if m.snap.Breached {
			style = alarmStyle
		}
		rate = fmt.Sprintf("%s %s", m.rate.ViewAs(m.snap.ErrorRate/100),
			style.Render(fmt.Sprintf("%.2f%% (threshold %.2f%%)", m.snap.ErrorRate, m.snap.Threshold)))
	}
	row(&b, "Error rate", rate)

	b.WriteString("\n" + titleStyle.Render("Recent alerts") + "\n")
	if len(m.recent) == 0 {
		b.WriteString(dimStyle.Render("  none yet") + "\n")
	}
	for i := len(m.recent) - 1; i >= 0; i-- {
		d := m.recent[i]
		fmt.Fprintf(&b, "  %s %-10s %s\n",
			dimStyle.Render(d.Alert.At.Format("15:04:05")), d.Outcome, firstLine(d.Alert.Text))
	}

	b.WriteString(footerStyle.Render("q to quit"))
	return b.String()
}

func row(b *strings.Builder, label, value string) {
	b.WriteString(labelStyle.Render(label) + value + "\n")
}

func firstLine(s string) string {
	line, _, _ := strings.Cut(s, "\n")
	return line
}
