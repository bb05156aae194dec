package ui

import (
	"fmt"
	"strings"

	"schedos/pkg/trace"
	"schedos/pkg/ui/base"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// Model is the trace viewer: one tab per scenario report, a thread table on
// top and the scrollable event log below it.
type Model struct {
	reports []trace.Report
	active  int

	threadTable table.Model
	eventLog    viewport.Model
	help        help.Model
	highlighter *EventHighlighter

	width    int
	height   int
	showHelp bool
	keys     keyMap
}

// NewModel builds a viewer over the given reports. At least one report is
// required; the first is shown initially.
func NewModel(reports []trace.Report) Model {
	t := table.New(
		table.WithColumns(threadColumns()),
		table.WithRows([]table.Row{}),
		table.WithFocused(false),
		table.WithHeight(8),
	)

	s := table.DefaultStyles()
	s.Header = s.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(primaryColor).
		BorderBottom(true).
		Bold(true).
		Foreground(primaryColor)
	s.Selected = s.Selected.
		Foreground(bgDark).
		Background(secondaryColor).
		Bold(false)
	t.SetStyles(s)

	vp := viewport.New(100, 16)
	vp.Style = eventLogStyle

	m := Model{
		reports:     reports,
		threadTable: t,
		eventLog:    vp,
		help:        help.New(),
		highlighter: NewEventHighlighter(),
		keys:        keys,
	}
	m.loadReport(0)
	return m
}

func (m Model) Init() tea.Cmd {
	return nil
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.updateLayout()

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.Quit):
			return m, tea.Quit

		case key.Matches(msg, m.keys.NextReport):
			m.loadReport((m.active + 1) % len(m.reports))

		case key.Matches(msg, m.keys.PrevReport):
			m.loadReport((m.active - 1 + len(m.reports)) % len(m.reports))

		case key.Matches(msg, m.keys.ScrollUp):
			m.eventLog.LineUp(1)

		case key.Matches(msg, m.keys.ScrollDown):
			m.eventLog.LineDown(1)

		case key.Matches(msg, m.keys.PageUp):
			m.eventLog.ViewUp()

		case key.Matches(msg, m.keys.PageDown):
			m.eventLog.ViewDown()

		case key.Matches(msg, m.keys.Help):
			m.showHelp = !m.showHelp
		}
	}

	return m, nil
}

func (m Model) View() string {
	var sections []string

	sections = append(sections, m.renderHeader())
	sections = append(sections, m.renderThreadTable())
	sections = append(sections, m.renderEventLog())
	sections = append(sections, m.renderStatusBar())

	if m.showHelp {
		sections = append(sections, m.renderHelp())
	}

	return appStyle.Render(strings.Join(sections, "\n"))
}

// loadReport switches the viewer to reports[i] and rebuilds both panes.
func (m *Model) loadReport(i int) {
	m.active = i
	rep := m.reports[i]

	rows := make([]table.Row, 0, len(rep.Threads))
	for _, th := range rep.Threads {
		rows = append(rows, table.Row{
			fmt.Sprintf("%d", th.TID),
			th.Name,
			th.Status.String(),
			fmt.Sprintf("%d", th.Priority),
			fmt.Sprintf("%d", th.BasePriority),
			fmt.Sprintf("%d", th.Donors),
		})
	}
	m.threadTable.SetRows(rows)

	lines := make([]string, 0, len(rep.Events))
	for _, e := range rep.Events {
		lines = append(lines, m.highlighter.Highlight(e))
	}
	m.eventLog.SetContent(strings.Join(lines, "\n"))
	m.eventLog.GotoTop()
}

func threadColumns() []table.Column {
	return []table.Column{
		{Title: "TID", Width: 5},
		{Title: "Name", Width: 18},
		{Title: "Status", Width: 9},
		{Title: "Prio", Width: 5},
		{Title: "Base", Width: 5},
		{Title: "Donors", Width: 7},
	}
}

func (m Model) renderHeader() string {
	rep := m.reports[m.active]

	title := titleStyle.Render("⏱ SchedOS Trace Viewer")
	badge := scenarioBadgeStyle.Render(fmt.Sprintf("scenario: %s", rep.Scenario))
	position := lipgloss.NewStyle().
		Foreground(textSecondary).
		Render(fmt.Sprintf("[%d/%d]", m.active+1, len(m.reports)))

	header := lipgloss.JoinHorizontal(lipgloss.Left, title, "  ", badge, "  ", position)

	separatorWidth := base.Max(m.width-4, 0)
	separator := lipgloss.NewStyle().
		Foreground(bgLight).
		Render(strings.Repeat("─", separatorWidth))

	return header + "\n" + separator
}

func (m Model) renderThreadTable() string {
	label := sectionLabelStyle.Render("Threads (final state)")
	return fmt.Sprintf("%s\n%s", label, m.threadTable.View())
}

func (m Model) renderEventLog() string {
	rep := m.reports[m.active]

	label := sectionLabelStyle.Render(
		fmt.Sprintf("Events (%d shown, %d dropped)", len(rep.Events), rep.Dropped))
	return fmt.Sprintf("%s\n%s", label, m.eventLog.View())
}

func (m Model) renderStatusBar() string {
	rep := m.reports[m.active]

	ticks := fmt.Sprintf("● idle %d | kernel %d | user %d",
		rep.IdleTicks, rep.KernelTicks, rep.UserTicks)
	hint := " | tab: next scenario | ctrl+h: help"

	content := lipgloss.NewStyle().Foreground(accentColor).Render(ticks) +
		lipgloss.NewStyle().Foreground(textMuted).Render(hint)

	return statusBarStyle.
		Width(base.Max(m.width-4, 0)).
		Render(content)
}

func (m Model) renderHelp() string {
	helpText := m.help.FullHelpView([][]key.Binding{
		{
			m.keys.NextReport,
			m.keys.PrevReport,
			m.keys.ScrollUp,
			m.keys.ScrollDown,
			m.keys.PageUp,
			m.keys.PageDown,
			m.keys.Help,
			m.keys.Quit,
		},
	})

	return lipgloss.NewStyle().
		Border(lipgloss.DoubleBorder()).
		BorderForeground(primaryColor).
		Padding(1, 2).
		Background(bgMedium).
		Render(helpText)
}

// updateLayout adjusts component sizes based on window size
func (m *Model) updateLayout() {
	tableHeight := 8
	logHeight := base.Max(m.height-tableHeight-10, 4)

	m.eventLog.Width = base.Max(m.width-6, 20)
	m.eventLog.Height = logHeight
	m.threadTable.SetWidth(base.Max(m.width-6, 20))
}
