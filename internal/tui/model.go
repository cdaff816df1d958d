package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"go-mailflow-dashboard/internal/dashboard"
	"go-mailflow-dashboard/internal/tracking"
)

// Requester asks for an out-of-band refresh. *dashboard.Refresher satisfies it.
type Requester interface {
	Request(reason string, views ...dashboard.ViewID)
}

type tab struct {
	view  dashboard.ViewID
	title string
}

var tabs = []tab{
	{view: dashboard.ViewMessageTracking, title: "Tracking"},
	{view: dashboard.ViewSMTP, title: "SMTP"},
	{view: dashboard.ViewQueueMessages, title: "Queue"},
}

// queueColumnLimit caps the generic queue table so it fits a terminal.
const queueColumnLimit = 6

type noticeMsg dashboard.Notice

type tickMsg time.Time

// Model browses journeys, SMTP sessions and the queue. Expanding a row holds
// that view back from refreshes until it is collapsed again.
type Model struct {
	state     *dashboard.State
	tracker   *dashboard.Tracker
	requester Requester
	notices   <-chan dashboard.Notice
	loc       *time.Location
	now       func() time.Time

	active   int
	expanded bool
	data     dashboard.Data

	table  table.Model
	detail viewport.Model
	help   help.Model

	width  int
	height int
	status string
}

// New builds the model. notices may be nil, in which case only the periodic
// tick reloads data.
func New(state *dashboard.State, tracker *dashboard.Tracker, requester Requester, notices <-chan dashboard.Notice, loc *time.Location) Model {
	if loc == nil {
		loc = time.Local
	}
	t := table.New(table.WithFocused(true), table.WithHeight(20))
	t.SetStyles(table.DefaultStyles())

	m := Model{
		state:     state,
		tracker:   tracker,
		requester: requester,
		notices:   notices,
		loc:       loc,
		now:       time.Now,
		table:     t,
		detail:    viewport.New(80, 20),
		help:      help.New(),
		width:     120,
		height:    30,
	}
	m.tracker.SetActive(m.view())
	m.reload()
	return m
}

func (m Model) view() dashboard.ViewID {
	return tabs[m.active].view
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(waitForNotice(m.notices), tickEvery())
}

func waitForNotice(ch <-chan dashboard.Notice) tea.Cmd {
	if ch == nil {
		return nil
	}
	return func() tea.Msg {
		n, ok := <-ch
		if !ok {
			return nil
		}
		return noticeMsg(n)
	}
}

func tickEvery() tea.Cmd {
	return tea.Tick(30*time.Second, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.help.Width = msg.Width
		m.resize()
		return m, nil

	case noticeMsg:
		if !(m.expanded && msg.View == m.view()) {
			m.reload()
		}
		return m, waitForNotice(m.notices)

	case tickMsg:
		if !m.expanded {
			m.reload()
		}
		return m, tickEvery()

	case tea.KeyMsg:
		return m.handleKey(msg)
	}
	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, keys.Quit):
		return m, tea.Quit

	case key.Matches(msg, keys.Tab):
		m.switchTab(1)
		return m, nil

	case key.Matches(msg, keys.Back):
		m.switchTab(len(tabs) - 1)
		return m, nil

	case key.Matches(msg, keys.Expand):
		if m.expanded {
			m.collapse()
		} else if msg.String() == "enter" {
			m.expand()
		}
		return m, nil

	case key.Matches(msg, keys.Refresh):
		if m.requester != nil {
			m.requester.Request("tui", m.view())
			m.status = "refresh requested for " + tabs[m.active].title
		}
		return m, nil

	case key.Matches(msg, keys.Help):
		m.help.ShowAll = !m.help.ShowAll
		return m, nil
	}

	var cmd tea.Cmd
	if m.expanded {
		m.detail, cmd = m.detail.Update(msg)
	} else {
		m.table, cmd = m.table.Update(msg)
	}
	return m, cmd
}

func (m *Model) switchTab(step int) {
	m.collapse()
	m.active = (m.active + step) % len(tabs)
	m.tracker.SetActive(m.view())
	m.status = ""
	m.table.SetCursor(0)
	m.reload()
}

func (m *Model) expand() {
	content, ok := m.detailContent(m.table.Cursor())
	if !ok {
		return
	}
	m.expanded = true
	m.tracker.SetExpanded(m.view(), true)
	m.detail.SetContent(content)
	m.detail.GotoTop()
}

func (m *Model) collapse() {
	if !m.expanded {
		return
	}
	m.expanded = false
	m.tracker.SetExpanded(m.view(), false)
	m.reload()
}

// reload copies the current state and rebuilds the table for the active tab.
func (m *Model) reload() {
	m.data = m.state.Data()
	cols, rows := m.tableFor(m.view())
	cursor := m.table.Cursor()
	m.table.SetRows(nil)
	m.table.SetColumns(cols)
	m.table.SetRows(rows)
	if cursor >= len(rows) {
		cursor = max(0, len(rows)-1)
	}
	m.table.SetCursor(cursor)
}

func (m *Model) resize() {
	bodyHeight := max(3, m.height-7)
	m.table.SetHeight(bodyHeight)
	m.table.SetWidth(m.width)
	m.detail.Width = max(20, m.width-4)
	m.detail.Height = max(3, bodyHeight-2)
	m.reload()
}

func (m Model) tableFor(v dashboard.ViewID) ([]table.Column, []table.Row) {
	switch v {
	case dashboard.ViewMessageTracking:
		subject := max(20, m.width-19-28-28-10-6-8)
		cols := []table.Column{
			{Title: "Time", Width: 19},
			{Title: "From", Width: 28},
			{Title: "To", Width: 28},
			{Title: "Subject", Width: subject},
			{Title: "Took", Width: 10},
			{Title: "", Width: 6},
		}
		rows := make([]table.Row, 0, len(m.data.Journeys))
		for _, j := range m.data.Journeys {
			flag := ""
			if j.HasFailure {
				flag = "FAIL"
			}
			rows = append(rows, table.Row{j.TimestampDisplay, j.Sender, j.Recipients, j.Subject, j.ProcessingTime, flag})
		}
		return cols, rows

	case dashboard.ViewSMTP:
		cols := []table.Column{
			{Title: "#", Width: 6},
			{Title: "Start", Width: 19},
			{Title: "From", Width: 32},
			{Title: "To", Width: 32},
			{Title: "Direction", Width: 12},
		}
		rows := make([]table.Row, 0, len(m.data.SMTPRows))
		for _, r := range m.data.SMTPRows {
			rows = append(rows, table.Row{fmt.Sprint(r.SortOrder), r.StartDisplay, r.From, r.To, r.Direction})
		}
		return cols, rows

	default:
		tbl := m.data.QueueMessages
		if tbl == nil || len(tbl.Columns) == 0 {
			return []table.Column{{Title: "Queue", Width: 40}}, nil
		}
		n := min(len(tbl.Columns), queueColumnLimit)
		width := max(10, (m.width-2*n)/n)
		cols := make([]table.Column, 0, n)
		for _, c := range tbl.Columns[:n] {
			cols = append(cols, table.Column{Title: c, Width: width})
		}
		rows := make([]table.Row, 0, len(tbl.Rows))
		for _, r := range tbl.Rows {
			row := make(table.Row, n)
			for i := 0; i < n && i < len(r); i++ {
				row[i] = cellString(r[i])
			}
			rows = append(rows, row)
		}
		return cols, rows
	}
}

// detailContent renders the expanded form of row i of the active tab.
func (m Model) detailContent(i int) (string, bool) {
	var b strings.Builder
	switch m.view() {
	case dashboard.ViewMessageTracking:
		if i < 0 || i >= len(m.data.Journeys) {
			return "", false
		}
		j := m.data.Journeys[i]
		fmt.Fprintf(&b, "%s\n%s -> %s\n%s\n\n", j.MessageID, j.Sender, j.Recipients, j.Subject)
		for _, d := range tracking.Detail(j, m.loc) {
			fmt.Fprintf(&b, "%s %-18s %s  %s\n", d.Icon, d.EventID, d.Timestamp, dimStyle.Render(d.Source))
			fmt.Fprintf(&b, "   %s\n", dimStyle.Render(d.Description))
		}
	case dashboard.ViewSMTP:
		if i < 0 || i >= len(m.data.SMTPRows) {
			return "", false
		}
		r := m.data.SMTPRows[i]
		fmt.Fprintf(&b, "session %d  %s -> %s\n\n", r.SortOrder, r.From, r.To)
		for _, d := range r.Detail {
			fmt.Fprintf(&b, "%s %s %s\n", d.Timestamp, d.Direction, d.Data)
		}
	default:
		tbl := m.data.QueueMessages
		if tbl == nil || i < 0 || i >= len(tbl.Rows) {
			return "", false
		}
		for c, name := range tbl.Columns {
			if c < len(tbl.Rows[i]) {
				fmt.Fprintf(&b, "%-24s %s\n", name, cellString(tbl.Rows[i][c]))
			}
		}
	}
	return b.String(), true
}

func cellString(v any) string {
	if v == nil {
		return ""
	}
	return fmt.Sprint(v)
}

func (m Model) View() string {
	var tabBar []string
	for i, t := range tabs {
		style := tabStyle
		if i == m.active {
			style = activeTabStyle
		}
		tabBar = append(tabBar, style.Render(t.title))
	}
	header := lipgloss.JoinHorizontal(lipgloss.Top, append([]string{titleStyle.Render("mailflow")}, tabBar...)...)

	var body string
	if m.expanded {
		body = detailStyle.Render(m.detail.View())
	} else {
		body = m.table.View()
	}

	return lipgloss.JoinVertical(lipgloss.Left,
		header,
		m.summaryLine(),
		body,
		statusBarStyle.Render(m.statusLine()),
		m.help.View(keys),
	)
}

func (m Model) summaryLine() string {
	q := m.data.QueueSummary
	return dimStyle.Render(fmt.Sprintf("queue %s total, %s retry, %s failed | %s journeys | %s sessions",
		humanize.Comma(int64(q.Total)),
		humanize.Comma(int64(q.Retry)),
		humanize.Comma(int64(q.Failed)),
		humanize.Comma(int64(len(m.data.Journeys))),
		humanize.Comma(int64(len(m.data.SMTPRows))),
	))
}

func (m Model) statusLine() string {
	st := m.state.ViewStatus(m.view())
	parts := []string{tabs[m.active].title}
	switch {
	case m.expanded:
		parts = append(parts, "held while expanded")
	case st.RefreshedAt != nil:
		parts = append(parts, "refreshed "+humanize.RelTime(*st.RefreshedAt, m.now(), "ago", "from now"))
	default:
		parts = append(parts, "waiting for first refresh")
	}
	if st.LastError != "" {
		parts = append(parts, errorStyle.Render(st.LastError))
	}
	if m.status != "" {
		parts = append(parts, m.status)
	}
	return strings.Join(parts, " | ")
}
