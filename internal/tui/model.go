// Package tui is the interactive consumer of the orchestrator's published
// snapshot: a live event list with a next-meeting banner, dismissal keys
// and a meeting-link launcher.
package tui

import (
	"fmt"
	"os/exec"
	"runtime"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"

	"github.com/leits/MeetingBar-sub001/internal/core"
	"github.com/leits/MeetingBar-sub001/internal/orchestrator"
	"github.com/leits/MeetingBar-sub001/internal/util"
)

// The snapshot is polled rather than pushed: publication is an atomic
// swap, so reading it on a short tick keeps the model simple.
const pollEvery = 2 * time.Second

type KeyMap struct {
	Up      key.Binding
	Down    key.Binding
	Join    key.Binding
	Dismiss key.Binding
	Restore key.Binding
	Refresh key.Binding
	Quit    key.Binding
	Help    key.Binding
}

var DefaultKeyMap = KeyMap{
	Up:      key.NewBinding(key.WithKeys("up", "k"), key.WithHelp("↑", "up")),
	Down:    key.NewBinding(key.WithKeys("down", "j"), key.WithHelp("↓", "down")),
	Join:    key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "join meeting")),
	Dismiss: key.NewBinding(key.WithKeys("d"), key.WithHelp("d", "dismiss")),
	Restore: key.NewBinding(key.WithKeys("u"), key.WithHelp("u", "restore")),
	Refresh: key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "refresh")),
	Quit:    key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
	Help:    key.NewBinding(key.WithKeys("?"), key.WithHelp("?", "help")),
}

type pollMsg time.Time

func pollCmd() tea.Cmd {
	return tea.Tick(pollEvery, func(t time.Time) tea.Msg { return pollMsg(t) })
}

// Model renders the orchestrator's state. It never fetches itself: the
// refresh key only requests a cycle and the poll tick picks up whatever
// the fetch loop published.
type Model struct {
	orch *orchestrator.Orchestrator
	keys KeyMap

	events    []core.Event
	dismissed map[string]bool
	next      *core.Event
	fetchedAt time.Time

	selected      int
	width, height int
	listWidth     int
	detailWidth   int
	contentHeight int
	listView      viewport.Model
	detailView    viewport.Model
	ready         bool
	showHelp      bool
}

func NewModel(orch *orchestrator.Orchestrator) Model {
	m := Model{orch: orch, keys: DefaultKeyMap}
	m.pull()
	return m
}

// pull copies the published state into the model.
func (m *Model) pull() {
	if snap := m.orch.Snapshot(); snap != nil {
		m.events = snap.Events
		m.fetchedAt = snap.FetchedAt
	}
	m.dismissed = m.orch.Dismissed()
	m.next = m.orch.NextEvent()
	if m.selected >= len(m.events) {
		m.selected = len(m.events) - 1
	}
	if m.selected < 0 {
		m.selected = 0
	}
}

func (m Model) Init() tea.Cmd {
	return pollCmd()
}

func (m *Model) layout() {
	m.contentHeight = m.height - 6
	if m.contentHeight < 5 {
		m.contentHeight = 5
	}
	m.listWidth = m.width * 40 / 100
	if m.listWidth < 28 {
		m.listWidth = 28
	}
	m.detailWidth = m.width - m.listWidth - 5
	if m.detailWidth < 30 {
		m.detailWidth = 30
	}

	listW, listH := m.listWidth-4, m.contentHeight-2
	detailW, detailH := m.detailWidth-6, m.contentHeight-4
	if listW < 10 {
		listW = 10
	}
	if detailW < 10 {
		detailW = 10
	}
	if listH < 1 {
		listH = 1
	}
	if detailH < 1 {
		detailH = 1
	}

	if !m.ready {
		m.listView = viewport.New(listW, listH)
		m.detailView = viewport.New(detailW, detailH)
		m.ready = true
	} else {
		m.listView.Width, m.listView.Height = listW, listH
		m.detailView.Width, m.detailView.Height = detailW, detailH
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.layout()
		m.refreshContent()
		return m, nil

	case pollMsg:
		m.pull()
		m.refreshContent()
		return m, pollCmd()

	case tea.KeyMsg:
		if m.showHelp {
			m.showHelp = false
			return m, nil
		}

		switch {
		case key.Matches(msg, m.keys.Quit):
			return m, tea.Quit

		case key.Matches(msg, m.keys.Help):
			m.showHelp = true
			return m, nil

		case key.Matches(msg, m.keys.Up):
			if m.selected > 0 {
				m.selected--
				m.refreshContent()
				m.scrollToSelection()
			}
			return m, nil

		case key.Matches(msg, m.keys.Down):
			if m.selected < len(m.events)-1 {
				m.selected++
				m.refreshContent()
				m.scrollToSelection()
			}
			return m, nil

		case key.Matches(msg, m.keys.Refresh):
			m.orch.Refresh()
			return m, nil

		case key.Matches(msg, m.keys.Dismiss):
			if e := m.selectedEvent(); e != nil {
				m.orch.Dismiss(*e)
				m.pull()
				m.refreshContent()
			}
			return m, nil

		case key.Matches(msg, m.keys.Restore):
			if e := m.selectedEvent(); e != nil {
				m.orch.Undismiss(e.ID)
				m.pull()
				m.refreshContent()
			}
			return m, nil

		case key.Matches(msg, m.keys.Join):
			if e := m.selectedEvent(); e != nil && e.MeetingLink != "" {
				return m, openURL(e.MeetingLink)
			}
			return m, nil
		}
	}
	return m, nil
}

func (m *Model) selectedEvent() *core.Event {
	if len(m.events) == 0 || m.selected >= len(m.events) {
		return nil
	}
	return &m.events[m.selected]
}

func (m Model) View() string {
	if m.width == 0 {
		return "Loading..."
	}

	header := m.renderHeader()

	var content string
	if m.showHelp {
		content = lipgloss.JoinHorizontal(lipgloss.Top, m.renderListPanel(), " ", m.renderHelpPanel())
	} else {
		content = lipgloss.JoinHorizontal(lipgloss.Top, m.renderListPanel(), " ", m.renderDetailPanel())
	}

	help := helpStyle.Render(strings.Join([]string{
		helpKeyStyle.Render("↑/↓") + " nav",
		helpKeyStyle.Render("enter") + " join",
		helpKeyStyle.Render("d") + " dismiss",
		helpKeyStyle.Render("u") + " restore",
		helpKeyStyle.Render("r") + " refresh",
		helpKeyStyle.Render("q") + " quit",
	}, "  •  "))

	return appStyle.Render(lipgloss.JoinVertical(lipgloss.Left, header, content, help))
}

func (m Model) renderHeader() string {
	title := headerStyle.Render("meetingbar")

	banner := ""
	if m.next != nil {
		now := time.Now()
		if m.next.InProgress(now) {
			banner = nextBannerStyle.Render(fmt.Sprintf("NOW: %s (%s left)", m.next.Title, formatDuration(m.next.End.Sub(now))))
		} else {
			banner = nextBannerStyle.Render(fmt.Sprintf("NEXT: %s in %s", m.next.Title, formatDuration(m.next.Start.Sub(now))))
		}
	}

	stamp := ""
	if !m.fetchedAt.IsZero() {
		stamp = lipgloss.NewStyle().Foreground(mutedColor).Render("fetched " + m.fetchedAt.Local().Format("15:04:05"))
	}

	return lipgloss.JoinHorizontal(lipgloss.Center, title, "  ", banner, "  ", stamp)
}

func (m *Model) refreshContent() {
	if !m.ready {
		return
	}
	m.updateListContent()
	m.updateDetailContent()
}

func (m *Model) updateListContent() {
	if len(m.events) == 0 {
		m.listView.SetContent(normalItemStyle.Render("No events"))
		return
	}

	now := time.Now()
	items := make([]string, 0, len(m.events))
	for i, event := range m.events {
		items = append(items, m.renderListItem(event, i == m.selected, now))
	}
	m.listView.SetContent(strings.Join(items, "\n"))
}

func (m Model) renderListItem(event core.Event, selected bool, now time.Time) string {
	timeStr := event.Start.Local().Format("15:04")
	if event.IsAllDay {
		timeStr = "all day"
	}

	title := event.Title
	maxTitle := m.listView.Width - 14
	if maxTitle < 10 {
		maxTitle = 10
	}
	title = util.Truncate(title, maxTitle)

	marker := ""
	if event.MeetingLink != "" {
		marker = " ◆"
	}

	line := fmt.Sprintf("%s %s%s", timeStyle.Render(timeStr), title, marker)

	switch {
	case selected:
		return selectedItemStyle.Render(line)
	case m.dismissed[event.ID]:
		return dismissedItemStyle.Render(line)
	case event.End.Before(now):
		return pastItemStyle.Render(line)
	default:
		return normalItemStyle.Render(line)
	}
}

func (m *Model) scrollToSelection() {
	top := m.selected
	bottom := top + 1
	if top < m.listView.YOffset {
		m.listView.SetYOffset(top)
	}
	if bottom > m.listView.YOffset+m.listView.Height {
		m.listView.SetYOffset(bottom - m.listView.Height)
	}
}

func (m *Model) updateDetailContent() {
	event := m.selectedEvent()
	if event == nil {
		m.detailView.SetContent("")
		return
	}

	width := m.detailView.Width
	var lines []string

	lines = append(lines, titleStyle.Render(ansi.Wordwrap(event.Title, width, "")))
	lines = append(lines, "")
	lines = append(lines, field("When", formatEventTime(*event)))
	if !event.IsAllDay {
		lines = append(lines, field("Duration", formatDuration(event.End.Sub(event.Start))))
	}
	if event.Location != "" {
		lines = append(lines, field("Location", event.Location))
	}
	if event.Organizer != "" {
		lines = append(lines, field("Organizer", event.Organizer))
	}
	if event.MeetingLink != "" {
		display := linkStyle.Render(util.Truncate(event.MeetingLink, width-13))
		lines = append(lines, field("Join", util.Hyperlink(event.MeetingLink, display)))
	}
	lines = append(lines, field("Response", formatResponse(event.Participation)))
	if m.dismissed[event.ID] {
		lines = append(lines, "")
		lines = append(lines, errStyle.Render("dismissed — press u to restore"))
	}

	if len(event.Attendees) > 0 {
		lines = append(lines, "")
		lines = append(lines, labelStyle.Render("Attendees"))
		for _, a := range event.Attendees {
			name := a.Name
			if name == "" {
				name = a.Email
			}
			suffix := ""
			if a.IsCurrentUser {
				suffix = " (you)"
			}
			lines = append(lines, fmt.Sprintf("  %s%s — %s", name, suffix, formatResponse(a.Response)))
		}
	}

	if event.Notes != "" {
		lines = append(lines, "")
		lines = append(lines, labelStyle.Render("Notes"))
		notes := util.CleanHTML(event.Notes)
		lines = append(lines, valueStyle.Render(ansi.Wordwrap(notes, width, "")))
	}

	m.detailView.SetContent(strings.Join(lines, "\n"))
}

func (m Model) renderListPanel() string {
	header := lipgloss.NewStyle().Foreground(primaryColor).Bold(true).Render("Events")
	if len(m.events) > 0 {
		header += lipgloss.NewStyle().Foreground(mutedColor).Render(fmt.Sprintf(" (%d/%d)", m.selected+1, len(m.events)))
	}
	return listPanelStyle.Width(m.listWidth).Height(m.contentHeight).Render(
		lipgloss.JoinVertical(lipgloss.Left, header, m.listView.View()),
	)
}

func (m Model) renderDetailPanel() string {
	return detailPanelStyle.Width(m.detailWidth).Height(m.contentHeight).Render(m.detailView.View())
}

func (m Model) renderHelpPanel() string {
	header := lipgloss.NewStyle().Foreground(primaryColor).Bold(true).Render("Keys")
	lines := []string{
		"",
		helpKeyStyle.Render("  ↑/↓        ") + " Move selection",
		helpKeyStyle.Render("  enter      ") + " Join the meeting",
		helpKeyStyle.Render("  d          ") + " Dismiss event",
		helpKeyStyle.Render("  u          ") + " Restore dismissed event",
		helpKeyStyle.Render("  r          ") + " Refresh now",
		helpKeyStyle.Render("  q / ctrl+c ") + " Quit",
		"",
		lipgloss.NewStyle().Foreground(mutedColor).Italic(true).Render("  Press any key to close"),
	}
	return detailPanelStyle.Width(m.detailWidth).Height(m.contentHeight).Render(
		lipgloss.JoinVertical(lipgloss.Left, header, strings.Join(lines, "\n")),
	)
}

func field(label, value string) string {
	return labelStyle.Render(label) + " " + valueStyle.Render(value)
}

func formatEventTime(event core.Event) string {
	start := event.Start.Local()
	end := event.End.Local()
	if event.IsAllDay {
		return start.Format("Mon, Jan 2") + " (all day)"
	}
	if start.Day() == end.Day() {
		return fmt.Sprintf("%s, %s – %s", start.Format("Mon, Jan 2"), start.Format("15:04"), end.Format("15:04"))
	}
	return fmt.Sprintf("%s – %s", start.Format("Mon, Jan 2 15:04"), end.Format("Mon, Jan 2 15:04"))
}

func formatDuration(d time.Duration) string {
	if d < 0 {
		d = -d
	}
	hours := int(d.Hours())
	minutes := int(d.Minutes()) % 60
	if hours > 0 {
		if minutes > 0 {
			return fmt.Sprintf("%dh %dm", hours, minutes)
		}
		return fmt.Sprintf("%dh", hours)
	}
	return fmt.Sprintf("%dm", minutes)
}

func formatResponse(r core.ResponseStatus) string {
	switch r {
	case core.ResponseAccepted:
		return "accepted"
	case core.ResponseDeclined:
		return "declined"
	case core.ResponseTentative:
		return "tentative"
	case core.ResponsePending:
		return "pending"
	default:
		return "unknown"
	}
}

// openURL opens the link with the platform handler.
func openURL(url string) tea.Cmd {
	return func() tea.Msg {
		var cmd *exec.Cmd
		switch runtime.GOOS {
		case "darwin":
			cmd = exec.Command("open", url)
		case "linux":
			cmd = exec.Command("xdg-open", url)
		case "windows":
			cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
		default:
			return nil
		}
		_ = cmd.Start()
		return nil
	}
}
