package tui

import "github.com/charmbracelet/lipgloss"

var (
	primaryColor = lipgloss.Color("#2563EB") // Blue
	activeColor  = lipgloss.Color("#10B981") // Green
	mutedColor   = lipgloss.Color("#6B7280") // Gray
	accentColor  = lipgloss.Color("#F59E0B") // Amber
	errorColor   = lipgloss.Color("#EF4444") // Red
	fgColor      = lipgloss.Color("#F9FAFB") // Light

	appStyle    = lipgloss.NewStyle().Padding(1, 2)
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(primaryColor)

	listPanelStyle   = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(mutedColor).Padding(0, 1)
	detailPanelStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(primaryColor).Padding(1, 2)

	selectedItemStyle  = lipgloss.NewStyle().Background(primaryColor).Foreground(fgColor).Bold(true).Padding(0, 1)
	normalItemStyle    = lipgloss.NewStyle().Foreground(fgColor).Padding(0, 1)
	dismissedItemStyle = lipgloss.NewStyle().Foreground(mutedColor).Strikethrough(true).Padding(0, 1)
	pastItemStyle      = lipgloss.NewStyle().Foreground(mutedColor).Faint(true).Padding(0, 1)
	timeStyle          = lipgloss.NewStyle().Foreground(activeColor).Width(10)

	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(primaryColor)
	labelStyle = lipgloss.NewStyle().Foreground(accentColor).Bold(true).Width(12)
	valueStyle = lipgloss.NewStyle().Foreground(fgColor)
	linkStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#60A5FA")).Underline(true)

	nextBannerStyle = lipgloss.NewStyle().Background(activeColor).Foreground(fgColor).Bold(true).Padding(0, 1)
	errStyle        = lipgloss.NewStyle().Foreground(errorColor)

	helpStyle    = lipgloss.NewStyle().Foreground(mutedColor).MarginTop(1)
	helpKeyStyle = lipgloss.NewStyle().Foreground(primaryColor).Bold(true)
)
