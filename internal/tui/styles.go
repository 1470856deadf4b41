package tui

import "github.com/charmbracelet/lipgloss"

const (
	iconPending = "○"
	iconActive  = "◉"
	iconDone    = "✓"
	iconFailed  = "✗"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("15")).
			Padding(0, 1)

	borderStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("240"))

	activeBorderStyle = borderStyle.
				BorderForeground(lipgloss.Color("63"))

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240"))

	valueStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("252"))

	pendingStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("244")) // Gray

	activeStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("63")). // Blue
			Bold(true)

	doneStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("34")) // Green

	warnStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("214")) // Orange

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")) // Red

	agentStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("63")).
			Bold(true)

	hintStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240"))
)
