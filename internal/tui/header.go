package tui

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/ShayCichocki/nexus/internal/feed"
)

// Header renders the title bar with the feed and autopilot badges.
type Header struct {
	width int
}

// NewHeader creates a new Header.
func NewHeader() *Header {
	return &Header{width: 80}
}

// SetWidth sets the header width.
func (h *Header) SetWidth(width int) {
	h.width = width
}

// View renders the header. spinner is shown while a run is in flight.
func (h *Header) View(state feed.State, autopilot bool, spinner string) string {
	title := lipgloss.NewStyle().
		Foreground(lipgloss.Color("#4ECDC4")).
		Bold(true).
		Render("NEXUS")
	subtitle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("243")).
		Italic(true).
		Render("swarm coordinator")

	left := lipgloss.JoinHorizontal(lipgloss.Center, " ", title, " ", subtitle)
	if spinner != "" {
		left = lipgloss.JoinHorizontal(lipgloss.Center, left, "  ", spinner)
	}
	right := lipgloss.JoinHorizontal(lipgloss.Center,
		feedBadge(state), " ", autopilotBadge(autopilot), " ")

	gap := h.width - lipgloss.Width(left) - lipgloss.Width(right)
	if gap < 1 {
		gap = 1
	}
	return left + lipgloss.NewStyle().Width(gap).Render("") + right
}

// Height returns the header height in lines.
func (h *Header) Height() int {
	return 1
}

func feedBadge(state feed.State) string {
	style := pendingStyle
	switch state {
	case feed.StateStreaming:
		style = doneStyle
	case feed.StateDegraded:
		style = warnStyle
	case feed.StateClosed:
		style = errorStyle
	}
	return labelStyle.Render("feed ") + style.Render(state.String())
}

func autopilotBadge(on bool) string {
	if on {
		return labelStyle.Render("autopilot ") + activeStyle.Render("on")
	}
	return labelStyle.Render("autopilot ") + pendingStyle.Render("off")
}
