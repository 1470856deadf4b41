package tui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Footer renders the last notice and keyboard hints.
type Footer struct {
	message string
	isError bool
	width   int
}

// NewFooter creates a new Footer instance.
func NewFooter() *Footer {
	return &Footer{width: 80}
}

// SetMessage sets the notice shown left of the hints.
func (f *Footer) SetMessage(message string, isError bool) {
	f.message = message
	f.isError = isError
}

// SetWidth sets the footer width.
func (f *Footer) SetWidth(width int) {
	f.width = width
}

// View renders the footer.
func (f *Footer) View() string {
	hints := make([]string, 0, len(keys.helpBindings()))
	for _, b := range keys.helpBindings() {
		h := b.Help()
		hints = append(hints, h.Key+" "+h.Desc)
	}
	right := hintStyle.Render(strings.Join(hints, " | "))

	left := ""
	if f.message != "" {
		style := doneStyle
		if f.isError {
			style = errorStyle
		}
		left = " " + style.Render(f.message)
	}

	gap := f.width - lipgloss.Width(left) - lipgloss.Width(right)
	if gap < 1 {
		gap = 1
	}
	return left + strings.Repeat(" ", gap) + right
}
