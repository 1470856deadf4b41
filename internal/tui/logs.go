package tui

import (
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/bubbles/viewport"
	"github.com/charmbracelet/lipgloss"

	"github.com/ShayCichocki/nexus/pkg/models"
)

// LogsPanel shows the activity log, newest first, in a scrollable viewport.
type LogsPanel struct {
	viewport viewport.Model
	logs     []models.LogEntry
	status   models.Status
	width    int
	height   int
}

// NewLogsPanel creates an empty LogsPanel.
func NewLogsPanel() *LogsPanel {
	p := &LogsPanel{viewport: viewport.New(78, 9)}
	p.SetSize(80, 12)
	return p
}

// SetSize updates dimensions, border included.
func (p *LogsPanel) SetSize(width, height int) {
	p.width = width
	p.height = height
	p.viewport.Width = max(width-2, 1)
	p.viewport.Height = max(height-3, 1)
	p.render()
}

// SetLogs replaces the displayed log. Scrolling resets to the newest entry.
func (p *LogsPanel) SetLogs(logs []models.LogEntry) {
	p.logs = logs
	p.render()
	p.viewport.GotoTop()
}

// SetStatus updates the status line shown above the log.
func (p *LogsPanel) SetStatus(status models.Status) {
	p.status = status
}

// ScrollUp moves the viewport up one line.
func (p *LogsPanel) ScrollUp() {
	p.viewport.LineUp(1)
}

// ScrollDown moves the viewport down one line.
func (p *LogsPanel) ScrollDown() {
	p.viewport.LineDown(1)
}

// View renders the panel.
func (p *LogsPanel) View() string {
	title := titleStyle.Render(fmt.Sprintf("Activity (%d)", len(p.logs)))
	body := lipgloss.JoinVertical(lipgloss.Left, title, p.statusLine(), p.viewport.View())
	return borderStyle.Width(max(p.width-2, 1)).Render(body)
}

func (p *LogsPanel) render() {
	if len(p.logs) == 0 {
		p.viewport.SetContent(hintStyle.Render("  waiting for swarm activity..."))
		return
	}
	lines := make([]string, 0, len(p.logs))
	for _, e := range p.logs {
		lines = append(lines, formatLogLine(e))
	}
	p.viewport.SetContent(strings.Join(lines, "\n"))
}

func (p *LogsPanel) statusLine() string {
	if len(p.status) == 0 {
		return hintStyle.Render(" status unavailable")
	}
	keys := make([]string, 0, len(p.status))
	for k := range p.status {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, labelStyle.Render(k+"=")+valueStyle.Render(fmt.Sprint(p.status[k])))
	}
	return " " + strings.Join(parts, "  ")
}

func formatLogLine(e models.LogEntry) string {
	style := valueStyle
	switch e.Type {
	case models.LogTypeSuccess:
		style = doneStyle
	case models.LogTypeWarning:
		style = warnStyle
	case models.LogTypeError:
		style = errorStyle
	}
	return fmt.Sprintf(" %s %s %s",
		labelStyle.Render(e.Time),
		agentStyle.Render(fmt.Sprintf("%-9s", e.Agent)),
		style.Render(e.Message))
}
