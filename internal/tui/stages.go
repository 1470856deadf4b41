package tui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/ShayCichocki/nexus/pkg/models"
)

// StagesPanel renders one card per stage in run order.
type StagesPanel struct {
	stages []models.StageID
	run    models.RunState
	width  int
}

// NewStagesPanel creates a panel for the given stage order.
func NewStagesPanel(stages []models.StageID) *StagesPanel {
	return &StagesPanel{stages: stages, width: 80}
}

// SetRunState updates the progress shown.
func (p *StagesPanel) SetRunState(rs models.RunState) {
	p.run = rs
}

// SetWidth sets the panel width.
func (p *StagesPanel) SetWidth(width int) {
	p.width = width
}

// Height returns the panel height in lines.
func (p *StagesPanel) Height() int {
	return 4
}

// View renders the stage cards side by side.
func (p *StagesPanel) View() string {
	if len(p.stages) == 0 {
		return ""
	}
	cardWidth := p.width/len(p.stages) - 2
	if cardWidth < 12 {
		cardWidth = 12
	}

	cards := make([]string, 0, len(p.stages))
	for _, stage := range p.stages {
		cards = append(cards, p.card(stage, cardWidth))
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, cards...)
}

func (p *StagesPanel) card(stage models.StageID, width int) string {
	icon, style, border := iconPending, pendingStyle, borderStyle
	switch {
	case p.run.ActiveStage != nil && *p.run.ActiveStage == stage:
		icon, style, border = iconActive, activeStyle, activeBorderStyle
	case p.run.IsCompleted(stage):
		icon, style = iconDone, doneStyle
	case !p.run.Running && p.run.LastError != "" && p.run.RunID != "":
		icon, style = iconFailed, errorStyle
	}

	var b strings.Builder
	b.WriteString(style.Render(icon + " " + stageTitle(stage)))
	b.WriteString("\n")
	b.WriteString(labelStyle.Render(stage.Agent()))
	return border.Width(width).Render(b.String())
}

// stageTitle turns "compliance-check" into "Compliance Check".
func stageTitle(stage models.StageID) string {
	words := strings.Split(string(stage), "-")
	for i, w := range words {
		if w != "" {
			words[i] = strings.ToUpper(w[:1]) + w[1:]
		}
	}
	return strings.Join(words, " ")
}
