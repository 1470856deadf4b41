package tui

import (
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/ShayCichocki/nexus/internal/feed"
	"github.com/ShayCichocki/nexus/pkg/models"
)

// Controller is the coordinator surface the console uses.
type Controller interface {
	RequestRun() bool
	SetAutopilot(enabled bool)
	Autopilot() bool
	Stages() []models.StageID
	RunState() models.RunState
	Logs() []models.LogEntry
	Status() models.Status
	FeedState() feed.State
	Events() <-chan models.Event
}

// EventMsg carries one coordinator event into the update loop.
type EventMsg struct {
	Event models.Event
}

// EventsClosedMsg is sent once the coordinator's event channel closes.
type EventsClosedMsg struct{}

// AutopilotMsg sets autopilot from outside the console, e.g. a config reload.
type AutopilotMsg struct {
	Enabled bool
}

// App is the bubbletea model for the watch console.
type App struct {
	ctrl Controller

	header  *Header
	stages  *StagesPanel
	logs    *LogsPanel
	footer  *Footer
	spinner spinner.Model

	// Cached copies of coordinator state, refreshed on every event.
	run       models.RunState
	feedState feed.State
	autopilot bool

	width    int
	height   int
	quitting bool
}

// NewApp creates the console model over ctrl.
func NewApp(ctrl Controller) *App {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = activeStyle

	a := &App{
		ctrl:    ctrl,
		header:  NewHeader(),
		stages:  NewStagesPanel(ctrl.Stages()),
		logs:    NewLogsPanel(),
		footer:  NewFooter(),
		spinner: sp,
	}
	a.refresh()
	return a
}

// NewProgram creates the bubbletea program for ctrl.
func NewProgram(ctrl Controller) *tea.Program {
	return tea.NewProgram(NewApp(ctrl), tea.WithAltScreen())
}

// Init implements tea.Model.
func (a *App) Init() tea.Cmd {
	return tea.Batch(waitForEvent(a.ctrl.Events()), a.spinner.Tick)
}

// waitForEvent blocks on the next coordinator event.
func waitForEvent(ch <-chan models.Event) tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-ch
		if !ok {
			return EventsClosedMsg{}
		}
		return EventMsg{Event: ev}
	}
}

// Update implements tea.Model.
func (a *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch {
		case key.Matches(msg, keys.Quit):
			a.quitting = true
			return a, tea.Quit
		case key.Matches(msg, keys.Run):
			if a.ctrl.RequestRun() {
				a.footer.SetMessage("Swarm run started", false)
			} else {
				a.footer.SetMessage("Run already in progress", true)
			}
			a.refresh()
		case key.Matches(msg, keys.Autopilot):
			a.setAutopilot(!a.ctrl.Autopilot())
		case key.Matches(msg, keys.Up):
			a.logs.ScrollUp()
		case key.Matches(msg, keys.Down):
			a.logs.ScrollDown()
		}
		return a, nil

	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
		a.resize()
		return a, nil

	case AutopilotMsg:
		if msg.Enabled != a.ctrl.Autopilot() {
			a.setAutopilot(msg.Enabled)
		}
		return a, nil

	case EventMsg:
		a.handleEvent(msg.Event)
		return a, waitForEvent(a.ctrl.Events())

	case EventsClosedMsg:
		a.footer.SetMessage("Coordinator stopped", true)
		return a, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		a.spinner, cmd = a.spinner.Update(msg)
		return a, cmd
	}
	return a, nil
}

func (a *App) setAutopilot(enabled bool) {
	a.ctrl.SetAutopilot(enabled)
	a.autopilot = a.ctrl.Autopilot()
	if a.autopilot {
		a.footer.SetMessage("Autopilot engaged", false)
	} else {
		a.footer.SetMessage("Autopilot disengaged", false)
	}
}

func (a *App) handleEvent(ev models.Event) {
	switch ev.Type {
	case models.EventRunCompleted:
		a.footer.SetMessage("Swarm cycle complete", false)
	case models.EventRunFailed:
		a.footer.SetMessage("Run failed: "+ev.Message, true)
	case models.EventRunRejected:
		a.footer.SetMessage("Run already in progress", true)
	}
	a.refresh()
}

// refresh re-reads every piece of coordinator state.
func (a *App) refresh() {
	a.run = a.ctrl.RunState()
	a.feedState = a.ctrl.FeedState()
	a.autopilot = a.ctrl.Autopilot()
	a.stages.SetRunState(a.run)
	a.logs.SetStatus(a.ctrl.Status())
	a.logs.SetLogs(a.ctrl.Logs())
}

func (a *App) resize() {
	a.header.SetWidth(a.width)
	a.stages.SetWidth(a.width)
	a.footer.SetWidth(a.width)
	logsHeight := a.height - a.header.Height() - a.stages.Height() - 2
	a.logs.SetSize(a.width, max(logsHeight, 5))
}

// View implements tea.Model.
func (a *App) View() string {
	if a.quitting {
		return "Goodbye!\n"
	}

	spin := ""
	if a.run.Running {
		spin = a.spinner.View()
	}
	return lipgloss.JoinVertical(lipgloss.Left,
		a.header.View(a.feedState, a.autopilot, spin),
		a.stages.View(),
		a.logs.View(),
		a.footer.View(),
	)
}
