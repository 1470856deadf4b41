package tui

import "github.com/charmbracelet/bubbles/key"

type keyMap struct {
	Run       key.Binding
	Autopilot key.Binding
	Up        key.Binding
	Down      key.Binding
	Quit      key.Binding
}

var keys = keyMap{
	Run: key.NewBinding(
		key.WithKeys("r"),
		key.WithHelp("r", "run swarm"),
	),
	Autopilot: key.NewBinding(
		key.WithKeys("a"),
		key.WithHelp("a", "autopilot"),
	),
	Up: key.NewBinding(
		key.WithKeys("up", "k"),
		key.WithHelp("j/k", "scroll"),
	),
	Down: key.NewBinding(
		key.WithKeys("down", "j"),
		key.WithHelp("j/k", "scroll"),
	),
	Quit: key.NewBinding(
		key.WithKeys("q", "ctrl+c"),
		key.WithHelp("q", "quit"),
	),
}

// helpBindings is the footer hint order.
func (k keyMap) helpBindings() []key.Binding {
	return []key.Binding{k.Run, k.Autopilot, k.Up, k.Quit}
}
