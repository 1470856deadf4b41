// Package tui provides the terminal console for the watch command.
//
// The console is a thin presentation layer over the coordinator. It shows:
//   - Live feed state and the autopilot flag
//   - The four stages, with the active and completed ones highlighted
//   - The status snapshot returned by the backend
//   - The activity log, newest first
//
// Keys: r requests a run, a toggles autopilot, q quits. Coordinator events
// are only hints: on every event the model re-reads state from the
// coordinator, so dropped events never leave the screen stale for long.
//
// Usage:
//
//	program := tui.NewProgram(coord)
//	if _, err := program.Run(); err != nil {
//	    return err
//	}
package tui
