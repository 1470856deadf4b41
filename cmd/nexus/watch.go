package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ShayCichocki/nexus/internal/config"
	"github.com/ShayCichocki/nexus/internal/tui"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Open the live console",
	Long: `Open the live console for the swarm.

Keys:
  r  request a run (ignored while one is in flight)
  a  toggle autopilot
  q  quit

Editing autopilot.enabled in the active config file while the console is
open toggles autopilot without a restart. Logs go to .nexus/logs/nexus.log
unless log.file is set.`,
	RunE: runWatch,
}

func runWatch(cmd *cobra.Command, args []string) error {
	coord, err := newCoordinator(nil)
	if err != nil {
		return err
	}
	defer coord.Close()

	if err := coord.Start(); err != nil {
		return fmt.Errorf("start coordinator: %w", err)
	}

	program := tui.NewProgram(coord)

	path := configPath
	if path == "" {
		path = config.ActivePath()
	}
	if path != "" {
		err := config.Watch(path, func(updated *config.Config) {
			logger.Info("config reloaded", zap.String("path", path),
				zap.Bool("autopilot", updated.Autopilot.Enabled))
			program.Send(tui.AutopilotMsg{Enabled: updated.Autopilot.Enabled})
		}, func(err error) {
			logger.Warn("config reload failed", zap.String("path", path), zap.Error(err))
		})
		if err != nil {
			logger.Warn("config watch disabled", zap.Error(err))
		}
	}

	if _, err := program.Run(); err != nil {
		return fmt.Errorf("run console: %w", err)
	}
	return nil
}
