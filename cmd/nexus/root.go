package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ShayCichocki/nexus/internal/config"
	"github.com/ShayCichocki/nexus/internal/logging"
)

var (
	configPath string
	apiURL     string
	logLevel   string

	// cfg and logger are set by PersistentPreRunE before any command runs.
	cfg    *config.Config
	logger = zap.NewNop()
)

var rootCmd = &cobra.Command{
	Use:   "nexus",
	Short: "Swarm run coordinator",
	Long: `Nexus drives a remote four-stage agent swarm and mirrors its activity log.

With no arguments, launches the watch console: a live view of the stages,
the status snapshot and the activity log, where you can trigger runs and
toggle autopilot.

Core capabilities:
- Paces each run through discovery, compliance, content and conversion
- Allows one run in flight at a time
- Streams the activity log, falling back to polling when the stream drops
- Autopilot triggers a run on a fixed period`,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runWatch(cmd, args)
	},
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	// Assigned here: setup refers back to rootCmd.
	rootCmd.PersistentPreRunE = setup

	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default: .nexus.yaml, then ~/.config/nexus/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&apiURL, "api-url", "", "Backend base URL (overrides api.base_url)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn, error, off")

	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(autopilotCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(resetCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(versionCmd)
}

// setup loads configuration and builds the logger.
func setup(cmd *cobra.Command, args []string) error {
	var err error
	if configPath != "" {
		cfg, err = config.LoadFromPath(configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if apiURL != "" {
		cfg.API.BaseURL = apiURL
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	// The console owns the terminal, so it logs to a file.
	if interactive(cmd) && cfg.Log.File == "" {
		if cwd, err := os.Getwd(); err == nil {
			cfg.Log.File = logging.DefaultFile(cwd)
		}
	}

	logger, err = logging.New(logging.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		File:   cfg.Log.File,
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	return nil
}

func interactive(cmd *cobra.Command) bool {
	return cmd == rootCmd || cmd == watchCmd
}
