package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/ShayCichocki/nexus/internal/config"
)

var (
	configOutput  string
	configProject bool
)

var configCmd = &cobra.Command{
	Use:   "config [key] [value]",
	Short: "Manage configuration",
	Long: `View or modify Nexus configuration.

Without arguments, displays current configuration.
With one argument (key), displays the value for that key.
With two arguments (key value), sets the configuration value.

Configuration is stored at ~/.config/nexus/config.yaml
Project-specific overrides can be placed in .nexus.yaml (use --project)`,
	Args: cobra.MaximumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		switch len(args) {
		case 0:
			return displayAllConfig(cfg, configOutput)
		case 1:
			value, err := getConfigValue(cfg, args[0])
			if err != nil {
				return err
			}
			fmt.Println(value)
			return nil
		default:
			return setConfigKey(args[0], args[1])
		}
	},
}

func init() {
	configCmd.Flags().StringVarP(&configOutput, "output", "o", "text", "Output format: text or yaml")
	configCmd.Flags().BoolVar(&configProject, "project", false, "Write to .nexus.yaml in the current directory")
}

// configKeys lists every settable key in display order.
var configKeys = []string{
	"api.base_url",
	"api.stream_url",
	"api.timeout",
	"pipeline.stage_dwell",
	"pipeline.run_timeout",
	"feed.poll_interval",
	"feed.reconnect",
	"feed.reconnect_initial",
	"feed.reconnect_max",
	"autopilot.enabled",
	"autopilot.period",
	"log.level",
	"log.format",
	"log.file",
	"server.addr",
	"server.db_path",
	"server.ping_interval",
}

// displayAllConfig prints all configuration values.
func displayAllConfig(c *config.Config, format string) error {
	switch format {
	case "text":
		for _, key := range configKeys {
			value, _ := getConfigValue(c, key)
			fmt.Printf("%s: %s\n", key, value)
		}
		return nil
	case "yaml":
		out, err := yaml.Marshal(configTree(c))
		if err != nil {
			return fmt.Errorf("encode config: %w", err)
		}
		fmt.Print(string(out))
		return nil
	default:
		return fmt.Errorf("unknown output format %q", format)
	}
}

// configTree nests the flat keys into sections for YAML output.
func configTree(c *config.Config) map[string]map[string]string {
	tree := make(map[string]map[string]string)
	for _, key := range configKeys {
		section, name, _ := strings.Cut(key, ".")
		if tree[section] == nil {
			tree[section] = make(map[string]string)
		}
		tree[section][name], _ = getConfigValue(c, key)
	}
	return tree
}

// setConfigKey loads the target file, sets one value and saves it.
func setConfigKey(key, value string) error {
	path := config.GetUserConfigPath()
	if configProject {
		cwd, err := os.Getwd()
		if err != nil {
			return fmt.Errorf("get working directory: %w", err)
		}
		path = filepath.Join(cwd, ".nexus.yaml")
	}

	target := config.Default()
	if _, err := os.Stat(path); err == nil {
		loaded, err := config.LoadFromPath(path)
		if err != nil {
			return err
		}
		target = loaded
	}

	if err := setConfigValue(target, key, value); err != nil {
		return err
	}
	if err := target.Validate(); err != nil {
		return err
	}
	if err := config.SaveTo(path, target); err != nil {
		return fmt.Errorf("save config: %w", err)
	}

	fmt.Printf("Set %s = %s (%s)\n", key, value, path)
	return nil
}

// getConfigValue retrieves a configuration value by dot-notation key.
func getConfigValue(c *config.Config, key string) (string, error) {
	switch strings.ToLower(key) {
	case "api.base_url":
		return c.API.BaseURL, nil
	case "api.stream_url":
		return c.API.StreamURL, nil
	case "api.timeout":
		return c.API.Timeout.String(), nil
	case "pipeline.stage_dwell":
		return c.Pipeline.StageDwell.String(), nil
	case "pipeline.run_timeout":
		return c.Pipeline.RunTimeout.String(), nil
	case "feed.poll_interval":
		return c.Feed.PollInterval.String(), nil
	case "feed.reconnect":
		return strconv.FormatBool(c.Feed.Reconnect), nil
	case "feed.reconnect_initial":
		return c.Feed.ReconnectInitial.String(), nil
	case "feed.reconnect_max":
		return c.Feed.ReconnectMax.String(), nil
	case "autopilot.enabled":
		return strconv.FormatBool(c.Autopilot.Enabled), nil
	case "autopilot.period":
		return c.Autopilot.Period.String(), nil
	case "log.level":
		return c.Log.Level, nil
	case "log.format":
		return c.Log.Format, nil
	case "log.file":
		return c.Log.File, nil
	case "server.addr":
		return c.Server.Addr, nil
	case "server.db_path":
		return c.Server.DBPath, nil
	case "server.ping_interval":
		return c.Server.PingInterval.String(), nil
	default:
		return "", fmt.Errorf("unknown configuration key: %s", key)
	}
}

// setConfigValue sets a configuration value by dot-notation key.
func setConfigValue(c *config.Config, key, value string) error {
	duration := func(dst *time.Duration) error {
		d, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("invalid duration for %s: %w", key, err)
		}
		*dst = d
		return nil
	}
	boolean := func(dst *bool) error {
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid value for %s: %w", key, err)
		}
		*dst = b
		return nil
	}

	switch strings.ToLower(key) {
	case "api.base_url":
		c.API.BaseURL = strings.TrimRight(value, "/")
	case "api.stream_url":
		c.API.StreamURL = value
	case "api.timeout":
		return duration(&c.API.Timeout)
	case "pipeline.stage_dwell":
		return duration(&c.Pipeline.StageDwell)
	case "pipeline.run_timeout":
		return duration(&c.Pipeline.RunTimeout)
	case "feed.poll_interval":
		return duration(&c.Feed.PollInterval)
	case "feed.reconnect":
		return boolean(&c.Feed.Reconnect)
	case "feed.reconnect_initial":
		return duration(&c.Feed.ReconnectInitial)
	case "feed.reconnect_max":
		return duration(&c.Feed.ReconnectMax)
	case "autopilot.enabled":
		return boolean(&c.Autopilot.Enabled)
	case "autopilot.period":
		return duration(&c.Autopilot.Period)
	case "log.level":
		c.Log.Level = value
	case "log.format":
		c.Log.Format = value
	case "log.file":
		c.Log.File = value
	case "server.addr":
		c.Server.Addr = value
	case "server.db_path":
		c.Server.DBPath = value
	case "server.ping_interval":
		return duration(&c.Server.PingInterval)
	default:
		return fmt.Errorf("unknown configuration key: %s", key)
	}
	return nil
}
