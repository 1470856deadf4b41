// Package config handles configuration loading and management for nexus.
// It supports XDG config paths, project-level overrides, and environment variables.
package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"

	"github.com/ShayCichocki/nexus/internal/api"
	"github.com/ShayCichocki/nexus/internal/coordinator"
)

const (
	appName           = "nexus"
	projectConfigName = ".nexus.yaml"
	envPrefix         = "NEXUS"
)

// Config holds all configuration for nexus.
type Config struct {
	API       APIConfig       `mapstructure:"api" yaml:"api"`
	Pipeline  PipelineConfig  `mapstructure:"pipeline" yaml:"pipeline"`
	Feed      FeedConfig      `mapstructure:"feed" yaml:"feed"`
	Autopilot AutopilotConfig `mapstructure:"autopilot" yaml:"autopilot"`
	Log       LogConfig       `mapstructure:"log" yaml:"log"`
	Server    ServerConfig    `mapstructure:"server" yaml:"server"`
}

// APIConfig holds the backend location.
type APIConfig struct {
	BaseURL   string        `mapstructure:"base_url" yaml:"base_url"`
	StreamURL string        `mapstructure:"stream_url" yaml:"stream_url"`
	Timeout   time.Duration `mapstructure:"timeout" yaml:"timeout"`
	// Endpoints override individual paths; empty fields use the defaults.
	Endpoints api.Endpoints `mapstructure:"endpoints" yaml:"endpoints"`
}

// PipelineConfig holds stage pacing.
type PipelineConfig struct {
	StageDwell time.Duration `mapstructure:"stage_dwell" yaml:"stage_dwell"`
	RunTimeout time.Duration `mapstructure:"run_timeout" yaml:"run_timeout"`
}

// FeedConfig holds live feed settings.
type FeedConfig struct {
	PollInterval     time.Duration `mapstructure:"poll_interval" yaml:"poll_interval"`
	Reconnect        bool          `mapstructure:"reconnect" yaml:"reconnect"`
	ReconnectInitial time.Duration `mapstructure:"reconnect_initial" yaml:"reconnect_initial"`
	ReconnectMax     time.Duration `mapstructure:"reconnect_max" yaml:"reconnect_max"`
}

// AutopilotConfig holds autopilot settings.
type AutopilotConfig struct {
	Enabled bool          `mapstructure:"enabled" yaml:"enabled"`
	Period  time.Duration `mapstructure:"period" yaml:"period"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
	File   string `mapstructure:"file" yaml:"file"`
}

// ServerConfig holds simulation backend settings.
type ServerConfig struct {
	Addr         string        `mapstructure:"addr" yaml:"addr"`
	DBPath       string        `mapstructure:"db_path" yaml:"db_path"`
	PingInterval time.Duration `mapstructure:"ping_interval" yaml:"ping_interval"`
}

// Coordinator converts the timing settings for coordinator.New.
func (c *Config) Coordinator() coordinator.Config {
	cfg := coordinator.DefaultConfig()
	cfg.StageDwell = c.Pipeline.StageDwell
	cfg.RunTimeout = c.Pipeline.RunTimeout
	cfg.PollInterval = c.Feed.PollInterval
	cfg.Reconnect = c.Feed.Reconnect
	cfg.ReconnectInitial = c.Feed.ReconnectInitial
	cfg.ReconnectMax = c.Feed.ReconnectMax
	cfg.AutopilotPeriod = c.Autopilot.Period
	cfg.AutopilotEnabled = c.Autopilot.Enabled
	return cfg
}

// Client converts the API settings for api.NewClient.
func (c *Config) Client() api.ClientConfig {
	return api.ClientConfig{
		BaseURL:   c.API.BaseURL,
		StreamURL: c.API.StreamURL,
		Endpoints: c.API.Endpoints,
		Timeout:   c.API.Timeout,
	}
}

// Validate checks values that would otherwise fail late.
func (c *Config) Validate() error {
	u, err := url.Parse(c.API.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("api.base_url must be an http(s) URL, got %q", c.API.BaseURL)
	}
	if c.Pipeline.StageDwell < 0 {
		return fmt.Errorf("pipeline.stage_dwell must not be negative")
	}
	if c.Feed.PollInterval <= 0 {
		return fmt.Errorf("feed.poll_interval must be positive")
	}
	if c.Autopilot.Period <= 0 {
		return fmt.Errorf("autopilot.period must be positive")
	}
	return nil
}

// Load loads configuration from XDG paths, project overrides, and environment variables.
// Precedence (highest to lowest):
// 1. Environment variables (NEXUS_API_URL, NEXUS_<SECTION>_<KEY>)
// 2. Project config (.nexus.yaml in current directory or parent)
// 3. User config (~/.config/nexus/config.yaml)
// 4. Built-in defaults
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(getUserConfigDir())

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading user config: %w", err)
		}
	}

	if projectConfig := findProjectConfig(); projectConfig != "" {
		projectViper := viper.New()
		projectViper.SetConfigFile(projectConfig)
		if err := projectViper.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading project config %s: %w", projectConfig, err)
		}
		if err := v.MergeConfigMap(projectViper.AllSettings()); err != nil {
			return nil, fmt.Errorf("merging project config: %w", err)
		}
	}

	bindEnv(v)
	return unmarshal(v)
}

// LoadFromPath loads configuration from a specific file on top of the defaults.
func LoadFromPath(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}
	return unmarshal(v)
}

// Watch calls onChange with the reloaded configuration every time path is written.
// Reload errors are passed to onError when it is non-nil.
func Watch(path string, onChange func(*Config), onError func(error)) error {
	v := viper.New()
	setDefaults(v)
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("reading config from %s: %w", path, err)
	}

	v.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		cfg, err := unmarshal(v)
		if err != nil {
			if onError != nil {
				onError(err)
			}
			return
		}
		onChange(cfg)
	})
	v.WatchConfig()
	return nil
}

// Save writes cfg to the user config file.
func Save(cfg *Config) error {
	return SaveTo(GetUserConfigPath(), cfg)
}

// SaveTo writes cfg to path, creating parent directories.
func SaveTo(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.Set("api.base_url", cfg.API.BaseURL)
	v.Set("api.stream_url", cfg.API.StreamURL)
	v.Set("api.timeout", cfg.API.Timeout.String())
	v.Set("pipeline.stage_dwell", cfg.Pipeline.StageDwell.String())
	v.Set("pipeline.run_timeout", cfg.Pipeline.RunTimeout.String())
	v.Set("feed.poll_interval", cfg.Feed.PollInterval.String())
	v.Set("feed.reconnect", cfg.Feed.Reconnect)
	v.Set("feed.reconnect_initial", cfg.Feed.ReconnectInitial.String())
	v.Set("feed.reconnect_max", cfg.Feed.ReconnectMax.String())
	v.Set("autopilot.enabled", cfg.Autopilot.Enabled)
	v.Set("autopilot.period", cfg.Autopilot.Period.String())
	v.Set("log.level", cfg.Log.Level)
	v.Set("log.format", cfg.Log.Format)
	v.Set("log.file", cfg.Log.File)
	v.Set("server.addr", cfg.Server.Addr)
	v.Set("server.db_path", cfg.Server.DBPath)
	v.Set("server.ping_interval", cfg.Server.PingInterval.String())

	return v.WriteConfig()
}

// GetUserConfigPath returns the path to the user config file.
func GetUserConfigPath() string {
	return filepath.Join(getUserConfigDir(), "config.yaml")
}

// GetProjectConfigPath returns the path to the project config file if it exists.
func GetProjectConfigPath() string {
	return findProjectConfig()
}

// ActivePath returns the file that most specifically configures this directory:
// the project config if present, else the user config if it exists, else "".
func ActivePath() string {
	if p := findProjectConfig(); p != "" {
		return p
	}
	if _, err := os.Stat(GetUserConfigPath()); err == nil {
		return GetUserConfigPath()
	}
	return ""
}

// Default returns a Config with default values.
func Default() *Config {
	return &Config{
		API: APIConfig{
			BaseURL: "http://localhost:8000",
			Timeout: api.DefaultTimeout,
		},
		Pipeline: PipelineConfig{
			StageDwell: 800 * time.Millisecond,
			RunTimeout: 30 * time.Second,
		},
		Feed: FeedConfig{
			PollInterval:     2 * time.Second,
			ReconnectInitial: 500 * time.Millisecond,
			ReconnectMax:     30 * time.Second,
		},
		Autopilot: AutopilotConfig{
			Period: 2 * time.Second,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
		Server: ServerConfig{
			Addr:         ":8000",
			DBPath:       filepath.Join(".nexus", "swarm.db"),
			PingInterval: 15 * time.Second,
		},
	}
}

// setDefaults configures default values from Default.
func setDefaults(v *viper.Viper) {
	d := Default()

	v.SetDefault("api.base_url", d.API.BaseURL)
	v.SetDefault("api.stream_url", "")
	v.SetDefault("api.timeout", d.API.Timeout.String())
	v.SetDefault("api.endpoints.run", "")
	v.SetDefault("api.endpoints.status", "")
	v.SetDefault("api.endpoints.logs", "")
	v.SetDefault("api.endpoints.stream", "")
	v.SetDefault("api.endpoints.health", "")
	v.SetDefault("api.endpoints.reset", "")

	v.SetDefault("pipeline.stage_dwell", d.Pipeline.StageDwell.String())
	v.SetDefault("pipeline.run_timeout", d.Pipeline.RunTimeout.String())

	v.SetDefault("feed.poll_interval", d.Feed.PollInterval.String())
	v.SetDefault("feed.reconnect", false)
	v.SetDefault("feed.reconnect_initial", d.Feed.ReconnectInitial.String())
	v.SetDefault("feed.reconnect_max", d.Feed.ReconnectMax.String())

	v.SetDefault("autopilot.enabled", false)
	v.SetDefault("autopilot.period", d.Autopilot.Period.String())

	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
	v.SetDefault("log.file", "")

	v.SetDefault("server.addr", d.Server.Addr)
	v.SetDefault("server.db_path", d.Server.DBPath)
	v.SetDefault("server.ping_interval", d.Server.PingInterval.String())
}

// bindEnv maps NEXUS_SECTION_KEY onto section.key, plus the NEXUS_API_URL shorthand.
func bindEnv(v *viper.Viper) {
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	_ = v.BindEnv("api.base_url", "NEXUS_API_URL", "NEXUS_API_BASE_URL")
}

func unmarshal(v *viper.Viper) (*Config, error) {
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	cfg.API.BaseURL = strings.TrimRight(os.ExpandEnv(cfg.API.BaseURL), "/")
	cfg.API.StreamURL = os.ExpandEnv(cfg.API.StreamURL)
	return cfg, nil
}

// getUserConfigDir returns the XDG config directory for nexus.
func getUserConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, appName)
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".config", appName)
	}
	return filepath.Join(home, ".config", appName)
}

// findProjectConfig searches for .nexus.yaml in the current directory and parents.
func findProjectConfig() string {
	cwd, err := os.Getwd()
	if err != nil {
		return ""
	}

	for {
		configPath := filepath.Join(cwd, projectConfigName)
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}

		parent := filepath.Dir(cwd)
		if parent == cwd {
			break
		}
		cwd = parent
	}

	return ""
}
