// Package logging builds the zap loggers used across nexus.
package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// EnvLogLevel overrides the configured level when set.
const EnvLogLevel = "NEXUS_LOG_LEVEL"

// Config selects level, encoding and destination.
type Config struct {
	// Level is one of debug, info, warn, error, or off.
	Level string
	// Format is "json" or "console". Empty means json.
	Format string
	// File is the output path. Empty means stderr.
	File string
}

// New builds a logger from cfg, applying the NEXUS_LOG_LEVEL override.
func New(cfg Config) (*zap.Logger, error) {
	if env := os.Getenv(EnvLogLevel); env != "" {
		cfg.Level = env
	}

	level, enabled, err := parseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	if !enabled {
		return zap.NewNop(), nil
	}

	var zc zap.Config
	switch strings.ToLower(cfg.Format) {
	case "", "json":
		zc = zap.NewProductionConfig()
	case "console":
		zc = zap.NewDevelopmentConfig()
	default:
		return nil, fmt.Errorf("unknown log format %q", cfg.Format)
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	zc.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	if cfg.File != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.File), 0755); err != nil {
			return nil, fmt.Errorf("create log directory: %w", err)
		}
		zc.OutputPaths = []string{cfg.File}
		zc.ErrorOutputPaths = []string{cfg.File}
	}

	logger, err := zc.Build()
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}
	return logger, nil
}

// DefaultFile returns the log file used by interactive commands under root.
func DefaultFile(root string) string {
	return filepath.Join(root, ".nexus", "logs", "nexus.log")
}

func parseLevel(raw string) (zapcore.Level, bool, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "info":
		return zapcore.InfoLevel, true, nil
	case "debug", "trace":
		return zapcore.DebugLevel, true, nil
	case "warn", "warning":
		return zapcore.WarnLevel, true, nil
	case "error":
		return zapcore.ErrorLevel, true, nil
	case "off", "disabled", "none":
		return zapcore.InfoLevel, false, nil
	default:
		return zapcore.InfoLevel, false, fmt.Errorf("unknown log level %q", raw)
	}
}
