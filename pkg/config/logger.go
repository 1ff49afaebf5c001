package config

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// NewLogger creates a configured Zap logger.
// Level is one of debug, info, warn, error (default "info");
// format is json or console (default "json").
func NewLogger(lc LoggingConfig) (*zap.Logger, error) {
	level := lc.Level
	if level == "" {
		level = "info"
	}

	var zapLevel zapcore.Level
	if err := zapLevel.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}

	var cfg zap.Config
	switch lc.Format {
	case "console":
		cfg = zap.NewDevelopmentConfig()
	case "json", "":
		cfg = zap.NewProductionConfig()
	default:
		return nil, fmt.Errorf("invalid log format %q: must be \"json\" or \"console\"", lc.Format)
	}

	cfg.Level = zap.NewAtomicLevelAt(zapLevel)
	// stdout carries command output and NDJSON streams.
	cfg.OutputPaths = []string{"stderr"}

	return cfg.Build()
}
