// Package logging builds the zap loggers used across cadgrade.
package logging

import (
	"fmt"

	"go.uber.org/zap"
)

// Config holds logging configuration.
type Config struct {
	Level       string `yaml:"level" json:"level" validate:"omitempty,oneof=debug info warn error"`
	Format      string `yaml:"format" json:"format" validate:"omitempty,oneof=json console"`
	OutputPath  string `yaml:"output_path" json:"output_path"`
	Development bool   `yaml:"development" json:"development"`
}

// NewLogger creates a structured logger. An unknown level falls back to
// info; the format defaults to JSON.
func NewLogger(cfg Config) (*zap.Logger, error) {
	var zc zap.Config
	if cfg.Development {
		zc = zap.NewDevelopmentConfig()
	} else {
		zc = zap.NewProductionConfig()
	}

	level, err := zap.ParseAtomicLevel(cfg.Level)
	if err != nil {
		level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}
	zc.Level = level

	if cfg.Format == "console" {
		zc.Encoding = "console"
	} else {
		zc.Encoding = "json"
	}

	// Keep stdout free for results.
	zc.OutputPaths = []string{"stderr"}
	if cfg.OutputPath != "" {
		zc.OutputPaths = []string{cfg.OutputPath}
	}

	logger, err := zc.Build()
	if err != nil {
		return nil, fmt.Errorf("logging: build logger: %w", err)
	}
	return logger.With(zap.String("service", "cadgrade")), nil
}

// NewNop returns a logger that discards everything.
func NewNop() *zap.Logger {
	return zap.NewNop()
}
