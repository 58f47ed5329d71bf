// Package logging builds the process logger from configuration.
package logging

import (
	"fmt"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/conduit-lang/stereotype/internal/config"
)

// Build creates a development or production logger at cfg's level
func Build(cfg config.LogConfig) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level: %w", err)
	}

	var zc zap.Config
	if cfg.Development {
		zc = zap.NewDevelopmentConfig()
	} else {
		zc = zap.NewProductionConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	// Logs go to stderr so command output on stdout stays clean
	zc.OutputPaths = []string{"stderr"}

	return zc.Build()
}

// New is Build with a fallback: if the logger cannot be built the failure
// is reported on stderr and a no-op logger is returned
func New(cfg config.LogConfig) *zap.Logger {
	logger, err := Build(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: Failed to create zap logger: %v\n", err)
		return zap.NewNop()
	}
	return logger
}
