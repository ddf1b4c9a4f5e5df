// Package logging builds the server's zap logger from configuration.
package logging

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/najoast/courier/config"
)

// New builds a logger for cfg. The returned level can be changed while the
// logger is in use, which is how a config reload applies a new log level.
func New(cfg config.LogConfig, debug bool) (*zap.Logger, zap.AtomicLevel, error) {
	level, err := ParseLevel(cfg.Level)
	if err != nil {
		return nil, zap.AtomicLevel{}, err
	}

	zc := zap.NewProductionConfig()
	if debug {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	zc.Encoding = cfg.Format
	if cfg.Format == "console" {
		zc.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
		zc.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	}
	if cfg.Output != "" {
		zc.OutputPaths = []string{cfg.Output}
	}

	logger, err := zc.Build()
	if err != nil {
		return nil, zap.AtomicLevel{}, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return logger, zc.Level, nil
}

// ParseLevel maps a configured level to zap's.
func ParseLevel(l config.LogLevel) (zapcore.Level, error) {
	if !l.IsValid() {
		return zapcore.InfoLevel, fmt.Errorf("%w: %q", config.ErrInvalidLogLevel, l)
	}
	return zapcore.ParseLevel(l.String())
}
