// Package logging builds the service's zap logger.
package logging

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"memecoin-calls/internal/config"
)

// New builds a logger writing to stdout with ISO8601 "ts" timestamps.
func New(cfg config.LogConfig) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("parse log level: %w", err)
	}

	zcfg := zap.NewProductionConfig()
	zcfg.Encoding = cfg.Encoding
	if zcfg.Encoding == "" {
		zcfg.Encoding = "json"
	}
	zcfg.Level = zap.NewAtomicLevelAt(level)
	if level == zapcore.DebugLevel {
		zcfg.Development = true
	}

	zcfg.OutputPaths = []string{"stdout"}
	zcfg.ErrorOutputPaths = []string{"stderr"}
	zcfg.EncoderConfig.TimeKey = "ts"
	zcfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	return zcfg.Build()
}
