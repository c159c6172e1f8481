package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"memecoin-calls/internal/config"
)

func TestNew(t *testing.T) {
	tests := []struct {
		cfg  config.LogConfig
		want zapcore.Level
	}{
		{config.LogConfig{Level: "debug", Encoding: "console"}, zapcore.DebugLevel},
		{config.LogConfig{Level: "info", Encoding: "json"}, zapcore.InfoLevel},
		{config.LogConfig{Level: "warn"}, zapcore.WarnLevel},
		{config.LogConfig{Level: "error", Encoding: "json"}, zapcore.ErrorLevel},
	}
	for _, tt := range tests {
		t.Run(tt.cfg.Level, func(t *testing.T) {
			logger, err := New(tt.cfg)
			require.NoError(t, err)
			assert.True(t, logger.Core().Enabled(tt.want))
			assert.False(t, logger.Core().Enabled(tt.want-1))
		})
	}
}

func TestNew_InvalidLevel(t *testing.T) {
	_, err := New(config.LogConfig{Level: "loud"})
	assert.Error(t, err)
}

func TestNew_InvalidEncoding(t *testing.T) {
	_, err := New(config.LogConfig{Level: "info", Encoding: "xml"})
	assert.Error(t, err)
}
