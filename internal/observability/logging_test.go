package observability

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/itsm-core/incident-engine/internal/config"
)

func TestLoggerConfigByEnvironment(t *testing.T) {
	dev := loggerConfig("development", "debug")
	assert.Equal(t, "console", dev.Encoding)
	assert.True(t, dev.Development)
	assert.Equal(t, zapcore.DebugLevel, dev.Level.Level())

	prod := loggerConfig("production", "warn")
	assert.Equal(t, "json", prod.Encoding)
	assert.False(t, prod.Development)
	assert.Equal(t, zapcore.WarnLevel, prod.Level.Level())
}

func TestLoggerConfigFallsBackToInfo(t *testing.T) {
	cfg := loggerConfig("staging", "chatty")
	assert.Equal(t, zapcore.InfoLevel, cfg.Level.Level())
}

func TestNewLogger(t *testing.T) {
	logger, err := NewLogger(config.AppConfig{Name: "incident-engine", Env: "test"}, config.LoggerConfig{Level: "error"})
	require.NoError(t, err)
	assert.False(t, logger.Core().Enabled(zapcore.InfoLevel))
	assert.True(t, logger.Core().Enabled(zapcore.ErrorLevel))
}
