package observability

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/campus-it/helpdesk-service/internal/config"
)

func TestNewLogger(t *testing.T) {
	app := config.AppConfig{Name: "helpdesk-service", Version: "test", Env: "test"}

	logger, err := NewLogger(config.LoggerConfig{Level: "DEBUG", Format: "json"}, app)
	require.NoError(t, err)
	assert.True(t, logger.Core().Enabled(zapcore.DebugLevel))

	logger, err = NewLogger(config.LoggerConfig{Level: "nonsense"}, app)
	require.NoError(t, err)
	assert.False(t, logger.Core().Enabled(zapcore.DebugLevel))
	assert.True(t, logger.Core().Enabled(zapcore.InfoLevel))

	_, err = NewLogger(config.LoggerConfig{Level: "info", Format: "xml"}, app)
	assert.Error(t, err)
}
