package app

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewLoggerHonoursFormat(t *testing.T) {
	logger := NewLogger(&Config{LogFormat: "json"})
	_, ok := logger.Handler().(*slog.JSONHandler)
	require.True(t, ok, "LOG_FORMAT=json should select the JSON handler")

	logger = NewLogger(&Config{LogFormat: "pretty"})
	_, ok = logger.Handler().(*slog.TextHandler)
	require.True(t, ok, "the pretty default should stay on the text handler")

	logger = NewLogger(&Config{AppEnv: "production", LogFormat: "pretty"})
	_, ok = logger.Handler().(*slog.JSONHandler)
	require.True(t, ok, "production should always log JSON")
}
