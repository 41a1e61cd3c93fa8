package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"library-api/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"INFO":    slog.LevelInfo,
		"warn":    slog.LevelWarn,
		"error":   slog.LevelError,
		"verbose": slog.LevelInfo,
	}
	for in, want := range tests {
		assert.Equal(t, want, parseLevel(in), in)
	}
}

func TestNewLogger(t *testing.T) {
	t.Run("json encoding filters by level", func(t *testing.T) {
		var buf bytes.Buffer
		logger := newLogger(config.LoggerConfig{Level: "warn", Encoding: "json"}, &buf)

		logger.InfoContext(context.Background(), "dropped")
		logger.WarnContext(context.Background(), "kept", "book_id", 7)

		var record map[string]any
		require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
		assert.Equal(t, "kept", record["msg"])
		assert.Equal(t, float64(7), record["book_id"])
	})

	t.Run("text encoding", func(t *testing.T) {
		var buf bytes.Buffer
		logger := newLogger(config.LoggerConfig{Level: "info", Encoding: "text"}, &buf)

		logger.Info("hello")
		assert.Contains(t, buf.String(), "msg=hello")
	})
}
