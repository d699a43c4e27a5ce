package logger_test

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/notifykit/pkg/logger"
)

type traceKey struct{}

func TestNew_JSONWithContextValue(t *testing.T) {
	var buf bytes.Buffer
	log := logger.New(
		logger.WithOutput(&buf),
		logger.WithAttr(slog.String("service", "notifyd")),
		logger.WithContextValue("trace_id", traceKey{}),
	)

	ctx := context.WithValue(context.Background(), traceKey{}, "t-1")
	log.InfoContext(ctx, "hello", logger.UserID("u1"))

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "hello", rec["msg"])
	assert.Equal(t, "notifyd", rec["service"])
	assert.Equal(t, "t-1", rec["trace_id"])
	assert.Equal(t, "u1", rec["user_id"])
}

func TestNew_EnvironmentDefaults(t *testing.T) {
	t.Run("development uses text and debug", func(t *testing.T) {
		var buf bytes.Buffer
		log := logger.New(logger.WithOutput(&buf), logger.WithEnvironment("dev", "notifyd"))
		log.Debug("debugging")
		out := buf.String()
		assert.Contains(t, out, "msg=debugging")
		assert.Contains(t, out, "env=development")
	})

	t.Run("production uses json and info", func(t *testing.T) {
		var buf bytes.Buffer
		log := logger.New(logger.WithOutput(&buf), logger.WithEnvironment("prod", "notifyd"))
		log.Debug("hidden")
		assert.Empty(t, buf.String())

		log.Info("shown")
		var rec map[string]any
		require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
		assert.Equal(t, "production", rec["env"])
	})
}

func TestWithLevelName(t *testing.T) {
	var buf bytes.Buffer
	log := logger.New(logger.WithOutput(&buf), logger.WithLevelName("warn"))
	log.Info("skipped")
	assert.Empty(t, buf.String())
	log.Warn("kept")
	assert.Contains(t, buf.String(), "kept")
}

func TestWithFormat_InvalidPanics(t *testing.T) {
	assert.Panics(t, func() {
		logger.New(logger.WithFormat("xml"))
	})
}

func TestDiscard(t *testing.T) {
	log := logger.Discard()
	assert.False(t, log.Enabled(context.Background(), slog.LevelError))
}
