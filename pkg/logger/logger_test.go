package logger

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromContext(t *testing.T) {
	t.Run("Should return logger from context when present", func(t *testing.T) {
		expected := NewLogger(TestConfig())
		ctx := ContextWithLogger(context.Background(), expected)
		actual := FromContext(ctx)
		require.NotNil(t, actual)
		assert.Equal(t, expected, actual)
	})
	t.Run("Should return default logger when no logger in context", func(t *testing.T) {
		log := FromContext(context.Background())
		require.NotNil(t, log)
	})
	t.Run("Should return default logger when wrong type in context", func(t *testing.T) {
		ctx := context.WithValue(context.Background(), LoggerCtxKey, "not a logger")
		log := FromContext(ctx)
		require.NotNil(t, log)
	})
}

func TestNewLogger(t *testing.T) {
	t.Run("Should emit JSON when configured", func(t *testing.T) {
		var buf bytes.Buffer
		log := NewLogger(&Config{Level: InfoLevel, Output: &buf, JSON: true})
		log.Info("hello", "key", "value")
		assert.True(t, strings.Contains(buf.String(), `"key":"value"`))
	})
	t.Run("Should honor level threshold", func(t *testing.T) {
		var buf bytes.Buffer
		log := NewLogger(&Config{Level: WarnLevel, Output: &buf})
		log.Info("suppressed")
		assert.Empty(t, buf.String())
		log.Warn("shown")
		assert.Contains(t, buf.String(), "shown")
	})
	t.Run("Should carry With fields", func(t *testing.T) {
		var buf bytes.Buffer
		log := NewLogger(&Config{Level: InfoLevel, Output: &buf, JSON: true}).With("component", "router")
		log.Info("routed")
		assert.Contains(t, buf.String(), `"component":"router"`)
	})
}
