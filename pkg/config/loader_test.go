package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	t.Run("Should load defaults without environment overrides", func(t *testing.T) {
		cfg, err := Load()
		require.NoError(t, err)
		assert.Equal(t, 8000, cfg.Server.Port)
		assert.Equal(t, "balanced", cfg.Guardrails.Mode)
		assert.Equal(t, 4000, cfg.Guardrails.MaxInputChars)
		assert.Equal(t, 5, cfg.Knowledge.TopK)
		assert.Equal(t, 5*time.Minute, cfg.Knowledge.Cache.TTL)
		assert.Equal(t, "memory", cfg.Knowledge.Cache.Backend)
		assert.InDelta(t, 0.3, cfg.Redirect.ConfidenceThreshold, 0.0001)
	})
	t.Run("Should override scalar values from environment", func(t *testing.T) {
		t.Setenv("CONCIERGE_GUARDRAILS_MAX_INPUT_CHARS", "2000")
		t.Setenv("CONCIERGE_SERVER_PORT", "9090")
		cfg, err := Load()
		require.NoError(t, err)
		assert.Equal(t, 2000, cfg.Guardrails.MaxInputChars)
		assert.Equal(t, 9090, cfg.Server.Port)
	})
	t.Run("Should override nested rerank weights from environment", func(t *testing.T) {
		t.Setenv("CONCIERGE_KNOWLEDGE_RERANK_TITLE_BOOST", "0.5")
		cfg, err := Load()
		require.NoError(t, err)
		assert.InDelta(t, 0.5, cfg.Knowledge.Rerank.TitleBoost, 0.0001)
	})
	t.Run("Should reject output caps too small for an ellipsis", func(t *testing.T) {
		t.Setenv("CONCIERGE_GUARDRAILS_MAX_OUTPUT_CHARS", "2")
		_, err := Load()
		require.Error(t, err)
	})
	t.Run("Should reject invalid guardrail mode", func(t *testing.T) {
		t.Setenv("CONCIERGE_GUARDRAILS_MODE", "paranoid")
		_, err := Load()
		require.Error(t, err)
	})
}

func TestTransformEnvKey(t *testing.T) {
	t.Run("Should map section and field", func(t *testing.T) {
		assert.Equal(t, "guardrails.max_input_chars", transformEnvKey("GUARDRAILS_MAX_INPUT_CHARS"))
		assert.Equal(t, "server.port", transformEnvKey("SERVER_PORT"))
	})
	t.Run("Should map nested knowledge sections", func(t *testing.T) {
		assert.Equal(t, "knowledge.cache.ttl", transformEnvKey("KNOWLEDGE_CACHE_TTL"))
		assert.Equal(t, "knowledge.rerank.exact_term_boost", transformEnvKey("KNOWLEDGE_RERANK_EXACT_TERM_BOOST"))
	})
}
