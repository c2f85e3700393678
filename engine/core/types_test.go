package core_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paylane/concierge/engine/core"
)

func TestParseRoute(t *testing.T) {
	t.Run("Should map known labels", func(t *testing.T) {
		route, ok := core.ParseRoute("Knowledge")
		assert.True(t, ok)
		assert.Equal(t, core.RouteKnowledge, route)
		route, ok = core.ParseRoute(" handoff ")
		assert.True(t, ok)
		assert.Equal(t, core.RouteHandoff, route)
	})
	t.Run("Should default unknown labels to custom", func(t *testing.T) {
		route, ok := core.ParseRoute("billing")
		assert.False(t, ok)
		assert.Equal(t, core.RouteCustom, route)
	})
}

func TestNewRequestEnvelope(t *testing.T) {
	t.Run("Should generate correlation id when absent", func(t *testing.T) {
		env := core.NewRequestEnvelope("hello", "u1", nil, "")
		require.NotEmpty(t, env.CorrelationID)
	})
	t.Run("Should keep supplied correlation id", func(t *testing.T) {
		env := core.NewRequestEnvelope("hello", "u1", nil, "corr-1")
		assert.Equal(t, "corr-1", env.CorrelationID)
	})
	t.Run("Should read string metadata values", func(t *testing.T) {
		env := core.NewRequestEnvelope("hi", "", map[string]any{"handoff_token": "abc", "n": 1}, "")
		assert.Equal(t, "abc", env.MetadataString("handoff_token"))
		assert.Empty(t, env.MetadataString("n"))
		assert.Empty(t, env.MetadataString("missing"))
	})
}

func TestNewToken(t *testing.T) {
	t.Run("Should produce unique dashless tokens", func(t *testing.T) {
		a := core.NewToken()
		b := core.NewToken()
		assert.NotEqual(t, a, b)
		assert.NotContains(t, a, "-")
		assert.Len(t, a, 32)
	})
}

func TestError(t *testing.T) {
	t.Run("Should match invalid input sentinel through wrapping", func(t *testing.T) {
		err := core.NewInvalidInput("message too long")
		assert.True(t, core.IsInvalidInput(err))
		assert.Equal(t, core.CodeInvalidInput, err.Code)
		assert.Contains(t, err.Error(), core.CodeInvalidInput)
	})
	t.Run("Should keep wrapped provider errors out of serialized form", func(t *testing.T) {
		wrapped := core.WrapError(core.CodeProviderUnavailable, "classification timed out", core.ErrProviderUnavailable)
		assert.ErrorIs(t, wrapped, core.ErrProviderUnavailable)
	})
}
