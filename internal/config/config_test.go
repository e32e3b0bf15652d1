package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	require.Equal(t, "${OPENROUTER_API_KEY}", cfg.LLM.APIKey)
	require.NotEmpty(t, cfg.LLM.Models.Reasoning)
	require.NotEqual(t, cfg.LLM.Models.Reasoning, cfg.LLM.Models.Extraction)
}

func TestResolveEnvVars(t *testing.T) {
	t.Run("resolves environment variable", func(t *testing.T) {
		t.Setenv("TEST_API_KEY", "secret123")
		require.Equal(t, "secret123", ResolveEnvVars("${TEST_API_KEY}"))
	})

	t.Run("missing env var resolves to empty", func(t *testing.T) {
		require.Equal(t, "", ResolveEnvVars("${DEFINITELY_NOT_SET_12345}"))
	})

	t.Run("literal values pass through", func(t *testing.T) {
		require.Equal(t, "literal-value", ResolveEnvVars("literal-value"))
	})
}

func TestConfig_ResolvedAPIKey(t *testing.T) {
	t.Setenv("TEST_OPENROUTER_KEY", "or-key-123")
	cfg := &Config{LLM: LLMConfig{APIKey: "${TEST_OPENROUTER_KEY}"}}
	require.Equal(t, "or-key-123", cfg.ResolvedAPIKey())
}

func TestWriteDefault(t *testing.T) {
	path := t.TempDir() + "/config.yaml"
	require.NoError(t, WriteDefault(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(data), "base_url")
}
