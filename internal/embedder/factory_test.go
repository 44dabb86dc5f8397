package embedder

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewFromEnvExplicitProvider(t *testing.T) {
	t.Setenv(EnvProvider, "local")
	t.Setenv(EnvOpenAIAPIKey, "unused")

	emb, err := NewFromEnv()
	require.NoError(t, err)
	defer func() { _ = emb.Close() }()

	assert.Equal(t, ProviderLocal, emb.Provider())
}

func TestNewFromEnvAutoDetect(t *testing.T) {
	t.Setenv(EnvProvider, "")
	t.Setenv(EnvOpenAIAPIKey, "sk-test")
	t.Setenv(EnvJinaAPIKey, "jina-test")

	emb, err := NewFromEnv()
	require.NoError(t, err)
	defer func() { _ = emb.Close() }()

	// OpenAI takes precedence when both keys are present.
	assert.Equal(t, ProviderOpenAI, emb.Provider())
}

func TestNewFromEnvFallsBackToLocal(t *testing.T) {
	t.Setenv(EnvProvider, "")
	t.Setenv(EnvOpenAIAPIKey, "")
	t.Setenv(EnvJinaAPIKey, "")

	emb, err := NewFromEnv()
	require.NoError(t, err)
	assert.Equal(t, ProviderLocal, emb.Provider())
}

func TestNewFromEnvUnknownProvider(t *testing.T) {
	t.Setenv(EnvProvider, "cohere")

	_, err := NewFromEnv()
	assert.ErrorIs(t, err, ErrUnsupportedModel)
}

func TestNewExplicitConfig(t *testing.T) {
	emb, err := New(Config{Provider: "jina", APIKey: "test-key", CacheSize: 100})
	require.NoError(t, err)
	defer func() { _ = emb.Close() }()

	assert.Equal(t, ProviderJina, emb.Provider())
	assert.Equal(t, JinaDimension, emb.Dimension())
}

func TestDetectProvider(t *testing.T) {
	t.Setenv(EnvProvider, "")
	t.Setenv(EnvOpenAIAPIKey, "")
	t.Setenv(EnvJinaAPIKey, "key")

	assert.Equal(t, ProviderJina, DetectProvider())

	t.Setenv(EnvProvider, "LOCAL")
	assert.Equal(t, ProviderLocal, DetectProvider())
}
