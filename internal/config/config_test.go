package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "localhost", cfg.Server.Host)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 1, cfg.Fetch.Depth)
	assert.Equal(t, 120, cfg.Chunking.WindowLines)
	assert.Equal(t, 20, cfg.Chunking.OverlapLines)
	assert.Equal(t, int64(1024*1024), cfg.Chunking.MaxFileSize)
	assert.Equal(t, "chromem", cfg.VectorStore.Provider)
	assert.Equal(t, 5, cfg.Retrieval.TopK)
	assert.InDelta(t, 0.75, cfg.Retrieval.StrongThreshold, 1e-9)
	assert.InDelta(t, 0.35, cfg.Retrieval.WeakThreshold, 1e-9)
	assert.InDelta(t, 0.5, cfg.Indexing.FailureRateThreshold, 1e-9)
	assert.False(t, cfg.Telemetry.Enabled)
	assert.Equal(t, "localhost:4317", cfg.Telemetry.Endpoint)
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := []byte(`
server:
  port: 9999
retrieval:
  top_k: 3
vectorstore:
  provider: qdrant
  qdrant:
    host: qdrant.internal
`)
	require.NoError(t, os.WriteFile(path, content, 0600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9999, cfg.Server.Port)
	assert.Equal(t, 3, cfg.Retrieval.TopK)
	assert.Equal(t, "qdrant", cfg.VectorStore.Provider)
	assert.Equal(t, "qdrant.internal", cfg.VectorStore.Qdrant.Host)
	// Untouched sections keep defaults.
	assert.Equal(t, "localhost", cfg.Server.Host)
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("REPOQA_SERVER_PORT", "7070")
	t.Setenv("REPOQA_EMBEDDINGS_BATCH_SIZE", "8")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 7070, cfg.Server.Port)
	assert.Equal(t, 8, cfg.Embeddings.BatchSize)
}

func TestLoadIgnoresUnprefixedEnv(t *testing.T) {
	// Only REPOQA_-prefixed variables may override configuration. A bare
	// variable that happens to match a section must not leak in.
	t.Setenv("SERVER_PORT", "7070")
	t.Setenv("LOGGING_LEVEL", "debug")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad port", func(c *Config) { c.Server.Port = -1 }},
		{"overlap too large", func(c *Config) { c.Chunking.OverlapLines = c.Chunking.WindowLines }},
		{"inverted thresholds", func(c *Config) { c.Retrieval.WeakThreshold = 0.9 }},
		{"bad failure rate", func(c *Config) { c.Indexing.FailureRateThreshold = 1.5 }},
		{"unknown store", func(c *Config) { c.VectorStore.Provider = "pinecone" }},
		{"unknown embedder", func(c *Config) { c.Embeddings.Provider = "cohere" }},
		{"bad sample rate", func(c *Config) { c.Telemetry.SampleRate = 2 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var cfg Config
			cfg.ApplyDefaults()
			tt.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestSecretRedaction(t *testing.T) {
	s := Secret("sk-very-secret")
	assert.Equal(t, "[REDACTED]", s.String())
	assert.Equal(t, "sk-very-secret", s.Value())
	assert.True(t, s.IsSet())

	b, err := s.MarshalJSON()
	require.NoError(t, err)
	assert.NotContains(t, string(b), "very-secret")
}

func TestDurationParsing(t *testing.T) {
	var d Duration
	require.NoError(t, d.UnmarshalText([]byte("90s")))
	assert.Equal(t, int64(90e9), int64(d.Duration()))

	assert.Error(t, d.UnmarshalText([]byte("-1s")))
	assert.Error(t, d.UnmarshalText([]byte("not-a-duration")))
}
