// Package config provides configuration loading for repoqa.
package config

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

const maxConfigFileSize = 1024 * 1024 // 1MB

// Config is the root configuration for the repoqa daemon.
type Config struct {
	Server      ServerConfig      `koanf:"server"`
	Logging     LoggingConfig     `koanf:"logging"`
	Fetch       FetchConfig       `koanf:"fetch"`
	Chunking    ChunkingConfig    `koanf:"chunking"`
	Embeddings  EmbeddingsConfig  `koanf:"embeddings"`
	LLM         LLMConfig         `koanf:"llm"`
	VectorStore VectorStoreConfig `koanf:"vectorstore"`
	Retrieval   RetrievalConfig   `koanf:"retrieval"`
	Indexing    IndexingConfig    `koanf:"indexing"`
	Telemetry   TelemetryConfig   `koanf:"telemetry"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host            string   `koanf:"host"`
	Port            int      `koanf:"port"`
	ShutdownTimeout Duration `koanf:"shutdown_timeout"`
}

// LoggingConfig holds logger settings.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// FetchConfig holds repository fetch settings.
type FetchConfig struct {
	// WorkDir is the base directory for per-session working copies.
	WorkDir string `koanf:"work_dir"`
	// Depth is the shallow clone depth.
	Depth int `koanf:"depth"`
	// Timeout bounds a single clone operation.
	Timeout Duration `koanf:"timeout"`
}

// ChunkingConfig holds parser/chunker settings.
type ChunkingConfig struct {
	// WindowLines is the fallback sliding-window size in lines.
	WindowLines int `koanf:"window_lines"`
	// OverlapLines is the overlap between adjacent window chunks.
	OverlapLines int `koanf:"overlap_lines"`
	// MaxChunkChars caps a single chunk's size in characters.
	MaxChunkChars int `koanf:"max_chunk_chars"`
	// MaxFileSize is the per-file size ceiling in bytes. Larger files are skipped.
	MaxFileSize int64 `koanf:"max_file_size"`
}

// EmbeddingsConfig holds embedding provider settings.
type EmbeddingsConfig struct {
	// Provider is the provider type: "tei" or "openai".
	Provider string `koanf:"provider"`
	// Model is the embedding model name.
	Model string `koanf:"model"`
	// BaseURL is the embedding API base URL.
	BaseURL string `koanf:"base_url"`
	// APIKey is the API key (required for OpenAI, optional for TEI).
	APIKey Secret `koanf:"api_key"`
	// BatchSize is the number of chunks embedded per request.
	BatchSize int `koanf:"batch_size"`
	// MaxRetries is the attempt ceiling for transient provider errors.
	MaxRetries int `koanf:"max_retries"`
	// RetryBaseDelay is the initial backoff delay.
	RetryBaseDelay Duration `koanf:"retry_base_delay"`
	// RetryMaxDelay caps the backoff delay.
	RetryMaxDelay Duration `koanf:"retry_max_delay"`
}

// LLMConfig holds language-model settings for answer synthesis.
type LLMConfig struct {
	Model       string   `koanf:"model"`
	BaseURL     string   `koanf:"base_url"`
	APIKey      Secret   `koanf:"api_key"`
	MaxTokens   int      `koanf:"max_tokens"`
	Temperature float64  `koanf:"temperature"`
	Timeout     Duration `koanf:"timeout"`
}

// VectorStoreConfig holds vector index settings.
type VectorStoreConfig struct {
	// Provider selects the store implementation: "chromem" (default) or "qdrant".
	Provider string        `koanf:"provider"`
	Chromem  ChromemConfig `koanf:"chromem"`
	Qdrant   QdrantConfig  `koanf:"qdrant"`
}

// ChromemConfig holds settings for the embedded chromem-go store.
type ChromemConfig struct {
	// Path is the directory for persistent storage. Empty means in-memory only.
	Path     string `koanf:"path"`
	Compress bool   `koanf:"compress"`
}

// QdrantConfig holds settings for the external Qdrant store.
type QdrantConfig struct {
	Host   string `koanf:"host"`
	Port   int    `koanf:"port"`
	UseTLS bool   `koanf:"use_tls"`
}

// RetrievalConfig holds query-time retrieval settings.
type RetrievalConfig struct {
	// TopK is the default number of chunks retrieved per question.
	TopK int `koanf:"top_k"`
	// StrongThreshold is the similarity above which answers may be high confidence.
	StrongThreshold float64 `koanf:"strong_threshold"`
	// WeakThreshold is the similarity below which answers are low confidence.
	WeakThreshold float64 `koanf:"weak_threshold"`
}

// IndexingConfig holds orchestrator settings.
type IndexingConfig struct {
	// FailureRateThreshold aborts indexing when the fraction of dropped
	// chunks exceeds it.
	FailureRateThreshold float64 `koanf:"failure_rate_threshold"`
	// SessionTimeout bounds one session's full pipeline run.
	SessionTimeout Duration `koanf:"session_timeout"`
}

// TelemetryConfig holds OpenTelemetry trace export settings.
type TelemetryConfig struct {
	// Enabled turns on OTLP span export. Spans stay no-ops otherwise.
	Enabled bool `koanf:"enabled"`
	// Endpoint is the OTLP gRPC collector address, host:port.
	Endpoint string `koanf:"endpoint"`
	// Insecure disables TLS towards the collector.
	Insecure bool `koanf:"insecure"`
	// SampleRate is the head sampling ratio in [0, 1].
	SampleRate float64 `koanf:"sample_rate"`
	// ShutdownTimeout bounds the final span flush on exit.
	ShutdownTimeout Duration `koanf:"shutdown_timeout"`
}

// Load loads configuration from an optional YAML file, then overrides with
// environment variables.
//
// Configuration precedence (highest to lowest):
//  1. REPOQA_-prefixed environment variables (REPOQA_SERVER_PORT, ...)
//  2. YAML config file
//  3. Hardcoded defaults
//
// After the prefix, variables map section-first: REPOQA_SERVER_PORT ->
// server.port, REPOQA_EMBEDDINGS_RETRY_BASE_DELAY ->
// embeddings.retry_base_delay.
func Load(configPath string) (*Config, error) {
	k := koanf.New(".")

	if configPath != "" {
		f, err := os.Open(configPath)
		if err != nil {
			return nil, fmt.Errorf("opening config file: %w", err)
		}
		defer f.Close()

		info, err := f.Stat()
		if err != nil {
			return nil, fmt.Errorf("stat config file: %w", err)
		}
		if info.Size() > maxConfigFileSize {
			return nil, fmt.Errorf("config file %s exceeds %d bytes", configPath, maxConfigFileSize)
		}

		content, err := io.ReadAll(f)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", configPath, err)
		}
	}

	// Environment variables carry the REPOQA_ prefix so unrelated process
	// environment cannot leak into the configuration. After stripping it,
	// split on the first underscore only: section.field_name.
	if err := k.Load(env.Provider("REPOQA_", ".", func(s string) string {
		lower := strings.ToLower(strings.TrimPrefix(s, "REPOQA_"))
		parts := strings.SplitN(lower, "_", 2)
		if len(parts) == 1 {
			return lower
		}
		return parts[0] + "." + parts[1]
	}), nil); err != nil {
		return nil, fmt.Errorf("loading environment variables: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// ApplyDefaults sets default values for unset fields.
func (c *Config) ApplyDefaults() {
	if c.Server.Host == "" {
		c.Server.Host = "localhost"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = Duration(10e9) // 10s
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}
	if c.Fetch.WorkDir == "" {
		c.Fetch.WorkDir = os.TempDir()
	}
	if c.Fetch.Depth == 0 {
		c.Fetch.Depth = 1
	}
	if c.Fetch.Timeout == 0 {
		c.Fetch.Timeout = Duration(5 * 60e9) // 5m
	}
	if c.Chunking.WindowLines == 0 {
		c.Chunking.WindowLines = 120
	}
	if c.Chunking.OverlapLines == 0 {
		c.Chunking.OverlapLines = 20
	}
	if c.Chunking.MaxChunkChars == 0 {
		c.Chunking.MaxChunkChars = 4000
	}
	if c.Chunking.MaxFileSize == 0 {
		c.Chunking.MaxFileSize = 1024 * 1024 // 1MB
	}
	if c.Embeddings.Provider == "" {
		c.Embeddings.Provider = "tei"
	}
	if c.Embeddings.Model == "" {
		c.Embeddings.Model = "BAAI/bge-small-en-v1.5"
	}
	if c.Embeddings.BaseURL == "" {
		c.Embeddings.BaseURL = "http://localhost:8081"
	}
	if c.Embeddings.BatchSize == 0 {
		c.Embeddings.BatchSize = 32
	}
	if c.Embeddings.MaxRetries == 0 {
		c.Embeddings.MaxRetries = 3
	}
	if c.Embeddings.RetryBaseDelay == 0 {
		c.Embeddings.RetryBaseDelay = Duration(500e6) // 500ms
	}
	if c.Embeddings.RetryMaxDelay == 0 {
		c.Embeddings.RetryMaxDelay = Duration(8e9) // 8s
	}
	if c.LLM.Model == "" {
		c.LLM.Model = "gpt-4"
	}
	if c.LLM.BaseURL == "" {
		c.LLM.BaseURL = "https://api.openai.com/v1"
	}
	if c.LLM.MaxTokens == 0 {
		c.LLM.MaxTokens = 1000
	}
	if c.LLM.Temperature == 0 {
		c.LLM.Temperature = 0.1
	}
	if c.LLM.Timeout == 0 {
		c.LLM.Timeout = Duration(60e9) // 60s
	}
	if c.VectorStore.Provider == "" {
		c.VectorStore.Provider = "chromem"
	}
	if c.VectorStore.Qdrant.Host == "" {
		c.VectorStore.Qdrant.Host = "localhost"
	}
	if c.VectorStore.Qdrant.Port == 0 {
		c.VectorStore.Qdrant.Port = 6334
	}
	if c.Retrieval.TopK == 0 {
		c.Retrieval.TopK = 5
	}
	if c.Retrieval.StrongThreshold == 0 {
		c.Retrieval.StrongThreshold = 0.75
	}
	if c.Retrieval.WeakThreshold == 0 {
		c.Retrieval.WeakThreshold = 0.35
	}
	if c.Indexing.FailureRateThreshold == 0 {
		c.Indexing.FailureRateThreshold = 0.5
	}
	if c.Indexing.SessionTimeout == 0 {
		c.Indexing.SessionTimeout = Duration(15 * 60e9) // 15m
	}
	if c.Telemetry.Endpoint == "" {
		c.Telemetry.Endpoint = "localhost:4317"
	}
	if c.Telemetry.SampleRate == 0 {
		c.Telemetry.SampleRate = 1.0
	}
	if c.Telemetry.ShutdownTimeout == 0 {
		c.Telemetry.ShutdownTimeout = Duration(5e9) // 5s
	}
}

// Validate checks the configuration for inconsistencies.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Fetch.Depth < 0 {
		return fmt.Errorf("fetch depth cannot be negative: %d", c.Fetch.Depth)
	}
	if c.Chunking.OverlapLines >= c.Chunking.WindowLines {
		return fmt.Errorf("chunk overlap (%d) must be smaller than window (%d)",
			c.Chunking.OverlapLines, c.Chunking.WindowLines)
	}
	if c.Retrieval.WeakThreshold > c.Retrieval.StrongThreshold {
		return fmt.Errorf("weak threshold (%.2f) must not exceed strong threshold (%.2f)",
			c.Retrieval.WeakThreshold, c.Retrieval.StrongThreshold)
	}
	if c.Indexing.FailureRateThreshold <= 0 || c.Indexing.FailureRateThreshold > 1 {
		return fmt.Errorf("failure rate threshold must be in (0,1]: %.2f", c.Indexing.FailureRateThreshold)
	}
	switch c.VectorStore.Provider {
	case "chromem", "qdrant":
	default:
		return fmt.Errorf("unsupported vectorstore provider: %s (supported: chromem, qdrant)", c.VectorStore.Provider)
	}
	switch c.Embeddings.Provider {
	case "tei", "openai":
	default:
		return fmt.Errorf("unsupported embeddings provider: %s (supported: tei, openai)", c.Embeddings.Provider)
	}
	if c.Telemetry.SampleRate < 0 || c.Telemetry.SampleRate > 1 {
		return fmt.Errorf("telemetry sample rate must be in [0,1]: %g", c.Telemetry.SampleRate)
	}
	return nil
}
