// Repoqad is a repository question-answering daemon.
//
// It exposes an HTTP API to index public git repositories into a
// session-scoped vector index and answer natural-language questions about
// the code with cited sources.
//
// Usage:
//
//	# Start with defaults
//	repoqad
//
//	# Start with a config file
//	repoqad --config /etc/repoqad/config.yaml
//
//	# Configure via environment
//	REPOQA_SERVER_PORT=9090 REPOQA_EMBEDDINGS_BASE_URL=http://localhost:8081 repoqad
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/repoqa/internal/answer"
	"github.com/fyrsmithlabs/repoqa/internal/chunker"
	"github.com/fyrsmithlabs/repoqa/internal/config"
	"github.com/fyrsmithlabs/repoqa/internal/embeddings"
	"github.com/fyrsmithlabs/repoqa/internal/fetch"
	httpserver "github.com/fyrsmithlabs/repoqa/internal/http"
	"github.com/fyrsmithlabs/repoqa/internal/indexer"
	"github.com/fyrsmithlabs/repoqa/internal/llm"
	"github.com/fyrsmithlabs/repoqa/internal/logging"
	"github.com/fyrsmithlabs/repoqa/internal/retrieval"
	"github.com/fyrsmithlabs/repoqa/internal/session"
	"github.com/fyrsmithlabs/repoqa/internal/telemetry"
	"github.com/fyrsmithlabs/repoqa/internal/vectorstore"
)

// Version information (set via ldflags during build).
var (
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "repoqad",
	Short: "Repository question-answering daemon",
	Long: `repoqad indexes public git repositories and answers natural-language
questions about their code, grounded in retrieved snippets with citations.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return run()
	},
	SilenceUsage: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("repoqad %s (commit %s, built %s)\n", version, gitCommit, buildDate)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to YAML config file")
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger, err := logging.NewLogger(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})
	if err != nil {
		return fmt.Errorf("initializing logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("starting repoqad",
		zap.String("version", version),
		zap.String("commit", gitCommit))

	tel, err := telemetry.New(context.Background(), telemetry.Config{
		Enabled:         cfg.Telemetry.Enabled,
		Endpoint:        cfg.Telemetry.Endpoint,
		Insecure:        cfg.Telemetry.Insecure,
		ServiceVersion:  version,
		SampleRate:      cfg.Telemetry.SampleRate,
		ShutdownTimeout: time.Duration(cfg.Telemetry.ShutdownTimeout),
	}, logger)
	if err != nil {
		return fmt.Errorf("initializing telemetry: %w", err)
	}

	fetcher, err := fetch.NewFetcher(fetch.Config{
		WorkDir: cfg.Fetch.WorkDir,
		Depth:   cfg.Fetch.Depth,
		Timeout: time.Duration(cfg.Fetch.Timeout),
	}, logger)
	if err != nil {
		return fmt.Errorf("initializing fetcher: %w", err)
	}

	chunk := chunker.New(chunker.Config{
		WindowLines:   cfg.Chunking.WindowLines,
		OverlapLines:  cfg.Chunking.OverlapLines,
		MaxChunkChars: cfg.Chunking.MaxChunkChars,
		MaxFileSize:   cfg.Chunking.MaxFileSize,
	}, logger)

	provider, err := embeddings.NewProvider(embeddings.Config{
		Provider: cfg.Embeddings.Provider,
		BaseURL:  cfg.Embeddings.BaseURL,
		Model:    cfg.Embeddings.Model,
		APIKey:   cfg.Embeddings.APIKey.Value(),
	}, logger)
	if err != nil {
		return fmt.Errorf("initializing embedding provider: %w", err)
	}
	provider = embeddings.WithRetry(provider, embeddings.RetryConfig{
		MaxRetries: cfg.Embeddings.MaxRetries,
		BaseDelay:  time.Duration(cfg.Embeddings.RetryBaseDelay),
		MaxDelay:   time.Duration(cfg.Embeddings.RetryMaxDelay),
	}, logger)
	defer func() { _ = provider.Close() }()

	store, err := vectorstore.New(vectorstore.Config{
		Provider:  cfg.VectorStore.Provider,
		Path:      cfg.VectorStore.Chromem.Path,
		Host:      cfg.VectorStore.Qdrant.Host,
		Port:      cfg.VectorStore.Qdrant.Port,
		UseTLS:    cfg.VectorStore.Qdrant.UseTLS,
		Dimension: provider.Dimension(),
	}, logger)
	if err != nil {
		return fmt.Errorf("initializing vector store: %w", err)
	}
	defer func() { _ = store.Close() }()

	completer, err := llm.NewClient(llm.Config{
		BaseURL:     cfg.LLM.BaseURL,
		Model:       cfg.LLM.Model,
		APIKey:      cfg.LLM.APIKey.Value(),
		Temperature: cfg.LLM.Temperature,
		MaxTokens:   cfg.LLM.MaxTokens,
		Timeout:     time.Duration(cfg.LLM.Timeout),
	}, logger)
	if err != nil {
		return fmt.Errorf("initializing llm client: %w", err)
	}

	sessions := session.NewManager(logger)

	ix := indexer.New(fetcher, chunk, provider, store, sessions, indexer.Config{
		BatchSize:            cfg.Embeddings.BatchSize,
		FailureRateThreshold: cfg.Indexing.FailureRateThreshold,
		SessionTimeout:       time.Duration(cfg.Indexing.SessionTimeout),
	}, logger)

	engine := retrieval.New(sessions, provider, store, retrieval.Config{
		TopK: cfg.Retrieval.TopK,
	}, logger)

	synthesizer := answer.New(completer, answer.Config{
		StrongThreshold: float32(cfg.Retrieval.StrongThreshold),
		WeakThreshold:   float32(cfg.Retrieval.WeakThreshold),
	}, logger)

	server, err := httpserver.NewServer(sessions, ix, engine, synthesizer, httpserver.Config{
		Host: cfg.Server.Host,
		Port: cfg.Server.Port,
	}, logger)
	if err != nil {
		return fmt.Errorf("initializing http server: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-sigCh:
		logger.Info("received signal, shutting down", zap.String("signal", sig.String()))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.Server.ShutdownTimeout))
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown failed", zap.Error(err))
	}

	// Let in-flight indexing runs finish before tearing down the store.
	ix.Wait()

	if err := tel.Shutdown(context.Background()); err != nil {
		logger.Error("telemetry shutdown failed", zap.Error(err))
	}
	logger.Info("shutdown complete")
	return nil
}
