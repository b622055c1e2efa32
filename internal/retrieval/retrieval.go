// Package retrieval answers "which chunks are relevant" for a query
// against one indexed session.
package retrieval

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/repoqa/internal/embeddings"
	"github.com/fyrsmithlabs/repoqa/internal/session"
	"github.com/fyrsmithlabs/repoqa/internal/vectorstore"
)

var tracer = otel.Tracer("repoqa.retrieval")

var (
	// ErrEmptyQuery indicates an empty query string.
	ErrEmptyQuery = errors.New("query cannot be empty")

	// ErrModelMismatch indicates the session was indexed with a different
	// embedding model than the one currently configured, so query vectors
	// would live in a different space than the stored ones.
	ErrModelMismatch = errors.New("embedding model mismatch")
)

// Config holds retrieval settings.
type Config struct {
	// TopK is the default number of chunks returned per query.
	TopK int
}

// ApplyDefaults sets default values for unset fields.
func (c *Config) ApplyDefaults() {
	if c.TopK == 0 {
		c.TopK = 5
	}
}

// Engine retrieves relevant chunks for a question.
type Engine struct {
	sessions *session.Manager
	provider embeddings.Provider
	store    vectorstore.Store
	config   Config
	logger   *zap.Logger
}

// New creates a retrieval engine.
func New(sessions *session.Manager, provider embeddings.Provider, store vectorstore.Store, cfg Config, logger *zap.Logger) *Engine {
	cfg.ApplyDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		sessions: sessions,
		provider: provider,
		store:    store,
		config:   cfg,
		logger:   logger,
	}
}

// Retrieve embeds the query and returns the most similar chunks from the
// session's namespace, best first. topK <= 0 selects the configured
// default. An empty result is a valid outcome, not an error.
func (e *Engine) Retrieve(ctx context.Context, sessionID, query string, topK int) ([]vectorstore.Hit, error) {
	ctx, span := tracer.Start(ctx, "Engine.Retrieve")
	defer span.End()
	span.SetAttributes(attribute.String("session_id", sessionID))

	if query == "" {
		return nil, ErrEmptyQuery
	}
	if topK <= 0 {
		topK = e.config.TopK
	}

	s, err := e.sessions.Get(sessionID)
	if err != nil {
		return nil, err
	}
	if s.State != session.StateReady {
		return nil, fmt.Errorf("%w: session %s is %s", session.ErrSessionNotReady, sessionID, s.State.ExternalStatus())
	}

	// Vectors from a different model or dimension are not comparable to
	// what the session indexed.
	if s.EmbeddingModel != e.provider.Model() || s.EmbeddingDimension != e.provider.Dimension() {
		return nil, fmt.Errorf("%w: session indexed with %s (dim %d), current provider is %s (dim %d)",
			ErrModelMismatch, s.EmbeddingModel, s.EmbeddingDimension, e.provider.Model(), e.provider.Dimension())
	}

	vector, err := e.provider.EmbedQuery(ctx, query)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("embedding query: %w", err)
	}

	hits, err := e.store.Query(ctx, sessionID, vector, topK)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("searching index: %w", err)
	}

	span.SetAttributes(attribute.Int("result_count", len(hits)))
	e.logger.Debug("retrieved chunks",
		zap.String("session_id", sessionID),
		zap.Int("top_k", topK),
		zap.Int("results", len(hits)))
	return hits, nil
}
