package vectorstore

import (
	"context"
	"fmt"
	"os"
	"strconv"

	chromem "github.com/philippgille/chromem-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

var chromemTracer = otel.Tracer("repoqa.vectorstore.chromem")

// ChromemConfig holds configuration for the chromem-go embedded store.
type ChromemConfig struct {
	// Path is the directory for persistent storage. Empty means in-memory.
	Path string

	// Compress enables gzip compression for stored data.
	Compress bool
}

// ChromemStore implements Store using chromem-go, an embeddable pure-Go
// vector database. Each namespace maps to one chromem collection.
type ChromemStore struct {
	db     *chromem.DB
	config ChromemConfig
	logger *zap.Logger
}

// NewChromemStore creates a ChromemStore with the given configuration.
func NewChromemStore(config ChromemConfig, logger *zap.Logger) (*ChromemStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	var db *chromem.DB
	if config.Path == "" {
		db = chromem.NewDB()
	} else {
		if err := os.MkdirAll(config.Path, 0o755); err != nil {
			return nil, fmt.Errorf("creating directory %s: %w", config.Path, err)
		}
		var err error
		db, err = chromem.NewPersistentDB(config.Path, config.Compress)
		if err != nil {
			return nil, fmt.Errorf("creating chromem DB: %w", err)
		}
	}

	return &ChromemStore{db: db, config: config, logger: logger}, nil
}

// Upsert writes entries into a namespace collection.
func (s *ChromemStore) Upsert(ctx context.Context, namespace string, entries []Entry) error {
	ctx, span := chromemTracer.Start(ctx, "ChromemStore.Upsert")
	defer span.End()
	span.SetAttributes(
		attribute.String("namespace", namespace),
		attribute.Int("entry_count", len(entries)),
	)

	if len(entries) == 0 {
		return ErrEmptyEntries
	}

	collection, err := s.db.GetOrCreateCollection(namespace, nil, nil)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("%w: creating collection %s: %v", ErrStoreFailed, namespace, err)
	}

	docs := make([]chromem.Document, len(entries))
	for i, e := range entries {
		docs[i] = chromem.Document{
			ID:        e.ID,
			Content:   e.Payload.Content,
			Embedding: e.Vector,
			Metadata: map[string]string{
				"file":       e.Payload.File,
				"language":   e.Payload.Language,
				"start_line": strconv.Itoa(e.Payload.StartLine),
				"end_line":   strconv.Itoa(e.Payload.EndLine),
			},
		}
	}

	// Embeddings are precomputed, so no concurrency is needed.
	if err := collection.AddDocuments(ctx, docs, 1); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("%w: adding documents: %v", ErrStoreFailed, err)
	}

	s.logger.Debug("upserted entries",
		zap.String("namespace", namespace),
		zap.Int("count", len(entries)))
	return nil
}

// Query searches a namespace by embedding.
func (s *ChromemStore) Query(ctx context.Context, namespace string, vector []float32, topK int) ([]Hit, error) {
	ctx, span := chromemTracer.Start(ctx, "ChromemStore.Query")
	defer span.End()
	span.SetAttributes(
		attribute.String("namespace", namespace),
		attribute.Int("top_k", topK),
	)

	if topK <= 0 {
		return nil, fmt.Errorf("%w: topK must be positive, got %d", ErrInvalidConfig, topK)
	}

	collection := s.db.GetCollection(namespace, nil)
	if collection == nil {
		return []Hit{}, nil
	}

	count := collection.Count()
	if count == 0 {
		return []Hit{}, nil
	}

	// Fetch slack beyond topK so the ID tie-break decides membership for
	// equal scores at the boundary, not chromem's iteration order.
	fetch := topK + queryOverfetch
	if fetch > count {
		fetch = count
	}

	results, err := collection.QueryEmbedding(ctx, vector, fetch, nil, nil)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("%w: querying %s: %v", ErrStoreFailed, namespace, err)
	}

	hits := make([]Hit, len(results))
	for i, r := range results {
		hits[i] = Hit{
			ID:    r.ID,
			Score: r.Similarity,
			Payload: Payload{
				File:      r.Metadata["file"],
				Language:  r.Metadata["language"],
				StartLine: atoiSafe(r.Metadata["start_line"]),
				EndLine:   atoiSafe(r.Metadata["end_line"]),
				Content:   r.Content,
			},
		}
	}
	hits = truncateHits(hits, topK)

	span.SetAttributes(attribute.Int("result_count", len(hits)))
	return hits, nil
}

// DeleteNamespace drops a namespace collection.
func (s *ChromemStore) DeleteNamespace(ctx context.Context, namespace string) error {
	_, span := chromemTracer.Start(ctx, "ChromemStore.DeleteNamespace")
	defer span.End()
	span.SetAttributes(attribute.String("namespace", namespace))

	if err := s.db.DeleteCollection(namespace); err != nil {
		span.RecordError(err)
		return fmt.Errorf("%w: deleting collection %s: %v", ErrStoreFailed, namespace, err)
	}
	return nil
}

// NamespaceCount returns the number of stored entries in a namespace.
func (s *ChromemStore) NamespaceCount(ctx context.Context, namespace string) (int, error) {
	collection := s.db.GetCollection(namespace, nil)
	if collection == nil {
		return 0, nil
	}
	return collection.Count(), nil
}

// Close is a no-op; chromem persists on write.
func (s *ChromemStore) Close() error {
	return nil
}

func atoiSafe(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}
