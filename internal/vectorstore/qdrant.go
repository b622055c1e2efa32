package vectorstore

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
	"google.golang.org/grpc"
)

var qdrantTracer = otel.Tracer("repoqa.vectorstore.qdrant")

// QdrantConfig holds configuration for the Qdrant gRPC client.
type QdrantConfig struct {
	// Host is the Qdrant server host.
	Host string
	// Port is the Qdrant gRPC port.
	Port int
	// APIKey authenticates against Qdrant Cloud. Optional.
	APIKey string
	// UseTLS enables TLS on the gRPC connection.
	UseTLS bool
	// Dimension is the embedding dimension for created collections.
	Dimension int
	// MaxMessageSize is the gRPC message size limit in bytes.
	MaxMessageSize int
}

// ApplyDefaults sets default values for unset fields.
func (c *QdrantConfig) ApplyDefaults() {
	if c.Host == "" {
		c.Host = "localhost"
	}
	if c.Port == 0 {
		c.Port = 6334
	}
	if c.MaxMessageSize == 0 {
		c.MaxMessageSize = 32 * 1024 * 1024
	}
}

// Validate validates the configuration.
func (c *QdrantConfig) Validate() error {
	if c.Dimension <= 0 {
		return fmt.Errorf("%w: dimension must be positive", ErrInvalidConfig)
	}
	return nil
}

// QdrantStore implements Store using Qdrant's native gRPC client.
// Each namespace maps to one Qdrant collection.
//
// Qdrant point IDs must be UUIDs or integers, so the chunk ID is hashed
// into a deterministic UUID for the point ID and kept verbatim in the
// payload. Re-upserting the same chunk therefore overwrites in place.
type QdrantStore struct {
	client *qdrant.Client
	config QdrantConfig
	logger *zap.Logger
}

// NewQdrantStore creates a QdrantStore and verifies connectivity.
func NewQdrantStore(config QdrantConfig, logger *zap.Logger) (*QdrantStore, error) {
	config.ApplyDefaults()
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   config.Host,
		Port:   config.Port,
		APIKey: config.APIKey,
		UseTLS: config.UseTLS,
		GrpcOptions: []grpc.DialOption{
			grpc.WithDefaultCallOptions(
				grpc.MaxCallRecvMsgSize(config.MaxMessageSize),
				grpc.MaxCallSendMsgSize(config.MaxMessageSize),
			),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: connecting to qdrant: %v", ErrStoreFailed, err)
	}

	store := &QdrantStore{client: client, config: config, logger: logger}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := client.HealthCheck(ctx); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("%w: health check: %v", ErrStoreFailed, err)
	}

	return store, nil
}

// pointID derives a deterministic UUID point ID from a chunk ID.
func pointID(chunkID string) *qdrant.PointId {
	return qdrant.NewIDUUID(uuid.NewSHA1(uuid.NameSpaceURL, []byte(chunkID)).String())
}

// ensureCollection creates the namespace collection if it does not exist.
func (s *QdrantStore) ensureCollection(ctx context.Context, namespace string) error {
	exists, err := s.client.CollectionExists(ctx, namespace)
	if err != nil {
		return fmt.Errorf("%w: checking collection %s: %v", ErrStoreFailed, namespace, err)
	}
	if exists {
		return nil
	}

	err = s.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: namespace,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(s.config.Dimension),
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return fmt.Errorf("%w: creating collection %s: %v", ErrStoreFailed, namespace, err)
	}
	return nil
}

// Upsert writes entries into a namespace collection.
func (s *QdrantStore) Upsert(ctx context.Context, namespace string, entries []Entry) error {
	ctx, span := qdrantTracer.Start(ctx, "QdrantStore.Upsert")
	defer span.End()
	span.SetAttributes(
		attribute.String("namespace", namespace),
		attribute.Int("entry_count", len(entries)),
	)

	if len(entries) == 0 {
		return ErrEmptyEntries
	}

	if err := s.ensureCollection(ctx, namespace); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	points := make([]*qdrant.PointStruct, len(entries))
	for i, e := range entries {
		points[i] = &qdrant.PointStruct{
			Id:      pointID(e.ID),
			Vectors: qdrant.NewVectors(e.Vector...),
			Payload: qdrant.NewValueMap(map[string]any{
				"chunk_id":   e.ID,
				"file":       e.Payload.File,
				"language":   e.Payload.Language,
				"start_line": int64(e.Payload.StartLine),
				"end_line":   int64(e.Payload.EndLine),
				"content":    e.Payload.Content,
			}),
		}
	}

	_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: namespace,
		Points:         points,
		Wait:           qdrant.PtrOf(true),
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("%w: upserting into %s: %v", ErrStoreFailed, namespace, err)
	}

	s.logger.Debug("upserted entries",
		zap.String("namespace", namespace),
		zap.Int("count", len(entries)))
	return nil
}

// Query searches a namespace by embedding.
func (s *QdrantStore) Query(ctx context.Context, namespace string, vector []float32, topK int) ([]Hit, error) {
	ctx, span := qdrantTracer.Start(ctx, "QdrantStore.Query")
	defer span.End()
	span.SetAttributes(
		attribute.String("namespace", namespace),
		attribute.Int("top_k", topK),
	)

	if topK <= 0 {
		return nil, fmt.Errorf("%w: topK must be positive, got %d", ErrInvalidConfig, topK)
	}

	exists, err := s.client.CollectionExists(ctx, namespace)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("%w: checking collection %s: %v", ErrStoreFailed, namespace, err)
	}
	if !exists {
		return []Hit{}, nil
	}

	// Fetch slack beyond topK so the ID tie-break decides membership for
	// equal scores at the boundary, not qdrant's internal ordering.
	results, err := s.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: namespace,
		Query:          qdrant.NewQuery(vector...),
		Limit:          qdrant.PtrOf(uint64(topK + queryOverfetch)),
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("%w: querying %s: %v", ErrStoreFailed, namespace, err)
	}

	hits := make([]Hit, len(results))
	for i, r := range results {
		payload := r.GetPayload()
		hits[i] = Hit{
			ID:    payload["chunk_id"].GetStringValue(),
			Score: r.GetScore(),
			Payload: Payload{
				File:      payload["file"].GetStringValue(),
				Language:  payload["language"].GetStringValue(),
				StartLine: int(payload["start_line"].GetIntegerValue()),
				EndLine:   int(payload["end_line"].GetIntegerValue()),
				Content:   payload["content"].GetStringValue(),
			},
		}
	}
	hits = truncateHits(hits, topK)

	span.SetAttributes(attribute.Int("result_count", len(hits)))
	return hits, nil
}

// DeleteNamespace drops a namespace collection.
func (s *QdrantStore) DeleteNamespace(ctx context.Context, namespace string) error {
	ctx, span := qdrantTracer.Start(ctx, "QdrantStore.DeleteNamespace")
	defer span.End()
	span.SetAttributes(attribute.String("namespace", namespace))

	exists, err := s.client.CollectionExists(ctx, namespace)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("%w: checking collection %s: %v", ErrStoreFailed, namespace, err)
	}
	if !exists {
		return nil
	}

	if err := s.client.DeleteCollection(ctx, namespace); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("%w: deleting collection %s: %v", ErrStoreFailed, namespace, err)
	}
	return nil
}

// NamespaceCount returns the number of stored points in a namespace.
func (s *QdrantStore) NamespaceCount(ctx context.Context, namespace string) (int, error) {
	exists, err := s.client.CollectionExists(ctx, namespace)
	if err != nil {
		return 0, fmt.Errorf("%w: checking collection %s: %v", ErrStoreFailed, namespace, err)
	}
	if !exists {
		return 0, nil
	}

	count, err := s.client.Count(ctx, &qdrant.CountPoints{
		CollectionName: namespace,
		Exact:          qdrant.PtrOf(true),
	})
	if err != nil {
		return 0, fmt.Errorf("%w: counting %s: %v", ErrStoreFailed, namespace, err)
	}
	return int(count), nil
}

// Close closes the Qdrant gRPC connection.
func (s *QdrantStore) Close() error {
	if s.client != nil {
		return s.client.Close()
	}
	return nil
}
