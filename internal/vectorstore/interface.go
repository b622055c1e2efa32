// Package vectorstore provides session-scoped vector storage.
//
// Each indexing session writes into its own namespace so concurrent
// sessions never see each other's chunks and eviction is a single
// namespace drop. Two backends are supported: chromem-go (embedded,
// pure Go) and Qdrant (external, gRPC).
package vectorstore

import (
	"context"
	"errors"
	"sort"
)

var (
	// ErrInvalidConfig indicates invalid configuration.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrEmptyEntries indicates an upsert with no entries.
	ErrEmptyEntries = errors.New("no entries to upsert")

	// ErrStoreFailed indicates a storage operation failure.
	ErrStoreFailed = errors.New("vector store operation failed")
)

// Payload is the metadata stored alongside each vector, sufficient to
// render a citation without re-reading the repository.
type Payload struct {
	File      string
	Language  string
	StartLine int
	EndLine   int
	Content   string
}

// Entry is a chunk ready for storage: a stable ID, its embedding, and
// the citation payload.
type Entry struct {
	ID      string
	Vector  []float32
	Payload Payload
}

// Hit is a single retrieval result.
type Hit struct {
	ID      string
	Score   float32
	Payload Payload
}

// Store is the interface for session-scoped vector storage.
type Store interface {
	// Upsert writes entries into a namespace, replacing entries that share
	// an ID. The namespace is created on first write.
	Upsert(ctx context.Context, namespace string, entries []Entry) error

	// Query returns up to topK nearest entries by cosine similarity, best
	// first. A missing or empty namespace yields an empty result, not an
	// error.
	Query(ctx context.Context, namespace string, vector []float32, topK int) ([]Hit, error)

	// DeleteNamespace drops a namespace and everything in it. Deleting a
	// missing namespace is a no-op.
	DeleteNamespace(ctx context.Context, namespace string) error

	// NamespaceCount returns the number of entries in a namespace, 0 when
	// the namespace does not exist.
	NamespaceCount(ctx context.Context, namespace string) (int, error)

	// Close releases resources held by the store.
	Close() error
}

// queryOverfetch is the extra candidates fetched beyond topK before the
// tie-break sort. Without slack, equal scores straddling the topK boundary
// would make result membership depend on backend iteration order.
const queryOverfetch = 16

// sortHits orders hits by score descending, breaking ties by ID ascending
// so equal-score results are returned in a stable, positional order.
func sortHits(hits []Hit) {
	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].ID < hits[j].ID
	})
}

// truncateHits sorts hits and cuts them down to topK.
func truncateHits(hits []Hit, topK int) []Hit {
	sortHits(hits)
	if len(hits) > topK {
		hits = hits[:topK]
	}
	return hits
}
