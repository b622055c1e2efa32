package vectorstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *ChromemStore {
	t.Helper()
	store, err := NewChromemStore(ChromemConfig{}, nil)
	require.NoError(t, err)
	return store
}

func entry(id string, vector []float32, file string, start int) Entry {
	return Entry{
		ID:     id,
		Vector: vector,
		Payload: Payload{
			File:      file,
			Language:  "go",
			StartLine: start,
			EndLine:   start + 10,
			Content:   "func example() {}",
		},
	}
}

func TestChromemUpsertAndQuery(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	entries := []Entry{
		entry("sess:a.go:000001", []float32{1, 0, 0}, "a.go", 1),
		entry("sess:b.go:000001", []float32{0, 1, 0}, "b.go", 1),
		entry("sess:c.go:000001", []float32{0.8, 0.6, 0}, "c.go", 1),
	}
	require.NoError(t, store.Upsert(ctx, "sess", entries))

	count, err := store.NamespaceCount(ctx, "sess")
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	hits, err := store.Query(ctx, "sess", []float32{1, 0, 0}, 3)
	require.NoError(t, err)
	require.Len(t, hits, 3)

	// Best match first, scores descending.
	assert.Equal(t, "sess:a.go:000001", hits[0].ID)
	assert.Equal(t, "sess:c.go:000001", hits[1].ID)
	assert.Equal(t, "sess:b.go:000001", hits[2].ID)
	assert.GreaterOrEqual(t, hits[0].Score, hits[1].Score)
	assert.GreaterOrEqual(t, hits[1].Score, hits[2].Score)

	// Payload round-trips.
	assert.Equal(t, "a.go", hits[0].Payload.File)
	assert.Equal(t, 1, hits[0].Payload.StartLine)
	assert.Equal(t, 11, hits[0].Payload.EndLine)
	assert.Equal(t, "go", hits[0].Payload.Language)
	assert.Equal(t, "func example() {}", hits[0].Payload.Content)
}

func TestChromemEqualScoresTieBreakByID(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	same := []float32{0, 0, 1}
	entries := []Entry{
		entry("sess:z.go:000001", same, "z.go", 1),
		entry("sess:a.go:000001", same, "a.go", 1),
	}
	require.NoError(t, store.Upsert(ctx, "sess", entries))

	hits, err := store.Query(ctx, "sess", same, 2)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, "sess:a.go:000001", hits[0].ID)
	assert.Equal(t, "sess:z.go:000001", hits[1].ID)
}

func TestChromemTieAtBoundaryIsDeterministic(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	// Six entries share one vector but only two are requested. The ID
	// tie-break must decide which two make the cut, regardless of the
	// order the backend happens to return candidates in.
	same := []float32{0, 0, 1}
	entries := []Entry{
		entry("sess:f.go:000001", same, "f.go", 1),
		entry("sess:b.go:000001", same, "b.go", 1),
		entry("sess:d.go:000001", same, "d.go", 1),
		entry("sess:a.go:000001", same, "a.go", 1),
		entry("sess:e.go:000001", same, "e.go", 1),
		entry("sess:c.go:000001", same, "c.go", 1),
	}
	require.NoError(t, store.Upsert(ctx, "sess", entries))

	for i := 0; i < 5; i++ {
		hits, err := store.Query(ctx, "sess", same, 2)
		require.NoError(t, err)
		require.Len(t, hits, 2)
		assert.Equal(t, "sess:a.go:000001", hits[0].ID)
		assert.Equal(t, "sess:b.go:000001", hits[1].ID)
	}
}

func TestChromemQueryMissingNamespace(t *testing.T) {
	store := newTestStore(t)

	hits, err := store.Query(context.Background(), "no-such-session", []float32{1, 0, 0}, 5)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestChromemQueryCapsTopK(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Upsert(ctx, "sess", []Entry{
		entry("sess:a.go:000001", []float32{1, 0, 0}, "a.go", 1),
	}))

	hits, err := store.Query(ctx, "sess", []float32{1, 0, 0}, 10)
	require.NoError(t, err)
	assert.Len(t, hits, 1)
}

func TestChromemNamespaceIsolation(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Upsert(ctx, "sess-1", []Entry{
		entry("sess-1:a.go:000001", []float32{1, 0, 0}, "a.go", 1),
	}))
	require.NoError(t, store.Upsert(ctx, "sess-2", []Entry{
		entry("sess-2:b.go:000001", []float32{1, 0, 0}, "b.go", 1),
	}))

	hits, err := store.Query(ctx, "sess-1", []float32{1, 0, 0}, 10)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "sess-1:a.go:000001", hits[0].ID)
}

func TestChromemDeleteNamespace(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Upsert(ctx, "sess", []Entry{
		entry("sess:a.go:000001", []float32{1, 0, 0}, "a.go", 1),
	}))
	require.NoError(t, store.DeleteNamespace(ctx, "sess"))

	count, err := store.NamespaceCount(ctx, "sess")
	require.NoError(t, err)
	assert.Zero(t, count)

	hits, err := store.Query(ctx, "sess", []float32{1, 0, 0}, 5)
	require.NoError(t, err)
	assert.Empty(t, hits)

	// Deleting again is a no-op.
	assert.NoError(t, store.DeleteNamespace(ctx, "sess"))
}

func TestChromemUpsertEmpty(t *testing.T) {
	store := newTestStore(t)
	err := store.Upsert(context.Background(), "sess", nil)
	assert.ErrorIs(t, err, ErrEmptyEntries)
}

func TestChromemPersistence(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	store, err := NewChromemStore(ChromemConfig{Path: dir}, nil)
	require.NoError(t, err)
	require.NoError(t, store.Upsert(ctx, "sess", []Entry{
		entry("sess:a.go:000001", []float32{1, 0, 0}, "a.go", 1),
	}))
	require.NoError(t, store.Close())

	reopened, err := NewChromemStore(ChromemConfig{Path: dir}, nil)
	require.NoError(t, err)

	count, err := reopened.NamespaceCount(ctx, "sess")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestNewUnknownProvider(t *testing.T) {
	_, err := New(Config{Provider: "pinecone"}, nil)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestSortHits(t *testing.T) {
	hits := []Hit{
		{ID: "b", Score: 0.5},
		{ID: "a", Score: 0.5},
		{ID: "c", Score: 0.9},
	}
	sortHits(hits)
	assert.Equal(t, []string{"c", "a", "b"}, []string{hits[0].ID, hits[1].ID, hits[2].ID})
}

func TestTruncateHits(t *testing.T) {
	hits := []Hit{
		{ID: "b", Score: 0.5},
		{ID: "a", Score: 0.5},
		{ID: "c", Score: 0.9},
	}
	got := truncateHits(hits, 2)
	require.Len(t, got, 2)
	assert.Equal(t, "c", got[0].ID)
	assert.Equal(t, "a", got[1].ID)
}
