package retrieval

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/repoqa/internal/session"
	"github.com/fyrsmithlabs/repoqa/internal/vectorstore"
)

type stubProvider struct {
	dim   int
	model string
	vec   []float32
}

func (p *stubProvider) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range out {
		out[i] = p.vec
	}
	return out, nil
}

func (p *stubProvider) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	return p.vec, nil
}

func (p *stubProvider) Dimension() int { return p.dim }
func (p *stubProvider) Model() string  { return p.model }
func (p *stubProvider) Close() error   { return nil }

func readySession(t *testing.T, m *session.Manager, model string, dim int) session.Session {
	t.Helper()
	s := m.Create("https://github.com/owner/repo")
	require.NoError(t, m.Advance(s.ID, session.StateCloning))
	require.NoError(t, m.Advance(s.ID, session.StateParsing))
	require.NoError(t, m.Advance(s.ID, session.StateEmbedding))
	require.NoError(t, m.SetEmbeddingModel(s.ID, model, dim))
	require.NoError(t, m.Advance(s.ID, session.StateReady))
	got, err := m.Get(s.ID)
	require.NoError(t, err)
	return got
}

func newEngine(t *testing.T, m *session.Manager, provider *stubProvider) (*Engine, vectorstore.Store) {
	t.Helper()
	store, err := vectorstore.NewChromemStore(vectorstore.ChromemConfig{}, nil)
	require.NoError(t, err)
	return New(m, provider, store, Config{TopK: 3}, nil), store
}

func TestRetrieveReturnsRankedHits(t *testing.T) {
	m := session.NewManager(nil)
	provider := &stubProvider{dim: 3, model: "m1", vec: []float32{1, 0, 0}}
	engine, store := newEngine(t, m, provider)

	s := readySession(t, m, "m1", 3)
	ctx := context.Background()

	require.NoError(t, store.Upsert(ctx, s.ID, []vectorstore.Entry{
		{ID: "a", Vector: []float32{1, 0, 0}, Payload: vectorstore.Payload{File: "a.go", Content: "match"}},
		{ID: "b", Vector: []float32{0, 1, 0}, Payload: vectorstore.Payload{File: "b.go", Content: "miss"}},
	}))

	hits, err := engine.Retrieve(ctx, s.ID, "where is the matcher", 0)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, "a", hits[0].ID)
	assert.Equal(t, "a.go", hits[0].Payload.File)
}

func TestRetrieveEmptyIndexIsNotAnError(t *testing.T) {
	m := session.NewManager(nil)
	provider := &stubProvider{dim: 3, model: "m1", vec: []float32{1, 0, 0}}
	engine, _ := newEngine(t, m, provider)

	s := readySession(t, m, "m1", 3)

	hits, err := engine.Retrieve(context.Background(), s.ID, "anything", 5)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestRetrieveUnknownSession(t *testing.T) {
	m := session.NewManager(nil)
	provider := &stubProvider{dim: 3, model: "m1", vec: []float32{1, 0, 0}}
	engine, _ := newEngine(t, m, provider)

	_, err := engine.Retrieve(context.Background(), "nope", "q", 5)
	assert.ErrorIs(t, err, session.ErrSessionNotFound)
}

func TestRetrieveNotReadySession(t *testing.T) {
	m := session.NewManager(nil)
	provider := &stubProvider{dim: 3, model: "m1", vec: []float32{1, 0, 0}}
	engine, _ := newEngine(t, m, provider)

	s := m.Create("https://github.com/owner/repo")
	_, err := engine.Retrieve(context.Background(), s.ID, "q", 5)
	assert.ErrorIs(t, err, session.ErrSessionNotReady)

	require.NoError(t, m.Fail(s.ID, session.FailFetch, "gone"))
	_, err = engine.Retrieve(context.Background(), s.ID, "q", 5)
	assert.ErrorIs(t, err, session.ErrSessionNotReady)
}

func TestRetrieveModelMismatch(t *testing.T) {
	m := session.NewManager(nil)
	provider := &stubProvider{dim: 3, model: "m2", vec: []float32{1, 0, 0}}
	engine, _ := newEngine(t, m, provider)

	s := readySession(t, m, "m1", 3)

	_, err := engine.Retrieve(context.Background(), s.ID, "q", 5)
	assert.ErrorIs(t, err, ErrModelMismatch)
}

func TestRetrieveDimensionMismatch(t *testing.T) {
	m := session.NewManager(nil)
	provider := &stubProvider{dim: 768, model: "m1", vec: []float32{1, 0, 0}}
	engine, _ := newEngine(t, m, provider)

	s := readySession(t, m, "m1", 384)

	_, err := engine.Retrieve(context.Background(), s.ID, "q", 5)
	assert.ErrorIs(t, err, ErrModelMismatch)
}

func TestRetrieveEmptyQuery(t *testing.T) {
	m := session.NewManager(nil)
	provider := &stubProvider{dim: 3, model: "m1", vec: []float32{1, 0, 0}}
	engine, _ := newEngine(t, m, provider)

	_, err := engine.Retrieve(context.Background(), "any", "", 5)
	assert.ErrorIs(t, err, ErrEmptyQuery)
}
