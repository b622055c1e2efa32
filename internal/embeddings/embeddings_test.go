package embeddings

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func makeVector(dim int, fill float32) []float32 {
	v := make([]float32, dim)
	for i := range v {
		v[i] = fill
	}
	return v
}

func newTEIServer(t *testing.T, dim int) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req teiRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		var count int
		switch in := req.Inputs.(type) {
		case string:
			count = 1
		case []interface{}:
			count = len(in)
		}

		vectors := make([][]float32, count)
		for i := range vectors {
			vectors[i] = makeVector(dim, float32(i))
		}
		require.NoError(t, json.NewEncoder(w).Encode(vectors))
	}))
}

func TestTEIProviderEmbedDocuments(t *testing.T) {
	server := newTEIServer(t, 384)
	defer server.Close()

	p, err := NewTEIProvider(Config{BaseURL: server.URL, Model: "bge-small-en-v1.5"}, nil)
	require.NoError(t, err)

	vectors, err := p.EmbedDocuments(context.Background(), []string{"alpha", "beta"})
	require.NoError(t, err)
	require.Len(t, vectors, 2)
	assert.Len(t, vectors[0], 384)
	assert.Equal(t, 384, p.Dimension())
	assert.Equal(t, "bge-small-en-v1.5", p.Model())
}

func TestTEIProviderEmbedQuery(t *testing.T) {
	server := newTEIServer(t, 384)
	defer server.Close()

	p, err := NewTEIProvider(Config{BaseURL: server.URL, Model: "bge-small-en-v1.5"}, nil)
	require.NoError(t, err)

	vector, err := p.EmbedQuery(context.Background(), "what does this do")
	require.NoError(t, err)
	assert.Len(t, vector, 384)
}

func TestTEIProviderEmptyInput(t *testing.T) {
	p, err := NewTEIProvider(Config{BaseURL: "http://localhost:1", Model: "m"}, nil)
	require.NoError(t, err)

	_, err = p.EmbedDocuments(context.Background(), nil)
	assert.ErrorIs(t, err, ErrEmptyInput)

	_, err = p.EmbedQuery(context.Background(), "")
	assert.ErrorIs(t, err, ErrEmptyInput)
}

func TestTEIProviderServerErrorIsTransient(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	p, err := NewTEIProvider(Config{BaseURL: server.URL, Model: "m"}, nil)
	require.NoError(t, err)

	_, err = p.EmbedQuery(context.Background(), "query")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrEmbeddingFailed)
	assert.True(t, IsTransient(err))
}

func TestTEIProviderClientErrorIsPermanent(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad input", http.StatusBadRequest)
	}))
	defer server.Close()

	p, err := NewTEIProvider(Config{BaseURL: server.URL, Model: "m"}, nil)
	require.NoError(t, err)

	_, err = p.EmbedQuery(context.Background(), "query")
	require.Error(t, err)
	assert.False(t, IsTransient(err))
}

func TestTEIProviderDimensionMismatch(t *testing.T) {
	server := newTEIServer(t, 10)
	defer server.Close()

	p, err := NewTEIProvider(Config{BaseURL: server.URL, Model: "bge-small-en-v1.5"}, nil)
	require.NoError(t, err)

	_, err = p.EmbedQuery(context.Background(), "query")
	assert.ErrorIs(t, err, ErrDimensionMismatch)
}

func TestDetectDimensionFromModel(t *testing.T) {
	tests := []struct {
		model string
		want  int
	}{
		{"text-embedding-3-small", 1536},
		{"text-embedding-3-large", 3072},
		{"text-embedding-ada-002", 1536},
		{"BAAI/bge-small-en-v1.5", 384},
		{"Alibaba-NLP/gte-base-en-v1.5", 768},
		{"BAAI/bge-large-en-v1.5", 1024},
		{"all-MiniLM-L6-v2", 384},
		{"unknown-model", 384},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, detectDimensionFromModel(tt.model), tt.model)
	}
}

func TestNewProviderUnknown(t *testing.T) {
	_, err := NewProvider(Config{Provider: "bogus", Model: "m"}, nil)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestNewProviderRequiresModel(t *testing.T) {
	_, err := NewProvider(Config{Provider: "tei", BaseURL: "http://localhost:8080"}, nil)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

// fakeProvider fails a configurable number of times before succeeding.
type fakeProvider struct {
	failures int32
	attempts int32
	err      error
	dim      int
}

func (f *fakeProvider) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	if n := atomic.AddInt32(&f.attempts, 1); n <= f.failures {
		return nil, f.err
	}
	vectors := make([][]float32, len(texts))
	for i := range vectors {
		vectors[i] = makeVector(f.dim, 1)
	}
	return vectors, nil
}

func (f *fakeProvider) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	if n := atomic.AddInt32(&f.attempts, 1); n <= f.failures {
		return nil, f.err
	}
	return makeVector(f.dim, 1), nil
}

func (f *fakeProvider) Dimension() int { return f.dim }
func (f *fakeProvider) Model() string  { return "fake" }
func (f *fakeProvider) Close() error   { return nil }

func TestWithRetryRecoversTransient(t *testing.T) {
	fake := &fakeProvider{failures: 2, err: Transient(errors.New("flaky")), dim: 4}
	p := WithRetry(fake, RetryConfig{MaxRetries: 3, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond}, nil)

	vectors, err := p.EmbedDocuments(context.Background(), []string{"a"})
	require.NoError(t, err)
	require.Len(t, vectors, 1)
	assert.Equal(t, int32(3), atomic.LoadInt32(&fake.attempts))
}

func TestWithRetryExhausted(t *testing.T) {
	fake := &fakeProvider{failures: 100, err: Transient(errors.New("down")), dim: 4}
	p := WithRetry(fake, RetryConfig{MaxRetries: 2, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond}, nil)

	_, err := p.EmbedQuery(context.Background(), "q")
	require.Error(t, err)
	assert.True(t, IsTransient(err))
	assert.Equal(t, int32(3), atomic.LoadInt32(&fake.attempts)) // initial + 2 retries
}

func TestWithRetryPermanentNotRetried(t *testing.T) {
	fake := &fakeProvider{failures: 100, err: errors.New("bad request"), dim: 4}
	p := WithRetry(fake, RetryConfig{MaxRetries: 5, BaseDelay: time.Millisecond}, nil)

	_, err := p.EmbedQuery(context.Background(), "q")
	require.Error(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&fake.attempts))
}

func TestWithRetryContextCancelled(t *testing.T) {
	fake := &fakeProvider{failures: 100, err: Transient(errors.New("down")), dim: 4}
	p := WithRetry(fake, RetryConfig{MaxRetries: 10, BaseDelay: time.Hour}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := p.EmbedQuery(ctx, "q")
	assert.ErrorIs(t, err, context.Canceled)
}
