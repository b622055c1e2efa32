package embeddings

import (
	"context"
	"fmt"
	"strings"

	lcembeddings "github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/openai"
)

// OpenAIProvider generates embeddings through an OpenAI-compatible API
// using langchaingo's embedder abstraction.
type OpenAIProvider struct {
	embedder  *lcembeddings.EmbedderImpl
	config    Config
	dimension int
}

// NewOpenAIProvider creates an OpenAI-backed embedding provider.
// A custom BaseURL targets any OpenAI-compatible endpoint.
func NewOpenAIProvider(cfg Config) (*OpenAIProvider, error) {
	apiKey := cfg.APIKey
	if apiKey == "" {
		// langchaingo requires a token even for keyless endpoints.
		apiKey = "placeholder"
	}

	opts := []openai.Option{
		openai.WithModel(cfg.Model),
		openai.WithEmbeddingModel(cfg.Model),
		openai.WithToken(apiKey),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
	}

	llm, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("creating OpenAI client: %w", err)
	}

	embedder, err := lcembeddings.NewEmbedder(llm)
	if err != nil {
		return nil, fmt.Errorf("creating embedder: %w", err)
	}

	return &OpenAIProvider{
		embedder:  embedder,
		config:    cfg,
		dimension: detectDimensionFromModel(cfg.Model),
	}, nil
}

// EmbedDocuments generates embeddings for multiple texts.
func (p *OpenAIProvider) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, fmt.Errorf("%w: texts cannot be empty", ErrEmptyInput)
	}

	vectors, err := p.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		return nil, classifyAPIError(fmt.Errorf("embedding documents: %w", err))
	}
	if err := validateVectors(vectors, len(texts), p.dimension); err != nil {
		return nil, err
	}
	return vectors, nil
}

// EmbedQuery generates an embedding for a single query.
func (p *OpenAIProvider) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, fmt.Errorf("%w: text cannot be empty", ErrEmptyInput)
	}

	vector, err := p.embedder.EmbedQuery(ctx, text)
	if err != nil {
		return nil, classifyAPIError(fmt.Errorf("embedding query: %w", err))
	}
	if len(vector) != p.dimension {
		return nil, fmt.Errorf("%w: got dimension %d, want %d", ErrDimensionMismatch, len(vector), p.dimension)
	}
	return vector, nil
}

// Dimension returns the embedding dimension based on the configured model.
func (p *OpenAIProvider) Dimension() int {
	return p.dimension
}

// Model returns the configured model identifier.
func (p *OpenAIProvider) Model() string {
	return p.config.Model
}

// Close is a no-op since the client uses HTTP.
func (p *OpenAIProvider) Close() error {
	return nil
}

// classifyAPIError marks rate-limit and server-side failures as transient.
// langchaingo surfaces API errors as formatted strings, so matching is
// necessarily textual.
func classifyAPIError(err error) error {
	msg := err.Error()
	for _, marker := range []string{"429", "500", "502", "503", "504", "rate limit", "timeout", "connection refused"} {
		if strings.Contains(msg, marker) {
			return Transient(err)
		}
	}
	return err
}
