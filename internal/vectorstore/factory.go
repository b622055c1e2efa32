package vectorstore

import (
	"fmt"

	"go.uber.org/zap"
)

// Config selects and configures a vector store backend.
type Config struct {
	// Provider is the backend type: "chromem" or "qdrant".
	Provider string
	// Path is the chromem persistence directory. Empty means in-memory.
	Path string
	// Host is the Qdrant host.
	Host string
	// Port is the Qdrant gRPC port.
	Port int
	// APIKey authenticates against Qdrant Cloud.
	APIKey string
	// UseTLS enables TLS for Qdrant.
	UseTLS bool
	// Dimension is the embedding dimension.
	Dimension int
}

// New creates a Store for the configured provider.
func New(cfg Config, logger *zap.Logger) (Store, error) {
	switch cfg.Provider {
	case "chromem", "":
		return NewChromemStore(ChromemConfig{Path: cfg.Path}, logger)
	case "qdrant":
		return NewQdrantStore(QdrantConfig{
			Host:      cfg.Host,
			Port:      cfg.Port,
			APIKey:    cfg.APIKey,
			UseTLS:    cfg.UseTLS,
			Dimension: cfg.Dimension,
		}, logger)
	default:
		return nil, fmt.Errorf("%w: unknown provider %q", ErrInvalidConfig, cfg.Provider)
	}
}
