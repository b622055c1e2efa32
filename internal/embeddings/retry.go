package embeddings

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
)

// transientError marks an error as retryable. Permanent failures (bad
// input, auth, dimension mismatch) are never wrapped.
type transientError struct {
	err error
}

func (e *transientError) Error() string { return e.err.Error() }
func (e *transientError) Unwrap() error { return e.err }

// Transient wraps err so IsTransient reports true for it.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &transientError{err: err}
}

// IsTransient reports whether err is worth retrying.
func IsTransient(err error) bool {
	var te *transientError
	return errors.As(err, &te)
}

// RetryConfig bounds the retry loop for transient embedding failures.
type RetryConfig struct {
	// MaxRetries is the number of retries after the initial attempt.
	MaxRetries int
	// BaseDelay is the first backoff delay.
	BaseDelay time.Duration
	// MaxDelay caps the exponential backoff.
	MaxDelay time.Duration
}

// ApplyDefaults sets default values for unset fields.
func (c *RetryConfig) ApplyDefaults() {
	if c.MaxRetries == 0 {
		c.MaxRetries = 3
	}
	if c.BaseDelay == 0 {
		c.BaseDelay = 500 * time.Millisecond
	}
	if c.MaxDelay == 0 {
		c.MaxDelay = 8 * time.Second
	}
}

// retryingProvider wraps a Provider with bounded exponential backoff.
// Only transient errors are retried; permanent errors return immediately.
type retryingProvider struct {
	Provider
	config RetryConfig
	logger *zap.Logger
}

// WithRetry wraps p so transient failures are retried with exponential
// backoff before being reported to the caller.
func WithRetry(p Provider, cfg RetryConfig, logger *zap.Logger) Provider {
	cfg.ApplyDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}
	return &retryingProvider{Provider: p, config: cfg, logger: logger}
}

func (r *retryingProvider) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	var vectors [][]float32
	err := r.retry(ctx, "embed_documents", func() error {
		var err error
		vectors, err = r.Provider.EmbedDocuments(ctx, texts)
		return err
	})
	return vectors, err
}

func (r *retryingProvider) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	var vector []float32
	err := r.retry(ctx, "embed_query", func() error {
		var err error
		vector, err = r.Provider.EmbedQuery(ctx, text)
		return err
	})
	return vector, err
}

func (r *retryingProvider) retry(ctx context.Context, op string, fn func() error) error {
	delay := r.config.BaseDelay

	var lastErr error
	for attempt := 0; attempt <= r.config.MaxRetries; attempt++ {
		if attempt > 0 {
			r.logger.Warn("retrying embedding call",
				zap.String("operation", op),
				zap.Int("attempt", attempt),
				zap.Duration("delay", delay),
				zap.Error(lastErr))

			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}

			delay *= 2
			if delay > r.config.MaxDelay {
				delay = r.config.MaxDelay
			}
		}

		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if !IsTransient(lastErr) {
			return lastErr
		}
	}
	return lastErr
}
