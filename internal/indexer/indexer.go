// Package indexer orchestrates the repository indexing pipeline.
//
// One goroutine per session runs fetch, chunk, embed, and store in order,
// advancing the session state machine as each stage completes. The whole
// run is bounded by a per-session timeout and always cleans up the
// working copy, whatever the outcome.
package indexer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/repoqa/internal/chunker"
	"github.com/fyrsmithlabs/repoqa/internal/embeddings"
	"github.com/fyrsmithlabs/repoqa/internal/fetch"
	"github.com/fyrsmithlabs/repoqa/internal/session"
	"github.com/fyrsmithlabs/repoqa/internal/vectorstore"
)

var tracer = otel.Tracer("repoqa.indexer")

// ErrSessionRunning indicates an operation on a session whose indexing
// goroutine is still active.
var ErrSessionRunning = errors.New("session indexing in progress")

// Progress checkpoints per pipeline stage. Embedding fills the range
// between embedBase and embedDone proportionally to processed chunks.
const (
	progressCloning = 10
	progressParsing = 33
	embedBase       = 40
	embedDone       = 95
)

// Fetcher obtains a repository working copy for a session.
type Fetcher interface {
	Fetch(ctx context.Context, sessionID, repoURL string) (string, error)
	Cleanup(sessionID string) error
}

// Chunker turns a working copy into an ordered chunk sequence.
type Chunker interface {
	ChunkTree(root, sessionID string) ([]chunker.Chunk, chunker.Stats, error)
}

// Config holds indexer settings.
type Config struct {
	// BatchSize is the number of chunks embedded per provider call.
	BatchSize int

	// FailureRateThreshold is the fraction of chunks that may be dropped
	// to embedding failures before the whole session fails, in (0, 1].
	FailureRateThreshold float64

	// SessionTimeout bounds one indexing run end to end.
	SessionTimeout time.Duration
}

// ApplyDefaults sets default values for unset fields.
func (c *Config) ApplyDefaults() {
	if c.BatchSize == 0 {
		c.BatchSize = 32
	}
	if c.FailureRateThreshold == 0 {
		c.FailureRateThreshold = 0.5
	}
	if c.SessionTimeout == 0 {
		c.SessionTimeout = 15 * time.Minute
	}
}

// Indexer runs indexing pipelines and owns their lifecycle.
type Indexer struct {
	fetcher  Fetcher
	chunker  Chunker
	provider embeddings.Provider
	store    vectorstore.Store
	sessions *session.Manager
	config   Config
	logger   *zap.Logger

	running sync.Map // session ID -> struct{}
	wg      sync.WaitGroup
}

// New creates an Indexer.
func New(fetcher Fetcher, ch Chunker, provider embeddings.Provider, store vectorstore.Store, sessions *session.Manager, cfg Config, logger *zap.Logger) *Indexer {
	cfg.ApplyDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Indexer{
		fetcher:  fetcher,
		chunker:  ch,
		provider: provider,
		store:    store,
		sessions: sessions,
		config:   cfg,
		logger:   logger,
	}
}

// Start launches the indexing pipeline for a session in the background.
// Starting an already-running session is a no-op.
func (ix *Indexer) Start(sessionID, repoURL string) {
	if _, loaded := ix.running.LoadOrStore(sessionID, struct{}{}); loaded {
		return
	}

	ix.wg.Add(1)
	go func() {
		defer ix.wg.Done()
		defer ix.running.Delete(sessionID)
		ix.run(sessionID, repoURL)
	}()
}

// Running reports whether a session's pipeline goroutine is active.
func (ix *Indexer) Running(sessionID string) bool {
	_, ok := ix.running.Load(sessionID)
	return ok
}

// Wait blocks until all in-flight pipelines finish. Used on shutdown.
func (ix *Indexer) Wait() {
	ix.wg.Wait()
}

// Evict removes a session and its vectors. Sessions still indexing cannot
// be evicted.
func (ix *Indexer) Evict(ctx context.Context, sessionID string) error {
	if ix.Running(sessionID) {
		return fmt.Errorf("%w: %s", ErrSessionRunning, sessionID)
	}
	if err := ix.sessions.Evict(sessionID); err != nil {
		return err
	}
	if err := ix.store.DeleteNamespace(ctx, sessionID); err != nil {
		ix.logger.Error("failed to delete session namespace",
			zap.String("session_id", sessionID),
			zap.Error(err))
		return err
	}
	return nil
}

func (ix *Indexer) run(sessionID, repoURL string) {
	ctx, cancel := context.WithTimeout(context.Background(), ix.config.SessionTimeout)
	defer cancel()

	ctx, span := tracer.Start(ctx, "Indexer.Run")
	defer span.End()
	span.SetAttributes(attribute.String("session_id", sessionID))

	start := time.Now()
	logger := ix.logger.With(zap.String("session_id", sessionID))

	fail := func(code session.FailureCode, err error) {
		// Map a blown deadline to the timeout code regardless of which
		// stage surfaced it.
		if ctx.Err() == context.DeadlineExceeded {
			code = session.FailTimeout
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		if ferr := ix.sessions.Fail(sessionID, code, err.Error()); ferr != nil {
			logger.Error("failed to record session failure", zap.Error(ferr))
		}
	}

	// Stage 1: clone.
	if err := ix.sessions.Advance(sessionID, session.StateCloning); err != nil {
		logger.Error("cannot start pipeline", zap.Error(err))
		return
	}
	_ = ix.sessions.SetProgress(sessionID, progressCloning)

	workDir, err := ix.fetcher.Fetch(ctx, sessionID, repoURL)
	if err != nil {
		switch {
		case errors.Is(err, fetch.ErrInvalidRepositoryURL):
			fail(session.FailInvalidRepositoryURL, err)
		default:
			fail(session.FailFetch, err)
		}
		return
	}
	defer func() {
		if err := ix.fetcher.Cleanup(sessionID); err != nil {
			logger.Warn("failed to clean up working copy", zap.Error(err))
		}
	}()

	// Stage 2: chunk.
	if err := ix.sessions.Advance(sessionID, session.StateParsing); err != nil {
		logger.Error("state advance failed", zap.Error(err))
		return
	}
	_ = ix.sessions.SetProgress(sessionID, progressParsing)

	chunks, stats, err := ix.chunker.ChunkTree(workDir, sessionID)
	if err != nil {
		fail(session.FailInternal, fmt.Errorf("chunking repository: %w", err))
		return
	}
	_ = ix.sessions.SetStats(sessionID, session.Stats{
		FilesChunked: stats.FilesChunked,
		FilesSkipped: stats.FilesSkipped + stats.FilesErrored,
		Chunks:       stats.Chunks,
	})

	// Stage 3: embed and store.
	if err := ix.sessions.Advance(sessionID, session.StateEmbedding); err != nil {
		logger.Error("state advance failed", zap.Error(err))
		return
	}
	_ = ix.sessions.SetEmbeddingModel(sessionID, ix.provider.Model(), ix.provider.Dimension())

	stored, dropped, err := ix.embedAndStore(ctx, sessionID, chunks)
	if err != nil {
		switch {
		case errors.Is(err, vectorstore.ErrStoreFailed):
			fail(session.FailVectorIndex, err)
		case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
			fail(session.FailTimeout, err)
		default:
			fail(session.FailInternal, err)
		}
		return
	}

	if len(chunks) > 0 {
		rate := float64(dropped) / float64(len(chunks))
		if rate > ix.config.FailureRateThreshold {
			fail(session.FailEmbeddingFailureRate,
				fmt.Errorf("dropped %d of %d chunks (%.0f%%)", dropped, len(chunks), rate*100))
			return
		}
	}

	_ = ix.sessions.SetStats(sessionID, session.Stats{
		FilesChunked: stats.FilesChunked,
		FilesSkipped: stats.FilesSkipped + stats.FilesErrored,
		Chunks:       stats.Chunks,
		ChunksStored: stored,
	})

	if err := ix.sessions.Advance(sessionID, session.StateReady); err != nil {
		logger.Error("state advance failed", zap.Error(err))
		return
	}

	span.SetStatus(codes.Ok, "success")
	logger.Info("indexing complete",
		zap.Int("chunks", len(chunks)),
		zap.Int("stored", stored),
		zap.Int("dropped", dropped),
		zap.Duration("duration", time.Since(start)))
}

// embedAndStore embeds chunks batch by batch and upserts each batch into
// the session namespace. When a whole batch fails to embed, its chunks are
// retried one by one so a few bad chunks cannot poison their batch mates;
// only the chunks that fail individually are dropped and counted. A failed
// upsert aborts the run since stored vectors would no longer reflect the
// index contract.
func (ix *Indexer) embedAndStore(ctx context.Context, sessionID string, chunks []chunker.Chunk) (stored, dropped int, err error) {
	total := len(chunks)
	for batchStart := 0; batchStart < total; batchStart += ix.config.BatchSize {
		if ctx.Err() != nil {
			return stored, dropped, ctx.Err()
		}

		batchEnd := batchStart + ix.config.BatchSize
		if batchEnd > total {
			batchEnd = total
		}
		batch := chunks[batchStart:batchEnd]

		texts := make([]string, len(batch))
		for i, c := range batch {
			texts[i] = c.Content
		}

		kept := batch
		vectors, embedErr := ix.provider.EmbedDocuments(ctx, texts)
		if embedErr != nil {
			if ctx.Err() != nil {
				return stored, dropped, ctx.Err()
			}
			ix.logger.Warn("batch embedding failed, retrying chunks individually",
				zap.String("session_id", sessionID),
				zap.Int("batch_start", batchStart),
				zap.Int("batch_size", len(batch)),
				zap.Error(embedErr))

			var batchDropped int
			kept, vectors, batchDropped, err = ix.embedIndividually(ctx, sessionID, batch)
			if err != nil {
				return stored, dropped, err
			}
			dropped += batchDropped
		}

		if len(kept) > 0 {
			entries := make([]vectorstore.Entry, len(kept))
			for i, c := range kept {
				entries[i] = vectorstore.Entry{
					ID:     c.ID,
					Vector: vectors[i],
					Payload: vectorstore.Payload{
						File:      c.File,
						Language:  c.Language,
						StartLine: c.StartLine,
						EndLine:   c.EndLine,
						Content:   c.Content,
					},
				}
			}

			if upsertErr := ix.store.Upsert(ctx, sessionID, entries); upsertErr != nil {
				return stored, dropped, upsertErr
			}
			stored += len(kept)
		}

		progress := embedBase + (embedDone-embedBase)*batchEnd/total
		_ = ix.sessions.SetProgress(sessionID, progress)
	}
	return stored, dropped, nil
}

// embedIndividually embeds each chunk of a failed batch on its own,
// returning the chunks that succeeded with their vectors and the number
// dropped. Only a cancelled context is an error.
func (ix *Indexer) embedIndividually(ctx context.Context, sessionID string, batch []chunker.Chunk) ([]chunker.Chunk, [][]float32, int, error) {
	kept := make([]chunker.Chunk, 0, len(batch))
	vectors := make([][]float32, 0, len(batch))
	dropped := 0

	for _, c := range batch {
		if ctx.Err() != nil {
			return nil, nil, 0, ctx.Err()
		}
		vs, err := ix.provider.EmbedDocuments(ctx, []string{c.Content})
		if err != nil {
			if ctx.Err() != nil {
				return nil, nil, 0, ctx.Err()
			}
			dropped++
			ix.logger.Warn("dropping chunk after embedding failure",
				zap.String("session_id", sessionID),
				zap.String("chunk_id", c.ID),
				zap.Error(err))
			continue
		}
		kept = append(kept, c)
		vectors = append(vectors, vs[0])
	}
	return kept, vectors, dropped, nil
}
