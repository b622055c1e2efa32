// Package chunker walks a repository working copy and splits source files
// into semantically coherent chunks.
//
// Splitting dispatches over a per-language strategy registry: declaration
// heuristics for code, block boundaries for prose, and a line-window
// fallback for everything else. The walk is deterministic: the same file
// tree always yields the same ordered chunk sequence.
package chunker

import (
	"io/fs"
	"os"
	"path/filepath"

	"go.uber.org/zap"
)

// defaultSkipDirs are directories that should always be skipped during
// indexing. They typically contain generated code, dependencies, or version
// control data.
var defaultSkipDirs = map[string]bool{
	".git":         true,
	".svn":         true,
	".hg":          true,
	"node_modules": true,
	"vendor":       true,
	".venv":        true,
	"venv":         true,
	"__pycache__":  true,
	".idea":        true,
	".vscode":      true,
	".cache":       true,
	"dist":         true,
	"build":        true,
	".next":        true,
	"target":       true,
}

// Config holds chunker settings.
type Config struct {
	// WindowLines is the fallback sliding-window size in lines.
	WindowLines int

	// OverlapLines is the overlap between adjacent window chunks.
	OverlapLines int

	// MaxChunkChars caps a single chunk's size in characters. Oversized
	// sections are sub-split with the window strategy.
	MaxChunkChars int

	// MaxFileSize is the per-file size ceiling in bytes. Larger files are
	// skipped, not errors.
	MaxFileSize int64
}

// ApplyDefaults sets default values for unset fields.
func (c *Config) ApplyDefaults() {
	if c.WindowLines == 0 {
		c.WindowLines = 120
	}
	if c.OverlapLines == 0 {
		c.OverlapLines = 20
	}
	if c.MaxChunkChars == 0 {
		c.MaxChunkChars = 4000
	}
	if c.MaxFileSize == 0 {
		c.MaxFileSize = 1024 * 1024
	}
}

// Chunker splits a file tree into chunks.
type Chunker struct {
	config   Config
	registry *registry
	logger   *zap.Logger
}

// New creates a new Chunker.
func New(cfg Config, logger *zap.Logger) *Chunker {
	cfg.ApplyDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Chunker{
		config:   cfg,
		registry: newRegistry(cfg),
		logger:   logger,
	}
}

// Walk visits every eligible file under root in lexical order and calls fn
// for each chunk. Returning an error from fn aborts the walk.
//
// Skips are not errors: binary, empty and oversized files are counted in
// Stats and omitted. A file that fails to read is logged, counted, and
// skipped; it never aborts the run.
func (c *Chunker) Walk(root, sessionID string, fn func(Chunk) error) (Stats, error) {
	var stats Stats

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if defaultSkipDirs[d.Name()] {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}

		relPath, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		relPath = filepath.ToSlash(relPath)

		info, err := d.Info()
		if err != nil {
			stats.FilesErrored++
			c.logger.Warn("stat failed, skipping file", zap.String("file", relPath), zap.Error(err))
			return nil
		}
		if info.Size() > c.config.MaxFileSize {
			stats.FilesSkipped++
			return nil
		}

		content, err := os.ReadFile(path)
		if err != nil {
			stats.FilesErrored++
			c.logger.Warn("read failed, skipping file", zap.String("file", relPath), zap.Error(err))
			return nil
		}
		if len(content) == 0 || isBinary(content) {
			stats.FilesSkipped++
			return nil
		}

		file := SourceFile{
			Path:     relPath,
			Language: DetectLanguage(relPath),
			Content:  string(content),
		}

		chunks := c.ChunkFile(file, sessionID)
		if len(chunks) == 0 {
			stats.FilesSkipped++
			return nil
		}

		stats.FilesChunked++
		for _, chunk := range chunks {
			stats.Chunks++
			if err := fn(chunk); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return stats, err
	}

	return stats, nil
}

// ChunkTree collects all chunks under root into a slice, in walk order.
func (c *Chunker) ChunkTree(root, sessionID string) ([]Chunk, Stats, error) {
	var chunks []Chunk
	stats, err := c.Walk(root, sessionID, func(chunk Chunk) error {
		chunks = append(chunks, chunk)
		return nil
	})
	return chunks, stats, err
}

// ChunkFile splits a single source file into ordered chunks.
// Every non-empty text file yields at least one chunk.
func (c *Chunker) ChunkFile(file SourceFile, sessionID string) []Chunk {
	splitter := c.registry.splitterFor(file.Language)
	spans := splitter.Split(file.Content)

	chunks := make([]Chunk, 0, len(spans))
	for _, s := range spans {
		chunks = append(chunks, Chunk{
			ID:        ChunkID(sessionID, file.Path, s.Start),
			File:      file.Path,
			Language:  file.Language,
			StartLine: s.Start,
			EndLine:   s.End,
			Content:   s.Text,
		})
	}
	return chunks
}
