package chunker

import "fmt"

// SourceFile is one text file read from a working copy.
// Immutable once read.
type SourceFile struct {
	// Path is relative to the repository root, using forward slashes.
	Path string

	// Language is the inferred language tag (e.g. "go", "python", "markdown").
	// Empty when no language could be inferred.
	Language string

	// Content is the raw file content.
	Content string
}

// Chunk is a contiguous, language-aware slice of a source file. It is the
// unit of embedding and retrieval.
type Chunk struct {
	// ID is stable across runs: derived from session, path and start line.
	ID string

	// File is the parent source file path, relative to the repository root.
	File string

	// Language is the parent file's language tag.
	Language string

	// StartLine and EndLine are 1-based, inclusive.
	StartLine int
	EndLine   int

	// Content is the chunk text.
	Content string
}

// ChunkID derives the stable chunk identifier for a session, file and start
// line. The line number is zero-padded so lexicographic ordering of IDs
// matches positional ordering within a file.
func ChunkID(sessionID, path string, startLine int) string {
	return fmt.Sprintf("%s:%s:%06d", sessionID, path, startLine)
}

// Stats summarizes one chunking pass over a file tree.
type Stats struct {
	// FilesChunked is the number of files that contributed chunks.
	FilesChunked int

	// FilesSkipped counts binary, empty and oversized files. Skips are not
	// errors; they are simply omitted from the corpus.
	FilesSkipped int

	// FilesErrored counts files that failed to read or parse. Each failure
	// is logged and the file skipped; it never aborts the run.
	FilesErrored int

	// Chunks is the total number of chunks produced.
	Chunks int
}
