package chunker

import "strings"

// span is a contiguous run of lines produced by a splitter.
// Start and End are 1-based, inclusive.
type span struct {
	Start int
	End   int
	Text  string
}

// Splitter splits file content into spans. Implementations must be
// deterministic: the same content always yields the same span sequence.
type Splitter interface {
	Split(content string) []span
}

// registry dispatches language tags to splitting strategies. Languages
// without a dedicated strategy fall back to the line-window splitter.
type registry struct {
	byLanguage map[string]Splitter
	fallback   Splitter
}

func newRegistry(cfg Config) *registry {
	window := &windowSplitter{
		window:  cfg.WindowLines,
		overlap: cfg.OverlapLines,
	}
	code := func(starts ...string) Splitter {
		return &declSplitter{starts: starts, maxChars: cfg.MaxChunkChars, sub: window}
	}

	return &registry{
		fallback: window,
		byLanguage: map[string]Splitter{
			"go":         code("func ", "type ", "var (", "const ("),
			"python":     code("def ", "class ", "async def "),
			"javascript": code("function ", "class ", "export function ", "export class ", "export default "),
			"typescript": code("function ", "class ", "interface ", "export function ", "export class ", "export interface ", "export default "),
			"java":       code("public ", "private ", "protected ", "class ", "interface "),
			"c":          code("static ", "void ", "int ", "struct ", "typedef "),
			"cpp":        code("static ", "void ", "int ", "class ", "struct ", "template", "namespace "),
			"csharp":     code("public ", "private ", "protected ", "internal ", "class "),
			"ruby":       code("def ", "class ", "module "),
			"rust":       code("fn ", "pub fn ", "impl ", "struct ", "enum ", "trait ", "pub struct ", "pub enum ", "pub trait "),
			"markdown":   &blockSplitter{maxChars: cfg.MaxChunkChars, sub: window},
			"text":       &blockSplitter{maxChars: cfg.MaxChunkChars, sub: window},
		},
	}
}

// splitterFor returns the splitter for a language tag.
func (r *registry) splitterFor(language string) Splitter {
	if s, ok := r.byLanguage[language]; ok {
		return s
	}
	return r.fallback
}

// splitLines splits content into lines without dropping a trailing newline's
// empty remainder into a phantom line.
func splitLines(content string) []string {
	lines := strings.Split(content, "\n")
	if n := len(lines); n > 1 && lines[n-1] == "" {
		lines = lines[:n-1]
	}
	return lines
}

func joinLines(lines []string) string {
	return strings.Join(lines, "\n")
}
