package chunker

import "strings"

// declSplitter splits code at top-level declaration starts (functions,
// classes and friends) so each chunk is one semantically coherent unit plus
// whatever precedes the next declaration. A section that outgrows maxChars
// is sub-split with the line-window strategy.
type declSplitter struct {
	starts   []string
	maxChars int
	sub      *windowSplitter
}

func (d *declSplitter) Split(content string) []span {
	lines := splitLines(content)
	if len(lines) == 0 {
		return nil
	}

	var spans []span
	sectionStart := 0

	flush := func(end int) {
		if end <= sectionStart {
			return
		}
		section := lines[sectionStart:end]
		if strings.TrimSpace(joinLines(section)) == "" {
			sectionStart = end
			return
		}
		spans = append(spans, d.sized(section, sectionStart+1)...)
		sectionStart = end
	}

	for i := 1; i < len(lines); i++ {
		if d.isDeclStart(lines[i]) {
			flush(i)
		}
	}
	flush(len(lines))

	if len(spans) == 0 {
		// Nothing matched the declaration heuristics; fall back wholesale.
		return d.sub.Split(content)
	}
	return spans
}

// isDeclStart reports whether a line begins a new top-level declaration.
// Indented lines never start a section, which keeps nested definitions
// attached to their parent.
func (d *declSplitter) isDeclStart(line string) bool {
	if line == "" || line[0] == ' ' || line[0] == '\t' {
		return false
	}
	for _, prefix := range d.starts {
		if strings.HasPrefix(line, prefix) {
			return true
		}
	}
	return false
}

// sized emits the section as a single span, sub-splitting when it exceeds
// the configured chunk ceiling.
func (d *declSplitter) sized(lines []string, base int) []span {
	text := joinLines(lines)
	if d.maxChars > 0 && len(text) > d.maxChars {
		return d.sub.splitRange(lines, base)
	}
	return []span{{Start: base, End: base + len(lines) - 1, Text: text}}
}

// blockSplitter splits prose (markdown, plain text) at blank-line boundaries,
// merging consecutive paragraphs until the chunk ceiling is reached.
type blockSplitter struct {
	maxChars int
	sub      *windowSplitter
}

func (b *blockSplitter) Split(content string) []span {
	lines := splitLines(content)
	if len(lines) == 0 {
		return nil
	}

	maxChars := b.maxChars
	if maxChars <= 0 {
		maxChars = 4000
	}

	var spans []span
	blockStart := -1
	size := 0

	flush := func(end int) {
		if blockStart < 0 {
			return
		}
		section := lines[blockStart:end]
		text := joinLines(section)
		if strings.TrimSpace(text) != "" {
			if len(text) > maxChars {
				spans = append(spans, b.sub.splitRange(section, blockStart+1)...)
			} else {
				spans = append(spans, span{Start: blockStart + 1, End: end, Text: text})
			}
		}
		blockStart = -1
		size = 0
	}

	for i, line := range lines {
		blank := strings.TrimSpace(line) == ""
		if blank && blockStart >= 0 && size >= maxChars/2 {
			flush(i)
			continue
		}
		if !blank && blockStart < 0 {
			blockStart = i
		}
		if blockStart >= 0 {
			size += len(line) + 1
		}
	}
	flush(len(lines))

	return spans
}
