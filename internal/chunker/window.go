package chunker

// windowSplitter is the default strategy: a fixed-size sliding window over
// lines with a small overlap between adjacent chunks. Used when no grammar
// heuristic is available for the file's language, and to sub-split oversized
// sections from other splitters.
type windowSplitter struct {
	window  int
	overlap int
}

func (w *windowSplitter) Split(content string) []span {
	lines := splitLines(content)
	if len(lines) == 0 {
		return nil
	}
	return w.splitRange(lines, 1)
}

// splitRange windows lines, reporting positions offset by base (1-based line
// number of lines[0] in the original file).
func (w *windowSplitter) splitRange(lines []string, base int) []span {
	window := w.window
	if window <= 0 {
		window = 120
	}
	step := window - w.overlap
	if step <= 0 {
		step = window
	}

	var spans []span
	for start := 0; start < len(lines); start += step {
		end := start + window
		if end > len(lines) {
			end = len(lines)
		}
		text := joinLines(lines[start:end])
		spans = append(spans, span{
			Start: base + start,
			End:   base + end - 1,
			Text:  text,
		})
		if end == len(lines) {
			break
		}
	}
	return spans
}
