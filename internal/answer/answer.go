// Package answer turns retrieved chunks into a grounded natural-language
// answer with citations and a confidence level.
package answer

import (
	"context"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/repoqa/internal/llm"
	"github.com/fyrsmithlabs/repoqa/internal/vectorstore"
)

var tracer = otel.Tracer("repoqa.answer")

// Confidence is the coarse reliability level attached to an answer.
type Confidence string

const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
)

// rank orders confidence levels for min-combining.
func (c Confidence) rank() int {
	switch c {
	case ConfidenceHigh:
		return 2
	case ConfidenceMedium:
		return 1
	default:
		return 0
	}
}

// minConfidence returns the lower of two levels.
func minConfidence(a, b Confidence) Confidence {
	if b.rank() < a.rank() {
		return b
	}
	return a
}

// Source is one citation backing an answer.
type Source struct {
	File      string  `json:"file"`
	StartLine int     `json:"start_line"`
	EndLine   int     `json:"end_line"`
	Snippet   string  `json:"snippet"`
	Score     float32 `json:"score"`
}

// Result is a synthesized answer.
type Result struct {
	Answer     string     `json:"answer"`
	Confidence Confidence `json:"confidence"`
	Sources    []Source   `json:"sources"`
	// Degraded is set when generation failed and the answer text is a
	// fallback rather than model output.
	Degraded bool `json:"degraded,omitempty"`
}

// Config holds synthesis settings.
type Config struct {
	// StrongThreshold is the similarity score at or above which retrieval
	// alone supports a high-confidence answer.
	StrongThreshold float32

	// WeakThreshold is the score below which retrieval support is
	// considered weak; between the two thresholds confidence is medium.
	WeakThreshold float32

	// MaxSnippetChars caps citation snippet length.
	MaxSnippetChars int
}

// ApplyDefaults sets default values for unset fields.
func (c *Config) ApplyDefaults() {
	if c.StrongThreshold == 0 {
		c.StrongThreshold = 0.75
	}
	if c.WeakThreshold == 0 {
		c.WeakThreshold = 0.35
	}
	if c.MaxSnippetChars == 0 {
		c.MaxSnippetChars = 200
	}
}

// noResultsAnswer is returned verbatim when retrieval found nothing.
const noResultsAnswer = "I could not find any relevant code in this repository for your question."

// degradedAnswer is returned when the language model is unavailable.
const degradedAnswer = "I found relevant code but could not generate an answer right now. Please try again."

// Synthesizer generates answers from retrieved chunks.
type Synthesizer struct {
	completer llm.Completer
	config    Config
	logger    *zap.Logger
}

// New creates a Synthesizer.
func New(completer llm.Completer, cfg Config, logger *zap.Logger) *Synthesizer {
	cfg.ApplyDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Synthesizer{completer: completer, config: cfg, logger: logger}
}

// Synthesize answers a question from the given hits.
//
// With no hits it returns a fixed "nothing found" answer at low confidence
// without calling the model. Otherwise confidence starts from the
// retrieval scores and the model's own trailing self-assessment may lower
// it, never raise it. Generation failure degrades to a low-confidence
// fallback answer with no sources instead of an error, so the query
// surface always gets a well-formed result.
func (s *Synthesizer) Synthesize(ctx context.Context, question string, hits []vectorstore.Hit) (Result, error) {
	ctx, span := tracer.Start(ctx, "Synthesizer.Synthesize")
	defer span.End()
	span.SetAttributes(attribute.Int("hit_count", len(hits)))

	if len(hits) == 0 {
		return Result{
			Answer:     noResultsAnswer,
			Confidence: ConfidenceLow,
			Sources:    []Source{},
		}, nil
	}

	sources := s.buildSources(hits)
	base := s.baseConfidence(hits)

	prompt := buildPrompt(question, hits)
	raw, err := s.completer.Complete(ctx, prompt)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.logger.Error("answer generation failed", zap.Error(err))
		// Without model output there is no answer text to attribute the
		// sources to, so they are dropped along with it.
		return Result{
			Answer:     degradedAnswer,
			Confidence: ConfidenceLow,
			Sources:    []Source{},
			Degraded:   true,
		}, nil
	}

	text, selfAssessed := extractConfidence(raw)
	confidence := base
	if selfAssessed != "" {
		confidence = minConfidence(base, selfAssessed)
	}

	span.SetAttributes(attribute.String("confidence", string(confidence)))
	return Result{
		Answer:     text,
		Confidence: confidence,
		Sources:    sources,
	}, nil
}

// baseConfidence derives a confidence level from the retrieval result.
// High requires both a strong top score and at least two corroborating
// chunks; a single strong hit is only medium.
func (s *Synthesizer) baseConfidence(hits []vectorstore.Hit) Confidence {
	top := hits[0].Score
	for _, h := range hits[1:] {
		if h.Score > top {
			top = h.Score
		}
	}
	switch {
	case top >= s.config.StrongThreshold && len(hits) >= 2:
		return ConfidenceHigh
	case top >= s.config.WeakThreshold:
		return ConfidenceMedium
	default:
		return ConfidenceLow
	}
}

func (s *Synthesizer) buildSources(hits []vectorstore.Hit) []Source {
	sources := make([]Source, len(hits))
	for i, h := range hits {
		snippet := h.Payload.Content
		if len(snippet) > s.config.MaxSnippetChars {
			snippet = snippet[:s.config.MaxSnippetChars] + "..."
		}
		sources[i] = Source{
			File:      h.Payload.File,
			StartLine: h.Payload.StartLine,
			EndLine:   h.Payload.EndLine,
			Snippet:   snippet,
			Score:     h.Score,
		}
	}
	return sources
}

// buildPrompt assembles the grounded question prompt. The model is told to
// answer only from the provided context and to finish with a confidence
// self-assessment on its own line.
func buildPrompt(question string, hits []vectorstore.Hit) string {
	var b strings.Builder
	b.WriteString("You are an expert code analyst. Answer the user's question about the codebase based ONLY on the provided context.\n\n")
	fmt.Fprintf(&b, "Question: %s\n\n", question)
	b.WriteString("Context from the codebase:\n")
	for _, h := range hits {
		fmt.Fprintf(&b, "\n--- File: %s (lines %d-%d) ---\n%s\n", h.Payload.File, h.Payload.StartLine, h.Payload.EndLine, h.Payload.Content)
	}
	b.WriteString(`
Instructions:
1. Answer based ONLY on the information provided in the context
2. Be specific and reference actual code snippets when relevant
3. If the context doesn't contain enough information to answer the question, say so
4. Focus on the actual implementation details, not assumptions
5. Reference specific files and code patterns when possible
6. At the end of your response, provide a confidence assessment

Confidence Assessment Guidelines:
- HIGH: You found clear, specific information that directly answers the question with concrete examples
- MEDIUM: You found relevant information that partially answers the question or requires some interpretation
- LOW: The context provides limited or indirect information, or the question cannot be adequately answered

End your response with: "Confidence: [HIGH/MEDIUM/LOW]"

Answer:
`)
	return b.String()
}

// extractConfidence strips a trailing "Confidence: X" marker from the
// model output and returns the remaining text plus the parsed level.
// Returns an empty level when no marker is present.
func extractConfidence(text string) (string, Confidence) {
	trimmed := strings.TrimSpace(text)
	idx := strings.LastIndex(strings.ToLower(trimmed), "confidence:")
	if idx < 0 {
		return trimmed, ""
	}

	marker := strings.ToLower(trimmed[idx:])
	var level Confidence
	switch {
	case strings.Contains(marker, "high"):
		level = ConfidenceHigh
	case strings.Contains(marker, "medium"):
		level = ConfidenceMedium
	case strings.Contains(marker, "low"):
		level = ConfidenceLow
	default:
		return trimmed, ""
	}

	// Only strip the marker when it is the tail of the response.
	rest := strings.TrimSpace(trimmed[:idx])
	if rest != "" {
		return rest, level
	}
	return trimmed, level
}
