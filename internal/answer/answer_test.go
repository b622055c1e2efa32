package answer

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/repoqa/internal/vectorstore"
)

type stubCompleter struct {
	response string
	err      error
	prompt   string
}

func (s *stubCompleter) Complete(ctx context.Context, prompt string) (string, error) {
	s.prompt = prompt
	if s.err != nil {
		return "", s.err
	}
	return s.response, nil
}

func (s *stubCompleter) Model() string { return "stub-model" }

func hit(file string, start int, score float32, content string) vectorstore.Hit {
	return vectorstore.Hit{
		ID:    file,
		Score: score,
		Payload: vectorstore.Payload{
			File:      file,
			StartLine: start,
			EndLine:   start + 10,
			Content:   content,
		},
	}
}

func TestSynthesizeNoHits(t *testing.T) {
	completer := &stubCompleter{response: "should not be called"}
	s := New(completer, Config{}, nil)

	result, err := s.Synthesize(context.Background(), "how does auth work", nil)
	require.NoError(t, err)

	assert.Equal(t, noResultsAnswer, result.Answer)
	assert.Equal(t, ConfidenceLow, result.Confidence)
	assert.Empty(t, result.Sources)
	assert.Empty(t, completer.prompt) // no model call
}

func TestSynthesizeHighConfidence(t *testing.T) {
	completer := &stubCompleter{response: "Auth lives in auth.go.\n\nConfidence: HIGH"}
	s := New(completer, Config{}, nil)

	hits := []vectorstore.Hit{
		hit("auth.go", 10, 0.9, "func Authenticate() {}"),
		hit("middleware.go", 5, 0.8, "func RequireAuth() {}"),
	}
	result, err := s.Synthesize(context.Background(), "how does auth work", hits)
	require.NoError(t, err)

	assert.Equal(t, "Auth lives in auth.go.", result.Answer)
	assert.Equal(t, ConfidenceHigh, result.Confidence)
	assert.False(t, result.Degraded)

	require.Len(t, result.Sources, 2)
	assert.Equal(t, "auth.go", result.Sources[0].File)
	assert.Equal(t, 10, result.Sources[0].StartLine)
	assert.Equal(t, float32(0.9), result.Sources[0].Score)
}

func TestSynthesizeSingleStrongHitIsMedium(t *testing.T) {
	// A strong score without a corroborating second chunk stays medium.
	completer := &stubCompleter{response: "Answer.\n\nConfidence: HIGH"}
	s := New(completer, Config{}, nil)

	hits := []vectorstore.Hit{hit("auth.go", 10, 0.9, "code")}
	result, err := s.Synthesize(context.Background(), "q", hits)
	require.NoError(t, err)
	assert.Equal(t, ConfidenceMedium, result.Confidence)
}

func TestSynthesizeSelfAssessmentOnlyLowers(t *testing.T) {
	// Strong retrieval but the model is unsure: band drops.
	completer := &stubCompleter{response: "Probably in auth.go.\n\nConfidence: LOW"}
	s := New(completer, Config{}, nil)

	hits := []vectorstore.Hit{
		hit("auth.go", 1, 0.9, "code"),
		hit("session.go", 1, 0.85, "code"),
	}
	result, err := s.Synthesize(context.Background(), "q", hits)
	require.NoError(t, err)
	assert.Equal(t, ConfidenceLow, result.Confidence)

	// Weak retrieval with a confident model: band stays capped by scores.
	completer = &stubCompleter{response: "Definitely here.\n\nConfidence: HIGH"}
	s = New(completer, Config{}, nil)

	hits = []vectorstore.Hit{hit("auth.go", 1, 0.2, "code")}
	result, err = s.Synthesize(context.Background(), "q", hits)
	require.NoError(t, err)
	assert.Equal(t, ConfidenceLow, result.Confidence)
}

func TestSynthesizeMediumBand(t *testing.T) {
	completer := &stubCompleter{response: "Partial answer.\n\nConfidence: HIGH"}
	s := New(completer, Config{}, nil)

	hits := []vectorstore.Hit{hit("a.go", 1, 0.5, "code")}
	result, err := s.Synthesize(context.Background(), "q", hits)
	require.NoError(t, err)
	assert.Equal(t, ConfidenceMedium, result.Confidence)
}

func TestSynthesizeMissingMarkerKeepsBase(t *testing.T) {
	completer := &stubCompleter{response: "An answer without any marker."}
	s := New(completer, Config{}, nil)

	hits := []vectorstore.Hit{
		hit("a.go", 1, 0.8, "code"),
		hit("b.go", 1, 0.78, "code"),
	}
	result, err := s.Synthesize(context.Background(), "q", hits)
	require.NoError(t, err)
	assert.Equal(t, "An answer without any marker.", result.Answer)
	assert.Equal(t, ConfidenceHigh, result.Confidence)
}

func TestSynthesizeDegradedOnGenerationFailure(t *testing.T) {
	completer := &stubCompleter{err: errors.New("api down")}
	s := New(completer, Config{}, nil)

	hits := []vectorstore.Hit{hit("a.go", 1, 0.9, "code")}
	result, err := s.Synthesize(context.Background(), "q", hits)
	require.NoError(t, err)

	assert.True(t, result.Degraded)
	assert.Equal(t, ConfidenceLow, result.Confidence)
	assert.Equal(t, degradedAnswer, result.Answer)
	assert.Empty(t, result.Sources)
}

func TestSynthesizeSnippetTruncation(t *testing.T) {
	completer := &stubCompleter{response: "ok\nConfidence: HIGH"}
	s := New(completer, Config{MaxSnippetChars: 10}, nil)

	hits := []vectorstore.Hit{hit("a.go", 1, 0.9, strings.Repeat("x", 50))}
	result, err := s.Synthesize(context.Background(), "q", hits)
	require.NoError(t, err)
	assert.Equal(t, strings.Repeat("x", 10)+"...", result.Sources[0].Snippet)
}

func TestSynthesizePromptContainsContext(t *testing.T) {
	completer := &stubCompleter{response: "ok\nConfidence: HIGH"}
	s := New(completer, Config{}, nil)

	hits := []vectorstore.Hit{hit("pkg/auth.go", 42, 0.9, "func Login() {}")}
	_, err := s.Synthesize(context.Background(), "how do users log in", hits)
	require.NoError(t, err)

	assert.Contains(t, completer.prompt, "how do users log in")
	assert.Contains(t, completer.prompt, "pkg/auth.go (lines 42-52)")
	assert.Contains(t, completer.prompt, "func Login() {}")
	assert.Contains(t, completer.prompt, `Confidence: [HIGH/MEDIUM/LOW]`)
}

func TestExtractConfidence(t *testing.T) {
	tests := []struct {
		in        string
		wantText  string
		wantLevel Confidence
	}{
		{"Answer.\n\nConfidence: HIGH", "Answer.", ConfidenceHigh},
		{"Answer.\nconfidence: medium", "Answer.", ConfidenceMedium},
		{"Answer.\nConfidence: LOW", "Answer.", ConfidenceLow},
		{"Just an answer.", "Just an answer.", ""},
		{"Confidence: HIGH", "Confidence: HIGH", ConfidenceHigh},
	}
	for _, tt := range tests {
		text, level := extractConfidence(tt.in)
		assert.Equal(t, tt.wantText, text, tt.in)
		assert.Equal(t, tt.wantLevel, level, tt.in)
	}
}
