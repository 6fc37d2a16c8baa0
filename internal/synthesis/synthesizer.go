// Package synthesis turns retrieved chunks into a grounded answer. When the
// retrieval signal is too weak it returns a fixed response instead of
// guessing, and when generation fails it falls back to quoting the best
// passage directly.
package synthesis

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/vitaelabs/vitae/internal/classify"
	"github.com/vitaelabs/vitae/internal/retrieval"
)

// Generator produces a completion for a system prompt and user query.
type Generator interface {
	Generate(ctx context.Context, system, user string) (string, error)
}

const (
	DefaultMinConfidence   = 0.25
	DefaultMaxContextChars = 4000
	DefaultTimeout         = 60 * time.Second

	// fallbackSnippetChars caps how much of the top passage is quoted when
	// generation is unavailable.
	fallbackSnippetChars = 800
)

const groundingInstruction = `You answer questions about one person's professional background. Use ONLY the document excerpts below. If the excerpts do not contain the answer, say that the documents don't cover it. Never invent employers, dates, titles, technologies, or credentials. Keep answers short and factual.`

// Answer is a synthesized response with its grounding metadata.
type Answer struct {
	Text       string
	Confidence float64
	Sources    []string
}

// Config bounds the synthesizer. Zero values fall back to the defaults.
type Config struct {
	MinConfidence   float64
	MaxContextChars int
	Timeout         time.Duration
}

// Synthesizer builds grounded answers from retrieval results.
type Synthesizer struct {
	gen             Generator
	minConfidence   float64
	maxContextChars int
	timeout         time.Duration
}

func New(gen Generator, cfg Config) *Synthesizer {
	if cfg.MinConfidence <= 0 {
		cfg.MinConfidence = DefaultMinConfidence
	}
	if cfg.MaxContextChars <= 0 {
		cfg.MaxContextChars = DefaultMaxContextChars
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	return &Synthesizer{
		gen:             gen,
		minConfidence:   cfg.MinConfidence,
		maxContextChars: cfg.MaxContextChars,
		timeout:         cfg.Timeout,
	}
}

// Synthesize produces an answer for the query from the retrieved results.
// When nothing was retrieved, or the best score is below the confidence
// threshold, the generator is never called and the fixed per-category
// response is returned with zero confidence. A generation failure degrades
// to quoting the best passage rather than failing the query; the only error
// returned is the caller's own context ending.
func (s *Synthesizer) Synthesize(ctx context.Context, query string, category classify.Category, results []retrieval.Result) (Answer, error) {
	best := bestScore(results)
	if len(results) == 0 || best < s.minConfidence {
		return Answer{
			Text:       NoInfoResponse(category),
			Confidence: 0,
			Sources:    []string{},
		}, nil
	}

	system := s.buildSystemPrompt(results)
	genCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	text, err := s.generate(genCtx, system, query)
	if err != nil {
		if ctx.Err() != nil {
			return Answer{}, ctx.Err()
		}
		return s.fallback(results, best), nil
	}

	return Answer{
		Text:       strings.TrimSpace(text),
		Confidence: best,
		Sources:    distinctSources(results),
	}, nil
}

// generate calls the generator, retrying once on transient failure. No retry
// happens once the deadline has passed.
func (s *Synthesizer) generate(ctx context.Context, system, user string) (string, error) {
	text, err := s.gen.Generate(ctx, system, user)
	if err == nil || ctx.Err() != nil {
		return text, err
	}
	return s.gen.Generate(ctx, system, user)
}

// buildSystemPrompt assembles the grounding context, highest scores first,
// dropping excerpts that don't fit the character budget. At least one
// excerpt always makes it in, truncated if necessary, so the model never
// answers from an empty context.
func (s *Synthesizer) buildSystemPrompt(results []retrieval.Result) string {
	sorted := make([]retrieval.Result, len(results))
	copy(sorted, results)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Score > sorted[j].Score
	})

	var sb strings.Builder
	sb.WriteString(groundingInstruction)
	sb.WriteString("\n\n[Document Excerpts]\n")

	remaining := s.maxContextChars
	added := 0
	for _, res := range sorted {
		entry := formatExcerpt(res)
		if len(entry) > remaining {
			continue
		}
		sb.WriteString(entry)
		remaining -= len(entry)
		added++
	}
	if added == 0 {
		sb.WriteString(truncateRunes(formatExcerpt(sorted[0]), s.maxContextChars))
	}
	return sb.String()
}

func formatExcerpt(r retrieval.Result) string {
	return fmt.Sprintf("(Source: %s, Relevance: %.2f)\n%s\n\n", filepath.Base(r.SourcePath), r.Score, r.Text)
}

// fallback quotes the best passage directly when generation is unavailable.
// Confidence is halved: the passage is real but nothing composed it into an
// answer.
func (s *Synthesizer) fallback(results []retrieval.Result, best float64) Answer {
	top := results[0]
	for _, r := range results[1:] {
		if r.Score > top.Score {
			top = r
		}
	}

	snippet := top.Text
	if len([]rune(snippet)) > fallbackSnippetChars {
		snippet = truncateRunes(snippet, fallbackSnippetChars) + "..."
	}
	return Answer{
		Text:       "Based on the resume information:\n\n" + snippet,
		Confidence: best * 0.5,
		Sources:    []string{filepath.Base(top.SourcePath)},
	}
}

// NoInfoResponse is the fixed reply for queries the documents cannot ground.
func NoInfoResponse(cat classify.Category) string {
	switch cat {
	case classify.Experience:
		return "I don't have specific information about that work experience in the resume."
	case classify.Skills:
		return "I don't have information about those particular skills in the resume."
	case classify.Education:
		return "I don't have information about that educational background in the resume."
	default:
		return "I don't have information about that topic in the resume."
	}
}

func bestScore(results []retrieval.Result) float64 {
	best := 0.0
	for _, r := range results {
		if r.Score > best {
			best = r.Score
		}
	}
	return best
}

// distinctSources returns the source file names in rank order, each once.
func distinctSources(results []retrieval.Result) []string {
	seen := make(map[string]bool, len(results))
	sources := make([]string, 0, len(results))
	for _, r := range results {
		name := filepath.Base(r.SourcePath)
		if seen[name] {
			continue
		}
		seen[name] = true
		sources = append(sources, name)
	}
	return sources
}

func truncateRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
