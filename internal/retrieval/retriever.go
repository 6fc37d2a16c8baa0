package retrieval

import (
	"context"

	"github.com/vitaelabs/vitae/internal/classify"
	"github.com/vitaelabs/vitae/internal/index"
)

// DefaultTopK is the number of chunks retrieved per query when the
// configuration doesn't say otherwise.
const DefaultTopK = 4

// Result is a retrieved chunk with its normalized similarity score.
type Result struct {
	ChunkID    string
	SourcePath string
	Ordinal    int
	Text       string
	Score      float64
}

// Retriever embeds query text and searches a generation for the closest
// chunks.
type Retriever struct {
	embedder *Embedder
	topK     int
}

// NewRetriever creates a Retriever. topK values below 1 fall back to
// DefaultTopK.
func NewRetriever(embedder *Embedder, topK int) *Retriever {
	if topK < 1 {
		topK = DefaultTopK
	}
	return &Retriever{embedder: embedder, topK: topK}
}

// Retrieve embeds the query and returns the top-K most similar chunks from
// gen. When category names a specific section, the search is restricted to
// chunks tagged with it; if that restriction yields fewer than topK results
// the filter is dropped and the search reruns over the whole generation.
// Scores are clamped to [0, 1]: a negative cosine carries no useful signal
// for ranking passages.
func (r *Retriever) Retrieve(ctx context.Context, gen *index.Generation, query string, category classify.Category) ([]Result, error) {
	if gen == nil || gen.Len() == 0 {
		return nil, nil
	}

	vec, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return nil, err
	}

	filter := category
	if filter == classify.General {
		filter = ""
	}
	scored := gen.Search(vec, r.topK, filter)
	if filter != "" && len(scored) < r.topK {
		scored = gen.Search(vec, r.topK, "")
	}

	results := make([]Result, len(scored))
	for i, s := range scored {
		results[i] = Result{
			ChunkID:    s.Entry.ChunkID,
			SourcePath: s.Entry.SourcePath,
			Ordinal:    s.Entry.Ordinal,
			Text:       s.Entry.Text,
			Score:      clampScore(s.Score),
		}
	}
	return results, nil
}

func clampScore(s float32) float64 {
	switch {
	case s < 0:
		return 0
	case s > 1:
		return 1
	default:
		return float64(s)
	}
}
