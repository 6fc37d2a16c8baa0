// Package index holds the in-memory embedding index. A Builder accumulates
// chunk vectors and produces immutable Generation snapshots; queries run
// against one generation for their whole lifetime, so concurrent readers need
// no locks and never observe a half-rebuilt index.
package index

import (
	"container/heap"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/vitaelabs/vitae/internal/classify"
)

// Entry is one indexed chunk: its metadata plus the embedding vector. Vectors
// inside a built Generation are unit-normalized so cosine similarity is a
// single dot product.
type Entry struct {
	ChunkID    string
	DocumentID string
	SourcePath string
	Ordinal    int
	Text       string
	Categories []classify.Category
	Vector     []float32
}

// HasCategory reports whether the entry is tagged with cat.
func (e *Entry) HasCategory(cat classify.Category) bool {
	for _, c := range e.Categories {
		if c == cat {
			return true
		}
	}
	return false
}

// Scored pairs an entry with its similarity to a query vector.
type Scored struct {
	Entry Entry
	Score float32
}

// Builder accumulates entries for the next generation. Upsert is O(1); the
// expensive work (normalization, ordering, validation) happens once in Build.
// A Builder is not safe for concurrent use; ingestion is exclusive.
type Builder struct {
	modelID string
	entries map[string]Entry
}

// NewBuilder returns an empty builder for vectors produced by modelID.
func NewBuilder(modelID string) *Builder {
	return &Builder{modelID: modelID, entries: make(map[string]Entry)}
}

// NewBuilderFrom seeds a builder with every entry of an existing generation,
// the starting point for a partial rebuild. A generation built by a different
// embedding model cannot be carried over; the builder starts empty instead
// and the caller re-embeds everything.
func NewBuilderFrom(gen *Generation, modelID string) *Builder {
	b := NewBuilder(modelID)
	if gen == nil || gen.modelID != modelID {
		return b
	}
	for _, e := range gen.entries {
		b.entries[e.ChunkID] = e
	}
	return b
}

// Upsert adds or replaces the entry for e.ChunkID.
func (b *Builder) Upsert(e Entry) {
	b.entries[e.ChunkID] = e
}

// RemoveDocument drops every entry belonging to documentID. Called before
// re-adding a changed document's fresh chunks so stale passages never leak
// into results.
func (b *Builder) RemoveDocument(documentID string) {
	for id, e := range b.entries {
		if e.DocumentID == documentID {
			delete(b.entries, id)
		}
	}
}

// Clear empties the builder. Used when the embedding model version changes
// and the whole corpus must be re-embedded.
func (b *Builder) Clear() {
	b.entries = make(map[string]Entry)
}

// Len returns the number of entries currently in the builder.
func (b *Builder) Len() int {
	return len(b.entries)
}

// Build produces an immutable generation: entries ordered by source path and
// ordinal, vectors copied and unit-normalized, dimensionality validated.
func (b *Builder) Build() (*Generation, error) {
	entries := make([]Entry, 0, len(b.entries))
	for _, e := range b.entries {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].SourcePath != entries[j].SourcePath {
			return entries[i].SourcePath < entries[j].SourcePath
		}
		return entries[i].Ordinal < entries[j].Ordinal
	})

	dim := 0
	docs := make(map[string]bool)
	cats := make(map[classify.Category]bool)
	for i := range entries {
		e := &entries[i]
		if dim == 0 {
			dim = len(e.Vector)
		} else if len(e.Vector) != dim {
			return nil, fmt.Errorf("chunk %s: embedding dimension %d, want %d", e.ChunkID, len(e.Vector), dim)
		}
		e.Vector = normalized(e.Vector)
		docs[e.DocumentID] = true
		for _, c := range e.Categories {
			cats[c] = true
		}
	}

	catList := make([]string, 0, len(cats))
	for c := range cats {
		catList = append(catList, string(c))
	}
	sort.Strings(catList)

	return &Generation{
		id:         uuid.NewString(),
		modelID:    b.modelID,
		builtAt:    time.Now().UTC(),
		entries:    entries,
		dim:        dim,
		docCount:   len(docs),
		categories: catList,
	}, nil
}

// Generation is one complete, internally consistent build of the index.
// It is immutable after Build and safe for concurrent readers.
type Generation struct {
	id         string
	modelID    string
	builtAt    time.Time
	entries    []Entry
	dim        int
	docCount   int
	categories []string
}

func (g *Generation) ID() string         { return g.id }
func (g *Generation) ModelID() string    { return g.modelID }
func (g *Generation) BuiltAt() time.Time { return g.builtAt }
func (g *Generation) Len() int           { return len(g.entries) }
func (g *Generation) DocumentCount() int { return g.docCount }

// Categories returns the sorted distinct category tags present in the
// generation.
func (g *Generation) Categories() []string { return g.categories }

// Entries exposes the generation's entries in their deterministic order.
// Callers must treat the slice as read-only.
func (g *Generation) Entries() []Entry { return g.entries }

// SourcePaths returns the sorted distinct source paths in the generation.
func (g *Generation) SourcePaths() []string {
	var paths []string
	for i := range g.entries {
		if i == 0 || g.entries[i].SourcePath != g.entries[i-1].SourcePath {
			paths = append(paths, g.entries[i].SourcePath)
		}
	}
	return paths
}

// Search returns the top-k entries by cosine similarity to vector, filtered
// to cat when it is non-empty. Ties are broken by chunk ordinal ascending,
// then source path, so identical queries always return identical orderings.
// An empty generation or a zero query vector yields no results.
func (g *Generation) Search(vector []float32, k int, cat classify.Category) []Scored {
	if g == nil || len(g.entries) == 0 || k <= 0 {
		return nil
	}
	q := normalized(vector)
	if q == nil {
		return nil
	}

	h := &scoredHeap{}
	heap.Init(h)
	for i := range g.entries {
		e := &g.entries[i]
		if cat != "" && !e.HasCategory(cat) {
			continue
		}
		s := Scored{Entry: g.entries[i], Score: dot(q, e.Vector)}
		if h.Len() < k {
			heap.Push(h, s)
		} else if rankLess((*h)[0], s) {
			(*h)[0] = s
			heap.Fix(h, 0)
		}
	}

	if h.Len() == 0 {
		return nil
	}
	results := make([]Scored, h.Len())
	for i := len(results) - 1; i >= 0; i-- {
		results[i] = heap.Pop(h).(Scored)
	}
	return results
}

// rankLess reports whether a ranks strictly worse than b: lower score first,
// then higher ordinal, then higher source path.
func rankLess(a, b Scored) bool {
	if a.Score != b.Score {
		return a.Score < b.Score
	}
	if a.Entry.Ordinal != b.Entry.Ordinal {
		return a.Entry.Ordinal > b.Entry.Ordinal
	}
	return a.Entry.SourcePath > b.Entry.SourcePath
}

// normalized returns a unit-length copy of v, or nil for a zero vector.
func normalized(v []float32) []float32 {
	var sum float64
	for _, f := range v {
		sum += float64(f) * float64(f)
	}
	if sum == 0 {
		return nil
	}
	n := math.Sqrt(sum)
	out := make([]float32, len(v))
	for i, f := range v {
		out[i] = float32(float64(f) / n)
	}
	return out
}

// dot computes the dot product of two unit vectors (their cosine similarity).
func dot(a, b []float32) float32 {
	if len(a) != len(b) || b == nil {
		return 0
	}
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return float32(sum)
}

// scoredHeap is a min-heap ordered by rankLess, keeping the k best candidates
// during a search scan.
type scoredHeap []Scored

func (h scoredHeap) Len() int            { return len(h) }
func (h scoredHeap) Less(i, j int) bool  { return rankLess(h[i], h[j]) }
func (h scoredHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *scoredHeap) Push(x interface{}) { *h = append(*h, x.(Scored)) }
func (h *scoredHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}
