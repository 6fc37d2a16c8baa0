// Package agent owns the query engine's lifecycle: ingesting documents into
// an index generation, answering questions against the current generation,
// and matching skills against the extracted profile. All read paths work on
// an immutable snapshot swapped in atomically at the end of each ingest.
package agent

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/vitaelabs/vitae/internal/classify"
	"github.com/vitaelabs/vitae/internal/chunker"
	"github.com/vitaelabs/vitae/internal/docs"
	"github.com/vitaelabs/vitae/internal/index"
	"github.com/vitaelabs/vitae/internal/retrieval"
	"github.com/vitaelabs/vitae/internal/skills"
	"github.com/vitaelabs/vitae/internal/storage"
	"github.com/vitaelabs/vitae/internal/synthesis"
)

const defaultRecentQueries = 20

// Loader discovers and extracts source documents.
type Loader interface {
	Discover(dir string) ([]string, error)
	Extract(path string) (docs.DocumentText, error)
}

// Store persists the extracted corpus and the query log.
type Store interface {
	ReplaceDocument(doc storage.Document, chunks []storage.Chunk) error
	DeleteDocument(sourcePath string) error
	ListDocuments() ([]storage.Document, error)
	LoadChunks() ([]storage.Chunk, error)
	InsertQueryRecord(r storage.QueryRecord) error
	RecentQueries(limit int) ([]storage.QueryRecord, error)
}

// Embedder produces embedding vectors for document chunks.
type Embedder interface {
	Model() string
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// Retriever finds the chunks most relevant to a query.
type Retriever interface {
	Retrieve(ctx context.Context, gen *index.Generation, query string, category classify.Category) ([]retrieval.Result, error)
}

// Synthesizer composes an answer from retrieved chunks.
type Synthesizer interface {
	Synthesize(ctx context.Context, query string, category classify.Category, results []retrieval.Result) (synthesis.Answer, error)
}

// snapshot is the queryable state at one point in time. The generation and
// the skill profile swap together so a query never mixes chunks from one
// build with skills from another.
type snapshot struct {
	gen            *index.Generation
	profile        skills.Profile
	lastIngestedAt time.Time
}

// Deps carries the agent's collaborators.
type Deps struct {
	Loader      Loader
	Store       Store
	Embedder    Embedder
	Retriever   Retriever
	Synthesizer Synthesizer
	Chunker     *chunker.Chunker
	DocsDir     string
	Logger      *slog.Logger
}

// Agent coordinates ingestion and querying.
type Agent struct {
	loader    Loader
	store     Store
	embedder  Embedder
	retriever Retriever
	synth     Synthesizer
	chunker   *chunker.Chunker
	docsDir   string
	logger    *slog.Logger

	// ingestMu serializes ingest runs; queries never take it.
	ingestMu sync.Mutex
	current  atomic.Pointer[snapshot]
}

func New(d Deps) *Agent {
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	chk := d.Chunker
	if chk == nil {
		chk = chunker.New(0, 0, 0)
	}
	a := &Agent{
		loader:    d.Loader,
		store:     d.Store,
		embedder:  d.Embedder,
		retriever: d.Retriever,
		synth:     d.Synthesizer,
		chunker:   chk,
		docsDir:   d.DocsDir,
		logger:    logger,
	}
	a.current.Store(&snapshot{})
	return a
}

// Report summarizes one ingest run. Documents, Chunks, and Skills are corpus
// totals after the run, not deltas.
type Report struct {
	Documents int
	Chunks    int
	Skills    int
	Errors    []string
}

// Ingest synchronizes the index with a documents directory (the configured
// one when dir is empty): new and changed files are re-extracted,
// re-chunked, and re-embedded; files that disappeared are dropped. A
// document that fails extraction is skipped and reported, and its
// previously indexed version (if any) is kept. The new generation swaps in
// only after storage and index agree, so concurrent queries keep a
// consistent view throughout.
func (a *Agent) Ingest(ctx context.Context, dir string) (Report, error) {
	a.ingestMu.Lock()
	defer a.ingestMu.Unlock()

	if dir == "" {
		dir = a.docsDir
	}
	paths, err := a.loader.Discover(dir)
	if err != nil {
		return Report{}, fmt.Errorf("discovering documents: %w", err)
	}

	stored, err := a.store.ListDocuments()
	if err != nil {
		return Report{}, fmt.Errorf("listing stored documents: %w", err)
	}
	existing := make(map[string]storage.Document, len(stored))
	for _, d := range stored {
		existing[d.SourcePath] = d
	}

	cur := a.current.Load()
	modelID := a.embedder.Model()
	builder := index.NewBuilderFrom(cur.gen, modelID)
	// A model change invalidates every carried-over vector.
	reembedAll := cur.gen == nil || cur.gen.ModelID() != modelID

	var report Report
	seen := make(map[string]bool, len(paths))
	for _, path := range paths {
		seen[path] = true

		doc, err := a.loader.Extract(path)
		if err != nil {
			a.logger.Warn("skipping document", "path", path, "error", err)
			report.Errors = append(report.Errors, err.Error())
			continue
		}

		hash := contentHash(doc.Text)
		prev, known := existing[path]
		if known && prev.ContentHash == hash && !reembedAll {
			continue
		}

		docID := uuid.NewString()
		if known {
			docID = prev.ID
		}
		if err := a.indexDocument(ctx, builder, docID, doc, hash); err != nil {
			return report, err
		}
	}

	for path, prev := range existing {
		if seen[path] {
			continue
		}
		builder.RemoveDocument(prev.ID)
		if err := a.store.DeleteDocument(path); err != nil && !errors.Is(err, storage.ErrNotFound) {
			return report, fmt.Errorf("deleting document %s: %w", path, err)
		}
		a.logger.Info("document removed", "path", path)
	}

	gen, err := builder.Build()
	if err != nil {
		return report, fmt.Errorf("building index generation: %w", err)
	}
	profile := skills.Extract(gen.Entries())

	a.current.Store(&snapshot{
		gen:            gen,
		profile:        profile,
		lastIngestedAt: time.Now().UTC(),
	})

	report.Documents = gen.DocumentCount()
	report.Chunks = gen.Len()
	report.Skills = profile.Len()
	a.logger.Info("ingest complete",
		"documents", report.Documents,
		"chunks", report.Chunks,
		"skills", report.Skills,
		"skipped", len(report.Errors))
	return report, nil
}

// indexDocument chunks, embeds, stores, and indexes one document. An empty
// document is stored with zero chunks and contributes nothing to the index.
func (a *Agent) indexDocument(ctx context.Context, builder *index.Builder, docID string, doc docs.DocumentText, hash string) error {
	pieces := a.chunker.Split(doc.Text)

	texts := make([]string, len(pieces))
	for i, p := range pieces {
		texts[i] = p.Text
	}
	vectors, err := a.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return fmt.Errorf("embedding %s: %w", doc.SourcePath, err)
	}

	modelID := a.embedder.Model()
	record := storage.Document{
		ID:          docID,
		SourcePath:  doc.SourcePath,
		Format:      doc.Format,
		ContentHash: hash,
		RawText:     doc.Text,
		IngestedAt:  time.Now().UTC(),
	}

	builder.RemoveDocument(docID)
	chunks := make([]storage.Chunk, len(pieces))
	for i, p := range pieces {
		cats := classify.TagText(p.Text)
		chunk := storage.Chunk{
			ID:         uuid.NewString(),
			DocumentID: docID,
			Ordinal:    p.Ordinal,
			Text:       p.Text,
			StartChar:  p.Start,
			EndChar:    p.End,
			Categories: classify.Tags(cats),
			Embedding:  vectors[i],
			ModelID:    modelID,
		}
		chunks[i] = chunk
		builder.Upsert(index.Entry{
			ChunkID:    chunk.ID,
			DocumentID: docID,
			SourcePath: doc.SourcePath,
			Ordinal:    p.Ordinal,
			Text:       p.Text,
			Categories: cats,
			Vector:     vectors[i],
		})
	}

	if err := a.store.ReplaceDocument(record, chunks); err != nil {
		return fmt.Errorf("storing %s: %w", doc.SourcePath, err)
	}
	a.logger.Info("document indexed", "path", doc.SourcePath, "chunks", len(chunks))
	return nil
}

// WarmFromStore rebuilds the in-memory index from persisted chunks so a
// restarted server answers queries without re-embedding anything. Chunks
// written by a different embedding model are ignored; the next ingest
// re-embeds those documents.
func (a *Agent) WarmFromStore() error {
	chunks, err := a.store.LoadChunks()
	if err != nil {
		return fmt.Errorf("loading chunks: %w", err)
	}
	if len(chunks) == 0 {
		return nil
	}

	stored, err := a.store.ListDocuments()
	if err != nil {
		return fmt.Errorf("listing documents: %w", err)
	}
	pathByID := make(map[string]string, len(stored))
	var lastIngested time.Time
	for _, d := range stored {
		pathByID[d.ID] = d.SourcePath
		if d.IngestedAt.After(lastIngested) {
			lastIngested = d.IngestedAt
		}
	}

	modelID := a.embedder.Model()
	builder := index.NewBuilder(modelID)
	skipped := 0
	for _, c := range chunks {
		if c.ModelID != modelID || len(c.Embedding) == 0 {
			skipped++
			continue
		}
		cats := make([]classify.Category, len(c.Categories))
		for i, s := range c.Categories {
			cats[i] = classify.Category(s)
		}
		builder.Upsert(index.Entry{
			ChunkID:    c.ID,
			DocumentID: c.DocumentID,
			SourcePath: pathByID[c.DocumentID],
			Ordinal:    c.Ordinal,
			Text:       c.Text,
			Categories: cats,
			Vector:     c.Embedding,
		})
	}
	if skipped > 0 {
		a.logger.Warn("ignoring chunks from a different embedding model", "count", skipped, "model", modelID)
	}
	if builder.Len() == 0 {
		return nil
	}

	gen, err := builder.Build()
	if err != nil {
		return fmt.Errorf("building index from store: %w", err)
	}
	a.current.Store(&snapshot{
		gen:            gen,
		profile:        skills.Extract(gen.Entries()),
		lastIngestedAt: lastIngested,
	})
	a.logger.Info("index warmed from store", "documents", gen.DocumentCount(), "chunks", gen.Len())
	return nil
}

// Answer is the response to one query.
type Answer struct {
	Response   string
	Category   classify.Category
	Confidence float64
	Sources    []string
}

// Query answers a question about the indexed documents. Classification,
// retrieval, and synthesis all run against the same snapshot. The query is
// logged best-effort; a logging failure never fails the query.
func (a *Agent) Query(ctx context.Context, query string) (Answer, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return Answer{}, fmt.Errorf("query must not be empty")
	}

	snap := a.current.Load()
	category := classify.Classify(query)

	results, err := a.retriever.Retrieve(ctx, snap.gen, query, category)
	if err != nil {
		return Answer{}, fmt.Errorf("retrieving context: %w", err)
	}

	ans, err := a.synth.Synthesize(ctx, query, category, results)
	if err != nil {
		return Answer{}, err
	}

	record := storage.QueryRecord{
		ID:         uuid.NewString(),
		QueryText:  query,
		Category:   string(category),
		Confidence: ans.Confidence,
		CreatedAt:  time.Now().UTC(),
	}
	if err := a.store.InsertQueryRecord(record); err != nil {
		a.logger.Warn("query log insert failed", "error", err)
	}

	return Answer{
		Response:   ans.Text,
		Category:   category,
		Confidence: ans.Confidence,
		Sources:    ans.Sources,
	}, nil
}

// SkillMatch compares requested skills against the extracted profile.
func (a *Agent) SkillMatch(requested []string) skills.MatchResult {
	return skills.Match(requested, a.current.Load().profile)
}

// Skills returns the currently extracted skill profile.
func (a *Agent) Skills() []skills.Skill {
	return a.current.Load().profile.Skills()
}

// Summary describes the current corpus.
type Summary struct {
	Documents      int
	Chunks         int
	Categories     []string
	Skills         int
	Sources        []string
	LastIngestedAt time.Time
}

func (a *Agent) Summary() Summary {
	snap := a.current.Load()
	s := Summary{
		Categories:     []string{},
		Sources:        []string{},
		LastIngestedAt: snap.lastIngestedAt,
	}
	if snap.gen == nil {
		return s
	}
	s.Documents = snap.gen.DocumentCount()
	s.Chunks = snap.gen.Len()
	s.Categories = snap.gen.Categories()
	s.Skills = snap.profile.Len()
	for _, p := range snap.gen.SourcePaths() {
		s.Sources = append(s.Sources, filepath.Base(p))
	}
	return s
}

// RecentQueries returns the latest logged queries, newest first.
func (a *Agent) RecentQueries(limit int) ([]storage.QueryRecord, error) {
	if limit <= 0 {
		limit = defaultRecentQueries
	}
	return a.store.RecentQueries(limit)
}

func contentHash(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}
