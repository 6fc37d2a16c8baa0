package storage

import (
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open(:memory:) failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func testDocument(path string) Document {
	return Document{
		ID:          "doc-" + path,
		SourcePath:  path,
		Format:      "txt",
		ContentHash: "hash-" + path,
		RawText:     "raw text of " + path,
		IngestedAt:  time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

func testChunk(docID string, ordinal int) Chunk {
	return Chunk{
		ID:         fmt.Sprintf("%s-c%d", docID, ordinal),
		DocumentID: docID,
		Ordinal:    ordinal,
		Text:       fmt.Sprintf("chunk %d text", ordinal),
		StartChar:  ordinal * 100,
		EndChar:    ordinal*100 + 120,
		Categories: []string{"skills", "general"},
		Embedding:  []float32{0.1, 0.2, 0.3, float32(ordinal)},
		ModelID:    "nomic-embed-text",
	}
}

// Reopening an existing database must not re-run migrations that already
// applied.
func TestMigrationsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vitae.db")

	s1, err := Open(path)
	if err != nil {
		t.Fatalf("first Open failed: %v", err)
	}

	v1, err := s1.AppliedMigrations()
	if err != nil {
		t.Fatalf("AppliedMigrations: %v", err)
	}
	s1.Close()

	s2, err := Open(path)
	if err != nil {
		t.Fatalf("second Open failed: %v", err)
	}
	defer s2.Close()

	v2, err := s2.AppliedMigrations()
	if err != nil {
		t.Fatalf("AppliedMigrations: %v", err)
	}

	if len(v1) != len(v2) {
		t.Errorf("migration count changed: %d -> %d", len(v1), len(v2))
	}
}

// Migration files apply in ascending numeric order regardless of directory
// listing order.
func TestMigrationsOrdered(t *testing.T) {
	s := openTestStore(t)

	versions, err := s.AppliedMigrations()
	if err != nil {
		t.Fatalf("AppliedMigrations: %v", err)
	}

	if len(versions) == 0 {
		t.Fatal("expected at least one applied migration")
	}

	for i := 1; i < len(versions); i++ {
		if versions[i] <= versions[i-1] {
			t.Errorf("migrations not in ascending order: %v", versions)
			break
		}
	}
}

// TestIndexesExist verifies the migration creates the expected indexes.
func TestIndexesExist(t *testing.T) {
	s := openTestStore(t)

	indexes := []string{"idx_chunks_document", "idx_chunks_document_ordinal", "idx_query_log_created"}
	for _, idx := range indexes {
		var count int
		err := s.db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type='index' AND name=?", idx).Scan(&count)
		if err != nil {
			t.Fatalf("looking up index %q: %v", idx, err)
		}
		if count != 1 {
			t.Errorf("schema is missing index %q", idx)
		}
	}
}

// TestReplaceDocumentRoundTrip inserts a document with chunks and reads both back.
func TestReplaceDocumentRoundTrip(t *testing.T) {
	s := openTestStore(t)

	doc := testDocument("resume.txt")
	chunks := []Chunk{testChunk(doc.ID, 0), testChunk(doc.ID, 1)}

	if err := s.ReplaceDocument(doc, chunks); err != nil {
		t.Fatalf("ReplaceDocument: %v", err)
	}

	got, err := s.GetDocumentByPath("resume.txt")
	if err != nil {
		t.Fatalf("GetDocumentByPath: %v", err)
	}
	if got.ID != doc.ID {
		t.Errorf("ID = %q, want %q", got.ID, doc.ID)
	}
	if got.ContentHash != doc.ContentHash {
		t.Errorf("ContentHash = %q, want %q", got.ContentHash, doc.ContentHash)
	}
	if got.RawText != doc.RawText {
		t.Errorf("RawText = %q, want %q", got.RawText, doc.RawText)
	}
	if !got.IngestedAt.Equal(doc.IngestedAt) {
		t.Errorf("IngestedAt = %v, want %v", got.IngestedAt, doc.IngestedAt)
	}

	loaded, err := s.LoadChunks()
	if err != nil {
		t.Fatalf("LoadChunks: %v", err)
	}
	if len(loaded) != 2 {
		t.Fatalf("got %d chunks, want 2", len(loaded))
	}
	c := loaded[1]
	if c.Ordinal != 1 {
		t.Errorf("Ordinal = %d, want 1", c.Ordinal)
	}
	if c.Text != "chunk 1 text" {
		t.Errorf("Text = %q, want %q", c.Text, "chunk 1 text")
	}
	if c.StartChar != 100 || c.EndChar != 220 {
		t.Errorf("span = [%d, %d), want [100, 220)", c.StartChar, c.EndChar)
	}
	if len(c.Categories) != 2 || c.Categories[0] != "skills" {
		t.Errorf("Categories = %v, want [skills general]", c.Categories)
	}
	if len(c.Embedding) != 4 || c.Embedding[3] != 1 {
		t.Errorf("Embedding = %v, want last component 1", c.Embedding)
	}
	if c.ModelID != "nomic-embed-text" {
		t.Errorf("ModelID = %q, want %q", c.ModelID, "nomic-embed-text")
	}
}

// TestReplaceDocumentSwapsChunks re-ingests the same source path and verifies
// the old chunks are gone.
func TestReplaceDocumentSwapsChunks(t *testing.T) {
	s := openTestStore(t)

	old := testDocument("resume.txt")
	if err := s.ReplaceDocument(old, []Chunk{testChunk(old.ID, 0), testChunk(old.ID, 1), testChunk(old.ID, 2)}); err != nil {
		t.Fatalf("ReplaceDocument (old): %v", err)
	}

	fresh := testDocument("resume.txt")
	fresh.ID = "doc-fresh"
	fresh.ContentHash = "hash-fresh"
	if err := s.ReplaceDocument(fresh, []Chunk{testChunk(fresh.ID, 0)}); err != nil {
		t.Fatalf("ReplaceDocument (fresh): %v", err)
	}

	chunks, err := s.LoadChunks()
	if err != nil {
		t.Fatalf("LoadChunks: %v", err)
	}
	if len(chunks) != 1 {
		t.Fatalf("got %d chunks after replace, want 1", len(chunks))
	}
	if chunks[0].DocumentID != "doc-fresh" {
		t.Errorf("DocumentID = %q, want %q", chunks[0].DocumentID, "doc-fresh")
	}

	got, err := s.GetDocumentByPath("resume.txt")
	if err != nil {
		t.Fatalf("GetDocumentByPath: %v", err)
	}
	if got.ContentHash != "hash-fresh" {
		t.Errorf("ContentHash = %q, want %q", got.ContentHash, "hash-fresh")
	}
}

func TestDeleteDocument(t *testing.T) {
	s := openTestStore(t)

	doc := testDocument("old.md")
	if err := s.ReplaceDocument(doc, []Chunk{testChunk(doc.ID, 0)}); err != nil {
		t.Fatalf("ReplaceDocument: %v", err)
	}

	if err := s.DeleteDocument("old.md"); err != nil {
		t.Fatalf("DeleteDocument: %v", err)
	}

	if _, err := s.GetDocumentByPath("old.md"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetDocumentByPath error = %v, want ErrNotFound", err)
	}

	chunks, err := s.LoadChunks()
	if err != nil {
		t.Fatalf("LoadChunks: %v", err)
	}
	if len(chunks) != 0 {
		t.Errorf("got %d chunks after delete, want 0", len(chunks))
	}
}

func TestDeleteDocumentNotFound(t *testing.T) {
	s := openTestStore(t)

	if err := s.DeleteDocument("missing.txt"); !errors.Is(err, ErrNotFound) {
		t.Errorf("error = %v, want ErrNotFound", err)
	}
}

func TestGetDocumentByPathNotFound(t *testing.T) {
	s := openTestStore(t)

	if _, err := s.GetDocumentByPath("nope.pdf"); !errors.Is(err, ErrNotFound) {
		t.Errorf("error = %v, want ErrNotFound", err)
	}
}

// TestLoadChunksOrdered verifies chunks come back ordered by source path then
// ordinal regardless of insert order.
func TestLoadChunksOrdered(t *testing.T) {
	s := openTestStore(t)

	b := testDocument("b-notes.md")
	if err := s.ReplaceDocument(b, []Chunk{testChunk(b.ID, 1), testChunk(b.ID, 0)}); err != nil {
		t.Fatalf("ReplaceDocument b: %v", err)
	}
	a := testDocument("a-resume.txt")
	if err := s.ReplaceDocument(a, []Chunk{testChunk(a.ID, 0)}); err != nil {
		t.Fatalf("ReplaceDocument a: %v", err)
	}

	chunks, err := s.LoadChunks()
	if err != nil {
		t.Fatalf("LoadChunks: %v", err)
	}
	if len(chunks) != 3 {
		t.Fatalf("got %d chunks, want 3", len(chunks))
	}
	if chunks[0].DocumentID != a.ID {
		t.Errorf("first chunk document = %q, want %q", chunks[0].DocumentID, a.ID)
	}
	if chunks[1].DocumentID != b.ID || chunks[1].Ordinal != 0 {
		t.Errorf("second chunk = (%q, %d), want (%q, 0)", chunks[1].DocumentID, chunks[1].Ordinal, b.ID)
	}
	if chunks[2].Ordinal != 1 {
		t.Errorf("third chunk ordinal = %d, want 1", chunks[2].Ordinal)
	}
}

func TestListDocumentsOrdered(t *testing.T) {
	s := openTestStore(t)

	for _, p := range []string{"c.txt", "a.txt", "b.txt"} {
		if err := s.ReplaceDocument(testDocument(p), nil); err != nil {
			t.Fatalf("ReplaceDocument(%q): %v", p, err)
		}
	}

	docs, err := s.ListDocuments()
	if err != nil {
		t.Fatalf("ListDocuments: %v", err)
	}
	if len(docs) != 3 {
		t.Fatalf("got %d documents, want 3", len(docs))
	}
	want := []string{"a.txt", "b.txt", "c.txt"}
	for i, p := range want {
		if docs[i].SourcePath != p {
			t.Errorf("docs[%d].SourcePath = %q, want %q", i, docs[i].SourcePath, p)
		}
	}
}

// TestRecentQueries inserts 10 records and verifies limit and descending order.
func TestRecentQueries(t *testing.T) {
	s := openTestStore(t)

	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	for j := 0; j < 10; j++ {
		r := QueryRecord{
			ID:         fmt.Sprintf("q-%02d", j),
			QueryText:  fmt.Sprintf("query %d", j),
			Category:   "general",
			Confidence: float64(j) / 10,
			CreatedAt:  base.Add(time.Duration(j) * time.Hour),
		}
		if err := s.InsertQueryRecord(r); err != nil {
			t.Fatalf("InsertQueryRecord %d: %v", j, err)
		}
	}

	got, err := s.RecentQueries(5)
	if err != nil {
		t.Fatalf("RecentQueries: %v", err)
	}
	if len(got) != 5 {
		t.Fatalf("got %d records, want 5", len(got))
	}
	if got[0].ID != "q-09" {
		t.Errorf("first record ID = %q, want %q", got[0].ID, "q-09")
	}
	for k := 1; k < len(got); k++ {
		if got[k].CreatedAt.After(got[k-1].CreatedAt) {
			t.Errorf("not in descending order: [%d]=%v > [%d]=%v", k, got[k].CreatedAt, k-1, got[k-1].CreatedAt)
		}
	}
	if got[0].Confidence != 0.9 {
		t.Errorf("Confidence = %v, want 0.9", got[0].Confidence)
	}
}
