package storage

import (
	"database/sql"
	"embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Store wraps a SQLite database holding documents, chunks with their
// embeddings, and the query log. It is a cache of the ingest pipeline's
// output: deleting the file and re-ingesting yields an equivalent corpus.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the SQLite database at path and runs pending
// migrations. Pass ":memory:" for an in-memory database (used by tests).
func Open(path string) (*Store, error) {
	dsn := path
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	// One connection at a time; a second writer would only hit SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	// If another process holds the file, wait up to 5s before giving up.
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	// SQLite ignores REFERENCES clauses unless this is on.
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	// WAL lets readers proceed while an ingest transaction is writing.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting journal mode: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate applies any embedded SQL migration files that haven't run yet,
// in ascending filename order.
func (s *Store) migrate() error {
	if _, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY,
		applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`); err != nil {
		return fmt.Errorf("creating schema_version table: %w", err)
	}

	applied, err := s.appliedVersions()
	if err != nil {
		return err
	}

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}

		version, err := parseMigrationVersion(entry.Name())
		if err != nil {
			return err
		}
		if applied[version] {
			continue
		}

		content, err := migrationsFS.ReadFile("migrations/" + entry.Name())
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", entry.Name(), err)
		}
		if err := s.applyMigration(version, string(content)); err != nil {
			return err
		}
	}

	return nil
}

func (s *Store) appliedVersions() (map[int]bool, error) {
	rows, err := s.db.Query("SELECT version FROM schema_version")
	if err != nil {
		return nil, fmt.Errorf("reading schema_version: %w", err)
	}
	defer rows.Close()

	applied := make(map[int]bool)
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		applied[v] = true
	}
	return applied, rows.Err()
}

// applyMigration runs one migration and records its version in the same
// transaction.
func (s *Store) applyMigration(version int, content string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning transaction for migration %d: %w", version, err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(content); err != nil {
		return fmt.Errorf("migration %d failed: %w", version, err)
	}
	if _, err := tx.Exec("INSERT INTO schema_version (version) VALUES (?)", version); err != nil {
		return fmt.Errorf("recording migration %d: %w", version, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing migration %d: %w", version, err)
	}
	return nil
}

func parseMigrationVersion(filename string) (int, error) {
	var version int
	if _, err := fmt.Sscanf(filename, "%d_", &version); err != nil {
		return 0, fmt.Errorf("migration filename %q has no numeric version: %w", filename, err)
	}
	return version, nil
}

// AppliedMigrations reports which schema versions have run, oldest first.
func (s *Store) AppliedMigrations() ([]int, error) {
	rows, err := s.db.Query("SELECT version FROM schema_version ORDER BY version ASC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var versions []int
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		versions = append(versions, v)
	}
	return versions, rows.Err()
}

// --- Documents ---

// ReplaceDocument removes any document stored under doc.SourcePath together
// with its chunks and inserts the document and chunks in a single
// transaction. Readers never observe a document without its chunks.
func (s *Store) ReplaceDocument(doc Document, chunks []Chunk) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning replace transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM chunks WHERE document_id IN (SELECT id FROM documents WHERE source_path = ?)`, doc.SourcePath); err != nil {
		return fmt.Errorf("deleting stale chunks: %w", err)
	}
	if _, err := tx.Exec(`DELETE FROM documents WHERE source_path = ?`, doc.SourcePath); err != nil {
		return fmt.Errorf("deleting stale document: %w", err)
	}

	ingestedAt := doc.IngestedAt
	if ingestedAt.IsZero() {
		ingestedAt = time.Now().UTC()
	}
	if _, err := tx.Exec(`
		INSERT INTO documents (id, source_path, format, content_hash, raw_text, ingested_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		doc.ID, doc.SourcePath, doc.Format, doc.ContentHash, doc.RawText,
		ingestedAt.Format(time.RFC3339),
	); err != nil {
		return fmt.Errorf("inserting document %s: %w", doc.SourcePath, err)
	}

	stmt, err := tx.Prepare(`
		INSERT INTO chunks (id, document_id, ordinal, text, start_char, end_char, categories, embedding, model_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing chunk insert: %w", err)
	}
	defer stmt.Close()

	for _, c := range chunks {
		cats, err := json.Marshal(c.Categories)
		if err != nil {
			return fmt.Errorf("encoding categories for chunk %s: %w", c.ID, err)
		}
		blob := encodeFloat32s(c.Embedding)
		if _, err := stmt.Exec(c.ID, c.DocumentID, c.Ordinal, c.Text, c.StartChar, c.EndChar, string(cats), blob, c.ModelID); err != nil {
			return fmt.Errorf("inserting chunk %s: %w", c.ID, err)
		}
	}

	return tx.Commit()
}

// DeleteDocument removes a document and its chunks. Returns ErrNotFound when
// no document exists under sourcePath.
func (s *Store) DeleteDocument(sourcePath string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning delete transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM chunks WHERE document_id IN (SELECT id FROM documents WHERE source_path = ?)`, sourcePath); err != nil {
		return fmt.Errorf("deleting chunks: %w", err)
	}
	res, err := tx.Exec(`DELETE FROM documents WHERE source_path = ?`, sourcePath)
	if err != nil {
		return fmt.Errorf("deleting document: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return tx.Commit()
}

// GetDocumentByPath returns the document stored under sourcePath.
func (s *Store) GetDocumentByPath(sourcePath string) (Document, error) {
	var d Document
	var ingestedAt string
	err := s.db.QueryRow(`
		SELECT id, source_path, format, content_hash, raw_text, ingested_at
		FROM documents WHERE source_path = ?`, sourcePath,
	).Scan(&d.ID, &d.SourcePath, &d.Format, &d.ContentHash, &d.RawText, &ingestedAt)
	if err == sql.ErrNoRows {
		return Document{}, ErrNotFound
	}
	if err != nil {
		return Document{}, err
	}
	t, err := time.Parse(time.RFC3339, ingestedAt)
	if err != nil {
		return Document{}, fmt.Errorf("parsing ingested_at: %w", err)
	}
	d.IngestedAt = t
	return d, nil
}

// ListDocuments returns all documents ordered by source path.
func (s *Store) ListDocuments() ([]Document, error) {
	rows, err := s.db.Query(`
		SELECT id, source_path, format, content_hash, raw_text, ingested_at
		FROM documents ORDER BY source_path ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var docs []Document
	for rows.Next() {
		var d Document
		var ingestedAt string
		if err := rows.Scan(&d.ID, &d.SourcePath, &d.Format, &d.ContentHash, &d.RawText, &ingestedAt); err != nil {
			return nil, err
		}
		t, err := time.Parse(time.RFC3339, ingestedAt)
		if err != nil {
			return nil, fmt.Errorf("parsing ingested_at: %w", err)
		}
		d.IngestedAt = t
		docs = append(docs, d)
	}
	return docs, rows.Err()
}

// LoadChunks returns every stored chunk with its embedding, ordered by
// document and ordinal so index rebuilds are deterministic.
func (s *Store) LoadChunks() ([]Chunk, error) {
	rows, err := s.db.Query(`
		SELECT c.id, c.document_id, c.ordinal, c.text, c.start_char, c.end_char, c.categories, c.embedding, c.model_id
		FROM chunks c
		JOIN documents d ON d.id = c.document_id
		ORDER BY d.source_path ASC, c.ordinal ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var chunks []Chunk
	for rows.Next() {
		var c Chunk
		var cats string
		var blob []byte
		if err := rows.Scan(&c.ID, &c.DocumentID, &c.Ordinal, &c.Text, &c.StartChar, &c.EndChar, &cats, &blob, &c.ModelID); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(cats), &c.Categories); err != nil {
			return nil, fmt.Errorf("decoding categories for chunk %s: %w", c.ID, err)
		}
		embedding, err := decodeFloat32s(blob)
		if err != nil {
			return nil, fmt.Errorf("decoding embedding for chunk %s: %w", c.ID, err)
		}
		c.Embedding = embedding
		chunks = append(chunks, c)
	}
	return chunks, rows.Err()
}

// --- Query log ---

func (s *Store) InsertQueryRecord(r QueryRecord) error {
	createdAt := r.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	_, err := s.db.Exec(`
		INSERT INTO query_log (id, query_text, category, confidence, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		r.ID, r.QueryText, r.Category, r.Confidence, createdAt.Format(time.RFC3339),
	)
	return err
}

func (s *Store) RecentQueries(limit int) ([]QueryRecord, error) {
	rows, err := s.db.Query(`
		SELECT id, query_text, category, confidence, created_at
		FROM query_log ORDER BY created_at DESC, id DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []QueryRecord
	for rows.Next() {
		var r QueryRecord
		var createdAt string
		if err := rows.Scan(&r.ID, &r.QueryText, &r.Category, &r.Confidence, &createdAt); err != nil {
			return nil, err
		}
		t, err := time.Parse(time.RFC3339, createdAt)
		if err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}
		r.CreatedAt = t
		records = append(records, r)
	}
	return records, rows.Err()
}
