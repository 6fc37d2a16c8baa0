package storage

import (
	"errors"
	"time"
)

// ErrNotFound reports a lookup that matched no row.
var ErrNotFound = errors.New("not found")

// Document is one ingested source file. Documents are immutable: re-ingesting
// a changed file replaces the row and all of its chunks wholesale.
type Document struct {
	ID          string
	SourcePath  string
	Format      string
	ContentHash string
	RawText     string
	IngestedAt  time.Time
}

// Chunk is one embedded passage of a document.
type Chunk struct {
	ID         string
	DocumentID string
	Ordinal    int
	Text       string
	StartChar  int
	EndChar    int
	Categories []string
	Embedding  []float32
	ModelID    string
}

// QueryRecord logs one answered query. Used for metrics only; never feeds
// back into the index.
type QueryRecord struct {
	ID         string
	QueryText  string
	Category   string
	Confidence float64
	CreatedAt  time.Time
}
