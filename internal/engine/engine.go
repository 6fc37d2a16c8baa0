// Package engine abstracts the local inference runtime. The rest of the
// system talks to this interface, never to a concrete HTTP client.
package engine

import "context"

// Message is one turn of a chat exchange.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// PullProgress is one status update emitted while a model downloads.
type PullProgress struct {
	Status    string `json:"status"`
	Total     int64  `json:"total,omitempty"`
	Completed int64  `json:"completed,omitempty"`
}

// Engine is a local inference backend (Ollama or any server speaking its
// API). It covers the three things vitae needs: chat completions for answer
// synthesis, embeddings for indexing and retrieval, and enough model
// management to bootstrap a fresh install.
type Engine interface {
	// Chat runs one completion over the conversation and returns the
	// assistant's reply.
	Chat(ctx context.Context, model string, messages []Message) (string, error)

	// Embed returns the embedding vector for one text.
	Embed(ctx context.Context, model string, text string) ([]float32, error)

	// IsRunning reports whether the runtime answers at all.
	IsRunning(ctx context.Context) bool

	// ListModels names every model installed locally.
	ListModels(ctx context.Context) ([]string, error)

	// HasModel reports whether name is installed, tagged or not.
	HasModel(ctx context.Context, name string) bool

	// PullModel downloads name, streaming progress to onProgress when set.
	PullModel(ctx context.Context, name string, onProgress func(PullProgress)) error
}
