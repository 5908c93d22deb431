package domain

import "context"

// Document represents a single page of a loaded PDF file.
type Document struct {
	Text       string
	Source     string
	Path       string
	Page       int
	TotalPages int
	Section    string
}

// Chunk is a bounded span of a page's normalized text stored as one retrievable unit.
type Chunk struct {
	ID         string
	Text       string
	Source     string
	Page       int
	Section    string
	Index      int
	StartIndex int
}

// SearchResult represents a matching chunk with its similarity score and stored vector.
type SearchResult struct {
	Chunk  Chunk
	Score  float64
	Vector []float64
}

// Embedder converts free text into a numeric vector representation.
type Embedder interface {
	Name() string
	Dimension() int
	Embed(ctx context.Context, text string) ([]float64, error)
}

// Chunker splits normalized pages into overlapping chunks.
type Chunker interface {
	SplitDocuments(docs []Document) []Chunk
}

// VectorStore persists chunk embeddings and answers nearest-neighbour queries.
type VectorStore interface {
	Exists(ctx context.Context) (bool, error)
	Open(ctx context.Context) error
	Upsert(ctx context.Context, chunks []Chunk, vectors [][]float64) error
	Search(ctx context.Context, vector []float64, topK int) ([]SearchResult, error)
	Count(ctx context.Context) (int, error)
	Drop(ctx context.Context) error
	Close() error
}

// Completer sends a fully rendered prompt to a language model and returns its text.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}
