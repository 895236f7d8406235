// Package vectorstore finds knowledge snippets relevant to what a caller
// just said, so an agent can answer from its own material.
package vectorstore

import "context"

// VectorStore is a technology-agnostic interface for vector similarity search.
type VectorStore interface {
	// Search performs vector similarity search with optional filtering.
	Search(ctx context.Context, vector []float32, filter SearchFilter, limit int) ([]SearchResult, error)

	// Close releases any resources held by the vector store.
	Close() error
}

// SearchFilter defines filtering options for vector search.
type SearchFilter struct {
	// Agent restricts results to snippets tagged for one agent profile.
	Agent string

	// Metadata filters results by exact payload key-value matches.
	Metadata map[string]any

	// MinScore drops results below this similarity threshold (0.0-1.0).
	MinScore float32
}

// SearchResult is a single snippet returned by a search.
type SearchResult struct {
	ID       string
	Score    float32
	Content  string
	Agent    string
	Metadata map[string]any
}
