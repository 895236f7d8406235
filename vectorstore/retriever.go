package vectorstore

import (
	"context"
	"fmt"
	"strings"
)

// Embedder turns text into a query vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Retriever embeds a query and returns the text of the closest snippets.
type Retriever struct {
	embedder Embedder
	store    VectorStore
	limit    int
	minScore float32
}

// NewRetriever returns a Retriever fetching at most limit snippets (default 3)
// scoring at least minScore.
func NewRetriever(embedder Embedder, store VectorStore, limit int, minScore float32) *Retriever {
	if limit <= 0 {
		limit = 3
	}
	return &Retriever{embedder: embedder, store: store, limit: limit, minScore: minScore}
}

// Retrieve returns snippet texts for query, best match first. Blank queries
// return nothing without touching the backends.
func (r *Retriever) Retrieve(ctx context.Context, agent, query string) ([]string, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, nil
	}

	vector, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	results, err := r.store.Search(ctx, vector, SearchFilter{Agent: agent, MinScore: r.minScore}, r.limit)
	if err != nil {
		return nil, fmt.Errorf("search knowledge: %w", err)
	}

	snippets := make([]string, 0, len(results))
	for _, res := range results {
		if text := strings.TrimSpace(res.Content); text != "" {
			snippets = append(snippets, text)
		}
	}
	return snippets, nil
}
