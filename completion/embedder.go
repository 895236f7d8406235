package completion

import (
	"context"
	"fmt"

	"github.com/openai/openai-go/v3"
)

// Embedder embeds text with the OpenAI embeddings API. It satisfies
// vectorstore.Embedder.
type Embedder struct {
	client openai.Client
	model  openai.EmbeddingModel
}

// NewEmbedder returns an Embedder; a blank model means text-embedding-3-small.
func NewEmbedder(client openai.Client, model string) *Embedder {
	m := openai.EmbeddingModel(model)
	if model == "" {
		m = openai.EmbeddingModelTextEmbedding3Small
	}
	return &Embedder{client: client, model: m}
}

// Embed returns the embedding of text as float32, the width Qdrant stores.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := e.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Input: openai.EmbeddingNewParamsInputUnion{OfString: openai.String(text)},
		Model: e.model,
	})
	if err != nil {
		return nil, fmt.Errorf("embeddings: %w", err)
	}
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("embeddings: empty response")
	}

	values := resp.Data[0].Embedding
	out := make([]float32, len(values))
	for i, v := range values {
		out[i] = float32(v)
	}
	return out, nil
}
