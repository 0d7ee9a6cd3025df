// Package embed produces fixed-width vector representations of text for
// similarity search. The only implementation is Lexical, a deterministic
// feature-hashing embedder that needs no model and no network.
package embed

import "context"

// Embedder generates embeddings for text.
type Embedder interface {
	// Embed returns the embedding for a single text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch returns embeddings for a batch of texts, in input order.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dim returns the embedding dimensionality.
	Dim() int
}
