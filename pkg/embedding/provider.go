package embedding

import "context"

// EmbeddingProvider defines the interface for generating text embeddings
type EmbeddingProvider interface {
	// Embed returns one dense vector per input text.
	Embed(ctx context.Context, texts []string) ([][]float32, error)

	// Dimension is the fixed vector width for this deployment.
	Dimension() int
}
