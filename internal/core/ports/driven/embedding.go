package driven

import "context"

// EmbeddingService generates vector embeddings from text.
//
// The same service (and model) must be used at index-build time and at
// query time: vectors from different models are geometrically
// incompatible. This is an operational invariant, not enforced in code.
type EmbeddingService interface {
	// Embed generates a vector embedding for the given text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch generates embeddings for multiple texts in one call.
	// The result is index-aligned with the input.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// ModelName returns the name of the embedding model being used.
	ModelName() string
}
