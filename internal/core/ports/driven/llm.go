package driven

import "context"

// LLMService provides text generation for the conversation pipeline.
//
// Implementations may include:
//   - OpenAI (answer generation, streamed)
//   - Mistral (query rewriting, intent classification)
type LLMService interface {
	// Generate produces a complete text completion from a prompt.
	Generate(ctx context.Context, prompt string, opts GenerateOptions) (string, error)

	// GenerateStream produces a completion incrementally, calling emit
	// for each text fragment as it arrives. emit returning an error
	// stops generation; the error is returned unchanged so callers can
	// tell a dropped consumer from a provider failure.
	GenerateStream(ctx context.Context, prompt string, opts GenerateOptions, emit func(string) error) error

	// ModelName returns the name of the model being used.
	ModelName() string
}

// GenerateOptions configures text generation behaviour.
type GenerateOptions struct {
	// MaxTokens is the maximum number of tokens to generate.
	MaxTokens int

	// Temperature controls randomness (0.0 = deterministic).
	Temperature float64
}
