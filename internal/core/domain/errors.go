package domain

import "errors"

// Domain errors represent business logic failures.
// These are distinct from infrastructure errors.
var (
	// ErrNotFound indicates a requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidInput indicates malformed or invalid input.
	ErrInvalidInput = errors.New("invalid input")

	// ErrContentTooShort indicates a page or document carried too
	// little visible text to be worth keeping.
	ErrContentTooShort = errors.New("content too short")

	// ErrNoMainContent indicates no content subtree could be located
	// in an HTML page.
	ErrNoMainContent = errors.New("no main content found")

	// ErrConverterUnavailable indicates no document converter can
	// handle the artifact. The document is skipped, not failed.
	ErrConverterUnavailable = errors.New("document converter unavailable")

	// ErrIndexMisaligned indicates the vector count, stored-text count
	// and metadata count disagree. The index must not be served.
	ErrIndexMisaligned = errors.New("vector index misaligned")

	// ErrEmbeddingUnavailable indicates the embedding service is not
	// configured.
	ErrEmbeddingUnavailable = errors.New("embedding service unavailable")

	// ErrLLMUnavailable indicates an LLM service is not configured.
	ErrLLMUnavailable = errors.New("LLM service unavailable")
)
