// Package services holds the conversation pipeline: retrieval over the
// vector index and the orchestrator that turns a question into a
// streamed answer.
package services

import (
	"context"
	"fmt"

	"github.com/miabe-ai/campusgpt/internal/core/domain"
	"github.com/miabe-ai/campusgpt/internal/core/ports/driven"
	"github.com/miabe-ai/campusgpt/internal/logger"
	"github.com/miabe-ai/campusgpt/internal/textnorm"
	"github.com/miabe-ai/campusgpt/internal/vectorstore/flat"
)

// Retriever answers similarity queries over the chunk index.
//
// Queries go through the same text normalisation as the indexed chunks
// did; skipping it would put query vectors in a different region of
// the embedding space than the corpus.
type Retriever struct {
	index    *flat.Index
	embedder driven.EmbeddingService
	searchK  int
}

// NewRetriever builds a Retriever over a loaded index.
func NewRetriever(index *flat.Index, embedder driven.EmbeddingService, searchK int) *Retriever {
	if searchK <= 0 {
		searchK = 10
	}
	return &Retriever{index: index, embedder: embedder, searchK: searchK}
}

// Retrieve returns the chunks most relevant to question, closest
// first.
func (r *Retriever) Retrieve(ctx context.Context, question string) ([]domain.ScoredChunk, error) {
	normalized := textnorm.Normalize(question)
	if normalized == "" {
		return nil, fmt.Errorf("%w: empty question after normalisation", domain.ErrInvalidInput)
	}

	vector, err := r.embedder.Embed(ctx, normalized)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	hits, err := r.index.Search(vector, r.searchK)
	if err != nil {
		return nil, fmt.Errorf("search index: %w", err)
	}
	logger.Debug("retrieved %d chunks for query", len(hits))
	return hits, nil
}
