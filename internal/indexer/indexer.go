// Package indexer builds the vector index from the Markdown corpus.
package indexer

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/miabe-ai/campusgpt/internal/core/domain"
	"github.com/miabe-ai/campusgpt/internal/core/ports/driven"
	"github.com/miabe-ai/campusgpt/internal/logger"
	"github.com/miabe-ai/campusgpt/internal/postprocessors/splitter"
	"github.com/miabe-ai/campusgpt/internal/textnorm"
	"github.com/miabe-ai/campusgpt/internal/vectorstore/flat"
)

// Options configures an index build.
type Options struct {
	// ChunkSize and Overlap parameterise the recursive splitter.
	ChunkSize int
	Overlap   int

	// MinChunkChars drops fragments below this floor.
	MinChunkChars int

	// TokenThreshold switches documents from plain recursive chunking
	// to heading-aware chunking.
	TokenThreshold int

	// BatchSize is the number of chunks per embedding request.
	BatchSize int
}

// Stats summarises one build.
type Stats struct {
	Documents int
	Chunks    int
	Dropped   int
}

// Indexer chunks, embeds and indexes a Markdown corpus.
type Indexer struct {
	embedder driven.EmbeddingService
	opts     Options

	// sources maps a file stem to its origin URL, from the crawl
	// ledger. May be nil when indexing a hand-assembled corpus.
	sources map[string]string
}

// New builds an Indexer. sources may be nil.
func New(embedder driven.EmbeddingService, sources map[string]string, opts Options) *Indexer {
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = splitter.DefaultChunkSize
	}
	if opts.Overlap < 0 || opts.Overlap >= opts.ChunkSize {
		opts.Overlap = splitter.DefaultOverlap
	}
	if opts.MinChunkChars <= 0 {
		opts.MinChunkChars = 20
	}
	if opts.TokenThreshold <= 0 {
		opts.TokenThreshold = 8000
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 150
	}
	return &Indexer{embedder: embedder, sources: sources, opts: opts}
}

// Build chunks every .md file under corpusDir, embeds the chunks in
// batches and returns the populated index. Embedding errors abort the
// build: a partially embedded index would skew retrieval silently.
func (ix *Indexer) Build(ctx context.Context, corpusDir string) (*flat.Index, Stats, error) {
	var stats Stats

	chunks, err := ix.chunkCorpus(corpusDir, &stats)
	if err != nil {
		return nil, stats, err
	}
	if len(chunks) == 0 {
		return nil, stats, fmt.Errorf("%w: no chunks produced from %s", domain.ErrInvalidInput, corpusDir)
	}
	stats.Chunks = len(chunks)
	logger.Info("embedding %d chunks from %d documents", stats.Chunks, stats.Documents)

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.EmbeddingText
	}

	var index *flat.Index
	for start := 0; start < len(texts); start += ix.opts.BatchSize {
		if err := ctx.Err(); err != nil {
			return nil, stats, err
		}
		end := start + ix.opts.BatchSize
		if end > len(texts) {
			end = len(texts)
		}
		vectors, err := ix.embedder.EmbedBatch(ctx, texts[start:end])
		if err != nil {
			return nil, stats, fmt.Errorf("embed batch %d-%d: %w", start, end, err)
		}
		if len(vectors) != end-start {
			return nil, stats, fmt.Errorf("%w: batch %d-%d returned %d vectors",
				domain.ErrIndexMisaligned, start, end, len(vectors))
		}
		if index == nil {
			index = flat.New(len(vectors[0]))
		}
		for i, vec := range vectors {
			if err := index.Add(vec, chunks[start+i].Text, chunks[start+i].Metadata); err != nil {
				return nil, stats, err
			}
		}
		logger.Debug("embedded %d/%d chunks", end, len(texts))
	}
	return index, stats, nil
}

// chunkCorpus reads and chunks every Markdown file, sorted by name so
// rebuilds assign chunks in a stable order.
func (ix *Indexer) chunkCorpus(corpusDir string, stats *Stats) ([]domain.Chunk, error) {
	entries, err := os.ReadDir(corpusDir)
	if err != nil {
		return nil, fmt.Errorf("read corpus: %w", err)
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".md") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	var chunks []domain.Chunk
	for _, name := range names {
		data, err := os.ReadFile(filepath.Join(corpusDir, name))
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", name, err)
		}
		doc := strings.TrimSpace(string(data))
		if doc == "" {
			continue
		}
		stats.Documents++
		stem := strings.TrimSuffix(name, ".md")
		chunks = append(chunks, ix.chunkDocument(doc, ix.sourceFor(stem), stats)...)
	}
	return chunks, nil
}

// chunkDocument picks the strategy by estimated size: a document under
// the token threshold becomes a single chunk so short pages keep their
// full context; large ones are sectioned on headings first so a chunk
// never straddles unrelated topics, then split recursively, each chunk
// carrying its heading trail.
func (ix *Indexer) chunkDocument(doc, source string, stats *Stats) []domain.Chunk {
	var chunks []domain.Chunk
	if estimateTokens(doc) <= ix.opts.TokenThreshold {
		ix.appendChunk(&chunks, doc, "", source, stats)
		return chunks
	}

	rec := splitter.NewRecursive(ix.opts.ChunkSize, ix.opts.Overlap)
	for _, section := range splitter.SplitByHeadings(doc) {
		crumb := section.BreadcrumbString()
		for _, piece := range rec.Split(section.Content) {
			ix.appendChunk(&chunks, piece, crumb, source, stats)
		}
	}
	return chunks
}

func (ix *Indexer) appendChunk(chunks *[]domain.Chunk, piece, crumb, source string, stats *Stats) {
	piece = strings.TrimSpace(piece)
	if len(piece) < ix.opts.MinChunkChars {
		stats.Dropped++
		return
	}
	text := piece
	if crumb != "" {
		text = crumb + "\n\n" + piece
	}
	*chunks = append(*chunks, domain.Chunk{
		Text:          text,
		EmbeddingText: textnorm.Normalize(text),
		Metadata: domain.ChunkMetadata{
			Source:  source,
			Heading: crumb,
		},
	})
}

// sourceFor resolves a file stem to its origin URL via the ledger,
// falling back to reading a URL out of the stem itself for corpora
// whose file names encode the address with underscores.
func (ix *Indexer) sourceFor(stem string) string {
	if url, ok := ix.sources[stem]; ok && url != "" {
		return url
	}
	if strings.Contains(stem, "_") && !strings.Contains(stem, "://") {
		return strings.ReplaceAll(stem, "_", "/")
	}
	return stem
}

// estimateTokens approximates the token count of text. Four characters
// per token is close enough for a threshold that only selects the
// chunking strategy.
func estimateTokens(text string) int {
	return len(text) / 4
}
