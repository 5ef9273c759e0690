package domain

// Chunk is the retrieval unit stored in the vector index.
type Chunk struct {
	// Text is the raw enriched text (breadcrumb + section content).
	// This is what gets shown to the answer-generation step.
	Text string

	// EmbeddingText is the normalised form of Text fed to the
	// embedding model. Queries go through the identical normalisation
	// at search time.
	EmbeddingText string

	// Metadata carries the source attribution for the chunk.
	Metadata ChunkMetadata
}

// ChunkMetadata is the per-chunk attribution persisted alongside the
// vector index.
type ChunkMetadata struct {
	// Source is the URL (or path-like identifier) of the document the
	// chunk came from.
	Source string `json:"source"`

	// Heading is the concatenated Markdown header breadcrumb above the
	// chunk, empty for whole-document chunks.
	Heading string `json:"heading,omitempty"`
}

// ScoredChunk is one retrieval hit: a stored chunk text plus its
// metadata and L2 distance from the query.
type ScoredChunk struct {
	// Text is the stored raw chunk text.
	Text string

	// Metadata is the stored chunk attribution.
	Metadata ChunkMetadata

	// Distance is the L2 distance to the query embedding.
	// Results are ordered by ascending distance.
	Distance float32
}
