package cli

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/miabe-ai/campusgpt/internal/adapters/driven/embedding/mistral"
	"github.com/miabe-ai/campusgpt/internal/connectors/web"
	"github.com/miabe-ai/campusgpt/internal/indexer"
)

var indexCorpusDir string

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Chunk, embed and index the Markdown corpus",
	Long: `Builds the vector index from the Markdown corpus: documents
are chunked, normalised, embedded in batches and written to
index.vector_store_dir together with their text mapping.

Requires MISTRAL_API_KEY in the environment.`,
	RunE: runIndex,
}

func init() {
	indexCmd.Flags().StringVar(&indexCorpusDir, "corpus", "", "Markdown corpus directory (default: <data_dir>/markdown)")
	rootCmd.AddCommand(indexCmd)
}

func runIndex(cmd *cobra.Command, args []string) error {
	if cfg.Models.MistralKey == "" {
		return errors.New("MISTRAL_API_KEY is not set")
	}

	corpusDir := indexCorpusDir
	if corpusDir == "" {
		corpusDir = filepath.Join(cfg.Crawl.DataDir, "markdown")
	}

	embedder, err := mistral.NewEmbeddingService(mistral.Config{
		APIKey: cfg.Models.MistralKey,
		Model:  cfg.Models.EmbeddingModel,
	})
	if err != nil {
		return err
	}

	ix := indexer.New(embedder, ledgerSources(), indexer.Options{
		ChunkSize:      cfg.Index.ChunkSize,
		Overlap:        cfg.Index.ChunkOverlap,
		MinChunkChars:  cfg.Index.MinChunkChars,
		TokenThreshold: cfg.Index.TokenThreshold,
		BatchSize:      cfg.Index.BatchSize,
	})

	cmd.Printf("Indexing %s with %s...\n", corpusDir, embedder.ModelName())
	index, stats, err := ix.Build(cmd.Context(), corpusDir)
	if err != nil {
		return err
	}
	if err := index.Save(cfg.Index.VectorStoreDir); err != nil {
		return fmt.Errorf("save index: %w", err)
	}

	cmd.Printf("Indexed %d chunks from %d documents (%d dropped) into %s\n",
		stats.Chunks, stats.Documents, stats.Dropped, cfg.Index.VectorStoreDir)
	return nil
}

// ledgerSources maps file stems to source URLs from the crawl ledger.
// An unreadable ledger is not fatal: sources degrade to stems.
func ledgerSources() map[string]string {
	store, err := web.NewStore(cfg.Crawl.DataDir)
	if err != nil {
		return nil
	}
	ledger, err := store.Ledger()
	if err != nil {
		return nil
	}
	sources := make(map[string]string, len(ledger))
	for id, entry := range ledger {
		sources[id] = entry.URL
	}
	return sources
}
