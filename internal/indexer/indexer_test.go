package indexer

import (
	"context"
	"errors"
	"hash/fnv"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeEmbedder maps each word to a bucket deterministically, so texts
// sharing vocabulary land near each other without a network call.
type fakeEmbedder struct {
	dims  int
	calls int
	fail  bool
}

func (f *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := f.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

func (f *fakeEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	f.calls++
	if f.fail {
		return nil, errors.New("embedding provider down")
	}
	out := make([][]float32, len(texts))
	for i, text := range texts {
		vec := make([]float32, f.dims)
		for _, word := range strings.Fields(text) {
			h := fnv.New32a()
			h.Write([]byte(word))
			vec[h.Sum32()%uint32(f.dims)]++
		}
		out[i] = vec
	}
	return out, nil
}

func (f *fakeEmbedder) ModelName() string { return "fake-embed" }

func writeCorpus(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
	}
	return dir
}

func TestBuildIndexesAndRanksByContent(t *testing.T) {
	dir := writeCorpus(t, map[string]string{
		"doc_a.md": "Les frais d'inscription en licence sont de cinquante mille francs par an.",
		"doc_b.md": "La bibliothèque universitaire ouvre ses portes de huit heures à vingt heures.",
	})

	emb := &fakeEmbedder{dims: 64}
	ix := New(emb, nil, Options{})
	index, stats, err := ix.Build(context.Background(), dir)
	require.NoError(t, err)

	assert.Equal(t, 2, stats.Documents)
	assert.Equal(t, 2, stats.Chunks)
	assert.Equal(t, 2, index.Len())

	query, err := emb.Embed(context.Background(), "frais d'inscription licence francs")
	require.NoError(t, err)
	hits, err := index.Search(query, 2)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Contains(t, hits[0].Text, "frais d'inscription")
}

func TestBuildDropsTinyChunks(t *testing.T) {
	dir := writeCorpus(t, map[string]string{
		"tiny.md": "ok",
		"real.md": "Un paragraphe assez long pour survivre au filtre de taille minimale des chunks.",
	})

	ix := New(&fakeEmbedder{dims: 16}, nil, Options{MinChunkChars: 20})
	index, stats, err := ix.Build(context.Background(), dir)
	require.NoError(t, err)

	assert.Equal(t, 1, stats.Dropped)
	assert.Equal(t, 1, index.Len())
}

func TestBuildShortDocumentStaysWhole(t *testing.T) {
	var sb strings.Builder
	for i := 0; i < 70; i++ {
		sb.WriteString("Le calendrier universitaire détaille les périodes de cours et d'examens. ")
	}
	// well over the recursive chunk size, well under the token threshold
	doc := strings.TrimSpace(sb.String())
	dir := writeCorpus(t, map[string]string{"calendrier.md": doc})

	ix := New(&fakeEmbedder{dims: 16}, nil, Options{})
	index, stats, err := ix.Build(context.Background(), dir)
	require.NoError(t, err)

	assert.Equal(t, 1, stats.Chunks, "a short document is one chunk")
	require.Equal(t, 1, index.Len())

	query, err := (&fakeEmbedder{dims: 16}).Embed(context.Background(), "calendrier examens")
	require.NoError(t, err)
	hits, err := index.Search(query, 1)
	require.NoError(t, err)
	assert.Equal(t, doc, hits[0].Text)
}

func TestBuildLargeDocumentCarriesHeadingTrail(t *testing.T) {
	var sb strings.Builder
	sb.WriteString("# Guide\n\n## Inscriptions\n\n")
	for i := 0; i < 400; i++ {
		sb.WriteString("Les inscriptions se font en ligne sur le portail étudiant chaque année universitaire. ")
	}
	dir := writeCorpus(t, map[string]string{"guide.md": sb.String()})

	// force the heading-aware path with a low threshold
	ix := New(&fakeEmbedder{dims: 16}, nil, Options{TokenThreshold: 100})
	index, _, err := ix.Build(context.Background(), dir)
	require.NoError(t, err)
	require.Greater(t, index.Len(), 1)

	query, _ := (&fakeEmbedder{dims: 16}).Embed(context.Background(), "inscriptions portail")
	hits, err := index.Search(query, 1)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(hits[0].Text, "Guide - Inscriptions"))
	assert.Equal(t, "Guide - Inscriptions", hits[0].Metadata.Heading)
}

func TestBuildBatchesEmbeddingCalls(t *testing.T) {
	files := make(map[string]string)
	for _, letter := range []string{"a", "b", "c", "d", "e", "f", "g"} {
		files[letter+".md"] = "Document " + letter + " avec assez de texte pour former un chunk valide."
	}
	dir := writeCorpus(t, files)

	emb := &fakeEmbedder{dims: 8}
	ix := New(emb, nil, Options{BatchSize: 3})
	_, stats, err := ix.Build(context.Background(), dir)
	require.NoError(t, err)

	assert.Equal(t, 7, stats.Chunks)
	assert.Equal(t, 3, emb.calls, "7 chunks in batches of 3")
}

func TestBuildFailsFastOnEmbeddingError(t *testing.T) {
	dir := writeCorpus(t, map[string]string{
		"doc.md": "Un document tout à fait normal avec assez de contenu pour être indexé.",
	})

	ix := New(&fakeEmbedder{dims: 8, fail: true}, nil, Options{})
	_, _, err := ix.Build(context.Background(), dir)
	assert.ErrorContains(t, err, "embed batch")
}

func TestBuildEmptyCorpus(t *testing.T) {
	ix := New(&fakeEmbedder{dims: 8}, nil, Options{})
	_, _, err := ix.Build(context.Background(), t.TempDir())
	assert.Error(t, err)
}

func TestSourceResolution(t *testing.T) {
	sources := map[string]string{"abc123": "https://univ.example.org/admissions"}
	ix := New(&fakeEmbedder{dims: 8}, sources, Options{})

	assert.Equal(t, "https://univ.example.org/admissions", ix.sourceFor("abc123"))
	assert.Equal(t, "www.univ.example.org/page", ix.sourceFor("www.univ.example.org_page"))
	assert.Equal(t, "plain", ix.sourceFor("plain"))
}
