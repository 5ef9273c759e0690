package splitter

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitByHeadingsBuildsBreadcrumbs(t *testing.T) {
	doc := `# Admissions

Texte d'introduction sur les admissions.

## Licence

Conditions d'accès en licence.

### Pièces à fournir

Relevé de notes et acte de naissance.

## Master

Conditions d'accès en master.
`
	sections := SplitByHeadings(doc)
	require.Len(t, sections, 4)

	assert.Equal(t, []string{"Admissions"}, sections[0].Breadcrumb)
	assert.Contains(t, sections[0].Content, "Texte d'introduction")

	assert.Equal(t, []string{"Admissions", "Licence"}, sections[1].Breadcrumb)
	assert.Equal(t, []string{"Admissions", "Licence", "Pièces à fournir"}, sections[2].Breadcrumb)
	assert.Contains(t, sections[2].Content, "Relevé de notes")

	// a sibling H2 pops the H3 off the trail
	assert.Equal(t, []string{"Admissions", "Master"}, sections[3].Breadcrumb)
	assert.Equal(t, "Admissions - Master", sections[3].BreadcrumbString())
}

func TestSplitByHeadingsPreamble(t *testing.T) {
	doc := "Texte avant tout titre.\n\n# Premier titre\n\nCorps de section."
	sections := SplitByHeadings(doc)
	require.Len(t, sections, 2)
	assert.Empty(t, sections[0].Breadcrumb)
	assert.Contains(t, sections[0].Content, "Texte avant tout titre.")
}

func TestSplitByHeadingsNoHeadings(t *testing.T) {
	sections := SplitByHeadings("Juste un paragraphe sans structure.")
	require.Len(t, sections, 1)
	assert.Empty(t, sections[0].Breadcrumb)
	assert.Equal(t, "", sections[0].BreadcrumbString())
}

func TestSplitByHeadingsSkipsEmptySections(t *testing.T) {
	doc := "# Vide\n\n## Aussi vide\n\n### Rempli\n\nDu contenu enfin."
	sections := SplitByHeadings(doc)
	require.Len(t, sections, 1)
	assert.Equal(t, []string{"Vide", "Aussi vide", "Rempli"}, sections[0].Breadcrumb)
}

func TestRecursiveShortInputPassesThrough(t *testing.T) {
	r := NewRecursive(100, 10)
	chunks := r.Split("court")
	assert.Equal(t, []string{"court"}, chunks)
}

func TestRecursivePrefersParagraphBoundaries(t *testing.T) {
	para1 := strings.Repeat("aa ", 20)
	para2 := strings.Repeat("bb ", 20)
	r := NewRecursive(70, 0)
	chunks := r.Split(strings.TrimSpace(para1) + "\n\n" + strings.TrimSpace(para2))

	require.Len(t, chunks, 2)
	assert.Contains(t, chunks[0], "aa")
	assert.NotContains(t, chunks[0], "bb")
	assert.Contains(t, chunks[1], "bb")
}

func TestRecursiveOverlapCarriesTail(t *testing.T) {
	var words []string
	for i := 0; i < 100; i++ {
		words = append(words, "mot")
	}
	r := NewRecursive(120, 20)
	chunks := r.Split(strings.Join(words, " "))

	require.Greater(t, len(chunks), 1)
	for i := 1; i < len(chunks); i++ {
		// every continuation chunk repeats material from its predecessor
		head := chunks[i][:10]
		assert.Contains(t, chunks[i-1], strings.TrimSpace(head))
	}
}

func TestRecursiveHardCutUnbrokenText(t *testing.T) {
	blob := strings.Repeat("x", 500)
	r := NewRecursive(100, 10)
	chunks := r.Split(blob)

	require.Greater(t, len(chunks), 1)
	total := 0
	for _, c := range chunks {
		assert.LessOrEqual(t, len(c), 100)
		total += len(c)
	}
	assert.GreaterOrEqual(t, total, 500)
}

func TestNewRecursiveClampsBadParameters(t *testing.T) {
	r := NewRecursive(0, -5)
	assert.Equal(t, DefaultChunkSize, r.ChunkSize)
	assert.Equal(t, DefaultChunkSize/10, r.Overlap)

	r = NewRecursive(100, 100)
	assert.Equal(t, 10, r.Overlap)
}
