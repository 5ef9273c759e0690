// Package textnorm provides the text normalisation applied to chunk
// text before embedding. Queries must go through the identical function
// at search time; any divergence between the two sides silently
// degrades recall.
package textnorm

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// accentStripper decomposes to NFKD and drops combining marks, so
// "Université" and "universite" embed to the same token stream.
var accentStripper = transform.Chain(
	norm.NFKD,
	runes.Remove(runes.In(unicode.Mn)),
)

// Normalize lowercases, strips accents and punctuation, collapses
// horizontal whitespace and trims each line. Newlines are preserved so
// the embedding still sees paragraph structure.
func Normalize(text string) string {
	text = strings.ToLower(text)

	if stripped, _, err := transform.String(accentStripper, text); err == nil {
		text = stripped
	}

	var b strings.Builder
	b.Grow(len(text))
	for _, r := range text {
		switch {
		case r == '\n':
			b.WriteRune(r)
		case unicode.IsPunct(r) || unicode.IsSymbol(r):
			// dropped
		case r == '\t':
			b.WriteRune(' ')
		default:
			b.WriteRune(r)
		}
	}
	text = b.String()

	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = strings.Join(strings.Fields(line), " ")
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}
