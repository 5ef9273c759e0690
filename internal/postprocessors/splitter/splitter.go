// Package splitter cuts Markdown documents into retrieval-sized
// chunks. Large documents are first sectioned on their headings, then
// oversized sections fall through to a recursive character splitter.
package splitter

import (
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// Defaults for the recursive splitter.
const (
	DefaultChunkSize = 1500
	DefaultOverlap   = 150
)

// maxHeadingLevel bounds which headings start a new section. H6 is
// left inline: sites use it for styling, not structure.
const maxHeadingLevel = 5

// Section is one heading-delimited slice of a document.
type Section struct {
	// Breadcrumb is the heading path down to this section, e.g.
	// ["Admissions", "Licence", "Pièces à fournir"].
	Breadcrumb []string

	// Content is the section body, headings excluded.
	Content string
}

// BreadcrumbString joins the heading path for prefixing chunk text.
func (s Section) BreadcrumbString() string {
	return strings.Join(s.Breadcrumb, " - ")
}

// SplitByHeadings parses doc as Markdown and returns one section per
// heading span. Text before the first heading becomes a section with
// an empty breadcrumb.
func SplitByHeadings(doc string) []Section {
	source := []byte(doc)
	parser := goldmark.DefaultParser()
	root := parser.Parse(text.NewReader(source))

	var sections []Section
	trail := make([]string, 0, maxHeadingLevel)
	var body strings.Builder

	flush := func() {
		content := strings.TrimSpace(body.String())
		body.Reset()
		if content == "" {
			return
		}
		crumb := make([]string, len(trail))
		copy(crumb, trail)
		sections = append(sections, Section{Breadcrumb: crumb, Content: content})
	}

	for node := root.FirstChild(); node != nil; node = node.NextSibling() {
		heading, ok := node.(*ast.Heading)
		if ok && heading.Level <= maxHeadingLevel {
			flush()
			title := strings.TrimSpace(string(headingText(heading, source)))
			if len(trail) >= heading.Level {
				trail = trail[:heading.Level-1]
			}
			trail = append(trail, title)
			continue
		}
		segment := nodeText(node, source)
		if segment != "" {
			body.WriteString(segment)
			body.WriteString("\n\n")
		}
	}
	flush()
	return sections
}

func headingText(heading *ast.Heading, source []byte) []byte {
	var sb strings.Builder
	for child := heading.FirstChild(); child != nil; child = child.NextSibling() {
		if t, ok := child.(*ast.Text); ok {
			sb.Write(t.Segment.Value(source))
		} else {
			sb.WriteString(nodeText(child, source))
		}
	}
	return []byte(sb.String())
}

// nodeText reconstructs the raw source slice a block node covers.
func nodeText(node ast.Node, source []byte) string {
	lines := node.Lines()
	if lines != nil && lines.Len() > 0 {
		first := lines.At(0)
		last := lines.At(lines.Len() - 1)
		return strings.TrimSpace(string(source[first.Start:last.Stop]))
	}
	var sb strings.Builder
	for child := node.FirstChild(); child != nil; child = child.NextSibling() {
		part := nodeText(child, source)
		if part != "" {
			if sb.Len() > 0 {
				sb.WriteString("\n")
			}
			sb.WriteString(part)
		}
	}
	return sb.String()
}

// Recursive splits text into pieces of at most chunkSize characters
// with overlap characters carried between adjacent pieces. Separators
// are tried in order, falling back to a hard cut only when no
// separator fits.
type Recursive struct {
	ChunkSize int
	Overlap   int
}

// NewRecursive returns a splitter with validated parameters.
func NewRecursive(chunkSize, overlap int) *Recursive {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	if overlap < 0 || overlap >= chunkSize {
		overlap = chunkSize / 10
	}
	return &Recursive{ChunkSize: chunkSize, Overlap: overlap}
}

var separators = []string{"\n\n", "\n", " ", ""}

// Split cuts text into chunks.
func (r *Recursive) Split(input string) []string {
	input = strings.TrimSpace(input)
	if input == "" {
		return nil
	}
	if len(input) <= r.ChunkSize {
		return []string{input}
	}
	return r.split(input, 0)
}

func (r *Recursive) split(input string, sepIndex int) []string {
	if len(input) <= r.ChunkSize {
		return []string{input}
	}
	if sepIndex >= len(separators) {
		return r.hardCut(input)
	}
	sep := separators[sepIndex]
	if sep == "" {
		return r.hardCut(input)
	}

	parts := strings.Split(input, sep)
	if len(parts) == 1 {
		return r.split(input, sepIndex+1)
	}

	var chunks []string
	var current strings.Builder
	for _, part := range parts {
		candidate := len(current.String()) + len(sep) + len(part)
		if current.Len() > 0 && candidate > r.ChunkSize {
			chunks = append(chunks, r.emit(&current, sepIndex)...)
		}
		if current.Len() > 0 {
			current.WriteString(sep)
		}
		current.WriteString(part)
	}
	chunks = append(chunks, r.emit(&current, sepIndex)...)
	return r.withOverlap(chunks)
}

// emit flushes the accumulator, recursing with the next separator when
// a single part alone exceeds the chunk size.
func (r *Recursive) emit(current *strings.Builder, sepIndex int) []string {
	piece := strings.TrimSpace(current.String())
	current.Reset()
	if piece == "" {
		return nil
	}
	if len(piece) > r.ChunkSize {
		return r.split(piece, sepIndex+1)
	}
	return []string{piece}
}

func (r *Recursive) hardCut(input string) []string {
	var chunks []string
	step := r.ChunkSize - r.Overlap
	for start := 0; start < len(input); start += step {
		end := start + r.ChunkSize
		if end > len(input) {
			end = len(input)
		}
		chunks = append(chunks, input[start:end])
		if end == len(input) {
			break
		}
	}
	return chunks
}

// withOverlap prefixes each chunk after the first with the tail of its
// predecessor so sentences cut at a boundary stay retrievable.
func (r *Recursive) withOverlap(chunks []string) []string {
	if r.Overlap == 0 || len(chunks) < 2 {
		return chunks
	}
	out := make([]string, len(chunks))
	out[0] = chunks[0]
	for i := 1; i < len(chunks); i++ {
		prev := chunks[i-1]
		tail := prev
		if len(prev) > r.Overlap {
			tail = prev[len(prev)-r.Overlap:]
			if idx := strings.IndexByte(tail, ' '); idx >= 0 && idx+1 < len(tail) {
				tail = tail[idx+1:]
			}
		}
		out[i] = strings.TrimSpace(tail + " " + chunks[i])
	}
	return out
}
