// Package pdf extracts text from PDF documents.
package pdf

import (
	"context"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"
)

// Converter extracts plain text from PDFs, one page per paragraph
// block. Layout is not reconstructed; the splitter downstream only
// needs readable prose.
type Converter struct{}

// New returns a PDF converter.
func New() *Converter { return &Converter{} }

// Available always reports true: the extractor is pure Go.
func (c *Converter) Available() bool { return true }

// SupportedExtensions lists the extensions this converter handles.
func (c *Converter) SupportedExtensions() []string { return []string{".pdf"} }

// Convert reads the PDF at path and returns its text content.
func (c *Converter) Convert(ctx context.Context, path string) (string, error) {
	f, reader, err := pdf.Open(path)
	if err != nil {
		return "", fmt.Errorf("open pdf: %w", err)
	}
	defer f.Close()

	var sb strings.Builder
	for pageNum := 1; pageNum <= reader.NumPage(); pageNum++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		page := reader.Page(pageNum)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			// one bad page never sinks the document
			continue
		}
		text = strings.TrimSpace(text)
		if text == "" {
			continue
		}
		sb.WriteString(text)
		sb.WriteString("\n\n")
	}
	return strings.TrimSpace(sb.String()), nil
}
