// Package docx extracts text from Word documents.
package docx

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/fumiama/go-docx"
)

// Converter extracts paragraph text from .docx files, rendering styled
// headings as Markdown so the header splitter can section the output.
type Converter struct{}

// New returns a docx converter.
func New() *Converter { return &Converter{} }

// Available always reports true: the parser is pure Go.
func (c *Converter) Available() bool { return true }

// SupportedExtensions lists the extensions this converter handles.
// Legacy .doc is the binary OLE format, which this parser cannot read.
func (c *Converter) SupportedExtensions() []string { return []string{".docx"} }

// Convert reads the document at path and returns its Markdown content.
func (c *Converter) Convert(ctx context.Context, path string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open docx: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return "", fmt.Errorf("stat docx: %w", err)
	}

	doc, err := docx.Parse(f, info.Size())
	if err != nil {
		return "", fmt.Errorf("parse docx: %w", err)
	}

	var sb strings.Builder
	for _, item := range doc.Document.Body.Items {
		para, ok := item.(*docx.Paragraph)
		if !ok {
			continue
		}
		text := paragraphText(para)
		if text == "" {
			continue
		}
		if level := headingLevel(para); level > 0 {
			sb.WriteString(strings.Repeat("#", level) + " " + text + "\n\n")
		} else {
			sb.WriteString(text + "\n\n")
		}
	}
	return strings.TrimSpace(sb.String()), nil
}

func headingLevel(para *docx.Paragraph) int {
	if para.Properties == nil || para.Properties.Style == nil {
		return 0
	}
	style := strings.ToLower(strings.ReplaceAll(para.Properties.Style.Val, " ", ""))
	if !strings.HasPrefix(style, "heading") {
		return 0
	}
	switch style[len("heading"):] {
	case "1":
		return 1
	case "2":
		return 2
	case "3":
		return 3
	case "4":
		return 4
	case "5":
		return 5
	case "6":
		return 6
	}
	return 0
}

func paragraphText(para *docx.Paragraph) string {
	var sb strings.Builder
	for _, child := range para.Children {
		run, ok := child.(*docx.Run)
		if !ok {
			continue
		}
		for _, rc := range run.Children {
			if t, ok := rc.(*docx.Text); ok {
				sb.WriteString(t.Text)
			}
		}
	}
	return strings.TrimSpace(sb.String())
}
