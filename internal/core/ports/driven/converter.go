package driven

import "context"

// DocumentConverter turns a binary document into Markdown.
//
// Converters are a soft dependency: the normalisation pipeline probes
// Available before use and silently skips documents no converter can
// handle. A missing converter never fails the corpus build.
type DocumentConverter interface {
	// Available reports whether the converter can run in this build.
	Available() bool

	// SupportedExtensions lists the file extensions this converter
	// handles, including the leading dot.
	SupportedExtensions() []string

	// Convert reads the document at path and returns its Markdown
	// rendering.
	Convert(ctx context.Context, path string) (string, error)
}
