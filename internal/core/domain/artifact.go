package domain

import "time"

// ArtifactKind identifies what a fetched URL turned out to be.
// It is decided once, at fetch time, and threaded through the pipeline
// so later stages never re-sniff content types.
type ArtifactKind int

const (
	// KindHTML is a crawlable web page.
	KindHTML ArtifactKind = iota

	// KindDocument is a binary document (PDF, Office, ...).
	KindDocument
)

// Artifact represents one fetched unit of content.
type Artifact struct {
	// URL is the source location.
	URL string

	// ID is the SHA-256 hash of the URL, used as the on-disk filename
	// stem so re-fetching the same URL overwrites deterministically.
	ID string

	// ContentHash is the SHA-256 hash of the content bytes.
	// Two artifacts with the same ContentHash are the same content,
	// regardless of URL.
	ContentHash string

	// Kind is the artifact kind decided at fetch time.
	Kind ArtifactKind

	// Extension is the file extension for KindDocument artifacts
	// (including the leading dot), empty for HTML.
	Extension string
}

// MetadataEntry is one row of the crawl ledger, keyed by Artifact.ID.
type MetadataEntry struct {
	// OriginalName is the last path segment of the source URL.
	OriginalName string `json:"original_name"`

	// URL is the source location.
	URL string `json:"url"`

	// ContentHash is the SHA-256 hash of the artifact content.
	ContentHash string `json:"content_hash"`

	// DuplicateOf names the canonical entry when this one was
	// suppressed as a content duplicate, empty otherwise.
	DuplicateOf string `json:"duplicate_of,omitempty"`

	// Status is set by cleanup passes ("corrupted", "duplicate_removed").
	Status string `json:"status,omitempty"`

	// Timestamp is when the entry was created.
	Timestamp time.Time `json:"timestamp"`
}

// CrawlStats summarises one crawl invocation.
type CrawlStats struct {
	// TotalPages is the number of URLs dispatched to workers.
	TotalPages int

	// PagesScraped is the number of pages fetched without error.
	PagesScraped int

	// PagesSkipped is TotalPages minus scraped and errors.
	PagesSkipped int

	// DocumentsDownloaded is the number of binary documents kept.
	DocumentsDownloaded int

	// Errors is the number of fetches abandoned after a network error.
	Errors int

	// Queued is the number of discovered but unvisited URLs left in
	// the frontier when the crawl stopped.
	Queued int

	// Duration is the wall-clock time of the crawl.
	Duration time.Duration
}

// DocumentExtensions lists URL suffixes routed to the downloader
// instead of the HTML parser.
var DocumentExtensions = []string{
	".pdf", ".doc", ".docx",
	".xls", ".xlsx",
	".ppt", ".pptx",
	".odt", ".ods", ".odp",
	".rtf", ".csv", ".json",
}
