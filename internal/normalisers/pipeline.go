// Package normalisers turns raw crawl artifacts into a deduplicated
// Markdown corpus.
package normalisers

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/miabe-ai/campusgpt/internal/connectors/web"
	"github.com/miabe-ai/campusgpt/internal/core/domain"
	"github.com/miabe-ai/campusgpt/internal/core/ports/driven"
	"github.com/miabe-ai/campusgpt/internal/logger"
	webnorm "github.com/miabe-ai/campusgpt/internal/normalisers/web"
)

// Report summarises one normalisation run.
type Report struct {
	// Converted is the number of Markdown files written.
	Converted int

	// Skipped is the number of artifacts rejected (no content, too
	// short, unsupported format).
	Skipped int

	// Errors is the number of artifacts that failed to convert.
	Errors int

	// DuplicatesRemoved is the number of Markdown files dropped by the
	// post-conversion dedup pass.
	DuplicatesRemoved int
}

// Pipeline converts every stored artifact to Markdown and removes
// post-conversion duplicates. Different raw bytes can normalise to
// identical Markdown (tracking parameters, rotating banners), so the
// corpus is deduplicated again after conversion.
type Pipeline struct {
	store      *web.Store
	html       *webnorm.Normaliser
	converters []driven.DocumentConverter
	outDir     string
}

// NewPipeline builds a pipeline writing Markdown files to outDir.
// Converters that report unavailable are dropped at construction.
func NewPipeline(store *web.Store, outDir string, converters ...driven.DocumentConverter) *Pipeline {
	var usable []driven.DocumentConverter
	for _, conv := range converters {
		if conv.Available() {
			usable = append(usable, conv)
		} else {
			logger.Warn("document converter for %v unavailable, its formats will be skipped", conv.SupportedExtensions())
		}
	}
	return &Pipeline{
		store:      store,
		html:       webnorm.New(),
		converters: usable,
		outDir:     outDir,
	}
}

// Run converts all artifacts then deduplicates the Markdown corpus.
func (p *Pipeline) Run(ctx context.Context) (Report, error) {
	var report Report
	if err := os.MkdirAll(p.outDir, 0o755); err != nil {
		return report, err
	}

	if err := p.convertHTML(ctx, &report); err != nil {
		return report, err
	}
	if err := p.convertDocuments(ctx, &report); err != nil {
		return report, err
	}

	removed, err := p.dedupMarkdown()
	if err != nil {
		return report, err
	}
	report.DuplicatesRemoved = removed

	logger.Info("normalised corpus: %d converted, %d skipped, %d errors, %d duplicates removed",
		report.Converted, report.Skipped, report.Errors, report.DuplicatesRemoved)
	return report, nil
}

func (p *Pipeline) convertHTML(ctx context.Context, report *Report) error {
	entries, err := os.ReadDir(p.store.HTMLDir())
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return err
		}
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".html") {
			continue
		}
		raw, err := os.ReadFile(filepath.Join(p.store.HTMLDir(), e.Name()))
		if err != nil {
			report.Errors++
			continue
		}
		md, err := p.html.Normalise(ctx, raw)
		switch {
		case errors.Is(err, domain.ErrNoMainContent), errors.Is(err, domain.ErrContentTooShort):
			report.Skipped++
			continue
		case err != nil:
			logger.Warn("normalise %s: %v", e.Name(), err)
			report.Errors++
			continue
		}
		stem := strings.TrimSuffix(e.Name(), ".html")
		if err := p.writeMarkdown(stem, md); err != nil {
			report.Errors++
			continue
		}
		report.Converted++
	}
	return nil
}

func (p *Pipeline) convertDocuments(ctx context.Context, report *Report) error {
	entries, err := os.ReadDir(p.store.DocumentDir())
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return err
		}
		if e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		ext := strings.ToLower(filepath.Ext(e.Name()))
		conv := p.converterFor(ext)
		if conv == nil {
			report.Skipped++
			continue
		}
		md, err := conv.Convert(ctx, filepath.Join(p.store.DocumentDir(), e.Name()))
		if err != nil {
			logger.Warn("convert %s: %v", e.Name(), err)
			report.Errors++
			continue
		}
		md = strings.TrimSpace(md)
		if md == "" {
			report.Skipped++
			continue
		}
		stem := strings.TrimSuffix(e.Name(), ext)
		if err := p.writeMarkdown(stem, md); err != nil {
			report.Errors++
			continue
		}
		report.Converted++
	}
	return nil
}

func (p *Pipeline) converterFor(ext string) driven.DocumentConverter {
	for _, conv := range p.converters {
		for _, supported := range conv.SupportedExtensions() {
			if supported == ext {
				return conv
			}
		}
	}
	return nil
}

func (p *Pipeline) writeMarkdown(stem, content string) error {
	return os.WriteFile(filepath.Join(p.outDir, stem+".md"), []byte(content), 0o644)
}

// dedupMarkdown removes Markdown files with identical content, keeping
// the lexicographically first stem so reruns pick the same survivor.
// Removed files are marked duplicate_of in the crawl ledger.
func (p *Pipeline) dedupMarkdown() (int, error) {
	entries, err := os.ReadDir(p.outDir)
	if err != nil {
		return 0, err
	}

	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".md") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	firstByHash := make(map[string]string)
	duplicateOf := make(map[string]string)
	removed := 0
	for _, name := range names {
		data, err := os.ReadFile(filepath.Join(p.outDir, name))
		if err != nil {
			continue
		}
		hash := web.HashBytes(data)
		original, seen := firstByHash[hash]
		if !seen {
			firstByHash[hash] = name
			continue
		}
		if err := os.Remove(filepath.Join(p.outDir, name)); err != nil {
			logger.Warn("remove duplicate %s: %v", name, err)
			continue
		}
		duplicateOf[strings.TrimSuffix(name, ".md")] = strings.TrimSuffix(original, ".md")
		removed++
	}

	if len(duplicateOf) > 0 {
		err := p.store.UpdateLedger(func(ledger map[string]domain.MetadataEntry) {
			for id, originalID := range duplicateOf {
				if entry, ok := ledger[id]; ok {
					entry.DuplicateOf = originalID
					entry.Status = "duplicate_removed"
					ledger[id] = entry
				}
			}
		})
		if err != nil {
			return removed, err
		}
	}
	return removed, nil
}
