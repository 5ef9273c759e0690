package web

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"

	"github.com/miabe-ai/campusgpt/internal/core/domain"
	"github.com/miabe-ai/campusgpt/internal/logger"
)

// SweepReport summarises a post-crawl cleanup pass.
type SweepReport struct {
	// Corrupted is the number of artifacts quarantined for failing the
	// signature check.
	Corrupted int

	// Orphans is the number of dangling sidecars removed.
	Orphans int
}

// zipSignature extensions share the PK container format.
var zipExtensions = map[string]bool{
	".docx": true, ".xlsx": true, ".pptx": true,
	".odt": true, ".ods": true, ".odp": true,
}

// Sweep quarantines corrupted artifacts and removes dangling hash
// sidecars. HTML artifacts that turn out to be binary (a document
// misdetected as a page) are moved out so they never reach the
// Markdown normaliser; documents are checked against the signature
// their extension promises. Run after a crawl so partial downloads
// from killed runs never reach the normaliser either.
func (s *Store) Sweep() (SweepReport, error) {
	var report SweepReport

	htmlEntries, err := os.ReadDir(s.HTMLDir())
	if err != nil {
		return report, err
	}
	for _, e := range htmlEntries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".html") {
			continue
		}
		if !looksBinary(filepath.Join(s.HTMLDir(), e.Name())) {
			continue
		}
		if err := s.quarantine(e.Name(), domain.KindHTML); err != nil {
			logger.Warn("quarantine %s: %v", e.Name(), err)
			continue
		}
		report.Corrupted++
	}

	docEntries, err := os.ReadDir(s.DocumentDir())
	if err != nil {
		return report, err
	}
	for _, e := range docEntries {
		if e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		if looksIntact(filepath.Join(s.DocumentDir(), e.Name())) {
			continue
		}
		if err := s.quarantine(e.Name(), domain.KindDocument); err != nil {
			logger.Warn("quarantine %s: %v", e.Name(), err)
			continue
		}
		report.Corrupted++
	}

	report.Orphans = s.removeOrphanSidecars()
	if report.Corrupted > 0 || report.Orphans > 0 {
		logger.Info("sweep: %d corrupted, %d orphan sidecars", report.Corrupted, report.Orphans)
	}
	return report, nil
}

// looksBinary reports whether a stored HTML artifact actually holds
// binary content: a PDF or zip container served with a text/html
// Content-Type, or truncated garbage.
func looksBinary(path string) bool {
	head, ok := readHead(path)
	if !ok {
		return false
	}
	if bytes.HasPrefix(head, []byte("%PDF")) || bytes.HasPrefix(head, []byte("PK")) {
		return true
	}
	return nonPrintable(head) > 5
}

// looksIntact checks the file header against what the extension
// promises. PDF and zip-container formats have fixed signatures; for
// everything else the first bytes just need to look like data rather
// than an HTML error page or truncated garbage.
func looksIntact(path string) bool {
	head, ok := readHead(path)
	if !ok {
		return false
	}
	ext := strings.ToLower(filepath.Ext(path))
	switch {
	case ext == ".pdf":
		return bytes.HasPrefix(head, []byte("%PDF"))
	case zipExtensions[ext]:
		return bytes.HasPrefix(head, []byte("PK"))
	default:
		return nonPrintable(head) <= 5
	}
}

// readHead returns the first 10 bytes of a file. ok is false for an
// unreadable or empty file.
func readHead(path string) ([]byte, bool) {
	f, err := os.Open(path)
	if err != nil {
		return nil, false
	}
	defer f.Close()

	head := make([]byte, 10)
	n, _ := f.Read(head)
	return head[:n], n > 0
}

func nonPrintable(head []byte) int {
	count := 0
	for _, b := range head {
		if b < 0x09 || (b > 0x0d && b < 0x20) {
			count++
		}
	}
	return count
}

// quarantine moves an artifact into the corrupted directory, drops its
// sidecar and marks its ledger entry.
func (s *Store) quarantine(name string, kind domain.ArtifactKind) error {
	if err := os.MkdirAll(filepath.Join(s.root, corruptedDir), 0o755); err != nil {
		return err
	}
	src := filepath.Join(s.artifactDir(kind), name)
	dst := filepath.Join(s.root, corruptedDir, name)
	if err := os.Rename(src, dst); err != nil {
		return err
	}

	id := strings.TrimSuffix(name, filepath.Ext(name))
	removeWithRetry(filepath.Join(s.hashDir(kind), id+hashSidecarExt))

	return s.UpdateLedger(func(ledger map[string]domain.MetadataEntry) {
		if entry, ok := ledger[id]; ok {
			entry.Status = "corrupted"
			ledger[id] = entry
		}
	})
}

// removeOrphanSidecars drops sidecars whose artifact no longer exists.
func (s *Store) removeOrphanSidecars() int {
	removed := 0
	for _, kind := range []domain.ArtifactKind{domain.KindHTML, domain.KindDocument} {
		entries, err := os.ReadDir(s.hashDir(kind))
		if err != nil {
			continue
		}
		for _, e := range entries {
			if e.IsDir() || !strings.HasSuffix(e.Name(), hashSidecarExt) {
				continue
			}
			id := strings.TrimSuffix(e.Name(), hashSidecarExt)
			if s.hasArtifact(id, kind) {
				continue
			}
			removeWithRetry(filepath.Join(s.hashDir(kind), e.Name()))
			removed++
		}
	}
	return removed
}

func (s *Store) hasArtifact(id string, kind domain.ArtifactKind) bool {
	if kind == domain.KindHTML {
		_, err := os.Stat(filepath.Join(s.HTMLDir(), id+".html"))
		return err == nil
	}
	matches, _ := filepath.Glob(filepath.Join(s.DocumentDir(), id+".*"))
	return len(matches) > 0
}
