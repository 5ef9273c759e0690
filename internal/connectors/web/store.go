package web

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/miabe-ai/campusgpt/internal/core/domain"
	"github.com/miabe-ai/campusgpt/internal/logger"
)

// Artifact store layout under the data directory.
const (
	htmlDir        = "html_raw"
	htmlHashDir    = "html_hashes"
	documentDir    = "documents"
	docHashDir     = "document_hashes"
	corruptedDir   = "corrupted"
	ledgerFile     = "metadata.json"
	hashSidecarExt = ".hash"
)

// Sidecar I/O retry bounds. Concurrent workers may briefly contend on
// the same hash file; the value being written is immutable once
// computed, so retried writers converge to the same result.
const (
	sidecarAttempts = 5
	sidecarRetryMin = 100 * time.Millisecond
	sidecarRetryMax = 500 * time.Millisecond
)

// Store is the on-disk artifact store: raw artifacts, their .hash
// sidecars and the JSON metadata ledger. All ledger mutations go
// through one coarse lock; writes are small and rare next to fetches.
type Store struct {
	root string

	ledgerMu sync.Mutex
}

// NewStore creates the directory layout under root.
func NewStore(root string) (*Store, error) {
	for _, dir := range []string{htmlDir, htmlHashDir, documentDir, docHashDir} {
		if err := os.MkdirAll(filepath.Join(root, dir), 0o755); err != nil {
			return nil, fmt.Errorf("create store layout: %w", err)
		}
	}
	s := &Store{root: root}
	if _, err := os.Stat(s.ledgerPath()); os.IsNotExist(err) {
		if err := s.writeLedger(map[string]domain.MetadataEntry{}); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// HashURL returns the SHA-256 hex digest of a URL, used as the stable
// on-disk identifier for whatever that URL serves.
func HashURL(url string) string {
	sum := sha256.Sum256([]byte(url))
	return hex.EncodeToString(sum[:])
}

// HashBytes returns the SHA-256 hex digest of content bytes.
func HashBytes(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

func (s *Store) ledgerPath() string { return filepath.Join(s.root, ledgerFile) }

func (s *Store) artifactDir(kind domain.ArtifactKind) string {
	if kind == domain.KindDocument {
		return filepath.Join(s.root, documentDir)
	}
	return filepath.Join(s.root, htmlDir)
}

func (s *Store) hashDir(kind domain.ArtifactKind) string {
	if kind == domain.KindDocument {
		return filepath.Join(s.root, docHashDir)
	}
	return filepath.Join(s.root, htmlHashDir)
}

// KnownContentHashes returns the set of every content hash recorded in
// a sidecar, across both artifact kinds. This backs the global tier of
// the dedup policy.
func (s *Store) KnownContentHashes() map[string]bool {
	known := make(map[string]bool)
	for _, dir := range []string{filepath.Join(s.root, htmlHashDir), filepath.Join(s.root, docHashDir)} {
		entries, err := os.ReadDir(dir)
		if err != nil {
			continue
		}
		for _, e := range entries {
			if e.IsDir() || !strings.HasSuffix(e.Name(), hashSidecarExt) {
				continue
			}
			data, err := os.ReadFile(filepath.Join(dir, e.Name()))
			if err != nil {
				continue
			}
			if h := strings.TrimSpace(string(data)); h != "" {
				known[h] = true
			}
		}
	}
	return known
}

// ContentHash reads the sidecar for an identifier, returning "" when
// the identifier has never been stored.
func (s *Store) ContentHash(id string, kind domain.ArtifactKind) string {
	path := filepath.Join(s.hashDir(kind), id+hashSidecarExt)
	var data []byte
	var err error
	for attempt := 0; attempt < sidecarAttempts; attempt++ {
		data, err = os.ReadFile(path)
		if err == nil || os.IsNotExist(err) {
			break
		}
		sleepJitter()
	}
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}

// WriteContentHash records the sidecar for an identifier.
func (s *Store) WriteContentHash(id, contentHash string, kind domain.ArtifactKind) {
	path := filepath.Join(s.hashDir(kind), id+hashSidecarExt)
	for attempt := 0; attempt < sidecarAttempts; attempt++ {
		if err := os.WriteFile(path, []byte(contentHash), 0o644); err == nil {
			return
		}
		sleepJitter()
	}
	logger.Warn("giving up writing sidecar for %s", id)
}

// RemoveArtifact deletes an artifact and its sidecar. Used when a URL
// starts serving different content: the old version is replaced, not
// kept alongside.
func (s *Store) RemoveArtifact(id string, kind domain.ArtifactKind) {
	if kind == domain.KindDocument {
		matches, _ := filepath.Glob(filepath.Join(s.artifactDir(kind), id+".*"))
		for _, m := range matches {
			removeWithRetry(m)
		}
	} else {
		removeWithRetry(filepath.Join(s.artifactDir(kind), id+".html"))
	}
	removeWithRetry(filepath.Join(s.hashDir(kind), id+hashSidecarExt))
}

// RemoveOtherDocuments deletes document artifacts for an identifier
// whose extension differs from keepExt. A URL re-served with a new
// extension would otherwise leave its old artifact behind.
func (s *Store) RemoveOtherDocuments(id, keepExt string) {
	matches, _ := filepath.Glob(filepath.Join(s.DocumentDir(), id+".*"))
	for _, m := range matches {
		if strings.EqualFold(filepath.Ext(m), keepExt) {
			continue
		}
		removeWithRetry(m)
	}
}

// WriteHTML persists an HTML artifact.
func (s *Store) WriteHTML(id string, content []byte) error {
	return os.WriteFile(filepath.Join(s.root, htmlDir, id+".html"), content, 0o644)
}

// HTMLDir returns the raw HTML directory.
func (s *Store) HTMLDir() string { return filepath.Join(s.root, htmlDir) }

// DocumentDir returns the binary document directory.
func (s *Store) DocumentDir() string { return filepath.Join(s.root, documentDir) }

// Root returns the store root directory.
func (s *Store) Root() string { return s.root }

// Ledger returns a copy of the metadata ledger.
func (s *Store) Ledger() (map[string]domain.MetadataEntry, error) {
	s.ledgerMu.Lock()
	defer s.ledgerMu.Unlock()
	return s.readLedger()
}

// AddLedgerEntry records a ledger row under a read-modify-write lock.
func (s *Store) AddLedgerEntry(id string, entry domain.MetadataEntry) error {
	s.ledgerMu.Lock()
	defer s.ledgerMu.Unlock()

	ledger, err := s.readLedger()
	if err != nil {
		return err
	}
	ledger[id] = entry
	return s.writeLedger(ledger)
}

// UpdateLedger applies fn to the ledger under the lock. fn mutates the
// map in place.
func (s *Store) UpdateLedger(fn func(map[string]domain.MetadataEntry)) error {
	s.ledgerMu.Lock()
	defer s.ledgerMu.Unlock()

	ledger, err := s.readLedger()
	if err != nil {
		return err
	}
	fn(ledger)
	return s.writeLedger(ledger)
}

// RepairLedger backs up and resets an unparseable ledger file instead
// of aborting the crawl. Returns true when a repair happened.
func (s *Store) RepairLedger() (bool, error) {
	s.ledgerMu.Lock()
	defer s.ledgerMu.Unlock()

	if _, err := s.readLedger(); err == nil {
		return false, nil
	}
	backup := s.ledgerPath() + ".backup_" + time.Now().Format("20060102_150405")
	if err := os.Rename(s.ledgerPath(), backup); err != nil {
		return false, fmt.Errorf("back up corrupt ledger: %w", err)
	}
	logger.Warn("ledger unparseable, backed up to %s", backup)
	return true, s.writeLedger(map[string]domain.MetadataEntry{})
}

func (s *Store) readLedger() (map[string]domain.MetadataEntry, error) {
	data, err := os.ReadFile(s.ledgerPath())
	if os.IsNotExist(err) {
		return map[string]domain.MetadataEntry{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read ledger: %w", err)
	}
	ledger := make(map[string]domain.MetadataEntry)
	if err := json.Unmarshal(data, &ledger); err != nil {
		return nil, fmt.Errorf("parse ledger: %w", err)
	}
	return ledger, nil
}

func (s *Store) writeLedger(ledger map[string]domain.MetadataEntry) error {
	data, err := json.MarshalIndent(ledger, "", "  ")
	if err != nil {
		return fmt.Errorf("encode ledger: %w", err)
	}
	if err := os.WriteFile(s.ledgerPath(), data, 0o644); err != nil {
		return fmt.Errorf("write ledger: %w", err)
	}
	return nil
}

func removeWithRetry(path string) {
	for attempt := 0; attempt < sidecarAttempts; attempt++ {
		err := os.Remove(path)
		if err == nil || os.IsNotExist(err) {
			return
		}
		sleepJitter()
	}
}

func sleepJitter() {
	span := sidecarRetryMax - sidecarRetryMin
	time.Sleep(sidecarRetryMin + time.Duration(rand.Int64N(int64(span))))
}
