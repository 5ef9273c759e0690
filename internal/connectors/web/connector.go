// Package web implements the content acquisition engine: a polite,
// domain-scoped crawler that stores raw HTML pages and binary
// documents under content-addressed names with change detection.
package web

import (
	"context"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/miabe-ai/campusgpt/internal/core/domain"
	"github.com/miabe-ai/campusgpt/internal/logger"
)

// Connector crawls a single institutional domain.
type Connector struct {
	store     *Store
	client    httpDoer
	userAgent string

	domain   string
	maxPages int
	workers  int
	limiter  *rate.Limiter

	// mu guards the frontier, visited set and counters shared by the
	// worker pool.
	mu       sync.Mutex
	frontier []string
	visited  map[string]bool
	stats    domain.CrawlStats
	known    map[string]bool
	inflight int
}

type httpDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Options configures a Connector.
type Options struct {
	Domain            string
	MaxPages          int
	Workers           int
	RequestsPerSecond float64
	Timeout           time.Duration
	UserAgent         string
}

// New builds a Connector over an existing store.
func New(store *Store, opts Options) *Connector {
	if opts.Workers <= 0 {
		opts.Workers = 8
	}
	if opts.MaxPages <= 0 {
		opts.MaxPages = 2000
	}
	if opts.RequestsPerSecond <= 0 {
		opts.RequestsPerSecond = 1.0
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 20 * time.Second
	}
	if opts.UserAgent == "" {
		opts.UserAgent = "campusgpt-crawler/1.0"
	}
	return &Connector{
		store:     store,
		client:    &http.Client{Timeout: opts.Timeout},
		userAgent: opts.UserAgent,
		domain:    opts.Domain,
		maxPages:  opts.MaxPages,
		workers:   opts.Workers,
		limiter:   rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), 1),
		visited:   make(map[string]bool),
	}
}

// Crawl runs the worker pool over the seed URLs until the frontier
// drains or maxPages URLs have been dispatched. It always returns
// stats, even when the context is cancelled mid-crawl.
func (c *Connector) Crawl(ctx context.Context, seeds []string) (domain.CrawlStats, error) {
	start := time.Now()

	if repaired, err := c.store.RepairLedger(); err != nil {
		return domain.CrawlStats{}, err
	} else if repaired {
		logger.Info("metadata ledger was reset before crawl")
	}

	c.mu.Lock()
	c.known = c.store.KnownContentHashes()
	for _, seed := range seeds {
		if inScope(seed, c.domain) && !c.visited[seed] {
			c.visited[seed] = true
			c.frontier = append(c.frontier, seed)
		}
	}
	c.mu.Unlock()

	var wg sync.WaitGroup
	for i := 0; i < c.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.work(ctx)
		}()
	}
	wg.Wait()

	c.mu.Lock()
	stats := c.stats
	c.mu.Unlock()
	stats.Duration = time.Since(start)
	logger.Info("crawl done: %d pages, %d documents, %d skipped, %d errors in %s",
		stats.PagesScraped, stats.DocumentsDownloaded, stats.PagesSkipped, stats.Errors, stats.Duration.Round(time.Second))
	return stats, ctx.Err()
}

// work pulls URLs until the frontier is empty and no other worker has
// a fetch in flight that could still produce links. An empty frontier
// alone is not a stop signal: a single slow fetch must not shrink the
// pool for the rest of the crawl.
func (c *Connector) work(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		url, ok := c.dequeue()
		if !ok {
			if c.drained() {
				return
			}
			time.Sleep(50 * time.Millisecond)
			continue
		}

		if err := c.limiter.Wait(ctx); err != nil {
			c.finish()
			return
		}
		c.process(ctx, url)
		c.finish()
	}
}

func (c *Connector) dequeue() (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.frontier) == 0 || c.stats.TotalPages >= c.maxPages {
		return "", false
	}
	url := c.frontier[0]
	c.frontier = c.frontier[1:]
	c.stats.TotalPages++
	c.stats.Queued = len(c.frontier)
	c.inflight++
	return url, true
}

// finish marks a dequeued URL as fully processed.
func (c *Connector) finish() {
	c.mu.Lock()
	c.inflight--
	c.mu.Unlock()
}

// drained reports whether no work remains: nothing queued (or the
// dispatch cap reached) and no fetch in flight that could still
// enqueue links.
func (c *Connector) drained() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.inflight > 0 {
		return false
	}
	return len(c.frontier) == 0 || c.stats.TotalPages >= c.maxPages
}

func (c *Connector) enqueue(links []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, link := range links {
		if !inScope(link, c.domain) || c.visited[link] {
			continue
		}
		c.visited[link] = true
		c.frontier = append(c.frontier, link)
	}
	c.stats.Queued = len(c.frontier)
}

func (c *Connector) process(ctx context.Context, pageURL string) {
	if classifyURL(pageURL) == domain.KindDocument {
		c.handleDocument(ctx, pageURL)
		return
	}

	result, err := c.fetchPage(ctx, pageURL)
	if err != nil {
		logger.Warn("%v", err)
		c.countError()
		return
	}
	if result.kind == domain.KindDocument {
		c.handleDocument(ctx, pageURL)
		return
	}

	c.enqueue(result.links)
	c.storeHTML(pageURL, result.body)
}

// storeHTML applies the two-tier dedup policy to a fetched page:
// unchanged content for the same URL is skipped, content already seen
// under another URL is recorded as a duplicate without storing bytes,
// and changed content replaces the previous version.
func (c *Connector) storeHTML(pageURL string, body []byte) {
	id := HashURL(pageURL)
	contentHash := HashBytes(body)

	previous := c.store.ContentHash(id, domain.KindHTML)
	if previous == contentHash {
		c.countSkip()
		return
	}

	if originalID, dup := c.recordHash(contentHash, id); dup {
		c.countSkip()
		if err := c.store.AddLedgerEntry(id, domain.MetadataEntry{
			OriginalName: originalName(pageURL),
			URL:          pageURL,
			ContentHash:  contentHash,
			DuplicateOf:  originalID,
			Timestamp:    time.Now().UTC(),
		}); err != nil {
			logger.Warn("ledger write for %s: %v", pageURL, err)
		}
		return
	}

	if previous != "" {
		c.store.RemoveArtifact(id, domain.KindHTML)
	}
	if err := c.store.WriteHTML(id, body); err != nil {
		logger.Warn("store %s: %v", pageURL, err)
		c.countError()
		return
	}
	c.store.WriteContentHash(id, contentHash, domain.KindHTML)

	if err := c.store.AddLedgerEntry(id, domain.MetadataEntry{
		OriginalName: originalName(pageURL),
		URL:          pageURL,
		ContentHash:  contentHash,
		Timestamp:    time.Now().UTC(),
	}); err != nil {
		logger.Warn("ledger write for %s: %v", pageURL, err)
	}

	c.mu.Lock()
	c.stats.PagesScraped++
	c.mu.Unlock()
	logger.Debug("stored page %s as %s", pageURL, id)
}

func (c *Connector) handleDocument(ctx context.Context, docURL string) {
	id := HashURL(docURL)
	artifact, err := c.downloadDocument(ctx, docURL)
	if err != nil {
		logger.Warn("%v", err)
		c.countError()
		return
	}

	// The download already replaced the file in place; identical bytes
	// mean nothing else needs to change.
	previous := c.store.ContentHash(id, domain.KindDocument)
	if previous == artifact.ContentHash {
		c.countSkip()
		return
	}

	if originalID, dup := c.recordHash(artifact.ContentHash, id); dup {
		c.store.RemoveArtifact(id, domain.KindDocument)
		c.countSkip()
		if err := c.store.AddLedgerEntry(id, domain.MetadataEntry{
			OriginalName: originalName(docURL),
			URL:          docURL,
			ContentHash:  artifact.ContentHash,
			DuplicateOf:  originalID,
			Timestamp:    time.Now().UTC(),
		}); err != nil {
			logger.Warn("ledger write for %s: %v", docURL, err)
		}
		return
	}

	if previous != "" {
		c.store.RemoveOtherDocuments(id, artifact.Extension)
	}
	c.store.WriteContentHash(id, artifact.ContentHash, domain.KindDocument)
	if err := c.store.AddLedgerEntry(id, domain.MetadataEntry{
		OriginalName: originalName(docURL),
		URL:          docURL,
		ContentHash:  artifact.ContentHash,
		Timestamp:    time.Now().UTC(),
	}); err != nil {
		logger.Warn("ledger write for %s: %v", docURL, err)
	}

	c.mu.Lock()
	c.stats.DocumentsDownloaded++
	c.mu.Unlock()
	logger.Debug("stored document %s as %s%s", docURL, id, artifact.Extension)
}

// recordHash claims a content hash for an identifier. When the hash is
// already claimed the claimer's identifier is returned with dup=true.
func (c *Connector) recordHash(contentHash, id string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.known[contentHash] {
		return c.hashOwner(contentHash), true
	}
	c.known[contentHash] = true
	return "", false
}

// hashOwner finds which stored identifier owns a content hash by
// consulting the ledger. Best effort: an empty owner still marks the
// entry as a duplicate.
func (c *Connector) hashOwner(contentHash string) string {
	ledger, err := c.store.Ledger()
	if err != nil {
		return ""
	}
	for id, entry := range ledger {
		if entry.ContentHash == contentHash && entry.DuplicateOf == "" {
			return id
		}
	}
	return ""
}

func (c *Connector) countSkip() {
	c.mu.Lock()
	c.stats.PagesSkipped++
	c.mu.Unlock()
}

func (c *Connector) countError() {
	c.mu.Lock()
	c.stats.Errors++
	c.mu.Unlock()
}
