package web

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/miabe-ai/campusgpt/internal/core/domain"
)

func newTestConnector(t *testing.T, server *httptest.Server, opts Options) (*Connector, *Store) {
	t.Helper()
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)

	serverURL, err := url.Parse(server.URL)
	require.NoError(t, err)
	if opts.Domain == "" {
		opts.Domain = serverURL.Hostname()
	}
	if opts.Timeout == 0 {
		opts.Timeout = 5 * time.Second
	}
	if opts.RequestsPerSecond == 0 {
		opts.RequestsPerSecond = 1000
	}
	return New(store, opts), store
}

func TestCrawlFollowsLinksWithinDomain(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(`<html><body>
			<a href="/admissions">Admissions</a>
			<a href="https://elsewhere.example.org/out">External</a>
			<a href="#top">Anchor</a>
		</body></html>`))
	})
	mux.HandleFunc("/admissions", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(`<html><body>Inscriptions ouvertes</body></html>`))
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	c, store := newTestConnector(t, server, Options{Workers: 2, MaxPages: 50})
	stats, err := c.Crawl(context.Background(), []string{server.URL + "/"})
	require.NoError(t, err)

	assert.Equal(t, 2, stats.PagesScraped)
	assert.Equal(t, 2, stats.TotalPages)

	ledger, err := store.Ledger()
	require.NoError(t, err)
	assert.Len(t, ledger, 2)
}

func TestCrawlMaxPagesStopsDispatch(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(`<html><body><a href="/a">a</a><a href="/b">b</a></body></html>`))
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	c, _ := newTestConnector(t, server, Options{Workers: 1, MaxPages: 1})
	stats, err := c.Crawl(context.Background(), []string{server.URL + "/"})
	require.NoError(t, err)

	assert.Equal(t, 1, stats.TotalPages)
	assert.Equal(t, 2, stats.Queued, "discovered links stay queued once the cap is hit")
}

func TestCrawlSameContentTwiceIsSkipped(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/page", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(`<html><body>stable content</body></html>`))
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	pageURL := server.URL + "/page"

	c1, store := newTestConnector(t, server, Options{Workers: 1, MaxPages: 10})
	_, err := c1.Crawl(context.Background(), []string{pageURL})
	require.NoError(t, err)

	// second crawl over the same store: nothing changed, nothing rewritten
	c2 := New(store, Options{
		Domain:            c1.domain,
		Workers:           1,
		MaxPages:          10,
		RequestsPerSecond: 1000,
		Timeout:           5 * time.Second,
	})
	stats, err := c2.Crawl(context.Background(), []string{pageURL})
	require.NoError(t, err)

	assert.Equal(t, 0, stats.PagesScraped)
	assert.Equal(t, 1, stats.PagesSkipped)
}

func TestCrawlDuplicateContentRecordedNotStored(t *testing.T) {
	body := []byte(`<html><body>mirrored page</body></html>`)
	mux := http.NewServeMux()
	for _, p := range []string{"/one", "/two"} {
		mux.HandleFunc(p, func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "text/html")
			w.Write(body)
		})
	}
	server := httptest.NewServer(mux)
	defer server.Close()

	c, store := newTestConnector(t, server, Options{Workers: 1, MaxPages: 10})
	stats, err := c.Crawl(context.Background(), []string{server.URL + "/one", server.URL + "/two"})
	require.NoError(t, err)

	assert.Equal(t, 1, stats.PagesScraped)
	assert.Equal(t, 1, stats.PagesSkipped)

	ledger, err := store.Ledger()
	require.NoError(t, err)
	require.Len(t, ledger, 2)

	var originals, duplicates int
	for _, entry := range ledger {
		if entry.DuplicateOf == "" {
			originals++
		} else {
			duplicates++
			assert.Equal(t, HashURL(server.URL+"/one"), entry.DuplicateOf)
		}
	}
	assert.Equal(t, 1, originals)
	assert.Equal(t, 1, duplicates)

	// only the canonical copy hits disk
	files, err := os.ReadDir(store.HTMLDir())
	require.NoError(t, err)
	assert.Len(t, files, 1)
}

func TestCrawlDownloadsDocuments(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(`<html><body><a href="/guide.pdf">Guide</a></body></html>`))
	})
	mux.HandleFunc("/guide.pdf", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/pdf")
		w.Write([]byte("%PDF-1.4 fake"))
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	c, store := newTestConnector(t, server, Options{Workers: 1, MaxPages: 10})
	stats, err := c.Crawl(context.Background(), []string{server.URL + "/"})
	require.NoError(t, err)

	assert.Equal(t, 1, stats.DocumentsDownloaded)

	id := HashURL(server.URL + "/guide.pdf")
	data, err := os.ReadFile(filepath.Join(store.DocumentDir(), id+".pdf"))
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.4 fake", string(data))
}

func TestCrawlSlowSeedKeepsPoolAlive(t *testing.T) {
	var inFlight, peak atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		// long enough that idle workers would give up if an empty
		// frontier alone were the stop signal
		time.Sleep(2200 * time.Millisecond)
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(`<html><body>
			<a href="/a">a</a><a href="/b">b</a><a href="/c">c</a><a href="/d">d</a>
		</body></html>`))
	})
	for _, p := range []string{"/a", "/b", "/c", "/d"} {
		page := p
		mux.HandleFunc(page, func(w http.ResponseWriter, r *http.Request) {
			n := inFlight.Add(1)
			for {
				old := peak.Load()
				if n <= old || peak.CompareAndSwap(old, n) {
					break
				}
			}
			time.Sleep(200 * time.Millisecond)
			inFlight.Add(-1)
			w.Header().Set("Content-Type", "text/html")
			w.Write([]byte(`<html><body>Contenu de la page ` + page + `</body></html>`))
		})
	}
	server := httptest.NewServer(mux)
	defer server.Close()

	c, _ := newTestConnector(t, server, Options{Workers: 4, MaxPages: 10})
	stats, err := c.Crawl(context.Background(), []string{server.URL + "/"})
	require.NoError(t, err)

	assert.Equal(t, 5, stats.PagesScraped)
	assert.GreaterOrEqual(t, peak.Load(), int32(2),
		"workers idle during the slow seed fetch must still be around to share the links it produces")
}

func TestCrawlChangedDocumentReplacesOldExtension(t *testing.T) {
	var mu sync.Mutex
	ctype, body := "application/pdf", "%PDF-1.4 premiere version"
	mux := http.NewServeMux()
	mux.HandleFunc("/telecharger", func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		w.Header().Set("Content-Type", ctype)
		w.Write([]byte(body))
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	docURL := server.URL + "/telecharger"
	id := HashURL(docURL)

	c1, store := newTestConnector(t, server, Options{Workers: 1, MaxPages: 10})
	_, err := c1.Crawl(context.Background(), []string{docURL})
	require.NoError(t, err)
	_, err = os.Stat(filepath.Join(store.DocumentDir(), id+".pdf"))
	require.NoError(t, err)

	// the URL now serves different bytes under a Content-Type that maps
	// to the generic extension
	mu.Lock()
	ctype, body = "application/octet-stream", "nouvelle version binaire"
	mu.Unlock()

	c2 := New(store, Options{
		Domain:            c1.domain,
		Workers:           1,
		MaxPages:          10,
		RequestsPerSecond: 1000,
		Timeout:           5 * time.Second,
	})
	_, err = c2.Crawl(context.Background(), []string{docURL})
	require.NoError(t, err)

	_, err = os.Stat(filepath.Join(store.DocumentDir(), id+".pdf"))
	assert.True(t, os.IsNotExist(err), "the stale artifact under the old extension must be removed")
	data, err := os.ReadFile(filepath.Join(store.DocumentDir(), id+".bin"))
	require.NoError(t, err)
	assert.Equal(t, "nouvelle version binaire", string(data))
}

func TestClassifyURL(t *testing.T) {
	tests := []struct {
		url  string
		want domain.ArtifactKind
	}{
		{"https://univ.example.org/page", domain.KindHTML},
		{"https://univ.example.org/doc.pdf", domain.KindDocument},
		{"https://univ.example.org/doc.PDF?v=2", domain.KindDocument},
		{"https://univ.example.org/calendrier.xlsx", domain.KindDocument},
		{"https://univ.example.org/pdf-guide", domain.KindHTML},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, classifyURL(tt.url), tt.url)
	}
}

func TestInScope(t *testing.T) {
	assert.True(t, inScope("https://univ-lome.tg/fr", "univ-lome.tg"))
	assert.True(t, inScope("https://www.univ-lome.tg/fr", "univ-lome.tg"))
	assert.False(t, inScope("https://autre-univ.tg/fr", "univ-lome.tg"))
	assert.False(t, inScope("https://evil-univ-lome.tg/fr", "univ-lome.tg"))
	assert.True(t, inScope("https://anything.example.org/", ""))
}

func TestRepairLedgerBacksUpCorruptFile(t *testing.T) {
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(store.ledgerPath(), []byte("{not json"), 0o644))

	repaired, err := store.RepairLedger()
	require.NoError(t, err)
	assert.True(t, repaired)

	ledger, err := store.Ledger()
	require.NoError(t, err)
	assert.Empty(t, ledger)

	backups, err := filepath.Glob(store.ledgerPath() + ".backup_*")
	require.NoError(t, err)
	assert.Len(t, backups, 1)
}
