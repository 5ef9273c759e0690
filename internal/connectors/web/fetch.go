package web

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"path"
	"strings"

	"golang.org/x/net/html"

	"github.com/miabe-ai/campusgpt/internal/core/domain"
)

// maxBodySize bounds how much of a response is read into memory.
const maxBodySize = 64 << 20

// fetchResult is what one dequeued URL yields: the page bytes for HTML,
// or a kind classification that routes the URL to the downloader.
type fetchResult struct {
	kind  domain.ArtifactKind
	body  []byte
	links []string
}

// classifyURL decides the artifact kind from the URL path alone, before
// any request is made. Used to skip fetching documents as pages.
func classifyURL(rawURL string) domain.ArtifactKind {
	u, err := url.Parse(rawURL)
	if err != nil {
		return domain.KindHTML
	}
	ext := strings.ToLower(path.Ext(u.Path))
	for _, known := range domain.DocumentExtensions {
		if ext == known {
			return domain.KindDocument
		}
	}
	return domain.KindHTML
}

// fetchPage retrieves a URL expected to be an HTML page. A Content-Type
// that turns out to be a document re-routes the URL to the downloader
// instead of discarding it.
func (c *Connector) fetchPage(ctx context.Context, pageURL string) (*fetchResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", pageURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch %s: status %d", pageURL, resp.StatusCode)
	}

	ctype := resp.Header.Get("Content-Type")
	if mediatype, _, err := mime.ParseMediaType(ctype); err == nil && !strings.HasPrefix(mediatype, "text/html") {
		if !strings.HasPrefix(mediatype, "text/") {
			return &fetchResult{kind: domain.KindDocument}, nil
		}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", pageURL, err)
	}

	links := extractLinks(body, resp.Request.URL)
	return &fetchResult{kind: domain.KindHTML, body: body, links: links}, nil
}

// extractLinks walks the parsed document and resolves every href
// against the final request URL. Fragments are stripped so anchors on
// the same page do not multiply the frontier.
func extractLinks(body []byte, base *url.URL) []string {
	doc, err := html.Parse(strings.NewReader(string(body)))
	if err != nil {
		return nil
	}

	seen := make(map[string]bool)
	var links []string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "a" {
			for _, attr := range n.Attr {
				if attr.Key != "href" {
					continue
				}
				resolved := resolveLink(base, attr.Val)
				if resolved != "" && !seen[resolved] {
					seen[resolved] = true
					links = append(links, resolved)
				}
			}
		}
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			walk(child)
		}
	}
	walk(doc)
	return links
}

func resolveLink(base *url.URL, href string) string {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "#") ||
		strings.HasPrefix(href, "mailto:") || strings.HasPrefix(href, "tel:") ||
		strings.HasPrefix(href, "javascript:") {
		return ""
	}
	ref, err := url.Parse(href)
	if err != nil {
		return ""
	}
	resolved := base.ResolveReference(ref)
	if resolved.Scheme != "http" && resolved.Scheme != "https" {
		return ""
	}
	resolved.Fragment = ""
	return resolved.String()
}

// originalName derives a human-readable name from a URL: the last path
// segment, falling back to the host for root URLs.
func originalName(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	segment := path.Base(strings.TrimSuffix(u.Path, "/"))
	if segment == "" || segment == "." || segment == "/" {
		return u.Hostname()
	}
	return segment
}

// inScope reports whether a URL belongs to the configured crawl domain.
// Subdomains of the configured domain are in scope.
func inScope(rawURL, domainScope string) bool {
	if domainScope == "" {
		return true
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	host := strings.ToLower(u.Hostname())
	scope := strings.ToLower(domainScope)
	return host == scope || strings.HasSuffix(host, "."+scope)
}
