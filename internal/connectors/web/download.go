package web

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/miabe-ai/campusgpt/internal/core/domain"
)

// contentTypeExt maps document media types to extensions for URLs whose
// path carries no usable suffix.
var contentTypeExt = map[string]string{
	"application/pdf":    ".pdf",
	"application/msword": ".doc",
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document": ".docx",
	"application/vnd.ms-excel": ".xls",
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet": ".xlsx",
	"application/vnd.ms-powerpoint":                                     ".ppt",
	"application/vnd.openxmlformats-officedocument.presentationml.presentation": ".pptx",
	"application/vnd.oasis.opendocument.text": ".odt",
	"application/rtf": ".rtf",
}

// downloadDocument streams a binary document to a temp file, hashing as
// it goes, then renames it into place under its URL-hash identifier.
// The temp-then-rename dance keeps half-written files out of the store.
func (c *Connector) downloadDocument(ctx context.Context, docURL string) (*domain.Artifact, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, docURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download %s: %w", docURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download %s: status %d", docURL, resp.StatusCode)
	}

	id := HashURL(docURL)
	ext := documentExtension(docURL, resp.Header.Get("Content-Type"))

	tmp, err := os.CreateTemp(c.store.DocumentDir(), ".download-*")
	if err != nil {
		return nil, fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	hasher := sha256.New()
	_, err = io.Copy(io.MultiWriter(tmp, hasher), io.LimitReader(resp.Body, maxBodySize))
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return nil, fmt.Errorf("stream %s: %w", docURL, err)
	}

	contentHash := hex.EncodeToString(hasher.Sum(nil))
	final := filepath.Join(c.store.DocumentDir(), id+ext)
	if err := os.Rename(tmpName, final); err != nil {
		return nil, fmt.Errorf("finalise download: %w", err)
	}

	return &domain.Artifact{
		URL:         docURL,
		ID:          id,
		ContentHash: contentHash,
		Kind:        domain.KindDocument,
		Extension:   ext,
	}, nil
}

// documentExtension picks the stored extension: URL path suffix first,
// then the response Content-Type, then a generic fallback.
func documentExtension(docURL, contentType string) string {
	if u, err := url.Parse(docURL); err == nil {
		ext := strings.ToLower(path.Ext(u.Path))
		for _, known := range domain.DocumentExtensions {
			if ext == known {
				return ext
			}
		}
	}
	if mediatype, _, err := mime.ParseMediaType(contentType); err == nil {
		if ext, ok := contentTypeExt[mediatype]; ok {
			return ext
		}
	}
	return ".bin"
}
