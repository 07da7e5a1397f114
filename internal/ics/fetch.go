package ics

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"sync"
	"time"

	appLog "daylayout/internal/log"
)

// Feed is a single ICS subscription.
type Feed struct {
	// ID is an internal identifier (e.g., config ICS ID).
	ID string
	// URL is the ICS endpoint.
	URL string
}

// Payload is the body of one feed, fresh or from the disk cache.
type Payload struct {
	Feed      Feed
	Body      []byte
	FromCache bool
}

// cacheMeta is stored next to the cached body as meta.json.
type cacheMeta struct {
	URL          string    `json:"url"`
	ETag         string    `json:"etag,omitempty"`
	LastModified string    `json:"last_modified,omitempty"`
	UpdatedAt    time.Time `json:"updated_at"`
}

const maxBodyBytes = 16 << 20

// Fetcher downloads feeds with conditional requests (ETag / Last-Modified)
// and keeps the last good body on disk. When the network or the server
// fails, the cached body is served instead.
//
// A Fetcher is safe for concurrent use. Fetches of the same feed are
// serialized so a reader never sees a cache entry being rewritten.
type Fetcher struct {
	client   *http.Client
	cacheDir string

	mu    sync.Mutex
	locks map[string]*sync.Mutex // by cache subdirectory
}

// NewFetcher creates a Fetcher caching under cacheDir, one subdirectory per
// feed URL. A nil client gets a 15s timeout client.
func NewFetcher(cacheDir string, client *http.Client) *Fetcher {
	if cacheDir == "" {
		cacheDir = "./var/ics-cache"
	}
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	return &Fetcher{client: client, cacheDir: cacheDir, locks: make(map[string]*sync.Mutex)}
}

func (f *Fetcher) lockFor(dir string) *sync.Mutex {
	f.mu.Lock()
	defer f.mu.Unlock()
	l, ok := f.locks[dir]
	if !ok {
		l = &sync.Mutex{}
		f.locks[dir] = l
	}
	return l
}

// FetchAll fetches every feed in order. Failed feeds are logged and their
// errors joined; the payloads of the others are still returned.
func (f *Fetcher) FetchAll(ctx context.Context, feeds []Feed) ([]Payload, error) {
	out := make([]Payload, 0, len(feeds))
	var errs []error

	for _, feed := range feeds {
		p, err := f.Fetch(ctx, feed)
		if err != nil {
			appLog.Error("ics fetch failed", err, "id", feed.ID, "url", RedactURL(feed.URL))
			errs = append(errs, fmt.Errorf("ics: feed %s: %w", feed.ID, err))
			continue
		}
		out = append(out, p)
	}

	return out, errors.Join(errs...)
}

// Fetch fetches one feed.
func (f *Fetcher) Fetch(ctx context.Context, feed Feed) (Payload, error) {
	if feed.URL == "" {
		return Payload{}, errors.New("feed URL is empty")
	}

	dir := f.cacheDirFor(feed.URL)
	l := f.lockFor(dir)
	l.Lock()
	defer l.Unlock()

	if err := os.MkdirAll(dir, 0o700); err != nil {
		return Payload{}, err
	}

	meta, _ := readMeta(dir)
	cached, _ := os.ReadFile(filepath.Join(dir, "body.ics"))

	fallback := func(cause error) (Payload, error) {
		if len(cached) == 0 {
			return Payload{}, cause
		}
		appLog.Warn("ics fetch failed, using cached body", "id", feed.ID, "url", RedactURL(feed.URL), "cause", cause)
		return Payload{Feed: feed, Body: cached, FromCache: true}, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, feed.URL, nil)
	if err != nil {
		return Payload{}, err
	}
	if meta.URL == feed.URL && len(cached) > 0 {
		if meta.ETag != "" {
			req.Header.Set("If-None-Match", meta.ETag)
		}
		if meta.LastModified != "" {
			req.Header.Set("If-Modified-Since", meta.LastModified)
		}
	}

	appLog.Debug("ics fetch start", "id", feed.ID, "url", RedactURL(feed.URL))

	resp, err := f.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return Payload{}, ctx.Err()
		}
		return fallback(err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
		if err != nil {
			return fallback(err)
		}
		meta := cacheMeta{
			URL:          feed.URL,
			ETag:         resp.Header.Get("ETag"),
			LastModified: resp.Header.Get("Last-Modified"),
		}
		if err := writeCache(dir, meta, body); err != nil {
			// The fresh body is still good; only the cache suffers.
			appLog.Error("ics cache save failed", err, "id", feed.ID)
		}
		appLog.Info("ics fetch success", "id", feed.ID, "url", RedactURL(feed.URL), "bytes", len(body))
		return Payload{Feed: feed, Body: body}, nil

	case http.StatusNotModified:
		if len(cached) == 0 {
			return Payload{}, errors.New("304 Not Modified without a cached body")
		}
		appLog.Debug("ics not modified", "id", feed.ID)
		return Payload{Feed: feed, Body: cached, FromCache: true}, nil

	default:
		return fallback(fmt.Errorf("unexpected status %s", resp.Status))
	}
}

func (f *Fetcher) cacheDirFor(rawURL string) string {
	sum := sha256.Sum256([]byte(rawURL))
	return filepath.Join(f.cacheDir, hex.EncodeToString(sum[:8]))
}

func readMeta(dir string) (cacheMeta, error) {
	var meta cacheMeta
	data, err := os.ReadFile(filepath.Join(dir, "meta.json"))
	if err != nil {
		return meta, err
	}
	err = json.Unmarshal(data, &meta)
	return meta, err
}

func writeCache(dir string, meta cacheMeta, body []byte) error {
	// Body first so meta never points at a missing body.
	if err := writeFileAtomic(dir, "body.ics", body); err != nil {
		return err
	}
	meta.UpdatedAt = time.Now().UTC()
	data, err := json.MarshalIndent(&meta, "", "  ")
	if err != nil {
		return err
	}
	return writeFileAtomic(dir, "meta.json", data)
}

// writeFileAtomic replaces dir/name through a temp file and rename, so
// readers see either the old or the new content.
func writeFileAtomic(dir, name string, data []byte) error {
	tmp, err := os.CreateTemp(dir, "."+name+"-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Chmod(0o600); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpName, filepath.Join(dir, name))
}

// RedactURL keeps only scheme and host of a feed URL for logging; private
// calendar URLs usually carry a secret in the path or query.
func RedactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "ics://...(redacted)"
	}
	return u.Scheme + "://" + u.Host + "/...(redacted)"
}
