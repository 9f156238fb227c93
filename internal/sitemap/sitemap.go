// Package sitemap discovers a site's pages from robots.txt and sitemap XML.
//
// Discovery is best effort. The crawler treats any error as "no sitemap" and
// falls back to following links.
package sitemap

import (
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/temoto/robotstxt"
)

// ErrNoSitemap is returned when neither robots.txt nor /sitemap.xml yields a
// parsable sitemap.
var ErrNoSitemap = errors.New("no sitemap found")

const (
	// defaultMaxURLs caps the number of page URLs returned by Discover.
	defaultMaxURLs = 500

	// defaultMaxDepth bounds sitemap index recursion.
	defaultMaxDepth = 2

	// maxDocumentSize bounds one sitemap document.
	maxDocumentSize = 10 << 20
)

type urlset struct {
	URLs []struct {
		Loc string `xml:"loc"`
	} `xml:"url"`
}

type sitemapIndex struct {
	Sitemaps []struct {
		Loc string `xml:"loc"`
	} `xml:"sitemap"`
}

// Fetcher discovers sitemap URLs over HTTP.
type Fetcher struct {
	client    *http.Client
	userAgent string
	maxURLs   int
	maxDepth  int
	logger    *slog.Logger
}

// Option configures a Fetcher.
type Option func(*Fetcher)

// WithHTTPClient sets the HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(f *Fetcher) {
		f.client = client
	}
}

// WithUserAgent sets the User-Agent header and the robots.txt group used.
func WithUserAgent(ua string) Option {
	return func(f *Fetcher) {
		f.userAgent = ua
	}
}

// WithMaxURLs caps the number of URLs returned.
func WithMaxURLs(n int) Option {
	return func(f *Fetcher) {
		if n > 0 {
			f.maxURLs = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(f *Fetcher) {
		f.logger = logger
	}
}

// New creates a Fetcher.
func New(opts ...Option) *Fetcher {
	f := &Fetcher{
		client:   &http.Client{Timeout: 15 * time.Second},
		maxURLs:  defaultMaxURLs,
		maxDepth: defaultMaxDepth,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Discover returns the page URLs listed by the sitemaps of rootURL's origin.
//
// Sitemaps named by robots.txt Sitemap lines are read first; when there are
// none, /sitemap.xml is tried. Sitemap indexes are followed up to a fixed
// depth. URLs are returned as listed, deduplicated, and capped; filtering to
// the scanned site is the caller's job.
func (f *Fetcher) Discover(ctx context.Context, rootURL string) ([]string, error) {
	root, err := url.Parse(rootURL)
	if err != nil || root.Host == "" {
		return nil, fmt.Errorf("invalid root url %q", rootURL)
	}
	origin := root.Scheme + "://" + root.Host

	locations := f.robotsSitemaps(ctx, origin)
	if len(locations) == 0 {
		locations = []string{origin + "/sitemap.xml"}
	}

	d := &discovery{f: f, seen: make(map[string]bool), visited: make(map[string]bool)}
	var lastErr error
	for _, loc := range locations {
		if err := d.walk(ctx, loc, 0); err != nil {
			if ctx.Err() != nil {
				return d.urls, ctx.Err()
			}
			f.logger.Debug("sitemap unreadable", "url", loc, "error", err)
			lastErr = err
		}
		if d.full() {
			break
		}
	}
	if len(d.urls) == 0 {
		if lastErr != nil {
			return nil, fmt.Errorf("%w: %w", ErrNoSitemap, lastErr)
		}
		return nil, ErrNoSitemap
	}
	return d.urls, nil
}

// robotsSitemaps returns the Sitemap lines of robots.txt, or nil.
func (f *Fetcher) robotsSitemaps(ctx context.Context, origin string) []string {
	resp, err := f.get(ctx, origin+"/robots.txt")
	if err != nil {
		f.logger.Debug("robots.txt unavailable", "url", origin, "error", err)
		return nil
	}
	defer resp.Body.Close()

	data, err := robotstxt.FromResponse(resp)
	if err != nil {
		f.logger.Debug("robots.txt unparsable", "url", origin, "error", err)
		return nil
	}
	return data.Sitemaps
}

func (f *Fetcher) get(ctx context.Context, target string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if f.userAgent != "" {
		req.Header.Set("User-Agent", f.userAgent)
	}
	return f.client.Do(req)
}

type discovery struct {
	f       *Fetcher
	urls    []string
	seen    map[string]bool
	visited map[string]bool
}

func (d *discovery) full() bool {
	return len(d.urls) >= d.f.maxURLs
}

func (d *discovery) walk(ctx context.Context, loc string, depth int) error {
	if d.visited[loc] || d.full() {
		return nil
	}
	d.visited[loc] = true

	body, err := d.fetch(ctx, loc)
	if err != nil {
		return err
	}
	pages, children, err := Parse(bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("parse %s: %w", loc, err)
	}
	for _, p := range pages {
		if d.full() {
			return nil
		}
		if !d.seen[p] {
			d.seen[p] = true
			d.urls = append(d.urls, p)
		}
	}
	if depth >= d.f.maxDepth {
		return nil
	}
	for _, child := range children {
		if err := d.walk(ctx, child, depth+1); err != nil {
			if ctx.Err() != nil {
				return err
			}
			d.f.logger.Debug("nested sitemap unreadable", "url", child, "error", err)
		}
	}
	return nil
}

func (d *discovery) fetch(ctx context.Context, loc string) ([]byte, error) {
	resp, err := d.f.get(ctx, loc)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%s: status %d", loc, resp.StatusCode)
	}
	return io.ReadAll(io.LimitReader(resp.Body, maxDocumentSize))
}

// Parse reads a sitemap document. It returns the page locations of a urlset
// or the child sitemap locations of a sitemap index.
func Parse(r io.Reader) (pages, sitemaps []string, err error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, nil, err
	}

	var set urlset
	if err := xml.Unmarshal(data, &set); err == nil && len(set.URLs) > 0 {
		for _, u := range set.URLs {
			if loc := strings.TrimSpace(u.Loc); loc != "" {
				pages = append(pages, loc)
			}
		}
		return pages, nil, nil
	}

	var idx sitemapIndex
	if err := xml.Unmarshal(data, &idx); err != nil {
		return nil, nil, err
	}
	for _, s := range idx.Sitemaps {
		if loc := strings.TrimSpace(s.Loc); loc != "" {
			sitemaps = append(sitemaps, loc)
		}
	}
	return nil, sitemaps, nil
}
