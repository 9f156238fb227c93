package sitemap

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

func serve(t *testing.T, routes map[string]string) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	for path, body := range routes {
		body := strings.ReplaceAll(body, "{{base}}", srv.URL)
		mux.HandleFunc(path, func(w http.ResponseWriter, _ *http.Request) {
			fmt.Fprint(w, body)
		})
	}
	return srv
}

func TestParse(t *testing.T) {
	t.Parallel()

	t.Run("urlset", func(t *testing.T) {
		t.Parallel()
		doc := `<?xml version="1.0" encoding="UTF-8"?>
<urlset xmlns="http://www.sitemaps.org/schemas/sitemap/0.9">
  <url><loc> https://example.com/ </loc></url>
  <url><loc>https://example.com/about</loc><lastmod>2024-01-01</lastmod></url>
  <url><loc></loc></url>
</urlset>`
		pages, children, err := Parse(strings.NewReader(doc))
		if err != nil {
			t.Fatalf("Parse: %v", err)
		}
		if diff := cmp.Diff([]string{"https://example.com/", "https://example.com/about"}, pages); diff != "" {
			t.Errorf("pages mismatch (-want +got):\n%s", diff)
		}
		if len(children) != 0 {
			t.Errorf("children = %v", children)
		}
	})

	t.Run("index", func(t *testing.T) {
		t.Parallel()
		doc := `<sitemapindex xmlns="http://www.sitemaps.org/schemas/sitemap/0.9">
  <sitemap><loc>https://example.com/posts.xml</loc></sitemap>
</sitemapindex>`
		pages, children, err := Parse(strings.NewReader(doc))
		if err != nil {
			t.Fatalf("Parse: %v", err)
		}
		if len(pages) != 0 || len(children) != 1 || children[0] != "https://example.com/posts.xml" {
			t.Errorf("pages = %v, children = %v", pages, children)
		}
	})

	t.Run("garbage", func(t *testing.T) {
		t.Parallel()
		if _, _, err := Parse(strings.NewReader("<html><body>")); err == nil {
			t.Error("expected error for truncated document")
		}
	})
}

func TestDiscoverFromRobots(t *testing.T) {
	t.Parallel()

	srv := serve(t, map[string]string{
		"/robots.txt": "User-agent: *\nDisallow: /admin\nSitemap: {{base}}/index.xml\n",
		"/index.xml": `<sitemapindex><sitemap><loc>{{base}}/a.xml</loc></sitemap>` +
			`<sitemap><loc>{{base}}/missing.xml</loc></sitemap></sitemapindex>`,
		"/a.xml": `<urlset><url><loc>{{base}}/one</loc></url><url><loc>{{base}}/two</loc></url>` +
			`<url><loc>{{base}}/one</loc></url></urlset>`,
	})

	f := New(WithHTTPClient(srv.Client()), WithLogger(quiet))
	urls, err := f.Discover(context.Background(), srv.URL+"/")
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	if diff := cmp.Diff([]string{srv.URL + "/one", srv.URL + "/two"}, urls); diff != "" {
		t.Errorf("urls mismatch (-want +got):\n%s", diff)
	}
}

func TestDiscoverFallsBackToSitemapXML(t *testing.T) {
	t.Parallel()

	srv := serve(t, map[string]string{
		"/sitemap.xml": `<urlset><url><loc>{{base}}/privacy</loc></url></urlset>`,
	})

	f := New(WithHTTPClient(srv.Client()), WithLogger(quiet))
	urls, err := f.Discover(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	if len(urls) != 1 || urls[0] != srv.URL+"/privacy" {
		t.Errorf("urls = %v", urls)
	}
}

func TestDiscoverNoSitemap(t *testing.T) {
	t.Parallel()

	srv := serve(t, map[string]string{})
	f := New(WithHTTPClient(srv.Client()), WithLogger(quiet))
	if _, err := f.Discover(context.Background(), srv.URL); !errors.Is(err, ErrNoSitemap) {
		t.Errorf("err = %v, expected ErrNoSitemap", err)
	}
	if _, err := f.Discover(context.Background(), "::"); err == nil {
		t.Error("expected error for invalid root url")
	}
}

func TestDiscoverCap(t *testing.T) {
	t.Parallel()

	var b strings.Builder
	b.WriteString("<urlset>")
	for i := range 20 {
		fmt.Fprintf(&b, "<url><loc>{{base}}/p%d</loc></url>", i)
	}
	b.WriteString("</urlset>")
	srv := serve(t, map[string]string{"/sitemap.xml": b.String()})

	f := New(WithHTTPClient(srv.Client()), WithMaxURLs(5), WithLogger(quiet))
	urls, err := f.Discover(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	if len(urls) != 5 {
		t.Errorf("len(urls) = %d, expected 5", len(urls))
	}
}

func TestDiscoverIndexCycle(t *testing.T) {
	t.Parallel()

	srv := serve(t, map[string]string{
		"/sitemap.xml": `<sitemapindex><sitemap><loc>{{base}}/loop.xml</loc></sitemap></sitemapindex>`,
		"/loop.xml": `<sitemapindex><sitemap><loc>{{base}}/sitemap.xml</loc></sitemap>` +
			`<sitemap><loc>{{base}}/pages.xml</loc></sitemap></sitemapindex>`,
		"/pages.xml": `<urlset><url><loc>{{base}}/deep</loc></url></urlset>`,
	})

	f := New(WithHTTPClient(srv.Client()), WithLogger(quiet))
	urls, err := f.Discover(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	if len(urls) != 1 || urls[0] != srv.URL+"/deep" {
		t.Errorf("urls = %v", urls)
	}
}
