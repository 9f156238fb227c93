package crawler

import (
	"strings"
	"testing"
)

func TestExtractLinks(t *testing.T) {
	t.Parallel()

	const page = `<html><body>
		<nav>
			<a href="/about">About <b>us</b></a>
			<a href="privacy.html">Privacy</a>
			<a href="https://other.example.net/">Partner</a>
			<a href="#top">Top</a>
			<a href="javascript:void(0)">Menu</a>
			<a href="mailto:info@example.com">Mail</a>
			<a href="/legal" aria-label="Legal notice"><img src="x.png"></a>
			<a>No href</a>
		</nav>
		<map><area href="/map-target" title="Map"></map>
	</body></html>`

	links, err := ExtractLinks("https://www.example.com/de/", strings.NewReader(page))
	if err != nil {
		t.Fatalf("ExtractLinks: %v", err)
	}

	want := []Link{
		{URL: "https://www.example.com/about", Text: "About us"},
		{URL: "https://www.example.com/de/privacy.html", Text: "Privacy"},
		{URL: "https://other.example.net/", Text: "Partner"},
		{URL: "https://www.example.com/legal", Text: "Legal notice"},
		{URL: "https://www.example.com/map-target", Text: "Map"},
	}
	if len(links) != len(want) {
		t.Fatalf("got %d links: %+v", len(links), links)
	}
	for i := range want {
		if links[i] != want[i] {
			t.Errorf("link %d = %+v, expected %+v", i, links[i], want[i])
		}
	}
}

func TestExtractLinksInvalidBase(t *testing.T) {
	t.Parallel()

	if _, err := ExtractLinks("://bad", strings.NewReader("<a href='/x'>x</a>")); err == nil {
		t.Error("expected error for invalid base URL")
	}
}

func TestLinkPriority(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		link Link
		want Priority
	}{
		{"privacy text", Link{URL: "https://example.com/p/1", Text: "Privacy Notice"}, PriorityPolicy},
		{"cookie url", Link{URL: "https://example.com/cookie-settings", Text: "Settings"}, PriorityPolicy},
		{"german imprint", Link{URL: "https://example.de/impressum", Text: ""}, PriorityPolicy},
		{"plain", Link{URL: "https://example.com/shop", Text: "Shop"}, PriorityDefault},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := linkPriority(tt.link); got != tt.want {
				t.Errorf("linkPriority(%+v) = %v, expected %v", tt.link, got, tt.want)
			}
		})
	}
}

// TestMatchPattern tests glob pattern matching.
func TestMatchPattern(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		pattern string
		path    string
		want    bool
	}{
		{"admin prefix match", "/admin/*", "/admin/dashboard", true},
		{"admin prefix exact", "/admin/*", "/admin", true},
		{"admin prefix no match", "/admin/*", "/user/profile", false},
		{"admin prefix partial no match", "/admin/*", "/administrator", false},
		{"pdf extension", "*.pdf", "/docs/file.pdf", true},
		{"pdf extension no match", "*.pdf", "/docs/file.txt", false},
		{"exact match", "/logout", "/logout", true},
		{"wildcard middle", "/api/v?/users", "/api/v1/users", true},
		{"wildcard middle no match", "/api/v?/users", "/api/v10/users", false},
		{"root path", "/", "/", true},
		{"nested admin", "/admin/*", "/admin/users/edit", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := matchPattern(tt.pattern, tt.path); got != tt.want {
				t.Errorf("matchPattern(%q, %q) = %v, want %v", tt.pattern, tt.path, got, tt.want)
			}
		})
	}
}

func TestScopeAllows(t *testing.T) {
	t.Parallel()

	t.Run("no patterns allows all", func(t *testing.T) {
		t.Parallel()
		if !(Scope{}).Allows("https://example.com/any/path") {
			t.Error("expected all URLs to be allowed")
		}
	})

	t.Run("ignore wins over follow", func(t *testing.T) {
		t.Parallel()
		s := Scope{Ignore: []string{"/shop/cart*"}, Follow: []string{"/shop/*"}}
		if s.Allows("https://example.com/shop/cart") {
			t.Error("ignored path allowed")
		}
		if !s.Allows("https://example.com/shop/item") {
			t.Error("followed path rejected")
		}
		if s.Allows("https://example.com/blog") {
			t.Error("path outside follow patterns allowed")
		}
	})

	t.Run("empty path is root", func(t *testing.T) {
		t.Parallel()
		s := Scope{Follow: []string{"/"}}
		if !s.Allows("https://example.com") {
			t.Error("root not allowed")
		}
	})
}
