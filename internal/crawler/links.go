package crawler

import (
	"io"
	"net/url"
	"path/filepath"
	"strings"

	"golang.org/x/net/html"
)

// Link is an anchor discovered in a rendered page.
type Link struct {
	// URL is absolute, resolved against the page URL.
	URL string

	// Text is the anchor's visible text with whitespace collapsed.
	Text string
}

// policyKeywords mark links that lead to privacy, cookie and legal pages.
// Those pages often embed extra consent tooling and are crawled first.
var policyKeywords = []string{
	"privacy",
	"cookie",
	"policy",
	"legal",
	"terms",
	"datenschutz",
	"impressum",
	"imprint",
	"gdpr",
	"consent",
}

// linkPriority assigns PriorityPolicy when the link text or URL mentions one
// of the policy keywords.
func linkPriority(l Link) Priority {
	haystack := strings.ToLower(l.Text + " " + l.URL)
	for _, kw := range policyKeywords {
		if strings.Contains(haystack, kw) {
			return PriorityPolicy
		}
	}
	return PriorityDefault
}

// ExtractLinks parses rendered HTML and returns every <a href> and
// <area href> resolved against baseURL, in document order.
//
// Design decision: We parse the HTML the browser rendered rather than the raw
// response so that links inserted by scripts are found too.
func ExtractLinks(baseURL string, content io.Reader) ([]Link, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, err
	}
	doc, err := html.Parse(content)
	if err != nil {
		return nil, err
	}

	links := make([]Link, 0)
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && (n.Data == "a" || n.Data == "area") {
			if href := resolveURL(base, getAttr(n, "href")); href != "" {
				text := textOf(n)
				if text == "" {
					text = getAttr(n, "aria-label")
				}
				if text == "" {
					text = getAttr(n, "title")
				}
				links = append(links, Link{URL: href, Text: text})
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return links, nil
}

// textOf returns the collapsed text content below n.
func textOf(n *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
			sb.WriteString(" ")
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return strings.Join(strings.Fields(sb.String()), " ")
}

// resolveURL resolves href against base. Script, mail, phone and data links
// and bare fragments resolve to "".
func resolveURL(base *url.URL, href string) string {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "#") {
		return ""
	}
	lower := strings.ToLower(href)
	for _, prefix := range []string{"javascript:", "mailto:", "tel:", "data:", "blob:"} {
		if strings.HasPrefix(lower, prefix) {
			return ""
		}
	}
	u, err := url.Parse(href)
	if err != nil {
		return ""
	}
	return base.ResolveReference(u).String()
}

// getAttr retrieves an attribute value from an HTML node.
func getAttr(n *html.Node, key string) string {
	for _, attr := range n.Attr {
		if attr.Key == key {
			return attr.Val
		}
	}
	return ""
}

// Scope decides which same-site URLs are crawled, by glob patterns on the
// URL path.
//
// Logic:
//  1. If the path matches any ignore pattern, skip it.
//  2. If follow patterns are set and the path matches none, skip it.
//  3. Otherwise, crawl it.
type Scope struct {
	Ignore []string
	Follow []string
}

// Allows reports whether rawURL is in scope.
func (s Scope) Allows(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	path := u.Path
	if path == "" {
		path = "/"
	}
	for _, pattern := range s.Ignore {
		if matchPattern(pattern, path) {
			return false
		}
	}
	if len(s.Follow) == 0 {
		return true
	}
	for _, pattern := range s.Follow {
		if matchPattern(pattern, path) {
			return true
		}
	}
	return false
}

// matchPattern checks if a path matches a glob pattern.
// Patterns can use:
//   - * to match any sequence of non-separator characters
//   - ? to match any single character
//
// Examples:
//   - "/admin/*" matches "/admin", "/admin/users" and "/admin/users/edit"
//   - "*.pdf" matches "/docs/file.pdf"
//   - "/api/v?" matches "/api/v1"
func matchPattern(pattern, path string) bool {
	if strings.HasSuffix(pattern, "/*") {
		prefix := strings.TrimSuffix(pattern, "/*")
		if strings.HasPrefix(path, prefix+"/") || path == prefix {
			return true
		}
	}

	if strings.HasPrefix(pattern, "*.") {
		if strings.HasSuffix(path, strings.TrimPrefix(pattern, "*")) {
			return true
		}
	}

	matched, err := filepath.Match(pattern, path)
	if err != nil {
		return false
	}
	if matched {
		return true
	}

	if strings.Contains(pattern, "*") && !strings.Contains(pattern, "/") {
		matched, err := filepath.Match(pattern, filepath.Base(path))
		if err == nil && matched {
			return true
		}
	}
	return false
}
