package domain

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"

	"github.com/nao1215/consentscan/internal/model"
	"golang.org/x/net/publicsuffix"
)

// ErrNoHost is returned when a URL has no host component.
var ErrNoHost = errors.New("url has no host")

// cleanHost lowercases a host, strips a port, brackets, and a leading or
// trailing dot.
func cleanHost(host string) string {
	host = strings.ToLower(strings.TrimSpace(host))
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	host = strings.Trim(host, "[]")
	return strings.Trim(host, ".")
}

// Registrable returns the registrable domain (eTLD+1) of host.
// IP addresses, single-label hosts like localhost, and hosts that are
// themselves public suffixes are returned unchanged.
func Registrable(host string) string {
	host = cleanHost(host)
	if host == "" {
		return ""
	}
	if net.ParseIP(host) != nil || !strings.Contains(host, ".") {
		return host
	}
	reg, err := publicsuffix.EffectiveTLDPlusOne(host)
	if err != nil {
		return host
	}
	return reg
}

// RegistrableFromURL parses rawURL and returns the registrable domain of its host.
func RegistrableFromURL(rawURL string) (string, error) {
	host, err := Hostname(rawURL)
	if err != nil {
		return "", err
	}
	return Registrable(host), nil
}

// Hostname returns the lower-case hostname of rawURL without port.
func Hostname(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("invalid url %q: %w", rawURL, err)
	}
	host := cleanHost(u.Host)
	if host == "" {
		return "", fmt.Errorf("%w: %q", ErrNoHost, rawURL)
	}
	return host, nil
}

// SameSite reports whether rawURL belongs to the registrable domain root.
func SameSite(rawURL, root string) bool {
	reg, err := RegistrableFromURL(rawURL)
	if err != nil {
		return false
	}
	return reg != "" && strings.EqualFold(reg, root)
}

// Normalize canonicalizes a URL for deduplication.
//
//   - the fragment is always removed
//   - the query string is removed unless keepQuery is set
//   - scheme and host are lowercased
//   - an empty path becomes "/"
//
// Only http and https URLs are accepted.
func Normalize(rawURL string, keepQuery bool) (string, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return "", fmt.Errorf("invalid url %q: %w", rawURL, err)
	}
	u.Scheme = strings.ToLower(u.Scheme)
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("unsupported scheme %q in %q", u.Scheme, rawURL)
	}
	if u.Host == "" {
		return "", fmt.Errorf("%w: %q", ErrNoHost, rawURL)
	}
	u.Host = strings.ToLower(u.Host)
	u.Fragment = ""
	u.RawFragment = ""
	if !keepQuery {
		u.RawQuery = ""
		u.ForceQuery = false
	}
	if u.Path == "" {
		u.Path = "/"
	}
	return u.String(), nil
}

// Party attributes a cookie domain to the scanned site or a third party.
// Browser cookie domains may carry a leading dot; it is ignored.
func Party(cookieDomain, siteRegistrable string) model.Party {
	if siteRegistrable != "" && strings.EqualFold(Registrable(cookieDomain), siteRegistrable) {
		return model.PartyFirst
	}
	return model.PartyThird
}
