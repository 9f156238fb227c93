// Package collector takes a snapshot of the privacy-relevant state of a live
// page: the full cookie jar, Web Storage of the current origin, off-site
// network requests issued during a reload, and the consent signaling APIs the
// page exposes.
package collector

import (
	"context"
	"log/slog"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/nao1215/consentscan/internal/browser"
	"github.com/nao1215/consentscan/internal/model"
)

// storageScript enumerates localStorage and sessionStorage of the current
// origin and probes for consent framework APIs. Access to storage can throw
// in sandboxed documents, so each area is read independently.
const storageScript = `() => {
	const read = (name) => {
		const out = [];
		try {
			const area = window[name];
			for (let i = 0; i < area.length; i++) {
				const key = area.key(i);
				out.push({ key: key, value: String(area.getItem(key)) });
			}
		} catch (e) {}
		return out;
	};
	const signals = [];
	if (typeof window.__tcfapi === 'function') signals.push('TCF');
	if (typeof window.__gpp === 'function') signals.push('GPP');
	if (typeof window.__uspapi === 'function') signals.push('USP');
	return {
		origin: location.origin,
		href: location.href,
		local: read('localStorage'),
		session: read('sessionStorage'),
		signals: signals,
	};
}`

// storageItem is one key/value pair returned by storageScript.
type storageItem struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// storageResult is the decoded result of storageScript.
type storageResult struct {
	Origin  string        `json:"origin"`
	Href    string        `json:"href"`
	Local   []storageItem `json:"local"`
	Session []storageItem `json:"session"`
	Signals []string      `json:"signals"`
}

// Snapshot is what one collection pass observed.
type Snapshot struct {
	Cookies  []model.CookiePayload
	Requests []model.RequestPayload
	Storage  []model.StoragePayload

	// Frameworks lists consent signaling APIs found on the page
	// (TCF, GPP, USP), sorted.
	Frameworks []string
}

// Observations flattens the snapshot into tagged observations: cookies first,
// then requests, then storage.
func (s Snapshot) Observations() []model.Observation {
	out := make([]model.Observation, 0, len(s.Cookies)+len(s.Requests)+len(s.Storage))
	for _, c := range s.Cookies {
		out = append(out, model.NewCookieObservation(c))
	}
	for _, r := range s.Requests {
		out = append(out, model.NewRequestObservation(r))
	}
	for _, st := range s.Storage {
		out = append(out, model.NewStorageObservation(st))
	}
	return out
}

// Empty reports whether nothing was observed.
func (s Snapshot) Empty() bool {
	return len(s.Cookies) == 0 && len(s.Requests) == 0 && len(s.Storage) == 0
}

// Collector produces snapshots.
type Collector struct {
	reloadBuffer time.Duration
	logger       *slog.Logger
}

// Option configures a Collector.
type Option func(*Collector)

// WithReloadBuffer sets the extra wait after the reload's load event, to
// catch trackers that fire asynchronously.
func WithReloadBuffer(d time.Duration) Option {
	return func(c *Collector) {
		c.reloadBuffer = d
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Collector) {
		c.logger = logger
	}
}

// New creates a Collector with a 1.5 second reload buffer.
func New(opts ...Option) *Collector {
	c := &Collector{
		reloadBuffer: 1500 * time.Millisecond,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// requestCapture accumulates off-site requests from the event stream.
type requestCapture struct {
	mu           sync.Mutex
	rootHostname string
	seen         map[string]bool
	requests     []model.RequestPayload
}

func (rc *requestCapture) add(ev browser.RequestEvent) {
	u, err := url.Parse(ev.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return
	}
	host := strings.ToLower(u.Hostname())
	if host == "" || host == rc.rootHostname {
		return
	}
	rc.mu.Lock()
	defer rc.mu.Unlock()
	if rc.seen[ev.URL] {
		return
	}
	rc.seen[ev.URL] = true
	rc.requests = append(rc.requests, model.RequestPayload{
		URL:          ev.URL,
		Hostname:     host,
		ResourceType: ev.ResourceType,
	})
}

func (rc *requestCapture) list() []model.RequestPayload {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	return append([]model.RequestPayload(nil), rc.requests...)
}

// Collect reloads the page while capturing off-site requests, then reads
// cookies and storage.
//
// rootHostname is the hostname of the scanned entry page; any request to a
// different hostname is reported. Collect never fails: a step that errors is
// logged and the data gathered so far is returned.
func (c *Collector) Collect(ctx context.Context, page browser.Page, rootHostname string) Snapshot {
	capture := &requestCapture{
		rootHostname: strings.ToLower(rootHostname),
		seen:         make(map[string]bool),
	}

	c.captureReload(ctx, page, capture)

	var snap Snapshot
	snap.Requests = capture.list()

	cookies, err := page.Cookies(ctx)
	if err != nil {
		c.logger.Warn("failed to read cookies", "error", err)
	}
	for _, ck := range cookies {
		snap.Cookies = append(snap.Cookies, model.CookiePayload{
			Name:     ck.Name,
			Value:    ck.Value,
			Domain:   ck.Domain,
			Path:     ck.Path,
			Expires:  ck.Expires,
			Session:  ck.Session,
			Secure:   ck.Secure,
			HTTPOnly: ck.HTTPOnly,
			SameSite: ck.SameSite,
		})
	}

	var st storageResult
	if err := page.Evaluate(ctx, storageScript, &st); err != nil {
		c.logger.Warn("failed to read web storage", "error", err)
		return snap
	}
	for _, item := range st.Local {
		snap.Storage = append(snap.Storage, model.StoragePayload{
			Area: model.StorageLocal, Origin: st.Origin, Key: item.Key, Value: item.Value, PageURL: st.Href,
		})
	}
	for _, item := range st.Session {
		snap.Storage = append(snap.Storage, model.StoragePayload{
			Area: model.StorageSession, Origin: st.Origin, Key: item.Key, Value: item.Value, PageURL: st.Href,
		})
	}
	snap.Frameworks = append(snap.Frameworks, st.Signals...)
	sort.Strings(snap.Frameworks)
	return snap
}

// captureReload subscribes to requests for exactly the duration of one
// reload plus the buffer. The subscription is released on every path.
func (c *Collector) captureReload(ctx context.Context, page browser.Page, capture *requestCapture) {
	stop := page.OnRequest(capture.add)
	defer stop()

	if err := page.Reload(ctx); err != nil {
		c.logger.Warn("reload failed", "error", err)
		return
	}
	if c.reloadBuffer <= 0 {
		return
	}
	timer := time.NewTimer(c.reloadBuffer)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
