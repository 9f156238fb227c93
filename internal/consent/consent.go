// Package consent locates and activates "accept" and "reject" affordances of
// cookie banners.
//
// The driver is best-effort: it never returns an error. A missing banner, a
// frame that detached mid-search or a script failure all end in "no match".
package consent

import (
	"context"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/nao1215/consentscan/internal/browser"
)

// Action is the consent choice to simulate.
type Action int

const (
	// Reject declines non-essential technology.
	Reject Action = iota

	// Accept grants consent for everything.
	Accept
)

// String returns "reject" or "accept".
func (a Action) String() string {
	if a == Accept {
		return "accept"
	}
	return "reject"
}

// DefaultAcceptKeywords are tried in order for Accept.
var DefaultAcceptKeywords = []string{
	"accept all",
	"allow all",
	"accept cookies",
	"i agree",
	"agree",
	"accept",
	"allow",
	"ok",
	"got it",
	"continue",
}

// DefaultRejectKeywords are tried in order for Reject.
var DefaultRejectKeywords = []string{
	"reject all",
	"decline all",
	"deny all",
	"refuse all",
	"reject",
	"decline",
	"deny",
	"refuse",
	"only necessary",
	"necessary only",
}

// clickablesScript returns the normalized label of every clickable element in
// document order: visible text, else aria-label, else value, trimmed and
// lowercased.
const clickablesScript = `() => {
	const sel = 'button, a, [role="button"], input[type="submit"], input[type="button"]';
	return Array.from(document.querySelectorAll(sel)).map((el) => {
		const text = (el.innerText || el.textContent || '').trim();
		const label = text || el.getAttribute('aria-label') || el.value || '';
		return String(label).replace(/\s+/g, ' ').trim().toLowerCase();
	});
}`

// clickScript clicks the clickable at index if its label still matches, and
// reports whether it did.
const clickScript = `(index, label) => {
	const sel = 'button, a, [role="button"], input[type="submit"], input[type="button"]';
	const el = document.querySelectorAll(sel)[index];
	if (!el) return false;
	const text = (el.innerText || el.textContent || '').trim();
	const current = String(text || el.getAttribute('aria-label') || el.value || '').replace(/\s+/g, ' ').trim().toLowerCase();
	if (current !== label) return false;
	el.click();
	return true;
}`

// Driver finds consent buttons by fuzzy keyword match.
type Driver struct {
	accept      []string
	reject      []string
	settleDelay time.Duration
	logger      *slog.Logger
}

// Option configures a Driver.
type Option func(*Driver)

// WithSettleDelay sets how long to wait after a click for consequential
// network activity.
func WithSettleDelay(d time.Duration) Option {
	return func(dr *Driver) {
		dr.settleDelay = d
	}
}

// WithAcceptKeywords prepends site-specific accept keywords.
func WithAcceptKeywords(keywords []string) Option {
	return func(dr *Driver) {
		dr.accept = mergeKeywords(keywords, dr.accept)
	}
}

// WithRejectKeywords prepends site-specific reject keywords.
func WithRejectKeywords(keywords []string) Option {
	return func(dr *Driver) {
		dr.reject = mergeKeywords(keywords, dr.reject)
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(dr *Driver) {
		dr.logger = logger
	}
}

// NewDriver creates a Driver with the default keyword lists and a two second
// settle delay.
func NewDriver(opts ...Option) *Driver {
	d := &Driver{
		accept:      append([]string(nil), DefaultAcceptKeywords...),
		reject:      append([]string(nil), DefaultRejectKeywords...),
		settleDelay: 2 * time.Second,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// mergeKeywords returns first followed by the entries of rest not already in
// first, all normalized.
func mergeKeywords(first, rest []string) []string {
	seen := make(map[string]bool)
	out := make([]string, 0, len(first)+len(rest))
	for _, list := range [][]string{first, rest} {
		for _, kw := range list {
			kw = normalize(kw)
			if kw == "" || seen[kw] {
				continue
			}
			seen[kw] = true
			out = append(out, kw)
		}
	}
	return out
}

func normalize(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}

// Keywords returns the ordered keyword list for action.
func (d *Driver) Keywords(action Action) []string {
	if action == Accept {
		return append([]string(nil), d.accept...)
	}
	return append([]string(nil), d.reject...)
}

// frameLabels caches the clickable labels of one frame for one attempt.
type frameLabels struct {
	name   string
	frame  browser.Frame
	labels []string
	ok     bool
}

// AttemptConsentAction searches the page and its child frames for an element
// whose label contains one of the action's keywords and clicks it.
//
// Keywords are tried in order. For each keyword the main frame is searched
// before child frames and the first matching element wins. After a click the
// driver waits the settle delay and returns true without looking further.
func (d *Driver) AttemptConsentAction(ctx context.Context, page browser.Page, action Action) bool {
	frames := []*frameLabels{{name: "main", frame: page}}
	children, err := page.Frames(ctx)
	switch {
	case err == nil:
		for i, f := range children {
			frames = append(frames, &frameLabels{name: "child-" + strconv.Itoa(i), frame: f})
		}
	case browser.IsDetached(err):
	default:
		d.logger.Warn("failed to list child frames", "action", action.String(), "error", err)
	}

	for _, fl := range frames {
		fl.labels, fl.ok = d.labels(ctx, fl)
	}

	for _, keyword := range d.Keywords(action) {
		for _, fl := range frames {
			if ctx.Err() != nil {
				return false
			}
			if !fl.ok {
				continue
			}
			for index, label := range fl.labels {
				if !strings.Contains(label, keyword) {
					continue
				}
				if d.click(ctx, fl, index, label) {
					d.logger.Debug("consent action triggered",
						"action", action.String(),
						"keyword", keyword,
						"frame", fl.name,
						"label", label,
					)
					d.settle(ctx)
					return true
				}
			}
		}
	}
	return false
}

func (d *Driver) labels(ctx context.Context, fl *frameLabels) ([]string, bool) {
	var labels []string
	if err := fl.frame.Evaluate(ctx, clickablesScript, &labels); err != nil {
		if !browser.IsDetached(err) {
			d.logger.Warn("failed to read clickable elements", "frame", fl.name, "error", err)
		}
		return nil, false
	}
	return labels, true
}

func (d *Driver) click(ctx context.Context, fl *frameLabels, index int, label string) bool {
	var clicked bool
	if err := fl.frame.Evaluate(ctx, clickScript, &clicked, index, label); err != nil {
		if !browser.IsDetached(err) {
			d.logger.Warn("failed to click consent element", "frame", fl.name, "error", err)
		}
		// The frame is unusable for the rest of this attempt.
		fl.ok = false
		return false
	}
	return clicked
}

func (d *Driver) settle(ctx context.Context) {
	if d.settleDelay <= 0 {
		return
	}
	timer := time.NewTimer(d.settleDelay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
