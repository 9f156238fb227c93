package crawler

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/nao1215/consentscan/internal/aggregate"
	"github.com/nao1215/consentscan/internal/browser"
	"github.com/nao1215/consentscan/internal/collector"
	"github.com/nao1215/consentscan/internal/consent"
	"github.com/nao1215/consentscan/internal/domain"
	"github.com/nao1215/consentscan/internal/model"
)

// ConsentDriver activates consent banners. *consent.Driver implements it.
type ConsentDriver interface {
	AttemptConsentAction(ctx context.Context, page browser.Page, action consent.Action) bool
}

// Observer snapshots a page. *collector.Collector implements it.
type Observer interface {
	Collect(ctx context.Context, page browser.Page, rootHostname string) collector.Snapshot
}

// SitemapSource lists a site's pages. *sitemap.Fetcher implements it.
type SitemapSource interface {
	Discover(ctx context.Context, rootURL string) ([]string, error)
}

// EventKind identifies a progress event.
type EventKind int

const (
	// EventStage is emitted when the crawl or the entry sequence changes stage.
	EventStage EventKind = iota

	// EventPageVisited is emitted after a page was observed.
	EventPageVisited

	// EventPageFailed is emitted when a page could not be loaded.
	EventPageFailed
)

// String returns a short name of the kind.
func (k EventKind) String() string {
	switch k {
	case EventStage:
		return "stage"
	case EventPageVisited:
		return "page visited"
	case EventPageFailed:
		return "page failed"
	default:
		return "unknown"
	}
}

// Event is a progress notification.
type Event struct {
	Kind  EventKind
	URL   string
	Stage string
	Pages int
	Err   error
}

// ProgressFunc receives progress events. Returning an error aborts the crawl.
type ProgressFunc func(Event) error

// phase is the crawl state.
type phase int

const (
	phaseInit phase = iota
	phaseCrawling
	phaseDone
)

func (p phase) String() string {
	switch p {
	case phaseInit:
		return "INIT"
	case phaseCrawling:
		return "CRAWLING"
	default:
		return "DONE"
	}
}

// Result is the outcome of one crawl.
type Result struct {
	// Records holds one finalized canonical record per distinct technology,
	// in first-seen order.
	Records []model.CanonicalRecord

	// Screenshot is a PNG of the entry page before any consent interaction.
	Screenshot []byte

	// BannerDetected is true when the reject or accept action found an
	// actionable element on the entry page.
	BannerDetected bool

	// PagesScanned counts pages that loaded and were observed.
	PagesScanned int

	// VisitedURLs lists those pages in visit order.
	VisitedURLs []string

	// FailedURLs lists pages that were attempted but did not load.
	FailedURLs []string

	// RootDomain is the registrable domain of the entry page.
	RootDomain string

	// RootHostname is the hostname of the entry page after redirects.
	RootHostname string

	// Frameworks lists consent signaling APIs seen on any page.
	Frameworks []string
}

// Crawler runs consent-state crawls.
type Crawler struct {
	driver     ConsentDriver
	observer   Observer
	sitemap    SitemapSource
	maxPages   int
	navTimeout time.Duration
	scope      Scope
	progress   ProgressFunc
	logger     *slog.Logger
}

// Option configures a Crawler.
type Option func(*Crawler)

// WithMaxPages sets the page budget. Values below 1 are treated as 1.
func WithMaxPages(n int) Option {
	return func(c *Crawler) {
		c.maxPages = n
	}
}

// WithNavigationTimeout bounds each page navigation.
func WithNavigationTimeout(d time.Duration) Option {
	return func(c *Crawler) {
		c.navTimeout = d
	}
}

// WithSitemap sets the sitemap source used to seed the frontier.
func WithSitemap(s SitemapSource) Option {
	return func(c *Crawler) {
		c.sitemap = s
	}
}

// WithIgnorePatterns sets URL path patterns to skip during crawling.
// Patterns use glob syntax (e.g., "/admin/*", "*.pdf", "/logout*").
func WithIgnorePatterns(patterns []string) Option {
	return func(c *Crawler) {
		c.scope.Ignore = patterns
	}
}

// WithFollowPatterns restricts crawling to URL paths matching at least one
// pattern. Empty means all same-site URLs are allowed.
func WithFollowPatterns(patterns []string) Option {
	return func(c *Crawler) {
		c.scope.Follow = patterns
	}
}

// WithProgress sets the progress sink.
func WithProgress(fn ProgressFunc) Option {
	return func(c *Crawler) {
		c.progress = fn
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Crawler) {
		c.logger = logger
	}
}

// New creates a Crawler. The defaults are a budget of 10 pages and a 60
// second navigation timeout.
func New(driver ConsentDriver, observer Observer, opts ...Option) *Crawler {
	c := &Crawler{
		driver:     driver,
		observer:   observer,
		maxPages:   10,
		navTimeout: 60 * time.Second,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.maxPages < 1 {
		c.maxPages = 1
	}
	return c
}

// run is the mutable state of one Crawl call.
type run struct {
	c          *Crawler
	page       browser.Page
	frontier   *Frontier
	agg        *aggregate.Aggregator
	result     *Result
	frameworks map[string]bool
	startURL   string
	phase      phase
}

// Crawl crawls the site of startURL through page.
//
// The returned Result is complete even when the budget cut the crawl short.
// Errors are limited to ErrInvalidStartURL, ErrEntryPageUnreachable and
// ErrCrawlAborted; the caller owns the page and its session and must close
// them on every path.
func (c *Crawler) Crawl(ctx context.Context, page browser.Page, startURL string) (*Result, error) {
	start, err := normalizeStart(startURL)
	if err != nil {
		return nil, err
	}
	host, err := domain.Hostname(start)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidStartURL, err)
	}

	r := &run{
		c:          c,
		page:       page,
		frontier:   NewFrontier(),
		agg:        aggregate.New(),
		frameworks: make(map[string]bool),
		startURL:   start,
		result: &Result{
			RootDomain:   domain.Registrable(host),
			RootHostname: host,
		},
	}

	if err := r.init(ctx); err != nil {
		return nil, err
	}
	if err := r.crawl(ctx); err != nil {
		return nil, err
	}
	r.enter(phaseDone)

	r.result.Records = r.agg.Records()
	for fw := range r.frameworks {
		r.result.Frameworks = append(r.result.Frameworks, fw)
	}
	sort.Strings(r.result.Frameworks)
	return r.result, nil
}

// normalizeStart accepts bare hostnames by assuming https.
func normalizeStart(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidStartURL)
	}
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	u, err := domain.Normalize(raw, true)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidStartURL, err)
	}
	return u, nil
}

func (r *run) enter(p phase) {
	r.phase = p
	r.c.logger.Debug("crawl phase", "target", r.startURL, "phase", p.String())
}

func (r *run) emit(ev Event) error {
	if r.c.progress == nil {
		return nil
	}
	if err := r.c.progress(ev); err != nil {
		return fmt.Errorf("%w: progress sink: %w", ErrCrawlAborted, err)
	}
	return nil
}

// init seeds the frontier with the entry page and the sitemap.
func (r *run) init(ctx context.Context) error {
	r.enter(phaseInit)
	r.frontier.Push(r.startURL, PriorityEntry)

	if r.c.sitemap != nil {
		urls, err := r.c.sitemap.Discover(ctx, r.startURL)
		if err != nil {
			r.c.logger.Info("sitemap discovery failed, following links only", "target", r.startURL, "error", err)
		}
		added := 0
		for _, u := range urls {
			if r.enqueue(u, PriorityEntry) {
				added++
			}
		}
		r.c.logger.Debug("sitemap urls queued", "target", r.startURL, "count", added)
	}
	return r.emit(Event{Kind: EventStage, Stage: phaseInit.String(), URL: r.startURL})
}

// enqueue normalizes a discovered URL and queues it if it is same-site and
// in scope.
func (r *run) enqueue(raw string, p Priority) bool {
	u, err := domain.Normalize(raw, false)
	if err != nil {
		return false
	}
	if !domain.SameSite(u, r.result.RootDomain) || !r.c.scope.Allows(u) {
		return false
	}
	return r.frontier.Push(u, p)
}

func (r *run) crawl(ctx context.Context) error {
	r.enter(phaseCrawling)
	if err := r.emit(Event{Kind: EventStage, Stage: phaseCrawling.String(), URL: r.startURL}); err != nil {
		return err
	}

	for r.frontier.Len() > 0 && r.frontier.VisitedCount() < r.c.maxPages {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("%w: %w", ErrCrawlAborted, err)
		}
		entry, ok := r.frontier.Pop()
		if !ok {
			break
		}
		first := r.result.PagesScanned == 0
		if !first && !domain.SameSite(entry.URL, r.result.RootDomain) {
			continue
		}

		if err := r.navigate(ctx, entry.URL); err != nil {
			if ctx.Err() != nil {
				return fmt.Errorf("%w: %w", ErrCrawlAborted, ctx.Err())
			}
			r.c.logger.Warn("page load failed", "url", entry.URL, "error", err)
			if first {
				return fmt.Errorf("%w: %s: %w", ErrEntryPageUnreachable, entry.URL, err)
			}
			r.result.FailedURLs = append(r.result.FailedURLs, entry.URL)
			if err := r.emit(Event{Kind: EventPageFailed, URL: entry.URL, Pages: r.result.PagesScanned, Err: err}); err != nil {
				return err
			}
			continue
		}

		if first {
			r.adoptLandedURL(ctx)
			if err := r.entrySequence(ctx, entry.URL); err != nil {
				return err
			}
		} else {
			r.observe(ctx, model.StatePostAcceptance, entry.URL)
		}
		r.result.PagesScanned++
		r.result.VisitedURLs = append(r.result.VisitedURLs, entry.URL)

		r.expand(ctx, entry.URL)

		if err := r.emit(Event{Kind: EventPageVisited, URL: entry.URL, Pages: r.result.PagesScanned}); err != nil {
			return err
		}
	}
	return nil
}

func (r *run) navigate(ctx context.Context, url string) error {
	navCtx := ctx
	if r.c.navTimeout > 0 {
		var cancel context.CancelFunc
		navCtx, cancel = context.WithTimeout(ctx, r.c.navTimeout)
		defer cancel()
	}
	return r.page.Navigate(navCtx, url)
}

// adoptLandedURL follows a redirect of the entry page, e.g. example.com to
// www.example.com, so that requests to the landed host count as on-site.
func (r *run) adoptLandedURL(ctx context.Context) {
	landed, err := r.page.URL(ctx)
	if err != nil {
		return
	}
	host, err := domain.Hostname(landed)
	if err != nil || host == r.result.RootHostname {
		return
	}
	r.c.logger.Debug("entry page redirected", "target", r.startURL, "url", landed)
	r.result.RootHostname = host
	r.result.RootDomain = domain.Registrable(host)
}

// entrySequence runs pre-consent, post-rejection and post-acceptance
// observations on the entry page.
func (r *run) entrySequence(ctx context.Context, url string) error {
	stage := func(state model.ConsentState) error {
		r.c.logger.Debug("consent stage", "url", url, "state", state.String())
		return r.emit(Event{Kind: EventStage, Stage: state.String(), URL: url})
	}

	if err := stage(model.StatePreConsent); err != nil {
		return err
	}
	shot, err := r.page.Screenshot(ctx)
	if err != nil {
		r.c.logger.Warn("screenshot failed", "url", url, "error", err)
	}
	r.result.Screenshot = shot
	r.observe(ctx, model.StatePreConsent, url)

	if err := stage(model.StatePostRejection); err != nil {
		return err
	}
	rejected := r.c.driver.AttemptConsentAction(ctx, r.page, consent.Reject)
	r.observe(ctx, model.StatePostRejection, url)

	if err := stage(model.StatePostAcceptance); err != nil {
		return err
	}
	if err := r.page.Reload(ctx); err != nil {
		r.c.logger.Warn("reload before accept failed", "url", url, "error", err)
	}
	accepted := r.c.driver.AttemptConsentAction(ctx, r.page, consent.Accept)
	r.observe(ctx, model.StatePostAcceptance, url)

	r.result.BannerDetected = rejected || accepted
	r.c.logger.Debug("consent banner",
		"url", url,
		"reject_found", rejected,
		"accept_found", accepted,
	)
	return nil
}

func (r *run) observe(ctx context.Context, state model.ConsentState, url string) {
	snap := r.c.observer.Collect(ctx, r.page, r.result.RootHostname)
	r.agg.Merge(snap.Observations(), state, url)
	for _, fw := range snap.Frameworks {
		r.frameworks[fw] = true
	}
}

// expand pushes the page's same-site links onto the frontier.
func (r *run) expand(ctx context.Context, url string) {
	content, err := r.page.HTML(ctx)
	if err != nil {
		r.c.logger.Warn("failed to read page html", "url", url, "error", err)
		return
	}
	base := url
	if landed, err := r.page.URL(ctx); err == nil && landed != "" {
		base = landed
	}
	links, err := ExtractLinks(base, strings.NewReader(content))
	if err != nil {
		r.c.logger.Warn("failed to parse page html", "url", url, "error", err)
		return
	}
	for _, l := range links {
		r.enqueue(l.URL, linkPriority(l))
	}
}
