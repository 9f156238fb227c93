package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nao1215/consentscan/internal/assemble"
	"github.com/nao1215/consentscan/internal/browser"
	"github.com/nao1215/consentscan/internal/classify"
	"github.com/nao1215/consentscan/internal/collector"
	"github.com/nao1215/consentscan/internal/config"
	"github.com/nao1215/consentscan/internal/consent"
	"github.com/nao1215/consentscan/internal/crawler"
	"github.com/nao1215/consentscan/internal/model"
	"github.com/nao1215/consentscan/internal/retry"
	"github.com/nao1215/consentscan/internal/sitemap"
	"github.com/nao1215/consentscan/internal/verdict"
)

var (
	// ErrBrowserLaunch is returned when no browser session could be started.
	ErrBrowserLaunch = errors.New("browser session could not be started")

	// ErrMissingInput is returned when a step runs before the step that
	// produces its input.
	ErrMissingInput = errors.New("missing input from previous step")
)

// Crawler crawls one site. *crawler.Crawler implements it.
type Crawler interface {
	Crawl(ctx context.Context, page browser.Page, startURL string) (*crawler.Result, error)
}

// Classifier categorizes records. *classify.BatchClassifier implements it.
type Classifier interface {
	Classify(ctx context.Context, records []model.CanonicalRecord) []model.ClassifiedRecord
}

// Assembler builds reports. *assemble.Assembler implements it.
type Assembler interface {
	Assemble(ctx context.Context, in assemble.Input) (*model.ScanReport, error)
}

// ReportStore persists reports. *database.ScanDB implements it.
type ReportStore interface {
	SaveScanReport(ctx context.Context, report *model.ScanReport) (int64, error)
}

// Oracle is the external service consulted for categories and risk.
// oracle.GenAI and oracle.Static implement it.
type Oracle interface {
	classify.Oracle
	assemble.RiskAssessor
}

// CrawlStep opens a browser session and crawls the target in every consent
// state.
type CrawlStep struct {
	launcher browser.Launcher
	crawler  Crawler
	logger   *slog.Logger
}

// NewCrawlStep creates a CrawlStep.
func NewCrawlStep(launcher browser.Launcher, c Crawler, logger *slog.Logger) *CrawlStep {
	if logger == nil {
		logger = slog.Default()
	}
	return &CrawlStep{launcher: launcher, crawler: c, logger: logger}
}

// Name returns the step name.
func (s *CrawlStep) Name() string {
	return "crawl"
}

// Do launches the session, crawls, and closes the session on every path.
func (s *CrawlStep) Do(ctx context.Context, scan *Scan) error {
	session, err := s.launcher.Launch(ctx)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrBrowserLaunch, err)
	}
	defer func() {
		if err := session.Close(); err != nil {
			s.logger.Warn("failed to close browser session", "target", scan.Target, "error", err)
		}
	}()

	page, err := session.NewPage(ctx)
	if err != nil {
		return fmt.Errorf("%w: open page: %w", ErrBrowserLaunch, err)
	}

	result, err := s.crawler.Crawl(ctx, page, scan.Target)
	if err != nil {
		return err
	}
	scan.Crawl = result

	s.logger.Info("crawl finished",
		"target", scan.Target,
		"pages", result.PagesScanned,
		"failed_pages", len(result.FailedURLs),
		"records", len(result.Records),
		"banner", result.BannerDetected,
	)
	return nil
}

// ClassifyStep categorizes every crawled record.
type ClassifyStep struct {
	classifier Classifier
}

// NewClassifyStep creates a ClassifyStep.
func NewClassifyStep(c Classifier) *ClassifyStep {
	return &ClassifyStep{classifier: c}
}

// Name returns the step name.
func (s *ClassifyStep) Name() string {
	return "classify"
}

// Do classifies scan.Crawl.Records. It never fails once the crawl exists.
func (s *ClassifyStep) Do(ctx context.Context, scan *Scan) error {
	if scan.Crawl == nil {
		return fmt.Errorf("%w: crawl result", ErrMissingInput)
	}
	scan.Classified = s.classifier.Classify(ctx, scan.Crawl.Records)
	return nil
}

// VerdictStep resolves the compliance status of every classified record.
type VerdictStep struct{}

// NewVerdictStep creates a VerdictStep.
func NewVerdictStep() *VerdictStep {
	return &VerdictStep{}
}

// Name returns the step name.
func (s *VerdictStep) Name() string {
	return "verdict"
}

// Do runs verdict.ResolveAll over scan.Classified.
func (s *VerdictStep) Do(_ context.Context, scan *Scan) error {
	if scan.Crawl == nil {
		return fmt.Errorf("%w: crawl result", ErrMissingInput)
	}
	scan.Verdicts = verdict.ResolveAll(scan.Classified)
	return nil
}

// AssembleStep builds the final report.
type AssembleStep struct {
	assembler Assembler
}

// NewAssembleStep creates an AssembleStep.
func NewAssembleStep(a Assembler) *AssembleStep {
	return &AssembleStep{assembler: a}
}

// Name returns the step name.
func (s *AssembleStep) Name() string {
	return "assemble"
}

// Do assembles scan.Report from the crawl and its verdicts.
func (s *AssembleStep) Do(ctx context.Context, scan *Scan) error {
	if scan.Crawl == nil {
		return fmt.Errorf("%w: crawl result", ErrMissingInput)
	}
	c := scan.Crawl
	report, err := s.assembler.Assemble(ctx, assemble.Input{
		ID:             scan.ID,
		Target:         scan.Target,
		RootDomain:     c.RootDomain,
		StartedAt:      scan.StartedAt,
		PagesScanned:   c.PagesScanned,
		VisitedPages:   c.VisitedURLs,
		BannerDetected: c.BannerDetected,
		Frameworks:     c.Frameworks,
		Screenshot:     c.Screenshot,
		Records:        scan.Verdicts,
	})
	if err != nil {
		return err
	}
	scan.Report = report
	return nil
}

// SaveStep stores the report in the scan history.
type SaveStep struct {
	store  ReportStore
	logger *slog.Logger
}

// NewSaveStep creates a SaveStep.
func NewSaveStep(store ReportStore, logger *slog.Logger) *SaveStep {
	if logger == nil {
		logger = slog.Default()
	}
	return &SaveStep{store: store, logger: logger}
}

// Name returns the step name.
func (s *SaveStep) Name() string {
	return "save"
}

// Do saves scan.Report. A storage failure is logged and does not fail the
// scan; the report is still returned to the caller.
func (s *SaveStep) Do(ctx context.Context, scan *Scan) error {
	if scan.Report == nil {
		return fmt.Errorf("%w: report", ErrMissingInput)
	}
	id, err := s.store.SaveScanReport(ctx, scan.Report)
	if err != nil {
		s.logger.Warn("failed to save scan report", "target", scan.Target, "error", err)
		return nil
	}
	scan.ReportID = id
	return nil
}

// retryingAssessor retries transient risk assessment failures.
type retryingAssessor struct {
	next   assemble.RiskAssessor
	policy retry.Policy
}

func (r retryingAssessor) AssessRisk(ctx context.Context, in assemble.RiskInput) (map[string]model.RegulationRisk, error) {
	return retry.Do(ctx, r.policy, func(ctx context.Context) (map[string]model.RegulationRisk, error) {
		return r.next.AssessRisk(ctx, in)
	})
}

// DefaultPipelineConfig holds the knobs of the default pipeline.
type DefaultPipelineConfig struct {
	MaxPages       int
	NavTimeout     time.Duration
	SettleDelay    time.Duration
	ReloadBuffer   time.Duration
	OracleTimeout  time.Duration
	OracleRetries  int
	OracleBackoff  time.Duration
	BatchDelay     time.Duration
	UseSitemap     bool
	UserAgent      string
	IgnorePatterns []string
	FollowPatterns []string
	AcceptKeywords []string
	RejectKeywords []string
	Progress       crawler.ProgressFunc
}

// DefaultPipelineOption configures DefaultPipelineConfig.
type DefaultPipelineOption func(*DefaultPipelineConfig)

// WithPipelineMaxPages sets the page budget.
func WithPipelineMaxPages(n int) DefaultPipelineOption {
	return func(c *DefaultPipelineConfig) {
		c.MaxPages = n
	}
}

// WithPipelineTimeouts sets the navigation timeout, the settle delay after a
// consent click, and the reload buffer of the collector.
func WithPipelineTimeouts(nav, settle, reload time.Duration) DefaultPipelineOption {
	return func(c *DefaultPipelineConfig) {
		c.NavTimeout = nav
		c.SettleDelay = settle
		c.ReloadBuffer = reload
	}
}

// WithPipelineOracle sets the per-call timeout, the attempt count, the base
// backoff and the pacing of oracle calls.
func WithPipelineOracle(timeout time.Duration, retries int, backoff, batchDelay time.Duration) DefaultPipelineOption {
	return func(c *DefaultPipelineConfig) {
		c.OracleTimeout = timeout
		c.OracleRetries = retries
		c.OracleBackoff = backoff
		c.BatchDelay = batchDelay
	}
}

// WithPipelineSitemap enables or disables sitemap seeding.
func WithPipelineSitemap(enabled bool) DefaultPipelineOption {
	return func(c *DefaultPipelineConfig) {
		c.UseSitemap = enabled
	}
}

// WithPipelineUserAgent sets the User-Agent of sitemap requests.
func WithPipelineUserAgent(userAgent string) DefaultPipelineOption {
	return func(c *DefaultPipelineConfig) {
		c.UserAgent = userAgent
	}
}

// WithPipelineIgnorePatterns sets URL path patterns to skip during crawling.
func WithPipelineIgnorePatterns(patterns []string) DefaultPipelineOption {
	return func(c *DefaultPipelineConfig) {
		c.IgnorePatterns = patterns
	}
}

// WithPipelineFollowPatterns restricts crawling to matching URL paths.
func WithPipelineFollowPatterns(patterns []string) DefaultPipelineOption {
	return func(c *DefaultPipelineConfig) {
		c.FollowPatterns = patterns
	}
}

// WithPipelineConsentKeywords adds site-specific consent button keywords.
func WithPipelineConsentKeywords(accept, reject []string) DefaultPipelineOption {
	return func(c *DefaultPipelineConfig) {
		c.AcceptKeywords = accept
		c.RejectKeywords = reject
	}
}

// WithPipelineProgress sets the crawl progress sink.
func WithPipelineProgress(fn crawler.ProgressFunc) DefaultPipelineOption {
	return func(c *DefaultPipelineConfig) {
		c.Progress = fn
	}
}

// DefaultPipeline creates the standard scan pipeline: crawl, classify,
// verdict, assemble and, when store is not nil, save.
//
// The first variadic parameter accepts pipeline options (WithLogger, etc).
// The second accepts pipeline config options (WithPipelineMaxPages, etc).
func DefaultPipeline(launcher browser.Launcher, oracle Oracle, store ReportStore, pipelineOpts []Option, configOpts ...DefaultPipelineOption) *Pipeline {
	p := New(pipelineOpts...)
	logger := p.logger

	cfg := &DefaultPipelineConfig{
		MaxPages:      config.DefaultMaxPages,
		NavTimeout:    config.DefaultNavigationTimeout,
		SettleDelay:   config.DefaultSettleDelay,
		ReloadBuffer:  config.DefaultReloadBuffer,
		OracleTimeout: config.DefaultOracleTimeout,
		OracleRetries: config.DefaultOracleRetries,
		OracleBackoff: config.DefaultOracleBackoff,
		BatchDelay:    config.DefaultBatchDelay,
		UseSitemap:    true,
		UserAgent:     config.DefaultUserAgent,
	}
	for _, opt := range configOpts {
		opt(cfg)
	}

	policy := retry.Policy{
		MaxAttempts:    cfg.OracleRetries,
		BaseDelay:      cfg.OracleBackoff,
		AttemptTimeout: cfg.OracleTimeout,
		Logger:         logger,
	}

	driver := consent.NewDriver(
		consent.WithSettleDelay(cfg.SettleDelay),
		consent.WithAcceptKeywords(cfg.AcceptKeywords),
		consent.WithRejectKeywords(cfg.RejectKeywords),
		consent.WithLogger(logger),
	)
	observer := collector.New(
		collector.WithReloadBuffer(cfg.ReloadBuffer),
		collector.WithLogger(logger),
	)

	crawlOpts := []crawler.Option{
		crawler.WithMaxPages(cfg.MaxPages),
		crawler.WithNavigationTimeout(cfg.NavTimeout),
		crawler.WithLogger(logger),
	}
	if cfg.UseSitemap {
		crawlOpts = append(crawlOpts, crawler.WithSitemap(sitemap.New(
			sitemap.WithUserAgent(cfg.UserAgent),
			sitemap.WithLogger(logger),
		)))
	}
	if len(cfg.IgnorePatterns) > 0 {
		crawlOpts = append(crawlOpts, crawler.WithIgnorePatterns(cfg.IgnorePatterns))
	}
	if len(cfg.FollowPatterns) > 0 {
		crawlOpts = append(crawlOpts, crawler.WithFollowPatterns(cfg.FollowPatterns))
	}
	if cfg.Progress != nil {
		crawlOpts = append(crawlOpts, crawler.WithProgress(cfg.Progress))
	}

	classifier := classify.New(oracle,
		classify.WithRetryPolicy(policy),
		classify.WithBatchDelay(cfg.BatchDelay),
		classify.WithLogger(logger),
	)
	assembler := assemble.New(
		retryingAssessor{next: oracle, policy: policy},
		assemble.WithLogger(logger),
	)

	p.AddSteps(
		NewCrawlStep(launcher, crawler.New(driver, observer, crawlOpts...), logger),
		NewClassifyStep(classifier),
		NewVerdictStep(),
		NewAssembleStep(assembler),
	)
	if store != nil {
		p.AddStep(NewSaveStep(store, logger))
	}

	return p
}
