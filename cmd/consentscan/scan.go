package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/nao1215/consentscan/internal/browser"
	"github.com/nao1215/consentscan/internal/config"
	"github.com/nao1215/consentscan/internal/crawler"
	"github.com/nao1215/consentscan/internal/database"
	"github.com/nao1215/consentscan/internal/model"
	"github.com/nao1215/consentscan/internal/oracle"
	"github.com/nao1215/consentscan/internal/pipeline"
	"github.com/nao1215/consentscan/internal/report"
	"github.com/spf13/cobra"
)

// ErrInvalidTarget is returned when a target is not an http(s) URL or hostname.
var ErrInvalidTarget = errors.New("invalid target")

// NewScanCmd creates the scan command.
func NewScanCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scan [url]",
		Short: "Scan a website for cookie consent violations",
		Long: `Scan audits one or more websites for cookie consent compliance.

For every target consentscan opens the entry page in a fresh browser profile,
records what loads before any choice, rejects consent and records again, then
accepts and records once more. The remaining pages of the crawl budget are
visited with consent granted. Each cookie, third-party request and Web Storage
item is then classified and checked against the state it was seen in:

- Pre-consent violation: non-necessary technology before any choice
- Post-rejection violation: non-necessary technology after "reject all"
- Compliant: everything else that could be classified

Examples:
  # Scan a single site with the default budget (standard = 10 pages)
  consentscan scan https://www.example.com

  # Quick check of the entry page only
  consentscan scan --tier quick example.com

  # Scan several sites, two at a time
  consentscan scan --batch 2 a.example b.example c.example

  # Classify with Gemini (reads GEMINI_API_KEY or GOOGLE_API_KEY)
  consentscan scan --oracle genai example.com

  # Markdown report to a file plus the pre-consent screenshot
  consentscan scan -m -o report.md --screenshot banner.png example.com

Configuration file (.consentscan) example:
  defaults:
    ignorePatterns: ["/logout*"]
  sites:
    example.com:
      tier: deep
      rejectKeywords: ["alle ablehnen"]`,
		Args: cobra.ArbitraryArgs,
		RunE: runScanCmd,
	}

	// Crawl budget flags
	cmd.Flags().StringP("tier", "t", string(config.DefaultTier),
		"Depth tier: quick (1 page), standard (10), deep (50), full (100)")
	cmd.Flags().IntP("max-pages", "p", 0,
		"Maximum number of pages per site, overrides --tier (1-100)")
	cmd.Flags().Bool("no-sitemap", false,
		"Do not seed the crawl from robots.txt and sitemap.xml")
	cmd.Flags().String("user-agent", config.DefaultUserAgent,
		"User-Agent for sitemap requests and the browser")

	// Timing flags
	cmd.Flags().Duration("nav-timeout", config.DefaultNavigationTimeout,
		"Timeout for each page navigation")
	cmd.Flags().Duration("settle-delay", config.DefaultSettleDelay,
		"Wait after a consent click for the network activity it triggers")
	cmd.Flags().Duration("reload-buffer", config.DefaultReloadBuffer,
		"Extra wait after each observation reload")

	// Oracle flags
	cmd.Flags().String("oracle", config.DefaultOracle,
		"Classification backend: static (offline ruleset) or genai (Gemini)")
	cmd.Flags().String("model", config.DefaultModel,
		"Gemini model used by --oracle genai")
	cmd.Flags().Duration("oracle-timeout", config.DefaultOracleTimeout,
		"Timeout for each oracle call")
	cmd.Flags().Int("oracle-retries", config.DefaultOracleRetries,
		"Attempts per oracle call")
	cmd.Flags().Duration("oracle-backoff", config.DefaultOracleBackoff,
		"Wait before the second oracle attempt, doubled for each further attempt")
	cmd.Flags().Duration("batch-delay", config.DefaultBatchDelay,
		"Minimum interval between classifier batches")

	// Browser flags
	cmd.Flags().Bool("headful", false,
		"Show the browser window")
	cmd.Flags().String("browser-bin", "",
		"Browser executable (default: auto-detect or download)")
	cmd.Flags().String("control-url", "",
		"DevTools URL of a running browser to use instead of launching one")
	cmd.Flags().Bool("no-sandbox", false,
		"Disable the browser sandbox (often needed in containers)")

	// Batch scanning flags
	cmd.Flags().IntP("batch", "b", config.DefaultBatchSize,
		"Number of concurrent scans")

	// Configuration file
	cmd.Flags().StringP("config", "c", "",
		"Configuration file path (default: .consentscan in current or home directory)")

	// Report flags
	cmd.Flags().BoolP("json", "j", false,
		"Output JSON report (mutually exclusive with --markdown)")
	cmd.Flags().BoolP("markdown", "m", false,
		"Output Markdown report (mutually exclusive with --json)")
	cmd.Flags().StringP("output", "o", "",
		"Write report to specified file path (creates directories if needed)")
	cmd.Flags().StringP("screenshot", "s", "",
		"Write the pre-consent screenshot of the entry page to this PNG file")
	cmd.Flags().Bool("no-save", false,
		"Do not store the report in the scan history")

	return cmd
}

// runScanCmd executes the scan command.
func runScanCmd(cmd *cobra.Command, args []string) error {
	cfg, err := buildConfig(cmd, args)
	if err != nil {
		return err
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	logger := setupLogger(cmd)
	slog.SetDefault(logger)

	// Set up context with signal handling for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case <-sigCh:
			logger.Info("received shutdown signal, cancelling...")
			cancel()
		case <-ctx.Done():
		}
	}()

	return runScan(ctx, cfg, newLauncher(cfg, logger), logger, cmd.OutOrStdout(), cmd.ErrOrStderr())
}

// buildConfig creates a Config from cobra command flags.
func buildConfig(cmd *cobra.Command, args []string) (*config.Config, error) {
	cfg := config.NewConfig()
	f := cmd.Flags()

	var err error
	var tier string
	if tier, err = f.GetString("tier"); err != nil {
		return nil, err
	}
	cfg.Tier = config.Tier(strings.ToLower(strings.TrimSpace(tier)))

	if cfg.MaxPages, err = f.GetInt("max-pages"); err != nil {
		return nil, err
	}
	noSitemap, err := f.GetBool("no-sitemap")
	if err != nil {
		return nil, err
	}
	cfg.UseSitemap = !noSitemap
	if cfg.UserAgent, err = f.GetString("user-agent"); err != nil {
		return nil, err
	}

	if cfg.NavTimeout, err = f.GetDuration("nav-timeout"); err != nil {
		return nil, err
	}
	if cfg.SettleDelay, err = f.GetDuration("settle-delay"); err != nil {
		return nil, err
	}
	if cfg.ReloadBuffer, err = f.GetDuration("reload-buffer"); err != nil {
		return nil, err
	}

	if cfg.Oracle, err = f.GetString("oracle"); err != nil {
		return nil, err
	}
	cfg.Oracle = strings.ToLower(strings.TrimSpace(cfg.Oracle))
	if cfg.Model, err = f.GetString("model"); err != nil {
		return nil, err
	}
	if cfg.OracleTimeout, err = f.GetDuration("oracle-timeout"); err != nil {
		return nil, err
	}
	if cfg.OracleRetries, err = f.GetInt("oracle-retries"); err != nil {
		return nil, err
	}
	if cfg.OracleBackoff, err = f.GetDuration("oracle-backoff"); err != nil {
		return nil, err
	}
	if cfg.BatchDelay, err = f.GetDuration("batch-delay"); err != nil {
		return nil, err
	}
	// The API key never comes from a flag.
	cfg.APIKey = config.APIKeyFromEnv()

	headful, err := f.GetBool("headful")
	if err != nil {
		return nil, err
	}
	cfg.Headless = !headful
	if cfg.BrowserBin, err = f.GetString("browser-bin"); err != nil {
		return nil, err
	}
	if cfg.ControlURL, err = f.GetString("control-url"); err != nil {
		return nil, err
	}
	if cfg.NoSandbox, err = f.GetBool("no-sandbox"); err != nil {
		return nil, err
	}

	if cfg.BatchSize, err = f.GetInt("batch"); err != nil {
		return nil, err
	}

	if cfg.ConfigFilePath, err = f.GetString("config"); err != nil {
		return nil, err
	}

	// If the user explicitly specified a config file path, error if not found.
	// If no path was specified, silently use an empty config if none is found.
	explicitConfigPath := cfg.ConfigFilePath != ""
	configPath := config.FindConfigFile(cfg.ConfigFilePath)

	switch {
	case configPath != "":
		cfg.SiteConfigs, err = config.LoadConfigFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	case explicitConfigPath:
		return nil, fmt.Errorf("%w: %s", config.ErrConfigNotFound, cfg.ConfigFilePath)
	default:
		cfg.SiteConfigs = &config.File{
			Sites: make(map[string]config.SiteConfig),
		}
	}

	if cfg.JSONReport, err = f.GetBool("json"); err != nil {
		return nil, err
	}
	if cfg.MarkdownReport, err = f.GetBool("markdown"); err != nil {
		return nil, err
	}
	if cfg.ReportFile, err = f.GetString("output"); err != nil {
		return nil, err
	}
	if cfg.ScreenshotFile, err = f.GetString("screenshot"); err != nil {
		return nil, err
	}
	noSave, err := f.GetBool("no-save")
	if err != nil {
		return nil, err
	}
	cfg.SaveToDB = !noSave
	cfg.DBDir = config.XDGDataDir()

	cfg.Verbose = getBoolFlag(cmd, "verbose")
	cfg.LogJSON = getBoolFlag(cmd, "log-json")

	cfg.Targets = args

	return cfg, nil
}

// normalizeTarget turns a bare hostname into an https URL and rejects
// anything that is not an absolute http(s) URL with a host.
func normalizeTarget(target string) (string, error) {
	t := strings.TrimSpace(target)
	if t == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidTarget)
	}
	if !strings.Contains(t, "://") {
		t = "https://" + t
	}
	u, err := url.Parse(t)
	if err != nil {
		return "", fmt.Errorf("%w %q: %w", ErrInvalidTarget, target, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("%w %q: scheme must be http or https", ErrInvalidTarget, target)
	}
	if u.Hostname() == "" {
		return "", fmt.Errorf("%w %q: missing host", ErrInvalidTarget, target)
	}
	if u.Path == "" {
		u.Path = "/"
	}
	return u.String(), nil
}

// newLauncher creates the browser launcher selected by the browser flags.
func newLauncher(cfg *config.Config, logger *slog.Logger) *browser.RodLauncher {
	return browser.NewRodLauncher(
		browser.WithHeadless(cfg.Headless),
		browser.WithBrowserBin(cfg.BrowserBin),
		browser.WithControlURL(cfg.ControlURL),
		browser.WithNoSandbox(cfg.NoSandbox),
		browser.WithUserAgent(cfg.UserAgent),
		browser.WithBrowserLogger(logger),
	)
}

// newOracle creates the classification and risk backend selected by --oracle.
func newOracle(ctx context.Context, cfg *config.Config, logger *slog.Logger) (pipeline.Oracle, error) {
	switch cfg.Oracle {
	case config.OracleGenAI:
		g, err := oracle.NewGenAI(ctx, cfg.APIKey,
			oracle.WithModel(cfg.Model),
			oracle.WithLogger(logger),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to create genai oracle: %w", err)
		}
		return g, nil
	case config.OracleStatic:
		return oracle.NewStatic(), nil
	default:
		return nil, config.ErrUnknownOracle
	}
}

// runScan scans every target and writes one report per successful scan.
// It returns a joined error naming every target whose scan failed.
func runScan(ctx context.Context, cfg *config.Config, launcher browser.Launcher, logger *slog.Logger, stdout, stderr io.Writer) error {
	if len(cfg.Targets) == 0 {
		return config.ErrNoTarget
	}

	targets := make([]string, len(cfg.Targets))
	for i, target := range cfg.Targets {
		normalized, err := normalizeTarget(target)
		if err != nil {
			return err
		}
		targets[i] = normalized
	}

	logger.Info("starting scan",
		"targets", targets,
		"oracle", cfg.Oracle,
		"batchSize", cfg.BatchSize,
		"saveToDB", cfg.SaveToDB,
	)

	orc, err := newOracle(ctx, cfg, logger)
	if err != nil {
		return err
	}

	// store stays a nil interface when saving is disabled so DefaultPipeline
	// leaves out the save step.
	var store pipeline.ReportStore
	if cfg.SaveToDB {
		db, err := database.Open(cfg.DBDir, database.DefaultOptions())
		if err != nil {
			return fmt.Errorf("failed to open database: %w", err)
		}
		defer db.Close()
		logger.Info("database opened", "path", db.Path())
		store = db
	}

	// Writes to stderr and stdout come from several goroutines in batch mode.
	var mu sync.Mutex
	factory := func(target string) *pipeline.Pipeline {
		return createPipelineForTarget(launcher, orc, store, logger, cfg, target, progressPrinter(&mu, stderr, target))
	}

	bp := pipeline.NewBatchProcessor(factory,
		pipeline.WithConcurrency(cfg.BatchSize),
		pipeline.WithBatchLogger(logger),
	)

	startTime := time.Now()
	var failures []error
	err = bp.ProcessBatchWithCallback(ctx, targets, func(scan *pipeline.Scan, index int) {
		mu.Lock()
		defer mu.Unlock()

		if scan.Failed() {
			fmt.Fprintf(stderr, "[%d/%d] Scan failed: %s: %v\n", index+1, len(targets), scan.Target, scan.Err)
			failures = append(failures, fmt.Errorf("%s: %w", scan.Target, scan.Err))
			return
		}

		fmt.Fprintf(stderr, "[%d/%d] Scan completed: %s (%s)\n",
			index+1, len(targets), scan.Target, scan.Report.Duration.Round(time.Millisecond))

		if err := outputReport(cfg, scan.Report, len(targets) > 1, stdout); err != nil {
			logger.Error("report failed", "target", scan.Target, "error", err)
			failures = append(failures, fmt.Errorf("%s: %w", scan.Target, err))
		}
		if err := writeScreenshot(cfg, scan.Report, len(targets) > 1); err != nil {
			logger.Warn("screenshot not written", "target", scan.Target, "error", err)
		}
	})

	if len(targets) > 1 {
		fmt.Fprintf(stderr, "\nBatch scan completed in %s\n", time.Since(startTime).Round(time.Millisecond))
	}

	if err != nil {
		failures = append(failures, err)
	}
	return errors.Join(failures...)
}

// progressPrinter returns a crawl progress sink that writes one line per
// event to w. A write error aborts the crawl.
func progressPrinter(mu *sync.Mutex, w io.Writer, target string) crawler.ProgressFunc {
	return func(ev crawler.Event) error {
		mu.Lock()
		defer mu.Unlock()

		var err error
		switch ev.Kind {
		case crawler.EventStage:
			_, err = fmt.Fprintf(w, "%s: %s\n", target, ev.Stage)
		case crawler.EventPageVisited:
			_, err = fmt.Fprintf(w, "%s: visited %s (%d pages)\n", target, ev.URL, ev.Pages)
		case crawler.EventPageFailed:
			_, err = fmt.Fprintf(w, "%s: failed %s: %v\n", target, ev.URL, ev.Err)
		}
		return err
	}
}

// createPipelineForTarget creates a pipeline with the site configuration of
// target applied.
func createPipelineForTarget(
	launcher browser.Launcher,
	orc pipeline.Oracle,
	store pipeline.ReportStore,
	logger *slog.Logger,
	cfg *config.Config,
	target string,
	progress crawler.ProgressFunc,
) *pipeline.Pipeline {
	site := cfg.Site(target)

	pipelineOpts := []pipeline.Option{
		pipeline.WithLogger(logger.With("target", target)),
	}

	configOpts := []pipeline.DefaultPipelineOption{
		pipeline.WithPipelineMaxPages(cfg.EffectiveMaxPages(site)),
		pipeline.WithPipelineTimeouts(cfg.NavTimeout, cfg.SettleDelay, cfg.ReloadBuffer),
		pipeline.WithPipelineOracle(cfg.OracleTimeout, cfg.OracleRetries, cfg.OracleBackoff, cfg.BatchDelay),
		pipeline.WithPipelineSitemap(cfg.EffectiveSitemap(site)),
		pipeline.WithPipelineUserAgent(cfg.UserAgent),
	}
	if len(site.IgnorePatterns) > 0 {
		configOpts = append(configOpts, pipeline.WithPipelineIgnorePatterns(site.IgnorePatterns))
	}
	if len(site.FollowPatterns) > 0 {
		configOpts = append(configOpts, pipeline.WithPipelineFollowPatterns(site.FollowPatterns))
	}
	if len(site.AcceptKeywords) > 0 || len(site.RejectKeywords) > 0 {
		configOpts = append(configOpts, pipeline.WithPipelineConsentKeywords(site.AcceptKeywords, site.RejectKeywords))
	}
	if progress != nil {
		configOpts = append(configOpts, pipeline.WithPipelineProgress(progress))
	}

	return pipeline.DefaultPipeline(launcher, orc, store, pipelineOpts, configOpts...)
}

// newReportWriter returns the writer selected by the report flags.
func newReportWriter(cfg *config.Config, w io.Writer) report.Writer {
	switch {
	case cfg.JSONReport:
		return report.NewFullJSONWriter(w, getVersion(), report.WithPrettyPrint())
	case cfg.MarkdownReport:
		return report.NewMarkdownWriter(w)
	default:
		return report.NewSimpleWriter(w, report.WithVerbose(cfg.Verbose))
	}
}

// outputReport writes the report to --output or to stdout. With several
// targets every report gets its own file named after the target host.
func outputReport(cfg *config.Config, scanReport *model.ScanReport, multi bool, stdout io.Writer) error {
	if cfg.ReportFile == "" {
		_, err := newReportWriter(cfg, stdout).Write(scanReport)
		return err
	}

	path := cfg.ReportFile
	if multi {
		path = perTargetPath(path, scanReport.Target)
	}
	f, err := createOutputFile(path)
	if err != nil {
		return err
	}
	defer f.Close()

	if _, err := newReportWriter(cfg, f).Write(scanReport); err != nil {
		return err
	}
	return f.Close()
}

// writeScreenshot writes the pre-consent screenshot when --screenshot is set.
func writeScreenshot(cfg *config.Config, scanReport *model.ScanReport, multi bool) error {
	if cfg.ScreenshotFile == "" {
		return nil
	}
	if len(scanReport.Screenshot) == 0 {
		return errors.New("no screenshot was captured")
	}
	path := cfg.ScreenshotFile
	if multi {
		path = perTargetPath(path, scanReport.Target)
	}
	f, err := createOutputFile(path)
	if err != nil {
		return err
	}
	defer f.Close()
	if _, err := f.Write(scanReport.Screenshot); err != nil {
		return err
	}
	return f.Close()
}

// createOutputFile creates path and its parent directories. Reports name the
// trackers of a site, so files are readable by the owner only.
func createOutputFile(path string) (*os.File, error) {
	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return nil, fmt.Errorf("failed to create output directory: %w", err)
		}
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600) //nolint:gosec // User-provided output path is intentional
	if err != nil {
		return nil, fmt.Errorf("failed to create output file: %w", err)
	}
	return f, nil
}

// perTargetPath inserts the target's host before the extension of path:
// report.md becomes report-www.example.com.md.
func perTargetPath(path, target string) string {
	host := target
	if u, err := url.Parse(target); err == nil && u.Hostname() != "" {
		host = u.Hostname()
	}
	ext := filepath.Ext(path)
	return strings.TrimSuffix(path, ext) + "-" + host + ext
}
