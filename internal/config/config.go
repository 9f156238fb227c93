package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/adrg/xdg"
)

// Default configuration values.
const (
	// AppName is the application name used for XDG directory paths.
	AppName = "consentscan"

	// DefaultTier is the depth tier used when neither --tier nor --max-pages
	// is given.
	DefaultTier = TierStandard

	// DefaultMaxPages is the page budget of DefaultTier.
	DefaultMaxPages = 10

	// MaxPagesLimit is the largest page budget a scan may use.
	MaxPagesLimit = 100

	// DefaultNavigationTimeout bounds each page navigation.
	DefaultNavigationTimeout = 60 * time.Second

	// DefaultSettleDelay is how long to wait after a consent click for the
	// network activity it triggers.
	DefaultSettleDelay = 2 * time.Second

	// DefaultReloadBuffer is the extra wait after the observation reload
	// to catch trackers that fire late.
	DefaultReloadBuffer = 1500 * time.Millisecond

	// DefaultOracleTimeout bounds each oracle call.
	DefaultOracleTimeout = 60 * time.Second

	// DefaultOracleRetries is the number of attempts per oracle call.
	DefaultOracleRetries = 3

	// DefaultOracleBackoff is the wait before the second attempt.
	DefaultOracleBackoff = time.Second

	// DefaultBatchDelay is the minimum interval between classifier batches,
	// which keeps us under typical free-tier rate limits.
	DefaultBatchDelay = 500 * time.Millisecond

	// DefaultBatchSize is the number of targets scanned concurrently.
	// Every scan drives its own browser, so the default is sequential.
	DefaultBatchSize = 1

	// DefaultOracle is the oracle used when --oracle is not given.
	DefaultOracle = OracleStatic

	// DefaultModel is the genai model used for classification and risk.
	DefaultModel = "gemini-2.5-flash"

	// DefaultUserAgent identifies consentscan in sitemap requests.
	DefaultUserAgent = "consentscan/1.0 (+https://github.com/nao1215/consentscan)"
)

// Oracle names accepted by --oracle.
const (
	// OracleStatic is the offline ruleset.
	OracleStatic = "static"

	// OracleGenAI is the Gemini API.
	OracleGenAI = "genai"
)

// APIKeyEnvVars are the environment variables read for the genai API key,
// in order.
var APIKeyEnvVars = []string{"GEMINI_API_KEY", "GOOGLE_API_KEY"}

// Config holds all configuration options for consentscan.
// This struct is populated from CLI flags and passed through the application
// via dependency injection rather than global state.
//
// Design decision: We use a single flat struct instead of nested structs
// (e.g., CrawlConfig, OracleConfig). The number of options is manageable and
// cobra binds flags to plain fields most easily.
type Config struct {
	// Targets is the list of site URLs to scan. A bare hostname is scanned
	// over https.
	Targets []string

	// Tier selects the page budget by name: quick, standard, deep or full.
	Tier Tier

	// MaxPages overrides the tier's page budget when positive.
	MaxPages int

	// NavTimeout bounds each page navigation.
	NavTimeout time.Duration

	// SettleDelay is the wait after a consent click.
	SettleDelay time.Duration

	// ReloadBuffer is the extra wait after the observation reload.
	ReloadBuffer time.Duration

	// UseSitemap seeds the crawl frontier from robots.txt and sitemap.xml.
	UseSitemap bool

	// UserAgent is sent with sitemap requests.
	UserAgent string

	// Oracle selects the classification and risk backend (static or genai).
	Oracle string

	// Model is the genai model name.
	Model string

	// APIKey is the genai API key. It is read from the environment, never
	// from a flag, so it does not end up in shell history.
	APIKey string

	// OracleTimeout bounds each oracle call.
	OracleTimeout time.Duration

	// OracleRetries is the number of attempts per oracle call.
	OracleRetries int

	// OracleBackoff is the base wait between attempts.
	OracleBackoff time.Duration

	// BatchDelay is the minimum interval between classifier batches.
	BatchDelay time.Duration

	// BatchSize is the number of targets scanned concurrently.
	BatchSize int

	// Headless runs the browser without a window.
	Headless bool

	// BrowserBin is the browser executable. Empty means auto-detect or
	// download.
	BrowserBin string

	// ControlURL connects to a running browser instead of launching one.
	ControlURL string

	// NoSandbox disables the browser sandbox, which containers often need.
	NoSandbox bool

	// Verbose enables detailed log output using slog.LevelDebug.
	// When false, only warnings and errors are logged.
	Verbose bool

	// LogJSON selects the JSON log handler.
	LogJSON bool

	// ConfigFilePath is the path to the site configuration file.
	// If empty, the tool searches for .consentscan in the current directory
	// and then in the user's home directory.
	ConfigFilePath string

	// SiteConfigs holds site-specific configurations loaded from the config
	// file.
	SiteConfigs *File

	// JSONReport enables JSON report output instead of the human-readable
	// format. Mutually exclusive with MarkdownReport.
	JSONReport bool

	// MarkdownReport enables Markdown report output.
	// Mutually exclusive with JSONReport.
	MarkdownReport bool

	// ReportFile is the output file path for the report.
	// When set, the report is written to this file instead of stdout.
	ReportFile string

	// ScreenshotFile receives the pre-consent screenshot of the entry page.
	// With several targets the target's host is added to the file name.
	ScreenshotFile string

	// DBDir is the directory of the scan history database.
	// Defaults to the XDG data directory (~/.local/share/consentscan on Linux).
	DBDir string

	// SaveToDB stores every report in the scan history.
	SaveToDB bool
}

// NewConfig creates a new Config with default values.
//
// Design decision: We use a constructor function instead of relying on
// zero values because many defaults are non-zero (timeouts, budgets,
// retries). This also serves as documentation of what the defaults are.
func NewConfig() *Config {
	return &Config{
		Tier:          DefaultTier,
		NavTimeout:    DefaultNavigationTimeout,
		SettleDelay:   DefaultSettleDelay,
		ReloadBuffer:  DefaultReloadBuffer,
		UseSitemap:    true,
		UserAgent:     DefaultUserAgent,
		Oracle:        DefaultOracle,
		Model:         DefaultModel,
		OracleTimeout: DefaultOracleTimeout,
		OracleRetries: DefaultOracleRetries,
		OracleBackoff: DefaultOracleBackoff,
		BatchDelay:    DefaultBatchDelay,
		BatchSize:     DefaultBatchSize,
		Headless:      true,
		SaveToDB:      true,
	}
}

// APIKeyFromEnv returns the first non-empty value of APIKeyEnvVars.
func APIKeyFromEnv() string {
	for _, name := range APIKeyEnvVars {
		if v := os.Getenv(name); v != "" {
			return v
		}
	}
	return ""
}

// XDGDataDir returns the XDG data directory for consentscan.
// On Linux: ~/.local/share/consentscan
// On macOS: ~/Library/Application Support/consentscan
// On Windows: %LOCALAPPDATA%\consentscan
func XDGDataDir() string {
	return filepath.Join(xdg.DataHome, AppName)
}

// XDGConfigDir returns the XDG config directory for consentscan.
func XDGConfigDir() string {
	return filepath.Join(xdg.ConfigHome, AppName)
}

// EffectiveMaxPages returns the page budget for a target with site settings
// sc. A site's maxPages wins over its tier, which wins over the global
// --max-pages, which wins over the global tier.
func (c *Config) EffectiveMaxPages(sc SiteConfig) int {
	if sc.MaxPages > 0 {
		return clampPages(sc.MaxPages)
	}
	if sc.Tier != "" {
		if n, err := sc.Tier.Pages(); err == nil {
			return n
		}
	}
	if c.MaxPages > 0 {
		return clampPages(c.MaxPages)
	}
	if n, err := c.Tier.Pages(); err == nil {
		return n
	}
	return DefaultMaxPages
}

// EffectiveSitemap reports whether sitemap seeding is on for sc.
func (c *Config) EffectiveSitemap(sc SiteConfig) bool {
	if sc.Sitemap != nil {
		return *sc.Sitemap
	}
	return c.UseSitemap
}

// Site returns the merged site configuration for target, or the zero value
// when no config file was loaded.
func (c *Config) Site(target string) SiteConfig {
	if c.SiteConfigs == nil {
		return SiteConfig{}
	}
	return c.SiteConfigs.GetSiteConfig(target)
}

func clampPages(n int) int {
	if n > MaxPagesLimit {
		return MaxPagesLimit
	}
	return n
}

// Validate checks if the configuration is valid.
// It returns a specific error describing what is invalid.
//
// Design decision: We validate at the config level rather than at each
// point of use to fail fast and provide clear error messages upfront.
// We return the first error found because fixing one error often makes
// others irrelevant.
func (c *Config) Validate() error {
	if len(c.Targets) == 0 {
		return ErrNoTarget
	}

	if c.MaxPages == 0 {
		if _, err := c.Tier.Pages(); err != nil {
			return err
		}
	}
	if c.MaxPages < 0 || c.MaxPages > MaxPagesLimit {
		return ErrInvalidMaxPages
	}

	if c.NavTimeout <= 0 || c.OracleTimeout <= 0 {
		return ErrInvalidTimeout
	}

	if c.SettleDelay < 0 || c.ReloadBuffer < 0 || c.OracleBackoff < 0 || c.BatchDelay < 0 {
		return ErrInvalidDelay
	}

	if c.OracleRetries < 1 {
		return ErrInvalidRetries
	}

	if c.BatchSize <= 0 {
		return ErrInvalidBatchSize
	}

	if c.JSONReport && c.MarkdownReport {
		return ErrConflictingReportFormats
	}

	switch c.Oracle {
	case OracleStatic:
	case OracleGenAI:
		if c.APIKey == "" {
			return ErrMissingAPIKey
		}
	default:
		return ErrUnknownOracle
	}

	return nil
}
