package config

import (
	"strings"

	"github.com/nao1215/consentscan/internal/domain"
)

// SiteConfig holds site-specific configuration for a single site.
// This allows customizing crawl behavior per target.
type SiteConfig struct {
	// Tier overrides the global depth tier for this site.
	Tier Tier `yaml:"tier,omitempty"`

	// MaxPages overrides the page budget for this site.
	// If zero, the tier or the global budget is used.
	MaxPages int `yaml:"maxPages,omitempty"`

	// IgnorePatterns are URL patterns to skip during crawling.
	// Patterns are matched against the URL path using glob syntax.
	IgnorePatterns []string `yaml:"ignorePatterns,omitempty"`

	// FollowPatterns are URL patterns to follow during crawling.
	// If specified, only URLs matching these patterns are crawled.
	FollowPatterns []string `yaml:"followPatterns,omitempty"`

	// AcceptKeywords are tried before the built-in "accept" keywords.
	AcceptKeywords []string `yaml:"acceptKeywords,omitempty"`

	// RejectKeywords are tried before the built-in "reject" keywords.
	RejectKeywords []string `yaml:"rejectKeywords,omitempty"`

	// Sitemap enables or disables sitemap seeding for this site.
	Sitemap *bool `yaml:"sitemap,omitempty"`
}

// File represents the structure of the .consentscan configuration file.
type File struct {
	// Sites maps hostnames or registrable domains to their configurations.
	// Keys are matched case-insensitively without scheme (e.g., "shop.example.com"
	// or "example.com").
	Sites map[string]SiteConfig `yaml:"sites,omitempty"`

	// Defaults contains default site configuration applied to all sites
	// unless overridden in the site-specific configuration.
	Defaults SiteConfig `yaml:"defaults,omitempty"`
}

// lookup finds the site entry for target: the exact hostname first, then the
// registrable domain.
func (cf *File) lookup(target string) (SiteConfig, bool) {
	t := strings.TrimSpace(target)
	if !strings.Contains(t, "://") {
		t = "https://" + t
	}
	host, err := domain.Hostname(t)
	if err != nil {
		return SiteConfig{}, false
	}
	for _, key := range []string{host, domain.Registrable(host)} {
		for name, sc := range cf.Sites {
			if strings.EqualFold(strings.TrimSpace(name), key) {
				return sc, true
			}
		}
	}
	return SiteConfig{}, false
}

// GetSiteConfig returns the configuration for target.
// It merges the site-specific configuration with defaults.
func (cf *File) GetSiteConfig(target string) SiteConfig {
	result := cf.Defaults

	siteConfig, ok := cf.lookup(target)
	if !ok {
		return result
	}
	if siteConfig.Tier != "" {
		result.Tier = siteConfig.Tier
		result.MaxPages = 0
	}
	if siteConfig.MaxPages != 0 {
		result.MaxPages = siteConfig.MaxPages
	}
	if len(siteConfig.IgnorePatterns) > 0 {
		result.IgnorePatterns = siteConfig.IgnorePatterns
	}
	if len(siteConfig.FollowPatterns) > 0 {
		result.FollowPatterns = siteConfig.FollowPatterns
	}
	if len(siteConfig.AcceptKeywords) > 0 {
		result.AcceptKeywords = siteConfig.AcceptKeywords
	}
	if len(siteConfig.RejectKeywords) > 0 {
		result.RejectKeywords = siteConfig.RejectKeywords
	}
	if siteConfig.Sitemap != nil {
		result.Sitemap = siteConfig.Sitemap
	}
	return result
}
