package oracle

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/nao1215/consentscan/internal/assemble"
	"github.com/nao1215/consentscan/internal/classify"
	"github.com/nao1215/consentscan/internal/model"
)

// rule maps a well-known technology to its category.
type rule struct {
	technology string
	category   model.Category
	purpose    string

	// names matches cookie names and storage keys.
	names *regexp.Regexp

	// hosts are request host suffixes.
	hosts []string
}

// Design decision: The ruleset only names technology whose purpose is not in
// doubt. Everything else stays UNKNOWN instead of guessing, so the verdict of
// an unlisted item depends on the observed states alone.
var defaultRules = []rule{
	{
		technology: "Google Analytics",
		category:   model.CategoryAnalytics,
		purpose:    "Distinguishes visitors for Google Analytics statistics.",
		names:      regexp.MustCompile(`^(_ga|_ga_[A-Z0-9]+|_gid|_gat(_.*)?|__utm[abcztv])$`),
		hosts:      []string{"google-analytics.com", "analytics.google.com"},
	},
	{
		technology: "Google Tag Manager",
		category:   model.CategoryAnalytics,
		purpose:    "Loads measurement and marketing tags (Google Tag Manager).",
		hosts:      []string{"googletagmanager.com"},
	},
	{
		technology: "Google Ads",
		category:   model.CategoryMarketing,
		purpose:    "Measures ad conversions and builds advertising audiences (Google Ads).",
		names:      regexp.MustCompile(`^(_gcl_[a-z]+|IDE|DSID|test_cookie|__gads|__gpi|NID|1P_JAR)$`),
		hosts:      []string{"doubleclick.net", "googleadservices.com", "googlesyndication.com", "adservice.google.com"},
	},
	{
		technology: "Meta Pixel",
		category:   model.CategoryMarketing,
		purpose:    "Tracks visits for Facebook and Instagram advertising (Meta Pixel).",
		names:      regexp.MustCompile(`^(_fbp|_fbc|fr)$`),
		hosts:      []string{"facebook.net", "facebook.com"},
	},
	{
		technology: "Microsoft Clarity",
		category:   model.CategoryAnalytics,
		purpose:    "Records sessions and heatmaps (Microsoft Clarity).",
		names:      regexp.MustCompile(`^(_clck|_clsk|CLID|MUID|_uetsid|_uetvid)$`),
		hosts:      []string{"clarity.ms", "bat.bing.com"},
	},
	{
		technology: "Hotjar",
		category:   model.CategoryAnalytics,
		purpose:    "Records sessions and heatmaps (Hotjar).",
		names:      regexp.MustCompile(`^(_hj.*)$`),
		hosts:      []string{"hotjar.com", "hotjar.io"},
	},
	{
		technology: "Yandex Metrica",
		category:   model.CategoryAnalytics,
		purpose:    "Collects visit statistics (Yandex Metrica).",
		names:      regexp.MustCompile(`^(_ym_.*|yandexuid|yabs-sid)$`),
		hosts:      []string{"mc.yandex.ru", "mc.yandex.com"},
	},
	{
		technology: "Matomo",
		category:   model.CategoryAnalytics,
		purpose:    "Collects visit statistics (Matomo).",
		names:      regexp.MustCompile(`^(_pk_(id|ses|ref)\..*|MATOMO_SESSID)$`),
		hosts:      []string{"matomo.cloud"},
	},
	{
		technology: "TikTok Pixel",
		category:   model.CategoryMarketing,
		purpose:    "Tracks conversions for TikTok advertising.",
		names:      regexp.MustCompile(`^(_ttp|_tt_enable_cookie)$`),
		hosts:      []string{"analytics.tiktok.com"},
	},
	{
		technology: "LinkedIn Insight",
		category:   model.CategoryMarketing,
		purpose:    "Tracks conversions for LinkedIn advertising.",
		names:      regexp.MustCompile(`^(li_sugr|bcookie|lidc|UserMatchHistory|AnalyticsSyncHistory)$`),
		hosts:      []string{"px.ads.linkedin.com", "snap.licdn.com"},
	},
	{
		technology: "HubSpot",
		category:   model.CategoryMarketing,
		purpose:    "Tracks visitors for HubSpot marketing automation.",
		names:      regexp.MustCompile(`^(__hstc|__hssc|__hssrc|hubspotutk)$`),
		hosts:      []string{"hs-analytics.net", "hs-scripts.com", "hubspot.com"},
	},
	{
		technology: "Amazon Advertising",
		category:   model.CategoryMarketing,
		purpose:    "Serves and measures Amazon ads.",
		hosts:      []string{"amazon-adsystem.com"},
	},
	{
		technology: "Session",
		category:   model.CategoryNecessary,
		purpose:    "Keeps the visitor's session on the site.",
		names:      regexp.MustCompile(`(?i)^(PHPSESSID|JSESSIONID|ASP\.NET_SessionId|connect\.sid|sessionid|laravel_session|__Host-.*session.*)$`),
	},
	{
		technology: "CSRF protection",
		category:   model.CategoryNecessary,
		purpose:    "Protects forms against cross-site request forgery.",
		names:      regexp.MustCompile(`(?i)^(csrftoken|_csrf|XSRF-TOKEN|__RequestVerificationToken)$`),
	},
	{
		technology: "Load balancing",
		category:   model.CategoryNecessary,
		purpose:    "Routes the visitor to the same server.",
		names:      regexp.MustCompile(`^(AWSALB|AWSALBCORS|__cf_bm|_cfuvid|cf_clearance)$`),
	},
	{
		technology: "Preferences",
		category:   model.CategoryFunctional,
		purpose:    "Remembers display preferences such as language or theme.",
		names:      regexp.MustCompile(`(?i)^(lang|language|locale|theme|currency)$`),
	},
}

// Static classifies with a fixed ruleset.
type Static struct {
	rules []rule
}

var (
	_ classify.Oracle       = (*Static)(nil)
	_ assemble.RiskAssessor = (*Static)(nil)
)

// NewStatic creates a Static oracle with the built-in rules.
func NewStatic() *Static {
	return &Static{rules: defaultRules}
}

// Classify answers every item. Items no rule matches are UNKNOWN.
func (s *Static) Classify(ctx context.Context, items []classify.Item) ([]classify.Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := make([]classify.Result, 0, len(items))
	for _, it := range items {
		res := classify.Result{ID: it.ID, Category: model.CategoryUnknown, Purpose: classify.UnknownPurpose}
		if r, ok := s.match(it); ok {
			res.Category = r.category
			res.Purpose = r.purpose
		}
		out = append(out, res)
	}
	return out, nil
}

func (s *Static) match(it classify.Item) (rule, bool) {
	for _, r := range s.rules {
		switch it.Kind {
		case model.KindCookie.String(), model.KindStorage.String():
			if r.names != nil && r.names.MatchString(it.Name) {
				return r, true
			}
		case model.KindRequest.String():
			host := strings.ToLower(it.Domain)
			for _, h := range r.hosts {
				if host == h || strings.HasSuffix(host, "."+h) {
					return r, true
				}
			}
		}
	}
	return rule{}, false
}

// AssessRisk derives each regulation's level from the violation counts.
func (s *Static) AssessRisk(ctx context.Context, in assemble.RiskInput) (map[string]model.RegulationRisk, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	sum := in.Summary
	level := assemble.BaselineLevel(sum)
	out := make(map[string]model.RegulationRisk, len(assemble.Regulations))

	gdpr := fmt.Sprintf("%d technologies load before consent and %d after rejection.",
		sum.PreConsentViolations, sum.PostRejectionViolations)
	if sum.Violations() == 0 {
		gdpr = "No non-essential technology was observed without consent."
	}
	if !in.BannerDetected && sum.Violations() > 0 {
		gdpr += " No actionable consent banner was found."
	}
	out["GDPR"] = model.RegulationRisk{Level: level, Assessment: gdpr}

	eprivacy := "Non-essential cookies and storage are only set after consent."
	if n := countKinds(in.Violations, model.KindCookie, model.KindStorage); n > 0 {
		eprivacy = fmt.Sprintf("%d cookies or storage items are written to the device without valid consent.", n)
	}
	out["ePrivacy"] = model.RegulationRisk{Level: level, Assessment: eprivacy}

	// CCPA is an opt-out regime; only firing after an explicit rejection is a
	// breach of the visitor's choice.
	ccpaLevel := model.RiskNone
	ccpa := "No sale or sharing signals observed after the visitor opted out."
	if sum.PostRejectionViolations > 0 {
		ccpaLevel = assemble.BaselineLevel(model.Summary{PostRejectionViolations: sum.PostRejectionViolations})
		ccpa = fmt.Sprintf("%d technologies keep running after the visitor opted out.", sum.PostRejectionViolations)
	}
	out["CCPA"] = model.RegulationRisk{Level: ccpaLevel, Assessment: ccpa}
	return out, nil
}

func countKinds(vs []assemble.Violation, kinds ...model.Kind) int {
	n := 0
	for _, v := range vs {
		for _, k := range kinds {
			if v.Kind == k.String() {
				n++
				break
			}
		}
	}
	return n
}
