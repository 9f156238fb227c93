package classify

import (
	"strings"

	"github.com/nao1215/consentscan/internal/model"
)

// cmpRule identifies a consent management platform artifact.
type cmpRule struct {
	platform string
	exact    []string
	prefixes []string
	hosts    []string
}

// consentPlatforms lists consent management platforms and the cookie names,
// storage keys and script hosts they use to store or serve the visitor's
// choice. Names are compared lowercased.
var consentPlatforms = []cmpRule{
	{
		platform: "OneTrust",
		exact:    []string{"optanonconsent", "optanonalertboxclosed"},
		hosts:    []string{"cookielaw.org", "onetrust.com"},
	},
	{
		platform: "Cookiebot",
		exact:    []string{"cookieconsent"},
		prefixes: []string{"cookieconsentbulksetting-", "cookieconsentbulkticket"},
		hosts:    []string{"cookiebot.com", "cookiebot.eu"},
	},
	{
		platform: "Didomi",
		exact:    []string{"didomi_token", "didomi_consent"},
		hosts:    []string{"didomi.io", "privacy-center.org"},
	},
	{
		platform: "Usercentrics",
		exact:    []string{"uc_settings", "uc_user_interaction", "ucdata", "uc_gcm"},
		hosts:    []string{"usercentrics.eu", "usercentrics.com"},
	},
	{
		platform: "CookieYes",
		exact:    []string{"cookieyes-consent"},
		prefixes: []string{"cky-"},
		hosts:    []string{"cookieyes.com"},
	},
	{
		platform: "Complianz",
		prefixes: []string{"cmplz_"},
	},
	{
		platform: "Borlabs Cookie",
		exact:    []string{"borlabs-cookie"},
	},
	{
		platform: "CookieLawInfo",
		exact:    []string{"viewed_cookie_policy"},
		prefixes: []string{"cookielawinfo-"},
	},
	{
		platform: "iubenda",
		prefixes: []string{"_iub_cs-"},
		hosts:    []string{"iubenda.com"},
	},
	{
		platform: "Quantcast Choice",
		exact:    []string{"__qca_consent"},
		hosts:    []string{"quantcast.mgr.consensu.org"},
	},
	{
		platform: "TrustArc",
		exact:    []string{"notice_preferences", "notice_gdpr_prefs", "cmapi_cookie_privacy"},
		hosts:    []string{"trustarc.com", "truste.com"},
	},
	{
		platform: "Osano",
		exact:    []string{"osano_consentmanager", "osano_consentmanager_uuid"},
		hosts:    []string{"osano.com"},
	},
	{
		platform: "CookieScript",
		exact:    []string{"cookiescriptaccept"},
		hosts:    []string{"cookie-script.com"},
	},
	{
		platform: "IAB TCF",
		exact:    []string{"euconsent-v2", "euconsent", "addtl_consent", "__tcfapilocator"},
		hosts:    []string{"consensu.org"},
	},
	{
		platform: "IAB CCPA",
		exact:    []string{"usprivacy", "us_privacy"},
	},
}

// ConsentInfrastructure reports whether obs belongs to a consent management
// platform and, if so, returns a purpose naming it. Such technology is
// classified NECESSARY regardless of any oracle answer.
func ConsentInfrastructure(obs model.Observation) (string, bool) {
	switch {
	case obs.Cookie != nil:
		return matchName(obs.Cookie.Name)
	case obs.Storage != nil:
		return matchName(obs.Storage.Key)
	case obs.Request != nil:
		return matchHost(obs.Request.Hostname)
	}
	return "", false
}

func matchName(name string) (string, bool) {
	n := strings.ToLower(strings.TrimSpace(name))
	if n == "" {
		return "", false
	}
	for _, p := range consentPlatforms {
		for _, e := range p.exact {
			if n == e {
				return purposeOf(p.platform), true
			}
		}
		for _, pre := range p.prefixes {
			if strings.HasPrefix(n, pre) {
				return purposeOf(p.platform), true
			}
		}
	}
	return "", false
}

func matchHost(host string) (string, bool) {
	h := strings.TrimSuffix(strings.ToLower(host), ".")
	if h == "" {
		return "", false
	}
	for _, p := range consentPlatforms {
		for _, suffix := range p.hosts {
			if h == suffix || strings.HasSuffix(h, "."+suffix) {
				return "Consent management platform (" + p.platform + ").", true
			}
		}
	}
	return "", false
}

func purposeOf(platform string) string {
	return "Stores the visitor's consent choice (" + platform + ")."
}
