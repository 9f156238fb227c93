package model

import "time"

// ScanReport is the main scan result structure.
// It contains everything the presentation layer needs about one scan.
//
// Design decision: We use a single struct with per-kind lists rather than one
// heterogeneous list so that JSON consumers get a stable, typed shape for
// cookies, trackers, and storage items.
type ScanReport struct {
	// === Basic Information ===

	// ID uniquely identifies this scan run.
	ID string `json:"id"`

	// Target is the URL the scan was requested for.
	Target string `json:"target"`

	// RootDomain is the registrable domain of Target (e.g. example.com).
	RootDomain string `json:"root_domain"`

	// DateScanned is the timestamp when the scan started.
	DateScanned time.Time `json:"date_scanned"`

	// Duration is how long the scan took end to end.
	Duration time.Duration `json:"duration"`

	// === Crawl Summary ===

	// PagesScanned is the number of pages successfully visited.
	PagesScanned int `json:"pages_scanned"`

	// VisitedPages lists those pages in visit order.
	VisitedPages []string `json:"visited_pages,omitempty"`

	// ConsentBannerDetected is true when the consent driver found an
	// actionable reject or accept affordance on the entry page.
	ConsentBannerDetected bool `json:"consent_banner_detected"`

	// ConsentFrameworks lists consent signaling APIs seen on any page
	// (TCF, GPP, USP).
	ConsentFrameworks []string `json:"consent_frameworks,omitempty"`

	// Screenshot is a PNG of the entry page before any consent interaction.
	Screenshot []byte `json:"screenshot,omitempty"`

	// === Technologies ===

	Cookies  []CookieEntry  `json:"cookies"`
	Trackers []TrackerEntry `json:"trackers"`
	Storage  []StorageEntry `json:"storage"`

	// === Assessment ===

	// Summary holds counters over all technologies.
	Summary Summary `json:"summary"`

	// Regulations maps a regulation name (GDPR, ePrivacy, CCPA) to its
	// aggregate risk assessment.
	Regulations map[string]RegulationRisk `json:"regulations"`
}

// Assessment is the verdict part shared by every per-kind entry.
type Assessment struct {
	Category       Category         `json:"category"`
	Purpose        string           `json:"purpose"`
	Status         ComplianceStatus `json:"compliance_status"`
	Remediation    string           `json:"remediation"`
	StatesObserved StateSet         `json:"states_observed"`
	PagesFound     []string         `json:"pages_found"`
}

// Party says whether a cookie belongs to the scanned site.
type Party string

const (
	// PartyFirst is a cookie set on the scanned site's registrable domain.
	PartyFirst Party = "First"

	// PartyThird is a cookie set on any other domain.
	PartyThird Party = "Third"
)

// CookieEntry is one cookie in the report.
type CookieEntry struct {
	Name         string `json:"name"`
	Domain       string `json:"domain"`
	Path         string `json:"path"`
	Party        Party  `json:"party"`
	Expiry       string `json:"expiry"`
	ExpiryBucket string `json:"expiry_bucket"`
	Secure       bool   `json:"secure"`
	HTTPOnly     bool   `json:"http_only"`
	SameSite     string `json:"same_site,omitempty"`

	Assessment
}

// TrackerEntry is one off-site network request in the report.
type TrackerEntry struct {
	URL          string `json:"url"`
	Hostname     string `json:"hostname"`
	ResourceType string `json:"resource_type,omitempty"`

	Assessment
}

// StorageEntry is one Web Storage item in the report.
type StorageEntry struct {
	Area    StorageArea `json:"area"`
	Origin  string      `json:"origin"`
	Key     string      `json:"key"`
	Value   string      `json:"value,omitempty"`
	PageURL string      `json:"page_url"`

	Assessment
}

// Summary holds crawl-level counters.
type Summary struct {
	Total                   int            `json:"total"`
	Compliant               int            `json:"compliant"`
	PreConsentViolations    int            `json:"pre_consent_violations"`
	PostRejectionViolations int            `json:"post_rejection_violations"`
	Unknown                 int            `json:"unknown"`
	ByCategory              map[string]int `json:"by_category"`
}

// Violations returns the number of records in either violation state.
func (s Summary) Violations() int {
	return s.PreConsentViolations + s.PostRejectionViolations
}

// Add counts one verdict.
func (s *Summary) Add(category Category, status ComplianceStatus) {
	if s.ByCategory == nil {
		s.ByCategory = make(map[string]int)
	}
	s.Total++
	s.ByCategory[category.String()]++
	switch status {
	case StatusCompliant:
		s.Compliant++
	case StatusPreConsentViolation:
		s.PreConsentViolations++
	case StatusPostRejectionViolation:
		s.PostRejectionViolations++
	default:
		s.Unknown++
	}
}

// RiskLevel is the aggregate risk for one regulation.
type RiskLevel string

// Risk levels, from least to most severe.
const (
	RiskNone     RiskLevel = "none"
	RiskLow      RiskLevel = "low"
	RiskMedium   RiskLevel = "medium"
	RiskHigh     RiskLevel = "high"
	RiskCritical RiskLevel = "critical"
)

// RegulationRisk is the assessment for one regulation.
type RegulationRisk struct {
	Level      RiskLevel `json:"level"`
	Assessment string    `json:"assessment"`
}

// NewScanReport creates an empty, well-formed report for the target.
// Lists are non-nil so JSON output always has arrays.
func NewScanReport(id, target string) *ScanReport {
	return &ScanReport{
		ID:          id,
		Target:      target,
		DateScanned: time.Now(),
		Cookies:     make([]CookieEntry, 0),
		Trackers:    make([]TrackerEntry, 0),
		Storage:     make([]StorageEntry, 0),
		Summary:     Summary{ByCategory: make(map[string]int)},
		Regulations: make(map[string]RegulationRisk),
	}
}

// AllAssessments returns the assessment of every entry paired with a display
// name, cookies first, then trackers, then storage.
func (r *ScanReport) AllAssessments() []NamedAssessment {
	out := make([]NamedAssessment, 0, len(r.Cookies)+len(r.Trackers)+len(r.Storage))
	for _, c := range r.Cookies {
		out = append(out, NamedAssessment{Kind: KindCookie, Name: c.Name, Scope: c.Domain, Assessment: c.Assessment})
	}
	for _, t := range r.Trackers {
		out = append(out, NamedAssessment{Kind: KindRequest, Name: t.URL, Scope: t.Hostname, Assessment: t.Assessment})
	}
	for _, s := range r.Storage {
		out = append(out, NamedAssessment{Kind: KindStorage, Name: s.Key, Scope: s.Origin, Assessment: s.Assessment})
	}
	return out
}

// NamedAssessment is an assessment with enough identity to display or diff it.
type NamedAssessment struct {
	Kind  Kind
	Name  string
	Scope string
	Assessment
}

// Identity returns a string that identifies the technology across scans.
func (n NamedAssessment) Identity() string {
	return n.Kind.String() + " " + n.Name + " @ " + n.Scope
}
