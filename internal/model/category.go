package model

import "strings"

// Category is the purpose class assigned to a technology by the classifier.
type Category int

const (
	// CategoryUnknown is used when the classifier could not decide, including
	// every item of a batch whose oracle call failed.
	CategoryUnknown Category = iota

	// CategoryNecessary covers technology strictly required for the site to work,
	// including the consent platform itself.
	CategoryNecessary

	// CategoryFunctional covers preferences and convenience features.
	CategoryFunctional

	// CategoryAnalytics covers measurement and statistics.
	CategoryAnalytics

	// CategoryMarketing covers advertising, retargeting and cross-site tracking.
	CategoryMarketing
)

// Categories lists every category in report order.
var Categories = []Category{
	CategoryNecessary,
	CategoryFunctional,
	CategoryAnalytics,
	CategoryMarketing,
	CategoryUnknown,
}

// String returns the canonical upper-case name of the category.
func (c Category) String() string {
	switch c {
	case CategoryNecessary:
		return "NECESSARY"
	case CategoryFunctional:
		return "FUNCTIONAL"
	case CategoryAnalytics:
		return "ANALYTICS"
	case CategoryMarketing:
		return "MARKETING"
	default:
		return "UNKNOWN"
	}
}

// MarshalText encodes the category as its canonical name.
func (c Category) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// UnmarshalText decodes a category name. Unrecognized names decode to
// CategoryUnknown rather than failing, since oracle output is untrusted.
func (c *Category) UnmarshalText(text []byte) error {
	*c = ParseCategory(string(text))
	return nil
}

// ParseCategory maps a free-form category label to a Category.
// Matching is case-insensitive and accepts common synonyms returned by
// text-generation oracles ("essential", "preferences", "advertising", ...).
func ParseCategory(label string) Category {
	switch strings.ToLower(strings.TrimSpace(label)) {
	case "necessary", "essential", "strictly necessary", "strictly_necessary":
		return CategoryNecessary
	case "functional", "functionality", "preferences", "preference":
		return CategoryFunctional
	case "analytics", "statistics", "performance":
		return CategoryAnalytics
	case "marketing", "advertising", "targeting", "ads":
		return CategoryMarketing
	default:
		return CategoryUnknown
	}
}

// ComplianceStatus is the final verdict for one technology.
type ComplianceStatus int

const (
	// StatusUnknown is the zero value. The verdict resolver never returns it;
	// it marks records that have not been resolved.
	StatusUnknown ComplianceStatus = iota

	// StatusCompliant means the technology was only seen where it is allowed.
	StatusCompliant

	// StatusPreConsentViolation means a non-necessary technology was loaded
	// before the visitor made any consent choice.
	StatusPreConsentViolation

	// StatusPostRejectionViolation means a non-necessary technology was loaded
	// after the visitor explicitly rejected consent.
	StatusPostRejectionViolation
)

// String returns the canonical upper-case name of the status.
func (s ComplianceStatus) String() string {
	switch s {
	case StatusCompliant:
		return "COMPLIANT"
	case StatusPreConsentViolation:
		return "PRE_CONSENT_VIOLATION"
	case StatusPostRejectionViolation:
		return "POST_REJECTION_VIOLATION"
	default:
		return "UNKNOWN"
	}
}

// IsViolation reports whether the status is one of the two violation kinds.
func (s ComplianceStatus) IsViolation() bool {
	return s == StatusPreConsentViolation || s == StatusPostRejectionViolation
}

// MarshalText encodes the status as its canonical name.
func (s ComplianceStatus) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText decodes a status name.
func (s *ComplianceStatus) UnmarshalText(text []byte) error {
	switch strings.ToUpper(strings.TrimSpace(string(text))) {
	case "COMPLIANT":
		*s = StatusCompliant
	case "PRE_CONSENT_VIOLATION":
		*s = StatusPreConsentViolation
	case "POST_REJECTION_VIOLATION":
		*s = StatusPostRejectionViolation
	default:
		*s = StatusUnknown
	}
	return nil
}
