// Package verdict turns a classified technology into a compliance status.
//
// Resolve is pure and deterministic; it never consults an oracle.
package verdict

import "github.com/nao1215/consentscan/internal/model"

// NoActionNeeded is the remediation for compliant technologies.
const NoActionNeeded = "No action needed."

// remediationInfo holds category-specific guidance for each violation kind.
type remediationInfo struct {
	preConsent    string
	postRejection string
}

// remediationMapping maps categories to remediation text.
// CategoryNecessary is absent because it can never be a violation.
var remediationMapping = map[model.Category]remediationInfo{
	model.CategoryFunctional: {
		preConsent:    "Functional technology must be blocked until the visitor opts in. Load preference and convenience features only after consent, or document why they are strictly necessary.",
		postRejection: "Functional technology must not fire after the visitor rejected consent. Gate the feature on the stored consent choice.",
	},
	model.CategoryAnalytics: {
		preConsent:    "Analytics must be blocked until the visitor opts in. Defer the measurement tag until the consent platform reports analytics consent.",
		postRejection: "Analytics must not fire after the visitor rejected consent. Check that the tag manager honors the rejected analytics purpose.",
	},
	model.CategoryMarketing: {
		preConsent:    "Marketing and advertising technology must be blocked until the visitor opts in. Prevent ad and retargeting tags from loading before consent.",
		postRejection: "Marketing and advertising technology must not fire after the visitor rejected consent. Remove the tag from the rejected-consent path and clear any identifiers it set.",
	},
	model.CategoryUnknown: {
		preConsent:    "Unclassified technology loaded before consent. Identify its purpose and block it until opt-in unless it is strictly necessary.",
		postRejection: "Unclassified technology fired after consent was rejected. Identify its purpose and stop it on the rejected-consent path unless it is strictly necessary.",
	},
}

// Resolve computes the compliance status and remediation for a technology.
//
// Rules, in priority order:
//  1. NECESSARY is always COMPLIANT.
//  2. Seen in PRE_CONSENT is a PRE_CONSENT_VIOLATION.
//  3. Seen in POST_REJECTION is a POST_REJECTION_VIOLATION.
//  4. Otherwise COMPLIANT.
//
// A technology seen both before consent and after rejection is reported as a
// pre-consent violation only. UNKNOWN is treated as not necessary.
func Resolve(category model.Category, states model.StateSet) (model.ComplianceStatus, string) {
	if category == model.CategoryNecessary {
		return model.StatusCompliant, NoActionNeeded
	}
	info := remediationFor(category)
	if states.Has(model.StatePreConsent) {
		return model.StatusPreConsentViolation, info.preConsent
	}
	if states.Has(model.StatePostRejection) {
		return model.StatusPostRejectionViolation, info.postRejection
	}
	return model.StatusCompliant, NoActionNeeded
}

func remediationFor(category model.Category) remediationInfo {
	if info, ok := remediationMapping[category]; ok {
		return info
	}
	return remediationMapping[model.CategoryUnknown]
}

// ResolveAll applies Resolve to every classified record.
func ResolveAll(records []model.ClassifiedRecord) []model.VerdictRecord {
	out := make([]model.VerdictRecord, 0, len(records))
	for _, rec := range records {
		status, remediation := Resolve(rec.Category, rec.States)
		out = append(out, model.VerdictRecord{
			ClassifiedRecord: rec,
			Status:           status,
			Remediation:      remediation,
		})
	}
	return out
}
