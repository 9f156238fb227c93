package model

import (
	"sort"
	"time"
)

// Risk direction values used by Comparison.
const (
	DirectionWorsened  = "worsened"
	DirectionImproved  = "improved"
	DirectionUnchanged = "unchanged"
)

// Comparison holds the result of comparing two scan reports of the same site.
type Comparison struct {
	Target string `json:"target"`

	Previous ScanSnapshot `json:"previous_scan"`
	Current  ScanSnapshot `json:"current_scan"`

	// NewViolations are violations present now that were not violations before
	// (either new technologies or technologies whose status got worse).
	NewViolations []NamedAssessment `json:"new_violations,omitempty"`

	// ResolvedViolations were violations in the previous scan and are either
	// gone or compliant now.
	ResolvedViolations []NamedAssessment `json:"resolved_violations,omitempty"`

	// StatusChanges lists technologies present in both scans whose status moved
	// between two non-compliant values or between categories.
	StatusChanges []StatusChange `json:"status_changes,omitempty"`

	// Added and Removed count technologies that appeared or disappeared
	// regardless of status.
	Added   int `json:"added"`
	Removed int `json:"removed"`

	UnchangedCount int    `json:"unchanged_count"`
	Direction      string `json:"direction"`
}

// ScanSnapshot contains the headline numbers of one scan.
type ScanSnapshot struct {
	DateScanned             time.Time `json:"date_scanned"`
	PagesScanned            int       `json:"pages_scanned"`
	Total                   int       `json:"total"`
	PreConsentViolations    int       `json:"pre_consent_violations"`
	PostRejectionViolations int       `json:"post_rejection_violations"`
}

// StatusChange records a technology whose verdict changed between scans.
type StatusChange struct {
	Identity string           `json:"identity"`
	From     ComplianceStatus `json:"from"`
	To       ComplianceStatus `json:"to"`
	Category Category         `json:"category"`
}

func snapshotOf(r *ScanReport) ScanSnapshot {
	return ScanSnapshot{
		DateScanned:             r.DateScanned,
		PagesScanned:            r.PagesScanned,
		Total:                   r.Summary.Total,
		PreConsentViolations:    r.Summary.PreConsentViolations,
		PostRejectionViolations: r.Summary.PostRejectionViolations,
	}
}

// CompareReports diffs previous against current.
// Output lists are sorted by identity so the result is deterministic.
func CompareReports(previous, current *ScanReport) *Comparison {
	result := &Comparison{
		Target:   current.Target,
		Previous: snapshotOf(previous),
		Current:  snapshotOf(current),
	}

	prev := make(map[string]NamedAssessment)
	for _, a := range previous.AllAssessments() {
		prev[a.Identity()] = a
	}
	curr := make(map[string]NamedAssessment)
	for _, a := range current.AllAssessments() {
		curr[a.Identity()] = a
	}

	for id, now := range curr {
		before, existed := prev[id]
		switch {
		case !existed:
			result.Added++
			if now.Status.IsViolation() {
				result.NewViolations = append(result.NewViolations, now)
			}
		case before.Status == now.Status && before.Category == now.Category:
			result.UnchangedCount++
		case now.Status.IsViolation() && !before.Status.IsViolation():
			result.NewViolations = append(result.NewViolations, now)
		case before.Status.IsViolation() && !now.Status.IsViolation():
			result.ResolvedViolations = append(result.ResolvedViolations, before)
		default:
			result.StatusChanges = append(result.StatusChanges, StatusChange{
				Identity: id,
				From:     before.Status,
				To:       now.Status,
				Category: now.Category,
			})
		}
	}
	for id, before := range prev {
		if _, exists := curr[id]; exists {
			continue
		}
		result.Removed++
		if before.Status.IsViolation() {
			result.ResolvedViolations = append(result.ResolvedViolations, before)
		}
	}

	byIdentity := func(list []NamedAssessment) {
		sort.Slice(list, func(i, j int) bool { return list[i].Identity() < list[j].Identity() })
	}
	byIdentity(result.NewViolations)
	byIdentity(result.ResolvedViolations)
	sort.Slice(result.StatusChanges, func(i, j int) bool {
		return result.StatusChanges[i].Identity < result.StatusChanges[j].Identity
	})

	// Pre-consent violations weigh more than post-rejection ones: they affect
	// every visitor, not only those who declined.
	prevScore := previous.Summary.PreConsentViolations*2 + previous.Summary.PostRejectionViolations
	currScore := current.Summary.PreConsentViolations*2 + current.Summary.PostRejectionViolations
	switch {
	case currScore < prevScore:
		result.Direction = DirectionImproved
	case currScore > prevScore:
		result.Direction = DirectionWorsened
	default:
		result.Direction = DirectionUnchanged
	}
	return result
}
