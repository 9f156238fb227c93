package model

import (
	"encoding/json"
	"testing"
	"time"
)

// TestNewScanReport tests the ScanReport constructor.
func TestNewScanReport(t *testing.T) {
	t.Parallel()

	report := NewScanReport("scan-1", "https://www.example.com")

	t.Run("sets identity", func(t *testing.T) {
		t.Parallel()
		if report.ID != "scan-1" || report.Target != "https://www.example.com" {
			t.Errorf("got (%q, %q)", report.ID, report.Target)
		}
	})

	t.Run("sets scan timestamp", func(t *testing.T) {
		t.Parallel()
		if time.Since(report.DateScanned) > time.Second {
			t.Error("DateScanned is too old")
		}
	})

	t.Run("lists encode as empty arrays", func(t *testing.T) {
		t.Parallel()
		data, err := json.Marshal(report)
		if err != nil {
			t.Fatalf("Marshal: %v", err)
		}
		var decoded map[string]any
		if err := json.Unmarshal(data, &decoded); err != nil {
			t.Fatalf("Unmarshal: %v", err)
		}
		for _, field := range []string{"cookies", "trackers", "storage"} {
			if _, ok := decoded[field].([]any); !ok {
				t.Errorf("%s = %v, expected an array", field, decoded[field])
			}
		}
	})
}

// TestSummaryAdd tests the per-status counters.
func TestSummaryAdd(t *testing.T) {
	t.Parallel()

	var s Summary
	s.Add(CategoryAnalytics, StatusPreConsentViolation)
	s.Add(CategoryMarketing, StatusPostRejectionViolation)
	s.Add(CategoryNecessary, StatusCompliant)
	s.Add(CategoryUnknown, StatusUnknown)

	if s.Total != 4 {
		t.Errorf("Total = %d, expected 4", s.Total)
	}
	if s.Violations() != 2 {
		t.Errorf("Violations() = %d, expected 2", s.Violations())
	}
	if s.Compliant != 1 || s.Unknown != 1 {
		t.Errorf("Compliant = %d, Unknown = %d", s.Compliant, s.Unknown)
	}
	if s.ByCategory["ANALYTICS"] != 1 || s.ByCategory["UNKNOWN"] != 1 {
		t.Errorf("ByCategory = %v", s.ByCategory)
	}
}

// TestScanReportJSONRoundTrip checks that enum fields survive storage.
func TestScanReportJSONRoundTrip(t *testing.T) {
	t.Parallel()

	report := NewScanReport("scan-1", "https://www.example.com")
	report.Cookies = append(report.Cookies, CookieEntry{
		Name:   "_ga",
		Domain: ".example.com",
		Party:  PartyFirst,
		Assessment: Assessment{
			Category:       CategoryAnalytics,
			Status:         StatusPreConsentViolation,
			StatesObserved: NewStateSet(StatePreConsent, StatePostRejection),
		},
	})

	data, err := json.Marshal(report)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var decoded ScanReport
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}

	got := decoded.Cookies[0]
	if got.Category != CategoryAnalytics {
		t.Errorf("Category = %v", got.Category)
	}
	if got.Status != StatusPreConsentViolation {
		t.Errorf("Status = %v", got.Status)
	}
	if got.StatesObserved != NewStateSet(StatePreConsent, StatePostRejection) {
		t.Errorf("StatesObserved = %v", got.StatesObserved)
	}
}

// TestCompareReports tests diffing of two scans.
func TestCompareReports(t *testing.T) {
	t.Parallel()

	cookie := func(name string, status ComplianceStatus) CookieEntry {
		return CookieEntry{Name: name, Domain: ".example.com", Assessment: Assessment{Category: CategoryAnalytics, Status: status}}
	}

	previous := NewScanReport("a", "https://example.com")
	previous.Cookies = []CookieEntry{
		cookie("_ga", StatusPreConsentViolation),
		cookie("_gid", StatusPreConsentViolation),
		cookie("_old", StatusPostRejectionViolation),
		cookie("pref", StatusCompliant),
	}
	previous.Summary = Summary{PreConsentViolations: 2, PostRejectionViolations: 1}

	current := NewScanReport("b", "https://example.com")
	current.Cookies = []CookieEntry{
		cookie("_ga", StatusPreConsentViolation),
		cookie("_gid", StatusCompliant),
		cookie("pref", StatusPostRejectionViolation),
		cookie("_new", StatusCompliant),
	}
	current.Summary = Summary{PreConsentViolations: 1, PostRejectionViolations: 1}

	cmp := CompareReports(previous, current)

	if cmp.UnchangedCount != 1 {
		t.Errorf("UnchangedCount = %d, expected 1", cmp.UnchangedCount)
	}
	if cmp.Added != 1 || cmp.Removed != 1 {
		t.Errorf("Added = %d, Removed = %d", cmp.Added, cmp.Removed)
	}
	if len(cmp.NewViolations) != 1 || cmp.NewViolations[0].Name != "pref" {
		t.Errorf("NewViolations = %+v", cmp.NewViolations)
	}
	if len(cmp.ResolvedViolations) != 2 {
		t.Fatalf("ResolvedViolations = %+v", cmp.ResolvedViolations)
	}
	if cmp.ResolvedViolations[0].Name != "_gid" || cmp.ResolvedViolations[1].Name != "_old" {
		t.Errorf("ResolvedViolations not sorted: %+v", cmp.ResolvedViolations)
	}
	if cmp.Direction != DirectionImproved {
		t.Errorf("Direction = %q, expected %q", cmp.Direction, DirectionImproved)
	}
}

// TestCompareReportsStatusChange tests a move between two violation kinds.
func TestCompareReportsStatusChange(t *testing.T) {
	t.Parallel()

	previous := NewScanReport("a", "https://example.com")
	previous.Trackers = []TrackerEntry{{URL: "https://t.example.net/p", Hostname: "t.example.net",
		Assessment: Assessment{Category: CategoryMarketing, Status: StatusPostRejectionViolation}}}
	previous.Summary = Summary{PostRejectionViolations: 1}

	current := NewScanReport("b", "https://example.com")
	current.Trackers = []TrackerEntry{{URL: "https://t.example.net/p", Hostname: "t.example.net",
		Assessment: Assessment{Category: CategoryMarketing, Status: StatusPreConsentViolation}}}
	current.Summary = Summary{PreConsentViolations: 1}

	cmp := CompareReports(previous, current)
	if len(cmp.StatusChanges) != 1 {
		t.Fatalf("StatusChanges = %+v", cmp.StatusChanges)
	}
	change := cmp.StatusChanges[0]
	if change.From != StatusPostRejectionViolation || change.To != StatusPreConsentViolation {
		t.Errorf("change = %+v", change)
	}
	if cmp.Direction != DirectionWorsened {
		t.Errorf("Direction = %q, expected %q", cmp.Direction, DirectionWorsened)
	}
}
