package database

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/nao1215/consentscan/internal/model"
)

// setupTestDB creates a temporary database for testing.
func setupTestDB(t *testing.T) *ScanDB {
	t.Helper()

	db, err := Open(t.TempDir(), DefaultOptions())
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func testReport(id, target string, scanned time.Time, statuses ...model.ComplianceStatus) *model.ScanReport {
	report := model.NewScanReport(id, target)
	report.RootDomain = SiteKey(target)
	report.DateScanned = scanned
	report.PagesScanned = 3
	for i, status := range statuses {
		entry := model.CookieEntry{
			Name:   "cookie-" + string(rune('a'+i)),
			Domain: ".example.com",
			Party:  model.PartyFirst,
			Assessment: model.Assessment{
				Category:       model.CategoryAnalytics,
				Status:         status,
				StatesObserved: model.NewStateSet(model.StatePreConsent),
			},
		}
		report.Cookies = append(report.Cookies, entry)
		report.Summary.Add(entry.Category, status)
	}
	return report
}

// TestOpen tests database opening and creation.
func TestOpen(t *testing.T) {
	t.Parallel()

	t.Run("creates database in new directory", func(t *testing.T) {
		t.Parallel()

		dbDir := filepath.Join(t.TempDir(), "newdir", "subdir")
		db, err := Open(dbDir, DefaultOptions())
		if err != nil {
			t.Fatalf("failed to open database: %v", err)
		}
		defer db.Close()

		if _, err := os.Stat(filepath.Join(dbDir, FileName)); os.IsNotExist(err) {
			t.Error("database file was not created")
		}
		if db.Path() != filepath.Join(dbDir, FileName) {
			t.Errorf("Path() = %q", db.Path())
		}
	})

	t.Run("CreateIfNotExists=false returns error when database does not exist", func(t *testing.T) {
		t.Parallel()

		dbDir := filepath.Join(t.TempDir(), "missing")
		if _, err := Open(dbDir, Options{CreateIfNotExists: false}); err == nil {
			t.Fatal("expected error for missing database")
		}
		if _, err := os.Stat(dbDir); !os.IsNotExist(err) {
			t.Error("directory should not have been created")
		}
	})

	t.Run("CreateIfNotExists=false opens existing database", func(t *testing.T) {
		t.Parallel()

		dbDir := t.TempDir()
		db, err := Open(dbDir, DefaultOptions())
		if err != nil {
			t.Fatalf("failed to create database: %v", err)
		}
		_ = db.Close()

		db, err = Open(dbDir, Options{CreateIfNotExists: false, EnableWAL: true})
		if err != nil {
			t.Fatalf("failed to reopen database: %v", err)
		}
		_ = db.Close()
	})
}

// TestSiteKey tests history key normalization.
func TestSiteKey(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want string
	}{
		{"https://www.example.com/shop", "example.com"},
		{"example.com", "example.com"},
		{"WWW.Example.COM", "example.com"},
		{"https://shop.example.co.uk", "example.co.uk"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			t.Parallel()
			if got := SiteKey(tt.in); got != tt.want {
				t.Errorf("SiteKey(%q) = %q, expected %q", tt.in, got, tt.want)
			}
		})
	}
}

// TestSaveAndGetScanReport tests round-tripping reports through SQLite.
func TestSaveAndGetScanReport(t *testing.T) {
	t.Parallel()

	db := setupTestDB(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	older := testReport("scan-1", "https://www.example.com", base, model.StatusPreConsentViolation)
	newer := testReport("scan-2", "https://example.com/about", base.Add(time.Hour), model.StatusCompliant, model.StatusPostRejectionViolation)

	if _, err := db.SaveScanReport(ctx, older); err != nil {
		t.Fatalf("SaveScanReport: %v", err)
	}
	id, err := db.SaveScanReport(ctx, newer)
	if err != nil {
		t.Fatalf("SaveScanReport: %v", err)
	}

	t.Run("latest report wins", func(t *testing.T) {
		t.Parallel()
		got, err := db.GetLatestScanReport(ctx, "www.example.com")
		if err != nil {
			t.Fatalf("GetLatestScanReport: %v", err)
		}
		if got.ID != "scan-2" {
			t.Errorf("ID = %q, expected scan-2", got.ID)
		}
		if diff := cmp.Diff(newer.Summary, got.Summary); diff != "" {
			t.Errorf("Summary mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("lookup by id", func(t *testing.T) {
		t.Parallel()
		got, err := db.GetScanReportByID(ctx, id)
		if err != nil {
			t.Fatalf("GetScanReportByID: %v", err)
		}
		if got.Cookies[1].Status != model.StatusPostRejectionViolation {
			t.Errorf("Status = %v", got.Cookies[1].Status)
		}
	})

	t.Run("history is newest first", func(t *testing.T) {
		t.Parallel()
		history, err := db.GetScanHistory(ctx, "example.com")
		if err != nil {
			t.Fatalf("GetScanHistory: %v", err)
		}
		if len(history) != 2 || history[0].ID != "scan-2" || history[1].ID != "scan-1" {
			t.Errorf("history order wrong: %d reports", len(history))
		}
	})

	t.Run("metadata", func(t *testing.T) {
		t.Parallel()
		meta, err := db.GetScanHistoryWithMetadata(ctx, "example.com")
		if err != nil {
			t.Fatalf("GetScanHistoryWithMetadata: %v", err)
		}
		if len(meta) != 2 {
			t.Fatalf("len(meta) = %d", len(meta))
		}
		if meta[0].ScanID != "scan-2" || meta[0].PagesScanned != 3 {
			t.Errorf("meta[0] = %+v", meta[0])
		}
		if !meta[1].Timestamp.Equal(base) {
			t.Errorf("Timestamp = %v, expected %v", meta[1].Timestamp, base)
		}
		if meta[0].Summary["post_rejection_violations"] != 1 || meta[0].Summary["total"] != 2 {
			t.Errorf("Summary = %v", meta[0].Summary)
		}
	})

	t.Run("sites", func(t *testing.T) {
		t.Parallel()
		sites, err := db.ListScannedSites(ctx)
		if err != nil {
			t.Fatalf("ListScannedSites: %v", err)
		}
		if diff := cmp.Diff([]string{"example.com"}, sites); diff != "" {
			t.Errorf("sites mismatch (-want +got):\n%s", diff)
		}
	})
}

// TestNotFound tests lookups that match nothing.
func TestNotFound(t *testing.T) {
	t.Parallel()

	db := setupTestDB(t)
	ctx := context.Background()

	if _, err := db.GetLatestScanReport(ctx, "nowhere.example"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetLatestScanReport error = %v, expected ErrNotFound", err)
	}
	if _, err := db.GetScanReportByID(ctx, 42); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetScanReportByID error = %v, expected ErrNotFound", err)
	}
	history, err := db.GetScanHistory(ctx, "nowhere.example")
	if err != nil || len(history) != 0 {
		t.Errorf("GetScanHistory = %v, %v", history, err)
	}
}

// TestQueryTechnologies tests the technology index.
func TestQueryTechnologies(t *testing.T) {
	t.Parallel()

	db := setupTestDB(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	// The older example.com scan must not be searched.
	reports := []*model.ScanReport{
		testReport("a-1", "https://example.com", base, model.StatusPreConsentViolation, model.StatusPreConsentViolation),
		testReport("a-2", "https://example.com", base.Add(time.Hour), model.StatusCompliant),
		testReport("b-1", "https://example.org", base, model.StatusPreConsentViolation),
	}
	for _, r := range reports {
		if _, err := db.SaveScanReport(ctx, r); err != nil {
			t.Fatalf("SaveScanReport(%s): %v", r.ID, err)
		}
	}

	violations, err := db.QueryTechnologies(ctx, "", model.StatusPreConsentViolation.String())
	if err != nil {
		t.Fatalf("QueryTechnologies: %v", err)
	}
	if len(violations) != 1 || violations[0].Site != "example.org" {
		t.Errorf("violations = %+v", violations)
	}

	named, err := db.QueryTechnologies(ctx, "cookie-a", "")
	if err != nil {
		t.Fatalf("QueryTechnologies: %v", err)
	}
	if len(named) != 2 {
		t.Fatalf("named = %+v", named)
	}
	if named[0].Site != "example.com" || named[0].Status != model.StatusCompliant.String() {
		t.Errorf("named[0] = %+v", named[0])
	}
	if named[0].Kind != "cookie" || named[0].Category != "ANALYTICS" {
		t.Errorf("named[0] = %+v", named[0])
	}
}

// TestParseTimestamp tests the timestamp parser.
func TestParseTimestamp(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want time.Time
	}{
		{"2026-03-01 12:00:00.250", time.Date(2026, 3, 1, 12, 0, 0, 250_000_000, time.UTC)},
		{"2026-03-01 12:00:00", time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)},
		{"2026-03-01T12:00:00Z", time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)},
		{"garbage", time.Time{}},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			t.Parallel()
			if got := parseTimestamp(tt.in); !got.Equal(tt.want) {
				t.Errorf("parseTimestamp(%q) = %v, expected %v", tt.in, got, tt.want)
			}
		})
	}
}
