package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/nao1215/consentscan/internal/domain"
	"github.com/nao1215/consentscan/internal/model"
)

// FileName is the database file created inside the data directory.
const FileName = "consentscan.db"

// ScanDB provides SQLite-based storage for scan history.
// Reports are stored as JSON; every technology of a report is also indexed
// in its own table so that sites can be queried by technology.
//
// Design decision: A single database file holds every site. History queries
// are per site, keyed by the registrable domain, so example.com and
// www.example.com share one history.
type ScanDB struct {
	db     *sql.DB
	dbPath string
}

// Options configures ScanDB behavior.
type Options struct {
	// CreateIfNotExists creates the database file if it doesn't exist.
	CreateIfNotExists bool

	// EnableWAL enables Write-Ahead Logging.
	EnableWAL bool
}

// DefaultOptions returns the default database options.
func DefaultOptions() Options {
	return Options{
		CreateIfNotExists: true,
		EnableWAL:         true,
	}
}

// ErrNotFound is returned when a requested scan does not exist.
var ErrNotFound = errors.New("scan report not found")

// Open opens or creates a ScanDB in dbDir.
func Open(dbDir string, opts Options) (*ScanDB, error) {
	dbPath := filepath.Join(dbDir, FileName)

	if !opts.CreateIfNotExists {
		if _, err := os.Stat(dbPath); os.IsNotExist(err) {
			return nil, fmt.Errorf("database not found at %s (run a scan first)", dbPath)
		} else if err != nil {
			return nil, fmt.Errorf("failed to check database path: %w", err)
		}
	} else {
		if err := os.MkdirAll(dbDir, 0750); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	// mode=rw refuses to create a missing file.
	dsn := dbPath + "?mode=rw"
	if opts.CreateIfNotExists {
		dsn = dbPath + "?mode=rwc"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1) // SQLite only supports one writer
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	sdb := &ScanDB{db: db, dbPath: dbPath}

	if opts.EnableWAL {
		if _, err := db.ExecContext(context.Background(), "PRAGMA journal_mode=WAL"); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
		}
	}
	if err := sdb.createTables(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return sdb, nil
}

// Path returns the database file path.
func (sdb *ScanDB) Path() string {
	return sdb.dbPath
}

// Close closes the database connection.
func (sdb *ScanDB) Close() error {
	return sdb.db.Close()
}

func (sdb *ScanDB) createTables() error {
	schema := `
	-- Scan reports store complete scan results as JSON
	CREATE TABLE IF NOT EXISTS scan_reports (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		scan_id TEXT NOT NULL UNIQUE,
		site TEXT NOT NULL,
		target TEXT NOT NULL,
		timestamp DATETIME NOT NULL,
		pages_scanned INTEGER DEFAULT 0,
		report_json TEXT NOT NULL,
		summary TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_reports_site ON scan_reports(site);
	CREATE INDEX IF NOT EXISTS idx_reports_timestamp ON scan_reports(timestamp);

	-- Technologies index every assessed technology of every report
	CREATE TABLE IF NOT EXISTS technologies (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		report_id INTEGER NOT NULL REFERENCES scan_reports(id) ON DELETE CASCADE,
		site TEXT NOT NULL,
		kind TEXT NOT NULL,
		name TEXT NOT NULL,
		scope TEXT NOT NULL,
		category TEXT NOT NULL,
		status TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_tech_name ON technologies(name);
	CREATE INDEX IF NOT EXISTS idx_tech_site ON technologies(site);
	CREATE INDEX IF NOT EXISTS idx_tech_status ON technologies(status);
	`
	_, err := sdb.db.ExecContext(context.Background(), schema)
	return err
}

// SiteKey returns the history key of a target: the registrable domain of
// its host. Bare hostnames are accepted.
func SiteKey(target string) string {
	t := strings.TrimSpace(target)
	if !strings.Contains(t, "://") {
		t = "https://" + t
	}
	site, err := domain.RegistrableFromURL(t)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(target))
	}
	return site
}

const timestampLayout = "2006-01-02 15:04:05.000"

// SaveScanReport saves a report and indexes its technologies.
// It returns the database ID of the stored report.
func (sdb *ScanDB) SaveScanReport(ctx context.Context, report *model.ScanReport) (int64, error) {
	reportJSON, err := json.Marshal(report)
	if err != nil {
		return 0, fmt.Errorf("failed to serialize report: %w", err)
	}
	summary := map[string]int{
		"total":                     report.Summary.Total,
		"compliant":                 report.Summary.Compliant,
		"pre_consent_violations":    report.Summary.PreConsentViolations,
		"post_rejection_violations": report.Summary.PostRejectionViolations,
		"unknown":                   report.Summary.Unknown,
	}
	summaryJSON, _ := json.Marshal(summary) //nolint:errcheck,errchkjson // summary is a simple map; Marshal won't fail

	site := report.RootDomain
	if site == "" {
		site = SiteKey(report.Target)
	}

	tx, err := sdb.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	result, err := tx.ExecContext(ctx, `
	INSERT INTO scan_reports (scan_id, site, target, timestamp, pages_scanned, report_json, summary)
	VALUES (?, ?, ?, ?, ?, ?, ?)
	`,
		report.ID,
		site,
		report.Target,
		report.DateScanned.UTC().Format(timestampLayout),
		report.PagesScanned,
		string(reportJSON),
		string(summaryJSON),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to save scan report: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read report id: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
	INSERT INTO technologies (report_id, site, kind, name, scope, category, status)
	VALUES (?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare technology insert: %w", err)
	}
	defer stmt.Close()

	for _, a := range report.AllAssessments() {
		if _, err := stmt.ExecContext(ctx, id, site, a.Kind.String(), a.Name, a.Scope, a.Category.String(), a.Status.String()); err != nil {
			return 0, fmt.Errorf("failed to index technology %q: %w", a.Name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit scan report: %w", err)
	}
	return id, nil
}

func decodeReport(reportJSON string) (*model.ScanReport, error) {
	var report model.ScanReport
	if err := json.Unmarshal([]byte(reportJSON), &report); err != nil {
		return nil, fmt.Errorf("failed to parse report: %w", err)
	}
	return &report, nil
}

// GetLatestScanReport returns the most recent report for site, or
// ErrNotFound.
func (sdb *ScanDB) GetLatestScanReport(ctx context.Context, site string) (*model.ScanReport, error) {
	query := `
	SELECT report_json FROM scan_reports
	WHERE site = ?
	ORDER BY timestamp DESC, id DESC
	LIMIT 1
	`
	var reportJSON string
	err := sdb.db.QueryRowContext(ctx, query, SiteKey(site)).Scan(&reportJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get scan report: %w", err)
	}
	return decodeReport(reportJSON)
}

// GetScanReportByID returns a report by database ID, or ErrNotFound.
func (sdb *ScanDB) GetScanReportByID(ctx context.Context, id int64) (*model.ScanReport, error) {
	var reportJSON string
	err := sdb.db.QueryRowContext(ctx, `SELECT report_json FROM scan_reports WHERE id = ?`, id).Scan(&reportJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get scan report: %w", err)
	}
	return decodeReport(reportJSON)
}

// ListScannedSites returns every site with at least one report.
func (sdb *ScanDB) ListScannedSites(ctx context.Context) ([]string, error) {
	rows, err := sdb.db.QueryContext(ctx, `SELECT DISTINCT site FROM scan_reports ORDER BY site`)
	if err != nil {
		return nil, fmt.Errorf("failed to list sites: %w", err)
	}
	defer rows.Close()

	var sites []string
	for rows.Next() {
		var site string
		if err := rows.Scan(&site); err != nil {
			return nil, fmt.Errorf("failed to scan site: %w", err)
		}
		sites = append(sites, site)
	}
	return sites, rows.Err()
}

// GetScanHistory returns every report of site, newest first.
// Reports that no longer decode are skipped.
func (sdb *ScanDB) GetScanHistory(ctx context.Context, site string) ([]*model.ScanReport, error) {
	query := `
	SELECT report_json FROM scan_reports
	WHERE site = ?
	ORDER BY timestamp DESC, id DESC
	`
	rows, err := sdb.db.QueryContext(ctx, query, SiteKey(site))
	if err != nil {
		return nil, fmt.Errorf("failed to get scan history: %w", err)
	}
	defer rows.Close()

	var reports []*model.ScanReport
	for rows.Next() {
		var reportJSON string
		if err := rows.Scan(&reportJSON); err != nil {
			return nil, fmt.Errorf("failed to scan report: %w", err)
		}
		report, err := decodeReport(reportJSON)
		if err != nil {
			continue
		}
		reports = append(reports, report)
	}
	return reports, rows.Err()
}

// ScanReportMetadata contains summary information about a stored report.
type ScanReportMetadata struct {
	// ID is the database ID, usable with GetScanReportByID.
	ID int64

	// ScanID is the report's own identifier.
	ScanID string

	Site         string
	Target       string
	Timestamp    time.Time
	PagesScanned int

	// Summary holds the report's verdict counters.
	Summary map[string]int
}

// GetScanHistoryWithMetadata returns report metadata for site, newest first,
// without decoding the reports.
func (sdb *ScanDB) GetScanHistoryWithMetadata(ctx context.Context, site string) ([]ScanReportMetadata, error) {
	query := `
	SELECT id, scan_id, site, target, timestamp, pages_scanned, summary
	FROM scan_reports
	WHERE site = ?
	ORDER BY timestamp DESC, id DESC
	`
	rows, err := sdb.db.QueryContext(ctx, query, SiteKey(site))
	if err != nil {
		return nil, fmt.Errorf("failed to get scan history: %w", err)
	}
	defer rows.Close()

	var results []ScanReportMetadata
	for rows.Next() {
		var meta ScanReportMetadata
		var timestamp string
		var summaryJSON sql.NullString

		if err := rows.Scan(&meta.ID, &meta.ScanID, &meta.Site, &meta.Target, &timestamp, &meta.PagesScanned, &summaryJSON); err != nil {
			return nil, fmt.Errorf("failed to scan metadata: %w", err)
		}
		meta.Timestamp = parseTimestamp(timestamp)
		meta.Summary = make(map[string]int)
		if summaryJSON.Valid && summaryJSON.String != "" {
			if err := json.Unmarshal([]byte(summaryJSON.String), &meta.Summary); err != nil {
				meta.Summary = make(map[string]int)
			}
		}
		results = append(results, meta)
	}
	return results, rows.Err()
}

// TechnologyRecord is one indexed technology.
type TechnologyRecord struct {
	ReportID int64
	Site     string
	Kind     string
	Name     string
	Scope    string
	Category string
	Status   string
}

// QueryTechnologies lists indexed technologies with optional filters on name
// and status. Only the latest report of each site is searched.
func (sdb *ScanDB) QueryTechnologies(ctx context.Context, name, status string) ([]TechnologyRecord, error) {
	query := `
	SELECT t.report_id, t.site, t.kind, t.name, t.scope, t.category, t.status
	FROM technologies t
	WHERE t.report_id IN (
		SELECT r.id FROM scan_reports r
		WHERE r.id = (
			SELECT r2.id FROM scan_reports r2
			WHERE r2.site = r.site
			ORDER BY r2.timestamp DESC, r2.id DESC
			LIMIT 1
		)
	)
	`
	args := make([]any, 0, 2)
	if name != "" {
		query += " AND t.name = ?"
		args = append(args, name)
	}
	if status != "" {
		query += " AND t.status = ?"
		args = append(args, status)
	}
	query += " ORDER BY t.site, t.kind, t.name"

	rows, err := sdb.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query technologies: %w", err)
	}
	defer rows.Close()

	var results []TechnologyRecord
	for rows.Next() {
		var rec TechnologyRecord
		if err := rows.Scan(&rec.ReportID, &rec.Site, &rec.Kind, &rec.Name, &rec.Scope, &rec.Category, &rec.Status); err != nil {
			return nil, fmt.Errorf("failed to scan technology: %w", err)
		}
		results = append(results, rec)
	}
	return results, rows.Err()
}

// timestampFormats contains the timestamp formats that SQLite may return.
// The order matters: more specific formats should come first.
var timestampFormats = []string{
	timestampLayout,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05Z",
	"2006-01-02T15:04:05",
	time.RFC3339,
	time.RFC3339Nano,
}

// parseTimestamp tries every known layout and returns the zero time if none
// matches.
func parseTimestamp(s string) time.Time {
	for _, format := range timestampFormats {
		if t, err := time.Parse(format, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
