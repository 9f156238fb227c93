package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/nao1215/consentscan/internal/config"
	"github.com/nao1215/consentscan/internal/database"
	"github.com/nao1215/consentscan/internal/model"
	"github.com/nao1215/consentscan/internal/report"
	"github.com/spf13/cobra"
)

// Errors returned by the compare command.
var (
	// ErrSiteRequired is returned when no site argument is given.
	ErrSiteRequired = errors.New("site is required (use --list-sites to see scanned sites)")

	// ErrNotEnoughScans is returned when fewer than two scans are available.
	ErrNotEnoughScans = errors.New("at least 2 scans are required for comparison")
)

// NewCompareCmd creates the compare command.
// This command compares scan results with historical data stored in the database.
func NewCompareCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "compare [site]",
		Short: "Compare scan results with historical data",
		Long: `Compare displays differences between the latest and an earlier scan of a site.

This command retrieves historical scan data from the database and shows:
- New violations that appeared since the earlier scan
- Resolved violations that are gone or compliant now
- Technologies whose status or category changed

Scans are grouped by registrable domain, so www.example.com and example.com
share one history. Use 'consentscan scan' to perform scans and save results.

Examples:
  # Compare latest two scans for a site
  consentscan compare example.com

  # List all scan history for a site
  consentscan compare --list example.com

  # Compare with a specific historical scan by ID
  consentscan compare --with-scan-id 5 example.com

  # Compare with the first scan since a date
  consentscan compare --since "2025-01-01" example.com

  # Output comparison in JSON format
  consentscan compare --json example.com

  # List all scanned sites in the database
  consentscan compare --list-sites

  # Which sites currently set _ga before consent?
  consentscan compare --find _ga --status PRE_CONSENT_VIOLATION`,
		Args: cobra.MaximumNArgs(1),
		RunE: runCompareCmd,
	}

	// History listing flags
	cmd.Flags().BoolP("list", "l", false,
		"List scan history for the specified site")
	cmd.Flags().BoolP("list-sites", "L", false,
		"List all scanned sites in the database")

	// Technology search flags
	cmd.Flags().StringP("find", "f", "",
		"List sites whose latest scan contains this cookie, storage key or request URL")
	cmd.Flags().String("status", "",
		"Restrict --find to one status (e.g. PRE_CONSENT_VIOLATION)")

	// Comparison target flags
	cmd.Flags().Int64P("with-scan-id", "i", 0,
		"Compare with a specific scan by ID (use --list to see available IDs)")
	cmd.Flags().StringP("since", "s", "",
		"Compare with the first scan after this date (format: YYYY-MM-DD)")

	// Output format flags
	cmd.Flags().BoolP("json", "j", false,
		"Output comparison result in JSON format")
	cmd.Flags().BoolP("markdown", "m", false,
		"Output comparison result in Markdown format")

	return cmd
}

// compareOptions holds the parsed compare flags.
type compareOptions struct {
	site       string
	listSites  bool
	list       bool
	find       string
	status     string
	withScanID int64
	since      string
	json       bool
	markdown   bool
}

func parseCompareOptions(cmd *cobra.Command, args []string) (compareOptions, error) {
	var o compareOptions
	var err error
	f := cmd.Flags()

	if o.listSites, err = f.GetBool("list-sites"); err != nil {
		return o, err
	}
	if o.list, err = f.GetBool("list"); err != nil {
		return o, err
	}
	if o.find, err = f.GetString("find"); err != nil {
		return o, err
	}
	if o.status, err = f.GetString("status"); err != nil {
		return o, err
	}
	o.status = strings.ToUpper(strings.TrimSpace(o.status))
	if o.withScanID, err = f.GetInt64("with-scan-id"); err != nil {
		return o, err
	}
	if o.since, err = f.GetString("since"); err != nil {
		return o, err
	}
	if o.json, err = f.GetBool("json"); err != nil {
		return o, err
	}
	if o.markdown, err = f.GetBool("markdown"); err != nil {
		return o, err
	}
	if o.json && o.markdown {
		return o, config.ErrConflictingReportFormats
	}

	// Validate arguments before opening the database so a usage error never
	// leaves a lock behind.
	if len(args) > 0 {
		o.site = database.SiteKey(args[0])
	}
	if o.site == "" && !o.listSites && o.find == "" {
		return o, ErrSiteRequired
	}
	return o, nil
}

// runCompareCmd executes the compare command.
func runCompareCmd(cmd *cobra.Command, args []string) error {
	opts, err := parseCompareOptions(cmd, args)
	if err != nil {
		return err
	}

	db, err := database.Open(config.XDGDataDir(), database.DefaultOptions())
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	return runCompare(cmd.Context(), db, opts, cmd.OutOrStdout())
}

// runCompare dispatches on the parsed options.
func runCompare(ctx context.Context, db *database.ScanDB, opts compareOptions, out io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}
	switch {
	case opts.listSites:
		return listScannedSites(ctx, db, out)
	case opts.find != "":
		return findTechnology(ctx, db, opts.find, opts.status, out)
	case opts.list:
		return listScanHistory(ctx, db, opts.site, out)
	}

	var w report.Writer
	switch {
	case opts.json:
		w = report.NewJSONWriter(out, report.WithPrettyPrint())
	case opts.markdown:
		w = report.NewMarkdownWriter(out)
	default:
		w = report.NewSimpleWriter(out)
	}
	return runComparison(ctx, db, opts.site, opts.withScanID, opts.since, w)
}

// listScannedSites lists all sites that have scan records in the database.
func listScannedSites(ctx context.Context, db *database.ScanDB, out io.Writer) error {
	sites, err := db.ListScannedSites(ctx)
	if err != nil {
		return fmt.Errorf("failed to list sites: %w", err)
	}

	if len(sites) == 0 {
		fmt.Fprintln(out, "No scanned sites found in the database.")
		fmt.Fprintln(out, "\nUse 'consentscan scan <url>' to scan a site.")
		return nil
	}

	fmt.Fprintf(out, "Scanned sites (%d):\n\n", len(sites))
	for _, site := range sites {
		fmt.Fprintf(out, "  • %s\n", site)
	}
	fmt.Fprintln(out, "\nUse 'consentscan compare --list <site>' to see scan history for a site.")

	return nil
}

// listScanHistory lists all scan records for a site.
func listScanHistory(ctx context.Context, db *database.ScanDB, site string, out io.Writer) error {
	reports, err := db.GetScanHistoryWithMetadata(ctx, site)
	if err != nil {
		return fmt.Errorf("failed to get scan history: %w", err)
	}

	if len(reports) == 0 {
		fmt.Fprintf(out, "No scan history found for %s\n", site)
		fmt.Fprintln(out, "\nUse 'consentscan scan' to scan this site.")
		return nil
	}

	fmt.Fprintf(out, "Scan history for %s (%d scans):\n\n", site, len(reports))
	fmt.Fprintf(out, "  %-6s  %-20s  %-6s  %s\n", "ID", "Date", "Pages", "Summary")
	fmt.Fprintln(out, "  "+strings.Repeat("-", 66))

	for _, meta := range reports {
		fmt.Fprintf(out, "  %-6d  %-20s  %-6d  %s\n",
			meta.ID,
			meta.Timestamp.Local().Format("2006-01-02 15:04:05"),
			meta.PagesScanned,
			formatSummary(meta.Summary),
		)
	}

	fmt.Fprintln(out, "\nUse 'consentscan compare <site>' to compare the latest two scans.")
	fmt.Fprintln(out, "Use 'consentscan compare --with-scan-id <id> <site>' to compare with a specific scan.")

	return nil
}

// formatSummary formats the stored verdict counters into a short string.
func formatSummary(summary map[string]int) string {
	if summary == nil {
		return "N/A"
	}
	if summary["total"] == 0 {
		return "No technologies"
	}

	var parts []string
	if v := summary["pre_consent_violations"]; v > 0 {
		parts = append(parts, fmt.Sprintf("PRE:%d", v))
	}
	if v := summary["post_rejection_violations"]; v > 0 {
		parts = append(parts, fmt.Sprintf("POST:%d", v))
	}
	if v := summary["unknown"]; v > 0 {
		parts = append(parts, fmt.Sprintf("?:%d", v))
	}
	if len(parts) == 0 {
		return fmt.Sprintf("%d compliant", summary["compliant"])
	}
	return strings.Join(parts, " ") + fmt.Sprintf(" of %d", summary["total"])
}

// findTechnology lists the sites whose latest scan contains name.
func findTechnology(ctx context.Context, db *database.ScanDB, name, status string, out io.Writer) error {
	records, err := db.QueryTechnologies(ctx, name, status)
	if err != nil {
		return err
	}

	if len(records) == 0 {
		fmt.Fprintf(out, "No site's latest scan contains %s\n", name)
		return nil
	}

	fmt.Fprintf(out, "Sites with %s (%d):\n\n", name, len(records))
	fmt.Fprintf(out, "  %-24s  %-8s  %-28s  %-12s  %s\n", "Site", "Kind", "Scope", "Category", "Status")
	fmt.Fprintln(out, "  "+strings.Repeat("-", 100))
	for _, r := range records {
		fmt.Fprintf(out, "  %-24s  %-8s  %-28s  %-12s  %s\n", r.Site, r.Kind, r.Scope, r.Category, r.Status)
	}
	return nil
}

// runComparison performs the actual comparison between scan reports.
func runComparison(ctx context.Context, db *database.ScanDB, site string, withScanID int64, sinceDate string, w report.Writer) error {
	reports, err := db.GetScanHistory(ctx, site)
	if err != nil {
		return fmt.Errorf("failed to get scan history: %w", err)
	}

	if len(reports) == 0 {
		return fmt.Errorf("no scan history found for %s", site)
	}

	if len(reports) < 2 && withScanID == 0 && sinceDate == "" {
		return fmt.Errorf("%w (found %d)", ErrNotEnoughScans, len(reports))
	}

	// Latest report is always the current one
	current := reports[0]
	var previous *model.ScanReport

	switch {
	case withScanID > 0:
		previous, err = db.GetScanReportByID(ctx, withScanID)
		if err != nil {
			return fmt.Errorf("failed to get scan with ID %d: %w", withScanID, err)
		}
		if got := siteOf(previous); got != site {
			return fmt.Errorf("scan ID %d belongs to %s, not %s", withScanID, got, site)
		}
		if previous.ID == current.ID {
			return fmt.Errorf("scan ID %d is the latest scan; %w", withScanID, ErrNotEnoughScans)
		}
	case sinceDate != "":
		parsedDate, err := time.Parse("2006-01-02", sinceDate)
		if err != nil {
			return fmt.Errorf("invalid date format (use YYYY-MM-DD): %w", err)
		}

		// Reports are sorted newest first, so iterate in reverse to find the
		// oldest report at or after the date.
		for i := len(reports) - 1; i >= 0; i-- {
			if !reports[i].DateScanned.Before(parsedDate) {
				previous = reports[i]
				break
			}
		}
		if previous == nil {
			return fmt.Errorf("no scans found since %s", sinceDate)
		}
		if previous == current {
			return fmt.Errorf("only one scan found since %s; %w", sinceDate, ErrNotEnoughScans)
		}
	default:
		previous = reports[1]
	}

	_, err = w.WriteComparison(model.CompareReports(previous, current))
	return err
}

// siteOf returns the history key of a stored report.
func siteOf(r *model.ScanReport) string {
	if r.RootDomain != "" {
		return r.RootDomain
	}
	return database.SiteKey(r.Target)
}
