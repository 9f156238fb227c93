package report

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/nao1215/consentscan/internal/model"
)

// SimpleWriter outputs human-readable text reports.
// This format is designed for terminal display with clear section formatting.
//
// Design decision: We use plain text with ASCII formatting rather than
// ANSI colors so that output can be piped to files or other tools unchanged.
type SimpleWriter struct {
	baseWriter

	// showEmpty controls whether sections with no entries are shown.
	showEmpty bool

	// verbose adds compliant technologies and the pages each one was seen on.
	verbose bool
}

// SimpleWriterOption configures a SimpleWriter.
type SimpleWriterOption func(*SimpleWriter)

// WithShowEmpty configures the writer to show empty sections.
func WithShowEmpty(show bool) SimpleWriterOption {
	return func(w *SimpleWriter) {
		w.showEmpty = show
	}
}

// WithVerbose enables verbose output with additional details.
func WithVerbose(verbose bool) SimpleWriterOption {
	return func(w *SimpleWriter) {
		w.verbose = verbose
	}
}

// NewSimpleWriter creates a SimpleWriter that outputs to the given writer.
func NewSimpleWriter(output io.Writer, opts ...SimpleWriterOption) *SimpleWriter {
	w := &SimpleWriter{
		baseWriter: newBaseWriter(output),
	}

	for _, opt := range opts {
		opt(w)
	}

	return w
}

const ruleWidth = 70

func rule(sb *strings.Builder, ch string) {
	sb.WriteString(strings.Repeat(ch, ruleWidth))
	sb.WriteString("\n")
}

func section(sb *strings.Builder, title string) {
	rule(sb, "-")
	sb.WriteString(title)
	sb.WriteString("\n")
	rule(sb, "-")
	sb.WriteString("\n")
}

// Write outputs the full report in human-readable format.
func (w *SimpleWriter) Write(report *model.ScanReport) (int, error) {
	var sb strings.Builder

	w.writeHeader(&sb, report)
	w.writeSummary(&sb, report)
	w.writeRegulations(&sb, report)
	w.writeFindings(&sb, report)
	w.writeFooter(&sb)

	return w.output.Write([]byte(sb.String()))
}

// writeHeader writes the report header with scan information.
func (w *SimpleWriter) writeHeader(sb *strings.Builder, report *model.ScanReport) {
	sb.WriteString("\n")
	rule(sb, "=")
	sb.WriteString("                        CONSENTSCAN REPORT\n")
	rule(sb, "=")
	sb.WriteString("\n")

	fmt.Fprintf(sb, "Target:         %s\n", report.Target)
	if report.RootDomain != "" {
		fmt.Fprintf(sb, "Root Domain:    %s\n", report.RootDomain)
	}
	fmt.Fprintf(sb, "Scan Date:      %s\n", report.DateScanned.Format("2006-01-02 15:04:05 MST"))
	if report.Duration > 0 {
		fmt.Fprintf(sb, "Duration:       %s\n", report.Duration.Round(100*time.Millisecond))
	}
	fmt.Fprintf(sb, "Pages Scanned:  %d\n", report.PagesScanned)
	if report.ConsentBannerDetected {
		sb.WriteString("Consent Banner: Detected\n")
	} else {
		sb.WriteString("Consent Banner: Not detected\n")
	}
	if len(report.ConsentFrameworks) > 0 {
		fmt.Fprintf(sb, "Frameworks:     %s\n", strings.Join(report.ConsentFrameworks, ", "))
	}
	sb.WriteString("\n")
}

// writeSummary writes the compliance counters.
func (w *SimpleWriter) writeSummary(sb *strings.Builder, report *model.ScanReport) {
	section(sb, "COMPLIANCE SUMMARY")

	s := report.Summary
	fmt.Fprintf(sb, "  PRE-CONSENT VIOLATIONS:    %d\n", s.PreConsentViolations)
	fmt.Fprintf(sb, "  POST-REJECTION VIOLATIONS: %d\n", s.PostRejectionViolations)
	fmt.Fprintf(sb, "  COMPLIANT:                 %d\n", s.Compliant)
	fmt.Fprintf(sb, "  UNKNOWN:                   %d\n", s.Unknown)
	sb.WriteString("\n")
	fmt.Fprintf(sb, "  TOTAL:                     %d technologies (%d cookies, %d trackers, %d storage items)\n",
		s.Total, len(report.Cookies), len(report.Trackers), len(report.Storage))
	sb.WriteString("\n")

	if len(s.ByCategory) > 0 {
		sb.WriteString("  By category:\n")
		for _, c := range model.Categories {
			n := s.ByCategory[c.String()]
			if n == 0 && !w.showEmpty {
				continue
			}
			fmt.Fprintf(sb, "    %-12s %d\n", humanize(c.String()), n)
		}
		sb.WriteString("\n")
	}
}

// writeRegulations writes one line per regulation.
func (w *SimpleWriter) writeRegulations(sb *strings.Builder, report *model.ScanReport) {
	names := sortedRegulations(report)
	if len(names) == 0 && !w.showEmpty {
		return
	}

	section(sb, "REGULATORY RISK")
	if len(names) == 0 {
		sb.WriteString("  No assessment available\n\n")
		return
	}
	for _, name := range names {
		risk := report.Regulations[name]
		fmt.Fprintf(sb, "  %-9s [%s]\n", name, strings.ToUpper(string(risk.Level)))
		if risk.Assessment != "" {
			fmt.Fprintf(sb, "            %s\n", risk.Assessment)
		}
	}
	sb.WriteString("\n")
}

// writeFindings writes technologies grouped by compliance status.
func (w *SimpleWriter) writeFindings(sb *strings.Builder, report *model.ScanReport) {
	groups := assessmentsByStatus(report)
	if report.Summary.Violations() == 0 && len(groups[model.StatusUnknown]) == 0 && !w.verbose && !w.showEmpty {
		return
	}

	section(sb, "FINDINGS")

	for _, status := range statusOrder {
		if status == model.StatusCompliant && !w.verbose {
			continue
		}
		entries := groups[status]
		if len(entries) == 0 && !w.showEmpty {
			continue
		}
		w.writeStatusGroup(sb, status, entries)
	}
}

// writeStatusGroup writes the entries of one status.
func (w *SimpleWriter) writeStatusGroup(sb *strings.Builder, status model.ComplianceStatus, entries []model.NamedAssessment) {
	fmt.Fprintf(sb, "[%s] %s (%d)\n", statusIndicator(status), status.String(), len(entries))

	if len(entries) == 0 {
		sb.WriteString("  None\n\n")
		return
	}

	for _, e := range entries {
		fmt.Fprintf(sb, "  * [%s] %s\n", e.Kind.String(), truncateString(e.Name, 100))
		if e.Scope != "" {
			fmt.Fprintf(sb, "    Scope:    %s\n", e.Scope)
		}
		fmt.Fprintf(sb, "    Category: %s\n", humanize(e.Category.String()))
		if e.Purpose != "" {
			fmt.Fprintf(sb, "    Purpose:  %s\n", e.Purpose)
		}
		fmt.Fprintf(sb, "    Observed: %s\n", e.StatesObserved.String())
		if e.Remediation != "" && status.IsViolation() {
			fmt.Fprintf(sb, "    Fix:      %s\n", e.Remediation)
		}
		if w.verbose {
			for _, page := range e.PagesFound {
				fmt.Fprintf(sb, "    Page:     %s\n", page)
			}
		}
	}
	sb.WriteString("\n")
}

// statusIndicator returns a visual indicator for the status.
func statusIndicator(status model.ComplianceStatus) string {
	switch status {
	case model.StatusPreConsentViolation:
		return "!!"
	case model.StatusPostRejectionViolation:
		return "!"
	case model.StatusCompliant:
		return "ok"
	default:
		return "?"
	}
}

// writeFooter writes the report footer.
func (w *SimpleWriter) writeFooter(sb *strings.Builder) {
	rule(sb, "=")
	sb.WriteString("Report generated by consentscan\n")
	sb.WriteString("https://github.com/nao1215/consentscan\n")
	rule(sb, "=")
}

// WriteComparison outputs the comparison in human-readable format.
func (w *SimpleWriter) WriteComparison(c *model.Comparison) (int, error) {
	var sb strings.Builder

	fmt.Fprintf(&sb, "Scan Comparison: %s\n", c.Target)
	sb.WriteString(strings.Repeat("=", 60))
	sb.WriteString("\n")

	fmt.Fprintf(&sb, "\nCompliance Status: %s\n", FormatDirection(c.Direction))

	fmt.Fprintf(&sb, "\nPrevious scan: %s\n", c.Previous.DateScanned.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(&sb, "Current scan:  %s\n", c.Current.DateScanned.Format("2006-01-02 15:04:05"))

	sb.WriteString("\nSummary:\n")
	fmt.Fprintf(&sb, "  %-16s  %-10s  %-10s  %-10s\n", "Metric", "Previous", "Current", "Change")
	sb.WriteString("  " + strings.Repeat("-", 52) + "\n")
	for _, row := range comparisonRows(c) {
		fmt.Fprintf(&sb, "  %-16s  %-10d  %-10d  %-10s\n", row.label, row.previous, row.current, FormatDelta(row.current-row.previous))
	}

	if len(c.NewViolations) > 0 {
		fmt.Fprintf(&sb, "\nNew Violations (%d):\n", len(c.NewViolations))
		for _, v := range c.NewViolations {
			fmt.Fprintf(&sb, "  [+] [%s] %s\n", v.Status.String(), v.Identity())
			if v.Remediation != "" {
				fmt.Fprintf(&sb, "      Fix: %s\n", v.Remediation)
			}
		}
	}

	if len(c.ResolvedViolations) > 0 {
		fmt.Fprintf(&sb, "\nResolved Violations (%d):\n", len(c.ResolvedViolations))
		for _, v := range c.ResolvedViolations {
			fmt.Fprintf(&sb, "  [-] [%s] %s\n", v.Status.String(), v.Identity())
		}
	}

	if len(c.StatusChanges) > 0 {
		fmt.Fprintf(&sb, "\nStatus Changes (%d):\n", len(c.StatusChanges))
		for _, ch := range c.StatusChanges {
			fmt.Fprintf(&sb, "  [~] %s: %s -> %s\n", ch.Identity, ch.From.String(), ch.To.String())
		}
	}

	fmt.Fprintf(&sb, "\nAdded: %d  Removed: %d  Unchanged: %d\n", c.Added, c.Removed, c.UnchangedCount)

	return w.output.Write([]byte(sb.String()))
}

type comparisonRow struct {
	label             string
	previous, current int
}

func comparisonRows(c *model.Comparison) []comparisonRow {
	return []comparisonRow{
		{"Pages", c.Previous.PagesScanned, c.Current.PagesScanned},
		{"Technologies", c.Previous.Total, c.Current.Total},
		{"Pre-consent", c.Previous.PreConsentViolations, c.Current.PreConsentViolations},
		{"Post-rejection", c.Previous.PostRejectionViolations, c.Current.PostRejectionViolations},
	}
}

// FormatDirection formats a comparison direction for display.
func FormatDirection(direction string) string {
	switch direction {
	case model.DirectionImproved:
		return "IMPROVED (fewer violations)"
	case model.DirectionWorsened:
		return "WORSENED (more violations)"
	default:
		return "UNCHANGED"
	}
}

// FormatDelta formats a numeric delta with sign for display.
func FormatDelta(delta int) string {
	if delta > 0 {
		return "+" + strconv.Itoa(delta)
	}
	return strconv.Itoa(delta)
}
