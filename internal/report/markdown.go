package report

import (
	"io"
	"strconv"
	"strings"

	"github.com/nao1215/consentscan/internal/model"
	"github.com/nao1215/markdown"
	"github.com/nao1215/markdown/mermaid/piechart"
)

// MarkdownWriter outputs reports in Markdown format.
// This format is designed for documentation and sharing, for example as a
// pull request comment or an audit attachment.
//
// Design decision: We use the nao1215/markdown library for fluent markdown
// generation, which gives us tables, GitHub alerts and mermaid charts
// without hand-escaping.
type MarkdownWriter struct {
	baseWriter
}

// NewMarkdownWriter creates a MarkdownWriter that outputs to the given writer.
func NewMarkdownWriter(output io.Writer) *MarkdownWriter {
	return &MarkdownWriter{
		baseWriter: newBaseWriter(output),
	}
}

// Write outputs the full report in Markdown format.
func (w *MarkdownWriter) Write(report *model.ScanReport) (int, error) {
	md := markdown.NewMarkdown(w.output)

	w.writeHeader(md, report)
	w.writeSummary(md, report)
	w.writeRegulations(md, report)
	w.writeCookies(md, report.Cookies)
	w.writeTrackers(md, report.Trackers)
	w.writeStorage(md, report.Storage)
	w.writeRemediation(md, report)
	w.writeFooter(md)

	return len(md.String()), md.Build()
}

// writeHeader writes the report header with scan information.
func (w *MarkdownWriter) writeHeader(md *markdown.Markdown, report *model.ScanReport) {
	md.H1("Consent Compliance Report")
	md.PlainText("")

	banner := "❌ Not detected"
	if report.ConsentBannerDetected {
		banner = "✅ Detected"
	}
	frameworks := "-"
	if len(report.ConsentFrameworks) > 0 {
		frameworks = strings.Join(report.ConsentFrameworks, ", ")
	}

	md.Table(markdown.TableSet{
		Header: []string{"Property", "Value"},
		Rows: [][]string{
			{"Target", "`" + report.Target + "`"},
			{"Root Domain", "`" + report.RootDomain + "`"},
			{"Scan Date", report.DateScanned.Format("2006-01-02 15:04:05 MST")},
			{"Pages Scanned", strconv.Itoa(report.PagesScanned)},
			{"Consent Banner", banner},
			{"Consent Frameworks", frameworks},
		},
	})
	md.PlainText("")
}

// writeSummary writes the compliance counters, the category chart and an
// alert matching the worst finding.
func (w *MarkdownWriter) writeSummary(md *markdown.Markdown, report *model.ScanReport) {
	s := report.Summary
	md.H2("Compliance Summary")
	md.PlainText("")

	md.Table(markdown.TableSet{
		Header: []string{"Status", "Count"},
		Rows: [][]string{
			{"🔴 Pre-Consent Violation", strconv.Itoa(s.PreConsentViolations)},
			{"🟠 Post-Rejection Violation", strconv.Itoa(s.PostRejectionViolations)},
			{"🟢 Compliant", strconv.Itoa(s.Compliant)},
			{"⚪ Unknown", strconv.Itoa(s.Unknown)},
			{"**Total**", "**" + strconv.Itoa(s.Total) + "**"},
		},
	})
	md.PlainText("")

	if s.Total > 0 {
		w.writePieChart(md, s)
	}

	w.writeAlert(md, s)
}

// writePieChart writes a mermaid pie chart of technologies per category.
func (w *MarkdownWriter) writePieChart(md *markdown.Markdown, s model.Summary) {
	chart := piechart.NewPieChart(
		io.Discard,
		piechart.WithTitle("Technologies by Category"),
		piechart.WithShowData(true),
	)

	for _, c := range model.Categories {
		if n := s.ByCategory[c.String()]; n > 0 {
			chart.LabelAndIntValue(humanize(c.String()), uint64(n))
		}
	}

	md.PlainText("")
	md.CodeBlocks(markdown.SyntaxHighlightMermaid, chart.String())
	md.PlainText("")
}

// writeAlert writes an appropriate alert based on violation counts.
func (w *MarkdownWriter) writeAlert(md *markdown.Markdown, s model.Summary) {
	switch {
	case s.PreConsentViolations > 0:
		md.Cautionf(
			"%d technologies load before the visitor makes any consent choice.",
			s.PreConsentViolations,
		)
	case s.PostRejectionViolations > 0:
		md.Warningf(
			"%d technologies keep loading after the visitor rejects consent.",
			s.PostRejectionViolations,
		)
	case s.Unknown > 0:
		md.Importantf(
			"%d technologies could not be classified and need manual review.",
			s.Unknown,
		)
	case s.Total > 0:
		md.Note("Every detected technology respects the visitor's consent choice.")
	default:
		md.Tip("No cookies, trackers or storage items were detected.")
	}
	md.PlainText("")
}

// writeRegulations writes the per-regulation risk table.
func (w *MarkdownWriter) writeRegulations(md *markdown.Markdown, report *model.ScanReport) {
	names := sortedRegulations(report)
	md.H2("Regulatory Risk")
	md.PlainText("")

	if len(names) == 0 {
		md.PlainText("No assessment available.")
		md.PlainText("")
		return
	}

	rows := make([][]string, 0, len(names))
	for _, name := range names {
		risk := report.Regulations[name]
		rows = append(rows, []string{
			name,
			riskBadge(risk.Level),
			dash(risk.Assessment),
		})
	}
	md.Table(markdown.TableSet{
		Header: []string{"Regulation", "Risk", "Assessment"},
		Rows:   rows,
	})
	md.PlainText("")
}

func riskBadge(level model.RiskLevel) string {
	label := humanize(string(level))
	switch level {
	case model.RiskCritical:
		return "🔴 " + label
	case model.RiskHigh:
		return "🟠 " + label
	case model.RiskMedium:
		return "🟡 " + label
	case model.RiskLow:
		return "🔵 " + label
	default:
		return "🟢 " + label
	}
}

func statusBadge(status model.ComplianceStatus) string {
	label := humanize(status.String())
	switch status {
	case model.StatusPreConsentViolation:
		return "🔴 " + label
	case model.StatusPostRejectionViolation:
		return "🟠 " + label
	case model.StatusCompliant:
		return "🟢 " + label
	default:
		return "⚪ " + label
	}
}

// writeCookies writes the cookie table.
func (w *MarkdownWriter) writeCookies(md *markdown.Markdown, cookies []model.CookieEntry) {
	md.H2("Cookies")
	md.PlainText("")
	if len(cookies) == 0 {
		md.PlainText("No cookies detected.")
		md.PlainText("")
		return
	}

	rows := make([][]string, len(cookies))
	for i, c := range cookies {
		rows[i] = []string{
			"`" + truncateString(c.Name, 40) + "`",
			c.Domain,
			string(c.Party),
			humanize(c.Category.String()),
			statusBadge(c.Status),
			dash(c.ExpiryBucket),
			truncateString(dash(c.Purpose), 60),
		}
	}
	md.Table(markdown.TableSet{
		Header: []string{"Name", "Domain", "Party", "Category", "Status", "Expiry", "Purpose"},
		Rows:   rows,
	})
	md.PlainText("")
}

// writeTrackers writes the tracker table.
func (w *MarkdownWriter) writeTrackers(md *markdown.Markdown, trackers []model.TrackerEntry) {
	md.H2("Trackers")
	md.PlainText("")
	if len(trackers) == 0 {
		md.PlainText("No third-party requests detected.")
		md.PlainText("")
		return
	}

	rows := make([][]string, len(trackers))
	for i, t := range trackers {
		rows[i] = []string{
			t.Hostname,
			"`" + truncateString(t.URL, 60) + "`",
			dash(t.ResourceType),
			humanize(t.Category.String()),
			statusBadge(t.Status),
		}
	}
	md.Table(markdown.TableSet{
		Header: []string{"Host", "URL", "Type", "Category", "Status"},
		Rows:   rows,
	})
	md.PlainText("")
}

// writeStorage writes the Web Storage table. Values are never printed.
func (w *MarkdownWriter) writeStorage(md *markdown.Markdown, items []model.StorageEntry) {
	md.H2("Web Storage")
	md.PlainText("")
	if len(items) == 0 {
		md.PlainText("No localStorage or sessionStorage items detected.")
		md.PlainText("")
		return
	}

	rows := make([][]string, len(items))
	for i, s := range items {
		rows[i] = []string{
			"`" + truncateString(s.Key, 40) + "`",
			string(s.Area),
			s.Origin,
			humanize(s.Category.String()),
			statusBadge(s.Status),
		}
	}
	md.Table(markdown.TableSet{
		Header: []string{"Key", "Area", "Origin", "Category", "Status"},
		Rows:   rows,
	})
	md.PlainText("")
}

// writeRemediation writes a collapsible fix per violation.
func (w *MarkdownWriter) writeRemediation(md *markdown.Markdown, report *model.ScanReport) {
	groups := assessmentsByStatus(report)
	var violations []model.NamedAssessment
	for _, status := range statusOrder {
		if status.IsViolation() {
			violations = append(violations, groups[status]...)
		}
	}
	if len(violations) == 0 {
		return
	}

	md.H2("Remediation")
	md.PlainText("")
	for _, v := range violations {
		body := v.Remediation
		if body == "" {
			body = "Block this technology until the visitor grants consent for " + humanize(v.Category.String()) + "."
		}
		if len(v.PagesFound) > 0 {
			body += "\n\nSeen on: " + strings.Join(v.PagesFound, ", ")
		}
		md.Details(v.Kind.String()+": "+truncateString(v.Name, 60)+" ("+humanize(v.Status.String())+")", body)
	}
	md.PlainText("")
}

// writeFooter writes the report footer.
func (w *MarkdownWriter) writeFooter(md *markdown.Markdown) {
	md.HorizontalRule()
	md.PlainText("")
	md.PlainTextf("*Report generated by [consentscan](https://github.com/nao1215/consentscan)*")
}

// WriteComparison outputs the comparison in Markdown format.
func (w *MarkdownWriter) WriteComparison(c *model.Comparison) (int, error) {
	md := markdown.NewMarkdown(w.output)

	md.H1("Scan Comparison: " + c.Target)
	md.PlainText("")
	md.H2("Summary")
	md.PlainText("")
	md.PlainTextf("**Compliance Status:** %s", FormatDirection(c.Direction))
	md.PlainText("")

	rows := [][]string{{
		"Date",
		c.Previous.DateScanned.Format("2006-01-02 15:04"),
		c.Current.DateScanned.Format("2006-01-02 15:04"),
		"-",
	}}
	for _, row := range comparisonRows(c) {
		rows = append(rows, []string{
			row.label,
			strconv.Itoa(row.previous),
			strconv.Itoa(row.current),
			FormatDelta(row.current - row.previous),
		})
	}
	md.Table(markdown.TableSet{
		Header: []string{"Metric", "Previous", "Current", "Change"},
		Rows:   rows,
	})
	md.PlainText("")

	if len(c.NewViolations) > 0 {
		md.H2("New Violations (" + strconv.Itoa(len(c.NewViolations)) + ")")
		md.PlainText("")
		items := make([]string, len(c.NewViolations))
		for i, v := range c.NewViolations {
			items[i] = "**[" + humanize(v.Status.String()) + "]** `" + v.Identity() + "`"
		}
		md.BulletList(items...)
		md.PlainText("")
	}

	if len(c.ResolvedViolations) > 0 {
		md.H2("Resolved Violations (" + strconv.Itoa(len(c.ResolvedViolations)) + ")")
		md.PlainText("")
		items := make([]string, len(c.ResolvedViolations))
		for i, v := range c.ResolvedViolations {
			items[i] = "~~**[" + humanize(v.Status.String()) + "]** `" + v.Identity() + "`~~"
		}
		md.BulletList(items...)
		md.PlainText("")
	}

	if len(c.StatusChanges) > 0 {
		md.H2("Status Changes (" + strconv.Itoa(len(c.StatusChanges)) + ")")
		md.PlainText("")
		changes := make([][]string, len(c.StatusChanges))
		for i, ch := range c.StatusChanges {
			changes[i] = []string{"`" + ch.Identity + "`", statusBadge(ch.From), statusBadge(ch.To)}
		}
		md.Table(markdown.TableSet{
			Header: []string{"Technology", "From", "To"},
			Rows:   changes,
		})
		md.PlainText("")
	}

	md.HorizontalRule()
	md.PlainText("")
	md.PlainTextf("*%d added, %d removed, %d unchanged*", c.Added, c.Removed, c.UnchangedCount)

	return len(md.String()), md.Build()
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
