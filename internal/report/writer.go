package report

import (
	"io"
	"sort"
	"strings"

	"github.com/nao1215/consentscan/internal/model"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Writer defines the interface for report output.
// Implementations write scan results in various formats.
//
// Design decision: We use an interface to allow different output formats
// and destinations. This enables writing to files, stdout, or network
// connections with the same API.
type Writer interface {
	// Write outputs the report to the configured destination.
	// Returns the number of bytes written and any error encountered.
	Write(report *model.ScanReport) (int, error)

	// WriteComparison outputs the diff between two scans of one site.
	WriteComparison(comparison *model.Comparison) (int, error)
}

// MultiWriter writes to multiple Writers simultaneously.
// This is useful for outputting to both terminal and file.
//
// Design decision: We implement this as a separate type rather than
// using io.MultiWriter because our Writer interface is different
// from io.Writer - we write reports, not raw bytes.
type MultiWriter struct {
	writers []Writer
}

// NewMultiWriter creates a Writer that writes to all provided Writers.
func NewMultiWriter(writers ...Writer) *MultiWriter {
	return &MultiWriter{writers: writers}
}

// Write outputs the report to all configured Writers.
// Returns the total bytes written across all writers.
// Stops on first error encountered.
func (m *MultiWriter) Write(report *model.ScanReport) (int, error) {
	var total int
	for _, w := range m.writers {
		n, err := w.Write(report)
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// WriteComparison outputs the comparison to all configured Writers.
func (m *MultiWriter) WriteComparison(comparison *model.Comparison) (int, error) {
	var total int
	for _, w := range m.writers {
		n, err := w.WriteComparison(comparison)
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// baseWriter provides common functionality for report writers.
type baseWriter struct {
	output io.Writer
}

// newBaseWriter creates a baseWriter with the given output destination.
func newBaseWriter(output io.Writer) baseWriter {
	return baseWriter{output: output}
}

// humanize turns a canonical enum name such as PRE_CONSENT_VIOLATION into
// "Pre Consent Violation".
func humanize(name string) string {
	return cases.Title(language.English).String(strings.ReplaceAll(strings.ToLower(name), "_", " "))
}

// statusOrder is the order violation groups are printed in.
var statusOrder = []model.ComplianceStatus{
	model.StatusPreConsentViolation,
	model.StatusPostRejectionViolation,
	model.StatusUnknown,
	model.StatusCompliant,
}

// regulationOrder fixes the display order of regulation rows. Regulations not
// listed here are appended in name order.
var regulationOrder = []string{"GDPR", "ePrivacy", "CCPA"}

// sortedRegulations returns the regulation names of report in display order.
func sortedRegulations(report *model.ScanReport) []string {
	names := make([]string, 0, len(report.Regulations))
	seen := make(map[string]bool, len(report.Regulations))
	for _, name := range regulationOrder {
		if _, ok := report.Regulations[name]; ok {
			names = append(names, name)
			seen[name] = true
		}
	}
	var rest []string
	for name := range report.Regulations {
		if !seen[name] {
			rest = append(rest, name)
		}
	}
	sort.Strings(rest)
	return append(names, rest...)
}

// assessmentsByStatus groups every assessment of report by status.
func assessmentsByStatus(report *model.ScanReport) map[model.ComplianceStatus][]model.NamedAssessment {
	groups := make(map[model.ComplianceStatus][]model.NamedAssessment)
	for _, a := range report.AllAssessments() {
		groups[a.Status] = append(groups[a.Status], a)
	}
	return groups
}

// truncateString truncates a string to maxLen runes with ellipsis.
func truncateString(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return string(r[:maxLen])
	}
	return string(r[:maxLen-3]) + "..."
}
