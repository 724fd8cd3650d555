package service

import (
	lspdomain "github.com/codevet/codevet/internal/domain/lsp"
)

var severityNames = map[int]string{
	lspdomain.SeverityError:   "Error",
	lspdomain.SeverityWarning: "Warning",
	lspdomain.SeverityInfo:    "Information",
	lspdomain.SeverityHint:    "Hint",
}

// formatReports converts raw LSP diagnostics to reports: numeric severity
// becomes a name, 0-based positions become 1-based. A diagnostic published
// without a severity is treated as an error; an unlabeled problem must not
// slip past severity filters.
func formatReports(diags []lspdomain.Diagnostic) []lspdomain.Report {
	reports := make([]lspdomain.Report, 0, len(diags))
	for _, d := range diags {
		name, ok := severityNames[d.Severity]
		if !ok {
			name = "Error"
		}
		reports = append(reports, lspdomain.Report{
			Severity: name,
			Message:  d.Message,
			Line:     d.Range.Start.Line + 1,
			Column:   d.Range.Start.Character + 1,
			Source:   d.Source,
			Code:     string(d.Code),
		})
	}
	return reports
}
