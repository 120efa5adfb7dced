package importer

// export.go serializes dry-run verdicts and execution outcomes to CSV
// for download. This is a thin presentation step; nothing here feeds
// back into the pipeline.

import (
	"encoding/csv"
	"fmt"
	"io"
)

// WriteIssuesCSV writes one line per validation issue across all
// verdicts, ordered as the verdicts are.
func WriteIssuesCSV(w io.Writer, report *DryRunReport) error {
	cw := csv.NewWriter(w)

	if err := cw.Write([]string{"row", "ok", "severity", "column", "field", "message", "suggestion"}); err != nil {
		return err
	}

	for _, v := range report.Verdicts {
		if len(v.Issues) == 0 {
			continue
		}
		for _, issue := range v.Issues {
			record := []string{
				fmt.Sprintf("%d", v.RowIndex),
				fmt.Sprintf("%t", v.OK),
				string(issue.Severity),
				issue.ColumnName,
				issue.FieldID,
				issue.Message,
				issue.Suggestion,
			}
			if err := cw.Write(record); err != nil {
				return err
			}
		}
	}

	cw.Flush()
	return cw.Error()
}

// WriteOutcomeCSV writes the summary line followed by one line per
// failed row and per advisory publish error.
func WriteOutcomeCSV(w io.Writer, outcome *ExecutionOutcome) error {
	cw := csv.NewWriter(w)

	if err := cw.Write([]string{"created", "updated", "published", "failed"}); err != nil {
		return err
	}
	if err := cw.Write([]string{
		fmt.Sprintf("%d", outcome.Created),
		fmt.Sprintf("%d", outcome.Updated),
		fmt.Sprintf("%d", outcome.Published),
		fmt.Sprintf("%d", len(outcome.Failed)),
	}); err != nil {
		return err
	}

	if len(outcome.Failed) > 0 || len(outcome.PublishErrors) > 0 {
		if err := cw.Write([]string{"row", "kind", "entity_id", "reason"}); err != nil {
			return err
		}
	}
	for _, f := range outcome.Failed {
		if err := cw.Write([]string{fmt.Sprintf("%d", f.RowIndex), "failure", f.EntityID, f.Reason}); err != nil {
			return err
		}
	}
	for _, p := range outcome.PublishErrors {
		if err := cw.Write([]string{fmt.Sprintf("%d", p.RowIndex), "publish", p.EntityID, p.Reason}); err != nil {
			return err
		}
	}

	cw.Flush()
	return cw.Error()
}
