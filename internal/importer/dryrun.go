package importer

// dryrun.go runs the full validation pass: coerce every row, validate
// every value, cross-check references against the repository, and in
// update mode resolve each row's target entity. Failures are always
// per-row; the pass itself never aborts on row problems.

import (
	"context"
	"errors"
	"fmt"

	"github.com/contentful/apps-sub004/internal/repository"
	"github.com/contentful/apps-sub004/internal/schema"
)

// DryRun orchestrates the read-only validation pass.
type DryRun struct {
	resolver *Resolver
}

// NewDryRun creates a dry-run orchestrator on the given repository.
func NewDryRun(repo repository.Repository) *DryRun {
	return &DryRun{resolver: NewResolver(repo)}
}

// mappedValue pairs a coerced value with the mapping and field it came
// from, keeping the column name and the raw cell available for issue
// reporting.
type mappedValue struct {
	mapping ColumnMapping
	field   schema.FieldSchema
	raw     string
	value   FieldValue
}

// Run validates every row and produces one verdict per row. The only
// error it returns is context cancellation; row problems land in the
// verdicts.
func (d *DryRun) Run(ctx context.Context, rows []ParsedRow, mappings []ColumnMapping, t schema.EntityTypeSchema, opts Options, progress ProgressFunc) (*DryRunReport, error) {
	report := &DryRunReport{
		Verdicts: make([]DryRunVerdict, 0, len(rows)),
		Matches:  make(map[int]string),
	}

	// Coerce everything up front so reference ids can be batched.
	mapped := make([][]mappedValue, len(rows))
	for i, row := range rows {
		mapped[i] = mapRow(row, mappings, t, opts.DefaultLocale)
	}

	existence := d.checkAllReferences(ctx, mapped, rows, opts)

	for i, row := range rows {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		verdict := d.verdictFor(ctx, row, mapped[i], t, opts, existence)
		if verdict.MatchedEntityID != "" {
			report.Matches[row.RowIndex] = verdict.MatchedEntityID
		}
		report.Verdicts = append(report.Verdicts, verdict)

		if progress != nil {
			progress(i+1, len(rows))
		}
	}

	return report, nil
}

// mapRow coerces one row keeping per-column provenance.
func mapRow(row ParsedRow, mappings []ColumnMapping, t schema.EntityTypeSchema, defaultLocale string) []mappedValue {
	values := make([]mappedValue, 0, len(mappings))
	for _, m := range mappings {
		if m.FieldID == "" {
			continue
		}
		field, ok := t.Field(m.FieldID)
		if !ok {
			continue
		}
		raw := row.RawValues[m.ColumnName]
		values = append(values, mappedValue{
			mapping: m,
			field:   field,
			raw:     raw,
			value: FieldValue{
				FieldID: field.ID,
				Locale:  EffectiveLocale(field, m, defaultLocale),
				Value:   Coerce(field, m, raw),
			},
		})
	}
	return values
}

// checkAllReferences batches one existence check over every reference
// id in the file plus, in update mode with an explicit id column, every
// target entity id.
func (d *DryRun) checkAllReferences(ctx context.Context, mapped [][]mappedValue, rows []ParsedRow, opts Options) *ExistenceSet {
	ids := make(map[string]struct{})
	for _, values := range mapped {
		for _, mv := range values {
			collectLinkIDs(mv.value.Value, ids)
		}
	}

	if opts.Mode == ModeUpdate && opts.IDColumn != "" {
		for _, row := range rows {
			if id := CleanCell(row.RawValues[opts.IDColumn]); id != "" {
				ids[id] = struct{}{}
			}
		}
	}

	return d.resolver.CheckExistence(ctx, ids)
}

func collectLinkIDs(value any, ids map[string]struct{}) {
	switch v := value.(type) {
	case Link:
		ids[v.ID] = struct{}{}
	case []any:
		for _, item := range v {
			if l, ok := item.(Link); ok {
				ids[l.ID] = struct{}{}
			}
		}
	}
}

// verdictFor produces one row's verdict: field validation, dangling-
// reference checks, and update-mode target resolution.
func (d *DryRun) verdictFor(ctx context.Context, row ParsedRow, values []mappedValue, t schema.EntityTypeSchema, opts Options, existence *ExistenceSet) DryRunVerdict {
	verdict := DryRunVerdict{RowIndex: row.RowIndex}

	for _, mv := range values {
		verdict.Issues = append(verdict.Issues,
			ValidateCell(mv.field, mv.raw, mv.value.Value, row.RowIndex, mv.mapping.ColumnName)...)
		verdict.Issues = append(verdict.Issues,
			d.referenceIssues(mv, row.RowIndex, existence)...)
	}

	// Required fields no mapping covers still fail the row.
	for _, field := range t.Fields {
		if field.Required && !fieldMapped(values, field.ID) {
			verdict.Issues = append(verdict.Issues,
				ValidateField(field, nil, row.RowIndex, "")...)
		}
	}

	if opts.Mode == ModeUpdate {
		id, issues := d.resolveTarget(ctx, row, values, opts, existence)
		verdict.MatchedEntityID = id
		verdict.Issues = append(verdict.Issues, issues...)
	}

	verdict.OK = true
	for _, issue := range verdict.Issues {
		if issue.Severity == SeverityError {
			verdict.OK = false
			break
		}
	}
	return verdict
}

func fieldMapped(values []mappedValue, fieldID string) bool {
	for _, mv := range values {
		if mv.value.FieldID == fieldID {
			return true
		}
	}
	return false
}

// referenceIssues reports dangling references. Unconfirmed ids (the
// existence check itself failed) stay fail-closed but carry an extra
// warning so a transient outage is distinguishable in the verdict.
func (d *DryRun) referenceIssues(mv mappedValue, rowIndex int, existence *ExistenceSet) []ValidationIssue {
	var issues []ValidationIssue

	report := func(id, position string) {
		if existence.Has(id) {
			return
		}
		issues = append(issues, ValidationIssue{
			RowIndex:   rowIndex,
			ColumnName: mv.mapping.ColumnName,
			FieldID:    mv.field.ID,
			Severity:   SeverityError,
			Message:    fmt.Sprintf("referenced entity %q%s does not exist", id, position),
		})
		if _, unconfirmed := existence.Unconfirmed[id]; unconfirmed {
			issues = append(issues, ValidationIssue{
				RowIndex:   rowIndex,
				ColumnName: mv.mapping.ColumnName,
				FieldID:    mv.field.ID,
				Severity:   SeverityWarning,
				Message:    fmt.Sprintf("existence of %q could not be confirmed (repository error)", id),
				Suggestion: "re-run the dry run; the repository may have been temporarily unavailable",
			})
		}
	}

	switch v := mv.value.Value.(type) {
	case Link:
		report(v.ID, "")
	case []any:
		for i, item := range v {
			if l, ok := item.(Link); ok {
				report(l.ID, fmt.Sprintf(" (item %d)", i+1))
			}
		}
	}
	return issues
}

// resolveTarget finds the entity an update-mode row affects: the
// explicit id column when configured, the natural key otherwise.
func (d *DryRun) resolveTarget(ctx context.Context, row ParsedRow, values []mappedValue, opts Options, existence *ExistenceSet) (string, []ValidationIssue) {
	rowError := func(column, msg, suggestion string) []ValidationIssue {
		return []ValidationIssue{{
			RowIndex:   row.RowIndex,
			ColumnName: column,
			Severity:   SeverityError,
			Message:    msg,
			Suggestion: suggestion,
		}}
	}

	if opts.IDColumn != "" {
		id := CleanCell(row.RawValues[opts.IDColumn])
		if id == "" {
			return "", rowError(opts.IDColumn, "missing entity id", "")
		}
		if !existence.Has(id) {
			return "", rowError(opts.IDColumn,
				fmt.Sprintf("entity %q does not exist", id), "")
		}
		return id, nil
	}

	if opts.NaturalKeyFieldID == "" {
		return "", rowError("", "update mode needs an id column or a natural-key field", "")
	}

	var key *mappedValue
	for i := range values {
		if values[i].value.FieldID == opts.NaturalKeyFieldID {
			key = &values[i]
			break
		}
	}
	if key == nil {
		return "", rowError("",
			fmt.Sprintf("natural-key field %q is not mapped", opts.NaturalKeyFieldID), "")
	}

	id, err := d.resolver.ResolveNaturalKey(ctx, opts.TypeID, opts.NaturalKeyFieldID, key.value.Value, key.value.Locale)
	if err != nil {
		switch {
		case errors.Is(err, ErrNoEntityFound):
			return "", rowError(key.mapping.ColumnName,
				fmt.Sprintf("no entity found for %s %q", opts.NaturalKeyFieldID, key.value.Value), "")
		case errors.Is(err, ErrAmbiguousKey):
			return "", rowError(key.mapping.ColumnName,
				fmt.Sprintf("ambiguous key %q, must be unique", key.value.Value),
				"make the key field unique or supply an explicit id column")
		case errors.Is(err, ErrMissingKeyCell):
			return "", rowError(key.mapping.ColumnName, "key value is empty", "")
		default:
			return "", rowError(key.mapping.ColumnName,
				fmt.Sprintf("key lookup failed: %v", err), "")
		}
	}
	return id, nil
}
