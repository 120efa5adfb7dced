// Package importer implements the bulk content-import pipeline: column
// mapping and coercion, per-field validation, reference resolution, the
// dry-run pass, and the throttled execution engine. It has no UI
// dependencies; rows come in parsed and writes go out through the
// repository interface.
package importer

import (
	"github.com/contentful/apps-sub004/internal/repository"
)

// Mode selects whether eligible rows create new entities or update
// existing ones.
type Mode string

const (
	ModeCreate Mode = "create"
	ModeUpdate Mode = "update"
)

// DefaultListDelimiter splits list-typed cells unless a mapping
// overrides it.
const DefaultListDelimiter = "|"

// ParsedRow is one tabular record. RowIndex is 1-based and is the
// correlation key used by every later stage; it is never reused or
// reordered.
type ParsedRow struct {
	RowIndex  int
	RawValues map[string]string // keyed by source column name
}

// ColumnMapping binds one source column to a target field. A mapping
// with an empty FieldID is unmapped: the column's data is ignored but
// reported, not rejected.
type ColumnMapping struct {
	ColumnName    string `json:"columnName"`
	FieldID       string `json:"fieldId"`
	IsList        bool   `json:"isList"`
	ListDelimiter string `json:"listDelimiter"`
	TargetLocale  string `json:"targetLocale,omitempty"`
}

// Link is the coerced form of a reference cell.
type Link struct {
	TargetType string `json:"targetType"`
	ID         string `json:"id"`
}

// RawDocument is a structured-document cell that did not parse as
// JSON, carried through unchanged so the validator can flag it with
// the original text. A cell that parses to a JSON string stays an
// ordinary string and is not flagged.
type RawDocument string

// FieldValue is one coerced value for a (field, locale) pair of a row.
type FieldValue struct {
	FieldID string
	Locale  string
	Value   any // string, float64, bool, Link, []any, or raw JSON value
}

// Severity classifies a validation issue. Only error-severity issues
// block execution for the owning row.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
	SeverityInfo    Severity = "info"
)

// ValidationIssue is one row-scoped problem found during dry run.
type ValidationIssue struct {
	RowIndex   int      `json:"rowIndex"`
	ColumnName string   `json:"columnName,omitempty"`
	FieldID    string   `json:"fieldId,omitempty"`
	Severity   Severity `json:"severity"`
	Message    string   `json:"message"`
	Suggestion string   `json:"suggestion,omitempty"`
}

// DryRunVerdict is the per-row outcome of the dry-run pass. OK is true
// iff the row produced zero error-severity issues.
type DryRunVerdict struct {
	RowIndex        int               `json:"rowIndex"`
	MatchedEntityID string            `json:"matchedEntityId,omitempty"`
	OK              bool              `json:"ok"`
	Issues          []ValidationIssue `json:"issues,omitempty"`
}

// DryRunReport is the full output of a dry run: one verdict per input
// row plus the rowIndex -> entityID match map for update mode.
type DryRunReport struct {
	Verdicts []DryRunVerdict `json:"verdicts"`
	Matches  map[int]string  `json:"matches,omitempty"`
}

// OKCount returns how many rows passed.
func (r *DryRunReport) OKCount() int {
	n := 0
	for _, v := range r.Verdicts {
		if v.OK {
			n++
		}
	}
	return n
}

// ImportTask is one row's prepared write, consumed exactly once by a
// worker.
type ImportTask struct {
	RowIndex int
	EntityID string // resolved target, update mode only
	Fields   repository.FieldsPayload
}

// ImportResult is the terminal state of one task.
type ImportResult struct {
	RowIndex   int
	Success    bool
	EntityID   string
	Reason     string // failure reason, empty on success
	Cancelled  bool   // failed because cancellation fired before start
	Attempts   int
	Published  bool   // publish was requested and confirmed
	PublishErr string // publish was requested and failed; advisory
}

// FailedRow is one entry in the outcome's failure list.
type FailedRow struct {
	RowIndex int    `json:"rowIndex"`
	Reason   string `json:"reason"`
	EntityID string `json:"entityId,omitempty"`
}

// PublishError records a best-effort publish that did not stick. The
// owning row still counts as created/updated; the published total is
// therefore exact, and these entries are advisory.
type PublishError struct {
	RowIndex int    `json:"rowIndex"`
	EntityID string `json:"entityId,omitempty"`
	Reason   string `json:"reason"`
}

// ExecutionOutcome is the aggregated summary of an execution run.
type ExecutionOutcome struct {
	Created       int            `json:"created"`
	Updated       int            `json:"updated"`
	Published     int            `json:"published"`
	Failed        []FailedRow    `json:"failed,omitempty"`
	PublishErrors []PublishError `json:"publishErrors,omitempty"`
}

// ProgressFunc receives cumulative (completed, total) counts, invoked
// exactly once per settled task and never decreasing.
type ProgressFunc func(completed, total int)

// Options configures one import operation over a single entity type.
type Options struct {
	TypeID        string `json:"typeId"`
	Mode          Mode   `json:"mode"`
	DefaultLocale string `json:"defaultLocale,omitempty"`
	Publish       bool   `json:"publish"`

	// Update-mode target resolution: IDColumn names a source column
	// holding explicit entity ids; when empty, NaturalKeyFieldID names
	// the field whose mapped value must uniquely match one entity.
	IDColumn          string `json:"idColumn,omitempty"`
	NaturalKeyFieldID string `json:"naturalKeyFieldId,omitempty"`
}
