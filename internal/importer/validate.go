package importer

// validate.go checks coerced values against their field schemas. It is
// purely functional: inputs are never mutated and the same inputs
// always produce the same issues.
//
// Order of checks per value:
//  1. required + empty -> one error, nothing else runs
//  2. empty + optional -> no issues
//  3. type-shape check
//  4. declared rules, each evaluated independently (a type error does
//     not suppress rule findings)

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/contentful/apps-sub004/internal/schema"
)

// ValidateCell checks one mapped cell against its field schema. A
// non-empty cell whose coercion produced nothing is an error even when
// the field is optional: the author wrote something and it was not
// understood, which must never be silently dropped.
func ValidateCell(field schema.FieldSchema, raw string, value any, rowIndex int, columnName string) []ValidationIssue {
	if value == nil && CleanCell(raw) != "" {
		if msg, suggestion := checkShape(field, value); msg != "" {
			return []ValidationIssue{{
				RowIndex:   rowIndex,
				ColumnName: columnName,
				FieldID:    field.ID,
				Severity:   SeverityError,
				Message:    msg,
				Suggestion: suggestion,
			}}
		}
	}
	return ValidateField(field, value, rowIndex, columnName)
}

// ValidateField checks one coerced value against its field schema and
// returns every issue found.
func ValidateField(field schema.FieldSchema, value any, rowIndex int, columnName string) []ValidationIssue {
	issue := func(severity Severity, msg, suggestion string) ValidationIssue {
		return ValidationIssue{
			RowIndex:   rowIndex,
			ColumnName: columnName,
			FieldID:    field.ID,
			Severity:   severity,
			Message:    msg,
			Suggestion: suggestion,
		}
	}

	if isEmptyValue(value) {
		if field.Required {
			return []ValidationIssue{issue(SeverityError,
				fmt.Sprintf("required field %q is empty", field.ID), "")}
		}
		return nil
	}

	var issues []ValidationIssue

	if msg, suggestion := checkShape(field, value); msg != "" {
		issues = append(issues, issue(SeverityError, msg, suggestion))
	}

	for _, rule := range field.Rules {
		for _, msg := range checkRule(rule, value) {
			issues = append(issues, issue(SeverityError, msg, ""))
		}
	}

	return issues
}

// isEmptyValue reports whether a coerced value counts as absent.
func isEmptyValue(value any) bool {
	if value == nil {
		return true
	}
	s, ok := value.(string)
	return ok && s == ""
}

// checkShape verifies the coerced value's runtime shape matches the
// field type. Returns an empty message when the shape is fine.
func checkShape(field schema.FieldSchema, value any) (msg, suggestion string) {
	switch field.Type {
	case schema.FieldText, schema.FieldLongText:
		if _, ok := value.(string); !ok {
			return fmt.Sprintf("expected text for field %q", field.ID), ""
		}

	case schema.FieldNumber:
		if _, ok := value.(float64); !ok {
			return fmt.Sprintf("expected a number for field %q", field.ID),
				"use a plain decimal value, e.g. 42 or 3.14"
		}

	case schema.FieldBoolean:
		if _, ok := value.(bool); !ok {
			return fmt.Sprintf("ambiguous boolean for field %q", field.ID),
				"use one of: true/false, yes/no, 1/0, on/off"
		}

	case schema.FieldStructuredDocument:
		if _, ok := value.(RawDocument); ok {
			return fmt.Sprintf("field %q is not valid JSON", field.ID),
				"provide a JSON document"
		}

	case schema.FieldList:
		items, ok := value.([]any)
		if !ok {
			return fmt.Sprintf("expected a list for field %q", field.ID), ""
		}
		for i, item := range items {
			if m := checkListItem(field.ItemType, item); m != "" {
				return fmt.Sprintf("item %d of field %q: %s", i+1, field.ID, m), ""
			}
		}

	case schema.FieldReference:
		if m := checkReference(value); m != "" {
			return fmt.Sprintf("field %q: %s", field.ID, m), ""
		}
	}
	return "", ""
}

func checkListItem(itemType schema.ItemType, item any) string {
	switch itemType {
	case schema.ItemReference:
		return checkReference(item)
	default:
		if _, ok := item.(string); !ok {
			return "expected text"
		}
	}
	return ""
}

// checkReference accepts a bare id or a well-formed link descriptor.
func checkReference(value any) string {
	switch v := value.(type) {
	case string:
		if v == "" {
			return "empty reference id"
		}
	case Link:
		if v.TargetType == "" || v.ID == "" {
			return "malformed reference link"
		}
	default:
		return "expected a reference id or link"
	}
	return ""
}

// checkRule evaluates one declared rule against a value, returning a
// message per violated constraint.
func checkRule(rule schema.ValidationRule, value any) []string {
	var msgs []string

	if len(rule.EnumValues) > 0 {
		if !enumContains(rule.EnumValues, value) {
			msgs = append(msgs, fmt.Sprintf("value must be one of: %s",
				strings.Join(rule.EnumValues, ", ")))
		}
	}

	if rule.Pattern != "" {
		if s, ok := value.(string); ok {
			re, err := regexp.Compile(rule.Pattern)
			if err == nil && !re.MatchString(s) {
				msgs = append(msgs, fmt.Sprintf("value does not match pattern %s", rule.Pattern))
			}
		}
	}

	if rule.SizeMin != nil || rule.SizeMax != nil {
		if length, ok := valueLength(value); ok {
			if rule.SizeMin != nil && length < *rule.SizeMin {
				msgs = append(msgs, fmt.Sprintf("size %d is below the minimum of %d", length, *rule.SizeMin))
			}
			if rule.SizeMax != nil && length > *rule.SizeMax {
				msgs = append(msgs, fmt.Sprintf("size %d exceeds the maximum of %d", length, *rule.SizeMax))
			}
		}
	}

	if rule.RangeMin != nil || rule.RangeMax != nil {
		if f, ok := value.(float64); ok {
			if rule.RangeMin != nil && f < *rule.RangeMin {
				msgs = append(msgs, fmt.Sprintf("value %v is below the minimum of %v", f, *rule.RangeMin))
			}
			if rule.RangeMax != nil && f > *rule.RangeMax {
				msgs = append(msgs, fmt.Sprintf("value %v exceeds the maximum of %v", f, *rule.RangeMax))
			}
		}
	}

	return msgs
}

// enumContains compares the value's string form against the allowed
// set. Numbers are formatted without a trailing exponent so "2" matches
// 2.0.
func enumContains(allowed []string, value any) bool {
	var s string
	switch v := value.(type) {
	case string:
		s = v
	case float64:
		s = strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		s = strconv.FormatBool(v)
	default:
		return true // enum rules only apply to scalar values
	}

	for _, a := range allowed {
		if a == s {
			return true
		}
	}
	return false
}

// valueLength returns the length a size rule applies to: string length
// for text, item count for lists.
func valueLength(value any) (int, bool) {
	switch v := value.(type) {
	case string:
		return len(v), true
	case []any:
		return len(v), true
	default:
		return 0, false
	}
}
