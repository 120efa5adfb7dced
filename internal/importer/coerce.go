package importer

// coerce.go converts raw spreadsheet strings into schema-typed values.
//
// Every coercion is a deterministic total function: bad input yields
// nil (or the raw string for structured documents), never an error or a
// panic. The validator decides what a nil or ill-shaped value means for
// the row.

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"github.com/contentful/apps-sub004/internal/schema"
)

// CleanCell removes common spreadsheet artifacts from a cell value:
// surrounding whitespace, Excel formula prefixes (="..."), and stray
// quotes.
func CleanCell(s string) string {
	s = strings.TrimSpace(s)

	if strings.HasPrefix(s, "=\"") && strings.HasSuffix(s, "\"") {
		s = s[2 : len(s)-1]
	} else if strings.HasPrefix(s, "=") {
		s = s[1:]
	}

	return strings.Trim(s, `"'`)
}

// Coerce converts one raw cell into the value shape the field's type
// expects. Returns nil when the input cannot be interpreted; the
// structured-document case passes unparseable input through unchanged
// so the validator can report it with the original text.
func Coerce(field schema.FieldSchema, mapping ColumnMapping, raw string) any {
	raw = CleanCell(raw)

	switch field.Type {
	case schema.FieldText, schema.FieldLongText:
		return coerceText(raw)
	case schema.FieldNumber:
		return coerceNumber(raw)
	case schema.FieldBoolean:
		return coerceBoolean(raw)
	case schema.FieldStructuredDocument:
		return coerceDocument(raw)
	case schema.FieldList:
		return coerceList(field, mapping, raw)
	case schema.FieldReference:
		return coerceReference(field.ReferenceTargets, raw)
	default:
		return coerceText(raw)
	}
}

func coerceText(raw string) any {
	if raw == "" {
		return nil
	}
	return raw
}

// coerceNumber parses a locale-invariant float. Thousands separators
// and currency symbols are not accepted: the source format is expected
// to be machine-written. Non-finite values (NaN, Inf) are rejected so
// they surface at dry run instead of failing the later JSON encode.
func coerceNumber(raw string) any {
	if raw == "" {
		return nil
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}
	return f
}

// coerceBoolean maps the accepted lexicon onto bool. The empty string
// counts as false; anything outside the lexicon is ambiguous and
// yields nil for the validator to flag.
func coerceBoolean(raw string) any {
	switch strings.ToLower(raw) {
	case "true", "1", "yes", "y", "on":
		return true
	case "false", "0", "no", "n", "off", "":
		return false
	default:
		return nil
	}
}

// coerceDocument attempts a JSON parse and passes the raw string
// through on failure, marked so the validator can tell it apart from a
// successfully parsed JSON string.
func coerceDocument(raw string) any {
	if raw == "" {
		return nil
	}
	var doc any
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return RawDocument(raw)
	}
	return doc
}

// coerceList splits on the mapping's delimiter, trims and drops empty
// segments, and coerces each item by the field's item type. An empty
// cell yields an empty list.
func coerceList(field schema.FieldSchema, mapping ColumnMapping, raw string) any {
	delim := mapping.ListDelimiter
	if delim == "" {
		delim = DefaultListDelimiter
	}

	items := make([]any, 0)
	if raw == "" {
		return items
	}

	for _, seg := range strings.Split(raw, delim) {
		seg = strings.TrimSpace(seg)
		if seg == "" {
			continue
		}
		switch field.ItemType {
		case schema.ItemReference:
			items = append(items, Link{TargetType: linkTarget(field.ItemReferenceTargets), ID: seg})
		default:
			items = append(items, seg)
		}
	}
	return items
}

// coerceReference turns a non-empty id into a link descriptor.
func coerceReference(targets []string, raw string) any {
	if raw == "" {
		return nil
	}
	return Link{TargetType: linkTarget(targets), ID: raw}
}

// linkTarget picks the declared target type when it is unambiguous.
func linkTarget(targets []string) string {
	if len(targets) == 1 {
		return targets[0]
	}
	return "entity"
}
