package importer

// mapping.go binds source columns to schema fields and turns rows into
// coerced field values. Mapping and coercion are pure functions over
// (rows, mappings, schema, default locale); nothing here touches the
// repository.

import (
	"strings"

	"github.com/contentful/apps-sub004/internal/schema"
)

// localeSeparator splits a column name into field id and locale code,
// e.g. "title__de-DE".
const localeSeparator = "__"

// SplitColumnName splits a column name into its base name and locale
// suffix. A locale is recognized only when the name contains exactly
// one separator with non-empty halves; otherwise the whole name is the
// base and the locale is empty.
func SplitColumnName(column string) (base, locale string) {
	parts := strings.Split(column, localeSeparator)
	if len(parts) == 2 && parts[0] != "" && parts[1] != "" {
		return parts[0], parts[1]
	}
	return column, ""
}

// AutoMap produces a best-effort mapping for every column by exact-
// matching the column's base name against the type's field ids.
// Columns that match no field stay unmapped (empty FieldID) so the
// caller can report them; they are never a reason to reject the import.
func AutoMap(columns []string, t schema.EntityTypeSchema) []ColumnMapping {
	mappings := make([]ColumnMapping, 0, len(columns))

	for _, col := range columns {
		base, _ := SplitColumnName(col)
		m := ColumnMapping{ColumnName: col, ListDelimiter: DefaultListDelimiter}

		if f, ok := t.Field(base); ok {
			m.FieldID = f.ID
			m.IsList = f.Type == schema.FieldList
		}
		mappings = append(mappings, m)
	}
	return mappings
}

// UnmappedColumns returns the column names that no field claimed.
func UnmappedColumns(mappings []ColumnMapping) []string {
	var unmapped []string
	for _, m := range mappings {
		if m.FieldID == "" {
			unmapped = append(unmapped, m.ColumnName)
		}
	}
	return unmapped
}

// EffectiveLocale resolves which locale a mapped value lands in:
// explicit target locale, else the locale parsed from the column
// suffix, else the default. Non-localized fields always use the
// default locale.
func EffectiveLocale(field schema.FieldSchema, mapping ColumnMapping, defaultLocale string) string {
	if !field.Localized {
		return defaultLocale
	}
	if mapping.TargetLocale != "" {
		return mapping.TargetLocale
	}
	if _, suffix := SplitColumnName(mapping.ColumnName); suffix != "" {
		return suffix
	}
	return defaultLocale
}

// MapRow coerces one row through the mappings, producing one FieldValue
// per mapped column. Unmapped columns are skipped; a cell absent from
// the row is treated as empty.
func MapRow(row ParsedRow, mappings []ColumnMapping, t schema.EntityTypeSchema, defaultLocale string) []FieldValue {
	values := make([]FieldValue, 0, len(mappings))

	for _, m := range mappings {
		if m.FieldID == "" {
			continue
		}
		field, ok := t.Field(m.FieldID)
		if !ok {
			continue
		}

		raw := row.RawValues[m.ColumnName]
		values = append(values, FieldValue{
			FieldID: field.ID,
			Locale:  EffectiveLocale(field, m, defaultLocale),
			Value:   Coerce(field, m, raw),
		})
	}
	return values
}

// BuildPayload folds a row's field values into the field/locale payload
// shape the repository accepts. Later values win on (field, locale)
// collisions, matching mapping order.
func BuildPayload(values []FieldValue) map[string]map[string]any {
	payload := make(map[string]map[string]any)
	for _, v := range values {
		if v.Value == nil {
			continue
		}
		locales, ok := payload[v.FieldID]
		if !ok {
			locales = make(map[string]any)
			payload[v.FieldID] = locales
		}
		locales[v.Locale] = v.Value
	}
	return payload
}
