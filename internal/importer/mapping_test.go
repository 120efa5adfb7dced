package importer

import (
	"reflect"
	"testing"

	"github.com/contentful/apps-sub004/internal/schema"
)

func TestSplitColumnName(t *testing.T) {
	tests := []struct {
		name       string
		column     string
		wantBase   string
		wantLocale string
	}{
		{"no suffix", "title", "title", ""},
		{"locale suffix", "title__de-DE", "title", "de-DE"},
		{"empty locale half", "title__", "title__", ""},
		{"empty base half", "__de-DE", "__de-DE", ""},
		{"two separators", "a__b__c", "a__b__c", ""},
		{"empty", "", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			base, locale := SplitColumnName(tt.column)
			if base != tt.wantBase || locale != tt.wantLocale {
				t.Errorf("SplitColumnName(%q) = (%q, %q), want (%q, %q)",
					tt.column, base, locale, tt.wantBase, tt.wantLocale)
			}
		})
	}
}

func TestAutoMap(t *testing.T) {
	mappings := AutoMap([]string{"title", "title__de-DE", "tags", "unknown_col"}, articleType())

	if len(mappings) != 4 {
		t.Fatalf("got %d mappings, want 4", len(mappings))
	}

	if mappings[0].FieldID != "title" {
		t.Errorf("title mapping = %q", mappings[0].FieldID)
	}
	if mappings[1].FieldID != "title" {
		t.Errorf("locale-suffixed column should map by base name, got %q", mappings[1].FieldID)
	}
	if mappings[2].FieldID != "tags" || !mappings[2].IsList {
		t.Errorf("tags mapping = %+v, want list mapping", mappings[2])
	}
	if mappings[3].FieldID != "" {
		t.Errorf("unknown column mapped to %q, want unmapped", mappings[3].FieldID)
	}

	unmapped := UnmappedColumns(mappings)
	if !reflect.DeepEqual(unmapped, []string{"unknown_col"}) {
		t.Errorf("UnmappedColumns = %v", unmapped)
	}
}

func TestEffectiveLocale(t *testing.T) {
	localized := schema.FieldSchema{ID: "title", Type: schema.FieldText, Localized: true}
	plain := schema.FieldSchema{ID: "slug", Type: schema.FieldText}

	tests := []struct {
		name    string
		field   schema.FieldSchema
		mapping ColumnMapping
		want    string
	}{
		{"non-localized ignores suffix", plain, ColumnMapping{ColumnName: "slug__de-DE"}, "en-US"},
		{"non-localized ignores target", plain, ColumnMapping{ColumnName: "slug", TargetLocale: "de-DE"}, "en-US"},
		{"explicit target wins", localized, ColumnMapping{ColumnName: "title__fr-FR", TargetLocale: "de-DE"}, "de-DE"},
		{"suffix second", localized, ColumnMapping{ColumnName: "title__fr-FR"}, "fr-FR"},
		{"default last", localized, ColumnMapping{ColumnName: "title"}, "en-US"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := EffectiveLocale(tt.field, tt.mapping, "en-US"); got != tt.want {
				t.Errorf("EffectiveLocale = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestMapRow(t *testing.T) {
	row := ParsedRow{
		RowIndex: 1,
		RawValues: map[string]string{
			"title":       "Hello",
			"title__de":   "Hallo",
			"views":       "10",
			"unknown_col": "ignored",
		},
	}
	mappings := []ColumnMapping{
		{ColumnName: "title", FieldID: "title"},
		{ColumnName: "title__de", FieldID: "title"},
		{ColumnName: "views", FieldID: "views"},
		{ColumnName: "unknown_col"}, // unmapped
	}

	values := MapRow(row, mappings, articleType(), "en-US")
	if len(values) != 3 {
		t.Fatalf("got %d values, want 3 (unmapped column skipped)", len(values))
	}

	if values[0].Locale != "en-US" || values[0].Value != "Hello" {
		t.Errorf("values[0] = %+v", values[0])
	}
	if values[1].Locale != "de" || values[1].Value != "Hallo" {
		t.Errorf("values[1] = %+v", values[1])
	}
	if values[2].Value != 10.0 {
		t.Errorf("views = %v, want 10.0", values[2].Value)
	}
}

func TestBuildPayload(t *testing.T) {
	values := []FieldValue{
		{FieldID: "title", Locale: "en-US", Value: "First"},
		{FieldID: "title", Locale: "de-DE", Value: "Hallo"},
		{FieldID: "title", Locale: "en-US", Value: "Second"}, // later wins
		{FieldID: "views", Locale: "en-US", Value: nil},      // skipped
	}

	payload := BuildPayload(values)

	if payload["title"]["en-US"] != "Second" {
		t.Errorf("later value should win, got %v", payload["title"]["en-US"])
	}
	if payload["title"]["de-DE"] != "Hallo" {
		t.Errorf("de-DE = %v", payload["title"]["de-DE"])
	}
	if _, ok := payload["views"]; ok {
		t.Error("nil values must not appear in the payload")
	}
}
