package schema

import "testing"

func testTypes() []EntityTypeSchema {
	return []EntityTypeSchema{
		{ID: "person", Name: "Person"},
		{ID: "article", Name: "Article", Fields: []FieldSchema{
			{ID: "title", Name: "Title", Type: FieldText},
		}},
	}
}

func TestNewCatalog_DuplicateType(t *testing.T) {
	types := []EntityTypeSchema{{ID: "article"}, {ID: "article"}}

	if _, err := NewCatalog(types, nil); err == nil {
		t.Fatal("duplicate type ids should be rejected")
	}
}

func TestNewCatalog_InvalidPattern(t *testing.T) {
	types := []EntityTypeSchema{{
		ID: "article",
		Fields: []FieldSchema{{
			ID:    "slug",
			Type:  FieldText,
			Rules: []ValidationRule{{Pattern: "("}},
		}},
	}}

	if _, err := NewCatalog(types, nil); err == nil {
		t.Fatal("uncompilable rule pattern should be rejected at load")
	}
}

func TestCatalog_TypeLookup(t *testing.T) {
	catalog, err := NewCatalog(testTypes(), nil)
	if err != nil {
		t.Fatalf("NewCatalog: %v", err)
	}

	article, ok := catalog.Type("article")
	if !ok || article.Name != "Article" {
		t.Errorf("Type(article) = %+v, %v", article, ok)
	}

	if _, ok := catalog.Type("nope"); ok {
		t.Error("unknown type id should not resolve")
	}

	if _, ok := article.Field("title"); !ok {
		t.Error("Field(title) should resolve")
	}
	if _, ok := article.Field("nope"); ok {
		t.Error("unknown field id should not resolve")
	}
}

func TestCatalog_TypesSorted(t *testing.T) {
	catalog, err := NewCatalog(testTypes(), nil)
	if err != nil {
		t.Fatalf("NewCatalog: %v", err)
	}

	types := catalog.Types()
	if len(types) != 2 || types[0].ID != "article" || types[1].ID != "person" {
		t.Errorf("Types() = %v, want sorted by id", types)
	}
}

func TestCatalog_DefaultLocale(t *testing.T) {
	tests := []struct {
		name    string
		locales []Locale
		want    string
	}{
		{"flagged default", []Locale{{Code: "de-DE"}, {Code: "fr-FR", Default: true}}, "fr-FR"},
		{"first as fallback", []Locale{{Code: "de-DE"}, {Code: "fr-FR"}}, "de-DE"},
		{"hard fallback", nil, "en-US"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			catalog, err := NewCatalog(nil, tt.locales)
			if err != nil {
				t.Fatalf("NewCatalog: %v", err)
			}
			if got := catalog.DefaultLocale(); got != tt.want {
				t.Errorf("DefaultLocale() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestFieldType_String(t *testing.T) {
	tests := []struct {
		ft   FieldType
		want string
	}{
		{FieldText, "text"},
		{FieldLongText, "long text"},
		{FieldStructuredDocument, "structured document"},
		{FieldNumber, "number"},
		{FieldBoolean, "boolean"},
		{FieldList, "list"},
		{FieldReference, "reference"},
		{FieldType(99), "value"},
	}

	for _, tt := range tests {
		if got := tt.ft.String(); got != tt.want {
			t.Errorf("FieldType(%d).String() = %q, want %q", tt.ft, got, tt.want)
		}
	}
}
