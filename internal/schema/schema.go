// Package schema describes the importable entity types and their fields.
// Descriptors are loaded once from the repository and are read-only to
// every other package.
package schema

// FieldType is the closed set of field kinds a column can be mapped to.
type FieldType int

const (
	FieldText FieldType = iota
	FieldLongText
	FieldStructuredDocument
	FieldNumber
	FieldBoolean
	FieldList
	FieldReference
)

// String returns a human-readable name for a field type.
func (t FieldType) String() string {
	switch t {
	case FieldText:
		return "text"
	case FieldLongText:
		return "long text"
	case FieldStructuredDocument:
		return "structured document"
	case FieldNumber:
		return "number"
	case FieldBoolean:
		return "boolean"
	case FieldList:
		return "list"
	case FieldReference:
		return "reference"
	default:
		return "value"
	}
}

// ItemType is the element kind of a List field.
type ItemType int

const (
	ItemText ItemType = iota
	ItemReference
)

// ValidationRule holds the declared constraints for a field. Zero-value
// members are "not declared"; every declared rule is checked
// independently of the others.
type ValidationRule struct {
	EnumValues []string // value must be a member when non-empty
	Pattern    string   // regex tested against string values
	SizeMin    *int     // string length or list length lower bound
	SizeMax    *int
	RangeMin   *float64 // numeric bounds
	RangeMax   *float64
}

// FieldSchema describes one field of an entity type.
type FieldSchema struct {
	ID        string
	Name      string
	Type      FieldType
	Localized bool
	Required  bool
	Rules     []ValidationRule

	// List fields only.
	ItemType             ItemType
	ItemReferenceTargets []string

	// Reference fields only.
	ReferenceTargets []string
}

// EntityTypeSchema describes one importable entity type.
type EntityTypeSchema struct {
	ID             string
	Name           string
	DisplayFieldID string
	Fields         []FieldSchema
}

// Field returns the field with the given id, or false if the type has
// no such field.
func (s *EntityTypeSchema) Field(id string) (FieldSchema, bool) {
	for _, f := range s.Fields {
		if f.ID == id {
			return f, true
		}
	}
	return FieldSchema{}, false
}

// Locale is a content locale known to the repository.
type Locale struct {
	Code    string
	Name    string
	Default bool
}
