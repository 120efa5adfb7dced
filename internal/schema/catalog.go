package schema

import (
	"fmt"
	"regexp"
	"sort"
)

// Catalog indexes entity type schemas and locales for lookup. It is
// built once from the repository's metadata and treated as immutable
// afterwards.
type Catalog struct {
	types   map[string]EntityTypeSchema
	locales []Locale
}

// NewCatalog builds a catalog from the given schemas and locales.
// Duplicate type ids and uncompilable rule patterns are errors: the
// repository metadata is expected to be consistent, and a broken
// pattern must not be mistaken for one every value passes.
func NewCatalog(types []EntityTypeSchema, locales []Locale) (*Catalog, error) {
	c := &Catalog{
		types:   make(map[string]EntityTypeSchema, len(types)),
		locales: append([]Locale(nil), locales...),
	}
	for _, t := range types {
		if _, exists := c.types[t.ID]; exists {
			return nil, fmt.Errorf("duplicate entity type: %s", t.ID)
		}
		for _, f := range t.Fields {
			for _, r := range f.Rules {
				if r.Pattern == "" {
					continue
				}
				if _, err := regexp.Compile(r.Pattern); err != nil {
					return nil, fmt.Errorf("type %s, field %s: invalid pattern %q: %v",
						t.ID, f.ID, r.Pattern, err)
				}
			}
		}
		c.types[t.ID] = t
	}
	return c, nil
}

// Type returns the schema for an entity type id.
func (c *Catalog) Type(id string) (EntityTypeSchema, bool) {
	t, ok := c.types[id]
	return t, ok
}

// Types returns all entity type schemas sorted by id.
func (c *Catalog) Types() []EntityTypeSchema {
	result := make([]EntityTypeSchema, 0, len(c.types))
	for _, t := range c.types {
		result = append(result, t)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result
}

// Locales returns all known locales.
func (c *Catalog) Locales() []Locale {
	return append([]Locale(nil), c.locales...)
}

// DefaultLocale returns the default locale code. Falls back to the
// first locale when none is flagged, and "en-US" when there are none.
func (c *Catalog) DefaultLocale() string {
	for _, l := range c.locales {
		if l.Default {
			return l.Code
		}
	}
	if len(c.locales) > 0 {
		return c.locales[0].Code
	}
	return "en-US"
}
