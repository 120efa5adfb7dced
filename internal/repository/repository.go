// Package repository defines the single I/O boundary the import
// pipeline depends on, plus a PostgreSQL implementation of it.
package repository

import (
	"context"

	"github.com/contentful/apps-sub004/internal/schema"
)

// FieldsPayload holds entity field values keyed by field id, then by
// locale code. Values are the schema-typed coerced values produced by
// the import pipeline (string, float64, bool, []any, Link, ...).
type FieldsPayload map[string]map[string]any

// Entity is a stored content record.
type Entity struct {
	ID               string
	TypeID           string
	Version          int
	PublishedVersion int
	Fields           FieldsPayload
}

// Published reports whether the current version has been published.
func (e *Entity) Published() bool {
	return e.PublishedVersion > 0 && e.PublishedVersion == e.Version
}

// Repository is the remote content store the pipeline reads from and
// writes to. All calls block until the operation completes; callers
// pass a context to bound or cancel the wait.
type Repository interface {
	// GetEntity returns the entity with the given id, or ErrNotFound.
	GetEntity(ctx context.Context, id string) (*Entity, error)

	// CreateEntity stores a new entity of the given type and returns it
	// with its assigned id and version.
	CreateEntity(ctx context.Context, typeID string, fields FieldsPayload) (*Entity, error)

	// UpdateEntity replaces the entity's fields wholesale. Merging with
	// the existing fields is the caller's responsibility.
	UpdateEntity(ctx context.Context, id string, fields FieldsPayload) (*Entity, error)

	// PublishEntity marks the given version as published.
	PublishEntity(ctx context.Context, id string, version int) (*Entity, error)

	// EntityExists reports whether an entity with the given id exists.
	EntityExists(ctx context.Context, id string) (bool, error)

	// SearchByFieldValue returns the ids of entities of the given type
	// whose field holds the given value in the given locale.
	SearchByFieldValue(ctx context.Context, typeID, fieldID string, value any, locale string) ([]string, error)

	// GetSchemaTypes returns the importable entity type schemas.
	GetSchemaTypes(ctx context.Context) ([]schema.EntityTypeSchema, error)

	// GetLocales returns the locales the repository accepts content in.
	GetLocales(ctx context.Context) ([]schema.Locale, error)
}
