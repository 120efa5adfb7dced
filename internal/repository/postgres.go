package repository

// postgres.go implements Repository on PostgreSQL. Entities carry their
// field payloads as JSONB; schema types and locales live in companion
// tables so GetSchemaTypes/GetLocales serve the same metadata the
// import pipeline validates against.

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/contentful/apps-sub004/internal/schema"
)

// Postgres is a Repository backed by a pgx connection pool.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres creates a Postgres repository on the given pool.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

// EnsureSchema creates the backing tables if they do not exist.
func (p *Postgres) EnsureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS entities (
			id TEXT PRIMARY KEY,
			type_id TEXT NOT NULL,
			version INT NOT NULL DEFAULT 1,
			published_version INT NOT NULL DEFAULT 0,
			fields JSONB NOT NULL DEFAULT '{}'::jsonb,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE INDEX IF NOT EXISTS entities_type_idx ON entities (type_id)`,
		`CREATE INDEX IF NOT EXISTS entities_fields_idx ON entities USING gin (fields)`,
		`CREATE TABLE IF NOT EXISTS entity_types (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			display_field_id TEXT NOT NULL DEFAULT '',
			fields JSONB NOT NULL DEFAULT '[]'::jsonb
		)`,
		`CREATE TABLE IF NOT EXISTS locales (
			code TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			is_default BOOLEAN NOT NULL DEFAULT false
		)`,
	}
	for _, stmt := range stmts {
		if _, err := p.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

// GetEntity returns the entity with the given id.
func (p *Postgres) GetEntity(ctx context.Context, id string) (*Entity, error) {
	row := p.pool.QueryRow(ctx,
		`SELECT id, type_id, version, published_version, fields FROM entities WHERE id = $1`, id)
	return scanEntity(row)
}

// CreateEntity stores a new entity and returns it with its assigned id.
func (p *Postgres) CreateEntity(ctx context.Context, typeID string, fields FieldsPayload) (*Entity, error) {
	raw, err := json.Marshal(fields)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}

	id := uuid.New().String()
	_, err = p.pool.Exec(ctx,
		`INSERT INTO entities (id, type_id, fields) VALUES ($1, $2, $3)`, id, typeID, raw)
	if err != nil {
		return nil, classify(err)
	}

	return &Entity{ID: id, TypeID: typeID, Version: 1, Fields: fields}, nil
}

// UpdateEntity replaces the entity's fields and bumps its version.
func (p *Postgres) UpdateEntity(ctx context.Context, id string, fields FieldsPayload) (*Entity, error) {
	raw, err := json.Marshal(fields)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}

	row := p.pool.QueryRow(ctx,
		`UPDATE entities SET fields = $2, version = version + 1, updated_at = now()
		 WHERE id = $1
		 RETURNING id, type_id, version, published_version, fields`, id, raw)
	return scanEntity(row)
}

// PublishEntity records the given version as published.
func (p *Postgres) PublishEntity(ctx context.Context, id string, version int) (*Entity, error) {
	row := p.pool.QueryRow(ctx,
		`UPDATE entities SET published_version = $2, updated_at = now()
		 WHERE id = $1 AND version = $2
		 RETURNING id, type_id, version, published_version, fields`, id, version)
	ent, err := scanEntity(row)
	if errors.Is(err, ErrNotFound) {
		// Distinguish a stale version from a missing entity.
		exists, existsErr := p.EntityExists(ctx, id)
		if existsErr == nil && exists {
			return nil, fmt.Errorf("%w: entity %s is no longer at version %d", ErrConflict, id, version)
		}
	}
	return ent, err
}

// EntityExists reports whether an entity with the given id exists.
func (p *Postgres) EntityExists(ctx context.Context, id string) (bool, error) {
	var exists bool
	err := p.pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM entities WHERE id = $1)`, id).Scan(&exists)
	if err != nil {
		return false, classify(err)
	}
	return exists, nil
}

// SearchByFieldValue returns ids of entities of the given type whose
// field equals the given value in the given locale.
func (p *Postgres) SearchByFieldValue(ctx context.Context, typeID, fieldID string, value any, locale string) ([]string, error) {
	raw, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}

	rows, err := p.pool.Query(ctx,
		`SELECT id FROM entities WHERE type_id = $1 AND fields -> $2 -> $3 = $4::jsonb`,
		typeID, fieldID, locale, raw)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, classify(err)
		}
		ids = append(ids, id)
	}
	return ids, classify(rows.Err())
}

// storedField is the JSON shape of a FieldSchema in entity_types.fields.
type storedField struct {
	ID                   string   `json:"id"`
	Name                 string   `json:"name"`
	Type                 string   `json:"type"`
	Localized            bool     `json:"localized"`
	Required             bool     `json:"required"`
	ItemType             string   `json:"itemType,omitempty"`
	ItemReferenceTargets []string `json:"itemReferenceTargets,omitempty"`
	ReferenceTargets     []string `json:"referenceTargets,omitempty"`
	Rules                []struct {
		In       []string `json:"in,omitempty"`
		Pattern  string   `json:"pattern,omitempty"`
		SizeMin  *int     `json:"sizeMin,omitempty"`
		SizeMax  *int     `json:"sizeMax,omitempty"`
		RangeMin *float64 `json:"rangeMin,omitempty"`
		RangeMax *float64 `json:"rangeMax,omitempty"`
	} `json:"rules,omitempty"`
}

// GetSchemaTypes returns all entity type schemas.
func (p *Postgres) GetSchemaTypes(ctx context.Context) ([]schema.EntityTypeSchema, error) {
	rows, err := p.pool.Query(ctx,
		`SELECT id, name, display_field_id, fields FROM entity_types ORDER BY id`)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	var types []schema.EntityTypeSchema
	for rows.Next() {
		var t schema.EntityTypeSchema
		var raw []byte
		if err := rows.Scan(&t.ID, &t.Name, &t.DisplayFieldID, &raw); err != nil {
			return nil, classify(err)
		}

		var stored []storedField
		if err := json.Unmarshal(raw, &stored); err != nil {
			return nil, fmt.Errorf("decode fields for type %s: %w", t.ID, err)
		}
		for _, sf := range stored {
			f := schema.FieldSchema{
				ID:                   sf.ID,
				Name:                 sf.Name,
				Type:                 parseFieldType(sf.Type),
				Localized:            sf.Localized,
				Required:             sf.Required,
				ItemReferenceTargets: sf.ItemReferenceTargets,
				ReferenceTargets:     sf.ReferenceTargets,
			}
			if sf.ItemType == "reference" {
				f.ItemType = schema.ItemReference
			}
			for _, r := range sf.Rules {
				f.Rules = append(f.Rules, schema.ValidationRule{
					EnumValues: r.In,
					Pattern:    r.Pattern,
					SizeMin:    r.SizeMin,
					SizeMax:    r.SizeMax,
					RangeMin:   r.RangeMin,
					RangeMax:   r.RangeMax,
				})
			}
			t.Fields = append(t.Fields, f)
		}
		types = append(types, t)
	}
	return types, classify(rows.Err())
}

// GetLocales returns all locales.
func (p *Postgres) GetLocales(ctx context.Context) ([]schema.Locale, error) {
	rows, err := p.pool.Query(ctx,
		`SELECT code, name, is_default FROM locales ORDER BY is_default DESC, code`)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	var locales []schema.Locale
	for rows.Next() {
		var l schema.Locale
		if err := rows.Scan(&l.Code, &l.Name, &l.Default); err != nil {
			return nil, classify(err)
		}
		locales = append(locales, l)
	}
	return locales, classify(rows.Err())
}

func parseFieldType(s string) schema.FieldType {
	switch s {
	case "longText":
		return schema.FieldLongText
	case "document":
		return schema.FieldStructuredDocument
	case "number":
		return schema.FieldNumber
	case "boolean":
		return schema.FieldBoolean
	case "list":
		return schema.FieldList
	case "reference":
		return schema.FieldReference
	default:
		return schema.FieldText
	}
}

// scanEntity reads one entity row, mapping pgx.ErrNoRows to ErrNotFound.
func scanEntity(row pgx.Row) (*Entity, error) {
	var e Entity
	var raw []byte
	err := row.Scan(&e.ID, &e.TypeID, &e.Version, &e.PublishedVersion, &raw)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, classify(err)
	}
	if err := json.Unmarshal(raw, &e.Fields); err != nil {
		return nil, fmt.Errorf("decode entity fields: %w", err)
	}
	return &e, nil
}

// classify maps driver errors onto the repository error taxonomy.
// Connection-level failures are treated as transient.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return fmt.Errorf("%w: %v", ErrUnavailable, err)
}
