package importer

// repo_test.go holds the in-memory repository fake shared by the
// package tests. Every method can be overridden per test through the
// corresponding hook; unhooked methods fall back to the entity map.

import (
	"context"
	"fmt"
	"sync"

	"github.com/contentful/apps-sub004/internal/repository"
	"github.com/contentful/apps-sub004/internal/schema"
)

type fakeRepo struct {
	mu       sync.Mutex
	entities map[string]*repository.Entity
	nextID   int

	types   []schema.EntityTypeSchema
	locales []schema.Locale

	getFn     func(ctx context.Context, id string) (*repository.Entity, error)
	createFn  func(ctx context.Context, typeID string, fields repository.FieldsPayload) (*repository.Entity, error)
	updateFn  func(ctx context.Context, id string, fields repository.FieldsPayload) (*repository.Entity, error)
	publishFn func(ctx context.Context, id string, version int) (*repository.Entity, error)
	existsFn  func(ctx context.Context, id string) (bool, error)
	searchFn  func(ctx context.Context, typeID, fieldID string, value any, locale string) ([]string, error)
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{entities: make(map[string]*repository.Entity)}
}

// seed stores an entity directly, bypassing version bookkeeping.
func (f *fakeRepo) seed(e *repository.Entity) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entities[e.ID] = e
}

func (f *fakeRepo) GetEntity(ctx context.Context, id string) (*repository.Entity, error) {
	if f.getFn != nil {
		return f.getFn(ctx, id)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.entities[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	copied := *e
	return &copied, nil
}

func (f *fakeRepo) CreateEntity(ctx context.Context, typeID string, fields repository.FieldsPayload) (*repository.Entity, error) {
	if f.createFn != nil {
		return f.createFn(ctx, typeID, fields)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	e := &repository.Entity{
		ID:      fmt.Sprintf("generated-%d", f.nextID),
		TypeID:  typeID,
		Version: 1,
		Fields:  fields,
	}
	f.entities[e.ID] = e
	return e, nil
}

func (f *fakeRepo) UpdateEntity(ctx context.Context, id string, fields repository.FieldsPayload) (*repository.Entity, error) {
	if f.updateFn != nil {
		return f.updateFn(ctx, id, fields)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.entities[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	e.Fields = fields
	e.Version++
	copied := *e
	return &copied, nil
}

func (f *fakeRepo) PublishEntity(ctx context.Context, id string, version int) (*repository.Entity, error) {
	if f.publishFn != nil {
		return f.publishFn(ctx, id, version)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.entities[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	if e.Version != version {
		return nil, repository.ErrConflict
	}
	e.PublishedVersion = version
	copied := *e
	return &copied, nil
}

func (f *fakeRepo) EntityExists(ctx context.Context, id string) (bool, error) {
	if f.existsFn != nil {
		return f.existsFn(ctx, id)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.entities[id]
	return ok, nil
}

func (f *fakeRepo) SearchByFieldValue(ctx context.Context, typeID, fieldID string, value any, locale string) ([]string, error) {
	if f.searchFn != nil {
		return f.searchFn(ctx, typeID, fieldID, value, locale)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	var ids []string
	for id, e := range f.entities {
		if e.TypeID != typeID {
			continue
		}
		if locales, ok := e.Fields[fieldID]; ok && locales[locale] == value {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (f *fakeRepo) GetSchemaTypes(ctx context.Context) ([]schema.EntityTypeSchema, error) {
	return f.types, nil
}

func (f *fakeRepo) GetLocales(ctx context.Context) ([]schema.Locale, error) {
	return f.locales, nil
}

// articleType is the entity type most tests import into.
func articleType() schema.EntityTypeSchema {
	return schema.EntityTypeSchema{
		ID:             "article",
		Name:           "Article",
		DisplayFieldID: "title",
		Fields: []schema.FieldSchema{
			{ID: "title", Name: "Title", Type: schema.FieldText, Localized: true, Required: true},
			{ID: "slug", Name: "Slug", Type: schema.FieldText},
			{ID: "views", Name: "Views", Type: schema.FieldNumber},
			{ID: "featured", Name: "Featured", Type: schema.FieldBoolean},
			{ID: "tags", Name: "Tags", Type: schema.FieldList, ItemType: schema.ItemText},
			{ID: "author", Name: "Author", Type: schema.FieldReference, ReferenceTargets: []string{"person"}},
		},
	}
}
