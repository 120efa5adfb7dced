package importer

// resolve.go answers two questions against the repository, both
// batched: which referenced entity ids actually exist, and which
// existing entity an update-mode row targets.

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/contentful/apps-sub004/internal/repository"
)

// existenceChunkSize is how many ids one existence batch checks; the
// ids within a chunk run concurrently, chunks run sequentially.
const existenceChunkSize = 50

// Natural-key resolution failures. A key that does not uniquely
// identify one entity must never be guessed at.
var (
	ErrNoEntityFound  = errors.New("no entity found for key")
	ErrAmbiguousKey   = errors.New("ambiguous key, must be unique")
	ErrMissingKeyCell = errors.New("key value is empty")
)

// ExistenceSet is the outcome of a batched existence check. Exists
// holds every id the repository confirmed; Unconfirmed holds ids whose
// check failed with a repository error. Unconfirmed ids are still
// treated as nonexistent (fail-closed), but callers can surface the
// distinction as a warning.
type ExistenceSet struct {
	Exists      map[string]struct{}
	Unconfirmed map[string]struct{}
}

// Has reports whether an id was confirmed to exist.
func (s *ExistenceSet) Has(id string) bool {
	_, ok := s.Exists[id]
	return ok
}

// Resolver batches repository lookups for the dry-run pass.
type Resolver struct {
	repo repository.Repository
}

// NewResolver creates a resolver on the given repository.
func NewResolver(repo repository.Repository) *Resolver {
	return &Resolver{repo: repo}
}

// CheckExistence checks every id in the set against the repository.
// Ids are deduplicated and sorted so the result is independent of the
// caller's ordering.
func (r *Resolver) CheckExistence(ctx context.Context, ids map[string]struct{}) *ExistenceSet {
	result := &ExistenceSet{
		Exists:      make(map[string]struct{}, len(ids)),
		Unconfirmed: make(map[string]struct{}),
	}

	sorted := make([]string, 0, len(ids))
	for id := range ids {
		sorted = append(sorted, id)
	}
	sort.Strings(sorted)

	var mu sync.Mutex
	for start := 0; start < len(sorted); start += existenceChunkSize {
		end := start + existenceChunkSize
		if end > len(sorted) {
			end = len(sorted)
		}

		var wg sync.WaitGroup
		for _, id := range sorted[start:end] {
			wg.Add(1)
			go func(id string) {
				defer wg.Done()
				exists, err := r.repo.EntityExists(ctx, id)

				mu.Lock()
				defer mu.Unlock()
				switch {
				case err != nil:
					result.Unconfirmed[id] = struct{}{}
				case exists:
					result.Exists[id] = struct{}{}
				}
			}(id)
		}
		wg.Wait()
	}

	return result
}

// ReferencedIDs collects every reference id a set of field values
// links to, deduplicated across rows.
func ReferencedIDs(rows [][]FieldValue) map[string]struct{} {
	ids := make(map[string]struct{})
	for _, values := range rows {
		for _, v := range values {
			switch link := v.Value.(type) {
			case Link:
				ids[link.ID] = struct{}{}
			case []any:
				for _, item := range link {
					if l, ok := item.(Link); ok {
						ids[l.ID] = struct{}{}
					}
				}
			}
		}
	}
	return ids
}

// ResolveNaturalKey finds the single entity whose key field holds the
// given value. Zero matches and multiple matches are both hard
// failures for the row.
func (r *Resolver) ResolveNaturalKey(ctx context.Context, typeID, fieldID string, value any, locale string) (string, error) {
	if isEmptyValue(value) {
		return "", ErrMissingKeyCell
	}

	ids, err := r.repo.SearchByFieldValue(ctx, typeID, fieldID, value, locale)
	if err != nil {
		return "", err
	}

	switch len(ids) {
	case 0:
		return "", ErrNoEntityFound
	case 1:
		return ids[0], nil
	default:
		return "", ErrAmbiguousKey
	}
}
