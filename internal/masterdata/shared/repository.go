package shared

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/carepoint-hms/carepoint/internal/docstore"
	appshared "github.com/carepoint-hms/carepoint/internal/shared"
)

// Repository stores one master data kind in a docstore collection.
type Repository[T any] struct {
	store      docstore.Store
	collection string
	id         func(*T) *string
	label      func(T) []string
}

// NewRepository builds a Repository. id exposes the entity's id field; label
// returns the searchable text, the first value also being the sort key.
func NewRepository[T any](store docstore.Store, collection string, id func(*T) *string, label func(T) []string) *Repository[T] {
	return &Repository[T]{store: store, collection: collection, id: id, label: label}
}

// Collection names the backing collection.
func (r *Repository[T]) Collection() string {
	return r.collection
}

// List returns one filtered page plus the total number of matches.
func (r *Repository[T]) List(ctx context.Context, tenant string, filters ListFilters) ([]T, int, error) {
	filters = filters.Normalize()
	snaps, err := r.store.Query(ctx, docstore.Query{Tenant: tenant, Collection: r.collection})
	if err != nil {
		return nil, 0, err
	}
	items := make([]T, 0, len(snaps))
	for _, snap := range snaps {
		var item T
		if err := snap.Decode(&item); err != nil {
			return nil, 0, err
		}
		if filters.Matches(r.label(item)...) {
			items = append(items, item)
		}
	}
	sort.SliceStable(items, func(i, j int) bool {
		a, b := strings.ToLower(r.label(items[i])[0]), strings.ToLower(r.label(items[j])[0])
		if filters.SortDir == SortDesc {
			return a > b
		}
		return a < b
	})
	total := len(items)
	start := (filters.Page - 1) * filters.Limit
	if start > total {
		start = total
	}
	end := start + filters.Limit
	if end > total {
		end = total
	}
	return items[start:end], total, nil
}

// Get loads one entity.
func (r *Repository[T]) Get(ctx context.Context, tenant, id string) (T, error) {
	var item T
	if err := r.store.Get(ctx, docstore.NewRef(tenant, r.collection, id), &item); err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			return item, appshared.NotFoundf("%s %s", r.collection, id)
		}
		return item, err
	}
	return item, nil
}

// Create assigns an id and stores the entity.
func (r *Repository[T]) Create(ctx context.Context, tenant string, item T) (T, error) {
	if idField := r.id(&item); *idField == "" {
		*idField = uuid.NewString()
	}
	ref := docstore.NewRef(tenant, r.collection, *r.id(&item))
	err := r.store.RunTx(ctx, func(ctx context.Context, tx docstore.Tx) error {
		return tx.Create(ref, item)
	})
	if err != nil {
		return item, fmt.Errorf("create %s: %w", r.collection, err)
	}
	return item, nil
}

// Update replaces an existing entity.
func (r *Repository[T]) Update(ctx context.Context, tenant, id string, item T) error {
	*r.id(&item) = id
	ref := docstore.NewRef(tenant, r.collection, id)
	return r.store.RunTx(ctx, func(ctx context.Context, tx docstore.Tx) error {
		var current T
		if err := tx.Get(ctx, ref, &current); err != nil {
			return notFound(err, r.collection, id)
		}
		return tx.Set(ref, item)
	})
}

// Delete removes an existing entity.
func (r *Repository[T]) Delete(ctx context.Context, tenant, id string) error {
	ref := docstore.NewRef(tenant, r.collection, id)
	return r.store.RunTx(ctx, func(ctx context.Context, tx docstore.Tx) error {
		var current T
		if err := tx.Get(ctx, ref, &current); err != nil {
			return notFound(err, r.collection, id)
		}
		return tx.Delete(ref)
	})
}

func notFound(err error, collection, id string) error {
	if errors.Is(err, docstore.ErrNotFound) {
		return appshared.NotFoundf("%s %s", collection, id)
	}
	return err
}
