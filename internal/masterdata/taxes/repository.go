package taxes

import (
	"context"

	"github.com/carepoint-hms/carepoint/internal/docstore"
	"github.com/carepoint-hms/carepoint/internal/masterdata/shared"
)

// Repository persists taxes.
type Repository interface {
	List(ctx context.Context, tenant string, filters shared.ListFilters) ([]Tax, int, error)
	Get(ctx context.Context, tenant, id string) (Tax, error)
	Create(ctx context.Context, tenant string, tax Tax) (Tax, error)
	Delete(ctx context.Context, tenant, id string) error
}

// NewRepository stores taxes in the taxes collection.
func NewRepository(store docstore.Store) Repository {
	return shared.NewRepository(store, collectionTaxes,
		func(t *Tax) *string { return &t.ID },
		func(t Tax) []string { return []string{t.Name, t.Code} })
}

// Getter reads documents; satisfied by docstore.Store and docstore.Tx.
type Getter interface {
	Get(ctx context.Context, ref docstore.Ref, dst any) error
}
