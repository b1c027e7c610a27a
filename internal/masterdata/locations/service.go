package locations

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/carepoint-hms/carepoint/internal/docstore"
	"github.com/carepoint-hms/carepoint/internal/masterdata/shared"
	appshared "github.com/carepoint-hms/carepoint/internal/shared"
)

type Service struct {
	repo  *shared.Repository[Location]
	store docstore.Store
	now   func() time.Time
}

func NewService(store docstore.Store) *Service {
	repo := shared.NewRepository(store, Collection,
		func(l *Location) *string { return &l.ID },
		func(l Location) []string { return []string{l.Name, l.Code} })
	return &Service{repo: repo, store: store, now: time.Now}
}

var _ shared.Service[Location] = (*Service)(nil)

func (s *Service) List(ctx context.Context, tenant string, filters shared.ListFilters) ([]Location, int, error) {
	return s.repo.List(ctx, tenant, filters)
}

func (s *Service) Get(ctx context.Context, tenant, id string) (Location, error) {
	if id == "" {
		return Location{}, appshared.Invalidf("invalid location ID")
	}
	return s.repo.Get(ctx, tenant, id)
}

func (s *Service) Create(ctx context.Context, tenant string, l Location) (Location, error) {
	if err := s.validate(l); err != nil {
		return Location{}, err
	}
	if l.Type == "" {
		l.Type = TypeStore
	}
	l.CreatedAt = s.now().UTC()
	l.UpdatedAt = l.CreatedAt
	return s.repo.Create(ctx, tenant, l)
}

func (s *Service) Update(ctx context.Context, tenant, id string, l Location) error {
	if id == "" {
		return appshared.Invalidf("invalid location ID")
	}
	if err := s.validate(l); err != nil {
		return err
	}
	current, err := s.repo.Get(ctx, tenant, id)
	if err != nil {
		return err
	}
	l.CreatedAt = current.CreatedAt
	l.UpdatedAt = s.now().UTC()
	return s.repo.Update(ctx, tenant, id, l)
}

// Delete removes a location that holds no stock.
func (s *Service) Delete(ctx context.Context, tenant, id string) error {
	if id == "" {
		return appshared.Invalidf("invalid location ID")
	}
	n, err := s.store.Count(ctx, docstore.Query{Tenant: tenant, Collection: stockCollection}.
		Where("locationId", docstore.OpEq, id).
		Where("totalStock", docstore.OpGt, decimal.Zero))
	if err != nil {
		return err
	}
	if n > 0 {
		return fmt.Errorf("location %s still holds stock for %d items: %w", id, n, appshared.ErrAlreadyFinalState)
	}
	return s.repo.Delete(ctx, tenant, id)
}

// Getter reads documents; satisfied by docstore.Store and docstore.Tx.
type Getter interface {
	Get(ctx context.Context, ref docstore.Ref, dst any) error
}

// Require returns shared.ErrNotFound unless the location exists.
func Require(ctx context.Context, g Getter, tenant, id string) (Location, error) {
	var l Location
	if err := g.Get(ctx, docstore.NewRef(tenant, Collection, id), &l); err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			return Location{}, appshared.NotFoundf("location %s", id)
		}
		return Location{}, err
	}
	return l, nil
}
