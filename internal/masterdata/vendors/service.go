package vendors

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/carepoint-hms/carepoint/internal/docstore"
	"github.com/carepoint-hms/carepoint/internal/masterdata/shared"
	appshared "github.com/carepoint-hms/carepoint/internal/shared"
)

// ordersCollection holds vendor stock orders written by inventory.
const ordersCollection = "stock_orders"

type Service struct {
	repo  *shared.Repository[Vendor]
	store docstore.Store
	now   func() time.Time
}

func NewService(store docstore.Store) *Service {
	repo := shared.NewRepository(store, Collection,
		func(v *Vendor) *string { return &v.ID },
		func(v Vendor) []string { return []string{v.Name, v.Code, v.Email} })
	return &Service{repo: repo, store: store, now: time.Now}
}

var _ shared.Service[Vendor] = (*Service)(nil)

func (s *Service) validate(v Vendor) error {
	if strings.TrimSpace(v.Code) == "" {
		return appshared.Invalidf("vendor code is required")
	}
	if strings.TrimSpace(v.Name) == "" {
		return appshared.Invalidf("vendor name is required")
	}
	if v.Email != "" {
		if _, err := mail.ParseAddress(v.Email); err != nil {
			return appshared.Invalidf("invalid vendor email")
		}
	}
	return nil
}

func (s *Service) List(ctx context.Context, tenant string, filters shared.ListFilters) ([]Vendor, int, error) {
	return s.repo.List(ctx, tenant, filters)
}

func (s *Service) Get(ctx context.Context, tenant, id string) (Vendor, error) {
	if id == "" {
		return Vendor{}, appshared.Invalidf("invalid vendor ID")
	}
	return s.repo.Get(ctx, tenant, id)
}

func (s *Service) Create(ctx context.Context, tenant string, v Vendor) (Vendor, error) {
	if err := s.validate(v); err != nil {
		return Vendor{}, err
	}
	v.CreatedAt = s.now().UTC()
	v.UpdatedAt = v.CreatedAt
	return s.repo.Create(ctx, tenant, v)
}

func (s *Service) Update(ctx context.Context, tenant, id string, v Vendor) error {
	if id == "" {
		return appshared.Invalidf("invalid vendor ID")
	}
	if err := s.validate(v); err != nil {
		return err
	}
	current, err := s.repo.Get(ctx, tenant, id)
	if err != nil {
		return err
	}
	v.CreatedAt = current.CreatedAt
	v.UpdatedAt = s.now().UTC()
	return s.repo.Update(ctx, tenant, id, v)
}

// Delete removes a vendor without stock orders.
func (s *Service) Delete(ctx context.Context, tenant, id string) error {
	if id == "" {
		return appshared.Invalidf("invalid vendor ID")
	}
	n, err := s.store.Count(ctx, docstore.Query{Tenant: tenant, Collection: ordersCollection}.
		Where("vendorId", docstore.OpEq, id))
	if err != nil {
		return err
	}
	if n > 0 {
		return fmt.Errorf("vendor %s has %d stock orders: %w", id, n, appshared.ErrAlreadyFinalState)
	}
	return s.repo.Delete(ctx, tenant, id)
}

// Getter reads documents; satisfied by docstore.Store and docstore.Tx.
type Getter interface {
	Get(ctx context.Context, ref docstore.Ref, dst any) error
}

// Require returns shared.ErrNotFound unless the vendor exists.
func Require(ctx context.Context, g Getter, tenant, id string) (Vendor, error) {
	var v Vendor
	if err := g.Get(ctx, docstore.NewRef(tenant, Collection, id), &v); err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			return Vendor{}, appshared.NotFoundf("vendor %s", id)
		}
		return Vendor{}, err
	}
	return v, nil
}
