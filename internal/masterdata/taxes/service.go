package taxes

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/carepoint-hms/carepoint/internal/docstore"
	"github.com/carepoint-hms/carepoint/internal/masterdata/shared"
	"github.com/carepoint-hms/carepoint/internal/money"
	appshared "github.com/carepoint-hms/carepoint/internal/shared"
)

type Service struct {
	repo  Repository
	store docstore.Store
}

func NewService(store docstore.Store) *Service {
	return &Service{repo: NewRepository(store), store: store}
}

func (s *Service) List(ctx context.Context, tenant string, filters shared.ListFilters) ([]Tax, int, error) {
	return s.repo.List(ctx, tenant, filters)
}

func (s *Service) Get(ctx context.Context, tenant, id string) (Tax, error) {
	if id == "" {
		return Tax{}, appshared.Invalidf("invalid tax ID")
	}
	return s.repo.Get(ctx, tenant, id)
}

func (s *Service) Create(ctx context.Context, tenant string, tax Tax) (Tax, error) {
	if err := s.validate(tax); err != nil {
		return Tax{}, err
	}
	tax.Rate = money.Round2(tax.Rate)
	return s.repo.Create(ctx, tenant, tax)
}

// Update changes a tax and refreshes TotalRate on every group containing it
// in the same transaction.
func (s *Service) Update(ctx context.Context, tenant, id string, tax Tax) error {
	if id == "" {
		return appshared.Invalidf("invalid tax ID")
	}
	if err := s.validate(tax); err != nil {
		return err
	}
	tax.ID = id
	tax.Rate = money.Round2(tax.Rate)
	return s.store.RunTx(ctx, func(ctx context.Context, tx docstore.Tx) error {
		ref := docstore.NewRef(tenant, collectionTaxes, id)
		var current Tax
		if err := tx.Get(ctx, ref, &current); err != nil {
			return err
		}
		if err := tx.Set(ref, tax); err != nil {
			return err
		}
		groups, err := tx.Query(ctx, docstore.Query{Tenant: tenant, Collection: collectionGroups})
		if err != nil {
			return err
		}
		for _, snap := range groups {
			var g TaxGroup
			if err := snap.Decode(&g); err != nil {
				return err
			}
			if !contains(g.TaxIDs, id) {
				continue
			}
			_, total, err := resolveMembers(ctx, tx, tenant, g.TaxIDs)
			if err != nil {
				return err
			}
			if err := tx.Update(ctx, snap.Ref, map[string]any{"totalRate": total}); err != nil {
				return err
			}
		}
		return nil
	})
}

// Delete removes a tax unless a tax group still references it.
func (s *Service) Delete(ctx context.Context, tenant, id string) error {
	if id == "" {
		return appshared.Invalidf("invalid tax ID")
	}
	groups, err := s.ListGroups(ctx, tenant)
	if err != nil {
		return err
	}
	for _, g := range groups {
		if contains(g.TaxIDs, id) {
			return fmt.Errorf("tax %s is used by group %s: %w", id, g.Name, appshared.ErrAlreadyFinalState)
		}
	}
	return s.repo.Delete(ctx, tenant, id)
}

// CreateGroup stores a tax group with its computed TotalRate.
func (s *Service) CreateGroup(ctx context.Context, tenant string, group TaxGroup) (TaxGroup, error) {
	if err := s.validateGroup(group); err != nil {
		return TaxGroup{}, err
	}
	if group.ID == "" {
		group.ID = uuid.NewString()
	}
	err := s.store.RunTx(ctx, func(ctx context.Context, tx docstore.Tx) error {
		_, total, err := resolveMembers(ctx, tx, tenant, group.TaxIDs)
		if err != nil {
			return err
		}
		group.TotalRate = total
		return tx.Create(docstore.NewRef(tenant, collectionGroups, group.ID), group)
	})
	if err != nil {
		return TaxGroup{}, err
	}
	return group, nil
}

func (s *Service) GetGroup(ctx context.Context, tenant, id string) (TaxGroup, error) {
	var g TaxGroup
	if err := s.store.Get(ctx, docstore.NewRef(tenant, collectionGroups, id), &g); err != nil {
		return TaxGroup{}, err
	}
	return g, nil
}

func (s *Service) ListGroups(ctx context.Context, tenant string) ([]TaxGroup, error) {
	snaps, err := s.store.Query(ctx, docstore.Query{Tenant: tenant, Collection: collectionGroups, OrderBy: "name"})
	if err != nil {
		return nil, err
	}
	out := make([]TaxGroup, 0, len(snaps))
	for _, snap := range snaps {
		var g TaxGroup
		if err := snap.Decode(&g); err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, nil
}

func (s *Service) DeleteGroup(ctx context.Context, tenant, id string) error {
	ref := docstore.NewRef(tenant, collectionGroups, id)
	return s.store.RunTx(ctx, func(ctx context.Context, tx docstore.Tx) error {
		var g TaxGroup
		if err := tx.Get(ctx, ref, &g); err != nil {
			return err
		}
		return tx.Delete(ref)
	})
}

// ResolveRates loads a tax group's member rates through g, which may be a
// store or an open transaction. An empty groupID resolves to no taxes.
func ResolveRates(ctx context.Context, g Getter, tenant, groupID string) ([]money.TaxRate, error) {
	if groupID == "" {
		return nil, nil
	}
	_, rates, err := LoadGroup(ctx, g, tenant, groupID)
	return rates, err
}

// LoadGroup returns a tax group together with its member rates.
func LoadGroup(ctx context.Context, g Getter, tenant, groupID string) (TaxGroup, []money.TaxRate, error) {
	var group TaxGroup
	if err := g.Get(ctx, docstore.NewRef(tenant, collectionGroups, groupID), &group); err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			return TaxGroup{}, nil, appshared.NotFoundf("tax group %s", groupID)
		}
		return TaxGroup{}, nil, err
	}
	rates, _, err := resolveMembers(ctx, g, tenant, group.TaxIDs)
	if err != nil {
		return TaxGroup{}, nil, err
	}
	return group, rates, nil
}

// ResolveTaxRate loads a single tax as a rate, used for per-item taxes.
func ResolveTaxRate(ctx context.Context, g Getter, tenant, taxID string) (money.TaxRate, error) {
	var t Tax
	if err := g.Get(ctx, docstore.NewRef(tenant, collectionTaxes, taxID), &t); err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			return money.TaxRate{}, appshared.NotFoundf("tax %s", taxID)
		}
		return money.TaxRate{}, err
	}
	return money.TaxRate{Name: t.Name, Rate: t.Rate}, nil
}

func resolveMembers(ctx context.Context, g Getter, tenant string, ids []string) ([]money.TaxRate, decimal.Decimal, error) {
	rates := make([]money.TaxRate, 0, len(ids))
	total := decimal.Zero
	for _, id := range ids {
		rate, err := ResolveTaxRate(ctx, g, tenant, id)
		if err != nil {
			return nil, decimal.Zero, err
		}
		rates = append(rates, rate)
		total = total.Add(rate.Rate)
	}
	return rates, money.Round2(total), nil
}

func contains(ids []string, id string) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
