package taxes

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/carepoint-hms/carepoint/internal/docstore"
	"github.com/carepoint-hms/carepoint/internal/docstore/memory"
	"github.com/carepoint-hms/carepoint/internal/masterdata/shared"
	appshared "github.com/carepoint-hms/carepoint/internal/shared"
)

func TestGroupTotalRateFollowsMemberUpdates(t *testing.T) {
	ctx := context.Background()
	store := memory.New(docstore.Options{})
	svc := NewService(store)

	cgst, err := svc.Create(ctx, "h1", Tax{Code: "CGST", Name: "Central GST", Rate: decimal.NewFromInt(9)})
	require.NoError(t, err)
	sgst, err := svc.Create(ctx, "h1", Tax{Code: "SGST", Name: "State GST", Rate: decimal.NewFromInt(9)})
	require.NoError(t, err)

	group, err := svc.CreateGroup(ctx, "h1", TaxGroup{Name: "GST 18", TaxIDs: []string{cgst.ID, sgst.ID}})
	require.NoError(t, err)
	require.True(t, group.TotalRate.Equal(decimal.NewFromInt(18)))

	rates, err := ResolveRates(ctx, store, "h1", group.ID)
	require.NoError(t, err)
	require.Len(t, rates, 2)
	require.Equal(t, "Central GST", rates[0].Name)

	cgst.Rate = decimal.NewFromInt(6)
	require.NoError(t, svc.Update(ctx, "h1", cgst.ID, cgst))
	group, err = svc.GetGroup(ctx, "h1", group.ID)
	require.NoError(t, err)
	require.True(t, group.TotalRate.Equal(decimal.NewFromInt(15)), group.TotalRate.String())

	require.ErrorIs(t, svc.Delete(ctx, "h1", cgst.ID), appshared.ErrAlreadyFinalState)
}

func TestValidationAndLookup(t *testing.T) {
	ctx := context.Background()
	svc := NewService(memory.New(docstore.Options{}))

	_, err := svc.Create(ctx, "h1", Tax{Code: "X", Name: "Too much", Rate: decimal.NewFromInt(101)})
	require.ErrorIs(t, err, appshared.ErrValidation)

	_, err = svc.CreateGroup(ctx, "h1", TaxGroup{Name: "Ghost", TaxIDs: []string{"missing"}})
	require.ErrorIs(t, err, appshared.ErrNotFound)

	_, err = ResolveRates(ctx, svc.store, "h1", "nope")
	require.ErrorIs(t, err, appshared.ErrNotFound)

	rates, err := ResolveRates(ctx, svc.store, "h1", "")
	require.NoError(t, err)
	require.Empty(t, rates)
}

func TestListSearchAndPaging(t *testing.T) {
	ctx := context.Background()
	svc := NewService(memory.New(docstore.Options{}))
	for _, code := range []string{"VAT", "CESS", "GST"} {
		_, err := svc.Create(ctx, "h1", Tax{Code: code, Name: code + " tax", Rate: decimal.NewFromInt(5)})
		require.NoError(t, err)
	}
	items, total, err := svc.List(ctx, "h1", shared.ListFilters{Limit: 2})
	require.NoError(t, err)
	require.Equal(t, 3, total)
	require.Len(t, items, 2)
	require.Equal(t, "CESS tax", items[0].Name)

	items, total, err = svc.List(ctx, "h1", shared.ListFilters{Search: "gst"})
	require.NoError(t, err)
	require.Equal(t, 1, total)
	require.Equal(t, "GST", items[0].Code)
}
