package pos

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/carepoint-hms/carepoint/internal/docstore"
	"github.com/carepoint-hms/carepoint/internal/docstore/memory"
	"github.com/carepoint-hms/carepoint/internal/inventory"
	"github.com/carepoint-hms/carepoint/internal/ledger"
	"github.com/carepoint-hms/carepoint/internal/masterdata/locations"
	"github.com/carepoint-hms/carepoint/internal/masterdata/taxes"
	"github.com/carepoint-hms/carepoint/internal/shared"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

type fixture struct {
	store    docstore.Store
	inv      *inventory.Service
	svc      *Service
	location string
	itemID   string
	batchID  string
	gst      string
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	ctx := context.Background()
	store := memory.New(docstore.Options{})
	loc, err := locations.NewService(store).Create(ctx, "h1", locations.Location{Code: "PH", Name: "Pharmacy", Type: locations.TypePharmacy})
	require.NoError(t, err)

	taxSvc := taxes.NewService(store)
	cgst, err := taxSvc.Create(ctx, "h1", taxes.Tax{Code: "CGST", Name: "CGST", Rate: dec("9")})
	require.NoError(t, err)
	sgst, err := taxSvc.Create(ctx, "h1", taxes.Tax{Code: "SGST", Name: "SGST", Rate: dec("9")})
	require.NoError(t, err)
	group, err := taxSvc.CreateGroup(ctx, "h1", taxes.TaxGroup{Name: "GST 18", TaxIDs: []string{cgst.ID, sgst.ID}})
	require.NoError(t, err)

	inv := inventory.NewService(store, inventory.ServiceConfig{})
	item, err := inv.CreateStockItem(ctx, "h1", inventory.StockItemInput{
		Name:     "Amoxicillin 250",
		SKU:      "AMX-250",
		UnitType: "strip",
		Locations: []inventory.InitialStock{{LocationID: loc.ID, Batches: []inventory.BatchInput{
			{BatchNumber: "AMX-1", Quantity: dec("5"), CostPrice: dec("40"), SalePrice: dec("50")},
		}}},
	})
	require.NoError(t, err)
	stock, err := inv.GetLocationStock(ctx, "h1", item.ID, loc.ID)
	require.NoError(t, err)

	return fixture{
		store:    store,
		inv:      inv,
		svc:      NewService(store, inv, nil),
		location: loc.ID,
		itemID:   item.ID,
		batchID:  stock.Batches[0].ID,
		gst:      group.ID,
	}
}

func TestCheckoutSellsAndRecordsReceipt(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	sale, err := f.svc.Checkout(ctx, "h1", CheckoutRequest{
		LocationID:  f.location,
		Items:       []inventory.SaleLine{{StockItemID: f.itemID, BatchID: f.batchID, Quantity: dec("2")}},
		TaxGroupID:  f.gst,
		DiscountPct: dec("10"),
		Payment:     &CheckoutPayment{Amount: dec("108"), Method: "cash"},
		CreatedBy:   "u1",
	})
	require.NoError(t, err)
	require.True(t, sale.Subtotal.Equal(dec("100")))
	require.True(t, sale.TotalTax.Equal(dec("18")))
	require.True(t, sale.TotalAmount.Equal(dec("108")), sale.TotalAmount.String())
	require.Equal(t, ledger.StatusPaid, sale.PaymentStatus)
	require.Len(t, sale.Lines, 1)
	require.True(t, sale.Lines[0].UnitPrice.Equal(dec("50")))

	stock, err := f.inv.GetLocationStock(ctx, "h1", f.itemID, f.location)
	require.NoError(t, err)
	require.True(t, stock.TotalStock.Equal(dec("3")))

	movements, err := f.inv.ListMovements(ctx, "h1", inventory.MovementFilter{Type: inventory.MovementSale})
	require.NoError(t, err)
	require.Len(t, movements, 1)
	require.Equal(t, sale.ID, movements[0].RelatedEntityID)

	got, err := f.svc.Get(ctx, "h1", sale.ID)
	require.NoError(t, err)
	require.Equal(t, sale.Number, got.Number)
}

func TestCheckoutIsAllOrNothing(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.svc.Checkout(ctx, "h1", CheckoutRequest{
		LocationID: f.location,
		Items:      []inventory.SaleLine{{StockItemID: f.itemID, BatchID: f.batchID, Quantity: dec("6")}},
	})
	require.ErrorIs(t, err, shared.ErrInsufficientStock)

	_, err = f.svc.Checkout(ctx, "h1", CheckoutRequest{
		LocationID: f.location,
		Items:      []inventory.SaleLine{{StockItemID: f.itemID, BatchID: f.batchID, Quantity: dec("1")}},
		TaxGroupID: "missing-group",
	})
	require.ErrorIs(t, err, shared.ErrNotFound)

	sales, err := f.svc.List(ctx, "h1", ListSalesRequest{})
	require.NoError(t, err)
	require.Empty(t, sales)
	stock, err := f.inv.GetLocationStock(ctx, "h1", f.itemID, f.location)
	require.NoError(t, err)
	require.True(t, stock.TotalStock.Equal(dec("5")))
}

func TestCheckoutBalanceSettledThroughLedger(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	sale, err := f.svc.Checkout(ctx, "h1", CheckoutRequest{
		LocationID: f.location,
		Items:      []inventory.SaleLine{{StockItemID: f.itemID, BatchID: f.batchID, Quantity: dec("1")}},
		Payment:    &CheckoutPayment{Amount: dec("20"), Method: "cash"},
	})
	require.NoError(t, err)
	require.Equal(t, ledger.StatusPartiallyPaid, sale.PaymentStatus)

	m, err := ledger.NewService(f.store, nil, nil).AddPayment(ctx, "h1", ledger.KindPOSSale, sale.ID, ledger.Payment{Amount: dec("30"), Method: "card"}, "")
	require.NoError(t, err)
	require.Equal(t, ledger.StatusPaid, m.PaymentStatus)
	require.Len(t, m.PaymentHistory, 2)

	got, err := f.svc.Get(ctx, "h1", sale.ID)
	require.NoError(t, err)
	require.Equal(t, f.location, got.LocationID)
	require.True(t, got.AmountPaid.Equal(dec("50")))
}
