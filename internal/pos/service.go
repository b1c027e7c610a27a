package pos

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/carepoint-hms/carepoint/internal/docstore"
	"github.com/carepoint-hms/carepoint/internal/inventory"
	"github.com/carepoint-hms/carepoint/internal/ledger"
	"github.com/carepoint-hms/carepoint/internal/money"
	"github.com/carepoint-hms/carepoint/internal/shared"
)

// Seller decrements stock inside a caller-owned transaction.
type Seller interface {
	SellTx(ctx context.Context, tx docstore.Tx, tenant string, input inventory.SellInput) ([]inventory.SoldLine, error)
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service runs counter checkouts.
type Service struct {
	store  docstore.Store
	seller Seller
	audit  AuditPort
	now    func() time.Time
}

// NewService builds Service. audit may be nil.
func NewService(store docstore.Store, seller Seller, audit AuditPort) *Service {
	return &Service{store: store, seller: seller, audit: audit, now: time.Now}
}

// Checkout sells the requested batches and stores the receipt. Stock,
// movements and receipt are written together or not at all.
func (s *Service) Checkout(ctx context.Context, tenant string, req CheckoutRequest) (Sale, error) {
	if req.LocationID == "" || len(req.Items) == 0 {
		return Sale{}, shared.Invalidf("location and at least one item are required")
	}
	if req.Payment != nil {
		if !req.Payment.Amount.IsPositive() {
			return Sale{}, shared.Invalidf("payment amount must be positive")
		}
		if strings.TrimSpace(req.Payment.Method) == "" {
			return Sale{}, shared.Invalidf("payment method is required")
		}
	}
	now := s.now().UTC()
	sale := Sale{
		ID:           uuid.NewString(),
		LocationID:   req.LocationID,
		PatientID:    req.PatientID,
		CustomerName: strings.TrimSpace(req.CustomerName),
		TaxGroupID:   req.TaxGroupID,
		DiscountPct:  req.DiscountPct,
		CreatedBy:    req.CreatedBy,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	sale.Number = "POS-" + now.Format("20060102150405") + "-" + sale.ID[:4]

	err := s.store.RunTx(ctx, func(ctx context.Context, tx docstore.Tx) error {
		sold, err := s.seller.SellTx(ctx, tx, tenant, inventory.SellInput{
			LocationID:      req.LocationID,
			Items:           req.Items,
			RelatedEntityID: sale.ID,
			RecordedBy:      req.CreatedBy,
		})
		if err != nil {
			return err
		}
		sale.Lines = make([]SaleLine, 0, len(sold))
		subtotal := decimal.Zero
		for _, l := range sold {
			amount := money.Round2(l.Quantity.Mul(l.SalePrice))
			sale.Lines = append(sale.Lines, SaleLine{
				StockItemID: l.StockItemID,
				Name:        l.Name,
				BatchID:     l.BatchID,
				BatchNumber: l.BatchNumber,
				Quantity:    l.Quantity,
				UnitPrice:   l.SalePrice,
				Amount:      amount,
			})
			subtotal = subtotal.Add(amount)
		}
		totals, err := ledger.ComputeTotals(ctx, tx, tenant, subtotal, sale.TaxGroupID, sale.DiscountPct)
		if err != nil {
			return err
		}
		sale.Monetary = ledger.NewMonetary(totals)
		if req.Payment != nil {
			p := ledger.Payment{
				ID:         uuid.NewString(),
				Amount:     money.Round2(req.Payment.Amount),
				Method:     req.Payment.Method,
				Note:       req.Payment.Note,
				Date:       now,
				RecordedBy: req.CreatedBy,
			}
			sale.PaymentHistory = []ledger.Payment{p}
			sale.AmountPaid = p.Amount
			sale.PaymentStatus = ledger.StatusFor(sale.AmountPaid, sale.TotalAmount)
		}
		return tx.Create(docstore.NewRef(tenant, collectionSales, sale.ID), sale)
	})
	if err != nil {
		return Sale{}, err
	}
	if s.audit != nil {
		_ = s.audit.Record(ctx, shared.AuditLog{
			TenantID: tenant,
			Action:   "pos:checkout",
			Entity:   "pos_sale",
			EntityID: sale.ID,
			Meta:     map[string]any{"total": sale.TotalAmount.String(), "lines": len(sale.Lines), "status": string(sale.PaymentStatus)},
		})
	}
	return sale, nil
}

// Get loads a receipt.
func (s *Service) Get(ctx context.Context, tenant, id string) (Sale, error) {
	var sale Sale
	if err := s.store.Get(ctx, docstore.NewRef(tenant, collectionSales, id), &sale); err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			return Sale{}, shared.NotFoundf("pos sale %s", id)
		}
		return Sale{}, err
	}
	return sale, nil
}

// List returns receipts, newest first.
func (s *Service) List(ctx context.Context, tenant string, req ListSalesRequest) ([]Sale, error) {
	q := docstore.Query{Tenant: tenant, Collection: collectionSales, OrderBy: "createdAt", Desc: true, Limit: req.Limit}
	if req.LocationID != "" {
		q = q.Where("locationId", docstore.OpEq, req.LocationID)
	}
	if req.PatientID != "" {
		q = q.Where("patientId", docstore.OpEq, req.PatientID)
	}
	if !req.Since.IsZero() {
		q = q.Where("createdAt", docstore.OpGte, req.Since.UTC().Format(time.RFC3339Nano))
	}
	snaps, err := s.store.Query(ctx, q)
	if err != nil {
		return nil, err
	}
	sales := make([]Sale, 0, len(snaps))
	for _, snap := range snaps {
		var sale Sale
		if err := snap.Decode(&sale); err != nil {
			return nil, err
		}
		sales = append(sales, sale)
	}
	return sales, nil
}
