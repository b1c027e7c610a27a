// Package analytics assembles the tenant dashboard from the ledger,
// inventory, point-of-sale and payroll read models.
package analytics

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/carepoint-hms/carepoint/internal/inventory"
	"github.com/carepoint-hms/carepoint/internal/ledger"
	"github.com/carepoint-hms/carepoint/internal/payroll"
	"github.com/carepoint-hms/carepoint/internal/pos"
	"github.com/carepoint-hms/carepoint/internal/shared"
)

// Ledger exposes outstanding balances.
type Ledger interface {
	Aging(ctx context.Context, tenant string, kind ledger.Kind, asOf time.Time) (ledger.AgingBucket, error)
}

// Stock exposes the inventory watch lists.
type Stock interface {
	LowStock(ctx context.Context, tenant, locationID string) ([]inventory.LocationStock, error)
	ExpiringBatches(ctx context.Context, tenant, locationID string, within time.Duration) ([]inventory.ExpiringBatch, error)
}

// Sales lists point-of-sale receipts.
type Sales interface {
	List(ctx context.Context, tenant string, req pos.ListSalesRequest) ([]pos.Sale, error)
}

// Payroll lists payroll runs.
type Payroll interface {
	ListRuns(ctx context.Context, tenant string) ([]payroll.Run, error)
}

// Sources bundles the read models behind the dashboard.
type Sources struct {
	Ledger  Ledger
	Stock   Stock
	Sales   Sales
	Payroll Payroll
}

// Summary is the dashboard card set for one tenant.
type Summary struct {
	AsOf          time.Time          `json:"asOf"`
	Period        shared.Period      `json:"period"`
	Receivables   ledger.AgingBucket `json:"receivables"`
	Payables      ledger.AgingBucket `json:"payables"`
	VendorOrders  ledger.AgingBucket `json:"vendorOrders"`
	POSSales      int                `json:"posSales"`
	POSRevenue    decimal.Decimal    `json:"posRevenue"`
	POSCollected  decimal.Decimal    `json:"posCollected"`
	LowStockItems int                `json:"lowStockItems"`
	ExpiringSoon  int                `json:"expiringSoon"`
	LastPayroll   *PayrollSnapshot   `json:"lastPayroll,omitempty"`
}

// PayrollSnapshot summarises the latest run.
type PayrollSnapshot struct {
	Period   shared.Period     `json:"period"`
	Status   payroll.RunStatus `json:"status"`
	Payslips int               `json:"payslips"`
	NetTotal decimal.Decimal   `json:"netTotal"`
}

// ExpiryWindow is how far ahead the dashboard looks for expiring batches.
const ExpiryWindow = 30 * 24 * time.Hour

// Service coordinates dashboard reads with the cache layer.
type Service struct {
	src   Sources
	cache *Cache
	now   func() time.Time
}

// NewService wires the read models with a Cache helper; cache may be nil.
func NewService(src Sources, cache *Cache) *Service {
	return &Service{src: src, cache: cache, now: time.Now}
}

// Summary returns the dashboard for the current month, cached per tenant.
func (s *Service) Summary(ctx context.Context, tenant string) (Summary, error) {
	asOf := s.now().UTC()
	period := shared.PeriodOf(asOf)
	key, err := s.cache.BuildKey(ctx, tenant, "summary", period.String())
	if err != nil {
		return Summary{}, err
	}
	var summary Summary
	err = s.cache.FetchJSON(ctx, key, &summary, func(ctx context.Context) (any, error) {
		return s.load(ctx, tenant, asOf)
	})
	return summary, err
}

// Refresh drops cached dashboards of tenant.
func (s *Service) Refresh(ctx context.Context, tenant string) error {
	return s.cache.Bump(ctx, tenant)
}

func (s *Service) load(ctx context.Context, tenant string, asOf time.Time) (Summary, error) {
	summary := Summary{AsOf: asOf, Period: shared.PeriodOf(asOf), POSRevenue: decimal.Zero, POSCollected: decimal.Zero}
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		b, err := s.src.Ledger.Aging(ctx, tenant, ledger.KindInvoice, asOf)
		summary.Receivables = b
		return err
	})
	g.Go(func() error {
		b, err := s.src.Ledger.Aging(ctx, tenant, ledger.KindExpense, asOf)
		summary.Payables = b
		return err
	})
	g.Go(func() error {
		b, err := s.src.Ledger.Aging(ctx, tenant, ledger.KindStockOrder, asOf)
		summary.VendorOrders = b
		return err
	})
	g.Go(func() error {
		sales, err := s.src.Sales.List(ctx, tenant, pos.ListSalesRequest{Since: summary.Period.Start()})
		if err != nil {
			return err
		}
		summary.POSSales = len(sales)
		for _, sale := range sales {
			summary.POSRevenue = summary.POSRevenue.Add(sale.TotalAmount)
			summary.POSCollected = summary.POSCollected.Add(sale.AmountPaid)
		}
		return nil
	})
	g.Go(func() error {
		low, err := s.src.Stock.LowStock(ctx, tenant, "")
		summary.LowStockItems = len(low)
		return err
	})
	g.Go(func() error {
		expiring, err := s.src.Stock.ExpiringBatches(ctx, tenant, "", ExpiryWindow)
		summary.ExpiringSoon = len(expiring)
		return err
	})
	g.Go(func() error {
		runs, err := s.src.Payroll.ListRuns(ctx, tenant)
		if err != nil || len(runs) == 0 {
			return err
		}
		latest := runs[0]
		summary.LastPayroll = &PayrollSnapshot{
			Period:   latest.Period,
			Status:   latest.Status,
			Payslips: len(latest.Payslips),
			NetTotal: latest.NetTotal,
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return Summary{}, err
	}
	return summary, nil
}
