package analytics

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/carepoint-hms/carepoint/internal/inventory"
	"github.com/carepoint-hms/carepoint/internal/ledger"
	"github.com/carepoint-hms/carepoint/internal/payroll"
	"github.com/carepoint-hms/carepoint/internal/pos"
)

type fakeSources struct {
	calls    atomic.Int32
	agingErr error
}

func (f *fakeSources) Aging(_ context.Context, _ string, kind ledger.Kind, _ time.Time) (ledger.AgingBucket, error) {
	f.calls.Add(1)
	if f.agingErr != nil {
		return ledger.AgingBucket{}, f.agingErr
	}
	if kind == ledger.KindInvoice {
		return ledger.AgingBucket{Current: decimal.NewFromInt(120), Bucket30: decimal.NewFromInt(30)}, nil
	}
	return ledger.AgingBucket{}, nil
}

func (f *fakeSources) LowStock(context.Context, string, string) ([]inventory.LocationStock, error) {
	return []inventory.LocationStock{{StockItemID: "i1"}, {StockItemID: "i2"}}, nil
}

func (f *fakeSources) ExpiringBatches(context.Context, string, string, time.Duration) ([]inventory.ExpiringBatch, error) {
	return []inventory.ExpiringBatch{{StockItemID: "i1"}}, nil
}

func (f *fakeSources) List(_ context.Context, _ string, req pos.ListSalesRequest) ([]pos.Sale, error) {
	if req.Since.IsZero() {
		return nil, errors.New("since is required")
	}
	sale := pos.Sale{ID: "s1"}
	sale.TotalAmount = decimal.NewFromInt(50)
	sale.AmountPaid = decimal.NewFromInt(20)
	return []pos.Sale{sale, sale}, nil
}

func (f *fakeSources) ListRuns(context.Context, string) ([]payroll.Run, error) {
	return []payroll.Run{{Period: "2024-06", Status: payroll.RunDraft, NetTotal: decimal.NewFromInt(9500), Payslips: make([]payroll.Payslip, 1)}}, nil
}

func newService(src *fakeSources, cache *Cache) *Service {
	svc := NewService(Sources{Ledger: src, Stock: src, Sales: src, Payroll: src}, cache)
	svc.now = func() time.Time { return time.Date(2024, 6, 15, 9, 0, 0, 0, time.UTC) }
	return svc
}

func TestSummaryCombinesSources(t *testing.T) {
	src := &fakeSources{}
	summary, err := newService(src, nil).Summary(context.Background(), "h1")
	require.NoError(t, err)
	require.Equal(t, "2024-06", summary.Period.String())
	require.True(t, summary.Receivables.Total().Equal(decimal.NewFromInt(150)))
	require.Equal(t, 2, summary.POSSales)
	require.True(t, summary.POSRevenue.Equal(decimal.NewFromInt(100)))
	require.True(t, summary.POSCollected.Equal(decimal.NewFromInt(40)))
	require.Equal(t, 2, summary.LowStockItems)
	require.Equal(t, 1, summary.ExpiringSoon)
	require.NotNil(t, summary.LastPayroll)
	require.Equal(t, 1, summary.LastPayroll.Payslips)
	require.EqualValues(t, 3, src.calls.Load())
}

func TestSummaryFailsWhenAnySourceFails(t *testing.T) {
	src := &fakeSources{agingErr: errors.New("store down")}
	_, err := newService(src, nil).Summary(context.Background(), "h1")
	require.ErrorContains(t, err, "store down")
}

func TestSummaryIsCachedUntilRefresh(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	ctx := context.Background()
	src := &fakeSources{}
	svc := newService(src, NewCache(client, time.Minute))

	_, err := svc.Summary(ctx, "h1")
	require.NoError(t, err)
	cached, err := svc.Summary(ctx, "h1")
	require.NoError(t, err)
	require.EqualValues(t, 3, src.calls.Load())
	require.True(t, cached.Receivables.Current.Equal(decimal.NewFromInt(120)))

	_, err = svc.Summary(ctx, "h2")
	require.NoError(t, err)
	require.EqualValues(t, 6, src.calls.Load())

	require.NoError(t, svc.Refresh(ctx, "h1"))
	_, err = svc.Summary(ctx, "h1")
	require.NoError(t, err)
	require.EqualValues(t, 9, src.calls.Load())
}
