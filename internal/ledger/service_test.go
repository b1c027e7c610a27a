package ledger

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/carepoint-hms/carepoint/internal/docstore"
	"github.com/carepoint-hms/carepoint/internal/docstore/memory"
	"github.com/carepoint-hms/carepoint/internal/masterdata/taxes"
	"github.com/carepoint-hms/carepoint/internal/shared"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func newTestService(t *testing.T) (*Service, docstore.Store) {
	t.Helper()
	store := memory.New(docstore.Options{MaxAttempts: 1000})
	return NewService(store, nil, nil), store
}

func createInvoice(t *testing.T, svc *Service, total string) Document {
	t.Helper()
	doc, err := svc.CreateDocument(context.Background(), "h1", KindInvoice, DocumentInput{
		PartyName: "Jane Roe",
		Lines:     []Line{{Description: "Consultation", Quantity: dec("1"), UnitPrice: dec(total)}},
	})
	require.NoError(t, err)
	return doc
}

func requireConsistent(t *testing.T, m Monetary) {
	t.Helper()
	sum := decimal.Zero
	for _, p := range m.PaymentHistory {
		sum = sum.Add(p.Amount)
	}
	require.True(t, m.AmountPaid.Equal(sum.Round(2)), "amountPaid %s != history %s", m.AmountPaid, sum)
	require.Equal(t, StatusFor(m.AmountPaid, m.TotalAmount), m.PaymentStatus)
}

func TestStatusFor(t *testing.T) {
	require.Equal(t, StatusUnpaid, StatusFor(decimal.Zero, dec("100")))
	require.Equal(t, StatusPartiallyPaid, StatusFor(dec("0.01"), dec("100")))
	require.Equal(t, StatusPaid, StatusFor(dec("100"), dec("100")))
	require.Equal(t, StatusPaid, StatusFor(dec("120"), dec("100")))
}

func TestPaymentsKeepAmountPaidInSync(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)
	inv := createInvoice(t, svc, "100")
	require.Equal(t, StatusUnpaid, inv.PaymentStatus)

	m, err := svc.AddPayment(ctx, "h1", KindInvoice, inv.ID, Payment{Amount: dec("40"), Method: "cash"}, "")
	require.NoError(t, err)
	require.True(t, m.AmountPaid.Equal(dec("40")))
	require.Equal(t, StatusPartiallyPaid, m.PaymentStatus)
	first := m.PaymentHistory[0].ID

	m, err = svc.AddPayment(ctx, "h1", KindInvoice, inv.ID, Payment{Amount: dec("60"), Method: "card"}, "")
	require.NoError(t, err)
	require.True(t, m.AmountPaid.Equal(dec("100")))
	require.Equal(t, StatusPaid, m.PaymentStatus)
	second := m.PaymentHistory[1].ID

	m, err = svc.EditPayment(ctx, "h1", KindInvoice, inv.ID, Payment{ID: first, Amount: dec("10.005"), Method: "cash"})
	require.NoError(t, err)
	require.True(t, m.AmountPaid.Equal(dec("70.01")), m.AmountPaid.String())
	requireConsistent(t, m)

	m, err = svc.DeletePayment(ctx, "h1", KindInvoice, inv.ID, second)
	require.NoError(t, err)
	require.Len(t, m.PaymentHistory, 1)
	require.Equal(t, StatusPartiallyPaid, m.PaymentStatus)
	requireConsistent(t, m)

	stored, err := svc.Get(ctx, "h1", KindInvoice, inv.ID)
	require.NoError(t, err)
	requireConsistent(t, stored.Monetary)
	require.True(t, stored.AmountPaid.Equal(dec("10.01")))
}

func TestUnknownPaymentOrDocumentWritesNothing(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)
	inv := createInvoice(t, svc, "50")
	_, err := svc.AddPayment(ctx, "h1", KindInvoice, inv.ID, Payment{Amount: dec("20"), Method: "cash"}, "")
	require.NoError(t, err)

	_, err = svc.DeletePayment(ctx, "h1", KindInvoice, inv.ID, "missing")
	require.ErrorIs(t, err, shared.ErrNotFound)
	_, err = svc.EditPayment(ctx, "h1", KindInvoice, inv.ID, Payment{ID: "missing", Amount: dec("1"), Method: "cash"})
	require.ErrorIs(t, err, shared.ErrNotFound)
	_, err = svc.AddPayment(ctx, "h1", KindInvoice, "nope", Payment{Amount: dec("1"), Method: "cash"}, "")
	require.ErrorIs(t, err, shared.ErrNotFound)
	_, err = svc.AddPayment(ctx, "h2", KindInvoice, inv.ID, Payment{Amount: dec("1"), Method: "cash"}, "")
	require.ErrorIs(t, err, shared.ErrNotFound)

	m, err := svc.GetMonetary(ctx, "h1", KindInvoice, inv.ID)
	require.NoError(t, err)
	require.Len(t, m.PaymentHistory, 1)
	require.True(t, m.AmountPaid.Equal(dec("20")))
}

func TestConcurrentPaymentsDoNotLoseUpdates(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)
	inv := createInvoice(t, svc, "100")

	var wg sync.WaitGroup
	errs := make(chan error, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.AddPayment(ctx, "h1", KindInvoice, inv.ID, Payment{Amount: dec("10"), Method: "cash"}, "")
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	m, err := svc.GetMonetary(ctx, "h1", KindInvoice, inv.ID)
	require.NoError(t, err)
	require.Len(t, m.PaymentHistory, 10)
	require.True(t, m.AmountPaid.Equal(dec("100")))
	require.Equal(t, StatusPaid, m.PaymentStatus)
}

func TestCascadeRunsInPaymentTransaction(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestService(t)
	apptRef := docstore.NewRef("h1", "appointments", "a1")
	require.NoError(t, store.RunTx(ctx, func(ctx context.Context, tx docstore.Tx) error {
		return tx.Create(apptRef, map[string]any{"status": "Scheduled"})
	}))
	svc.SetCascade(KindInvoice, func(ctx context.Context, tx docstore.Tx, tenant string, doc json.RawMessage, status PaymentStatus) error {
		var inv struct {
			AppointmentID string `json:"appointmentId"`
		}
		if err := json.Unmarshal(doc, &inv); err != nil {
			return err
		}
		next := "WaitingPayment"
		if status == StatusPaid {
			next = "Finished"
		}
		return tx.Update(ctx, docstore.NewRef(tenant, "appointments", inv.AppointmentID), map[string]any{"status": next})
	})

	inv, err := svc.CreateDocument(ctx, "h1", KindInvoice, DocumentInput{
		PartyName:     "Jane Roe",
		AppointmentID: "a1",
		Lines:         []Line{{Description: "Consultation", Quantity: dec("1"), UnitPrice: dec("100")}},
	})
	require.NoError(t, err)

	status := func() string {
		var appt map[string]any
		require.NoError(t, store.Get(ctx, apptRef, &appt))
		return appt["status"].(string)
	}
	require.Equal(t, "WaitingPayment", status())

	_, err = svc.AddPayment(ctx, "h1", KindInvoice, inv.ID, Payment{Amount: dec("100"), Method: "cash"}, "")
	require.NoError(t, err)
	require.Equal(t, "Finished", status())

	_, err = svc.Retotal(ctx, "h1", KindInvoice, inv.ID, RetotalInput{
		Lines: []Line{{Description: "Consultation", Quantity: dec("2"), UnitPrice: dec("100")}},
	})
	require.NoError(t, err)
	require.Equal(t, "WaitingPayment", status())
}

func TestCreateDocumentAppliesTaxGroupAndDiscount(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestService(t)
	taxSvc := taxes.NewService(store)
	cgst, err := taxSvc.Create(ctx, "h1", taxes.Tax{Code: "CGST", Name: "CGST", Rate: dec("9")})
	require.NoError(t, err)
	sgst, err := taxSvc.Create(ctx, "h1", taxes.Tax{Code: "SGST", Name: "SGST", Rate: dec("9")})
	require.NoError(t, err)
	group, err := taxSvc.CreateGroup(ctx, "h1", taxes.TaxGroup{Name: "GST", TaxIDs: []string{cgst.ID, sgst.ID}})
	require.NoError(t, err)

	doc, err := svc.CreateDocument(ctx, "h1", KindExpense, DocumentInput{
		PartyName:   "Supplies Ltd",
		TaxGroupID:  group.ID,
		DiscountPct: dec("10"),
		Lines: []Line{
			{Description: "Gloves", Quantity: dec("2"), UnitPrice: dec("150")},
			{Description: "Masks", Quantity: dec("1"), UnitPrice: dec("200")},
		},
	})
	require.NoError(t, err)
	require.True(t, doc.Subtotal.Equal(dec("500")))
	require.Len(t, doc.TaxComponents, 2)
	require.True(t, doc.TotalTax.Equal(dec("90")))
	require.True(t, doc.DiscountAmount.Equal(dec("50")))
	require.True(t, doc.TotalAmount.Equal(dec("540")))

	g, rates, err := svc.ResolveTaxGroup(ctx, "h1", group.ID)
	require.NoError(t, err)
	require.Equal(t, "GST", g.Name)
	require.Len(t, rates, 2)

	_, err = svc.CreateDocument(ctx, "h1", KindExpense, DocumentInput{
		PartyName:  "Supplies Ltd",
		TaxGroupID: "missing",
		Lines:      []Line{{Description: "Gloves", Quantity: dec("1"), UnitPrice: dec("1")}},
	})
	require.ErrorIs(t, err, shared.ErrNotFound)

	_, err = svc.CreateDocument(ctx, "h1", KindPOSSale, DocumentInput{PartyName: "x", Lines: doc.Lines})
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestRetotalKeepsPaymentsAndRederivesStatus(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)
	inv := createInvoice(t, svc, "100")
	_, err := svc.AddPayment(ctx, "h1", KindInvoice, inv.ID, Payment{Amount: dec("80"), Method: "cash"}, "")
	require.NoError(t, err)

	doc, err := svc.Retotal(ctx, "h1", KindInvoice, inv.ID, RetotalInput{
		Lines:       []Line{{Description: "Consultation", Quantity: dec("1"), UnitPrice: dec("100")}},
		DiscountPct: dec("20"),
	})
	require.NoError(t, err)
	require.True(t, doc.TotalAmount.Equal(dec("80")))
	require.Equal(t, StatusPaid, doc.PaymentStatus)
	require.Len(t, doc.PaymentHistory, 1)
}

func TestIdempotencyKeyRejectsReplay(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	store := memory.New(docstore.Options{})
	svc := NewService(store, nil, shared.NewIdempotencyStore(client, time.Hour))
	inv := createInvoice(t, svc, "100")

	_, err := svc.AddPayment(ctx, "h1", KindInvoice, inv.ID, Payment{Amount: dec("40"), Method: "cash"}, "k1")
	require.NoError(t, err)
	_, err = svc.AddPayment(ctx, "h1", KindInvoice, inv.ID, Payment{Amount: dec("40"), Method: "cash"}, "k1")
	require.ErrorIs(t, err, shared.ErrDuplicate)

	m, err := svc.GetMonetary(ctx, "h1", KindInvoice, inv.ID)
	require.NoError(t, err)
	require.True(t, m.AmountPaid.Equal(dec("40")))

	// a failed attempt releases its key
	_, err = svc.AddPayment(ctx, "h1", KindInvoice, "missing", Payment{Amount: dec("1"), Method: "cash"}, "k2")
	require.ErrorIs(t, err, shared.ErrNotFound)
	_, err = svc.AddPayment(ctx, "h1", KindInvoice, "missing", Payment{Amount: dec("1"), Method: "cash"}, "k2")
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestAgingBucketsOutstandingBalances(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)
	asOf := time.Date(2024, 6, 30, 12, 0, 0, 0, time.UTC)
	mk := func(total string, daysPastDue int) Document {
		doc, err := svc.CreateDocument(ctx, "h1", KindInvoice, DocumentInput{
			PartyName: "p",
			DueDate:   asOf.AddDate(0, 0, -daysPastDue),
			Lines:     []Line{{Description: "x", Quantity: dec("1"), UnitPrice: dec(total)}},
		})
		require.NoError(t, err)
		return doc
	}
	mk("100", -5)
	partial := mk("200", 45)
	mk("300", 100)
	paid := mk("400", 10)

	_, err := svc.AddPayment(ctx, "h1", KindInvoice, partial.ID, Payment{Amount: dec("50"), Method: "cash"}, "")
	require.NoError(t, err)
	_, err = svc.AddPayment(ctx, "h1", KindInvoice, paid.ID, Payment{Amount: dec("400"), Method: "cash"}, "")
	require.NoError(t, err)

	bucket, err := svc.Aging(ctx, "h1", KindInvoice, asOf)
	require.NoError(t, err)
	require.True(t, bucket.Current.Equal(dec("100")))
	require.True(t, bucket.Bucket30.IsZero())
	require.True(t, bucket.Bucket60.Equal(dec("150")))
	require.True(t, bucket.Bucket120.Equal(dec("300")))
	require.True(t, bucket.Total().Equal(dec("550")))
}
