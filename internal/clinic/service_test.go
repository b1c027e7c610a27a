package clinic

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/carepoint-hms/carepoint/internal/docstore"
	"github.com/carepoint-hms/carepoint/internal/docstore/memory"
	"github.com/carepoint-hms/carepoint/internal/ledger"
	"github.com/carepoint-hms/carepoint/internal/shared"
	"github.com/carepoint-hms/carepoint/internal/tenancy"
)

type fixture struct {
	store  docstore.Store
	clinic *Service
	ledger *ledger.Service
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	store := memory.New(docstore.Options{})
	svc := NewService(store, tenancy.NewService(store), nil)
	led := ledger.NewService(store, nil, nil)
	led.SetCascade(ledger.KindInvoice, svc.InvoiceCascade)
	return fixture{store: store, clinic: svc, ledger: led}
}

func (f fixture) appointment(t *testing.T) Appointment {
	t.Helper()
	ctx := context.Background()
	p, err := f.clinic.CreatePatient(ctx, "h1", CreatePatientRequest{Name: "Jane Roe"})
	require.NoError(t, err)
	d, err := f.clinic.CreateDoctor(ctx, "h1", CreateDoctorRequest{Name: "Dr. Who"})
	require.NoError(t, err)
	appt, err := f.clinic.CreateAppointment(ctx, "h1", CreateAppointmentRequest{
		PatientID: p.ID, DoctorID: d.ID, StartAt: time.Date(2024, 6, 3, 9, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	require.Equal(t, StatusScheduled, appt.Status)
	return appt
}

func TestInvoicePaymentFinishesAppointment(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	appt := f.appointment(t)

	inv, err := f.ledger.CreateDocument(ctx, "h1", ledger.KindInvoice, ledger.DocumentInput{
		PartyName:     "Jane Roe",
		PatientID:     appt.PatientID,
		AppointmentID: appt.ID,
		Lines:         []ledger.Line{{Description: "Consultation", Quantity: decimal.NewFromInt(1), UnitPrice: decimal.NewFromInt(100)}},
	})
	require.NoError(t, err)
	require.True(t, inv.TotalAmount.Equal(decimal.RequireFromString("100.00")))

	got, err := f.clinic.GetAppointment(ctx, "h1", appt.ID)
	require.NoError(t, err)
	require.Equal(t, StatusWaitingPayment, got.Status)
	require.Equal(t, inv.ID, got.InvoiceID)

	m, err := f.ledger.AddPayment(ctx, "h1", ledger.KindInvoice, inv.ID, ledger.Payment{Amount: decimal.NewFromInt(40), Method: "cash"}, "")
	require.NoError(t, err)
	require.True(t, m.AmountPaid.Equal(decimal.RequireFromString("40.00")))
	require.Equal(t, ledger.StatusPartiallyPaid, m.PaymentStatus)
	got, err = f.clinic.GetAppointment(ctx, "h1", appt.ID)
	require.NoError(t, err)
	require.Equal(t, StatusWaitingPayment, got.Status)

	m, err = f.ledger.AddPayment(ctx, "h1", ledger.KindInvoice, inv.ID, ledger.Payment{Amount: decimal.NewFromInt(60), Method: "card"}, "")
	require.NoError(t, err)
	require.True(t, m.AmountPaid.Equal(decimal.RequireFromString("100.00")))
	require.Equal(t, ledger.StatusPaid, m.PaymentStatus)
	got, err = f.clinic.GetAppointment(ctx, "h1", appt.ID)
	require.NoError(t, err)
	require.Equal(t, StatusFinished, got.Status)

	_, err = f.ledger.DeletePayment(ctx, "h1", ledger.KindInvoice, inv.ID, m.PaymentHistory[1].ID)
	require.NoError(t, err)
	got, err = f.clinic.GetAppointment(ctx, "h1", appt.ID)
	require.NoError(t, err)
	require.Equal(t, StatusWaitingPayment, got.Status)
}

func TestInvoiceForMissingAppointmentIsRejected(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	inv, err := f.ledger.CreateDocument(ctx, "h1", ledger.KindInvoice, ledger.DocumentInput{
		PartyName: "Walk-in",
		Lines:     []ledger.Line{{Description: "Dressing", Quantity: decimal.NewFromInt(1), UnitPrice: decimal.NewFromInt(30)}},
	})
	require.NoError(t, err)

	_, err = f.ledger.CreateDocument(ctx, "h1", ledger.KindInvoice, ledger.DocumentInput{
		PartyName:     "Ghost",
		AppointmentID: "missing",
		Lines:         []ledger.Line{{Description: "Dressing", Quantity: decimal.NewFromInt(1), UnitPrice: decimal.NewFromInt(30)}},
	})
	require.ErrorIs(t, err, shared.ErrNotFound)

	m, err := f.ledger.AddPayment(ctx, "h1", ledger.KindInvoice, inv.ID, ledger.Payment{Amount: decimal.NewFromInt(30), Method: "cash"}, "")
	require.NoError(t, err)
	require.Equal(t, ledger.StatusPaid, m.PaymentStatus)
}

func TestCancelledAppointmentIsFinal(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	appt := f.appointment(t)

	_, err := f.clinic.UpdateAppointmentStatus(ctx, "h1", appt.ID, StatusCancelled)
	require.NoError(t, err)
	_, err = f.clinic.UpdateAppointmentStatus(ctx, "h1", appt.ID, StatusScheduled)
	require.ErrorIs(t, err, shared.ErrAlreadyFinalState)
	_, err = f.clinic.UpdateAppointmentStatus(ctx, "h1", appt.ID, AppointmentStatus("Lost"))
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestCreateAppointmentNeedsPatientAndDoctor(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	_, err := f.clinic.CreateAppointment(ctx, "h1", CreateAppointmentRequest{PatientID: "p", DoctorID: "d", StartAt: time.Now()})
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestDoctorQuotaOnFreePlan(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	for i := 0; i < 2; i++ {
		_, err := f.clinic.CreateDoctor(ctx, "h1", CreateDoctorRequest{Name: "Doc"})
		require.NoError(t, err)
	}
	_, err := f.clinic.CreateDoctor(ctx, "h1", CreateDoctorRequest{Name: "Doc"})
	require.ErrorIs(t, err, shared.ErrLimitReached)

	// quotas are per tenant
	_, err = f.clinic.CreateDoctor(ctx, "h2", CreateDoctorRequest{Name: "Doc"})
	require.NoError(t, err)
}

func TestListAppointmentsByDay(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	appt := f.appointment(t)
	day := time.Date(2024, 6, 3, 0, 0, 0, 0, time.UTC)

	got, err := f.clinic.ListAppointments(ctx, "h1", AppointmentFilter{From: day, To: day.Add(24 * time.Hour)})
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, appt.ID, got[0].ID)

	got, err = f.clinic.ListAppointments(ctx, "h1", AppointmentFilter{From: day.Add(24 * time.Hour)})
	require.NoError(t, err)
	require.Empty(t, got)
}
