// Package ledger keeps the payment side of monetary documents consistent:
// invoices, expenses, point-of-sale receipts and vendor stock orders all carry
// the same totals block and payment history, and every payment change runs
// through one transactional procedure.
package ledger

import (
	"context"
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"

	"github.com/carepoint-hms/carepoint/internal/docstore"
	"github.com/carepoint-hms/carepoint/internal/money"
	"github.com/carepoint-hms/carepoint/internal/shared"
)

// Kind identifies a monetary document type.
type Kind string

const (
	KindInvoice    Kind = "invoice"
	KindExpense    Kind = "expense"
	KindPOSSale    Kind = "pos_sale"
	KindStockOrder Kind = "stock_order"
)

var kindCollections = map[Kind]string{
	KindInvoice:    "invoices",
	KindExpense:    "expenses",
	KindPOSSale:    "pos_sales",
	KindStockOrder: "stock_orders",
}

// Collection returns the document collection backing k.
func (k Kind) Collection() (string, error) {
	c, ok := kindCollections[k]
	if !ok {
		return "", shared.Invalidf("unknown document kind %q", k)
	}
	return c, nil
}

// Ref builds a document reference for k.
func (k Kind) Ref(tenant, id string) (docstore.Ref, error) {
	c, err := k.Collection()
	if err != nil {
		return docstore.Ref{}, err
	}
	return docstore.NewRef(tenant, c, id), nil
}

// PaymentStatus is derived from amountPaid and totalAmount.
type PaymentStatus string

const (
	StatusUnpaid        PaymentStatus = "Unpaid"
	StatusPartiallyPaid PaymentStatus = "PartiallyPaid"
	StatusPaid          PaymentStatus = "Paid"
)

// StatusFor returns Paid when paid covers total, PartiallyPaid for any
// positive shortfall and Unpaid otherwise.
func StatusFor(paid, total decimal.Decimal) PaymentStatus {
	switch {
	case paid.GreaterThanOrEqual(total):
		return StatusPaid
	case paid.IsPositive():
		return StatusPartiallyPaid
	default:
		return StatusUnpaid
	}
}

// Payment is one entry of a document's payment history.
type Payment struct {
	ID         string          `json:"id"`
	Amount     decimal.Decimal `json:"amount" validate:"gt=0"`
	Method     string          `json:"method" validate:"required"`
	Note       string          `json:"note,omitempty"`
	Date       time.Time       `json:"date"`
	RecordedBy string          `json:"recordedBy"`
}

// Monetary is the totals and payment block shared by every monetary
// document. It is embedded by value so its fields are stored top-level.
type Monetary struct {
	money.Totals
	AmountPaid     decimal.Decimal `json:"amountPaid"`
	PaymentStatus  PaymentStatus   `json:"paymentStatus"`
	PaymentHistory []Payment       `json:"paymentHistory"`
}

// NewMonetary starts a document with no payments.
func NewMonetary(totals money.Totals) Monetary {
	return Monetary{
		Totals:         totals,
		AmountPaid:     decimal.Zero,
		PaymentStatus:  StatusFor(decimal.Zero, totals.TotalAmount),
		PaymentHistory: []Payment{},
	}
}

// Outstanding returns the unpaid balance, never negative.
func (m Monetary) Outstanding() decimal.Decimal {
	rest := m.TotalAmount.Sub(m.AmountPaid)
	if rest.IsNegative() {
		return decimal.Zero
	}
	return rest
}

// DeltaOp selects how a payment delta changes the history.
type DeltaOp string

const (
	DeltaAdd    DeltaOp = "add"
	DeltaEdit   DeltaOp = "edit"
	DeltaDelete DeltaOp = "delete"
)

// PaymentDelta describes one payment change. Add and Edit carry Payment;
// Delete carries PaymentID. Edit matches by Payment.ID.
type PaymentDelta struct {
	Op        DeltaOp
	Payment   Payment
	PaymentID string
}

// Document is the stored shape of invoices and expenses.
type Document struct {
	ID            string          `json:"id"`
	Kind          Kind            `json:"kind"`
	Number        string          `json:"number"`
	PartyName     string          `json:"partyName"`
	PatientID     string          `json:"patientId,omitempty"`
	AppointmentID string          `json:"appointmentId,omitempty"`
	Category      string          `json:"category,omitempty"`
	Lines         []Line          `json:"lines"`
	TaxGroupID    string          `json:"taxGroupId,omitempty"`
	DiscountPct   decimal.Decimal `json:"discountPct"`
	DueDate       time.Time       `json:"dueDate"`
	CreatedBy     string          `json:"createdBy"`
	CreatedAt     time.Time       `json:"createdAt"`
	UpdatedAt     time.Time       `json:"updatedAt"`
	Monetary
}

// Line is a billed service or expense item.
type Line struct {
	Description string          `json:"description" validate:"required"`
	Quantity    decimal.Decimal `json:"quantity" validate:"gt=0"`
	UnitPrice   decimal.Decimal `json:"unitPrice" validate:"gte=0"`
}

// Amount returns quantity * unit price rounded to cents.
func (l Line) Amount() decimal.Decimal {
	return money.Round2(l.Quantity.Mul(l.UnitPrice))
}

// DocumentInput creates an invoice or expense.
type DocumentInput struct {
	Number        string          `json:"number"`
	PartyName     string          `json:"partyName" validate:"required"`
	PatientID     string          `json:"patientId"`
	AppointmentID string          `json:"appointmentId"`
	Category      string          `json:"category"`
	Lines         []Line          `json:"lines" validate:"required,min=1,dive"`
	TaxGroupID    string          `json:"taxGroupId"`
	DiscountPct   decimal.Decimal `json:"discountPct" validate:"gte=0,lte=100"`
	DueDate       time.Time       `json:"dueDate"`
	CreatedBy     string          `json:"-"`
}

// RetotalInput changes the inputs of the totals computation.
type RetotalInput struct {
	Lines       []Line          `json:"lines" validate:"required,min=1,dive"`
	TaxGroupID  string          `json:"taxGroupId"`
	DiscountPct decimal.Decimal `json:"discountPct" validate:"gte=0,lte=100"`
}

// AgingBucket sums outstanding balances by days past due.
type AgingBucket struct {
	Current   decimal.Decimal `json:"current"`
	Bucket30  decimal.Decimal `json:"bucket30"`
	Bucket60  decimal.Decimal `json:"bucket60"`
	Bucket90  decimal.Decimal `json:"bucket90"`
	Bucket120 decimal.Decimal `json:"bucket120"`
}

// Total sums every bucket.
func (b AgingBucket) Total() decimal.Decimal {
	return money.Sum(b.Current, b.Bucket30, b.Bucket60, b.Bucket90, b.Bucket120)
}

// CascadeFunc updates records that depend on a document's payment status.
// It runs inside the payment transaction with the document's raw body.
type CascadeFunc func(ctx context.Context, tx docstore.Tx, tenant string, doc json.RawMessage, status PaymentStatus) error
