package pos

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/carepoint-hms/carepoint/internal/inventory"
)

// CheckoutPayment is an optional payment taken at the counter.
type CheckoutPayment struct {
	Amount decimal.Decimal `json:"amount" validate:"gt=0"`
	Method string          `json:"method" validate:"required"`
	Note   string          `json:"note"`
}

// CheckoutRequest sells batches from one location.
type CheckoutRequest struct {
	LocationID   string               `json:"locationId" validate:"required"`
	PatientID    string               `json:"patientId"`
	CustomerName string               `json:"customerName" validate:"max=200"`
	Items        []inventory.SaleLine `json:"items" validate:"required,min=1,dive"`
	TaxGroupID   string               `json:"taxGroupId"`
	DiscountPct  decimal.Decimal      `json:"discountPct" validate:"gte=0,lte=100"`
	Payment      *CheckoutPayment     `json:"payment" validate:"omitempty"`
	CreatedBy    string               `json:"-"`
}

// ListSalesRequest narrows List.
type ListSalesRequest struct {
	LocationID string
	PatientID  string
	Since      time.Time
	Limit      int
}
