// Package pos records point-of-sale checkouts. A checkout decrements stock
// and creates the receipt in a single transaction.
package pos

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/carepoint-hms/carepoint/internal/ledger"
)

const collectionSales = "pos_sales"

// SaleLine is one priced receipt line.
type SaleLine struct {
	StockItemID string          `json:"stockItemId"`
	Name        string          `json:"name"`
	BatchID     string          `json:"batchId"`
	BatchNumber string          `json:"batchNumber"`
	Quantity    decimal.Decimal `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unitPrice"`
	Amount      decimal.Decimal `json:"amount"`
}

// Sale is a POS receipt. Its payments are handled by the ledger.
type Sale struct {
	ID           string          `json:"id"`
	Number       string          `json:"number"`
	LocationID   string          `json:"locationId"`
	PatientID    string          `json:"patientId,omitempty"`
	CustomerName string          `json:"customerName,omitempty"`
	Lines        []SaleLine      `json:"lines"`
	TaxGroupID   string          `json:"taxGroupId,omitempty"`
	DiscountPct  decimal.Decimal `json:"discountPct"`
	CreatedBy    string          `json:"createdBy,omitempty"`
	CreatedAt    time.Time       `json:"createdAt"`
	UpdatedAt    time.Time       `json:"updatedAt"`
	ledger.Monetary
}
