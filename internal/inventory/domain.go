package inventory

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/carepoint-hms/carepoint/internal/ledger"
)

const (
	collectionItems     = "stock_items"
	collectionStock     = "location_stock"
	collectionMovements = "stock_movements"
	collectionTransfers = "stock_transfers"
	collectionOrders    = "stock_orders"
)

// MovementType enumerates stock movement kinds.
type MovementType string

const (
	MovementInitial          MovementType = "initial"
	MovementAdjustment       MovementType = "adjustment"
	MovementSale             MovementType = "sale"
	MovementReceived         MovementType = "received"
	MovementReturn           MovementType = "return"
	MovementTransferOut      MovementType = "transfer-out"
	MovementTransferIn       MovementType = "transfer-in"
	MovementTransferReversal MovementType = "transfer-reversal"
)

// StockItem is the tenant-wide product definition.
type StockItem struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	SKU       string    `json:"sku"`
	Category  string    `json:"category"`
	UnitType  string    `json:"unitType"`
	TaxID     string    `json:"taxId,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// Batch is one lot of a stock item at a location.
type Batch struct {
	ID          string          `json:"id"`
	BatchNumber string          `json:"batchNumber"`
	Quantity    decimal.Decimal `json:"quantity"`
	CostPrice   decimal.Decimal `json:"costPrice"`
	SalePrice   decimal.Decimal `json:"salePrice"`
	ExpiryDate  *time.Time      `json:"expiryDate,omitempty"`
}

// LocationStock holds the batches of one item at one location. It is its
// own document keyed by item and location; totalStock always equals the sum
// of batch quantities.
type LocationStock struct {
	StockItemID       string          `json:"stockItemId"`
	LocationID        string          `json:"locationId"`
	TotalStock        decimal.Decimal `json:"totalStock"`
	LowStockThreshold decimal.Decimal `json:"lowStockThreshold"`
	Batches           []Batch         `json:"batches"`
	UpdatedAt         time.Time       `json:"updatedAt"`
}

// StockID returns the document id of the (item, location) stock record.
func StockID(stockItemID, locationID string) string {
	return stockItemID + "_" + locationID
}

func (ls *LocationStock) batchByID(id string) (int, bool) {
	for i, b := range ls.Batches {
		if b.ID == id {
			return i, true
		}
	}
	return -1, false
}

func (ls *LocationStock) batchByNumber(number string) (int, bool) {
	for i, b := range ls.Batches {
		if b.BatchNumber == number {
			return i, true
		}
	}
	return -1, false
}

// Movement is an append-only stock log entry.
type Movement struct {
	ID              string          `json:"id"`
	StockItemID     string          `json:"stockItemId"`
	LocationID      string          `json:"locationId"`
	BatchID         string          `json:"batchId"`
	BatchNumber     string          `json:"batchNumber"`
	Type            MovementType    `json:"type"`
	QuantityChange  decimal.Decimal `json:"quantityChange"`
	CostPrice       decimal.Decimal `json:"costPrice,omitempty"`
	Reason          string          `json:"reason,omitempty"`
	RelatedEntityID string          `json:"relatedEntityId,omitempty"`
	CorrelationID   string          `json:"correlationId,omitempty"`
	Date            time.Time       `json:"date"`
	RecordedBy      string          `json:"recordedBy,omitempty"`
}

// TransferStatus tracks whether a transfer was undone.
type TransferStatus string

const (
	TransferCompleted TransferStatus = "Completed"
	TransferReversed  TransferStatus = "Reversed"
)

// StockTransfer records a completed move between two locations.
type StockTransfer struct {
	ID             string         `json:"id"`
	FromLocationID string         `json:"fromLocationId"`
	ToLocationID   string         `json:"toLocationId"`
	Lines          []TransferLine `json:"lines"`
	Note           string         `json:"note,omitempty"`
	Status         TransferStatus `json:"status"`
	CreatedAt      time.Time      `json:"createdAt"`
	CreatedBy      string         `json:"createdBy,omitempty"`
	ReversedAt     *time.Time     `json:"reversedAt,omitempty"`
}

// TransferLine remembers both batch ids so a reversal hits the same lots.
type TransferLine struct {
	StockItemID  string          `json:"stockItemId"`
	BatchID      string          `json:"batchId"`
	BatchNumber  string          `json:"batchNumber"`
	DestBatchID  string          `json:"destBatchId"`
	Quantity     decimal.Decimal `json:"quantity"`
}

// OrderStatus tracks vendor order fulfilment.
type OrderStatus string

const (
	OrderPending           OrderStatus = "Pending"
	OrderPartiallyReceived OrderStatus = "PartiallyReceived"
	OrderComplete          OrderStatus = "Complete"
	OrderCancelled         OrderStatus = "Cancelled"
)

// OrderLine is one ordered item.
type OrderLine struct {
	StockItemID string          `json:"stockItemId"`
	OrderedQty  decimal.Decimal `json:"orderedQty"`
	ReceivedQty decimal.Decimal `json:"receivedQty"`
	ReturnedQty decimal.Decimal `json:"returnedQty"`
	UnitCost    decimal.Decimal `json:"unitCost"`
}

// StockOrder is a vendor purchase order. Its payments are handled by the
// ledger like any other monetary document.
type StockOrder struct {
	ID          string          `json:"id"`
	Number      string          `json:"number"`
	VendorID    string          `json:"vendorId"`
	LocationID  string          `json:"locationId"`
	Lines       []OrderLine     `json:"lines"`
	Status      OrderStatus     `json:"status"`
	TaxGroupID  string          `json:"taxGroupId,omitempty"`
	DiscountPct decimal.Decimal `json:"discountPct"`
	DueDate     time.Time       `json:"dueDate"`
	CreatedBy   string          `json:"createdBy,omitempty"`
	CreatedAt   time.Time       `json:"createdAt"`
	UpdatedAt   time.Time       `json:"updatedAt"`
	ledger.Monetary
}

func (o *StockOrder) lineFor(stockItemID string) (int, bool) {
	for i, l := range o.Lines {
		if l.StockItemID == stockItemID {
			return i, true
		}
	}
	return -1, false
}

func (o *StockOrder) anyReceived() bool {
	for _, l := range o.Lines {
		if l.ReceivedQty.IsPositive() {
			return true
		}
	}
	return false
}

// recomputeStatus sets Complete once every ordered unit arrived.
func (o *StockOrder) recomputeStatus() {
	ordered, received := decimal.Zero, decimal.Zero
	for _, l := range o.Lines {
		ordered = ordered.Add(l.OrderedQty)
		received = received.Add(l.ReceivedQty)
	}
	switch {
	case received.GreaterThanOrEqual(ordered):
		o.Status = OrderComplete
	case received.IsPositive():
		o.Status = OrderPartiallyReceived
	default:
		o.Status = OrderPending
	}
}

// SaleLine requests quantity from one batch.
type SaleLine struct {
	StockItemID string          `json:"stockItemId" validate:"required"`
	BatchID     string          `json:"batchId" validate:"required"`
	Quantity    decimal.Decimal `json:"quantity" validate:"gt=0"`
}

// SellInput is a multi-line sale from one location.
type SellInput struct {
	LocationID      string     `json:"locationId" validate:"required"`
	Items           []SaleLine `json:"items" validate:"required,min=1,dive"`
	RelatedEntityID string     `json:"relatedEntityId"`
	RecordedBy      string     `json:"-"`
}

// SoldLine reports what a sale line took, including the batch prices.
type SoldLine struct {
	StockItemID string          `json:"stockItemId"`
	Name        string          `json:"name"`
	TaxID       string          `json:"taxId,omitempty"`
	BatchID     string          `json:"batchId"`
	BatchNumber string          `json:"batchNumber"`
	Quantity    decimal.Decimal `json:"quantity"`
	SalePrice   decimal.Decimal `json:"salePrice"`
	CostPrice   decimal.Decimal `json:"costPrice"`
}

// TransferItem moves quantity of one source batch.
type TransferItem struct {
	StockItemID string          `json:"stockItemId" validate:"required"`
	BatchID     string          `json:"batchId" validate:"required"`
	Quantity    decimal.Decimal `json:"quantity" validate:"gt=0"`
}

// TransferInput moves items between locations.
type TransferInput struct {
	FromLocationID string         `json:"fromLocationId" validate:"required"`
	ToLocationID   string         `json:"toLocationId" validate:"required,nefield=FromLocationID"`
	Items          []TransferItem `json:"items" validate:"required,min=1,dive"`
	Note           string         `json:"note"`
	CreatedBy      string         `json:"-"`
}

// ReceivedBatch is a lot delivered against an order.
type ReceivedBatch struct {
	StockItemID string          `json:"stockItemId" validate:"required"`
	BatchNumber string          `json:"batchNumber" validate:"required"`
	Quantity    decimal.Decimal `json:"quantity" validate:"gt=0"`
	CostPrice   decimal.Decimal `json:"costPrice" validate:"gte=0"`
	SalePrice   decimal.Decimal `json:"salePrice" validate:"gte=0"`
	ExpiryDate  *time.Time      `json:"expiryDate"`
}

// ReceiveInput lists delivered batches.
type ReceiveInput struct {
	Batches    []ReceivedBatch `json:"batches" validate:"required,min=1,dive"`
	RecordedBy string          `json:"-"`
}

// AdjustInput is a signed manual correction to one batch.
type AdjustInput struct {
	StockItemID    string          `json:"stockItemId" validate:"required"`
	LocationID     string          `json:"locationId" validate:"required"`
	BatchID        string          `json:"batchId" validate:"required"`
	QuantityChange decimal.Decimal `json:"quantityChange"`
	Reason         string          `json:"reason" validate:"required"`
	RecordedBy     string          `json:"-"`
}

// ReturnLine sends quantity of a received batch back to the vendor.
type ReturnLine struct {
	StockItemID string          `json:"stockItemId" validate:"required"`
	BatchID     string          `json:"batchId" validate:"required"`
	Quantity    decimal.Decimal `json:"quantity" validate:"gt=0"`
}

// ReturnInput lists returned batches of one order.
type ReturnInput struct {
	Lines      []ReturnLine `json:"lines" validate:"required,min=1,dive"`
	Reason     string       `json:"reason"`
	RecordedBy string       `json:"-"`
}

// BatchInput seeds a batch when a stock item is created.
type BatchInput struct {
	BatchNumber string          `json:"batchNumber" validate:"required"`
	Quantity    decimal.Decimal `json:"quantity" validate:"gte=0"`
	CostPrice   decimal.Decimal `json:"costPrice" validate:"gte=0"`
	SalePrice   decimal.Decimal `json:"salePrice" validate:"gte=0"`
	ExpiryDate  *time.Time      `json:"expiryDate"`
}

// InitialStock seeds one location.
type InitialStock struct {
	LocationID        string          `json:"locationId" validate:"required"`
	LowStockThreshold decimal.Decimal `json:"lowStockThreshold" validate:"gte=0"`
	Batches           []BatchInput    `json:"batches" validate:"dive"`
}

// StockItemInput creates a stock item with optional opening stock.
type StockItemInput struct {
	Name      string         `json:"name" validate:"required,max=200"`
	SKU       string         `json:"sku" validate:"required,max=64"`
	Category  string         `json:"category"`
	UnitType  string         `json:"unitType" validate:"required"`
	TaxID     string         `json:"taxId"`
	Locations []InitialStock `json:"locations" validate:"dive"`
}

// OrderLineInput orders quantity of one item.
type OrderLineInput struct {
	StockItemID string          `json:"stockItemId" validate:"required"`
	Quantity    decimal.Decimal `json:"quantity" validate:"gt=0"`
	UnitCost    decimal.Decimal `json:"unitCost" validate:"gte=0"`
}

// OrderInput creates a vendor stock order.
type OrderInput struct {
	Number      string           `json:"number"`
	VendorID    string           `json:"vendorId" validate:"required"`
	LocationID  string           `json:"locationId" validate:"required"`
	Lines       []OrderLineInput `json:"lines" validate:"required,min=1,dive"`
	TaxGroupID  string           `json:"taxGroupId"`
	DiscountPct decimal.Decimal  `json:"discountPct" validate:"gte=0,lte=100"`
	DueDate     time.Time        `json:"dueDate"`
	CreatedBy   string           `json:"-"`
}

// MovementFilter narrows ListMovements.
type MovementFilter struct {
	StockItemID string
	LocationID  string
	Type        MovementType
	Limit       int
}

// ExpiringBatch is a batch with stock left that expires soon.
type ExpiringBatch struct {
	StockItemID string `json:"stockItemId"`
	LocationID  string `json:"locationId"`
	Batch       Batch  `json:"batch"`
}
