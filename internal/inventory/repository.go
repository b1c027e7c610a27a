package inventory

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/carepoint-hms/carepoint/internal/docstore"
	"github.com/carepoint-hms/carepoint/internal/shared"
)

// Repository persists inventory documents in the document store.
type Repository struct {
	store docstore.Store
}

// NewRepository constructs Repository.
func NewRepository(store docstore.Store) *Repository {
	return &Repository{store: store}
}

// TxRepository exposes transactional operations used by service.
type TxRepository interface {
	GetItem(ctx context.Context, id string) (StockItem, error)
	GetStock(ctx context.Context, stockItemID, locationID string) (LocationStock, bool, error)
	PutStock(stock LocationStock) error
	InsertMovement(m Movement) error
	GetTransfer(ctx context.Context, id string) (StockTransfer, error)
	PutTransfer(t StockTransfer) error
	GetOrder(ctx context.Context, id string) (StockOrder, error)
	UpdateOrderLines(ctx context.Context, o StockOrder) error
	Tx() docstore.Tx
}

type txRepo struct {
	tenant string
	tx     docstore.Tx
}

// WithTx executes the callback inside one document store transaction.
func (r *Repository) WithTx(ctx context.Context, tenant string, fn func(context.Context, TxRepository) error) error {
	return r.store.RunTx(ctx, func(ctx context.Context, tx docstore.Tx) error {
		return fn(ctx, NewTxRepository(tenant, tx))
	})
}

// NewTxRepository binds inventory operations to a transaction opened by
// another module.
func NewTxRepository(tenant string, tx docstore.Tx) TxRepository {
	return &txRepo{tenant: tenant, tx: tx}
}

func (r *txRepo) Tx() docstore.Tx {
	return r.tx
}

func (r *txRepo) ref(collection, id string) docstore.Ref {
	return docstore.NewRef(r.tenant, collection, id)
}

func (r *txRepo) GetItem(ctx context.Context, id string) (StockItem, error) {
	var item StockItem
	if err := r.tx.Get(ctx, r.ref(collectionItems, id), &item); err != nil {
		return StockItem{}, notFound(err, "stock item", id)
	}
	return item, nil
}

// GetStock returns ok=false when the item was never stocked at the location.
func (r *txRepo) GetStock(ctx context.Context, stockItemID, locationID string) (LocationStock, bool, error) {
	var stock LocationStock
	err := r.tx.Get(ctx, r.ref(collectionStock, StockID(stockItemID, locationID)), &stock)
	if errors.Is(err, docstore.ErrNotFound) {
		return LocationStock{StockItemID: stockItemID, LocationID: locationID}, false, nil
	}
	if err != nil {
		return LocationStock{}, false, err
	}
	return stock, true, nil
}

func (r *txRepo) PutStock(stock LocationStock) error {
	return r.tx.Set(r.ref(collectionStock, StockID(stock.StockItemID, stock.LocationID)), stock)
}

func (r *txRepo) InsertMovement(m Movement) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	return r.tx.Create(r.ref(collectionMovements, m.ID), m)
}

func (r *txRepo) GetTransfer(ctx context.Context, id string) (StockTransfer, error) {
	var t StockTransfer
	if err := r.tx.Get(ctx, r.ref(collectionTransfers, id), &t); err != nil {
		return StockTransfer{}, notFound(err, "stock transfer", id)
	}
	return t, nil
}

func (r *txRepo) PutTransfer(t StockTransfer) error {
	return r.tx.Set(r.ref(collectionTransfers, t.ID), t)
}

func (r *txRepo) GetOrder(ctx context.Context, id string) (StockOrder, error) {
	var o StockOrder
	if err := r.tx.Get(ctx, r.ref(collectionOrders, id), &o); err != nil {
		return StockOrder{}, notFound(err, "stock order", id)
	}
	return o, nil
}

// UpdateOrderLines writes lines and status only, leaving the payment block
// to the ledger.
func (r *txRepo) UpdateOrderLines(ctx context.Context, o StockOrder) error {
	return r.tx.Update(ctx, r.ref(collectionOrders, o.ID), map[string]any{
		"lines":     o.Lines,
		"status":    o.Status,
		"updatedAt": o.UpdatedAt,
	})
}

func notFound(err error, entity, id string) error {
	if errors.Is(err, docstore.ErrNotFound) {
		return shared.NotFoundf("%s %s", entity, id)
	}
	return err
}
