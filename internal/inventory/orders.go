package inventory

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/carepoint-hms/carepoint/internal/docstore"
	"github.com/carepoint-hms/carepoint/internal/ledger"
	"github.com/carepoint-hms/carepoint/internal/masterdata/locations"
	"github.com/carepoint-hms/carepoint/internal/masterdata/vendors"
	"github.com/carepoint-hms/carepoint/internal/money"
	"github.com/carepoint-hms/carepoint/internal/shared"
)

// CreateOrder stores a Pending vendor order with computed totals.
func (s *Service) CreateOrder(ctx context.Context, tenant string, input OrderInput) (StockOrder, error) {
	if len(input.Lines) == 0 {
		return StockOrder{}, shared.Invalidf("at least one line is required")
	}
	now := s.now().UTC()
	order := StockOrder{
		ID:          uuid.NewString(),
		Number:      strings.TrimSpace(input.Number),
		VendorID:    input.VendorID,
		LocationID:  input.LocationID,
		Status:      OrderPending,
		TaxGroupID:  input.TaxGroupID,
		DiscountPct: input.DiscountPct,
		DueDate:     input.DueDate,
		CreatedBy:   input.CreatedBy,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if order.Number == "" {
		order.Number = "PO-" + now.Format("20060102150405")
	}
	if order.DueDate.IsZero() {
		order.DueDate = now
	}
	subtotal := decimal.Zero
	for _, l := range input.Lines {
		if !l.Quantity.IsPositive() {
			return StockOrder{}, shared.Invalidf("quantity for item %s must be positive", l.StockItemID)
		}
		if _, dup := order.lineFor(l.StockItemID); dup {
			return StockOrder{}, shared.Invalidf("item %s ordered twice", l.StockItemID)
		}
		order.Lines = append(order.Lines, OrderLine{StockItemID: l.StockItemID, OrderedQty: l.Quantity, UnitCost: money.Round2(l.UnitCost)})
		subtotal = subtotal.Add(l.Quantity.Mul(l.UnitCost))
	}
	err := s.repo.WithTx(ctx, tenant, func(ctx context.Context, repo TxRepository) error {
		tx := repo.Tx()
		if _, err := vendors.Require(ctx, tx, tenant, order.VendorID); err != nil {
			return err
		}
		if _, err := locations.Require(ctx, tx, tenant, order.LocationID); err != nil {
			return err
		}
		for _, l := range order.Lines {
			if _, err := repo.GetItem(ctx, l.StockItemID); err != nil {
				return err
			}
		}
		totals, err := ledger.ComputeTotals(ctx, tx, tenant, money.Round2(subtotal), order.TaxGroupID, order.DiscountPct)
		if err != nil {
			return err
		}
		order.Monetary = ledger.NewMonetary(totals)
		return tx.Create(docstore.NewRef(tenant, collectionOrders, order.ID), order)
	})
	if err != nil {
		return StockOrder{}, err
	}
	s.record(ctx, tenant, "stock_order:create", "stock_order", order.ID, map[string]any{"number": order.Number, "total": order.TotalAmount.String()})
	return order, nil
}

// Receive books delivered batches against an order at the order's location.
// Missing sale prices are derived from the margin of the existing batch with
// the latest expiry.
func (s *Service) Receive(ctx context.Context, tenant, orderID string, input ReceiveInput) (StockOrder, error) {
	if len(input.Batches) == 0 {
		return StockOrder{}, shared.Invalidf("at least one batch is required")
	}
	for _, b := range input.Batches {
		if !b.Quantity.IsPositive() {
			return StockOrder{}, shared.Invalidf("quantity for item %s must be positive", b.StockItemID)
		}
		if strings.TrimSpace(b.BatchNumber) == "" {
			return StockOrder{}, shared.Invalidf("batch number for item %s is required", b.StockItemID)
		}
	}
	var order StockOrder
	err := s.repo.WithTx(ctx, tenant, func(ctx context.Context, repo TxRepository) error {
		var err error
		order, err = repo.GetOrder(ctx, orderID)
		if err != nil {
			return err
		}
		if order.Status == OrderCancelled || order.Status == OrderComplete {
			return fmt.Errorf("order %s is %s: %w", orderID, order.Status, shared.ErrAlreadyFinalState)
		}
		for _, b := range input.Batches {
			if _, ok := order.lineFor(b.StockItemID); !ok {
				return shared.NotFoundf("item %s on order %s", b.StockItemID, orderID)
			}
			if _, err := repo.GetItem(ctx, b.StockItemID); err != nil {
				return err
			}
		}

		now := s.now().UTC()
		stocks := newStockSet(repo)
		for _, b := range input.Batches {
			stock, _, err := stocks.load(ctx, b.StockItemID, order.LocationID, true)
			if err != nil {
				return err
			}
			cost := money.Round2(b.CostPrice)
			sale := money.Round2(b.SalePrice)
			if !sale.IsPositive() {
				sale = money.SalePriceFromMargin(cost, s.marginFor(stock))
			}
			batch := Batch{
				ID:          uuid.NewString(),
				BatchNumber: strings.TrimSpace(b.BatchNumber),
				Quantity:    b.Quantity,
				CostPrice:   cost,
				SalePrice:   sale,
				ExpiryDate:  b.ExpiryDate,
			}
			stock.Batches = append(stock.Batches, batch)
			if err := repo.InsertMovement(Movement{
				StockItemID:     b.StockItemID,
				LocationID:      order.LocationID,
				BatchID:         batch.ID,
				BatchNumber:     batch.BatchNumber,
				Type:            MovementReceived,
				QuantityChange:  b.Quantity,
				CostPrice:       cost,
				RelatedEntityID: order.ID,
				Date:            now,
				RecordedBy:      input.RecordedBy,
			}); err != nil {
				return err
			}
			idx, _ := order.lineFor(b.StockItemID)
			order.Lines[idx].ReceivedQty = order.Lines[idx].ReceivedQty.Add(b.Quantity)
		}
		if err := stocks.flush(now); err != nil {
			return err
		}
		order.recomputeStatus()
		order.UpdatedAt = now
		return repo.UpdateOrderLines(ctx, order)
	})
	if err != nil {
		return StockOrder{}, err
	}
	s.record(ctx, tenant, "stock_order:receive", "stock_order", order.ID, map[string]any{"batches": len(input.Batches), "status": string(order.Status)})
	return order, nil
}

// marginFor returns the margin of the batch with the latest expiry, the
// last batch when none expires, or the default margin.
func (s *Service) marginFor(stock *LocationStock) decimal.Decimal {
	if len(stock.Batches) == 0 {
		return s.defaultMargin
	}
	ref := stock.Batches[len(stock.Batches)-1]
	var latest *Batch
	for i := range stock.Batches {
		b := &stock.Batches[i]
		if b.ExpiryDate == nil {
			continue
		}
		if latest == nil || b.ExpiryDate.After(*latest.ExpiryDate) {
			latest = b
		}
	}
	if latest != nil {
		ref = *latest
	}
	if margin, ok := money.MarginPct(ref.CostPrice, ref.SalePrice); ok {
		return margin
	}
	return s.defaultMargin
}

// ReturnToVendor sends received quantities back and records return movements.
func (s *Service) ReturnToVendor(ctx context.Context, tenant, orderID string, input ReturnInput) (StockOrder, error) {
	if len(input.Lines) == 0 {
		return StockOrder{}, shared.Invalidf("at least one line is required")
	}
	for _, l := range input.Lines {
		if !l.Quantity.IsPositive() {
			return StockOrder{}, shared.Invalidf("quantity for item %s must be positive", l.StockItemID)
		}
	}
	var order StockOrder
	err := s.repo.WithTx(ctx, tenant, func(ctx context.Context, repo TxRepository) error {
		var err error
		order, err = repo.GetOrder(ctx, orderID)
		if err != nil {
			return err
		}
		if order.Status == OrderCancelled {
			return fmt.Errorf("order %s is cancelled: %w", orderID, shared.ErrAlreadyFinalState)
		}
		stocks := newStockSet(repo)
		need := demand{}
		returned := make(map[string]decimal.Decimal)
		for _, l := range input.Lines {
			idx, ok := order.lineFor(l.StockItemID)
			if !ok {
				return shared.NotFoundf("item %s on order %s", l.StockItemID, orderID)
			}
			line := order.Lines[idx]
			returned[l.StockItemID] = returned[l.StockItemID].Add(l.Quantity)
			if line.ReturnedQty.Add(returned[l.StockItemID]).GreaterThan(line.ReceivedQty) {
				return shared.Invalidf("cannot return more of item %s than was received", l.StockItemID)
			}
			stock, ok, err := stocks.load(ctx, l.StockItemID, order.LocationID, false)
			if err != nil {
				return err
			}
			if !ok {
				return batchNotFound(l.StockItemID, l.BatchID, order.LocationID)
			}
			bIdx, ok := stock.batchByID(l.BatchID)
			if !ok {
				return batchNotFound(l.StockItemID, l.BatchID, order.LocationID)
			}
			batch := stock.Batches[bIdx]
			if requested := need.add(l.StockItemID, order.LocationID, l.BatchID, l.Quantity); requested.GreaterThan(batch.Quantity) {
				return &shared.InsufficientStockError{
					StockItemID: l.StockItemID,
					BatchNumber: batch.BatchNumber,
					Available:   batch.Quantity,
					Requested:   requested,
				}
			}
		}

		now := s.now().UTC()
		for _, l := range input.Lines {
			stock, _, _ := stocks.load(ctx, l.StockItemID, order.LocationID, false)
			bIdx, _ := stock.batchByID(l.BatchID)
			batch := &stock.Batches[bIdx]
			batch.Quantity = batch.Quantity.Sub(l.Quantity)
			if err := repo.InsertMovement(Movement{
				StockItemID:     l.StockItemID,
				LocationID:      order.LocationID,
				BatchID:         batch.ID,
				BatchNumber:     batch.BatchNumber,
				Type:            MovementReturn,
				QuantityChange:  l.Quantity.Neg(),
				CostPrice:       batch.CostPrice,
				Reason:          input.Reason,
				RelatedEntityID: order.ID,
				Date:            now,
				RecordedBy:      input.RecordedBy,
			}); err != nil {
				return err
			}
			idx, _ := order.lineFor(l.StockItemID)
			order.Lines[idx].ReturnedQty = order.Lines[idx].ReturnedQty.Add(l.Quantity)
		}
		if err := stocks.flush(now); err != nil {
			return err
		}
		order.UpdatedAt = now
		return repo.UpdateOrderLines(ctx, order)
	})
	if err != nil {
		return StockOrder{}, err
	}
	s.record(ctx, tenant, "stock_order:return", "stock_order", order.ID, map[string]any{"lines": len(input.Lines)})
	return order, nil
}

// CancelOrder cancels an order nothing was received against.
func (s *Service) CancelOrder(ctx context.Context, tenant, orderID string) (StockOrder, error) {
	var order StockOrder
	err := s.repo.WithTx(ctx, tenant, func(ctx context.Context, repo TxRepository) error {
		var err error
		order, err = repo.GetOrder(ctx, orderID)
		if err != nil {
			return err
		}
		if order.Status == OrderCancelled || order.anyReceived() {
			return fmt.Errorf("order %s is %s: %w", orderID, order.Status, shared.ErrAlreadyFinalState)
		}
		order.Status = OrderCancelled
		order.UpdatedAt = s.now().UTC()
		return repo.UpdateOrderLines(ctx, order)
	})
	if err != nil {
		return StockOrder{}, err
	}
	s.record(ctx, tenant, "stock_order:cancel", "stock_order", order.ID, nil)
	return order, nil
}

// DeleteOrder removes an order nothing was received against.
func (s *Service) DeleteOrder(ctx context.Context, tenant, orderID string) error {
	err := s.repo.WithTx(ctx, tenant, func(ctx context.Context, repo TxRepository) error {
		order, err := repo.GetOrder(ctx, orderID)
		if err != nil {
			return err
		}
		if order.anyReceived() {
			return fmt.Errorf("order %s has received items: %w", orderID, shared.ErrAlreadyFinalState)
		}
		return repo.Tx().Delete(docstore.NewRef(tenant, collectionOrders, orderID))
	})
	if err != nil {
		return err
	}
	s.record(ctx, tenant, "stock_order:delete", "stock_order", orderID, nil)
	return nil
}

// GetOrder loads a stock order.
func (s *Service) GetOrder(ctx context.Context, tenant, id string) (StockOrder, error) {
	var o StockOrder
	if err := s.store.Get(ctx, docstore.NewRef(tenant, collectionOrders, id), &o); err != nil {
		return StockOrder{}, notFound(err, "stock order", id)
	}
	return o, nil
}

// ListOrders returns stock orders, newest first, optionally by status.
func (s *Service) ListOrders(ctx context.Context, tenant string, status OrderStatus, limit int) ([]StockOrder, error) {
	q := docstore.Query{Tenant: tenant, Collection: collectionOrders, OrderBy: "createdAt", Desc: true, Limit: limit}
	if status != "" {
		q = q.Where("status", docstore.OpEq, string(status))
	}
	snaps, err := s.store.Query(ctx, q)
	if err != nil {
		return nil, err
	}
	return decodeAll[StockOrder](snaps)
}
