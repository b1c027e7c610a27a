package inventory

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/carepoint-hms/carepoint/internal/docstore"
	"github.com/carepoint-hms/carepoint/internal/masterdata/locations"
	"github.com/carepoint-hms/carepoint/internal/shared"
)

// Transfer moves batch quantities from one location to another. The
// destination batch is matched by batch number; otherwise a new batch is
// opened with the source prices and expiry.
func (s *Service) Transfer(ctx context.Context, tenant string, input TransferInput) (StockTransfer, error) {
	if input.FromLocationID == "" || input.ToLocationID == "" {
		return StockTransfer{}, shared.Invalidf("source and destination locations are required")
	}
	if input.FromLocationID == input.ToLocationID {
		return StockTransfer{}, shared.Invalidf("source and destination location must differ")
	}
	if len(input.Items) == 0 {
		return StockTransfer{}, shared.Invalidf("at least one item is required")
	}
	for _, item := range input.Items {
		if !item.Quantity.IsPositive() {
			return StockTransfer{}, shared.Invalidf("quantity for item %s must be positive", item.StockItemID)
		}
	}
	now := s.now().UTC()
	transfer := StockTransfer{
		ID:             uuid.NewString(),
		FromLocationID: input.FromLocationID,
		ToLocationID:   input.ToLocationID,
		Note:           input.Note,
		Status:         TransferCompleted,
		CreatedAt:      now,
		CreatedBy:      input.CreatedBy,
	}
	err := s.repo.WithTx(ctx, tenant, func(ctx context.Context, repo TxRepository) error {
		if err := requireLocations(ctx, repo.Tx(), tenant, input.FromLocationID, input.ToLocationID); err != nil {
			return err
		}
		stocks := newStockSet(repo)
		need := demand{}
		transfer.Lines = make([]TransferLine, 0, len(input.Items))

		for _, item := range input.Items {
			if _, err := repo.GetItem(ctx, item.StockItemID); err != nil {
				return err
			}
			src, ok, err := stocks.load(ctx, item.StockItemID, input.FromLocationID, false)
			if err != nil {
				return err
			}
			if !ok {
				return batchNotFound(item.StockItemID, item.BatchID, input.FromLocationID)
			}
			idx, ok := src.batchByID(item.BatchID)
			if !ok {
				return batchNotFound(item.StockItemID, item.BatchID, input.FromLocationID)
			}
			batch := src.Batches[idx]
			if requested := need.add(item.StockItemID, input.FromLocationID, item.BatchID, item.Quantity); requested.GreaterThan(batch.Quantity) {
				return &shared.InsufficientStockError{
					StockItemID: item.StockItemID,
					BatchNumber: batch.BatchNumber,
					Available:   batch.Quantity,
					Requested:   requested,
				}
			}
			transfer.Lines = append(transfer.Lines, TransferLine{
				StockItemID: item.StockItemID,
				BatchID:     batch.ID,
				BatchNumber: batch.BatchNumber,
				Quantity:    item.Quantity,
			})
		}

		for i := range transfer.Lines {
			line := &transfer.Lines[i]
			src, _, _ := stocks.load(ctx, line.StockItemID, input.FromLocationID, false)
			srcIdx, _ := src.batchByID(line.BatchID)
			srcBatch := &src.Batches[srcIdx]
			srcBatch.Quantity = srcBatch.Quantity.Sub(line.Quantity)

			dst, _, err := stocks.load(ctx, line.StockItemID, input.ToLocationID, true)
			if err != nil {
				return err
			}
			dstIdx, ok := dst.batchByNumber(line.BatchNumber)
			if !ok {
				dst.Batches = append(dst.Batches, Batch{
					ID:          uuid.NewString(),
					BatchNumber: srcBatch.BatchNumber,
					CostPrice:   srcBatch.CostPrice,
					SalePrice:   srcBatch.SalePrice,
					ExpiryDate:  srcBatch.ExpiryDate,
				})
				dstIdx = len(dst.Batches) - 1
			}
			dstBatch := &dst.Batches[dstIdx]
			dstBatch.Quantity = dstBatch.Quantity.Add(line.Quantity)
			line.DestBatchID = dstBatch.ID

			out := Movement{
				StockItemID:     line.StockItemID,
				LocationID:      input.FromLocationID,
				BatchID:         line.BatchID,
				BatchNumber:     line.BatchNumber,
				Type:            MovementTransferOut,
				QuantityChange:  line.Quantity.Neg(),
				RelatedEntityID: transfer.ID,
				CorrelationID:   transfer.ID,
				Date:            now,
				RecordedBy:      input.CreatedBy,
			}
			in := out
			in.LocationID = input.ToLocationID
			in.BatchID = line.DestBatchID
			in.Type = MovementTransferIn
			in.QuantityChange = line.Quantity
			for _, m := range []Movement{out, in} {
				if err := repo.InsertMovement(m); err != nil {
					return err
				}
			}
		}
		if err := stocks.flush(now); err != nil {
			return err
		}
		return repo.PutTransfer(transfer)
	})
	if err != nil {
		return StockTransfer{}, err
	}
	s.record(ctx, tenant, "inventory:transfer", "stock_transfer", transfer.ID, map[string]any{
		"from": transfer.FromLocationID, "to": transfer.ToLocationID, "lines": len(transfer.Lines),
	})
	return transfer, nil
}

// ReverseTransfer moves the quantities of a completed transfer back. A
// transfer can be reversed once.
func (s *Service) ReverseTransfer(ctx context.Context, tenant, transferID string) (StockTransfer, error) {
	var transfer StockTransfer
	err := s.repo.WithTx(ctx, tenant, func(ctx context.Context, repo TxRepository) error {
		var err error
		transfer, err = repo.GetTransfer(ctx, transferID)
		if err != nil {
			return err
		}
		if transfer.Status == TransferReversed {
			return fmt.Errorf("transfer %s already reversed: %w", transferID, shared.ErrAlreadyFinalState)
		}
		stocks := newStockSet(repo)
		need := demand{}

		for _, line := range transfer.Lines {
			dst, ok, err := stocks.load(ctx, line.StockItemID, transfer.ToLocationID, false)
			if err != nil {
				return err
			}
			if !ok {
				return batchNotFound(line.StockItemID, line.DestBatchID, transfer.ToLocationID)
			}
			idx, ok := dst.batchByID(line.DestBatchID)
			if !ok {
				return batchNotFound(line.StockItemID, line.DestBatchID, transfer.ToLocationID)
			}
			batch := dst.Batches[idx]
			if requested := need.add(line.StockItemID, transfer.ToLocationID, line.DestBatchID, line.Quantity); requested.GreaterThan(batch.Quantity) {
				return &shared.InsufficientStockError{
					StockItemID: line.StockItemID,
					BatchNumber: batch.BatchNumber,
					Available:   batch.Quantity,
					Requested:   requested,
				}
			}
			src, ok, err := stocks.load(ctx, line.StockItemID, transfer.FromLocationID, false)
			if err != nil {
				return err
			}
			if !ok {
				return batchNotFound(line.StockItemID, line.BatchID, transfer.FromLocationID)
			}
			if _, ok := src.batchByID(line.BatchID); !ok {
				return batchNotFound(line.StockItemID, line.BatchID, transfer.FromLocationID)
			}
		}

		now := s.now().UTC()
		recordedBy := ""
		if p, ok := shared.PrincipalFromContext(ctx); ok {
			recordedBy = p.UserID
		}
		for _, line := range transfer.Lines {
			dst, _, _ := stocks.load(ctx, line.StockItemID, transfer.ToLocationID, false)
			dstIdx, _ := dst.batchByID(line.DestBatchID)
			dst.Batches[dstIdx].Quantity = dst.Batches[dstIdx].Quantity.Sub(line.Quantity)

			src, _, _ := stocks.load(ctx, line.StockItemID, transfer.FromLocationID, false)
			srcIdx, _ := src.batchByID(line.BatchID)
			src.Batches[srcIdx].Quantity = src.Batches[srcIdx].Quantity.Add(line.Quantity)

			back := Movement{
				StockItemID:     line.StockItemID,
				LocationID:      transfer.ToLocationID,
				BatchID:         line.DestBatchID,
				BatchNumber:     line.BatchNumber,
				Type:            MovementTransferReversal,
				QuantityChange:  line.Quantity.Neg(),
				RelatedEntityID: transfer.ID,
				CorrelationID:   transfer.ID,
				Date:            now,
				RecordedBy:      recordedBy,
			}
			restore := back
			restore.LocationID = transfer.FromLocationID
			restore.BatchID = line.BatchID
			restore.QuantityChange = line.Quantity
			for _, m := range []Movement{back, restore} {
				if err := repo.InsertMovement(m); err != nil {
					return err
				}
			}
		}
		if err := stocks.flush(now); err != nil {
			return err
		}
		transfer.Status = TransferReversed
		transfer.ReversedAt = &now
		return repo.PutTransfer(transfer)
	})
	if err != nil {
		return StockTransfer{}, err
	}
	s.record(ctx, tenant, "inventory:transfer-reverse", "stock_transfer", transfer.ID, nil)
	return transfer, nil
}

// GetTransfer loads a stock transfer.
func (s *Service) GetTransfer(ctx context.Context, tenant, id string) (StockTransfer, error) {
	var t StockTransfer
	if err := s.store.Get(ctx, docstore.NewRef(tenant, collectionTransfers, id), &t); err != nil {
		return StockTransfer{}, notFound(err, "stock transfer", id)
	}
	return t, nil
}

func requireLocations(ctx context.Context, g locations.Getter, tenant string, ids ...string) error {
	for _, id := range ids {
		if _, err := locations.Require(ctx, g, tenant, id); err != nil {
			return err
		}
	}
	return nil
}
