package inventory

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/carepoint-hms/carepoint/internal/docstore"
	"github.com/carepoint-hms/carepoint/internal/masterdata/locations"
	"github.com/carepoint-hms/carepoint/internal/money"
	"github.com/carepoint-hms/carepoint/internal/shared"
	"github.com/carepoint-hms/carepoint/internal/tenancy"
)

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	WithTx(ctx context.Context, tenant string, fn func(context.Context, TxRepository) error) error
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service coordinates inventory operations.
type Service struct {
	repo          RepositoryPort
	store         docstore.Store
	quota         tenancy.Checker
	audit         AuditPort
	alerts        AlertHandler
	defaultMargin decimal.Decimal
	now           func() time.Time
}

// ServiceConfig groups optional settings.
type ServiceConfig struct {
	// DefaultMarginPct prices received batches when no earlier batch has a
	// usable margin. Zero means money.DefaultMarginPct.
	DefaultMarginPct decimal.Decimal
	Quota            tenancy.Checker
	Audit            AuditPort
	Alerts           AlertHandler
}

// NewService builds Service.
func NewService(store docstore.Store, cfg ServiceConfig) *Service {
	margin := cfg.DefaultMarginPct
	if margin.IsZero() {
		margin = money.DefaultMarginPct
	}
	return &Service{
		repo:          NewRepository(store),
		store:         store,
		quota:         cfg.Quota,
		audit:         cfg.Audit,
		alerts:        cfg.Alerts,
		defaultMargin: margin,
		now:           time.Now,
	}
}

// stockSet caches the LocationStock documents touched by one transaction so
// repeated lines see each other's effect and every document is written once.
type stockSet struct {
	repo  TxRepository
	docs  map[string]*LocationStock
	order []string
}

func newStockSet(repo TxRepository) *stockSet {
	return &stockSet{repo: repo, docs: make(map[string]*LocationStock)}
}

// load returns the cached record; missing records are created empty when
// create is set and reported as ok=false otherwise.
func (s *stockSet) load(ctx context.Context, stockItemID, locationID string, create bool) (*LocationStock, bool, error) {
	key := StockID(stockItemID, locationID)
	if doc, ok := s.docs[key]; ok {
		return doc, true, nil
	}
	stock, found, err := s.repo.GetStock(ctx, stockItemID, locationID)
	if err != nil {
		return nil, false, err
	}
	if !found && !create {
		return nil, false, nil
	}
	s.docs[key] = &stock
	s.order = append(s.order, key)
	return &stock, true, nil
}

func (s *stockSet) flush(at time.Time) error {
	for _, key := range s.order {
		doc := s.docs[key]
		doc.recalc()
		doc.UpdatedAt = at
		if err := s.repo.PutStock(*doc); err != nil {
			return err
		}
	}
	return nil
}

func (ls *LocationStock) recalc() {
	total := decimal.Zero
	for _, b := range ls.Batches {
		total = total.Add(b.Quantity)
	}
	ls.TotalStock = total
}

func (ls *LocationStock) isLow() bool {
	return ls.LowStockThreshold.IsPositive() && ls.TotalStock.LessThanOrEqual(ls.LowStockThreshold)
}

// demand accumulates requested quantities per batch across lines.
type demand map[string]decimal.Decimal

func (d demand) add(stockItemID, locationID, batchID string, qty decimal.Decimal) decimal.Decimal {
	key := StockID(stockItemID, locationID) + "/" + batchID
	d[key] = d[key].Add(qty)
	return d[key]
}

func batchNotFound(stockItemID, batchID, locationID string) error {
	return shared.NotFoundf("batch %s of stock item %s at location %s", batchID, stockItemID, locationID)
}

// Sell decrements batch quantities for a multi-line sale. Every line is
// validated before anything is written.
func (s *Service) Sell(ctx context.Context, tenant string, input SellInput) ([]SoldLine, error) {
	var (
		sold []SoldLine
		low  []LocationStock
	)
	err := s.repo.WithTx(ctx, tenant, func(ctx context.Context, repo TxRepository) error {
		var err error
		sold, low, err = s.sell(ctx, repo, input)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.record(ctx, tenant, "inventory:sell", "location", input.LocationID, map[string]any{"lines": len(sold), "ref": input.RelatedEntityID})
	s.notifyLow(ctx, tenant, low)
	return sold, nil
}

// SellTx runs Sell inside a transaction owned by the caller.
func (s *Service) SellTx(ctx context.Context, tx docstore.Tx, tenant string, input SellInput) ([]SoldLine, error) {
	sold, _, err := s.sell(ctx, NewTxRepository(tenant, tx), input)
	return sold, err
}

func (s *Service) sell(ctx context.Context, repo TxRepository, input SellInput) ([]SoldLine, []LocationStock, error) {
	if input.LocationID == "" || len(input.Items) == 0 {
		return nil, nil, shared.Invalidf("location and at least one item are required")
	}
	stocks := newStockSet(repo)
	need := demand{}
	sold := make([]SoldLine, 0, len(input.Items))
	for _, line := range input.Items {
		if !line.Quantity.IsPositive() {
			return nil, nil, shared.Invalidf("quantity for item %s must be positive", line.StockItemID)
		}
		item, err := repo.GetItem(ctx, line.StockItemID)
		if err != nil {
			return nil, nil, err
		}
		stock, ok, err := stocks.load(ctx, line.StockItemID, input.LocationID, false)
		if err != nil {
			return nil, nil, err
		}
		if !ok {
			return nil, nil, batchNotFound(line.StockItemID, line.BatchID, input.LocationID)
		}
		idx, ok := stock.batchByID(line.BatchID)
		if !ok {
			return nil, nil, batchNotFound(line.StockItemID, line.BatchID, input.LocationID)
		}
		batch := stock.Batches[idx]
		if requested := need.add(line.StockItemID, input.LocationID, line.BatchID, line.Quantity); requested.GreaterThan(batch.Quantity) {
			return nil, nil, &shared.InsufficientStockError{
				StockItemID: line.StockItemID,
				BatchNumber: batch.BatchNumber,
				Available:   batch.Quantity,
				Requested:   requested,
			}
		}
		sold = append(sold, SoldLine{
			StockItemID: item.ID,
			Name:        item.Name,
			TaxID:       item.TaxID,
			BatchID:     batch.ID,
			BatchNumber: batch.BatchNumber,
			Quantity:    line.Quantity,
			SalePrice:   batch.SalePrice,
			CostPrice:   batch.CostPrice,
		})
	}

	now := s.now().UTC()
	for _, line := range sold {
		stock, _, _ := stocks.load(ctx, line.StockItemID, input.LocationID, false)
		idx, _ := stock.batchByID(line.BatchID)
		stock.Batches[idx].Quantity = stock.Batches[idx].Quantity.Sub(line.Quantity)
		if err := repo.InsertMovement(Movement{
			StockItemID:     line.StockItemID,
			LocationID:      input.LocationID,
			BatchID:         line.BatchID,
			BatchNumber:     line.BatchNumber,
			Type:            MovementSale,
			QuantityChange:  line.Quantity.Neg(),
			RelatedEntityID: input.RelatedEntityID,
			Date:            now,
			RecordedBy:      input.RecordedBy,
		}); err != nil {
			return nil, nil, err
		}
	}
	if err := stocks.flush(now); err != nil {
		return nil, nil, err
	}
	return sold, stocks.low(), nil
}

func (s *stockSet) low() []LocationStock {
	var out []LocationStock
	for _, key := range s.order {
		if doc := s.docs[key]; doc.isLow() {
			out = append(out, *doc)
		}
	}
	return out
}

// Adjust applies a signed manual correction to one batch.
func (s *Service) Adjust(ctx context.Context, tenant string, input AdjustInput) (LocationStock, error) {
	if strings.TrimSpace(input.Reason) == "" {
		return LocationStock{}, shared.Invalidf("adjustment reason is required")
	}
	if input.QuantityChange.IsZero() {
		return LocationStock{}, shared.Invalidf("quantity change must not be zero")
	}
	var result LocationStock
	err := s.repo.WithTx(ctx, tenant, func(ctx context.Context, repo TxRepository) error {
		if _, err := repo.GetItem(ctx, input.StockItemID); err != nil {
			return err
		}
		stocks := newStockSet(repo)
		stock, ok, err := stocks.load(ctx, input.StockItemID, input.LocationID, false)
		if err != nil {
			return err
		}
		if !ok {
			return batchNotFound(input.StockItemID, input.BatchID, input.LocationID)
		}
		idx, ok := stock.batchByID(input.BatchID)
		if !ok {
			return batchNotFound(input.StockItemID, input.BatchID, input.LocationID)
		}
		batch := &stock.Batches[idx]
		next := batch.Quantity.Add(input.QuantityChange)
		if next.IsNegative() {
			return &shared.InsufficientStockError{
				StockItemID: input.StockItemID,
				BatchNumber: batch.BatchNumber,
				Available:   batch.Quantity,
				Requested:   input.QuantityChange.Neg(),
			}
		}
		batch.Quantity = next
		now := s.now().UTC()
		if err := repo.InsertMovement(Movement{
			StockItemID:    input.StockItemID,
			LocationID:     input.LocationID,
			BatchID:        batch.ID,
			BatchNumber:    batch.BatchNumber,
			Type:           MovementAdjustment,
			QuantityChange: input.QuantityChange,
			Reason:         input.Reason,
			Date:           now,
			RecordedBy:     input.RecordedBy,
		}); err != nil {
			return err
		}
		if err := stocks.flush(now); err != nil {
			return err
		}
		result = *stock
		return nil
	})
	if err != nil {
		return LocationStock{}, err
	}
	s.record(ctx, tenant, "inventory:adjust", "stock_item", input.StockItemID, map[string]any{
		"location": input.LocationID, "batch": input.BatchID, "change": input.QuantityChange.String(), "reason": input.Reason,
	})
	if result.isLow() {
		s.notifyLow(ctx, tenant, []LocationStock{result})
	}
	return result, nil
}

// CreateStockItem registers a product with optional opening batches per
// location. Each opening batch gets an initial movement.
func (s *Service) CreateStockItem(ctx context.Context, tenant string, input StockItemInput) (StockItem, error) {
	input.Name = strings.TrimSpace(input.Name)
	input.SKU = strings.TrimSpace(input.SKU)
	if input.Name == "" || input.SKU == "" {
		return StockItem{}, shared.Invalidf("name and sku are required")
	}
	seen := make(map[string]bool, len(input.Locations))
	for _, loc := range input.Locations {
		if seen[loc.LocationID] {
			return StockItem{}, shared.Invalidf("location %s listed twice", loc.LocationID)
		}
		seen[loc.LocationID] = true
		for _, b := range loc.Batches {
			if b.Quantity.IsNegative() {
				return StockItem{}, shared.Invalidf("batch %s: opening quantity must not be negative", b.BatchNumber)
			}
			if b.CostPrice.IsNegative() || b.SalePrice.IsNegative() {
				return StockItem{}, shared.Invalidf("batch %s: prices must not be negative", b.BatchNumber)
			}
		}
	}
	if s.quota != nil {
		if err := s.quota.Check(ctx, tenant, tenancy.ResourceProducts); err != nil {
			return StockItem{}, err
		}
	}
	now := s.now().UTC()
	item := StockItem{
		ID:        uuid.NewString(),
		Name:      input.Name,
		SKU:       input.SKU,
		Category:  input.Category,
		UnitType:  input.UnitType,
		TaxID:     input.TaxID,
		CreatedAt: now,
	}
	err := s.repo.WithTx(ctx, tenant, func(ctx context.Context, repo TxRepository) error {
		tx := repo.Tx()
		dupes, err := tx.Query(ctx, docstore.Query{Tenant: tenant, Collection: collectionItems, Limit: 1}.
			Where("sku", docstore.OpEq, item.SKU))
		if err != nil {
			return err
		}
		if len(dupes) > 0 {
			return fmt.Errorf("sku %s: %w", item.SKU, shared.ErrDuplicate)
		}
		if err := tx.Create(docstore.NewRef(tenant, collectionItems, item.ID), item); err != nil {
			return err
		}
		for _, loc := range input.Locations {
			if _, err := locations.Require(ctx, tx, tenant, loc.LocationID); err != nil {
				return err
			}
			stock := LocationStock{StockItemID: item.ID, LocationID: loc.LocationID, LowStockThreshold: loc.LowStockThreshold, UpdatedAt: now}
			for _, b := range loc.Batches {
				batch := Batch{
					ID:          uuid.NewString(),
					BatchNumber: b.BatchNumber,
					Quantity:    b.Quantity,
					CostPrice:   money.Round2(b.CostPrice),
					SalePrice:   money.Round2(b.SalePrice),
					ExpiryDate:  b.ExpiryDate,
				}
				stock.Batches = append(stock.Batches, batch)
				if !b.Quantity.IsPositive() {
					continue
				}
				if err := repo.InsertMovement(Movement{
					StockItemID:    item.ID,
					LocationID:     loc.LocationID,
					BatchID:        batch.ID,
					BatchNumber:    batch.BatchNumber,
					Type:           MovementInitial,
					QuantityChange: b.Quantity,
					CostPrice:      batch.CostPrice,
					Date:           now,
				}); err != nil {
					return err
				}
			}
			stock.recalc()
			if err := repo.PutStock(stock); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return StockItem{}, err
	}
	s.record(ctx, tenant, "inventory:item-create", "stock_item", item.ID, map[string]any{"sku": item.SKU})
	return item, nil
}

// GetStockItem loads a stock item.
func (s *Service) GetStockItem(ctx context.Context, tenant, id string) (StockItem, error) {
	var item StockItem
	if err := s.store.Get(ctx, docstore.NewRef(tenant, collectionItems, id), &item); err != nil {
		return StockItem{}, notFound(err, "stock item", id)
	}
	return item, nil
}

// ListStockItems returns stock items ordered by name.
func (s *Service) ListStockItems(ctx context.Context, tenant string, limit int) ([]StockItem, error) {
	snaps, err := s.store.Query(ctx, docstore.Query{Tenant: tenant, Collection: collectionItems, OrderBy: "name", Limit: limit})
	if err != nil {
		return nil, err
	}
	return decodeAll[StockItem](snaps)
}

// GetLocationStock loads the batches of one item at one location.
func (s *Service) GetLocationStock(ctx context.Context, tenant, stockItemID, locationID string) (LocationStock, error) {
	var stock LocationStock
	if err := s.store.Get(ctx, docstore.NewRef(tenant, collectionStock, StockID(stockItemID, locationID)), &stock); err != nil {
		return LocationStock{}, notFound(err, "stock of item "+stockItemID+" at location", locationID)
	}
	return stock, nil
}

// ListMovements returns the movement log, newest first.
func (s *Service) ListMovements(ctx context.Context, tenant string, filter MovementFilter) ([]Movement, error) {
	q := docstore.Query{Tenant: tenant, Collection: collectionMovements, OrderBy: "date", Desc: true, Limit: filter.Limit}
	if filter.StockItemID != "" {
		q = q.Where("stockItemId", docstore.OpEq, filter.StockItemID)
	}
	if filter.LocationID != "" {
		q = q.Where("locationId", docstore.OpEq, filter.LocationID)
	}
	if filter.Type != "" {
		q = q.Where("type", docstore.OpEq, string(filter.Type))
	}
	snaps, err := s.store.Query(ctx, q)
	if err != nil {
		return nil, err
	}
	return decodeAll[Movement](snaps)
}

// LowStock lists stock records at or below their threshold. An empty
// locationID scans every location.
func (s *Service) LowStock(ctx context.Context, tenant, locationID string) ([]LocationStock, error) {
	stocks, err := s.locationStocks(ctx, tenant, locationID)
	if err != nil {
		return nil, err
	}
	out := make([]LocationStock, 0)
	for _, st := range stocks {
		if st.isLow() {
			out = append(out, st)
		}
	}
	return out, nil
}

// ExpiringBatches lists batches with stock left that expire within the
// window. Already expired batches are included.
func (s *Service) ExpiringBatches(ctx context.Context, tenant, locationID string, within time.Duration) ([]ExpiringBatch, error) {
	stocks, err := s.locationStocks(ctx, tenant, locationID)
	if err != nil {
		return nil, err
	}
	cutoff := s.now().UTC().Add(within)
	out := make([]ExpiringBatch, 0)
	for _, st := range stocks {
		for _, b := range st.Batches {
			if b.ExpiryDate == nil || !b.Quantity.IsPositive() || b.ExpiryDate.After(cutoff) {
				continue
			}
			out = append(out, ExpiringBatch{StockItemID: st.StockItemID, LocationID: st.LocationID, Batch: b})
		}
	}
	return out, nil
}

func (s *Service) locationStocks(ctx context.Context, tenant, locationID string) ([]LocationStock, error) {
	q := docstore.Query{Tenant: tenant, Collection: collectionStock}
	if locationID != "" {
		q = q.Where("locationId", docstore.OpEq, locationID)
	}
	snaps, err := s.store.Query(ctx, q)
	if err != nil {
		return nil, err
	}
	return decodeAll[LocationStock](snaps)
}

func decodeAll[T any](snaps []docstore.Snapshot) ([]T, error) {
	out := make([]T, 0, len(snaps))
	for _, snap := range snaps {
		var v T
		if err := snap.Decode(&v); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

func (s *Service) record(ctx context.Context, tenant, action, entity, id string, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{TenantID: tenant, Action: action, Entity: entity, EntityID: id, Meta: meta})
}
