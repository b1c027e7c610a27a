package inventory

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// AlertKind classifies stock alerts.
type AlertKind string

const (
	AlertLowStock AlertKind = "low_stock"
	AlertExpiring AlertKind = "expiring"
)

// StockAlert is raised after a sale or adjustment leaves an item at or below
// its threshold, and by the periodic scan.
type StockAlert struct {
	Kind        AlertKind       `json:"kind"`
	TenantID    string          `json:"tenantId"`
	StockItemID string          `json:"stockItemId"`
	LocationID  string          `json:"locationId"`
	BatchNumber string          `json:"batchNumber,omitempty"`
	Quantity    decimal.Decimal `json:"quantity"`
	Threshold   decimal.Decimal `json:"threshold,omitempty"`
	ExpiryDate  *time.Time      `json:"expiryDate,omitempty"`
	RaisedAt    time.Time       `json:"raisedAt"`
}

// AlertHandler receives stock alerts. Errors are ignored by the service.
type AlertHandler interface {
	HandleStockAlert(ctx context.Context, alert StockAlert) error
}

func lowAlert(tenant string, st LocationStock, at time.Time) StockAlert {
	return StockAlert{
		Kind:        AlertLowStock,
		TenantID:    tenant,
		StockItemID: st.StockItemID,
		LocationID:  st.LocationID,
		Quantity:    st.TotalStock,
		Threshold:   st.LowStockThreshold,
		RaisedAt:    at,
	}
}

func (s *Service) notifyLow(ctx context.Context, tenant string, stocks []LocationStock) {
	if s.alerts == nil {
		return
	}
	at := s.now().UTC()
	for _, st := range stocks {
		_ = s.alerts.HandleStockAlert(ctx, lowAlert(tenant, st, at))
	}
}

// Scan collects low stock and expiring batch alerts across all locations of
// tenant and forwards them to the configured handler.
func (s *Service) Scan(ctx context.Context, tenant string, within time.Duration) ([]StockAlert, error) {
	low, err := s.LowStock(ctx, tenant, "")
	if err != nil {
		return nil, err
	}
	expiring, err := s.ExpiringBatches(ctx, tenant, "", within)
	if err != nil {
		return nil, err
	}
	at := s.now().UTC()
	alerts := make([]StockAlert, 0, len(low)+len(expiring))
	for _, st := range low {
		alerts = append(alerts, lowAlert(tenant, st, at))
	}
	for _, e := range expiring {
		alerts = append(alerts, StockAlert{
			Kind:        AlertExpiring,
			TenantID:    tenant,
			StockItemID: e.StockItemID,
			LocationID:  e.LocationID,
			BatchNumber: e.Batch.BatchNumber,
			Quantity:    e.Batch.Quantity,
			ExpiryDate:  e.Batch.ExpiryDate,
			RaisedAt:    at,
		})
	}
	if s.alerts != nil {
		for _, a := range alerts {
			_ = s.alerts.HandleStockAlert(ctx, a)
		}
	}
	return alerts, nil
}
