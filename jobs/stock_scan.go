package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/carepoint-hms/carepoint/internal/inventory"
	jobmetrics "github.com/carepoint-hms/carepoint/internal/jobs"
)

// StockScanner returns the current stock alerts of a tenant.
type StockScanner interface {
	Scan(ctx context.Context, tenant string, within time.Duration) ([]inventory.StockAlert, error)
}

// StockScanJob runs the nightly low stock and expiry scan.
type StockScanJob struct {
	Scanner StockScanner
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewStockScanJob initialises the stock scan handler.
func NewStockScanJob(scanner StockScanner, logger *slog.Logger, metrics *jobmetrics.Metrics) *StockScanJob {
	return &StockScanJob{Scanner: scanner, Logger: logger, Metrics: metrics}
}

// Handle executes the scan and records alert counts.
func (j *StockScanJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Scanner == nil {
		return errors.New("stock scan: handler not configured")
	}
	var payload StockScanPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil || payload.TenantID == "" {
		return fmt.Errorf("stock scan: bad payload: %w", asynq.SkipRetry)
	}
	start := time.Now()
	tracker := j.Metrics.Track(TaskStockScan)
	logger := j.Logger.With(slog.String("tenant", payload.TenantID))

	alerts, err := j.Scanner.Scan(ctx, payload.TenantID, payload.window())
	if err != nil {
		logger.Error("stock scan failed", slog.Any("error", err))
		return tracker.End(err)
	}
	counts := make(map[inventory.AlertKind]int)
	for _, a := range alerts {
		counts[a.Kind]++
	}
	for kind, n := range counts {
		j.Metrics.AddStockAlerts(string(kind), n)
	}
	logger.Info("completed stock scan",
		slog.Int("low_stock", counts[inventory.AlertLowStock]),
		slog.Int("expiring", counts[inventory.AlertExpiring]),
		slog.Duration("duration", time.Since(start)),
	)
	return tracker.End(nil)
}

// AlertLogger is an inventory.AlertHandler that writes each alert to the log.
type AlertLogger struct {
	Logger *slog.Logger
}

// HandleStockAlert logs alert at warn level.
func (l AlertLogger) HandleStockAlert(_ context.Context, alert inventory.StockAlert) error {
	attrs := []any{
		slog.String("kind", string(alert.Kind)),
		slog.String("tenant", alert.TenantID),
		slog.String("stock_item", alert.StockItemID),
		slog.String("location", alert.LocationID),
		slog.String("quantity", alert.Quantity.String()),
	}
	if alert.BatchNumber != "" {
		attrs = append(attrs, slog.String("batch", alert.BatchNumber))
	}
	if alert.ExpiryDate != nil {
		attrs = append(attrs, slog.Time("expires", *alert.ExpiryDate))
	}
	l.Logger.Warn("stock alert", attrs...)
	return nil
}
