package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"

	"github.com/carepoint-hms/carepoint/internal/payroll"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskPayrollGenerate creates the draft payroll run of a tenant.
	TaskPayrollGenerate = "payroll:generate"
	// TaskStockScan raises low stock and expiry alerts for a tenant.
	TaskStockScan = "inventory:low-stock-scan"
)

// PayrollGeneratePayload selects the tenant and month. An empty Period means
// the month before the task runs.
type PayrollGeneratePayload struct {
	TenantID string        `json:"tenant_id"`
	Period   string        `json:"period,omitempty"`
	Bonus    payroll.Bonus `json:"bonus"`
}

// NewPayrollGenerateTask constructs an Asynq task for payroll generation.
func NewPayrollGenerateTask(payload PayrollGeneratePayload) (*asynq.Task, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskPayrollGenerate, body, asynq.Queue(QueueDefault), asynq.MaxRetry(3)), nil
}

// StockScanPayload carries the tenant and the expiry look-ahead in days.
type StockScanPayload struct {
	TenantID   string `json:"tenant_id"`
	WithinDays int    `json:"within_days"`
}

// DefaultExpiryDays is used when the payload has no look-ahead.
const DefaultExpiryDays = 30

func (p StockScanPayload) window() time.Duration {
	days := p.WithinDays
	if days <= 0 {
		days = DefaultExpiryDays
	}
	return time.Duration(days) * 24 * time.Hour
}

// NewStockScanTask constructs an Asynq task for the stock scan.
func NewStockScanTask(payload StockScanPayload) (*asynq.Task, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskStockScan, body, asynq.Queue(QueueDefault)), nil
}
