package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/carepoint-hms/carepoint/internal/jobs"
	"github.com/carepoint-hms/carepoint/internal/payroll"
	"github.com/carepoint-hms/carepoint/internal/shared"
)

// PayrollRunner creates draft runs.
type PayrollRunner interface {
	CreateRun(ctx context.Context, tenant string, period string, bonus payroll.Bonus, createdBy string) (payroll.Run, error)
}

// SystemActor is recorded as the creator of scheduled runs.
const SystemActor = "system:scheduler"

// PayrollJob generates monthly payroll runs.
type PayrollJob struct {
	Runs    PayrollRunner
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
	clock   func() time.Time
}

// NewPayrollJob initialises the payroll generation handler.
func NewPayrollJob(runs PayrollRunner, logger *slog.Logger, metrics *jobmetrics.Metrics) *PayrollJob {
	return &PayrollJob{
		Runs:    runs,
		Logger:  logger,
		Metrics: metrics,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle creates the run. A run that already exists for the period counts as
// done so retries and manual runs do not fail the task.
func (j *PayrollJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Runs == nil {
		return errors.New("payroll job: handler not configured")
	}
	var payload PayrollGeneratePayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil || payload.TenantID == "" {
		return fmt.Errorf("payroll job: bad payload: %w", asynq.SkipRetry)
	}
	period := payload.Period
	if period == "" {
		period = shared.PeriodOf(j.clock()).Previous().String()
	}

	tracker := j.Metrics.Track(TaskPayrollGenerate)
	logger := j.Logger.With(slog.String("tenant", payload.TenantID), slog.String("period", period))

	run, err := j.Runs.CreateRun(ctx, payload.TenantID, period, payload.Bonus, SystemActor)
	switch {
	case errors.Is(err, payroll.ErrRunExists):
		logger.Info("payroll run already exists")
		return tracker.End(nil)
	case errors.Is(err, shared.ErrValidation):
		logger.Error("payroll run rejected", slog.Any("error", err))
		return tracker.End(fmt.Errorf("%w: %w", err, asynq.SkipRetry))
	case err != nil:
		logger.Error("payroll run failed", slog.Any("error", err))
		return tracker.End(err)
	}
	j.Metrics.AddPayslips(len(run.Payslips))
	logger.Info("payroll run generated",
		slog.Int("payslips", len(run.Payslips)),
		slog.String("net_total", run.NetTotal.StringFixed(2)),
	)
	return tracker.End(nil)
}
