package jobs

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/carepoint-hms/carepoint/internal/inventory"
	jobmetrics "github.com/carepoint-hms/carepoint/internal/jobs"
	"github.com/carepoint-hms/carepoint/internal/payroll"
	"github.com/carepoint-hms/carepoint/internal/shared"
)

type fakeRunner struct {
	tenant, period string
	err            error
}

func (f *fakeRunner) CreateRun(_ context.Context, tenant, period string, _ payroll.Bonus, createdBy string) (payroll.Run, error) {
	f.tenant, f.period = tenant, period
	if f.err != nil {
		return payroll.Run{}, f.err
	}
	return payroll.Run{ID: period, CreatedBy: createdBy, Payslips: make([]payroll.Payslip, 2), NetTotal: decimal.NewFromInt(100)}, nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
}

func TestPayrollJobDefaultsToPreviousMonth(t *testing.T) {
	runner := &fakeRunner{}
	job := NewPayrollJob(runner, discardLogger(), jobmetrics.NewMetrics(prometheus.NewRegistry()))
	job.clock = func() time.Time { return time.Date(2024, 1, 1, 2, 0, 0, 0, time.UTC) }

	task, err := NewPayrollGenerateTask(PayrollGeneratePayload{TenantID: "h1"})
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))
	require.Equal(t, "h1", runner.tenant)
	require.Equal(t, "2023-12", runner.period)
}

func TestPayrollJobTreatsExistingRunAsDone(t *testing.T) {
	job := NewPayrollJob(&fakeRunner{err: payroll.ErrRunExists}, discardLogger(), nil)
	task, err := NewPayrollGenerateTask(PayrollGeneratePayload{TenantID: "h1", Period: "2024-05"})
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))

	job = NewPayrollJob(&fakeRunner{err: shared.Invalidf("bad period")}, discardLogger(), nil)
	require.ErrorIs(t, job.Handle(context.Background(), task), asynq.SkipRetry)

	boom := errors.New("store down")
	job = NewPayrollJob(&fakeRunner{err: boom}, discardLogger(), nil)
	require.ErrorIs(t, job.Handle(context.Background(), task), boom)

	require.ErrorIs(t, job.Handle(context.Background(), asynq.NewTask(TaskPayrollGenerate, []byte("{"))), asynq.SkipRetry)
}

type fakeScanner struct {
	within time.Duration
}

func (f *fakeScanner) Scan(_ context.Context, _ string, within time.Duration) ([]inventory.StockAlert, error) {
	f.within = within
	return []inventory.StockAlert{
		{Kind: inventory.AlertLowStock, StockItemID: "i1"},
		{Kind: inventory.AlertExpiring, StockItemID: "i2"},
		{Kind: inventory.AlertExpiring, StockItemID: "i3"},
	}, nil
}

func TestStockScanJob(t *testing.T) {
	scanner := &fakeScanner{}
	job := NewStockScanJob(scanner, discardLogger(), jobmetrics.NewMetrics(prometheus.NewRegistry()))

	task, err := NewStockScanTask(StockScanPayload{TenantID: "h1"})
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))
	require.Equal(t, DefaultExpiryDays*24*time.Hour, scanner.within)

	task, err = NewStockScanTask(StockScanPayload{WithinDays: 7})
	require.NoError(t, err)
	require.ErrorIs(t, job.Handle(context.Background(), task), asynq.SkipRetry)
}

func TestAlertLoggerWritesStructuredEntry(t *testing.T) {
	var buf bytes.Buffer
	logger := AlertLogger{Logger: slog.New(slog.NewJSONHandler(&buf, nil))}
	expiry := time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, logger.HandleStockAlert(context.Background(), inventory.StockAlert{
		Kind: inventory.AlertExpiring, TenantID: "h1", StockItemID: "i1", BatchNumber: "B-1",
		Quantity: decimal.NewFromInt(4), ExpiryDate: &expiry,
	}))
	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	require.Equal(t, "stock alert", entry["msg"])
	require.Equal(t, "B-1", entry["batch"])
	require.Equal(t, "4", entry["quantity"])
}

func TestScheduleRegistersPerTenant(t *testing.T) {
	regs, err := Schedule([]string{"h1", "", "h2"}, "", "", 14)
	require.NoError(t, err)
	require.Len(t, regs, 4)
	require.Equal(t, DefaultPayrollSpec, regs[0].Spec)
	require.Equal(t, TaskPayrollGenerate, regs[0].Task.Type())
	require.Equal(t, TaskStockScan, regs[3].Task.Type())

	var payload StockScanPayload
	require.NoError(t, json.Unmarshal(regs[3].Task.Payload(), &payload))
	require.Equal(t, "h2", payload.TenantID)
	require.Equal(t, 14, payload.WithinDays)
}

func TestHealthWithoutInspector(t *testing.T) {
	rr := httptest.NewRecorder()
	NewHandler(nil, discardLogger()).health(rr, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	var body QueueHealth
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	require.Equal(t, QueueHealth{Queue: QueueDefault}, body)
}

type stubInspector struct {
	info *asynq.QueueInfo
	err  error
}

func (s stubInspector) GetQueueInfo(string) (*asynq.QueueInfo, error) {
	return s.info, s.err
}

func TestHealthReportsQueueCounters(t *testing.T) {
	h := newHandler(stubInspector{info: &asynq.QueueInfo{Queue: QueueDefault, Pending: 4, Active: 1, Retry: 2, Failed: 3}}, discardLogger())
	rr := httptest.NewRecorder()
	h.health(rr, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	var body QueueHealth
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	require.True(t, body.Connected)
	require.Equal(t, 4, body.Pending)
	require.Equal(t, 2, body.Retry)
	require.Equal(t, 3, body.Failed)

	rr = httptest.NewRecorder()
	newHandler(stubInspector{err: errors.New("redis down")}, discardLogger()).health(rr, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusServiceUnavailable, rr.Code)
	require.Equal(t, "application/problem+json", rr.Header().Get("Content-Type"))
}

func TestNewWorkerValidatesHandlersAndCron(t *testing.T) {
	noop := func(context.Context, *asynq.Task) error { return nil }
	opts := asynq.RedisClientOpt{Addr: "127.0.0.1:0"}
	cron, err := Schedule([]string{"h1"}, "", "", 0)
	require.NoError(t, err)

	_, err = NewWorker(WorkerConfig{RedisOpts: opts, Handlers: []TaskHandler{
		{Type: TaskPayrollGenerate, Handler: noop},
		{Type: TaskPayrollGenerate, Handler: noop},
	}})
	require.ErrorContains(t, err, "registered twice")

	_, err = NewWorker(WorkerConfig{RedisOpts: opts, Handlers: []TaskHandler{{Type: TaskPayrollGenerate, Handler: noop}}, Cron: cron})
	require.ErrorContains(t, err, "has no handler")

	w, err := NewWorker(WorkerConfig{RedisOpts: opts, Handlers: []TaskHandler{
		{Type: TaskPayrollGenerate, Handler: noop},
		{Type: TaskStockScan, Handler: noop},
	}, Cron: cron})
	require.NoError(t, err)
	require.NotNil(t, w.scheduler)
}
