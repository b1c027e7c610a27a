package jobmetrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestTrackerRecordsOutcome(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	require.NoError(t, m.Track("inventory:low-stock-scan").End(nil))
	boom := errors.New("boom")
	require.ErrorIs(t, m.Track("payroll:generate").End(boom), boom)

	require.InDelta(t, 1, testutil.ToFloat64(m.runs.WithLabelValues("inventory:low-stock-scan", "success")), 0)
	require.InDelta(t, 1, testutil.ToFloat64(m.failures.WithLabelValues("payroll:generate")), 0)

	m.AddStockAlerts("low_stock", 3)
	m.AddStockAlerts("expiring", 0)
	m.AddPayslips(4)
	require.InDelta(t, 3, testutil.ToFloat64(m.alerts.WithLabelValues("low_stock")), 0)
	require.InDelta(t, 4, testutil.ToFloat64(m.payslips), 0)

	var nilMetrics *Metrics
	require.NoError(t, nilMetrics.Track("noop").End(nil))
	nilMetrics.AddStockAlerts("low_stock", 1)
}
