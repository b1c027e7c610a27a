package jobs

// Cron specs used when the worker configuration leaves them empty.
const (
	DefaultPayrollSpec   = "0 2 1 * *"
	DefaultStockScanSpec = "30 1 * * *"
)

// Schedule builds one payroll and one stock scan registration per tenant.
// Scheduled payroll tasks carry no period and resolve the previous month
// when they run.
func Schedule(tenants []string, payrollSpec, scanSpec string, expiryDays int) ([]CronRegistration, error) {
	if payrollSpec == "" {
		payrollSpec = DefaultPayrollSpec
	}
	if scanSpec == "" {
		scanSpec = DefaultStockScanSpec
	}
	regs := make([]CronRegistration, 0, 2*len(tenants))
	for _, tenant := range tenants {
		if tenant == "" {
			continue
		}
		payrollTask, err := NewPayrollGenerateTask(PayrollGeneratePayload{TenantID: tenant})
		if err != nil {
			return nil, err
		}
		scanTask, err := NewStockScanTask(StockScanPayload{TenantID: tenant, WithinDays: expiryDays})
		if err != nil {
			return nil, err
		}
		regs = append(regs,
			CronRegistration{Spec: payrollSpec, Task: payrollTask},
			CronRegistration{Spec: scanSpec, Task: scanTask},
		)
	}
	return regs, nil
}
