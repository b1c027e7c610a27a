package payroll

import (
	"bytes"
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/carepoint-hms/carepoint/internal/docstore"
	"github.com/carepoint-hms/carepoint/internal/docstore/memory"
	"github.com/carepoint-hms/carepoint/internal/shared"
	"github.com/carepoint-hms/carepoint/internal/tenancy"
)

type fixture struct {
	store docstore.Store
	svc   *Service
	group SalaryGroup
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	store := memory.New(docstore.Options{})
	svc := NewService(store, tenancy.NewService(store), nil)
	group, err := svc.CreateSalaryGroup(context.Background(), "h1", SalaryGroup{
		Name: "Nursing",
		Components: []Component{
			{Name: BasicPayName, Kind: KindEarning, CalcType: CalcPercentCTC, Value: dec("50")},
		},
	})
	require.NoError(t, err)
	return fixture{store: store, svc: svc, group: group}
}

func (f fixture) employee(t *testing.T, name, ctc string) Employee {
	t.Helper()
	emp, err := f.svc.CreateEmployee(context.Background(), "h1", Employee{Name: name, SalaryGroupID: f.group.ID, AnnualCTC: dec(ctc)})
	require.NoError(t, err)
	return emp
}

func TestRunAppliesLoanOnFinalize(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	emp := f.employee(t, "Asha", "120000")

	loan, err := f.svc.CreateLoan(ctx, "h1", LoanRequest{EmployeeID: emp.ID, LoanAmount: dec("1000"), InstallmentAmount: dec("500")})
	require.NoError(t, err)
	require.Equal(t, LoanPending, loan.Status)
	_, err = f.svc.ActivateLoan(ctx, "h1", loan.ID)
	require.NoError(t, err)

	run, err := f.svc.CreateRun(ctx, "h1", "2024-06", Bonus{}, "u1")
	require.NoError(t, err)
	require.Equal(t, "2024-06", run.ID)
	require.Equal(t, RunDraft, run.Status)
	require.Len(t, run.Payslips, 1)
	slip := run.Payslips[0]
	require.True(t, slip.Earnings[0].Amount.Equal(dec("5000")))
	require.Equal(t, specialAllowanceName, slip.Earnings[1].Name)
	require.True(t, slip.Earnings[1].Amount.Equal(dec("5000")))
	require.True(t, slip.GrossSalary.Equal(dec("10000")))
	require.True(t, slip.NetPay.Equal(dec("9500")))
	require.True(t, run.NetTotal.Equal(dec("9500")))

	draftLoan, err := f.svc.GetLoan(ctx, "h1", loan.ID)
	require.NoError(t, err)
	require.True(t, draftLoan.AmountPaid.IsZero(), "draft runs do not touch loans")

	finalized, err := f.svc.FinalizeRun(ctx, "h1", run.ID)
	require.NoError(t, err)
	require.Equal(t, RunFinalized, finalized.Status)
	require.NotNil(t, finalized.FinalizedAt)

	paid, err := f.svc.GetLoan(ctx, "h1", loan.ID)
	require.NoError(t, err)
	require.True(t, paid.AmountPaid.Equal(dec("500")))
	require.Equal(t, LoanActive, paid.Status)
	require.Len(t, paid.RepaymentHistory, 1)
	require.Equal(t, shared.Period("2024-06"), paid.RepaymentHistory[0].Period)

	_, err = f.svc.FinalizeRun(ctx, "h1", run.ID)
	require.ErrorIs(t, err, shared.ErrAlreadyFinalState)
	again, err := f.svc.GetLoan(ctx, "h1", loan.ID)
	require.NoError(t, err)
	require.True(t, again.AmountPaid.Equal(dec("500")))

	require.ErrorIs(t, f.svc.DeleteRun(ctx, "h1", run.ID), shared.ErrAlreadyFinalState)

	_, err = f.svc.CreateRun(ctx, "h1", "2024-07", Bonus{}, "u1")
	require.NoError(t, err)
	_, err = f.svc.FinalizeRun(ctx, "h1", "2024-07")
	require.NoError(t, err)
	closed, err := f.svc.GetLoan(ctx, "h1", loan.ID)
	require.NoError(t, err)
	require.Equal(t, LoanClosed, closed.Status)
	require.True(t, closed.AmountPaid.Equal(dec("1000")))
}

func TestFinalizeCapsRepaymentsFromStaleDrafts(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	emp := f.employee(t, "Asha", "120000")

	loan, err := f.svc.CreateLoan(ctx, "h1", LoanRequest{EmployeeID: emp.ID, LoanAmount: dec("800"), InstallmentAmount: dec("500")})
	require.NoError(t, err)
	_, err = f.svc.ActivateLoan(ctx, "h1", loan.ID)
	require.NoError(t, err)

	june, err := f.svc.CreateRun(ctx, "h1", "2024-06", Bonus{}, "u1")
	require.NoError(t, err)
	july, err := f.svc.CreateRun(ctx, "h1", "2024-07", Bonus{}, "u1")
	require.NoError(t, err)
	require.True(t, june.Payslips[0].NetPay.Equal(dec("9500")))
	require.True(t, july.Payslips[0].NetPay.Equal(dec("9500")))

	_, err = f.svc.FinalizeRun(ctx, "h1", june.ID)
	require.NoError(t, err)

	finalized, err := f.svc.FinalizeRun(ctx, "h1", july.ID)
	require.NoError(t, err)
	slip := finalized.Payslips[0]
	require.Len(t, slip.AdditionalDeductions, 1)
	require.True(t, slip.AdditionalDeductions[0].Amount.Equal(dec("300")))
	require.True(t, slip.TotalDeductions.Equal(dec("300")))
	require.True(t, slip.NetPay.Equal(dec("9700")))
	require.True(t, finalized.NetTotal.Equal(dec("9700")))

	closed, err := f.svc.GetLoan(ctx, "h1", loan.ID)
	require.NoError(t, err)
	require.Equal(t, LoanClosed, closed.Status)
	require.True(t, closed.AmountPaid.Equal(dec("800")))
	require.Len(t, closed.RepaymentHistory, 2)

	august, err := f.svc.CreateRun(ctx, "h1", "2024-08", Bonus{}, "u1")
	require.NoError(t, err)
	require.Empty(t, august.Payslips[0].AdditionalDeductions)
}

func TestFinalizeSkipsLoansClosedSinceDraft(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	emp := f.employee(t, "Asha", "120000")

	loan, err := f.svc.CreateLoan(ctx, "h1", LoanRequest{EmployeeID: emp.ID, LoanAmount: dec("500"), InstallmentAmount: dec("500")})
	require.NoError(t, err)
	_, err = f.svc.ActivateLoan(ctx, "h1", loan.ID)
	require.NoError(t, err)

	june, err := f.svc.CreateRun(ctx, "h1", "2024-06", Bonus{}, "u1")
	require.NoError(t, err)
	july, err := f.svc.CreateRun(ctx, "h1", "2024-07", Bonus{}, "u1")
	require.NoError(t, err)
	_, err = f.svc.FinalizeRun(ctx, "h1", june.ID)
	require.NoError(t, err)

	finalized, err := f.svc.FinalizeRun(ctx, "h1", july.ID)
	require.NoError(t, err)
	slip := finalized.Payslips[0]
	require.Empty(t, slip.AdditionalDeductions)
	require.True(t, slip.TotalDeductions.IsZero())
	require.True(t, slip.NetPay.Equal(dec("10000")))
	require.True(t, finalized.NetTotal.Equal(dec("10000")))

	stored, err := f.svc.GetRun(ctx, "h1", july.ID)
	require.NoError(t, err)
	require.True(t, stored.NetTotal.Equal(dec("10000")))

	closed, err := f.svc.GetLoan(ctx, "h1", loan.ID)
	require.NoError(t, err)
	require.Equal(t, LoanClosed, closed.Status)
	require.True(t, closed.AmountPaid.Equal(dec("500")))
	require.Len(t, closed.RepaymentHistory, 1)
}

func TestCreateRunRejectsDuplicatePeriod(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.employee(t, "Asha", "120000")

	_, err := f.svc.CreateRun(ctx, "h1", "2024-06", Bonus{}, "u1")
	require.NoError(t, err)
	_, err = f.svc.CreateRun(ctx, "h1", "2024-06", Bonus{}, "u1")
	require.ErrorIs(t, err, ErrRunExists)
	require.ErrorIs(t, err, shared.ErrDuplicate)

	_, err = f.svc.CreateRun(ctx, "h1", "June", Bonus{}, "u1")
	require.ErrorIs(t, err, shared.ErrValidation)

	require.NoError(t, f.svc.DeleteRun(ctx, "h1", "2024-06"))
	_, err = f.svc.CreateRun(ctx, "h1", "2024-06", Bonus{}, "u1")
	require.NoError(t, err)
}

func TestCreateRunSkipsIneligibleEmployees(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.employee(t, "Asha", "120000")
	f.employee(t, "Volunteer", "0")
	_, err := f.svc.CreateEmployee(ctx, "h1", Employee{Name: "Contractor", AnnualCTC: dec("60000")})
	require.NoError(t, err)
	_, err = f.svc.CreateEmployee(ctx, "h1", Employee{Name: "Former", SalaryGroupID: f.group.ID, AnnualCTC: dec("60000"), Status: EmployeeInactive})
	require.NoError(t, err)

	run, err := f.svc.CreateRun(ctx, "h1", "2024-06", Bonus{Type: BonusFlat, Value: dec("250")}, "u1")
	require.NoError(t, err)
	require.Len(t, run.Payslips, 1)
	require.Equal(t, "Asha", run.Payslips[0].EmployeeName)
	require.True(t, run.Payslips[0].NetPay.Equal(dec("10250")))
}

func TestCreateEmployeeChecksGroupAndQuota(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.svc.CreateEmployee(ctx, "h1", Employee{Name: "Ghost", SalaryGroupID: "missing", AnnualCTC: dec("1000")})
	require.ErrorIs(t, err, shared.ErrNotFound)

	limit := tenancy.DefaultPlans()[tenancy.DefaultPlanID].Limit(tenancy.ResourceStaff)
	for i := 0; i < limit; i++ {
		f.employee(t, fmt.Sprintf("Staff %d", i), "12000")
	}
	_, err = f.svc.CreateEmployee(ctx, "h1", Employee{Name: "One too many", SalaryGroupID: f.group.ID, AnnualCTC: dec("12000")})
	require.ErrorIs(t, err, shared.ErrLimitReached)
}

func TestActivateLoanOnlyOnce(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	emp := f.employee(t, "Asha", "120000")

	_, err := f.svc.CreateLoan(ctx, "h1", LoanRequest{EmployeeID: "nobody", LoanAmount: dec("100"), InstallmentAmount: dec("10")})
	require.ErrorIs(t, err, shared.ErrNotFound)

	loan, err := f.svc.CreateLoan(ctx, "h1", LoanRequest{EmployeeID: emp.ID, LoanAmount: dec("100"), InstallmentAmount: dec("10")})
	require.NoError(t, err)
	_, err = f.svc.ActivateLoan(ctx, "h1", loan.ID)
	require.NoError(t, err)
	_, err = f.svc.ActivateLoan(ctx, "h1", loan.ID)
	require.ErrorIs(t, err, shared.ErrAlreadyFinalState)

	loans, err := f.svc.ListLoans(ctx, "h1", emp.ID)
	require.NoError(t, err)
	require.Len(t, loans, 1)
}

type fakeRenderer struct {
	html []byte
}

func (r *fakeRenderer) RenderHTML(_ context.Context, html []byte) ([]byte, error) {
	r.html = html
	return []byte("%PDF"), nil
}

func TestPayslipPDF(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	emp := f.employee(t, "Asha <RN>", "120000")
	_, err := f.svc.CreateRun(ctx, "h1", "2024-06", Bonus{}, "u1")
	require.NoError(t, err)

	renderer := &fakeRenderer{}
	pdf, err := f.svc.PayslipPDF(ctx, renderer, "h1", "City Hospital", "2024-06", emp.ID)
	require.NoError(t, err)
	require.Equal(t, "%PDF", string(pdf))
	require.True(t, bytes.Contains(renderer.html, []byte("June 2024")))
	require.True(t, bytes.Contains(renderer.html, []byte("Asha &lt;RN&gt;")))
	require.True(t, bytes.Contains(renderer.html, []byte("Net pay: 10000.00")))

	_, err = f.svc.PayslipPDF(ctx, renderer, "h1", "City Hospital", "2024-06", "nobody")
	require.ErrorIs(t, err, shared.ErrNotFound)
}
