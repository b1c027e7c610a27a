package payroll

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestComputePayslipFillsSpecialAllowance(t *testing.T) {
	emp := Employee{ID: "e1", Name: "Asha", SalaryGroupID: "g1", AnnualCTC: dec("120000"), Status: EmployeeActive}
	group := SalaryGroup{ID: "g1", Components: []Component{
		{Name: "HRA", Kind: KindEarning, CalcType: CalcPercentBasic, Value: dec("40")},
		{Name: "basic pay", Kind: KindEarning, CalcType: CalcPercentCTC, Value: dec("50")},
		{Name: "PF", Kind: KindDeduction, CalcType: CalcFlat, Value: dec("600")},
	}}

	slip := ComputePayslip(emp, group, nil, Bonus{}, "2024-06")
	require.True(t, slip.MonthlyCTC.Equal(dec("10000")))
	require.Len(t, slip.Earnings, 3)
	require.Equal(t, "HRA", slip.Earnings[0].Name)
	require.True(t, slip.Earnings[0].Amount.Equal(dec("2000")), "HRA follows basic pay")
	require.True(t, slip.Earnings[1].Amount.Equal(dec("5000")))
	require.Equal(t, specialAllowanceName, slip.Earnings[2].Name)
	require.True(t, slip.Earnings[2].Amount.Equal(dec("3000")))
	require.True(t, slip.GrossSalary.Equal(dec("10000")))
	require.True(t, slip.TotalDeductions.Equal(dec("600")))
	require.True(t, slip.NetPay.Equal(dec("9400")))
}

func TestComputePayslipBonusAndLoans(t *testing.T) {
	emp := Employee{ID: "e1", Name: "Asha", SalaryGroupID: "g1", AnnualCTC: dec("120000"), Status: EmployeeActive}
	group := SalaryGroup{ID: "g1", Components: []Component{
		{Name: BasicPayName, Kind: KindEarning, CalcType: CalcPercentBasic, Value: dec("60")},
	}}
	loans := []Loan{
		{ID: "l1", EmployeeID: "e1", LoanAmount: dec("1000"), InstallmentAmount: dec("400"), AmountPaid: dec("800"), Status: LoanActive},
		{ID: "l2", EmployeeID: "e1", LoanAmount: dec("1000"), InstallmentAmount: dec("400"), Status: LoanPending},
		{ID: "l3", EmployeeID: "e2", LoanAmount: dec("1000"), InstallmentAmount: dec("400"), Status: LoanActive},
	}

	slip := ComputePayslip(emp, group, loans, Bonus{Type: BonusPercentCTC, Value: dec("10")}, "2024-06")
	require.True(t, slip.Earnings[0].Amount.Equal(dec("6000")), "percent_basic on basic pay reads as percent of CTC")
	require.Len(t, slip.AdditionalEarnings, 1)
	require.True(t, slip.AdditionalEarnings[0].Amount.Equal(dec("1000")))
	require.Len(t, slip.AdditionalDeductions, 1)
	require.Equal(t, "l1", slip.AdditionalDeductions[0].LoanID)
	require.True(t, slip.AdditionalDeductions[0].Amount.Equal(dec("200")), "installment is capped at the remaining balance")
	require.True(t, slip.GrossSalary.Equal(dec("11000")))
	require.True(t, slip.NetPay.Equal(dec("10800")))
}

func TestEligible(t *testing.T) {
	base := Employee{SalaryGroupID: "g1", AnnualCTC: dec("1"), Status: EmployeeActive}
	require.True(t, Eligible(base))

	noGroup := base
	noGroup.SalaryGroupID = ""
	require.False(t, Eligible(noGroup))

	inactive := base
	inactive.Status = EmployeeInactive
	require.False(t, Eligible(inactive))

	unpaid := base
	unpaid.AnnualCTC = decimal.Zero
	require.False(t, Eligible(unpaid))
}
