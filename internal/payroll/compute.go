package payroll

import (
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/text/cases"

	"github.com/carepoint-hms/carepoint/internal/money"
	"github.com/carepoint-hms/carepoint/internal/shared"
)

const (
	specialAllowanceName = "Special Allowance"
	bonusName            = "Bonus"
	loanRepaymentName    = "Loan Repayment"
)

var (
	twelve   = decimal.NewFromInt(12)
	basicKey = cases.Fold().String(BasicPayName)
)

// isBasicPay folds case per call; a Caser must not be shared across goroutines.
func isBasicPay(name string) bool {
	return cases.Fold().String(strings.TrimSpace(name)) == basicKey
}

// Eligible reports whether emp gets a payslip: active, in a salary group and
// with a positive annual CTC.
func Eligible(emp Employee) bool {
	return emp.Status == EmployeeActive && emp.SalaryGroupID != "" && emp.AnnualCTC.IsPositive()
}

// ComputePayslip derives the payslip of emp for period. Basic Pay is
// computed first so percent_basic components can use it. Only active loans
// of emp produce repayment lines.
func ComputePayslip(emp Employee, group SalaryGroup, loans []Loan, bonus Bonus, period shared.Period) Payslip {
	monthly := money.Round2(emp.AnnualCTC.Div(twelve))
	slip := Payslip{
		EmployeeID:           emp.ID,
		EmployeeName:         emp.Name,
		Designation:          emp.Designation,
		Period:               period,
		MonthlyCTC:           monthly,
		Earnings:             []Line{},
		Deductions:           []Line{},
		AdditionalEarnings:   []Line{},
		AdditionalDeductions: []Line{},
	}

	basic := decimal.Zero
	basicIdx := -1
	for i, c := range group.Components {
		if isBasicPay(c.Name) {
			basicIdx = i
			// percent_basic on Basic Pay itself has nothing to refer to and is read as percent of CTC.
			basic = componentAmount(c, monthly, monthly)
			break
		}
	}

	for i, c := range group.Components {
		amount := basic
		if i != basicIdx {
			amount = componentAmount(c, monthly, basic)
		}
		line := Line{Name: c.Name, Amount: amount}
		if c.Kind == KindDeduction {
			slip.Deductions = append(slip.Deductions, line)
			continue
		}
		slip.Earnings = append(slip.Earnings, line)
	}

	if gap := monthly.Sub(sumLines(slip.Earnings)); gap.IsPositive() {
		slip.Earnings = append(slip.Earnings, Line{Name: specialAllowanceName, Amount: money.Round2(gap)})
	}

	if amount := bonusAmount(bonus, monthly); amount.IsPositive() {
		slip.AdditionalEarnings = append(slip.AdditionalEarnings, Line{Name: bonusName, Amount: amount})
	}

	for _, loan := range loans {
		if loan.EmployeeID != emp.ID || loan.Status != LoanActive {
			continue
		}
		installment := decimal.Min(loan.InstallmentAmount, loan.Remaining())
		if !installment.IsPositive() {
			continue
		}
		slip.AdditionalDeductions = append(slip.AdditionalDeductions, Line{
			Name:   loanRepaymentName,
			Amount: money.Round2(installment),
			LoanID: loan.ID,
		})
	}

	retotal(&slip)
	return slip
}

// retotal derives the payslip totals from its lines.
func retotal(slip *Payslip) {
	slip.TotalEarnings = sumLines(slip.Earnings)
	slip.GrossSalary = money.Round2(slip.TotalEarnings.Add(sumLines(slip.AdditionalEarnings)))
	slip.TotalDeductions = money.Round2(sumLines(slip.Deductions).Add(sumLines(slip.AdditionalDeductions)))
	slip.NetPay = money.Round2(slip.GrossSalary.Sub(slip.TotalDeductions))
}

func componentAmount(c Component, monthly, basic decimal.Decimal) decimal.Decimal {
	switch c.CalcType {
	case CalcPercentCTC:
		return money.Percent(monthly, c.Value)
	case CalcPercentBasic:
		return money.Percent(basic, c.Value)
	default:
		return money.Round2(c.Value)
	}
}

func bonusAmount(b Bonus, monthly decimal.Decimal) decimal.Decimal {
	switch b.Type {
	case BonusFlat:
		return money.Round2(b.Value)
	case BonusPercentCTC:
		return money.Percent(monthly, b.Value)
	default:
		return decimal.Zero
	}
}

func sumLines(lines []Line) decimal.Decimal {
	total := decimal.Zero
	for _, l := range lines {
		total = total.Add(l.Amount)
	}
	return money.Round2(total)
}
