// Package payroll derives monthly payslips from salary groups and applies
// loan installments when a run is finalized.
package payroll

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/carepoint-hms/carepoint/internal/shared"
)

const (
	collectionEmployees = "employees"
	collectionGroups    = "salary_groups"
	collectionLoans     = "loans"
	collectionRuns      = "payroll_runs"
)

// BasicPayName identifies the component other components may be a
// percentage of. Matching ignores case.
const BasicPayName = "Basic Pay"

// ComponentKind separates earnings from deductions.
type ComponentKind string

const (
	KindEarning   ComponentKind = "earning"
	KindDeduction ComponentKind = "deduction"
)

// CalcType selects how a component amount is derived.
type CalcType string

const (
	CalcFlat         CalcType = "flat"
	CalcPercentCTC   CalcType = "percent_ctc"
	CalcPercentBasic CalcType = "percent_basic"
)

// Component is one salary group line.
type Component struct {
	Name     string          `json:"name" validate:"required"`
	Kind     ComponentKind   `json:"kind" validate:"oneof=earning deduction"`
	CalcType CalcType        `json:"calcType" validate:"oneof=flat percent_ctc percent_basic"`
	Value    decimal.Decimal `json:"value" validate:"gte=0"`
}

// SalaryGroup is an ordered list of components shared by employees.
type SalaryGroup struct {
	ID         string      `json:"id"`
	Name       string      `json:"name" validate:"required,max=200"`
	Components []Component `json:"components" validate:"dive"`
	CreatedAt  time.Time   `json:"createdAt"`
}

// EmployeeStatus marks whether an employee is paid.
type EmployeeStatus string

const (
	EmployeeActive   EmployeeStatus = "active"
	EmployeeInactive EmployeeStatus = "inactive"
)

// Employee is a staff member on the payroll.
type Employee struct {
	ID            string          `json:"id"`
	Name          string          `json:"name" validate:"required,max=200"`
	Email         string          `json:"email" validate:"omitempty,email"`
	Designation   string          `json:"designation"`
	SalaryGroupID string          `json:"salaryGroupId"`
	AnnualCTC     decimal.Decimal `json:"annualCtc" validate:"gte=0"`
	Status        EmployeeStatus  `json:"status" validate:"omitempty,oneof=active inactive"`
	JoinedAt      time.Time       `json:"joinedAt"`
	CreatedAt     time.Time       `json:"createdAt"`
}

// LoanStatus tracks a loan from approval to full repayment.
type LoanStatus string

const (
	LoanPending LoanStatus = "pending"
	LoanActive  LoanStatus = "active"
	LoanClosed  LoanStatus = "closed"
)

// Repayment is one installment applied by a finalized run.
type Repayment struct {
	Amount decimal.Decimal `json:"amount"`
	Period shared.Period   `json:"period"`
	RunID  string          `json:"runId"`
	Date   time.Time       `json:"date"`
}

// Loan is an employee advance repaid through payroll deductions.
type Loan struct {
	ID                string          `json:"id"`
	EmployeeID        string          `json:"employeeId"`
	LoanAmount        decimal.Decimal `json:"loanAmount"`
	InstallmentAmount decimal.Decimal `json:"installmentAmount"`
	AmountPaid        decimal.Decimal `json:"amountPaid"`
	Status            LoanStatus      `json:"status"`
	RepaymentHistory  []Repayment     `json:"repaymentHistory"`
	Note              string          `json:"note,omitempty"`
	CreatedAt         time.Time       `json:"createdAt"`
	UpdatedAt         time.Time       `json:"updatedAt"`
}

// Remaining returns the unpaid balance, never negative.
func (l Loan) Remaining() decimal.Decimal {
	rest := l.LoanAmount.Sub(l.AmountPaid)
	if rest.IsNegative() {
		return decimal.Zero
	}
	return rest
}

// BonusType selects how the period bonus is computed.
type BonusType string

const (
	BonusFlat       BonusType = "flat"
	BonusPercentCTC BonusType = "percent_ctc"
)

// Bonus is an optional period-wide extra earning.
type Bonus struct {
	Type  BonusType       `json:"type" validate:"omitempty,oneof=flat percent_ctc"`
	Value decimal.Decimal `json:"value" validate:"gte=0"`
}

// Line is one payslip amount. LoanID links repayment deductions to the loan.
type Line struct {
	Name   string          `json:"name"`
	Amount decimal.Decimal `json:"amount"`
	LoanID string          `json:"loanId,omitempty"`
}

// Payslip is the computed pay of one employee for one period.
type Payslip struct {
	EmployeeID           string          `json:"employeeId"`
	EmployeeName         string          `json:"employeeName"`
	Designation          string          `json:"designation,omitempty"`
	Period               shared.Period   `json:"period"`
	MonthlyCTC           decimal.Decimal `json:"monthlyCtc"`
	Earnings             []Line          `json:"earnings"`
	Deductions           []Line          `json:"deductions"`
	AdditionalEarnings   []Line          `json:"additionalEarnings"`
	AdditionalDeductions []Line          `json:"additionalDeductions"`
	TotalEarnings        decimal.Decimal `json:"totalEarnings"`
	TotalDeductions      decimal.Decimal `json:"totalDeductions"`
	GrossSalary          decimal.Decimal `json:"grossSalary"`
	NetPay               decimal.Decimal `json:"netPay"`
}

// RunStatus is draft until finalized.
type RunStatus string

const (
	RunDraft     RunStatus = "draft"
	RunFinalized RunStatus = "finalized"
)

// Run holds the payslips of one period. Its id is the period.
type Run struct {
	ID          string          `json:"id"`
	Period      shared.Period   `json:"period"`
	Status      RunStatus       `json:"status"`
	Bonus       Bonus           `json:"bonus"`
	Payslips    []Payslip       `json:"payslips"`
	NetTotal    decimal.Decimal `json:"netTotal"`
	CreatedBy   string          `json:"createdBy,omitempty"`
	CreatedAt   time.Time       `json:"createdAt"`
	FinalizedAt *time.Time      `json:"finalizedAt,omitempty"`
}
