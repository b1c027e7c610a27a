package payroll

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/carepoint-hms/carepoint/internal/docstore"
	"github.com/carepoint-hms/carepoint/internal/money"
	"github.com/carepoint-hms/carepoint/internal/shared"
	"github.com/carepoint-hms/carepoint/internal/tenancy"
)

// ErrRunExists is returned when a run for the period was already created.
var ErrRunExists = fmt.Errorf("payroll run already exists for period: %w", shared.ErrDuplicate)

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service manages employees, loans and payroll runs.
type Service struct {
	store docstore.Store
	quota tenancy.Checker
	audit AuditPort
	now   func() time.Time
}

// NewService builds Service. quota and audit may be nil.
func NewService(store docstore.Store, quota tenancy.Checker, audit AuditPort) *Service {
	return &Service{store: store, quota: quota, audit: audit, now: time.Now}
}

func (s *Service) ref(tenant, collection, id string) docstore.Ref {
	return docstore.NewRef(tenant, collection, id)
}

// CreateSalaryGroup stores a salary group.
func (s *Service) CreateSalaryGroup(ctx context.Context, tenant string, group SalaryGroup) (SalaryGroup, error) {
	group.Name = strings.TrimSpace(group.Name)
	if group.Name == "" {
		return SalaryGroup{}, shared.Invalidf("salary group name is required")
	}
	for _, c := range group.Components {
		if strings.TrimSpace(c.Name) == "" {
			return SalaryGroup{}, shared.Invalidf("component name is required")
		}
		if c.Kind != KindEarning && c.Kind != KindDeduction {
			return SalaryGroup{}, shared.Invalidf("component %s: unknown kind %q", c.Name, c.Kind)
		}
		switch c.CalcType {
		case CalcFlat, CalcPercentCTC, CalcPercentBasic:
		default:
			return SalaryGroup{}, shared.Invalidf("component %s: unknown calculation %q", c.Name, c.CalcType)
		}
		if c.Value.IsNegative() {
			return SalaryGroup{}, shared.Invalidf("component %s: value must not be negative", c.Name)
		}
	}
	group.ID = uuid.NewString()
	group.CreatedAt = s.now().UTC()
	if err := s.store.RunTx(ctx, func(ctx context.Context, tx docstore.Tx) error {
		return tx.Create(s.ref(tenant, collectionGroups, group.ID), group)
	}); err != nil {
		return SalaryGroup{}, err
	}
	s.record(ctx, tenant, "salary_group:create", "salary_group", group.ID, nil)
	return group, nil
}

// CreateEmployee adds an employee after the staff quota check.
func (s *Service) CreateEmployee(ctx context.Context, tenant string, emp Employee) (Employee, error) {
	emp.Name = strings.TrimSpace(emp.Name)
	if emp.Name == "" {
		return Employee{}, shared.Invalidf("employee name is required")
	}
	if emp.AnnualCTC.IsNegative() {
		return Employee{}, shared.Invalidf("annual CTC must not be negative")
	}
	if emp.Status == "" {
		emp.Status = EmployeeActive
	}
	if s.quota != nil {
		if err := s.quota.Check(ctx, tenant, tenancy.ResourceStaff); err != nil {
			return Employee{}, err
		}
	}
	emp.ID = uuid.NewString()
	emp.CreatedAt = s.now().UTC()
	if emp.JoinedAt.IsZero() {
		emp.JoinedAt = emp.CreatedAt
	}
	emp.AnnualCTC = money.Round2(emp.AnnualCTC)
	err := s.store.RunTx(ctx, func(ctx context.Context, tx docstore.Tx) error {
		if emp.SalaryGroupID != "" {
			if err := tx.Get(ctx, s.ref(tenant, collectionGroups, emp.SalaryGroupID), &SalaryGroup{}); err != nil {
				return notFound(err, "salary group", emp.SalaryGroupID)
			}
		}
		return tx.Create(s.ref(tenant, collectionEmployees, emp.ID), emp)
	})
	if err != nil {
		return Employee{}, err
	}
	s.record(ctx, tenant, "employee:create", "employee", emp.ID, nil)
	return emp, nil
}

// LoanRequest opens a pending loan.
type LoanRequest struct {
	EmployeeID        string          `json:"employeeId" validate:"required"`
	LoanAmount        decimal.Decimal `json:"loanAmount" validate:"gt=0"`
	InstallmentAmount decimal.Decimal `json:"installmentAmount" validate:"gt=0"`
	Note              string          `json:"note"`
}

// CreateLoan records a pending loan for an existing employee.
func (s *Service) CreateLoan(ctx context.Context, tenant string, req LoanRequest) (Loan, error) {
	if !req.LoanAmount.IsPositive() || !req.InstallmentAmount.IsPositive() {
		return Loan{}, shared.Invalidf("loan and installment amounts must be positive")
	}
	now := s.now().UTC()
	loan := Loan{
		ID:                uuid.NewString(),
		EmployeeID:        req.EmployeeID,
		LoanAmount:        money.Round2(req.LoanAmount),
		InstallmentAmount: money.Round2(req.InstallmentAmount),
		AmountPaid:        decimal.Zero,
		Status:            LoanPending,
		RepaymentHistory:  []Repayment{},
		Note:              req.Note,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	err := s.store.RunTx(ctx, func(ctx context.Context, tx docstore.Tx) error {
		if err := tx.Get(ctx, s.ref(tenant, collectionEmployees, req.EmployeeID), &Employee{}); err != nil {
			return notFound(err, "employee", req.EmployeeID)
		}
		return tx.Create(s.ref(tenant, collectionLoans, loan.ID), loan)
	})
	if err != nil {
		return Loan{}, err
	}
	s.record(ctx, tenant, "loan:create", "loan", loan.ID, map[string]any{"amount": loan.LoanAmount.String()})
	return loan, nil
}

// ActivateLoan approves a pending loan so runs start deducting it.
func (s *Service) ActivateLoan(ctx context.Context, tenant, id string) (Loan, error) {
	var loan Loan
	err := s.store.RunTx(ctx, func(ctx context.Context, tx docstore.Tx) error {
		loan = Loan{}
		if err := tx.Get(ctx, s.ref(tenant, collectionLoans, id), &loan); err != nil {
			return notFound(err, "loan", id)
		}
		if loan.Status != LoanPending {
			return fmt.Errorf("loan %s is %s: %w", id, loan.Status, shared.ErrAlreadyFinalState)
		}
		loan.Status = LoanActive
		loan.UpdatedAt = s.now().UTC()
		return tx.Set(s.ref(tenant, collectionLoans, id), loan)
	})
	if err != nil {
		return Loan{}, err
	}
	s.record(ctx, tenant, "loan:activate", "loan", id, nil)
	return loan, nil
}

// CreateRun computes a draft run for period. A second run for the same
// period is rejected before anything is written.
func (s *Service) CreateRun(ctx context.Context, tenant string, rawPeriod string, bonus Bonus, createdBy string) (Run, error) {
	period, err := shared.ParsePeriod(rawPeriod)
	if err != nil {
		return Run{}, err
	}
	switch bonus.Type {
	case "", BonusFlat, BonusPercentCTC:
	default:
		return Run{}, shared.Invalidf("unknown bonus type %q", bonus.Type)
	}
	if bonus.Value.IsNegative() {
		return Run{}, shared.Invalidf("bonus must not be negative")
	}
	runID := period.String()
	if err := s.store.Get(ctx, s.ref(tenant, collectionRuns, runID), &Run{}); err == nil {
		return Run{}, ErrRunExists
	} else if !errors.Is(err, docstore.ErrNotFound) {
		return Run{}, err
	}

	run := Run{
		ID:        runID,
		Period:    period,
		Status:    RunDraft,
		Bonus:     bonus,
		CreatedBy: createdBy,
		CreatedAt: s.now().UTC(),
	}
	err = s.store.RunTx(ctx, func(ctx context.Context, tx docstore.Tx) error {
		employees, err := queryAll[Employee](ctx, tx, docstore.Query{Tenant: tenant, Collection: collectionEmployees, OrderBy: "name"}.
			Where("status", docstore.OpEq, string(EmployeeActive)))
		if err != nil {
			return err
		}
		loans, err := queryAll[Loan](ctx, tx, docstore.Query{Tenant: tenant, Collection: collectionLoans}.
			Where("status", docstore.OpEq, string(LoanActive)))
		if err != nil {
			return err
		}
		groups := make(map[string]SalaryGroup)
		run.Payslips = make([]Payslip, 0, len(employees))
		run.NetTotal = decimal.Zero
		for _, emp := range employees {
			if !Eligible(emp) {
				continue
			}
			group, ok := groups[emp.SalaryGroupID]
			if !ok {
				if err := tx.Get(ctx, s.ref(tenant, collectionGroups, emp.SalaryGroupID), &group); err != nil {
					return notFound(err, "salary group", emp.SalaryGroupID)
				}
				groups[emp.SalaryGroupID] = group
			}
			slip := ComputePayslip(emp, group, loans, bonus, period)
			run.Payslips = append(run.Payslips, slip)
			run.NetTotal = run.NetTotal.Add(slip.NetPay)
		}
		return tx.Create(s.ref(tenant, collectionRuns, run.ID), run)
	})
	if errors.Is(err, docstore.ErrAlreadyExists) {
		return Run{}, ErrRunExists
	}
	if err != nil {
		return Run{}, err
	}
	s.record(ctx, tenant, "payroll:create", "payroll_run", run.ID, map[string]any{"payslips": len(run.Payslips), "net": run.NetTotal.String()})
	return run, nil
}

// FinalizeRun applies every loan repayment line of the run and marks it
// finalized, all in one transaction. Repayment lines are re-checked against
// the loans as they are now: a line is capped at the remaining balance and
// dropped when the loan is no longer active, and the affected payslips and
// the run total are re-derived.
func (s *Service) FinalizeRun(ctx context.Context, tenant, runID string) (Run, error) {
	var run Run
	err := s.store.RunTx(ctx, func(ctx context.Context, tx docstore.Tx) error {
		run = Run{}
		if err := tx.Get(ctx, s.ref(tenant, collectionRuns, runID), &run); err != nil {
			return notFound(err, "payroll run", runID)
		}
		if run.Status == RunFinalized {
			return fmt.Errorf("payroll run %s: %w", runID, shared.ErrAlreadyFinalState)
		}
		now := s.now().UTC()
		loans := make(map[string]*Loan)
		touched := make(map[string]bool)
		var order []string
		run.NetTotal = decimal.Zero
		for i := range run.Payslips {
			slip := &run.Payslips[i]
			kept := slip.AdditionalDeductions[:0]
			for _, line := range slip.AdditionalDeductions {
				if line.LoanID == "" {
					kept = append(kept, line)
					continue
				}
				loan, ok := loans[line.LoanID]
				if !ok {
					loan = &Loan{}
					if err := tx.Get(ctx, s.ref(tenant, collectionLoans, line.LoanID), loan); err != nil {
						return notFound(err, "loan", line.LoanID)
					}
					loans[line.LoanID] = loan
				}
				if loan.Status != LoanActive {
					continue
				}
				amount := money.Round2(decimal.Min(line.Amount, loan.Remaining()))
				if !amount.IsPositive() {
					continue
				}
				line.Amount = amount
				kept = append(kept, line)
				if !touched[line.LoanID] {
					touched[line.LoanID] = true
					order = append(order, line.LoanID)
				}
				loan.AmountPaid = money.Round2(loan.AmountPaid.Add(amount))
				loan.RepaymentHistory = append(loan.RepaymentHistory, Repayment{Amount: amount, Period: run.Period, RunID: run.ID, Date: now})
				if loan.AmountPaid.GreaterThanOrEqual(loan.LoanAmount) {
					loan.Status = LoanClosed
				}
				loan.UpdatedAt = now
			}
			slip.AdditionalDeductions = kept
			retotal(slip)
			run.NetTotal = run.NetTotal.Add(slip.NetPay)
		}
		run.NetTotal = money.Round2(run.NetTotal)
		for _, id := range order {
			if err := tx.Set(s.ref(tenant, collectionLoans, id), loans[id]); err != nil {
				return err
			}
		}
		run.Status = RunFinalized
		run.FinalizedAt = &now
		return tx.Set(s.ref(tenant, collectionRuns, run.ID), run)
	})
	if err != nil {
		return Run{}, err
	}
	s.record(ctx, tenant, "payroll:finalize", "payroll_run", run.ID, map[string]any{"net": run.NetTotal.String()})
	return run, nil
}

// DeleteRun removes a draft run.
func (s *Service) DeleteRun(ctx context.Context, tenant, runID string) error {
	err := s.store.RunTx(ctx, func(ctx context.Context, tx docstore.Tx) error {
		var run Run
		if err := tx.Get(ctx, s.ref(tenant, collectionRuns, runID), &run); err != nil {
			return notFound(err, "payroll run", runID)
		}
		if run.Status != RunDraft {
			return fmt.Errorf("payroll run %s is %s: %w", runID, run.Status, shared.ErrAlreadyFinalState)
		}
		return tx.Delete(s.ref(tenant, collectionRuns, runID))
	})
	if err != nil {
		return err
	}
	s.record(ctx, tenant, "payroll:delete", "payroll_run", runID, nil)
	return nil
}

// GetRun loads a run.
func (s *Service) GetRun(ctx context.Context, tenant, runID string) (Run, error) {
	var run Run
	if err := s.store.Get(ctx, s.ref(tenant, collectionRuns, runID), &run); err != nil {
		return Run{}, notFound(err, "payroll run", runID)
	}
	return run, nil
}

// Payslip returns the payslip of one employee in a run.
func (s *Service) Payslip(ctx context.Context, tenant, runID, employeeID string) (Payslip, error) {
	run, err := s.GetRun(ctx, tenant, runID)
	if err != nil {
		return Payslip{}, err
	}
	for _, slip := range run.Payslips {
		if slip.EmployeeID == employeeID {
			return slip, nil
		}
	}
	return Payslip{}, shared.NotFoundf("payslip of employee %s in run %s", employeeID, runID)
}

// ListRuns returns runs, newest period first.
func (s *Service) ListRuns(ctx context.Context, tenant string) ([]Run, error) {
	return queryAll[Run](ctx, s.store, docstore.Query{Tenant: tenant, Collection: collectionRuns, OrderBy: "period", Desc: true})
}

// ListEmployees returns employees by name.
func (s *Service) ListEmployees(ctx context.Context, tenant string) ([]Employee, error) {
	return queryAll[Employee](ctx, s.store, docstore.Query{Tenant: tenant, Collection: collectionEmployees, OrderBy: "name"})
}

// GetLoan loads a loan.
func (s *Service) GetLoan(ctx context.Context, tenant, id string) (Loan, error) {
	var loan Loan
	if err := s.store.Get(ctx, s.ref(tenant, collectionLoans, id), &loan); err != nil {
		return Loan{}, notFound(err, "loan", id)
	}
	return loan, nil
}

// ListLoans returns the loans of an employee, or all loans when employeeID is empty.
func (s *Service) ListLoans(ctx context.Context, tenant, employeeID string) ([]Loan, error) {
	q := docstore.Query{Tenant: tenant, Collection: collectionLoans, OrderBy: "createdAt", Desc: true}
	if employeeID != "" {
		q = q.Where("employeeId", docstore.OpEq, employeeID)
	}
	return queryAll[Loan](ctx, s.store, q)
}

type querier interface {
	Query(ctx context.Context, q docstore.Query) ([]docstore.Snapshot, error)
}

func queryAll[T any](ctx context.Context, qr querier, q docstore.Query) ([]T, error) {
	snaps, err := qr.Query(ctx, q)
	if err != nil {
		return nil, err
	}
	out := make([]T, 0, len(snaps))
	for _, snap := range snaps {
		var v T
		if err := snap.Decode(&v); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

func notFound(err error, entity, id string) error {
	if errors.Is(err, docstore.ErrNotFound) {
		return shared.NotFoundf("%s %s", entity, id)
	}
	return err
}

func (s *Service) record(ctx context.Context, tenant, action, entity, id string, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{TenantID: tenant, Action: action, Entity: entity, EntityID: id, Meta: meta})
}
