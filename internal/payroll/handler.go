package payroll

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/carepoint-hms/carepoint/internal/platform/httpx"
	"github.com/carepoint-hms/carepoint/internal/rbac"
	"github.com/carepoint-hms/carepoint/internal/shared"
	"github.com/carepoint-hms/carepoint/report"
)

// Handler exposes payroll endpoints.
type Handler struct {
	logger       *slog.Logger
	service      *Service
	renderer     Renderer
	organization string
	rbac         rbac.Middleware
	validator    *validator.Validate
}

// NewHandler builds the payroll handler. renderer may be nil, in which case
// payslip PDFs are unavailable.
func NewHandler(logger *slog.Logger, service *Service, renderer Renderer, organization string, rbac rbac.Middleware) *Handler {
	return &Handler{
		logger:       logger,
		service:      service,
		renderer:     renderer,
		organization: organization,
		rbac:         rbac,
		validator:    httpx.NewValidator(),
	}
}

// MountRoutes registers payroll routes.
func (h *Handler) MountRoutes(r chi.Router) {
	view := h.rbac.Require(rbac.ResourcePayroll, rbac.LevelView)
	edit := h.rbac.Require(rbac.ResourcePayroll, rbac.LevelEdit)
	manage := h.rbac.Require(rbac.ResourcePayroll, rbac.LevelManage)

	r.Route("/payroll", func(r chi.Router) {
		r.With(view).Get("/employees", h.tenant(h.listEmployees))
		r.With(edit).Post("/employees", h.tenant(h.createEmployee))
		r.With(manage).Post("/salary-groups", h.tenant(h.createSalaryGroup))

		r.With(view).Get("/loans", h.tenant(h.listLoans))
		r.With(edit).Post("/loans", h.tenant(h.createLoan))
		r.With(manage).Post("/loans/{id}/activate", h.tenant(h.activateLoan))

		r.With(view).Get("/runs", h.tenant(h.listRuns))
		r.With(manage).Post("/runs", h.tenant(h.createRun))
		r.With(view).Get("/runs/{id}", h.tenant(h.showRun))
		r.With(manage).Post("/runs/{id}/finalize", h.tenant(h.finalizeRun))
		r.With(manage).Delete("/runs/{id}", h.tenant(h.deleteRun))
		r.With(view).Get("/runs/{id}/payslips/{employeeID}", h.tenant(h.showPayslip))
		r.With(view).Get("/runs/{id}/payslips/{employeeID}/pdf", h.tenant(h.payslipPDF))
	})
}

type tenantFunc func(w http.ResponseWriter, r *http.Request, tenant string)

func (h *Handler) tenant(fn tenantFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenant, err := rbac.TenantOf(r)
		if err != nil {
			httpx.RespondError(w, err)
			return
		}
		fn(w, r, tenant)
	}
}

func (h *Handler) fail(w http.ResponseWriter, msg string, err error) {
	h.logger.Warn(msg, slog.Any("error", err))
	httpx.RespondError(w, err)
}

func (h *Handler) listEmployees(w http.ResponseWriter, r *http.Request, tenant string) {
	employees, err := h.service.ListEmployees(r.Context(), tenant)
	if err != nil {
		h.fail(w, "list employees", err)
		return
	}
	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	perPage, _ := strconv.Atoi(q.Get("perPage"))
	items, meta := shared.Paginate(employees, page, perPage)
	httpx.JSON(w, http.StatusOK, map[string]any{"employees": items, "pagination": meta})
}

func (h *Handler) createEmployee(w http.ResponseWriter, r *http.Request, tenant string) {
	var emp Employee
	if err := httpx.Bind(r, h.validator, &emp); err != nil {
		httpx.RespondError(w, err)
		return
	}
	created, err := h.service.CreateEmployee(r.Context(), tenant, emp)
	if err != nil {
		h.fail(w, "create employee", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, created)
}

func (h *Handler) createSalaryGroup(w http.ResponseWriter, r *http.Request, tenant string) {
	var group SalaryGroup
	if err := httpx.Bind(r, h.validator, &group); err != nil {
		httpx.RespondError(w, err)
		return
	}
	created, err := h.service.CreateSalaryGroup(r.Context(), tenant, group)
	if err != nil {
		h.fail(w, "create salary group", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, created)
}

func (h *Handler) listLoans(w http.ResponseWriter, r *http.Request, tenant string) {
	loans, err := h.service.ListLoans(r.Context(), tenant, r.URL.Query().Get("employee_id"))
	if err != nil {
		h.fail(w, "list loans", err)
		return
	}
	httpx.JSON(w, http.StatusOK, loans)
}

func (h *Handler) createLoan(w http.ResponseWriter, r *http.Request, tenant string) {
	var req LoanRequest
	if err := httpx.Bind(r, h.validator, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	loan, err := h.service.CreateLoan(r.Context(), tenant, req)
	if err != nil {
		h.fail(w, "create loan", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, loan)
}

func (h *Handler) activateLoan(w http.ResponseWriter, r *http.Request, tenant string) {
	loan, err := h.service.ActivateLoan(r.Context(), tenant, chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, "activate loan", err)
		return
	}
	httpx.JSON(w, http.StatusOK, loan)
}

type runRequest struct {
	Period string `json:"period" validate:"required"`
	Bonus  Bonus  `json:"bonus"`
}

func (h *Handler) listRuns(w http.ResponseWriter, r *http.Request, tenant string) {
	runs, err := h.service.ListRuns(r.Context(), tenant)
	if err != nil {
		h.fail(w, "list payroll runs", err)
		return
	}
	httpx.JSON(w, http.StatusOK, runs)
}

func (h *Handler) createRun(w http.ResponseWriter, r *http.Request, tenant string) {
	var req runRequest
	if err := httpx.Bind(r, h.validator, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	var actor string
	if p, ok := shared.PrincipalFromContext(r.Context()); ok {
		actor = p.UserID
	}
	run, err := h.service.CreateRun(r.Context(), tenant, req.Period, req.Bonus, actor)
	if err != nil {
		h.fail(w, "create payroll run", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, run)
}

func (h *Handler) showRun(w http.ResponseWriter, r *http.Request, tenant string) {
	run, err := h.service.GetRun(r.Context(), tenant, chi.URLParam(r, "id"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, run)
}

func (h *Handler) finalizeRun(w http.ResponseWriter, r *http.Request, tenant string) {
	run, err := h.service.FinalizeRun(r.Context(), tenant, chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, "finalize payroll run", err)
		return
	}
	httpx.JSON(w, http.StatusOK, run)
}

func (h *Handler) deleteRun(w http.ResponseWriter, r *http.Request, tenant string) {
	if err := h.service.DeleteRun(r.Context(), tenant, chi.URLParam(r, "id")); err != nil {
		h.fail(w, "delete payroll run", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) showPayslip(w http.ResponseWriter, r *http.Request, tenant string) {
	slip, err := h.service.Payslip(r.Context(), tenant, chi.URLParam(r, "id"), chi.URLParam(r, "employeeID"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, slip)
}

func (h *Handler) payslipPDF(w http.ResponseWriter, r *http.Request, tenant string) {
	if h.renderer == nil {
		http.Error(w, "pdf rendering is not configured", http.StatusServiceUnavailable)
		return
	}
	runID, employeeID := chi.URLParam(r, "id"), chi.URLParam(r, "employeeID")
	pdf, err := h.service.PayslipPDF(r.Context(), h.renderer, tenant, h.organization, runID, employeeID)
	if err != nil {
		h.fail(w, "render payslip", err)
		return
	}
	report.WritePDF(w, "payslip-"+runID+"-"+employeeID+".pdf", pdf)
}
