package ledger

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"
	"github.com/go-playground/validator/v10"

	"github.com/carepoint-hms/carepoint/internal/platform/httpx"
	"github.com/carepoint-hms/carepoint/internal/rbac"
	"github.com/carepoint-hms/carepoint/internal/shared"
)

// IdempotencyHeader deduplicates payment submissions.
const IdempotencyHeader = "Idempotency-Key"

// Handler manages billing endpoints.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	rbac      rbac.Middleware
	validator *validator.Validate
	// PaymentLimit caps payment mutations per user per minute. Zero disables it.
	PaymentLimit int
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, rbac rbac.Middleware) *Handler {
	return &Handler{logger: logger, service: service, rbac: rbac, validator: httpx.NewValidator(), PaymentLimit: 60}
}

type route struct {
	prefix    string
	kind      Kind
	resource  rbac.Resource
	documents bool
}

var routes = []route{
	{prefix: "/invoices", kind: KindInvoice, resource: rbac.ResourceBilling, documents: true},
	{prefix: "/expenses", kind: KindExpense, resource: rbac.ResourceBilling, documents: true},
	{prefix: "/pos-sales", kind: KindPOSSale, resource: rbac.ResourcePOS},
	{prefix: "/stock-orders", kind: KindStockOrder, resource: rbac.ResourceInventory},
}

// MountRoutes registers billing routes. POS sales and stock orders only
// expose their payment sub-routes here.
func (h *Handler) MountRoutes(r chi.Router) {
	for _, rt := range routes {
		rt := rt
		view := h.rbac.Require(rt.resource, rbac.LevelView)
		edit := h.rbac.Require(rt.resource, rbac.LevelEdit)
		r.Route(rt.prefix, func(r chi.Router) {
			if rt.documents {
				r.With(view).Get("/", h.list(rt.kind))
				r.With(edit).Post("/", h.create(rt.kind))
				r.With(view).Get("/{id}", h.show(rt.kind))
				r.With(edit).Put("/{id}/totals", h.retotal(rt.kind))
			}
			r.Group(func(r chi.Router) {
				r.Use(edit)
				if h.PaymentLimit > 0 {
					r.Use(httprate.Limit(h.PaymentLimit, time.Minute, httprate.WithKeyFuncs(paymentKey)))
				}
				r.Post("/{id}/payments", h.addPayment(rt.kind))
				r.Put("/{id}/payments/{paymentID}", h.editPayment(rt.kind))
				r.Delete("/{id}/payments/{paymentID}", h.deletePayment(rt.kind))
			})
		})
	}
	r.With(h.rbac.Require(rbac.ResourceReports, rbac.LevelView)).Get("/billing/aging", h.aging)
}

func paymentKey(r *http.Request) (string, error) {
	if p, ok := shared.PrincipalFromContext(r.Context()); ok {
		return p.TenantID + ":" + p.UserID, nil
	}
	return httprate.KeyByIP(r)
}

func (h *Handler) list(kind Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenant, err := rbac.TenantOf(r)
		if err != nil {
			httpx.RespondError(w, err)
			return
		}
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		docs, err := h.service.List(r.Context(), tenant, kind, ListFilter{
			Status:    PaymentStatus(r.URL.Query().Get("status")),
			PatientID: r.URL.Query().Get("patient_id"),
			Limit:     limit,
		})
		if err != nil {
			h.logger.Error("list documents", slog.Any("error", err), slog.String("kind", string(kind)))
			httpx.RespondError(w, err)
			return
		}
		httpx.JSON(w, http.StatusOK, docs)
	}
}

func (h *Handler) create(kind Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenant, err := rbac.TenantOf(r)
		if err != nil {
			httpx.RespondError(w, err)
			return
		}
		var input DocumentInput
		if err := httpx.Bind(r, h.validator, &input); err != nil {
			httpx.RespondError(w, err)
			return
		}
		if p, ok := shared.PrincipalFromContext(r.Context()); ok {
			input.CreatedBy = p.UserID
		}
		doc, err := h.service.CreateDocument(r.Context(), tenant, kind, input)
		if err != nil {
			h.logger.Error("create document", slog.Any("error", err), slog.String("kind", string(kind)))
			httpx.RespondError(w, err)
			return
		}
		httpx.JSON(w, http.StatusCreated, doc)
	}
}

func (h *Handler) show(kind Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenant, err := rbac.TenantOf(r)
		if err != nil {
			httpx.RespondError(w, err)
			return
		}
		doc, err := h.service.Get(r.Context(), tenant, kind, chi.URLParam(r, "id"))
		if err != nil {
			httpx.RespondError(w, err)
			return
		}
		httpx.JSON(w, http.StatusOK, doc)
	}
}

func (h *Handler) retotal(kind Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenant, err := rbac.TenantOf(r)
		if err != nil {
			httpx.RespondError(w, err)
			return
		}
		var input RetotalInput
		if err := httpx.Bind(r, h.validator, &input); err != nil {
			httpx.RespondError(w, err)
			return
		}
		doc, err := h.service.Retotal(r.Context(), tenant, kind, chi.URLParam(r, "id"), input)
		if err != nil {
			h.logger.Error("retotal document", slog.Any("error", err), slog.String("kind", string(kind)))
			httpx.RespondError(w, err)
			return
		}
		httpx.JSON(w, http.StatusOK, doc)
	}
}

func (h *Handler) addPayment(kind Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenant, err := rbac.TenantOf(r)
		if err != nil {
			httpx.RespondError(w, err)
			return
		}
		var p Payment
		if err := httpx.Bind(r, h.validator, &p); err != nil {
			httpx.RespondError(w, err)
			return
		}
		p.ID = ""
		result, err := h.service.AddPayment(r.Context(), tenant, kind, chi.URLParam(r, "id"), p, r.Header.Get(IdempotencyHeader))
		if err != nil {
			h.logger.Warn("add payment", slog.Any("error", err), slog.String("kind", string(kind)))
			httpx.RespondError(w, err)
			return
		}
		httpx.JSON(w, http.StatusCreated, result)
	}
}

func (h *Handler) editPayment(kind Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenant, err := rbac.TenantOf(r)
		if err != nil {
			httpx.RespondError(w, err)
			return
		}
		var p Payment
		if err := httpx.Bind(r, h.validator, &p); err != nil {
			httpx.RespondError(w, err)
			return
		}
		p.ID = chi.URLParam(r, "paymentID")
		result, err := h.service.EditPayment(r.Context(), tenant, kind, chi.URLParam(r, "id"), p)
		if err != nil {
			h.logger.Warn("edit payment", slog.Any("error", err), slog.String("kind", string(kind)))
			httpx.RespondError(w, err)
			return
		}
		httpx.JSON(w, http.StatusOK, result)
	}
}

func (h *Handler) deletePayment(kind Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenant, err := rbac.TenantOf(r)
		if err != nil {
			httpx.RespondError(w, err)
			return
		}
		result, err := h.service.DeletePayment(r.Context(), tenant, kind, chi.URLParam(r, "id"), chi.URLParam(r, "paymentID"))
		if err != nil {
			h.logger.Warn("delete payment", slog.Any("error", err), slog.String("kind", string(kind)))
			httpx.RespondError(w, err)
			return
		}
		httpx.JSON(w, http.StatusOK, result)
	}
}

func (h *Handler) aging(w http.ResponseWriter, r *http.Request) {
	tenant, err := rbac.TenantOf(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	kind := Kind(r.URL.Query().Get("kind"))
	if kind == "" {
		kind = KindInvoice
	}
	asOf := time.Now()
	if raw := r.URL.Query().Get("as_of"); raw != "" {
		parsed, err := time.Parse("2006-01-02", raw)
		if err != nil {
			httpx.RespondError(w, shared.Invalidf("as_of must be YYYY-MM-DD"))
			return
		}
		asOf = parsed
	}
	bucket, err := h.service.Aging(r.Context(), tenant, kind, asOf)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"kind": kind, "asOf": asOf.Format("2006-01-02"), "buckets": bucket, "total": bucket.Total()})
}
