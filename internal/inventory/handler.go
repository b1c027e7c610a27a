package inventory

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/carepoint-hms/carepoint/internal/platform/httpx"
	"github.com/carepoint-hms/carepoint/internal/rbac"
	"github.com/carepoint-hms/carepoint/internal/shared"
)

// Handler wires inventory endpoints.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	rbac      rbac.Middleware
	validator *validator.Validate
}

// NewHandler builds inventory handler.
func NewHandler(logger *slog.Logger, service *Service, rbac rbac.Middleware) *Handler {
	return &Handler{logger: logger, service: service, rbac: rbac, validator: httpx.NewValidator()}
}

// MountRoutes registers inventory routes. Order payments are served by the
// ledger under /stock-orders.
func (h *Handler) MountRoutes(r chi.Router) {
	view := h.rbac.Require(rbac.ResourceInventory, rbac.LevelView)
	edit := h.rbac.Require(rbac.ResourceInventory, rbac.LevelEdit)
	manage := h.rbac.Require(rbac.ResourceInventory, rbac.LevelManage)

	r.Route("/inventory", func(r chi.Router) {
		r.With(view).Get("/items", h.listItems)
		r.With(manage).Post("/items", h.createItem)
		r.With(view).Get("/items/{id}", h.showItem)
		r.With(view).Get("/items/{id}/stock/{locationID}", h.showStock)
		r.With(view).Get("/movements", h.listMovements)
		r.With(view).Get("/low-stock", h.lowStock)
		r.With(view).Get("/expiring", h.expiring)

		r.With(edit).Post("/sales", h.sell)
		r.With(manage).Post("/adjustments", h.adjust)

		r.With(edit).Post("/transfers", h.transfer)
		r.With(view).Get("/transfers/{id}", h.showTransfer)
		r.With(manage).Post("/transfers/{id}/reverse", h.reverseTransfer)

		r.With(view).Get("/orders", h.listOrders)
		r.With(edit).Post("/orders", h.createOrder)
		r.With(view).Get("/orders/{id}", h.showOrder)
		r.With(edit).Post("/orders/{id}/receive", h.receive)
		r.With(edit).Post("/orders/{id}/returns", h.returnToVendor)
		r.With(manage).Post("/orders/{id}/cancel", h.cancelOrder)
		r.With(manage).Delete("/orders/{id}", h.deleteOrder)
	})
}

func actorID(r *http.Request) string {
	if p, ok := shared.PrincipalFromContext(r.Context()); ok {
		return p.UserID
	}
	return ""
}

func limitParam(r *http.Request) int {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	return limit
}

func (h *Handler) fail(w http.ResponseWriter, msg string, err error) {
	h.logger.Warn(msg, slog.Any("error", err))
	httpx.RespondError(w, err)
}

func (h *Handler) listItems(w http.ResponseWriter, r *http.Request) {
	tenant, err := rbac.TenantOf(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	items, err := h.service.ListStockItems(r.Context(), tenant, limitParam(r))
	if err != nil {
		h.fail(w, "list stock items", err)
		return
	}
	httpx.JSON(w, http.StatusOK, items)
}

func (h *Handler) createItem(w http.ResponseWriter, r *http.Request) {
	tenant, err := rbac.TenantOf(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var input StockItemInput
	if err := httpx.Bind(r, h.validator, &input); err != nil {
		httpx.RespondError(w, err)
		return
	}
	item, err := h.service.CreateStockItem(r.Context(), tenant, input)
	if err != nil {
		h.fail(w, "create stock item", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, item)
}

func (h *Handler) showItem(w http.ResponseWriter, r *http.Request) {
	tenant, err := rbac.TenantOf(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	item, err := h.service.GetStockItem(r.Context(), tenant, chi.URLParam(r, "id"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, item)
}

func (h *Handler) showStock(w http.ResponseWriter, r *http.Request) {
	tenant, err := rbac.TenantOf(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	stock, err := h.service.GetLocationStock(r.Context(), tenant, chi.URLParam(r, "id"), chi.URLParam(r, "locationID"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, stock)
}

func (h *Handler) listMovements(w http.ResponseWriter, r *http.Request) {
	tenant, err := rbac.TenantOf(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	q := r.URL.Query()
	movements, err := h.service.ListMovements(r.Context(), tenant, MovementFilter{
		StockItemID: q.Get("stock_item_id"),
		LocationID:  q.Get("location_id"),
		Type:        MovementType(q.Get("type")),
		Limit:       limitParam(r),
	})
	if err != nil {
		h.fail(w, "list movements", err)
		return
	}
	httpx.JSON(w, http.StatusOK, movements)
}

func (h *Handler) lowStock(w http.ResponseWriter, r *http.Request) {
	tenant, err := rbac.TenantOf(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	stocks, err := h.service.LowStock(r.Context(), tenant, r.URL.Query().Get("location_id"))
	if err != nil {
		h.fail(w, "low stock", err)
		return
	}
	httpx.JSON(w, http.StatusOK, stocks)
}

func (h *Handler) expiring(w http.ResponseWriter, r *http.Request) {
	tenant, err := rbac.TenantOf(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	days := 30
	if raw := r.URL.Query().Get("days"); raw != "" {
		days, err = strconv.Atoi(raw)
		if err != nil || days < 0 {
			httpx.RespondError(w, shared.Invalidf("days must be a non-negative integer"))
			return
		}
	}
	batches, err := h.service.ExpiringBatches(r.Context(), tenant, r.URL.Query().Get("location_id"), time.Duration(days)*24*time.Hour)
	if err != nil {
		h.fail(w, "expiring batches", err)
		return
	}
	httpx.JSON(w, http.StatusOK, batches)
}

func (h *Handler) sell(w http.ResponseWriter, r *http.Request) {
	tenant, err := rbac.TenantOf(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var input SellInput
	if err := httpx.Bind(r, h.validator, &input); err != nil {
		httpx.RespondError(w, err)
		return
	}
	input.RecordedBy = actorID(r)
	sold, err := h.service.Sell(r.Context(), tenant, input)
	if err != nil {
		h.fail(w, "sell", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, sold)
}

func (h *Handler) adjust(w http.ResponseWriter, r *http.Request) {
	tenant, err := rbac.TenantOf(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var input AdjustInput
	if err := httpx.Bind(r, h.validator, &input); err != nil {
		httpx.RespondError(w, err)
		return
	}
	input.RecordedBy = actorID(r)
	stock, err := h.service.Adjust(r.Context(), tenant, input)
	if err != nil {
		h.fail(w, "adjust stock", err)
		return
	}
	httpx.JSON(w, http.StatusOK, stock)
}

func (h *Handler) transfer(w http.ResponseWriter, r *http.Request) {
	tenant, err := rbac.TenantOf(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var input TransferInput
	if err := httpx.Bind(r, h.validator, &input); err != nil {
		httpx.RespondError(w, err)
		return
	}
	input.CreatedBy = actorID(r)
	transfer, err := h.service.Transfer(r.Context(), tenant, input)
	if err != nil {
		h.fail(w, "transfer stock", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, transfer)
}

func (h *Handler) showTransfer(w http.ResponseWriter, r *http.Request) {
	tenant, err := rbac.TenantOf(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	transfer, err := h.service.GetTransfer(r.Context(), tenant, chi.URLParam(r, "id"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, transfer)
}

func (h *Handler) reverseTransfer(w http.ResponseWriter, r *http.Request) {
	tenant, err := rbac.TenantOf(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	transfer, err := h.service.ReverseTransfer(r.Context(), tenant, chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, "reverse transfer", err)
		return
	}
	httpx.JSON(w, http.StatusOK, transfer)
}

func (h *Handler) listOrders(w http.ResponseWriter, r *http.Request) {
	tenant, err := rbac.TenantOf(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	orders, err := h.service.ListOrders(r.Context(), tenant, OrderStatus(r.URL.Query().Get("status")), limitParam(r))
	if err != nil {
		h.fail(w, "list stock orders", err)
		return
	}
	httpx.JSON(w, http.StatusOK, orders)
}

func (h *Handler) createOrder(w http.ResponseWriter, r *http.Request) {
	tenant, err := rbac.TenantOf(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var input OrderInput
	if err := httpx.Bind(r, h.validator, &input); err != nil {
		httpx.RespondError(w, err)
		return
	}
	input.CreatedBy = actorID(r)
	order, err := h.service.CreateOrder(r.Context(), tenant, input)
	if err != nil {
		h.fail(w, "create stock order", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, order)
}

func (h *Handler) showOrder(w http.ResponseWriter, r *http.Request) {
	tenant, err := rbac.TenantOf(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	order, err := h.service.GetOrder(r.Context(), tenant, chi.URLParam(r, "id"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, order)
}

func (h *Handler) receive(w http.ResponseWriter, r *http.Request) {
	tenant, err := rbac.TenantOf(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var input ReceiveInput
	if err := httpx.Bind(r, h.validator, &input); err != nil {
		httpx.RespondError(w, err)
		return
	}
	input.RecordedBy = actorID(r)
	order, err := h.service.Receive(r.Context(), tenant, chi.URLParam(r, "id"), input)
	if err != nil {
		h.fail(w, "receive stock order", err)
		return
	}
	httpx.JSON(w, http.StatusOK, order)
}

func (h *Handler) returnToVendor(w http.ResponseWriter, r *http.Request) {
	tenant, err := rbac.TenantOf(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var input ReturnInput
	if err := httpx.Bind(r, h.validator, &input); err != nil {
		httpx.RespondError(w, err)
		return
	}
	input.RecordedBy = actorID(r)
	order, err := h.service.ReturnToVendor(r.Context(), tenant, chi.URLParam(r, "id"), input)
	if err != nil {
		h.fail(w, "return to vendor", err)
		return
	}
	httpx.JSON(w, http.StatusOK, order)
}

func (h *Handler) cancelOrder(w http.ResponseWriter, r *http.Request) {
	tenant, err := rbac.TenantOf(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	order, err := h.service.CancelOrder(r.Context(), tenant, chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, "cancel stock order", err)
		return
	}
	httpx.JSON(w, http.StatusOK, order)
}

func (h *Handler) deleteOrder(w http.ResponseWriter, r *http.Request) {
	tenant, err := rbac.TenantOf(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.service.DeleteOrder(r.Context(), tenant, chi.URLParam(r, "id")); err != nil {
		h.fail(w, "delete stock order", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
