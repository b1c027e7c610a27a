package tenancy

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/carepoint-hms/carepoint/internal/platform/httpx"
	"github.com/carepoint-hms/carepoint/internal/rbac"
)

// Handler exposes subscription state.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	guard     rbac.Middleware
	validator *validator.Validate
}

// NewHandler constructs a Handler.
func NewHandler(logger *slog.Logger, service *Service, guard rbac.Middleware) *Handler {
	return &Handler{logger: logger, service: service, guard: guard, validator: httpx.NewValidator()}
}

// MountRoutes registers subscription routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/subscription", func(r chi.Router) {
		r.With(h.guard.Require(rbac.ResourceSettings, rbac.LevelView)).Get("/", h.get)
		r.With(h.guard.Require(rbac.ResourceSettings, rbac.LevelManage)).Put("/plan", h.changePlan)
	})
}

type subscriptionResponse struct {
	Subscription Subscription `json:"subscription"`
	Usage        []Usage      `json:"usage"`
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	tenant, err := rbac.TenantOf(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	sub, err := h.service.Subscription(r.Context(), tenant)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	usage, err := h.service.Usage(r.Context(), tenant)
	if err != nil {
		h.logger.Error("subscription usage", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, subscriptionResponse{Subscription: sub, Usage: usage})
}

type changePlanRequest struct {
	PlanID string `json:"planId" validate:"required"`
}

func (h *Handler) changePlan(w http.ResponseWriter, r *http.Request) {
	tenant, err := rbac.TenantOf(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req changePlanRequest
	if err := httpx.Bind(r, h.validator, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	sub, err := h.service.ChangePlan(r.Context(), tenant, req.PlanID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, sub)
}
