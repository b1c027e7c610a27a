package rbac

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/carepoint-hms/carepoint/internal/platform/httpx"
	"github.com/carepoint-hms/carepoint/internal/shared"
)

// Handler exposes the effective policy and tenant overrides.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	guard     Middleware
	validator *validator.Validate
}

// NewHandler constructs the RBAC handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{
		logger:    logger,
		service:   service,
		guard:     Middleware{Service: service, Logger: logger},
		validator: httpx.NewValidator(),
	}
}

// MountRoutes registers RBAC routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/rbac", func(r chi.Router) {
		r.With(h.guard.Require(ResourceSettings, LevelView)).Get("/policy", h.getPolicy)
		r.With(h.guard.Require(ResourceSettings, LevelManage)).Put("/overrides/{role}", h.putOverride)
		r.With(h.guard.Require(ResourceSettings, LevelManage)).Delete("/overrides/{role}", h.deleteOverrides)
	})
}

type overrideRequest struct {
	Resource Resource `json:"resource" validate:"required"`
	Level    Level    `json:"level"`
}

func (h *Handler) getPolicy(w http.ResponseWriter, r *http.Request) {
	tenant, err := TenantOf(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	policy, err := h.service.Policy(r.Context(), tenant)
	if err != nil {
		h.logger.Error("load policy", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, policy)
}

func (h *Handler) putOverride(w http.ResponseWriter, r *http.Request) {
	tenant, err := TenantOf(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req overrideRequest
	if err := httpx.Bind(r, h.validator, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	out, err := h.service.SetOverride(r.Context(), tenant, shared.Role(chi.URLParam(r, "role")), req.Resource, req.Level)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) deleteOverrides(w http.ResponseWriter, r *http.Request) {
	tenant, err := TenantOf(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.service.ClearOverrides(r.Context(), tenant, shared.Role(chi.URLParam(r, "role"))); err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
