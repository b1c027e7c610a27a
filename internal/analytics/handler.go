package analytics

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/carepoint-hms/carepoint/internal/platform/httpx"
	"github.com/carepoint-hms/carepoint/internal/rbac"
)

// Handler serves the dashboard.
type Handler struct {
	logger  *slog.Logger
	service *Service
	rbac    rbac.Middleware
}

// NewHandler builds the dashboard handler.
func NewHandler(logger *slog.Logger, service *Service, rbac rbac.Middleware) *Handler {
	return &Handler{logger: logger, service: service, rbac: rbac}
}

// MountRoutes registers dashboard routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/dashboard", func(r chi.Router) {
		r.With(h.rbac.Require(rbac.ResourceReports, rbac.LevelView)).Get("/", h.summary)
		r.With(h.rbac.Require(rbac.ResourceReports, rbac.LevelManage)).Post("/refresh", h.refresh)
	})
}

func (h *Handler) summary(w http.ResponseWriter, r *http.Request) {
	tenant, err := rbac.TenantOf(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	summary, err := h.service.Summary(r.Context(), tenant)
	if err != nil {
		h.logger.Error("dashboard summary", slog.Any("error", err), slog.String("tenant", tenant))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, summary)
}

func (h *Handler) refresh(w http.ResponseWriter, r *http.Request) {
	tenant, err := rbac.TenantOf(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.service.Refresh(r.Context(), tenant); err != nil {
		h.logger.Warn("dashboard refresh", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
