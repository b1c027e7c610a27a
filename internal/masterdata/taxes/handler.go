package taxes

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/carepoint-hms/carepoint/internal/masterdata/shared"
	"github.com/carepoint-hms/carepoint/internal/platform/httpx"
	"github.com/carepoint-hms/carepoint/internal/rbac"
)

type Handler struct {
	logger    *slog.Logger
	service   *Service
	rbac      rbac.Middleware
	validator *validator.Validate
}

func NewHandler(logger *slog.Logger, service *Service, rbac rbac.Middleware) *Handler {
	return &Handler{logger: logger, service: service, rbac: rbac, validator: httpx.NewValidator()}
}

// MountRoutes registers tax and tax group routes.
func (h *Handler) MountRoutes(r chi.Router) {
	view := h.rbac.Require(rbac.ResourceSettings, rbac.LevelView)
	manage := h.rbac.Require(rbac.ResourceSettings, rbac.LevelManage)
	r.Route("/taxes", func(r chi.Router) {
		r.With(view).Get("/", h.List)
		r.With(manage).Post("/", h.Create)
		r.With(view).Get("/{id}", h.Show)
		r.With(manage).Put("/{id}", h.Update)
		r.With(manage).Delete("/{id}", h.Delete)
	})
	r.Route("/tax-groups", func(r chi.Router) {
		r.With(view).Get("/", h.ListGroups)
		r.With(manage).Post("/", h.CreateGroup)
		r.With(view).Get("/{id}", h.ShowGroup)
		r.With(manage).Delete("/{id}", h.DeleteGroup)
	})
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	tenant, err := rbac.TenantOf(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	filters := shared.ListFilters{
		Page:    page,
		Limit:   limit,
		Search:  r.URL.Query().Get("search"),
		SortDir: r.URL.Query().Get("dir"),
	}
	items, total, err := h.service.List(r.Context(), tenant, filters)
	if err != nil {
		h.logger.Error("list taxes failed", "error", err)
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"taxes": items, "total": total})
}

func (h *Handler) Show(w http.ResponseWriter, r *http.Request) {
	tenant, err := rbac.TenantOf(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	tax, err := h.service.Get(r.Context(), tenant, chi.URLParam(r, "id"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, tax)
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	tenant, err := rbac.TenantOf(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var tax Tax
	if err := httpx.Bind(r, h.validator, &tax); err != nil {
		httpx.RespondError(w, err)
		return
	}
	created, err := h.service.Create(r.Context(), tenant, tax)
	if err != nil {
		h.logger.Error("create tax failed", "error", err)
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, created)
}

func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	tenant, err := rbac.TenantOf(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var tax Tax
	if err := httpx.Bind(r, h.validator, &tax); err != nil {
		httpx.RespondError(w, err)
		return
	}
	id := chi.URLParam(r, "id")
	if err := h.service.Update(r.Context(), tenant, id, tax); err != nil {
		h.logger.Error("update tax failed", "error", err, "id", id)
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	tenant, err := rbac.TenantOf(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	id := chi.URLParam(r, "id")
	if err := h.service.Delete(r.Context(), tenant, id); err != nil {
		h.logger.Error("delete tax failed", "error", err, "id", id)
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) ListGroups(w http.ResponseWriter, r *http.Request) {
	tenant, err := rbac.TenantOf(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	groups, err := h.service.ListGroups(r.Context(), tenant)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, groups)
}

func (h *Handler) ShowGroup(w http.ResponseWriter, r *http.Request) {
	tenant, err := rbac.TenantOf(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	group, err := h.service.GetGroup(r.Context(), tenant, chi.URLParam(r, "id"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, group)
}

func (h *Handler) CreateGroup(w http.ResponseWriter, r *http.Request) {
	tenant, err := rbac.TenantOf(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var group TaxGroup
	if err := httpx.Bind(r, h.validator, &group); err != nil {
		httpx.RespondError(w, err)
		return
	}
	created, err := h.service.CreateGroup(r.Context(), tenant, group)
	if err != nil {
		h.logger.Error("create tax group failed", "error", err)
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, created)
}

func (h *Handler) DeleteGroup(w http.ResponseWriter, r *http.Request) {
	tenant, err := rbac.TenantOf(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.service.DeleteGroup(r.Context(), tenant, chi.URLParam(r, "id")); err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
