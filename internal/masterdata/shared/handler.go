package shared

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/carepoint-hms/carepoint/internal/platform/httpx"
	"github.com/carepoint-hms/carepoint/internal/rbac"
)

// Service is the CRUD surface a master data kind exposes over HTTP.
type Service[T any] interface {
	List(ctx context.Context, tenant string, filters ListFilters) ([]T, int, error)
	Get(ctx context.Context, tenant, id string) (T, error)
	Create(ctx context.Context, tenant string, item T) (T, error)
	Update(ctx context.Context, tenant, id string, item T) error
	Delete(ctx context.Context, tenant, id string) error
}

// Handler serves JSON CRUD routes for one master data kind. Reads need
// view on the resource, writes need manage.
type Handler[T any] struct {
	logger    *slog.Logger
	service   Service[T]
	rbac      rbac.Middleware
	resource  rbac.Resource
	label     string
	validator *validator.Validate
}

// NewHandler builds a Handler. label names the kind in logs and list
// responses, e.g. "locations".
func NewHandler[T any](logger *slog.Logger, service Service[T], mw rbac.Middleware, resource rbac.Resource, label string) *Handler[T] {
	return &Handler[T]{logger: logger, service: service, rbac: mw, resource: resource, label: label, validator: httpx.NewValidator()}
}

// MountRoutes registers list, show, create, update and delete.
func (h *Handler[T]) MountRoutes(r chi.Router) {
	view := h.rbac.Require(h.resource, rbac.LevelView)
	manage := h.rbac.Require(h.resource, rbac.LevelManage)
	r.With(view).Get("/", h.list)
	r.With(manage).Post("/", h.create)
	r.With(view).Get("/{id}", h.show)
	r.With(manage).Put("/{id}", h.update)
	r.With(manage).Delete("/{id}", h.delete)
}

// ParseListFilters reads page, limit, search and dir query parameters.
func ParseListFilters(r *http.Request) ListFilters {
	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	limit, _ := strconv.Atoi(q.Get("limit"))
	return ListFilters{Page: page, Limit: limit, Search: q.Get("search"), SortDir: q.Get("dir")}
}

func (h *Handler[T]) list(w http.ResponseWriter, r *http.Request) {
	tenant, err := rbac.TenantOf(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	filters := ParseListFilters(r).Normalize()
	items, total, err := h.service.List(r.Context(), tenant, filters)
	if err != nil {
		h.logger.Error("list "+h.label, slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		h.label: items,
		"total": total,
		"page":  filters.Page,
		"limit": filters.Limit,
	})
}

func (h *Handler[T]) show(w http.ResponseWriter, r *http.Request) {
	tenant, err := rbac.TenantOf(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	item, err := h.service.Get(r.Context(), tenant, chi.URLParam(r, "id"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, item)
}

func (h *Handler[T]) create(w http.ResponseWriter, r *http.Request) {
	tenant, err := rbac.TenantOf(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var item T
	if err := httpx.Bind(r, h.validator, &item); err != nil {
		httpx.RespondError(w, err)
		return
	}
	created, err := h.service.Create(r.Context(), tenant, item)
	if err != nil {
		h.logger.Error("create "+h.label, slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, created)
}

func (h *Handler[T]) update(w http.ResponseWriter, r *http.Request) {
	tenant, err := rbac.TenantOf(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var item T
	if err := httpx.Bind(r, h.validator, &item); err != nil {
		httpx.RespondError(w, err)
		return
	}
	id := chi.URLParam(r, "id")
	if err := h.service.Update(r.Context(), tenant, id, item); err != nil {
		h.logger.Error("update "+h.label, slog.Any("error", err), slog.String("id", id))
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler[T]) delete(w http.ResponseWriter, r *http.Request) {
	tenant, err := rbac.TenantOf(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	id := chi.URLParam(r, "id")
	if err := h.service.Delete(r.Context(), tenant, id); err != nil {
		h.logger.Error("delete "+h.label, slog.Any("error", err), slog.String("id", id))
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
