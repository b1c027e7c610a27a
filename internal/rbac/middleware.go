package rbac

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/carepoint-hms/carepoint/internal/platform/httpx"
	"github.com/carepoint-hms/carepoint/internal/shared"
)

// Middleware wires RBAC authorization helpers for HTTP handlers.
type Middleware struct {
	Service *Service
	Logger  *slog.Logger
}

// Require ensures the current principal holds at least level on resource.
func (m Middleware) Require(resource Resource, level Level) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, ok := shared.PrincipalFromContext(r.Context())
			if !ok {
				httpx.RespondError(w, shared.ErrUnauthenticated)
				return
			}
			if m.Service == nil {
				next.ServeHTTP(w, r)
				return
			}
			if err := m.Service.Authorize(r.Context(), p, resource, level); err != nil {
				if m.Logger != nil {
					m.Logger.Warn("rbac denied",
						slog.String("user", p.UserID),
						slog.String("role", string(p.Role)),
						slog.String("resource", string(resource)),
						slog.String("need", level.String()),
						slog.Any("error", err))
				}
				httpx.RespondError(w, err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// TenantOf returns the tenant of the current principal.
func TenantOf(r *http.Request) (string, error) {
	p, ok := shared.PrincipalFromContext(r.Context())
	if !ok || p.TenantID == "" {
		return "", fmt.Errorf("rbac: no tenant in request: %w", shared.ErrUnauthenticated)
	}
	return p.TenantID, nil
}
