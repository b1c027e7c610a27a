package ledger

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/carepoint-hms/carepoint/internal/rbac"
	"github.com/carepoint-hms/carepoint/internal/shared"
)

func newTestRouter(t *testing.T, role shared.Role) (http.Handler, *Service) {
	t.Helper()
	svc, _ := newTestService(t)
	h := NewHandler(slog.New(slog.NewTextHandler(io.Discard, nil)), svc, rbac.Middleware{Service: rbac.NewService(nil, 0)})
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			ctx := shared.ContextWithPrincipal(req.Context(), shared.Principal{UserID: "u1", TenantID: "h1", Role: role, EmailVerified: true})
			next.ServeHTTP(w, req.WithContext(ctx))
		})
	})
	h.MountRoutes(r)
	return r, svc
}

func TestHandlerPaymentFlow(t *testing.T) {
	router, svc := newTestRouter(t, rbac.RoleReceptionist)
	inv := createInvoice(t, svc, "100")

	req := httptest.NewRequest(http.MethodPost, "/invoices/"+inv.ID+"/payments", strings.NewReader(`{"amount":"40","method":"cash"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var m Monetary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &m))
	require.Equal(t, StatusPartiallyPaid, m.PaymentStatus)
	require.Equal(t, "u1", m.PaymentHistory[0].RecordedBy)

	req = httptest.NewRequest(http.MethodPost, "/invoices/"+inv.ID+"/payments", strings.NewReader(`{"amount":"0","method":"cash"}`))
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	req = httptest.NewRequest(http.MethodDelete, "/invoices/"+inv.ID+"/payments/unknown", nil)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandlerRequiresBillingEdit(t *testing.T) {
	router, svc := newTestRouter(t, rbac.RoleDoctor)
	inv := createInvoice(t, svc, "100")

	req := httptest.NewRequest(http.MethodPost, "/invoices/"+inv.ID+"/payments", strings.NewReader(`{"amount":"40","method":"cash"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusForbidden, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/invoices/"+inv.ID, nil)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
}
