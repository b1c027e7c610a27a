package app

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/carepoint-hms/carepoint/internal/docstore"
	"github.com/carepoint-hms/carepoint/internal/docstore/memory"
	"github.com/carepoint-hms/carepoint/internal/rbac"
	"github.com/carepoint-hms/carepoint/internal/shared"
)

type routerFixture struct {
	handler  http.Handler
	sessions *shared.SessionResolver
}

func newRouterFixture(t *testing.T) routerFixture {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg := &Config{AppEnv: "test", OrganizationName: "CarePoint", RateLimit: 1000}
	services := BuildServices(ServiceDeps{
		Config: cfg,
		Store:  memory.New(docstore.Options{}),
		Redis:  client,
		Logger: logger,
	})
	sessions := shared.NewSessionResolver(client, logger)
	return routerFixture{
		handler: NewRouter(RouterParams{
			Logger:   logger,
			Config:   cfg,
			Services: services,
			Sessions: sessions,
		}),
		sessions: sessions,
	}
}

func (f routerFixture) login(t *testing.T, token string, role shared.Role) {
	t.Helper()
	err := f.sessions.Store(context.Background(), token, shared.Principal{
		UserID:        "user-" + token,
		TenantID:      "h1",
		Role:          role,
		EmailVerified: true,
	}, time.Hour)
	require.NoError(t, err)
}

func (f routerFixture) do(method, path, token, body string) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func TestHealthzIsPublic(t *testing.T) {
	f := newRouterFixture(t)
	rec := f.do(http.MethodGet, "/healthz", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
	require.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
}

func TestAPIRequiresSession(t *testing.T) {
	f := newRouterFixture(t)
	rec := f.do(http.MethodGet, APIPrefix+"/patients", "", "")
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = f.do(http.MethodGet, APIPrefix+"/patients", "unknown-token", "")
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAPIAppliesRolePolicy(t *testing.T) {
	f := newRouterFixture(t)
	f.login(t, "admin", rbac.RoleAdmin)
	f.login(t, "desk", rbac.RoleReceptionist)

	rec := f.do(http.MethodPost, APIPrefix+"/locations/", "admin", `{"code":"PH","name":"Pharmacy","type":"pharmacy"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = f.do(http.MethodGet, APIPrefix+"/locations/", "desk", "")
	require.Equal(t, http.StatusForbidden, rec.Code)

	rec = f.do(http.MethodGet, APIPrefix+"/locations/", "admin", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Locations []struct {
			Code string `json:"code"`
		} `json:"locations"`
		Total int `json:"total"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, 1, body.Total)
	require.Equal(t, "PH", body.Locations[0].Code)

	rec = f.do(http.MethodGet, APIPrefix+"/payroll/runs", "desk", "")
	require.Equal(t, http.StatusForbidden, rec.Code)
}

func TestJobsHealthWithoutInspector(t *testing.T) {
	f := newRouterFixture(t)
	rec := f.do(http.MethodGet, "/jobs/health", "", "")
	require.NotEqual(t, http.StatusNotFound, rec.Code)
}
