package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/hibiken/asynq"

	"github.com/carepoint-hms/carepoint/internal/analytics"
	audithttp "github.com/carepoint-hms/carepoint/internal/audit/http"
	"github.com/carepoint-hms/carepoint/internal/clinic"
	"github.com/carepoint-hms/carepoint/internal/inventory"
	"github.com/carepoint-hms/carepoint/internal/ledger"
	"github.com/carepoint-hms/carepoint/internal/masterdata/locations"
	mdshared "github.com/carepoint-hms/carepoint/internal/masterdata/shared"
	"github.com/carepoint-hms/carepoint/internal/masterdata/taxes"
	"github.com/carepoint-hms/carepoint/internal/masterdata/vendors"
	"github.com/carepoint-hms/carepoint/internal/observability"
	"github.com/carepoint-hms/carepoint/internal/payroll"
	"github.com/carepoint-hms/carepoint/internal/pos"
	"github.com/carepoint-hms/carepoint/internal/rbac"
	"github.com/carepoint-hms/carepoint/internal/shared"
	"github.com/carepoint-hms/carepoint/internal/tenancy"
	"github.com/carepoint-hms/carepoint/jobs"
	"github.com/carepoint-hms/carepoint/report"
)

// APIPrefix is where the authenticated API is mounted.
const APIPrefix = "/api/v1"

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger    *slog.Logger
	Config    *Config
	Services  *Services
	Sessions  *shared.SessionResolver
	Reports   *report.Client
	Inspector *asynq.Inspector
	Metrics   *observability.Metrics
}

// NewRouter constructs the chi.Router with CarePoint defaults.
func NewRouter(params RouterParams) http.Handler {
	logger := params.Logger
	if logger == nil {
		logger = slog.Default()
	}
	cfg := params.Config
	if cfg == nil {
		cfg = &Config{}
	}
	svc := params.Services

	r := chi.NewRouter()
	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  logger,
		Config:  cfg,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}
	r.Route("/jobs", jobs.NewHandler(params.Inspector, logger).MountRoutes)

	var renderer payroll.Renderer
	if params.Reports != nil {
		r.Route("/report", report.NewHandler(params.Reports, logger).MountRoutes)
		renderer = params.Reports
	}

	guard := rbac.Middleware{Service: svc.RBAC, Logger: logger}
	ledgerHandler := ledger.NewHandler(logger, svc.Ledger, guard)
	if cfg.PaymentRateLimit > 0 {
		ledgerHandler.PaymentLimit = cfg.PaymentRateLimit
	}

	r.Route(APIPrefix, func(r chi.Router) {
		if params.Sessions != nil {
			r.Use(params.Sessions.Middleware)
		}
		clinic.NewHandler(logger, svc.Clinic, guard).MountRoutes(r)
		ledgerHandler.MountRoutes(r)
		inventory.NewHandler(logger, svc.Inventory, guard).MountRoutes(r)
		pos.NewHandler(logger, svc.POS, guard).MountRoutes(r)
		payroll.NewHandler(logger, svc.Payroll, renderer, cfg.OrganizationName, guard).MountRoutes(r)
		analytics.NewHandler(logger, svc.Analytics, guard).MountRoutes(r)
		tenancy.NewHandler(logger, svc.Tenancy, guard).MountRoutes(r)
		rbac.NewHandler(logger, svc.RBAC).MountRoutes(r)
		audithttp.NewHandler(logger, svc.Audit, guard).MountRoutes(r)
		taxes.NewHandler(logger, svc.Taxes, guard).MountRoutes(r)
		r.Route("/locations", mdshared.NewHandler[locations.Location](logger, svc.Locations, guard, rbac.ResourceSettings, "locations").MountRoutes)
		r.Route("/vendors", mdshared.NewHandler[vendors.Vendor](logger, svc.Vendors, guard, rbac.ResourceInventory, "vendors").MountRoutes)
	})

	return r
}
