package app

import (
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/carepoint-hms/carepoint/internal/analytics"
	"github.com/carepoint-hms/carepoint/internal/audit"
	"github.com/carepoint-hms/carepoint/internal/clinic"
	"github.com/carepoint-hms/carepoint/internal/docstore"
	"github.com/carepoint-hms/carepoint/internal/inventory"
	"github.com/carepoint-hms/carepoint/internal/ledger"
	"github.com/carepoint-hms/carepoint/internal/masterdata/locations"
	"github.com/carepoint-hms/carepoint/internal/masterdata/taxes"
	"github.com/carepoint-hms/carepoint/internal/masterdata/vendors"
	"github.com/carepoint-hms/carepoint/internal/payroll"
	"github.com/carepoint-hms/carepoint/internal/pos"
	"github.com/carepoint-hms/carepoint/internal/rbac"
	"github.com/carepoint-hms/carepoint/internal/shared"
	"github.com/carepoint-hms/carepoint/internal/tenancy"
)

// Services holds the domain services sharing one store.
type Services struct {
	Store     docstore.Store
	Audit     *audit.Service
	RBAC      *rbac.Service
	Tenancy   *tenancy.Service
	Clinic    *clinic.Service
	Ledger    *ledger.Service
	Inventory *inventory.Service
	POS       *pos.Service
	Payroll   *payroll.Service
	Analytics *analytics.Service
	Taxes     *taxes.Service
	Locations *locations.Service
	Vendors   *vendors.Service
}

// ServiceDeps are the shared resources BuildServices wires together.
// Redis is optional; without it payments skip idempotency and the
// dashboard is not cached.
type ServiceDeps struct {
	Config *Config
	Store  docstore.Store
	Redis  *redis.Client
	Logger *slog.Logger
	Alerts inventory.AlertHandler
}

// BuildServices constructs every domain service and registers the
// cross-module cascades.
func BuildServices(deps ServiceDeps) *Services {
	cfg := deps.Config
	if cfg == nil {
		cfg = &Config{}
	}
	auditLogger := shared.NewAuditLogger(audit.NewStore(deps.Store), deps.Logger)
	quota := tenancy.NewService(deps.Store)

	var idem *shared.IdempotencyStore
	var cache *analytics.Cache
	if deps.Redis != nil {
		idem = shared.NewIdempotencyStore(deps.Redis, cfg.PaymentIdempotencyTTL)
		cache = analytics.NewCache(deps.Redis, cfg.DashboardCacheTTL)
	}

	led := ledger.NewService(deps.Store, auditLogger, idem)
	clinicSvc := clinic.NewService(deps.Store, quota, auditLogger)
	led.SetCascade(ledger.KindInvoice, clinicSvc.InvoiceCascade)

	inv := inventory.NewService(deps.Store, inventory.ServiceConfig{
		DefaultMarginPct: cfg.DefaultMarginPct,
		Quota:            quota,
		Audit:            auditLogger,
		Alerts:           deps.Alerts,
	})
	posSvc := pos.NewService(deps.Store, inv, auditLogger)
	payrollSvc := payroll.NewService(deps.Store, quota, auditLogger)

	return &Services{
		Store:     deps.Store,
		Audit:     audit.NewService(deps.Store),
		RBAC:      rbac.NewService(deps.Store, cfg.RBACCacheTTL),
		Tenancy:   quota,
		Clinic:    clinicSvc,
		Ledger:    led,
		Inventory: inv,
		POS:       posSvc,
		Payroll:   payrollSvc,
		Analytics: analytics.NewService(analytics.Sources{
			Ledger:  led,
			Stock:   inv,
			Sales:   posSvc,
			Payroll: payrollSvc,
		}, cache),
		Taxes:     taxes.NewService(deps.Store),
		Locations: locations.NewService(deps.Store),
		Vendors:   vendors.NewService(deps.Store),
	}
}
