package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"

	"github.com/carepoint-hms/carepoint/internal/app"
	"github.com/carepoint-hms/carepoint/internal/clinic"
	"github.com/carepoint-hms/carepoint/internal/inventory"
	"github.com/carepoint-hms/carepoint/internal/masterdata/locations"
	"github.com/carepoint-hms/carepoint/internal/masterdata/taxes"
	"github.com/carepoint-hms/carepoint/internal/masterdata/vendors"
	"github.com/carepoint-hms/carepoint/internal/payroll"
	"github.com/carepoint-hms/carepoint/internal/platform/cache"
	"github.com/carepoint-hms/carepoint/internal/rbac"
	"github.com/carepoint-hms/carepoint/internal/shared"
)

func main() {
	_ = godotenv.Load()
	ctx := context.Background()
	tenant := getenv("SEED_TENANT", "demo-hospital")

	cfg, err := app.LoadConfig()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	store, err := app.OpenStore(ctx, cfg, prometheus.NewRegistry())
	if err != nil {
		log.Fatalf("open store: %v", err)
	}
	defer store.Close()

	svc := app.BuildServices(app.ServiceDeps{
		Config: cfg,
		Store:  store,
		Logger: slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn})),
	})

	fmt.Println("→ Seeding master data...")
	pharmacy, err := seedMasterData(ctx, svc, tenant)
	if err != nil {
		log.Fatalf("seed master data: %v", err)
	}

	fmt.Println("→ Seeding clinic...")
	if err := seedClinic(ctx, svc, tenant); err != nil {
		log.Fatalf("seed clinic: %v", err)
	}

	fmt.Println("→ Seeding inventory...")
	if err := seedInventory(ctx, svc, tenant, pharmacy); err != nil {
		log.Fatalf("seed inventory: %v", err)
	}

	fmt.Println("→ Seeding payroll...")
	if err := seedPayroll(ctx, svc, tenant); err != nil {
		log.Fatalf("seed payroll: %v", err)
	}

	if token := os.Getenv("SEED_ADMIN_TOKEN"); token != "" {
		fmt.Println("→ Seeding admin session...")
		if err := seedSession(ctx, cfg, tenant, token); err != nil {
			log.Fatalf("seed session: %v", err)
		}
	}

	fmt.Println("✓ Seed complete at", time.Now().Format(time.RFC3339))
}

func seedMasterData(ctx context.Context, svc *app.Services, tenant string) (string, error) {
	var pharmacyID string
	for _, loc := range []locations.Location{
		{Code: "MAIN", Name: "Main Store", Type: locations.TypeStore},
		{Code: "PH", Name: "Pharmacy Counter", Type: locations.TypePharmacy},
	} {
		created, err := svc.Locations.Create(ctx, tenant, loc)
		if err != nil {
			return "", err
		}
		if loc.Type == locations.TypePharmacy {
			pharmacyID = created.ID
		}
	}

	cgst, err := svc.Taxes.Create(ctx, tenant, taxes.Tax{Code: "CGST", Name: "Central GST", Rate: dec("6")})
	if err != nil {
		return "", err
	}
	sgst, err := svc.Taxes.Create(ctx, tenant, taxes.Tax{Code: "SGST", Name: "State GST", Rate: dec("6")})
	if err != nil {
		return "", err
	}
	if _, err := svc.Taxes.CreateGroup(ctx, tenant, taxes.TaxGroup{Name: "GST 12", TaxIDs: []string{cgst.ID, sgst.ID}}); err != nil {
		return "", err
	}

	if _, err := svc.Vendors.Create(ctx, tenant, vendors.Vendor{Code: "MEDSUP", Name: "MedSupply Distributors"}); err != nil {
		return "", err
	}
	return pharmacyID, nil
}

func seedClinic(ctx context.Context, svc *app.Services, tenant string) error {
	if _, err := svc.Clinic.CreateDoctor(ctx, tenant, clinic.CreateDoctorRequest{Name: "Dr. Asha Menon", Specialization: "General Medicine"}); err != nil {
		return err
	}
	for _, p := range []clinic.CreatePatientRequest{
		{Name: "Ravi Kumar", Phone: "+91 98450 00001", Gender: "male"},
		{Name: "Meera Iyer", Phone: "+91 98450 00002", Gender: "female"},
	} {
		if _, err := svc.Clinic.CreatePatient(ctx, tenant, p); err != nil {
			return err
		}
	}
	return nil
}

func seedInventory(ctx context.Context, svc *app.Services, tenant, locationID string) error {
	expiry := time.Now().UTC().AddDate(1, 0, 0)
	items := []inventory.StockItemInput{
		{
			Name: "Paracetamol 500mg", SKU: "PCM-500", Category: "Analgesic", UnitType: "strip",
			Locations: []inventory.InitialStock{{LocationID: locationID, LowStockThreshold: dec("20"), Batches: []inventory.BatchInput{
				{BatchNumber: "PCM-2401", Quantity: dec("120"), CostPrice: dec("12"), SalePrice: dec("15"), ExpiryDate: &expiry},
			}}},
		},
		{
			Name: "Amoxicillin 250mg", SKU: "AMX-250", Category: "Antibiotic", UnitType: "strip",
			Locations: []inventory.InitialStock{{LocationID: locationID, LowStockThreshold: dec("10"), Batches: []inventory.BatchInput{
				{BatchNumber: "AMX-2402", Quantity: dec("8"), CostPrice: dec("40"), SalePrice: dec("50"), ExpiryDate: &expiry},
			}}},
		},
	}
	for _, item := range items {
		if _, err := svc.Inventory.CreateStockItem(ctx, tenant, item); err != nil {
			return err
		}
	}
	return nil
}

func seedPayroll(ctx context.Context, svc *app.Services, tenant string) error {
	group, err := svc.Payroll.CreateSalaryGroup(ctx, tenant, payroll.SalaryGroup{
		Name: "Nursing Staff",
		Components: []payroll.Component{
			{Name: payroll.BasicPayName, Kind: payroll.KindEarning, CalcType: payroll.CalcPercentCTC, Value: dec("50")},
			{Name: "HRA", Kind: payroll.KindEarning, CalcType: payroll.CalcPercentBasic, Value: dec("40")},
			{Name: "Provident Fund", Kind: payroll.KindDeduction, CalcType: payroll.CalcPercentBasic, Value: dec("12")},
		},
	})
	if err != nil {
		return err
	}
	for _, emp := range []payroll.Employee{
		{Name: "Anita Das", Designation: "Staff Nurse", AnnualCTC: dec("360000")},
		{Name: "Joseph Thomas", Designation: "Ward Supervisor", AnnualCTC: dec("480000")},
	} {
		emp.SalaryGroupID = group.ID
		emp.JoinedAt = time.Now().UTC()
		if _, err := svc.Payroll.CreateEmployee(ctx, tenant, emp); err != nil {
			return err
		}
	}
	return nil
}

func seedSession(ctx context.Context, cfg *app.Config, tenant, token string) error {
	client, err := cache.New(ctx, cfg.RedisOptions())
	if err != nil {
		return err
	}
	defer client.Close()
	return shared.NewSessionResolver(client, nil).Store(ctx, token, shared.Principal{
		UserID:        "seed-admin",
		TenantID:      tenant,
		Role:          rbac.RoleAdmin,
		EmailVerified: true,
	}, 24*time.Hour)
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
