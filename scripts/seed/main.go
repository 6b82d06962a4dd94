package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/shopspring/decimal"

	"github.com/invix-erp/invix/internal/app"
	"github.com/invix-erp/invix/internal/periods"
	"github.com/invix-erp/invix/internal/records"
)

// Seeds demo tenants with a year of monthly periods. Run against the configured storage
// driver; the memory driver only makes sense for a dry run.
func main() {
	ctx := context.Background()
	cfg, err := app.LoadConfig()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	services, err := app.NewServices(ctx, cfg, app.NewLogger(cfg))
	if err != nil {
		log.Fatalf("init services: %v", err)
	}
	defer services.Close()

	year := time.Now().UTC().Year()
	tenants := []string{"demo-retail", "demo-clinic"}
	if v := os.Getenv("SEED_TENANTS"); v != "" {
		tenants = []string{v}
	}
	for _, tenantID := range tenants {
		fmt.Printf("→ Seeding %s...\n", tenantID)
		if err := seedTenant(ctx, services, tenantID, year); err != nil {
			log.Fatalf("seed %s: %v", tenantID, err)
		}
	}
	fmt.Println("✓ Seed complete")
}

func seedTenant(ctx context.Context, s *app.Services, tenantID string, year int) error {
	now := time.Now().UTC()
	for month := time.January; month <= now.Month(); month++ {
		start := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
		if _, err := s.Periods.TransitionPeriod(ctx, tenantID, periods.Spec{Kind: periods.KindMonthly, StartDate: start}); err != nil {
			return fmt.Errorf("open %s: %w", start.Format("2006-01"), err)
		}
		for _, payload := range monthPayloads(start, int(month)) {
			if _, err := s.Records.Create(ctx, tenantID, payload); err != nil {
				return fmt.Errorf("record %s: %w", payload.Kind(), err)
			}
		}
	}
	return nil
}

func monthPayloads(start time.Time, n int) []records.Payload {
	base := decimal.NewFromInt(int64(1000 + 50*n))
	return []records.Payload{
		records.Financial{Type: records.FinancialIncome, Amount: base.Mul(decimal.NewFromInt(4)), Description: "Monthly revenue", Date: start, Status: records.PaymentPaid},
		records.Financial{Type: records.FinancialPayroll, Amount: base.Mul(decimal.NewFromInt(2)), Description: "Payroll", Date: start, Status: records.PaymentPaid},
		records.MonthlyExpense{Description: "Rent", Category: "facilities", Date: start, Amount: decimal.NewFromInt(750)},
		records.Sale{Description: "Walk-in sales", Date: start, Amount: base},
		records.Purchase{Description: "Stock replenishment", Supplier: "Acme Supply", Date: start, Quantity: n, Amount: base.Div(decimal.NewFromInt(2))},
		records.Attendance{EmployeeID: "emp-001", Date: start, Status: records.AttendancePresent},
	}
}
