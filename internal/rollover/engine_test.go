package rollover

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/invix-erp/invix/internal/periods"
	"github.com/invix-erp/invix/internal/records"
	"github.com/invix-erp/invix/internal/storage/memstore"
)

func seed(t *testing.T) (*memstore.Store, periods.Period) {
	t.Helper()
	ctx := context.Background()
	store := memstore.New()
	p, err := store.CreatePeriod(ctx, "t1", periods.Spec{
		Kind:      periods.KindMonthly,
		StartDate: time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	insert := func(id string, payload records.Payload) {
		require.NoError(t, store.InsertRecord(ctx, records.Record{ID: id, TenantID: "t1", PeriodID: p.ID, Payload: payload}))
	}
	insert("pur-1", records.Purchase{Description: "flour", Quantity: 4, Amount: decimal.RequireFromString("500.00")})
	insert("fin-1", records.Financial{Type: records.FinancialIncome, Amount: decimal.NewFromInt(100)})
	insert("pur-2", records.Purchase{Description: "sugar", Quantity: 1, Amount: decimal.RequireFromString("12.345")})
	insert("cus-1", records.Customer{Name: "Acme"})
	return store, p
}

func TestComputeCarryForwardCopiesPurchasesOnly(t *testing.T) {
	store, p := seed(t)
	engine := NewEngine()
	now := time.Date(2025, time.February, 1, 0, 0, 0, 0, time.UTC)
	engine.WithNow(func() time.Time { return now })

	carried, err := engine.ComputeCarryForward(context.Background(), store, "t1", p)
	require.NoError(t, err)
	require.Len(t, carried, 2)

	require.Equal(t, "pur-1", carried[0].CarriedFrom)
	require.Equal(t, "pur-2", carried[1].CarriedFrom)
	for _, rec := range carried {
		require.NotEqual(t, rec.CarriedFrom, rec.ID)
		require.Empty(t, rec.PeriodID)
		require.Equal(t, "t1", rec.TenantID)
		require.Equal(t, now, rec.CreatedAt)
	}
	// amounts are copied verbatim
	require.Equal(t, "12.345", carried[1].Payload.(records.Purchase).Amount.String())
	require.Equal(t, 4, carried[0].Payload.(records.Purchase).Quantity)

	bound := Bind(carried, "p-next")
	require.Equal(t, "p-next", bound[0].PeriodID)
	require.Empty(t, carried[0].PeriodID)

	source, err := store.ListRecords(context.Background(), records.Scope{TenantID: "t1", PeriodID: p.ID}, records.Filter{})
	require.NoError(t, err)
	require.Len(t, source, 4)
}

func TestComputeCarryForwardEmptyPeriod(t *testing.T) {
	store := memstore.New()
	p, err := store.CreatePeriod(context.Background(), "t1", periods.Spec{
		Kind:      periods.KindDaily,
		StartDate: time.Date(2025, time.March, 3, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)

	carried, err := NewEngine().ComputeCarryForward(context.Background(), store, "t1", p)
	require.NoError(t, err)
	require.Empty(t, carried)
}

type onlyExpensive struct{}

func (onlyExpensive) Kind() records.Kind { return records.KindPurchase }
func (onlyExpensive) Carry(rec records.Record) bool {
	return rec.Payload.(records.Purchase).Amount.GreaterThan(decimal.NewFromInt(100))
}

func TestCustomPolicy(t *testing.T) {
	store, p := seed(t)
	carried, err := NewEngine(onlyExpensive{}).ComputeCarryForward(context.Background(), store, "t1", p)
	require.NoError(t, err)
	require.Len(t, carried, 1)
	require.Equal(t, "pur-1", carried[0].CarriedFrom)
}
