package records_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/invix-erp/invix/internal/periods"
	"github.com/invix-erp/invix/internal/records"
	"github.com/invix-erp/invix/internal/shared"
	"github.com/invix-erp/invix/internal/storage/memstore"
)

func newService(t *testing.T) (*records.Service, *memstore.Store, periods.Period) {
	t.Helper()
	store := memstore.New()
	p, err := store.CreatePeriod(context.Background(), "t1", periods.Spec{
		Kind:      periods.KindMonthly,
		StartDate: time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	return records.NewService(store, records.NewPartitioner(store), nil), store, p
}

func TestServiceCreateAndList(t *testing.T) {
	svc, _, p := newService(t)
	ctx := context.Background()

	rec, err := svc.Create(ctx, "t1", records.Financial{Type: records.FinancialIncome, Amount: decimal.NewFromInt(1000)})
	require.NoError(t, err)
	require.Equal(t, p.ID, rec.PeriodID)

	_, err = svc.Create(ctx, "t1", records.Customer{Name: "Acme"})
	require.NoError(t, err)

	all, err := svc.List(ctx, records.Scope{TenantID: "t1", PeriodID: p.ID}, records.Filter{})
	require.NoError(t, err)
	require.Len(t, all, 2)

	onlyFinancial, err := svc.List(ctx, records.Scope{TenantID: "t1", PeriodID: p.ID}, records.Filter{Kind: records.KindFinancial})
	require.NoError(t, err)
	require.Len(t, onlyFinancial, 1)
	require.Equal(t, rec.ID, onlyFinancial[0].ID)

	_, err = svc.List(ctx, records.Scope{TenantID: "t1"}, records.Filter{})
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestServiceCreateWithoutActivePeriod(t *testing.T) {
	svc, _, _ := newService(t)
	_, err := svc.Create(context.Background(), "t-new", records.Customer{Name: "Acme"})
	require.ErrorIs(t, err, records.ErrNoActivePeriod)
}

func TestServiceUpdateKeepsEnvelope(t *testing.T) {
	svc, store, p := newService(t)
	ctx := context.Background()
	scope := records.Scope{TenantID: "t1", PeriodID: p.ID}

	rec, err := svc.Create(ctx, "t1", records.Customer{Name: "Acme"})
	require.NoError(t, err)

	updated, err := svc.UpdatePayload(ctx, scope, rec.ID, records.Customer{Name: "Acme Ltd"})
	require.NoError(t, err)
	require.Equal(t, rec.PeriodID, updated.PeriodID)
	require.Equal(t, rec.CreatedAt, updated.CreatedAt)

	_, err = svc.UpdatePayload(ctx, scope, rec.ID, records.Feedback{Rating: 4})
	require.ErrorIs(t, err, records.ErrKindChanged)

	require.NoError(t, store.ClosePeriod(ctx, "t1", p.ID))
	_, err = svc.UpdatePayload(ctx, scope, rec.ID, records.Customer{Name: "Late edit"})
	require.ErrorIs(t, err, records.ErrPeriodFrozen)
	require.ErrorIs(t, svc.Delete(ctx, scope, rec.ID), shared.ErrInvalidState)

	got, err := svc.Get(ctx, scope, rec.ID)
	require.NoError(t, err)
	require.Equal(t, "Acme Ltd", got.Payload.(records.Customer).Name)
}
