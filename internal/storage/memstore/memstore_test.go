package memstore

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/invix-erp/invix/internal/periods"
	"github.com/invix-erp/invix/internal/records"
	"github.com/invix-erp/invix/internal/shared"
	"github.com/invix-erp/invix/internal/storage"
)

func monthly(year int, month time.Month) periods.Spec {
	return periods.Spec{Kind: periods.KindMonthly, StartDate: time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)}
}

func purchase(tenantID, periodID, id string, amount int64) records.Record {
	return records.Record{
		ID:       id,
		TenantID: tenantID,
		PeriodID: periodID,
		Payload:  records.Purchase{Description: "stock", Quantity: 1, Amount: decimal.NewFromInt(amount)},
	}
}

func TestCreatePeriodSingleActive(t *testing.T) {
	ctx := context.Background()
	store := New()

	first, err := store.CreatePeriod(ctx, "t1", monthly(2025, time.January))
	require.NoError(t, err)
	require.Equal(t, periods.StatusActive, first.Status)
	require.Equal(t, time.Date(2025, time.February, 1, 0, 0, 0, 0, time.UTC), first.EndDate)

	_, err = store.CreatePeriod(ctx, "t1", monthly(2025, time.February))
	require.ErrorIs(t, err, shared.ErrConflict)

	// other tenants are independent
	_, err = store.CreatePeriod(ctx, "t2", monthly(2025, time.February))
	require.NoError(t, err)

	active, err := store.GetActive(ctx, "t1")
	require.NoError(t, err)
	require.Equal(t, first.ID, active.ID)
}

func TestClosePeriod(t *testing.T) {
	ctx := context.Background()
	store := New()
	closedAt := time.Date(2025, time.February, 1, 9, 0, 0, 0, time.UTC)
	store.WithNow(func() time.Time { return closedAt })

	p, err := store.CreatePeriod(ctx, "t1", monthly(2025, time.January))
	require.NoError(t, err)

	require.NoError(t, store.ClosePeriod(ctx, "t1", p.ID))
	got, err := store.GetPeriod(ctx, "t1", p.ID)
	require.NoError(t, err)
	require.Equal(t, periods.StatusClosed, got.Status)
	require.Equal(t, closedAt, *got.ClosedAt)

	require.ErrorIs(t, store.ClosePeriod(ctx, "t1", p.ID), shared.ErrInvalidState)
	require.ErrorIs(t, store.ClosePeriod(ctx, "t2", p.ID), shared.ErrNotFound)

	_, err = store.GetActive(ctx, "t1")
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestRecordsScopedAndFrozen(t *testing.T) {
	ctx := context.Background()
	store := New()
	p, err := store.CreatePeriod(ctx, "t1", monthly(2025, time.January))
	require.NoError(t, err)

	require.NoError(t, store.InsertRecord(ctx, purchase("t1", p.ID, "r1", 500)))
	require.ErrorIs(t, store.InsertRecord(ctx, purchase("t1", p.ID, "r1", 500)), shared.ErrConflict)
	require.ErrorIs(t, store.InsertRecord(ctx, purchase("t2", p.ID, "r2", 500)), shared.ErrNotFound)

	_, err = store.GetRecord(ctx, records.Scope{TenantID: "t2", PeriodID: p.ID}, "r1")
	require.ErrorIs(t, err, shared.ErrNotFound)

	updated := purchase("t1", p.ID, "r1", 750)
	require.NoError(t, store.UpdateRecord(ctx, records.Scope{TenantID: "t1", PeriodID: p.ID}, updated))
	got, err := store.GetRecord(ctx, records.Scope{TenantID: "t1", PeriodID: p.ID}, "r1")
	require.NoError(t, err)
	require.True(t, decimal.NewFromInt(750).Equal(got.Payload.(records.Purchase).Amount))

	require.NoError(t, store.ClosePeriod(ctx, "t1", p.ID))
	require.ErrorIs(t, store.InsertRecord(ctx, purchase("t1", p.ID, "r3", 1)), records.ErrPeriodFrozen)
	require.ErrorIs(t, store.DeleteRecord(ctx, records.Scope{TenantID: "t1", PeriodID: p.ID}, "r1"), records.ErrPeriodFrozen)

	list, err := store.ListRecords(ctx, records.Scope{TenantID: "t1", PeriodID: p.ID}, records.Filter{})
	require.NoError(t, err)
	require.Len(t, list, 1)
}

func TestWithTxRollsBackOnError(t *testing.T) {
	ctx := context.Background()
	store := New()
	p, err := store.CreatePeriod(ctx, "t1", monthly(2025, time.January))
	require.NoError(t, err)

	boom := errors.New("boom")
	err = store.WithTx(ctx, "t1", func(ctx context.Context, tx storage.Tx) error {
		require.NoError(t, tx.ClosePeriod(ctx, "t1", p.ID))
		next, err := periods.New("t1", monthly(2025, time.February), time.Now())
		require.NoError(t, err)
		require.NoError(t, tx.InsertPeriod(ctx, next))
		require.NoError(t, tx.InsertRecords(ctx, []records.Record{purchase("t1", next.ID, "c1", 10)}))
		return boom
	})
	require.ErrorIs(t, err, boom)

	active, err := store.GetActive(ctx, "t1")
	require.NoError(t, err)
	require.Equal(t, p.ID, active.ID)
	all, err := store.ListPeriods(ctx, "t1", periods.ListFilter{})
	require.NoError(t, err)
	require.Len(t, all, 1)
}

func TestDeletePeriodsRemovesRecords(t *testing.T) {
	ctx := context.Background()
	store := New()
	p, err := store.CreatePeriod(ctx, "t1", monthly(2024, time.December))
	require.NoError(t, err)
	require.NoError(t, store.InsertRecord(ctx, purchase("t1", p.ID, "r1", 5)))
	require.NoError(t, store.InsertRecord(ctx, purchase("t1", p.ID, "r2", 6)))
	require.NoError(t, store.ClosePeriod(ctx, "t1", p.ID))

	var removed int
	err = store.WithTx(ctx, "t1", func(ctx context.Context, tx storage.Tx) error {
		var err error
		removed, err = tx.DeletePeriods(ctx, "t1", []string{p.ID, "missing"})
		return err
	})
	require.NoError(t, err)
	require.Equal(t, 2, removed)

	_, err = store.GetPeriod(ctx, "t1", p.ID)
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestReadersSeeWholeTransitions(t *testing.T) {
	ctx := context.Background()
	store := New()
	_, err := store.CreatePeriod(ctx, "t1", monthly(2025, time.January))
	require.NoError(t, err)

	var wg sync.WaitGroup
	stop := make(chan struct{})
	violations := make(chan int, 1)
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-stop:
				return
			default:
			}
			list, _ := store.ListPeriods(ctx, "t1", periods.ListFilter{Status: periods.StatusActive})
			if len(list) != 1 {
				select {
				case violations <- len(list):
				default:
				}
			}
		}
	}()

	for month := time.February; month <= time.December; month++ {
		err := store.WithTx(ctx, "t1", func(ctx context.Context, tx storage.Tx) error {
			current, err := tx.GetActive(ctx, "t1")
			if err != nil {
				return err
			}
			if err := tx.ClosePeriod(ctx, "t1", current.ID); err != nil {
				return err
			}
			next, err := periods.New("t1", monthly(2025, month), time.Now())
			if err != nil {
				return err
			}
			return tx.InsertPeriod(ctx, next)
		})
		require.NoError(t, err)
	}
	close(stop)
	wg.Wait()

	select {
	case n := <-violations:
		t.Fatalf("reader observed %d active periods", n)
	default:
	}
}

func TestListTenantsSkipsEmptyShards(t *testing.T) {
	ctx := context.Background()
	store := New()
	_, err := store.CreatePeriod(ctx, "t2", monthly(2025, time.January))
	require.NoError(t, err)
	_, err = store.CreatePeriod(ctx, "t1", monthly(2025, time.January))
	require.NoError(t, err)
	// a committed tx that writes nothing leaves an empty shard
	require.NoError(t, store.WithTx(ctx, "t3", func(context.Context, storage.Tx) error { return nil }))

	tenants, err := store.ListTenants(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"t1", "t2"}, tenants)
}

func TestUnknownTenantsAllocateNothing(t *testing.T) {
	ctx := context.Background()
	store := New()

	for i := 0; i < 1000; i++ {
		tenantID := fmt.Sprintf("ghost-%d", i)
		_, err := store.GetActive(ctx, tenantID)
		require.ErrorIs(t, err, shared.ErrNotFound)
		_, err = store.ListPeriods(ctx, tenantID, periods.ListFilter{})
		require.NoError(t, err)
		_, err = store.GetRecord(ctx, records.Scope{TenantID: tenantID, PeriodID: "p"}, "r")
		require.ErrorIs(t, err, shared.ErrNotFound)
		// rejected writes are dropped as well
		err = store.DeleteRecord(ctx, records.Scope{TenantID: tenantID, PeriodID: "p"}, "r")
		require.ErrorIs(t, err, shared.ErrNotFound)
		err = store.ClosePeriod(ctx, tenantID, "p")
		require.ErrorIs(t, err, shared.ErrNotFound)
	}
	require.Empty(t, store.shards)

	_, err := store.CreatePeriod(ctx, "t1", monthly(2025, time.January))
	require.NoError(t, err)
	require.Len(t, store.shards, 1)
}
