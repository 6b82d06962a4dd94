//go:build integration

package pgstore

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/invix-erp/invix/internal/periods"
	"github.com/invix-erp/invix/internal/platform/db"
	"github.com/invix-erp/invix/internal/records"
	"github.com/invix-erp/invix/internal/rollover"
	"github.com/invix-erp/invix/internal/shared"
	"github.com/invix-erp/invix/internal/storage"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	ctx := context.Background()

	container, err := tcpostgres.Run(ctx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase("invix"),
		tcpostgres.WithUsername("invix"),
		tcpostgres.WithPassword("invix"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	pool, err := db.New(ctx, dsn, db.PoolOptions{MaxConns: 8})
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	store := New(pool)
	require.NoError(t, store.Migrate(ctx))
	return store
}

func monthly(year int, month time.Month) periods.Spec {
	return periods.Spec{Kind: periods.KindMonthly, StartDate: time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)}
}

func TestPeriodLifecycle(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	p, err := store.CreatePeriod(ctx, "t1", monthly(2025, time.January))
	require.NoError(t, err)

	_, err = store.CreatePeriod(ctx, "t1", monthly(2025, time.February))
	require.ErrorIs(t, err, shared.ErrConflict)

	rec := records.Record{
		ID:        "r1",
		TenantID:  "t1",
		PeriodID:  p.ID,
		CreatedAt: time.Now().UTC(),
		Payload:   records.Purchase{Description: "paper", Quantity: 2, Amount: decimal.RequireFromString("500.10")},
	}
	require.NoError(t, store.InsertRecord(ctx, rec))

	got, err := store.GetRecord(ctx, records.Scope{TenantID: "t1", PeriodID: p.ID}, "r1")
	require.NoError(t, err)
	require.True(t, got.Payload.(records.Purchase).Amount.Equal(decimal.RequireFromString("500.10")))

	_, err = store.ListRecords(ctx, records.Scope{TenantID: "t2", PeriodID: p.ID}, records.Filter{})
	require.ErrorIs(t, err, shared.ErrNotFound)

	require.NoError(t, store.ClosePeriod(ctx, "t1", p.ID))
	require.ErrorIs(t, store.ClosePeriod(ctx, "t1", p.ID), shared.ErrInvalidState)

	rec.ID = "r2"
	require.ErrorIs(t, store.InsertRecord(ctx, rec), records.ErrPeriodFrozen)
}

func TestWithTxIsAtomic(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	p, err := store.CreatePeriod(ctx, "t1", monthly(2025, time.January))
	require.NoError(t, err)

	err = store.WithTx(ctx, "t1", func(ctx context.Context, tx storage.Tx) error {
		if err := tx.ClosePeriod(ctx, "t1", p.ID); err != nil {
			return err
		}
		next, err := periods.New("t1", monthly(2025, time.February), time.Now())
		if err != nil {
			return err
		}
		if err := tx.InsertPeriod(ctx, next); err != nil {
			return err
		}
		return tx.InsertRecords(ctx, []records.Record{{
			ID: "c1", TenantID: "t1", PeriodID: "missing", CreatedAt: time.Now(),
			Payload: records.Purchase{Amount: decimal.NewFromInt(1)},
		}})
	})
	require.ErrorIs(t, err, shared.ErrNotFound)

	active, err := store.GetActive(ctx, "t1")
	require.NoError(t, err)
	require.Equal(t, p.ID, active.ID)
}

func TestConcurrentCreateSingleWinner(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		conflicts int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := store.CreatePeriod(ctx, "t1", monthly(2025, time.January))
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes++
			case errors.Is(err, shared.ErrConflict):
				conflicts++
			}
		}()
	}
	wg.Wait()
	require.Equal(t, 1, successes)
	require.Equal(t, 7, conflicts)
}

// waitForBlockedLock returns once some backend waits on a row lock.
func waitForBlockedLock(t *testing.T, store *Store) {
	t.Helper()
	require.Eventually(t, func() bool {
		var n int
		err := store.pool.QueryRow(context.Background(), `SELECT count(*) FROM pg_locks WHERE NOT granted`).Scan(&n)
		return err == nil && n > 0
	}, 10*time.Second, 20*time.Millisecond)
}

func transitionTo(ctx context.Context, store *Store, spec periods.Spec, beforeClose func()) ([]records.Record, error) {
	var carried []records.Record
	err := store.WithTx(ctx, "t1", func(ctx context.Context, tx storage.Tx) error {
		current, err := tx.GetActive(ctx, "t1")
		if err != nil {
			return err
		}
		if beforeClose != nil {
			beforeClose()
		}
		carried, err = rollover.NewEngine(rollover.DefaultPolicies()...).ComputeCarryForward(ctx, tx, "t1", current)
		if err != nil {
			return err
		}
		if err := tx.ClosePeriod(ctx, "t1", current.ID); err != nil {
			return err
		}
		next, err := periods.New("t1", spec, time.Now())
		if err != nil {
			return err
		}
		if err := tx.InsertPeriod(ctx, next); err != nil {
			return err
		}
		carried = rollover.Bind(carried, next.ID)
		return tx.InsertRecords(ctx, carried)
	})
	return carried, err
}

func TestTransitionWaitsForInflightInsert(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	jan, err := store.CreatePeriod(ctx, "t1", monthly(2025, time.January))
	require.NoError(t, err)

	// an insert that holds the period row but has not committed yet
	pending, err := store.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	require.NoError(t, err)
	defer func() { _ = pending.Rollback(ctx) }()
	require.NoError(t, queries{db: pending}.insertRecords(ctx, []records.Record{{
		ID: "late", TenantID: "t1", PeriodID: jan.ID, CreatedAt: time.Now().UTC(),
		Payload: records.Purchase{Description: "late stock", Quantity: 1, Amount: decimal.RequireFromString("500.50")},
	}}))

	type outcome struct {
		carried []records.Record
		err     error
	}
	done := make(chan outcome, 1)
	go func() {
		carried, err := transitionTo(ctx, store, monthly(2025, time.February), nil)
		done <- outcome{carried, err}
	}()

	waitForBlockedLock(t, store)
	require.NoError(t, pending.Commit(ctx))

	res := <-done
	require.NoError(t, res.err)
	require.Len(t, res.carried, 1)
	require.Equal(t, "late", res.carried[0].CarriedFrom)

	feb, err := store.GetActive(ctx, "t1")
	require.NoError(t, err)
	moved, err := store.ListRecords(ctx, records.Scope{TenantID: "t1", PeriodID: feb.ID}, records.Filter{Kind: records.KindPurchase})
	require.NoError(t, err)
	require.Len(t, moved, 1)
}

func TestInsertDuringTransitionSeesFrozenPeriod(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	jan, err := store.CreatePeriod(ctx, "t1", monthly(2025, time.January))
	require.NoError(t, err)

	locked := make(chan struct{})
	release := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		_, err := transitionTo(ctx, store, monthly(2025, time.February), func() {
			close(locked)
			<-release
		})
		done <- err
	}()
	<-locked

	insertErr := make(chan error, 1)
	go func() {
		insertErr <- store.InsertRecord(ctx, records.Record{
			ID: "late", TenantID: "t1", PeriodID: jan.ID, CreatedAt: time.Now().UTC(),
			Payload: records.Purchase{Description: "late stock", Quantity: 1, Amount: decimal.NewFromInt(1)},
		})
	}()
	waitForBlockedLock(t, store)
	close(release)

	require.NoError(t, <-done)
	require.ErrorIs(t, <-insertErr, records.ErrPeriodFrozen)

	left, err := store.ListRecords(ctx, records.Scope{TenantID: "t1", PeriodID: jan.ID}, records.Filter{})
	require.NoError(t, err)
	require.Empty(t, left)
}
