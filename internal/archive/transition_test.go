package archive_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/invix-erp/invix/internal/archive"
	"github.com/invix-erp/invix/internal/close"
	"github.com/invix-erp/invix/internal/periods"
	"github.com/invix-erp/invix/internal/shared"
	"github.com/invix-erp/invix/internal/storage/memstore"
)

func TestJanuaryTransitionArchivesPreviousYear(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	sink := archive.NewMemorySink()
	archiver := archive.NewService(archive.Config{Store: store, Sink: sink})
	svc := close.NewService(close.ServiceConfig{
		Store:    store,
		Archiver: archive.DirectScheduler{Service: archiver},
	})

	dec, err := svc.TransitionPeriod(ctx, "T1", periods.Spec{Kind: periods.KindMonthly, StartDate: time.Date(2024, time.December, 1, 0, 0, 0, 0, time.UTC)})
	require.NoError(t, err)
	jan, err := svc.TransitionPeriod(ctx, "T1", periods.Spec{Kind: periods.KindMonthly, StartDate: time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC)})
	require.NoError(t, err)
	require.Equal(t, 2024, jan.ArchiveYear)

	_, err = store.GetPeriod(ctx, "T1", dec.Period.ID)
	require.ErrorIs(t, err, shared.ErrNotFound)
	artifact, err := archive.Load(ctx, sink, "T1", 2024)
	require.NoError(t, err)
	require.Len(t, artifact.Periods, 1)
	require.Equal(t, dec.Period.ID, artifact.Periods[0].ID)

	active, err := store.GetActive(ctx, "T1")
	require.NoError(t, err)
	require.Equal(t, jan.Period.ID, active.ID)
}
