package jobs

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/invix-erp/invix/internal/jobs"
	"github.com/invix-erp/invix/internal/periods"
)

// PeriodLister reads the periods of a tenant.
type PeriodLister interface {
	ListPeriods(ctx context.Context, tenantID string, filter periods.ListFilter) ([]periods.Period, error)
}

// TenantLister enumerates known tenants.
type TenantLister interface {
	ListTenants(ctx context.Context) ([]string, error)
}

// ArchiveScheduler hands a tenant year to the archiver.
type ArchiveScheduler interface {
	ScheduleArchive(ctx context.Context, tenantID string, year int) error
}

// ArchiveSweepJob schedules every finished year that still has closed periods in live
// storage. It catches years whose archive was never scheduled, for example when a tenant
// skipped January or a post-transition enqueue failed.
type ArchiveSweepJob struct {
	Tenants   TenantLister
	Periods   PeriodLister
	Scheduler ArchiveScheduler
	Logger    *slog.Logger
	Metrics   *jobmetrics.Metrics
	clock     func() time.Time
}

// NewArchiveSweepJob constructs the sweep handler.
func NewArchiveSweepJob(tenants TenantLister, store PeriodLister, scheduler ArchiveScheduler, logger *slog.Logger, metrics *jobmetrics.Metrics) *ArchiveSweepJob {
	return &ArchiveSweepJob{
		Tenants:   tenants,
		Periods:   store,
		Scheduler: scheduler,
		Logger:    logger,
		Metrics:   metrics,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// WithClock overrides the internal clock for deterministic tests.
func (j *ArchiveSweepJob) WithClock(clock func() time.Time) {
	if j != nil && clock != nil {
		j.clock = clock
	}
}

// Handle executes the sweep.
func (j *ArchiveSweepJob) Handle(ctx context.Context, _ *asynq.Task) (err error) {
	if j == nil || j.Tenants == nil || j.Periods == nil || j.Scheduler == nil {
		return errors.New("archive sweep: dependencies not configured")
	}
	tracker := j.Metrics.Track(TaskArchiveSweep)
	defer func() {
		err = tracker.End(err)
	}()

	tenants, err := j.Tenants.ListTenants(ctx)
	if err != nil {
		return err
	}
	current := j.clock().Year()
	scheduled := 0
	var errs []error
	for _, tenantID := range tenants {
		years, err := j.finishedYears(ctx, tenantID, current)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		for _, year := range years {
			if err := j.Scheduler.ScheduleArchive(ctx, tenantID, year); err != nil {
				j.log().Warn("schedule archive", slog.String("tenant_id", tenantID), slog.Int("year", year), slog.Any("error", err))
				errs = append(errs, err)
				continue
			}
			scheduled++
		}
	}
	j.log().Info("archive sweep finished", slog.Int("tenants", len(tenants)), slog.Int("scheduled", scheduled))
	return errors.Join(errs...)
}

// finishedYears lists the years before current that still hold closed periods lying fully
// inside them.
func (j *ArchiveSweepJob) finishedYears(ctx context.Context, tenantID string, current int) ([]int, error) {
	closed, err := j.Periods.ListPeriods(ctx, tenantID, periods.ListFilter{Status: periods.StatusClosed})
	if err != nil {
		return nil, err
	}
	var years []int
	for _, p := range closed {
		year := p.StartDate.Year()
		if year < current && p.WithinYear(year) && !slices.Contains(years, year) {
			years = append(years, year)
		}
	}
	slices.Sort(years)
	return years, nil
}

func (j *ArchiveSweepJob) log() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskArchiveSweep))
	}
	return slog.Default().With(slog.String("job", TaskArchiveSweep))
}
