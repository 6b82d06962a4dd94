package close

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/invix-erp/invix/internal/events"
	"github.com/invix-erp/invix/internal/periods"
	"github.com/invix-erp/invix/internal/platform/lock"
	"github.com/invix-erp/invix/internal/records"
	"github.com/invix-erp/invix/internal/rollover"
	"github.com/invix-erp/invix/internal/shared"
	"github.com/invix-erp/invix/internal/storage"
	"github.com/invix-erp/invix/internal/tenant"
)

const defaultLockTTL = 30 * time.Second

// ServiceConfig wires the period manager. Store, Engine and Locker are required.
type ServiceConfig struct {
	Store     storage.Store
	Engine    CarryForward
	Locker    lock.Locker
	LockTTL   time.Duration
	Archiver  ArchiveScheduler
	Publisher events.Publisher
	Metrics   Recorder
	Logger    *slog.Logger
}

// Service orchestrates the period lifecycle of every tenant.
type Service struct {
	store     storage.Store
	engine    CarryForward
	locker    lock.Locker
	lockTTL   time.Duration
	archiver  ArchiveScheduler
	publisher events.Publisher
	metrics   Recorder
	logger    *slog.Logger
	now       func() time.Time
}

// NewService constructs a Service instance.
func NewService(cfg ServiceConfig) *Service {
	svc := &Service{
		store:     cfg.Store,
		engine:    cfg.Engine,
		locker:    cfg.Locker,
		lockTTL:   cfg.LockTTL,
		archiver:  cfg.Archiver,
		publisher: cfg.Publisher,
		metrics:   cfg.Metrics,
		logger:    cfg.Logger,
		now:       time.Now,
	}
	if svc.engine == nil {
		svc.engine = rollover.NewEngine()
	}
	if svc.locker == nil {
		svc.locker = lock.NewMemory()
	}
	if svc.lockTTL <= 0 {
		svc.lockTTL = defaultLockTTL
	}
	if svc.publisher == nil {
		svc.publisher = events.Nop{}
	}
	if svc.metrics == nil {
		svc.metrics = nopRecorder{}
	}
	if svc.logger == nil {
		svc.logger = slog.Default()
	}
	return svc
}

// WithNow overrides the clock for deterministic tests.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// ListPeriods returns the tenant's periods ordered by start date.
func (s *Service) ListPeriods(ctx context.Context, tenantID string, filter periods.ListFilter) ([]periods.Period, error) {
	return s.store.ListPeriods(ctx, tenantID, filter)
}

// GetPeriod returns one period of the tenant.
func (s *Service) GetPeriod(ctx context.Context, tenantID, periodID string) (periods.Period, error) {
	return s.store.GetPeriod(ctx, tenantID, periodID)
}

// GetActive returns the period currently open for writes.
func (s *Service) GetActive(ctx context.Context, tenantID string) (periods.Period, error) {
	return s.store.GetActive(ctx, tenantID)
}

// TransitionPeriod closes the tenant's active period, opens one built from spec and carries
// forward the records the rollover engine selects. Either all of it commits or nothing does.
// A concurrent transition for the same tenant fails with a conflict.
func (s *Service) TransitionPeriod(ctx context.Context, tenantID string, spec periods.Spec) (TransitionResult, error) {
	started := time.Now()
	result, err := s.transitionLocked(ctx, tenantID, spec)
	s.metrics.ObserveTransition(outcome(err), len(result.CarriedForward), time.Since(started))
	if err != nil {
		s.logger.WarnContext(ctx, "period transition failed",
			slog.String("tenant_id", tenantID),
			slog.Any("error", err),
		)
		return TransitionResult{}, err
	}
	s.afterCommit(ctx, &result)
	return result, nil
}

func (s *Service) transitionLocked(ctx context.Context, tenantID string, spec periods.Spec) (TransitionResult, error) {
	if err := tenant.Validate(tenantID); err != nil {
		return TransitionResult{}, err
	}
	next, err := periods.New(tenantID, spec, s.now())
	if err != nil {
		return TransitionResult{}, err
	}
	lease, err := s.locker.TryAcquire(ctx, shared.TransitionLockKey(tenantID), s.lockTTL)
	if errors.Is(err, lock.ErrHeld) {
		return TransitionResult{}, ErrTransitionInProgress
	}
	if err != nil {
		return TransitionResult{}, fmt.Errorf("close: acquire transition lock: %w", err)
	}
	defer func() {
		if err := lease.Release(context.WithoutCancel(ctx)); err != nil {
			s.logger.WarnContext(ctx, "release transition lock", slog.String("tenant_id", tenantID), slog.Any("error", err))
		}
	}()

	var result TransitionResult
	err = s.store.WithTx(ctx, tenantID, func(ctx context.Context, tx storage.Tx) error {
		var carried []records.Record
		current, err := tx.GetActive(ctx, tenantID)
		switch {
		case errors.Is(err, periods.ErrNoActivePeriod):
			// first period of the tenant
		case err != nil:
			return err
		default:
			if next.StartDate.Before(current.StartDate) {
				return ErrStartsBeforeCurrent
			}
			carried, err = s.engine.ComputeCarryForward(ctx, tx, tenantID, current)
			if err != nil {
				return fmt.Errorf("close: carry forward: %w", err)
			}
			if err := tx.ClosePeriod(ctx, tenantID, current.ID); err != nil {
				return err
			}
			closed, err := tx.GetPeriod(ctx, tenantID, current.ID)
			if err != nil {
				return err
			}
			result.Closed = &closed
		}
		if err := tx.InsertPeriod(ctx, next); err != nil {
			return err
		}
		bound := rollover.Bind(carried, next.ID)
		if len(bound) > 0 {
			if err := tx.InsertRecords(ctx, bound); err != nil {
				return err
			}
		}
		result.Period = next
		result.CarriedForward = bound
		return nil
	})
	if err != nil {
		return TransitionResult{}, err
	}
	if result.CarriedForward == nil {
		result.CarriedForward = []records.Record{}
	}
	return result, nil
}

// afterCommit publishes lifecycle events and hands a finished year to the archiver. Failures
// are logged; the transition is already durable.
func (s *Service) afterCommit(ctx context.Context, result *TransitionResult) {
	tenantID := result.Period.TenantID
	now := s.now().UTC()
	var evs []events.Event
	if result.Closed != nil {
		evs = append(evs, events.Event{
			Type:       events.PeriodClosed,
			TenantID:   tenantID,
			OccurredAt: now,
			Data:       map[string]any{"period_id": result.Closed.ID, "name": result.Closed.Name},
		})
	}
	evs = append(evs, events.Event{
		Type:       events.PeriodOpened,
		TenantID:   tenantID,
		OccurredAt: now,
		Data: map[string]any{
			"period_id":       result.Period.ID,
			"name":            result.Period.Name,
			"kind":            string(result.Period.Kind),
			"start_date":      result.Period.StartDate.Format(time.DateOnly),
			"end_date":        result.Period.EndDate.Format(time.DateOnly),
			"carried_forward": len(result.CarriedForward),
		},
	})
	if err := s.publisher.Publish(ctx, evs...); err != nil {
		s.logger.WarnContext(ctx, "publish period events", slog.String("tenant_id", tenantID), slog.Any("error", err))
	}

	year, ok := yearToArchive(result)
	if !ok || s.archiver == nil {
		return
	}
	if err := s.archiver.ScheduleArchive(ctx, tenantID, year); err != nil {
		s.logger.ErrorContext(ctx, "schedule year archive",
			slog.String("tenant_id", tenantID),
			slog.Int("year", year),
			slog.Any("error", err),
		)
		return
	}
	result.ArchiveYear = year
	s.logger.InfoContext(ctx, "year archive scheduled", slog.String("tenant_id", tenantID), slog.Int("year", year))
}

// yearToArchive reports the finished year when the transition is the first close of a new
// calendar year, i.e. the successor starts in January of a later year than the closed period.
func yearToArchive(result *TransitionResult) (int, bool) {
	if result.Closed == nil {
		return 0, false
	}
	start := result.Period.StartDate
	if start.Month() != time.January || result.Closed.StartDate.Year() >= start.Year() {
		return 0, false
	}
	return start.Year() - 1, true
}

// EnsureDefaultPeriod opens a monthly period starting on the first day of the current month
// when the tenant has no active period. It reports whether a period was created.
func (s *Service) EnsureDefaultPeriod(ctx context.Context, tenantID string) (periods.Period, bool, error) {
	active, err := s.store.GetActive(ctx, tenantID)
	if err == nil {
		return active, false, nil
	}
	if !errors.Is(err, periods.ErrNoActivePeriod) {
		return periods.Period{}, false, err
	}
	result, err := s.TransitionPeriod(ctx, tenantID, periods.Spec{
		Kind:      periods.KindMonthly,
		StartDate: periods.MonthStart(s.now()),
	})
	if errors.Is(err, shared.ErrConflict) {
		// a concurrent bootstrap won
		active, err := s.store.GetActive(ctx, tenantID)
		return active, false, err
	}
	if err != nil {
		return periods.Period{}, false, err
	}
	return result.Period, true, nil
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, shared.ErrConflict):
		return "conflict"
	case errors.Is(err, shared.ErrValidation):
		return "invalid"
	default:
		return "failure"
	}
}
