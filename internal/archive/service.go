// Package archive moves finished years of tenant data out of live storage.
package archive

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/invix-erp/invix/internal/events"
	"github.com/invix-erp/invix/internal/history"
	"github.com/invix-erp/invix/internal/periods"
	"github.com/invix-erp/invix/internal/platform/lock"
	"github.com/invix-erp/invix/internal/records"
	"github.com/invix-erp/invix/internal/shared"
	"github.com/invix-erp/invix/internal/storage"
	"github.com/invix-erp/invix/internal/tenant"
)

// Mode selects what happens to archived data.
type Mode string

const (
	// ModeExport writes an artifact to the sink before deleting.
	ModeExport Mode = "export"
	// ModeDelete deletes without keeping a copy. It must be chosen explicitly.
	ModeDelete Mode = "delete"
)

var (
	// ErrSinkRequired indicates export mode without a sink.
	ErrSinkRequired = fmt.Errorf("%w: archive: export mode requires a sink, or opt into delete mode", shared.ErrValidation)
	// ErrUnknownMode indicates an unsupported archive mode.
	ErrUnknownMode = fmt.Errorf("%w: archive: mode must be export or delete", shared.ErrValidation)
	// ErrInvalidYear indicates a year outside the calendar range.
	ErrInvalidYear = fmt.Errorf("%w: archive: invalid year", shared.ErrValidation)
	// ErrPeriodActive indicates an attempt to purge the period open for writes.
	ErrPeriodActive = fmt.Errorf("%w: archive: active period cannot be purged", shared.ErrInvalidState)
)

const defaultLockTTL = 5 * time.Minute

// Recorder receives archive metrics.
type Recorder interface {
	ObserveArchive(outcome string, removed int)
}

// Invalidator drops derived data that may reference removed periods.
type Invalidator interface {
	Invalidate(ctx context.Context) error
}

// Config wires the archive service.
type Config struct {
	Store       storage.Store
	Sink        Sink
	Mode        Mode
	Locker      lock.Locker
	LockTTL     time.Duration
	Publisher   events.Publisher
	Metrics     Recorder
	Invalidator Invalidator
	Logger      *slog.Logger
}

// Validate checks the mode and sink pairing.
func (c Config) Validate() error {
	switch c.Mode {
	case "", ModeExport:
		if c.Sink == nil {
			return ErrSinkRequired
		}
	case ModeDelete:
	default:
		return fmt.Errorf("%w: %q", ErrUnknownMode, c.Mode)
	}
	return nil
}

// Result reports what one ArchiveYear call did.
type Result struct {
	TenantID string `json:"tenant_id"`
	Year     int    `json:"year"`
	Mode     Mode   `json:"mode"`
	Periods  int    `json:"periods"`
	Records  int    `json:"records"`
	// ArtifactKey is set when an artifact was written.
	ArtifactKey string `json:"artifact_key,omitempty"`
	// AlreadyArchived is true when nothing of the year was left in live storage.
	AlreadyArchived bool `json:"already_archived"`
}

// PeriodExport is the standalone export of one period.
type PeriodExport struct {
	Period  periods.Period   `json:"period"`
	Summary history.Summary  `json:"summary"`
	Records []records.Record `json:"records"`
}

// Service archives and purges tenant periods.
type Service struct {
	store       storage.Store
	sink        Sink
	mode        Mode
	locker      lock.Locker
	lockTTL     time.Duration
	publisher   events.Publisher
	metrics     Recorder
	invalidator Invalidator
	logger      *slog.Logger
	now         func() time.Time
}

// NewService builds the service. A misconfigured mode/sink pair is reported by ArchiveYear,
// not here, so the rest of the application can still start.
func NewService(cfg Config) *Service {
	svc := &Service{
		store:       cfg.Store,
		sink:        cfg.Sink,
		mode:        cfg.Mode,
		locker:      cfg.Locker,
		lockTTL:     cfg.LockTTL,
		publisher:   cfg.Publisher,
		metrics:     cfg.Metrics,
		invalidator: cfg.Invalidator,
		logger:      cfg.Logger,
		now:         time.Now,
	}
	if svc.mode == "" {
		svc.mode = ModeExport
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

// ArchiveYear exports (in export mode) and then deletes every closed period of the tenant
// that lies fully inside year, with all of its records. Runs for the same tenant year are
// serialised. Re-running after success is a no-op; re-running after a failure completes the
// work without losing what an earlier attempt exported.
func (s *Service) ArchiveYear(ctx context.Context, tenantID string, year int) (Result, error) {
	result, err := s.archiveYear(ctx, tenantID, year)
	s.metrics.ObserveArchive(archiveOutcome(result, err), result.Records)
	if err != nil {
		s.logger.ErrorContext(ctx, "archive year failed",
			slog.String("tenant_id", tenantID),
			slog.Int("year", year),
			slog.Any("error", err),
		)
		return Result{}, err
	}
	if result.AlreadyArchived {
		return result, nil
	}
	s.logger.InfoContext(ctx, "year archived",
		slog.String("tenant_id", tenantID),
		slog.Int("year", year),
		slog.Int("periods", result.Periods),
		slog.Int("records", result.Records),
	)
	s.invalidate(ctx)
	s.publish(ctx, events.Event{
		Type:       events.YearArchived,
		TenantID:   tenantID,
		OccurredAt: s.now().UTC(),
		Data: map[string]any{
			"year":         year,
			"mode":         string(result.Mode),
			"periods":      result.Periods,
			"records":      result.Records,
			"artifact_key": result.ArtifactKey,
		},
	})
	return result, nil
}

func (s *Service) archiveYear(ctx context.Context, tenantID string, year int) (Result, error) {
	if err := tenant.Validate(tenantID); err != nil {
		return Result{}, err
	}
	if year < 1 || year > 9999 {
		return Result{}, ErrInvalidYear
	}
	if err := (Config{Mode: s.mode, Sink: s.sink}).Validate(); err != nil {
		return Result{}, err
	}
	lease, err := s.locker.Acquire(ctx, shared.ArchiveLockKey(tenantID, year), s.lockTTL)
	if err != nil {
		return Result{}, fmt.Errorf("archive: acquire lock: %w", err)
	}
	defer s.release(ctx, lease)

	result := Result{TenantID: tenantID, Year: year, Mode: s.mode}
	err = s.store.WithTx(ctx, tenantID, func(ctx context.Context, tx storage.Tx) error {
		closed, err := tx.ListPeriods(ctx, tenantID, periods.ListFilter{Status: periods.StatusClosed})
		if err != nil {
			return err
		}
		var (
			targets []periods.Period
			ids     []string
		)
		for _, p := range closed {
			if p.WithinYear(year) {
				targets = append(targets, p)
				ids = append(ids, p.ID)
			}
		}
		if len(targets) == 0 {
			result.AlreadyArchived = true
			return nil
		}
		if s.mode == ModeExport {
			var recs []records.Record
			for _, p := range targets {
				list, err := tx.ListRecords(ctx, records.Scope{TenantID: tenantID, PeriodID: p.ID}, records.Filter{})
				if err != nil {
					return err
				}
				recs = append(recs, list...)
			}
			key, err := s.export(ctx, Artifact{
				TenantID:   tenantID,
				Year:       year,
				ArchivedAt: s.now().UTC(),
				Periods:    targets,
				Records:    recs,
			})
			if err != nil {
				return err
			}
			result.ArtifactKey = key
		}
		removed, err := tx.DeletePeriods(ctx, tenantID, ids)
		if err != nil {
			return err
		}
		result.Periods = len(ids)
		result.Records = removed
		return nil
	})
	if err != nil {
		return Result{}, err
	}
	return result, nil
}

// export merges with any artifact left by an earlier attempt and writes the result.
func (s *Service) export(ctx context.Context, artifact Artifact) (string, error) {
	key := ArtifactKey(artifact.TenantID, artifact.Year)
	existing, err := s.sink.Get(ctx, key)
	switch {
	case errors.Is(err, ErrArtifactNotFound):
	case err != nil:
		return "", err
	default:
		prior, err := Decode(existing)
		if err != nil {
			return "", err
		}
		artifact = prior.Merge(artifact)
	}
	raw, err := Encode(artifact)
	if err != nil {
		return "", err
	}
	if err := s.sink.Put(ctx, key, raw); err != nil {
		return "", err
	}
	return key, nil
}

// ExportPeriod returns one period with its summary and records.
func (s *Service) ExportPeriod(ctx context.Context, tenantID, periodID string) (PeriodExport, error) {
	p, err := s.store.GetPeriod(ctx, tenantID, periodID)
	if err != nil {
		return PeriodExport{}, err
	}
	recs, err := s.store.ListRecords(ctx, records.Scope{TenantID: tenantID, PeriodID: periodID}, records.Filter{})
	if err != nil {
		return PeriodExport{}, err
	}
	return PeriodExport{Period: p, Summary: history.Compute(p, recs), Records: recs}, nil
}

// PurgePeriod deletes one closed period and its records. It reports the number of records
// removed.
func (s *Service) PurgePeriod(ctx context.Context, tenantID, periodID string) (int, error) {
	p, err := s.store.GetPeriod(ctx, tenantID, periodID)
	if err != nil {
		return 0, err
	}
	if p.Active() {
		return 0, ErrPeriodActive
	}
	lease, err := s.locker.Acquire(ctx, shared.ArchiveLockKey(tenantID, p.StartDate.Year()), s.lockTTL)
	if err != nil {
		return 0, fmt.Errorf("archive: acquire lock: %w", err)
	}
	defer s.release(ctx, lease)

	var removed int
	err = s.store.WithTx(ctx, tenantID, func(ctx context.Context, tx storage.Tx) error {
		current, err := tx.GetPeriod(ctx, tenantID, periodID)
		if err != nil {
			return err
		}
		if current.Active() {
			return ErrPeriodActive
		}
		removed, err = tx.DeletePeriods(ctx, tenantID, []string{periodID})
		return err
	})
	if err != nil {
		return 0, err
	}
	s.invalidate(ctx)
	s.publish(ctx, events.Event{
		Type:       events.PeriodPurged,
		TenantID:   tenantID,
		OccurredAt: s.now().UTC(),
		Data:       map[string]any{"period_id": periodID, "records": removed},
	})
	return removed, nil
}

func (s *Service) release(ctx context.Context, lease lock.Lease) {
	if err := lease.Release(context.WithoutCancel(ctx)); err != nil {
		s.logger.WarnContext(ctx, "release archive lock", slog.Any("error", err))
	}
}

func (s *Service) invalidate(ctx context.Context) {
	if s.invalidator == nil {
		return
	}
	if err := s.invalidator.Invalidate(ctx); err != nil {
		s.logger.WarnContext(ctx, "invalidate summaries", slog.Any("error", err))
	}
}

func (s *Service) publish(ctx context.Context, ev events.Event) {
	if err := s.publisher.Publish(ctx, ev); err != nil {
		s.logger.WarnContext(ctx, "publish archive event", slog.String("type", string(ev.Type)), slog.Any("error", err))
	}
}

func archiveOutcome(result Result, err error) string {
	switch {
	case err != nil:
		return "failure"
	case result.AlreadyArchived:
		return "noop"
	default:
		return "success"
	}
}

type nopRecorder struct{}

func (nopRecorder) ObserveArchive(string, int) {}

// DirectScheduler runs archival inline when a transition asks for it.
type DirectScheduler struct {
	Service *Service
}

// ScheduleArchive runs ArchiveYear detached from the caller's cancellation.
func (d DirectScheduler) ScheduleArchive(ctx context.Context, tenantID string, year int) error {
	_, err := d.Service.ArchiveYear(context.WithoutCancel(ctx), tenantID, year)
	return err
}
