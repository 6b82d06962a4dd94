package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/invix-erp/invix/internal/archive"
	jobmetrics "github.com/invix-erp/invix/internal/jobs"
	"github.com/invix-erp/invix/internal/shared"
)

// YearArchiver is the archive operation run by the job.
type YearArchiver interface {
	ArchiveYear(ctx context.Context, tenantID string, year int) (archive.Result, error)
}

// ArchiveYearJob runs archive tasks.
type ArchiveYearJob struct {
	Archiver YearArchiver
	Logger   *slog.Logger
	Metrics  *jobmetrics.Metrics
}

// NewArchiveYearJob constructs the job handler.
func NewArchiveYearJob(archiver YearArchiver, logger *slog.Logger, metrics *jobmetrics.Metrics) *ArchiveYearJob {
	return &ArchiveYearJob{Archiver: archiver, Logger: logger, Metrics: metrics}
}

// Handle executes one archive task. Malformed payloads and validation failures are not
// retried; everything else is, and a retry resumes safely.
func (j *ArchiveYearJob) Handle(ctx context.Context, task *asynq.Task) (err error) {
	if j == nil || j.Archiver == nil {
		return errors.New("archive year: dependencies not configured")
	}
	var payload ArchiveYearPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return fmt.Errorf("archive year: decode payload: %v: %w", err, asynq.SkipRetry)
	}

	tracker := j.Metrics.Track(TaskArchiveYear)
	defer func() {
		err = tracker.End(err)
	}()

	result, err := j.Archiver.ArchiveYear(ctx, payload.TenantID, payload.Year)
	if errors.Is(err, shared.ErrValidation) {
		j.log().Error("archive rejected", slog.String("tenant_id", payload.TenantID), slog.Int("year", payload.Year), slog.Any("error", err))
		return fmt.Errorf("%w: %w", err, asynq.SkipRetry)
	}
	if err != nil {
		return err
	}
	j.log().Info("archive finished",
		slog.String("tenant_id", payload.TenantID),
		slog.Int("year", payload.Year),
		slog.Int("periods", result.Periods),
		slog.Int("records", result.Records),
		slog.Bool("already_archived", result.AlreadyArchived),
	)
	return nil
}

func (j *ArchiveYearJob) log() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskArchiveYear))
	}
	return slog.Default().With(slog.String("job", TaskArchiveYear))
}
