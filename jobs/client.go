package jobs

import (
	"context"
	"errors"
	"log/slog"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/invix-erp/invix/internal/jobs"
)

type enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
	Close() error
}

// Client submits jobs to the queue.
type Client struct {
	client  enqueuer
	metrics *jobmetrics.Metrics
	logger  *slog.Logger
}

// NewClient constructs an Asynq client.
func NewClient(redisOpts asynq.RedisClientOpt, metrics *jobmetrics.Metrics, logger *slog.Logger) *Client {
	return newClient(asynq.NewClient(redisOpts), metrics, logger)
}

func newClient(e enqueuer, metrics *jobmetrics.Metrics, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{client: e, metrics: metrics, logger: logger}
}

// ScheduleArchive enqueues the archive of a tenant year. A duplicate of a task that is still
// pending or running is dropped and counted, not reported as an error.
func (c *Client) ScheduleArchive(ctx context.Context, tenantID string, year int) error {
	task, err := NewArchiveYearTask(tenantID, year)
	if err != nil {
		return err
	}
	info, err := c.client.EnqueueContext(ctx, task)
	if errors.Is(err, asynq.ErrTaskIDConflict) {
		c.metrics.Skip(TaskArchiveYear)
		c.logger.InfoContext(ctx, "archive already queued",
			slog.String("tenant_id", tenantID),
			slog.Int("year", year),
		)
		return nil
	}
	if err != nil {
		return err
	}
	c.logger.InfoContext(ctx, "archive enqueued",
		slog.String("tenant_id", tenantID),
		slog.Int("year", year),
		slog.String("task_id", info.ID),
	)
	return nil
}

// Close releases client resources.
func (c *Client) Close() error {
	return c.client.Close()
}
