package jobs

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskArchiveYear archives one finished calendar year of a tenant.
	TaskArchiveYear = "archive:year"
	// TaskArchiveSweep finds finished years that were never archived and schedules them.
	TaskArchiveSweep = "archive:sweep"
)

const archiveMaxRetry = 5

// ArchiveYearPayload identifies the tenant year to archive.
type ArchiveYearPayload struct {
	TenantID string `json:"tenant_id"`
	Year     int    `json:"year"`
}

// ArchiveTaskID is the dedupe key of an archive task. While a task with this id is queued
// or running, enqueueing the same tenant year again is rejected by asynq.
func ArchiveTaskID(tenantID string, year int) string {
	return fmt.Sprintf("%s:%s:%d", TaskArchiveYear, tenantID, year)
}

// NewArchiveYearTask constructs the Asynq task for one tenant year.
func NewArchiveYearTask(tenantID string, year int) (*asynq.Task, error) {
	body, err := json.Marshal(ArchiveYearPayload{TenantID: tenantID, Year: year})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskArchiveYear, body,
		asynq.Queue(QueueDefault),
		asynq.TaskID(ArchiveTaskID(tenantID, year)),
		asynq.MaxRetry(archiveMaxRetry),
		asynq.Timeout(10*time.Minute),
	), nil
}

// NewArchiveSweepTask constructs the periodic sweep task.
func NewArchiveSweepTask() *asynq.Task {
	return asynq.NewTask(TaskArchiveSweep, nil, asynq.Queue(QueueDefault), asynq.MaxRetry(1))
}
