// Package events publishes period lifecycle notifications after their transaction commits.
package events

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"
)

// Type names a lifecycle event.
type Type string

const (
	PeriodOpened Type = "period.opened"
	PeriodClosed Type = "period.closed"
	YearArchived Type = "archive.year_archived"
	PeriodPurged Type = "archive.period_purged"
)

// Event is the message body. Data holds event-specific fields.
type Event struct {
	Type       Type           `json:"type"`
	TenantID   string         `json:"tenant_id"`
	OccurredAt time.Time      `json:"occurred_at"`
	Data       map[string]any `json:"data,omitempty"`
}

// Publisher delivers events. Delivery is best effort; callers log failures.
type Publisher interface {
	Publish(ctx context.Context, events ...Event) error
}

// Nop drops every event.
type Nop struct{}

func (Nop) Publish(context.Context, ...Event) error { return nil }

// LogPublisher writes events to the logger.
type LogPublisher struct {
	Logger *slog.Logger
}

func (p LogPublisher) Publish(ctx context.Context, events ...Event) error {
	logger := p.Logger
	if logger == nil {
		logger = slog.Default()
	}
	for _, ev := range events {
		raw, err := json.Marshal(ev.Data)
		if err != nil {
			return err
		}
		logger.InfoContext(ctx, "event",
			slog.String("type", string(ev.Type)),
			slog.String("tenant_id", ev.TenantID),
			slog.String("data", string(raw)),
		)
	}
	return nil
}
