package close

import (
	"context"
	"fmt"
	"time"

	"github.com/invix-erp/invix/internal/periods"
	"github.com/invix-erp/invix/internal/records"
	"github.com/invix-erp/invix/internal/rollover"
	"github.com/invix-erp/invix/internal/shared"
)

// TransitionResult describes a committed close-and-open.
type TransitionResult struct {
	Period         periods.Period   `json:"period"`
	Closed         *periods.Period  `json:"closed,omitempty"`
	CarriedForward []records.Record `json:"carried_forward"`
	// ArchiveYear is the year handed to the archive scheduler, zero when none.
	ArchiveYear int `json:"archive_year,omitempty"`
}

var (
	// ErrTransitionInProgress indicates another transition holds the tenant lock.
	ErrTransitionInProgress = fmt.Errorf("%w: close: another period transition is running for the tenant", shared.ErrConflict)
	// ErrStartsBeforeCurrent indicates the successor would start before the closing period.
	ErrStartsBeforeCurrent = fmt.Errorf("%w: close: new period starts before the current period", shared.ErrValidation)
)

// CarryForward computes the records a closing period hands to its successor.
type CarryForward interface {
	ComputeCarryForward(ctx context.Context, reader rollover.Reader, tenantID string, closing periods.Period) ([]records.Record, error)
}

// ArchiveScheduler queues or runs the archival of a finished year.
type ArchiveScheduler interface {
	ScheduleArchive(ctx context.Context, tenantID string, year int) error
}

// Recorder receives transition metrics.
type Recorder interface {
	ObserveTransition(outcome string, carried int, elapsed time.Duration)
}

type nopRecorder struct{}

func (nopRecorder) ObserveTransition(string, int, time.Duration) {}
