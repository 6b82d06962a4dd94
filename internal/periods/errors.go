package periods

import (
	"fmt"

	"github.com/invix-erp/invix/internal/shared"
)

var (
	// ErrPeriodNotFound indicates the period is missing or owned by another tenant.
	ErrPeriodNotFound = fmt.Errorf("%w: periods: period not found", shared.ErrNotFound)
	// ErrNoActivePeriod indicates the tenant has no active period.
	ErrNoActivePeriod = fmt.Errorf("%w: periods: no active period", shared.ErrNotFound)
	// ErrActivePeriodExists indicates a second active period was requested.
	ErrActivePeriodExists = fmt.Errorf("%w: periods: tenant already has an active period", shared.ErrConflict)
	// ErrPeriodClosed indicates the period was already closed.
	ErrPeriodClosed = fmt.Errorf("%w: periods: period already closed", shared.ErrInvalidState)
	// ErrUnknownKind indicates an unsupported period kind.
	ErrUnknownKind = fmt.Errorf("%w: periods: kind must be daily or monthly", shared.ErrValidation)
	// ErrStartRequired indicates the start date is missing.
	ErrStartRequired = fmt.Errorf("%w: periods: start date required", shared.ErrValidation)
	// ErrInvalidRange indicates end date is not after start date.
	ErrInvalidRange = fmt.Errorf("%w: periods: end date must be after start date", shared.ErrValidation)
)
