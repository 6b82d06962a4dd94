package shared

import "errors"

// Period statuses reused outside the periods package.
const (
	PeriodStatusActive = "active"
	PeriodStatusClosed = "closed"
)

// ErrInvalidPeriodTransition indicates status change not allowed.
var ErrInvalidPeriodTransition = errors.New("period transition invalid")

// ValidatePeriodTransition checks transitions according to policy. Closing is terminal.
func ValidatePeriodTransition(current, target string) error {
	if current == PeriodStatusActive && target == PeriodStatusClosed {
		return nil
	}
	return ErrInvalidPeriodTransition
}
