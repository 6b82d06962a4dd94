package periods

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Spec describes the period a caller wants to open.
type Spec struct {
	Name      string    `json:"name"`
	Kind      Kind      `json:"kind"`
	StartDate time.Time `json:"start_date"`
	EndDate   time.Time `json:"end_date,omitempty"`
}

// Normalize validates the spec and fills derived fields. Dates are truncated to UTC days;
// a missing end date becomes start + 1 day (daily) or start + 1 month (monthly).
func (s Spec) Normalize() (Spec, error) {
	if !s.Kind.Valid() {
		return Spec{}, fmt.Errorf("%w: %q", ErrUnknownKind, s.Kind)
	}
	if s.StartDate.IsZero() {
		return Spec{}, ErrStartRequired
	}
	s.StartDate = day(s.StartDate)
	if s.EndDate.IsZero() {
		switch s.Kind {
		case KindDaily:
			s.EndDate = s.StartDate.AddDate(0, 0, 1)
		case KindMonthly:
			s.EndDate = s.StartDate.AddDate(0, 1, 0)
		}
	} else {
		s.EndDate = day(s.EndDate)
		if !s.EndDate.After(s.StartDate) {
			return Spec{}, ErrInvalidRange
		}
	}
	s.Name = strings.TrimSpace(s.Name)
	if s.Name == "" {
		s.Name = SuggestName(s.Kind, s.StartDate)
	}
	return s, nil
}

// SuggestName renders the default label, e.g. "January 2025" or "Jan 2, 2025".
func SuggestName(kind Kind, start time.Time) string {
	if kind == KindDaily {
		return start.Format("Jan 2, 2006")
	}
	return start.Format("January 2006")
}

// New builds an active period for the tenant from the spec.
func New(tenantID string, spec Spec, now time.Time) (Period, error) {
	spec, err := spec.Normalize()
	if err != nil {
		return Period{}, err
	}
	return Period{
		ID:        uuid.NewString(),
		TenantID:  tenantID,
		Name:      spec.Name,
		Kind:      spec.Kind,
		StartDate: spec.StartDate,
		EndDate:   spec.EndDate,
		Status:    StatusActive,
		CreatedAt: now.UTC(),
	}, nil
}

// MonthStart returns the first day of t's month in UTC.
func MonthStart(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}

func day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
