package periods

import (
	"time"

	"github.com/invix-erp/invix/internal/shared"
)

// Kind enumerates the supported period lengths.
type Kind string

const (
	KindDaily   Kind = "daily"
	KindMonthly Kind = "monthly"
)

// Valid reports whether the kind is supported.
func (k Kind) Valid() bool {
	return k == KindDaily || k == KindMonthly
}

// Status enumerates valid period states.
type Status string

const (
	StatusActive Status = shared.PeriodStatusActive
	StatusClosed Status = shared.PeriodStatusClosed
)

// Period is the partition boundary every domain record of a tenant belongs to.
// EndDate is exclusive.
type Period struct {
	ID        string     `json:"id"`
	TenantID  string     `json:"tenant_id"`
	Name      string     `json:"name"`
	Kind      Kind       `json:"kind"`
	StartDate time.Time  `json:"start_date"`
	EndDate   time.Time  `json:"end_date"`
	Status    Status     `json:"status"`
	CreatedAt time.Time  `json:"created_at"`
	ClosedAt  *time.Time `json:"closed_at,omitempty"`
}

// Active reports whether the period still accepts writes.
func (p Period) Active() bool {
	return p.Status == StatusActive
}

// WithinYear reports whether the period falls fully inside the calendar year.
func (p Period) WithinYear(year int) bool {
	from := time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(1, 0, 0)
	return !p.StartDate.Before(from) && !p.EndDate.After(to)
}

// ListFilter narrows period listings. A zero Status lists every period.
type ListFilter struct {
	Status Status
}

// Match reports whether the period passes the filter.
func (f ListFilter) Match(p Period) bool {
	return f.Status == "" || p.Status == f.Status
}

// Close returns p marked closed at the given instant. Closing is terminal.
func Close(p Period, at time.Time) (Period, error) {
	if err := shared.ValidatePeriodTransition(string(p.Status), string(StatusClosed)); err != nil {
		return Period{}, ErrPeriodClosed
	}
	at = at.UTC()
	p.Status = StatusClosed
	p.ClosedAt = &at
	return p, nil
}
