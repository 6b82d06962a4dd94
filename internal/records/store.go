package records

import "context"

// Store persists records. Every call is scoped by tenant and period; nothing widens a read
// across periods. Writes fail with ErrPeriodFrozen once the scope's period is closed and
// with a not-found error when the period does not belong to the tenant.
type Store interface {
	InsertRecord(ctx context.Context, rec Record) error
	GetRecord(ctx context.Context, scope Scope, id string) (Record, error)
	ListRecords(ctx context.Context, scope Scope, filter Filter) ([]Record, error)
	UpdateRecord(ctx context.Context, scope Scope, rec Record) error
	DeleteRecord(ctx context.Context, scope Scope, id string) error
}
