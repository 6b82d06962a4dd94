package periods

import "context"

// Store is the durable period collection. Implementations enforce at most one active
// period per tenant and scope every call by tenant.
type Store interface {
	GetActive(ctx context.Context, tenantID string) (Period, error)
	GetPeriod(ctx context.Context, tenantID, periodID string) (Period, error)
	ListPeriods(ctx context.Context, tenantID string, filter ListFilter) ([]Period, error)
	// CreatePeriod fails with ErrActivePeriodExists while another period is active.
	// The only way to replace an active period is a transition.
	CreatePeriod(ctx context.Context, tenantID string, spec Spec) (Period, error)
	ClosePeriod(ctx context.Context, tenantID, periodID string) error
}
