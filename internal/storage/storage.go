// Package storage defines the combined period and record store used by the period manager
// and the archive service. Implementations live in memstore and pgstore.
package storage

import (
	"context"

	"github.com/invix-erp/invix/internal/periods"
	"github.com/invix-erp/invix/internal/records"
)

// Tx is the view of one tenant inside a single commit unit. Nothing written through a Tx is
// visible to other readers until the enclosing WithTx returns nil.
type Tx interface {
	GetActive(ctx context.Context, tenantID string) (periods.Period, error)
	GetPeriod(ctx context.Context, tenantID, periodID string) (periods.Period, error)
	ListPeriods(ctx context.Context, tenantID string, filter periods.ListFilter) ([]periods.Period, error)
	// InsertPeriod fails with periods.ErrActivePeriodExists when p is active and the tenant
	// already has an active period.
	InsertPeriod(ctx context.Context, p periods.Period) error
	ClosePeriod(ctx context.Context, tenantID, periodID string) error
	// DeletePeriods removes the periods and every record tagged with them. Unknown ids are
	// skipped. It returns the number of records removed.
	DeletePeriods(ctx context.Context, tenantID string, periodIDs []string) (int, error)
	ListRecords(ctx context.Context, scope records.Scope, filter records.Filter) ([]records.Record, error)
	// InsertRecords verifies every record targets an active period of its tenant.
	InsertRecords(ctx context.Context, recs []records.Record) error
}

// Store is the durable state of every tenant.
type Store interface {
	periods.Store
	records.Store
	// WithTx runs fn as one all-or-nothing unit scoped to the tenant. fn must only use the
	// supplied Tx; calling back into the Store for the same tenant may block.
	WithTx(ctx context.Context, tenantID string, fn func(ctx context.Context, tx Tx) error) error
}

// TenantLister enumerates tenants that own at least one period.
type TenantLister interface {
	ListTenants(ctx context.Context) ([]string, error)
}
