package records

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/invix-erp/invix/internal/periods"
)

// ActivePeriodSource resolves the period a tenant currently writes into.
type ActivePeriodSource interface {
	GetActive(ctx context.Context, tenantID string) (periods.Period, error)
}

// Partitioner stamps new records with their tenant and the tenant's active period.
type Partitioner struct {
	periods ActivePeriodSource
	now     func() time.Time
}

// NewPartitioner builds a partitioner over the period source.
func NewPartitioner(source ActivePeriodSource) *Partitioner {
	return &Partitioner{periods: source, now: time.Now}
}

// WithNow overrides the clock used for created_at.
func (p *Partitioner) WithNow(now func() time.Time) {
	if now != nil {
		p.now = now
	}
}

// Tag returns rec bound to the tenant's active period. The envelope must be empty: tenant
// and period are assigned here exactly once.
func (p *Partitioner) Tag(ctx context.Context, tenantID string, rec Record) (Record, error) {
	if tenantID == "" {
		return Record{}, ErrScopeRequired
	}
	if rec.TenantID != "" || rec.PeriodID != "" {
		return Record{}, ErrEnvelopeSet
	}
	if err := checkPayload(rec.Payload); err != nil {
		return Record{}, err
	}
	active, err := p.periods.GetActive(ctx, tenantID)
	if err != nil {
		if errors.Is(err, periods.ErrNoActivePeriod) {
			return Record{}, ErrNoActivePeriod
		}
		return Record{}, err
	}
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = p.now().UTC()
	}
	rec.TenantID = tenantID
	rec.PeriodID = active.ID
	return rec, nil
}

func checkPayload(payload Payload) error {
	if payload == nil {
		return ErrPayloadRequired
	}
	if !payload.Kind().Valid() {
		return ErrUnknownKind
	}
	return payload.Validate()
}
