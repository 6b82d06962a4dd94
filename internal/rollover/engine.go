// Package rollover computes the records a closing period hands to its successor.
package rollover

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/invix-erp/invix/internal/periods"
	"github.com/invix-erp/invix/internal/records"
)

// Reader lists the records of one period.
type Reader interface {
	ListRecords(ctx context.Context, scope records.Scope, filter records.Filter) ([]records.Record, error)
}

// Policy decides whether a record of a closing period carries forward.
type Policy interface {
	Kind() records.Kind
	Carry(rec records.Record) bool
}

// PurchaseCarryAll carries every purchase obligation. Purchases have no fulfilled flag, so
// every entry counts as unresolved.
type PurchaseCarryAll struct{}

func (PurchaseCarryAll) Kind() records.Kind        { return records.KindPurchase }
func (PurchaseCarryAll) Carry(records.Record) bool { return true }

// DefaultPolicies is the carry-forward set used in production.
func DefaultPolicies() []Policy {
	return []Policy{PurchaseCarryAll{}}
}

// Engine applies the configured policies.
type Engine struct {
	policies []Policy
	now      func() time.Time
}

// NewEngine builds an engine. No policies means DefaultPolicies.
func NewEngine(policies ...Policy) *Engine {
	if len(policies) == 0 {
		policies = DefaultPolicies()
	}
	return &Engine{policies: policies, now: time.Now}
}

// WithNow overrides the clock stamped on carried copies.
func (e *Engine) WithNow(now func() time.Time) {
	if now != nil {
		e.now = now
	}
}

// ComputeCarryForward returns copies of the closing period's carried records. Copies have a
// fresh id, the source payload, and no period yet: Bind assigns the successor once it exists.
// The source records are not touched.
func (e *Engine) ComputeCarryForward(ctx context.Context, reader Reader, tenantID string, closing periods.Period) ([]records.Record, error) {
	scope := records.Scope{TenantID: tenantID, PeriodID: closing.ID}
	createdAt := e.now().UTC()
	var carried []records.Record
	for _, policy := range e.policies {
		source, err := reader.ListRecords(ctx, scope, records.Filter{Kind: policy.Kind()})
		if err != nil {
			return nil, fmt.Errorf("rollover: list %s: %w", policy.Kind(), err)
		}
		for _, rec := range source {
			if !policy.Carry(rec) {
				continue
			}
			carried = append(carried, records.Record{
				ID:          uuid.NewString(),
				TenantID:    tenantID,
				CarriedFrom: rec.ID,
				CreatedAt:   createdAt,
				Payload:     rec.Payload,
			})
		}
	}
	return carried, nil
}

// Bind tags carried copies with the successor period.
func Bind(carried []records.Record, periodID string) []records.Record {
	out := make([]records.Record, len(carried))
	for i, rec := range carried {
		rec.PeriodID = periodID
		out[i] = rec
	}
	return out
}
