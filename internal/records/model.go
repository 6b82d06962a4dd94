// Package records holds the period-tagged domain records of a tenant. Every variant shares
// one envelope (tenant, period) that is stamped once at creation and never reassigned.
package records

import (
	"fmt"
	"time"

	"github.com/invix-erp/invix/internal/shared"
)

// Kind discriminates record variants.
type Kind string

const (
	KindFinancial      Kind = "financial"
	KindPurchase       Kind = "purchase"
	KindMonthlyExpense Kind = "monthly_expense"
	KindSale           Kind = "sale"
	KindLegalDocument  Kind = "legal_document"
	KindEmployee       Kind = "employee"
	KindAttendance     Kind = "attendance"
	KindLeave          Kind = "leave"
	KindCustomer       Kind = "customer"
	KindInvoice        Kind = "invoice"
	KindFeedback       Kind = "feedback"
)

// Kinds lists every record kind in a stable order.
var Kinds = []Kind{
	KindFinancial,
	KindPurchase,
	KindMonthlyExpense,
	KindSale,
	KindLegalDocument,
	KindEmployee,
	KindAttendance,
	KindLeave,
	KindCustomer,
	KindInvoice,
	KindFeedback,
}

// Valid reports whether the kind is known.
func (k Kind) Valid() bool {
	for _, known := range Kinds {
		if k == known {
			return true
		}
	}
	return false
}

// Payload is the kind-specific part of a record.
type Payload interface {
	Kind() Kind
	Validate() error
}

// Record is the shared envelope. CarriedFrom names the source record when the record was
// produced by a period rollover.
type Record struct {
	ID          string
	TenantID    string
	PeriodID    string
	CarriedFrom string
	CreatedAt   time.Time
	Payload     Payload
}

// Kind returns the payload kind.
func (r Record) Kind() Kind {
	if r.Payload == nil {
		return ""
	}
	return r.Payload.Kind()
}

// Scope pins reads and writes to one tenant period.
type Scope struct {
	TenantID string
	PeriodID string
}

// Validate requires both halves of the scope.
func (s Scope) Validate() error {
	if s.TenantID == "" || s.PeriodID == "" {
		return ErrScopeRequired
	}
	return nil
}

// Filter narrows listings. A zero Kind lists every kind.
type Filter struct {
	Kind Kind
}

// Match reports whether the record passes the filter.
func (f Filter) Match(r Record) bool {
	return f.Kind == "" || r.Kind() == f.Kind
}

var (
	// ErrRecordNotFound indicates the record is missing from the scope.
	ErrRecordNotFound = fmt.Errorf("%w: records: record not found", shared.ErrNotFound)
	// ErrNoActivePeriod indicates a write was attempted while the tenant has no active period.
	ErrNoActivePeriod = fmt.Errorf("%w: records: tenant has no active period", shared.ErrInvalidState)
	// ErrPeriodFrozen indicates a write against a closed period.
	ErrPeriodFrozen = fmt.Errorf("%w: records: period is closed", shared.ErrInvalidState)
	// ErrScopeRequired indicates a read or write without tenant and period.
	ErrScopeRequired = fmt.Errorf("%w: records: tenant and period required", shared.ErrValidation)
	// ErrEnvelopeSet indicates the caller tried to pick tenant or period itself.
	ErrEnvelopeSet = fmt.Errorf("%w: records: tenant and period are assigned on creation", shared.ErrValidation)
	// ErrPayloadRequired indicates a record without payload.
	ErrPayloadRequired = fmt.Errorf("%w: records: payload required", shared.ErrValidation)
	// ErrUnknownKind indicates an unsupported record kind.
	ErrUnknownKind = fmt.Errorf("%w: records: unknown kind", shared.ErrValidation)
	// ErrKindChanged indicates an update that would change the record kind.
	ErrKindChanged = fmt.Errorf("%w: records: kind cannot change", shared.ErrValidation)
	// ErrInvalidPayload indicates payload field validation failed.
	ErrInvalidPayload = fmt.Errorf("%w: records: invalid payload", shared.ErrValidation)
)
