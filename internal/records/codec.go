package records

import (
	"encoding/json"
	"fmt"
	"time"
)

type envelope struct {
	ID          string          `json:"id"`
	TenantID    string          `json:"tenant_id"`
	PeriodID    string          `json:"period_id"`
	CarriedFrom string          `json:"carried_from,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	Kind        Kind            `json:"kind"`
	Payload     json.RawMessage `json:"payload"`
}

// MarshalJSON writes the envelope with the payload nested under its kind.
func (r Record) MarshalJSON() ([]byte, error) {
	if r.Payload == nil {
		return nil, ErrPayloadRequired
	}
	raw, err := json.Marshal(r.Payload)
	if err != nil {
		return nil, fmt.Errorf("records: encode payload: %w", err)
	}
	return json.Marshal(envelope{
		ID:          r.ID,
		TenantID:    r.TenantID,
		PeriodID:    r.PeriodID,
		CarriedFrom: r.CarriedFrom,
		CreatedAt:   r.CreatedAt,
		Kind:        r.Payload.Kind(),
		Payload:     raw,
	})
}

// UnmarshalJSON restores a record and its typed payload.
func (r *Record) UnmarshalJSON(data []byte) error {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return err
	}
	payload, err := DecodePayload(env.Kind, env.Payload)
	if err != nil {
		return err
	}
	*r = Record{
		ID:          env.ID,
		TenantID:    env.TenantID,
		PeriodID:    env.PeriodID,
		CarriedFrom: env.CarriedFrom,
		CreatedAt:   env.CreatedAt,
		Payload:     payload,
	}
	return nil
}

// DecodePayload parses raw JSON into the payload type of kind.
func DecodePayload(kind Kind, raw []byte) (Payload, error) {
	switch kind {
	case KindFinancial:
		return decode[Financial](raw)
	case KindPurchase:
		return decode[Purchase](raw)
	case KindMonthlyExpense:
		return decode[MonthlyExpense](raw)
	case KindSale:
		return decode[Sale](raw)
	case KindLegalDocument:
		return decode[LegalDocument](raw)
	case KindEmployee:
		return decode[Employee](raw)
	case KindAttendance:
		return decode[Attendance](raw)
	case KindLeave:
		return decode[Leave](raw)
	case KindCustomer:
		return decode[Customer](raw)
	case KindInvoice:
		return decode[Invoice](raw)
	case KindFeedback:
		return decode[Feedback](raw)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
}

func decode[T Payload](raw []byte) (Payload, error) {
	var v T
	if len(raw) == 0 {
		return nil, ErrPayloadRequired
	}
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	return v, nil
}
