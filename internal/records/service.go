package records

import (
	"context"
	"log/slog"
)

// Service is the scoped CRUD surface for records.
type Service struct {
	store       Store
	partitioner *Partitioner
	logger      *slog.Logger
}

// NewService constructs the record service.
func NewService(store Store, partitioner *Partitioner, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: store, partitioner: partitioner, logger: logger}
}

// Create tags the payload with the tenant's active period and stores it.
func (s *Service) Create(ctx context.Context, tenantID string, payload Payload) (Record, error) {
	rec, err := s.partitioner.Tag(ctx, tenantID, Record{Payload: payload})
	if err != nil {
		return Record{}, err
	}
	if err := s.store.InsertRecord(ctx, rec); err != nil {
		return Record{}, err
	}
	s.logger.DebugContext(ctx, "record created",
		slog.String("tenant_id", rec.TenantID),
		slog.String("period_id", rec.PeriodID),
		slog.String("kind", string(rec.Kind())),
	)
	return rec, nil
}

// Get loads one record of the scope.
func (s *Service) Get(ctx context.Context, scope Scope, id string) (Record, error) {
	if err := scope.Validate(); err != nil {
		return Record{}, err
	}
	return s.store.GetRecord(ctx, scope, id)
}

// List returns the records of the scope in insertion order.
func (s *Service) List(ctx context.Context, scope Scope, filter Filter) ([]Record, error) {
	if err := scope.Validate(); err != nil {
		return nil, err
	}
	if filter.Kind != "" && !filter.Kind.Valid() {
		return nil, ErrUnknownKind
	}
	return s.store.ListRecords(ctx, scope, filter)
}

// UpdatePayload replaces the payload of a record. The envelope and kind never change.
func (s *Service) UpdatePayload(ctx context.Context, scope Scope, id string, payload Payload) (Record, error) {
	if err := scope.Validate(); err != nil {
		return Record{}, err
	}
	if err := checkPayload(payload); err != nil {
		return Record{}, err
	}
	current, err := s.store.GetRecord(ctx, scope, id)
	if err != nil {
		return Record{}, err
	}
	if current.Kind() != payload.Kind() {
		return Record{}, ErrKindChanged
	}
	current.Payload = payload
	if err := s.store.UpdateRecord(ctx, scope, current); err != nil {
		return Record{}, err
	}
	return current, nil
}

// Delete removes a record from an active period.
func (s *Service) Delete(ctx context.Context, scope Scope, id string) error {
	if err := scope.Validate(); err != nil {
		return err
	}
	return s.store.DeleteRecord(ctx, scope, id)
}
