// Package memstore is an in-process storage.Store. Each tenant owns a shard whose state is
// an immutable snapshot: writers serialise on the shard mutex, build a modified copy and
// publish it atomically, so readers never wait and never see a half-applied transition.
package memstore

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/invix-erp/invix/internal/periods"
	"github.com/invix-erp/invix/internal/records"
	"github.com/invix-erp/invix/internal/shared"
	"github.com/invix-erp/invix/internal/storage"
)

var (
	_ storage.Store        = (*Store)(nil)
	_ storage.TenantLister = (*Store)(nil)
)

// Store keeps every tenant in memory.
type Store struct {
	mu     sync.RWMutex
	shards map[string]*shard
	now    func() time.Time
}

type shard struct {
	writeMu sync.Mutex
	state   atomic.Pointer[tenantState]
}

// tenantState is never mutated after publication. Record slices are replaced, not appended
// in place, so a clone may share them with the published snapshot.
type tenantState struct {
	periods map[string]periods.Period
	records map[string][]records.Record
}

// New creates an empty store.
func New() *Store {
	return &Store{shards: make(map[string]*shard), now: time.Now}
}

// WithNow overrides the clock used for closed_at.
func (s *Store) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// emptyState answers reads for tenants that never wrote. It is shared and never mutated.
var emptyState = &tenantState{
	periods: map[string]periods.Period{},
	records: map[string][]records.Record{},
}

func (s *Store) lookup(tenantID string) (*shard, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sh, ok := s.shards[tenantID]
	return sh, ok
}

// shard returns the tenant's shard, creating it. Only writers call it.
func (s *Store) shard(tenantID string) *shard {
	if sh, ok := s.lookup(tenantID); ok {
		return sh
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if sh, ok := s.shards[tenantID]; ok {
		return sh
	}
	sh := &shard{}
	sh.state.Store(emptyState)
	s.shards[tenantID] = sh
	return sh
}

func (s *Store) snapshot(tenantID string) *tenantState {
	sh, ok := s.lookup(tenantID)
	if !ok {
		return emptyState
	}
	return sh.state.Load()
}

// update applies fn to a private copy of the tenant state and publishes it when fn succeeds.
// A shard whose first write fails is dropped again.
func (s *Store) update(ctx context.Context, tenantID string, fn func(*tenantState) error) error {
	for {
		sh := s.shard(tenantID)
		sh.writeMu.Lock()
		if cur, ok := s.lookup(tenantID); !ok || cur != sh {
			sh.writeMu.Unlock()
			continue
		}
		err := sh.apply(ctx, fn)
		if err != nil && sh.state.Load() == emptyState {
			s.mu.Lock()
			delete(s.shards, tenantID)
			s.mu.Unlock()
		}
		sh.writeMu.Unlock()
		return err
	}
}

func (sh *shard) apply(ctx context.Context, fn func(*tenantState) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	next := sh.state.Load().clone()
	if err := fn(next); err != nil {
		return err
	}
	sh.state.Store(next)
	return nil
}

func (st *tenantState) clone() *tenantState {
	return &tenantState{
		periods: maps.Clone(st.periods),
		records: maps.Clone(st.records),
	}
}

// ListTenants returns the tenants holding at least one period, sorted.
func (s *Store) ListTenants(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []string
	for id, sh := range s.shards {
		if len(sh.state.Load().periods) > 0 {
			out = append(out, id)
		}
	}
	slices.Sort(out)
	return out, nil
}

// GetActive returns the tenant's active period.
func (s *Store) GetActive(_ context.Context, tenantID string) (periods.Period, error) {
	return s.snapshot(tenantID).active()
}

// GetPeriod returns one period of the tenant.
func (s *Store) GetPeriod(_ context.Context, tenantID, periodID string) (periods.Period, error) {
	return s.snapshot(tenantID).period(periodID)
}

// ListPeriods returns the tenant's periods ordered by start date.
func (s *Store) ListPeriods(_ context.Context, tenantID string, filter periods.ListFilter) ([]periods.Period, error) {
	return s.snapshot(tenantID).list(filter), nil
}

// CreatePeriod opens a period when the tenant has none active.
func (s *Store) CreatePeriod(ctx context.Context, tenantID string, spec periods.Spec) (periods.Period, error) {
	p, err := periods.New(tenantID, spec, s.now())
	if err != nil {
		return periods.Period{}, err
	}
	err = s.update(ctx, tenantID, func(st *tenantState) error {
		return st.insertPeriod(p)
	})
	if err != nil {
		return periods.Period{}, err
	}
	return p, nil
}

// ClosePeriod freezes an active period.
func (s *Store) ClosePeriod(ctx context.Context, tenantID, periodID string) error {
	return s.update(ctx, tenantID, func(st *tenantState) error {
		return st.closePeriod(periodID, s.now())
	})
}

// InsertRecord stores a tagged record in its active period.
func (s *Store) InsertRecord(ctx context.Context, rec records.Record) error {
	if rec.TenantID == "" {
		return records.ErrScopeRequired
	}
	return s.update(ctx, rec.TenantID, func(st *tenantState) error {
		return st.insertRecords([]records.Record{rec})
	})
}

// GetRecord returns one record of the scope.
func (s *Store) GetRecord(_ context.Context, scope records.Scope, id string) (records.Record, error) {
	st := s.snapshot(scope.TenantID)
	if _, err := st.period(scope.PeriodID); err != nil {
		return records.Record{}, err
	}
	idx := st.recordIndex(scope.PeriodID, id)
	if idx < 0 {
		return records.Record{}, records.ErrRecordNotFound
	}
	return st.records[scope.PeriodID][idx], nil
}

// ListRecords returns the records of the scope in insertion order.
func (s *Store) ListRecords(_ context.Context, scope records.Scope, filter records.Filter) ([]records.Record, error) {
	return s.snapshot(scope.TenantID).listRecords(scope.PeriodID, filter)
}

// UpdateRecord replaces the payload of a record in an active period.
func (s *Store) UpdateRecord(ctx context.Context, scope records.Scope, rec records.Record) error {
	return s.update(ctx, scope.TenantID, func(st *tenantState) error {
		idx, err := st.writableRecord(scope.PeriodID, rec.ID)
		if err != nil {
			return err
		}
		list := slices.Clone(st.records[scope.PeriodID])
		list[idx].Payload = rec.Payload
		st.records[scope.PeriodID] = list
		return nil
	})
}

// DeleteRecord removes a record from an active period.
func (s *Store) DeleteRecord(ctx context.Context, scope records.Scope, id string) error {
	return s.update(ctx, scope.TenantID, func(st *tenantState) error {
		idx, err := st.writableRecord(scope.PeriodID, id)
		if err != nil {
			return err
		}
		st.records[scope.PeriodID] = slices.Delete(slices.Clone(st.records[scope.PeriodID]), idx, idx+1)
		return nil
	})
}

// WithTx runs fn against a private copy of the tenant and publishes it on success.
func (s *Store) WithTx(ctx context.Context, tenantID string, fn func(context.Context, storage.Tx) error) error {
	return s.update(ctx, tenantID, func(st *tenantState) error {
		return fn(ctx, &tx{tenantID: tenantID, state: st, now: s.now})
	})
}

type tx struct {
	tenantID string
	state    *tenantState
	now      func() time.Time
}

func (t *tx) check(tenantID string) error {
	if tenantID != t.tenantID {
		return fmt.Errorf("%w: memstore: tx bound to another tenant", shared.ErrValidation)
	}
	return nil
}

func (t *tx) GetActive(_ context.Context, tenantID string) (periods.Period, error) {
	if err := t.check(tenantID); err != nil {
		return periods.Period{}, err
	}
	return t.state.active()
}

func (t *tx) GetPeriod(_ context.Context, tenantID, periodID string) (periods.Period, error) {
	if err := t.check(tenantID); err != nil {
		return periods.Period{}, err
	}
	return t.state.period(periodID)
}

func (t *tx) ListPeriods(_ context.Context, tenantID string, filter periods.ListFilter) ([]periods.Period, error) {
	if err := t.check(tenantID); err != nil {
		return nil, err
	}
	return t.state.list(filter), nil
}

func (t *tx) InsertPeriod(_ context.Context, p periods.Period) error {
	if err := t.check(p.TenantID); err != nil {
		return err
	}
	return t.state.insertPeriod(p)
}

func (t *tx) ClosePeriod(_ context.Context, tenantID, periodID string) error {
	if err := t.check(tenantID); err != nil {
		return err
	}
	return t.state.closePeriod(periodID, t.now())
}

func (t *tx) DeletePeriods(_ context.Context, tenantID string, periodIDs []string) (int, error) {
	if err := t.check(tenantID); err != nil {
		return 0, err
	}
	removed := 0
	for _, id := range periodIDs {
		if _, ok := t.state.periods[id]; !ok {
			continue
		}
		removed += len(t.state.records[id])
		delete(t.state.records, id)
		delete(t.state.periods, id)
	}
	return removed, nil
}

func (t *tx) ListRecords(_ context.Context, scope records.Scope, filter records.Filter) ([]records.Record, error) {
	if err := t.check(scope.TenantID); err != nil {
		return nil, err
	}
	return t.state.listRecords(scope.PeriodID, filter)
}

func (t *tx) InsertRecords(_ context.Context, recs []records.Record) error {
	for _, rec := range recs {
		if err := t.check(rec.TenantID); err != nil {
			return err
		}
	}
	return t.state.insertRecords(recs)
}

func (st *tenantState) active() (periods.Period, error) {
	for _, p := range st.periods {
		if p.Active() {
			return p, nil
		}
	}
	return periods.Period{}, periods.ErrNoActivePeriod
}

func (st *tenantState) period(id string) (periods.Period, error) {
	p, ok := st.periods[id]
	if !ok {
		return periods.Period{}, periods.ErrPeriodNotFound
	}
	return p, nil
}

func (st *tenantState) list(filter periods.ListFilter) []periods.Period {
	out := make([]periods.Period, 0, len(st.periods))
	for _, p := range st.periods {
		if filter.Match(p) {
			out = append(out, p)
		}
	}
	slices.SortFunc(out, comparePeriods)
	return out
}

func (st *tenantState) insertPeriod(p periods.Period) error {
	if _, exists := st.periods[p.ID]; exists {
		return fmt.Errorf("%w: memstore: period %s exists", shared.ErrConflict, p.ID)
	}
	if p.Active() {
		if _, err := st.active(); err == nil {
			return periods.ErrActivePeriodExists
		}
	}
	st.periods[p.ID] = p
	return nil
}

func (st *tenantState) closePeriod(id string, at time.Time) error {
	p, err := st.period(id)
	if err != nil {
		return err
	}
	closed, err := periods.Close(p, at)
	if err != nil {
		return err
	}
	st.periods[id] = closed
	return nil
}

func (st *tenantState) listRecords(periodID string, filter records.Filter) ([]records.Record, error) {
	if _, err := st.period(periodID); err != nil {
		return nil, err
	}
	out := make([]records.Record, 0, len(st.records[periodID]))
	for _, rec := range st.records[periodID] {
		if filter.Match(rec) {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (st *tenantState) recordIndex(periodID, id string) int {
	return slices.IndexFunc(st.records[periodID], func(r records.Record) bool { return r.ID == id })
}

func (st *tenantState) writableRecord(periodID, id string) (int, error) {
	p, err := st.period(periodID)
	if err != nil {
		return -1, err
	}
	if !p.Active() {
		return -1, records.ErrPeriodFrozen
	}
	idx := st.recordIndex(periodID, id)
	if idx < 0 {
		return -1, records.ErrRecordNotFound
	}
	return idx, nil
}

func (st *tenantState) insertRecords(recs []records.Record) error {
	touched := map[string]bool{}
	for _, rec := range recs {
		p, err := st.period(rec.PeriodID)
		if err != nil {
			return err
		}
		if !p.Active() {
			return records.ErrPeriodFrozen
		}
		if rec.Payload == nil {
			return records.ErrPayloadRequired
		}
		if st.recordIndex(rec.PeriodID, rec.ID) >= 0 {
			return fmt.Errorf("%w: memstore: record %s exists", shared.ErrConflict, rec.ID)
		}
		list := st.records[rec.PeriodID]
		if !touched[rec.PeriodID] {
			list = slices.Clone(list)
			touched[rec.PeriodID] = true
		}
		st.records[rec.PeriodID] = append(list, rec)
	}
	return nil
}

func comparePeriods(a, b periods.Period) int {
	if c := a.StartDate.Compare(b.StartDate); c != 0 {
		return c
	}
	if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
		return c
	}
	if a.ID < b.ID {
		return -1
	}
	if a.ID > b.ID {
		return 1
	}
	return 0
}
