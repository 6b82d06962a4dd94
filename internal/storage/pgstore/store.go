// Package pgstore persists periods and records in PostgreSQL.
package pgstore

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/invix-erp/invix/internal/periods"
	"github.com/invix-erp/invix/internal/platform/db"
	"github.com/invix-erp/invix/internal/records"
	"github.com/invix-erp/invix/internal/shared"
	"github.com/invix-erp/invix/internal/storage"
)

//go:embed schema.sql
var schema string

var (
	_ storage.Store        = (*Store)(nil)
	_ storage.TenantLister = (*Store)(nil)
)

type dbtx interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Query(context.Context, string, ...any) (pgx.Rows, error)
	QueryRow(context.Context, string, ...any) pgx.Row
}

// Store implements storage.Store on a pgx pool.
type Store struct {
	pool *pgxpool.Pool
	db   dbtx
	now  func() time.Time
}

// New wraps the pool.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool, db: pool, now: time.Now}
}

// WithNow overrides the clock used for closed_at.
func (s *Store) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// Migrate creates the tables when missing.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("pgstore: migrate: %w", err)
	}
	return nil
}

// writeTx runs every write at read committed. Writers meet on the period row: record writes
// hold it FOR SHARE, a transition takes it FOR UPDATE. Whoever waits re-reads the row and the
// rows committed meanwhile, which a repeatable-read snapshot taken earlier would hide.
func (s *Store) writeTx(ctx context.Context, fn func(pgx.Tx) error) error {
	return db.WithTx(ctx, s.pool, pgx.TxOptions{IsoLevel: pgx.ReadCommitted}, fn)
}

// WithTx runs fn in a transaction holding the tenant's advisory lock. Tx.GetActive locks the
// active period row, so record inserts already in flight commit first and later ones fail
// with records.ErrPeriodFrozen once the period is closed.
func (s *Store) WithTx(ctx context.Context, tenantID string, fn func(context.Context, storage.Tx) error) error {
	return s.writeTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, tenantID); err != nil {
			return fmt.Errorf("pgstore: tenant lock: %w", err)
		}
		return fn(ctx, &txStore{q: queries{db: tx}, tenantID: tenantID, now: s.now})
	})
}

// ListTenants returns the tenants holding at least one period.
func (s *Store) ListTenants(ctx context.Context) ([]string, error) {
	rows, err := s.db.Query(ctx, `SELECT DISTINCT tenant_id FROM periods ORDER BY tenant_id`)
	if err != nil {
		return nil, fmt.Errorf("pgstore: list tenants: %w", err)
	}
	tenants, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("pgstore: list tenants: %w", err)
	}
	return tenants, nil
}

func (s *Store) q() queries { return queries{db: s.db} }

func (s *Store) GetActive(ctx context.Context, tenantID string) (periods.Period, error) {
	return s.q().active(ctx, tenantID, false)
}

func (s *Store) GetPeriod(ctx context.Context, tenantID, periodID string) (periods.Period, error) {
	return s.q().period(ctx, tenantID, periodID, false)
}

func (s *Store) ListPeriods(ctx context.Context, tenantID string, filter periods.ListFilter) ([]periods.Period, error) {
	return s.q().listPeriods(ctx, tenantID, filter)
}

func (s *Store) CreatePeriod(ctx context.Context, tenantID string, spec periods.Spec) (periods.Period, error) {
	p, err := periods.New(tenantID, spec, s.now())
	if err != nil {
		return periods.Period{}, err
	}
	if err := s.q().insertPeriod(ctx, p); err != nil {
		return periods.Period{}, err
	}
	return p, nil
}

func (s *Store) ClosePeriod(ctx context.Context, tenantID, periodID string) error {
	return s.writeTx(ctx, func(tx pgx.Tx) error {
		return queries{db: tx}.closePeriod(ctx, tenantID, periodID, s.now())
	})
}

func (s *Store) InsertRecord(ctx context.Context, rec records.Record) error {
	return s.writeTx(ctx, func(tx pgx.Tx) error {
		return queries{db: tx}.insertRecords(ctx, []records.Record{rec})
	})
}

func (s *Store) GetRecord(ctx context.Context, scope records.Scope, id string) (records.Record, error) {
	if _, err := s.GetPeriod(ctx, scope.TenantID, scope.PeriodID); err != nil {
		return records.Record{}, err
	}
	return s.q().record(ctx, scope, id)
}

func (s *Store) ListRecords(ctx context.Context, scope records.Scope, filter records.Filter) ([]records.Record, error) {
	return s.q().listRecords(ctx, scope, filter)
}

func (s *Store) UpdateRecord(ctx context.Context, scope records.Scope, rec records.Record) error {
	raw, err := json.Marshal(rec.Payload)
	if err != nil {
		return fmt.Errorf("pgstore: encode payload: %w", err)
	}
	return s.writeTx(ctx, func(tx pgx.Tx) error {
		q := queries{db: tx}
		if err := q.writable(ctx, scope); err != nil {
			return err
		}
		tag, err := tx.Exec(ctx, `
			UPDATE domain_records SET payload = $4
			WHERE tenant_id = $1 AND period_id = $2 AND id = $3 AND kind = $5`,
			scope.TenantID, scope.PeriodID, rec.ID, raw, string(rec.Kind()))
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return records.ErrRecordNotFound
		}
		return nil
	})
}

func (s *Store) DeleteRecord(ctx context.Context, scope records.Scope, id string) error {
	return s.writeTx(ctx, func(tx pgx.Tx) error {
		q := queries{db: tx}
		if err := q.writable(ctx, scope); err != nil {
			return err
		}
		tag, err := tx.Exec(ctx, `DELETE FROM domain_records WHERE tenant_id = $1 AND period_id = $2 AND id = $3`,
			scope.TenantID, scope.PeriodID, id)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return records.ErrRecordNotFound
		}
		return nil
	})
}

type txStore struct {
	q        queries
	tenantID string
	now      func() time.Time
}

func (t *txStore) check(tenantID string) error {
	if tenantID != t.tenantID {
		return fmt.Errorf("%w: pgstore: tx bound to another tenant", shared.ErrValidation)
	}
	return nil
}

func (t *txStore) GetActive(ctx context.Context, tenantID string) (periods.Period, error) {
	if err := t.check(tenantID); err != nil {
		return periods.Period{}, err
	}
	return t.q.active(ctx, tenantID, true)
}

func (t *txStore) GetPeriod(ctx context.Context, tenantID, periodID string) (periods.Period, error) {
	if err := t.check(tenantID); err != nil {
		return periods.Period{}, err
	}
	return t.q.period(ctx, tenantID, periodID, false)
}

func (t *txStore) ListPeriods(ctx context.Context, tenantID string, filter periods.ListFilter) ([]periods.Period, error) {
	if err := t.check(tenantID); err != nil {
		return nil, err
	}
	return t.q.listPeriods(ctx, tenantID, filter)
}

func (t *txStore) InsertPeriod(ctx context.Context, p periods.Period) error {
	if err := t.check(p.TenantID); err != nil {
		return err
	}
	return t.q.insertPeriod(ctx, p)
}

func (t *txStore) ClosePeriod(ctx context.Context, tenantID, periodID string) error {
	if err := t.check(tenantID); err != nil {
		return err
	}
	return t.q.closePeriod(ctx, tenantID, periodID, t.now())
}

func (t *txStore) DeletePeriods(ctx context.Context, tenantID string, periodIDs []string) (int, error) {
	if err := t.check(tenantID); err != nil {
		return 0, err
	}
	if len(periodIDs) == 0 {
		return 0, nil
	}
	tag, err := t.q.db.Exec(ctx, `DELETE FROM domain_records WHERE tenant_id = $1 AND period_id = ANY($2)`, tenantID, periodIDs)
	if err != nil {
		return 0, fmt.Errorf("pgstore: delete records: %w", err)
	}
	if _, err := t.q.db.Exec(ctx, `DELETE FROM periods WHERE tenant_id = $1 AND id = ANY($2)`, tenantID, periodIDs); err != nil {
		return 0, fmt.Errorf("pgstore: delete periods: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func (t *txStore) ListRecords(ctx context.Context, scope records.Scope, filter records.Filter) ([]records.Record, error) {
	if err := t.check(scope.TenantID); err != nil {
		return nil, err
	}
	return t.q.listRecords(ctx, scope, filter)
}

func (t *txStore) InsertRecords(ctx context.Context, recs []records.Record) error {
	for _, rec := range recs {
		if err := t.check(rec.TenantID); err != nil {
			return err
		}
	}
	return t.q.insertRecords(ctx, recs)
}

type queries struct {
	db dbtx
}

const periodColumns = `id, tenant_id, name, kind, start_date, end_date, status, created_at, closed_at`

func scanPeriod(row pgx.Row) (periods.Period, error) {
	var (
		p      periods.Period
		kind   string
		status string
	)
	if err := row.Scan(&p.ID, &p.TenantID, &p.Name, &kind, &p.StartDate, &p.EndDate, &status, &p.CreatedAt, &p.ClosedAt); err != nil {
		return periods.Period{}, err
	}
	p.Kind = periods.Kind(kind)
	p.Status = periods.Status(status)
	p.StartDate = p.StartDate.UTC()
	p.EndDate = p.EndDate.UTC()
	p.CreatedAt = p.CreatedAt.UTC()
	if p.ClosedAt != nil {
		closed := p.ClosedAt.UTC()
		p.ClosedAt = &closed
	}
	return p, nil
}

func (q queries) active(ctx context.Context, tenantID string, forUpdate bool) (periods.Period, error) {
	query := `SELECT ` + periodColumns + ` FROM periods WHERE tenant_id = $1 AND status = 'active'`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	p, err := scanPeriod(q.db.QueryRow(ctx, query, tenantID))
	if errors.Is(err, pgx.ErrNoRows) {
		return periods.Period{}, periods.ErrNoActivePeriod
	}
	return p, err
}

func (q queries) period(ctx context.Context, tenantID, id string, forUpdate bool) (periods.Period, error) {
	query := `SELECT ` + periodColumns + ` FROM periods WHERE tenant_id = $1 AND id = $2`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	p, err := scanPeriod(q.db.QueryRow(ctx, query, tenantID, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return periods.Period{}, periods.ErrPeriodNotFound
	}
	return p, err
}

func (q queries) listPeriods(ctx context.Context, tenantID string, filter periods.ListFilter) ([]periods.Period, error) {
	query := `SELECT ` + periodColumns + ` FROM periods WHERE tenant_id = $1`
	args := []any{tenantID}
	if filter.Status != "" {
		query += ` AND status = $2`
		args = append(args, string(filter.Status))
	}
	query += ` ORDER BY start_date, created_at, id`
	rows, err := q.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("pgstore: list periods: %w", err)
	}
	defer rows.Close()
	var out []periods.Period
	for rows.Next() {
		p, err := scanPeriod(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (q queries) insertPeriod(ctx context.Context, p periods.Period) error {
	_, err := q.db.Exec(ctx, `
		INSERT INTO periods (`+periodColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		p.ID, p.TenantID, p.Name, string(p.Kind), p.StartDate, p.EndDate, string(p.Status), p.CreatedAt, p.ClosedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" && pgErr.ConstraintName == "periods_one_active_per_tenant" {
			return periods.ErrActivePeriodExists
		}
		return db.Classify(err)
	}
	return nil
}

func (q queries) closePeriod(ctx context.Context, tenantID, id string, at time.Time) error {
	p, err := q.period(ctx, tenantID, id, true)
	if err != nil {
		return err
	}
	closed, err := periods.Close(p, at)
	if err != nil {
		return err
	}
	_, err = q.db.Exec(ctx, `UPDATE periods SET status = $3, closed_at = $4 WHERE tenant_id = $1 AND id = $2`,
		tenantID, id, string(closed.Status), closed.ClosedAt)
	return err
}

// writable locks the scope's period row against a concurrent close.
func (q queries) writable(ctx context.Context, scope records.Scope) error {
	var status string
	err := q.db.QueryRow(ctx, `SELECT status FROM periods WHERE tenant_id = $1 AND id = $2 FOR SHARE`,
		scope.TenantID, scope.PeriodID).Scan(&status)
	if errors.Is(err, pgx.ErrNoRows) {
		return periods.ErrPeriodNotFound
	}
	if err != nil {
		return err
	}
	if periods.Status(status) != periods.StatusActive {
		return records.ErrPeriodFrozen
	}
	return nil
}

func (q queries) insertRecords(ctx context.Context, recs []records.Record) error {
	checked := map[records.Scope]bool{}
	for _, rec := range recs {
		scope := records.Scope{TenantID: rec.TenantID, PeriodID: rec.PeriodID}
		if err := scope.Validate(); err != nil {
			return err
		}
		if !checked[scope] {
			if err := q.writable(ctx, scope); err != nil {
				return err
			}
			checked[scope] = true
		}
		if rec.Payload == nil {
			return records.ErrPayloadRequired
		}
		raw, err := json.Marshal(rec.Payload)
		if err != nil {
			return fmt.Errorf("pgstore: encode payload: %w", err)
		}
		var carried *string
		if rec.CarriedFrom != "" {
			carried = &rec.CarriedFrom
		}
		_, err = q.db.Exec(ctx, `
			INSERT INTO domain_records (tenant_id, period_id, id, kind, carried_from, created_at, payload)
			VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			rec.TenantID, rec.PeriodID, rec.ID, string(rec.Kind()), carried, rec.CreatedAt, raw)
		if err != nil {
			return db.Classify(err)
		}
	}
	return nil
}

const recordColumns = `id, tenant_id, period_id, kind, COALESCE(carried_from, ''), created_at, payload`

func scanRecord(row pgx.Row) (records.Record, error) {
	var (
		rec  records.Record
		kind string
		raw  []byte
	)
	if err := row.Scan(&rec.ID, &rec.TenantID, &rec.PeriodID, &kind, &rec.CarriedFrom, &rec.CreatedAt, &raw); err != nil {
		return records.Record{}, err
	}
	payload, err := records.DecodePayload(records.Kind(kind), raw)
	if err != nil {
		return records.Record{}, err
	}
	rec.CreatedAt = rec.CreatedAt.UTC()
	rec.Payload = payload
	return rec, nil
}

func (q queries) record(ctx context.Context, scope records.Scope, id string) (records.Record, error) {
	row := q.db.QueryRow(ctx, `SELECT `+recordColumns+` FROM domain_records WHERE tenant_id = $1 AND period_id = $2 AND id = $3`,
		scope.TenantID, scope.PeriodID, id)
	rec, err := scanRecord(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return records.Record{}, records.ErrRecordNotFound
	}
	return rec, err
}

// listRecords reads the period row and its records in one statement so a missing period is
// reported instead of an empty list.
func (q queries) listRecords(ctx context.Context, scope records.Scope, filter records.Filter) ([]records.Record, error) {
	query := `
		SELECT r.id, r.tenant_id, r.period_id, r.kind, COALESCE(r.carried_from, ''), r.created_at, r.payload
		FROM periods p
		LEFT JOIN domain_records r ON r.tenant_id = p.tenant_id AND r.period_id = p.id`
	args := []any{scope.TenantID, scope.PeriodID}
	if filter.Kind != "" {
		query += ` AND r.kind = $3`
		args = append(args, string(filter.Kind))
	}
	query += ` WHERE p.tenant_id = $1 AND p.id = $2 ORDER BY r.seq`
	rows, err := q.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("pgstore: list records: %w", err)
	}
	defer rows.Close()

	found := false
	out := []records.Record{}
	for rows.Next() {
		found = true
		var (
			id, tenantID, periodID, kind, carried *string
			createdAt                             *time.Time
			raw                                   []byte
		)
		if err := rows.Scan(&id, &tenantID, &periodID, &kind, &carried, &createdAt, &raw); err != nil {
			return nil, err
		}
		if id == nil {
			continue
		}
		payload, err := records.DecodePayload(records.Kind(*kind), raw)
		if err != nil {
			return nil, err
		}
		out = append(out, records.Record{
			ID:          *id,
			TenantID:    *tenantID,
			PeriodID:    *periodID,
			CarriedFrom: *carried,
			CreatedAt:   createdAt.UTC(),
			Payload:     payload,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if !found {
		return nil, periods.ErrPeriodNotFound
	}
	return out, nil
}
