package history

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sync/singleflight"

	"github.com/invix-erp/invix/internal/periods"
	"github.com/invix-erp/invix/internal/records"
	"github.com/invix-erp/invix/internal/shared"
)

// Source reads periods and their records.
type Source interface {
	GetPeriod(ctx context.Context, tenantID, periodID string) (periods.Period, error)
	ListRecords(ctx context.Context, scope records.Scope, filter records.Filter) ([]records.Record, error)
}

// Aggregator serves period summaries. Summaries of closed periods are cached; they cannot
// change until the period is archived.
type Aggregator struct {
	source Source
	cache  *Cache
	group  singleflight.Group
	logger *slog.Logger
}

// NewAggregator builds an aggregator. A nil cache disables caching.
func NewAggregator(source Source, cache *Cache, logger *slog.Logger) *Aggregator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Aggregator{source: source, cache: cache, logger: logger}
}

// Summarize returns the summary of one tenant period. An unknown period, or one whose
// records cannot be read, yields a not-found error rather than an empty summary.
func (a *Aggregator) Summarize(ctx context.Context, tenantID, periodID string) (Summary, error) {
	p, err := a.source.GetPeriod(ctx, tenantID, periodID)
	if err != nil {
		return Summary{}, err
	}
	if p.Active() || a.cache == nil {
		return a.shared(ctx, p)
	}
	key, err := a.cache.BuildKey(ctx, "summary", tenantID, periodID)
	if err != nil {
		a.logger.WarnContext(ctx, "history cache unavailable", slog.Any("error", err))
		return a.shared(ctx, p)
	}
	var out Summary
	err = a.cache.FetchJSON(ctx, key, &out, func(ctx context.Context) (any, error) {
		return a.shared(ctx, p)
	})
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return Summary{}, err
		}
		a.logger.WarnContext(ctx, "history cache fetch failed", slog.Any("error", err))
		return a.shared(ctx, p)
	}
	return out, nil
}

// Compare returns the summaries of several periods in the order given.
func (a *Aggregator) Compare(ctx context.Context, tenantID string, periodIDs []string) ([]Summary, error) {
	out := make([]Summary, 0, len(periodIDs))
	for _, id := range periodIDs {
		s, err := a.Summarize(ctx, tenantID, id)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

// Invalidate drops every cached summary.
func (a *Aggregator) Invalidate(ctx context.Context) error {
	return a.cache.Bump(ctx)
}

// shared collapses concurrent computations of the same period.
func (a *Aggregator) shared(ctx context.Context, p periods.Period) (Summary, error) {
	key := p.TenantID + "/" + p.ID + "/" + string(p.Status)
	ch := a.group.DoChan(key, func() (any, error) {
		return a.compute(context.WithoutCancel(ctx), p)
	})
	select {
	case <-ctx.Done():
		return Summary{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return Summary{}, res.Err
		}
		return res.Val.(Summary), nil
	}
}

func (a *Aggregator) compute(ctx context.Context, p periods.Period) (Summary, error) {
	recs, err := a.source.ListRecords(ctx, records.Scope{TenantID: p.TenantID, PeriodID: p.ID}, records.Filter{})
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return Summary{}, err
		}
		return Summary{}, fmt.Errorf("%w: history: records of period %s unreadable: %w", shared.ErrNotFound, p.ID, err)
	}
	return Compute(p, recs), nil
}
