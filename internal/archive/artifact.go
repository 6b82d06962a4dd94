package archive

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"time"

	"github.com/invix-erp/invix/internal/periods"
	"github.com/invix-erp/invix/internal/records"
)

// Artifact is the exported content of one tenant year. Records decode back into their typed
// payloads, so an artifact restores every archived record verbatim.
type Artifact struct {
	TenantID   string           `json:"tenant_id"`
	Year       int              `json:"year"`
	ArchivedAt time.Time        `json:"archived_at"`
	Periods    []periods.Period `json:"periods"`
	Records    []records.Record `json:"records"`
}

// ArtifactKey names the artifact of a tenant year in every sink.
func ArtifactKey(tenantID string, year int) string {
	return fmt.Sprintf("archives/%s/%d.json", tenantID, year)
}

// Merge folds periods and records of next into a, keeping entries already present. Retried
// runs therefore never drop what an earlier partial run exported.
func (a Artifact) Merge(next Artifact) Artifact {
	seenPeriods := make(map[string]bool, len(a.Periods))
	for _, p := range a.Periods {
		seenPeriods[p.ID] = true
	}
	seenRecords := make(map[string]bool, len(a.Records))
	for _, r := range a.Records {
		seenRecords[r.ID] = true
	}
	out := Artifact{
		TenantID:   a.TenantID,
		Year:       a.Year,
		ArchivedAt: next.ArchivedAt,
		Periods:    slices.Clone(a.Periods),
		Records:    slices.Clone(a.Records),
	}
	for _, p := range next.Periods {
		if !seenPeriods[p.ID] {
			out.Periods = append(out.Periods, p)
		}
	}
	for _, r := range next.Records {
		if !seenRecords[r.ID] {
			out.Records = append(out.Records, r)
		}
	}
	return out
}

// Encode renders the artifact with periods ordered by start date and records grouped by
// period, each group keeping its stored order.
func Encode(a Artifact) ([]byte, error) {
	a.Periods = slices.Clone(a.Periods)
	a.Records = slices.Clone(a.Records)
	slices.SortStableFunc(a.Periods, func(x, y periods.Period) int {
		if c := x.StartDate.Compare(y.StartDate); c != 0 {
			return c
		}
		switch {
		case x.ID < y.ID:
			return -1
		case x.ID > y.ID:
			return 1
		}
		return 0
	})
	rank := make(map[string]int, len(a.Periods))
	for i, p := range a.Periods {
		rank[p.ID] = i
	}
	slices.SortStableFunc(a.Records, func(x, y records.Record) int {
		return rank[x.PeriodID] - rank[y.PeriodID]
	})
	if a.Periods == nil {
		a.Periods = []periods.Period{}
	}
	if a.Records == nil {
		a.Records = []records.Record{}
	}
	raw, err := json.MarshalIndent(a, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("archive: encode artifact: %w", err)
	}
	return raw, nil
}

// Decode parses an artifact produced by Encode.
func Decode(raw []byte) (Artifact, error) {
	var a Artifact
	if err := json.Unmarshal(raw, &a); err != nil {
		return Artifact{}, fmt.Errorf("archive: decode artifact: %w", err)
	}
	return a, nil
}

// Load reads the artifact of a tenant year back from the sink.
func Load(ctx context.Context, sink Sink, tenantID string, year int) (Artifact, error) {
	raw, err := sink.Get(ctx, ArtifactKey(tenantID, year))
	if err != nil {
		return Artifact{}, err
	}
	return Decode(raw)
}
