package periods

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/invix-erp/invix/internal/shared"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestNormalizeDerivesEndDate(t *testing.T) {
	monthly, err := Spec{Kind: KindMonthly, StartDate: date(2025, 1, 1)}.Normalize()
	require.NoError(t, err)
	require.Equal(t, date(2025, 2, 1), monthly.EndDate)
	require.Equal(t, "January 2025", monthly.Name)

	daily, err := Spec{Kind: KindDaily, StartDate: time.Date(2025, 3, 9, 17, 45, 0, 0, time.UTC)}.Normalize()
	require.NoError(t, err)
	require.Equal(t, date(2025, 3, 9), daily.StartDate)
	require.Equal(t, date(2025, 3, 10), daily.EndDate)
	require.Equal(t, "Mar 9, 2025", daily.Name)
}

func TestNormalizeKeepsExplicitValues(t *testing.T) {
	spec, err := Spec{Name: "  Q1 close ", Kind: KindMonthly, StartDate: date(2025, 1, 1), EndDate: date(2025, 4, 1)}.Normalize()
	require.NoError(t, err)
	require.Equal(t, "Q1 close", spec.Name)
	require.Equal(t, date(2025, 4, 1), spec.EndDate)
}

func TestNormalizeRejectsMalformedSpecs(t *testing.T) {
	cases := map[string]struct {
		spec Spec
		want error
	}{
		"unknown kind":  {Spec{Kind: "weekly", StartDate: date(2025, 1, 1)}, ErrUnknownKind},
		"missing start": {Spec{Kind: KindDaily}, ErrStartRequired},
		"end == start":  {Spec{Kind: KindDaily, StartDate: date(2025, 1, 1), EndDate: date(2025, 1, 1)}, ErrInvalidRange},
		"end < start":   {Spec{Kind: KindMonthly, StartDate: date(2025, 2, 1), EndDate: date(2025, 1, 1)}, ErrInvalidRange},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := tc.spec.Normalize()
			require.ErrorIs(t, err, tc.want)
			require.True(t, errors.Is(err, shared.ErrValidation))
		})
	}
}

func TestNewBuildsActivePeriod(t *testing.T) {
	now := time.Date(2025, 1, 15, 8, 0, 0, 0, time.UTC)
	p, err := New("T1", Spec{Kind: KindMonthly, StartDate: date(2025, 1, 1)}, now)
	require.NoError(t, err)
	require.NotEmpty(t, p.ID)
	require.Equal(t, "T1", p.TenantID)
	require.Equal(t, StatusActive, p.Status)
	require.Equal(t, now, p.CreatedAt)
	require.Nil(t, p.ClosedAt)
}

func TestCloseIsTerminal(t *testing.T) {
	p, err := New("T1", Spec{Kind: KindDaily, StartDate: date(2025, 1, 1)}, time.Now())
	require.NoError(t, err)

	at := date(2025, 1, 2)
	closed, err := Close(p, at)
	require.NoError(t, err)
	require.Equal(t, StatusClosed, closed.Status)
	require.Equal(t, at, *closed.ClosedAt)

	_, err = Close(closed, at)
	require.ErrorIs(t, err, ErrPeriodClosed)
	require.True(t, errors.Is(err, shared.ErrInvalidState))
}

func TestWithinYear(t *testing.T) {
	dec := Period{StartDate: date(2024, 12, 1), EndDate: date(2025, 1, 1)}
	require.True(t, dec.WithinYear(2024))
	require.False(t, dec.WithinYear(2025))

	straddle := Period{StartDate: date(2024, 12, 15), EndDate: date(2025, 1, 15)}
	require.False(t, straddle.WithinYear(2024))
	require.False(t, straddle.WithinYear(2025))
}
