package service

import (
	"testing"
	"time"

	billingperioddomain "github.com/smallbiznis/copybill/internal/billingperiod/domain"
	"github.com/smallbiznis/copybill/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestResolve(t *testing.T) {
	r := NewStaticResolver(20, time.UTC)

	cases := []struct {
		name      string
		ref       time.Time
		wantStart time.Time
		wantEnd   time.Time
	}{
		{"after cycle day", time.Date(2024, 3, 25, 15, 4, 0, 0, time.UTC), day(2024, 3, 20), day(2024, 4, 20)},
		{"before cycle day", day(2024, 3, 19), day(2024, 2, 20), day(2024, 3, 20)},
		{"on cycle day midnight", day(2024, 3, 20), day(2024, 3, 20), day(2024, 4, 20)},
		{"last instant before cycle day", day(2024, 3, 20).Add(-time.Nanosecond), day(2024, 2, 20), day(2024, 3, 20)},
		{"january rolls back a year", day(2024, 1, 5), day(2023, 12, 20), day(2024, 1, 20)},
		{"december rolls forward a year", day(2024, 12, 28), day(2024, 12, 20), day(2025, 1, 20)},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p := r.Resolve(tc.ref)
			assert.True(t, tc.wantStart.Equal(p.Start), "start %s", p.Start)
			assert.True(t, tc.wantEnd.Equal(p.End), "end %s", p.End)
			assert.True(t, p.Contains(tc.ref))
		})
	}
}

func TestResolveTenYearSweep(t *testing.T) {
	r := NewStaticResolver(20, time.UTC)
	for ref := day(2015, 1, 1); ref.Before(day(2025, 1, 1)); ref = ref.Add(7 * time.Hour) {
		p := r.Resolve(ref)
		require.True(t, p.Contains(ref), "ref %s not in %s", ref, p)
		require.Equal(t, 20, p.Start.Day())
		require.Equal(t, 20, p.End.Day())
		require.True(t, p.Start.AddDate(0, 1, 0).Equal(p.End), "period %s is not one month", p)
		require.Zero(t, p.Start.Hour())
	}
}

func TestResolveHonorsLocation(t *testing.T) {
	paris := time.FixedZone("CET", 3600)
	r := NewStaticResolver(20, paris)

	// 23:30 UTC on the 19th is already the 20th in Paris.
	p := r.Resolve(time.Date(2024, 3, 19, 23, 30, 0, 0, time.UTC))
	assert.True(t, time.Date(2024, 3, 20, 0, 0, 0, 0, paris).Equal(p.Start))
}

func TestEnumerateTwelvePeriods(t *testing.T) {
	r := NewStaticResolver(20, time.UTC)
	ref := day(2024, 3, 25)

	newest, err := r.Enumerate(ref, 12, billingperioddomain.OrderNewestFirst)
	require.NoError(t, err)
	require.Len(t, newest, 12)
	assert.True(t, newest[0].Contains(ref))
	for i := 1; i < len(newest); i++ {
		assert.True(t, newest[i].End.Equal(newest[i-1].Start), "gap between %s and %s", newest[i], newest[i-1])
	}
	assert.True(t, day(2023, 4, 20).Equal(newest[11].Start))

	oldest, err := r.Enumerate(ref, 12, billingperioddomain.OrderOldestFirst)
	require.NoError(t, err)
	for i := range oldest {
		assert.Equal(t, newest[len(newest)-1-i], oldest[i])
	}
}

func TestEnumerateRejectsBadInput(t *testing.T) {
	r := NewStaticResolver(20, time.UTC)

	_, err := r.Enumerate(day(2024, 3, 25), 0, billingperioddomain.OrderNewestFirst)
	assert.ErrorIs(t, err, billingperioddomain.ErrInvalidPeriodCount)

	_, err = r.Enumerate(day(2024, 3, 25), 3, billingperioddomain.Order("sideways"))
	assert.ErrorIs(t, err, billingperioddomain.ErrInvalidOrder)
}

func TestNextPrevious(t *testing.T) {
	r := NewStaticResolver(20, time.UTC)
	p := r.Resolve(day(2024, 12, 25))

	next := r.Next(p)
	assert.True(t, day(2025, 1, 20).Equal(next.Start))
	assert.Equal(t, p, r.Previous(next))
}

func TestNewPeriod(t *testing.T) {
	_, err := billingperioddomain.NewPeriod(day(2024, 3, 20), day(2024, 3, 20))
	assert.ErrorIs(t, err, billingperioddomain.ErrInvalidPeriod)

	p, err := billingperioddomain.NewPeriod(day(2024, 3, 20), day(2024, 4, 20))
	require.NoError(t, err)
	assert.Equal(t, "2024-03-20", p.Key())
}

func TestResolverFollowsConfigHolder(t *testing.T) {
	cfg := config.DefaultBillingConfig()
	cfg.CycleDay = 1
	r := NewResolver(ResolverParam{Config: config.NewStaticBillingConfigHolder(cfg)})

	p := r.Resolve(day(2024, 3, 25))
	assert.True(t, day(2024, 3, 1).Equal(p.Start))
	assert.True(t, day(2024, 4, 1).Equal(p.End))
}
