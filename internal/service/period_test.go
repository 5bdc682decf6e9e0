package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/pulse-metrics-api/internal/models"
)

func TestWeekStartSundayAlignment(t *testing.T) {
	b := NewBucketizer()

	cases := []struct {
		name string
		in   time.Time
		want time.Time
	}{
		{"wednesday", time.Date(2026, 3, 11, 15, 30, 0, 0, time.UTC), time.Date(2026, 3, 8, 0, 0, 0, 0, time.UTC)},
		{"sunday itself", time.Date(2026, 3, 8, 0, 0, 0, 0, time.UTC), time.Date(2026, 3, 8, 0, 0, 0, 0, time.UTC)},
		{"saturday", time.Date(2026, 3, 14, 23, 59, 59, 0, time.UTC), time.Date(2026, 3, 8, 0, 0, 0, 0, time.UTC)},
		{"non utc input", time.Date(2026, 3, 9, 1, 0, 0, 0, time.FixedZone("X", 3*3600)), time.Date(2026, 3, 8, 0, 0, 0, 0, time.UTC)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := b.WeekStart(tc.in)
			assert.True(t, got.Equal(tc.want), "got %s want %s", got, tc.want)
			assert.Equal(t, time.Sunday, got.Weekday())
		})
	}
}

func TestPeriodStartQuarterAlignment(t *testing.T) {
	b := NewBucketizer()

	assert.Equal(t, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		b.PeriodStart(models.PeriodQuarter, time.Date(2026, 2, 15, 0, 0, 0, 0, time.UTC)))
	assert.Equal(t, time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC),
		b.PeriodStart(models.PeriodQuarter, time.Date(2026, 6, 30, 0, 0, 0, 0, time.UTC)))
	assert.Equal(t, time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC),
		b.PeriodStart(models.PeriodQuarter, time.Date(2026, 12, 31, 0, 0, 0, 0, time.UTC)))
}

func TestBucketsCoverRangeExactly(t *testing.T) {
	b := NewBucketizer()
	r := models.DateRange{
		From: time.Date(2026, 1, 14, 12, 0, 0, 0, time.UTC),
		To:   time.Date(2026, 4, 2, 6, 0, 0, 0, time.UTC),
	}

	for _, period := range models.AllPeriods() {
		t.Run(string(period), func(t *testing.T) {
			windows := b.Buckets(period, r)
			require.NotEmpty(t, windows)

			assert.True(t, windows[0].Start.Equal(r.From), "first window must start at range start")
			assert.True(t, windows[len(windows)-1].End.Equal(r.To), "last window must end at range end")

			for i := 1; i < len(windows); i++ {
				assert.True(t, windows[i].Start.Equal(windows[i-1].End),
					"windows must be contiguous at index %d", i)
			}
			for _, w := range windows {
				assert.False(t, w.End.Before(w.Start))
			}
		})
	}
}

func TestBucketsInteriorWindowsCalendarAligned(t *testing.T) {
	b := NewBucketizer()
	r := models.DateRange{
		From: time.Date(2026, 1, 20, 0, 0, 0, 0, time.UTC),
		To:   time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC),
	}

	windows := b.Buckets(models.PeriodMonth, r)
	require.Len(t, windows, 3)
	assert.True(t, windows[1].Start.Equal(time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)))
	assert.True(t, windows[1].End.Equal(time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)))
}

func TestBucketsDegenerateRange(t *testing.T) {
	b := NewBucketizer()
	at := time.Date(2026, 5, 5, 10, 0, 0, 0, time.UTC)

	windows := b.Buckets(models.PeriodWeek, models.DateRange{From: at, To: at})
	require.Len(t, windows, 1)
	assert.True(t, windows[0].Start.Equal(at))
	assert.True(t, windows[0].End.Equal(at))
}

func TestIndexBoundaryOwnership(t *testing.T) {
	b := NewBucketizer()
	r := models.DateRange{
		From: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
		To:   time.Date(2026, 3, 22, 0, 0, 0, 0, time.UTC),
	}
	windows := b.Buckets(models.PeriodWeek, r)
	require.Len(t, windows, 3)

	// A shared boundary belongs to the later window.
	assert.Equal(t, 1, b.Index(windows, windows[1].Start))
	// The final window keeps its end instant.
	assert.Equal(t, 2, b.Index(windows, r.To))
	// Outside the range entirely.
	assert.Equal(t, -1, b.Index(windows, r.From.Add(-time.Second)))
	assert.Equal(t, -1, b.Index(windows, r.To.Add(time.Second)))
}

func TestAlignedDistinguishesClippedWindows(t *testing.T) {
	b := NewBucketizer()
	sunday := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	cases := []struct {
		name   string
		period models.Period
		window models.Window
		want   bool
	}{
		{"full week", models.PeriodWeek, models.Window{Start: sunday, End: sunday.AddDate(0, 0, 7)}, true},
		{"clipped week end", models.PeriodWeek, models.Window{Start: sunday, End: sunday.AddDate(0, 0, 3)}, false},
		{"clipped week start", models.PeriodWeek, models.Window{Start: sunday.AddDate(0, 0, 1), End: sunday.AddDate(0, 0, 7)}, false},
		{"full month", models.PeriodMonth, models.Window{Start: sunday, End: time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)}, true},
		{"month to date", models.PeriodMonth, models.Window{Start: sunday, End: sunday.AddDate(0, 0, 10)}, false},
		{"full day", models.PeriodDay, models.Window{Start: sunday, End: sunday.AddDate(0, 0, 1)}, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, b.Aligned(tc.period, tc.window))
		})
	}
}

func TestTrailingRange(t *testing.T) {
	b := NewBucketizer()
	now := time.Date(2026, 8, 1, 9, 0, 0, 0, time.UTC)

	r := b.TrailingRange(now, 30)
	assert.True(t, r.To.Equal(now))
	assert.True(t, r.From.Equal(now.AddDate(0, 0, -30)))
	assert.Equal(t, 30, r.Days())
}
