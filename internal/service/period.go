package service

import (
	"time"

	"github.com/noah-isme/pulse-metrics-api/internal/models"
)

// Bucketizer is the single source of truth for period boundaries. All pulse
// and compliance calculations resolve windows through it rather than
// recomputing week starts locally.
type Bucketizer struct{}

// NewBucketizer constructs the bucketizer.
func NewBucketizer() *Bucketizer {
	return &Bucketizer{}
}

// WeekStart returns the canonical start of the week containing t: Sunday
// 00:00:00 UTC, matching the platform's weekly cadence.
func (b *Bucketizer) WeekStart(t time.Time) time.Time {
	t = t.UTC()
	day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	return day.AddDate(0, 0, -int(day.Weekday()))
}

// PeriodStart returns the calendar-aligned start of the period containing t.
func (b *Bucketizer) PeriodStart(period models.Period, t time.Time) time.Time {
	t = t.UTC()
	switch period {
	case models.PeriodDay:
		return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	case models.PeriodWeek:
		return b.WeekStart(t)
	case models.PeriodMonth:
		return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
	case models.PeriodQuarter:
		quarterMonth := time.Month(((int(t.Month())-1)/3)*3 + 1)
		return time.Date(t.Year(), quarterMonth, 1, 0, 0, 0, 0, time.UTC)
	case models.PeriodYear:
		return time.Date(t.Year(), time.January, 1, 0, 0, 0, 0, time.UTC)
	}
	return t
}

func (b *Bucketizer) nextBoundary(period models.Period, start time.Time) time.Time {
	aligned := b.PeriodStart(period, start)
	switch period {
	case models.PeriodDay:
		return aligned.AddDate(0, 0, 1)
	case models.PeriodWeek:
		return aligned.AddDate(0, 0, 7)
	case models.PeriodMonth:
		return aligned.AddDate(0, 1, 0)
	case models.PeriodQuarter:
		return aligned.AddDate(0, 3, 0)
	case models.PeriodYear:
		return aligned.AddDate(1, 0, 0)
	}
	return aligned
}

// Aligned reports whether w spans exactly one full calendar period. Clipped
// first and last windows of a range fail this check; only aligned windows are
// safe to persist, since the aggregate key has no window end.
func (b *Bucketizer) Aligned(period models.Period, w models.Window) bool {
	start := w.Start.UTC()
	return start.Equal(b.PeriodStart(period, start)) && w.End.UTC().Equal(b.nextBoundary(period, start))
}

// Buckets produces the ordered, non-overlapping windows covering exactly
// [r.From, r.To]. The first and last windows may be clipped to the range
// boundaries; interior windows are full calendar-aligned periods. A degenerate
// range (From == To) yields one zero-width window.
func (b *Bucketizer) Buckets(period models.Period, r models.DateRange) []models.Window {
	from := r.From.UTC()
	to := r.To.UTC()
	if from.Equal(to) {
		return []models.Window{{Start: from, End: to}}
	}

	var windows []models.Window
	start := from
	for start.Before(to) {
		end := b.nextBoundary(period, start)
		if end.After(to) {
			end = to
		}
		windows = append(windows, models.Window{Start: start, End: end})
		start = end
	}
	return windows
}

// Index locates the window containing t, or -1 when t falls outside every
// window. The final window includes its end instant so the inclusive range
// boundary is covered.
func (b *Bucketizer) Index(windows []models.Window, t time.Time) int {
	t = t.UTC()
	for i, w := range windows {
		if t.Before(w.Start) {
			return -1
		}
		if t.Before(w.End) {
			return i
		}
		if i == len(windows)-1 && t.Equal(w.End) {
			return i
		}
	}
	return -1
}

// TrailingRange returns the default trailing window ending at now, used when a
// query omits its date range.
func (b *Bucketizer) TrailingRange(now time.Time, days int) models.DateRange {
	now = now.UTC()
	return models.DateRange{From: now.AddDate(0, 0, -days), To: now}
}
