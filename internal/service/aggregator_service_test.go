package service

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/pulse-metrics-api/internal/models"
	"github.com/noah-isme/pulse-metrics-api/pkg/config"
	appErrors "github.com/noah-isme/pulse-metrics-api/pkg/errors"
)

type fakeEvents struct {
	checkins  []models.CheckinRecord
	reviews   []models.ReviewRecord
	shoutouts []models.ShoutoutRecord
	wins      int
	err       error
}

func (f *fakeEvents) Checkins(_ context.Context, _ string, _ []string, from, to time.Time) ([]models.CheckinRecord, error) {
	if f.err != nil {
		return nil, f.err
	}
	var out []models.CheckinRecord
	for _, c := range f.checkins {
		if !c.WeekOf.Before(from) && !c.WeekOf.After(to) {
			out = append(out, c)
		}
	}
	return out, nil
}

func (f *fakeEvents) CheckinsDueBetween(_ context.Context, _ string, _ []string, from, to time.Time) ([]models.CheckinRecord, error) {
	if f.err != nil {
		return nil, f.err
	}
	var due []models.CheckinRecord
	for _, c := range f.checkins {
		if !c.DueAt.Before(from) && !c.DueAt.After(to) {
			due = append(due, c)
		}
	}
	return due, nil
}

func (f *fakeEvents) Reviews(context.Context, string, []string, time.Time, time.Time) ([]models.ReviewRecord, error) {
	return f.reviews, f.err
}

func (f *fakeEvents) Shoutouts(context.Context, string, []string, time.Time, time.Time) ([]models.ShoutoutRecord, error) {
	return f.shoutouts, f.err
}

func (f *fakeEvents) WinCount(context.Context, string, time.Time, time.Time) (int, error) {
	return f.wins, f.err
}

type fakeAggregates struct {
	mu      sync.Mutex
	buckets map[string]models.AggregateBucket
	err     error
}

func newFakeAggregates() *fakeAggregates {
	return &fakeAggregates{buckets: make(map[string]models.AggregateBucket)}
}

func bucketKey(b models.AggregateBucket) string {
	return b.OrganizationID + "|" + string(b.Scope) + "|" + b.EntityID + "|" +
		string(b.MetricType) + "|" + string(b.Period) + "|" + b.WindowStart.UTC().Format(time.RFC3339)
}

func (f *fakeAggregates) GetSeries(_ context.Context, organizationID string, scope models.ScopeType, entityID string, metricType models.MetricType, period models.Period, from, to time.Time) ([]models.AggregateBucket, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	var out []models.AggregateBucket
	for _, b := range f.buckets {
		if b.OrganizationID == organizationID && b.Scope == scope && b.EntityID == entityID &&
			b.MetricType == metricType && b.Period == period &&
			!b.WindowStart.Before(from) && !b.WindowStart.After(to) {
			out = append(out, b)
		}
	}
	return out, nil
}

func (f *fakeAggregates) Upsert(_ context.Context, bucket models.AggregateBucket) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.buckets[bucketKey(bucket)] = bucket
	return nil
}

func (f *fakeAggregates) size() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.buckets)
}

func (f *fakeAggregates) get(key models.AggregateKey) (models.AggregateBucket, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	bucket, ok := f.buckets[bucketKey(models.AggregateBucket{AggregateKey: key})]
	return bucket, ok
}

type fakeScopes struct {
	users []string
	err   error
}

func (f *fakeScopes) Resolve(context.Context, string, models.ScopeType, string, ResolveOptions) ([]string, error) {
	return f.users, f.err
}

// weekRange is a single Sunday-to-Sunday week.
var weekRange = models.DateRange{
	From: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
	To:   time.Date(2026, 3, 8, 0, 0, 0, 0, time.UTC),
}

func newTestAggregator(events *fakeEvents, aggregates *fakeAggregates, strategy string) *AggregatorService {
	return NewAggregatorService(AggregatorServiceParams{
		Events:     events,
		Aggregates: aggregates,
		Scopes:     &fakeScopes{users: []string{"u1", "u2", "u3"}},
		Strategy:   strategy,
	})
}

func pulseQuery() MetricQuery {
	return MetricQuery{
		OrganizationID: "org1",
		Scope:          models.ScopeOrganization,
		Period:         models.PeriodWeek,
		Range:          weekRange,
	}
}

func weekCheckins() []models.CheckinRecord {
	weekOf := weekRange.From
	return []models.CheckinRecord{
		{UserID: "u1", Mood: 4, WeekOf: weekOf.Add(24 * time.Hour)},
		{UserID: "u2", Mood: 5, WeekOf: weekOf.Add(48 * time.Hour)},
		{UserID: "u3", Mood: 3, WeekOf: weekOf.Add(72 * time.Hour)},
	}
}

func TestPulseLiveAverage(t *testing.T) {
	svc := newTestAggregator(&fakeEvents{checkins: weekCheckins()}, nil, config.StrategyLiveOnly)

	series, meta, err := svc.Pulse(context.Background(), pulseQuery())
	require.NoError(t, err)
	require.Len(t, series, 1)
	assert.InDelta(t, 4.0, series[0].Average, 1e-9)
	assert.Equal(t, 3, series[0].Count)
	assert.Equal(t, ReadPathLive, meta.ReadPath)
	assert.False(t, meta.CacheHit)
}

func TestPulseDeterministic(t *testing.T) {
	svc := newTestAggregator(&fakeEvents{checkins: weekCheckins()}, nil, config.StrategyLiveOnly)

	first, _, err := svc.Pulse(context.Background(), pulseQuery())
	require.NoError(t, err)
	second, _, err := svc.Pulse(context.Background(), pulseQuery())
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestPulseEmptyWindowsAreZero(t *testing.T) {
	svc := newTestAggregator(&fakeEvents{}, nil, config.StrategyLiveOnly)

	series, _, err := svc.Pulse(context.Background(), pulseQuery())
	require.NoError(t, err)
	require.Len(t, series, 1)
	assert.Zero(t, series[0].Average)
	assert.Zero(t, series[0].Count)
}

func TestPulseRejectsInvertedRange(t *testing.T) {
	svc := newTestAggregator(&fakeEvents{}, nil, config.StrategyLiveOnly)

	q := pulseQuery()
	q.Range = models.DateRange{From: weekRange.To, To: weekRange.From}
	_, _, err := svc.Pulse(context.Background(), q)
	require.Error(t, err)
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrInvalidDateRange.Code, appErr.Code)
}

func TestPulseRejectsUnknownPeriod(t *testing.T) {
	svc := newTestAggregator(&fakeEvents{}, nil, config.StrategyLiveOnly)

	q := pulseQuery()
	q.Period = "fortnight"
	_, _, err := svc.Pulse(context.Background(), q)
	require.Error(t, err)
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrValidation.Code, appErr.Code)
}

func TestPulseDefaultsToTrailingRange(t *testing.T) {
	svc := newTestAggregator(&fakeEvents{}, nil, config.StrategyLiveOnly)

	q := pulseQuery()
	q.Range = models.DateRange{}
	series, _, err := svc.Pulse(context.Background(), q)
	require.NoError(t, err)
	assert.NotEmpty(t, series)
}

func storedPulse(t *testing.T, avg float64, count int) json.RawMessage {
	t.Helper()
	payload, err := json.Marshal(pulseAggregate{Average: avg, Count: count})
	require.NoError(t, err)
	return payload
}

func TestPulseAggregateFallbackServesStored(t *testing.T) {
	aggregates := newFakeAggregates()
	require.NoError(t, aggregates.Upsert(context.Background(), models.AggregateBucket{
		AggregateKey: models.AggregateKey{
			OrganizationID: "org1",
			Scope:          models.ScopeOrganization,
			MetricType:     models.MetricPulse,
			Period:         models.PeriodWeek,
			WindowStart:    weekRange.From,
		},
		WindowEnd: weekRange.To,
		Value:     storedPulse(t, 3.5, 2),
	}))

	svc := newTestAggregator(&fakeEvents{checkins: weekCheckins()}, aggregates, config.StrategyAggregateFallback)

	series, meta, err := svc.Pulse(context.Background(), pulseQuery())
	require.NoError(t, err)
	require.Len(t, series, 1)
	// Stored value wins even when live data would disagree.
	assert.InDelta(t, 3.5, series[0].Average, 1e-9)
	assert.Equal(t, 2, series[0].Count)
	assert.Equal(t, ReadPathAggregate, meta.ReadPath)
}

func TestPulseAggregateFallbackMissingEverythingGoesLive(t *testing.T) {
	svc := newTestAggregator(&fakeEvents{checkins: weekCheckins()}, newFakeAggregates(), config.StrategyAggregateFallback)

	series, meta, err := svc.Pulse(context.Background(), pulseQuery())
	require.NoError(t, err)
	assert.InDelta(t, 4.0, series[0].Average, 1e-9)
	assert.Equal(t, ReadPathLive, meta.ReadPath)
}

func TestPulseAggregateFallbackMixedWritesThrough(t *testing.T) {
	twoWeeks := models.DateRange{
		From: weekRange.From,
		To:   weekRange.From.AddDate(0, 0, 14),
	}
	aggregates := newFakeAggregates()
	require.NoError(t, aggregates.Upsert(context.Background(), models.AggregateBucket{
		AggregateKey: models.AggregateKey{
			OrganizationID: "org1",
			Scope:          models.ScopeOrganization,
			MetricType:     models.MetricPulse,
			Period:         models.PeriodWeek,
			WindowStart:    weekRange.From,
		},
		WindowEnd: weekRange.From.AddDate(0, 0, 7),
		Value:     storedPulse(t, 3.5, 2),
	}))

	svc := newTestAggregator(&fakeEvents{checkins: weekCheckins()}, aggregates, config.StrategyAggregateFallback)

	q := pulseQuery()
	q.Range = twoWeeks
	series, meta, err := svc.Pulse(context.Background(), q)
	require.NoError(t, err)
	require.Len(t, series, 2)
	assert.InDelta(t, 3.5, series[0].Average, 1e-9)
	assert.Equal(t, ReadPathMixed, meta.ReadPath)
	// The second window was computed live and lazily persisted.
	assert.Equal(t, 2, aggregates.size())
}

func TestPulseShadowCompareLiveWinsAndRecordsDivergence(t *testing.T) {
	aggregates := newFakeAggregates()
	require.NoError(t, aggregates.Upsert(context.Background(), models.AggregateBucket{
		AggregateKey: models.AggregateKey{
			OrganizationID: "org1",
			Scope:          models.ScopeOrganization,
			MetricType:     models.MetricPulse,
			Period:         models.PeriodWeek,
			WindowStart:    weekRange.From,
		},
		WindowEnd: weekRange.To,
		Value:     storedPulse(t, 3.5, 2),
	}))

	instr := NewInstrumentationService()
	svc := NewAggregatorService(AggregatorServiceParams{
		Events:     &fakeEvents{checkins: weekCheckins()},
		Aggregates: aggregates,
		Scopes:     &fakeScopes{users: []string{"u1", "u2", "u3"}},
		Instr:      instr,
		Strategy:   config.StrategyShadowCompare,
	})

	series, meta, err := svc.Pulse(context.Background(), pulseQuery())
	require.NoError(t, err)
	assert.InDelta(t, 4.0, series[0].Average, 1e-9)
	assert.Equal(t, ReadPathLive, meta.ReadPath)
	assert.Equal(t, uint64(1), instr.Snapshot().ShadowDivergences)
}

func TestPulseMixedReadKeepsFullPeriodBuckets(t *testing.T) {
	weekTwoKey := models.AggregateKey{
		OrganizationID: "org1",
		Scope:          models.ScopeOrganization,
		MetricType:     models.MetricPulse,
		Period:         models.PeriodWeek,
		WindowStart:    weekRange.To,
	}
	aggregates := newFakeAggregates()
	require.NoError(t, aggregates.Upsert(context.Background(), models.AggregateBucket{
		AggregateKey: models.AggregateKey{
			OrganizationID: "org1",
			Scope:          models.ScopeOrganization,
			MetricType:     models.MetricPulse,
			Period:         models.PeriodWeek,
			WindowStart:    weekRange.From,
		},
		WindowEnd: weekRange.To,
		Value:     storedPulse(t, 3.5, 2),
	}))
	require.NoError(t, aggregates.Upsert(context.Background(), models.AggregateBucket{
		AggregateKey: weekTwoKey,
		WindowEnd:    weekRange.To.AddDate(0, 0, 7),
		Value:        storedPulse(t, 4.5, 4),
	}))

	svc := newTestAggregator(&fakeEvents{checkins: weekCheckins()}, aggregates, config.StrategyAggregateFallback)

	// Week-to-date read: the second window is clipped three days into the
	// stored full week, so it is served live.
	q := pulseQuery()
	q.Range = models.DateRange{From: weekRange.From, To: weekRange.To.AddDate(0, 0, 3)}
	series, meta, err := svc.Pulse(context.Background(), q)
	require.NoError(t, err)
	require.Len(t, series, 2)
	assert.Equal(t, ReadPathMixed, meta.ReadPath)

	// The live partial value must not replace the stored full-week bucket.
	bucket, ok := aggregates.get(weekTwoKey)
	require.True(t, ok)
	assert.True(t, bucket.WindowEnd.Equal(weekRange.To.AddDate(0, 0, 7)))
	assert.JSONEq(t, string(storedPulse(t, 4.5, 4)), string(bucket.Value))
	assert.Equal(t, 2, aggregates.size())
}

func TestPulseShadowCompareSkipsClippedWindows(t *testing.T) {
	aggregates := newFakeAggregates()
	require.NoError(t, aggregates.Upsert(context.Background(), models.AggregateBucket{
		AggregateKey: models.AggregateKey{
			OrganizationID: "org1",
			Scope:          models.ScopeOrganization,
			MetricType:     models.MetricPulse,
			Period:         models.PeriodWeek,
			WindowStart:    weekRange.From,
		},
		WindowEnd: weekRange.To,
		Value:     storedPulse(t, 4.0, 3),
	}))

	instr := NewInstrumentationService()
	svc := NewAggregatorService(AggregatorServiceParams{
		Events:     &fakeEvents{checkins: weekCheckins()},
		Aggregates: aggregates,
		Scopes:     &fakeScopes{users: []string{"u1", "u2", "u3"}},
		Instr:      instr,
		Strategy:   config.StrategyShadowCompare,
	})

	// Week-to-date read: live covers two days of a stored full week, so the
	// values differ by construction. The stored bucket spans a different
	// window, not divergent data.
	q := pulseQuery()
	q.Range = models.DateRange{From: weekRange.From, To: weekRange.From.AddDate(0, 0, 2)}
	series, meta, err := svc.Pulse(context.Background(), q)
	require.NoError(t, err)
	require.Len(t, series, 1)
	assert.InDelta(t, 4.5, series[0].Average, 1e-9)
	assert.Equal(t, ReadPathLive, meta.ReadPath)
	assert.Equal(t, uint64(0), instr.Snapshot().ShadowDivergences)
}

func TestPulseStrategyOverridePerRequest(t *testing.T) {
	aggregates := newFakeAggregates()
	require.NoError(t, aggregates.Upsert(context.Background(), models.AggregateBucket{
		AggregateKey: models.AggregateKey{
			OrganizationID: "org1",
			Scope:          models.ScopeOrganization,
			MetricType:     models.MetricPulse,
			Period:         models.PeriodWeek,
			WindowStart:    weekRange.From,
		},
		WindowEnd: weekRange.To,
		Value:     storedPulse(t, 3.5, 2),
	}))

	svc := newTestAggregator(&fakeEvents{checkins: weekCheckins()}, aggregates, config.StrategyLiveOnly)

	q := pulseQuery()
	q.Strategy = config.StrategyAggregateFallback
	series, meta, err := svc.Pulse(context.Background(), q)
	require.NoError(t, err)
	assert.InDelta(t, 3.5, series[0].Average, 1e-9)
	assert.Equal(t, ReadPathAggregate, meta.ReadPath)
}

func TestShoutoutsDirectionVisibilityFilters(t *testing.T) {
	created := weekRange.From.Add(24 * time.Hour)
	events := &fakeEvents{shoutouts: []models.ShoutoutRecord{
		{SenderID: "u1", RecipientID: "u2", Visibility: models.VisibilityPublic, CreatedAt: created},
		{SenderID: "u2", RecipientID: "u3", Visibility: models.VisibilityPrivate, CreatedAt: created},
		{SenderID: "ext", RecipientID: "u1", Visibility: models.VisibilityPublic, CreatedAt: created},
		{SenderID: "u3", RecipientID: "ext", Visibility: models.VisibilityPublic, CreatedAt: created},
	}}
	svc := newTestAggregator(events, nil, config.StrategyLiveOnly)

	cases := []struct {
		name       string
		direction  models.ShoutoutDirection
		visibility models.ShoutoutVisibility
		want       int
	}{
		{"given all", models.DirectionGiven, models.VisibilityAll, 3},
		{"given public", models.DirectionGiven, models.VisibilityPublic, 2},
		{"received all", models.DirectionReceived, models.VisibilityAll, 3},
		{"received private", models.DirectionReceived, models.VisibilityPrivate, 1},
		{"all public", models.DirectionAll, models.VisibilityPublic, 4},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			series, _, err := svc.Shoutouts(context.Background(), ShoutoutQuery{
				MetricQuery: pulseQuery(),
				Direction:   tc.direction,
				Visibility:  tc.visibility,
			})
			require.NoError(t, err)
			require.Len(t, series, 1)
			assert.Equal(t, tc.want, series[0].Count)
		})
	}
}

func TestShoutoutsRejectsUnknownDirection(t *testing.T) {
	svc := newTestAggregator(&fakeEvents{}, nil, config.StrategyLiveOnly)

	_, _, err := svc.Shoutouts(context.Background(), ShoutoutQuery{
		MetricQuery: pulseQuery(),
		Direction:   "sideways",
	})
	require.Error(t, err)
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrValidation.Code, appErr.Code)
}

func TestScopeErrorPropagates(t *testing.T) {
	svc := NewAggregatorService(AggregatorServiceParams{
		Events: &fakeEvents{},
		Scopes: &fakeScopes{err: appErrors.Clone(appErrors.ErrInvalidScope, "team t9 not found in organization")},
	})

	_, _, err := svc.Pulse(context.Background(), pulseQuery())
	require.Error(t, err)
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrInvalidScope.Code, appErr.Code)
}
