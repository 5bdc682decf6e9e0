package service

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/pulse-metrics-api/internal/models"
	"github.com/noah-isme/pulse-metrics-api/pkg/config"
	appErrors "github.com/noah-isme/pulse-metrics-api/pkg/errors"
)

// Read paths reported in response metadata and instrumentation labels.
const (
	ReadPathLive      = "live"
	ReadPathAggregate = "aggregate"
	ReadPathMixed     = "mixed"
)

// DefaultRangeDays is the trailing window applied when a query omits from/to.
const DefaultRangeDays = 30

type eventReader interface {
	Checkins(ctx context.Context, organizationID string, userIDs []string, from, to time.Time) ([]models.CheckinRecord, error)
	CheckinsDueBetween(ctx context.Context, organizationID string, userIDs []string, from, to time.Time) ([]models.CheckinRecord, error)
	Reviews(ctx context.Context, organizationID string, reviewerIDs []string, from, to time.Time) ([]models.ReviewRecord, error)
	Shoutouts(ctx context.Context, organizationID string, userIDs []string, from, to time.Time) ([]models.ShoutoutRecord, error)
	WinCount(ctx context.Context, organizationID string, from, to time.Time) (int, error)
}

type aggregateStore interface {
	GetSeries(ctx context.Context, organizationID string, scope models.ScopeType, entityID string, metricType models.MetricType, period models.Period, from, to time.Time) ([]models.AggregateBucket, error)
	Upsert(ctx context.Context, bucket models.AggregateBucket) error
}

type scopeResolver interface {
	Resolve(ctx context.Context, organizationID string, scope models.ScopeType, entityID string, opts ResolveOptions) ([]string, error)
}

// MetricQuery is the common shape of every bucketed metric request.
type MetricQuery struct {
	OrganizationID string           `validate:"required"`
	Scope          models.ScopeType `validate:"required"`
	EntityID       string
	Period         models.Period
	Range          models.DateRange
	// Strategy overrides the configured read strategy for this request.
	// Empty means use the engine default.
	Strategy string
}

// ShoutoutQuery adds the direction/visibility dimensions.
type ShoutoutQuery struct {
	MetricQuery
	Direction  models.ShoutoutDirection
	Visibility models.ShoutoutVisibility
}

// ComplianceQuery selects the event family to measure.
type ComplianceQuery struct {
	MetricQuery
	Kind models.MetricType `validate:"required"`
}

// LeaderboardQuery ranks users over the full range, unbucketed.
type LeaderboardQuery struct {
	OrganizationID string           `validate:"required"`
	Scope          models.ScopeType `validate:"required"`
	EntityID       string
	Metric         models.LeaderboardMetric `validate:"required"`
	Range          models.DateRange
	Limit          int
}

// OverviewQuery is the composite organization dashboard read.
type OverviewQuery struct {
	OrganizationID string `validate:"required"`
	Range          models.DateRange
}

// ReadMeta describes how a request was served.
type ReadMeta struct {
	CacheHit bool
	ReadPath string
}

// AggregatorServiceParams groups constructor dependencies.
type AggregatorServiceParams struct {
	Events     eventReader
	Aggregates aggregateStore
	Scopes     scopeResolver
	Bucketizer *Bucketizer
	Compliance *ComplianceCalculator
	Cache      *CacheService
	Instr      *InstrumentationService
	Validator  *validator.Validate
	Logger     *zap.Logger
	Strategy   string
	Now        func() time.Time
}

// AggregatorService computes the engine's metric families. All reads are pure
// over the event snapshot at call time; the only write path is the
// aggregate-store upsert used by the fallback write-through and backfill.
type AggregatorService struct {
	events     eventReader
	aggregates aggregateStore
	scopes     scopeResolver
	bucketizer *Bucketizer
	compliance *ComplianceCalculator
	cache      *CacheService
	instr      *InstrumentationService
	validator  *validator.Validate
	logger     *zap.Logger
	strategy   string
	now        func() time.Time
}

// NewAggregatorService constructs the aggregator.
func NewAggregatorService(params AggregatorServiceParams) *AggregatorService {
	if params.Bucketizer == nil {
		params.Bucketizer = NewBucketizer()
	}
	if params.Compliance == nil {
		params.Compliance = NewComplianceCalculator(0)
	}
	if params.Instr == nil {
		params.Instr = NewInstrumentationService()
	}
	if params.Validator == nil {
		params.Validator = validator.New()
	}
	if params.Logger == nil {
		params.Logger = zap.NewNop()
	}
	if params.Now == nil {
		params.Now = time.Now
	}
	if params.Strategy == "" {
		params.Strategy = config.StrategyLiveOnly
	}
	return &AggregatorService{
		events:     params.Events,
		aggregates: params.Aggregates,
		scopes:     params.Scopes,
		bucketizer: params.Bucketizer,
		compliance: params.Compliance,
		cache:      params.Cache,
		instr:      params.Instr,
		validator:  params.Validator,
		logger:     params.Logger,
		strategy:   params.Strategy,
		now:        params.Now,
	}
}

// Bucketizer exposes the boundary authority for collaborating services.
func (s *AggregatorService) Bucketizer() *Bucketizer {
	return s.bucketizer
}

// persisted value schemas, one per precomputed metric family

type pulseAggregate struct {
	Average float64 `json:"average"`
	Count   int     `json:"count"`
}

type complianceAggregate struct {
	models.ComplianceSummary
	EarlyCount int `json:"earlyCount"`
	LateCount  int `json:"lateCount"`
	EarlySum   int `json:"earlySum"`
	LateSum    int `json:"lateSum"`
}

func (s *AggregatorService) normalise(q *MetricQuery) error {
	if err := s.validator.Struct(q); err != nil {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid metric query")
	}
	if q.Period == "" {
		q.Period = models.PeriodWeek
	}
	if !q.Period.Valid() {
		return appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown period %q", q.Period))
	}
	if q.Range.From.IsZero() && q.Range.To.IsZero() {
		q.Range = s.bucketizer.TrailingRange(s.now(), DefaultRangeDays)
	}
	if !q.Range.Valid() {
		return appErrors.Clone(appErrors.ErrInvalidDateRange, "from must not be after to")
	}
	q.Range.From = q.Range.From.UTC()
	q.Range.To = q.Range.To.UTC()
	return nil
}

func (s *AggregatorService) strategyFor(override string) string {
	switch override {
	case config.StrategyLiveOnly, config.StrategyAggregateFallback, config.StrategyShadowCompare:
		return override
	}
	return s.strategy
}

// Pulse returns the bucketed mood average series for the resolved scope.
func (s *AggregatorService) Pulse(ctx context.Context, q MetricQuery) ([]models.PulseBucket, ReadMeta, error) {
	meta := ReadMeta{ReadPath: ReadPathLive}
	if err := s.normalise(&q); err != nil {
		return nil, meta, err
	}
	users, err := s.scopes.Resolve(ctx, q.OrganizationID, q.Scope, q.EntityID, ResolveOptions{})
	if err != nil {
		return nil, meta, err
	}

	cacheKey := s.cacheKey(q.OrganizationID, "pulse", string(q.Scope), q.EntityID, string(q.Period), q.Range, q.Strategy)
	var cached []models.PulseBucket
	if hit, err := s.cache.Get(ctx, cacheKey, &cached); err == nil && hit {
		meta.CacheHit = true
		return cached, meta, nil
	}

	windows := s.bucketizer.Buckets(q.Period, q.Range)
	start := time.Now()
	strategy := s.strategyFor(q.Strategy)

	var series []models.PulseBucket
	switch strategy {
	case config.StrategyAggregateFallback:
		series, meta.ReadPath, err = s.pulseFromAggregates(ctx, q, users, windows)
	case config.StrategyShadowCompare:
		series, err = s.pulseLive(ctx, q, users, windows)
		if err == nil {
			s.shadowComparePulse(ctx, q, windows, series)
		}
	default:
		series, err = s.pulseLive(ctx, q, users, windows)
	}
	if err != nil {
		return nil, meta, err
	}

	s.instr.ObserveAggregation(models.MetricPulse, meta.ReadPath, time.Since(start))
	_ = s.cache.Set(ctx, cacheKey, series, 0)
	return series, meta, nil
}

func (s *AggregatorService) pulseLive(ctx context.Context, q MetricQuery, users []string, windows []models.Window) ([]models.PulseBucket, error) {
	checkins, err := s.events.Checkins(ctx, q.OrganizationID, users, q.Range.From, q.Range.To)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrComputation.Code, appErrors.ErrComputation.Status, "load checkins")
	}

	sums := make([]int, len(windows))
	counts := make([]int, len(windows))
	for _, checkin := range checkins {
		idx := s.bucketizer.Index(windows, checkin.WeekOf)
		if idx < 0 {
			continue
		}
		sums[idx] += checkin.Mood
		counts[idx]++
	}

	series := make([]models.PulseBucket, len(windows))
	for i, w := range windows {
		bucket := models.PulseBucket{WindowStart: w.Start, WindowEnd: w.End}
		if counts[i] > 0 {
			bucket.Average = float64(sums[i]) / float64(counts[i])
			bucket.Count = counts[i]
		}
		series[i] = bucket
	}
	return series, nil
}

func (s *AggregatorService) pulseFromAggregates(ctx context.Context, q MetricQuery, users []string, windows []models.Window) ([]models.PulseBucket, string, error) {
	stored, err := s.loadStored(ctx, q, models.MetricPulse)
	if err != nil {
		s.logger.Warn("aggregate read failed, serving live", zap.Error(err))
		series, liveErr := s.pulseLive(ctx, q, users, windows)
		return series, ReadPathLive, liveErr
	}

	series := make([]models.PulseBucket, len(windows))
	missing := make([]int, 0)
	for i, w := range windows {
		bucket, ok := stored[w.Start.Unix()]
		if !ok || !bucket.WindowEnd.Equal(w.End) {
			missing = append(missing, i)
			continue
		}
		var value pulseAggregate
		if err := json.Unmarshal(bucket.Value, &value); err != nil {
			missing = append(missing, i)
			continue
		}
		series[i] = models.PulseBucket{WindowStart: w.Start, WindowEnd: w.End, Average: value.Average, Count: value.Count}
	}

	if len(missing) == 0 {
		return series, ReadPathAggregate, nil
	}

	live, err := s.pulseLive(ctx, q, users, windows)
	if err != nil {
		return nil, ReadPathLive, err
	}
	if len(missing) == len(windows) {
		return live, ReadPathLive, nil
	}
	for _, i := range missing {
		series[i] = live[i]
		s.writeThrough(ctx, q, models.MetricPulse, windows[i], pulseAggregate{Average: live[i].Average, Count: live[i].Count})
	}
	return series, ReadPathMixed, nil
}

// shadowComparePulse diffs the live series against stored buckets. A window
// end mismatch means the stored bucket covers a different span than a clipped
// live window; the aggregate read path would treat it as a miss, so the
// comparator skips it rather than report a false divergence.
func (s *AggregatorService) shadowComparePulse(ctx context.Context, q MetricQuery, windows []models.Window, live []models.PulseBucket) {
	stored, err := s.loadStored(ctx, q, models.MetricPulse)
	if err != nil {
		s.logger.Warn("shadow read failed", zap.String("metric", string(models.MetricPulse)), zap.Error(err))
		return
	}
	for i, w := range windows {
		bucket, ok := stored[w.Start.Unix()]
		if !ok || !bucket.WindowEnd.Equal(w.End) {
			continue
		}
		var value pulseAggregate
		if err := json.Unmarshal(bucket.Value, &value); err != nil {
			continue
		}
		if !floatsEqual(value.Average, live[i].Average) || value.Count != live[i].Count {
			s.reportDivergence(models.MetricPulse, q, w,
				fmt.Sprintf("avg=%.4f count=%d", live[i].Average, live[i].Count),
				fmt.Sprintf("avg=%.4f count=%d", value.Average, value.Count))
		}
	}
}

// Shoutouts returns the bucketed shoutout count series filtered by direction
// and visibility.
func (s *AggregatorService) Shoutouts(ctx context.Context, q ShoutoutQuery) ([]models.ShoutoutBucket, ReadMeta, error) {
	meta := ReadMeta{ReadPath: ReadPathLive}
	if err := s.normalise(&q.MetricQuery); err != nil {
		return nil, meta, err
	}
	if q.Direction == "" {
		q.Direction = models.DirectionAll
	}
	if q.Visibility == "" {
		q.Visibility = models.VisibilityAll
	}
	if !q.Direction.Valid() {
		return nil, meta, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown direction %q", q.Direction))
	}
	if !q.Visibility.Valid() {
		return nil, meta, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown visibility %q", q.Visibility))
	}

	users, err := s.scopes.Resolve(ctx, q.OrganizationID, q.Scope, q.EntityID, ResolveOptions{})
	if err != nil {
		return nil, meta, err
	}

	cacheKey := s.cacheKey(q.OrganizationID, "shoutouts", string(q.Scope), q.EntityID, string(q.Period), q.Range, string(q.Direction), string(q.Visibility), q.Strategy)
	var cached []models.ShoutoutBucket
	if hit, err := s.cache.Get(ctx, cacheKey, &cached); err == nil && hit {
		meta.CacheHit = true
		return cached, meta, nil
	}

	windows := s.bucketizer.Buckets(q.Period, q.Range)
	start := time.Now()
	strategy := s.strategyFor(q.Strategy)

	var counts []models.ShoutoutCounts
	switch strategy {
	case config.StrategyAggregateFallback:
		counts, meta.ReadPath, err = s.shoutoutsFromAggregates(ctx, q.MetricQuery, users, windows)
	case config.StrategyShadowCompare:
		counts, err = s.shoutoutsLive(ctx, q.MetricQuery, users, windows)
		if err == nil {
			s.shadowCompareShoutouts(ctx, q.MetricQuery, windows, counts)
		}
	default:
		counts, err = s.shoutoutsLive(ctx, q.MetricQuery, users, windows)
	}
	if err != nil {
		return nil, meta, err
	}

	series := make([]models.ShoutoutBucket, len(windows))
	for i, w := range windows {
		series[i] = models.ShoutoutBucket{
			WindowStart: w.Start,
			WindowEnd:   w.End,
			Count:       counts[i].Count(q.Direction, q.Visibility),
		}
	}

	s.instr.ObserveAggregation(models.MetricShoutout, meta.ReadPath, time.Since(start))
	_ = s.cache.Set(ctx, cacheKey, series, 0)
	return series, meta, nil
}

func (s *AggregatorService) shoutoutsLive(ctx context.Context, q MetricQuery, users []string, windows []models.Window) ([]models.ShoutoutCounts, error) {
	shoutouts, err := s.events.Shoutouts(ctx, q.OrganizationID, users, q.Range.From, q.Range.To)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrComputation.Code, appErrors.ErrComputation.Status, "load shoutouts")
	}

	userSet := make(map[string]struct{}, len(users))
	for _, id := range users {
		userSet[id] = struct{}{}
	}

	counts := make([]models.ShoutoutCounts, len(windows))
	for _, shoutout := range shoutouts {
		idx := s.bucketizer.Index(windows, shoutout.CreatedAt)
		if idx < 0 {
			continue
		}
		public := shoutout.Visibility == models.VisibilityPublic
		if _, ok := userSet[shoutout.SenderID]; ok {
			if public {
				counts[idx].GivenPublic++
			} else {
				counts[idx].GivenPrivate++
			}
		}
		if _, ok := userSet[shoutout.RecipientID]; ok {
			if public {
				counts[idx].ReceivedPublic++
			} else {
				counts[idx].ReceivedPrivate++
			}
		}
	}
	return counts, nil
}

func (s *AggregatorService) shoutoutsFromAggregates(ctx context.Context, q MetricQuery, users []string, windows []models.Window) ([]models.ShoutoutCounts, string, error) {
	stored, err := s.loadStored(ctx, q, models.MetricShoutout)
	if err != nil {
		s.logger.Warn("aggregate read failed, serving live", zap.Error(err))
		counts, liveErr := s.shoutoutsLive(ctx, q, users, windows)
		return counts, ReadPathLive, liveErr
	}

	counts := make([]models.ShoutoutCounts, len(windows))
	missing := make([]int, 0)
	for i, w := range windows {
		bucket, ok := stored[w.Start.Unix()]
		if !ok || !bucket.WindowEnd.Equal(w.End) {
			missing = append(missing, i)
			continue
		}
		var value models.ShoutoutCounts
		if err := json.Unmarshal(bucket.Value, &value); err != nil {
			missing = append(missing, i)
			continue
		}
		counts[i] = value
	}

	if len(missing) == 0 {
		return counts, ReadPathAggregate, nil
	}

	live, err := s.shoutoutsLive(ctx, q, users, windows)
	if err != nil {
		return nil, ReadPathLive, err
	}
	if len(missing) == len(windows) {
		return live, ReadPathLive, nil
	}
	for _, i := range missing {
		counts[i] = live[i]
		s.writeThrough(ctx, q, models.MetricShoutout, windows[i], live[i])
	}
	return counts, ReadPathMixed, nil
}

func (s *AggregatorService) shadowCompareShoutouts(ctx context.Context, q MetricQuery, windows []models.Window, live []models.ShoutoutCounts) {
	stored, err := s.loadStored(ctx, q, models.MetricShoutout)
	if err != nil {
		s.logger.Warn("shadow read failed", zap.String("metric", string(models.MetricShoutout)), zap.Error(err))
		return
	}
	for i, w := range windows {
		bucket, ok := stored[w.Start.Unix()]
		if !ok || !bucket.WindowEnd.Equal(w.End) {
			continue
		}
		var value models.ShoutoutCounts
		if err := json.Unmarshal(bucket.Value, &value); err != nil {
			continue
		}
		if value != live[i] {
			s.reportDivergence(models.MetricShoutout, q, w,
				fmt.Sprintf("%+v", live[i]), fmt.Sprintf("%+v", value))
		}
	}
}

// loadStored reads the persisted series for a query and indexes it by window
// start.
func (s *AggregatorService) loadStored(ctx context.Context, q MetricQuery, metric models.MetricType) (map[int64]models.AggregateBucket, error) {
	if s.aggregates == nil {
		return nil, fmt.Errorf("aggregate store unavailable")
	}
	buckets, err := s.aggregates.GetSeries(ctx, q.OrganizationID, q.Scope, q.EntityID, metric, q.Period, q.Range.From, q.Range.To)
	if err != nil {
		return nil, err
	}
	indexed := make(map[int64]models.AggregateBucket, len(buckets))
	for _, bucket := range buckets {
		indexed[bucket.WindowStart.Unix()] = bucket
	}
	return indexed, nil
}

// writeThrough lazily persists a bucket computed during a fallback read.
// Clipped windows are never written: the aggregate key carries only the window
// start, so a partial value would clobber the full-period bucket under the
// same key. Failures are logged, never surfaced.
func (s *AggregatorService) writeThrough(ctx context.Context, q MetricQuery, metric models.MetricType, window models.Window, value interface{}) {
	if s.aggregates == nil {
		return
	}
	if !s.bucketizer.Aligned(q.Period, window) {
		return
	}
	payload, err := json.Marshal(value)
	if err != nil {
		return
	}
	bucket := models.AggregateBucket{
		AggregateKey: models.AggregateKey{
			OrganizationID: q.OrganizationID,
			Scope:          q.Scope,
			EntityID:       q.EntityID,
			MetricType:     metric,
			Period:         q.Period,
			WindowStart:    window.Start,
		},
		WindowEnd:  window.End,
		Value:      payload,
		ComputedAt: s.now().UTC(),
	}
	if err := s.aggregates.Upsert(ctx, bucket); err != nil {
		s.logger.Warn("aggregate write-through failed",
			zap.String("metric", string(metric)),
			zap.Time("window_start", window.Start),
			zap.Error(err))
	}
}

func (s *AggregatorService) reportDivergence(metric models.MetricType, q MetricQuery, window models.Window, liveValue, storedValue string) {
	s.instr.RecordShadowDivergence(metric)
	s.logger.Warn("shadow read divergence",
		zap.String("organization_id", q.OrganizationID),
		zap.String("scope", string(q.Scope)),
		zap.String("entity_id", q.EntityID),
		zap.String("metric", string(metric)),
		zap.String("period", string(q.Period)),
		zap.Time("window_start", window.Start),
		zap.String("live", liveValue),
		zap.String("stored", storedValue))
}

func (s *AggregatorService) cacheKey(organizationID, metric string, parts ...interface{}) string {
	var builder strings.Builder
	builder.WriteString("analytics:")
	builder.WriteString(organizationID)
	builder.WriteByte(':')
	builder.WriteString(metric)
	for _, part := range parts {
		builder.WriteByte(':')
		switch v := part.(type) {
		case string:
			builder.WriteString(strings.ReplaceAll(v, ":", "|"))
		case models.DateRange:
			builder.WriteString(v.From.UTC().Format(time.RFC3339))
			builder.WriteByte('_')
			builder.WriteString(v.To.UTC().Format(time.RFC3339))
		default:
			fmt.Fprintf(&builder, "%v", v)
		}
	}
	return builder.String()
}

func floatsEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}
