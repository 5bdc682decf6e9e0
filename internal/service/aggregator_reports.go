package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/pulse-metrics-api/internal/models"
	"github.com/noah-isme/pulse-metrics-api/pkg/config"
	appErrors "github.com/noah-isme/pulse-metrics-api/pkg/errors"
)

// Compliance returns the bucketed on-time measurements for check-ins or
// reviews, plus totals over the whole range. Events are bucketed by their due
// instant so a window's percentage reflects the cadence that was owed in it.
func (s *AggregatorService) Compliance(ctx context.Context, q ComplianceQuery) (*models.ComplianceReport, ReadMeta, error) {
	meta := ReadMeta{ReadPath: ReadPathLive}
	if err := s.normalise(&q.MetricQuery); err != nil {
		return nil, meta, err
	}
	if q.Kind != models.MetricComplianceCheckin && q.Kind != models.MetricComplianceReview {
		return nil, meta, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown compliance kind %q", q.Kind))
	}

	users, err := s.scopes.Resolve(ctx, q.OrganizationID, q.Scope, q.EntityID, ResolveOptions{})
	if err != nil {
		return nil, meta, err
	}

	cacheKey := s.cacheKey(q.OrganizationID, string(q.Kind), string(q.Scope), q.EntityID, string(q.Period), q.Range, q.Strategy)
	var cached models.ComplianceReport
	if hit, err := s.cache.Get(ctx, cacheKey, &cached); err == nil && hit {
		meta.CacheHit = true
		return &cached, meta, nil
	}

	windows := s.bucketizer.Buckets(q.Period, q.Range)
	start := time.Now()
	strategy := s.strategyFor(q.Strategy)

	var perWindow []complianceAggregate
	switch strategy {
	case config.StrategyAggregateFallback:
		perWindow, meta.ReadPath, err = s.complianceFromAggregates(ctx, q, users, windows)
	case config.StrategyShadowCompare:
		perWindow, err = s.complianceLive(ctx, q, users, windows)
		if err == nil {
			s.shadowCompareCompliance(ctx, q, windows, perWindow)
		}
	default:
		perWindow, err = s.complianceLive(ctx, q, users, windows)
	}
	if err != nil {
		return nil, meta, err
	}

	report := buildComplianceReport(windows, perWindow)
	s.instr.ObserveAggregation(q.Kind, meta.ReadPath, time.Since(start))
	_ = s.cache.Set(ctx, cacheKey, report, 0)
	return report, meta, nil
}

func (s *AggregatorService) complianceLive(ctx context.Context, q ComplianceQuery, users []string, windows []models.Window) ([]complianceAggregate, error) {
	records, err := s.complianceRecords(ctx, q, users)
	if err != nil {
		return nil, err
	}

	grouped := make([][]models.ComplianceRecord, len(windows))
	for _, record := range records {
		idx := s.bucketizer.Index(windows, record.ExpectedAt)
		if idx < 0 {
			continue
		}
		grouped[idx] = append(grouped[idx], record)
	}

	perWindow := make([]complianceAggregate, len(windows))
	for i, windowRecords := range grouped {
		perWindow[i] = summariseDetailed(s.compliance, windowRecords)
	}
	return perWindow, nil
}

func (s *AggregatorService) complianceRecords(ctx context.Context, q ComplianceQuery, users []string) ([]models.ComplianceRecord, error) {
	switch q.Kind {
	case models.MetricComplianceReview:
		reviews, err := s.events.Reviews(ctx, q.OrganizationID, users, q.Range.From, q.Range.To)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrComputation.Code, appErrors.ErrComputation.Status, "load reviews")
		}
		records := make([]models.ComplianceRecord, 0, len(reviews))
		for _, review := range reviews {
			records = append(records, s.compliance.Evaluate(review.ReviewerID, review.DueAt, review.ReviewedAt))
		}
		return records, nil
	default:
		// Fetch by due instant, matching how records are bucketed below. A
		// week_of filter would drop check-ins due just inside the range whose
		// nominal week starts outside it.
		checkins, err := s.events.CheckinsDueBetween(ctx, q.OrganizationID, users, q.Range.From, q.Range.To)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrComputation.Code, appErrors.ErrComputation.Status, "load checkins")
		}
		records := make([]models.ComplianceRecord, 0, len(checkins))
		for _, checkin := range checkins {
			records = append(records, s.compliance.Evaluate(checkin.UserID, checkin.DueAt, checkin.SubmittedAt))
		}
		return records, nil
	}
}

func (s *AggregatorService) complianceFromAggregates(ctx context.Context, q ComplianceQuery, users []string, windows []models.Window) ([]complianceAggregate, string, error) {
	stored, err := s.loadStored(ctx, q.MetricQuery, q.Kind)
	if err != nil {
		s.logger.Warn("aggregate read failed, serving live", zap.Error(err))
		perWindow, liveErr := s.complianceLive(ctx, q, users, windows)
		return perWindow, ReadPathLive, liveErr
	}

	perWindow := make([]complianceAggregate, len(windows))
	missing := make([]int, 0)
	for i, w := range windows {
		bucket, ok := stored[w.Start.Unix()]
		if !ok || !bucket.WindowEnd.Equal(w.End) {
			missing = append(missing, i)
			continue
		}
		var value complianceAggregate
		if err := json.Unmarshal(bucket.Value, &value); err != nil {
			missing = append(missing, i)
			continue
		}
		perWindow[i] = value
	}

	if len(missing) == 0 {
		return perWindow, ReadPathAggregate, nil
	}

	live, err := s.complianceLive(ctx, q, users, windows)
	if err != nil {
		return nil, ReadPathLive, err
	}
	if len(missing) == len(windows) {
		return live, ReadPathLive, nil
	}
	for _, i := range missing {
		perWindow[i] = live[i]
		s.writeThrough(ctx, q.MetricQuery, q.Kind, windows[i], live[i])
	}
	return perWindow, ReadPathMixed, nil
}

func (s *AggregatorService) shadowCompareCompliance(ctx context.Context, q ComplianceQuery, windows []models.Window, live []complianceAggregate) {
	stored, err := s.loadStored(ctx, q.MetricQuery, q.Kind)
	if err != nil {
		s.logger.Warn("shadow read failed", zap.String("metric", string(q.Kind)), zap.Error(err))
		return
	}
	for i, w := range windows {
		bucket, ok := stored[w.Start.Unix()]
		if !ok || !bucket.WindowEnd.Equal(w.End) {
			continue
		}
		var value complianceAggregate
		if err := json.Unmarshal(bucket.Value, &value); err != nil {
			continue
		}
		if value.TotalCount != live[i].TotalCount || value.OnTimeCount != live[i].OnTimeCount ||
			!floatsEqual(value.OnTimePercentage, live[i].OnTimePercentage) {
			s.reportDivergence(q.Kind, q.MetricQuery, w,
				fmt.Sprintf("total=%d ontime=%d pct=%.2f", live[i].TotalCount, live[i].OnTimeCount, live[i].OnTimePercentage),
				fmt.Sprintf("total=%d ontime=%d pct=%.2f", value.TotalCount, value.OnTimeCount, value.OnTimePercentage))
		}
	}
}

// summariseDetailed extends the calculator's rollup with the sums needed to
// merge persisted buckets into exact range totals.
func summariseDetailed(calc *ComplianceCalculator, records []models.ComplianceRecord) complianceAggregate {
	detailed := complianceAggregate{ComplianceSummary: calc.Summarize(records)}
	for _, record := range records {
		switch {
		case record.DeltaDays < 0:
			detailed.EarlyCount++
			detailed.EarlySum += record.DeltaDays
		case record.DeltaDays > 0:
			detailed.LateCount++
			detailed.LateSum += record.DeltaDays
		}
	}
	return detailed
}

func buildComplianceReport(windows []models.Window, perWindow []complianceAggregate) *models.ComplianceReport {
	report := &models.ComplianceReport{Buckets: make([]models.ComplianceBucket, len(windows))}
	var totals complianceAggregate
	for i, w := range windows {
		report.Buckets[i] = models.ComplianceBucket{
			WindowStart:       w.Start,
			WindowEnd:         w.End,
			ComplianceSummary: perWindow[i].ComplianceSummary,
		}
		totals.TotalCount += perWindow[i].TotalCount
		totals.OnTimeCount += perWindow[i].OnTimeCount
		totals.EarlyCount += perWindow[i].EarlyCount
		totals.EarlySum += perWindow[i].EarlySum
		totals.LateCount += perWindow[i].LateCount
		totals.LateSum += perWindow[i].LateSum
	}
	if totals.TotalCount > 0 {
		totals.OnTimePercentage = float64(totals.OnTimeCount) / float64(totals.TotalCount) * 100
	}
	if totals.EarlyCount > 0 {
		totals.AverageDaysEarly = float64(totals.EarlySum) / float64(totals.EarlyCount)
	}
	if totals.LateCount > 0 {
		totals.AverageDaysLate = float64(totals.LateSum) / float64(totals.LateCount)
	}
	report.Totals = totals.ComplianceSummary
	return report
}

// Leaderboard ranks users in the resolved scope by the selected metric over
// the full range. Ties order by ascending user id so repeated identical
// queries reproduce the same ordering.
func (s *AggregatorService) Leaderboard(ctx context.Context, q LeaderboardQuery) ([]models.LeaderboardEntry, ReadMeta, error) {
	meta := ReadMeta{ReadPath: ReadPathLive}
	if err := s.validator.Struct(q); err != nil {
		return nil, meta, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid leaderboard query")
	}
	if !q.Metric.Valid() {
		return nil, meta, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown leaderboard metric %q", q.Metric))
	}
	if q.Range.From.IsZero() && q.Range.To.IsZero() {
		q.Range = s.bucketizer.TrailingRange(s.now(), DefaultRangeDays)
	}
	if !q.Range.Valid() {
		return nil, meta, appErrors.Clone(appErrors.ErrInvalidDateRange, "from must not be after to")
	}

	users, err := s.scopes.Resolve(ctx, q.OrganizationID, q.Scope, q.EntityID, ResolveOptions{})
	if err != nil {
		return nil, meta, err
	}

	cacheKey := s.cacheKey(q.OrganizationID, "leaderboard", string(q.Scope), q.EntityID, string(q.Metric), q.Range, fmt.Sprintf("%d", q.Limit))
	var cached []models.LeaderboardEntry
	if hit, err := s.cache.Get(ctx, cacheKey, &cached); err == nil && hit {
		meta.CacheHit = true
		return cached, meta, nil
	}

	start := time.Now()
	values := make(map[string]float64, len(users))
	for _, id := range users {
		values[id] = 0
	}

	switch q.Metric {
	case models.LeaderboardPulseAverage:
		checkins, err := s.events.Checkins(ctx, q.OrganizationID, users, q.Range.From, q.Range.To)
		if err != nil {
			return nil, meta, appErrors.Wrap(err, appErrors.ErrComputation.Code, appErrors.ErrComputation.Status, "load checkins")
		}
		sums := make(map[string]int, len(users))
		counts := make(map[string]int, len(users))
		for _, checkin := range checkins {
			sums[checkin.UserID] += checkin.Mood
			counts[checkin.UserID]++
		}
		for id, count := range counts {
			if count > 0 {
				values[id] = float64(sums[id]) / float64(count)
			}
		}
	default:
		shoutouts, err := s.events.Shoutouts(ctx, q.OrganizationID, users, q.Range.From, q.Range.To)
		if err != nil {
			return nil, meta, appErrors.Wrap(err, appErrors.ErrComputation.Code, appErrors.ErrComputation.Status, "load shoutouts")
		}
		for _, shoutout := range shoutouts {
			if q.Metric == models.LeaderboardShoutoutsGiven {
				if _, ok := values[shoutout.SenderID]; ok {
					values[shoutout.SenderID]++
				}
			} else {
				if _, ok := values[shoutout.RecipientID]; ok {
					values[shoutout.RecipientID]++
				}
			}
		}
	}

	entries := make([]models.LeaderboardEntry, 0, len(values))
	for id, value := range values {
		entries = append(entries, models.LeaderboardEntry{UserID: id, Value: value})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Value == entries[j].Value {
			return entries[i].UserID < entries[j].UserID
		}
		return entries[i].Value > entries[j].Value
	})
	for i := range entries {
		entries[i].Rank = i + 1
	}
	if q.Limit > 0 && len(entries) > q.Limit {
		entries = entries[:q.Limit]
	}

	s.instr.ObserveAggregation(models.MetricLeaderboard, meta.ReadPath, time.Since(start))
	_ = s.cache.Set(ctx, cacheKey, entries, 0)
	return entries, meta, nil
}

// Overview is the composite organization dashboard read. It is never
// precomputed and always returns exactly one aggregate object. The expected
// check-in count multiplies active users by the week buckets in range, a known
// approximation that ignores mid-range joiners.
func (s *AggregatorService) Overview(ctx context.Context, q OverviewQuery) (*models.OverviewSummary, ReadMeta, error) {
	meta := ReadMeta{ReadPath: ReadPathLive}
	if err := s.validator.Struct(q); err != nil {
		return nil, meta, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid overview query")
	}
	if q.Range.From.IsZero() && q.Range.To.IsZero() {
		q.Range = s.bucketizer.TrailingRange(s.now(), DefaultRangeDays)
	}
	if !q.Range.Valid() {
		return nil, meta, appErrors.Clone(appErrors.ErrInvalidDateRange, "from must not be after to")
	}

	users, err := s.scopes.Resolve(ctx, q.OrganizationID, models.ScopeOrganization, "", ResolveOptions{})
	if err != nil {
		return nil, meta, err
	}

	cacheKey := s.cacheKey(q.OrganizationID, "overview", q.Range)
	var cached models.OverviewSummary
	if hit, err := s.cache.Get(ctx, cacheKey, &cached); err == nil && hit {
		meta.CacheHit = true
		return &cached, meta, nil
	}

	start := time.Now()
	checkins, err := s.events.Checkins(ctx, q.OrganizationID, users, q.Range.From, q.Range.To)
	if err != nil {
		return nil, meta, appErrors.Wrap(err, appErrors.ErrComputation.Code, appErrors.ErrComputation.Status, "load checkins")
	}
	shoutouts, err := s.events.Shoutouts(ctx, q.OrganizationID, nil, q.Range.From, q.Range.To)
	if err != nil {
		return nil, meta, appErrors.Wrap(err, appErrors.ErrComputation.Code, appErrors.ErrComputation.Status, "load shoutouts")
	}
	wins, err := s.events.WinCount(ctx, q.OrganizationID, q.Range.From, q.Range.To)
	if err != nil {
		return nil, meta, appErrors.Wrap(err, appErrors.ErrComputation.Code, appErrors.ErrComputation.Status, "count wins")
	}

	weeks := len(s.bucketizer.Buckets(models.PeriodWeek, q.Range))
	summary := &models.OverviewSummary{
		TotalCheckins:    len(checkins),
		ActiveUsers:      len(users),
		ExpectedCheckins: len(users) * weeks,
		ShoutoutsTotal:   len(shoutouts),
		WinCount:         wins,
	}
	if summary.ExpectedCheckins > 0 {
		summary.CompletionRate = float64(summary.TotalCheckins) / float64(summary.ExpectedCheckins) * 100
	}

	s.instr.ObserveAggregation(models.MetricOverview, meta.ReadPath, time.Since(start))
	_ = s.cache.Set(ctx, cacheKey, summary, 0)
	return summary, meta, nil
}

// ComputeBucket computes and marshals one precomputed value for the backfill
// orchestrator. Only the precomputed metric families are supported.
func (s *AggregatorService) ComputeBucket(ctx context.Context, q MetricQuery, metric models.MetricType, window models.Window) (json.RawMessage, error) {
	users, err := s.scopes.Resolve(ctx, q.OrganizationID, q.Scope, q.EntityID, ResolveOptions{})
	if err != nil {
		return nil, err
	}
	windows := []models.Window{window}

	var value interface{}
	switch metric {
	case models.MetricPulse:
		scoped := q
		scoped.Range = models.DateRange{From: window.Start, To: window.End}
		series, err := s.pulseLive(ctx, scoped, users, windows)
		if err != nil {
			return nil, err
		}
		value = pulseAggregate{Average: series[0].Average, Count: series[0].Count}
	case models.MetricShoutout:
		scoped := q
		scoped.Range = models.DateRange{From: window.Start, To: window.End}
		counts, err := s.shoutoutsLive(ctx, scoped, users, windows)
		if err != nil {
			return nil, err
		}
		value = counts[0]
	case models.MetricComplianceCheckin, models.MetricComplianceReview:
		scoped := ComplianceQuery{MetricQuery: q, Kind: metric}
		scoped.Range = models.DateRange{From: window.Start, To: window.End}
		perWindow, err := s.complianceLive(ctx, scoped, users, windows)
		if err != nil {
			return nil, err
		}
		value = perWindow[0]
	default:
		return nil, fmt.Errorf("metric %s is not precomputed", metric)
	}

	return json.Marshal(value)
}

// UpsertBucket persists one precomputed value on behalf of backfill.
func (s *AggregatorService) UpsertBucket(ctx context.Context, key models.AggregateKey, windowEnd time.Time, value json.RawMessage) error {
	if s.aggregates == nil {
		return fmt.Errorf("aggregate store unavailable")
	}
	return s.aggregates.Upsert(ctx, models.AggregateBucket{
		AggregateKey: key,
		WindowEnd:    windowEnd,
		Value:        value,
		ComputedAt:   s.now().UTC(),
	})
}
