package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/pulse-metrics-api/internal/models"
	appErrors "github.com/noah-isme/pulse-metrics-api/pkg/errors"
	"github.com/noah-isme/pulse-metrics-api/pkg/jobs"
)

const backfillJobType = "metric_backfill"

type teamLister interface {
	TeamIDs(ctx context.Context, organizationID string) ([]string, error)
}

// BackfillPayload is the unit of work carried on the queue.
type BackfillPayload struct {
	OrganizationID string           `json:"organizationId"`
	Range          models.DateRange `json:"range"`
}

// BackfillAck acknowledges an accepted request.
type BackfillAck struct {
	JobID          string           `json:"jobId"`
	OrganizationID string           `json:"organizationId"`
	Range          models.DateRange `json:"range"`
	Status         string           `json:"status"`
}

// BackfillServiceParams groups constructor dependencies.
type BackfillServiceParams struct {
	Aggregator   *AggregatorService
	Teams        teamLister
	Cache        *CacheService
	Instr        *InstrumentationService
	Logger       *zap.Logger
	MaxRangeDays int
	QueueConfig  jobs.QueueConfig
}

// BackfillService recomputes and persists precomputed aggregates for a
// historical range. Requests are acknowledged immediately and processed by a
// bounded in-memory worker pool. Bucket upserts are idempotent so overlapping
// runs converge on the same stored values.
type BackfillService struct {
	aggregator   *AggregatorService
	teams        teamLister
	cache        *CacheService
	instr        *InstrumentationService
	logger       *zap.Logger
	maxRangeDays int
	queue        *jobs.Queue
}

// NewBackfillService constructs the service and its queue. Call Start before
// accepting requests.
func NewBackfillService(params BackfillServiceParams) *BackfillService {
	if params.Logger == nil {
		params.Logger = zap.NewNop()
	}
	if params.Instr == nil {
		params.Instr = NewInstrumentationService()
	}
	if params.MaxRangeDays <= 0 {
		params.MaxRangeDays = 90
	}
	if params.QueueConfig.Logger == nil {
		params.QueueConfig.Logger = params.Logger
	}

	s := &BackfillService{
		aggregator:   params.Aggregator,
		teams:        params.Teams,
		cache:        params.Cache,
		instr:        params.Instr,
		logger:       params.Logger,
		maxRangeDays: params.MaxRangeDays,
	}
	s.queue = jobs.NewQueue("backfill", s.process, params.QueueConfig)
	return s
}

// Start launches the queue workers.
func (s *BackfillService) Start(ctx context.Context) {
	s.queue.Start(ctx)
}

// Stop drains the workers.
func (s *BackfillService) Stop() {
	s.queue.Stop()
}

// Trigger validates and enqueues a backfill over [from, to].
func (s *BackfillService) Trigger(ctx context.Context, organizationID string, r models.DateRange) (*BackfillAck, error) {
	if organizationID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "organization id is required")
	}
	if r.From.IsZero() || r.To.IsZero() || !r.From.Before(r.To) {
		return nil, appErrors.Clone(appErrors.ErrInvalidDateRange, "from must be before to")
	}
	if days := r.Days(); days > s.maxRangeDays {
		return nil, appErrors.Clone(appErrors.ErrRangeTooLarge,
			fmt.Sprintf("requested range spans %d days, maximum is %d", days, s.maxRangeDays))
	}

	r.From = r.From.UTC()
	r.To = r.To.UTC()
	jobID, err := s.queue.Enqueue(jobs.Job{
		Type:    backfillJobType,
		Payload: BackfillPayload{OrganizationID: organizationID, Range: r},
	})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "enqueue backfill")
	}

	s.logger.Info("backfill accepted",
		zap.String("job_id", jobID),
		zap.String("organization_id", organizationID),
		zap.Time("from", r.From),
		zap.Time("to", r.To))
	return &BackfillAck{JobID: jobID, OrganizationID: organizationID, Range: r, Status: "accepted"}, nil
}

func (s *BackfillService) process(ctx context.Context, job jobs.Job) error {
	payload, ok := job.Payload.(BackfillPayload)
	if !ok {
		return fmt.Errorf("unexpected payload type %T", job.Payload)
	}

	targets, err := s.targets(ctx, payload.OrganizationID)
	if err != nil {
		return err
	}

	start := time.Now()
	var computed, failed int
	for _, target := range targets {
		for _, metric := range models.PrecomputedMetrics() {
			for _, period := range models.AllPeriods() {
				c, f := s.fillSeries(ctx, payload, target, metric, period)
				computed += c
				failed += f
			}
		}
	}

	if s.cache != nil {
		pattern := fmt.Sprintf("analytics:%s:*", payload.OrganizationID)
		if err := s.cache.Invalidate(ctx, pattern); err != nil {
			s.logger.Warn("cache invalidation after backfill failed",
				zap.String("organization_id", payload.OrganizationID), zap.Error(err))
		}
	}

	s.logger.Info("backfill run finished",
		zap.String("job_id", job.ID),
		zap.String("organization_id", payload.OrganizationID),
		zap.Int("buckets_computed", computed),
		zap.Int("buckets_failed", failed),
		zap.Duration("elapsed", time.Since(start)))

	if failed > 0 && computed == 0 {
		return fmt.Errorf("backfill computed no buckets, %d failed", failed)
	}
	return nil
}

type backfillTarget struct {
	scope    models.ScopeType
	entityID string
}

// targets enumerates the scope/entity pairs that get precomputed rows. User
// scopes stay live-only; their cardinality makes precomputation wasteful.
func (s *BackfillService) targets(ctx context.Context, organizationID string) ([]backfillTarget, error) {
	targets := []backfillTarget{{scope: models.ScopeOrganization}}
	if s.teams == nil {
		return targets, nil
	}
	teamIDs, err := s.teams.TeamIDs(ctx, organizationID)
	if err != nil {
		return nil, fmt.Errorf("list teams: %w", err)
	}
	for _, id := range teamIDs {
		targets = append(targets, backfillTarget{scope: models.ScopeTeam, entityID: id})
	}
	return targets, nil
}

// fillSeries computes one metric/period series for a target. A failed bucket
// is recorded and skipped so the rest of the run proceeds.
func (s *BackfillService) fillSeries(ctx context.Context, payload BackfillPayload, target backfillTarget, metric models.MetricType, period models.Period) (computed, failed int) {
	query := MetricQuery{
		OrganizationID: payload.OrganizationID,
		Scope:          target.scope,
		EntityID:       target.entityID,
		Period:         period,
		Range:          payload.Range,
	}
	bucketizer := s.aggregator.Bucketizer()
	windows := bucketizer.Buckets(period, payload.Range)
	for _, window := range windows {
		if ctx.Err() != nil {
			return computed, failed
		}
		// Clipped edge windows are left to the live path; persisting them
		// would shadow the full-period bucket at the same window start.
		if !bucketizer.Aligned(period, window) {
			continue
		}
		value, err := s.aggregator.ComputeBucket(ctx, query, metric, window)
		if err == nil {
			err = s.aggregator.UpsertBucket(ctx, models.AggregateKey{
				OrganizationID: payload.OrganizationID,
				Scope:          target.scope,
				EntityID:       target.entityID,
				MetricType:     metric,
				Period:         period,
				WindowStart:    window.Start,
			}, window.End, value)
		}
		if err != nil {
			failed++
			s.instr.RecordBackfillBucket(false)
			s.logger.Warn("backfill bucket failed",
				zap.String("organization_id", payload.OrganizationID),
				zap.String("scope", string(target.scope)),
				zap.String("entity_id", target.entityID),
				zap.String("metric", string(metric)),
				zap.String("period", string(period)),
				zap.Time("window_start", window.Start),
				zap.Error(err))
			continue
		}
		computed++
		s.instr.RecordBackfillBucket(true)
	}
	return computed, failed
}
