package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/pulse-metrics-api/internal/models"
)

// AggregateRepository persists precomputed metric buckets. Upserts are keyed
// by the full bucket identity tuple so concurrent or retried writes for the
// same window never duplicate rows; last write wins on computed_at.
type AggregateRepository struct {
	db *sqlx.DB
}

// NewAggregateRepository instantiates the repository.
func NewAggregateRepository(db *sqlx.DB) *AggregateRepository {
	return &AggregateRepository{db: db}
}

const aggregateColumns = "organization_id, scope, entity_id, metric_type, period, window_start, window_end, value, computed_at"

// Get returns one precomputed bucket, or nil when absent.
func (r *AggregateRepository) Get(ctx context.Context, key models.AggregateKey) (*models.AggregateBucket, error) {
	query := fmt.Sprintf(`SELECT %s FROM metric_aggregates
        WHERE organization_id = $1 AND scope = $2 AND entity_id = $3 AND metric_type = $4 AND period = $5 AND window_start = $6`,
		aggregateColumns)

	var bucket models.AggregateBucket
	err := r.db.GetContext(ctx, &bucket, query,
		key.OrganizationID, key.Scope, key.EntityID, key.MetricType, key.Period, key.WindowStart)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("query aggregate bucket: %w", err)
	}
	return &bucket, nil
}

// GetSeries returns the stored buckets for one (scope, metric, period) series
// whose window starts fall inside [from, to], oldest first.
func (r *AggregateRepository) GetSeries(ctx context.Context, organizationID string, scope models.ScopeType, entityID string, metricType models.MetricType, period models.Period, from, to time.Time) ([]models.AggregateBucket, error) {
	query := fmt.Sprintf(`SELECT %s FROM metric_aggregates
        WHERE organization_id = $1 AND scope = $2 AND entity_id = $3 AND metric_type = $4 AND period = $5
          AND window_start >= $6 AND window_start <= $7
        ORDER BY window_start ASC`, aggregateColumns)

	var buckets []models.AggregateBucket
	if err := r.db.SelectContext(ctx, &buckets, query,
		organizationID, scope, entityID, metricType, period, from, to); err != nil {
		return nil, fmt.Errorf("query aggregate series: %w", err)
	}
	return buckets, nil
}

// Upsert writes one bucket, overwriting any previous value for the same key.
func (r *AggregateRepository) Upsert(ctx context.Context, bucket models.AggregateBucket) error {
	query := `INSERT INTO metric_aggregates
        (organization_id, scope, entity_id, metric_type, period, window_start, window_end, value, computed_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
        ON CONFLICT (organization_id, scope, entity_id, metric_type, period, window_start)
        DO UPDATE SET window_end = EXCLUDED.window_end, value = EXCLUDED.value, computed_at = EXCLUDED.computed_at`

	if _, err := r.db.ExecContext(ctx, query,
		bucket.OrganizationID, bucket.Scope, bucket.EntityID, bucket.MetricType, bucket.Period,
		bucket.WindowStart, bucket.WindowEnd, bucket.Value, bucket.ComputedAt); err != nil {
		return fmt.Errorf("upsert aggregate bucket: %w", err)
	}
	return nil
}
