package models

import (
	"encoding/json"
	"time"
)

// MetricType identifies a metric family for aggregate storage and
// instrumentation labels.
type MetricType string

const (
	MetricPulse              MetricType = "pulse"
	MetricShoutout           MetricType = "shoutout"
	MetricComplianceCheckin  MetricType = "compliance_checkin"
	MetricComplianceReview   MetricType = "compliance_review"
	MetricLeaderboard        MetricType = "leaderboard"
	MetricOverview           MetricType = "overview"
)

// PrecomputedMetrics lists the metric families written to the aggregate store.
// Leaderboard and overview are always computed live: the former is ephemeral by
// contract, the latter is not bucketable.
func PrecomputedMetrics() []MetricType {
	return []MetricType{MetricPulse, MetricShoutout, MetricComplianceCheckin, MetricComplianceReview}
}

// LeaderboardMetric selects the ranking dimension for leaderboard queries.
type LeaderboardMetric string

const (
	LeaderboardShoutoutsReceived LeaderboardMetric = "shoutouts_received"
	LeaderboardShoutoutsGiven    LeaderboardMetric = "shoutouts_given"
	LeaderboardPulseAverage      LeaderboardMetric = "pulse_avg"
)

// Valid reports whether the leaderboard metric is supported.
func (m LeaderboardMetric) Valid() bool {
	switch m {
	case LeaderboardShoutoutsReceived, LeaderboardShoutoutsGiven, LeaderboardPulseAverage:
		return true
	}
	return false
}

// PulseBucket holds the mood average for one window. A window without
// check-ins reports Average 0 and Count 0, never null.
type PulseBucket struct {
	WindowStart time.Time `json:"windowStart"`
	WindowEnd   time.Time `json:"windowEnd"`
	Average     float64   `json:"average"`
	Count       int       `json:"count"`
}

// ShoutoutCounts partitions shoutouts for one window by direction and
// visibility relative to the resolved scope. Any direction/visibility filter
// is derivable from the four partitions.
type ShoutoutCounts struct {
	GivenPublic     int `json:"givenPublic"`
	GivenPrivate    int `json:"givenPrivate"`
	ReceivedPublic  int `json:"receivedPublic"`
	ReceivedPrivate int `json:"receivedPrivate"`
}

// Count applies a direction/visibility filter to the partitions.
func (s ShoutoutCounts) Count(direction ShoutoutDirection, visibility ShoutoutVisibility) int {
	total := 0
	if direction == DirectionGiven || direction == DirectionAll {
		if visibility == VisibilityPublic || visibility == VisibilityAll {
			total += s.GivenPublic
		}
		if visibility == VisibilityPrivate || visibility == VisibilityAll {
			total += s.GivenPrivate
		}
	}
	if direction == DirectionReceived || direction == DirectionAll {
		if visibility == VisibilityPublic || visibility == VisibilityAll {
			total += s.ReceivedPublic
		}
		if visibility == VisibilityPrivate || visibility == VisibilityAll {
			total += s.ReceivedPrivate
		}
	}
	return total
}

// ShoutoutBucket is the filtered count for one window.
type ShoutoutBucket struct {
	WindowStart time.Time `json:"windowStart"`
	WindowEnd   time.Time `json:"windowEnd"`
	Count       int       `json:"count"`
}

// ComplianceRecord is the evaluated timing of a single event. DeltaDays is the
// signed day delta between due and actual, rounded toward zero; negative means
// early.
type ComplianceRecord struct {
	UserID     string    `json:"userId"`
	ExpectedAt time.Time `json:"expectedAt"`
	OccurredAt time.Time `json:"occurredAt"`
	DeltaDays  int       `json:"deltaDays"`
	OnTime     bool      `json:"onTime"`
}

// ComplianceSummary aggregates compliance records for one scope/window.
// AverageDaysEarly is the mean of the negative deltas (a value <= 0);
// AverageDaysLate the mean of the positive ones. Exact-on-time records count
// toward OnTimeCount but neither average.
type ComplianceSummary struct {
	TotalCount       int     `json:"totalCount"`
	OnTimeCount      int     `json:"onTimeCount"`
	OnTimePercentage float64 `json:"onTimePercentage"`
	AverageDaysEarly float64 `json:"averageDaysEarly"`
	AverageDaysLate  float64 `json:"averageDaysLate"`
}

// ComplianceBucket is the summary for one window.
type ComplianceBucket struct {
	WindowStart time.Time `json:"windowStart"`
	WindowEnd   time.Time `json:"windowEnd"`
	ComplianceSummary
}

// ComplianceReport is the bucketed series plus range totals.
type ComplianceReport struct {
	Buckets []ComplianceBucket `json:"buckets"`
	Totals  ComplianceSummary  `json:"totals"`
}

// LeaderboardEntry is one ranked user. Ties share neither rank nor order
// ambiguity: ordering falls back to ascending user id.
type LeaderboardEntry struct {
	UserID string  `json:"userId"`
	Rank   int     `json:"rank"`
	Value  float64 `json:"value"`
}

// OverviewSummary is the composite dashboard read. ExpectedCheckins uses the
// active-users-times-weeks approximation; it does not adjust for users who
// joined mid-range.
type OverviewSummary struct {
	TotalCheckins    int     `json:"totalCheckins"`
	ActiveUsers      int     `json:"activeUsers"`
	ExpectedCheckins int     `json:"expectedCheckins"`
	CompletionRate   float64 `json:"completionRate"`
	ShoutoutsTotal   int     `json:"shoutoutsTotal"`
	WinCount         int     `json:"winCount"`
}

// MetricResult is the tagged union returned by the aggregator. Exactly the
// variant named by Kind is populated.
type MetricResult struct {
	Kind        MetricType         `json:"kind"`
	Pulse       []PulseBucket      `json:"pulse,omitempty"`
	Shoutouts   []ShoutoutBucket   `json:"shoutouts,omitempty"`
	Leaderboard []LeaderboardEntry `json:"leaderboard,omitempty"`
	Compliance  *ComplianceReport  `json:"compliance,omitempty"`
	Overview    *OverviewSummary   `json:"overview,omitempty"`
}

// AggregateKey identifies one precomputed bucket. It is the primary key of the
// metric_aggregates table.
type AggregateKey struct {
	OrganizationID string     `db:"organization_id"`
	Scope          ScopeType  `db:"scope"`
	EntityID       string     `db:"entity_id"`
	MetricType     MetricType `db:"metric_type"`
	Period         Period     `db:"period"`
	WindowStart    time.Time  `db:"window_start"`
}

// AggregateBucket is one persisted precomputed value. Value is the metric
// family's own JSON schema. ComputedAt is an advisory staleness marker only.
type AggregateBucket struct {
	AggregateKey
	WindowEnd  time.Time       `db:"window_end"`
	Value      json.RawMessage `db:"value"`
	ComputedAt time.Time       `db:"computed_at"`
}

// SystemMetrics is the instrumentation snapshot served by the system endpoint.
type SystemMetrics struct {
	CacheHitRatio            float64   `json:"cacheHitRatio"`
	CacheHits                uint64    `json:"cacheHits"`
	CacheMisses              uint64    `json:"cacheMisses"`
	RequestsTotal            uint64    `json:"requestsTotal"`
	AverageRequestDurationMs float64   `json:"averageRequestDurationMs"`
	AggregationsTotal        uint64    `json:"aggregationsTotal"`
	ShadowDivergences        uint64    `json:"shadowDivergences"`
	BackfillBucketsOK        uint64    `json:"backfillBucketsOk"`
	BackfillBucketsFailed    uint64    `json:"backfillBucketsFailed"`
	Goroutines               int       `json:"goroutines"`
	GeneratedAt              time.Time `json:"generatedAt"`
}
