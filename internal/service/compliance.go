package service

import (
	"time"

	"github.com/noah-isme/pulse-metrics-api/internal/models"
)

// ComplianceCalculator evaluates event timing against cadence-derived due
// instants. The due instant always comes from the event's nominal period, not
// from when it actually happened, so a late submission cannot redefine its own
// deadline.
type ComplianceCalculator struct {
	graceDays int
}

// NewComplianceCalculator constructs a calculator with a non-negative grace
// window in days. Grace 0 means strict: only deltaDays <= 0 is on time.
func NewComplianceCalculator(graceDays int) *ComplianceCalculator {
	if graceDays < 0 {
		graceDays = 0
	}
	return &ComplianceCalculator{graceDays: graceDays}
}

// GraceDays exposes the configured grace window.
func (c *ComplianceCalculator) GraceDays() int {
	return c.graceDays
}

// Evaluate computes the signed day delta between due and actual, rounded
// toward zero. Negative is early, positive late, zero exactly on time.
func (c *ComplianceCalculator) Evaluate(userID string, expectedAt, occurredAt time.Time) models.ComplianceRecord {
	delta := int(occurredAt.Sub(expectedAt) / (24 * time.Hour))
	return models.ComplianceRecord{
		UserID:     userID,
		ExpectedAt: expectedAt.UTC(),
		OccurredAt: occurredAt.UTC(),
		DeltaDays:  delta,
		OnTime:     delta <= c.graceDays,
	}
}

// Summarize rolls compliance records up into counts, an on-time percentage and
// the early/late averages. Records with a zero delta count as on time but feed
// neither average. An empty input yields an all-zero summary, so the
// percentage is 0 whenever TotalCount is 0.
func (c *ComplianceCalculator) Summarize(records []models.ComplianceRecord) models.ComplianceSummary {
	summary := models.ComplianceSummary{TotalCount: len(records)}
	if len(records) == 0 {
		return summary
	}

	var earlySum, lateSum, earlyCount, lateCount int
	for _, record := range records {
		if record.OnTime {
			summary.OnTimeCount++
		}
		switch {
		case record.DeltaDays < 0:
			earlySum += record.DeltaDays
			earlyCount++
		case record.DeltaDays > 0:
			lateSum += record.DeltaDays
			lateCount++
		}
	}

	summary.OnTimePercentage = float64(summary.OnTimeCount) / float64(summary.TotalCount) * 100
	if earlyCount > 0 {
		summary.AverageDaysEarly = float64(earlySum) / float64(earlyCount)
	}
	if lateCount > 0 {
		summary.AverageDaysLate = float64(lateSum) / float64(lateCount)
	}
	return summary
}
