package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/noah-isme/pulse-metrics-api/internal/models"
)

func TestEvaluateDeltaTruncatesTowardZero(t *testing.T) {
	calc := NewComplianceCalculator(0)
	due := time.Date(2026, 4, 6, 0, 0, 0, 0, time.UTC)

	cases := []struct {
		name      string
		occurred  time.Time
		wantDelta int
		wantOn    bool
	}{
		{"exactly on time", due, 0, true},
		{"half a day late", due.Add(12 * time.Hour), 0, true},
		{"two days late", due.Add(48 * time.Hour), 2, false},
		{"just under two days late", due.Add(47 * time.Hour), 1, false},
		{"half a day early", due.Add(-12 * time.Hour), 0, true},
		{"three days early", due.Add(-72 * time.Hour), -3, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			record := calc.Evaluate("u1", due, tc.occurred)
			assert.Equal(t, tc.wantDelta, record.DeltaDays)
			assert.Equal(t, tc.wantOn, record.OnTime)
		})
	}
}

func TestEvaluateGraceWindow(t *testing.T) {
	calc := NewComplianceCalculator(2)
	due := time.Date(2026, 4, 6, 0, 0, 0, 0, time.UTC)

	assert.True(t, calc.Evaluate("u1", due, due.Add(48*time.Hour)).OnTime)
	assert.False(t, calc.Evaluate("u1", due, due.Add(72*time.Hour)).OnTime)
}

func TestSummarize(t *testing.T) {
	calc := NewComplianceCalculator(0)
	due := time.Date(2026, 4, 6, 0, 0, 0, 0, time.UTC)

	records := []models.ComplianceRecord{
		calc.Evaluate("u1", due, due.Add(-48*time.Hour)), // -2, on time
		calc.Evaluate("u2", due, due.Add(-24*time.Hour)), // -1, on time
		calc.Evaluate("u3", due, due),                    // 0, on time
		calc.Evaluate("u4", due, due.Add(72*time.Hour)),  // +3, late
	}

	summary := calc.Summarize(records)
	assert.Equal(t, 4, summary.TotalCount)
	assert.Equal(t, 3, summary.OnTimeCount)
	assert.InDelta(t, 75.0, summary.OnTimePercentage, 1e-9)
	assert.InDelta(t, -1.5, summary.AverageDaysEarly, 1e-9)
	assert.InDelta(t, 3.0, summary.AverageDaysLate, 1e-9)
}

func TestSummarizeEmpty(t *testing.T) {
	calc := NewComplianceCalculator(0)

	summary := calc.Summarize(nil)
	assert.Equal(t, 0, summary.TotalCount)
	assert.Zero(t, summary.OnTimePercentage)
	assert.Zero(t, summary.AverageDaysEarly)
	assert.Zero(t, summary.AverageDaysLate)
}
