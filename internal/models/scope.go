package models

import "time"

// ScopeType identifies the population a metric is computed over.
type ScopeType string

const (
	ScopeOrganization ScopeType = "organization"
	ScopeTeam         ScopeType = "team"
	ScopeUser         ScopeType = "user"
)

// Valid reports whether the scope type is one of the supported values.
func (s ScopeType) Valid() bool {
	switch s {
	case ScopeOrganization, ScopeTeam, ScopeUser:
		return true
	}
	return false
}

// RequiresEntity reports whether the scope needs an entity id.
func (s ScopeType) RequiresEntity() bool {
	return s == ScopeTeam || s == ScopeUser
}

// Period is the bucket granularity used to slice a date range.
type Period string

const (
	PeriodDay     Period = "day"
	PeriodWeek    Period = "week"
	PeriodMonth   Period = "month"
	PeriodQuarter Period = "quarter"
	PeriodYear    Period = "year"
)

// Valid reports whether the period is one of the supported granularities.
func (p Period) Valid() bool {
	switch p {
	case PeriodDay, PeriodWeek, PeriodMonth, PeriodQuarter, PeriodYear:
		return true
	}
	return false
}

// AllPeriods lists every supported granularity, used by backfill.
func AllPeriods() []Period {
	return []Period{PeriodDay, PeriodWeek, PeriodMonth, PeriodQuarter, PeriodYear}
}

// DateRange is an inclusive [From, To] pair of instants.
type DateRange struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

// Valid reports whether From does not come after To.
func (r DateRange) Valid() bool {
	return !r.From.After(r.To)
}

// Days returns the whole number of days spanned by the range.
func (r DateRange) Days() int {
	return int(r.To.Sub(r.From) / (24 * time.Hour))
}

// Window is one bucket boundary pair produced by the bucketizer. Start is
// inclusive; End is exclusive for interior buckets and inclusive for the final
// bucket so the union of windows covers the full requested range.
type Window struct {
	Start time.Time `json:"windowStart"`
	End   time.Time `json:"windowEnd"`
}

// OrgUser is a directory row for scope resolution.
type OrgUser struct {
	ID             string  `db:"id"`
	OrganizationID string  `db:"organization_id"`
	TeamID         *string `db:"team_id"`
	Active         bool    `db:"active"`
}

// Team is a directory row for team scope validation.
type Team struct {
	ID             string `db:"id"`
	OrganizationID string `db:"organization_id"`
}
